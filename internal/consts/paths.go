package consts

import (
	"os"
	"path/filepath"
	"strconv"
)

const (
	VellumDirName  = ".vellum"
	ConfigFileName = "config.yaml"

	// KnowledgeBasesDirName is the root under which every user's KB lives.
	KnowledgeBasesDirName = "knowledge_bases"
	// TopicsDirName is the invariant subdirectory every KB path must contain.
	TopicsDirName = "topics"
	// MemoryDirName is the root under which every user's memory store lives.
	MemoryDirName = "data/memory"
)

// SeedTopicCategories are created (non-destructively) inside topics/ the
// first time a KB is initialized or cloned.
var SeedTopicCategories = []string{"general", "ai", "tech", "science", "business"}

func VellumHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, VellumDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(VellumHomeDir(), ConfigFileName)
}

// UserMemoryDir returns the per-user memory directory that every memory
// storage backend is confined to.
func UserMemoryDir(dataDir string, userID int64) string {
	return filepath.Join(dataDir, MemoryDirName, "user_"+strconv.FormatInt(userID, 10))
}
