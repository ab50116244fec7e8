// Package kb implements C2, the KB Repository Manager: creating, cloning
// and pulling per-user knowledge base directories and enforcing the
// topics/ + seed-category invariant every KB path must satisfy.
package kb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/vellumhq/vellum/internal/consts"
	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/pkg/logs"
)

// RepoError is returned when a KB directory exists, is not a git repo,
// and cannot be initialized as one.
type RepoError struct{ Msg string }

func (e *RepoError) Error() string { return e.Msg }

const seedReadme = "# Knowledge Base\n\nThis directory is managed by Vellum. Notes live under topics/.\n"
const seedGitignore = "*.tmp\n.DS_Store\n"

// Manager roots every user's KB under root/{kbName}.
type Manager struct {
	root string
}

func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// InitLocal creates (idempotently) a local, git-initialized KB directory.
func (m *Manager) InitLocal(ctx context.Context, userID int64, kbName string) (string, error) {
	path := m.path(kbName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", &RepoError{Msg: fmt.Sprintf("create kb dir: %v", err)}
	}

	if !isGitRepo(path) {
		if _, err := git.PlainInit(path, false); err != nil {
			return "", &RepoError{Msg: fmt.Sprintf("git init: %v", err)}
		}
	}

	if err := seed(path); err != nil {
		return "", &RepoError{Msg: err.Error()}
	}

	logs.CtxInfo(ctx, "[kb] initialized local KB for user %d at %s", userID, path)
	return path, nil
}

// CloneGithub clones url into root/{kbName}, injecting credentials only for
// the clone call itself — the persisted remote config stays credential-free
// because go-git never writes the Auth option into .git/config.
func (m *Manager) CloneGithub(ctx context.Context, userID int64, kbName, url, username, token string) (string, error) {
	path := m.path(kbName)

	if isGitRepo(path) {
		if err := seed(path); err != nil {
			return "", &RepoError{Msg: err.Error()}
		}
		return path, nil
	}

	var auth transport.AuthMethod
	if token != "" {
		auth = &githttp.BasicAuth{Username: firstNonEmpty(username, "x-access-token"), Password: token}
	}

	if owner, repoName, parseErr := ParseGithubURL(url); parseErr == nil {
		if _, _, verifyErr := VerifyGithubRepo(ctx, owner, repoName, token); verifyErr != nil {
			return "", &RepoError{Msg: verifyErr.Error()}
		}
	}

	cloneCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := git.PlainCloneContext(cloneCtx, path, false, &git.CloneOptions{
		URL:          url,
		Auth:         auth,
		SingleBranch: true,
	})
	if err != nil {
		_ = os.RemoveAll(path)
		return "", &RepoError{Msg: fmt.Sprintf("clone %s: %v", url, err)}
	}

	if err := seed(path); err != nil {
		return "", &RepoError{Msg: err.Error()}
	}

	logs.CtxInfo(ctx, "[kb] cloned KB for user %d from %s", userID, url)
	return path, nil
}

// PullUpdates fast-forwards an existing KB clone.
func (m *Manager) PullUpdates(ctx context.Context, kbPath string) error {
	repo, err := git.PlainOpen(kbPath)
	if err != nil {
		return &RepoError{Msg: fmt.Sprintf("open repo: %v", err)}
	}
	wt, err := repo.Worktree()
	if err != nil {
		return &RepoError{Msg: fmt.Sprintf("worktree: %v", err)}
	}
	pullCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := wt.PullContext(pullCtx, &git.PullOptions{SingleBranch: true}); err != nil && err != git.NoErrAlreadyUpToDate {
		return &RepoError{Msg: fmt.Sprintf("pull: %v", err)}
	}
	return seed(kbPath)
}

func (m *Manager) path(kbName string) string {
	return filepath.Join(m.root, kbName)
}

func isGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

// seed non-destructively ensures topics/ + seed categories + README +
// .gitignore exist (§4.2 spec.md). Existing files are never overwritten.
func seed(kbPath string) error {
	topicsDir := filepath.Join(kbPath, consts.TopicsDirName)
	if err := os.MkdirAll(topicsDir, 0o755); err != nil {
		return fmt.Errorf("create topics dir: %w", err)
	}
	for _, category := range consts.SeedTopicCategories {
		if err := os.MkdirAll(filepath.Join(topicsDir, category), 0o755); err != nil {
			return fmt.Errorf("create category %s: %w", category, err)
		}
	}
	if err := writeIfAbsent(filepath.Join(kbPath, "README.md"), seedReadme); err != nil {
		return err
	}
	if err := writeIfAbsent(filepath.Join(kbPath, ".gitignore"), seedGitignore); err != nil {
		return err
	}
	return nil
}

func writeIfAbsent(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// GetKBPath resolves a user's configured KB to its on-disk path, or ("",
// false) when unconfigured — the router (C8) uses this to decide whether to
// show a setup prompt.
func GetKBPath(root string, cfg core.UserKBConfig) (string, bool) {
	if strings.TrimSpace(cfg.KBName) == "" {
		return "", false
	}
	return filepath.Join(root, cfg.KBName), true
}

// UserKey renders a userId as the decimal string key used in config maps.
func UserKey(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
