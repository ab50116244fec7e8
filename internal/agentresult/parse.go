// Package agentresult parses the standardized result block an Agent
// collaborator embeds in its raw output, and implements the fallback
// extraction used when that block is absent (§4.9 step 4, §9 design notes).
package agentresult

import (
	"regexp"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/vellumhq/vellum/internal/core"
)

// fallbackThreshold bounds how much non-block text counts as "small
// enough" to treat as the full answer rather than discarding it (§4.9).
const fallbackThreshold = 2000

var (
	resultBlockPattern   = regexp.MustCompile("(?s)```agent-result\\s*\\n(.*?)\\n```")
	metadataBlockPattern = regexp.MustCompile("(?s)```metadata\\s*\\n(.*?)\\n```")
)

type resultBlock struct {
	Summary        string         `json:"summary"`
	Title          string         `json:"title"`
	FilesCreated   []string       `json:"filesCreated"`
	FilesEdited    []string       `json:"filesEdited"`
	FoldersCreated []string       `json:"foldersCreated"`
	KBStructure    core.KBStructure `json:"kbStructure"`
	Answer         string         `json:"answer"`
}

// Parse extracts a core.AgentResult from raw agent output. When a fenced
// ```agent-result block is present and well-formed, its fields win. When
// it is absent (or malformed), Parse falls back to stripping both block
// kinds from raw and using what remains as Answer, provided that remainder
// is below fallbackThreshold; otherwise the full raw text is used.
func Parse(raw string) core.AgentResult {
	if m := resultBlockPattern.FindStringSubmatch(raw); m != nil {
		var block resultBlock
		if err := sonic.UnmarshalString(m[1], &block); err == nil {
			result := core.AgentResult{
				Markdown:       raw,
				Title:          block.Title,
				Summary:        block.Summary,
				FilesCreated:   block.FilesCreated,
				FilesEdited:    block.FilesEdited,
				FoldersCreated: block.FoldersCreated,
				KBStructure:    block.KBStructure,
				Answer:         block.Answer,
			}
			if meta := parseMetadata(raw); meta != nil {
				result.Metadata = meta
			}
			return result
		}
	}

	stripped := resultBlockPattern.ReplaceAllString(raw, "")
	stripped = metadataBlockPattern.ReplaceAllString(stripped, "")
	stripped = strings.TrimSpace(stripped)

	answer := stripped
	if len(stripped) >= fallbackThreshold || stripped == "" {
		answer = strings.TrimSpace(raw)
	}

	return core.AgentResult{
		Markdown: raw,
		Answer:   answer,
	}
}

func parseMetadata(raw string) map[string]any {
	m := metadataBlockPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	var meta map[string]any
	if err := sonic.UnmarshalString(m[1], &meta); err != nil {
		return nil
	}
	return meta
}
