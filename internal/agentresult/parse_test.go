package agentresult

import (
	"strings"
	"testing"
)

func TestParseResultBlock(t *testing.T) {
	raw := "Here is what I did.\n```agent-result\n" +
		`{"summary":"added a note","filesCreated":["topics/ai/note.md"],"kbStructure":{"category":"ai"}}` +
		"\n```\n"

	result := Parse(raw)
	if result.Summary != "added a note" {
		t.Fatalf("Summary = %q, want %q", result.Summary, "added a note")
	}
	if len(result.FilesCreated) != 1 || result.FilesCreated[0] != "topics/ai/note.md" {
		t.Fatalf("FilesCreated = %v", result.FilesCreated)
	}
	if result.KBStructure.Category != "ai" {
		t.Fatalf("KBStructure.Category = %q", result.KBStructure.Category)
	}
}

func TestParseFallbackUsesStrippedText(t *testing.T) {
	raw := "The answer is 42.\n```metadata\n{\"foo\":\"bar\"}\n```\n"
	result := Parse(raw)
	if result.Answer != "The answer is 42." {
		t.Fatalf("Answer = %q, want %q", result.Answer, "The answer is 42.")
	}
}

func TestParseFallbackUsesFullTextWhenStrippedEmpty(t *testing.T) {
	raw := "```agent-result\nnot valid json\n```\n"
	result := Parse(raw)
	if result.Answer != strings.TrimSpace(raw) {
		t.Fatalf("Answer = %q, want full raw text", result.Answer)
	}
}
