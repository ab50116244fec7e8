package agentclient

import "testing"

func TestParseClaudeOutputPrefersStructuredJSON(t *testing.T) {
	raw := `{"result": "done", "session_id": "abc123"}`
	result := parseClaudeOutput(raw, 0)
	if result.Output != "done" || result.CLISessionID != "abc123" {
		t.Fatalf("parseClaudeOutput() = %+v", result)
	}
}

func TestParseClaudeOutputFallsBackOnMalformedJSON(t *testing.T) {
	raw := "not json\n"
	result := parseClaudeOutput(raw, 0)
	if result.Output != "not json" {
		t.Fatalf("parseClaudeOutput() = %+v, want trimmed raw text", result)
	}
}

func TestParseCodexJSONLExtractsLastAssistantMessage(t *testing.T) {
	raw := `{"type":"item","thread_id":"t1","item":{"type":"message","role":"assistant","content":[{"type":"text","text":"first"}]}}
{"type":"item","item":{"type":"message","role":"assistant","content":[{"type":"text","text":"second"}]}}`
	result := parseCodexJSONL(raw, 0)
	if result.Output != "second" || result.CLISessionID != "t1" {
		t.Fatalf("parseCodexJSONL() = %+v", result)
	}
}

func TestLimitedBufferTruncatesAfterMax(t *testing.T) {
	buf := newLimitedBuffer(4)
	_, _ = buf.Write([]byte("hello world"))
	if buf.String() != "hell" {
		t.Fatalf("limitedBuffer truncated to %q, want %q", buf.String(), "hell")
	}
}
