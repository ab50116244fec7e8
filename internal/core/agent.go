package core

import "context"

// AgentProcess is a running, free-form agent invocation (§4.11) whose
// stdout/stderr can be polled while it runs.
type AgentProcess interface {
	Stdout() string
	Stderr() string
	Done() <-chan struct{}
	Result() (AgentResult, error)
	Kill()
}

// StreamingAgentClient is the subset of the Agent contract C11 needs:
// starting a long-running task and polling its output rather than
// waiting for a single Process call to return.
type StreamingAgentClient interface {
	Start(ctx context.Context, req AgentRequest) (AgentProcess, error)
}

// AgentRequest is the contract payload driven by C9/C10/C11 (§6 spec.md).
type AgentRequest struct {
	Text       string
	URLs       []string
	Mode       Mode
	WorkingDir string
	UserID     int64
}

// KBStructure locates where the agent decided to file a note.
type KBStructure struct {
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
}

// AgentResult is the standardized result block the external Agent
// collaborator returns (§6 spec.md). Answer is optional and only
// meaningful in ask/agent modes.
type AgentResult struct {
	Markdown      string         `json:"markdown,omitempty"`
	Title         string         `json:"title,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	FilesCreated  []string       `json:"filesCreated,omitempty"`
	FilesEdited   []string       `json:"filesEdited,omitempty"`
	FoldersCreated []string      `json:"foldersCreated,omitempty"`
	KBStructure   KBStructure    `json:"kbStructure,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Answer        string         `json:"answer,omitempty"`
}
