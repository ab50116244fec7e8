package agentclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/vellumhq/vellum/internal/agentresult"
	"github.com/vellumhq/vellum/internal/core"
)

const systemPrompt = `You are operating as a knowledge-base collaborator. When you finish, end your
reply with a fenced block:

` + "```agent-result" + `
{"title": "...", "summary": "...", "filesCreated": [...], "filesEdited": [...], "answer": "..."}
` + "```" + `

Use "answer" for ask/agent-mode questions, and "filesCreated"/"filesEdited" for any
Markdown file you wrote or touched.`

// Client is the default core.AgentClient/core.StreamingAgentClient
// implementation: it shells out to a local CLI coding agent per request,
// preferring claude-code and falling back to codex when claude isn't on
// PATH, grounded on the teacher's agentx.Backend selection.
type Client struct {
	backends []backend
}

var _ core.AgentClient = (*Client)(nil)
var _ core.StreamingAgentClient = (*Client)(nil)

func New() *Client {
	return &Client{backends: []backend{&claudeCodeBackend{}, &codexBackend{}}}
}

func (c *Client) pick() (backend, error) {
	for _, b := range c.backends {
		if b.available() {
			return b, nil
		}
	}
	return nil, fmt.Errorf("agentclient: no coding agent CLI found on PATH (tried claude, codex)")
}

func buildRunRequest(req core.AgentRequest) *runRequest {
	prompt := req.Text
	if len(req.URLs) > 0 {
		prompt += "\n\nReferenced URLs:\n" + strings.Join(req.URLs, "\n")
	}
	return &runRequest{
		Prompt:       prompt,
		WorkingDir:   req.WorkingDir,
		SystemPrompt: systemPrompt,
	}
}

// Process runs the agent synchronously and returns its parsed result,
// satisfying core.AgentClient for C9/C10's request/response shape.
func (c *Client) Process(ctx context.Context, req core.AgentRequest) (core.AgentResult, error) {
	b, err := c.pick()
	if err != nil {
		return core.AgentResult{}, err
	}

	result, err := b.run(ctx, buildRunRequest(req))
	if err != nil {
		return core.AgentResult{}, fmt.Errorf("agentclient: %s: %w", b.name(), err)
	}
	return agentresult.Parse(result.Output), nil
}

// Start launches the agent asynchronously, satisfying
// core.StreamingAgentClient for C11's long-running task flow.
func (c *Client) Start(ctx context.Context, req core.AgentRequest) (core.AgentProcess, error) {
	b, err := c.pick()
	if err != nil {
		return nil, err
	}

	p, err := b.start(ctx, buildRunRequest(req))
	if err != nil {
		return nil, fmt.Errorf("agentclient: %s: %w", b.name(), err)
	}
	return &asyncProcess{process: p}, nil
}

// asyncProcess adapts the CLI-subprocess process type to core.AgentProcess,
// parsing the CLI's raw output into a core.AgentResult once it exits.
type asyncProcess struct {
	*process
}

func (p *asyncProcess) Result() (core.AgentResult, error) {
	select {
	case <-p.done:
	default:
		return core.AgentResult{}, fmt.Errorf("agentclient: process still running")
	}

	p.mu.RLock()
	waitErr := p.waitErr
	exitCode := p.exitCode
	p.mu.RUnlock()

	output := p.stdout.String()
	if waitErr != "" && exitCode != 0 && output == "" {
		return core.AgentResult{}, fmt.Errorf("agentclient: process failed: %s", waitErr)
	}
	return agentresult.Parse(output), nil
}
