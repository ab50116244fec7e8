package agentclient

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/bytedance/sonic"
)

// codexBackend wraps the codex CLI in non-interactive mode.
type codexBackend struct{}

var _ backend = (*codexBackend)(nil)

func (b *codexBackend) name() string { return "codex" }

func (b *codexBackend) available() bool {
	_, err := exec.LookPath("codex")
	return err == nil
}

func (b *codexBackend) buildArgs(req *runRequest) []string {
	args := []string{"exec"}
	if req.ResumeID != "" {
		args = append(args, "resume", req.ResumeID)
	}
	args = append(args, req.Prompt, "--json", "--dangerously-bypass-approvals-and-sandbox")
	return args
}

type codexEvent struct {
	Type     string     `json:"type"`
	ThreadID string     `json:"thread_id,omitempty"`
	Item     *codexItem `json:"item,omitempty"`
}

type codexItem struct {
	Type    string         `json:"type"`
	Role    string         `json:"role"`
	Content []codexContent `json:"content"`
}

type codexContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func parseCodexJSONL(raw string, exitCode int) *runResult {
	result := &runResult{ExitCode: exitCode}
	var lastAssistantText string

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var ev codexEvent
		if err := sonic.UnmarshalString(line, &ev); err != nil {
			continue
		}
		if ev.ThreadID != "" {
			result.CLISessionID = ev.ThreadID
		}
		if ev.Item != nil && ev.Item.Role == "assistant" {
			for _, c := range ev.Item.Content {
				if c.Type == "text" && c.Text != "" {
					lastAssistantText = c.Text
				}
			}
		}
	}

	if lastAssistantText != "" {
		result.Output = lastAssistantText
	} else {
		result.Output = raw
	}
	return result
}

func (b *codexBackend) run(ctx context.Context, req *runRequest) (*runResult, error) {
	cmd := exec.CommandContext(ctx, "codex", b.buildArgs(req)...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}

	stdout := newLimitedBuffer(maxOutputBytes)
	stderr := newLimitedBuffer(maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, err
		}
	}

	return parseCodexJSONL(stdout.String(), exitCode), nil
}

func (b *codexBackend) start(ctx context.Context, req *runRequest) (*process, error) {
	cmd := exec.CommandContext(ctx, "codex", b.buildArgs(req)...)
	if req.WorkingDir != "" {
		cmd.Dir = req.WorkingDir
	}

	stdout := newLimitedBuffer(maxOutputBytes)
	stderr := newLimitedBuffer(maxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &process{cmd: cmd, stdout: stdout, stderr: stderr, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		waitErr := cmd.Wait()
		p.mu.Lock()
		defer p.mu.Unlock()
		p.finished = true
		if waitErr != nil {
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				p.exitCode = exitErr.ExitCode()
			} else {
				p.waitErr = waitErr.Error()
				p.exitCode = -1
			}
		}
	}()

	return p, nil
}
