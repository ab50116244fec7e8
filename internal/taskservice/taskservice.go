// Package taskservice implements C11, the Agent Task Service: free-form
// task execution with periodic progress edits, grounded on the teacher's
// agentx.Process (async CLI invocation with a Done() channel and buffered
// stdout/stderr) generalized behind core.AgentProcess.
package taskservice

import (
	"context"
	"fmt"
	"time"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/kb"
	"github.com/vellumhq/vellum/internal/pkg/logs"
	"github.com/vellumhq/vellum/internal/ratelimit"
	"github.com/vellumhq/vellum/internal/secrets"
)

const (
	progressInterval = 30 * time.Second
	tailLength       = 1000
)

type Service struct {
	agent   core.StreamingAgentClient
	limiter ratelimit.Limiter
	out     core.OutboundPort
	kbRoot  string
}

func New(agent core.StreamingAgentClient, limiter ratelimit.Limiter, out core.OutboundPort, kbRoot string) *Service {
	return &Service{agent: agent, limiter: limiter, out: out, kbRoot: kbRoot}
}

func (s *Service) Handle(ctx context.Context, group *core.MessageGroup, userKB core.UserKBConfig) error {
	allowed, retryAfter, err := s.limiter.Allow(ctx, group.UserID)
	if err != nil {
		return fmt.Errorf("taskservice: rate limit check: %w", err)
	}
	if !allowed {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, fmt.Sprintf("Too many tasks right now. Try again in %ds.", retryAfter))
		return sendErr
	}

	kbPath, ok := kb.GetKBPath(s.kbRoot, userKB)
	if !ok {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, "No knowledge base configured.")
		return sendErr
	}

	prompt := joinMessages(group)

	proc, err := s.agent.Start(ctx, core.AgentRequest{
		Text:       prompt,
		Mode:       core.ModeAgent,
		WorkingDir: kbPath,
		UserID:     group.UserID,
	})
	if err != nil {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, "Couldn't start task: "+secrets.Mask(err.Error()))
		if sendErr != nil {
			return sendErr
		}
		return err
	}

	processingID, err := s.out.SendMessage(ctx, group.ChatID, "Working...")
	if err != nil {
		proc.Kill()
		return err
	}

	s.streamProgress(ctx, group.ChatID, processingID, proc)

	result, err := proc.Result()
	if err != nil {
		_ = s.out.EditMessage(ctx, group.ChatID, processingID, "Task failed: "+secrets.Mask(err.Error()))
		return err
	}

	summary := result.Summary
	if summary == "" {
		summary = result.Answer
	}
	if summary == "" {
		summary = "Task completed."
	}
	return s.out.EditMessage(ctx, group.ChatID, processingID, summary)
}

// streamProgress edits processingID every progressInterval with the last
// tailLength characters of stdout, and sends a separate stderr message
// only when stderr content changes (§4.11).
func (s *Service) streamProgress(ctx context.Context, chatID, processingID int64, proc core.AgentProcess) {
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	var stderrMsgID int64
	var lastStderr string

	for {
		select {
		case <-proc.Done():
			return
		case <-ctx.Done():
			proc.Kill()
			return
		case <-ticker.C:
			tail := tailOf(proc.Stdout(), tailLength)
			if tail != "" {
				if err := s.out.EditMessage(ctx, chatID, processingID, tail); err != nil {
					logs.Error("[taskservice] edit progress failed: %v", err)
				}
			}

			stderr := proc.Stderr()
			if stderr != "" && stderr != lastStderr {
				lastStderr = stderr
				masked := secrets.Mask(stderr)
				if stderrMsgID == 0 {
					id, err := s.out.SendMessage(ctx, chatID, "stderr:\n"+masked)
					if err == nil {
						stderrMsgID = id
					}
				} else {
					_ = s.out.EditMessage(ctx, chatID, stderrMsgID, "stderr:\n"+masked)
				}
			}
		}
	}
}

func tailOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func joinMessages(group *core.MessageGroup) string {
	text := ""
	for _, msg := range group.Messages {
		text += msg.Text + "\n"
	}
	return text
}
