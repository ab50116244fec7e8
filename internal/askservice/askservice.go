// Package askservice implements C10, the Question Answering Service: mirrors
// C9's contract but in read-only mode, always replying with the answer
// field (or its fallback) and never touching git.
package askservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/vellumhq/vellum/internal/agentresult"
	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/kb"
	"github.com/vellumhq/vellum/internal/ratelimit"
	"github.com/vellumhq/vellum/internal/secrets"
)

type Service struct {
	agent   core.AgentClient
	limiter ratelimit.Limiter
	out     core.OutboundPort
	kbRoot  string
}

func New(agent core.AgentClient, limiter ratelimit.Limiter, out core.OutboundPort, kbRoot string) *Service {
	return &Service{agent: agent, limiter: limiter, out: out, kbRoot: kbRoot}
}

func (s *Service) Handle(ctx context.Context, group *core.MessageGroup, userKB core.UserKBConfig) error {
	allowed, retryAfter, err := s.limiter.Allow(ctx, group.UserID)
	if err != nil {
		return fmt.Errorf("askservice: rate limit check: %w", err)
	}
	if !allowed {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, fmt.Sprintf("You're asking too fast. Try again in %ds.", retryAfter))
		return sendErr
	}

	kbPath, ok := kb.GetKBPath(s.kbRoot, userKB)
	if !ok {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, "No knowledge base configured.")
		return sendErr
	}

	prompt := buildPrompt(group)

	result, err := s.agent.Process(ctx, core.AgentRequest{
		Text:       prompt,
		Mode:       core.ModeAsk,
		WorkingDir: kbPath,
		UserID:     group.UserID,
	})
	if err != nil {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, "Couldn't answer: "+secrets.Mask(err.Error()))
		if sendErr != nil {
			return sendErr
		}
		return err
	}

	answer := result.Answer
	if answer == "" {
		answer = agentresult.Parse(result.Markdown).Answer
	}
	if answer == "" {
		answer = "No answer produced."
	}

	_, err = s.out.SendMessage(ctx, group.ChatID, answer)
	return err
}

func buildPrompt(group *core.MessageGroup) string {
	var b strings.Builder
	for _, msg := range group.Messages {
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
