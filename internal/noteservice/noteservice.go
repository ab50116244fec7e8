// Package noteservice implements C9, the Note Creation Service: turns a
// sealed MessageGroup into a knowledge-base note via the Agent contract,
// then commits and pushes the change through C3.
package noteservice

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vellumhq/vellum/internal/agentresult"
	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/gitops"
	"github.com/vellumhq/vellum/internal/kb"
	"github.com/vellumhq/vellum/internal/pkg/logs"
	"github.com/vellumhq/vellum/internal/ratelimit"
	"github.com/vellumhq/vellum/internal/secrets"
)

// Service is the concrete C9 implementation.
type Service struct {
	agent    core.AgentClient
	limiter  ratelimit.Limiter
	out      core.OutboundPort
	kbRoot   string
	git      *gitops.Operations
	gitPush  bool
}

func New(agent core.AgentClient, limiter ratelimit.Limiter, out core.OutboundPort, kbRoot string, git *gitops.Operations, gitPush bool) *Service {
	return &Service{agent: agent, limiter: limiter, out: out, kbRoot: kbRoot, git: git, gitPush: gitPush}
}

// Handle runs steps 1-6 of §4.9 against a sealed group.
func (s *Service) Handle(ctx context.Context, group *core.MessageGroup, userKB core.UserKBConfig) error {
	allowed, retryAfter, err := s.limiter.Allow(ctx, group.UserID)
	if err != nil {
		return fmt.Errorf("noteservice: rate limit check: %w", err)
	}
	if !allowed {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, fmt.Sprintf("You're sending notes too fast. Try again in %ds.", retryAfter))
		return sendErr
	}

	kbPath, ok := kb.GetKBPath(s.kbRoot, userKB)
	if !ok {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, "No knowledge base configured.")
		return sendErr
	}

	topicsDir := filepath.Join(kbPath, "topics")
	if err := os.MkdirAll(topicsDir, 0o755); err != nil {
		return fmt.Errorf("noteservice: ensure topics dir: %w", err)
	}

	prompt := buildPrompt(group)

	result, err := s.agent.Process(ctx, core.AgentRequest{
		Text:       prompt,
		Mode:       core.ModeNote,
		WorkingDir: topicsDir,
		UserID:     group.UserID,
	})
	if err != nil {
		_, sendErr := s.out.SendMessage(ctx, group.ChatID, "Note creation failed: "+secrets.Mask(err.Error()))
		if sendErr != nil {
			return sendErr
		}
		return err
	}

	parsed := result
	if result.Summary == "" && result.Answer == "" {
		parsed = agentresult.Parse(result.Markdown)
	}

	if s.gitPush && s.git != nil {
		title := parsed.Title
		if title == "" {
			title = "update"
		}
		if err := s.git.AutoCommitAndPush(ctx, kbPath, "note: "+title, group.UserID, userKB.KBName); err != nil {
			logs.Error("[noteservice] git push failed for user %d: %v", group.UserID, secrets.Mask(err.Error()))
		}
	}

	_, err = s.out.SendMessage(ctx, group.ChatID, confirmationText(parsed))
	return err
}

func buildPrompt(group *core.MessageGroup) string {
	var b strings.Builder
	for _, msg := range group.Messages {
		if msg.IsForwarded() {
			fmt.Fprintf(&b, "[forwarded from %s]\n", msg.ForwardSenderName)
		}
		b.WriteString(msg.Text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func confirmationText(result core.AgentResult) string {
	if len(result.FilesCreated) == 0 && len(result.FilesEdited) == 0 {
		if result.Summary != "" {
			return "Saved: " + result.Summary
		}
		return "Saved."
	}
	var b strings.Builder
	b.WriteString("Saved:\n")
	for _, f := range result.FilesCreated {
		fmt.Fprintf(&b, "+ %s\n", f)
	}
	for _, f := range result.FilesEdited {
		fmt.Fprintf(&b, "~ %s\n", f)
	}
	return strings.TrimSpace(b.String())
}
