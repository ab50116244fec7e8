// Package router implements C8, the Message Router: the entry point from
// the chat adapter that enforces the allow-list and KB-configured
// invariants, feeds messages into a user's aggregator (C6), and on
// aggregator timeout dispatches the sealed group to the mode-specific
// service (C9/C10/C11). Grounded on the teacher's
// gateway.Gateway.enqueueMsg/processMessage two-stage shape, generalized
// from a single global queue to one aggregator per user.
package router

import (
	"context"
	"fmt"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/kb"
	"github.com/vellumhq/vellum/internal/pkg/logs"
	"github.com/vellumhq/vellum/internal/usercontext"
)

// Service handles a sealed MessageGroup for one mode.
type Service interface {
	Handle(ctx context.Context, group *core.MessageGroup, userKB core.UserKBConfig) error
}

// AllowListFunc reports whether userID may use the gateway at all.
type AllowListFunc func(userID int64) bool

// KBResolver resolves a user's configured KB, mirroring config.Config.Users.
type KBResolver func(userID int64) (core.UserKBConfig, bool)

// Router is the concrete C8 implementation.
type Router struct {
	allowed  AllowListFunc
	resolve  KBResolver
	users    *usercontext.Manager
	out      core.OutboundPort
	kbRoot   string
	services map[core.Mode]Service
}

// New builds a Router. services must contain entries for note/ask/agent;
// missing entries fall back to a "mode unavailable" reply.
func New(allowed AllowListFunc, resolve KBResolver, users *usercontext.Manager, out core.OutboundPort, kbRoot string, services map[core.Mode]Service) *Router {
	return &Router{
		allowed:  allowed,
		resolve:  resolve,
		users:    users,
		out:      out,
		kbRoot:   kbRoot,
		services: services,
	}
}

// HandleIncoming is the callback wired to the chat adapter's onMessage.
func (r *Router) HandleIncoming(ctx context.Context, msg core.IncomingMessage) error {
	if !r.allowed(msg.UserID) {
		return nil
	}

	userKB, ok := r.resolve(msg.UserID)
	if !ok {
		_, err := r.out.SendMessage(ctx, msg.ChatID, "No knowledge base configured yet. Use /setup to connect one.")
		return err
	}

	if _, ok := kb.GetKBPath(r.kbRoot, userKB); !ok {
		_, err := r.out.SendMessage(ctx, msg.ChatID, "No knowledge base configured yet. Use /setup to connect one.")
		return err
	}

	agg := r.users.GetOrCreateAggregator(msg.UserID)
	agg.Add(msg)
	return nil
}

// Dispatch is the callback wired to every user's aggregator timeout. It
// looks up the mode-specific service and hands off the sealed group.
func (r *Router) Dispatch(userID int64, group *core.MessageGroup) {
	ctx := context.Background()

	userKB, ok := r.resolve(userID)
	if !ok {
		logs.Error("[router] dispatch for user %d with no KB config, dropping group", userID)
		return
	}

	session := r.users.GetOrCreateAgent(userID, r.kbRoot)
	mode := session.Mode
	if mode == "" {
		mode = core.DefaultMode
	}

	svc, ok := r.services[mode]
	if !ok {
		_, _ = r.out.SendMessage(ctx, group.ChatID, fmt.Sprintf("mode %q is not available", mode))
		return
	}

	if err := svc.Handle(ctx, group, userKB); err != nil {
		logs.Error("[router] service for mode %s failed for user %d: %v", mode, userID, err)
	}
}
