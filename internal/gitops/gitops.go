// Package gitops implements C3, Git Operations: commit/push/pull against a
// user's KB repository with per-call credential injection, in-process via
// go-git/v5 rather than shelling out to a git binary.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/vellumhq/vellum/internal/core"
	"github.com/vellumhq/vellum/internal/pkg/logs"
	"github.com/vellumhq/vellum/internal/secrets"
)

// ErrorKind classifies a git failure the way §4.3 spec.md requires.
type ErrorKind string

const (
	ErrAuth     ErrorKind = "Auth"
	ErrConflict ErrorKind = "Conflict"
	ErrNetwork  ErrorKind = "Network"
	ErrOther    ErrorKind = "Other"
)

// Error wraps a classified, secret-scrubbed git failure.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: secrets.Mask(fmt.Sprintf(format, args...))}
}

const defaultTimeout = 60 * time.Second

// CredentialResolver resolves the auth to inject for a push/pull/clone.
// Returning ("", "", nil) means no auth is needed. The gateway's resolver
// (cmd/vellum credentialResolver) returns the per-user token only; there is
// no global fallback token.
type CredentialResolver interface {
	Resolve(userID int64, platform core.Platform) (username, token string, err error)
}

// PublishFunc delivers a KBChangeEvent to the event bus (C4) without
// gitops depending on eventbus's package directly (avoids an import
// cycle and keeps gitops a leaf component).
type PublishFunc func(core.KBChangeEvent)

// Operations bundles C3's four operations over one repo.
type Operations struct {
	resolver CredentialResolver
	publish  PublishFunc
}

func New(resolver CredentialResolver, publish PublishFunc) *Operations {
	if publish == nil {
		publish = func(core.KBChangeEvent) {}
	}
	return &Operations{resolver: resolver, publish: publish}
}

func (o *Operations) authFor(userID int64) transport.AuthMethod {
	if o.resolver == nil {
		return nil
	}
	for _, platform := range []core.Platform{core.PlatformGithub, core.PlatformGitlab} {
		username, token, err := o.resolver.Resolve(userID, platform)
		if err == nil && token != "" {
			return &githttp.BasicAuth{Username: firstNonEmpty(username, "x-access-token"), Password: token}
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Commit stages and commits every change under repoPath (optionally scoped
// to paths), publishing GitCommit on success.
func (o *Operations) Commit(ctx context.Context, repoPath, message string, paths []string, userID int64, kbID string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return newError(ErrOther, "open repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return newError(ErrOther, "worktree: %v", err)
	}

	if len(paths) == 0 {
		status, err := wt.Status()
		if err != nil {
			return newError(ErrOther, "status: %v", err)
		}
		if status.IsClean() {
			return nil
		}
	}
	for _, p := range paths {
		if _, err := wt.Add(p); err != nil {
			return newError(ErrOther, "add %s: %v", p, err)
		}
	}

	opts := &git.CommitOptions{
		All: len(paths) == 0,
		Author: &object.Signature{
			Name:  "vellum",
			Email: "vellum@localhost",
			When:  time.Now(),
		},
	}
	hash, err := wt.Commit(message, opts)
	if err != nil {
		return classify(err)
	}

	logs.CtxInfo(ctx, "[gitops] committed %s: %s", repoPath, hash.String())
	o.publish(core.KBChangeEvent{Type: core.EventGitCommit, UserID: userID, KBID: kbID, Source: "gitops", TS: time.Now().Unix()})
	return nil
}

// Push pushes branch to remote, injecting credentials only for this call.
// An empty branch pushes the remote's configured refspecs.
func (o *Operations) Push(ctx context.Context, repoPath, remote, branch string, userID int64, kbID string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return newError(ErrOther, "open repo: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := &git.PushOptions{
		RemoteName: remote,
		Auth:       o.authFor(userID),
	}
	if branch != "" {
		ref := plumbing.NewBranchReferenceName(branch)
		opts.RefSpecs = []gitconfig.RefSpec{gitconfig.RefSpec(ref + ":" + ref)}
	}
	err = repo.PushContext(timeoutCtx, opts)
	switch {
	case err == nil || errors.Is(err, git.NoErrAlreadyUpToDate):
		logs.CtxInfo(ctx, "[gitops] pushed %s", repoPath)
		o.publish(core.KBChangeEvent{Type: core.EventGitPush, UserID: userID, KBID: kbID, Source: "gitops", TS: time.Now().Unix()})
		return nil
	default:
		return classify(err)
	}
}

// Pull fetches and fast-forwards branch from remote. An empty branch pulls
// the remote's HEAD.
func (o *Operations) Pull(ctx context.Context, repoPath, remote, branch string, userID int64, kbID string) error {
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return newError(ErrOther, "open repo: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return newError(ErrOther, "worktree: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := &git.PullOptions{
		RemoteName:   remote,
		SingleBranch: true,
		Auth:         o.authFor(userID),
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}
	err = wt.PullContext(timeoutCtx, opts)
	switch {
	case err == nil || errors.Is(err, git.NoErrAlreadyUpToDate):
		logs.CtxInfo(ctx, "[gitops] pulled %s", repoPath)
		o.publish(core.KBChangeEvent{Type: core.EventGitPull, UserID: userID, KBID: kbID, Source: "gitops", TS: time.Now().Unix()})
		return nil
	default:
		return classify(err)
	}
}

// AutoCommitAndPush is the convenience operation C9 uses after a note is
// written: commit everything then push, swallowing a push failure into a
// classified, masked error the caller can still report (the commit itself
// is never lost).
func (o *Operations) AutoCommitAndPush(ctx context.Context, repoPath, message string, userID int64, kbID string) error {
	if err := o.Commit(ctx, repoPath, message, nil, userID, kbID); err != nil {
		return err
	}
	return o.Push(ctx, repoPath, "origin", "", userID, kbID)
}

func classify(err error) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "authentication") || strings.Contains(lower, "authorization"):
		return newError(ErrAuth, "%s", msg)
	case strings.Contains(lower, "non-fast-forward") || strings.Contains(lower, "conflict"):
		return newError(ErrConflict, "%s", msg)
	case strings.Contains(lower, "connection") || strings.Contains(lower, "timeout") || strings.Contains(lower, "dial"):
		return newError(ErrNetwork, "%s", msg)
	default:
		return newError(ErrOther, "%s", msg)
	}
}
