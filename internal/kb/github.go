package kb

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-github/v32/github"
	"golang.org/x/oauth2"
)

// ParseGithubURL splits a github.com remote URL (https or git@ form) into
// owner/repo, the shape CloneGithub's pre-flight check needs before a
// single git object is fetched.
func ParseGithubURL(remote string) (owner, repo string, err error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(remote), ".git")

	if strings.HasPrefix(trimmed, "git@github.com:") {
		parts := strings.SplitN(strings.TrimPrefix(trimmed, "git@github.com:"), "/", 2)
		if len(parts) != 2 {
			return "", "", fmt.Errorf("malformed github ssh remote: %s", remote)
		}
		return parts[0], parts[1], nil
	}

	u, parseErr := url.Parse(trimmed)
	if parseErr != nil || u.Host != "github.com" {
		return "", "", fmt.Errorf("not a github.com remote: %s", remote)
	}
	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed github remote path: %s", remote)
	}
	return parts[0], parts[1], nil
}

// VerifyGithubRepo resolves the repository's default branch and visibility
// before CloneGithub spends time on a full clone, surfacing an auth or
// not-found error in GitHub's own terms.
func VerifyGithubRepo(ctx context.Context, owner, repo, token string) (defaultBranch string, private bool, err error) {
	client := github.NewClient(nil)
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(ctx, ts))
	}

	r, _, err := client.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", false, fmt.Errorf("github: resolve %s/%s: %w", owner, repo, err)
	}
	return r.GetDefaultBranch(), r.GetPrivate(), nil
}
