package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	"github.com/codeprov/codeprov-go/internal/models"
)

// GitHubPlatform implements Platform against the GitHub REST API.
type GitHubPlatform struct {
	client  *github.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGitHubPlatform creates a client. An empty token limits access to
// public repositories at the anonymous rate limit.
func NewGitHubPlatform(token string) *GitHubPlatform {
	client := github.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	return &GitHubPlatform{
		client: client,
		// Authenticated limit is 5000 req/hour; stay just under it.
		limiter: rate.NewLimiter(rate.Limit(1.2), 5),
		logger:  slog.Default().With("component", "github"),
	}
}

func (g *GitHubPlatform) wait(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}

func (g *GitHubPlatform) FetchRepository(ctx context.Context, owner, name string) (*RepoInfo, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	repo, _, err := g.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetch repository %s/%s: %w", owner, name, err)
	}
	return &RepoInfo{
		Owner:         repo.GetOwner().GetLogin(),
		Name:          repo.GetName(),
		FullName:      repo.GetFullName(),
		CloneURL:      repo.GetCloneURL(),
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
	}, nil
}

func (g *GitHubPlatform) ListOpenPullRequests(ctx context.Context, owner, name string) ([]models.PullRequest, error) {
	var out []models.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		prs, resp, err := g.client.PullRequests.List(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("list pull requests: %w", err)
		}
		for _, pr := range prs {
			files, err := g.listPRFiles(ctx, owner, name, pr.GetNumber())
			if err != nil {
				return nil, err
			}
			out = append(out, models.PullRequest{
				Number:  pr.GetNumber(),
				Title:   pr.GetTitle(),
				State:   models.PRStateOpen,
				Author:  pr.GetUser().GetLogin(),
				HeadSHA: pr.GetHead().GetSHA(),
				Files:   files,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	g.logger.Debug("listed open pull requests", "repo", owner+"/"+name, "count", len(out))
	return out, nil
}

func (g *GitHubPlatform) listPRFiles(ctx context.Context, owner, name string, number int) ([]string, error) {
	var files []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		if err := g.wait(ctx); err != nil {
			return nil, err
		}
		changed, resp, err := g.client.PullRequests.ListFiles(ctx, owner, name, number, opts)
		if err != nil {
			return nil, fmt.Errorf("list files for PR #%d: %w", number, err)
		}
		for _, f := range changed {
			files = append(files, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

func (g *GitHubPlatform) RegisterWebhook(ctx context.Context, owner, name, callbackURL, secret string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	hooks, _, err := g.client.Repositories.ListHooks(ctx, owner, name, &github.ListOptions{PerPage: 100})
	if err != nil {
		return fmt.Errorf("list webhooks: %w", err)
	}
	for _, h := range hooks {
		if url, ok := h.Config["url"].(string); ok && url == callbackURL {
			g.logger.Debug("webhook already registered", "url", callbackURL)
			return nil
		}
	}

	if err := g.wait(ctx); err != nil {
		return err
	}
	hook := &github.Hook{
		Events: []string{"push", "pull_request"},
		Active: github.Bool(true),
		Config: map[string]interface{}{
			"url":          callbackURL,
			"content_type": "json",
		},
	}
	if secret != "" {
		hook.Config["secret"] = secret
	}
	if _, _, err := g.client.Repositories.CreateHook(ctx, owner, name, hook); err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}
	g.logger.Info("registered push webhook", "repo", owner+"/"+name, "url", callbackURL)
	return nil
}

func (g *GitHubPlatform) PostCommitStatus(ctx context.Context, owner, name, sha string, status CommitStatus, description string) error {
	if err := g.wait(ctx); err != nil {
		return err
	}
	_, _, err := g.client.Repositories.CreateStatus(ctx, owner, name, sha, &github.RepoStatus{
		State:       github.String(string(status)),
		Context:     github.String("codeprov/analysis"),
		Description: github.String(description),
	})
	if err != nil {
		return fmt.Errorf("post commit status: %w", err)
	}
	return nil
}

// ParsePushPayload decodes a GitHub push event body into the normalized
// form queued for incremental analysis. Changed files are the union of
// added, modified, and removed paths across all commits in the push.
func ParsePushPayload(payload []byte) (*PushEvent, error) {
	var event github.PushEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode push payload: %w", err)
	}
	if event.GetRepo().GetFullName() == "" {
		return nil, fmt.Errorf("push payload missing repository name")
	}

	seen := make(map[string]struct{})
	var files []string
	add := func(paths []string) {
		for _, p := range paths {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	for _, c := range event.Commits {
		add(c.Added)
		add(c.Modified)
		add(c.Removed)
	}

	return &PushEvent{
		RepoFullName: event.GetRepo().GetFullName(),
		Ref:          strings.TrimPrefix(event.GetRef(), "refs/heads/"),
		HeadSHA:      event.GetAfter(),
		ChangedFiles: files,
	}, nil
}
