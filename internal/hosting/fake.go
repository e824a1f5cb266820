package hosting

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeprov/codeprov-go/internal/models"
)

// FakePlatform is an in-memory Platform for tests and offline runs.
type FakePlatform struct {
	mu       sync.Mutex
	Repos    map[string]*RepoInfo
	PRs      map[string][]models.PullRequest
	Hooks    map[string][]string
	Statuses map[string][]CommitStatus
}

func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Repos:    make(map[string]*RepoInfo),
		PRs:      make(map[string][]models.PullRequest),
		Hooks:    make(map[string][]string),
		Statuses: make(map[string][]CommitStatus),
	}
}

func (f *FakePlatform) FetchRepository(_ context.Context, owner, name string) (*RepoInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, ok := f.Repos[owner+"/"+name]
	if !ok {
		return nil, fmt.Errorf("repository %s/%s not found", owner, name)
	}
	return repo, nil
}

func (f *FakePlatform) ListOpenPullRequests(_ context.Context, owner, name string) ([]models.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.PullRequest(nil), f.PRs[owner+"/"+name]...), nil
}

func (f *FakePlatform) RegisterWebhook(_ context.Context, owner, name, callbackURL, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := owner + "/" + name
	for _, url := range f.Hooks[key] {
		if url == callbackURL {
			return nil
		}
	}
	f.Hooks[key] = append(f.Hooks[key], callbackURL)
	return nil
}

func (f *FakePlatform) PostCommitStatus(_ context.Context, owner, name, sha string, status CommitStatus, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Statuses[owner+"/"+name+"@"+sha] = append(f.Statuses[owner+"/"+name+"@"+sha], status)
	return nil
}
