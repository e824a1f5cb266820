package hosting

import (
	"context"

	"github.com/codeprov/codeprov-go/internal/models"
)

// RepoInfo is the hosting platform's view of a repository.
type RepoInfo struct {
	Owner         string
	Name          string
	FullName      string
	CloneURL      string
	DefaultBranch string
	Private       bool
}

// PushEvent is the normalized form of a push webhook delivery.
type PushEvent struct {
	RepoFullName string
	Ref          string
	HeadSHA      string
	ChangedFiles []string
}

// CommitStatus mirrors the platform's commit status states.
type CommitStatus string

const (
	StatusPending CommitStatus = "pending"
	StatusSuccess CommitStatus = "success"
	StatusFailure CommitStatus = "failure"
	StatusError   CommitStatus = "error"
)

// Platform abstracts the code hosting provider so the pipeline and queue
// never talk to a provider SDK directly.
type Platform interface {
	// FetchRepository returns metadata for owner/name.
	FetchRepository(ctx context.Context, owner, name string) (*RepoInfo, error)

	// ListOpenPullRequests returns open PRs with their changed file lists.
	ListOpenPullRequests(ctx context.Context, owner, name string) ([]models.PullRequest, error)

	// RegisterWebhook installs a push webhook pointing at callbackURL.
	// Registering the same URL twice is a no-op.
	RegisterWebhook(ctx context.Context, owner, name, callbackURL, secret string) error

	// PostCommitStatus reports an analysis result against a commit.
	PostCommitStatus(ctx context.Context, owner, name, sha string, status CommitStatus, description string) error
}
