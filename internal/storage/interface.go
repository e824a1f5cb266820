// Package storage defines the data-access contract the pipeline depends on
// and its PostgreSQL, SQLite, and in-memory implementations.
package storage

import (
	"context"
	"errors"
	"sort"

	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/models"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// SimilarFile is one nearest-neighbor result from FindSimilarFiles.
type SimilarFile struct {
	Path       string  `json:"path"`
	Similarity float64 `json:"similarity"`
}

// Store is the persistence contract. Save operations on history entities
// (commits, file changes, embeddings, replacement events) are idempotent by
// natural key: replaying the same write is a silent no-op, never a duplicate.
type Store interface {
	// Repository operations
	SaveRepository(ctx context.Context, repo *models.Repository) error
	GetRepository(ctx context.Context, repoID string) (*models.Repository, error)
	GetRepositoryByFullName(ctx context.Context, fullName string) (*models.Repository, error)
	// ListRepositories returns repositories in the given status; an empty
	// status returns all of them.
	ListRepositories(ctx context.Context, status models.RepoStatus) ([]models.Repository, error)
	// UpdateRepositoryStatus transitions status from -> to atomically.
	// Returns ErrConflict when the stored status is not `from` or the
	// transition is not legal, which is how per-repository run exclusivity
	// is enforced.
	UpdateRepositoryStatus(ctx context.Context, repoID string, from, to models.RepoStatus, reason string) error
	SetLastAnalyzedCommit(ctx context.Context, repoID, sha string) error
	// ResetInterruptedRepositories moves every repository stranded in a
	// non-terminal state back to pending. Called once on startup; a crashed
	// run is restarted from scratch rather than resumed.
	ResetInterruptedRepositories(ctx context.Context) (int, error)

	// Branch operations
	SaveBranches(ctx context.Context, repoID string, branches []models.Branch) error
	ListBranches(ctx context.Context, repoID string) ([]models.Branch, error)

	// Commit and file-change operations
	SaveCommit(ctx context.Context, commit *models.Commit, branches []string) error
	GetCommit(ctx context.Context, repoID, sha string) (*models.Commit, error)
	// ListContributors aggregates authorship over the stored commits, busiest
	// first. Derived on read, so it never goes stale against the history.
	ListContributors(ctx context.Context, repoID string) ([]models.Contributor, error)
	HasFileChange(ctx context.Context, repoID, sha, path string) (bool, error)
	SaveFileChange(ctx context.Context, change *models.FileChange) error
	ListFileChanges(ctx context.Context, repoID, path string) ([]models.FileChange, error)

	// File operations
	UpsertFile(ctx context.Context, file *models.RepositoryFile) error
	ListFiles(ctx context.Context, repoID string) ([]models.RepositoryFile, error)

	// Embedding operations
	SaveEmbedding(ctx context.Context, emb *models.CodeEmbedding) error
	HasEmbedding(ctx context.Context, repoID, sha, path, unit string) (bool, error)
	ListEmbeddings(ctx context.Context, repoID, path string) ([]models.CodeEmbedding, error)
	FindSimilarFiles(ctx context.Context, vector []float32, repoID, excludePath string, limit int) ([]SimilarFile, error)

	// Dependency operations: edges for a file are replaced, not accumulated
	ReplaceDependencies(ctx context.Context, repoID, fromPath string, toPaths []string) error
	ListDependencies(ctx context.Context, repoID string) ([]models.Dependency, error)

	// Ownership operations
	ReplaceFileOwnership(ctx context.Context, repoID, path string, weights []models.FileOwnership) error
	GetFileOwnership(ctx context.Context, repoID, path string) ([]models.FileOwnership, error)

	// Pull request operations
	UpsertPullRequest(ctx context.Context, pr *models.PullRequest) error
	ListOpenPullRequests(ctx context.Context, repoID string) ([]models.PullRequest, error)

	// Negative score operations
	SaveReplacementEvent(ctx context.Context, event *models.CodeReplacementEvent) error
	ListReplacementEvents(ctx context.Context, repoID string) ([]models.CodeReplacementEvent, error)
	ReplaceNegativeScores(ctx context.Context, repoID string, scores []models.ContributorNegativeScore) error
	ListNegativeScores(ctx context.Context, repoID string) ([]models.ContributorNegativeScore, error)

	// Webhook queue operations
	EnqueueWebhook(ctx context.Context, payload []byte) (int64, error)
	// ClaimNextPendingWebhook atomically claims the oldest pending item and
	// marks it processing. No two callers ever receive the same item.
	// Returns ErrNotFound when the queue is empty.
	ClaimNextPendingWebhook(ctx context.Context) (*models.WebhookQueueItem, error)
	MarkWebhookDone(ctx context.Context, id int64) error
	// MarkWebhookFailed increments the retry count. The item goes back to
	// pending while retries remain and to terminal failed past the bound.
	MarkWebhookFailed(ctx context.Context, id int64, reason string, maxRetries int) error

	// Close connection
	Close() error
}

// rankSimilar orders candidate file vectors by cosine similarity against the
// query vector. Shared by store implementations that compute neighbors in
// process rather than in the database.
func rankSimilar(fileVectors map[string][]float32, query []float32, excludePath string, limit int) []SimilarFile {
	results := make([]SimilarFile, 0, len(fileVectors))
	for path, vec := range fileVectors {
		if path == excludePath {
			continue
		}
		results = append(results, SimilarFile{Path: path, Similarity: embed.Cosine(query, vec)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Path < results[j].Path
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}
