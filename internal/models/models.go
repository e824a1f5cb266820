package models

import (
	"time"
)

// Repository represents a connected source repository under analysis.
type Repository struct {
	ID                 string     `json:"id" db:"id"`
	Owner              string     `json:"owner" db:"owner"`
	Name               string     `json:"name" db:"name"`
	FullName           string     `json:"full_name" db:"full_name"`
	CloneURL           string     `json:"clone_url" db:"clone_url"`
	ClonePath          string     `json:"clone_path" db:"clone_path"`
	DefaultBranch      string     `json:"default_branch" db:"default_branch"`
	Status             RepoStatus `json:"status" db:"status"`
	StatusReason       string     `json:"status_reason" db:"status_reason"`
	LastAnalyzedCommit string     `json:"last_analyzed_commit" db:"last_analyzed_commit"`
	LastRefreshedAt    time.Time  `json:"last_refreshed_at" db:"last_refreshed_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Branch is a tracked branch within a repository. Exactly one branch per
// repository is the default.
type Branch struct {
	RepoID    string `json:"repo_id" db:"repo_id"`
	Name      string `json:"name" db:"name"`
	HeadSHA   string `json:"head_sha" db:"head_sha"`
	IsDefault bool   `json:"is_default" db:"is_default"`
}

// Commit is an immutable point in repository history. Author identity is a
// plain name/email pair, not a platform account reference.
type Commit struct {
	SHA         string    `json:"sha" db:"sha"`
	RepoID      string    `json:"repo_id" db:"repo_id"`
	Author      string    `json:"author" db:"author"`
	AuthorEmail string    `json:"author_email" db:"author_email"`
	Message     string    `json:"message" db:"message"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// RepositoryFile is a logical path within a repository.
type RepositoryFile struct {
	RepoID   string `json:"repo_id" db:"repo_id"`
	Path     string `json:"path" db:"path"`
	Language string `json:"language" db:"language"`
}

// FileChange links a commit to a file it touched. Append-only: never mutated
// after creation.
type FileChange struct {
	RepoID      string    `json:"repo_id" db:"repo_id"`
	CommitSHA   string    `json:"commit_sha" db:"commit_sha"`
	FilePath    string    `json:"file_path" db:"file_path"`
	Author      string    `json:"author" db:"author"`
	AuthorEmail string    `json:"author_email" db:"author_email"`
	Additions   int       `json:"additions" db:"additions"`
	Deletions   int       `json:"deletions" db:"deletions"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
}

// CodeEmbedding is a fixed-dimension vector for one function unit of a file at
// a given revision. Immutable once created.
type CodeEmbedding struct {
	ID        string    `json:"id" db:"id"`
	RepoID    string    `json:"repo_id" db:"repo_id"`
	FilePath  string    `json:"file_path" db:"file_path"`
	CommitSHA string    `json:"commit_sha" db:"commit_sha"`
	UnitName  string    `json:"unit_name" db:"unit_name"`
	StartLine int       `json:"start_line" db:"start_line"`
	EndLine   int       `json:"end_line" db:"end_line"`
	Vector    []float32 `json:"vector"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Dependency is a directed import edge between two files of the same
// repository. Edges for a file are replaced wholesale on re-analysis; the
// resulting graph may contain cycles.
type Dependency struct {
	RepoID   string `json:"repo_id" db:"repo_id"`
	FromPath string `json:"from_path" db:"from_path"`
	ToPath   string `json:"to_path" db:"to_path"`
}

// FileOwnership holds the normalized ownership weight of one author for one
// file. Weights for a file sum to 1 across all authors.
type FileOwnership struct {
	RepoID      string    `json:"repo_id" db:"repo_id"`
	FilePath    string    `json:"file_path" db:"file_path"`
	AuthorEmail string    `json:"author_email" db:"author_email"`
	Weight      float64   `json:"weight" db:"weight"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// PullRequest mirrors a pull request on the hosting platform. Files is the
// derived changed-file set and is replaceable.
type PullRequest struct {
	RepoID    string    `json:"repo_id" db:"repo_id"`
	Number    int       `json:"number" db:"number"`
	Title     string    `json:"title" db:"title"`
	State     string    `json:"state" db:"state"`
	Author    string    `json:"author" db:"author"`
	HeadSHA   string    `json:"head_sha" db:"head_sha"`
	Files     []string  `json:"files"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Pull request states.
const (
	PRStateOpen   = "open"
	PRStateClosed = "closed"
	PRStateMerged = "merged"
)

// ContributorNegativeScore is the accumulated replacement score for one
// contributor in one repository. Recomputed wholesale, safe to upsert.
type ContributorNegativeScore struct {
	RepoID      string    `json:"repo_id" db:"repo_id"`
	AuthorEmail string    `json:"author_email" db:"author_email"`
	Score       float64   `json:"score" db:"score"`
	EventCount  int       `json:"event_count" db:"event_count"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// CodeReplacementEvent records one detected semantic rewrite of one author's
// code by a different author. Immutable once created; the natural key is
// (repo, file, unit, original commit, replacing commit).
type CodeReplacementEvent struct {
	RepoID          string        `json:"repo_id" db:"repo_id"`
	FilePath        string        `json:"file_path" db:"file_path"`
	UnitName        string        `json:"unit_name" db:"unit_name"`
	OriginalAuthor  string        `json:"original_author" db:"original_author"`
	ReplacingAuthor string        `json:"replacing_author" db:"replacing_author"`
	OriginalCommit  string        `json:"original_commit" db:"original_commit"`
	ReplacingCommit string        `json:"replacing_commit" db:"replacing_commit"`
	TimeDelta       time.Duration `json:"time_delta" db:"time_delta"`
	Similarity      float64       `json:"similarity" db:"similarity"`
	FixSignal       bool          `json:"fix_signal" db:"fix_signal"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

// WebhookQueueItem is one inbound repository event awaiting incremental
// analysis. Append-only except for status transitions.
type WebhookQueueItem struct {
	ID         int64       `json:"id" db:"id"`
	Payload    []byte      `json:"payload" db:"payload"`
	Status     QueueStatus `json:"status" db:"status"`
	RetryCount int         `json:"retry_count" db:"retry_count"`
	LastError  string      `json:"last_error" db:"last_error"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// Contributor aggregates authorship activity across a repository's history.
type Contributor struct {
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	FirstCommit  time.Time `json:"first_commit" db:"first_commit"`
	LastCommit   time.Time `json:"last_commit" db:"last_commit"`
	TotalCommits int       `json:"total_commits" db:"total_commits"`
}
