package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/models"
)

// SQLiteStore implements Store on a local SQLite file for single-node runs.
// Vectors and file lists are stored as JSON; the schema otherwise mirrors
// the PostgreSQL one.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the local database.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite serializes writes; a single connection avoids SQLITE_BUSY churn
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repositories (id, owner, name, full_name, clone_url, clone_path,
			default_branch, status, status_reason, last_analyzed_commit,
			last_refreshed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			clone_url = excluded.clone_url,
			clone_path = excluded.clone_path,
			default_branch = excluded.default_branch,
			updated_at = excluded.updated_at
	`, repo.ID, repo.Owner, repo.Name, repo.FullName, repo.CloneURL, repo.ClonePath,
		repo.DefaultBranch, repo.Status, repo.StatusReason, repo.LastAnalyzedCommit,
		repo.LastRefreshedAt, repo.CreatedAt, time.Now())
	if err != nil {
		return fmt.Errorf("save repository: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRepository(ctx context.Context, repoID string) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE id = ?`, repoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return &repo, nil
}

func (s *SQLiteStore) GetRepositoryByFullName(ctx context.Context, fullName string) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE lower(full_name) = lower(?)`, fullName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository by name: %w", err)
	}
	return &repo, nil
}

func (s *SQLiteStore) ListRepositories(ctx context.Context, status models.RepoStatus) ([]models.Repository, error) {
	var out []models.Repository
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM repositories ORDER BY full_name`)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM repositories WHERE status = ? ORDER BY full_name`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpdateRepositoryStatus(ctx context.Context, repoID string, from, to models.RepoStatus, reason string) error {
	if !from.CanTransition(to) {
		return ErrConflict
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET status = ?, status_reason = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, to, reason, time.Now(), repoID, from)
	if err != nil {
		return fmt.Errorf("update repository status: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		if _, err := s.GetRepository(ctx, repoID); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

func (s *SQLiteStore) SetLastAnalyzedCommit(ctx context.Context, repoID, sha string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET last_analyzed_commit = ?, last_refreshed_at = ?, updated_at = ?
		WHERE id = ?
	`, sha, time.Now(), time.Now(), repoID)
	if err != nil {
		return fmt.Errorf("set last analyzed commit: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ResetInterruptedRepositories(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories SET status = ?, status_reason = 'interrupted run reset on startup', updated_at = ?
		WHERE status NOT IN (?, ?, ?)
	`, models.RepoStatusPending, time.Now(),
		models.RepoStatusPending, models.RepoStatusCompleted, models.RepoStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted repositories: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		s.logger.WithField("count", rows).Warn("Reset repositories stranded mid-pipeline")
	}
	return int(rows), nil
}

func (s *SQLiteStore) SaveBranches(ctx context.Context, repoID string, branches []models.Branch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM branches WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("clear branches: %w", err)
	}
	for _, b := range branches {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO branches (repo_id, name, head_sha, is_default) VALUES (?, ?, ?, ?)
		`, repoID, b.Name, b.HeadSHA, b.IsDefault); err != nil {
			return fmt.Errorf("save branch %s: %w", b.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListBranches(ctx context.Context, repoID string) ([]models.Branch, error) {
	var out []models.Branch
	if err := s.db.SelectContext(ctx, &out, `SELECT * FROM branches WHERE repo_id = ? ORDER BY name`, repoID); err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SaveCommit(ctx context.Context, commit *models.Commit, branches []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO commits (sha, repo_id, author, author_email, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, commit.SHA, commit.RepoID, commit.Author, commit.AuthorEmail, commit.Message, commit.Timestamp); err != nil {
		return fmt.Errorf("save commit: %w", err)
	}
	for _, branch := range branches {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO commit_branches (repo_id, sha, branch) VALUES (?, ?, ?)
		`, commit.RepoID, commit.SHA, branch); err != nil {
			return fmt.Errorf("link commit to branch: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetCommit(ctx context.Context, repoID, sha string) (*models.Commit, error) {
	var commit models.Commit
	err := s.db.GetContext(ctx, &commit, `SELECT * FROM commits WHERE repo_id = ? AND sha = ?`, repoID, sha)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get commit: %w", err)
	}
	return &commit, nil
}

func (s *SQLiteStore) ListContributors(ctx context.Context, repoID string) ([]models.Contributor, error) {
	var out []models.Contributor
	// The newest commit decides the display name.
	err := s.db.SelectContext(ctx, &out, `
		SELECT c.author_email AS email,
		       (SELECT author FROM commits
		        WHERE repo_id = c.repo_id AND author_email = c.author_email
		        ORDER BY timestamp DESC LIMIT 1) AS name,
		       MIN(c.timestamp) AS first_commit,
		       MAX(c.timestamp) AS last_commit,
		       COUNT(*) AS total_commits
		FROM commits c
		WHERE c.repo_id = ?
		GROUP BY c.repo_id, c.author_email
		ORDER BY total_commits DESC, email ASC
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list contributors: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) HasFileChange(ctx context.Context, repoID, sha, path string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM file_changes WHERE repo_id = ? AND commit_sha = ? AND file_path = ?
	`, repoID, sha, path)
	if err != nil {
		return false, fmt.Errorf("check file change: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) SaveFileChange(ctx context.Context, change *models.FileChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO file_changes (repo_id, commit_sha, file_path, author, author_email,
			additions, deletions, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, change.RepoID, change.CommitSHA, change.FilePath, change.Author, change.AuthorEmail,
		change.Additions, change.Deletions, change.Timestamp)
	if err != nil {
		return fmt.Errorf("save file change: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFileChanges(ctx context.Context, repoID, path string) ([]models.FileChange, error) {
	var out []models.FileChange
	var err error
	if path == "" {
		err = s.db.SelectContext(ctx, &out, `
			SELECT * FROM file_changes WHERE repo_id = ? ORDER BY timestamp, commit_sha
		`, repoID)
	} else {
		err = s.db.SelectContext(ctx, &out, `
			SELECT * FROM file_changes WHERE repo_id = ? AND file_path = ? ORDER BY timestamp, commit_sha
		`, repoID, path)
	}
	if err != nil {
		return nil, fmt.Errorf("list file changes: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpsertFile(ctx context.Context, file *models.RepositoryFile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repository_files (repo_id, path, language) VALUES (?, ?, ?)
		ON CONFLICT (repo_id, path) DO UPDATE SET language = excluded.language
	`, file.RepoID, file.Path, file.Language)
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListFiles(ctx context.Context, repoID string) ([]models.RepositoryFile, error) {
	var out []models.RepositoryFile
	if err := s.db.SelectContext(ctx, &out, `SELECT * FROM repository_files WHERE repo_id = ? ORDER BY path`, repoID); err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return out, nil
}

type sqliteEmbeddingRow struct {
	ID         string    `db:"id"`
	RepoID     string    `db:"repo_id"`
	FilePath   string    `db:"file_path"`
	CommitSHA  string    `db:"commit_sha"`
	UnitName   string    `db:"unit_name"`
	StartLine  int       `db:"start_line"`
	EndLine    int       `db:"end_line"`
	VectorJSON string    `db:"vector_json"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r sqliteEmbeddingRow) toModel() (models.CodeEmbedding, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(r.VectorJSON), &vec); err != nil {
		return models.CodeEmbedding{}, fmt.Errorf("decode vector: %w", err)
	}
	return models.CodeEmbedding{
		ID: r.ID, RepoID: r.RepoID, FilePath: r.FilePath, CommitSHA: r.CommitSHA,
		UnitName: r.UnitName, StartLine: r.StartLine, EndLine: r.EndLine,
		Vector: vec, CreatedAt: r.CreatedAt,
	}, nil
}

func (s *SQLiteStore) SaveEmbedding(ctx context.Context, emb *models.CodeEmbedding) error {
	vec, err := json.Marshal(emb.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO code_embeddings (id, repo_id, file_path, commit_sha, unit_name,
			start_line, end_line, vector_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, emb.ID, emb.RepoID, emb.FilePath, emb.CommitSHA, emb.UnitName,
		emb.StartLine, emb.EndLine, string(vec), time.Now())
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) HasEmbedding(ctx context.Context, repoID, sha, path, unit string) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(1) FROM code_embeddings
		WHERE repo_id = ? AND commit_sha = ? AND file_path = ? AND unit_name = ?
	`, repoID, sha, path, unit)
	if err != nil {
		return false, fmt.Errorf("check embedding: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) ListEmbeddings(ctx context.Context, repoID, path string) ([]models.CodeEmbedding, error) {
	var rows []sqliteEmbeddingRow
	var err error
	if path == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM code_embeddings WHERE repo_id = ?`, repoID)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM code_embeddings WHERE repo_id = ? AND file_path = ?`, repoID, path)
	}
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	out := make([]models.CodeEmbedding, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *SQLiteStore) FindSimilarFiles(ctx context.Context, vector []float32, repoID, excludePath string, limit int) ([]SimilarFile, error) {
	var rows []sqliteEmbeddingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e.* FROM code_embeddings e
		JOIN (
			SELECT ce.file_path, max(c.timestamp) AS ts
			FROM code_embeddings ce
			JOIN commits c ON c.repo_id = ce.repo_id AND c.sha = ce.commit_sha
			WHERE ce.repo_id = ?
			GROUP BY ce.file_path
		) latest ON latest.file_path = e.file_path
		JOIN commits c ON c.repo_id = e.repo_id AND c.sha = e.commit_sha
		WHERE e.repo_id = ? AND c.timestamp = latest.ts
	`, repoID, repoID)
	if err != nil {
		return nil, fmt.Errorf("load latest embeddings: %w", err)
	}

	grouped := make(map[string][][]float32)
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		grouped[m.FilePath] = append(grouped[m.FilePath], m.Vector)
	}
	fileVectors := make(map[string][]float32, len(grouped))
	for path, vecs := range grouped {
		fileVectors[path] = embed.Mean(vecs)
	}
	return rankSimilar(fileVectors, vector, excludePath, limit), nil
}

func (s *SQLiteStore) ReplaceDependencies(ctx context.Context, repoID, fromPath string, toPaths []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE repo_id = ? AND from_path = ?`, repoID, fromPath); err != nil {
		return fmt.Errorf("clear dependencies: %w", err)
	}
	for _, to := range toPaths {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO dependencies (repo_id, from_path, to_path) VALUES (?, ?, ?)
		`, repoID, fromPath, to); err != nil {
			return fmt.Errorf("save dependency: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListDependencies(ctx context.Context, repoID string) ([]models.Dependency, error) {
	var out []models.Dependency
	if err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM dependencies WHERE repo_id = ? ORDER BY from_path, to_path
	`, repoID); err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) ReplaceFileOwnership(ctx context.Context, repoID, path string, weights []models.FileOwnership) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_ownership WHERE repo_id = ? AND file_path = ?`, repoID, path); err != nil {
		return fmt.Errorf("clear ownership: %w", err)
	}
	for _, w := range weights {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_ownership (repo_id, file_path, author_email, weight, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, repoID, path, w.AuthorEmail, w.Weight, time.Now()); err != nil {
			return fmt.Errorf("save ownership: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetFileOwnership(ctx context.Context, repoID, path string) ([]models.FileOwnership, error) {
	var out []models.FileOwnership
	if err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM file_ownership WHERE repo_id = ? AND file_path = ? ORDER BY weight DESC
	`, repoID, path); err != nil {
		return nil, fmt.Errorf("get file ownership: %w", err)
	}
	return out, nil
}

type sqlitePRRow struct {
	RepoID    string    `db:"repo_id"`
	Number    int       `db:"number"`
	Title     string    `db:"title"`
	State     string    `db:"state"`
	Author    string    `db:"author"`
	HeadSHA   string    `db:"head_sha"`
	FilesJSON string    `db:"files_json"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (s *SQLiteStore) UpsertPullRequest(ctx context.Context, pr *models.PullRequest) error {
	files, err := json.Marshal(pr.Files)
	if err != nil {
		return fmt.Errorf("encode pr files: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pull_requests (repo_id, number, title, state, author, head_sha, files_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo_id, number) DO UPDATE SET
			title = excluded.title,
			state = excluded.state,
			head_sha = excluded.head_sha,
			files_json = excluded.files_json,
			updated_at = excluded.updated_at
	`, pr.RepoID, pr.Number, pr.Title, pr.State, pr.Author, pr.HeadSHA, string(files), time.Now())
	if err != nil {
		return fmt.Errorf("upsert pull request: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOpenPullRequests(ctx context.Context, repoID string) ([]models.PullRequest, error) {
	var rows []sqlitePRRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM pull_requests WHERE repo_id = ? AND state = ? ORDER BY number
	`, repoID, models.PRStateOpen); err != nil {
		return nil, fmt.Errorf("list open pull requests: %w", err)
	}
	out := make([]models.PullRequest, 0, len(rows))
	for _, r := range rows {
		var files []string
		if err := json.Unmarshal([]byte(r.FilesJSON), &files); err != nil {
			return nil, fmt.Errorf("decode pr files: %w", err)
		}
		out = append(out, models.PullRequest{
			RepoID: r.RepoID, Number: r.Number, Title: r.Title, State: r.State,
			Author: r.Author, HeadSHA: r.HeadSHA, Files: files, UpdatedAt: r.UpdatedAt,
		})
	}
	return out, nil
}

func (s *SQLiteStore) SaveReplacementEvent(ctx context.Context, event *models.CodeReplacementEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO code_replacement_events (repo_id, file_path, unit_name,
			original_author, replacing_author, original_commit, replacing_commit,
			time_delta_seconds, similarity, fix_signal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.RepoID, event.FilePath, event.UnitName,
		event.OriginalAuthor, event.ReplacingAuthor, event.OriginalCommit, event.ReplacingCommit,
		int64(event.TimeDelta.Seconds()), event.Similarity, event.FixSignal, time.Now())
	if err != nil {
		return fmt.Errorf("save replacement event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReplacementEvents(ctx context.Context, repoID string) ([]models.CodeReplacementEvent, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM code_replacement_events WHERE repo_id = ? ORDER BY created_at
	`, repoID); err != nil {
		return nil, fmt.Errorf("list replacement events: %w", err)
	}
	out := make([]models.CodeReplacementEvent, len(rows))
	for i, r := range rows {
		out[i] = models.CodeReplacementEvent{
			RepoID: r.RepoID, FilePath: r.FilePath, UnitName: r.UnitName,
			OriginalAuthor: r.OriginalAuthor, ReplacingAuthor: r.ReplacingAuthor,
			OriginalCommit: r.OriginalCommit, ReplacingCommit: r.ReplacingCommit,
			TimeDelta:  time.Duration(r.TimeDeltaSeconds) * time.Second,
			Similarity: r.Similarity, FixSignal: r.FixSignal, CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

func (s *SQLiteStore) ReplaceNegativeScores(ctx context.Context, repoID string, scores []models.ContributorNegativeScore) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM contributor_negative_scores WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("clear negative scores: %w", err)
	}
	for _, score := range scores {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contributor_negative_scores (repo_id, author_email, score, event_count, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, repoID, score.AuthorEmail, score.Score, score.EventCount, time.Now()); err != nil {
			return fmt.Errorf("save negative score: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListNegativeScores(ctx context.Context, repoID string) ([]models.ContributorNegativeScore, error) {
	var out []models.ContributorNegativeScore
	if err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM contributor_negative_scores WHERE repo_id = ? ORDER BY author_email
	`, repoID); err != nil {
		return nil, fmt.Errorf("list negative scores: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) EnqueueWebhook(ctx context.Context, payload []byte) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_queue (payload, status, retry_count, last_error, created_at, updated_at)
		VALUES (?, ?, 0, '', ?, ?)
	`, payload, models.QueueStatusPending, time.Now(), time.Now())
	if err != nil {
		return 0, fmt.Errorf("enqueue webhook: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("enqueue webhook id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ClaimNextPendingWebhook(ctx context.Context) (*models.WebhookQueueItem, error) {
	// Conditional update is the claim: only one caller flips a given row
	// out of pending. Losing a race to another worker retries on the next
	// oldest pending row.
	for {
		var item models.WebhookQueueItem
		err := s.db.GetContext(ctx, &item, `
			SELECT * FROM webhook_queue WHERE status = ? ORDER BY id LIMIT 1
		`, models.QueueStatusPending)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("find pending webhook: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			UPDATE webhook_queue SET status = ?, updated_at = ?
			WHERE id = ? AND status = ?
		`, models.QueueStatusProcessing, time.Now(), item.ID, models.QueueStatusPending)
		if err != nil {
			return nil, fmt.Errorf("claim webhook: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 1 {
			item.Status = models.QueueStatusProcessing
			return &item, nil
		}
	}
}

func (s *SQLiteStore) MarkWebhookDone(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_queue SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, models.QueueStatusDone, time.Now(), id, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark webhook done: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

func (s *SQLiteStore) MarkWebhookFailed(ctx context.Context, id int64, reason string, maxRetries int) error {
	// Only a claimed item takes a failure mark; a replay against a
	// terminal item must not requeue it.
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_queue
		SET retry_count = retry_count + 1,
		    last_error = ?,
		    status = CASE WHEN retry_count + 1 >= ? THEN ? ELSE ? END,
		    updated_at = ?
		WHERE id = ? AND status = ?
	`, reason, maxRetries, models.QueueStatusFailed, models.QueueStatusPending, time.Now(), id, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

// sqliteSchema mirrors the PostgreSQL schema with SQLite types.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repositories (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	full_name TEXT NOT NULL,
	clone_url TEXT NOT NULL DEFAULT '',
	clone_path TEXT NOT NULL DEFAULT '',
	default_branch TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	status_reason TEXT NOT NULL DEFAULT '',
	last_analyzed_commit TEXT NOT NULL DEFAULT '',
	last_refreshed_at TIMESTAMP NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS branches (
	repo_id TEXT NOT NULL,
	name TEXT NOT NULL,
	head_sha TEXT NOT NULL,
	is_default INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (repo_id, name)
);
CREATE TABLE IF NOT EXISTS commits (
	sha TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	author TEXT NOT NULL,
	author_email TEXT NOT NULL,
	message TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, sha)
);
CREATE TABLE IF NOT EXISTS commit_branches (
	repo_id TEXT NOT NULL,
	sha TEXT NOT NULL,
	branch TEXT NOT NULL,
	PRIMARY KEY (repo_id, sha, branch)
);
CREATE TABLE IF NOT EXISTS repository_files (
	repo_id TEXT NOT NULL,
	path TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, path)
);
CREATE TABLE IF NOT EXISTS file_changes (
	repo_id TEXT NOT NULL,
	commit_sha TEXT NOT NULL,
	file_path TEXT NOT NULL,
	author TEXT NOT NULL,
	author_email TEXT NOT NULL,
	additions INTEGER NOT NULL DEFAULT 0,
	deletions INTEGER NOT NULL DEFAULT 0,
	timestamp TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, commit_sha, file_path)
);
CREATE TABLE IF NOT EXISTS code_embeddings (
	id TEXT NOT NULL,
	repo_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	commit_sha TEXT NOT NULL,
	unit_name TEXT NOT NULL,
	start_line INTEGER NOT NULL DEFAULT 0,
	end_line INTEGER NOT NULL DEFAULT 0,
	vector_json TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, commit_sha, file_path, unit_name)
);
CREATE TABLE IF NOT EXISTS dependencies (
	repo_id TEXT NOT NULL,
	from_path TEXT NOT NULL,
	to_path TEXT NOT NULL,
	PRIMARY KEY (repo_id, from_path, to_path)
);
CREATE TABLE IF NOT EXISTS file_ownership (
	repo_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	author_email TEXT NOT NULL,
	weight REAL NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, file_path, author_email)
);
CREATE TABLE IF NOT EXISTS pull_requests (
	repo_id TEXT NOT NULL,
	number INTEGER NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'open',
	author TEXT NOT NULL DEFAULT '',
	head_sha TEXT NOT NULL DEFAULT '',
	files_json TEXT NOT NULL DEFAULT '[]',
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, number)
);
CREATE TABLE IF NOT EXISTS code_replacement_events (
	repo_id TEXT NOT NULL,
	file_path TEXT NOT NULL,
	unit_name TEXT NOT NULL,
	original_author TEXT NOT NULL,
	replacing_author TEXT NOT NULL,
	original_commit TEXT NOT NULL,
	replacing_commit TEXT NOT NULL,
	time_delta_seconds INTEGER NOT NULL,
	similarity REAL NOT NULL,
	fix_signal INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, file_path, unit_name, original_commit, replacing_commit)
);
CREATE TABLE IF NOT EXISTS contributor_negative_scores (
	repo_id TEXT NOT NULL,
	author_email TEXT NOT NULL,
	score REAL NOT NULL,
	event_count INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (repo_id, author_email)
);
CREATE TABLE IF NOT EXISTS webhook_queue (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	payload BLOB NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_webhook_queue_status ON webhook_queue (status, id);
`
