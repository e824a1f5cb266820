package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/codeprov/codeprov-go/internal/embed"
	"github.com/codeprov/codeprov-go/internal/models"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPostgresStore connects to PostgreSQL and ensures the schema exists.
func NewPostgresStore(dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	if _, err := s.db.Exec(postgresSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Repository operations

func (s *PostgresStore) SaveRepository(ctx context.Context, repo *models.Repository) error {
	query := `
		INSERT INTO repositories (id, owner, name, full_name, clone_url, clone_path,
			default_branch, status, status_reason, last_analyzed_commit,
			last_refreshed_at, created_at, updated_at)
		VALUES (:id, :owner, :name, :full_name, :clone_url, :clone_path,
			:default_branch, :status, :status_reason, :last_analyzed_commit,
			:last_refreshed_at, :created_at, NOW())
		ON CONFLICT (id) DO UPDATE SET
			clone_url = EXCLUDED.clone_url,
			clone_path = EXCLUDED.clone_path,
			default_branch = EXCLUDED.default_branch,
			updated_at = NOW()
	`
	if _, err := s.db.NamedExecContext(ctx, query, repo); err != nil {
		return fmt.Errorf("save repository: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRepository(ctx context.Context, repoID string) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE id = $1`, repoID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository: %w", err)
	}
	return &repo, nil
}

func (s *PostgresStore) GetRepositoryByFullName(ctx context.Context, fullName string) (*models.Repository, error) {
	var repo models.Repository
	err := s.db.GetContext(ctx, &repo, `SELECT * FROM repositories WHERE lower(full_name) = lower($1)`, fullName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get repository by name: %w", err)
	}
	return &repo, nil
}

func (s *PostgresStore) ListRepositories(ctx context.Context, status models.RepoStatus) ([]models.Repository, error) {
	var out []models.Repository
	var err error
	if status == "" {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM repositories ORDER BY full_name`)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT * FROM repositories WHERE status = $1 ORDER BY full_name`, status)
	}
	if err != nil {
		return nil, fmt.Errorf("list repositories: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateRepositoryStatus(ctx context.Context, repoID string, from, to models.RepoStatus, reason string) error {
	if !from.CanTransition(to) {
		return ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories
		SET status = $1, status_reason = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4
	`, to, reason, repoID, from)
	if err != nil {
		return fmt.Errorf("update repository status: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		if _, err := s.GetRepository(ctx, repoID); err != nil {
			return err
		}
		// Row exists with a different status: some other run holds it
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) SetLastAnalyzedCommit(ctx context.Context, repoID, sha string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories
		SET last_analyzed_commit = $1, last_refreshed_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`, sha, repoID)
	if err != nil {
		return fmt.Errorf("set last analyzed commit: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ResetInterruptedRepositories(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE repositories
		SET status = $1, status_reason = 'interrupted run reset on startup', updated_at = NOW()
		WHERE status NOT IN ($2, $3, $4)
	`, models.RepoStatusPending, models.RepoStatusPending, models.RepoStatusCompleted, models.RepoStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("reset interrupted repositories: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows > 0 {
		s.logger.WithField("count", rows).Warn("Reset repositories stranded mid-pipeline")
	}
	return int(rows), nil
}

// Branch operations

func (s *PostgresStore) SaveBranches(ctx context.Context, repoID string, branches []models.Branch) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM branches WHERE repo_id = $1`, repoID); err != nil {
		return fmt.Errorf("clear branches: %w", err)
	}

	query := `
		INSERT INTO branches (repo_id, name, head_sha, is_default)
		VALUES (:repo_id, :name, :head_sha, :is_default)
	`
	for i := range branches {
		branches[i].RepoID = repoID
		if _, err := tx.NamedExecContext(ctx, query, branches[i]); err != nil {
			return fmt.Errorf("save branch %s: %w", branches[i].Name, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListBranches(ctx context.Context, repoID string) ([]models.Branch, error) {
	var out []models.Branch
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM branches WHERE repo_id = $1 ORDER BY name`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	return out, nil
}

// Commit and file-change operations

func (s *PostgresStore) SaveCommit(ctx context.Context, commit *models.Commit, branches []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO commits (sha, repo_id, author, author_email, message, timestamp)
		VALUES (:sha, :repo_id, :author, :author_email, :message, :timestamp)
		ON CONFLICT (repo_id, sha) DO NOTHING
	`, commit)
	if err != nil {
		return fmt.Errorf("save commit: %w", err)
	}

	for _, branch := range branches {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commit_branches (repo_id, sha, branch)
			VALUES ($1, $2, $3)
			ON CONFLICT (repo_id, sha, branch) DO NOTHING
		`, commit.RepoID, commit.SHA, branch)
		if err != nil {
			return fmt.Errorf("link commit to branch: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetCommit(ctx context.Context, repoID, sha string) (*models.Commit, error) {
	var commit models.Commit
	err := s.db.GetContext(ctx, &commit, `SELECT * FROM commits WHERE repo_id = $1 AND sha = $2`, repoID, sha)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get commit: %w", err)
	}
	return &commit, nil
}

func (s *PostgresStore) ListContributors(ctx context.Context, repoID string) ([]models.Contributor, error) {
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
		WHERE c.repo_id = $1
		GROUP BY c.repo_id, c.author_email
		ORDER BY total_commits DESC, email ASC
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list contributors: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) HasFileChange(ctx context.Context, repoID, sha, path string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM file_changes WHERE repo_id = $1 AND commit_sha = $2 AND file_path = $3
		)
	`, repoID, sha, path)
	if err != nil {
		return false, fmt.Errorf("check file change: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) SaveFileChange(ctx context.Context, change *models.FileChange) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO file_changes (repo_id, commit_sha, file_path, author, author_email,
			additions, deletions, timestamp)
		VALUES (:repo_id, :commit_sha, :file_path, :author, :author_email,
			:additions, :deletions, :timestamp)
		ON CONFLICT (repo_id, commit_sha, file_path) DO NOTHING
	`, change)
	if err != nil {
		return fmt.Errorf("save file change: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFileChanges(ctx context.Context, repoID, path string) ([]models.FileChange, error) {
	var out []models.FileChange
	var err error
	if path == "" {
		err = s.db.SelectContext(ctx, &out, `
			SELECT * FROM file_changes WHERE repo_id = $1 ORDER BY timestamp, commit_sha
		`, repoID)
	} else {
		err = s.db.SelectContext(ctx, &out, `
			SELECT * FROM file_changes WHERE repo_id = $1 AND file_path = $2 ORDER BY timestamp, commit_sha
		`, repoID, path)
	}
	if err != nil {
		return nil, fmt.Errorf("list file changes: %w", err)
	}
	return out, nil
}

// File operations

func (s *PostgresStore) UpsertFile(ctx context.Context, file *models.RepositoryFile) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO repository_files (repo_id, path, language)
		VALUES (:repo_id, :path, :language)
		ON CONFLICT (repo_id, path) DO UPDATE SET language = EXCLUDED.language
	`, file)
	if err != nil {
		return fmt.Errorf("upsert file: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, repoID string) ([]models.RepositoryFile, error) {
	var out []models.RepositoryFile
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM repository_files WHERE repo_id = $1 ORDER BY path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return out, nil
}

// Embedding operations

type embeddingRow struct {
	ID        string          `db:"id"`
	RepoID    string          `db:"repo_id"`
	FilePath  string          `db:"file_path"`
	CommitSHA string          `db:"commit_sha"`
	UnitName  string          `db:"unit_name"`
	StartLine int             `db:"start_line"`
	EndLine   int             `db:"end_line"`
	Vector    pq.Float64Array `db:"vector"`
	CreatedAt time.Time       `db:"created_at"`
}

func (r embeddingRow) toModel() models.CodeEmbedding {
	vec := make([]float32, len(r.Vector))
	for i, v := range r.Vector {
		vec[i] = float32(v)
	}
	return models.CodeEmbedding{
		ID:        r.ID,
		RepoID:    r.RepoID,
		FilePath:  r.FilePath,
		CommitSHA: r.CommitSHA,
		UnitName:  r.UnitName,
		StartLine: r.StartLine,
		EndLine:   r.EndLine,
		Vector:    vec,
		CreatedAt: r.CreatedAt,
	}
}

func (s *PostgresStore) SaveEmbedding(ctx context.Context, emb *models.CodeEmbedding) error {
	vec := make(pq.Float64Array, len(emb.Vector))
	for i, v := range emb.Vector {
		vec[i] = float64(v)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_embeddings (id, repo_id, file_path, commit_sha, unit_name,
			start_line, end_line, vector, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (repo_id, commit_sha, file_path, unit_name) DO NOTHING
	`, emb.ID, emb.RepoID, emb.FilePath, emb.CommitSHA, emb.UnitName,
		emb.StartLine, emb.EndLine, vec)
	if err != nil {
		return fmt.Errorf("save embedding: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasEmbedding(ctx context.Context, repoID, sha, path, unit string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM code_embeddings
			WHERE repo_id = $1 AND commit_sha = $2 AND file_path = $3 AND unit_name = $4
		)
	`, repoID, sha, path, unit)
	if err != nil {
		return false, fmt.Errorf("check embedding: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListEmbeddings(ctx context.Context, repoID, path string) ([]models.CodeEmbedding, error) {
	var rows []embeddingRow
	var err error
	if path == "" {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM code_embeddings WHERE repo_id = $1`, repoID)
	} else {
		err = s.db.SelectContext(ctx, &rows, `SELECT * FROM code_embeddings WHERE repo_id = $1 AND file_path = $2`, repoID, path)
	}
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	out := make([]models.CodeEmbedding, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *PostgresStore) FindSimilarFiles(ctx context.Context, vector []float32, repoID, excludePath string, limit int) ([]SimilarFile, error) {
	// Latest revision per file, then unit vectors are averaged in process.
	var rows []embeddingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e.* FROM code_embeddings e
		JOIN (
			SELECT ce.file_path, max(c.timestamp) AS ts
			FROM code_embeddings ce
			JOIN commits c ON c.repo_id = ce.repo_id AND c.sha = ce.commit_sha
			WHERE ce.repo_id = $1
			GROUP BY ce.file_path
		) latest ON latest.file_path = e.file_path
		JOIN commits c ON c.repo_id = e.repo_id AND c.sha = e.commit_sha
		WHERE e.repo_id = $1 AND c.timestamp = latest.ts
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("load latest embeddings: %w", err)
	}

	grouped := make(map[string][][]float32)
	for _, r := range rows {
		m := r.toModel()
		grouped[m.FilePath] = append(grouped[m.FilePath], m.Vector)
	}
	fileVectors := make(map[string][]float32, len(grouped))
	for path, vecs := range grouped {
		fileVectors[path] = embed.Mean(vecs)
	}
	return rankSimilar(fileVectors, vector, excludePath, limit), nil
}

// Dependency operations

func (s *PostgresStore) ReplaceDependencies(ctx context.Context, repoID, fromPath string, toPaths []string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM dependencies WHERE repo_id = $1 AND from_path = $2
	`, repoID, fromPath); err != nil {
		return fmt.Errorf("clear dependencies: %w", err)
	}

	for _, to := range toPaths {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO dependencies (repo_id, from_path, to_path)
			VALUES ($1, $2, $3)
			ON CONFLICT (repo_id, from_path, to_path) DO NOTHING
		`, repoID, fromPath, to); err != nil {
			return fmt.Errorf("save dependency: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListDependencies(ctx context.Context, repoID string) ([]models.Dependency, error) {
	var out []models.Dependency
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM dependencies WHERE repo_id = $1 ORDER BY from_path, to_path
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	return out, nil
}

// Ownership operations

func (s *PostgresStore) ReplaceFileOwnership(ctx context.Context, repoID, path string, weights []models.FileOwnership) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM file_ownership WHERE repo_id = $1 AND file_path = $2
	`, repoID, path); err != nil {
		return fmt.Errorf("clear ownership: %w", err)
	}

	for _, w := range weights {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO file_ownership (repo_id, file_path, author_email, weight, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, repoID, path, w.AuthorEmail, w.Weight); err != nil {
			return fmt.Errorf("save ownership: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) GetFileOwnership(ctx context.Context, repoID, path string) ([]models.FileOwnership, error) {
	var out []models.FileOwnership
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM file_ownership WHERE repo_id = $1 AND file_path = $2 ORDER BY weight DESC
	`, repoID, path)
	if err != nil {
		return nil, fmt.Errorf("get file ownership: %w", err)
	}
	return out, nil
}

// Pull request operations

type prRow struct {
	RepoID    string         `db:"repo_id"`
	Number    int            `db:"number"`
	Title     string         `db:"title"`
	State     string         `db:"state"`
	Author    string         `db:"author"`
	HeadSHA   string         `db:"head_sha"`
	Files     pq.StringArray `db:"files"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (s *PostgresStore) UpsertPullRequest(ctx context.Context, pr *models.PullRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pull_requests (repo_id, number, title, state, author, head_sha, files, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (repo_id, number) DO UPDATE SET
			title = EXCLUDED.title,
			state = EXCLUDED.state,
			head_sha = EXCLUDED.head_sha,
			files = EXCLUDED.files,
			updated_at = NOW()
	`, pr.RepoID, pr.Number, pr.Title, pr.State, pr.Author, pr.HeadSHA, pq.StringArray(pr.Files))
	if err != nil {
		return fmt.Errorf("upsert pull request: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOpenPullRequests(ctx context.Context, repoID string) ([]models.PullRequest, error) {
	var rows []prRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM pull_requests WHERE repo_id = $1 AND state = $2 ORDER BY number
	`, repoID, models.PRStateOpen)
	if err != nil {
		return nil, fmt.Errorf("list open pull requests: %w", err)
	}
	out := make([]models.PullRequest, len(rows))
	for i, r := range rows {
		out[i] = models.PullRequest{
			RepoID:    r.RepoID,
			Number:    r.Number,
			Title:     r.Title,
			State:     r.State,
			Author:    r.Author,
			HeadSHA:   r.HeadSHA,
			Files:     []string(r.Files),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return out, nil
}

// Negative score operations

func (s *PostgresStore) SaveReplacementEvent(ctx context.Context, event *models.CodeReplacementEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO code_replacement_events (repo_id, file_path, unit_name,
			original_author, replacing_author, original_commit, replacing_commit,
			time_delta_seconds, similarity, fix_signal, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		ON CONFLICT (repo_id, file_path, unit_name, original_commit, replacing_commit) DO NOTHING
	`, event.RepoID, event.FilePath, event.UnitName,
		event.OriginalAuthor, event.ReplacingAuthor, event.OriginalCommit, event.ReplacingCommit,
		int64(event.TimeDelta.Seconds()), event.Similarity, event.FixSignal)
	if err != nil {
		return fmt.Errorf("save replacement event: %w", err)
	}
	return nil
}

type eventRow struct {
	RepoID           string    `db:"repo_id"`
	FilePath         string    `db:"file_path"`
	UnitName         string    `db:"unit_name"`
	OriginalAuthor   string    `db:"original_author"`
	ReplacingAuthor  string    `db:"replacing_author"`
	OriginalCommit   string    `db:"original_commit"`
	ReplacingCommit  string    `db:"replacing_commit"`
	TimeDeltaSeconds int64     `db:"time_delta_seconds"`
	Similarity       float64   `db:"similarity"`
	FixSignal        bool      `db:"fix_signal"`
	CreatedAt        time.Time `db:"created_at"`
}

func (s *PostgresStore) ListReplacementEvents(ctx context.Context, repoID string) ([]models.CodeReplacementEvent, error) {
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM code_replacement_events WHERE repo_id = $1 ORDER BY created_at
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list replacement events: %w", err)
	}
	out := make([]models.CodeReplacementEvent, len(rows))
	for i, r := range rows {
		out[i] = models.CodeReplacementEvent{
			RepoID:          r.RepoID,
			FilePath:        r.FilePath,
			UnitName:        r.UnitName,
			OriginalAuthor:  r.OriginalAuthor,
			ReplacingAuthor: r.ReplacingAuthor,
			OriginalCommit:  r.OriginalCommit,
			ReplacingCommit: r.ReplacingCommit,
			TimeDelta:       time.Duration(r.TimeDeltaSeconds) * time.Second,
			Similarity:      r.Similarity,
			FixSignal:       r.FixSignal,
			CreatedAt:       r.CreatedAt,
		}
	}
	return out, nil
}

func (s *PostgresStore) ReplaceNegativeScores(ctx context.Context, repoID string, scores []models.ContributorNegativeScore) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM contributor_negative_scores WHERE repo_id = $1
	`, repoID); err != nil {
		return fmt.Errorf("clear negative scores: %w", err)
	}

	for _, score := range scores {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO contributor_negative_scores (repo_id, author_email, score, event_count, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
		`, repoID, score.AuthorEmail, score.Score, score.EventCount); err != nil {
			return fmt.Errorf("save negative score: %w", err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListNegativeScores(ctx context.Context, repoID string) ([]models.ContributorNegativeScore, error) {
	var out []models.ContributorNegativeScore
	err := s.db.SelectContext(ctx, &out, `
		SELECT * FROM contributor_negative_scores WHERE repo_id = $1 ORDER BY author_email
	`, repoID)
	if err != nil {
		return nil, fmt.Errorf("list negative scores: %w", err)
	}
	return out, nil
}

// Webhook queue operations

func (s *PostgresStore) EnqueueWebhook(ctx context.Context, payload []byte) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO webhook_queue (payload, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, 0, NOW(), NOW())
		RETURNING id
	`, payload, models.QueueStatusPending)
	if err != nil {
		return 0, fmt.Errorf("enqueue webhook: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) ClaimNextPendingWebhook(ctx context.Context) (*models.WebhookQueueItem, error) {
	// Claim-and-mark in one statement. SKIP LOCKED keeps concurrent workers
	// from ever receiving the same item.
	var item models.WebhookQueueItem
	err := s.db.GetContext(ctx, &item, `
		UPDATE webhook_queue
		SET status = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM webhook_queue
			WHERE status = $2
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, models.QueueStatusProcessing, models.QueueStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("claim webhook: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) MarkWebhookDone(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_queue SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
	`, models.QueueStatusDone, id, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark webhook done: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) MarkWebhookFailed(ctx context.Context, id int64, reason string, maxRetries int) error {
	// Only a claimed item takes a failure mark; a replay against a
	// terminal item must not requeue it.
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_queue
		SET retry_count = retry_count + 1,
		    last_error = $1,
		    status = CASE WHEN retry_count + 1 >= $2 THEN $3 ELSE $4 END,
		    updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, reason, maxRetries, models.QueueStatusFailed, models.QueueStatusPending, id, models.QueueStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark webhook failed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrConflict
	}
	return nil
}
