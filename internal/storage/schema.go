package storage

// postgresSchema creates all tables. Idempotent; applied on connect.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS repositories (
	id                   TEXT PRIMARY KEY,
	owner                TEXT NOT NULL,
	name                 TEXT NOT NULL,
	full_name            TEXT NOT NULL,
	clone_url            TEXT NOT NULL DEFAULT '',
	clone_path           TEXT NOT NULL DEFAULT '',
	default_branch       TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'pending',
	status_reason        TEXT NOT NULL DEFAULT '',
	last_analyzed_commit TEXT NOT NULL DEFAULT '',
	last_refreshed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_repositories_full_name ON repositories (lower(full_name));

CREATE TABLE IF NOT EXISTS branches (
	repo_id    TEXT NOT NULL REFERENCES repositories(id),
	name       TEXT NOT NULL,
	head_sha   TEXT NOT NULL,
	is_default BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (repo_id, name)
);

CREATE TABLE IF NOT EXISTS commits (
	sha          TEXT NOT NULL,
	repo_id      TEXT NOT NULL REFERENCES repositories(id),
	author       TEXT NOT NULL,
	author_email TEXT NOT NULL,
	message      TEXT NOT NULL,
	timestamp    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (repo_id, sha)
);

CREATE TABLE IF NOT EXISTS commit_branches (
	repo_id TEXT NOT NULL,
	sha     TEXT NOT NULL,
	branch  TEXT NOT NULL,
	PRIMARY KEY (repo_id, sha, branch)
);

CREATE TABLE IF NOT EXISTS repository_files (
	repo_id  TEXT NOT NULL REFERENCES repositories(id),
	path     TEXT NOT NULL,
	language TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, path)
);

CREATE TABLE IF NOT EXISTS file_changes (
	repo_id      TEXT NOT NULL,
	commit_sha   TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	author       TEXT NOT NULL,
	author_email TEXT NOT NULL,
	additions    INTEGER NOT NULL DEFAULT 0,
	deletions    INTEGER NOT NULL DEFAULT 0,
	timestamp    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (repo_id, commit_sha, file_path)
);
CREATE INDEX IF NOT EXISTS idx_file_changes_path ON file_changes (repo_id, file_path, timestamp);

CREATE TABLE IF NOT EXISTS code_embeddings (
	id         TEXT NOT NULL,
	repo_id    TEXT NOT NULL,
	file_path  TEXT NOT NULL,
	commit_sha TEXT NOT NULL,
	unit_name  TEXT NOT NULL,
	start_line INTEGER NOT NULL DEFAULT 0,
	end_line   INTEGER NOT NULL DEFAULT 0,
	vector     FLOAT8[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (repo_id, commit_sha, file_path, unit_name)
);
CREATE INDEX IF NOT EXISTS idx_code_embeddings_path ON code_embeddings (repo_id, file_path);

CREATE TABLE IF NOT EXISTS dependencies (
	repo_id   TEXT NOT NULL,
	from_path TEXT NOT NULL,
	to_path   TEXT NOT NULL,
	PRIMARY KEY (repo_id, from_path, to_path)
);

CREATE TABLE IF NOT EXISTS file_ownership (
	repo_id      TEXT NOT NULL,
	file_path    TEXT NOT NULL,
	author_email TEXT NOT NULL,
	weight       DOUBLE PRECISION NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (repo_id, file_path, author_email)
);

CREATE TABLE IF NOT EXISTS pull_requests (
	repo_id    TEXT NOT NULL,
	number     INTEGER NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT 'open',
	author     TEXT NOT NULL DEFAULT '',
	head_sha   TEXT NOT NULL DEFAULT '',
	files      TEXT[] NOT NULL DEFAULT '{}',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (repo_id, number)
);

CREATE TABLE IF NOT EXISTS code_replacement_events (
	repo_id            TEXT NOT NULL,
	file_path          TEXT NOT NULL,
	unit_name          TEXT NOT NULL,
	original_author    TEXT NOT NULL,
	replacing_author   TEXT NOT NULL,
	original_commit    TEXT NOT NULL,
	replacing_commit   TEXT NOT NULL,
	time_delta_seconds BIGINT NOT NULL,
	similarity         DOUBLE PRECISION NOT NULL,
	fix_signal         BOOLEAN NOT NULL DEFAULT FALSE,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (repo_id, file_path, unit_name, original_commit, replacing_commit)
);

CREATE TABLE IF NOT EXISTS contributor_negative_scores (
	repo_id      TEXT NOT NULL,
	author_email TEXT NOT NULL,
	score        DOUBLE PRECISION NOT NULL,
	event_count  INTEGER NOT NULL DEFAULT 0,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (repo_id, author_email)
);

CREATE TABLE IF NOT EXISTS webhook_queue (
	id          BIGSERIAL PRIMARY KEY,
	payload     BYTEA NOT NULL,
	status      TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	last_error  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_webhook_queue_status ON webhook_queue (status, id);
`
