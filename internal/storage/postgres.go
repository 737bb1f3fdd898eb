package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store interface for PostgreSQL
type PostgresStore struct {
	db *sql.DB
	tx *sql.Tx
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *PostgresStore) BeginTx(ctx context.Context) (Store, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{db: s.db, tx: tx}, nil
}

// Commit commits the transaction
func (s *PostgresStore) Commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

// Rollback rolls back the transaction
func (s *PostgresStore) Rollback() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback()
}

// getDB returns tx if in transaction, otherwise db
func (s *PostgresStore) getDB() interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Migrate creates the schema if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_login_at TIMESTAMPTZ,
			settings JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS log_files (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL,
			filename TEXT NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			invalid_lines INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			content BYTEA,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_files_project ON log_files(project_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS log_events (
			id UUID PRIMARY KEY,
			log_file_id UUID NOT NULL REFERENCES log_files(id) ON DELETE CASCADE,
			project_id UUID NOT NULL,
			timestamp_ms BIGINT NOT NULL,
			level INTEGER NOT NULL,
			event_name TEXT NOT NULL,
			payload JSONB,
			device_sn TEXT NOT NULL DEFAULT '',
			device_mac TEXT NOT NULL DEFAULT '',
			link_code TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT '',
			attempt_id TEXT NOT NULL DEFAULT '',
			error_code TEXT NOT NULL DEFAULT '',
			reason_code TEXT NOT NULL DEFAULT '',
			stage TEXT NOT NULL DEFAULT '',
			op TEXT NOT NULL DEFAULT '',
			result TEXT NOT NULL DEFAULT '',
			raw_line TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_log_events_project_ts ON log_events(project_id, timestamp_ms)`,
		`CREATE INDEX IF NOT EXISTS idx_log_events_file ON log_events(log_file_id)`,
		`CREATE INDEX IF NOT EXISTS idx_log_events_link_code ON log_events(project_id, link_code) WHERE link_code <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_log_events_device_mac ON log_events(project_id, device_mac) WHERE device_mac <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_log_events_request_id ON log_events(project_id, request_id) WHERE request_id <> ''`,
		`CREATE INDEX IF NOT EXISTS idx_log_events_error_code ON log_events(project_id, error_code) WHERE error_code <> ''`,
		`CREATE TABLE IF NOT EXISTS known_issues (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			solution TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			severity INTEGER NOT NULL DEFAULT 3,
			error_code TEXT NOT NULL DEFAULT '',
			event_pattern TEXT NOT NULL DEFAULT '',
			msg_pattern TEXT NOT NULL DEFAULT '',
			hit_count BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_known_issues_project_active ON known_issues(project_id, is_active)`,
		`CREATE TABLE IF NOT EXISTS device_sessions (
			id UUID PRIMARY KEY,
			project_id UUID NOT NULL,
			link_code TEXT NOT NULL,
			device_mac TEXT NOT NULL DEFAULT '',
			device_sn TEXT NOT NULL DEFAULT '',
			start_time_ms BIGINT NOT NULL,
			end_time_ms BIGINT NOT NULL,
			duration_ms BIGINT,
			phase TEXT NOT NULL,
			status TEXT NOT NULL,
			event_count INTEGER NOT NULL DEFAULT 0,
			error_count INTEGER NOT NULL DEFAULT 0,
			command_count INTEGER NOT NULL DEFAULT 0,
			milestones JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (project_id, link_code)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_device_sessions_project_start ON device_sessions(project_id, start_time_ms DESC)`,
		`CREATE TABLE IF NOT EXISTS analysis_snapshots (
			id UUID PRIMARY KEY,
			log_file_id UUID NOT NULL UNIQUE REFERENCES log_files(id) ON DELETE CASCADE,
			template_version INTEGER NOT NULL,
			artifacts JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return nil
}
