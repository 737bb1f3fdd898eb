package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// ========== Log File Methods ==========

// CreateLogFile stores an uploaded log file, raw content included
func (s *PostgresStore) CreateLogFile(ctx context.Context, file *models.LogFile) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}

	now := time.Now()
	file.CreatedAt = now
	file.UpdatedAt = now

	if file.Status == "" {
		file.Status = models.FileStatusQueued
	}

	query := `
        INSERT INTO log_files (
            id, project_id, filename, size, status, event_count,
            error_count, invalid_lines, error, content, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.getDB().ExecContext(ctx, query,
		file.ID, file.ProjectID, file.Filename, file.Size, file.Status,
		file.EventCount, file.ErrorCount, file.InvalidLines, file.Error,
		file.Content, file.CreatedAt, file.UpdatedAt,
	)

	return err
}

// GetLogFile gets log file metadata, raw content excluded
func (s *PostgresStore) GetLogFile(ctx context.Context, id uuid.UUID) (*models.LogFile, error) {
	query := `
        SELECT id, project_id, filename, size, status, event_count,
               error_count, invalid_lines, error, created_at, updated_at
        FROM log_files
        WHERE id = $1`

	file := &models.LogFile{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&file.ID, &file.ProjectID, &file.Filename, &file.Size, &file.Status,
		&file.EventCount, &file.ErrorCount, &file.InvalidLines, &file.Error,
		&file.CreatedAt, &file.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return file, nil
}

// GetLogFileContent loads only the raw bytes of a log file
func (s *PostgresStore) GetLogFileContent(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var content []byte
	err := s.getDB().QueryRowContext(ctx,
		"SELECT content FROM log_files WHERE id = $1", id).Scan(&content)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return content, nil
}

// ListLogFiles lists log files for a project, newest first
func (s *PostgresStore) ListLogFiles(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*models.LogFile, int64, error) {
	var count int64
	err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM log_files WHERE project_id = $1", projectID).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, project_id, filename, size, status, event_count,
               error_count, invalid_lines, error, created_at, updated_at
        FROM log_files
        WHERE project_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`

	rows, err := s.getDB().QueryContext(ctx, query, projectID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var files []*models.LogFile
	for rows.Next() {
		file := &models.LogFile{}
		err := rows.Scan(
			&file.ID, &file.ProjectID, &file.Filename, &file.Size, &file.Status,
			&file.EventCount, &file.ErrorCount, &file.InvalidLines, &file.Error,
			&file.CreatedAt, &file.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, file)
	}

	return files, count, rows.Err()
}

// DeleteLogFile deletes a log file; events and snapshot cascade
func (s *PostgresStore) DeleteLogFile(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, "DELETE FROM log_files WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ClaimLogFile atomically moves a queued or failed file into parsing.
// A parsing file whose lease expired counts as abandoned and is claimable
// too. Returns false when another worker holds a live claim.
func (s *PostgresStore) ClaimLogFile(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
        UPDATE log_files
        SET status = $2, updated_at = $3
        WHERE id = $1 AND (status IN ($4, $5) OR (status = $2 AND updated_at < $6))`

	now := time.Now()
	result, err := s.getDB().ExecContext(ctx, query,
		id, models.FileStatusParsing, now,
		models.FileStatusQueued, models.FileStatusFailed,
		now.Add(-ClaimLeaseWindow),
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RequeueStuckLogFiles moves files abandoned in parsing back to queued
// and returns their ids so the caller can re-enqueue the jobs
func (s *PostgresStore) RequeueStuckLogFiles(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	query := `
        UPDATE log_files
        SET status = $1, updated_at = $2
        WHERE status = $3 AND updated_at < $4
        RETURNING id`

	now := time.Now()
	rows, err := s.getDB().QueryContext(ctx, query,
		models.FileStatusQueued, now,
		models.FileStatusParsing, now.Add(-olderThan),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// FinishLogFile records the terminal parse outcome and counters
func (s *PostgresStore) FinishLogFile(ctx context.Context, id uuid.UUID, status models.FileStatus, eventCount, errorCount, invalidLines int, errMsg string) error {
	query := `
        UPDATE log_files
        SET status = $2, event_count = $3, error_count = $4,
            invalid_lines = $5, error = $6, updated_at = $7
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		id, status, eventCount, errorCount, invalidLines, errMsg, time.Now())
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}
