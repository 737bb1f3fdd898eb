package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// ========== Analysis Snapshot Methods ==========

// GetAnalysisSnapshot gets the cached analysis for a log file
func (s *PostgresStore) GetAnalysisSnapshot(ctx context.Context, fileID uuid.UUID) (*models.AnalysisSnapshot, error) {
	query := `
        SELECT id, log_file_id, template_version, artifacts, created_at, updated_at
        FROM analysis_snapshots
        WHERE log_file_id = $1`

	snapshot := &models.AnalysisSnapshot{}
	err := s.getDB().QueryRowContext(ctx, query, fileID).Scan(
		&snapshot.ID, &snapshot.LogFileID, &snapshot.TemplateVersion,
		&snapshot.Artifacts, &snapshot.CreatedAt, &snapshot.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

// SaveAnalysisSnapshot inserts or replaces the cached analysis for a file
func (s *PostgresStore) SaveAnalysisSnapshot(ctx context.Context, snapshot *models.AnalysisSnapshot) error {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}

	now := time.Now()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now

	query := `
        INSERT INTO analysis_snapshots (
            id, log_file_id, template_version, artifacts, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (log_file_id) DO UPDATE SET
            template_version = EXCLUDED.template_version,
            artifacts = EXCLUDED.artifacts,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		snapshot.ID, snapshot.LogFileID, snapshot.TemplateVersion,
		snapshot.Artifacts, snapshot.CreatedAt, snapshot.UpdatedAt,
	)

	return err
}

// DeleteAnalysisSnapshot drops the cached analysis for a file
func (s *PostgresStore) DeleteAnalysisSnapshot(ctx context.Context, fileID uuid.UUID) error {
	_, err := s.getDB().ExecContext(ctx,
		"DELETE FROM analysis_snapshots WHERE log_file_id = $1", fileID)
	return err
}
