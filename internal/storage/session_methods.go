package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// ========== Device Session Methods ==========

const deviceSessionColumns = `id, project_id, link_code, device_mac, device_sn,
               start_time_ms, end_time_ms, duration_ms, phase, status,
               event_count, error_count, command_count, milestones,
               created_at, updated_at`

// UpsertDeviceSession inserts or replaces the materialized session for
// a pairing code. Re-parsing a file converges on the same row.
func (s *PostgresStore) UpsertDeviceSession(ctx context.Context, session *models.DeviceSession) error {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	query := `
        INSERT INTO device_sessions (` + deviceSessionColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
        ON CONFLICT (project_id, link_code) DO UPDATE SET
            device_mac = EXCLUDED.device_mac,
            device_sn = EXCLUDED.device_sn,
            start_time_ms = EXCLUDED.start_time_ms,
            end_time_ms = EXCLUDED.end_time_ms,
            duration_ms = EXCLUDED.duration_ms,
            phase = EXCLUDED.phase,
            status = EXCLUDED.status,
            event_count = EXCLUDED.event_count,
            error_count = EXCLUDED.error_count,
            command_count = EXCLUDED.command_count,
            milestones = EXCLUDED.milestones,
            updated_at = EXCLUDED.updated_at`

	_, err := s.getDB().ExecContext(ctx, query,
		session.ID, session.ProjectID, session.LinkCode, session.DeviceMac,
		session.DeviceSN, session.StartTimeMs, session.EndTimeMs,
		session.DurationMs, session.Phase, session.Status,
		session.EventCount, session.ErrorCount, session.CommandCount,
		session.Milestones, session.CreatedAt, session.UpdatedAt,
	)

	return err
}

// GetDeviceSession gets the session for one pairing code
func (s *PostgresStore) GetDeviceSession(ctx context.Context, projectID uuid.UUID, linkCode string) (*models.DeviceSession, error) {
	query := `
        SELECT ` + deviceSessionColumns + `
        FROM device_sessions
        WHERE project_id = $1 AND link_code = $2`

	session := &models.DeviceSession{}
	err := s.getDB().QueryRowContext(ctx, query, projectID, linkCode).Scan(
		&session.ID, &session.ProjectID, &session.LinkCode, &session.DeviceMac,
		&session.DeviceSN, &session.StartTimeMs, &session.EndTimeMs,
		&session.DurationMs, &session.Phase, &session.Status,
		&session.EventCount, &session.ErrorCount, &session.CommandCount,
		&session.Milestones, &session.CreatedAt, &session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// ListDeviceSessions lists sessions with filters, newest first
func (s *PostgresStore) ListDeviceSessions(ctx context.Context, filters SessionFilters, limit, offset int) ([]*models.DeviceSession, int64, error) {
	query := "SELECT COUNT(*) FROM device_sessions WHERE project_id = $1"
	args := []interface{}{filters.ProjectID}
	argCount := 1

	if filters.LinkCode != nil {
		argCount++
		query += fmt.Sprintf(" AND link_code = $%d", argCount)
		args = append(args, *filters.LinkCode)
	}

	if filters.DeviceMac != nil {
		argCount++
		query += fmt.Sprintf(" AND device_mac = $%d", argCount)
		args = append(args, *filters.DeviceMac)
	}

	if filters.StartMs != nil {
		argCount++
		query += fmt.Sprintf(" AND start_time_ms >= $%d", argCount)
		args = append(args, *filters.StartMs)
	}

	if filters.EndMs != nil {
		argCount++
		query += fmt.Sprintf(" AND start_time_ms <= $%d", argCount)
		args = append(args, *filters.EndMs)
	}

	if filters.Status != nil {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, *filters.Status)
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT "+deviceSessionColumns, 1)

	argCount++
	selectQuery += fmt.Sprintf(" ORDER BY start_time_ms DESC LIMIT $%d", argCount)
	args = append(args, limit)

	argCount++
	selectQuery += fmt.Sprintf(" OFFSET $%d", argCount)
	args = append(args, offset)

	rows, err := s.getDB().QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sessions []*models.DeviceSession
	for rows.Next() {
		session := &models.DeviceSession{}
		err := rows.Scan(
			&session.ID, &session.ProjectID, &session.LinkCode, &session.DeviceMac,
			&session.DeviceSN, &session.StartTimeMs, &session.EndTimeMs,
			&session.DurationMs, &session.Phase, &session.Status,
			&session.EventCount, &session.ErrorCount, &session.CommandCount,
			&session.Milestones, &session.CreatedAt, &session.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		sessions = append(sessions, session)
	}

	return sessions, count, rows.Err()
}
