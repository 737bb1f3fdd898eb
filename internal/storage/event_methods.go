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

// ========== Log Event Methods ==========

const logEventColumns = `id, log_file_id, project_id, timestamp_ms, level, event_name,
               payload, device_sn, device_mac, link_code, request_id, attempt_id,
               error_code, reason_code, stage, op, result, raw_line, created_at`

// insertBatchSize keeps multi-row inserts under the postgres parameter limit
const insertBatchSize = 500

// CreateLogEvents bulk-inserts parsed events in batches
func (s *PostgresStore) CreateLogEvents(ctx context.Context, events []*models.LogEvent) error {
	now := time.Now()

	for start := 0; start < len(events); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(events) {
			end = len(events)
		}
		batch := events[start:end]

		var sb strings.Builder
		sb.WriteString(`
        INSERT INTO log_events (` + logEventColumns + `) VALUES `)

		args := make([]interface{}, 0, len(batch)*19)
		for i, event := range batch {
			if event.ID == uuid.Nil {
				event.ID = uuid.New()
			}
			if event.CreatedAt.IsZero() {
				event.CreatedAt = now
			}

			if i > 0 {
				sb.WriteString(", ")
			}
			base := i * 19
			sb.WriteString("(")
			for j := 1; j <= 19; j++ {
				if j > 1 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "$%d", base+j)
			}
			sb.WriteString(")")

			t := event.Tracking
			args = append(args,
				event.ID, event.LogFileID, event.ProjectID, event.TimestampMs,
				event.Level, event.EventName, event.Payload,
				t.DeviceSN, t.DeviceMac, t.LinkCode, t.RequestID, t.AttemptID,
				t.ErrorCode, t.ReasonCode, t.Stage, t.Op, t.Result,
				event.RawLine, event.CreatedAt,
			)
		}

		if _, err := s.getDB().ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert log events: %w", err)
		}
	}

	return nil
}

// DeleteLogEventsByFile removes all events parsed from a file.
// Used before a retry so re-parsing stays idempotent.
func (s *PostgresStore) DeleteLogEventsByFile(ctx context.Context, fileID uuid.UUID) error {
	_, err := s.getDB().ExecContext(ctx,
		"DELETE FROM log_events WHERE log_file_id = $1", fileID)
	return err
}

// GetLogEvent gets a single event by ID
func (s *PostgresStore) GetLogEvent(ctx context.Context, id uuid.UUID) (*models.LogEvent, error) {
	query := `
        SELECT ` + logEventColumns + `
        FROM log_events
        WHERE id = $1`

	row := s.getDB().QueryRowContext(ctx, query, id)
	event, err := scanLogEventRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return event, nil
}

// SearchLogEvents searches events with filters, ordered by timestamp
func (s *PostgresStore) SearchLogEvents(ctx context.Context, filters EventFilters, limit, offset int) ([]*models.LogEvent, int64, error) {
	// Build query with filters
	query := "SELECT COUNT(*) FROM log_events WHERE project_id = $1"
	args := []interface{}{filters.ProjectID}
	argCount := 1

	if filters.LogFileID != nil {
		argCount++
		query += fmt.Sprintf(" AND log_file_id = $%d", argCount)
		args = append(args, *filters.LogFileID)
	}

	if filters.StartMs != nil {
		argCount++
		query += fmt.Sprintf(" AND timestamp_ms >= $%d", argCount)
		args = append(args, *filters.StartMs)
	}

	if filters.EndMs != nil {
		argCount++
		query += fmt.Sprintf(" AND timestamp_ms <= $%d", argCount)
		args = append(args, *filters.EndMs)
	}

	if filters.MinLevel != nil {
		argCount++
		query += fmt.Sprintf(" AND level >= $%d", argCount)
		args = append(args, *filters.MinLevel)
	}

	if filters.EventName != nil {
		argCount++
		query += fmt.Sprintf(" AND event_name = $%d", argCount)
		args = append(args, *filters.EventName)
	}

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

	if filters.DeviceSN != nil {
		argCount++
		query += fmt.Sprintf(" AND device_sn = $%d", argCount)
		args = append(args, *filters.DeviceSN)
	}

	if filters.RequestID != nil {
		argCount++
		query += fmt.Sprintf(" AND request_id = $%d", argCount)
		args = append(args, *filters.RequestID)
	}

	if filters.ErrorCode != nil {
		argCount++
		query += fmt.Sprintf(" AND error_code = $%d", argCount)
		args = append(args, *filters.ErrorCode)
	}

	if filters.Contains != nil {
		argCount++
		query += fmt.Sprintf(" AND raw_line ILIKE $%d", argCount)
		args = append(args, "%"+*filters.Contains+"%")
	}

	// Get count
	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	// Get rows
	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT "+logEventColumns, 1)

	argCount++
	selectQuery += fmt.Sprintf(" ORDER BY timestamp_ms ASC, created_at ASC LIMIT $%d", argCount)
	args = append(args, limit)

	argCount++
	selectQuery += fmt.Sprintf(" OFFSET $%d", argCount)
	args = append(args, offset)

	rows, err := s.getDB().QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events, err := scanLogEventRows(rows)
	if err != nil {
		return nil, 0, err
	}

	return events, count, nil
}

// GetLogEventContext returns an event with its surrounding lines from
// the same file, ordered by timestamp. Neighbors are ranked on the full
// (timestamp_ms, created_at, id) key so burst events sharing the
// center's millisecond still land in the window.
func (s *PostgresStore) GetLogEventContext(ctx context.Context, id uuid.UUID, before, after int) ([]*models.LogEvent, error) {
	center, err := s.GetLogEvent(ctx, id)
	if err != nil {
		return nil, err
	}

	beforeQuery := `
        SELECT ` + logEventColumns + `
        FROM log_events
        WHERE log_file_id = $1 AND (timestamp_ms, created_at, id) < ($2, $3, $4)
        ORDER BY timestamp_ms DESC, created_at DESC, id DESC
        LIMIT $5`

	rows, err := s.getDB().QueryContext(ctx, beforeQuery,
		center.LogFileID, center.TimestampMs, center.CreatedAt, center.ID, before)
	if err != nil {
		return nil, err
	}
	preceding, err := scanLogEventRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	afterQuery := `
        SELECT ` + logEventColumns + `
        FROM log_events
        WHERE log_file_id = $1 AND (timestamp_ms, created_at, id) > ($2, $3, $4)
        ORDER BY timestamp_ms ASC, created_at ASC, id ASC
        LIMIT $5`

	rows, err = s.getDB().QueryContext(ctx, afterQuery,
		center.LogFileID, center.TimestampMs, center.CreatedAt, center.ID, after)
	if err != nil {
		return nil, err
	}
	following, err := scanLogEventRows(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	// preceding came out newest first
	result := make([]*models.LogEvent, 0, len(preceding)+1+len(following))
	for i := len(preceding) - 1; i >= 0; i-- {
		result = append(result, preceding[i])
	}
	result = append(result, center)
	result = append(result, following...)

	return result, nil
}

// ListEventsByLinkCode lists events for a pairing attempt in time order
func (s *PostgresStore) ListEventsByLinkCode(ctx context.Context, projectID uuid.UUID, linkCode string, limit int) ([]*models.LogEvent, error) {
	query := `
        SELECT ` + logEventColumns + `
        FROM log_events
        WHERE project_id = $1 AND link_code = $2
        ORDER BY timestamp_ms ASC
        LIMIT $3`

	rows, err := s.getDB().QueryContext(ctx, query, projectID, linkCode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogEventRows(rows)
}

// ListEventsByWindow lists events within a time window, optionally for one device
func (s *PostgresStore) ListEventsByWindow(ctx context.Context, projectID uuid.UUID, deviceMac string, startMs, endMs int64, limit int) ([]*models.LogEvent, error) {
	query := `
        SELECT ` + logEventColumns + `
        FROM log_events
        WHERE project_id = $1 AND timestamp_ms >= $2 AND timestamp_ms <= $3`
	args := []interface{}{projectID, startMs, endMs}
	argCount := 3

	if deviceMac != "" {
		argCount++
		query += fmt.Sprintf(" AND device_mac = $%d", argCount)
		args = append(args, deviceMac)
	}

	argCount++
	query += fmt.Sprintf(" ORDER BY timestamp_ms ASC LIMIT $%d", argCount)
	args = append(args, limit)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogEventRows(rows)
}

// ListEventsByFile lists all events of a file in time order
func (s *PostgresStore) ListEventsByFile(ctx context.Context, fileID uuid.UUID) ([]*models.LogEvent, error) {
	query := `
        SELECT ` + logEventColumns + `
        FROM log_events
        WHERE log_file_id = $1
        ORDER BY timestamp_ms ASC`

	rows, err := s.getDB().QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLogEventRows(rows)
}

func scanLogEventRow(row *sql.Row) (*models.LogEvent, error) {
	event := &models.LogEvent{}
	t := &event.Tracking
	err := row.Scan(
		&event.ID, &event.LogFileID, &event.ProjectID, &event.TimestampMs,
		&event.Level, &event.EventName, &event.Payload,
		&t.DeviceSN, &t.DeviceMac, &t.LinkCode, &t.RequestID, &t.AttemptID,
		&t.ErrorCode, &t.ReasonCode, &t.Stage, &t.Op, &t.Result,
		&event.RawLine, &event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return event, nil
}

func scanLogEventRows(rows *sql.Rows) ([]*models.LogEvent, error) {
	var events []*models.LogEvent
	for rows.Next() {
		event := &models.LogEvent{}
		t := &event.Tracking
		err := rows.Scan(
			&event.ID, &event.LogFileID, &event.ProjectID, &event.TimestampMs,
			&event.Level, &event.EventName, &event.Payload,
			&t.DeviceSN, &t.DeviceMac, &t.LinkCode, &t.RequestID, &t.AttemptID,
			&t.ErrorCode, &t.ReasonCode, &t.Stage, &t.Op, &t.Result,
			&event.RawLine, &event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
