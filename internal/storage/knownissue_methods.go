package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// ========== Known Issue Methods ==========

const knownIssueColumns = `id, project_id, title, description, solution, category,
               severity, error_code, event_pattern, msg_pattern, hit_count,
               is_active, created_at, updated_at`

// CreateKnownIssue creates a known issue rule
func (s *PostgresStore) CreateKnownIssue(ctx context.Context, issue *models.KnownIssue) error {
	if issue.ID == uuid.Nil {
		issue.ID = uuid.New()
	}

	now := time.Now()
	issue.CreatedAt = now
	issue.UpdatedAt = now

	query := `
        INSERT INTO known_issues (` + knownIssueColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.getDB().ExecContext(ctx, query,
		issue.ID, issue.ProjectID, issue.Title, issue.Description,
		issue.Solution, issue.Category, issue.Severity, issue.ErrorCode,
		issue.EventPattern, issue.MsgPattern, issue.HitCount, issue.IsActive,
		issue.CreatedAt, issue.UpdatedAt,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetKnownIssue gets a known issue by ID
func (s *PostgresStore) GetKnownIssue(ctx context.Context, id uuid.UUID) (*models.KnownIssue, error) {
	query := `
        SELECT ` + knownIssueColumns + `
        FROM known_issues
        WHERE id = $1`

	issue := &models.KnownIssue{}
	err := s.getDB().QueryRowContext(ctx, query, id).Scan(
		&issue.ID, &issue.ProjectID, &issue.Title, &issue.Description,
		&issue.Solution, &issue.Category, &issue.Severity, &issue.ErrorCode,
		&issue.EventPattern, &issue.MsgPattern, &issue.HitCount, &issue.IsActive,
		&issue.CreatedAt, &issue.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return issue, nil
}

// UpdateKnownIssue updates a known issue rule
func (s *PostgresStore) UpdateKnownIssue(ctx context.Context, issue *models.KnownIssue) error {
	issue.UpdatedAt = time.Now()

	query := `
        UPDATE known_issues SET
            title = $2, description = $3, solution = $4, category = $5,
            severity = $6, error_code = $7, event_pattern = $8,
            msg_pattern = $9, is_active = $10, updated_at = $11
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		issue.ID, issue.Title, issue.Description, issue.Solution,
		issue.Category, issue.Severity, issue.ErrorCode, issue.EventPattern,
		issue.MsgPattern, issue.IsActive, issue.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteKnownIssue deletes a known issue rule
func (s *PostgresStore) DeleteKnownIssue(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx,
		"DELETE FROM known_issues WHERE id = $1", id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// ListKnownIssues lists issue rules for a project, most severe first
func (s *PostgresStore) ListKnownIssues(ctx context.Context, projectID uuid.UUID, activeOnly bool, limit, offset int) ([]*models.KnownIssue, int64, error) {
	query := "SELECT COUNT(*) FROM known_issues WHERE project_id = $1"
	args := []interface{}{projectID}

	if activeOnly {
		query += " AND is_active = true"
	}

	var count int64
	err := s.getDB().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return nil, 0, err
	}

	selectQuery := strings.Replace(query, "SELECT COUNT(*)",
		"SELECT "+knownIssueColumns, 1)

	selectQuery += " ORDER BY severity DESC, created_at DESC LIMIT $2 OFFSET $3"
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, selectQuery, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var issues []*models.KnownIssue
	for rows.Next() {
		issue := &models.KnownIssue{}
		err := rows.Scan(
			&issue.ID, &issue.ProjectID, &issue.Title, &issue.Description,
			&issue.Solution, &issue.Category, &issue.Severity, &issue.ErrorCode,
			&issue.EventPattern, &issue.MsgPattern, &issue.HitCount, &issue.IsActive,
			&issue.CreatedAt, &issue.UpdatedAt,
		)
		if err != nil {
			return nil, 0, err
		}
		issues = append(issues, issue)
	}

	return issues, count, rows.Err()
}

// IncrementKnownIssueHits bumps hit counters for matched rules in one statement
func (s *PostgresStore) IncrementKnownIssueHits(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query := `
        UPDATE known_issues
        SET hit_count = hit_count + 1, updated_at = $2
        WHERE id = ANY($1)`

	_, err := s.getDB().ExecContext(ctx, query, pq.Array(raw), time.Now())
	return err
}
