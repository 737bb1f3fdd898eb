package storage

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var eventColumnList = []string{
	"id", "log_file_id", "project_id", "timestamp_ms", "level", "event_name",
	"payload", "device_sn", "device_mac", "link_code", "request_id", "attempt_id",
	"error_code", "reason_code", "stage", "op", "result", "raw_line", "created_at",
}

func addEventRow(rows *sqlmock.Rows, id, fileID, projectID uuid.UUID, ts int64, name string, createdAt time.Time) {
	rows.AddRow(id.String(), fileID.String(), projectID.String(), ts, 2, name,
		nil, "", "", "", "", "", "", "", "", "", "", "", createdAt)
}

// Burst logging produces many events in the same millisecond; the
// context window must rank them on the full ordering key instead of
// dropping every neighbor that shares the center's timestamp.
func TestGetLogEventContextKeepsSameMillisecondNeighbors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStore{db: db}

	fileID := uuid.New()
	projectID := uuid.New()
	centerID := uuid.New()
	createdAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	centerRows := sqlmock.NewRows(eventColumnList)
	addEventRow(centerRows, centerID, fileID, projectID, 2000, "center", createdAt)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
		WithArgs(centerID).
		WillReturnRows(centerRows)

	// Preceding rows come back newest first.
	beforeRows := sqlmock.NewRows(eventColumnList)
	addEventRow(beforeRows, uuid.New(), fileID, projectID, 2000, "same ms before", createdAt)
	addEventRow(beforeRows, uuid.New(), fileID, projectID, 1000, "early", createdAt)
	mock.ExpectQuery(regexp.QuoteMeta("(timestamp_ms, created_at, id) < ($2, $3, $4)")).
		WithArgs(fileID, int64(2000), createdAt, centerID, int64(2)).
		WillReturnRows(beforeRows)

	afterRows := sqlmock.NewRows(eventColumnList)
	addEventRow(afterRows, uuid.New(), fileID, projectID, 2000, "same ms after", createdAt)
	addEventRow(afterRows, uuid.New(), fileID, projectID, 3000, "late", createdAt)
	mock.ExpectQuery(regexp.QuoteMeta("(timestamp_ms, created_at, id) > ($2, $3, $4)")).
		WithArgs(fileID, int64(2000), createdAt, centerID, int64(2)).
		WillReturnRows(afterRows)

	events, err := store.GetLogEventContext(context.Background(), centerID, 2, 2)
	require.NoError(t, err)
	require.Len(t, events, 5)

	names := make([]string, 0, len(events))
	for _, ev := range events {
		names = append(names, ev.EventName)
	}
	require.Equal(t, []string{"early", "same ms before", "center", "same ms after", "late"}, names)

	require.NoError(t, mock.ExpectationsWereMet())
}
