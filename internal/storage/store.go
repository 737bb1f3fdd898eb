package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// ClaimLeaseWindow is how long a parsing claim stays exclusive. A file
// still in parsing past this window belongs to a worker that died
// mid-job and may be claimed again.
const ClaimLeaseWindow = 5 * time.Minute

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	CountUsers(ctx context.Context) (int64, error)

	// Log file methods
	CreateLogFile(ctx context.Context, file *models.LogFile) error
	GetLogFile(ctx context.Context, id uuid.UUID) (*models.LogFile, error)
	GetLogFileContent(ctx context.Context, id uuid.UUID) ([]byte, error)
	ListLogFiles(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*models.LogFile, int64, error)
	DeleteLogFile(ctx context.Context, id uuid.UUID) error
	ClaimLogFile(ctx context.Context, id uuid.UUID) (bool, error)
	FinishLogFile(ctx context.Context, id uuid.UUID, status models.FileStatus, eventCount, errorCount, invalidLines int, errMsg string) error
	RequeueStuckLogFiles(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)

	// Log event methods
	CreateLogEvents(ctx context.Context, events []*models.LogEvent) error
	DeleteLogEventsByFile(ctx context.Context, fileID uuid.UUID) error
	GetLogEvent(ctx context.Context, id uuid.UUID) (*models.LogEvent, error)
	SearchLogEvents(ctx context.Context, filters EventFilters, limit, offset int) ([]*models.LogEvent, int64, error)
	GetLogEventContext(ctx context.Context, id uuid.UUID, before, after int) ([]*models.LogEvent, error)
	ListEventsByLinkCode(ctx context.Context, projectID uuid.UUID, linkCode string, limit int) ([]*models.LogEvent, error)
	ListEventsByWindow(ctx context.Context, projectID uuid.UUID, deviceMac string, startMs, endMs int64, limit int) ([]*models.LogEvent, error)
	ListEventsByFile(ctx context.Context, fileID uuid.UUID) ([]*models.LogEvent, error)

	// Known issue methods
	CreateKnownIssue(ctx context.Context, issue *models.KnownIssue) error
	GetKnownIssue(ctx context.Context, id uuid.UUID) (*models.KnownIssue, error)
	UpdateKnownIssue(ctx context.Context, issue *models.KnownIssue) error
	DeleteKnownIssue(ctx context.Context, id uuid.UUID) error
	ListKnownIssues(ctx context.Context, projectID uuid.UUID, activeOnly bool, limit, offset int) ([]*models.KnownIssue, int64, error)
	IncrementKnownIssueHits(ctx context.Context, ids []uuid.UUID) error

	// Device session methods (materialized views over log_events)
	UpsertDeviceSession(ctx context.Context, session *models.DeviceSession) error
	GetDeviceSession(ctx context.Context, projectID uuid.UUID, linkCode string) (*models.DeviceSession, error)
	ListDeviceSessions(ctx context.Context, filters SessionFilters, limit, offset int) ([]*models.DeviceSession, int64, error)

	// Analysis snapshot methods
	GetAnalysisSnapshot(ctx context.Context, fileID uuid.UUID) (*models.AnalysisSnapshot, error)
	SaveAnalysisSnapshot(ctx context.Context, snapshot *models.AnalysisSnapshot) error
	DeleteAnalysisSnapshot(ctx context.Context, fileID uuid.UUID) error

	// Close the store
	Close() error
}

// EventFilters represents filters for the event search surface
type EventFilters struct {
	ProjectID uuid.UUID
	LogFileID *uuid.UUID
	StartMs   *int64
	EndMs     *int64
	MinLevel  *int
	EventName *string
	LinkCode  *string
	DeviceMac *string
	DeviceSN  *string
	RequestID *string
	ErrorCode *string
	Contains  *string
}

// SessionFilters represents filters for materialized device sessions
type SessionFilters struct {
	ProjectID uuid.UUID
	LinkCode  *string
	DeviceMac *string
	StartMs   *int64
	EndMs     *int64
	Status    *models.SessionStatus
}
