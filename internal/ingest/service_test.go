package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/logdiag-server/logdiag-server-pro/internal/config"
	"github.com/logdiag-server/logdiag-server-pro/internal/decoder"
	"github.com/logdiag-server/logdiag-server-pro/internal/models"
	"github.com/logdiag-server/logdiag-server-pro/internal/storage"
)

// stubStore records pipeline calls. Embedding the interface keeps the
// stub small; methods the pipeline never touches would panic.
type stubStore struct {
	storage.Store

	file      *models.LogFile
	content   []byte
	status    models.FileStatus
	updatedAt time.Time
	stuck     []uuid.UUID

	events       []*models.LogEvent
	cleared      bool
	snapshotGone bool
	sessions     []*models.DeviceSession

	finishStatus models.FileStatus
	finishEvents int
	finishErrMsg string
}

func (s *stubStore) BeginTx(ctx context.Context) (storage.Store, error) { return s, nil }
func (s *stubStore) Commit() error                                      { return nil }
func (s *stubStore) Rollback() error                                    { return nil }

func (s *stubStore) ClaimLogFile(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	switch s.status {
	case models.FileStatusQueued, models.FileStatusFailed:
	case models.FileStatusParsing:
		if time.Since(s.updatedAt) < storage.ClaimLeaseWindow {
			return false, nil
		}
	default:
		return false, nil
	}

	s.status = models.FileStatusParsing
	s.updatedAt = time.Now()
	return true, nil
}

func (s *stubStore) RequeueStuckLogFiles(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	return s.stuck, nil
}

func (s *stubStore) GetLogFile(ctx context.Context, id uuid.UUID) (*models.LogFile, error) {
	return s.file, nil
}

func (s *stubStore) GetLogFileContent(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return s.content, nil
}

func (s *stubStore) DeleteLogEventsByFile(ctx context.Context, fileID uuid.UUID) error {
	s.cleared = true
	return nil
}

func (s *stubStore) CreateLogEvents(ctx context.Context, events []*models.LogEvent) error {
	s.events = append(s.events, events...)
	return nil
}

func (s *stubStore) FinishLogFile(ctx context.Context, id uuid.UUID, status models.FileStatus, eventCount, errorCount, invalidLines int, errMsg string) error {
	s.status = status
	s.finishStatus = status
	s.finishEvents = eventCount
	s.finishErrMsg = errMsg
	return nil
}

func (s *stubStore) DeleteAnalysisSnapshot(ctx context.Context, fileID uuid.UUID) error {
	s.snapshotGone = true
	return nil
}

func (s *stubStore) UpsertDeviceSession(ctx context.Context, session *models.DeviceSession) error {
	s.sessions = append(s.sessions, session)
	return nil
}

func newTestService(store storage.Store) *Service {
	cfg := &config.IngestConfig{
		Workers:      2,
		QueueSubject: "logfile.parse",
		QueueGroup:   "parsers",
	}
	dec, _ := decoder.New(&config.DecoderConfig{})
	return NewService(cfg, store, dec, nil)
}

func TestProcessFileHappyPath(t *testing.T) {
	fileID := uuid.New()
	projectID := uuid.New()

	content := `{"c":"{\"event\":\"conn_start\",\"msg\":{\"link_code\":\"LC1\",\"stage\":\"ble\",\"op\":\"connect\",\"result\":\"start\"}}","f":2,"l":1000,"n":"ble"}` + "\n" +
		`{"c":"{\"event\":\"conn_ok\",\"msg\":{\"link_code\":\"LC1\",\"stage\":\"ble\",\"op\":\"connect\",\"result\":\"ok\"}}","f":2,"l":1500,"n":"ble"}` + "\n"
	store := &stubStore{
		file:    &models.LogFile{ProjectID: projectID, Filename: "device.log"},
		content: []byte(content),
		status:  models.FileStatusQueued,
	}
	store.file.ID = fileID

	svc := newTestService(store)
	err := svc.ProcessFile(context.Background(), fileID)
	require.NoError(t, err)

	require.True(t, store.cleared)
	require.True(t, store.snapshotGone)
	require.Equal(t, models.FileStatusParsed, store.finishStatus)
	require.Equal(t, 2, store.finishEvents)
	require.Len(t, store.events, 2)

	require.Len(t, store.sessions, 1)
	require.Equal(t, "LC1", store.sessions[0].LinkCode)
}

func TestProcessFileSkipsWhenClaimed(t *testing.T) {
	store := &stubStore{
		status:    models.FileStatusParsing,
		updatedAt: time.Now(),
	}

	svc := newTestService(store)
	err := svc.ProcessFile(context.Background(), uuid.New())
	require.NoError(t, err)
	require.False(t, store.cleared)
}

func TestProcessFileReclaimsExpiredLease(t *testing.T) {
	// A worker died mid-job: the file sits in parsing with a stale claim.
	fileID := uuid.New()
	store := &stubStore{
		file:      &models.LogFile{ProjectID: uuid.New(), Filename: "device.log"},
		content:   []byte(`{"c":"{\"event\":\"boot\"}","f":2,"l":1000,"n":"main"}`),
		status:    models.FileStatusParsing,
		updatedAt: time.Now().Add(-storage.ClaimLeaseWindow - time.Minute),
	}
	store.file.ID = fileID

	svc := newTestService(store)
	err := svc.ProcessFile(context.Background(), fileID)
	require.NoError(t, err)

	require.True(t, store.cleared)
	require.Equal(t, models.FileStatusParsed, store.finishStatus)
	require.Len(t, store.events, 1)
}

func TestProcessFileUndecodableFails(t *testing.T) {
	// Magic byte without a key configured.
	store := &stubStore{
		file:    &models.LogFile{Filename: "weird.bin"},
		content: []byte{0x01, 0x00, 0x00, 0x00, 0x10, 0xde, 0xad},
		status:  models.FileStatusQueued,
	}

	svc := newTestService(store)
	err := svc.ProcessFile(context.Background(), uuid.New())
	require.NoError(t, err)

	require.Equal(t, models.FileStatusFailed, store.finishStatus)
	require.NotEmpty(t, store.finishErrMsg)
	require.False(t, store.cleared)
}

func TestEnqueueWithoutBroker(t *testing.T) {
	svc := newTestService(&stubStore{})

	id := uuid.New()
	require.NoError(t, svc.Enqueue(id))
	require.Equal(t, id, <-svc.jobs)
}

func TestStartDrainsQueueAfterShutdown(t *testing.T) {
	// A job enqueued before the shutdown signal must still finish; the
	// stub rejects store calls made with a cancelled context.
	fileID := uuid.New()
	store := &stubStore{
		file:    &models.LogFile{ProjectID: uuid.New(), Filename: "late.log"},
		content: []byte(`{"c":"{\"event\":\"boot\"}","f":2,"l":1000,"n":"main"}`),
		status:  models.FileStatusQueued,
	}
	store.file.ID = fileID

	svc := newTestService(store)
	require.NoError(t, svc.Enqueue(fileID))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, models.FileStatusParsed, store.finishStatus)
}

func TestStartRequeuesStuckFiles(t *testing.T) {
	fileID := uuid.New()
	store := &stubStore{
		file:    &models.LogFile{ProjectID: uuid.New(), Filename: "orphan.log"},
		content: []byte(`{"c":"{\"event\":\"boot\"}","f":2,"l":1000,"n":"main"}`),
		status:  models.FileStatusQueued,
		stuck:   []uuid.UUID{fileID},
	}
	store.file.ID = fileID

	svc := newTestService(store)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Start(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, models.FileStatusParsed, store.finishStatus)
	require.Len(t, store.events, 1)
}

func TestEnqueueAfterStop(t *testing.T) {
	svc := newTestService(&stubStore{})
	svc.stopped = true

	err := svc.Enqueue(uuid.New())
	require.ErrorIs(t, err, ErrStopped)
}
