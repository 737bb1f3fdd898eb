package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/logdiag-server/logdiag-server-pro/internal/analysis"
	"github.com/logdiag-server/logdiag-server-pro/internal/config"
	"github.com/logdiag-server/logdiag-server-pro/internal/decoder"
	"github.com/logdiag-server/logdiag-server-pro/internal/models"
	"github.com/logdiag-server/logdiag-server-pro/internal/parser"
	"github.com/logdiag-server/logdiag-server-pro/internal/storage"
)

// ErrStopped is returned when enqueueing after shutdown has begun
var ErrStopped = errors.New("ingest service stopped")

// Service runs the parse pipeline behind a fixed worker pool. Jobs
// arrive either through the NATS queue subject or, without a broker,
// an in-process channel.
type Service struct {
	cfg   *config.IngestConfig
	store storage.Store
	dec   *decoder.Decoder
	nc    *nats.Conn

	jobs chan uuid.UUID
	sub  *nats.Subscription
	wg   sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewService creates the ingest service
func NewService(cfg *config.IngestConfig, store storage.Store, dec *decoder.Decoder, nc *nats.Conn) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		dec:   dec,
		nc:    nc,
		jobs:  make(chan uuid.UUID, cfg.Workers*4),
	}
}

// Start runs the workers until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	if s.nc != nil {
		sub, err := s.nc.QueueSubscribe(s.cfg.QueueSubject, s.cfg.QueueGroup, s.handleParseRequest)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", s.cfg.QueueSubject, err)
		}
		s.sub = sub
	}

	// Files a dead instance left in parsing go back into the queue.
	s.requeueStuck(ctx)

	log.Info().
		Int("workers", s.cfg.Workers).
		Bool("nats", s.nc != nil).
		Msg("Ingest service started")

	<-ctx.Done()

	if s.sub != nil {
		s.sub.Unsubscribe()
	}

	s.mu.Lock()
	s.stopped = true
	close(s.jobs)
	s.mu.Unlock()

	s.wg.Wait()
	return ctx.Err()
}

// Enqueue schedules a log file for parsing. With a broker connected
// the job is published so any instance in the queue group can take it.
func (s *Service) Enqueue(fileID uuid.UUID) error {
	if s.nc != nil {
		return s.nc.Publish(s.cfg.QueueSubject, []byte(fileID.String()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}

	select {
	case s.jobs <- fileID:
		return nil
	default:
		return fmt.Errorf("parse queue full")
	}
}

func (s *Service) handleParseRequest(msg *nats.Msg) {
	fileID, err := uuid.Parse(string(msg.Data))
	if err != nil {
		log.Error().Err(err).Str("subject", msg.Subject).Msg("Invalid parse request")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	select {
	case s.jobs <- fileID:
	default:
		log.Warn().Str("fileId", fileID.String()).Msg("Parse queue full, dropping request")
	}
}

// requeueStuck recovers files whose parsing claim expired, typically
// after a crash or a shutdown that interrupted a worker mid-job
func (s *Service) requeueStuck(ctx context.Context) {
	ids, err := s.store.RequeueStuckLogFiles(ctx, storage.ClaimLeaseWindow)
	if err != nil {
		log.Error().Err(err).Msg("Failed to requeue stuck log files")
		return
	}

	for _, id := range ids {
		if err := s.Enqueue(id); err != nil {
			log.Error().Err(err).Str("fileId", id.String()).Msg("Failed to re-enqueue stuck log file")
		}
	}

	if len(ids) > 0 {
		log.Info().Int("count", len(ids)).Msg("Requeued stuck log files")
	}
}

func (s *Service) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	// Shutdown closes the queue but jobs already accepted run to
	// completion, so their store calls must outlive the cancellation.
	jobCtx := context.WithoutCancel(ctx)
	for fileID := range s.jobs {
		if err := s.ProcessFile(jobCtx, fileID); err != nil {
			log.Error().Err(err).
				Int("worker", id).
				Str("fileId", fileID.String()).
				Msg("Parse job failed")
		}
	}
}

// ProcessFile runs the full pipeline for one file: claim, decode,
// parse, replace events, materialize sessions. Safe to call again for
// a failed file; prior events are dropped before the new insert.
func (s *Service) ProcessFile(ctx context.Context, fileID uuid.UUID) error {
	claimed, err := s.store.ClaimLogFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("claim file: %w", err)
	}
	if !claimed {
		log.Debug().Str("fileId", fileID.String()).Msg("File already claimed, skipping")
		return nil
	}

	file, err := s.store.GetLogFile(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load file: %w", err)
	}

	content, err := s.store.GetLogFileContent(ctx, fileID)
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	text, err := s.dec.Decode(content)
	if err != nil {
		// Undecodable input is a terminal failure for the whole file.
		if finishErr := s.store.FinishLogFile(ctx, fileID, models.FileStatusFailed,
			0, 0, 0, err.Error()); finishErr != nil {
			return fmt.Errorf("mark file failed: %w", finishErr)
		}
		log.Warn().Err(err).
			Str("fileId", fileID.String()).
			Str("filename", file.Filename).
			Msg("Log file decode failed")
		return nil
	}

	result := parser.ParseText(text, fileID, file.ProjectID)

	// Event replacement and the status flip land atomically so a crash
	// mid-insert leaves the file claimable instead of half-parsed.
	if err := s.replaceEvents(ctx, fileID, result); err != nil {
		if finishErr := s.store.FinishLogFile(ctx, fileID, models.FileStatusFailed,
			0, 0, result.InvalidLines, err.Error()); finishErr != nil {
			log.Error().Err(finishErr).Str("fileId", fileID.String()).Msg("Failed to mark file failed")
		}
		return fmt.Errorf("store events: %w", err)
	}

	// Cached analysis for this file is stale now.
	if err := s.store.DeleteAnalysisSnapshot(ctx, fileID); err != nil {
		log.Error().Err(err).Str("fileId", fileID.String()).Msg("Failed to drop stale snapshot")
	}

	s.materializeSessions(ctx, file.ProjectID, result.Events)

	log.Info().
		Str("fileId", fileID.String()).
		Str("filename", file.Filename).
		Int("events", result.EventCount).
		Int("errors", result.ErrorCount).
		Int("invalidLines", result.InvalidLines).
		Msg("Log file parsed")

	return nil
}

func (s *Service) replaceEvents(ctx context.Context, fileID uuid.UUID, result *parser.Result) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.DeleteLogEventsByFile(ctx, fileID); err != nil {
		return err
	}
	if len(result.Events) > 0 {
		if err := tx.CreateLogEvents(ctx, result.Events); err != nil {
			return err
		}
	}
	if err := tx.FinishLogFile(ctx, fileID, models.FileStatusParsed,
		result.EventCount, result.ErrorCount, result.InvalidLines, ""); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Service) materializeSessions(ctx context.Context, projectID uuid.UUID, events []*models.LogEvent) {
	sessions := analysis.ReconstructSessions(projectID, events)
	for _, session := range sessions {
		if err := s.store.UpsertDeviceSession(ctx, session); err != nil {
			log.Error().Err(err).
				Str("linkCode", session.LinkCode).
				Msg("Failed to upsert device session")
		}
	}
}
