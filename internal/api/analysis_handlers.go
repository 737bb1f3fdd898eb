package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/logdiag-server/logdiag-server-pro/internal/analysis"
	"github.com/logdiag-server/logdiag-server-pro/internal/models"
	"github.com/logdiag-server/logdiag-server-pro/internal/storage"
)

// maxSessionEvents bounds per-session reconstruction reads
const maxSessionEvents = 10000

// ========== Session handlers ==========

// sessionResponse decorates a session with each milestone restated as an
// offset in milliseconds from connectStart
type sessionResponse struct {
	*models.DeviceSession
	MilestoneDeltas map[string]int64 `json:"milestoneDeltas,omitempty"`
}

func newSessionResponse(session *models.DeviceSession) sessionResponse {
	return sessionResponse{
		DeviceSession:   session,
		MilestoneDeltas: session.Milestones.DeltasFromConnect(),
	}
}

// HandleListSessions lists materialized device sessions
func (s *RESTServer) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	filters := storage.SessionFilters{ProjectID: projectID}
	q := r.URL.Query()

	if v := q.Get("link_code"); v != "" {
		filters.LinkCode = &v
	}
	if v := q.Get("device_mac"); v != "" {
		filters.DeviceMac = &v
	}
	if v := q.Get("start_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid start_ms")
			return
		}
		filters.StartMs = &ms
	}
	if v := q.Get("end_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid end_ms")
			return
		}
		filters.EndMs = &ms
	}
	if v := q.Get("status"); v != "" {
		status := models.SessionStatus(v)
		filters.Status = &status
	}

	limit, offset := paginationParams(r)

	sessions, total, err := s.store.ListDeviceSessions(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, newSessionResponse(session))
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": out,
		"total":    total,
	})
}

// HandleGetSession gets the session for one pairing code. A session
// not yet materialized is derived from stored events on the fly.
func (s *RESTServer) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	linkCode := chi.URLParam(r, "link_code")

	session, err := s.store.GetDeviceSession(r.Context(), projectID, linkCode)
	if err == nil {
		s.respondJSON(w, http.StatusOK, newSessionResponse(session))
		return
	}
	if err != storage.ErrNotFound {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, err := s.store.ListEventsByLinkCode(r.Context(), projectID, linkCode, maxSessionEvents)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(events) == 0 {
		s.respondError(w, http.StatusNotFound, "session not found")
		return
	}

	session = analysis.ReconstructSession(projectID, linkCode, events)
	if err := s.store.UpsertDeviceSession(r.Context(), session); err != nil {
		log.Error().Err(err).Str("linkCode", linkCode).Msg("Failed to materialize session")
	}

	s.respondJSON(w, http.StatusOK, newSessionResponse(session))
}

// HandleListSessionCommands reconstructs command chains for a session
func (s *RESTServer) HandleListSessionCommands(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}
	linkCode := chi.URLParam(r, "link_code")

	opts := analysis.ChainOptions{}
	if v := r.URL.Query().Get("max_chains"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid max_chains")
			return
		}
		opts.MaxChains = n
	}
	if v := r.URL.Query().Get("max_events"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "invalid max_events")
			return
		}
		opts.MaxEventsPerChain = n
	}

	events, err := s.store.ListEventsByLinkCode(r.Context(), projectID, linkCode, maxSessionEvents)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	chains := analysis.ReconstructChains(events, opts)

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"commands": chains,
		"total":    len(chains),
	})
}

// ========== Anomaly handlers ==========

// HandleDetectAnomalies scans a time window for behavioral patterns
func (s *RESTServer) HandleDetectAnomalies(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	q := r.URL.Query()
	startMs, err := strconv.ParseInt(q.Get("start_ms"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "start_ms is required")
		return
	}
	endMs, err := strconv.ParseInt(q.Get("end_ms"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "end_ms is required")
		return
	}
	if endMs < startMs {
		s.respondError(w, http.StatusBadRequest, "end_ms before start_ms")
		return
	}
	deviceMac := q.Get("device_mac")

	events, err := s.store.ListEventsByWindow(r.Context(), projectID, deviceMac, startMs, endMs, maxSessionEvents)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	report := analysis.Detect(analysis.Window{
		ProjectID: projectID,
		StartMs:   startMs,
		EndMs:     endMs,
		DeviceMac: deviceMac,
		Events:    events,
	})

	s.respondJSON(w, http.StatusOK, report)
}

// ========== Snapshot handlers ==========

// HandleGetAnalysis returns the cached analysis of a parsed file,
// recomputing synchronously when the cache is missing or built by an
// older template.
func (s *RESTServer) HandleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	file, err := s.store.GetLogFile(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "log file not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if file.Status != models.FileStatusParsed {
		s.respondError(w, http.StatusConflict, "log file is not parsed")
		return
	}

	snapshot, err := s.store.GetAnalysisSnapshot(r.Context(), id)
	if err != nil && err != storage.ErrNotFound {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if analysis.IsStale(snapshot, analysis.TemplateVersion) {
		snapshot, err = s.rebuildSnapshot(r.Context(), file)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	s.respondJSON(w, http.StatusOK, snapshot)
}

// HandleRebuildAnalysis kicks off a background recompute and returns
// immediately
func (s *RESTServer) HandleRebuildAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	file, err := s.store.GetLogFile(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "log file not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if file.Status != models.FileStatusParsed {
		s.respondError(w, http.StatusConflict, "log file is not parsed")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if _, err := s.rebuildSnapshot(ctx, file); err != nil {
			log.Error().Err(err).Str("fileId", id.String()).Msg("Background snapshot rebuild failed")
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     id,
		"status": "rebuilding",
	})
}

func (s *RESTServer) rebuildSnapshot(ctx context.Context, file *models.LogFile) (*models.AnalysisSnapshot, error) {
	events, err := s.store.ListEventsByFile(ctx, file.ID)
	if err != nil {
		return nil, err
	}

	snapshot := analysis.BuildSnapshot(file, events)
	if err := s.store.SaveAnalysisSnapshot(ctx, snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}
