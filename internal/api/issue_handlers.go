package api

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/logdiag-server/logdiag-server-pro/internal/analysis"
	"github.com/logdiag-server/logdiag-server-pro/internal/models"
	"github.com/logdiag-server/logdiag-server-pro/internal/storage"
)

// maxIssueRules bounds how many rules a single match call evaluates
const maxIssueRules = 1000

// ========== Known issue handlers ==========

// HandleListKnownIssues lists issue rules for a project
func (s *RESTServer) HandleListKnownIssues(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	limit, offset := paginationParams(r)

	issues, total, err := s.store.ListKnownIssues(r.Context(), projectID, activeOnly, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"issues": issues,
		"total":  total,
	})
}

type knownIssueRequest struct {
	Title        string `json:"title" validate:"required,min=1,max=200"`
	Description  string `json:"description"`
	Solution     string `json:"solution"`
	Category     string `json:"category"`
	Severity     int    `json:"severity"`
	ErrorCode    string `json:"error_code"`
	EventPattern string `json:"event_pattern"`
	MsgPattern   string `json:"msg_pattern"`
	IsActive     *bool  `json:"is_active"`
}

// HandleCreateKnownIssue creates an issue rule. Patterns are stored as
// given; a rule with an unparseable regex simply never matches on that
// field.
func (s *RESTServer) HandleCreateKnownIssue(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	var req knownIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue := &models.KnownIssue{
		ProjectID:    projectID,
		Title:        req.Title,
		Description:  req.Description,
		Solution:     req.Solution,
		Category:     req.Category,
		Severity:     req.Severity,
		ErrorCode:    req.ErrorCode,
		EventPattern: req.EventPattern,
		MsgPattern:   req.MsgPattern,
		IsActive:     true,
	}
	if issue.Severity == 0 {
		issue.Severity = 3
	}
	if req.IsActive != nil {
		issue.IsActive = *req.IsActive
	}

	if err := s.store.CreateKnownIssue(r.Context(), issue); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, issue)
}

// HandleGetKnownIssue gets an issue rule by ID
func (s *RESTServer) HandleGetKnownIssue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	issue, err := s.store.GetKnownIssue(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "known issue not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, issue)
}

// HandleUpdateKnownIssue updates an issue rule
func (s *RESTServer) HandleUpdateKnownIssue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	issue, err := s.store.GetKnownIssue(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "known issue not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req knownIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue.Title = req.Title
	issue.Description = req.Description
	issue.Solution = req.Solution
	issue.Category = req.Category
	issue.ErrorCode = req.ErrorCode
	issue.EventPattern = req.EventPattern
	issue.MsgPattern = req.MsgPattern
	if req.Severity != 0 {
		issue.Severity = req.Severity
	}
	if req.IsActive != nil {
		issue.IsActive = *req.IsActive
	}

	if err := s.store.UpdateKnownIssue(r.Context(), issue); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, issue)
}

// HandleDeleteKnownIssue deletes an issue rule
func (s *RESTServer) HandleDeleteKnownIssue(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid issue id")
		return
	}

	if err := s.store.DeleteKnownIssue(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "known issue not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ========== Match handlers ==========

type matchEventRequest struct {
	EventID   uuid.UUID `json:"event_id"`
	Event     string    `json:"event"`
	ErrorCode string    `json:"error_code"`
	Msg       string    `json:"msg"`
}

func (req matchEventRequest) input() analysis.MatchInput {
	return analysis.MatchInput{
		EventID:   req.EventID,
		EventName: req.Event,
		ErrorCode: req.ErrorCode,
		Msg:       req.Msg,
	}
}

// HandleMatchEvent matches one event against the project's active rules
func (s *RESTServer) HandleMatchEvent(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	var req matchEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	issues, _, err := s.store.ListKnownIssues(r.Context(), projectID, true, maxIssueRules, 0)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	matcher := analysis.NewMatcher()
	matches, hitIDs := matcher.MatchEvent(issues, req.input())

	if err := s.store.IncrementKnownIssueHits(r.Context(), hitIDs); err != nil {
		log.Error().Err(err).Msg("Failed to increment issue hit counters")
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"matches": matches,
	})
}

// HandleMatchBatch matches up to the batch cap of events in one call.
// Each matched rule's hit counter moves by one regardless of how many
// events in the batch hit it.
func (s *RESTServer) HandleMatchBatch(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	var req struct {
		Events []matchEventRequest `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	issues, _, err := s.store.ListKnownIssues(r.Context(), projectID, true, maxIssueRules, 0)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	inputs := make([]analysis.MatchInput, len(req.Events))
	for i, ev := range req.Events {
		inputs[i] = ev.input()
	}

	matcher := analysis.NewMatcher()
	results, hitIDs := matcher.MatchBatch(issues, inputs)

	if err := s.store.IncrementKnownIssueHits(r.Context(), hitIDs); err != nil {
		log.Error().Err(err).Msg("Failed to increment issue hit counters")
	}

	truncated := len(req.Events) > analysis.MaxMatchBatch

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"results":   results,
		"truncated": truncated,
	})
}

// HandleIssueReport summarizes rule effectiveness for a project
func (s *RESTServer) HandleIssueReport(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	issues, total, err := s.store.ListKnownIssues(r.Context(), projectID, false, maxIssueRules, 0)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var active int
	var totalHits int64
	byCategory := map[string]int{}
	for _, issue := range issues {
		if issue.IsActive {
			active++
		}
		totalHits += issue.HitCount
		if issue.Category != "" {
			byCategory[issue.Category]++
		}
	}

	top := make([]*models.KnownIssue, len(issues))
	copy(top, issues)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].HitCount > top[j].HitCount
	})
	if len(top) > 10 {
		top = top[:10]
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":       total,
		"active":      active,
		"total_hits":  totalHits,
		"by_category": byCategory,
		"top_issues":  top,
	})
}
