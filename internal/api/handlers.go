package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/logdiag-server/logdiag-server-pro/internal/models"
	"github.com/logdiag-server/logdiag-server-pro/internal/storage"
)

// ========== Health ==========

// HandleHealth handles health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// ========== Auth handlers ==========

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !s.auth.VerifyPassword(req.Password, user.PasswordHash) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if !user.IsActive {
		s.respondError(w, http.StatusForbidden, "account is disabled")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(r.Context(), user); err != nil {
		log.Error().Err(err).Str("email", user.Email).Msg("Failed to record login time")
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID, err := s.auth.RefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	user, err := s.store.GetUser(r.Context(), userID)
	if err != nil || !user.IsActive {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(user)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.JWT.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleGetCurrentUser gets current user
func (s *RESTServer) HandleGetCurrentUser(w http.ResponseWriter, r *http.Request) {
	claims := requestClaims(r)
	if claims == nil {
		s.respondError(w, http.StatusUnauthorized, "missing token")
		return
	}

	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "user not found")
		return
	}

	s.respondJSON(w, http.StatusOK, user)
}

// ========== Log file handlers ==========

// HandleUploadLogFile accepts a raw log upload and queues it for parsing.
// The body is the file itself, plain text or the encrypted container.
func (s *RESTServer) HandleUploadLogFile(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "upload.log"
	}

	body := http.MaxBytesReader(w, r.Body, s.config.Ingest.MaxUploadSize)
	content, err := io.ReadAll(body)
	if err != nil {
		s.respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if len(content) == 0 {
		s.respondError(w, http.StatusBadRequest, "empty upload")
		return
	}

	file := &models.LogFile{
		ProjectID: projectID,
		Filename:  filename,
		Size:      int64(len(content)),
		Status:    models.FileStatusQueued,
		Content:   content,
	}

	if err := s.store.CreateLogFile(r.Context(), file); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.ingest.Enqueue(file.ID); err != nil {
		log.Error().Err(err).Str("fileId", file.ID.String()).Msg("Failed to enqueue parse job")
		s.respondError(w, http.StatusServiceUnavailable, "parse queue unavailable")
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     file.ID,
		"status": file.Status,
	})
}

// HandleListLogFiles lists uploads for a project
func (s *RESTServer) HandleListLogFiles(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	limit, offset := paginationParams(r)

	files, total, err := s.store.ListLogFiles(r.Context(), projectID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logfiles": files,
		"total":    total,
	})
}

// HandleGetLogFile gets log file metadata
func (s *RESTServer) HandleGetLogFile(w http.ResponseWriter, r *http.Request) {
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

	s.respondJSON(w, http.StatusOK, file)
}

// HandleDeleteLogFile deletes a file with its events and snapshot
func (s *RESTServer) HandleDeleteLogFile(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	if err := s.store.DeleteLogFile(r.Context(), id); err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "log file not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleReparseLogFile requeues a file. Existing events are replaced
// during the run, so retrying a failed parse is safe.
func (s *RESTServer) HandleReparseLogFile(w http.ResponseWriter, r *http.Request) {
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

	if file.Status == models.FileStatusParsing {
		s.respondError(w, http.StatusConflict, "file is being parsed")
		return
	}

	if err := s.ingest.Enqueue(id); err != nil {
		s.respondError(w, http.StatusServiceUnavailable, "parse queue unavailable")
		return
	}

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     id,
		"status": models.FileStatusQueued,
	})
}

// ========== Event handlers ==========

// HandleSearchEvents searches normalized events with filters
func (s *RESTServer) HandleSearchEvents(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "project_id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid project id")
		return
	}

	filters := storage.EventFilters{ProjectID: projectID}
	q := r.URL.Query()

	if v := q.Get("file_id"); v != "" {
		fileID, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid file_id")
			return
		}
		filters.LogFileID = &fileID
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
	if v := q.Get("min_level"); v != "" {
		level, err := strconv.Atoi(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid min_level")
			return
		}
		filters.MinLevel = &level
	}
	for param, target := range map[string]**string{
		"event":      &filters.EventName,
		"link_code":  &filters.LinkCode,
		"device_mac": &filters.DeviceMac,
		"device_sn":  &filters.DeviceSN,
		"request_id": &filters.RequestID,
		"error_code": &filters.ErrorCode,
		"contains":   &filters.Contains,
	} {
		if v := q.Get(param); v != "" {
			value := v
			*target = &value
		}
	}

	limit, offset := paginationParams(r)

	events, total, err := s.store.SearchLogEvents(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// HandleGetEvent gets one event by ID
func (s *RESTServer) HandleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	event, err := s.store.GetLogEvent(r.Context(), id)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "event not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, event)
}

// HandleGetEventContext gets an event with surrounding lines
func (s *RESTServer) HandleGetEventContext(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid event id")
		return
	}

	before, _ := strconv.Atoi(r.URL.Query().Get("before"))
	if before <= 0 {
		before = 20
	}
	after, _ := strconv.Atoi(r.URL.Query().Get("after"))
	if after <= 0 {
		after = 20
	}

	events, err := s.store.GetLogEventContext(r.Context(), id, before, after)
	if err != nil {
		if err == storage.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "event not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"center": id,
	})
}

// ========== Helpers ==========

func paginationParams(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
