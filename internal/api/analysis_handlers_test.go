package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/logdiag-server/logdiag-server-pro/internal/config"
	"github.com/logdiag-server/logdiag-server-pro/internal/models"
	"github.com/logdiag-server/logdiag-server-pro/internal/storage"
)

// sessionStubStore serves canned sessions for handler tests
type sessionStubStore struct {
	storage.Store

	session  *models.DeviceSession
	sessions []*models.DeviceSession
}

func (s *sessionStubStore) GetDeviceSession(ctx context.Context, projectID uuid.UUID, linkCode string) (*models.DeviceSession, error) {
	if s.session == nil {
		return nil, storage.ErrNotFound
	}
	return s.session, nil
}

func (s *sessionStubStore) ListDeviceSessions(ctx context.Context, filters storage.SessionFilters, limit, offset int) ([]*models.DeviceSession, int64, error) {
	return s.sessions, int64(len(s.sessions)), nil
}

func newSessionTestServer(store storage.Store) *RESTServer {
	return NewRESTServer(&config.Config{}, store, nil)
}

func sessionRequest(projectID uuid.UUID, linkCode string) *http.Request {
	req := httptest.NewRequest("GET", "/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("project_id", projectID.String())
	if linkCode != "" {
		rctx.URLParams.Add("link_code", linkCode)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func int64p(v int64) *int64 { return &v }

func TestGetSessionIncludesMilestoneDeltas(t *testing.T) {
	projectID := uuid.New()
	store := &sessionStubStore{
		session: &models.DeviceSession{
			ProjectID: projectID,
			LinkCode:  "LC-9",
			Phase:     models.PhaseCommunicating,
			Status:    models.SessionStatusDone,
			Milestones: models.SessionMilestones{
				ScanStartMs:    int64p(500),
				ConnectStartMs: int64p(1000),
				ReadyOkMs:      int64p(1800),
			},
		},
	}

	srv := newSessionTestServer(store)
	rec := httptest.NewRecorder()
	srv.HandleGetSession(rec, sessionRequest(projectID, "LC-9"))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		LinkCode        string           `json:"linkCode"`
		MilestoneDeltas map[string]int64 `json:"milestoneDeltas"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "LC-9", resp.LinkCode)
	require.Equal(t, int64(-500), resp.MilestoneDeltas["scanStart"])
	require.Equal(t, int64(800), resp.MilestoneDeltas["readyOk"])
}

func TestListSessionsIncludesMilestoneDeltas(t *testing.T) {
	projectID := uuid.New()
	store := &sessionStubStore{
		sessions: []*models.DeviceSession{
			{
				ProjectID: projectID,
				LinkCode:  "LC-1",
				Milestones: models.SessionMilestones{
					ConnectStartMs: int64p(1000),
					ConnectedMs:    int64p(1400),
				},
			},
			// connectStart never observed, no deltas to report
			{ProjectID: projectID, LinkCode: "LC-2"},
		},
	}

	srv := newSessionTestServer(store)
	rec := httptest.NewRecorder()
	srv.HandleListSessions(rec, sessionRequest(projectID, ""))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sessions []struct {
			LinkCode        string           `json:"linkCode"`
			MilestoneDeltas map[string]int64 `json:"milestoneDeltas"`
		} `json:"sessions"`
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(2), resp.Total)
	require.Equal(t, int64(400), resp.Sessions[0].MilestoneDeltas["connected"])
	require.Nil(t, resp.Sessions[1].MilestoneDeltas)
}
