package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/venue-console/opmap/internal/loader"
	"github.com/venue-console/opmap/internal/models"
	"github.com/venue-console/opmap/internal/render"
	"github.com/venue-console/opmap/internal/session"
	"github.com/venue-console/opmap/internal/testutil"
)

type stubHistory struct {
	snapshots []models.Statistics
	err       error
	eventID   string
	since     time.Time
	limit     int
}

func (s *stubHistory) History(_ context.Context, eventID string, since time.Time, limit int) ([]models.Statistics, error) {
	s.eventID, s.since, s.limit = eventID, since, limit
	return s.snapshots, s.err
}

type testServer struct {
	e       *echo.Echo
	fake    *testutil.FakeBackend
	mgr     *session.Manager
	history *stubHistory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	fake := testutil.NewFakeBackend()
	fake.SetLayout("evt-1", testutil.VenueLayout("evt-1"))
	fake.SetStatistics("evt-1", testutil.SampleStatistics("evt-1"))

	mgr := session.NewManager(loader.New(fake), session.ManagerConfig{
		Session: session.Options{Palette: render.DefaultPalette(), DefaultWidth: 800, DefaultHeight: 600},
	}, logger)
	t.Cleanup(mgr.Close)

	history := &stubHistory{}
	e := echo.New()
	SetupMiddleware(e)
	RegisterRoutes(e, NewHandlers(&Dependencies{
		SessionMgr: mgr,
		History:    history,
		Palette:    render.DefaultPalette(),
		Version:    "test",
		Logger:     logger,
	}))

	return &testServer{e: e, fake: fake, mgr: mgr, history: history}
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

// openSession creates a session for evt-1 and waits until its map is ready.
func (ts *testServer) openSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(http.MethodPost, "/api/sessions", map[string]interface{}{"eventId": "evt-1", "width": 1024, "height": 768})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var info models.MapSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.NotEmpty(t, info.ID)

	require.Eventually(t, func() bool {
		s, err := ts.mgr.Get(info.ID)
		return err == nil && s.State() == models.LoadStateReady
	}, 2*time.Second, 10*time.Millisecond)
	return info.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var apiErr APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	return apiErr
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"sessions":0`)
}

func TestCreateSession_Validation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		errCode    string
	}{
		{"missing event", map[string]interface{}{"width": 100}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"negative size", map[string]interface{}{"eventId": "evt-1", "width": -1}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"malformed body", "not an object", http.StatusBadRequest, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/sessions", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.errCode, decodeError(t, rec).Code)
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(http.MethodGet, "/api/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"ready"`)
	assert.Contains(t, rec.Body.String(), `"canvasWidth":1024`)

	rec = ts.do(http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.MapSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = ts.do(http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/frame", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Code)

	rec = ts.do(http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFrame_Formats(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(http.MethodGet, "/api/sessions/"+id+"/frame", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var frame render.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
	assert.Equal(t, 1024.0, frame.Width)
	assert.Equal(t, []string{"terrace", "vip", "bar"}, frame.EntityOrder(render.RoleArea))

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/frame/msgpack", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get(echo.HeaderContentType))
	var decoded render.Frame
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, len(frame.Commands), len(decoded.Commands))

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/frame.svg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/svg+xml", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<?xml"))
	assert.Contains(t, rec.Body.String(), `data-id="B1"`)
}

func TestFrame_WhileLoadingAndFailed(t *testing.T) {
	ts := newTestServer(t)
	ts.fake.Gate = make(chan struct{})

	rec := ts.do(http.MethodPost, "/api/sessions", map[string]interface{}{"eventId": "evt-1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var info models.MapSession
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))

	rec = ts.do(http.MethodGet, "/api/sessions/"+info.ID+"/frame", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "MAP_LOADING", decodeError(t, rec).Code)
	close(ts.fake.Gate)

	rec = ts.do(http.MethodPost, "/api/sessions", map[string]interface{}{"eventId": "evt-missing"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))

	require.Eventually(t, func() bool {
		rec := ts.do(http.MethodGet, "/api/sessions/"+info.ID+"/frame", nil)
		return rec.Code == http.StatusBadGateway
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPointerSelectAndClear(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(http.MethodPost, "/api/sessions/"+id+"/pointer", map[string]interface{}{"type": "down", "x": 150, "y": 150})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp InputResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "selected", resp.Outcome)
	assert.Equal(t, "table", resp.HitKind)
	assert.Equal(t, "B2", resp.HitID)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/selection", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sel session.SelectionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, "B2", sel.ID)
	require.NotNil(t, sel.Table)
	require.NotNil(t, sel.Table.ActiveOrder)
	assert.Equal(t, 5, sel.Table.ActiveOrder.Participants)

	rec = ts.do(http.MethodDelete, "/api/sessions/"+id+"/selection", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/selection", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInput_Validation(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	tests := []struct {
		name string
		path string
		body interface{}
	}{
		{"unknown pointer type", "/pointer", map[string]interface{}{"type": "hover"}},
		{"unknown zoom action", "/zoom", map[string]interface{}{"action": "sideways"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/api/sessions/"+id+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := ts.do(http.MethodPut, "/api/sessions/"+id+"/canvas", map[string]interface{}{"width": 0, "height": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWheelAndZoom(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(http.MethodPost, "/api/sessions/"+id+"/wheel", map[string]interface{}{"deltaY": 120})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp InputResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "zoomed", resp.Outcome)
	assert.InDelta(t, 0.9, resp.Viewport.Zoom, 1e-9)

	rec = ts.do(http.MethodPost, "/api/sessions/"+id+"/zoom", map[string]interface{}{"action": "reset"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1.0, resp.Viewport.Zoom)
}

func TestFilters(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(http.MethodPut, "/api/sessions/"+id+"/filters", map[string]interface{}{"status": "ocupada"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":true`)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/frame", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var frame render.Frame
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &frame))
	assert.Equal(t, []string{"B2"}, frame.EntityOrder(render.RoleTable))

	rec = ts.do(http.MethodPut, "/api/sessions/"+id+"/filters", map[string]interface{}{"status": "lotada"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/filters", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ocupada"`)
}

func TestSearchAndSelect(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	ts.fake.SetResults("ana", []models.SearchResult{
		testutil.PersonResult("p-1", "Ana", 2),
		testutil.TableResult("r-v1", "V1"),
	})

	rec := ts.do(http.MethodGet, "/api/sessions/"+id+"/search?q=Ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out session.SearchOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Results, 2)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/search?q=Ana&kind=person", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Results, 1)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/search?q=Ana&kind=dog", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/sessions/"+id+"/search?q=Ana", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/sessions/"+id+"/search/select", map[string]string{"resultId": "r-v1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var sel session.SelectionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sel))
	assert.Equal(t, "V1", sel.ID)
	assert.Equal(t, "vip", sel.AreaID)

	rec = ts.do(http.MethodPost, "/api/sessions/"+id+"/search/select", map[string]string{"resultId": "p-1"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(http.MethodPost, "/api/sessions/"+id+"/search/select", map[string]string{"resultId": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/api/sessions/"+id+"/search/select", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatistics(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)

	rec := ts.do(http.MethodGet, "/api/sessions/"+id+"/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"totalTables":5`)
	assert.Contains(t, rec.Body.String(), `"occupancyRate":0.2`)
}

func TestRefresh_Wait(t *testing.T) {
	ts := newTestServer(t)
	id := ts.openSession(t)
	calls := ts.fake.LayoutCalls()

	ts.fake.SetTableStatus("evt-1", "B1", models.StatusReserved)
	rec := ts.do(http.MethodPost, "/api/sessions/"+id+"/refresh?wait=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"layoutVersion":2`)
	assert.Equal(t, calls+1, ts.fake.LayoutCalls())

	ts.fake.LayoutErr = errors.New("backend down")
	rec = ts.do(http.MethodPost, "/api/sessions/"+id+"/refresh?wait=true", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestStatisticsHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.history.snapshots = []models.Statistics{*testutil.SampleStatistics("evt-1")}

	rec := ts.do(http.MethodGet, "/api/events/evt-1/statistics/history?since=2026-03-14T00:00:00Z&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"eventId":"evt-1"`)
	assert.Equal(t, "evt-1", ts.history.eventID)
	assert.Equal(t, 10, ts.history.limit)
	assert.Equal(t, 2026, ts.history.since.Year())

	rec = ts.do(http.MethodGet, "/api/events/evt-1/statistics/history?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/events/evt-1/statistics/history?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatisticsHistory_Disabled(t *testing.T) {
	h := NewQueryHandler(nil, nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/events/evt-1/statistics/history", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("eventId")
	c.SetParamValues("evt-1")

	err := h.HandleStatisticsHistory(c)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestPalette(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/palette", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ocupada":"#ef4444"`)
	assert.Contains(t, rec.Body.String(), `"disponivel":"#22c55e"`)
}

func TestFromSessionError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{session.ErrNotFound, http.StatusNotFound},
		{session.ErrTooManySessions, http.StatusServiceUnavailable},
		{session.ErrLoading, http.StatusConflict},
		{session.ErrLoadFailed, http.StatusBadGateway},
		{session.ErrNotInView, http.StatusUnprocessableEntity},
		{session.ErrInvalidZoom, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, FromSessionError(tt.err, "x").Status)
		})
	}
}
