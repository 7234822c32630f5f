package monitor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/pressure.report/internal/eventlog"
	"github.com/banshee-data/pressure.report/internal/heatmap"
	"github.com/banshee-data/pressure.report/internal/session"
	"github.com/banshee-data/pressure.report/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu      sync.Mutex
	snap    *session.Snapshot
	toggles int
	stops   int
}

func (f *fakeController) Snapshot() *session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeController) ToggleMode() {
	f.mu.Lock()
	f.toggles++
	f.mu.Unlock()
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func testSnapshot() *session.Snapshot {
	frame := image.NewRGBA(image.Rect(0, 0, 64, 48))
	frame.SetRGBA(10, 10, color.RGBA{R: 250, A: 255})
	return &session.Snapshot{
		Tick:         12,
		Time:         time.Date(2026, 3, 14, 9, 0, 6, 0, time.UTC),
		State:        session.Running,
		Mode:         session.ModeFlat,
		Step:         42,
		Voltage:      7.5,
		ActivePoints: 2,
		Zones: []heatmap.Zone{
			{Rank: 1, X: 10, Y: 12, PeakDensity: 0.9},
			{Rank: 2, X: 40, Y: 30, PeakDensity: 0.4},
		},
		Voltages: []float64{1, 7.5},
		Steps:    []float64{41, 42},
		Frame:    frame,
	}
}

func newTestServer() (*Server, *fakeController) {
	ctrl := &fakeController{snap: testSnapshot()}
	return NewServer(Config{Address: "127.0.0.1:0", Session: ctrl}), ctrl
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeMux().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestFrameEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := serve(s, http.MethodGet, "/api/frame.png")

	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
	r, _, _, _ := img.At(10, 10).RGBA()
	assert.Equal(t, uint32(250), r>>8)
}

func TestFrameEndpoint_NoFrame(t *testing.T) {
	s, ctrl := newTestServer()
	ctrl.snap.Frame = nil
	rec := serve(s, http.MethodGet, "/api/frame.png")
	testutil.AssertStatusCode(t, rec.Code, http.StatusServiceUnavailable)
}

func TestZonesEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := serve(s, http.MethodGet, "/api/zones")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)

	var got zonesResponse
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, uint64(12), got.Tick)
	require.Len(t, got.Zones, 2)
	assert.Equal(t, heatmap.Zone{Rank: 1, X: 10, Y: 12, PeakDensity: 0.9}, got.Zones[0])
}

func TestSeriesEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := serve(s, http.MethodGet, "/api/series")

	var got seriesResponse
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, []float64{1, 7.5}, got.Voltages)
	assert.Equal(t, []float64{41, 42}, got.Steps)
}

func TestStatusEndpoint(t *testing.T) {
	s, _ := newTestServer()
	rec := serve(s, http.MethodGet, "/api/status")

	var got map[string]interface{}
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, "running", got["state"])
	assert.Equal(t, "flat", got["mode"])
	assert.Equal(t, float64(42), got["step"])
	assert.Equal(t, float64(64), got["width"])
	assert.Equal(t, float64(48), got["height"])
	assert.Contains(t, got["version"], "pressure")
	assert.NotContains(t, got, "Frame")
}

type fakeEventLog struct {
	rows      []eventlog.Row
	err       error
	lastLimit int
}

func (f *fakeEventLog) Recent(_ context.Context, limit int) ([]eventlog.Row, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.rows[:min(limit, len(f.rows))], nil
}

func (f *fakeEventLog) Count(context.Context) (int, error) { return len(f.rows), f.err }

func TestEventsEndpoint(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	events := &fakeEventLog{rows: []eventlog.Row{
		{Timestamp: ts.Add(2 * time.Second), StepCount: 3, Voltage: 6, Direction: "UP"},
		{Timestamp: ts.Add(time.Second), StepCount: 2, Voltage: 7, Direction: "LEFT"},
		{Timestamp: ts, StepCount: 1, Voltage: 2, Direction: "DOWN"},
	}}
	s := NewServer(Config{Session: &fakeController{snap: testSnapshot()}, Events: events})

	rec := serve(s, http.MethodGet, "/api/events?limit=2")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	var got eventsResponse
	testutil.DecodeJSON(t, rec, &got)
	assert.Equal(t, 3, got.Total)
	require.Len(t, got.Events, 2)
	assert.Equal(t, 3, got.Events[0].StepCount)
	assert.Equal(t, "LEFT", got.Events[1].Direction)

	serve(s, http.MethodGet, "/api/events")
	assert.Equal(t, defaultEventsLimit, events.lastLimit)

	serve(s, http.MethodGet, "/api/events?limit=100000")
	assert.Equal(t, maxEventsLimit, events.lastLimit)
}

func TestEventsEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		events EventLog
		path   string
		method string
		want   int
	}{
		{"no store", nil, "/api/events", http.MethodGet, http.StatusServiceUnavailable},
		{"bad limit", &fakeEventLog{}, "/api/events?limit=abc", http.MethodGet, http.StatusBadRequest},
		{"zero limit", &fakeEventLog{}, "/api/events?limit=0", http.MethodGet, http.StatusBadRequest},
		{"store failure", &fakeEventLog{err: errors.New("disk I/O error")}, "/api/events", http.MethodGet, http.StatusInternalServerError},
		{"post", &fakeEventLog{}, "/api/events", http.MethodPost, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(Config{Session: &fakeController{snap: testSnapshot()}, Events: tt.events})
			rec := serve(s, tt.method, tt.path)
			testutil.AssertStatusCode(t, rec.Code, tt.want)
		})
	}
}

func TestCommandEndpoints(t *testing.T) {
	s, ctrl := newTestServer()

	rec := serve(s, http.MethodPost, "/api/mode/toggle")
	testutil.AssertStatusCode(t, rec.Code, http.StatusAccepted)
	assert.Equal(t, 1, ctrl.toggles)

	rec = serve(s, http.MethodPost, "/api/stop")
	testutil.AssertStatusCode(t, rec.Code, http.StatusAccepted)
	assert.Equal(t, 1, ctrl.stops)
}

func TestCommandEndpoints_RejectGet(t *testing.T) {
	s, ctrl := newTestServer()

	for _, path := range []string{"/api/mode/toggle", "/api/stop"} {
		rec := serve(s, http.MethodGet, path)
		testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)
	}
	assert.Zero(t, ctrl.toggles)
	assert.Zero(t, ctrl.stops)
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer()
	rec := serve(s, http.MethodGet, "/")
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	body := rec.Body.String()
	assert.Contains(t, body, "/api/frame.png")
	assert.Contains(t, body, ">flat<")

	rec = serve(s, http.MethodGet, "/nope")
	testutil.AssertStatusCode(t, rec.Code, http.StatusNotFound)
}

func TestCharts(t *testing.T) {
	s, _ := newTestServer()

	for _, path := range []string{"/charts/series", "/charts/zones"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(s, http.MethodGet, path)
			testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
			assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
			assert.Contains(t, rec.Body.String(), "echarts")
		})
	}
}

func TestLoggingMiddlewarePassesStatus(t *testing.T) {
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusTeapot)
}
