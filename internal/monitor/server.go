// Package monitor serves the live session over HTTP: the composite frame,
// zones, history series, status, persisted events, echarts views, and the
// mode and stop commands.
package monitor

import (
	"context"
	"embed"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/pressure.report/internal/eventlog"
	"github.com/banshee-data/pressure.report/internal/heatmap"
	"github.com/banshee-data/pressure.report/internal/httputil"
	"github.com/banshee-data/pressure.report/internal/session"
	"github.com/banshee-data/pressure.report/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

//go:embed index.html
var indexHTML embed.FS

// Controller is the part of the session the monitor reads and commands.
type Controller interface {
	Snapshot() *session.Snapshot
	ToggleMode()
	Stop()
}

// EventLog is the persisted sensor history served at /api/events.
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]eventlog.Row, error)
	Count(ctx context.Context) (int, error)
}

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 1000
)

// Config configures a Server.
type Config struct {
	Address string
	Session Controller
	// Events is optional; without it /api/events reports 503.
	Events EventLog
	// Started is reported as the session start in /api/status.
	Started time.Time
}

// Server is the monitor HTTP server.
type Server struct {
	address string
	ctrl    Controller
	events  EventLog
	started time.Time
	mux     *http.ServeMux
	index   *template.Template
	server  *http.Server
}

// NewServer builds the server and its routes. Callers may mount more
// routes on ServeMux before Start.
func NewServer(cfg Config) *Server {
	s := &Server{
		address: cfg.Address,
		ctrl:    cfg.Session,
		events:  cfg.Events,
		started: cfg.Started,
		index:   template.Must(template.ParseFS(indexHTML, "index.html")),
	}
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.mux = s.setupRoutes()
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           LoggingMiddleware(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux { return s.mux }

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/frame.png", s.handleFrame)
	mux.HandleFunc("/api/zones", s.handleZones)
	mux.HandleFunc("/api/series", s.handleSeries)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/mode/toggle", s.handleToggleMode)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/charts/series", s.handleSeriesChart)
	mux.HandleFunc("/charts/zones", s.handleZonesChart)
	return mux
}

// Start serves until ctx is done, then shuts the listener down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration. Frame polls
// are not logged.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		if r.URL.Path == "/api/frame.png" && lrw.statusCode == http.StatusOK {
			return
		}
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snap := s.ctrl.Snapshot()
	data := struct {
		Version string
		State   session.State
		Mode    session.Mode
		Started string
	}{
		Version: version.String(),
		State:   snap.State,
		Mode:    snap.Mode,
		Started: s.started.Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.index.Execute(w, data); err != nil {
		log.Printf("monitor: render index: %v", err)
	}
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.ctrl.Snapshot()
	if snap == nil || snap.Frame == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no frame rendered yet")
		return
	}
	httputil.WritePNG(w, snap.Frame)
}

type zonesResponse struct {
	Tick  uint64         `json:"tick"`
	Time  time.Time      `json:"time"`
	Zones []heatmap.Zone `json:"zones"`
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.ctrl.Snapshot()
	httputil.WriteJSONOK(w, zonesResponse{Tick: snap.Tick, Time: snap.Time, Zones: snap.Zones})
}

type seriesResponse struct {
	Tick     uint64    `json:"tick"`
	Voltages []float64 `json:"voltages"`
	Steps    []float64 `json:"steps"`
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.ctrl.Snapshot()
	httputil.WriteJSONOK(w, seriesResponse{Tick: snap.Tick, Voltages: snap.Voltages, Steps: snap.Steps})
}

type statusResponse struct {
	*session.Snapshot
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	snap := s.ctrl.Snapshot()
	resp := statusResponse{
		Snapshot: snap,
		Version:  version.String(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	}
	if snap.Frame != nil {
		resp.Width, resp.Height = snap.Frame.Rect.Dx(), snap.Frame.Rect.Dy()
	}
	httputil.WriteJSONOK(w, resp)
}

type eventsResponse struct {
	Total  int            `json:"total"`
	Events []eventlog.Row `json:"events"`
}

// handleEvents returns the newest persisted rows, newest first. Rows still
// waiting in the flush buffer are not included.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	if s.events == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "event store disabled")
		return
	}
	limit := defaultEventsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventsLimit)
	}

	rows, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to read events: "+err.Error())
		return
	}
	total, err := s.events.Count(r.Context())
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "failed to count events: "+err.Error())
		return
	}
	if rows == nil {
		rows = []eventlog.Row{}
	}
	httputil.WriteJSONOK(w, eventsResponse{Total: total, Events: rows})
}

func (s *Server) handleToggleMode(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.ctrl.ToggleMode()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "toggle queued"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodPost) {
		return
	}
	s.ctrl.Stop()
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}
