// Package webui serves the browser-facing side: REST endpoints for
// sessions, executions, and traces, a WebSocket that pushes positioned
// graphs as they are derived, and the embedded single-page viewer.
package webui

import (
	"context"
	"embed"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/crewlens/crewlens/internal/backend"
	"github.com/crewlens/crewlens/internal/session"
	"github.com/crewlens/crewlens/internal/traceview"
)

//go:embed static/index.html
var staticFiles embed.FS

// eventBacklog caps how many raw updates the events endpoint returns.
const eventBacklog = 256

// Server wires the session manager and the backend client into HTTP
// handlers. The backend client may be nil when running purely from a
// recording; trace endpoints then report unavailable.
type Server struct {
	sessions *session.Manager
	backend  *backend.Client
	router   *chi.Mux
	started  time.Time

	mu    sync.Mutex
	views map[string]*traceView
}

// traceView is one browser's view of one trace: the immutable span batch
// plus the expand state, which is the only mutable piece and is never
// shared across views.
type traceView struct {
	id    string
	roots []*traceview.Span
	state *traceview.ExpandState
}

// New creates a web UI server.
func New(sessions *session.Manager, bc *backend.Client) *Server {
	s := &Server{
		sessions: sessions,
		backend:  bc,
		router:   chi.NewRouter(),
		started:  time.Now(),
		views:    make(map[string]*traceView),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
	})
	s.router.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
	})
	s.router.Get("/ui/", s.handleUI)
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/executions", s.handleExecutions)
		r.Get("/sessions", s.handleSessions)
		r.Get("/sessions/{selection}/graph", s.handleSessionGraph)
		r.Get("/sessions/{selection}/events", s.handleSessionEvents)
		r.Get("/executions/{id}/traces", s.handleTraces)
		r.Post("/executions/{id}/traces/{traceID}/view", s.handleCreateView)
		r.Get("/views/{viewID}", s.handleView)
		r.Post("/views/{viewID}/toggle/{spanID}", s.handleToggle)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs a standalone HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// handleUI serves the embedded index.html.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "UI not found", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// statusResponse is the JSON shape for /api/status.
type statusResponse struct {
	Uptime     float64  `json:"uptime_seconds"`
	Sessions   int      `json:"sessions"`
	Selections []string `json:"selections"`
	Backend    string   `json:"backend"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	selections := s.sessions.Selections()
	resp := statusResponse{
		Uptime:     time.Since(s.started).Seconds(),
		Sessions:   len(selections),
		Selections: selections,
		Backend:    "none",
	}
	if s.backend != nil {
		resp.Backend = s.backend.BaseURL()
	}
	writeJSON(w, resp)
}

// handleExecutions lists what can be visualized. With a live backend this
// is its crews and flows; in replay mode the recordings define what
// exists, so known sessions are returned instead.
func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		out := []backend.Execution{}
		for _, id := range s.sessions.Selections() {
			out = append(out, backend.Execution{ID: id, Name: id, Kind: "recording"})
		}
		writeJSON(w, out)
		return
	}

	ctx := r.Context()
	crews, err := s.backend.ListCrews(ctx)
	if err != nil {
		httpError(w, http.StatusBadGateway, err)
		return
	}
	flows, err := s.backend.ListFlows(ctx)
	if err != nil {
		// Older backends have no flow API; crews alone are fine.
		log.Printf("webui: list flows: %v", err)
	}
	writeJSON(w, append(crews, flows...))
}

type sessionSummary struct {
	ID         string `json:"id"`
	Selection  string `json:"selection"`
	Generation uint64 `json:"generation"`
	Events     int    `json:"events"`
	HasFrame   bool   `json:"has_frame"`
	LastError  string `json:"last_error,omitempty"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	out := []sessionSummary{}
	for _, sel := range s.sessions.Selections() {
		sess, ok := s.sessions.Lookup(sel)
		if !ok {
			continue
		}
		sum := sessionSummary{
			ID:         sess.ID,
			Selection:  sess.Selection,
			Generation: sess.Generation(),
			Events:     sess.EventPosition(),
			HasFrame:   sess.Frame() != nil,
		}
		if err := sess.LastError(); err != nil {
			sum.LastError = err.Error()
		}
		out = append(out, sum)
	}
	writeJSON(w, out)
}

func (s *Server) handleSessionGraph(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Lookup(chi.URLParam(r, "selection"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	frame := sess.Frame()
	if frame == nil {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}
	writeJSON(w, frame)
}

// handleSessionEvents returns the raw update backlog for a session, most
// useful for saving a live run as a replayable recording.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.Lookup(chi.URLParam(r, "selection"))
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	events := sess.RecentEvents(eventBacklog)
	out := make([]json.RawMessage, len(events))
	for i, e := range events {
		out[i] = json.RawMessage(e.Raw)
	}
	writeJSON(w, out)
}

type traceSummary struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Status     string  `json:"status"`
	Start      string  `json:"start_time"`
	SpanCount  int     `json:"span_count"`
	DurationMs float64 `json:"duration_ms"`
}

func (s *Server) handleTraces(w http.ResponseWriter, r *http.Request) {
	traces, ok := s.fetchTraces(w, r)
	if !ok {
		return
	}
	out := make([]traceSummary, 0, len(traces))
	for _, tr := range traces {
		end := tr.End
		if end.IsZero() {
			end = time.Now()
		}
		out = append(out, traceSummary{
			ID:         tr.ID,
			Name:       tr.Name,
			Status:     tr.Status,
			Start:      tr.Start.Format(time.RFC3339),
			SpanCount:  len(tr.Spans),
			DurationMs: float64(end.Sub(tr.Start)) / float64(time.Millisecond),
		})
	}
	writeJSON(w, out)
}

// viewResponse carries both renderings of a trace view: the flattened
// row table and the timeline projection, derived from the same rows so
// the two stay aligned.
type viewResponse struct {
	ViewID   string                     `json:"view_id"`
	Rows     []rowEntry                 `json:"rows"`
	Timeline []traceview.PositionedSpan `json:"timeline"`
}

type rowEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Depth    int    `json:"depth"`
	Children int    `json:"children"`
	Expanded bool   `json:"expanded"`
}

func (s *Server) handleCreateView(w http.ResponseWriter, r *http.Request) {
	traces, ok := s.fetchTraces(w, r)
	if !ok {
		return
	}
	traceID := chi.URLParam(r, "traceID")
	for _, tr := range traces {
		if tr.ID != traceID {
			continue
		}
		v := &traceView{
			id:    uuid.NewString(),
			roots: traceview.BuildForest(tr.Spans),
			state: traceview.NewExpandState(),
		}
		s.mu.Lock()
		s.views[v.id] = v
		s.mu.Unlock()
		writeJSON(w, s.render(v))
		return
	}
	http.Error(w, "unknown trace", http.StatusNotFound)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(chi.URLParam(r, "viewID"))
	if !ok {
		http.Error(w, "unknown view", http.StatusNotFound)
		return
	}
	writeJSON(w, s.render(v))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	v, ok := s.lookupView(chi.URLParam(r, "viewID"))
	if !ok {
		http.Error(w, "unknown view", http.StatusNotFound)
		return
	}
	s.mu.Lock()
	v.state.Toggle(chi.URLParam(r, "spanID"))
	s.mu.Unlock()
	writeJSON(w, s.render(v))
}

func (s *Server) lookupView(id string) (*traceView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.views[id]
	return v, ok
}

func (s *Server) render(v *traceView) viewResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := traceview.Flatten(v.roots, v.state)
	resp := viewResponse{
		ViewID:   v.id,
		Rows:     make([]rowEntry, len(rows)),
		Timeline: traceview.Project(rows, traceview.ProjectOptions{}),
	}
	for i, span := range rows {
		resp.Rows[i] = rowEntry{
			ID:       span.ID,
			Name:     span.Name,
			Status:   span.Status,
			Depth:    span.Depth,
			Children: len(span.Children),
			Expanded: v.state.Expanded(span.ID),
		}
	}
	return resp
}

func (s *Server) fetchTraces(w http.ResponseWriter, r *http.Request) ([]backend.Trace, bool) {
	if s.backend == nil {
		http.Error(w, "traces unavailable without a backend", http.StatusServiceUnavailable)
		return nil, false
	}
	traces, err := s.backend.Traces(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusBadGateway, err)
		return nil, false
	}
	return traces, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("webui: failed to write JSON: %v", err)
	}
}

func httpError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
