// Package server provides the HTTP API of the superstate daemon.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/daemon/collector"
	"github.com/grovetools/superstate/internal/daemon/engine"
	"github.com/grovetools/superstate/pkg/models"
	"github.com/grovetools/superstate/version"
)

// RunningConfig holds the settings the daemon was started with.
// This is exposed via the /api/config endpoint so clients can verify what config is active.
type RunningConfig struct {
	VaultRoot      string        `json:"vault_root"`
	ConfigFile     string        `json:"config_file,omitempty"`
	Workers        int           `json:"workers"`
	Debounce       time.Duration `json:"debounce"`
	SyncProperties bool          `json:"sync_properties"`
	Persistence    string        `json:"persistence"`
	Socket         string        `json:"socket"`
	StartedAt      time.Time     `json:"started_at"`
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Space string      `json:"space"`
	View  models.View `json:"view"`
}

// Health is returned by /health.
type Health struct {
	Status  string       `json:"status"`
	Version version.Info `json:"version"`
}

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	engine        *engine.Engine
	runningConfig *RunningConfig
	gatherer      prometheus.Gatherer
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		logger: logger,
	}
}

// SetEngine sets the engine the API reads from and writes to.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// SetMetrics exposes g on /metrics.
func (s *Server) SetMetrics(g prometheus.Gatherer) {
	s.gatherer = g
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/config", s.handleGetConfig)
	mux.HandleFunc("/api/stats", s.withEngine(s.handleStats))
	mux.HandleFunc("/api/paths", s.withEngine(s.handlePaths))
	mux.HandleFunc("/api/path", s.withEngine(s.handlePath))
	mux.HandleFunc("/api/spaces", s.withEngine(s.handleSpaces))
	mux.HandleFunc("/api/space", s.withEngine(s.handleSpace))
	mux.HandleFunc("/api/context", s.withEngine(s.handleContext))
	mux.HandleFunc("/api/query", s.withEngine(s.handleQuery))
	mux.HandleFunc("/api/search", s.withEngine(s.handleSearch))
	mux.HandleFunc("/api/focus", s.withEngine(s.handleFocus))
	mux.HandleFunc("/api/mutations", s.withEngine(s.handleMutation))
	mux.HandleFunc("/api/stream", s.withEngine(s.handleStream))
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.server = &http.Server{
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withEngine(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.engine == nil {
			http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err as its JSON error document.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	ie, ok := err.(*errors.IndexError)
	if !ok {
		ie = errors.Wrap(err, code, err.Error())
	}
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeEntityNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeDependencyCycle:
		status = http.StatusBadRequest
	case errors.ErrCodeDispatcherClosed, errors.ErrCodeQueueClosed:
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(ie.ToJSON()))
}

func allow(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{Status: "ok", Version: version.GetInfo()})
}

// handleGetConfig returns the running configuration as JSON.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store().Paths())
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	st := s.engine.Store().PathWithLinks(p)
	if st == nil {
		s.writeError(w, errors.EntityNotFound("path", p))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSpaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store().Spaces())
}

func (s *Server) handleSpace(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	sp := s.engine.Store().Space(p)
	if sp == nil {
		s.writeError(w, errors.EntityNotFound("space", p))
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*models.SpaceState
		Members []string `json:"members"`
	}{sp, s.engine.Store().Members(p)})
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	space := r.URL.Query().Get("space")
	c := s.engine.Store().Context(space)
	if c == nil {
		s.writeError(w, errors.EntityNotFound("context", space))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if s.engine.Store().Context(req.Space) == nil {
		s.writeError(w, errors.EntityNotFound("context", req.Space))
		return
	}
	rows := s.engine.Query(req.Space, req.View)
	if rows == nil {
		rows = []models.LinkedRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	hits, err := s.engine.Search(r.Context(), q.Get("q"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if hits == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, hits)
}

// handleFocus handles GET/POST for the focus lists.
// POST replaces them, GET returns the current ones.
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var focuses []models.Focus
		if err := json.NewDecoder(r.Body).Decode(&focuses); err != nil {
			s.writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
			return
		}
		s.engine.SetFocuses(focuses)
		s.logger.WithField("count", len(focuses)).Debug("Focus updated")
		writeJSON(w, http.StatusOK, map[string]int{"focused": len(focuses)})

	case http.MethodGet:
		focuses := s.engine.Focuses()
		if focuses == nil {
			focuses = []models.Focus{}
		}
		writeJSON(w, http.StatusOK, focuses)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMutation queues one mutation on the engine loop and answers once it
// settled. A client that disconnects does not abort the cascade.
func (s *Server) handleMutation(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var m collector.Mutation
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		s.writeError(w, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if !m.Kind.Valid() || m.Path == "" {
		s.writeError(w, errors.New(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid mutation %q on %q", m.Kind, m.Path)))
		return
	}
	if err := s.engine.Submit(r.Context(), m); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// handleStream provides Server-Sent Events (SSE) for store events.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	st := s.engine.Store()
	ch := st.SubscribeChan()
	defer st.Unsubscribe(ch)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal event")
				continue
			}
			// SSE format: "event: <type>\ndata: {json}\n\n"
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
