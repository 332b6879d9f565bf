// Package server exposes the assistant and session administration over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/maruhq/maru/internal/assistant"
	"github.com/maruhq/maru/internal/session"
	"github.com/maruhq/maru/internal/telemetry"
)

// Server is the assistant HTTP server.
type Server struct {
	assistant *assistant.Assistant
	store     session.Store
	logger    *slog.Logger
	metrics   *telemetry.Metrics
	limiter   *RateLimiter
	mux       *http.ServeMux
	server    *http.Server
	startTime time.Time
	version   string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches a metrics collector and serves it at /metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimiter applies per-client rate limiting to the API routes.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) { s.limiter = rl }
}

// WithVersion sets the version string reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates the HTTP server over the given assistant and store.
func New(asst *assistant.Assistant, store session.Store, opts ...Option) *Server {
	s := &Server{
		assistant: asst,
		store:     store,
		logger:    slog.Default(),
		startTime: time.Now(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	mux.HandleFunc("POST /v1/assistant", s.handleAssistant)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleSessionHistory)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux = mux
	return s
}

// Handler returns the full middleware chain for use with httptest or
// custom servers.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.limiter != nil {
		h = s.limiter.Middleware(ClientIPKeyFunc, "/healthz", "/readyz", "/metrics")(h)
	}
	return s.requestMiddleware(h)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("server starting", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  time.Since(s.startTime).String(),
		"version": s.version,
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Stats(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text      string `json:"text"`
		SessionID string `json:"session_id,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	start := time.Now()
	reply, err := s.assistant.Handle(r.Context(), req.Text, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrEmptyText):
			writeError(w, http.StatusBadRequest, "invalid_request", "text is required")
		case errors.Is(err, session.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Session %q not found", req.SessionID))
		default:
			// Parse and handler failures are contained inside Handle, so
			// what reaches here is a store failure.
			writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		}
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRequest(string(reply.Status), time.Since(start))
		for _, action := range reply.Actions {
			s.metrics.RecordAction(action.Intent, action.Status)
		}
	}

	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	if summaries == nil {
		summaries = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": summaries,
		"count":    len(summaries),
	})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	page := queryInt(r, "page", 0)
	pageSize := queryInt(r, "page_size", 0)

	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	messages, err := s.store.ReadPage(r.Context(), id, page, pageSize)
	if err != nil {
		writeStoreError(w, id, err)
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sess.ID,
		"created_at": sess.CreatedAt.Format(time.RFC3339),
		"expires_at": sess.ExpiresAt.Format(time.RFC3339),
		"page":       page,
		"messages":   messages,
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	// Deletion is idempotent; an absent id deletes to the same place.
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_sessions": stats.Sessions,
		"total_messages":  stats.Messages,
	})
}

// writeStoreError maps store sentinel errors onto HTTP statuses.
func writeStoreError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", fmt.Sprintf("Session %q not found", id))
	case errors.Is(err, session.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, "invalid_request", "page must not be negative")
	default:
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
