package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/lazypower/matchmaker/internal/match"
	"github.com/lazypower/matchmaker/internal/store"
)

// Server is the matchmaker HTTP API server.
type Server struct {
	store    store.Backend
	engine   *match.Engine
	recorder *match.Recorder
	log      zerolog.Logger
	router   chi.Router
	version  string
	started  time.Time
}

// New creates a new Server over the given backend. The engine and recorder
// must be built on the same backend.
func New(backend store.Backend, eng *match.Engine, rec *match.Recorder, log zerolog.Logger, version string) *Server {
	s := &Server{
		store:    backend,
		engine:   eng,
		recorder: rec,
		log:      log,
		version:  version,
		started:  time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/matches", s.handleFindMatches)
		r.Post("/matches/interactions", s.handleRecordInteraction)

		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/users/{userID}/matches", s.handleListMatches)
			r.Post("/matches/expire", s.handleExpire)

			r.Get("/profiles/{userID}", s.handleGetProfile)
			r.Put("/profiles/{userID}", s.handleUpsertProfile)
			r.Post("/profiles/{userID}/opt-out", s.handleOptOut(true))
			r.Post("/profiles/{userID}/opt-in", s.handleOptOut(false))

			r.Get("/channels/{channelID}", s.handleGetChannel)
			r.Put("/channels/{channelID}", s.handleUpsertChannel)
			r.Put("/channels/{channelID}/members/{userID}", s.handleAddMember)
			r.Delete("/channels/{channelID}/members/{userID}", s.handleRemoveMember)
		})
	})

	s.router = r
}

// requestLogger writes one event per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		ev := s.log.Debug()
		if ww.Status() >= http.StatusInternalServerError {
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbOK := s.store.PingContext(ctx) == nil

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeStoreError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Warn().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrOptedOut):
		return http.StatusForbidden
	case errors.Is(err, store.ErrDuplicatePairing):
		return http.StatusConflict
	case errors.Is(err, match.ErrInvalidInteraction):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}
