// Package api serves the read-side views of the engine over HTTP for
// dashboards, plus the two external inputs the engine accepts: status
// reports and selection notifications.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/cors"

	"github.com/signalsfoundry/constellation-telemetry/fleet"
	"github.com/signalsfoundry/constellation-telemetry/internal/engine"
	"github.com/signalsfoundry/constellation-telemetry/internal/logging"
	"github.com/signalsfoundry/constellation-telemetry/model"
)

// Engine is the subset of *engine.Engine the HTTP surface depends on.
type Engine interface {
	Entities() []model.Entity
	Entity(id string) (model.Entity, bool)
	Phases() []model.Phase
	Summary() engine.Summary
	SetStatus(ctx context.Context, id string, status model.Status) error
	Select(ctx context.Context, orbitSlot string) error
}

// Options configures the HTTP surface.
type Options struct {
	CORSOrigins []string
	RateLimit   RateLimitConfig
	Metrics     http.Handler // mounted at /metrics when non-nil
	Logger      logging.Logger
}

// Server routes dashboard requests to an Engine.
type Server struct {
	eng Engine
	log logging.Logger
	mux *http.ServeMux
	h   http.Handler
}

// NewServer builds the handler tree: routes, then rate limiting, then CORS.
func NewServer(eng Engine, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	s := &Server{eng: eng, log: log.With(logging.String("component", "api")), mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/entities", s.handleEntities)
	s.mux.HandleFunc("GET /api/v1/entities/{id}", s.handleEntity)
	s.mux.HandleFunc("PUT /api/v1/entities/{id}/status", s.handleSetStatus)
	s.mux.HandleFunc("GET /api/v1/phases", s.handlePhases)
	s.mux.HandleFunc("GET /api/v1/summary", s.handleSummary)
	s.mux.HandleFunc("POST /api/v1/selection", s.handleSelection)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics)
	}

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})

	limiter := NewRateLimiter(opts.RateLimit, s.log)
	s.h = c.Handler(s.withRequestLogger(limiter.Middleware(s.mux)))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.h.ServeHTTP(w, r)
}

// withRequestLogger tags the request with an ID and stores a logger carrying
// it, so everything logged downstream can be correlated with the response.
func (s *Server) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, _, id := logging.WithRequestLogger(r.Context(), s.log)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Entities())
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	e, ok := s.eng.Entity(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handlePhases(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Phases())
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Summary())
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	status, err := model.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	switch err := s.eng.SetStatus(r.Context(), id, status); {
	case errors.Is(err, fleet.ErrEntityNotFound):
		writeError(w, http.StatusNotFound, "entity not found")
	case err != nil:
		logging.FromContext(r.Context(), s.log).Error(r.Context(), "set status failed", logging.String("id", id), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	default:
		e, _ := s.eng.Entity(id)
		writeJSON(w, http.StatusOK, e)
	}
}

type selectionRequest struct {
	OrbitSlot string `json:"orbitSlot"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrbitSlot == "" {
		writeError(w, http.StatusBadRequest, "orbitSlot is required")
		return
	}
	if err := s.eng.Select(r.Context(), req.OrbitSlot); err != nil {
		if errors.Is(err, engine.ErrUnknownSlot) {
			writeError(w, http.StatusNotFound, "unknown orbit slot")
			return
		}
		logging.FromContext(r.Context(), s.log).Error(r.Context(), "selection failed",
			logging.String("orbit_slot", req.OrbitSlot), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
