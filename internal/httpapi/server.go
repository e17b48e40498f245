// Package httpapi serves the agent's read API.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/healthagent/internal/alert"
	"github.com/hamed0406/healthagent/internal/domain"
	apimw "github.com/hamed0406/healthagent/internal/httpapi/middleware"
	"github.com/hamed0406/healthagent/internal/repo"
	"github.com/hamed0406/healthagent/internal/scheduler"
	"github.com/hamed0406/healthagent/internal/stats"
)

// MaxWindow caps ?window= on the stats endpoint.
const MaxWindow = 90 * 24 * time.Hour

type StateReader interface {
	State(name string) (alert.TargetState, bool)
}

type CheckRunner interface {
	CheckNow(ctx context.Context, name string) (domain.CheckResult, error)
}

type Options struct {
	Keys           apimw.Keys
	AllowedOrigins []string
	PublicRPM      int
	Burst          int
	CacheTTL       time.Duration
}

type Server struct {
	Logger  *zap.Logger
	Targets []domain.Target
	Results repo.ResultStore
	States  StateReader
	Checks  CheckRunner
	Stats   *stats.Cache
	opts    Options
}

func NewServer(l *zap.Logger, targets []domain.Target, rs repo.ResultStore, states StateReader, checks CheckRunner, opts Options) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{
		Logger:  l,
		Targets: targets,
		Results: rs,
		States:  states,
		Checks:  checks,
		Stats:   stats.NewCache(rs.Query, opts.CacheTTL, l),
		opts:    opts,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.allowedOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "X-API-Key", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(s.opts.PublicRPM, s.opts.Burst))
		r.Use(apimw.RequireAny(s.opts.Keys))

		r.Get("/targets", s.handleListTargets)
		r.Get("/targets/{name}/stats", s.handleStats)
		r.Get("/targets/{name}/latest", s.handleLatest)
		r.Get("/results/latest", s.handleAllLatest)

		r.With(apimw.RequireAdmin(s.opts.Keys)).Post("/targets/{name}/check", s.handleCheckNow)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.opts.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.opts.AllowedOrigins
}

type targetView struct {
	domain.Target
	State *alert.TargetState `json:"state,omitempty"`
}

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	out := make([]targetView, 0, len(s.Targets))
	for _, t := range s.Targets {
		v := targetView{Target: t}
		if s.States != nil {
			if st, ok := s.States.State(t.Name); ok {
				v.State = &st
			}
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	name, ok := s.knownTarget(w, r)
	if !ok {
		return
	}
	window := domain.DefaultWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > MaxWindow {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}

	snap, err := s.Stats.Get(r.Context(), name, window)
	if err != nil {
		s.Logger.Warn("api_stats_error", zap.String("target", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	name, ok := s.knownTarget(w, r)
	if !ok {
		return
	}
	res, err := s.Results.Latest(r.Context(), name)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "no results yet")
	case err != nil:
		s.Logger.Warn("api_latest_error", zap.String("target", name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "latest unavailable")
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleAllLatest(w http.ResponseWriter, r *http.Request) {
	out := make([]domain.CheckResult, 0, len(s.Targets))
	for _, t := range s.Targets {
		res, err := s.Results.Latest(r.Context(), t.Name)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			s.Logger.Warn("api_latest_error", zap.String("target", t.Name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "latest unavailable")
			return
		}
		out = append(out, res)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	name, ok := s.knownTarget(w, r)
	if !ok {
		return
	}
	if s.Checks == nil {
		writeError(w, http.StatusServiceUnavailable, "checks unavailable")
		return
	}
	res, err := s.Checks.CheckNow(r.Context(), name)
	switch {
	case errors.Is(err, scheduler.ErrInFlight):
		writeError(w, http.StatusConflict, "check already running")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Stats.Invalidate(name)
	s.Logger.Info("api_check_now", zap.String("target", name), zap.Bool("success", res.Success))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) knownTarget(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	for _, t := range s.Targets {
		if t.Name == name {
			return name, true
		}
	}
	writeError(w, http.StatusNotFound, "unknown target")
	return "", false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
