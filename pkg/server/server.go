// Package server exposes the manual trigger surface, run queries and a live
// event stream over HTTP.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/jdziat/simple-report-runs/pkg/core"
	"github.com/jdziat/simple-report-runs/pkg/dashboard"
	"github.com/jdziat/simple-report-runs/pkg/executor"
	"github.com/jdziat/simple-report-runs/pkg/orchestrator"
	"github.com/jdziat/simple-report-runs/pkg/stats"
)

// Orchestrator is the part of *orchestrator.Orchestrator the server uses.
type Orchestrator interface {
	Trigger(ctx context.Context, inv orchestrator.Invocation) (*orchestrator.Report, error)
	Events() <-chan core.Event
	Unsubscribe(ch <-chan core.Event)
}

// RunReader is the read side of the run store.
type RunReader interface {
	GetRun(ctx context.Context, runID string) (*core.Run, error)
	ListRuns(ctx context.Context, filter core.RunFilter) ([]*core.Run, error)
	GetSummary(ctx context.Context, key core.RunKey) (*core.RunSummary, error)
	ListSummaries(ctx context.Context, jobType core.JobType, limit int) ([]*core.RunSummary, error)
}

// ReportReader reads stored reports.
type ReportReader interface {
	ForRun(ctx context.Context, runID string) (*executor.Report, error)
}

// StatsReader reads bucketed run outcome counts.
type StatsReader interface {
	History(ctx context.Context, jobType core.JobType, since, until time.Time) ([]stats.RunStat, error)
}

// Config holds server configuration.
type Config struct {
	Addr         string
	Log          zerolog.Logger
	Orchestrator Orchestrator
	// Runs may be nil when the service runs without a run store.
	Runs      RunReader
	Dashboard dashboard.Reader
	Reports   ReportReader
	Stats     StatsReader
	// AllowedOrigins for CORS and websocket upgrades. Empty allows any.
	AllowedOrigins []string
	// QueryTimeout bounds the read endpoints.
	QueryTimeout time.Duration
}

// Server is the HTTP server.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config

	// async triggers still running
	inflight sync.WaitGroup
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	// No write timeout: synchronous triggers and event streams are long-lived.
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/runs/trigger", s.handleTrigger)
		r.Get("/runs/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.QueryTimeout))
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
			r.Get("/runs/{id}/report", s.handleGetReport)
			r.Get("/summaries", s.handleListSummaries)
			r.Get("/summaries/{jobType}/{date}", s.handleGetSummary)
			r.Get("/dashboard/{jobType}/{date}", s.handleDashboard)
			r.Get("/stats", s.handleStats)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for asynchronous triggers
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	err := s.server.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn().Msg("shutdown deadline reached with triggered runs still in flight")
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
