// Package server exposes labexec submissions over a REST API.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/me/labexec/internal/config"
	"github.com/me/labexec/internal/scheduler"
	"github.com/me/labexec/pkg/model"
)

// Store is the part of the persistence layer the API serves from.
type Store interface {
	CreateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error
	GetSubmission(ctx context.Context, id string) (*model.AnalysisSubmission, error)
	ListSubmissions(ctx context.Context, opts model.ListOptions) ([]*model.AnalysisSubmission, int, error)
	UpdateSubmission(ctx context.Context, sub *model.AnalysisSubmission) error
	GetResults(ctx context.Context, submissionID string) (*model.AnalysisResults, error)
}

// Workflows lists the registered workflow definitions.
type Workflows interface {
	List() []*model.WorkflowDefinition
	GetDefinition(ctx context.Context, id string) (*model.WorkflowDefinition, error)
}

// StatusPoller reports the remote status of a submission. It must not
// change the submission; transitions belong to the scheduler.
type StatusPoller interface {
	QueryWorkflowStatus(ctx context.Context, sub *model.AnalysisSubmission) (*model.WorkflowStatus, error)
}

// Server is the labexec REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     Store
	workflows Workflows
	poller    StatusPoller        // optional; nil disables live status polls
	scheduler scheduler.Scheduler // optional
	metrics   http.Handler
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithStatusPoller sets the poller used by the live status endpoint.
func WithStatusPoller(p StatusPoller) Option {
	return func(s *Server) {
		s.poller = p
	}
}

// WithScheduler sets the scheduler started by StartScheduler.
func WithScheduler(sched scheduler.Scheduler) Option {
	return func(s *Server) {
		s.scheduler = sched
	}
}

// WithMetricsHandler replaces the default Prometheus handler.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, st Store, wfs Workflows, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		workflows: wfs,
		metrics:   promhttp.Handler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// StartScheduler begins the scheduling loop in a background goroutine.
func (s *Server) StartScheduler(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	go func() {
		if err := s.scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("scheduler stopped", "error", err)
		}
	}()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Handle("/metrics", s.metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/workflows", func(r chi.Router) {
			r.Get("/", s.handleListWorkflows)
			r.Get("/{id}", s.handleGetWorkflow)
		})

		r.Route("/submissions", func(r chi.Router) {
			r.Get("/", s.handleListSubmissions)
			r.Post("/", s.handleCreateSubmission)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSubmission)
				r.Get("/status", s.handleGetSubmissionStatus)
				r.Get("/results", s.handleGetResults)
				r.Put("/cleanup", s.handleCleanupSubmission)
			})
		})
	})
}
