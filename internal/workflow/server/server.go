// Package server assembles the workflow service: store, scheduler,
// manager, HTTP router.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/botflow-io/botflow/internal/engine"
	"github.com/botflow-io/botflow/internal/node/runtime"
	_ "github.com/botflow-io/botflow/internal/node/runtime/nodes"
	"github.com/botflow-io/botflow/internal/platform/cache"
	"github.com/botflow-io/botflow/internal/platform/config"
	"github.com/botflow-io/botflow/internal/platform/database"
	"github.com/botflow-io/botflow/internal/platform/health"
	"github.com/botflow-io/botflow/internal/platform/logger"
	"github.com/botflow-io/botflow/internal/platform/metrics"
	"github.com/botflow-io/botflow/internal/workflow/adapters/http/handlers"
	"github.com/botflow-io/botflow/internal/workflow/adapters/repository/postgres"
	"github.com/botflow-io/botflow/internal/workflow/app/service"
	"github.com/botflow-io/botflow/pkg/middleware"
)

// Server represents the workflow service server
type Server struct {
	config     *config.Config
	logger     logger.Logger
	deps       runtime.Deps
	httpServer *http.Server
	db         *database.DB
	cache      *cache.RedisCache
	scheduler  *engine.Scheduler
	manager    *service.Manager
	metrics    *metrics.Metrics
	health     *health.Handler
}

// Option is a server configuration option
type Option func(*Server)

// WithConfig sets the server config
func WithConfig(cfg *config.Config) Option {
	return func(s *Server) {
		s.config = cfg
	}
}

// WithLogger sets the server logger
func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		s.logger = log
	}
}

// WithNodeDeps sets the handler collaborators (tool host, message sink).
func WithNodeDeps(deps runtime.Deps) Option {
	return func(s *Server) {
		s.deps = deps
	}
}

// New creates a new server instance
func New(opts ...Option) (*Server, error) {
	s := &Server{}

	for _, opt := range opts {
		opt(s)
	}

	if err := s.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize server: %w", err)
	}

	return s, nil
}

func (s *Server) initialize() error {
	db, err := database.New(s.config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	if s.config.Redis.Enabled {
		c, err := cache.NewRedisCache(s.config.Redis, "botflow")
		if err != nil {
			return fmt.Errorf("failed to initialize cache: %w", err)
		}
		s.cache = c
	}

	if s.config.Scheduler.Enabled {
		sched, err := engine.NewScheduler(s.logger, s.config.Scheduler.Timezone)
		if err != nil {
			return fmt.Errorf("failed to initialize scheduler: %w", err)
		}
		s.scheduler = sched
	}

	s.metrics = metrics.NewMetrics("botflow")
	s.metrics.Register()

	if s.deps.Logger == nil {
		s.deps.Logger = s.logger
	}

	s.manager = service.NewManager(
		postgres.NewStore(db),
		runtime.Default(),
		s.deps,
		s.scheduler,
		s.cache,
		s.metrics,
		s.logger,
	)
	if err := s.manager.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize workflow manager: %w", err)
	}

	if s.scheduler != nil {
		s.scheduler.Start()
	}

	s.health = health.NewHandler(s.config.Service.Name, s.config.Version)
	s.health.AddCheck("database", s.db.HealthCheck)
	if s.cache != nil {
		s.health.AddCheck("cache", s.cache.Health)
	}

	s.setupHTTPServer()
	return nil
}

func (s *Server) setupHTTPServer() {
	router := mux.NewRouter()

	router.Use(s.recoveryMiddleware)
	router.Use(middleware.SimpleCORS)
	router.Use(logger.HTTPMiddleware(s.logger))
	router.Use(s.metrics.HTTPMetricsMiddleware())

	router.HandleFunc("/health/live", s.health.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", s.health.ReadinessHandler()).Methods(http.MethodGet)
	router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	workflowHandler := handlers.NewWorkflowHandler(s.manager, s.logger)
	workflowHandler.RegisterRoutes(apiRouter)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.HTTP.Port),
		Handler:      router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}
}

// Start starts the server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "port", s.config.HTTP.Port)
	return s.httpServer.ListenAndServe()
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Manager exposes the workflow manager.
func (s *Server) Manager() *service.Manager {
	return s.manager
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Error("Cache close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Database close error", "error", err)
		}
	}

	return nil
}

func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic in HTTP handler",
					"path", r.URL.Path,
					"panic", fmt.Sprint(rec),
				)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
