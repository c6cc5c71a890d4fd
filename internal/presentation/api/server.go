// Package api serves the admin HTTP API of the gateway.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jbctechsolutions/projectgate/internal/application/ports"
	"github.com/jbctechsolutions/projectgate/internal/application/project"
	"github.com/jbctechsolutions/projectgate/internal/infrastructure/logging"
)

// CorrelationHeader carries the correlation id of a request.
const CorrelationHeader = "X-Correlation-ID"

// Config holds API server configuration.
type Config struct {
	Listen          string
	ShutdownTimeout time.Duration
	MetricsPath     string // empty disables the metrics endpoint
}

// Server is the admin HTTP server.
type Server struct {
	config    Config
	projects  *project.Manager
	codec     ports.WorkspaceCodec
	gatherer  prometheus.Gatherer
	logger    *logging.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a server for projects. Workspaces are rendered with codec;
// gatherer may be nil when metrics are disabled.
func New(config Config, projects *project.Manager, codec ports.WorkspaceCodec, gatherer prometheus.Gatherer, logger *logging.Logger) *Server {
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	return &Server{
		config:    config,
		projects:  projects,
		codec:     codec,
		gatherer:  gatherer,
		logger:    logging.OrDefault(logger),
		startedAt: time.Now(),
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("could not listen on %s: %w", s.config.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(s.correlationMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil && s.config.MetricsPath != "" {
		r.Method(http.MethodGet, s.config.MetricsPath, promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", s.handleListProjects)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Post("/", s.handleOpen)
			r.Get("/", s.handleInfo)
			r.Delete("/", s.handleClose)

			r.Get("/versions", s.handleListVersions)
			r.Post("/versions", s.handleCreateVersion)
			r.Get("/versions/{version}", s.handleGetVersion)
			r.Delete("/versions/{version}", s.handleDisposeVersion)

			r.Post("/commands", s.handleApply)
			r.Post("/undo", s.handleUndo)
			r.Post("/redo", s.handleRedo)
			r.Get("/history", s.handleHistory)

			r.Get("/sync", s.handleSyncState)
			r.Post("/sync", s.handleSyncNow)
			r.Put("/sync", s.handleEnableSync)
			r.Delete("/sync", s.handleDisableSync)
		})
	})

	return r
}

// correlationMiddleware propagates or assigns a correlation id.
func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

// loggingMiddleware logs HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.DebugContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
