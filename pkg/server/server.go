package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"veridian-hq/callisto/pkg/config"
	"veridian-hq/callisto/pkg/dispatch"
	"veridian-hq/callisto/pkg/dispatch/budget"
	"veridian-hq/callisto/pkg/dispatch/ratelimit"
	"veridian-hq/callisto/pkg/telemetry/health"
)

// Dispatcher is the dispatch surface the admin server needs.
type Dispatcher interface {
	Submit(req dispatch.Request) (*dispatch.Handle, error)
	Cancel(id string) error
	QueueDepths() map[dispatch.Tier]int
	LimiterStatus(tier dispatch.Tier) (ratelimit.Status, bool)
}

// UsageReader reports per-tenant budget usage.
type UsageReader interface {
	Usage(tenant string) budget.Usage
}

// Server is the HTTP admin server: work submission and cancellation,
// queue and usage introspection, health, and metrics.
type Server struct {
	config     *config.ServerConfig
	metricsCfg *config.MetricsConfig
	dispatcher Dispatcher
	usage      UsageReader
	registry   *prometheus.Registry
	logger     *slog.Logger
	health     *health.Checker

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once

	mu        sync.RWMutex
	isRunning bool
	handles   map[string]*dispatch.Handle
}

// NewServer creates the admin server. The registry may be nil when metrics
// are disabled.
func NewServer(cfg *config.ServerConfig, metricsCfg *config.MetricsConfig, d Dispatcher, usage UsageReader, registry *prometheus.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default().With("component", "server")
	}
	return &Server{
		config:       cfg,
		metricsCfg:   metricsCfg,
		dispatcher:   d,
		usage:        usage,
		registry:     registry,
		logger:       logger,
		health:       health.New(0),
		shutdownChan: make(chan struct{}),
		handles:      make(map[string]*dispatch.Handle),
	}
}

// RegisterHealthCheck adds a named component check to the readiness
// probe.
func (s *Server) RegisterHealthCheck(name string, check health.CheckFunc) {
	s.health.Register(name, check)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddress,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting admin server", "address", s.config.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("admin server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReadiness)
	mux.HandleFunc("POST /v1/submit", s.handleSubmit)
	mux.HandleFunc("POST /v1/cancel", s.handleCancel)
	mux.HandleFunc("GET /v1/requests/{id}", s.handleRequestStatus)
	mux.HandleFunc("GET /v1/queues", s.handleQueues)
	mux.HandleFunc("GET /v1/usage/{tenant}", s.handleUsage)

	if s.metricsCfg != nil && s.metricsCfg.Enabled && s.registry != nil {
		mux.Handle("GET "+s.metricsCfg.Path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	var handler http.Handler = mux
	handler = requestIDMiddleware(handler)
	handler = loggingMiddleware(s.logger, handler)
	handler = recoveryMiddleware(s.logger, handler)
	return handler
}

// track remembers a submitted handle for later status lookups.
func (s *Server) track(h *dispatch.Handle) {
	s.mu.Lock()
	s.handles[h.ID()] = h
	s.mu.Unlock()
}

// lookup returns the tracked handle for id.
func (s *Server) lookup(id string) (*dispatch.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.handles[id]
	return h, ok
}

// forget drops a handle; called once a terminal result has been fetched.
func (s *Server) forget(id string) {
	s.mu.Lock()
	delete(s.handles, id)
	s.mu.Unlock()
}
