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
	"time"

	"palisade-hq/bulwark/pkg/config"
	"palisade-hq/bulwark/pkg/providerfactory"
	"palisade-hq/bulwark/pkg/proxy"
	"palisade-hq/bulwark/pkg/proxy/handlers"
	"palisade-hq/bulwark/pkg/proxy/middleware"
	"palisade-hq/bulwark/pkg/telemetry/health"
)

// BuildInfo identifies the running binary on the version endpoint.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP front of the bulwark proxy. It owns the listener and
// the route table; the resilience pipeline itself lives in the proxy
// registry handed in at construction.
type Server struct {
	config       *config.Config
	registry     *proxy.Registry
	manager      *providerfactory.Manager
	buildInfo    BuildInfo
	logger       *slog.Logger
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a proxy server over a constructed pipeline.
func New(cfg *config.Config, registry *proxy.Registry, manager *providerfactory.Manager, buildInfo BuildInfo) *Server {
	return &Server{
		config:       cfg,
		registry:     registry,
		manager:      manager,
		buildInfo:    buildInfo,
		logger:       slog.Default().With("component", "server"),
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until shutdown: context
// cancellation, SIGINT/SIGTERM, a Stop call, or a listener error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	// WriteTimeout stays at the configured value, zero by default: a
	// write deadline would cut long-lived SSE responses.
	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.Server.ReadTimeout,
		WriteTimeout:   s.config.Server.WriteTimeout,
		IdleTimeout:    s.config.Server.IdleTimeout,
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting proxy server",
			"address", s.config.Server.ListenAddress,
			"upstreams", s.manager.Names(),
		)
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

// Stop requests a graceful shutdown from another goroutine.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}

// Shutdown gracefully shuts down the server, letting in-flight requests
// finish within the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("initiating graceful shutdown",
			"timeout", s.config.Server.ShutdownTimeout.String(),
		)

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
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

		s.logger.Info("proxy server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler builds the route table with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	chatHandler := handlers.NewChatHandler(
		proxy.NewOrchestrator(s.registry),
		s.config.Server.RequestTimeout,
	)
	mux.Handle("/v1/chat", chatHandler)

	checker := s.healthChecker()
	mux.HandleFunc("/health", checker.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/version", health.VersionHandler(
		s.buildInfo.Version, s.buildInfo.Commit, s.buildInfo.BuildTime,
	))

	if s.config.Telemetry.Metrics.Enabled {
		mux.Handle(s.config.Telemetry.Metrics.Path, s.registry.Metrics().Handler())
	}

	var handler http.Handler = mux
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)
	return handler
}

// healthChecker wires the readiness checks: the proxy stays ready while at
// least one upstream can still take traffic.
func (s *Server) healthChecker() *health.Checker {
	checker := health.New(5 * time.Second)
	checker.Register("breakers", health.UpstreamsCheck(s.registry.Breakers()))
	checker.Register("adapters", s.adaptersCheck())
	return checker
}

// adaptersCheck fails only when every configured adapter reports unhealthy.
func (s *Server) adaptersCheck() health.CheckFunc {
	return func(ctx context.Context) error {
		snapshots := s.manager.Health()
		if len(snapshots) == 0 {
			return fmt.Errorf("no upstream adapters configured")
		}
		for _, snapshot := range snapshots {
			if snapshot.Healthy {
				return nil
			}
		}
		return fmt.Errorf("all %d upstream adapters are unhealthy", len(snapshots))
	}
}
