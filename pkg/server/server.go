package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"forgehq/loom/pkg/api"
	"forgehq/loom/pkg/api/middleware"
	"forgehq/loom/pkg/config"
	"forgehq/loom/pkg/telemetry/health"
	"forgehq/loom/pkg/telemetry/metrics"
)

// Options carries the server's pre-built dependencies. The caller owns
// their lifecycles; the server only serves them.
type Options struct {
	// Config is the HTTP server section. Required.
	Config *config.ServerConfig

	// Auth configures the request guard on the API subtree. Nil or an
	// empty secret leaves the API open.
	Auth *config.AuthConfig

	// Store is the task store the API reads and writes. Required.
	Store api.TaskStore

	// Queue is the job queue the API consults. Required.
	Queue api.TaskQueue

	// Collector serves /metrics and receives per-route HTTP
	// observations. Nil disables both.
	Collector *metrics.Collector

	// MetricsPath is where the collector is mounted. Default: "/metrics".
	MetricsPath string

	// Checker serves /health. Nil disables the endpoint.
	Checker *health.Checker

	// Version, Commit and BuildTime feed /version.
	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP server for the task API. It mounts the API
// handlers under the configured prefix behind the middleware chain,
// with /health, /metrics and /version outside the request guard.
type Server struct {
	opts         Options
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server from its options.
func New(opts Options) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Server{
		opts:         opts,
		shutdownChan: make(chan struct{}),
	}
}

// Start starts the HTTP server and blocks until the context is
// cancelled, a shutdown signal arrives or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.opts.Config.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.opts.Config.ReadTimeout,
		WriteTimeout:   s.opts.Config.WriteTimeout,
		IdleTimeout:    s.opts.Config.IdleTimeout,
		MaxHeaderBytes: s.opts.Config.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting task API server",
			"address", s.opts.Config.ListenAddress,
			"api_prefix", s.opts.Config.APIPrefix,
			"guard_enabled", s.opts.Auth != nil && s.opts.Auth.GuardEnabled(),
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
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully stops the server, waiting up to the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.opts.Config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.Config.ShutdownTimeout)
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("task API server stopped")
	})

	return shutdownErr
}

// setupRoutes assembles the handler tree. The API subtree sits behind
// the request guard and the rate limiter; health, metrics and version
// do not, so probes and scrapers need no credentials and are never
// throttled.
func (s *Server) setupRoutes() http.Handler {
	var recorder middleware.MetricsRecorder
	if s.opts.Collector != nil {
		recorder = s.opts.Collector
	}

	apiMux := http.NewServeMux()
	api.NewHandler(s.opts.Store, s.opts.Queue).Routes(apiMux, s.opts.Config.APIPrefix, recorder)

	guard := middleware.AuthMiddleware(s.convertAuthConfig())
	rate := middleware.RateLimitMiddleware(s.convertRateLimitConfig())

	root := http.NewServeMux()
	prefix := strings.TrimSuffix(s.opts.Config.APIPrefix, "/")
	// Subtree patterns keep their full path, so no StripPrefix here.
	root.Handle(prefix+"/", guard(rate(apiMux)))

	if s.opts.Checker != nil {
		root.Handle("GET /health", s.opts.Checker.Handler())
	}
	if s.opts.Collector != nil {
		root.Handle("GET "+s.opts.MetricsPath, s.opts.Collector.Handler())
	}
	root.Handle("GET /version", health.VersionHandler(s.opts.Version, s.opts.Commit, s.opts.BuildTime))

	// Innermost to outermost; the guard above is innermost of all and
	// covers only the API subtree.
	var handler http.Handler = root
	handler = middleware.TimeoutMiddleware(s.opts.Config.RequestTimeout)(handler)
	handler = middleware.CORSMiddleware(s.convertCORSConfig())(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// convertCORSConfig converts config.CORSConfig to middleware.CORSConfig.
func (s *Server) convertCORSConfig() *middleware.CORSConfig {
	cors := s.opts.Config.CORS
	return &middleware.CORSConfig{
		Enabled:        cors.IsEnabled(),
		AllowedOrigins: cors.AllowedOrigins,
		AllowedMethods: cors.AllowedMethods,
		AllowedHeaders: cors.AllowedHeaders,
		MaxAge:         cors.MaxAge,
	}
}

// convertAuthConfig converts config.AuthConfig to middleware.AuthConfig.
func (s *Server) convertAuthConfig() *middleware.AuthConfig {
	if s.opts.Auth == nil {
		return nil
	}
	return &middleware.AuthConfig{
		Secret: s.opts.Auth.Secret,
		AESKey: s.opts.Auth.AESKey,
		AESIV:  s.opts.Auth.AESIV,
	}
}

// convertRateLimitConfig converts config.RateLimitConfig to middleware.RateLimitConfig.
func (s *Server) convertRateLimitConfig() *middleware.RateLimitConfig {
	rl := s.opts.Config.RateLimit
	return &middleware.RateLimitConfig{
		Enabled:           rl.Enabled,
		RequestsPerMinute: rl.RequestsPerMinute,
		Burst:             rl.Burst,
	}
}
