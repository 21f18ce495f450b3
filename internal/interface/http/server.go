// Package http exposes the bot over HTTP: the Telegram webhook, health probes
// and a small read-only admin API.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/questforge/questbot/internal/interface/http/handlers"
	"github.com/questforge/questbot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	// ReadTimeout - maximum duration for reading the entire request.
	ReadTimeout time.Duration

	// WriteTimeout - maximum duration for writing the response.
	WriteTimeout time.Duration

	// IdleTimeout - maximum duration for idle connections.
	IdleTimeout time.Duration

	// RequestTimeout bounds handler execution.
	RequestTimeout time.Duration

	// WebhookPath is where Telegram posts updates.
	WebhookPath string

	// WebhookSecret must match the X-Telegram-Bot-Api-Secret-Token header.
	WebhookSecret string

	// APIKeyHeader - header name for admin API keys.
	APIKeyHeader string

	// APIKeys - valid keys for /admin. No keys disables the admin API.
	APIKeys []string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 10 * time.Second,
		WebhookPath:    "/webhook/telegram",
		APIKeyHeader:   "X-API-Key",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the collaborators of the HTTP handlers. Nil fields
// disable the routes that need them.
type Dependencies struct {
	Logger     *slog.Logger
	Health     handlers.HealthChecker
	Dispatcher handlers.UpdateDispatcher
	Stats      handlers.StatsProvider
	Metrics    handlers.BotMetrics
	Jobs       handlers.JobLister
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Health == nil {
		deps.Health = handlers.NewHealthRegistry("")
	}

	s := &Server{
		config: config,
		deps:   deps,
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:         config.Address(),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(handlers.StructuredLogger(s.logger))
	r.Use(chimiddleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(s.config.RequestTimeout))
	}

	r.Get("/health", handlers.Live)
	r.Get("/live", handlers.Live)
	r.Get("/ready", handlers.Ready(s.deps.Health))

	if s.deps.Dispatcher != nil {
		path := s.config.WebhookPath
		if path == "" {
			path = "/webhook/telegram"
		}
		r.Method(http.MethodPost, path,
			handlers.NewWebhookHandler(s.deps.Dispatcher, s.config.WebhookSecret, s.logger))
	}

	if len(s.config.APIKeys) > 0 {
		admin := handlers.NewAdminHandler(s.deps.Stats, s.deps.Metrics, s.deps.Jobs, s.logger)
		auth := handlers.NewAPIKeyAuth(s.config.APIKeyHeader, s.config.APIKeys)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Get("/stats", admin.Stats)
			r.Get("/metrics", admin.Metrics)
			r.Get("/jobs", admin.Jobs)
		})
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		handlers.RespondWithError(w, http.StatusNotFound, "not_found", "")
	})

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
