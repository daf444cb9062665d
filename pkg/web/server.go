// Package web serves the focus HTTP and WebSocket API.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/session"
)

// Config holds HTTP server settings.
type Config struct {
	Addr         string `mapstructure:"addr"`
	AllowOrigins string `mapstructure:"allow_origins"`
	BodyLimit    int    `mapstructure:"body_limit"`

	// RequestLog enables per-request access logging.
	RequestLog bool `mapstructure:"request_log"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		AllowOrigins: "*",
		BodyLimit:    8 * 1024 * 1024,
	}
}

// Server is the focus API server
type Server struct {
	app      *fiber.App
	cfg      Config
	sessions *session.Manager
	monitors *hub.Hub
	metrics  http.Handler
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// NewServer creates a server over a session manager. Results are also
// published to monitors, which may be nil.
func NewServer(cfg Config, sessions *session.Manager, monitors *hub.Hub, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		monitors: monitors,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")

	app := fiber.New(fiber.Config{
		AppName:               "focusd",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{AllowOrigins: cfg.AllowOrigins}))
	if cfg.RequestLog {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics))
	}

	api := app.Group("/api")
	api.Get("/profiles", s.handleProfiles)
	api.Post("/sessions", s.handleStartSession)
	api.Get("/sessions", s.handleListSessions)
	api.Get("/sessions/:id", s.handleGetSession)
	api.Get("/sessions/:id/stats", s.handleSessionStats)
	api.Post("/sessions/:id/observations", s.handleObservation)
	api.Post("/sessions/:id/frames", s.handleFrame)
	api.Delete("/sessions/:id", s.handleStopSession)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id", s.prepareStream, websocket.New(s.handleStream))
	if monitors != nil {
		app.Get("/ws/monitor", monitors.Handler())
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on the configured address until Shutdown.
func (s *Server) Listen() error {
	s.logger.Info("listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve serves on an existing listener until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
