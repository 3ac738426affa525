// Package web serves the HTTP and WebSocket surface of the turn controller:
// utterance submission, conversation state, health, metrics and a live
// event stream.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceturn/pkg/capture"
	"github.com/teslashibe/go-voiceturn/pkg/conversation"
	"github.com/teslashibe/go-voiceturn/pkg/hub"
	"github.com/teslashibe/go-voiceturn/pkg/voice"
)

// Controller is the pipeline as seen by the server. *voice.Pipeline
// implements it.
type Controller interface {
	Submit(ctx context.Context, u voice.Utterance) (string, error)
	Reset() (bool, error)
	State() *conversation.State
	Metrics() *voice.MetricsCollector
	Last() voice.TurnResult
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// EventEntry is a timestamped pipeline event kept for the dashboard.
type EventEntry struct {
	Time string `json:"time"`
	voice.Event
}

const maxEvents = 500

// Server is the HTTP/WebSocket server.
type Server struct {
	app    *fiber.App
	addr   string
	ctrl   Controller
	spool  capture.Spool
	logger *slog.Logger

	checks      map[string]HealthCheck
	checkOrder  []string
	healthLimit time.Duration

	// Recent events (last maxEvents)
	events   []EventEntry
	eventsMu sync.RWMutex

	eventHub *hub.Hub
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a named dependency check to GET /api/health.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		if _, ok := s.checks[name]; !ok {
			s.checkOrder = append(s.checkOrder, name)
		}
		s.checks[name] = check
	}
}

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.app.Get("/metrics", adaptor.HTTPHandler(h))
	}
}

// WithCapture mounts the capture bridge routes.
func WithCapture(b *capture.Bridge) Option {
	return func(s *Server) {
		b.RegisterRoutes(s.app)
		b.RegisterAPIRoutes(s.app.Group("/api"))
	}
}

// WithSpool bounds the paths accepted by POST /api/utterances.
func WithSpool(sp capture.Spool) Option {
	return func(s *Server) { s.spool = sp }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a server for ctrl listening on addr.
func NewServer(addr string, ctrl Controller, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		ctrl:        ctrl,
		logger:      slog.Default(),
		checks:      make(map[string]HealthCheck),
		healthLimit: 5 * time.Second,
		events:      make([]EventEntry, 0, maxEvents),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voiceturn",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())
	s.app = app

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")
	s.eventHub = hub.New("events", s.logger)

	api := app.Group("/api")
	api.Post("/utterances", s.handleSubmit)
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleConversation)
	api.Post("/conversation/reset", s.handleReset)
	api.Get("/health", s.handleHealth)
	api.Get("/events", s.handleGetEvents)

	app.Use("/ws/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	return s
}

// Callbacks returns pipeline callbacks that record and broadcast every
// event.
func (s *Server) Callbacks() voice.Callbacks {
	return voice.EventCallbacks(s.Publish)
}

// Publish records an event and broadcasts it to WebSocket clients.
func (s *Server) Publish(e voice.Event) {
	entry := EventEntry{Time: time.Now().Format("15:04:05.000"), Event: e}

	s.eventsMu.Lock()
	s.events = append(s.events, entry)
	if len(s.events) > maxEvents {
		s.events = s.events[1:]
	}
	s.eventsMu.Unlock()

	if err := s.eventHub.BroadcastJSON(e); err != nil {
		s.logger.Warn("event broadcast failed", "type", e.Type, "error", err)
	}
}

// Events returns the recorded events, oldest first.
func (s *Server) Events() []EventEntry {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	out := make([]EventEntry, len(s.events))
	copy(out, s.events)
	return out
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("listening", "addr", ln.Addr().String())
	go s.eventHub.Run()
	return s.app.Listener(ln)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.eventHub.Stop()
	return s.app.Shutdown()
}
