// Package api provides the botreport control API.
// Uses Fiber v2 (zero-alloc, fasthttp-based) for max throughput.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/sureshkrishnan-v/botreport/internal/cache"
	"github.com/sureshkrishnan-v/botreport/internal/constants"
	"github.com/sureshkrishnan-v/botreport/internal/event"
	"github.com/sureshkrishnan-v/botreport/internal/ingest"
	"github.com/sureshkrishnan-v/botreport/internal/reporter"
)

// Config holds API server settings.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" env:"API_ADDR"`
}

// DefaultConfig returns the API defaults.
func DefaultConfig() Config {
	return Config{Addr: constants.APIDefaultAddr}
}

// Deps are the runtime pieces the API reads from or writes to.
type Deps struct {
	Publisher ingest.Publisher                 // receives posted events
	Bus       interface{ Stats() event.Stats } // queue statistics
	Reporter  interface{ Stats() reporter.Stats }
	Bot       reporter.Bot
	Outcomes  *cache.Redis // nil when Redis is disabled
}

// Server is the HTTP API server.
type Server struct {
	app    *fiber.App
	deps   Deps
	logger *zap.Logger
	addr   string
}

// NewServer creates a Fiber API server with all routes.
func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		Prefork:               false,
		StrictRouting:         false,
		DisableStartupMessage: true,
		ReadTimeout:           constants.HTTPReadTimeout,
		WriteTimeout:          constants.HTTPWriteTimeout,
		IdleTimeout:           constants.HTTPIdleTimeout,
	})

	s := &Server{
		app:    app,
		deps:   deps,
		logger: logger,
		addr:   addr,
	}

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${status} ${method} ${path} ${latency}\n",
		Output: zap.NewStdLog(logger.Named("access")).Writer(),
	}))
	app.Use(cors.New(cors.Config{AllowOrigins: "*"}))
	app.Use(compress.New())
	app.Use(limiter.New(limiter.Config{
		Max:        constants.APIRateLimit,
		Expiration: time.Second,
	}))

	// Routes
	v1 := app.Group("/api/v1")
	v1.Post("/events", s.handlePostEvent)
	v1.Get("/status", s.handleStatus)
	v1.Get("/outcomes/:kind", s.handleOutcome)

	// WebSocket for live dispatch outcomes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/dispatches", websocket.New(s.handleWS))

	// Health
	app.Get(constants.PathHealthz, func(c *fiber.Ctx) error { return c.SendString("ok") })

	return s
}

// App exposes the Fiber app, mainly for app.Test in tests.
func (s *Server) App() *fiber.App { return s.app }

// Start begins listening. Blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("API server listening", zap.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Stop gracefully shuts down.
func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ─── Handlers ────────────────────────────────────────────────────

// handlePostEvent accepts a OneBot wire event and publishes it to the bus.
func (s *Server) handlePostEvent(c *fiber.Ctx) error {
	e, err := ingest.Decode(c.Body(), s.deps.Bot.ID(), time.Now())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.deps.Publisher.Publish(e)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"accepted":  true,
		"post_type": e.Kind.String(),
	})
}

// handleStatus returns reporter, bot and bus state.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	result := fiber.Map{
		"version": constants.Version,
		"bot": fiber.Map{
			"self_id": s.deps.Bot.ID(),
			"online":  s.deps.Bot.Online(),
		},
	}
	if s.deps.Reporter != nil {
		result["reporter"] = s.deps.Reporter.Stats()
	}
	if s.deps.Bus != nil {
		st := s.deps.Bus.Stats()
		result["bus"] = fiber.Map{
			"published":   st.Published,
			"dropped":     st.DroppedBySubscriber,
			"queue_depth": st.QueueDepth,
		}
	}
	return c.JSON(result)
}

// handleOutcome returns the last dispatch outcome of a kind from Redis.
func (s *Server) handleOutcome(c *fiber.Ctx) error {
	kind := c.Params("kind")
	switch kind {
	case constants.KindLifecycle, constants.KindHeartbeat, constants.KindEvent:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown kind"})
	}
	if s.deps.Outcomes == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "outcome store disabled"})
	}

	o, err := s.deps.Outcomes.LastOutcome(c.UserContext(), kind)
	if errors.Is(err, cache.ErrNoOutcome) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no outcome yet"})
	}
	if err != nil {
		s.logger.Error("Outcome lookup failed", zap.String("kind", kind), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "lookup failed"})
	}
	return c.JSON(o)
}

// handleWS streams dispatch outcomes via WebSocket (backed by Redis pub/sub).
func (s *Server) handleWS(c *websocket.Conn) {
	if s.deps.Outcomes == nil {
		_ = c.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "outcome store disabled"))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := s.deps.Outcomes.Subscribe(ctx)
	defer sub.Close()

	// Reader: a client close or error ends the stream.
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				return
			}
		}
	}
}
