// Package server exposes the service's HTTP surface: the private API
// used by the product's frontend (connecting channels and users, reading
// collection bindings, storing installations) and the public endpoints
// Slack calls with workspace events and slash commands.
package server

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/database"
	"github.com/bkmark/slack-integration/eventlog"
	slackhandlers "github.com/bkmark/slack-integration/slack"
)

// Server wires the fiber app, the projection database, the event log,
// the Slack handlers and auth.
type Server struct {
	app           *fiber.App
	db            *database.Database
	events        *eventlog.Log
	slack         *slackhandlers.Handlers
	jwtSecret     []byte
	signingSecret string
	logger        zerolog.Logger
}

func New(db *database.Database, events *eventlog.Log, slack *slackhandlers.Handlers, jwtSecret, signingSecret string, logger zerolog.Logger) *Server {
	s := &Server{
		app:           fiber.New(),
		db:            db,
		events:        events,
		slack:         slack,
		jwtSecret:     []byte(jwtSecret),
		signingSecret: signingSecret,
		logger:        logger.With().Str("component", "server").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Use(s.correlationMiddleware)

	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": bkmark.DefaultEventSource,
		})
	})

	api := s.app.Group("/integrations/slack", s.authMiddleware)
	api.Post("/collections/connect", s.handleConnectChannel)
	api.Post("/users/connect", s.handleConnectUser)
	api.Get("/collections", s.handleGetCollection)
	api.Post("/installations", s.handlePutInstallation)

	// Slack authenticates with a request signature, not a bearer token.
	events := s.app.Group("/slack", s.verifySlackSignature)
	events.Post("/events", s.handleSlackEvents)
	events.Post("/commands", s.handleSlashCommand)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}
