package server

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/golang-jwt/jwt/v5"
	goslack "github.com/slack-go/slack"

	"github.com/bkmark/slack-integration"
)

const callerKey = "callerId"

// correlationMiddleware propagates the request's correlation id into the
// request context and echoes it back on the response.
func (s *Server) correlationMiddleware(c fiber.Ctx) error {
	ctx := bkmark.WithCorrelationID(c.Context(), c.Get("x-correlation-id"))
	c.SetContext(ctx)
	c.Set("x-correlation-id", bkmark.CorrelationID(ctx))
	return c.Next()
}

// authMiddleware validates the bearer token and records the calling
// user's uuid for the handlers.
func (s *Server) authMiddleware(c fiber.Ctx) error {
	header := c.Get("Authorization")
	raw, found := strings.CutPrefix(header, "Bearer ")
	if !found || raw == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Missing bearer token",
		})
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token",
		})
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid token",
		})
	}

	c.Locals(callerKey, subject)
	return c.Next()
}

// verifySlackSignature checks the request signature Slack attaches to
// event and command deliveries. An empty signing secret disables the
// check for local runs.
func (s *Server) verifySlackSignature(c fiber.Ctx) error {
	if s.signingSecret == "" {
		return c.Next()
	}

	header := http.Header{}
	header.Set("X-Slack-Signature", c.Get("X-Slack-Signature"))
	header.Set("X-Slack-Request-Timestamp", c.Get("X-Slack-Request-Timestamp"))

	verifier, err := goslack.NewSecretsVerifier(header, s.signingSecret)
	if err == nil {
		_, _ = verifier.Write(c.Body())
		err = verifier.Ensure()
	}
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid request signature",
		})
	}

	return c.Next()
}

func callerID(c fiber.Ctx) string {
	id, _ := c.Locals(callerKey).(string)
	return id
}
