package server

import (
	"encoding/json"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/slack-go/slack/slackevents"

	"github.com/bkmark/slack-integration"
	slackhandlers "github.com/bkmark/slack-integration/slack"
)

type putInstallationRequest struct {
	ID        string          `json:"id"`
	BotToken  string          `json:"botToken"`
	BotUserID string          `json:"botUserId"`
	Raw       json.RawMessage `json:"raw"`
}

// handlePutInstallation stores the OAuth payload the installer flow
// obtained for a workspace. Reinstalls overwrite the previous record.
func (s *Server) handlePutInstallation(c fiber.Ctx) error {
	ctx := c.Context()
	logger := bkmark.RequestLogger(ctx, s.logger)

	var req putInstallationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ID == "" || req.BotToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "id and botToken are required",
		})
	}

	installation := &bkmark.SlackInstallation{
		ID:        req.ID,
		BotToken:  req.BotToken,
		BotUserID: req.BotUserID,
		Raw:       req.Raw,
	}
	if err := s.db.PutSlackInstallation(ctx, installation); err != nil {
		logger.Error().Err(err).Str("teamId", req.ID).Msg("Failed to store installation.")
		return s.errorResponse(c, err)
	}

	s.events.TryAppend(ctx, bkmark.InternalEvent{
		UUID: uuid.NewString(),
		Type: string(bkmark.EventSlackInstallationCreated),
		Data: map[string]any{"team": map[string]any{"id": req.ID}},
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"installation": fiber.Map{"id": installation.ID},
	})
}

// handleSlackEvents receives Events API deliveries: the one-off url
// verification handshake and the callback envelopes carrying workspace
// activity. Event processing failures are logged but acknowledged with
// 200 so Slack does not retry events we cannot act on.
func (s *Server) handleSlackEvents(c fiber.Ctx) error {
	ctx := c.Context()
	logger := bkmark.RequestLogger(ctx, s.logger)

	event, err := slackevents.ParseEvent(json.RawMessage(c.Body()), slackevents.OptionNoVerifyToken())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid event payload",
		})
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(c.Body(), &challenge); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid challenge payload",
			})
		}
		return c.JSON(fiber.Map{"challenge": challenge.Challenge})

	case slackevents.CallbackEvent:
		if err := s.dispatchCallback(c, event); err != nil {
			logger.Error().Err(err).
				Str("teamId", event.TeamID).
				Str("eventType", event.InnerEvent.Type).
				Msg("Failed to process Slack event.")
		}
		return c.SendStatus(fiber.StatusOK)

	default:
		logger.Warn().Str("eventType", event.Type).Msg("Ignoring unsupported Slack event.")
		return c.SendStatus(fiber.StatusOK)
	}
}

func (s *Server) dispatchCallback(c fiber.Ctx, event slackevents.EventsAPIEvent) error {
	ctx := c.Context()

	// Uninstall happens after the bot token is revoked, so no client.
	if _, ok := event.InnerEvent.Data.(*slackevents.AppUninstalledEvent); ok {
		return s.slack.HandleUninstall(ctx, event.TeamID)
	}

	api, err := s.slack.ClientForTeam(ctx, event.TeamID)
	if err != nil {
		return err
	}

	switch inner := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		if inner.BotID != "" || inner.SubType != "" {
			return nil
		}
		link := slackhandlers.ExtractLink(inner.Text)
		if link == "" {
			return nil
		}
		return s.slack.HandleLinkMessage(ctx, api, event.TeamID, inner.Channel, inner.User, link)

	case *slackevents.ReactionAddedEvent:
		return s.slack.HandleReactionEvent(ctx, api, event.TeamID, inner.Item.Channel, inner.User, inner.Item.Timestamp)

	case *slackevents.AppHomeOpenedEvent:
		return s.slack.HandleAppHomeOpened(ctx, api, event.TeamID, inner.User)

	default:
		return nil
	}
}

// handleSlashCommand runs the /bkmark search command. Results are posted
// back as an ephemeral message, so the immediate response is empty.
func (s *Server) handleSlashCommand(c fiber.Ctx) error {
	ctx := c.Context()
	logger := bkmark.RequestLogger(ctx, s.logger)

	teamID := c.FormValue("team_id")
	channelID := c.FormValue("channel_id")
	slackID := c.FormValue("user_id")
	query := c.FormValue("text")
	if teamID == "" || channelID == "" || slackID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "team_id, channel_id and user_id are required",
		})
	}

	api, err := s.slack.ClientForTeam(ctx, teamID)
	if err != nil {
		logger.Error().Err(err).Str("teamId", teamID).Msg("No installation for workspace.")
		return c.SendStatus(fiber.StatusOK)
	}

	if err := s.slack.HandleSearch(ctx, api, teamID, channelID, slackID, query); err != nil {
		logger.Error().Err(err).Str("teamId", teamID).Msg("Search command failed.")
	}
	return c.SendStatus(fiber.StatusOK)
}
