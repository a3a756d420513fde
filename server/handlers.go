package server

import (
	"github.com/gofiber/fiber/v3"

	"github.com/bkmark/slack-integration"
)

type connectChannelRequest struct {
	OrganisationID string `json:"organisationId"`
	CollectionID   string `json:"collectionId"`
	ChannelID      string `json:"channelId"`
}

type connectUserRequest struct {
	TeamID  string `json:"teamId"`
	Domain  string `json:"domain"`
	SlackID string `json:"slackId"`
}

// handleConnectChannel binds a Slack channel to one of the caller's
// collections. The caller must be a member of the collection and must
// have a linked Slack identity so the workspace can be resolved.
func (s *Server) handleConnectChannel(c fiber.Ctx) error {
	ctx := c.Context()
	logger := bkmark.RequestLogger(ctx, s.logger)

	var req connectChannelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.OrganisationID == "" || req.CollectionID == "" || req.ChannelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organisationId, collectionId and channelId are required",
		})
	}

	caller := callerID(c)
	member, err := s.callerHasCollection(c, caller, req.OrganisationID, req.CollectionID)
	if err != nil {
		logger.Error().Err(err).Str("userId", caller).Msg("Failed to load calling user.")
		return s.errorResponse(c, err)
	}
	if !member {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You do not have access to this collection",
		})
	}

	slackUser, err := s.db.GetSlackUserByUserID(ctx, caller)
	if err != nil {
		if bkmark.IsNotFound(err) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "No linked Slack identity",
			})
		}
		return s.errorResponse(c, err)
	}

	team, err := s.db.GetSlackTeam(ctx, slackUser.TeamID)
	if err != nil {
		if bkmark.IsNotFound(err) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Unknown Slack workspace",
			})
		}
		return s.errorResponse(c, err)
	}

	collection, err := s.db.BindChannel(ctx, req.OrganisationID, req.CollectionID, team.ID, team.Domain, req.ChannelID)
	if err != nil {
		logger.Error().Err(err).Str("collectionId", req.CollectionID).Msg("Failed to bind channel.")
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"collection": collection})
}

// handleConnectUser links a Slack identity to the calling user. The
// workspace may be named by team id or by domain.
func (s *Server) handleConnectUser(c fiber.Ctx) error {
	ctx := c.Context()
	logger := bkmark.RequestLogger(ctx, s.logger)

	var req connectUserRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.SlackID == "" || (req.TeamID == "" && req.Domain == "") {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "slackId and one of teamId or domain are required",
		})
	}

	teamID := req.TeamID
	if teamID == "" {
		team, err := s.db.GetSlackTeamByDomain(ctx, req.Domain)
		if err != nil {
			if bkmark.IsNotFound(err) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Unknown Slack workspace",
				})
			}
			return s.errorResponse(c, err)
		}
		teamID = team.ID
	}

	slackUser, err := s.db.LinkToUser(ctx, teamID, req.SlackID, callerID(c))
	if err != nil {
		logger.Error().Err(err).Str("slackId", req.SlackID).Msg("Failed to link Slack user.")
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"user": slackUser})
}

// handleGetCollection returns a collection's Slack binding. Only members
// of the collection may read it.
func (s *Server) handleGetCollection(c fiber.Ctx) error {
	ctx := c.Context()

	organisationID := c.Query("organisationId")
	collectionID := c.Query("collectionId")
	if organisationID == "" || collectionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "organisationId and collectionId are required",
		})
	}

	member, err := s.callerHasCollection(c, callerID(c), organisationID, collectionID)
	if err != nil {
		return s.errorResponse(c, err)
	}
	if !member {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "You do not have access to this collection",
		})
	}

	collection, err := s.db.GetCollection(ctx, organisationID, collectionID)
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"collection": collection})
}

func (s *Server) callerHasCollection(c fiber.Ctx, caller, organisationID, collectionID string) (bool, error) {
	user, err := s.db.GetUser(c.Context(), caller)
	if err != nil {
		if bkmark.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, ref := range user.Collections {
		if ref.UUID == collectionID && ref.OrganisationID == organisationID {
			return true, nil
		}
	}
	return false, nil
}

// errorResponse maps coded errors to HTTP statuses.
func (s *Server) errorResponse(c fiber.Ctx, err error) error {
	switch {
	case bkmark.IsNotFound(err):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case bkmark.IsValidation(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case bkmark.IsConflict(err):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Conflicting update, please retry"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal server error"})
	}
}
