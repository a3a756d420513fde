// Package slack holds the workspace-facing behaviour: reacting to link
// shares, slash-command search, the app home, and mention notifications
// pushed back into Slack.
package slack

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/bookmarks"
	"github.com/bkmark/slack-integration/database"
	"github.com/bkmark/slack-integration/eventlog"
)

const bookmarkOrigin = "SLACK"

// Slack wraps links in message text as <url> or <url|label>.
var linkPattern = regexp.MustCompile(`<(https?://[^>|]+)(?:\|[^>]*)?>`)

// ExtractLink returns the first link in a Slack-formatted message, or
// an empty string.
func ExtractLink(text string) string {
	match := linkPattern.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return match[1]
}

// API is the slice of the Slack Web API the handlers call.
type API interface {
	GetTeamInfoContext(ctx context.Context) (*slack.TeamInfo, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	PostEphemeralContext(ctx context.Context, channelID, userID string, options ...slack.MsgOption) (string, error)
}

var _ API = (*slack.Client)(nil)

// BookmarkService is the slice of the bookmarking client the handlers use.
type BookmarkService interface {
	RequestCreate(ctx context.Context, request bookmarks.CreateRequest) error
	Search(ctx context.Context, request bookmarks.SearchRequest) ([]bkmark.Bookmark, error)
}

// Handlers processes Slack events. Every handler answers the workspace
// with an ephemeral message and never surfaces an error back to Slack's
// retry machinery unless the failure is retryable.
type Handlers struct {
	db        *database.Database
	events    *eventlog.Log
	bookmarks BookmarkService
	newClient func(token string) API
	appDomain string
	logger    zerolog.Logger
}

func NewHandlers(db *database.Database, events *eventlog.Log, service BookmarkService, appDomain string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		db:        db,
		events:    events,
		bookmarks: service,
		newClient: func(token string) API { return slack.New(token) },
		appDomain: appDomain,
		logger:    logger.With().Str("component", "slack").Logger(),
	}
}

func (h *Handlers) loginURL() string   { return fmt.Sprintf("https://%s/login", h.appDomain) }
func (h *Handlers) helpURL() string    { return fmt.Sprintf("https://%s/integrations/slack", h.appDomain) }
func (h *Handlers) supportURL() string { return fmt.Sprintf("https://%s/support", h.appDomain) }
func (h *Handlers) inboxURL() string   { return fmt.Sprintf("https://%s/inbox", h.appDomain) }

func (h *Handlers) collectionURL(organisationID, collectionID string) string {
	return fmt.Sprintf("https://%s/collections/%s/%s", h.appDomain, organisationID, collectionID)
}

// HandleLinkMessage syncs a link shared in a channel message.
func (h *Handlers) HandleLinkMessage(ctx context.Context, api API, teamID, channelID, slackID, url string) error {
	slackUser, err := h.db.GetSlackUser(ctx, teamID, slackID)
	if err != nil && !bkmark.IsNotFound(err) {
		return err
	}
	if slackUser == nil || slackUser.UserID == "" {
		return h.postBlocks(ctx, api, channelID, slackID, loginPromptBlocks(slackID, h.loginURL()))
	}
	return h.syncLink(ctx, api, teamID, channelID, slackID, slackUser.UserID, url)
}

// HandleReactionEvent resolves the message a user reacted to and syncs
// its link, if it carries one.
func (h *Handlers) HandleReactionEvent(ctx context.Context, api API, teamID, channelID, slackID, timestamp string) error {
	history, err := api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    timestamp,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return bkmark.UpstreamError("failed to fetch the reacted message", err)
	}
	if len(history.Messages) == 0 {
		return nil
	}

	url := ExtractLink(history.Messages[0].Text)
	if url == "" {
		return nil
	}
	return h.HandleReaction(ctx, api, teamID, channelID, slackID, url)
}

// ClientForTeam builds a Web API client from the workspace's stored bot
// token.
func (h *Handlers) ClientForTeam(ctx context.Context, teamID string) (API, error) {
	installation, err := h.db.GetSlackInstallation(ctx, teamID)
	if err != nil {
		return nil, err
	}
	return h.newClient(installation.BotToken), nil
}

// HandleReaction syncs the link in a message a user reacted to. Unknown
// Slack users are recorded on first sight so the product can greet them
// once they log in.
func (h *Handlers) HandleReaction(ctx context.Context, api API, teamID, channelID, slackID, url string) error {
	slackUser, err := h.ensureSlackUser(ctx, teamID, slackID)
	if err != nil {
		return err
	}
	if slackUser.UserID == "" {
		return h.postBlocks(ctx, api, channelID, slackID, loginPromptBlocks(slackID, h.loginURL()))
	}
	return h.syncLink(ctx, api, teamID, channelID, slackID, slackUser.UserID, url)
}

func (h *Handlers) syncLink(ctx context.Context, api API, teamID, channelID, slackID, userID, url string) error {
	logger := bkmark.RequestLogger(ctx, h.logger)

	collection, err := h.db.GetCollectionByChannel(ctx, teamID, channelID)
	if err != nil {
		if bkmark.IsNotFound(err) {
			return h.postBlocks(ctx, api, channelID, slackID, connectPromptBlocks(slackID, h.helpURL()))
		}
		return err
	}

	request := bookmarks.CreateRequest{
		URL:            url,
		UserID:         userID,
		CollectionID:   collection.UUID,
		OrganisationID: collection.OrganisationID,
		Origin:         bookmarkOrigin,
	}
	if err := h.bookmarks.RequestCreate(ctx, request); err != nil {
		logger.Error().Err(err).Str("url", url).Msg("Failed to request bookmark creation.")
		return h.postBlocks(ctx, api, channelID, slackID, supportPromptBlocks(slackID, h.supportURL()))
	}

	h.events.TryAppend(ctx, bkmark.InternalEvent{
		UUID: uuid.NewString(),
		Type: string(bkmark.EventBookmarkCreateRequestSent),
		Data: map[string]any{
			"url":          url,
			"userId":       userID,
			"collectionId": collection.UUID,
		},
	})

	recent := h.collectionURL(collection.OrganisationID, collection.UUID)
	return h.postBlocks(ctx, api, channelID, slackID, syncedBlocks(slackID, recent))
}

// HandleSearch answers a slash-command search with the top matching
// bookmarks.
func (h *Handlers) HandleSearch(ctx context.Context, api API, teamID, channelID, slackID, query string) error {
	logger := bkmark.RequestLogger(ctx, h.logger)

	if err := h.ensureSlackTeam(ctx, api, teamID); err != nil {
		return err
	}
	slackUser, err := h.ensureSlackUser(ctx, teamID, slackID)
	if err != nil {
		return err
	}
	if slackUser.UserID == "" {
		return h.postBlocks(ctx, api, channelID, slackID, loginPromptBlocks(slackID, h.loginURL()))
	}

	results, err := h.bookmarks.Search(ctx, bookmarks.SearchRequest{UserID: slackUser.UserID, Query: query})
	if err != nil {
		logger.Error().Err(err).Str("query", query).Msg("Search request failed.")
		return h.postText(ctx, api, channelID, slackID, "Something went wrong with your search. Please try again.")
	}
	if len(results) == 0 {
		return h.postText(ctx, api, channelID, slackID, "No bookmarks matched your search.")
	}
	return h.postBlocks(ctx, api, channelID, slackID, searchResultBlocks(results))
}

// HandleAppHomeOpened prompts unlinked users to log in when they open
// the app home.
func (h *Handlers) HandleAppHomeOpened(ctx context.Context, api API, teamID, slackID string) error {
	slackUser, err := h.db.GetSlackUser(ctx, teamID, slackID)
	if err != nil && !bkmark.IsNotFound(err) {
		return err
	}
	if slackUser != nil && slackUser.UserID != "" {
		return nil
	}
	return h.postBlocks(ctx, api, slackID, slackID, loginPromptBlocks(slackID, h.loginURL()))
}

// HandleUninstall records that a workspace removed the app.
func (h *Handlers) HandleUninstall(ctx context.Context, teamID string) error {
	return h.events.Append(ctx, bkmark.InternalEvent{
		UUID: uuid.NewString(),
		Type: string(bkmark.EventSlackUninstalled),
		Data: map[string]any{"team": map[string]any{"id": teamID}},
	})
}

// NotifyBookmarkMention tells a user over Slack that they were mentioned
// in a bookmark. Users without a linked Slack identity are skipped.
func (h *Handlers) NotifyBookmarkMention(ctx context.Context, data bkmark.BookmarkNotificationData) error {
	logger := bkmark.RequestLogger(ctx, h.logger)

	slackUser, err := h.db.GetSlackUserByUserID(ctx, data.Bookmark.UserID)
	if err != nil {
		if bkmark.IsNotFound(err) {
			logger.Debug().Str("userId", data.Bookmark.UserID).Msg("No Slack identity for mentioned user.")
			return nil
		}
		return err
	}

	installation, err := h.db.GetSlackInstallation(ctx, slackUser.TeamID)
	if err != nil {
		return err
	}

	api := h.newClient(installation.BotToken)
	return h.postBlocks(ctx, api, slackUser.SlackID, slackUser.SlackID, mentionBlocks(slackUser.SlackID, h.inboxURL()))
}

// ensureSlackUser returns the Slack user record, creating a stub on
// first sight.
func (h *Handlers) ensureSlackUser(ctx context.Context, teamID, slackID string) (*bkmark.SlackUser, error) {
	slackUser, err := h.db.GetSlackUser(ctx, teamID, slackID)
	if err == nil {
		return slackUser, nil
	}
	if !bkmark.IsNotFound(err) {
		return nil, err
	}

	domain := ""
	if team, err := h.db.GetSlackTeam(ctx, teamID); err == nil {
		domain = team.Domain
	}

	slackUser = &bkmark.SlackUser{SlackID: slackID, TeamID: teamID, Domain: domain}
	if err := h.db.CreateSlackUser(ctx, slackUser); err != nil && !bkmark.IsAlreadyExists(err) {
		return nil, err
	}

	h.events.TryAppend(ctx, bkmark.InternalEvent{
		UUID: uuid.NewString(),
		Type: string(bkmark.EventSlackUserCreated),
		Data: map[string]any{"user": map[string]any{"slackId": slackID, "teamId": teamID}},
	})
	return slackUser, nil
}

// ensureSlackTeam records the workspace on first sight, fetching its
// domain from the Slack API.
func (h *Handlers) ensureSlackTeam(ctx context.Context, api API, teamID string) error {
	if _, err := h.db.GetSlackTeam(ctx, teamID); err == nil || !bkmark.IsNotFound(err) {
		return err
	}

	info, err := api.GetTeamInfoContext(ctx)
	if err != nil {
		return bkmark.UpstreamError("failed to fetch team info", err)
	}

	team := &bkmark.SlackTeam{ID: teamID, Domain: info.Domain, Name: info.Name}
	if err := h.db.CreateSlackTeam(ctx, team); err != nil {
		return err
	}

	h.events.TryAppend(ctx, bkmark.InternalEvent{
		UUID: uuid.NewString(),
		Type: string(bkmark.EventSlackTeamCreated),
		Data: map[string]any{"team": map[string]any{"id": teamID, "domain": info.Domain}},
	})
	return nil
}

func (h *Handlers) postBlocks(ctx context.Context, api API, channelID, slackID string, blocks []slack.Block) error {
	_, err := api.PostEphemeralContext(ctx, channelID, slackID, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return bkmark.UpstreamError("failed to post ephemeral message", err)
	}
	return nil
}

func (h *Handlers) postText(ctx context.Context, api API, channelID, slackID, text string) error {
	_, err := api.PostEphemeralContext(ctx, channelID, slackID, slack.MsgOptionText(text, false))
	if err != nil {
		return bkmark.UpstreamError("failed to post ephemeral message", err)
	}
	return nil
}
