// Package dispatch routes inbound domain messages to repository
// mutations. Dispatch is stateless per message: every branch decodes its
// payload, runs its mutation(s), and reports a boolean outcome. No error
// escapes the dispatcher; the queue layer counts false results and lets
// the queue's redelivery handle retries.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/database"
)

// Notifier delivers a bookmark-mention notification to the linked Slack
// identity. Implemented by the slack package; an interface here keeps the
// dispatcher free of Slack client wiring.
type Notifier interface {
	NotifyBookmarkMention(ctx context.Context, data bkmark.BookmarkNotificationData) error
}

// Dispatcher consumes domain messages and applies them to the projection
// store.
type Dispatcher struct {
	db       *database.Database
	notifier Notifier
	logger   zerolog.Logger
}

// New creates a Dispatcher. notifier may be nil, in which case bookmark
// notification events are acknowledged without a Slack message.
func New(db *database.Database, notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		db:       db,
		notifier: notifier,
		logger:   logger.With().Str("component", "dispatch").Logger(),
	}
}

// HandleMessage routes one message to its mutation. It returns false for
// both failed mutations and unrecognized types; the caller is expected
// to route persistent failures to a dead-letter path.
func (d *Dispatcher) HandleMessage(ctx context.Context, message bkmark.EventMessage) bool {
	logger := bkmark.RequestLogger(ctx, d.logger).With().Str("event_type", string(message.Type)).Logger()
	logger.Info().Msg("Handling the message")

	switch message.Type {
	case bkmark.EventUserCreated:
		return d.createUser(ctx, logger, message.Data)
	case bkmark.EventUserUpdated:
		return d.updateUser(ctx, logger, message.Data)
	case bkmark.EventUserDeleted:
		return d.deleteUser(ctx, logger, message.Data)
	case bkmark.EventUserOrganisationJoined:
		return d.addUserToOrganisation(ctx, logger, message.Data)
	case bkmark.EventUserCollectionJoined:
		return d.addUserToCollection(ctx, logger, message.Data)
	case bkmark.EventCollectionCreated:
		return d.createCollection(ctx, logger, message.Data)
	case bkmark.EventCollectionDeleted:
		return d.deleteCollection(ctx, logger, message.Data)
	case bkmark.EventBookmarkNotificationCreated:
		return d.notifyBookmarkMention(ctx, logger, message.Data)
	case bkmark.EventSlackInstallationCreated:
		// Recorded by the event log at install time; nothing to project.
		return true
	default:
		logger.Error().Msg("Unexpected event type found in message. Sending to dead letter queue.")
		return false
	}
}

func (d *Dispatcher) createUser(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.UserCreatedData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding a user created event")
		return false
	}

	user := &bkmark.User{
		UUID:          data.User.UUID,
		Forename:      data.User.Forename,
		Surname:       data.User.Surname,
		Organisations: []string{},
		Collections:   []bkmark.CollectionRef{},
	}
	if err := d.db.CreateUser(ctx, user); err != nil {
		logger.Error().Err(err).Str("user_id", user.UUID).Msg("There was an error creating a user")
		return false
	}

	return true
}

func (d *Dispatcher) updateUser(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.UserUpdatedData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding a user updated event")
		return false
	}

	if data.User["forename"] == data.OldUser["forename"] && data.User["surname"] == data.OldUser["surname"] {
		logger.Info().Msg("No change to user forename and surname, nothing to do")
		return true
	}

	if _, err := d.db.EditUser(ctx, data.User["uuid"], data.User["forename"], data.User["surname"]); err != nil {
		logger.Error().Err(err).Msg("There was an error updating a user")
		return false
	}

	return true
}

func (d *Dispatcher) deleteUser(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.UserDeletedData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding a user deleted event")
		return false
	}

	if err := d.db.DeleteUser(ctx, data.User.UUID); err != nil {
		logger.Error().Err(err).Str("user_id", data.User.UUID).Msg("There was an error deleting a user")
		return false
	}

	return true
}

func (d *Dispatcher) addUserToOrganisation(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.OrganisationJoinedData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding an organisation joined event")
		return false
	}

	if _, err := d.db.AppendOrganisation(ctx, data.User.UUID, data.Organisation.UUID); err != nil {
		logger.Error().Err(err).Str("user_id", data.User.UUID).
			Msg("There was an error adding a user to an organisation")
		return false
	}

	return true
}

func (d *Dispatcher) addUserToCollection(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.CollectionJoinedData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding a collection joined event")
		return false
	}

	if _, err := d.db.AppendCollection(ctx, data.User.UUID, data.Collection.OrganisationID, data.Collection.UUID); err != nil {
		logger.Error().Err(err).Str("user_id", data.User.UUID).
			Msg("There was an error adding a user to a collection")
		return false
	}

	return true
}

// createCollection creates the collection and appends it to every listed
// member, each exactly once. Failure of the create short-circuits the
// member appends.
func (d *Dispatcher) createCollection(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.CollectionCreatedData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding a collection created event")
		return false
	}

	collection := &bkmark.Collection{
		UUID:           data.Collection.UUID,
		OrganisationID: data.Collection.OrganisationID,
	}
	if err := d.db.CreateCollection(ctx, collection); err != nil {
		logger.Error().Err(err).Str("collection_id", collection.UUID).
			Msg("There was an error creating a collection")
		return false
	}

	ok := true
	for _, userID := range data.Collection.Users {
		if _, err := d.db.AppendCollection(ctx, userID, data.Collection.OrganisationID, data.Collection.UUID); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Str("collection_id", collection.UUID).
				Msg("There was an error adding a member to a new collection")
			ok = false
		}
	}

	return ok
}

// deleteCollection removes the collection reference from every member,
// then deletes the collection item itself.
func (d *Dispatcher) deleteCollection(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.CollectionDeletedData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding a collection deleted event")
		return false
	}

	ref := bkmark.CollectionRef{UUID: data.Collection.UUID, OrganisationID: data.Collection.OrganisationID}

	ok := true
	for _, userID := range data.Collection.Users {
		if err := d.db.RemoveCollection(ctx, userID, ref); err != nil {
			logger.Error().Err(err).Str("user_id", userID).Str("collection_id", ref.UUID).
				Msg("There was an error removing a collection from a user")
			ok = false
		}
	}

	if err := d.db.DeleteCollection(ctx, data.Collection.OrganisationID, data.Collection.UUID); err != nil {
		logger.Error().Err(err).Str("collection_id", data.Collection.UUID).
			Msg("There was an error deleting a collection")
		return false
	}

	return ok
}

func (d *Dispatcher) notifyBookmarkMention(ctx context.Context, logger zerolog.Logger, raw json.RawMessage) bool {
	var data bkmark.BookmarkNotificationData
	if err := json.Unmarshal(raw, &data); err != nil {
		logger.Error().Err(err).Msg("There was an error decoding a bookmark notification event")
		return false
	}

	if d.notifier == nil {
		return true
	}

	if err := d.notifier.NotifyBookmarkMention(ctx, data); err != nil {
		logger.Error().Err(err).Str("user_id", data.Bookmark.UserID).
			Msg("There was an error notifying a user about a bookmark mention")
		return false
	}

	return true
}
