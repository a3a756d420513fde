package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/database"
	"github.com/bkmark/slack-integration/store"
)

type fakeNotifier struct {
	notified []bkmark.BookmarkNotificationData
	err      error
}

func (f *fakeNotifier) NotifyBookmarkMention(ctx context.Context, data bkmark.BookmarkNotificationData) error {
	f.notified = append(f.notified, data)
	return f.err
}

func newTestDispatcher() (*Dispatcher, *database.Database, *fakeNotifier) {
	db := database.New(store.NewMemoryStore(), zerolog.Nop())
	notifier := &fakeNotifier{}
	return New(db, notifier, zerolog.Nop()), db, notifier
}

func message(t *testing.T, eventType bkmark.EventType, data any) bkmark.EventMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return bkmark.EventMessage{UUID: "m1", Type: eventType, Data: raw}
}

func TestHandleUserCreated(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	ok := d.HandleMessage(ctx, message(t, bkmark.EventUserCreated, map[string]any{
		"user": map[string]any{"uuid": "u9", "forename": "Ada", "surname": "Lovelace"},
	}))
	assert.True(t, ok)

	user, err := db.GetUser(ctx, "u9")
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Forename)
}

func TestHandleUserCreatedDuplicate(t *testing.T) {
	d, _, _ := newTestDispatcher()
	ctx := context.Background()

	msg := message(t, bkmark.EventUserCreated, map[string]any{"user": map[string]any{"uuid": "u9"}})
	assert.True(t, d.HandleMessage(ctx, msg))
	assert.False(t, d.HandleMessage(ctx, msg))
}

func TestHandleUserUpdated(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u1", Forename: "Ada", Surname: "Lovelace"}))

	ok := d.HandleMessage(ctx, message(t, bkmark.EventUserUpdated, map[string]any{
		"user":    map[string]string{"uuid": "u1", "forename": "Grace", "surname": "Hopper"},
		"oldUser": map[string]string{"uuid": "u1", "forename": "Ada", "surname": "Lovelace"},
	}))
	assert.True(t, ok)

	user, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", user.Forename)
}

func TestHandleUserUpdatedUnchangedName(t *testing.T) {
	d, _, _ := newTestDispatcher()

	// The user does not exist: the branch must short-circuit before the
	// store is touched for an unchanged name.
	ok := d.HandleMessage(context.Background(), message(t, bkmark.EventUserUpdated, map[string]any{
		"user":    map[string]string{"uuid": "u1", "forename": "Ada", "surname": "Lovelace", "email": "new@example.com"},
		"oldUser": map[string]string{"uuid": "u1", "forename": "Ada", "surname": "Lovelace", "email": "old@example.com"},
	}))
	assert.True(t, ok)
}

func TestHandleUserDeleted(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u1"}))

	ok := d.HandleMessage(ctx, message(t, bkmark.EventUserDeleted, map[string]any{
		"user": map[string]any{"uuid": "u1"},
	}))
	assert.True(t, ok)

	_, err := db.GetUser(ctx, "u1")
	assert.True(t, bkmark.IsNotFound(err))
}

func TestHandleOrganisationJoined(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u1"}))

	ok := d.HandleMessage(ctx, message(t, bkmark.EventUserOrganisationJoined, map[string]any{
		"user":         map[string]any{"uuid": "u1"},
		"organisation": map[string]any{"uuid": "o1"},
	}))
	assert.True(t, ok)

	user, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, user.Organisations)
}

func TestHandleCollectionJoined(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u1"}))

	ok := d.HandleMessage(ctx, message(t, bkmark.EventUserCollectionJoined, map[string]any{
		"user":       map[string]any{"uuid": "u1"},
		"collection": map[string]any{"uuid": "c1", "organisationId": "o1"},
	}))
	assert.True(t, ok)

	user, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []bkmark.CollectionRef{{UUID: "c1", OrganisationID: "o1"}}, user.Collections)
}

func TestHandleCollectionCreatedAppendsEachMemberOnce(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u1"}))
	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u2"}))

	ok := d.HandleMessage(ctx, message(t, bkmark.EventCollectionCreated, map[string]any{
		"collection": map[string]any{"uuid": "c1", "organisationId": "o1", "users": []string{"u1", "u2"}},
	}))
	assert.True(t, ok)

	_, err := db.GetCollection(ctx, "o1", "c1")
	require.NoError(t, err)

	for _, userID := range []string{"u1", "u2"} {
		user, err := db.GetUser(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, []bkmark.CollectionRef{{UUID: "c1", OrganisationID: "o1"}}, user.Collections)
	}
}

func TestHandleCollectionCreatedMissingMember(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u1"}))

	ok := d.HandleMessage(ctx, message(t, bkmark.EventCollectionCreated, map[string]any{
		"collection": map[string]any{"uuid": "c1", "organisationId": "o1", "users": []string{"u1", "ghost"}},
	}))
	assert.False(t, ok)

	// The collection and the reachable member were still written.
	_, err := db.GetCollection(ctx, "o1", "c1")
	require.NoError(t, err)
	user, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, user.Collections, 1)
}

func TestHandleCollectionDeleted(t *testing.T) {
	d, db, _ := newTestDispatcher()
	ctx := context.Background()

	require.NoError(t, db.CreateUser(ctx, &bkmark.User{UUID: "u1"}))
	require.NoError(t, db.CreateCollection(ctx, &bkmark.Collection{UUID: "c1", OrganisationID: "o1"}))
	_, err := db.AppendCollection(ctx, "u1", "o1", "c1")
	require.NoError(t, err)

	ok := d.HandleMessage(ctx, message(t, bkmark.EventCollectionDeleted, map[string]any{
		"collection": map[string]any{"uuid": "c1", "organisationId": "o1", "users": []string{"u1"}},
	}))
	assert.True(t, ok)

	_, err = db.GetCollection(ctx, "o1", "c1")
	assert.True(t, bkmark.IsNotFound(err))
	user, err := db.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, user.Collections)
}

func TestHandleBookmarkNotification(t *testing.T) {
	d, _, notifier := newTestDispatcher()

	ok := d.HandleMessage(context.Background(), message(t, bkmark.EventBookmarkNotificationCreated, map[string]any{
		"bookmark": map[string]any{"uuid": "b1", "userId": "u1"},
	}))
	assert.True(t, ok)
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, "u1", notifier.notified[0].Bookmark.UserID)
}

func TestHandleBookmarkNotificationFailure(t *testing.T) {
	d, _, notifier := newTestDispatcher()
	notifier.err = errors.New("slack is down")

	ok := d.HandleMessage(context.Background(), message(t, bkmark.EventBookmarkNotificationCreated, map[string]any{
		"bookmark": map[string]any{"uuid": "b1", "userId": "u1"},
	}))
	assert.False(t, ok)
}

func TestHandleBookmarkNotificationWithoutNotifier(t *testing.T) {
	db := database.New(store.NewMemoryStore(), zerolog.Nop())
	d := New(db, nil, zerolog.Nop())

	ok := d.HandleMessage(context.Background(), message(t, bkmark.EventBookmarkNotificationCreated, map[string]any{
		"bookmark": map[string]any{"uuid": "b1", "userId": "u1"},
	}))
	assert.True(t, ok)
}

func TestHandleInstallationCreatedIsAcknowledged(t *testing.T) {
	d, _, _ := newTestDispatcher()

	ok := d.HandleMessage(context.Background(), message(t, bkmark.EventSlackInstallationCreated, map[string]any{}))
	assert.True(t, ok)
}

func TestHandleUnknownType(t *testing.T) {
	d, _, _ := newTestDispatcher()

	ok := d.HandleMessage(context.Background(), bkmark.EventMessage{Type: "UNKNOWN_X", Data: json.RawMessage(`{}`)})
	assert.False(t, ok)
}

func TestHandleMalformedPayload(t *testing.T) {
	d, _, _ := newTestDispatcher()

	ok := d.HandleMessage(context.Background(), bkmark.EventMessage{
		Type: bkmark.EventUserCreated,
		Data: json.RawMessage(`"not an object"`),
	})
	assert.False(t, ok)
}
