package bkmark

import "encoding/json"

// EventType tags a domain event message on the wire.
type EventType string

const (
	EventUserCreated EventType = "USER_CREATED"
	EventUserUpdated EventType = "USER_UPDATED"
	EventUserDeleted EventType = "USER_DELETED"

	EventUserOrganisationJoined EventType = "USER_INTERNAL_ORGANISATION_JOINED"
	EventUserCollectionJoined   EventType = "USER_INTERNAL_COLLECTION_JOINED"

	EventCollectionCreated EventType = "COLLECTION_CREATED"
	EventCollectionDeleted EventType = "COLLECTION_DELETED"

	EventBookmarkNotificationCreated EventType = "BOOKMARK_NOTIFICATION_CREATED"

	EventSlackInstallationCreated EventType = "SLACK_INSTALLATION_CREATED"
)

// Internal event types recorded in the event log but never consumed from
// the queue.
const (
	EventSlackTeamCreated          EventType = "SLACK_TEAM_CREATED"
	EventSlackUserCreated          EventType = "SLACK_USER_CREATED"
	EventSlackUninstalled          EventType = "SLACK_UNINSTALLED"
	EventBookmarkCreateRequestSent EventType = "BOOKMARK_CREATE_REQUEST_SENT"
)

// EventMessage is the wire envelope for domain events: a type tag plus an
// opaque data payload decoded per branch by the dispatcher.
type EventMessage struct {
	UUID    string          `json:"uuid,omitempty"`
	Type    EventType       `json:"type"`
	Data    json.RawMessage `json:"data"`
	Source  string          `json:"source,omitempty"`
	Version int             `json:"version,omitempty"`
}

// Payload shapes for the recognized event types.

type UserCreatedData struct {
	User struct {
		UUID     string `json:"uuid"`
		Forename string `json:"forename"`
		Surname  string `json:"surname"`
	} `json:"user"`
}

type UserUpdatedData struct {
	User    map[string]string `json:"user"`
	OldUser map[string]string `json:"oldUser"`
}

type UserDeletedData struct {
	User struct {
		UUID string `json:"uuid"`
	} `json:"user"`
}

type OrganisationJoinedData struct {
	User struct {
		UUID string `json:"uuid"`
	} `json:"user"`
	Organisation struct {
		UUID string `json:"uuid"`
	} `json:"organisation"`
}

type CollectionJoinedData struct {
	User struct {
		UUID string `json:"uuid"`
	} `json:"user"`
	Collection CollectionRef `json:"collection"`
}

type CollectionCreatedData struct {
	Collection struct {
		UUID           string   `json:"uuid"`
		OrganisationID string   `json:"organisationId"`
		Users          []string `json:"users"`
	} `json:"collection"`
}

type CollectionDeletedData struct {
	Collection struct {
		UUID           string   `json:"uuid"`
		OrganisationID string   `json:"organisationId"`
		Users          []string `json:"users"`
	} `json:"collection"`
}

type BookmarkNotificationData struct {
	Notification map[string]any `json:"notification"`
	Bookmark     struct {
		UUID   string `json:"uuid"`
		UserID string `json:"userId"`
	} `json:"bookmark"`
}
