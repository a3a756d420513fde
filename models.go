package bkmark

import "encoding/json"

// CollectionRef is a reference to a collection held on a user record.
// Users and collections are many-to-many; the pair of ids is the whole
// relationship, there is no join table.
type CollectionRef struct {
	UUID           string `json:"uuid" dynamodbav:"uuid"`
	OrganisationID string `json:"organisationId" dynamodbav:"organisationId"`
}

// User is the product-side identity. Organisations and collections are
// ordered, append-only lists of references.
type User struct {
	UUID          string          `json:"uuid" dynamodbav:"uuid"`
	Forename      string          `json:"forename,omitempty" dynamodbav:"forename,omitempty"`
	Surname       string          `json:"surname,omitempty" dynamodbav:"surname,omitempty"`
	Organisations []string        `json:"organisations" dynamodbav:"organisations"`
	Collections   []CollectionRef `json:"collections" dynamodbav:"collections"`
	Created       string          `json:"created,omitempty" dynamodbav:"created,omitempty"`
	Updated       string          `json:"updated,omitempty" dynamodbav:"updated,omitempty"`
}

// Collection is an organisation-scoped bookmark collection. The Slack
// binding fields are denormalized here and mirrored into the secondary
// indexes so the collection can be found by channel or by domain later.
type Collection struct {
	UUID           string `json:"uuid" dynamodbav:"uuid"`
	OrganisationID string `json:"organisationId" dynamodbav:"organisationId"`
	TeamID         string `json:"teamId,omitempty" dynamodbav:"teamId,omitempty"`
	Domain         string `json:"domain,omitempty" dynamodbav:"domain,omitempty"`
	ChannelID      string `json:"channelId,omitempty" dynamodbav:"channelId,omitempty"`
	Created        string `json:"created,omitempty" dynamodbav:"created,omitempty"`
	Updated        string `json:"updated,omitempty" dynamodbav:"updated,omitempty"`
}

// SlackUser is a Slack identity. UserID stays empty until the person
// authenticates with the product and the two identities are linked.
type SlackUser struct {
	SlackID string `json:"slackId" dynamodbav:"slackId"`
	TeamID  string `json:"teamId" dynamodbav:"teamId"`
	Domain  string `json:"domain,omitempty" dynamodbav:"domain,omitempty"`
	UserID  string `json:"userId,omitempty" dynamodbav:"userId,omitempty"`
	Created string `json:"created,omitempty" dynamodbav:"created,omitempty"`
	Updated string `json:"updated,omitempty" dynamodbav:"updated,omitempty"`
}

// SlackTeam is a Slack workspace. Domain lookups return the most recent
// record for the domain.
type SlackTeam struct {
	ID      string `json:"id" dynamodbav:"id"`
	Domain  string `json:"domain,omitempty" dynamodbav:"domain,omitempty"`
	Name    string `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Created string `json:"created,omitempty" dynamodbav:"created,omitempty"`
	Updated string `json:"updated,omitempty" dynamodbav:"updated,omitempty"`
}

// SlackInstallation stores the OAuth installation payload for a team or
// enterprise id. A reinstall overwrites the previous record.
type SlackInstallation struct {
	ID        string          `json:"id" dynamodbav:"id"`
	BotToken  string          `json:"botToken,omitempty" dynamodbav:"botToken,omitempty"`
	BotUserID string          `json:"botUserId,omitempty" dynamodbav:"botUserId,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty" dynamodbav:"raw,omitempty"`
}

// InternalEvent is an idempotent, uuid-keyed audit record. It is distinct
// from the bus events published by the fanout: it exists to decouple
// Slack-side actions from downstream processing.
type InternalEvent struct {
	UUID          string         `json:"uuid" dynamodbav:"uuid"`
	Type          string         `json:"type" dynamodbav:"type"`
	Data          map[string]any `json:"data" dynamodbav:"data"`
	Timestamp     int64          `json:"timestamp" dynamodbav:"timestamp"`
	CorrelationID string         `json:"correlationId" dynamodbav:"correlationId"`
}

// Bookmark is the subset of the bookmarking service's record that the
// Slack surfaces render.
type Bookmark struct {
	UUID     string        `json:"uuid"`
	URL      string        `json:"url"`
	Title    string        `json:"title,omitempty"`
	Notes    string        `json:"notes,omitempty"`
	Metadata BookmarkMeta  `json:"metadata"`
	Coll     CollectionRef `json:"collection"`
}

// BookmarkMeta is scraped page metadata attached to a bookmark.
type BookmarkMeta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
}
