// Package database maps the domain entities onto the keyed item store:
// each repository method builds the composite keys and index projections
// for its entity, stamps timestamps, and translates store-level outcomes
// into entity-level ones. No method retries on its own; redelivery is an
// infrastructure concern.
package database

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/bkmark/slack-integration/store"
)

// Database bundles the entity repositories over one item store.
type Database struct {
	store  store.ItemStore
	logger zerolog.Logger
}

// New creates a Database on the given item store.
func New(s store.ItemStore, logger zerolog.Logger) *Database {
	return &Database{
		store:  s,
		logger: logger.With().Str("component", "database").Logger(),
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
