// Package store implements the single-table keyed item store behind the
// entity repositories.
//
// Every item shares the same envelope: a composite primary key, up to two
// secondary index projections, an opaque data payload, an entity type
// discriminator and created/updated timestamps. Concrete implementations:
//
//   - DynamoDBStore: production backend
//   - MemoryStore: in-memory backend for testing
//
// Key construction lives in schema.go so repositories and store agree on
// prefixes.
package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// IndexKey is a secondary index projection: a denormalized key pair
// stored alongside an item enabling lookup by an alternate key.
type IndexKey struct {
	PartitionKey string
	SortKey      string
}

// Item is a single record addressed by a composite primary key.
type Item struct {
	PartitionKey string
	SortKey      string
	Type         string
	GSI1         *IndexKey
	GSI2         *IndexKey
	Data         map[string]types.AttributeValue
	Created      string
	Updated      string
}

// ListRemove removes the element at Index from the list field named
// Field, guarded by the element still holding Expected. The guard turns
// the inherently racy remove-by-position into a compare-and-swap: if a
// concurrent writer moved the list, the condition fails and the caller
// re-reads before retrying.
type ListRemove struct {
	Field    string
	Index    int
	Expected types.AttributeValue
}

// Update describes a partial item update. All parts are applied in one
// store call together with the updated-timestamp refresh; secondary index
// rewrites ride the same call so projections never trail the fields they
// mirror.
type Update struct {
	// Set replaces scalar fields inside data.
	Set map[string]types.AttributeValue
	// ListAppend appends to a list field inside data, defaulting to an
	// empty list when the field is absent. Values must be list attributes.
	ListAppend map[string]types.AttributeValue
	// Remove is an optional guarded positional removal.
	Remove *ListRemove
	// GSI1/GSI2 rewrite the index projections.
	GSI1 *IndexKey
	GSI2 *IndexKey
}

// ItemStore is the persistence contract for the projection table.
type ItemStore interface {
	// Put writes an item, stamping created/updated. With uniqueByKey it
	// fails with an ALREADY_EXISTS error when the primary key is taken;
	// callers must treat that as non-retryable.
	Put(ctx context.Context, item Item, uniqueByKey bool) error

	// Get returns the item for the primary key, or a NOT_FOUND error.
	Get(ctx context.Context, partitionKey, sortKey string) (*Item, error)

	// QueryIndex returns items matching the index key pair, ordered by
	// sort key. Callers needing "most recent" pass scanForward=false,
	// limit=1. Zero results is an empty slice, not an error.
	QueryIndex(ctx context.Context, index, partitionKey, sortKey string, limit int32, scanForward bool) ([]Item, error)

	// Update applies a partial update and returns the updated item. A
	// failed removal guard surfaces as a CONFLICT error.
	Update(ctx context.Context, partitionKey, sortKey string, update Update) (*Item, error)

	// Delete removes the item by primary key. No cascade, no tombstone.
	Delete(ctx context.Context, partitionKey, sortKey string) error
}
