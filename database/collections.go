package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/store"
)

// CreateCollection persists a new collection. The (organisation, uuid)
// pair must be unique.
func (d *Database) CreateCollection(ctx context.Context, collection *bkmark.Collection) error {
	ts := timestamp()
	collection.Created = ts
	collection.Updated = ts

	data, err := attributevalue.MarshalMap(collection)
	if err != nil {
		return fmt.Errorf("failed to marshal collection %s: %w", collection.UUID, err)
	}

	item := store.Item{
		PartitionKey: store.OrganisationKey(collection.OrganisationID),
		SortKey:      store.CollectionKey(collection.UUID),
		Type:         store.TypeCollection,
		Data:         data,
		Created:      ts,
	}

	if err := d.store.Put(ctx, item, true); err != nil {
		d.logger.Error().Err(err).Str("collection_id", collection.UUID).
			Str("organisation_id", collection.OrganisationID).Msg("Failed to save collection")
		return err
	}

	return nil
}

// GetCollection returns the collection by primary key.
func (d *Database) GetCollection(ctx context.Context, organisationID, collectionID string) (*bkmark.Collection, error) {
	item, err := d.store.Get(ctx, store.OrganisationKey(organisationID), store.CollectionKey(collectionID))
	if err != nil {
		if !bkmark.IsNotFound(err) {
			d.logger.Error().Err(err).Str("collection_id", collectionID).Msg("Error getting the collection")
		}
		return nil, err
	}

	return unmarshalCollection(item)
}

// GetCollectionByChannel finds the collection bound to a Slack channel,
// newest binding first.
func (d *Database) GetCollectionByChannel(ctx context.Context, teamID, channelID string) (*bkmark.Collection, error) {
	items, err := d.store.QueryIndex(ctx, store.IndexGSI1, store.TeamKey(teamID), store.ChannelKey(channelID), 1, false)
	if err != nil {
		d.logger.Error().Err(err).Str("team_id", teamID).Str("channel_id", channelID).
			Msg("Error getting the collection by channel")
		return nil, err
	}
	if len(items) == 0 {
		return nil, bkmark.NotFoundError(fmt.Sprintf("no collection bound to channel %s in team %s", channelID, teamID))
	}

	return unmarshalCollection(&items[0])
}

// GetCollectionByDomain finds the collection bound to a Slack channel,
// looked up by workspace domain instead of team id.
func (d *Database) GetCollectionByDomain(ctx context.Context, domain, channelID string) (*bkmark.Collection, error) {
	items, err := d.store.QueryIndex(ctx, store.IndexGSI2, store.DomainKey(domain), store.ChannelKey(channelID), 1, false)
	if err != nil {
		d.logger.Error().Err(err).Str("domain", domain).Str("channel_id", channelID).
			Msg("Error getting the collection by domain")
		return nil, err
	}
	if len(items) == 0 {
		return nil, bkmark.NotFoundError(fmt.Sprintf("no collection bound to channel %s for domain %s", channelID, domain))
	}

	return unmarshalCollection(&items[0])
}

// DeleteCollection removes the collection item by primary key.
func (d *Database) DeleteCollection(ctx context.Context, organisationID, collectionID string) error {
	if err := d.store.Delete(ctx, store.OrganisationKey(organisationID), store.CollectionKey(collectionID)); err != nil {
		d.logger.Error().Err(err).Str("collection_id", collectionID).Msg("Failed to delete collection")
		return err
	}

	return nil
}

// BindChannel binds a Slack channel to the collection. The denormalized
// fields and both index projections are rewritten in the same update
// call: the projections are the only way the collection is found by
// channel or domain later, so they must never trail the fields. A rebind
// overwrites the previous binding.
func (d *Database) BindChannel(ctx context.Context, organisationID, collectionID, teamID, domain, channelID string) (*bkmark.Collection, error) {
	update := store.Update{
		Set: map[string]types.AttributeValue{
			"teamId":    &types.AttributeValueMemberS{Value: teamID},
			"domain":    &types.AttributeValueMemberS{Value: domain},
			"channelId": &types.AttributeValueMemberS{Value: channelID},
		},
		GSI1: &store.IndexKey{PartitionKey: store.TeamKey(teamID), SortKey: store.ChannelKey(channelID)},
		GSI2: &store.IndexKey{PartitionKey: store.DomainKey(domain), SortKey: store.ChannelKey(channelID)},
	}

	item, err := d.store.Update(ctx, store.OrganisationKey(organisationID), store.CollectionKey(collectionID), update)
	if err != nil {
		d.logger.Error().Err(err).Str("collection_id", collectionID).Str("channel_id", channelID).
			Msg("Failed to bind channel to collection")
		return nil, err
	}

	return unmarshalCollection(item)
}

func unmarshalCollection(item *store.Item) (*bkmark.Collection, error) {
	var collection bkmark.Collection
	if err := attributevalue.UnmarshalMap(item.Data, &collection); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collection: %w", err)
	}
	return &collection, nil
}
