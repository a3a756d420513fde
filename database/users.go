package database

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/store"
)

// removeAttempts bounds the compare-and-swap loop in RemoveCollection.
const removeAttempts = 3

// CreateUser persists a new user. The uuid must be globally unique;
// a duplicate create fails with ALREADY_EXISTS.
func (d *Database) CreateUser(ctx context.Context, user *bkmark.User) error {
	ts := timestamp()
	user.Created = ts
	user.Updated = ts
	if user.Organisations == nil {
		user.Organisations = []string{}
	}
	if user.Collections == nil {
		user.Collections = []bkmark.CollectionRef{}
	}

	data, err := attributevalue.MarshalMap(user)
	if err != nil {
		return fmt.Errorf("failed to marshal user %s: %w", user.UUID, err)
	}

	item := store.Item{
		PartitionKey: store.UserKey(user.UUID),
		SortKey:      store.UserKey(user.UUID),
		Type:         store.TypeUser,
		Data:         data,
		Created:      ts,
	}

	if err := d.store.Put(ctx, item, true); err != nil {
		d.logger.Error().Err(err).Str("user_id", user.UUID).Msg("Failed to save user")
		return err
	}

	return nil
}

// GetUser returns the user for the uuid, or a NOT_FOUND error.
func (d *Database) GetUser(ctx context.Context, userID string) (*bkmark.User, error) {
	item, err := d.store.Get(ctx, store.UserKey(userID), store.UserKey(userID))
	if err != nil {
		if !bkmark.IsNotFound(err) {
			d.logger.Error().Err(err).Str("user_id", userID).Msg("Error getting the user")
		}
		return nil, err
	}

	var user bkmark.User
	if err := attributevalue.UnmarshalMap(item.Data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}

	return &user, nil
}

// EditUser replaces the user's name fields.
func (d *Database) EditUser(ctx context.Context, userID, forename, surname string) (*bkmark.User, error) {
	update := store.Update{
		Set: map[string]types.AttributeValue{
			"forename": &types.AttributeValueMemberS{Value: forename},
			"surname":  &types.AttributeValueMemberS{Value: surname},
		},
	}

	item, err := d.store.Update(ctx, store.UserKey(userID), store.UserKey(userID), update)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to edit user")
		return nil, err
	}

	var user bkmark.User
	if err := attributevalue.UnmarshalMap(item.Data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}

	return &user, nil
}

// DeleteUser removes the user item. No cascade: references held by other
// entities are left to age out.
func (d *Database) DeleteUser(ctx context.Context, userID string) error {
	if err := d.store.Delete(ctx, store.UserKey(userID), store.UserKey(userID)); err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to delete user")
		return err
	}

	return nil
}

// AppendOrganisation appends an organisation reference to the user's
// list in a single atomic update.
func (d *Database) AppendOrganisation(ctx context.Context, userID, organisationID string) (*bkmark.User, error) {
	update := store.Update{
		ListAppend: map[string]types.AttributeValue{
			"organisations": &types.AttributeValueMemberL{Value: []types.AttributeValue{
				&types.AttributeValueMemberS{Value: organisationID},
			}},
		},
	}

	item, err := d.store.Update(ctx, store.UserKey(userID), store.UserKey(userID), update)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Str("organisation_id", organisationID).
			Msg("Failed to append an organisation to user")
		return nil, err
	}

	var user bkmark.User
	if err := attributevalue.UnmarshalMap(item.Data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}

	return &user, nil
}

// AppendCollection appends a collection reference to the user's list in
// a single atomic update.
func (d *Database) AppendCollection(ctx context.Context, userID, organisationID, collectionID string) (*bkmark.User, error) {
	ref, err := attributevalue.Marshal(bkmark.CollectionRef{UUID: collectionID, OrganisationID: organisationID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal collection ref: %w", err)
	}

	update := store.Update{
		ListAppend: map[string]types.AttributeValue{
			"collections": &types.AttributeValueMemberL{Value: []types.AttributeValue{ref}},
		},
	}

	item, err := d.store.Update(ctx, store.UserKey(userID), store.UserKey(userID), update)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Str("collection_id", collectionID).
			Msg("Failed to append a collection to user")
		return nil, err
	}

	var user bkmark.User
	if err := attributevalue.UnmarshalMap(item.Data, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", userID, err)
	}

	return &user, nil
}

// RemoveCollection removes the reference matching the given collection
// from the user's list. The match is by value, removal is by position
// with a guard on the element still being the matched one, and a lost
// guard triggers a fresh read and retry. Removing the first element is
// as valid as any other; a missing reference is a no-op.
func (d *Database) RemoveCollection(ctx context.Context, userID string, ref bkmark.CollectionRef) error {
	for attempt := 0; attempt < removeAttempts; attempt++ {
		user, err := d.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		index := slices.Index(user.Collections, ref)
		if index < 0 {
			return nil
		}

		expected, err := attributevalue.Marshal(ref)
		if err != nil {
			return fmt.Errorf("failed to marshal collection ref: %w", err)
		}

		update := store.Update{
			Remove: &store.ListRemove{Field: "collections", Index: index, Expected: expected},
		}

		_, err = d.store.Update(ctx, store.UserKey(userID), store.UserKey(userID), update)
		if err == nil {
			return nil
		}
		if !bkmark.IsConflict(err) {
			d.logger.Error().Err(err).Str("user_id", userID).Str("collection_id", ref.UUID).
				Msg("Failed to remove a collection from user")
			return err
		}
	}

	return bkmark.ConflictError(fmt.Sprintf("gave up removing collection %s from user %s after %d attempts", ref.UUID, userID, removeAttempts))
}
