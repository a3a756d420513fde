package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/store"
)

// CreateSlackUser persists a new Slack identity. The (team, slack id)
// pair must be unique. The user link stays empty until the person
// authenticates.
func (d *Database) CreateSlackUser(ctx context.Context, slackUser *bkmark.SlackUser) error {
	ts := timestamp()
	slackUser.Created = ts
	slackUser.Updated = ts

	data, err := attributevalue.MarshalMap(slackUser)
	if err != nil {
		return fmt.Errorf("failed to marshal slack user %s: %w", slackUser.SlackID, err)
	}

	item := store.Item{
		PartitionKey: store.SlackTeamKey(slackUser.TeamID),
		SortKey:      store.SlackUserKey(slackUser.SlackID),
		Type:         store.TypeSlackUser,
		GSI1: &store.IndexKey{
			PartitionKey: store.SlackTeamDomainKey(slackUser.Domain),
			SortKey:      store.SlackUserKey(slackUser.SlackID),
		},
		Data:    data,
		Created: ts,
	}

	if err := d.store.Put(ctx, item, true); err != nil {
		d.logger.Error().Err(err).Str("team_id", slackUser.TeamID).Str("slack_id", slackUser.SlackID).
			Msg("Failed to save slack user")
		return err
	}

	return nil
}

// GetSlackUser returns the Slack identity for a (team, slack id) pair,
// or a NOT_FOUND error.
func (d *Database) GetSlackUser(ctx context.Context, teamID, slackID string) (*bkmark.SlackUser, error) {
	item, err := d.store.Get(ctx, store.SlackTeamKey(teamID), store.SlackUserKey(slackID))
	if err != nil {
		if !bkmark.IsNotFound(err) {
			d.logger.Error().Err(err).Str("team_id", teamID).Str("slack_id", slackID).
				Msg("Error getting the slack user")
		}
		return nil, err
	}

	return unmarshalSlackUser(item)
}

// GetSlackUserByUserID finds the Slack identity linked to an app user,
// most recently linked first.
func (d *Database) GetSlackUserByUserID(ctx context.Context, userID string) (*bkmark.SlackUser, error) {
	items, err := d.store.QueryIndex(ctx, store.IndexGSI2, store.UserKey(userID), store.UserKey(userID), 1, false)
	if err != nil {
		d.logger.Error().Err(err).Str("user_id", userID).Msg("Error getting the slack user by user id")
		return nil, err
	}
	if len(items) == 0 {
		return nil, bkmark.NotFoundError(fmt.Sprintf("no slack user linked to user %s", userID))
	}

	return unmarshalSlackUser(&items[0])
}

// LinkToUser links a Slack identity to an app user. The userId field and
// the gsi2 projection are rewritten in the same update call so "find
// Slack identity by app user id" stays consistent with the primary
// record.
func (d *Database) LinkToUser(ctx context.Context, teamID, slackID, userUUID string) (*bkmark.SlackUser, error) {
	update := store.Update{
		Set: map[string]types.AttributeValue{
			"userId": &types.AttributeValueMemberS{Value: userUUID},
		},
		GSI2: &store.IndexKey{
			PartitionKey: store.UserKey(userUUID),
			SortKey:      store.UserKey(userUUID),
		},
	}

	item, err := d.store.Update(ctx, store.SlackTeamKey(teamID), store.SlackUserKey(slackID), update)
	if err != nil {
		d.logger.Error().Err(err).Str("team_id", teamID).Str("slack_id", slackID).Str("user_id", userUUID).
			Msg("Failed to link slack user to user")
		return nil, err
	}

	return unmarshalSlackUser(item)
}

func unmarshalSlackUser(item *store.Item) (*bkmark.SlackUser, error) {
	var slackUser bkmark.SlackUser
	if err := attributevalue.UnmarshalMap(item.Data, &slackUser); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slack user: %w", err)
	}
	return &slackUser, nil
}
