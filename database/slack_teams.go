package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/store"
)

// CreateSlackTeam persists a Slack workspace record. Writing the same
// team id again overwrites the previous record; the domain projection is
// refreshed with it.
func (d *Database) CreateSlackTeam(ctx context.Context, team *bkmark.SlackTeam) error {
	ts := timestamp()
	team.Created = ts
	team.Updated = ts

	data, err := attributevalue.MarshalMap(team)
	if err != nil {
		return fmt.Errorf("failed to marshal slack team %s: %w", team.ID, err)
	}

	item := store.Item{
		PartitionKey: store.SlackTeamKey(team.ID),
		SortKey:      store.SlackTeamKey(team.ID),
		Type:         store.TypeSlackTeam,
		GSI1: &store.IndexKey{
			PartitionKey: store.SlackTeamDomainKey(team.Domain),
			SortKey:      store.SlackTeamDomainKey(team.Domain),
		},
		Data:    data,
		Created: ts,
	}

	if err := d.store.Put(ctx, item, false); err != nil {
		d.logger.Error().Err(err).Str("team_id", team.ID).Msg("Failed to save slack team")
		return err
	}

	return nil
}

// GetSlackTeam returns the workspace record for a team id, or a
// NOT_FOUND error.
func (d *Database) GetSlackTeam(ctx context.Context, teamID string) (*bkmark.SlackTeam, error) {
	item, err := d.store.Get(ctx, store.SlackTeamKey(teamID), store.SlackTeamKey(teamID))
	if err != nil {
		if !bkmark.IsNotFound(err) {
			d.logger.Error().Err(err).Str("team_id", teamID).Msg("Error getting the slack team")
		}
		return nil, err
	}

	return unmarshalSlackTeam(item)
}

// GetSlackTeamByDomain returns the most recent workspace record for a
// domain. Domains are not unique across reinstalls, so newest wins.
func (d *Database) GetSlackTeamByDomain(ctx context.Context, domain string) (*bkmark.SlackTeam, error) {
	key := store.SlackTeamDomainKey(domain)
	items, err := d.store.QueryIndex(ctx, store.IndexGSI1, key, key, 1, false)
	if err != nil {
		d.logger.Error().Err(err).Str("domain", domain).Msg("Error getting the slack team by domain")
		return nil, err
	}
	if len(items) == 0 {
		return nil, bkmark.NotFoundError(fmt.Sprintf("no slack team for domain %s", domain))
	}

	return unmarshalSlackTeam(&items[0])
}

func unmarshalSlackTeam(item *store.Item) (*bkmark.SlackTeam, error) {
	var team bkmark.SlackTeam
	if err := attributevalue.UnmarshalMap(item.Data, &team); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slack team: %w", err)
	}
	return &team, nil
}
