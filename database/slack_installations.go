package database

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/bkmark/slack-integration"
	"github.com/bkmark/slack-integration/store"
)

// PutSlackInstallation stores the OAuth installation payload keyed by
// team or enterprise id. A reinstall overwrites the previous record, so
// the put is unconditional.
func (d *Database) PutSlackInstallation(ctx context.Context, installation *bkmark.SlackInstallation) error {
	data, err := attributevalue.MarshalMap(installation)
	if err != nil {
		return fmt.Errorf("failed to marshal slack installation %s: %w", installation.ID, err)
	}

	item := store.Item{
		PartitionKey: store.SlackInstallationKey(installation.ID),
		SortKey:      store.SlackInstallationKey(installation.ID),
		Type:         store.TypeSlackInstallation,
		Data:         data,
	}

	if err := d.store.Put(ctx, item, false); err != nil {
		d.logger.Error().Err(err).Str("installation_id", installation.ID).
			Msg("Failed to save slack installation")
		return err
	}

	return nil
}

// GetSlackInstallation returns the installation for a team or enterprise
// id. Absence is fatal to callers that need a bot token, so a NOT_FOUND
// error is returned rather than a nil record.
func (d *Database) GetSlackInstallation(ctx context.Context, id string) (*bkmark.SlackInstallation, error) {
	item, err := d.store.Get(ctx, store.SlackInstallationKey(id), store.SlackInstallationKey(id))
	if err != nil {
		if !bkmark.IsNotFound(err) {
			d.logger.Error().Err(err).Str("installation_id", id).Msg("Error getting the slack installation")
		}
		return nil, err
	}

	var installation bkmark.SlackInstallation
	if err := attributevalue.UnmarshalMap(item.Data, &installation); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slack installation: %w", err)
	}

	return &installation, nil
}
