// Package eventlog appends domain-significant occurrences to an
// append-only, uuid-keyed table. The log is independent of the entity
// repositories: it exists so Slack-side actions can be decoupled from
// downstream processing and audited later.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"

	"github.com/bkmark/slack-integration"
)

// PutItemAPI is the slice of the DynamoDB client the log needs.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

var _ PutItemAPI = (*dynamodb.Client)(nil)

// Log is the internal event log.
type Log struct {
	client    PutItemAPI
	tableName string
	logger    zerolog.Logger
	now       func() time.Time
}

// New creates a Log writing to the given table.
func New(client PutItemAPI, tableName string, logger zerolog.Logger) *Log {
	return &Log{
		client:    client,
		tableName: tableName,
		logger:    logger.With().Str("component", "eventlog").Logger(),
		now:       time.Now,
	}
}

// Append writes an internal event. The uuid is mandatory; the write is
// conditioned on the uuid not being present, so re-submitting the same
// logical event fails with ALREADY_EXISTS instead of duplicating it.
// Timestamp and correlation id are stamped here; the correlation id is
// taken from the context.
func (l *Log) Append(ctx context.Context, event bkmark.InternalEvent) error {
	if event.UUID == "" {
		return bkmark.ValidationError("the uuid is missing from the event data")
	}

	event.Timestamp = l.now().UnixMilli()
	event.CorrelationID = bkmark.CorrelationID(ctx)

	item, err := attributevalue.MarshalMap(event)
	if err != nil {
		return fmt.Errorf("failed to marshal internal event %s: %w", event.UUID, err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#uuid)"),
		ExpressionAttributeNames: map[string]string{
			"#uuid": "uuid",
		},
	}

	if _, err := l.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return bkmark.AlreadyExistsError(fmt.Sprintf("internal event %s already recorded", event.UUID))
		}
		l.logger.Error().Err(err).Str("event_uuid", event.UUID).Str("event_type", event.Type).
			Msg("Failed to save internal event")
		return err
	}

	return nil
}

// TryAppend is the fire-and-forget variant used alongside a primary
// action that has already committed: failures (including duplicates) are
// logged and swallowed so they never abort the action they accompany.
func (l *Log) TryAppend(ctx context.Context, event bkmark.InternalEvent) {
	if err := l.Append(ctx, event); err != nil {
		l.logger.Warn().Err(err).Str("event_uuid", event.UUID).Str("event_type", event.Type).
			Msg("Internal event append failed, continuing")
	}
}
