// Package fanout republishes projection-table change records onto the
// shared event bus so other services can consume them. Publishing is
// at-least-once, not atomic: a retried batch re-submits entries that
// already succeeded.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	streamav "github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog"
)

// EventBridgeClient is the slice of the EventBridge client the publisher
// needs.
type EventBridgeClient interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

var _ EventBridgeClient = (*eventbridge.Client)(nil)

// Publisher fans change-stream records out to the event bus.
type Publisher struct {
	client  EventBridgeClient
	busName string
	source  string
	logger  zerolog.Logger
}

// New creates a Publisher targeting the named bus. source identifies this
// service on published entries.
func New(client EventBridgeClient, busName, source string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		client:  client,
		busName: busName,
		source:  source,
		logger:  logger.With().Str("component", "fanout").Logger(),
	}
}

// Publish normalizes the stream records and submits them to the bus in
// one call. Records without a new image (deletions) are dropped. More
// than one failed entry fails the whole call even though the other
// entries went through; the caller's retry re-submits everything.
func (p *Publisher) Publish(ctx context.Context, records []streamtypes.Record) error {
	entries := make([]ebtypes.PutEventsRequestEntry, 0, len(records))

	for _, record := range records {
		if record.Dynamodb == nil || record.Dynamodb.NewImage == nil {
			continue
		}

		var image map[string]any
		if err := streamav.UnmarshalMap(record.Dynamodb.NewImage, &image); err != nil {
			return fmt.Errorf("failed to unmarshal stream record image: %w", err)
		}

		detail, err := json.Marshal(image)
		if err != nil {
			return fmt.Errorf("failed to encode stream record detail: %w", err)
		}

		detailType := "UNKNOWN"
		if t, ok := image["type"].(string); ok && t != "" {
			detailType = t
		}

		entries = append(entries, ebtypes.PutEventsRequestEntry{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(detailType),
			Detail:       aws.String(string(detail)),
		})
	}

	if len(entries) == 0 {
		return nil
	}

	response, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to put events on the bus: %w", err)
	}

	if response.FailedEntryCount > 1 {
		codes := make([]string, 0, len(response.Entries))
		for _, entry := range response.Entries {
			codes = append(codes, aws.ToString(entry.ErrorCode))
		}
		p.logger.Error().Strs("error_codes", codes).Msg("Error sending events to the event bus")
		return fmt.Errorf("event bus rejected %d of %d entries", response.FailedEntryCount, len(entries))
	}

	p.logger.Debug().Int("entries", len(entries)).Msg("Sent records to the event bus")

	return nil
}
