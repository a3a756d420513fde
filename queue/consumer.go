// Package queue consumes internal domain messages from SQS and feeds
// them to the dispatcher. Messages in one batch are processed
// concurrently; the batch as a whole fails when any message fails, so
// redelivery can replay messages that already succeeded. Handlers must
// therefore be idempotent — the internal event log's uniqueness
// constraint is the main backstop.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bkmark/slack-integration"
)

// MessageHandler consumes one decoded domain message and reports whether
// it was handled.
type MessageHandler func(ctx context.Context, message bkmark.EventMessage) bool

// SQSClient is the slice of the SQS client the consumer needs.
type SQSClient interface {
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

var _ SQSClient = (*sqs.Client)(nil)

// snsEnvelope is the wrapper SNS puts around messages delivered through
// a topic subscription.
type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// Consumer reads domain messages off an SQS queue.
type Consumer struct {
	client      SQSClient
	queueName   string
	queueURL    string
	handler     MessageHandler
	logger      zerolog.Logger
	maxMessages int32
	waitTime    int32
	initialized bool
}

// New creates a Consumer for the named queue. Call Init before Run.
func New(client SQSClient, queueName string, handler MessageHandler, logger zerolog.Logger) *Consumer {
	return &Consumer{
		client:      client,
		queueName:   queueName,
		handler:     handler,
		logger:      logger.With().Str("component", "queue").Str("queue_name", queueName).Logger(),
		maxMessages: 10,
		waitTime:    20,
	}
}

// Init resolves the queue URL. It is idempotent and must be called once
// before Run.
func (c *Consumer) Init(ctx context.Context) error {
	if c.initialized {
		return nil
	}

	resp, err := c.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(c.queueName)})
	if err != nil {
		return fmt.Errorf("failed to get SQS queue URL for %s: %w", c.queueName, err)
	}

	c.queueURL = aws.ToString(resp.QueueUrl)
	c.initialized = true

	return nil
}

// Run reads the queue in a loop until ctx is cancelled. Transient
// receive errors are logged and retried after a short backoff so a
// broken queue doesn't hammer the API.
func (c *Consumer) Run(ctx context.Context) error {
	if !c.initialized {
		return fmt.Errorf("SQS consumer not initialized")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		output, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.queueURL,
			MaxNumberOfMessages: c.maxMessages,
			WaitTimeSeconds:     c.waitTime,
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error().Err(err).Msg("Error reading SQS queue")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if len(output.Messages) == 0 {
			continue
		}

		if err := c.ProcessBatch(ctx, output.Messages); err != nil {
			c.logger.Error().Err(err).Msg("Batch processing failed, unacked messages will be redelivered")
		}
	}
}

// ProcessBatch handles one batch of messages concurrently. Handled
// messages are deleted; the batch errors when any message failed.
func (c *Consumer) ProcessBatch(ctx context.Context, messages []sqstypes.Message) error {
	var failures atomic.Int32
	var group errgroup.Group

	for _, message := range messages {
		group.Go(func() error {
			if !c.processMessage(ctx, message) {
				failures.Add(1)
			}
			return nil
		})
	}

	_ = group.Wait()

	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d of %d messages in the batch failed", n, len(messages))
	}

	return nil
}

func (c *Consumer) processMessage(ctx context.Context, message sqstypes.Message) bool {
	ctx = bkmark.WithCorrelationID(ctx, aws.ToString(message.MessageId))
	logger := bkmark.RequestLogger(ctx, c.logger)

	var event bkmark.EventMessage
	if err := json.Unmarshal([]byte(unwrapBody(aws.ToString(message.Body))), &event); err != nil {
		logger.Error().Err(err).Msg("Failed to decode queue message, treating as poison")
		return false
	}

	if !c.handler(ctx, event) {
		return false
	}

	c.deleteMessage(aws.ToString(message.MessageId), aws.ToString(message.ReceiptHandle))

	return true
}

// unwrapBody strips the SNS notification envelope when present; plain
// JSON bodies pass through untouched.
func unwrapBody(body string) string {
	var envelope snsEnvelope
	if err := json.Unmarshal([]byte(body), &envelope); err == nil &&
		envelope.Type == "Notification" && envelope.Message != "" {
		return envelope.Message
	}
	return body
}

// deleteMessage acknowledges a handled message. It uses a background
// context with a short timeout because the delete must complete
// regardless of the caller's context state; a failed delete only means
// an extra redelivery.
func (c *Consumer) deleteMessage(messageID, receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: &receiptHandle,
	})
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", messageID).Msg("Failed to delete SQS message")
		return
	}

	c.logger.Debug().Str("message_id", messageID).Msg("SQS message deleted")
}
