package fanout

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/rs/zerolog"
)

// StreamsClient is the slice of the DynamoDB Streams client the tailer
// needs.
type StreamsClient interface {
	DescribeStream(ctx context.Context, params *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

var _ StreamsClient = (*dynamodbstreams.Client)(nil)

// Streamer tails the projection table's change stream and hands each
// batch of records to the publisher. It starts at the stream tip, so a
// restart drops records written while the process was down; the bus is
// not the system of record, so that is acceptable.
type Streamer struct {
	client       StreamsClient
	streamARN    string
	publisher    *Publisher
	pollInterval time.Duration
	logger       zerolog.Logger

	iterators map[string]string
}

func NewStreamer(client StreamsClient, streamARN string, publisher *Publisher, logger zerolog.Logger) *Streamer {
	return &Streamer{
		client:       client,
		streamARN:    streamARN,
		publisher:    publisher,
		pollInterval: 2 * time.Second,
		logger:       logger.With().Str("component", "streamer").Logger(),
		iterators:    make(map[string]string),
	}
}

// Run polls the stream until the context is cancelled.
func (s *Streamer) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if err := s.poll(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Stream poll failed.")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Streamer) poll(ctx context.Context) error {
	described, err := s.client.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
		StreamArn: aws.String(s.streamARN),
	})
	if err != nil {
		return err
	}

	for _, shard := range described.StreamDescription.Shards {
		shardID := aws.ToString(shard.ShardId)

		iterator, ok := s.iterators[shardID]
		if !ok {
			out, err := s.client.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
				StreamArn:         aws.String(s.streamARN),
				ShardId:           shard.ShardId,
				ShardIteratorType: streamtypes.ShardIteratorTypeLatest,
			})
			if err != nil {
				s.logger.Warn().Err(err).Str("shard_id", shardID).Msg("Failed to get shard iterator.")
				continue
			}
			iterator = aws.ToString(out.ShardIterator)
		}
		if iterator == "" {
			// Shard is closed and fully consumed.
			continue
		}

		records, err := s.client.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
			ShardIterator: aws.String(iterator),
		})
		if err != nil {
			// The iterator may have expired; drop it so the next poll
			// re-seeks.
			delete(s.iterators, shardID)
			s.logger.Warn().Err(err).Str("shard_id", shardID).Msg("Failed to read stream records.")
			continue
		}

		if len(records.Records) > 0 {
			if err := s.publisher.Publish(ctx, records.Records); err != nil {
				// Keep the current iterator so the batch is retried.
				s.iterators[shardID] = iterator
				return err
			}
		}
		s.iterators[shardID] = aws.ToString(records.NextShardIterator)
	}
	return nil
}
