package fanout

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStreams struct {
	records       []streamtypes.Record
	nextIterator  *string
	iteratorCalls int
}

func (f *fakeStreams) DescribeStream(ctx context.Context, params *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error) {
	return &dynamodbstreams.DescribeStreamOutput{
		StreamDescription: &streamtypes.StreamDescription{
			Shards: []streamtypes.Shard{{ShardId: aws.String("shard-1")}},
		},
	}, nil
}

func (f *fakeStreams) GetShardIterator(ctx context.Context, params *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error) {
	f.iteratorCalls++
	return &dynamodbstreams.GetShardIteratorOutput{ShardIterator: aws.String("iter-1")}, nil
}

func (f *fakeStreams) GetRecords(ctx context.Context, params *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error) {
	return &dynamodbstreams.GetRecordsOutput{
		Records:           f.records,
		NextShardIterator: f.nextIterator,
	}, nil
}

func TestStreamerPollPublishes(t *testing.T) {
	streams := &fakeStreams{
		records: []streamtypes.Record{
			record(map[string]streamtypes.AttributeValue{
				"type": &streamtypes.AttributeValueMemberS{Value: "user"},
			}),
		},
		nextIterator: aws.String("iter-2"),
	}
	bus := &fakeEventBridge{}
	publisher := New(bus, "domain-bus", "source", zerolog.Nop())
	s := NewStreamer(streams, "arn:aws:dynamodb:::stream/projections", publisher, zerolog.Nop())

	require.NoError(t, s.poll(context.Background()))
	assert.Equal(t, 1, bus.calls)
	assert.Equal(t, "iter-2", s.iterators["shard-1"])

	// The next poll reuses the saved iterator instead of re-seeking.
	require.NoError(t, s.poll(context.Background()))
	assert.Equal(t, 1, streams.iteratorCalls)
}

func TestStreamerPollSkipsClosedShard(t *testing.T) {
	streams := &fakeStreams{nextIterator: nil}
	bus := &fakeEventBridge{}
	publisher := New(bus, "domain-bus", "source", zerolog.Nop())
	s := NewStreamer(streams, "arn:aws:dynamodb:::stream/projections", publisher, zerolog.Nop())

	require.NoError(t, s.poll(context.Background()))
	// Shard exhausted: no records, iterator cleared.
	assert.Zero(t, bus.calls)
	assert.Equal(t, "", s.iterators["shard-1"])

	require.NoError(t, s.poll(context.Background()))
	assert.Equal(t, 1, streams.iteratorCalls)
}
