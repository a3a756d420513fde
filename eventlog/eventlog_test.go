package eventlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkmark/slack-integration"
)

type fakePutItem struct {
	input *dynamodb.PutItemInput
	err   error
	calls int
}

func (f *fakePutItem) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.input = params
	f.calls++
	return &dynamodb.PutItemOutput{}, f.err
}

func TestAppendStampsAndConditions(t *testing.T) {
	fake := &fakePutItem{}
	log := New(fake, "internal-events", zerolog.Nop())
	log.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ctx := bkmark.WithCorrelationID(context.Background(), "corr-1")
	err := log.Append(ctx, bkmark.InternalEvent{
		UUID: "e1",
		Type: string(bkmark.EventSlackUserCreated),
		Data: map[string]any{"user": map[string]any{"slackId": "U1"}},
	})
	require.NoError(t, err)

	input := fake.input
	require.NotNil(t, input)
	assert.Equal(t, "internal-events", aws.ToString(input.TableName))
	assert.Equal(t, "attribute_not_exists(#uuid)", aws.ToString(input.ConditionExpression))
	assert.Equal(t, "uuid", input.ExpressionAttributeNames["#uuid"])

	ts := input.Item["timestamp"].(*types.AttributeValueMemberN)
	assert.Equal(t, "1700000000000", ts.Value)
	corr := input.Item["correlationId"].(*types.AttributeValueMemberS)
	assert.Equal(t, "corr-1", corr.Value)
}

func TestAppendRequiresUUID(t *testing.T) {
	fake := &fakePutItem{}
	log := New(fake, "internal-events", zerolog.Nop())

	err := log.Append(context.Background(), bkmark.InternalEvent{Type: "SOMETHING_HAPPENED"})
	require.Error(t, err)
	assert.True(t, bkmark.IsValidation(err))
	assert.Zero(t, fake.calls)
}

func TestAppendDuplicate(t *testing.T) {
	fake := &fakePutItem{err: &types.ConditionalCheckFailedException{}}
	log := New(fake, "internal-events", zerolog.Nop())

	err := log.Append(context.Background(), bkmark.InternalEvent{UUID: "e1", Type: "SOMETHING_HAPPENED"})
	require.Error(t, err)
	assert.True(t, bkmark.IsAlreadyExists(err))
}

func TestTryAppendSwallowsFailures(t *testing.T) {
	fake := &fakePutItem{err: errors.New("boom")}
	log := New(fake, "internal-events", zerolog.Nop())

	log.TryAppend(context.Background(), bkmark.InternalEvent{UUID: "e1", Type: "SOMETHING_HAPPENED"})
	assert.Equal(t, 1, fake.calls)
}
