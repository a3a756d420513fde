package queue

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkmark/slack-integration"
)

type fakeSQS struct {
	mu      sync.Mutex
	deleted []string
}

func (f *fakeSQS) GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs.local/domain-events")}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type recordingHandler struct {
	mu       sync.Mutex
	messages []bkmark.EventMessage
	fail     map[string]bool
}

func (h *recordingHandler) handle(ctx context.Context, message bkmark.EventMessage) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, message)
	return !h.fail[string(message.Type)]
}

func newTestConsumer(t *testing.T, handler MessageHandler) (*Consumer, *fakeSQS) {
	t.Helper()
	fake := &fakeSQS{}
	c := New(fake, "domain-events", handler, zerolog.Nop())
	require.NoError(t, c.Init(context.Background()))
	return c, fake
}

func sqsMessage(id, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String("rh-" + id),
		Body:          aws.String(body),
	}
}

func TestProcessBatchDeletesHandledMessages(t *testing.T) {
	handler := &recordingHandler{}
	c, fake := newTestConsumer(t, handler.handle)

	body := `{"type":"USER_CREATED","data":{"user":{"uuid":"u1"}}}`
	err := c.ProcessBatch(context.Background(), []sqstypes.Message{sqsMessage("m1", body)})
	require.NoError(t, err)

	require.Len(t, handler.messages, 1)
	assert.Equal(t, bkmark.EventUserCreated, handler.messages[0].Type)
	assert.Equal(t, []string{"rh-m1"}, fake.deleted)
}

func TestProcessBatchUnwrapsSNSEnvelope(t *testing.T) {
	handler := &recordingHandler{}
	c, _ := newTestConsumer(t, handler.handle)

	inner := `{"type":"USER_DELETED","data":{"user":{"uuid":"u1"}}}`
	envelope, err := json.Marshal(map[string]string{
		"Type":    "Notification",
		"Message": inner,
	})
	require.NoError(t, err)

	err = c.ProcessBatch(context.Background(), []sqstypes.Message{sqsMessage("m1", string(envelope))})
	require.NoError(t, err)

	require.Len(t, handler.messages, 1)
	assert.Equal(t, bkmark.EventUserDeleted, handler.messages[0].Type)
}

func TestProcessBatchFailsWhenAnyMessageFails(t *testing.T) {
	handler := &recordingHandler{fail: map[string]bool{"USER_UPDATED": true}}
	c, fake := newTestConsumer(t, handler.handle)

	messages := []sqstypes.Message{
		sqsMessage("m1", `{"type":"USER_CREATED","data":{}}`),
		sqsMessage("m2", `{"type":"USER_UPDATED","data":{}}`),
	}

	err := c.ProcessBatch(context.Background(), messages)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 messages in the batch failed")

	// The handled message was still acknowledged.
	assert.Equal(t, []string{"rh-m1"}, fake.deleted)
}

func TestProcessBatchPoisonMessage(t *testing.T) {
	handler := &recordingHandler{}
	c, fake := newTestConsumer(t, handler.handle)

	err := c.ProcessBatch(context.Background(), []sqstypes.Message{sqsMessage("m1", "not json")})
	require.Error(t, err)
	assert.Empty(t, handler.messages)
	assert.Empty(t, fake.deleted)
}

func TestRunRequiresInit(t *testing.T) {
	c := New(&fakeSQS{}, "domain-events", func(ctx context.Context, m bkmark.EventMessage) bool { return true }, zerolog.Nop())

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestUnwrapBodyPassthrough(t *testing.T) {
	plain := `{"type":"USER_CREATED"}`
	assert.Equal(t, plain, unwrapBody(plain))

	wrapped := `{"Type":"Notification","Message":"{\"type\":\"USER_CREATED\"}"}`
	assert.Equal(t, `{"type":"USER_CREATED"}`, unwrapBody(wrapped))
}
