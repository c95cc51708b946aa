package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestMessageQueueReader struct {
	mu       sync.Mutex
	batches  [][]*MessageQueueMessage
	err      error
	deleted  []string
	received int
}

func (r *TestMessageQueueReader) ReceiveMessages(ctx context.Context, maxNumberOfMessages int64) ([]*MessageQueueMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.batches) == 0 {
		return nil, nil
	}
	batch := r.batches[0]
	r.batches = r.batches[1:]
	return batch, nil
}

func (r *TestMessageQueueReader) DeleteMessage(ctx context.Context, msg *MessageQueueMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, msg.MessageId)
	return nil
}

func TestReadAndProcessMessages(t *testing.T) {
	hub := NewHub()
	sub, _ := hub.Subscribe(context.Background(), "family_1")
	reader := &TestMessageQueueReader{batches: [][]*MessageQueueMessage{{
		{MessageId: "m1", Body: `{"signalType":"FAMILY_POSTS_CHANGED","familyId":"family_1"}`},
		{MessageId: "m2", Body: "not a signal"},
	}}}
	source := NewSQSSource(SQSSourceConfig{Name: "sqs_source"}, reader, hub)

	count, err := source.ReadAndProcessMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.True(t, received(t, sub.C()))
	// Both are deleted, a bad message would otherwise come back forever.
	assert.Equal(t, []string{"m1", "m2"}, reader.deleted)
}

func TestSQSSourceStopsOnContextDone(t *testing.T) {
	reader := &TestMessageQueueReader{err: errors.New("throttled")}
	source := NewSQSSource(SQSSourceConfig{Name: "sqs_source", ErrorBackoff: 10 * time.Millisecond}, reader, NewHub())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- source.RunModule(ctx) }()

	assert.Eventually(t, func() bool {
		reader.mu.Lock()
		defer reader.mu.Unlock()
		return reader.received >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

type fakeSQSClient struct {
	sqsiface.SQSAPI

	queues   map[string]string
	messages []*sqs.Message
	deleted  []string
}

func (c *fakeSQSClient) GetQueueUrl(input *sqs.GetQueueUrlInput) (*sqs.GetQueueUrlOutput, error) {
	url, ok := c.queues[aws.StringValue(input.QueueName)]
	if !ok {
		return nil, awserr.New(sqs.ErrCodeQueueDoesNotExist, "no such queue", nil)
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String(url)}, nil
}

func (c *fakeSQSClient) ReceiveMessageWithContext(ctx aws.Context, input *sqs.ReceiveMessageInput, opts ...request.Option) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: c.messages}, nil
}

func (c *fakeSQSClient) DeleteMessageWithContext(ctx aws.Context, input *sqs.DeleteMessageInput, opts ...request.Option) (*sqs.DeleteMessageOutput, error) {
	c.deleted = append(c.deleted, aws.StringValue(input.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSMessageQueueReader(t *testing.T) {
	client := &fakeSQSClient{
		queues: map[string]string{"family-changes": "https://sqs.local/family-changes"},
		messages: []*sqs.Message{{
			Body:          aws.String(`{"signalType":"REACTIONS_CHANGED"}`),
			MessageId:     aws.String("m1"),
			ReceiptHandle: aws.String("handle_1"),
			Attributes: map[string]*string{
				sqs.MessageSystemAttributeNameApproximateReceiveCount: aws.String("3"),
			},
		}},
	}

	_, err := NewSQSMessageQueueReaderWithClient(client, "missing", 5)
	assert.Error(t, err)
	_, err = NewSQSMessageQueueReaderWithClient(client, "family-changes", 30)
	assert.Error(t, err)

	reader, err := NewSQSMessageQueueReaderWithClient(client, "family-changes", 5)
	require.NoError(t, err)

	_, err = reader.ReceiveMessages(context.Background(), 11)
	assert.Error(t, err)

	msgs, err := reader.ReceiveMessages(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].MessageId)
	assert.Equal(t, 3, msgs[0].ReceivedTimes)

	require.NoError(t, reader.DeleteMessage(context.Background(), msgs[0]))
	assert.Equal(t, []string{"handle_1"}, client.deleted)
}
