package notifier

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sqs"
	"github.com/aws/aws-sdk-go/service/sqs/sqsiface"
	"github.com/pkg/errors"

	"github.com/Luismorlan/familyfeed/model"
	Logger "github.com/Luismorlan/familyfeed/utils/log"
)

type MessageQueueMessage struct {
	Body          string
	MessageId     string
	ReceivedTimes int
	ReceiptHandle string
}

type MessageQueueReader interface {
	ReceiveMessages(ctx context.Context, maxNumberOfMessages int64) ([]*MessageQueueMessage, error)
	DeleteMessage(ctx context.Context, msg *MessageQueueMessage) error
}

type SQSMessageQueueReader struct {
	readTimeout int64
	queueName   string
	url         string
	client      sqsiface.SQSAPI
}

// NewSQSMessageQueueReader resolves queueName with credentials from the
// shared config (~/.aws/credentials) or the environment.
func NewSQSMessageQueueReader(queueName string, readingTimeout int64) (*SQSMessageQueueReader, error) {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	return NewSQSMessageQueueReaderWithClient(sqs.New(sess), queueName, readingTimeout)
}

func NewSQSMessageQueueReaderWithClient(client sqsiface.SQSAPI, queueName string, readingTimeout int64) (*SQSMessageQueueReader, error) {
	if queueName == "" {
		return nil, errors.New("please specify queue name")
	}
	if readingTimeout < 0 || readingTimeout > 20 {
		return nil, errors.New("readingTimeout should be >= 0 and <= 20")
	}

	url, err := client.GetQueueUrl(&sqs.GetQueueUrlInput{
		QueueName: aws.String(queueName),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == sqs.ErrCodeQueueDoesNotExist {
			return nil, errors.Errorf("unable to find queue %q", queueName)
		}
		return nil, errors.Wrapf(err, "unable to resolve queue %q", queueName)
	}

	return &SQSMessageQueueReader{
		queueName:   queueName,
		url:         aws.StringValue(url.QueueUrl),
		readTimeout: readingTimeout,
		client:      client,
	}, nil
}

func (reader *SQSMessageQueueReader) ReceiveMessages(ctx context.Context, maxNumberOfMessages int64) ([]*MessageQueueMessage, error) {
	if maxNumberOfMessages < 1 || maxNumberOfMessages > 10 {
		return nil, errors.New("maxNumberOfMessages should be >= 1 and <= 10")
	}

	result, err := reader.client.ReceiveMessageWithContext(ctx, &sqs.ReceiveMessageInput{
		QueueUrl: aws.String(reader.url),
		AttributeNames: aws.StringSlice([]string{
			sqs.MessageSystemAttributeNameApproximateReceiveCount,
		}),
		MaxNumberOfMessages: aws.Int64(maxNumberOfMessages),
		WaitTimeSeconds:     aws.Int64(reader.readTimeout),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %q", reader.queueName)
	}

	res := make([]*MessageQueueMessage, 0, len(result.Messages))
	for _, msg := range result.Messages {
		count := 0
		if val, ok := msg.Attributes[sqs.MessageSystemAttributeNameApproximateReceiveCount]; ok {
			count, _ = strconv.Atoi(aws.StringValue(val))
		}
		res = append(res, &MessageQueueMessage{
			Body:          aws.StringValue(msg.Body),
			MessageId:     aws.StringValue(msg.MessageId),
			ReceivedTimes: count,
			ReceiptHandle: aws.StringValue(msg.ReceiptHandle),
		})
	}
	return res, nil
}

func (reader *SQSMessageQueueReader) DeleteMessage(ctx context.Context, msg *MessageQueueMessage) error {
	_, err := reader.client.DeleteMessageWithContext(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(reader.url),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	return errors.Wrapf(err, "delete message %s", msg.MessageId)
}

type SQSSourceConfig struct {
	Name      string
	BatchSize int64
	// Pause after a failed receive.
	ErrorBackoff time.Duration
}

// SQSSource drains change signals from a queue into the local hub. Every
// message is deleted once handled, malformed ones included.
type SQSSource struct {
	Config SQSSourceConfig

	Reader MessageQueueReader
	hub    *Hub
}

func NewSQSSource(config SQSSourceConfig, reader MessageQueueReader, hub *Hub) *SQSSource {
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.ErrorBackoff <= 0 {
		config.ErrorBackoff = 5 * time.Second
	}
	return &SQSSource{Config: config, Reader: reader, hub: hub}
}

// ReadAndProcessMessages reads one batch and publishes its signals. Returns
// the number of valid signals.
func (s *SQSSource) ReadAndProcessMessages(ctx context.Context) (int, error) {
	msgs, err := s.Reader.ReceiveMessages(ctx, s.Config.BatchSize)
	if err != nil {
		return 0, err
	}

	successCount := 0
	for _, msg := range msgs {
		if signal, err := model.UnmarshalSignal(msg.Body); err != nil {
			Logger.Log.Errorf("%s: fail process message %s: %s", s.Name(), msg.MessageId, err)
		} else {
			s.hub.Publish(signal)
			successCount++
		}
		if err := s.Reader.DeleteMessage(ctx, msg); err != nil {
			Logger.Log.Errorf("%s: fail to delete message from SQS: %s", s.Name(), err)
		}
	}
	return successCount, nil
}

func (s *SQSSource) RunModule(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := s.ReadAndProcessMessages(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			Logger.Log.Errorf("%s: fail read messages from queue: %s", s.Name(), err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.Config.ErrorBackoff):
			}
		}
	}
}

func (s *SQSSource) Name() string {
	return s.Config.Name
}
