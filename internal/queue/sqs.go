package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/sentinela-io/sentinela/internal/config"
	"github.com/sentinela-io/sentinela/internal/pkg/errors"
)

// SQSQueue adapts the queue contract onto AWS SQS. Visibility is leased
// per receive and renewed through ChangeMessageVisibility
type SQSQueue struct {
	client     *sqs.Client
	queueURL   string
	visibility time.Duration
}

// NewSQSQueue builds an SQS-backed queue from the application queue
// configuration, resolving or creating the queue as configured
func NewSQSQueue(ctx context.Context, cfg config.QueueConfig) (*SQSQueue, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, errors.Fatal("failed to load aws configuration", err)
	}
	client := sqs.NewFromConfig(awsCfg)

	queueURL := cfg.URL
	if queueURL == "" {
		queueURL, err = resolveQueueURL(ctx, client, cfg)
		if err != nil {
			return nil, err
		}
	}

	return &SQSQueue{
		client:     client,
		queueURL:   queueURL,
		visibility: cfg.VisibilityDuration(),
	}, nil
}

func resolveQueueURL(ctx context.Context, client *sqs.Client, cfg config.QueueConfig) (string, error) {
	out, err := client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(cfg.Name),
	})
	if err == nil {
		return aws.ToString(out.QueueUrl), nil
	}
	if !cfg.CreateQueue {
		return "", errors.Fatal("failed to resolve sqs queue url", err)
	}

	created, err := client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(cfg.Name),
	})
	if err != nil {
		return "", errors.Fatal("failed to create sqs queue", err)
	}
	return aws.ToString(created.QueueUrl), nil
}

func (q *SQSQueue) Send(ctx context.Context, kind Kind, payload interface{}) error {
	body, err := Encode(kind, payload)
	if err != nil {
		return err
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return errors.QueueError("failed to send sqs message", err)
	}
	return nil
}

func (q *SQSQueue) Receive(ctx context.Context, wait time.Duration) (*Message, error) {
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(q.queueURL),
		MaxNumberOfMessages: 1,
		WaitTimeSeconds:     int32(wait / time.Second),
		VisibilityTimeout:   int32(q.visibility / time.Second),
	})
	if err != nil {
		return nil, errors.QueueError("failed to receive sqs message", err)
	}
	if len(out.Messages) == 0 {
		return nil, nil
	}

	raw := out.Messages[0]
	kind, payload, err := Decode([]byte(aws.ToString(raw.Body)))
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:            aws.ToString(raw.MessageId),
		Kind:          kind,
		Body:          json.RawMessage(payload),
		ReceiptHandle: aws.ToString(raw.ReceiptHandle),
	}, nil
}

func (q *SQSQueue) ExtendVisibility(ctx context.Context, msg *Message, d time.Duration) error {
	_, err := q.client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(q.queueURL),
		ReceiptHandle:     aws.String(msg.ReceiptHandle),
		VisibilityTimeout: int32(d / time.Second),
	})
	if err != nil {
		return errors.QueueError("failed to extend sqs message visibility", err)
	}
	return nil
}

func (q *SQSQueue) Ack(ctx context.Context, msg *Message) error {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: aws.String(msg.ReceiptHandle),
	})
	if err != nil {
		return errors.QueueError("failed to delete sqs message", err)
	}
	return nil
}

func (q *SQSQueue) Nack(ctx context.Context, msg *Message) error {
	return q.ExtendVisibility(ctx, msg, 0)
}
