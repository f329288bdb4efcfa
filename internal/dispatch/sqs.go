package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"line-relay/internal/domain"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue enqueues turns for the worker Lambda. FIFO queues are grouped by
// user so one user's turns are processed in order.
type SQSQueue struct {
	api      sqsAPI
	queueURL string
	fifo     bool
	newID    func() string
}

func NewSQSQueue(api sqsAPI, queueURL string) (*SQSQueue, error) {
	if api == nil {
		return nil, errors.New("dispatch: sqs client must not be nil")
	}
	queueURL = strings.TrimSpace(queueURL)
	if queueURL == "" {
		return nil, errors.New("dispatch: queue url must not be empty")
	}
	return &SQSQueue{
		api:      api,
		queueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
		newID:    func() string { return uuid.NewString() },
	}, nil
}

func (q *SQSQueue) Dispatch(ctx context.Context, turn domain.InboundTurn) error {
	body, err := EncodeTurn(turn)
	if err != nil {
		return err
	}
	taskID := q.newID()
	in := &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(body),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"taskId": {DataType: aws.String("String"), StringValue: aws.String(taskID)},
		},
	}
	if q.fifo {
		in.MessageGroupId = aws.String(turn.UserID)
		in.MessageDeduplicationId = aws.String(taskID)
	}
	if _, err := q.api.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("dispatch: SendMessage: %w", err)
	}
	return nil
}
