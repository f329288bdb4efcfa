package handler

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"line-relay/internal/dispatch"
	"line-relay/internal/domain"
	"line-relay/internal/usecase"
)

// Worker consumes queued turns. Reply tokens are single-use and a bad body
// never becomes readable, so no record is reported back for redelivery:
// failures are logged and dropped.
type Worker struct {
	relay turnRunner
	log   *zap.Logger
}

func NewWorker(relay turnRunner, log *zap.Logger) (*Worker, error) {
	if relay == nil {
		return nil, errors.New("handler: relay must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{relay: relay, log: log}, nil
}

func (w *Worker) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range ev.Records {
		log := w.log.With(zap.String("messageId", record.MessageId))
		turn, err := dispatch.DecodeTurn(record.Body)
		if err != nil {
			log.Error("queued turn is unreadable, dropping", zap.Error(err))
			continue
		}
		if err := usecase.ValidateInbound(turn); err != nil {
			log.Error("queued turn is invalid, dropping", zap.String("userId", turn.UserID), zap.Error(err))
			continue
		}
		outcome, err := w.relay.Handle(ctx, turn)
		if err != nil {
			log.Error("queued turn failed", zap.String("userId", turn.UserID), zap.String("outcome", string(outcome)), zap.Error(err))
			continue
		}
		log.Debug("queued turn done", zap.String("userId", turn.UserID), zap.String("outcome", string(outcome)))
	}
	return resp, nil
}

// Run adapts the relay to a local queue.
func (w *Worker) Run(ctx context.Context, turn domain.InboundTurn) {
	if _, err := w.relay.Handle(ctx, turn); err != nil {
		w.log.Error("local turn failed", zap.String("userId", turn.UserID), zap.Error(err))
	}
}
