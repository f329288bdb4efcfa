// Package dispatch hands parsed turns to a background processor so the
// webhook can acknowledge LINE without waiting for the model.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"line-relay/internal/domain"
)

var (
	ErrQueueFull = errors.New("dispatch: queue is full")
	ErrClosed    = errors.New("dispatch: queue is closed")
)

// Dispatcher accepts a turn for processing after the caller returns.
type Dispatcher interface {
	Dispatch(ctx context.Context, turn domain.InboundTurn) error
}

// EncodeTurn renders a turn as a queue message body.
func EncodeTurn(turn domain.InboundTurn) (string, error) {
	b, err := json.Marshal(turn)
	if err != nil {
		return "", fmt.Errorf("dispatch: encode turn: %w", err)
	}
	return string(b), nil
}

// DecodeTurn parses a queue message body produced by EncodeTurn.
func DecodeTurn(body string) (domain.InboundTurn, error) {
	var turn domain.InboundTurn
	if err := json.Unmarshal([]byte(body), &turn); err != nil {
		return domain.InboundTurn{}, fmt.Errorf("dispatch: decode turn: %w", err)
	}
	if turn.UserID == "" || turn.ReplyToken == "" || turn.Kind == "" {
		return domain.InboundTurn{}, errors.New("dispatch: decode turn: missing userId, replyToken or kind")
	}
	return turn, nil
}
