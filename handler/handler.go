package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"line-relay/internal/dispatch"
	"line-relay/internal/domain"
	"line-relay/internal/integrations/line"
	"line-relay/internal/usecase"
)

const (
	headerSignature     = "X-Line-Signature"
	headerLineStatus    = "X-Line-Status"
	headerCorrelationID = "X-Correlation-Id"
)

type webhookParser interface {
	ParseWebhook(signature string, body []byte) ([]domain.InboundTurn, error)
}

type turnRunner interface {
	Handle(ctx context.Context, in domain.InboundTurn) (usecase.Outcome, error)
}

type resultResponse struct {
	Result string `json:"result"`
}

// Handler serves the LINE webhook. Every turn is validated before any is run
// or queued. With a dispatcher it acknowledges with 202 once every turn is
// queued; without one it runs turns inline and answers 201 or 500.
type Handler struct {
	parser     webhookParser
	relay      turnRunner
	dispatcher dispatch.Dispatcher
	log        *zap.Logger
}

func NewHandler(parser webhookParser, relay turnRunner, dispatcher dispatch.Dispatcher, log *zap.Logger) (*Handler, error) {
	if parser == nil {
		return nil, errors.New("handler: webhook parser must not be nil")
	}
	if relay == nil && dispatcher == nil {
		return nil, errors.New("handler: relay or dispatcher is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{parser: parser, relay: relay, dispatcher: dispatcher, log: log}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(req.Headers, headerCorrelationID)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	log := h.log.With(zap.String("correlationId", correlationID))

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			log.Warn("webhook body is not valid base64", zap.Error(err))
			return respond(http.StatusBadRequest, "bad_request", correlationID), nil
		}
		body = decoded
	}

	turns, err := h.parser.ParseWebhook(headerValue(req.Headers, headerSignature), body)
	switch {
	case errors.Is(err, line.ErrInvalidSignature):
		log.Warn("webhook rejected", zap.Error(err))
		return respond(http.StatusUnauthorized, "unauthorized", correlationID), nil
	case err != nil:
		log.Warn("webhook body rejected", zap.Error(err))
		return respond(http.StatusBadRequest, "bad_request", correlationID), nil
	}

	if len(turns) == 0 {
		return respond(http.StatusOK, "ok", correlationID), nil
	}
	for _, turn := range turns {
		if err := usecase.ValidateInbound(turn); err != nil {
			log.Warn("webhook event rejected", zap.String("userId", turn.UserID), zap.String("kind", string(turn.Kind)), zap.Error(err))
			return respond(http.StatusBadRequest, "bad_request", correlationID), nil
		}
	}

	if h.dispatcher != nil {
		return h.enqueue(ctx, log, turns, correlationID), nil
	}
	return h.runInline(ctx, log, turns, correlationID), nil
}

func (h *Handler) enqueue(ctx context.Context, log *zap.Logger, turns []domain.InboundTurn, correlationID string) events.APIGatewayProxyResponse {
	failed := 0
	for _, turn := range turns {
		if err := h.dispatcher.Dispatch(ctx, turn); err != nil {
			failed++
			log.Error("turn dispatch failed", zap.String("userId", turn.UserID), zap.Error(err))
		}
	}
	if failed > 0 {
		return respond(http.StatusInternalServerError, "error", correlationID)
	}
	log.Info("turns accepted", zap.Int("count", len(turns)))
	return respond(http.StatusAccepted, "accepted", correlationID)
}

func (h *Handler) runInline(ctx context.Context, log *zap.Logger, turns []domain.InboundTurn, correlationID string) events.APIGatewayProxyResponse {
	status := http.StatusCreated
	for _, turn := range turns {
		outcome, err := h.relay.Handle(ctx, turn)
		if err == nil && outcome == usecase.OutcomeReplied {
			continue
		}
		log.Error("turn failed", zap.String("userId", turn.UserID), zap.String("outcome", string(outcome)), zap.Error(err))
		if s := statusFor(err); s > status {
			status = s
		}
	}
	switch status {
	case http.StatusCreated:
		return respond(status, "success", correlationID)
	case http.StatusBadRequest:
		return respond(status, "bad_request", correlationID)
	default:
		return respond(status, "error", correlationID)
	}
}

func statusFor(err error) int {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func respond(status int, result, correlationID string) events.APIGatewayProxyResponse {
	lineStatus := "NG"
	if status >= 200 && status < 300 {
		lineStatus = "OK"
	}
	b, _ := json.Marshal(resultResponse{Result: result})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			headerLineStatus:    lineStatus,
			headerCorrelationID: correlationID,
		},
		Body: string(b),
	}
}

// headerValue looks a header up case-insensitively; API Gateway passes them
// through as sent.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
