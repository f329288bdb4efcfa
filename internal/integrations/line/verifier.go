package line

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"line-relay/internal/domain"
)

var (
	ErrInvalidSignature = errors.New("line: invalid signature")
	ErrMalformedEvent   = errors.New("line: malformed webhook body")
)

// Verifier authenticates webhook deliveries and extracts the turns the relay
// answers.
type Verifier struct {
	channelSecret string
}

func NewVerifier(channelSecret string) (*Verifier, error) {
	if strings.TrimSpace(channelSecret) == "" {
		return nil, errors.New("line: channel secret must not be empty")
	}
	return &Verifier{channelSecret: channelSecret}, nil
}

// ParseWebhook checks the X-Line-Signature value against body and returns one
// InboundTurn per text or image message event. Other events are skipped, so
// a verification ping or a follow event yields an empty slice.
func (v *Verifier) ParseWebhook(signature string, body []byte) ([]domain.InboundTurn, error) {
	if strings.TrimSpace(signature) == "" || !webhook.ValidateSignature(v.channelSecret, signature, body) {
		return nil, ErrInvalidSignature
	}

	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	turns := make([]domain.InboundTurn, 0, len(cb.Events))
	for _, ev := range cb.Events {
		msg, ok := ev.(webhook.MessageEvent)
		if !ok {
			continue
		}
		turn, ok := toInboundTurn(msg)
		if !ok {
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

func toInboundTurn(e webhook.MessageEvent) (domain.InboundTurn, bool) {
	turn := domain.InboundTurn{
		UserID:     sourceUserID(e.Source),
		ReplyToken: e.ReplyToken,
		ReceivedAt: e.Timestamp,
	}
	switch m := e.Message.(type) {
	case webhook.TextMessageContent:
		turn.Kind = domain.KindText
		turn.Text = m.Text
		turn.MessageID = m.Id
	case webhook.ImageMessageContent:
		turn.Kind = domain.KindImage
		turn.MessageID = m.Id
	default:
		return domain.InboundTurn{}, false
	}
	return turn, true
}

func sourceUserID(src webhook.SourceInterface) string {
	switch s := src.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}
