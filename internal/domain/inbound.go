package domain

// MessageKind is the kind of user message the relay answers.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

// InboundTurn is a parsed webhook message event. It is also the queued task
// body, so it carries JSON tags.
type InboundTurn struct {
	UserID     string      `json:"userId"`
	ReplyToken string      `json:"replyToken"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	MessageID  string      `json:"messageId,omitempty"`
	ReceivedAt int64       `json:"receivedAt,omitempty"`
}
