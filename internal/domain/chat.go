package domain

// Role tags a message for the model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the payload carried by a ContentBlock.
type BlockType string

const (
	BlockText  BlockType = "text"
	BlockImage BlockType = "image"
)

// ImagePayload is an inlined image sent to a multimodal model.
// Ref is the durable reference (object URL or platform message id).
type ImagePayload struct {
	MediaType string
	Data      []byte
	Ref       string
}

// ContentBlock is one part of a model message.
type ContentBlock struct {
	Type  BlockType
	Text  string
	Image *ImagePayload
}

// Message is the provider-agnostic chat message shape consumed by the model
// gateways.
type Message struct {
	Role    Role
	Content []ContentBlock
}

// TextMessage builds a single-block text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{{Type: BlockText, Text: text}}}
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type != BlockText {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

// HasImage reports whether any block carries an image.
func (m Message) HasImage() bool {
	for _, b := range m.Content {
		if b.Type == BlockImage {
			return true
		}
	}
	return false
}

// ModelRequest is assembled per call and never persisted.
type ModelRequest struct {
	Model     string
	MaxTokens int
	Messages  []Message
}
