package bedrock

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"line-relay/internal/domain"
)

// Format selects the request body shape sent to InvokeModel.
type Format string

const (
	// FormatMessages is the Anthropic messages body, which accepts images.
	FormatMessages Format = "messages"
	// FormatTextCompletion is the legacy Human/Assistant prompt body.
	FormatTextCompletion Format = "text-completion"

	anthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens = 2048
)

// bedrockAPI is the subset of the Bedrock runtime client used here.
type bedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client is a ModelGateway over Bedrock InvokeModel.
type Client struct {
	api    bedrockAPI
	format Format
}

func NewClient(api bedrockAPI, format Format) (*Client, error) {
	if api == nil {
		return nil, errors.New("bedrock: api client must not be nil")
	}
	switch format {
	case "":
		format = FormatMessages
	case FormatMessages, FormatTextCompletion:
	default:
		return nil, fmt.Errorf("bedrock: unknown format %q", format)
	}
	return &Client{api: api, format: format}, nil
}

type messagesRequest struct {
	AnthropicVersion string            `json:"anthropic_version"`
	MaxTokens        int               `json:"max_tokens"`
	Messages         []messagesMessage `json:"messages"`
}

type messagesMessage struct {
	Role    string         `json:"role"`
	Content []messagesPart `json:"content"`
}

type messagesPart struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *imageSource `json:"source,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type completionRequest struct {
	Prompt            string `json:"prompt"`
	MaxTokensToSample int    `json:"max_tokens_to_sample"`
}

type completionResponse struct {
	Completion string `json:"completion"`
	StopReason string `json:"stop_reason"`
}

// Complete invokes req.Model and returns the generated text.
func (c *Client) Complete(ctx context.Context, req domain.ModelRequest) (string, error) {
	if strings.TrimSpace(req.Model) == "" {
		return "", errors.New("bedrock: model must not be empty")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var (
		body []byte
		err  error
	)
	switch c.format {
	case FormatTextCompletion:
		body, err = buildCompletionBody(req.Messages, maxTokens)
	default:
		body, err = buildMessagesBody(req.Messages, maxTokens)
	}
	if err != nil {
		return "", err
	}

	out, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(req.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock: InvokeModel: %w", err)
	}

	if c.format == FormatTextCompletion {
		var resp completionResponse
		if err := json.Unmarshal(out.Body, &resp); err != nil {
			return "", fmt.Errorf("bedrock: decode response: %w", err)
		}
		return strings.TrimSpace(resp.Completion), nil
	}

	var resp messagesResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("bedrock: decode response: %w", err)
	}
	var b strings.Builder
	for _, part := range resp.Content {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func buildMessagesBody(msgs []domain.Message, maxTokens int) ([]byte, error) {
	out := make([]messagesMessage, 0, len(msgs))
	for _, m := range msgs {
		parts := make([]messagesPart, 0, len(m.Content))
		for _, block := range m.Content {
			switch block.Type {
			case domain.BlockText:
				parts = append(parts, messagesPart{Type: "text", Text: block.Text})
			case domain.BlockImage:
				if block.Image == nil {
					continue
				}
				mediaType := block.Image.MediaType
				if mediaType == "" {
					mediaType = "image/jpeg"
				}
				parts = append(parts, messagesPart{
					Type: "image",
					Source: &imageSource{
						Type:      "base64",
						MediaType: mediaType,
						Data:      base64.StdEncoding.EncodeToString(block.Image.Data),
					},
				})
			}
		}
		out = append(out, messagesMessage{Role: string(m.Role), Content: parts})
	}
	body, err := json.Marshal(messagesRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Messages:         out,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}
	return body, nil
}

// buildCompletionBody renders the conversation as alternating Human and
// Assistant turns ending with an open Assistant turn.
func buildCompletionBody(msgs []domain.Message, maxTokens int) ([]byte, error) {
	var b strings.Builder
	for _, m := range msgs {
		if m.HasImage() {
			return nil, errors.New("bedrock: text-completion format does not accept images")
		}
		switch m.Role {
		case domain.RoleUser:
			b.WriteString("\n\nHuman: ")
		case domain.RoleAssistant:
			b.WriteString("\n\nAssistant: ")
		default:
			continue
		}
		b.WriteString(m.Text())
	}
	b.WriteString("\n\nAssistant:")

	body, err := json.Marshal(completionRequest{Prompt: b.String(), MaxTokensToSample: maxTokens})
	if err != nil {
		return nil, fmt.Errorf("bedrock: marshal request: %w", err)
	}
	return body, nil
}
