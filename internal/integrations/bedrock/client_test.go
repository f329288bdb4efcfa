package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/stretchr/testify/require"

	"line-relay/internal/domain"
)

type fakeBedrock struct {
	out  []byte
	err  error
	last *bedrockruntime.InvokeModelInput
}

func (f *fakeBedrock) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: f.out}, nil
}

func conversation() []domain.Message {
	return []domain.Message{
		domain.TextMessage(domain.RoleUser, "A"),
		domain.TextMessage(domain.RoleAssistant, "B"),
		domain.TextMessage(domain.RoleUser, "E"),
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(nil, FormatMessages)
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be nil")

	_, err = NewClient(&fakeBedrock{}, "chat")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown format")

	c, err := NewClient(&fakeBedrock{}, "")
	require.NoError(t, err)
	require.Equal(t, FormatMessages, c.format)
}

func TestComplete_Messages(t *testing.T) {
	api := &fakeBedrock{out: []byte(`{"content":[{"type":"text","text":" Hello "},{"type":"text","text":"there"}],"stop_reason":"end_turn"}`)}
	c, err := NewClient(api, FormatMessages)
	require.NoError(t, err)

	answer, err := c.Complete(context.Background(), domain.ModelRequest{Model: "anthropic.claude-3-haiku", MaxTokens: 512, Messages: conversation()})
	require.NoError(t, err)
	require.Equal(t, "Hello there", answer)
	require.Equal(t, "anthropic.claude-3-haiku", *api.last.ModelId)
	require.Equal(t, "application/json", *api.last.ContentType)

	var body messagesRequest
	require.NoError(t, json.Unmarshal(api.last.Body, &body))
	require.Equal(t, anthropicVersion, body.AnthropicVersion)
	require.Equal(t, 512, body.MaxTokens)
	require.Len(t, body.Messages, 3)
	require.Equal(t, "user", body.Messages[0].Role)
	require.Equal(t, "A", body.Messages[0].Content[0].Text)
	require.Equal(t, "assistant", body.Messages[1].Role)
	require.Equal(t, "E", body.Messages[2].Content[0].Text)
}

func TestComplete_MessagesWithImage(t *testing.T) {
	api := &fakeBedrock{out: []byte(`{"content":[{"type":"text","text":"a cat"}]}`)}
	c, err := NewClient(api, FormatMessages)
	require.NoError(t, err)

	req := domain.ModelRequest{Model: "m", Messages: []domain.Message{{
		Role: domain.RoleUser,
		Content: []domain.ContentBlock{
			{Type: domain.BlockImage, Image: &domain.ImagePayload{Data: []byte("jpg")}},
			{Type: domain.BlockText, Text: "what is this"},
		},
	}}}
	answer, err := c.Complete(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "a cat", answer)

	var body messagesRequest
	require.NoError(t, json.Unmarshal(api.last.Body, &body))
	require.Equal(t, defaultMaxTokens, body.MaxTokens)
	img := body.Messages[0].Content[0]
	require.Equal(t, "image", img.Type)
	require.Equal(t, "base64", img.Source.Type)
	require.Equal(t, "image/jpeg", img.Source.MediaType)
	require.Equal(t, "anBn", img.Source.Data)
}

func TestComplete_TextCompletion(t *testing.T) {
	api := &fakeBedrock{out: []byte(`{"completion":" Sure.","stop_reason":"stop_sequence"}`)}
	c, err := NewClient(api, FormatTextCompletion)
	require.NoError(t, err)

	answer, err := c.Complete(context.Background(), domain.ModelRequest{Model: "anthropic.claude-v2", MaxTokens: 300, Messages: conversation()})
	require.NoError(t, err)
	require.Equal(t, "Sure.", answer)

	var body completionRequest
	require.NoError(t, json.Unmarshal(api.last.Body, &body))
	require.Equal(t, "\n\nHuman: A\n\nAssistant: B\n\nHuman: E\n\nAssistant:", body.Prompt)
	require.Equal(t, 300, body.MaxTokensToSample)
}

func TestComplete_TextCompletionRejectsImages(t *testing.T) {
	api := &fakeBedrock{}
	c, err := NewClient(api, FormatTextCompletion)
	require.NoError(t, err)

	req := domain.ModelRequest{Model: "m", Messages: []domain.Message{{
		Role:    domain.RoleUser,
		Content: []domain.ContentBlock{{Type: domain.BlockImage, Image: &domain.ImagePayload{Data: []byte("x")}}},
	}}}
	_, err = c.Complete(context.Background(), req)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not accept images")
	require.Nil(t, api.last)
}

func TestComplete_Errors(t *testing.T) {
	c, err := NewClient(&fakeBedrock{err: errors.New("ThrottlingException")}, FormatMessages)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), domain.ModelRequest{Model: " "})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model must not be empty")

	_, err = c.Complete(context.Background(), domain.ModelRequest{Model: "m", Messages: conversation()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "InvokeModel")

	c, err = NewClient(&fakeBedrock{out: []byte(`{`)}, FormatMessages)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), domain.ModelRequest{Model: "m", Messages: conversation()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decode response")
}
