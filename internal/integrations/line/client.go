package line

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// MaxTextLength is the LINE limit on a single text message, in characters.
const MaxTextLength = 5000

type messagingAPI interface {
	ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	GetProfile(userID string) (*messaging_api.UserProfileResponse, error)
}

type blobAPI interface {
	GetMessageContent(messageID string) (*http.Response, error)
}

// Client is the relay's outbound side of LINE: replies, profiles and message
// content.
type Client struct {
	api  messagingAPI
	blob blobAPI
}

// New builds a Client from a channel access token.
func New(channelAccessToken string) (*Client, error) {
	if strings.TrimSpace(channelAccessToken) == "" {
		return nil, errors.New("line: channel access token must not be empty")
	}
	api, err := messaging_api.NewMessagingApiAPI(channelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("line: messaging api: %w", err)
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(channelAccessToken)
	if err != nil {
		return nil, fmt.Errorf("line: blob api: %w", err)
	}
	return newClient(api, blob)
}

func newClient(api messagingAPI, blob blobAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("line: messaging api must not be nil")
	}
	if blob == nil {
		return nil, errors.New("line: blob api must not be nil")
	}
	return &Client{api: api, blob: blob}, nil
}

// Reply sends text as a single text message, truncated to MaxTextLength.
func (c *Client) Reply(_ context.Context, replyToken, text string) error {
	if strings.TrimSpace(replyToken) == "" {
		return errors.New("line: reply token is required")
	}
	_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: truncate(text, MaxTextLength)},
		},
	})
	if err != nil {
		return fmt.Errorf("line: ReplyMessage: %w", err)
	}
	return nil
}

// Language returns the language code from the user's profile, or "" when the
// profile does not expose one.
func (c *Client) Language(_ context.Context, userID string) (string, error) {
	profile, err := c.api.GetProfile(userID)
	if err != nil {
		return "", fmt.Errorf("line: GetProfile: %w", err)
	}
	if profile == nil {
		return "", nil
	}
	return profile.Language, nil
}

// FetchContent streams the binary content of a message. The caller closes it.
func (c *Client) FetchContent(_ context.Context, messageID string) (io.ReadCloser, error) {
	res, err := c.blob.GetMessageContent(messageID)
	if err != nil {
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		return nil, fmt.Errorf("line: GetMessageContent: %w", err)
	}
	if res == nil || res.Body == nil {
		return nil, errors.New("line: GetMessageContent: empty response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_ = res.Body.Close()
		return nil, fmt.Errorf("line: GetMessageContent: unexpected status %d", res.StatusCode)
	}
	return res.Body, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
