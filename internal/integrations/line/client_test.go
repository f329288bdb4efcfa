package line

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/require"
)

type fakeMessaging struct {
	replies    []*messaging_api.ReplyMessageRequest
	replyErr   error
	profile    *messaging_api.UserProfileResponse
	profileErr error
}

func (f *fakeMessaging) ReplyMessage(req *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	f.replies = append(f.replies, req)
	if f.replyErr != nil {
		return nil, f.replyErr
	}
	return &messaging_api.ReplyMessageResponse{}, nil
}

func (f *fakeMessaging) GetProfile(string) (*messaging_api.UserProfileResponse, error) {
	return f.profile, f.profileErr
}

type fakeBlob struct {
	res *http.Response
	err error
}

func (f *fakeBlob) GetMessageContent(string) (*http.Response, error) {
	return f.res, f.err
}

func mustClient(t *testing.T, api *fakeMessaging, blob *fakeBlob) *Client {
	t.Helper()
	c, err := newClient(api, blob)
	require.NoError(t, err)
	return c
}

func TestNew_EmptyToken(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestNewClient_NilAPIs(t *testing.T) {
	_, err := newClient(nil, &fakeBlob{})
	require.Error(t, err)
	_, err = newClient(&fakeMessaging{}, nil)
	require.Error(t, err)
}

func TestReply_SendsTextMessage(t *testing.T) {
	api := &fakeMessaging{}
	c := mustClient(t, api, &fakeBlob{})

	require.NoError(t, c.Reply(context.Background(), "rt-1", "hello"))
	require.Len(t, api.replies, 1)
	require.Equal(t, "rt-1", api.replies[0].ReplyToken)
	require.Equal(t, []messaging_api.MessageInterface{messaging_api.TextMessage{Text: "hello"}}, api.replies[0].Messages)
}

func TestReply_Truncates(t *testing.T) {
	api := &fakeMessaging{}
	c := mustClient(t, api, &fakeBlob{})

	long := strings.Repeat("あ", MaxTextLength+10)
	require.NoError(t, c.Reply(context.Background(), "rt-1", long))
	got := api.replies[0].Messages[0].(messaging_api.TextMessage).Text
	require.Equal(t, MaxTextLength, len([]rune(got)))
}

func TestReply_Errors(t *testing.T) {
	api := &fakeMessaging{replyErr: errors.New("Invalid reply token")}
	c := mustClient(t, api, &fakeBlob{})

	err := c.Reply(context.Background(), "rt-1", "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ReplyMessage")

	err = c.Reply(context.Background(), "", "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "reply token is required")
}

func TestLanguage(t *testing.T) {
	c := mustClient(t, &fakeMessaging{profile: &messaging_api.UserProfileResponse{UserId: "U1", Language: "en"}}, &fakeBlob{})
	lang, err := c.Language(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, "en", lang)

	c = mustClient(t, &fakeMessaging{profileErr: errors.New("not a friend")}, &fakeBlob{})
	_, err = c.Language(context.Background(), "U1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "GetProfile")
}

func TestFetchContent(t *testing.T) {
	res := &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("jpeg-bytes"))}
	c := mustClient(t, &fakeMessaging{}, &fakeBlob{res: res})

	rc, err := c.FetchContent(context.Background(), "m-1")
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "jpeg-bytes", string(data))
}

func TestFetchContent_Errors(t *testing.T) {
	c := mustClient(t, &fakeMessaging{}, &fakeBlob{err: errors.New("timeout")})
	_, err := c.FetchContent(context.Background(), "m-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeout")

	res := &http.Response{StatusCode: 404, Body: io.NopCloser(strings.NewReader(""))}
	c = mustClient(t, &fakeMessaging{}, &fakeBlob{res: res})
	_, err = c.FetchContent(context.Background(), "m-1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected status 404")
}
