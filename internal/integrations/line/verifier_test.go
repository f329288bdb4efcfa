package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"line-relay/internal/domain"
)

const testSecret = "channel-secret"

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func mustVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(testSecret)
	require.NoError(t, err)
	return v
}

const textEvent = `{"type":"message","mode":"active","timestamp":1700000000000,` +
	`"source":{"type":"user","userId":"U1"},"webhookEventId":"01HA","deliveryContext":{"isRedelivery":false},` +
	`"replyToken":"rt-1","message":{"type":"text","id":"m-1","quoteToken":"q1","text":"hello"}}`

const imageEvent = `{"type":"message","mode":"active","timestamp":1700000000500,` +
	`"source":{"type":"group","groupId":"G1","userId":"U2"},"webhookEventId":"01HB","deliveryContext":{"isRedelivery":false},` +
	`"replyToken":"rt-2","message":{"type":"image","id":"m-2","quoteToken":"q2","contentProvider":{"type":"line"}}}`

const followEvent = `{"type":"follow","mode":"active","timestamp":1700000000000,` +
	`"source":{"type":"user","userId":"U3"},"webhookEventId":"01HC","deliveryContext":{"isRedelivery":false},` +
	`"replyToken":"rt-3","follow":{"isUnblocked":false}}`

const stickerEvent = `{"type":"message","mode":"active","timestamp":1700000000000,` +
	`"source":{"type":"user","userId":"U4"},"webhookEventId":"01HD","deliveryContext":{"isRedelivery":false},` +
	`"replyToken":"rt-4","message":{"type":"sticker","id":"m-4","quoteToken":"q4","packageId":"1","stickerId":"2","stickerResourceType":"STATIC"}}`

func body(events ...string) string {
	out := `{"destination":"Ubot","events":[`
	for i, e := range events {
		if i > 0 {
			out += ","
		}
		out += e
	}
	return out + "]}"
}

func TestNewVerifier_EmptySecret(t *testing.T) {
	_, err := NewVerifier(" ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "must not be empty")
}

func TestParseWebhook_TextAndImage(t *testing.T) {
	raw := body(textEvent, imageEvent)
	turns, err := mustVerifier(t).ParseWebhook(sign(raw), []byte(raw))
	require.NoError(t, err)
	require.Equal(t, []domain.InboundTurn{
		{UserID: "U1", ReplyToken: "rt-1", Kind: domain.KindText, Text: "hello", MessageID: "m-1", ReceivedAt: 1700000000000},
		{UserID: "U2", ReplyToken: "rt-2", Kind: domain.KindImage, MessageID: "m-2", ReceivedAt: 1700000000500},
	}, turns)
}

func TestParseWebhook_SkipsOtherEvents(t *testing.T) {
	raw := body(followEvent, stickerEvent)
	turns, err := mustVerifier(t).ParseWebhook(sign(raw), []byte(raw))
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestParseWebhook_VerificationPing(t *testing.T) {
	raw := body()
	turns, err := mustVerifier(t).ParseWebhook(sign(raw), []byte(raw))
	require.NoError(t, err)
	require.Empty(t, turns)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	raw := body(textEvent)
	v := mustVerifier(t)

	_, err := v.ParseWebhook("", []byte(raw))
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = v.ParseWebhook(sign(raw+" "), []byte(raw))
	require.ErrorIs(t, err, ErrInvalidSignature)

	_, err = v.ParseWebhook("not-base64!", []byte(raw))
	require.ErrorIs(t, err, ErrInvalidSignature)
}

func TestParseWebhook_Malformed(t *testing.T) {
	raw := `{"events":`
	_, err := mustVerifier(t).ParseWebhook(sign(raw), []byte(raw))
	require.ErrorIs(t, err, ErrMalformedEvent)
}
