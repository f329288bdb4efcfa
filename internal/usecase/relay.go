package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"line-relay/internal/domain"
)

const (
	defaultMaxTokens     = 2048
	defaultImageMaxBytes = 5 << 20
	defaultLanguage      = "ja"
	imageRefPrefix       = "[image] "
)

var errImageTooLarge = errors.New("usecase: image exceeds size limit")

// HistoryStore owns durable turns for one history policy.
type HistoryStore interface {
	Policy() domain.HistoryPolicy
	History(ctx context.Context, userID string) (domain.History, error)
	Persist(ctx context.Context, userID string, prior domain.History, ex domain.Exchange) error
	Clear(ctx context.Context, userID string) error
}

type ModelGateway interface {
	Complete(ctx context.Context, req domain.ModelRequest) (string, error)
}

type ReplySink interface {
	Reply(ctx context.Context, replyToken, text string) error
}

type ContentFetcher interface {
	FetchContent(ctx context.Context, messageID string) (io.ReadCloser, error)
}

type ProfileFetcher interface {
	Language(ctx context.Context, userID string) (string, error)
}

// ImageUploader stores an image durably and returns its public URL.
type ImageUploader interface {
	Upload(ctx context.Context, userID string, body io.ReadSeeker) (string, error)
}

// Outcome is the terminal state of one handled turn.
type Outcome string

const (
	OutcomeReplied Outcome = "replied"
	OutcomeFailed  Outcome = "failed"
)

// Dependencies groups the collaborators of a Relay. Images is optional.
type Dependencies struct {
	History  HistoryStore
	Model    ModelGateway
	Replies  ReplySink
	Content  ContentFetcher
	Profiles ProfileFetcher
	Images   ImageUploader
}

type RelayConfig struct {
	Model           string
	MaxTokens       int
	FallbackMessage string
	DefaultLanguage string
	ImageMaxBytes   int64
	TempDir         string
}

// Relay runs one inbound turn end to end: assemble context, call the model,
// persist, reply.
type Relay struct {
	deps Dependencies
	cfg  RelayConfig
	log  *zap.Logger
	now  func() time.Time
}

func NewRelay(deps Dependencies, cfg RelayConfig, log *zap.Logger) (*Relay, error) {
	if deps.History == nil {
		return nil, errors.New("usecase: history store must not be nil")
	}
	if deps.Model == nil {
		return nil, errors.New("usecase: model gateway must not be nil")
	}
	if deps.Replies == nil {
		return nil, errors.New("usecase: reply sink must not be nil")
	}
	if deps.Content == nil {
		return nil, errors.New("usecase: content fetcher must not be nil")
	}
	if deps.Profiles == nil {
		return nil, errors.New("usecase: profile fetcher must not be nil")
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		return nil, errors.New("usecase: fallback message must not be empty")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.ImageMaxBytes <= 0 {
		cfg.ImageMaxBytes = defaultImageMaxBytes
	}
	if strings.TrimSpace(cfg.DefaultLanguage) == "" {
		cfg.DefaultLanguage = defaultLanguage
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{deps: deps, cfg: cfg, log: log, now: time.Now}, nil
}

// Handle processes one turn. Model failures are answered with the fallback
// message and reported as OutcomeFailed; they are never retried.
func (r *Relay) Handle(ctx context.Context, in domain.InboundTurn) (Outcome, error) {
	if err := ValidateInbound(in); err != nil {
		return OutcomeFailed, err
	}
	log := r.log.With(zap.String("userId", in.UserID), zap.String("kind", string(in.Kind)))

	prior, loaded := r.loadHistory(ctx, in.UserID)

	var (
		req         domain.ModelRequest
		userContent string
	)
	switch in.Kind {
	case domain.KindText:
		userContent = strings.TrimSpace(in.Text)
		req = AssembleText(prior, userContent, r.cfg.Model, r.cfg.MaxTokens)
	case domain.KindImage:
		var err error
		req, userContent, err = r.prepareImage(ctx, in)
		if err != nil {
			return r.fail(ctx, in, "image_fetch_error", err, false)
		}
	}
	log.Debug("context assembled", zap.Int("messages", len(req.Messages)))

	answer, err := r.deps.Model.Complete(ctx, req)
	if err != nil {
		return r.fail(ctx, in, "model_error", err, true)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return r.fail(ctx, in, "model_empty_answer", errors.New("usecase: model returned an empty answer"), true)
	}

	if !loaded && prior.Policy == domain.PolicyCacheTTL {
		// Overwriting the blob from an empty prior would drop the live context.
		log.Warn("history write skipped after failed lookup")
	} else {
		r.persist(ctx, in.UserID, prior, userContent, answer)
	}

	if err := r.deps.Replies.Reply(ctx, in.ReplyToken, answer); err != nil {
		log.Error("reply delivery failed", zap.Error(err))
		return OutcomeFailed, newError(ErrorUpstream, "reply_error", err)
	}
	log.Info("turn replied")
	return OutcomeReplied, nil
}

// ValidateInbound reports a turn the relay can never answer as an
// ErrorInvalidInput error.
func ValidateInbound(in domain.InboundTurn) error {
	if reason := invalidReason(in); reason != "" {
		return newError(ErrorInvalidInput, reason, nil)
	}
	return nil
}

func invalidReason(in domain.InboundTurn) string {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return "missing_user_id"
	case strings.TrimSpace(in.ReplyToken) == "":
		return "missing_reply_token"
	}
	switch in.Kind {
	case domain.KindText:
		if strings.TrimSpace(in.Text) == "" {
			return "empty_text"
		}
	case domain.KindImage:
		if strings.TrimSpace(in.MessageID) == "" {
			return "missing_message_id"
		}
	default:
		return "unsupported_kind"
	}
	return ""
}

// loadHistory degrades to an empty history when the store is unavailable and
// reports whether the lookup succeeded.
func (r *Relay) loadHistory(ctx context.Context, userID string) (domain.History, bool) {
	h, err := r.deps.History.History(ctx, userID)
	if err != nil {
		r.log.Error("history lookup failed", zap.String("userId", userID), zap.Error(err))
		return domain.History{Policy: r.deps.History.Policy()}, false
	}
	return h, true
}

// persist is best effort: a failed write is logged and never blocks delivery.
func (r *Relay) persist(ctx context.Context, userID string, prior domain.History, question, answer string) {
	ts := r.now().UnixMilli()
	if latest := prior.LatestTimestamp(); ts <= latest {
		ts = latest + 1
	}
	ex := domain.Exchange{
		UserID:      userID,
		Timestamp:   ts,
		UserMessage: question,
		AIMessage:   answer,
	}
	if err := r.deps.History.Persist(ctx, userID, prior, ex); err != nil {
		r.log.Error("history write failed", zap.String("userId", userID), zap.Error(err))
	}
}

// fail answers with the fallback text. After a model failure under the
// cache-ttl policy the cached context is dropped so the next turn starts fresh.
func (r *Relay) fail(ctx context.Context, in domain.InboundTurn, reason string, cause error, modelFailure bool) (Outcome, error) {
	log := r.log.With(zap.String("userId", in.UserID), zap.String("reason", reason))
	log.Error("turn failed", zap.Error(cause))

	if modelFailure && r.deps.History.Policy() == domain.PolicyCacheTTL {
		if err := r.deps.History.Clear(ctx, in.UserID); err != nil {
			log.Error("context clear failed", zap.Error(err))
		}
	}
	if err := r.deps.Replies.Reply(ctx, in.ReplyToken, r.cfg.FallbackMessage); err != nil {
		log.Error("fallback reply failed", zap.Error(err))
	}
	return OutcomeFailed, newError(ErrorUpstream, reason, cause)
}

// prepareImage spools the message content to a temp file, optionally uploads
// it, and builds the one-shot image request.
func (r *Relay) prepareImage(ctx context.Context, in domain.InboundTurn) (domain.ModelRequest, string, error) {
	body, err := r.deps.Content.FetchContent(ctx, in.MessageID)
	if err != nil {
		return domain.ModelRequest{}, "", fmt.Errorf("usecase: fetch content: %w", err)
	}
	defer func() { _ = body.Close() }()

	f, err := os.CreateTemp(r.cfg.TempDir, "line-image-*")
	if err != nil {
		return domain.ModelRequest{}, "", fmt.Errorf("usecase: create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	n, err := io.Copy(f, io.LimitReader(body, r.cfg.ImageMaxBytes+1))
	if err != nil {
		return domain.ModelRequest{}, "", fmt.Errorf("usecase: spool content: %w", err)
	}
	if n > r.cfg.ImageMaxBytes {
		return domain.ModelRequest{}, "", errImageTooLarge
	}

	ref := in.MessageID
	if r.deps.Images != nil {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return domain.ModelRequest{}, "", fmt.Errorf("usecase: rewind temp file: %w", err)
		}
		url, err := r.deps.Images.Upload(ctx, in.UserID, f)
		if err != nil {
			r.log.Warn("image upload failed", zap.String("userId", in.UserID), zap.Error(err))
		} else {
			ref = url
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return domain.ModelRequest{}, "", fmt.Errorf("usecase: rewind temp file: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return domain.ModelRequest{}, "", fmt.Errorf("usecase: read temp file: %w", err)
	}

	img := domain.ImagePayload{MediaType: mediaType(data), Data: data, Ref: ref}
	req := AssembleImage(img, r.language(ctx, in.UserID), r.cfg.Model, r.cfg.MaxTokens)
	return req, imageRefPrefix + ref, nil
}

func (r *Relay) language(ctx context.Context, userID string) string {
	lang, err := r.deps.Profiles.Language(ctx, userID)
	if err != nil {
		r.log.Warn("profile lookup failed", zap.String("userId", userID), zap.Error(err))
		return r.cfg.DefaultLanguage
	}
	if strings.TrimSpace(lang) == "" {
		return r.cfg.DefaultLanguage
	}
	return lang
}

func mediaType(data []byte) string {
	if ct := http.DetectContentType(data); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
