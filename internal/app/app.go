// Package app wires configuration into concrete stores, gateways and the
// relay. Every cmd entrypoint builds its object graph through it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"line-relay/internal/config"
	"line-relay/internal/domain"
	"line-relay/internal/integrations/bedrock"
	"line-relay/internal/integrations/line"
	"line-relay/internal/integrations/objectstore"
	"line-relay/internal/integrations/openai"
	"line-relay/internal/integrations/paramstore"
	"line-relay/internal/repository"
	"line-relay/internal/usecase"
)

// Secrets are the LINE channel credentials.
type Secrets struct {
	ChannelSecret      string
	ChannelAccessToken string
}

func LoadSecrets(ctx context.Context, g paramstore.Getter, prefix string) (Secrets, error) {
	secret, err := paramstore.Token(ctx, g, prefix+paramstore.ChannelSecret)
	if err != nil {
		return Secrets{}, fmt.Errorf("app: channel secret: %w", err)
	}
	token, err := paramstore.Token(ctx, g, prefix+paramstore.ChannelAccessToken)
	if err != nil {
		return Secrets{}, fmt.Errorf("app: channel access token: %w", err)
	}
	return Secrets{ChannelSecret: secret, ChannelAccessToken: token}, nil
}

// NewHistoryStore builds the store for the configured policy. The returned
// close func releases local resources and is never nil.
func NewHistoryStore(cfg config.HistoryConfig, awsCfg aws.Config) (usecase.HistoryStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Policy {
	case domain.PolicyCacheTTL:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.CacheAddr})
		store, err := repository.NewRedisCache(rdb, cfg.CacheTTL, cfg.CacheKeyPrefix)
		if err != nil {
			_ = rdb.Close()
			return nil, noop, err
		}
		return store, rdb.Close, nil
	case domain.PolicyDurableLog:
		if cfg.Backend == config.BackendSQLite {
			store, err := repository.OpenSQLiteLog(cfg.SQLitePath, cfg.Limit)
			if err != nil {
				return nil, noop, err
			}
			return store, store.Close, nil
		}
		var opts []repository.DynamoOption
		if cfg.RetentionDays > 0 {
			opts = append(opts, repository.WithRetention(time.Duration(cfg.RetentionDays)*24*time.Hour))
		}
		store, err := repository.NewDynamoLog(dynamodb.NewFromConfig(awsCfg), cfg.Table, cfg.Limit, opts...)
		if err != nil {
			return nil, noop, err
		}
		return store, noop, nil
	}
	return nil, noop, fmt.Errorf("app: unsupported history policy %q", cfg.Policy)
}

func NewModelGateway(cfg config.ModelConfig, awsCfg aws.Config, g paramstore.Getter, paramPrefix string) (usecase.ModelGateway, error) {
	switch cfg.Backend {
	case config.ModelBedrock:
		return bedrock.NewClient(bedrockruntime.NewFromConfig(awsCfg), bedrock.Format(cfg.BedrockFormat))
	case config.ModelOpenAI:
		return openai.NewClient(g, paramPrefix, openai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	return nil, fmt.Errorf("app: unsupported model backend %q", cfg.Backend)
}

// NewImageUploader returns nil when no bucket is configured.
func NewImageUploader(cfg config.ImageConfig, awsCfg aws.Config) (usecase.ImageUploader, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	return objectstore.NewS3Uploader(s3.NewFromConfig(awsCfg), cfg.Bucket, cfg.Region, "")
}

// Runtime is the fully wired relay and its webhook verifier.
type Runtime struct {
	Relay    *usecase.Relay
	Verifier *line.Verifier
	History  usecase.HistoryStore
	close    func() error
}

func (r *Runtime) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// Build assembles the relay. Secrets and the model key are read through g.
func Build(ctx context.Context, cfg *config.Config, awsCfg aws.Config, g paramstore.Getter, log *zap.Logger) (*Runtime, error) {
	secrets, err := LoadSecrets(ctx, g, cfg.ParamPrefix)
	if err != nil {
		return nil, err
	}
	verifier, err := line.NewVerifier(secrets.ChannelSecret)
	if err != nil {
		return nil, err
	}
	lineClient, err := line.New(secrets.ChannelAccessToken)
	if err != nil {
		return nil, err
	}

	history, closeHistory, err := NewHistoryStore(cfg.History, awsCfg)
	if err != nil {
		return nil, err
	}
	model, err := NewModelGateway(cfg.Model, awsCfg, g, cfg.ParamPrefix)
	if err != nil {
		_ = closeHistory()
		return nil, err
	}
	images, err := NewImageUploader(cfg.Image, awsCfg)
	if err != nil {
		_ = closeHistory()
		return nil, err
	}

	relay, err := usecase.NewRelay(usecase.Dependencies{
		History:  history,
		Model:    model,
		Replies:  lineClient,
		Content:  lineClient,
		Profiles: lineClient,
		Images:   images,
	}, usecase.RelayConfig{
		Model:           cfg.Model.ModelID,
		MaxTokens:       cfg.Model.MaxTokens,
		FallbackMessage: cfg.Reply.FallbackMessage,
		DefaultLanguage: cfg.Reply.DefaultLanguage,
		ImageMaxBytes:   cfg.Image.MaxBytes,
	}, log)
	if err != nil {
		_ = closeHistory()
		return nil, err
	}

	log.Info("relay ready",
		zap.String("policy", string(history.Policy())),
		zap.String("modelBackend", cfg.Model.Backend),
		zap.String("model", cfg.Model.ModelID),
		zap.Bool("imageUpload", images != nil),
	)
	return &Runtime{Relay: relay, Verifier: verifier, History: history, close: closeHistory}, nil
}
