// Package config loads relay configuration from the environment. It is only
// read by the cmd entrypoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"line-relay/internal/domain"
)

const (
	defaultHistoryLimit    = 5
	defaultCacheTTL        = time.Hour
	minCacheTTL            = time.Hour
	maxCacheTTL            = 24 * time.Hour
	defaultCacheKeyPrefix  = "line-gpt35turbo-"
	defaultMaxTokens       = 2048
	defaultImageMaxBytes   = 5 << 20
	defaultLanguage        = "ja"
	defaultFallbackMessage = "タイムアウトエラーです。時間を置いて再度お試しください。"
)

// Storage backends for the durable-log policy.
const (
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Model backends.
const (
	ModelOpenAI  = "openai"
	ModelBedrock = "bedrock"
)

// Dispatch modes.
const (
	DispatchInline = "inline"
	DispatchSQS    = "sqs"
	DispatchLocal  = "local"
)

// Config aggregates every setting the entrypoints need.
type Config struct {
	ParamPrefix string
	Debug       bool
	History     HistoryConfig
	Model       ModelConfig
	Image       ImageConfig
	Dispatch    DispatchConfig
	Reply       ReplyConfig
}

// HistoryConfig selects the history policy and its store.
type HistoryConfig struct {
	Policy         domain.HistoryPolicy
	Backend        string
	Table          string
	Limit          int
	RetentionDays  int
	SQLitePath     string
	CacheAddr      string
	CacheTTL       time.Duration
	CacheKeyPrefix string
}

// ModelConfig selects the model gateway.
type ModelConfig struct {
	Backend       string
	ModelID       string
	MaxTokens     int
	BedrockFormat string
	OpenAIBaseURL string
}

// ImageConfig controls the image pipeline. An empty bucket disables upload.
type ImageConfig struct {
	Bucket   string
	Region   string
	MaxBytes int64
}

// DispatchConfig controls how the webhook hands turns to the orchestrator.
type DispatchConfig struct {
	Mode     string
	QueueURL string
	Workers  int
	Backlog  int
}

// ReplyConfig holds user-facing reply settings.
type ReplyConfig struct {
	FallbackMessage string
	DefaultLanguage string
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	history, err := loadHistoryConfig()
	if err != nil {
		return nil, err
	}
	model, err := loadModelConfig()
	if err != nil {
		return nil, err
	}
	dispatch, err := loadDispatchConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		ParamPrefix: strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
		Debug:       envBool("LOG_DEBUG", false),
		History:     history,
		Model:       model,
		Image: ImageConfig{
			Bucket:   strings.TrimSpace(os.Getenv("IMAGE_BUCKET")),
			Region:   envOr("AWS_REGION", "ap-northeast-1"),
			MaxBytes: int64(envInt("IMAGE_MAX_BYTES", defaultImageMaxBytes)),
		},
		Dispatch: dispatch,
		Reply: ReplyConfig{
			FallbackMessage: envOr("FALLBACK_MESSAGE", defaultFallbackMessage),
			DefaultLanguage: envOr("DEFAULT_LANGUAGE", defaultLanguage),
		},
	}, nil
}

func loadHistoryConfig() (HistoryConfig, error) {
	policy := domain.HistoryPolicy(envOr("HISTORY_POLICY", string(domain.PolicyDurableLog)))
	if !policy.Valid() {
		return HistoryConfig{}, fmt.Errorf("config: invalid HISTORY_POLICY %q", policy)
	}

	hc := HistoryConfig{
		Policy:         policy,
		Backend:        envOr("HISTORY_BACKEND", BackendDynamoDB),
		Table:          strings.TrimSpace(os.Getenv("HISTORY_TABLE")),
		Limit:          envInt("HISTORY_LIMIT", defaultHistoryLimit),
		RetentionDays:  envInt("HISTORY_RETENTION_DAYS", 0),
		SQLitePath:     envOr("SQLITE_PATH", "./data/history.db"),
		CacheAddr:      strings.TrimSpace(os.Getenv("CACHE_ADDR")),
		CacheKeyPrefix: envOr("CACHE_KEY_PREFIX", defaultCacheKeyPrefix),
	}
	if hc.Limit <= 0 {
		hc.Limit = defaultHistoryLimit
	}

	ttl, err := envDuration("CACHE_TTL", defaultCacheTTL)
	if err != nil {
		return HistoryConfig{}, err
	}
	hc.CacheTTL = ttl

	switch policy {
	case domain.PolicyCacheTTL:
		if hc.CacheAddr == "" {
			return HistoryConfig{}, fmt.Errorf("config: CACHE_ADDR is required when HISTORY_POLICY=%s", policy)
		}
		if hc.CacheTTL < minCacheTTL || hc.CacheTTL > maxCacheTTL {
			return HistoryConfig{}, fmt.Errorf("config: CACHE_TTL must be between %s and %s, got %s", minCacheTTL, maxCacheTTL, hc.CacheTTL)
		}
	case domain.PolicyDurableLog:
		switch hc.Backend {
		case BackendDynamoDB:
			if hc.Table == "" {
				return HistoryConfig{}, fmt.Errorf("config: HISTORY_TABLE is required when HISTORY_BACKEND=%s", hc.Backend)
			}
		case BackendSQLite:
		default:
			return HistoryConfig{}, fmt.Errorf("config: invalid HISTORY_BACKEND %q", hc.Backend)
		}
	}
	return hc, nil
}

func loadModelConfig() (ModelConfig, error) {
	mc := ModelConfig{
		Backend:       envOr("MODEL_BACKEND", ModelOpenAI),
		ModelID:       strings.TrimSpace(os.Getenv("MODEL_ID")),
		MaxTokens:     envInt("MAX_TOKENS", defaultMaxTokens),
		BedrockFormat: envOr("BEDROCK_FORMAT", "messages"),
		OpenAIBaseURL: strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
	}
	switch mc.Backend {
	case ModelOpenAI:
		if mc.ModelID == "" {
			mc.ModelID = "gpt-3.5-turbo-0301"
		}
	case ModelBedrock:
		if mc.ModelID == "" {
			return ModelConfig{}, fmt.Errorf("config: MODEL_ID is required when MODEL_BACKEND=%s", mc.Backend)
		}
	default:
		return ModelConfig{}, fmt.Errorf("config: invalid MODEL_BACKEND %q", mc.Backend)
	}
	if mc.MaxTokens <= 0 {
		mc.MaxTokens = defaultMaxTokens
	}
	return mc, nil
}

func loadDispatchConfig() (DispatchConfig, error) {
	dc := DispatchConfig{
		Mode:     envOr("DISPATCH_MODE", DispatchInline),
		QueueURL: strings.TrimSpace(os.Getenv("QUEUE_URL")),
		Workers:  envInt("DISPATCH_WORKERS", 4),
		Backlog:  envInt("DISPATCH_BACKLOG", 64),
	}
	switch dc.Mode {
	case DispatchInline, DispatchLocal:
	case DispatchSQS:
		if dc.QueueURL == "" {
			return DispatchConfig{}, fmt.Errorf("config: QUEUE_URL is required when DISPATCH_MODE=%s", dc.Mode)
		}
	default:
		return DispatchConfig{}, fmt.Errorf("config: invalid DISPATCH_MODE %q", dc.Mode)
	}
	return dc, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: parse %s: %w", key, err)
	}
	return d, nil
}
