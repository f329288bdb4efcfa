package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"line-relay/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HISTORY_TABLE", "history")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, domain.PolicyDurableLog, cfg.History.Policy)
	require.Equal(t, BackendDynamoDB, cfg.History.Backend)
	require.Equal(t, 5, cfg.History.Limit)
	require.Equal(t, ModelOpenAI, cfg.Model.Backend)
	require.Equal(t, 2048, cfg.Model.MaxTokens)
	require.Equal(t, DispatchInline, cfg.Dispatch.Mode)
	require.Equal(t, "ja", cfg.Reply.DefaultLanguage)
	require.NotEmpty(t, cfg.Reply.FallbackMessage)
	require.Equal(t, int64(5<<20), cfg.Image.MaxBytes)
}

func TestLoad_CacheTTLPolicy(t *testing.T) {
	t.Setenv("HISTORY_POLICY", "cache-ttl")
	t.Setenv("CACHE_ADDR", "localhost:6379")
	t.Setenv("CACHE_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, domain.PolicyCacheTTL, cfg.History.Policy)
	require.Equal(t, 2*time.Hour, cfg.History.CacheTTL)
	require.Equal(t, "line-gpt35turbo-", cfg.History.CacheKeyPrefix)
}

func TestLoad_Errors(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "unknown policy", env: map[string]string{"HISTORY_POLICY": "forever"}, want: "HISTORY_POLICY"},
		{name: "cache without addr", env: map[string]string{"HISTORY_POLICY": "cache-ttl"}, want: "CACHE_ADDR"},
		{name: "cache ttl too long", env: map[string]string{"HISTORY_POLICY": "cache-ttl", "CACHE_ADDR": "x:1", "CACHE_TTL": "48h"}, want: "CACHE_TTL"},
		{name: "cache ttl unparseable", env: map[string]string{"HISTORY_POLICY": "cache-ttl", "CACHE_ADDR": "x:1", "CACHE_TTL": "soon"}, want: "CACHE_TTL"},
		{name: "dynamodb without table", env: map[string]string{}, want: "HISTORY_TABLE"},
		{name: "unknown backend", env: map[string]string{"HISTORY_BACKEND": "csv"}, want: "HISTORY_BACKEND"},
		{name: "bedrock without model", env: map[string]string{"HISTORY_BACKEND": "sqlite", "MODEL_BACKEND": "bedrock"}, want: "MODEL_ID"},
		{name: "unknown model backend", env: map[string]string{"HISTORY_BACKEND": "sqlite", "MODEL_BACKEND": "local"}, want: "MODEL_BACKEND"},
		{name: "sqs without queue", env: map[string]string{"HISTORY_BACKEND": "sqlite", "DISPATCH_MODE": "sqs"}, want: "QUEUE_URL"},
		{name: "unknown dispatch", env: map[string]string{"HISTORY_BACKEND": "sqlite", "DISPATCH_MODE": "kafka"}, want: "DISPATCH_MODE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestEnvInt_FallsBackOnGarbage(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "many")
	require.Equal(t, 5, envInt("HISTORY_LIMIT", 5))
}
