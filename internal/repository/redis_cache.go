package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"line-relay/internal/domain"
)

const defaultCacheKeyPrefix = "line-gpt35turbo-"

// redisAPI is the subset of *redis.Client used by RedisCache.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache keeps a user's whole context as one JSON array of normalized
// turns that expires ttl after the last completed exchange.
type RedisCache struct {
	api    redisAPI
	ttl    time.Duration
	prefix string
}

func NewRedisCache(api redisAPI, ttl time.Duration, prefix string) (*RedisCache, error) {
	if api == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	if ttl <= 0 {
		return nil, errors.New("repository: cache ttl must be positive")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultCacheKeyPrefix
	}
	return &RedisCache{api: api, ttl: ttl, prefix: prefix}, nil
}

func (c *RedisCache) Policy() domain.HistoryPolicy {
	return domain.PolicyCacheTTL
}

func (c *RedisCache) key(userID string) string {
	return c.prefix + userID
}

// History returns the cached turns oldest first; an expired or missing key is
// an empty history.
func (c *RedisCache) History(ctx context.Context, userID string) (domain.History, error) {
	raw, err := c.api.Get(ctx, c.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.History{Policy: domain.PolicyCacheTTL}, nil
	}
	if err != nil {
		return domain.History{}, fmt.Errorf("repository: cache get: %w", err)
	}

	var turns []domain.Turn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return domain.History{}, fmt.Errorf("repository: cache decode: %w", err)
	}
	return domain.History{Policy: domain.PolicyCacheTTL, Turns: turns}, nil
}

// Persist overwrites the blob with prior turns plus the new exchange and
// resets the expiry.
func (c *RedisCache) Persist(ctx context.Context, userID string, prior domain.History, ex domain.Exchange) error {
	turns := make([]domain.Turn, 0, len(prior.Turns)+2)
	turns = append(turns, prior.Turns...)
	turns = append(turns,
		domain.Turn{Role: domain.RoleUser, Content: ex.UserMessage},
		domain.Turn{Role: domain.RoleAssistant, Content: ex.AIMessage},
	)

	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("repository: cache encode: %w", err)
	}
	if err := c.api.Set(ctx, c.key(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("repository: cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Clear(ctx context.Context, userID string) error {
	if err := c.api.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("repository: cache delete: %w", err)
	}
	return nil
}
