package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	traceKeyPrefix  = "explain:trace:"
	defaultTraceTTL = time.Hour
)

// TraceCache stores explanation traces by recommendation id. Snapshots are
// immutable, so entries only leave the cache by TTL or purge.
type TraceCache interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.NumericTrace, bool, error)
	Set(ctx context.Context, trace *domain.NumericTrace) error
	Delete(ctx context.Context, ids ...uuid.UUID) error
}

type redisTraceCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopTraceCache struct{}

func newRedisTraceCache(client *redis.Client, ttl time.Duration) *redisTraceCache {
	return &redisTraceCache{client: client, ttl: ttl}
}

func traceKey(id uuid.UUID) string {
	return traceKeyPrefix + id.String()
}

func (c *redisTraceCache) Get(ctx context.Context, id uuid.UUID) (*domain.NumericTrace, bool, error) {
	payload, err := c.client.Get(ctx, traceKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var trace domain.NumericTrace
	if err := json.Unmarshal(payload, &trace); err != nil {
		return nil, false, fmt.Errorf("decode trace cache: %w", err)
	}
	return &trace, true, nil
}

func (c *redisTraceCache) Set(ctx context.Context, trace *domain.NumericTrace) error {
	payload, err := json.Marshal(trace)
	if err != nil {
		return fmt.Errorf("encode trace cache: %w", err)
	}
	if err := c.client.Set(ctx, traceKey(trace.RecommendationID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisTraceCache) Delete(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = traceKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (noopTraceCache) Get(context.Context, uuid.UUID) (*domain.NumericTrace, bool, error) {
	return nil, false, nil
}

func (noopTraceCache) Set(context.Context, *domain.NumericTrace) error { return nil }

func (noopTraceCache) Delete(context.Context, ...uuid.UUID) error { return nil }
