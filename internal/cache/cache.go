// Package cache holds the Redis-backed read caches and the per-store run
// lock. With caching disabled every component falls back to a no-op or
// in-process implementation, so callers never branch on configuration.
package cache

import (
	"github.com/andresuchdata/autopo-engine/internal/config"
	"github.com/redis/go-redis/v9"
)

// Caches bundles every cache component sharing one Redis client.
type Caches struct {
	Traces  TraceCache
	Reports ReportCache
	Locker  RunLocker

	client *redis.Client
}

func New(cfg config.CacheConfig) (*Caches, error) {
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &Caches{
		Traces:  newRedisTraceCache(client, ttlOrDefault(cfg.TraceTTLSeconds, defaultTraceTTL)),
		Reports: newRedisReportCache(client, ttlOrDefault(cfg.ReportTTLSeconds, defaultReportTTL)),
		Locker:  newRedisLocker(client, ttlOrDefault(cfg.LockTTLSeconds, defaultLockTTL)),
		client:  client,
	}, nil
}

// NewNoop returns caches that never hit and an in-process lock.
func NewNoop() *Caches {
	return &Caches{
		Traces:  noopTraceCache{},
		Reports: noopReportCache{},
		Locker:  NewLocalLocker(),
	}
}

func (c *Caches) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
