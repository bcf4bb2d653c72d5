package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	reportKeyPrefix  = "reports:"
	defaultReportTTL = 5 * time.Minute
)

// ReportCache stores rendered report rows and store summaries. Entries for a
// store are dropped whenever a generate run writes new snapshots.
type ReportCache interface {
	GetReport(ctx context.Context, storeID int64, kind domain.ReportKind) ([]domain.Recommendation, bool, error)
	SetReport(ctx context.Context, storeID int64, kind domain.ReportKind, rows []domain.Recommendation) error
	GetSummary(ctx context.Context, storeID int64) (*domain.InventorySummary, bool, error)
	SetSummary(ctx context.Context, summary *domain.InventorySummary) error
	InvalidateStore(ctx context.Context, storeID int64) error
}

type redisReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopReportCache struct{}

func newRedisReportCache(client *redis.Client, ttl time.Duration) *redisReportCache {
	return &redisReportCache{client: client, ttl: ttl}
}

func storePrefix(storeID int64) string {
	return fmt.Sprintf("%s%d:", reportKeyPrefix, storeID)
}

func reportKey(storeID int64, kind domain.ReportKind) string {
	return storePrefix(storeID) + string(kind)
}

func summaryKey(storeID int64) string {
	return storePrefix(storeID) + "summary"
}

func (c *redisReportCache) GetReport(ctx context.Context, storeID int64, kind domain.ReportKind) ([]domain.Recommendation, bool, error) {
	var rows []domain.Recommendation
	ok, err := c.get(ctx, reportKey(storeID, kind), &rows)
	return rows, ok, err
}

func (c *redisReportCache) SetReport(ctx context.Context, storeID int64, kind domain.ReportKind, rows []domain.Recommendation) error {
	return c.set(ctx, reportKey(storeID, kind), rows)
}

func (c *redisReportCache) GetSummary(ctx context.Context, storeID int64) (*domain.InventorySummary, bool, error) {
	var summary domain.InventorySummary
	ok, err := c.get(ctx, summaryKey(storeID), &summary)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &summary, true, nil
}

func (c *redisReportCache) SetSummary(ctx context.Context, summary *domain.InventorySummary) error {
	return c.set(ctx, summaryKey(summary.StoreID), summary)
}

func (c *redisReportCache) InvalidateStore(ctx context.Context, storeID int64) error {
	return deleteKeysWithPrefix(ctx, c.client, storePrefix(storeID), scanBatchSize)
}

func (c *redisReportCache) get(ctx context.Context, key string, dest interface{}) (bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("decode report cache: %w", err)
	}
	return true, nil
}

func (c *redisReportCache) set(ctx context.Context, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode report cache: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (noopReportCache) GetReport(context.Context, int64, domain.ReportKind) ([]domain.Recommendation, bool, error) {
	return nil, false, nil
}

func (noopReportCache) SetReport(context.Context, int64, domain.ReportKind, []domain.Recommendation) error {
	return nil
}

func (noopReportCache) GetSummary(context.Context, int64) (*domain.InventorySummary, bool, error) {
	return nil, false, nil
}

func (noopReportCache) SetSummary(context.Context, *domain.InventorySummary) error { return nil }

func (noopReportCache) InvalidateStore(context.Context, int64) error { return nil }
