package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// downloadsTTL keeps per-day download hashes from growing forever.
const downloadsTTL = 400 * 24 * time.Hour

// RedisCounters keeps supporter and download counters in Redis so several
// service instances can share them.
type RedisCounters struct {
	client *redis.Client
	prefix string
}

// NewRedisCounters wraps client. Keys are namespaced with prefix
// (default "phrames").
func NewRedisCounters(client *redis.Client, prefix string) *RedisCounters {
	if prefix == "" {
		prefix = "phrames"
	}
	return &RedisCounters{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("store: redis ping %s: %w", addr, err)
	}
	return client, nil
}

func (r *RedisCounters) supportersKey(id string) string {
	return r.prefix + ":campaign:" + id + ":supporters"
}

func (r *RedisCounters) downloadsKey(id string) string {
	return r.prefix + ":campaign:" + id + ":downloads"
}

// IncrementSupporters implements Counters.
func (r *RedisCounters) IncrementSupporters(ctx context.Context, campaignID string) error {
	if err := r.client.Incr(ctx, r.supportersKey(campaignID)).Err(); err != nil {
		return fmt.Errorf("store: redis supporters: %w", err)
	}
	return nil
}

// IncrementDownloads implements Counters.
func (r *RedisCounters) IncrementDownloads(ctx context.Context, campaignID string, day time.Time) error {
	key := r.downloadsKey(campaignID)
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, dayKey(day), 1)
	pipe.Expire(ctx, key, downloadsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: redis downloads: %w", err)
	}
	return nil
}

// DownloadsOn implements Counters.
func (r *RedisCounters) DownloadsOn(ctx context.Context, campaignID string, day time.Time) (int64, error) {
	n, err := r.client.HGet(ctx, r.downloadsKey(campaignID), dayKey(day)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: redis downloads: %w", err)
	}
	return n, nil
}

// Supporters returns the supporter total for a campaign.
func (r *RedisCounters) Supporters(ctx context.Context, campaignID string) (int64, error) {
	n, err := r.client.Get(ctx, r.supportersKey(campaignID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: redis supporters: %w", err)
	}
	return n, nil
}
