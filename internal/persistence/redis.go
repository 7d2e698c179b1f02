package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/queue"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

// QueueCache stores queue snapshots and the cross-instance sweep lock.
type QueueCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewQueueCache builds the cache. A zero TTL disables snapshot caching.
func NewQueueCache(r *Redis, snapshotTTL time.Duration) *QueueCache {
	var client *redis.Client
	if r != nil {
		client = r.Client
	}
	return &QueueCache{client: client, ttl: snapshotTTL}
}

func snapshotKey(tenantID string) string {
	return "queue:snapshot:" + tenantID
}

func sweepLockKey(tenantID string) string {
	return "queue:sweep-lock:" + tenantID
}

// CacheSnapshot stores a tenant's queue snapshot.
func (c *QueueCache) CacheSnapshot(ctx context.Context, tenantID string, entries []queue.SnapshotEntry) error {
	if c.client == nil || c.ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue snapshot: %w", err)
	}
	return c.client.Set(ctx, snapshotKey(tenantID), payload, c.ttl).Err()
}

// CachedSnapshot returns the cached snapshot, or nil on a miss.
func (c *QueueCache) CachedSnapshot(ctx context.Context, tenantID string) ([]queue.SnapshotEntry, error) {
	if c.client == nil {
		return nil, nil
	}
	payload, err := c.client.Get(ctx, snapshotKey(tenantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []queue.SnapshotEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("decode queue snapshot: %w", err)
	}
	return entries, nil
}

// InvalidateSnapshot drops a tenant's cached snapshot.
func (c *QueueCache) InvalidateSnapshot(ctx context.Context, tenantID string) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, snapshotKey(tenantID)).Err()
}

// AcquireSweepLock takes the tenant sweep lock so only one instance
// escalates at a time. Returns false when another holder has it.
func (c *QueueCache) AcquireSweepLock(ctx context.Context, tenantID, holder string, ttl time.Duration) (bool, error) {
	if c.client == nil {
		return true, nil
	}
	return c.client.SetNX(ctx, sweepLockKey(tenantID), holder, ttl).Result()
}

// ReleaseSweepLock releases the lock when held by the given holder.
func (c *QueueCache) ReleaseSweepLock(ctx context.Context, tenantID, holder string) error {
	if c.client == nil {
		return nil
	}
	const script = `
        if redis.call("GET", KEYS[1]) == ARGV[1] then
            return redis.call("DEL", KEYS[1])
        end
        return 0`
	return c.client.Eval(ctx, script, []string{sweepLockKey(tenantID)}, holder).Err()
}
