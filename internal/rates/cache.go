package rates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed cache keys. The snapshot key holds the raw provider document; the
// rates key holds only the conversion_rates mapping and is written solely by
// PublishRates.
const (
	snapshotKey = "ratewatch:snapshot"
	ratesKey    = "ratewatch:rates"
)

// SnapshotCache stores the raw snapshot document and the rates-only view.
type SnapshotCache interface {
	GetSnapshot(ctx context.Context) ([]byte, error)
	SetSnapshot(ctx context.Context, raw []byte) error
	SetRates(ctx context.Context, rateValues map[string]float64) error
}

// RedisSnapshotCache backs SnapshotCache with Redis.
type RedisSnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotCache wraps client. A zero ttl means entries never expire.
func NewRedisSnapshotCache(client *redis.Client, ttl time.Duration) *RedisSnapshotCache {
	return &RedisSnapshotCache{client: client, ttl: ttl}
}

func (c *RedisSnapshotCache) GetSnapshot(ctx context.Context) ([]byte, error) {
	return c.client.Get(ctx, snapshotKey).Bytes()
}

func (c *RedisSnapshotCache) SetSnapshot(ctx context.Context, raw []byte) error {
	return c.client.Set(ctx, snapshotKey, raw, c.ttl).Err()
}

func (c *RedisSnapshotCache) SetRates(ctx context.Context, rateValues map[string]float64) error {
	data, err := json.Marshal(rateValues)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, ratesKey, data, c.ttl).Err()
}
