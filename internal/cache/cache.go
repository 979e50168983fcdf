package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/godseye3002/godseye/pkg/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StatusEntry is the cross-session observer cache record for one
// (product, engine) pair: the last snapshot any observer saw and when. It is a
// warm-start convenience, never the source of truth; subscribers always
// reconcile against live row counts.
type StatusEntry struct {
	Snapshot  models.ProgressSnapshot `json:"snapshot"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error)
	SetStatusEntry(ctx context.Context, productID uuid.UUID, engine string, entry StatusEntry, ttl time.Duration) error
	GetStatusEntry(ctx context.Context, productID uuid.UUID, engine string) (StatusEntry, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

func (c *RedisCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.client.Set(ctx, JobStatusKey(jobID), status, ttl).Err()
}

func (c *RedisCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, err := c.client.Get(ctx, JobStatusKey(jobID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) SetStatusEntry(ctx context.Context, productID uuid.UUID, engine string, entry StatusEntry, ttl time.Duration) error {
	data, err := marshalStatusEntry(entry)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, StatusKey(productID, engine), data, ttl).Err()
}

func (c *RedisCache) GetStatusEntry(ctx context.Context, productID uuid.UUID, engine string) (StatusEntry, bool, error) {
	data, err := c.client.Get(ctx, StatusKey(productID, engine)).Bytes()
	if err == redis.Nil {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	return unmarshalStatusEntry(data)
}

func marshalStatusEntry(entry StatusEntry) ([]byte, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal status entry: %w", err)
	}
	return data, nil
}

func unmarshalStatusEntry(data []byte) (StatusEntry, bool, error) {
	var entry StatusEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return StatusEntry{}, false, fmt.Errorf("unmarshal status entry: %w", err)
	}
	return entry, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Compile-time check that RedisCache implements Cache.
var _ Cache = (*RedisCache)(nil)
