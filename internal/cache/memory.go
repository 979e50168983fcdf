package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is an in-process Cache used by tests and single-node
// deployments without Redis. Expired entries are dropped lazily on read.
type MemoryCache struct {
	mu       sync.RWMutex
	items    map[string]memoryItem
	counters map[string]int64
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		items:    make(map[string]memoryItem),
		counters: make(map[string]int64),
	}
}

func (c *MemoryCache) Ping(ctx context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }

// Reset drops all entries. Tests call this between cases.
func (c *MemoryCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]memoryItem)
	c.counters = make(map[string]int64)
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	c.items[key] = memoryItem{value: buf, expiresAt: expires}
	return nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return item.value, true, nil
}

func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *MemoryCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return c.Set(ctx, JobStatusKey(jobID), []byte(status), ttl)
}

func (c *MemoryCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, ok, err := c.Get(ctx, JobStatusKey(jobID))
	if err != nil || !ok {
		return "", ok, err
	}
	return string(val), true, nil
}

func (c *MemoryCache) SetStatusEntry(ctx context.Context, productID uuid.UUID, engine string, entry StatusEntry, ttl time.Duration) error {
	data, err := marshalStatusEntry(entry)
	if err != nil {
		return err
	}
	return c.Set(ctx, StatusKey(productID, engine), data, ttl)
}

func (c *MemoryCache) GetStatusEntry(ctx context.Context, productID uuid.UUID, engine string) (StatusEntry, bool, error) {
	data, ok, err := c.Get(ctx, StatusKey(productID, engine))
	if err != nil || !ok {
		return StatusEntry{}, ok, err
	}
	return unmarshalStatusEntry(data)
}

func (c *MemoryCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

// Compile-time check that MemoryCache implements Cache.
var _ Cache = (*MemoryCache)(nil)
