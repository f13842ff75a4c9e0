package tape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 6 * time.Hour

// Cache is an optional Redis warm tier for loaded tapes, keyed by dataset
// id. A nil Cache or nil client disables it: Get always misses, Put drops.
type Cache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewCache wraps a Redis client. ttl <= 0 selects the default.
func NewCache(rdb redis.Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func cacheKey(datasetID string) string { return "tape:" + datasetID }

// Get returns the cached tape for a dataset id, with a hit flag.
func (c *Cache) Get(ctx context.Context, datasetID string) (*Tape, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}
	raw, err := c.rdb.Get(ctx, cacheKey(datasetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("tape cache get %s: %w", datasetID, err)
	}
	var t Tape
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, false, fmt.Errorf("tape cache decode %s: %w", datasetID, err)
	}
	return &t, true, nil
}

// Put stores a tape under its dataset id.
func (c *Cache) Put(ctx context.Context, datasetID string, t *Tape) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("tape cache encode %s: %w", datasetID, err)
	}
	if err := c.rdb.Set(ctx, cacheKey(datasetID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("tape cache put %s: %w", datasetID, err)
	}
	return nil
}
