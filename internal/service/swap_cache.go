package service

import (
	"context"
	"fmt"
	"time"

	"github.com/madrasa-dev/timetable-api/internal/dto"
)

const swapCacheKeyPrefix = "swap:validity:"

// SwapValidityCache memoizes swap validity results in Redis. Entries are
// keyed by the ordered id pair and wiped wholesale on any committed mutation,
// since a single write can flip the validity of unrelated pairs.
type SwapValidityCache struct {
	cache *CacheService
	ttl   time.Duration
}

// NewSwapValidityCache constructs the memo cache.
func NewSwapValidityCache(cache *CacheService, ttl time.Duration) *SwapValidityCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SwapValidityCache{cache: cache, ttl: ttl}
}

// Get returns a memoized validity result when present.
func (c *SwapValidityCache) Get(ctx context.Context, id1, id2 string) (*dto.SwapValidity, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	var validity dto.SwapValidity
	hit, err := c.cache.Get(ctx, c.key(id1, id2), &validity)
	if err != nil || !hit {
		return nil, false
	}
	return &validity, true
}

// Set memoizes a validity result.
func (c *SwapValidityCache) Set(ctx context.Context, id1, id2 string, validity dto.SwapValidity) {
	if c == nil || c.cache == nil {
		return
	}
	_ = c.cache.Set(ctx, c.key(id1, id2), validity, c.ttl)
}

// InvalidateAll drops every memoized validity result.
func (c *SwapValidityCache) InvalidateAll(ctx context.Context) {
	if c == nil || c.cache == nil {
		return
	}
	_ = c.cache.Invalidate(ctx, swapCacheKeyPrefix+"*")
}

func (c *SwapValidityCache) key(id1, id2 string) string {
	if id2 < id1 {
		id1, id2 = id2, id1
	}
	return fmt.Sprintf("%s%s:%s", swapCacheKeyPrefix, id1, id2)
}
