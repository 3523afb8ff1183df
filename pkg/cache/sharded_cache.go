package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"paperdesk/internal/domain"
)

const numShards = 16

// ShardedTickCache keeps the latest tick per market behind sharded locks,
// so the feed goroutine and API readers never contend on one mutex.
type ShardedTickCache struct {
	shards [numShards]*tickShard
}

type tickShard struct {
	mu    sync.RWMutex
	items map[string]tickEntry
}

type tickEntry struct {
	tick      domain.Tick
	updatedAt time.Time
}

// NewShardedTickCache creates an empty cache.
func NewShardedTickCache() *ShardedTickCache {
	c := &ShardedTickCache{}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &tickShard{
			items: make(map[string]tickEntry),
		}
	}
	return c
}

// getShard returns the shard for the given market.
func (c *ShardedTickCache) getShard(market string) *tickShard {
	h := fnv.New32a()
	h.Write([]byte(market))
	return c.shards[h.Sum32()%numShards]
}

// Set stores the latest tick for its market.
func (c *ShardedTickCache) Set(t domain.Tick) {
	shard := c.getShard(t.Market)
	shard.mu.Lock()
	shard.items[t.Market] = tickEntry{
		tick:      t,
		updatedAt: time.Now(),
	}
	shard.mu.Unlock()
}

// Get retrieves the latest tick for a market.
func (c *ShardedTickCache) Get(market string) (domain.Tick, bool) {
	shard := c.getShard(market)
	shard.mu.RLock()
	entry, ok := shard.items[market]
	shard.mu.RUnlock()
	return entry.tick, ok
}

// GetWithAge retrieves the latest tick and how stale it is.
func (c *ShardedTickCache) GetWithAge(market string) (domain.Tick, time.Duration, bool) {
	shard := c.getShard(market)
	shard.mu.RLock()
	entry, ok := shard.items[market]
	shard.mu.RUnlock()
	if !ok {
		return domain.Tick{}, 0, false
	}
	return entry.tick, time.Since(entry.updatedAt), true
}

// Delete removes a market from the cache.
func (c *ShardedTickCache) Delete(market string) {
	shard := c.getShard(market)
	shard.mu.Lock()
	delete(shard.items, market)
	shard.mu.Unlock()
}

// Len returns total markets across all shards.
func (c *ShardedTickCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes markets whose feed went quiet for longer than maxAge.
func (c *ShardedTickCache) Cleanup(maxAge time.Duration) int {
	removed := 0
	cutoff := time.Now().Add(-maxAge)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for mkt, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, mkt)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

// GetAll returns every cached tick keyed by market.
func (c *ShardedTickCache) GetAll() map[string]domain.Tick {
	result := make(map[string]domain.Tick)
	for _, shard := range c.shards {
		shard.mu.RLock()
		for mkt, entry := range shard.items {
			result[mkt] = entry.tick
		}
		shard.mu.RUnlock()
	}
	return result
}

// CacheStats provides cache statistics.
type CacheStats struct {
	TotalItems  int            `json:"total_items"`
	ShardCounts [numShards]int `json:"shard_counts"`
	OldestAge   time.Duration  `json:"oldest_age"`
}

// Stats returns cache statistics.
func (c *ShardedTickCache) Stats() CacheStats {
	stats := CacheStats{}
	var oldest time.Time

	for i, shard := range c.shards {
		shard.mu.RLock()
		stats.ShardCounts[i] = len(shard.items)
		stats.TotalItems += len(shard.items)
		for _, entry := range shard.items {
			if oldest.IsZero() || entry.updatedAt.Before(oldest) {
				oldest = entry.updatedAt
			}
		}
		shard.mu.RUnlock()
	}

	if !oldest.IsZero() {
		stats.OldestAge = time.Since(oldest)
	}
	return stats
}
