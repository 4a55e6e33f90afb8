package cache

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/agentmeshio/meshcore/internal/observability"
	"github.com/agentmeshio/meshcore/internal/ports"
)

// Stats are the cache's monotonic counters. Clear resets them.
type Stats struct {
	MemoryHits int64
	DiskHits   int64
	Misses     int64
	MemorySize int
	DiskSize   int
}

// HitRate returns the fraction of lookups satisfied by memory or disk.
func (s Stats) HitRate() float64 {
	total := s.MemoryHits + s.DiskHits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.MemoryHits+s.DiskHits) / float64(total)
}

const blobKeyPrefix = "cache/"

// Cache is the concrete two-tier Response Cache. Get consults memory, then
// disk (promoting a disk hit back into memory); Put writes memory
// synchronously and schedules an asynchronous disk write.
type Cache struct {
	mem   *memTier
	store ports.BlobStore
	ttl   time.Duration

	logger  *slog.Logger
	metrics *observability.MetricsManager

	memoryHits atomic.Int64
	diskHits   atomic.Int64
	misses     atomic.Int64

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New constructs a Cache. capacity and ttl default to 500 entries and 24h
// when zero/non-positive. store may be nil to run memory-only.
func New(store ports.BlobStore, capacity int, ttl time.Duration, logger *slog.Logger, metrics *observability.MetricsManager) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{
		mem:     newMemTier(capacity),
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// Get looks up fingerprint, consulting memory first and disk on a memory
// miss. A disk hit is promoted into memory. An expired or corrupt disk
// entry is deleted and treated as a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (CachedResponse, bool) {
	now := time.Now()

	if v, ok := c.mem.get(fingerprint, now); ok {
		c.memoryHits.Add(1)
		if c.metrics != nil {
			c.metrics.IncrementCacheHits(ctx, "memory")
		}
		return v, true
	}

	if c.store == nil {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.IncrementCacheMisses(ctx)
		}
		return CachedResponse{}, false
	}

	key := blobKeyPrefix + fingerprint
	data, found, err := c.store.Read(ctx, key)
	if err != nil || !found {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.IncrementCacheMisses(ctx)
		}
		return CachedResponse{}, false
	}

	v, err := decodeDiskRecord(data)
	if err != nil {
		c.logger.Error("cache: corrupt disk entry, deleting", "fingerprint", fingerprint, "error", err)
		_ = c.store.Delete(ctx, key)
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.IncrementCacheMisses(ctx)
		}
		return CachedResponse{}, false
	}
	if v.expired(now) {
		_ = c.store.Delete(ctx, key)
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.IncrementCacheMisses(ctx)
		}
		return CachedResponse{}, false
	}

	c.mem.put(fingerprint, v)
	c.diskHits.Add(1)
	if c.metrics != nil {
		c.metrics.IncrementCacheHits(ctx, "disk")
	}
	return v, true
}

// Put stores a response under fingerprint: synchronously into memory
// (evicting the least-recently-used entry on overflow), and asynchronously
// to disk.
func (c *Cache) Put(ctx context.Context, fingerprint, prompt, model string, params map[string]any, response string) {
	now := time.Now()
	v := CachedResponse{
		Fingerprint: fingerprint,
		Prompt:      prompt,
		Response:    response,
		Model:       model,
		Params:      params,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
	}
	c.mem.put(fingerprint, v)
	if c.metrics != nil {
		c.metrics.SetCacheSize(context.Background(), int64(c.mem.size()))
	}

	if c.store == nil {
		return
	}
	go c.writeBehind(fingerprint, v)
}

func (c *Cache) writeBehind(fingerprint string, v CachedResponse) {
	data, err := encodeDiskRecord(v)
	if err != nil {
		c.logger.Error("cache: failed to marshal entry for disk write", "fingerprint", fingerprint, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.store.Write(ctx, blobKeyPrefix+fingerprint, data); err != nil {
		c.logger.Error("cache: disk write-behind failed", "fingerprint", fingerprint, "error", err)
	}
}

// SweepExpired evicts every memory-tier entry whose TTL has elapsed. Disk
// entries are swept lazily, on next access.
func (c *Cache) SweepExpired() {
	c.mem.sweepExpired(time.Now())
}

// StartSweep launches a periodic SweepExpired loop, reclaiming memory-tier
// entries nobody has read since expiry. StopSweep must be called to release
// the background goroutine.
func (c *Cache) StartSweep(every time.Duration) {
	if every <= 0 {
		every = c.ttl
	}
	c.stopSweep = make(chan struct{})
	c.sweepDone = make(chan struct{})
	go c.sweepLoop(every)
}

func (c *Cache) sweepLoop(every time.Duration) {
	defer close(c.sweepDone)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.SweepExpired()
			stats := c.Stats()
			c.logger.Debug("cache: sweep complete",
				"memory_size", stats.MemorySize, "hit_rate", stats.HitRate())
		case <-c.stopSweep:
			return
		}
	}
}

// StopSweep halts the periodic sweep goroutine, if running.
func (c *Cache) StopSweep() {
	if c.stopSweep == nil {
		return
	}
	close(c.stopSweep)
	<-c.sweepDone
}

// Stats returns the cache's current counters.
func (c *Cache) Stats() Stats {
	return Stats{
		MemoryHits: c.memoryHits.Load(),
		DiskHits:   c.diskHits.Load(),
		Misses:     c.misses.Load(),
		MemorySize: c.mem.size(),
	}
}

// Clear empties the memory tier and resets all counters.
func (c *Cache) Clear() {
	c.mem.clear()
	c.memoryHits.Store(0)
	c.diskHits.Store(0)
	c.misses.Store(0)
}
