package modelcache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/metrics"
	"github.com/nexuscore/inference-core/internal/provider"
)

// LoadFunc fetches and loads a model, returning its handle and the number of
// bytes it occupies. It runs outside the cache's lock (spec §4.2, §4.4).
type LoadFunc func(ctx context.Context) (provider.Handle, int64, error)

// loadCall coalesces concurrent Get calls for the same model ID into one
// in-flight load (spec §8 scenario 2: single-flight).
type loadCall struct {
	wg    sync.WaitGroup
	entry *Entry
	err   error
}

// Cache is the LRU, memory-bounded model cache (spec §4.2).
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	maxBytes   int64
	totalBytes int64

	order *list.List // front = most recently used
	items map[string]*list.Element
	loading map[string]*loadCall

	hits      int64
	misses    int64
	loads     int64
	evictions int64

	logger  *zap.Logger
	stats   StatsRecorder
	metrics *metrics.Registry
}

// New builds a Cache. maxEntries and maxBytes follow spec §6 configuration;
// stats may be nil (use NoopStats()).
func New(maxEntries int, maxBytes int64, logger *zap.Logger, stats StatsRecorder) *Cache {
	if stats == nil {
		stats = NoopStats()
	}
	return &Cache{
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
		order:      list.New(),
		items:      make(map[string]*list.Element),
		loading:    make(map[string]*loadCall),
		logger:     logger,
		stats:      stats,
	}
}

// SetMetrics attaches the Prometheus collectors this cache increments at its
// hit/miss/load/eviction call sites. Safe to leave unset.
func (c *Cache) SetMetrics(m *metrics.Registry) {
	c.metrics = m
}

// reportOccupancy refreshes the cache size gauges from a fresh lock
// acquisition, decoupled from whatever locked section triggered it.
func (c *Cache) reportOccupancy() {
	if c.metrics == nil {
		return
	}
	c.mu.Lock()
	entries := len(c.items)
	bytes := c.totalBytes
	c.mu.Unlock()
	c.metrics.CacheEntries.Set(float64(entries))
	c.metrics.CacheBytes.Set(float64(bytes))
}

// Get returns the cached entry for modelID, loading it via load if absent.
// The returned release func must be called when the caller is done using the
// entry, dropping its pin so it becomes eligible for eviction again.
func (c *Cache) Get(ctx context.Context, modelID string, fw provider.Framework, load LoadFunc) (*Entry, func(), error) {
	c.mu.Lock()
	if elem, ok := c.items[modelID]; ok {
		entry := c.touchLocked(elem)
		c.hits++
		c.mu.Unlock()
		c.stats.RecordHit(modelID)
		if c.metrics != nil {
			c.metrics.CacheHits.Inc()
		}
		return entry, c.releaseFunc(entry), nil
	}

	if call, ok := c.loading[modelID]; ok {
		c.misses++
		c.mu.Unlock()
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
		call.wg.Wait()
		if call.err != nil {
			return nil, nil, call.err
		}
		// The load that just finished already inserted and pinned the entry
		// under lock; pin it again on this waiter's behalf without counting
		// a second hit (spec §8 scenario 2: concurrent misses never become
		// hits just by waiting on the same in-flight load).
		c.mu.Lock()
		entry := call.entry
		entry.refCount++
		c.mu.Unlock()
		return entry, c.releaseFunc(entry), nil
	}

	c.misses++
	call := &loadCall{}
	call.wg.Add(1)
	c.loading[modelID] = call
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.CacheMisses.Inc()
	}

	loadStart := time.Now()
	handle, size, err := load(ctx)
	if c.metrics != nil {
		c.metrics.ModelLoadSeconds.Observe(time.Since(loadStart).Seconds())
	}

	c.mu.Lock()
	delete(c.loading, modelID)
	if err != nil {
		call.err = err
		c.mu.Unlock()
		call.wg.Done()
		return nil, nil, err
	}

	entry := &Entry{
		ModelID:    modelID,
		Framework:  fw,
		Handle:     handle,
		SizeBytes:  size,
		LoadedAt:   time.Now(),
		LastUsedAt: time.Now(),
		refCount:   1,
	}
	c.ensureCapacityLocked(size)
	elem := c.order.PushFront(entry)
	c.items[modelID] = elem
	c.totalBytes += size
	c.loads++
	call.entry = entry
	c.mu.Unlock()

	call.wg.Done()
	c.stats.RecordLoad(modelID)
	c.reportOccupancy()
	return entry, c.releaseFunc(entry), nil
}

func (c *Cache) touchLocked(elem *list.Element) *Entry {
	c.order.MoveToFront(elem)
	entry := elem.Value.(*Entry)
	entry.refCount++
	entry.LastUsedAt = time.Now()
	return entry
}

// releaseFunc drops entry's pin. If entry was already evicted from the
// table while pinned, the last release closes its handle (spec.md: "its
// underlying handle is not freed until the last reference is released").
func (c *Cache) releaseFunc(entry *Entry) func() {
	return func() {
		c.mu.Lock()
		if entry.refCount > 0 {
			entry.refCount--
		}
		closeNow := entry.evicted && entry.refCount == 0
		c.mu.Unlock()

		if closeNow && entry.Handle != nil {
			if err := entry.Handle.Close(); err != nil && c.logger != nil {
				c.logger.Warn("error closing evicted model handle",
					zap.String("model_id", entry.ModelID), zap.Error(err))
			}
		}
	}
}

// ensureCapacityLocked evicts entries by count then by bytes until room
// exists for an entry of newSize, mirroring model_cache.py's
// _ensure_cache_capacity: count limit first, then memory limit.
func (c *Cache) ensureCapacityLocked(newSize int64) {
	for len(c.items) >= c.maxEntries && c.maxEntries > 0 {
		if !c.evictOneLocked() {
			break
		}
	}
	for c.totalBytes+newSize > c.maxBytes && c.maxBytes > 0 {
		if !c.evictOneLocked() {
			break
		}
	}
}

// evictOneLocked evicts the least-recently-used entry from the table,
// pinned or not (spec.md: "An entry currently serving a job MAY be evicted
// from the cache table; its underlying handle is not freed until the last
// reference is released"). A pinned victim is marked evicted and its handle
// closed later by releaseFunc once the last reference drops.
func (c *Cache) evictOneLocked() bool {
	elem := c.order.Back()
	if elem == nil {
		return false
	}
	entry := elem.Value.(*Entry)
	c.order.Remove(elem)
	delete(c.items, entry.ModelID)
	c.totalBytes -= entry.SizeBytes
	c.evictions++
	c.stats.RecordEviction(entry.ModelID)
	if c.metrics != nil {
		c.metrics.CacheEvictions.Inc()
	}

	if entry.refCount > 0 {
		entry.evicted = true
		return true
	}
	if entry.Handle != nil {
		if err := entry.Handle.Close(); err != nil && c.logger != nil {
			c.logger.Warn("error closing evicted model handle",
				zap.String("model_id", entry.ModelID), zap.Error(err))
		}
	}
	return true
}

// Invalidate removes a model from the cache table if present (spec.md:
// "removes the entry (no-op if absent)"). A pinned entry is removed from the
// table immediately too; its handle closes once the last reference drops.
func (c *Cache) Invalidate(modelID string) error {
	c.mu.Lock()
	elem, ok := c.items[modelID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	entry := elem.Value.(*Entry)
	c.order.Remove(elem)
	delete(c.items, modelID)
	c.totalBytes -= entry.SizeBytes
	pinned := entry.refCount > 0
	if pinned {
		entry.evicted = true
	}
	c.mu.Unlock()
	c.reportOccupancy()

	if pinned {
		return nil
	}
	if entry.Handle != nil {
		return entry.Handle.Close()
	}
	return nil
}

// Stats summarizes the cache's current occupancy and lifetime counters
// (spec §4.2, §6).
type Stats struct {
	Entries    int
	TotalBytes int64
	MaxEntries int
	MaxBytes   int64
	Hits       int64
	Misses     int64
	Loads      int64
	Evictions  int64
	HitRate    float64
	Keys       []string
}

// Snapshot reports the cache's current size and counters.
func (c *Cache) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for k := range c.items {
		keys = append(keys, k)
	}

	var hitRate float64
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}

	return Stats{
		Entries:    len(c.items),
		TotalBytes: c.totalBytes,
		MaxEntries: c.maxEntries,
		MaxBytes:   c.maxBytes,
		Hits:       c.hits,
		Misses:     c.misses,
		Loads:      c.loads,
		Evictions:  c.evictions,
		HitRate:    hitRate,
		Keys:       keys,
	}
}
