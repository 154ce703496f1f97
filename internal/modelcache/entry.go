// Package modelcache implements the LRU, memory-bounded model cache with
// single-flight loads described in spec §4.2.
package modelcache

import (
	"time"

	"github.com/nexuscore/inference-core/internal/provider"
)

// Entry is a loaded model tracked by the cache (spec §3 ModelEntry).
type Entry struct {
	ModelID    string
	Framework  provider.Framework
	Handle     provider.Handle
	SizeBytes  int64
	LoadedAt   time.Time
	LastUsedAt time.Time
	// refCount counts in-flight users of this entry. A pinned (refCount > 0)
	// entry can still be evicted from the cache table as the LRU victim
	// (spec.md: "An entry currently serving a job MAY be evicted from the
	// cache table; its underlying handle is not freed until the last
	// reference is released") — refCount only delays Handle.Close, not
	// table removal.
	refCount int
	// evicted marks an entry that has already been removed from the cache
	// table while still pinned; its handle is closed by the release func
	// that drops the last reference instead of by the evictor.
	evicted bool
}
