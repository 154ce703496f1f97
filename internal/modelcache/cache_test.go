package modelcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexuscore/inference-core/internal/provider"
)

type fakeHandle struct {
	size   int64
	closed int32
}

func (h *fakeHandle) Framework() provider.Framework { return provider.FrameworkONNX }
func (h *fakeHandle) Predict(ctx context.Context, image []byte, params provider.Params) (provider.DetectionResult, error) {
	return provider.DetectionResult{}, nil
}
func (h *fakeHandle) Close() error {
	atomic.StoreInt32(&h.closed, 1)
	return nil
}
func (h *fakeHandle) SizeBytes() int64 { return h.size }

// TestSingleFlight reproduces spec §8 scenario 2: 5 concurrent Get calls for
// the same model ID during a slow load result in exactly one load.
func TestSingleFlight(t *testing.T) {
	c := New(100, 1_000_000, nil, nil)

	var loadCount int32
	load := func(ctx context.Context) (provider.Handle, int64, error) {
		atomic.AddInt32(&loadCount, 1)
		time.Sleep(200 * time.Millisecond)
		return &fakeHandle{size: 10}, 10, nil
	}

	var wg sync.WaitGroup
	results := make([]*Entry, 5)
	releases := make([]func(), 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, release, err := c.Get(context.Background(), "model-a", provider.FrameworkONNX, load)
			if err != nil {
				t.Errorf("get %d: %v", i, err)
				return
			}
			results[i] = entry
			releases[i] = release
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&loadCount); got != 1 {
		t.Fatalf("load called %d times, want 1", got)
	}
	for i := 1; i < 5; i++ {
		if results[i] != results[0] {
			t.Fatalf("goroutine %d got a different entry than goroutine 0", i)
		}
	}
	for _, release := range releases {
		if release != nil {
			release()
		}
	}
}

// TestLRUByBytesEviction reproduces spec §8 scenario 3: max_entries=100,
// max_bytes=300; loading a fourth 100-byte model evicts the
// least-recently-used entry once the byte bound would be exceeded.
func TestLRUByBytesEviction(t *testing.T) {
	c := New(100, 300, nil, nil)
	ctx := context.Background()

	loadSize := func(size int64) LoadFunc {
		return func(ctx context.Context) (provider.Handle, int64, error) {
			return &fakeHandle{size: size}, size, nil
		}
	}

	get := func(id string, size int64) {
		_, release, err := c.Get(ctx, id, provider.FrameworkONNX, loadSize(size))
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		release()
	}

	get("m1", 100)
	get("m2", 100)
	get("m3", 100)
	// cache now holds m1,m2,m3 totalling 300 bytes, at the bound.

	// Touch m1 so it is most-recently-used, leaving m2 as the LRU victim.
	get("m1", 100)

	// Loading a 4th 100-byte model must evict m2 (LRU among m2,m3).
	get("m4", 100)

	snap := c.Snapshot()
	if snap.TotalBytes > 300 {
		t.Fatalf("total bytes = %d, want <= 300", snap.TotalBytes)
	}

	c.mu.Lock()
	_, hasM2 := c.items["m2"]
	_, hasM1 := c.items["m1"]
	_, hasM4 := c.items["m4"]
	c.mu.Unlock()

	if hasM2 {
		t.Fatal("expected m2 to be evicted as LRU victim")
	}
	if !hasM1 || !hasM4 {
		t.Fatal("expected m1 (recently touched) and m4 (just loaded) to remain cached")
	}
}

// TestPinnedEntryEvictedFromTableButHandleKeptOpen reproduces spec.md's "An
// entry currently serving a job MAY be evicted from the cache table; its
// underlying handle is not freed until the last reference is released": a
// pinned entry can still be chosen as the LRU victim and disappears from the
// table immediately, but its handle stays open until the holder releases it.
func TestPinnedEntryEvictedFromTableButHandleKeptOpen(t *testing.T) {
	c := New(2, 1_000_000, nil, nil)
	ctx := context.Background()

	pinnedHandle := &fakeHandle{size: 10}
	loadSize := func(h provider.Handle, size int64) LoadFunc {
		return func(ctx context.Context) (provider.Handle, int64, error) {
			return h, size, nil
		}
	}

	pinnedEntry, release1, err := c.Get(ctx, "pinned", provider.FrameworkONNX, loadSize(pinnedHandle, 10))
	if err != nil {
		t.Fatalf("get pinned: %v", err)
	}
	// do not release pinned's reference yet

	get := func(id string) {
		_, release, err := c.Get(ctx, id, provider.FrameworkONNX, loadSize(&fakeHandle{size: 10}, 10))
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		release()
	}
	get("other1")
	get("other2") // max_entries=2, forces an eviction; "pinned" is the LRU victim

	c.mu.Lock()
	_, stillInTable := c.items["pinned"]
	entries := len(c.items)
	c.mu.Unlock()
	if stillInTable {
		t.Fatal("pinned entry should have been removed from the table as the LRU victim")
	}
	if entries > 2 {
		t.Fatalf("entries = %d, want <= max_entries (2)", entries)
	}
	if atomic.LoadInt32(&pinnedHandle.closed) != 0 {
		t.Fatal("pinned entry's handle was closed before its last reference was released")
	}
	if !pinnedEntry.evicted {
		t.Fatal("expected evicted entry to be marked evicted")
	}

	release1()
	if atomic.LoadInt32(&pinnedHandle.closed) != 1 {
		t.Fatal("expected handle to close once the last reference was released")
	}
}

// TestThreePinnedEntriesStayWithinMaxEntries reproduces the §8 invariant
// entries <= max_entries even when more distinct models are concurrently
// pinned than max_entries allows: pinned entries must still leave the table
// when evicted, or the table would grow unbounded.
func TestThreePinnedEntriesStayWithinMaxEntries(t *testing.T) {
	c := New(2, 1_000_000, nil, nil)
	ctx := context.Background()

	loadSize := func(size int64) LoadFunc {
		return func(ctx context.Context) (provider.Handle, int64, error) {
			return &fakeHandle{size: size}, size, nil
		}
	}

	var releases []func()
	for _, id := range []string{"p1", "p2", "p3"} {
		_, release, err := c.Get(ctx, id, provider.FrameworkONNX, loadSize(10))
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		releases = append(releases, release)
	}

	snap := c.Snapshot()
	if snap.Entries > 2 {
		t.Fatalf("entries = %d, want <= max_entries (2)", snap.Entries)
	}

	for _, release := range releases {
		release()
	}
}
