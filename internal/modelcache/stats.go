package modelcache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// StatsRecorder records cache events for cross-process observability. It
// never gates cache correctness — a failing or absent recorder must not
// affect single-flight or eviction behavior, only dashboards.
type StatsRecorder interface {
	RecordHit(modelID string)
	RecordLoad(modelID string)
	RecordEviction(modelID string)
}

type noopStats struct{}

// NoopStats returns a StatsRecorder that discards every event.
func NoopStats() StatsRecorder { return noopStats{} }

func (noopStats) RecordHit(string)      {}
func (noopStats) RecordLoad(string)     {}
func (noopStats) RecordEviction(string) {}

// redisStats mirrors cache-coordinator's local+Redis split: the local LRU
// above is authoritative, Redis only aggregates counters for a
// cross-process dashboard view.
type redisStats struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisStats builds a StatsRecorder backed by addr/db. Redis operations
// use a short, fire-and-forget timeout; failures are swallowed since stats
// are observability-only.
func NewRedisStats(addr string, db int) StatsRecorder {
	return &redisStats{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ctx:    context.Background(),
	}
}

func (r *redisStats) RecordHit(modelID string) {
	r.incr("model_cache:hits:" + modelID)
}

func (r *redisStats) RecordLoad(modelID string) {
	r.incr("model_cache:loads:" + modelID)
}

func (r *redisStats) RecordEviction(modelID string) {
	r.incr("model_cache:evictions:" + modelID)
}

func (r *redisStats) incr(key string) {
	ctx, cancel := context.WithTimeout(r.ctx, 500*time.Millisecond)
	defer cancel()
	r.client.Incr(ctx, key)
}
