// Package broadcaster samples the scheduler, stream, and model-cache
// counters plus host stats on a fixed tick and fans a snapshot out to every
// live dashboard subscriber, grounded on enhanced-websocket-hub's
// register/unregister/broadcast channel hub (spec §4.5).
package broadcaster

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/metrics"
	"github.com/nexuscore/inference-core/internal/modelcache"
	"github.com/nexuscore/inference-core/internal/scheduler"
	"github.com/nexuscore/inference-core/internal/stream"
)

// HostStats is a coarse process-level resource sample (spec §4.5 "host OS").
type HostStats struct {
	Goroutines int    `json:"goroutines"`
	HeapBytes  uint64 `json:"heap_bytes"`
}

// Snapshot is the periodic document pushed to every subscriber.
type Snapshot struct {
	Timestamp time.Time                `json:"timestamp"`
	Scheduler scheduler.Stats          `json:"scheduler"`
	Cache     modelcache.Stats         `json:"model_cache"`
	Streams   map[string]stream.Stats  `json:"streams"`
	Host      HostStats                `json:"host"`
}

// Subscriber is a slow-consumer-safe push destination. The broadcaster
// drops (disconnects) a subscriber whose channel is full rather than
// blocking the sampling loop (spec §4.5).
type Subscriber struct {
	id   uint64
	send chan Snapshot
	done chan struct{}
}

// Send attempts a non-blocking delivery. Returns false if the subscriber's
// channel was full, signalling the caller should disconnect it.
func (s *Subscriber) Send(snap Snapshot) bool {
	select {
	case s.send <- snap:
		return true
	default:
		return false
	}
}

// C is the channel subscribers read snapshots from.
func (s *Subscriber) C() <-chan Snapshot { return s.send }

// Done is closed when the subscriber has been disconnected.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Samplers bundles the read-only accessors the Broadcaster polls each tick.
type Samplers struct {
	Scheduler *scheduler.Scheduler
	Cache     *modelcache.Cache
	Streams   *stream.Manager
}

// Broadcaster runs the single sampling goroutine and owns the subscriber set.
type Broadcaster struct {
	samplers Samplers
	interval time.Duration
	depth    int
	logger   *zap.Logger

	nc      *nats.Conn
	subject string

	metrics *metrics.Registry

	mu          sync.Mutex
	subscribers map[uint64]*Subscriber
	nextID      uint64
}

// SetMetrics attaches the Prometheus collectors this broadcaster increments
// at its subscribe/unsubscribe call sites. Safe to leave unset.
func (b *Broadcaster) SetMetrics(m *metrics.Registry) {
	b.metrics = m
}

// New builds a Broadcaster. natsConn may be nil, in which case snapshots are
// only fanned out to local subscribers (spec §4.5 describes NATS fan-out as
// an optional cross-process extension, not a requirement).
func New(samplers Samplers, interval time.Duration, subscriberDepth int, nc *nats.Conn, natsSubject string, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		samplers:    samplers,
		interval:    interval,
		depth:       subscriberDepth,
		logger:      logger,
		nc:          nc,
		subject:     natsSubject,
		subscribers: make(map[uint64]*Subscriber),
	}
}

// Subscribe registers a new subscriber and returns it; the caller must call
// Unsubscribe when done (e.g. on websocket disconnect).
func (b *Broadcaster) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscriber{
		id:   b.nextID,
		send: make(chan Snapshot, b.depth),
		done: make(chan struct{}),
	}
	b.subscribers[sub.id] = sub
	if b.metrics != nil {
		b.metrics.DashboardSubscribers.Inc()
	}
	return sub
}

// Unsubscribe removes a subscriber, closing its done channel.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub.id]; ok {
		delete(b.subscribers, sub.id)
		close(sub.done)
		if b.metrics != nil {
			b.metrics.DashboardSubscribers.Dec()
		}
	}
}

// SubscriberCount reports the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// RequestSnapshot builds and returns one snapshot immediately, for
// subscribers that ask for it out of band rather than waiting for the next
// tick (spec §4.5).
func (b *Broadcaster) RequestSnapshot() Snapshot {
	return b.sample()
}

// Run samples and broadcasts every interval until ctx is canceled.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.broadcast(b.sample())
		}
	}
}

func (b *Broadcaster) sample() Snapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	streamStats := make(map[string]stream.Stats)
	if b.samplers.Streams != nil {
		for _, camID := range b.samplers.Streams.List() {
			if session, ok := b.samplers.Streams.Get(camID); ok {
				streamStats[camID] = session.Stats()
			}
		}
	}

	var schedStats scheduler.Stats
	if b.samplers.Scheduler != nil {
		schedStats = b.samplers.Scheduler.Stats()
	}
	var cacheStats modelcache.Stats
	if b.samplers.Cache != nil {
		cacheStats = b.samplers.Cache.Snapshot()
	}

	return Snapshot{
		Timestamp: time.Now(),
		Scheduler: schedStats,
		Cache:     cacheStats,
		Streams:   streamStats,
		Host: HostStats{
			Goroutines: runtime.NumGoroutine(),
			HeapBytes:  memStats.HeapAlloc,
		},
	}
}

func (b *Broadcaster) broadcast(snap Snapshot) {
	b.mu.Lock()
	toDrop := make([]*Subscriber, 0)
	for _, sub := range b.subscribers {
		if !sub.Send(snap) {
			toDrop = append(toDrop, sub)
		}
	}
	for _, sub := range toDrop {
		delete(b.subscribers, sub.id)
	}
	b.mu.Unlock()

	if b.metrics != nil && len(toDrop) > 0 {
		for range toDrop {
			b.metrics.DashboardSubscribers.Dec()
		}
	}
	for _, sub := range toDrop {
		close(sub.done)
		if b.logger != nil {
			b.logger.Warn("dashboard subscriber disconnected: send buffer full")
		}
	}

	if b.nc != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := b.nc.Publish(b.subject, payload); err != nil && b.logger != nil {
				b.logger.Warn("nats snapshot publish failed", zap.Error(err))
			}
		}
	}
}
