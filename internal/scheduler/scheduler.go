// Package scheduler implements the bounded priority job queue and worker
// pool described by the inference scheduler spec.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/corerr"
	"github.com/nexuscore/inference-core/internal/job"
	"github.com/nexuscore/inference-core/internal/metrics"
)

// Executor runs a single job against whatever backs the scheduler (normally
// the provider registry) and returns its output.
type Executor func(ctx context.Context, j *job.Job) (interface{}, error)

// Config mirrors config.SchedulerConfig without importing the config package,
// keeping scheduler free to be used independently of viper-based loading.
type Config struct {
	MaxQueueDepth int
	MaxWorkers    int
	JobTTL        time.Duration
}

// Scheduler is the bounded priority job queue plus worker pool (spec §4.1, §5).
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    *jobHeap
	closed  bool
	started bool

	cfg      Config
	registry *Registry
	executor Executor
	logger   *zap.Logger
	metrics  *metrics.Registry

	sem chan struct{}
	wg  sync.WaitGroup

	totalJobs     int64
	completedJobs int64
	failedJobs    int64
	runningJobs   int64
}

// Stats reports the scheduler's counters for the dashboard and debug
// surfaces (spec §4.1, §6).
type Stats struct {
	Total     int64
	Completed int64
	Failed    int64
	QueueSize int
	Running   int64
}

// Stats returns a point-in-time snapshot of the scheduler's counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Total:     atomic.LoadInt64(&s.totalJobs),
		Completed: atomic.LoadInt64(&s.completedJobs),
		Failed:    atomic.LoadInt64(&s.failedJobs),
		QueueSize: s.QueueDepth(),
		Running:   atomic.LoadInt64(&s.runningJobs),
	}
}

// New creates a Scheduler. Call Start to begin dispatching.
func New(cfg Config, registry *Registry, executor Executor, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		heap:     newJobHeap(),
		cfg:      cfg,
		registry: registry,
		executor: executor,
		logger:   logger,
		sem:      make(chan struct{}, cfg.MaxWorkers),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetMetrics attaches the Prometheus collectors this scheduler increments at
// its submit/dispatch/complete call sites. Safe to leave unset (nil checks
// guard every use) — tests construct schedulers without a metrics registry.
func (s *Scheduler) SetMetrics(m *metrics.Registry) {
	s.metrics = m
}

// Start launches the dispatch loop. It returns once ctx is canceled and
// every in-flight job has finished. A second call on an already running (or
// already stopped) Scheduler returns corerr.ErrAlreadyRunning instead of
// spawning a second dispatch loop against the same heap/cond (spec §4.1, §8).
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return corerr.ErrAlreadyRunning
	}
	s.started = true
	s.mu.Unlock()

	s.dispatchLoop(ctx)
	s.wg.Wait()
	return nil
}

// Submit enqueues a job, rejecting it if the queue is at capacity or the
// scheduler is shutting down (spec §4.1, §7).
func (s *Scheduler) Submit(j *job.Job) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return corerr.ErrShuttingDown
	}
	if s.heap.len() >= s.cfg.MaxQueueDepth {
		s.mu.Unlock()
		return corerr.ErrQueueFull
	}
	s.heap.push(j)
	s.registry.Add(j)
	depth := s.heap.len()
	s.mu.Unlock()
	atomic.AddInt64(&s.totalJobs, 1)
	if s.metrics != nil {
		s.metrics.JobsSubmitted.Inc()
		s.metrics.QueueDepth.Set(float64(depth))
	}
	s.cond.Signal()
	return nil
}

// Stop rejects further submissions, fails every job still queued with
// ErrShuttingDown, and wakes the dispatch loop so it exits. It does not wait
// for in-flight workers; Start returns once they have finished.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	s.drainLocked()
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Scheduler) dispatchLoop(ctx context.Context) {
	for {
		// Claim a worker slot before taking a job off the heap, so a job
		// stays queued (counted against MaxQueueDepth and ordered against
		// later submissions) until a worker can actually run it.
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		s.mu.Lock()
		for s.heap.len() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.drainLocked()
			s.mu.Unlock()
			<-s.sem
			return
		}
		next := s.heap.pop()
		depth := s.heap.len()
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.QueueDepth.Set(float64(depth))
		}

		s.wg.Add(1)
		go s.runWorker(ctx, next)
	}
}

// drainLocked fails every job still sitting in the queue at shutdown (spec
// §4.1: "marking un-dispatched pending jobs as failed with reason
// shutting_down"). Caller must hold s.mu.
func (s *Scheduler) drainLocked() {
	for s.heap.len() > 0 {
		j := s.heap.pop()
		j.Status = job.StatusFailed
		j.CompletedAt = time.Now()
		j.Result = job.Result{Err: corerr.ErrShuttingDown}
		atomic.AddInt64(&s.failedJobs, 1)
		if s.metrics != nil {
			s.metrics.JobsFailed.Inc()
		}
		close(j.Done)
	}
	if s.metrics != nil {
		s.metrics.QueueDepth.Set(0)
	}
}

func (s *Scheduler) runWorker(ctx context.Context, j *job.Job) {
	defer s.wg.Done()
	defer func() { <-s.sem }()
	defer func() {
		if r := recover(); r != nil {
			j.Status = job.StatusFailed
			j.CompletedAt = time.Now()
			j.Result = job.Result{Err: fmt.Errorf("%w: %v", corerr.ErrWorkerCrashed, r)}
			atomic.AddInt64(&s.failedJobs, 1)
			atomic.AddInt64(&s.runningJobs, -1)
			if s.metrics != nil {
				s.metrics.JobsFailed.Inc()
				s.metrics.ActiveWorkers.Dec()
			}
			close(j.Done)
			if s.logger != nil {
				s.logger.Error("worker panic", zap.String("job_id", j.ID), zap.Any("panic", r))
			}
		}
	}()

	j.Status = job.StatusRunning
	j.StartedAt = time.Now()
	atomic.AddInt64(&s.runningJobs, 1)
	if s.metrics != nil {
		s.metrics.ActiveWorkers.Inc()
	}

	out, err := s.executor(ctx, j)

	atomic.AddInt64(&s.runningJobs, -1)
	if s.metrics != nil {
		s.metrics.ActiveWorkers.Dec()
	}
	j.CompletedAt = time.Now()
	if err != nil {
		j.Status = job.StatusFailed
		j.Result = job.Result{Err: err}
		atomic.AddInt64(&s.failedJobs, 1)
		if s.metrics != nil {
			s.metrics.JobsFailed.Inc()
		}
	} else {
		j.Status = job.StatusCompleted
		j.Result = job.Result{Output: out}
		atomic.AddInt64(&s.completedJobs, 1)
		if s.metrics != nil {
			s.metrics.JobsCompleted.Inc()
		}
	}
	close(j.Done)
}

// QueueDepth returns the number of jobs currently waiting to be dispatched.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.heap.len()
}
