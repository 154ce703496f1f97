package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexuscore/inference-core/internal/corerr"
	"github.com/nexuscore/inference-core/internal/job"
)

func newTestScheduler(t *testing.T, maxWorkers int, executor Executor) *Scheduler {
	t.Helper()
	registry := NewRegistry(time.Hour, nil)
	return New(Config{MaxQueueDepth: 100, MaxWorkers: maxWorkers, JobTTL: time.Hour}, registry, executor, nil)
}

// TestPriorityOrdering follows spec §8 scenario 1: J1(p=1) is dispatched
// first and holds the single worker; J2(p=1), J3(p=5), J4(p=3) then queue
// behind it and dispatch by priority, so the order is J1, J3, J4, J2.
func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	release := make(chan struct{})
	executor := func(ctx context.Context, j *job.Job) (interface{}, error) {
		<-release
		mu.Lock()
		order = append(order, j.ID)
		mu.Unlock()
		return nil, nil
	}

	// single worker so dispatch order is observable
	s := newTestScheduler(t, 1, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	base := time.Now()
	j1 := job.New("J1", "m", job.KindDetect, nil, nil, 1, base)
	j2 := job.New("J2", "m", job.KindDetect, nil, nil, 1, base.Add(time.Millisecond))
	j3 := job.New("J3", "m", job.KindDetect, nil, nil, 5, base.Add(2*time.Millisecond))
	j4 := job.New("J4", "m", job.KindDetect, nil, nil, 3, base.Add(3*time.Millisecond))

	if err := s.Submit(j1); err != nil {
		t.Fatalf("submit j1: %v", err)
	}

	// Give the dispatcher a moment to pick up J1 and block it on `release`
	// before the remaining jobs are enqueued, so the heap actually orders
	// J2..J4 against each other.
	time.Sleep(20 * time.Millisecond)

	if err := s.Submit(j2); err != nil {
		t.Fatalf("submit j2: %v", err)
	}
	if err := s.Submit(j3); err != nil {
		t.Fatalf("submit j3: %v", err)
	}
	if err := s.Submit(j4); err != nil {
		t.Fatalf("submit j4: %v", err)
	}

	for i := 0; i < 4; i++ {
		release <- struct{}{}
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := len(order) == 4
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("jobs did not complete in time, got order %v", order)
		case <-time.After(10 * time.Millisecond):
		}
	}

	want := []string{"J1", "J3", "J4", "J2"}
	mu.Lock()
	defer mu.Unlock()
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", order, want)
		}
	}
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	executor := func(ctx context.Context, j *job.Job) (interface{}, error) {
		<-block
		return nil, nil
	}

	registry := NewRegistry(time.Hour, nil)
	s := New(Config{MaxQueueDepth: 1, MaxWorkers: 1, JobTTL: time.Hour}, registry, executor, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	now := time.Now()
	if err := s.Submit(job.New("A", "m", job.KindDetect, nil, nil, 1, now)); err != nil {
		t.Fatalf("submit A: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the single worker pick A up

	if err := s.Submit(job.New("B", "m", job.KindDetect, nil, nil, 1, now)); err != nil {
		t.Fatalf("submit B: %v", err)
	}
	if err := s.Submit(job.New("C", "m", job.KindDetect, nil, nil, 1, now)); err == nil {
		t.Fatalf("expected queue-full error submitting C")
	}
	close(block)
}

func TestWorkerPanicMarksJobFailed(t *testing.T) {
	executor := func(ctx context.Context, j *job.Job) (interface{}, error) {
		panic("boom")
	}
	s := newTestScheduler(t, 1, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	j := job.New("J", "m", job.KindDetect, nil, nil, 1, time.Now())
	if err := s.Submit(j); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-j.Done:
	case <-time.After(time.Second):
		t.Fatal("job never completed")
	}

	if j.Status != job.StatusFailed {
		t.Fatalf("status = %v, want failed", j.Status)
	}
	if j.Result.Err == nil {
		t.Fatal("expected non-nil error on panicked job")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	executor := func(ctx context.Context, j *job.Job) (interface{}, error) {
		return nil, nil
	}
	s := newTestScheduler(t, 1, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		s.Start(ctx)
	}()
	<-started
	time.Sleep(10 * time.Millisecond) // let the first Start claim s.started

	if err := s.Start(ctx); err != corerr.ErrAlreadyRunning {
		t.Fatalf("second Start() error = %v, want %v", err, corerr.ErrAlreadyRunning)
	}
}

func TestStopDrainsQueuedJobsAsFailed(t *testing.T) {
	block := make(chan struct{})
	executor := func(ctx context.Context, j *job.Job) (interface{}, error) {
		<-block
		return nil, nil
	}

	registry := NewRegistry(time.Hour, nil)
	s := New(Config{MaxQueueDepth: 10, MaxWorkers: 1, JobTTL: time.Hour}, registry, executor, nil)

	ctx := context.Background()
	started := make(chan struct{})
	go func() {
		close(started)
		s.Start(ctx)
	}()
	<-started

	now := time.Now()
	running := job.New("A", "m", job.KindDetect, nil, nil, 1, now)
	queued := job.New("B", "m", job.KindDetect, nil, nil, 1, now)
	if err := s.Submit(running); err != nil {
		t.Fatalf("submit A: %v", err)
	}
	time.Sleep(20 * time.Millisecond) // let the single worker pick A up and block
	if err := s.Submit(queued); err != nil {
		t.Fatalf("submit B: %v", err)
	}

	s.Stop()

	select {
	case <-queued.Done:
	case <-time.After(time.Second):
		t.Fatal("queued job was never drained")
	}
	if queued.Status != job.StatusFailed {
		t.Fatalf("queued job status = %v, want failed", queued.Status)
	}

	close(block)
}
