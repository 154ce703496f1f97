package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nexuscore/inference-core/internal/job"
	"github.com/nexuscore/inference-core/internal/motion"
	"github.com/nexuscore/inference-core/internal/store"
)

type fakeDocStore struct {
	mu        sync.Mutex
	inserted  []string
	failOn    string
}

func (f *fakeDocStore) FindOne(ctx context.Context, collection string, filter store.Document) (store.Document, error) {
	return nil, nil
}

func (f *fakeDocStore) InsertOne(ctx context.Context, collection string, doc store.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if collection == f.failOn {
		return errInsertFailed
	}
	f.inserted = append(f.inserted, collection)
	return nil
}

func (f *fakeDocStore) UpdateOne(ctx context.Context, collection string, filter, patch store.Document) error {
	return nil
}

func (f *fakeDocStore) DeleteOne(ctx context.Context, collection string, filter store.Document) error {
	return nil
}

func (f *fakeDocStore) Count(ctx context.Context, collection string, filter store.Document) (int64, error) {
	return 0, nil
}

func (f *fakeDocStore) EnsureIndexes(ctx context.Context) error { return nil }

type insertErr string

func (e insertErr) Error() string { return string(e) }

const errInsertFailed = insertErr("insert failed")

func TestEmitMotionWrites(t *testing.T) {
	docs := &fakeDocStore{}
	e := New(docs, "camera_events", "jobs_archive", nil)

	e.EmitMotion(context.Background(), "cam1", time.Now(), motion.Event{
		MotionPixels: 11664,
		ContourCount: 1,
		BoundingBoxes: []motion.BoundingBox{{X: 6, Y: 6, Width: 108, Height: 108, Area: 11664}},
	})

	docs.mu.Lock()
	defer docs.mu.Unlock()
	if len(docs.inserted) != 1 || docs.inserted[0] != "camera_events" {
		t.Fatalf("inserted = %v, want one camera_events write", docs.inserted)
	}
}

func TestEmitMotionSwallowsInsertError(t *testing.T) {
	docs := &fakeDocStore{failOn: "camera_events"}
	e := New(docs, "camera_events", "jobs_archive", nil)

	e.EmitMotion(context.Background(), "cam1", time.Now(), motion.Event{MotionPixels: 6000})

	docs.mu.Lock()
	defer docs.mu.Unlock()
	if len(docs.inserted) != 0 {
		t.Fatalf("inserted = %v, want none (failure swallowed)", docs.inserted)
	}
}

func TestArchiveJobWrites(t *testing.T) {
	docs := &fakeDocStore{}
	e := New(docs, "camera_events", "jobs_archive", nil)

	j := job.New("job-1", "model-a", job.KindDetect, nil, nil, 1, time.Now())
	j.Status = job.StatusCompleted
	j.CompletedAt = time.Now()

	e.ArchiveJob(j)

	docs.mu.Lock()
	defer docs.mu.Unlock()
	if len(docs.inserted) != 1 || docs.inserted[0] != "jobs_archive" {
		t.Fatalf("inserted = %v, want one jobs_archive write", docs.inserted)
	}
}
