// Package job defines the unit of work the scheduler dispatches.
package job

import "time"

// Status is the lifecycle state of a Job. The original inference queue this
// is grounded on spelled its status enum two different ways across the
// codebase ("PROCESSING" vs "RUNNING"); this picks the single spelling the
// spec resolves on: {pending, running, completed, failed}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Kind identifies what an inference job asks a provider to do.
type Kind string

const (
	KindDetect  Kind = "detect"
	KindSegment Kind = "segment"
	KindTrack   Kind = "track"
)

// Result carries the outcome of a completed or failed job. Output and Err
// are mutually exclusive.
type Result struct {
	Output interface{}
	Err    error
}

// Job is a unit of scheduled inference work (spec §3). It is immutable after
// creation except for its status/result fields.
type Job struct {
	ID          string
	ModelRef    string
	Kind        Kind
	Payload     []byte
	Params      map[string]interface{}
	Priority    int
	SubmittedAt time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Status      Status
	Result      Result

	// Done is closed once the job reaches a terminal status.
	Done chan struct{}
}

// New constructs a pending job ready for submission.
func New(id, modelRef string, kind Kind, payload []byte, params map[string]interface{}, priority int, submittedAt time.Time) *Job {
	return &Job{
		ID:          id,
		ModelRef:    modelRef,
		Kind:        kind,
		Payload:     payload,
		Params:      params,
		Priority:    priority,
		SubmittedAt: submittedAt,
		Status:      StatusPending,
		Done:        make(chan struct{}),
	}
}

// IsTerminal reports whether the job has finished (successfully or not).
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
