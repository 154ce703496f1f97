// Package events appends motion and detection events to the document
// store's camera_events collection and archives completed jobs, mirroring
// stream_manager.py's "log, never block" write pattern (spec §4.4).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/job"
	"github.com/nexuscore/inference-core/internal/motion"
	"github.com/nexuscore/inference-core/internal/provider"
	"github.com/nexuscore/inference-core/internal/store"
)

// EventType distinguishes the two document shapes the core writes (spec §3).
type EventType string

const (
	TypeMotionDetected EventType = "motion_detected"
	TypeDetection       EventType = "detection"
)

// Emitter writes Events to a DocumentStore and archives terminal jobs. Write
// failures are logged and never propagated to callers (spec §4.4).
type Emitter struct {
	docs             store.DocumentStore
	eventsCollection string
	jobsCollection   string
	logger           *zap.Logger
}

// New builds an Emitter bound to a DocumentStore and its collection names.
func New(docs store.DocumentStore, eventsCollection, jobsCollection string, logger *zap.Logger) *Emitter {
	return &Emitter{
		docs:             docs,
		eventsCollection: eventsCollection,
		jobsCollection:   jobsCollection,
		logger:           logger,
	}
}

// EmitMotion satisfies stream.EventSink. It writes a motion_detected
// document with the pixel count, contour count, and bounding boxes (spec
// §3 Event, §4.3 step 6).
func (e *Emitter) EmitMotion(ctx context.Context, cameraID string, wallTime time.Time, ev motion.Event) {
	doc := store.Document{
		"event_id":  uuid.NewString(),
		"camera_id": cameraID,
		"type":      string(TypeMotionDetected),
		"wall_time": wallTime,
		"metadata": store.Document{
			"motion_pixels":  ev.MotionPixels,
			"contour_count":  ev.ContourCount,
			"bounding_boxes": boundingBoxDocs(ev.BoundingBoxes),
		},
	}
	e.insert(ctx, doc)
}

// EmitDetection writes a detection document for a camera-sourced inference
// result (spec §3 Event; the detection-event counterpart to EmitMotion).
// Neither the stream pipeline nor the scheduler calls it.
func (e *Emitter) EmitDetection(ctx context.Context, cameraID string, wallTime time.Time, result provider.DetectionResult) {
	doc := store.Document{
		"event_id":  uuid.NewString(),
		"camera_id": cameraID,
		"type":      string(TypeDetection),
		"wall_time": wallTime,
		"metadata": store.Document{
			"detections":     detectionDocs(result.Detections),
			"num_detections": result.NumDetections,
			"confidence_avg": result.ConfidenceAvg,
			"image_width":    result.ImageWidth,
			"image_height":   result.ImageHeight,
		},
	}
	e.insert(ctx, doc)
}

func (e *Emitter) insert(ctx context.Context, doc store.Document) {
	if err := e.docs.InsertOne(ctx, e.eventsCollection, doc); err != nil && e.logger != nil {
		e.logger.Warn("event insert failed", zap.Error(err), zap.String("collection", e.eventsCollection))
	}
}

// ArchiveJob is wired as a scheduler.Registry onEvict callback: a terminal
// job swept by GC is written to the jobs archive collection before it is
// dropped from the in-memory registry.
func (e *Emitter) ArchiveJob(j *job.Job) {
	doc := store.Document{
		"id":           j.ID,
		"model_ref":    j.ModelRef,
		"kind":         string(j.Kind),
		"priority":     j.Priority,
		"submitted_at": j.SubmittedAt,
		"started_at":   j.StartedAt,
		"completed_at": j.CompletedAt,
		"status":       string(j.Status),
	}
	if j.Result.Err != nil {
		doc["error"] = j.Result.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.docs.InsertOne(ctx, e.jobsCollection, doc); err != nil && e.logger != nil {
		e.logger.Warn("job archive insert failed", zap.Error(err), zap.String("job_id", j.ID))
	}
}

func boundingBoxDocs(boxes []motion.BoundingBox) []store.Document {
	docs := make([]store.Document, len(boxes))
	for i, b := range boxes {
		docs[i] = store.Document{
			"x": b.X, "y": b.Y, "width": b.Width, "height": b.Height, "area": b.Area,
		}
	}
	return docs
}

func detectionDocs(detections []provider.Detection) []store.Document {
	docs := make([]store.Document, len(detections))
	for i, d := range detections {
		docs[i] = store.Document{
			"class_id":   d.ClassID,
			"class_name": d.ClassName,
			"confidence": d.Confidence,
			"bbox":       d.BBox,
		}
	}
	return docs
}
