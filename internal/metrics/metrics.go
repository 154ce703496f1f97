// Package metrics defines the Prometheus collectors exposed for the
// scheduler, model cache, and stream pipeline, grounded on
// go-services/ml-stream-processor's MLStreamMetrics and
// cache-coordinator's gauge/counter/histogram shapes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the core registers at startup.
type Registry struct {
	JobsSubmitted   prometheus.Counter
	JobsCompleted   prometheus.Counter
	JobsFailed      prometheus.Counter
	QueueDepth      prometheus.Gauge
	ActiveWorkers   prometheus.Gauge

	CacheEntries   prometheus.Gauge
	CacheBytes     prometheus.Gauge
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter
	ModelLoadSeconds prometheus.Histogram

	StreamsActive    prometheus.Gauge
	FramesCaptured   prometheus.Counter
	FramesDropped    prometheus.Counter
	FramesProcessed  prometheus.Counter
	MotionEvents     prometheus.Counter
	ReconnectAttempts prometheus.Counter
	FrameProcessingSeconds prometheus.Histogram

	DashboardSubscribers prometheus.Gauge
}

// New builds every collector. Register them with a prometheus.Registerer
// via RegisterAll; New alone does not touch the default registry, so tests
// can construct many Registries without collector-already-registered panics.
func New() *Registry {
	return &Registry{
		JobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_jobs_submitted_total",
			Help: "Total inference jobs submitted to the scheduler.",
		}),
		JobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_jobs_completed_total",
			Help: "Total inference jobs that completed successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_jobs_failed_total",
			Help: "Total inference jobs that failed.",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inference_core_queue_depth",
			Help: "Current number of jobs waiting for a worker.",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inference_core_active_workers",
			Help: "Current number of workers executing a job.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inference_core_model_cache_entries",
			Help: "Current number of loaded models held by the cache.",
		}),
		CacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inference_core_model_cache_bytes",
			Help: "Current estimated resident bytes held by the cache.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_model_cache_hits_total",
			Help: "Total model cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_model_cache_misses_total",
			Help: "Total model cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_model_cache_evictions_total",
			Help: "Total model cache evictions.",
		}),
		ModelLoadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_core_model_load_seconds",
			Help:    "Model load latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		StreamsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inference_core_camera_streams_active",
			Help: "Current number of active camera stream sessions.",
		}),
		FramesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_frames_captured_total",
			Help: "Total frames captured across all camera sessions.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_frames_dropped_total",
			Help: "Total frames dropped by the drop-oldest frame queue.",
		}),
		FramesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_frames_processed_total",
			Help: "Total frames analyzed by the processor loop.",
		}),
		MotionEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_motion_events_total",
			Help: "Total motion_detected events emitted.",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inference_core_camera_reconnect_attempts_total",
			Help: "Total camera reconnect attempts across all sessions.",
		}),
		FrameProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "inference_core_frame_processing_seconds",
			Help:    "Per-frame motion-detection processing latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		DashboardSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inference_core_dashboard_subscribers",
			Help: "Current number of live dashboard websocket subscribers.",
		}),
	}
}

// RegisterAll registers every collector with reg.
func (r *Registry) RegisterAll(reg prometheus.Registerer) {
	reg.MustRegister(
		r.JobsSubmitted, r.JobsCompleted, r.JobsFailed, r.QueueDepth, r.ActiveWorkers,
		r.CacheEntries, r.CacheBytes, r.CacheHits, r.CacheMisses, r.CacheEvictions, r.ModelLoadSeconds,
		r.StreamsActive, r.FramesCaptured, r.FramesDropped, r.FramesProcessed, r.MotionEvents,
		r.ReconnectAttempts, r.FrameProcessingSeconds, r.DashboardSubscribers,
	)
}
