package stream

import (
	"context"
	"fmt"
	"image/jpeg"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/corerr"
	"github.com/nexuscore/inference-core/internal/metrics"
	"github.com/nexuscore/inference-core/internal/motion"
)

// captureFailureThreshold is the number of consecutive read failures the
// capture loop tolerates before asking the session to reconnect (spec
// §4.3 names this "K" without fixing a value).
const captureFailureThreshold = 3

// readRetryDelay is the sleep between failed reads below the threshold.
const readRetryDelay = 100 * time.Millisecond

// frameReadTimeout bounds a single ReadFrame call.
const frameReadTimeout = 5 * time.Second

// EventSink receives motion events produced by a session's processor loop.
// Event insertion failures are the sink's concern; the processor loop never
// blocks or retries on them (spec §4.4).
type EventSink interface {
	EmitMotion(ctx context.Context, cameraID string, wallTime time.Time, ev motion.Event)
}

// Config configures every session a Manager creates (spec §6).
type Config struct {
	FrameQueueCapacity    int
	FrameBufferCapacity   int
	MotionThreshold       int
	MaxReconnectAttempts  int
	ReconnectDelay        time.Duration
	JPEGQuality           int
}

// SessionParams are the per-camera parameters supplied at creation (spec §3:
// "camera_id, source_url, per-camera analytics flags").
type SessionParams struct {
	CameraID        string
	SourceURL       string
	MotionEnabled   bool
	MotionThreshold int // 0 means "use Config.MotionThreshold"
}

// Session is one camera's capture/process goroutine pair plus its buffered
// state (spec §3 StreamSession).
type Session struct {
	params  SessionParams
	cfg     Config
	source  SourceFactory
	sink    EventSink
	logger  *zap.Logger
	metrics *metrics.Registry

	frameQueue chan Frame
	buffer     *ringBuffer
	fps        *frameTimes
	procTimes  *durationSamples
	detector   *motion.Detector

	mu                sync.Mutex
	state             State
	framesCaptured    int64
	framesDropped     int64
	framesProcessed   int64
	reconnectAttempts int
	lastFrameWallTime time.Time
	errMessage        string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession builds a Session. The capture and processor goroutines start
// when Start is called.
func NewSession(params SessionParams, cfg Config, source SourceFactory, sink EventSink, logger *zap.Logger) *Session {
	threshold := params.MotionThreshold
	if threshold == 0 {
		threshold = cfg.MotionThreshold
	}

	return &Session{
		params:     params,
		cfg:        cfg,
		source:     source,
		sink:       sink,
		logger:     logger,
		frameQueue: make(chan Frame, cfg.FrameQueueCapacity),
		buffer:     newRingBuffer(cfg.FrameBufferCapacity),
		fps:        newFrameTimes(30),
		procTimes:  newDurationSamples(100),
		detector:   motion.NewDetector(threshold),
		state:      StateDisconnected,
	}
}

// SetMetrics attaches the Prometheus collectors this session increments at
// its capture/process/reconnect call sites. Safe to leave unset.
func (s *Session) SetMetrics(m *metrics.Registry) {
	s.metrics = m
}

// Start spawns the capture and processor goroutines. Idempotent: a second
// call on an already-started session is a no-op.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.state = StateConnecting
	s.mu.Unlock()

	s.wg.Add(2)
	go s.captureLoop()
	go s.processorLoop()
}

// Stop cancels both goroutines and blocks until they exit. Stop does not
// release the upstream decoder itself: the capture goroutine closes its
// source when it sees the cancellation, which can happen before the
// processor goroutine has exited.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) setError(err error) {
	s.mu.Lock()
	if err != nil {
		s.errMessage = err.Error()
	} else {
		s.errMessage = ""
	}
	s.mu.Unlock()
}

// captureLoop owns the upstream decoder for its entire lifetime, including
// reconnect attempts, satisfying "at most one capture goroutine per session"
// (spec §3).
func (s *Session) captureLoop() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}

		src := s.source()
		if err := src.Open(s.ctx, s.params.SourceURL); err != nil {
			if !s.reconnectOrStop(err) {
				return
			}
			continue
		}

		s.setState(StateRunning)
		s.setError(nil)
		consecutiveFailures := 0
		disconnected := false

		for {
			if s.ctx.Err() != nil {
				src.Close()
				return
			}

			readCtx, cancel := context.WithTimeout(s.ctx, frameReadTimeout)
			img, err := src.ReadFrame(readCtx)
			cancel()

			if err != nil {
				consecutiveFailures++
				s.setError(err)
				if consecutiveFailures >= captureFailureThreshold {
					src.Close()
					disconnected = true
					break
				}
				select {
				case <-time.After(readRetryDelay):
				case <-s.ctx.Done():
					src.Close()
					return
				}
				continue
			}

			consecutiveFailures = 0
			now := time.Now()
			frame := Frame{Image: img, WallTime: now}

			s.mu.Lock()
			s.framesCaptured++
			s.lastFrameWallTime = now
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.FramesCaptured.Inc()
			}
			s.fps.record(now)
			s.buffer.push(frame)
			s.enqueueFrame(frame)
		}

		if disconnected {
			if !s.reconnectOrStop(fmt.Errorf("%w: consecutive read failures", corerr.ErrUpstreamUnreachable)) {
				return
			}
		}
	}
}

// reconnectOrStop sleeps the reconnect delay and reports whether the caller
// should attempt to reopen the source. Returns false once attempts are
// exhausted, having already transitioned the session to stopped.
func (s *Session) reconnectOrStop(cause error) bool {
	s.mu.Lock()
	s.reconnectAttempts++
	attempts := s.reconnectAttempts
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ReconnectAttempts.Inc()
	}

	s.setError(cause)

	if attempts >= s.cfg.MaxReconnectAttempts {
		s.setState(StateStopped)
		s.setError(fmt.Errorf("%w after %d attempts", corerr.ErrMaxReconnectsExceeded, attempts))
		if s.logger != nil {
			s.logger.Warn("camera session exhausted reconnect attempts",
				zap.String("camera_id", s.params.CameraID), zap.Int("attempts", attempts))
		}
		return false
	}

	s.setState(StateReconnecting)
	select {
	case <-time.After(s.cfg.ReconnectDelay):
		return true
	case <-s.ctx.Done():
		return false
	}
}

// enqueueFrame implements drop-oldest admission to the bounded frame queue
// (spec §4.3).
func (s *Session) enqueueFrame(f Frame) {
	select {
	case s.frameQueue <- f:
		return
	default:
	}

	select {
	case <-s.frameQueue:
		s.mu.Lock()
		s.framesDropped++
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.FramesDropped.Inc()
		}
	default:
	}

	select {
	case s.frameQueue <- f:
	default:
	}
}

// processorLoop pulls frames with a 1s timeout, runs motion detection, and
// emits events; it is the sole consumer of frameQueue (spec §3 invariant).
func (s *Session) processorLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case frame := <-s.frameQueue:
			start := time.Now()
			s.processFrame(frame)
			elapsed := time.Since(start)
			s.procTimes.record(float64(elapsed.Microseconds()) / 1000.0)
			s.mu.Lock()
			s.framesProcessed++
			s.mu.Unlock()
			if s.metrics != nil {
				s.metrics.FramesProcessed.Inc()
				s.metrics.FrameProcessingSeconds.Observe(elapsed.Seconds())
			}
		case <-time.After(time.Second):
		}
	}
}

func (s *Session) processFrame(frame Frame) {
	if !s.params.MotionEnabled {
		return
	}

	gray := motion.ToGray(frame.Image)
	ev, triggered := s.detector.Detect(gray)
	if !triggered {
		return
	}
	if s.metrics != nil {
		s.metrics.MotionEvents.Inc()
	}
	if s.sink != nil {
		s.sink.EmitMotion(s.ctx, s.params.CameraID, frame.WallTime, ev)
	}
}

// Snapshot returns the most recently captured frame encoded as JPEG, or
// corerr.ErrNotFound if the ring buffer is empty (spec §4.3 snapshot
// contract).
func (s *Session) Snapshot(w io.Writer) error {
	frame, ok := s.buffer.latest()
	if !ok {
		return corerr.ErrNotFound
	}
	quality := s.cfg.JPEGQuality
	if quality == 0 {
		quality = 85
	}
	return jpeg.Encode(w, frame.Image, &jpeg.Options{Quality: quality})
}

// Stats reports the session's current observable state (spec §6).
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	p50, p95 := s.procTimes.percentiles()
	return Stats{
		IsActive:          s.state == StateRunning || s.state == StateConnecting || s.state == StateReconnecting,
		BufferSize:        s.buffer.size(),
		FramesCaptured:    s.framesCaptured,
		FramesDropped:     s.framesDropped,
		FramesProcessed:   s.framesProcessed,
		ReconnectAttempts: s.reconnectAttempts,
		LastFrameWallTime: s.lastFrameWallTime,
		ErrorMessage:      s.errMessage,
		FPSEstimate:       s.fps.estimate(),
		ProcessingMsP50:   p50,
		ProcessingMsP95:   p95,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
