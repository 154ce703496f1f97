package stream

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nexuscore/inference-core/internal/corerr"
	"github.com/nexuscore/inference-core/internal/metrics"
)

// Manager owns every camera Session, mirroring the map-plus-mutex shape of
// go-services/ml-stream-processor's MLStreamProcessor.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	cfg     Config
	sink    EventSink
	logger  *zap.Logger
	metrics *metrics.Registry
}

// SetMetrics attaches the Prometheus collectors this manager and every
// session it creates increment. Safe to leave unset; call before AddCamera
// so existing sessions aren't left uninstrumented.
func (m *Manager) SetMetrics(reg *metrics.Registry) {
	m.mu.Lock()
	m.metrics = reg
	m.mu.Unlock()
}

// NewManager builds an empty Manager.
func NewManager(cfg Config, sink EventSink, logger *zap.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		sink:     sink,
		logger:   logger,
	}
}

// AddCamera creates and starts a session for params.CameraID. Returns an
// error wrapping corerr.ErrAlreadyExists if a session already exists for
// that camera.
func (m *Manager) AddCamera(ctx context.Context, params SessionParams, source SourceFactory) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[params.CameraID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("camera %s: %w", params.CameraID, corerr.ErrAlreadyExists)
	}
	session := NewSession(params, m.cfg, source, m.sink, m.logger)
	session.SetMetrics(m.metrics)
	m.sessions[params.CameraID] = session
	reg := m.metrics
	m.mu.Unlock()

	session.Start(ctx)
	if reg != nil {
		reg.StreamsActive.Inc()
	}
	return session, nil
}

// RemoveCamera stops and forgets a session.
func (m *Manager) RemoveCamera(cameraID string) error {
	m.mu.Lock()
	session, exists := m.sessions[cameraID]
	if exists {
		delete(m.sessions, cameraID)
	}
	reg := m.metrics
	m.mu.Unlock()

	if !exists {
		return corerr.ErrNotFound
	}
	session.Stop()
	if reg != nil {
		reg.StreamsActive.Dec()
	}
	return nil
}

// Get returns the session for cameraID, if any.
func (m *Manager) Get(cameraID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[cameraID]
	return session, ok
}

// List returns every active camera ID.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// StopAll stops every session; used on process shutdown.
func (m *Manager) StopAll() {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Stop()
		}(s)
	}
	wg.Wait()
}
