package stream

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"
)

// taggedImage is a minimal image.Image carrying an identity tag so tests can
// tell frames apart without decoding real JPEGs.
type taggedImage struct {
	id int
}

func (t *taggedImage) ColorModel() color.Model { return color.GrayModel }
func (t *taggedImage) Bounds() image.Rectangle { return image.Rect(0, 0, 1, 1) }
func (t *taggedImage) At(x, y int) color.Color { return color.Gray{Y: uint8(t.id)} }

func testConfig(queueCap int) Config {
	return Config{
		FrameQueueCapacity:   queueCap,
		FrameBufferCapacity:  60,
		MotionThreshold:      5000,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       time.Millisecond,
		JPEGQuality:          85,
	}
}

func TestEnqueueFrameDropsOldest(t *testing.T) {
	s := NewSession(
		SessionParams{CameraID: "cam1", SourceURL: "fake://cam1"},
		testConfig(2),
		func() FrameSource { return nil },
		nil,
		nil,
	)

	frames := []Frame{
		{Image: &taggedImage{id: 1}},
		{Image: &taggedImage{id: 2}},
		{Image: &taggedImage{id: 3}},
		{Image: &taggedImage{id: 4}},
	}
	for _, f := range frames {
		s.enqueueFrame(f)
	}

	if got := s.Stats().FramesDropped; got != 2 {
		t.Fatalf("frames_dropped = %d, want 2", got)
	}

	var remaining []int
	for {
		select {
		case f := <-s.frameQueue:
			remaining = append(remaining, f.Image.(*taggedImage).id)
		default:
			goto done
		}
	}
done:
	if len(remaining) != 2 || remaining[0] != 3 || remaining[1] != 4 {
		t.Fatalf("remaining frames = %v, want [3 4]", remaining)
	}
}

// failingSource always fails to Open, simulating an unreachable camera.
type failingSource struct {
	mu        sync.Mutex
	openCalls int
}

func (f *failingSource) Open(ctx context.Context, url string) error {
	f.mu.Lock()
	f.openCalls++
	f.mu.Unlock()
	return errUnreachable
}

func (f *failingSource) ReadFrame(ctx context.Context) (image.Image, error) {
	return nil, errUnreachable
}

func (f *failingSource) Close() error { return nil }

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errUnreachable = sentinelErr("camera unreachable")

func TestReconnectExhaustion(t *testing.T) {
	src := &failingSource{}
	s := NewSession(
		SessionParams{CameraID: "cam1", SourceURL: "fake://cam1"},
		testConfig(4),
		func() FrameSource { return src },
		nil,
		nil,
	)

	s.Start(context.Background())
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.State() == StateStopped {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	stats := s.Stats()
	if s.State() != StateStopped {
		t.Fatalf("state = %v, want stopped", s.State())
	}
	if stats.IsActive {
		t.Fatalf("IsActive = true, want false")
	}
	if stats.ReconnectAttempts != 5 {
		t.Fatalf("reconnect_attempts = %d, want 5", stats.ReconnectAttempts)
	}
}
