package motion

import (
	"image"
	"image/color"
	"testing"
)

func solidGray(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// TestMotionEventOnBlock reproduces spec §8 scenario 5: a 100x100 block of
// 255 at offset (10,10) against an otherwise black frame of a larger
// resolution triggers a motion_detected event whose pixel count and
// bounding box match the block as grown by the dilation step.
func TestMotionEventOnBlock(t *testing.T) {
	d := NewDetector(5000)

	base := solidGray(320, 240, 0)
	_, triggered := d.Detect(base)
	if triggered {
		t.Fatal("first frame must never trigger (no previous frame held)")
	}

	next := solidGray(320, 240, 0)
	for y := 10; y < 110; y++ {
		for x := 10; x < 110; x++ {
			next.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	event, triggered := d.Detect(next)
	if !triggered {
		t.Fatal("expected motion to be detected")
	}
	// The 5x5/2-iteration dilation grows the 100x100 block by 4px on every
	// side (two passes of a radius-2 square structuring element), so the
	// reported region is 108x108 starting at (6,6), not the raw (10,10)/100x100
	// block the frame diff alone would have produced.
	const wantSide = 108
	if event.MotionPixels != wantSide*wantSide {
		t.Fatalf("motion pixels = %d, want %d", event.MotionPixels, wantSide*wantSide)
	}
	if event.ContourCount != 1 {
		t.Fatalf("contour count = %d, want 1", event.ContourCount)
	}
	box := event.BoundingBoxes[0]
	if box.X != 6 || box.Y != 6 || box.Width != wantSide || box.Height != wantSide {
		t.Fatalf("bounding box = %+v, want {X:6 Y:6 Width:%d Height:%d}", box, wantSide, wantSide)
	}
}

// TestNoMotionBelowThreshold ensures a change smaller than motion_threshold
// does not trigger an event (spec §4.3 step 6, strict >).
func TestNoMotionBelowThreshold(t *testing.T) {
	d := NewDetector(5000)

	base := solidGray(320, 240, 0)
	d.Detect(base)

	next := solidGray(320, 240, 0)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			next.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	_, triggered := d.Detect(next)
	if triggered {
		t.Fatal("expected no motion event below the pixel threshold")
	}
}

// TestContourAreaFilter ensures a contour whose area stays at or below 500
// even after dilation is dropped from the event, even though the frame's
// overall nonzero pixel count crosses a low motion_threshold.
func TestContourAreaFilter(t *testing.T) {
	d := NewDetector(50)

	base := solidGray(320, 240, 0)
	d.Detect(base)

	next := solidGray(320, 240, 0)
	// A 10x10 block in the frame's corner can only grow right and down, so
	// it dilates to 14x14 = 196 px, still under the > 500 contour area filter.
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			next.SetGray(x, y, color.Gray{Y: 255})
		}
	}

	event, triggered := d.Detect(next)
	if !triggered {
		t.Fatal("expected motion to be detected (raw pixel count exceeds threshold)")
	}
	if len(event.BoundingBoxes) != 0 {
		t.Fatalf("expected no surviving contours, got %+v", event.BoundingBoxes)
	}
}
