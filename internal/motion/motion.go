// Package motion implements the frame-difference motion detector described
// in spec §4.3. No OpenCV-equivalent morphology/contour library exists
// anywhere in the example corpus, so threshold/dilate/contour-extraction are
// implemented directly against the standard image package rather than
// grounded on a third-party library (see DESIGN.md).
package motion

import (
	"image"
	"image/color"
	"image/draw"
)

// BoundingBox mirrors cv2.boundingRect's (x, y, width, height) plus area.
type BoundingBox struct {
	X      int
	Y      int
	Width  int
	Height int
	Area   int
}

// Event is emitted when nonzero motion pixels exceed the configured
// threshold (spec §4.3 step 6).
type Event struct {
	MotionPixels  int
	ContourCount  int
	BoundingBoxes []BoundingBox
}

const (
	diffThreshold  = 30
	dilateKernel   = 5
	dilateIters    = 2
	minContourArea = 500
	maxContours    = 10
)

// Detector holds the previous frame's luminance and the per-camera motion
// pixel threshold.
type Detector struct {
	threshold int
	prev      *image.Gray
}

// NewDetector builds a Detector with the given motion_threshold (spec §6,
// default 5000).
func NewDetector(threshold int) *Detector {
	return &Detector{threshold: threshold}
}

// ToGray converts a decoded frame to single-channel luminance (spec §4.3
// step 1).
func ToGray(img image.Image) *image.Gray {
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// Detect runs steps 2-7 of the motion detection algorithm against the
// current grayscale frame, returning the motion event (if any) and whether
// one was triggered. The first call for a session only seeds prev and never
// triggers, matching spec §4.3 step 2 ("if a previous luminance frame is
// held").
func (d *Detector) Detect(current *image.Gray) (Event, bool) {
	if d.prev == nil || d.prev.Bounds() != current.Bounds() {
		d.prev = current
		return Event{}, false
	}

	diff := absDiff(d.prev, current)
	mask := threshold(diff, diffThreshold)
	dilated := dilate(mask, dilateKernel, dilateIters)
	n := countNonZero(dilated)

	d.prev = current

	if n <= d.threshold {
		return Event{}, false
	}

	boxes := findContours(dilated, minContourArea, maxContours)
	return Event{
		MotionPixels:  n,
		ContourCount:  len(boxes),
		BoundingBoxes: boxes,
	}, true
}

func absDiff(a, b *image.Gray) *image.Gray {
	bounds := a.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			av := a.GrayAt(x, y).Y
			bv := b.GrayAt(x, y).Y
			var d uint8
			if av > bv {
				d = av - bv
			} else {
				d = bv - av
			}
			out.SetGray(x, y, color.Gray{Y: d})
		}
	}
	return out
}

func threshold(src *image.Gray, thresh uint8) *image.Gray {
	bounds := src.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if src.GrayAt(x, y).Y > thresh {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

// dilate applies a kernel x kernel square structuring element for iterations
// passes, growing nonzero regions (spec §4.3 step 4).
func dilate(src *image.Gray, kernel, iterations int) *image.Gray {
	current := src
	radius := kernel / 2
	for i := 0; i < iterations; i++ {
		bounds := current.Bounds()
		out := image.NewGray(bounds)
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				found := false
				for dy := -radius; dy <= radius && !found; dy++ {
					for dx := -radius; dx <= radius; dx++ {
						ny, nx := y+dy, x+dx
						if ny < bounds.Min.Y || ny >= bounds.Max.Y || nx < bounds.Min.X || nx >= bounds.Max.X {
							continue
						}
						if current.GrayAt(nx, ny).Y > 0 {
							found = true
							break
						}
					}
				}
				if found {
					out.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
		current = out
	}
	return current
}

func countNonZero(src *image.Gray) int {
	bounds := src.Bounds()
	count := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if src.GrayAt(x, y).Y > 0 {
				count++
			}
		}
	}
	return count
}

// findContours extracts external-contour-equivalent connected components via
// 4-connectivity flood fill, approximating cv2.findContours(RETR_EXTERNAL)
// closely enough to produce the same area/bounding-box shape spec §4.3
// names. Components are kept if their pixel area exceeds minArea, capped at
// maxCount.
func findContours(mask *image.Gray, minArea, maxCount int) []BoundingBox {
	bounds := mask.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	visited := make([]bool, w*h)

	idx := func(x, y int) int { return (y-bounds.Min.Y)*w + (x - bounds.Min.X) }

	var boxes []BoundingBox
	for y := bounds.Min.Y; y < bounds.Max.Y && len(boxes) < maxCount; y++ {
		for x := bounds.Min.X; x < bounds.Max.X && len(boxes) < maxCount; x++ {
			if visited[idx(x, y)] || mask.GrayAt(x, y).Y == 0 {
				continue
			}

			minX, minY, maxX, maxY, area := x, y, x, y, 0
			stack := [][2]int{{x, y}}
			visited[idx(x, y)] = true

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				px, py := p[0], p[1]
				area++
				if px < minX {
					minX = px
				}
				if px > maxX {
					maxX = px
				}
				if py < minY {
					minY = py
				}
				if py > maxY {
					maxY = py
				}

				neighbors := [4][2]int{{px - 1, py}, {px + 1, py}, {px, py - 1}, {px, py + 1}}
				for _, n := range neighbors {
					nx, ny := n[0], n[1]
					if nx < bounds.Min.X || nx >= bounds.Max.X || ny < bounds.Min.Y || ny >= bounds.Max.Y {
						continue
					}
					if visited[idx(nx, ny)] || mask.GrayAt(nx, ny).Y == 0 {
						continue
					}
					visited[idx(nx, ny)] = true
					stack = append(stack, [2]int{nx, ny})
				}
			}

			if area > minArea {
				boxes = append(boxes, BoundingBox{
					X:      minX,
					Y:      minY,
					Width:  maxX - minX + 1,
					Height: maxY - minY + 1,
					Area:   area,
				})
			}
		}
	}
	return boxes
}
