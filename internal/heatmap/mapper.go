package heatmap

import (
	"image"

	"github.com/banshee-data/pressure.report/internal/sensor"
)

const (
	// DefaultActivityThreshold is the voltage an event must exceed before it
	// counts as activity.
	DefaultActivityThreshold = 5.0
	// DefaultJitterOffset is the jitter radius in pixels around a region's
	// anchor line.
	DefaultJitterOffset = 40
)

// RandomSource is a uniform integer generator. *math/rand/v2.Rand satisfies
// it.
type RandomSource interface {
	// IntN returns a uniform value in [0, n). n is always > 0.
	IntN(n int) int
}

// Mapper turns directional events into frame coordinates.
//
// LEFT and RIGHT sample the left and right thirds on a band around the
// horizontal centre line, FORWARD and BACKWARD sample the top and bottom
// thirds on a band around the vertical centre line, and DOWN samples a box
// around the frame centre.
type Mapper struct {
	rng       RandomSource
	threshold float64
	offset    int
}

// NewMapper returns a Mapper drawing jitter from rng.
func NewMapper(rng RandomSource, threshold float64, offset int) *Mapper {
	if offset < 0 {
		offset = 0
	}
	return &Mapper{rng: rng, threshold: threshold, offset: offset}
}

// Threshold reports the activity voltage threshold.
func (m *Mapper) Threshold() float64 { return m.threshold }

// MapToPoint returns the point for an event of the given direction and
// voltage on a width x height frame. ok is false when the direction is
// Unknown, the voltage does not exceed the activity threshold, or the frame
// is empty.
func (m *Mapper) MapToPoint(dir sensor.Direction, voltage float64, width, height int) (pt image.Point, ok bool) {
	if width <= 0 || height <= 0 || voltage <= m.threshold {
		return image.Point{}, false
	}

	off := m.offset
	cx, cy := width/2, height/2

	var x, y int
	switch dir {
	case sensor.Left:
		x = m.between(0, width/3-1)
		y = cy + m.between(-off, off)
	case sensor.Right:
		x = m.between(2*width/3, width-1)
		y = cy + m.between(-off, off)
	case sensor.Forward:
		x = cx + m.between(-off, off)
		y = m.between(0, height/3-1)
	case sensor.Backward:
		x = cx + m.between(-off, off)
		y = m.between(2*height/3, height-1)
	case sensor.Down:
		x = cx + m.between(-off, off)
		y = cy + m.between(-off, off)
	default:
		return image.Point{}, false
	}

	return image.Pt(clamp(x, 0, width-1), clamp(y, 0, height-1)), true
}

// between draws uniformly from the closed range [lo, hi]. An empty range
// collapses to lo.
func (m *Mapper) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + m.rng.IntN(hi-lo+1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
