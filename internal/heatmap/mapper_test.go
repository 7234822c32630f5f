package heatmap

import (
	"image"
	"math/rand/v2"
	"testing"

	"github.com/banshee-data/pressure.report/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource always returns the same fraction of the requested range.
type fixedSource struct {
	frac  float64
	calls []int
}

func (f *fixedSource) IntN(n int) int {
	f.calls = append(f.calls, n)
	v := int(f.frac * float64(n))
	if v >= n {
		v = n - 1
	}
	return v
}

// maxSource always returns the top of the requested range.
type maxSource struct{}

func (maxSource) IntN(n int) int { return n - 1 }

var directions = []sensor.Direction{sensor.Left, sensor.Right, sensor.Forward, sensor.Backward, sensor.Down}

func TestMapToPoint_Regions(t *testing.T) {
	const w, h = 640, 480

	tests := []struct {
		dir    sensor.Direction
		region image.Rectangle
	}{
		{sensor.Left, image.Rect(0, h/2-40, w/3, h/2+41)},
		{sensor.Right, image.Rect(2*w/3, h/2-40, w, h/2+41)},
		{sensor.Forward, image.Rect(w/2-40, 0, w/2+41, h/3)},
		{sensor.Backward, image.Rect(w/2-40, 2*h/3, w/2+41, h)},
		{sensor.Down, image.Rect(w/2-40, h/2-40, w/2+41, h/2+41)},
	}

	rng := rand.New(rand.NewPCG(7, 11))
	m := NewMapper(rng, DefaultActivityThreshold, DefaultJitterOffset)
	for _, tt := range tests {
		t.Run(tt.dir.String(), func(t *testing.T) {
			for i := 0; i < 500; i++ {
				pt, ok := m.MapToPoint(tt.dir, 7.5, w, h)
				require.True(t, ok)
				require.True(t, pt.In(tt.region), "point %v outside %v", pt, tt.region)
			}
		})
	}
}

func TestMapToPoint_NeverOutOfFrame(t *testing.T) {
	sizes := [][2]int{{640, 480}, {1, 1}, {2, 3}, {50, 20}, {7, 400}}
	sources := []RandomSource{maxSource{}, &fixedSource{frac: 0}, rand.New(rand.NewPCG(1, 2))}

	for _, src := range sources {
		m := NewMapper(src, DefaultActivityThreshold, 200)
		for _, sz := range sizes {
			frame := image.Rect(0, 0, sz[0], sz[1])
			for _, dir := range directions {
				for i := 0; i < 50; i++ {
					pt, ok := m.MapToPoint(dir, 100, sz[0], sz[1])
					require.True(t, ok)
					require.True(t, pt.In(frame), "%s on %v gave %v", dir, sz, pt)
				}
			}
		}
	}
}

func TestMapToPoint_Gating(t *testing.T) {
	src := &fixedSource{frac: 0.5}
	m := NewMapper(src, DefaultActivityThreshold, DefaultJitterOffset)

	for _, dir := range directions {
		_, ok := m.MapToPoint(dir, 5.0, 640, 480)
		assert.False(t, ok, "%s at threshold voltage must not map", dir)
		_, ok = m.MapToPoint(dir, 2.0, 640, 480)
		assert.False(t, ok, "%s below threshold must not map", dir)
	}
	_, ok := m.MapToPoint(sensor.Unknown, 50, 640, 480)
	assert.False(t, ok)
	_, ok = m.MapToPoint(sensor.Left, 50, 0, 480)
	assert.False(t, ok)

	assert.Empty(t, src.calls, "gated events must not consume randomness")
}

func TestMapToPoint_Deterministic(t *testing.T) {
	m := NewMapper(&fixedSource{frac: 0}, DefaultActivityThreshold, DefaultJitterOffset)

	pt, ok := m.MapToPoint(sensor.Left, 7.5, 640, 480)
	require.True(t, ok)
	assert.Equal(t, image.Pt(0, 200), pt)

	pt, ok = m.MapToPoint(sensor.Backward, 7.5, 640, 480)
	require.True(t, ok)
	assert.Equal(t, image.Pt(280, 320), pt)

	m = NewMapper(maxSource{}, DefaultActivityThreshold, DefaultJitterOffset)
	pt, ok = m.MapToPoint(sensor.Right, 7.5, 640, 480)
	require.True(t, ok)
	assert.Equal(t, image.Pt(639, 280), pt)

	pt, ok = m.MapToPoint(sensor.Down, 7.5, 640, 480)
	require.True(t, ok)
	assert.Equal(t, image.Pt(360, 280), pt)
}

func TestMapToPoint_LeftThirdScenario(t *testing.T) {
	ev, err := sensor.Decode("Step:42,Volt:7.50,Dir:LEFT")
	require.NoError(t, err)

	m := NewMapper(rand.New(rand.NewPCG(42, 42)), DefaultActivityThreshold, DefaultJitterOffset)
	pt, ok := m.MapToPoint(ev.Direction, ev.Voltage, 640, 480)
	require.True(t, ok)
	assert.Less(t, pt.X, 640/3)
	assert.GreaterOrEqual(t, pt.X, 0)
	assert.True(t, pt.In(image.Rect(0, 0, 640, 480)))
}
