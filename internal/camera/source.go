// Package camera defines the frame source consumed by the session loop and
// the device-free sources used in development and tests. The OpenCV-backed
// capture device lives in the opencv subpackage.
package camera

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"
)

// ErrNoFrame is returned by Read when no new frame is available. It is not
// fatal; callers keep the previous frame.
var ErrNoFrame = errors.New("camera: no frame available")

// Source produces RGB frames of a fixed size.
type Source interface {
	// Read returns the next frame. Implementations must not block for
	// longer than one frame interval.
	Read() (*image.RGBA, error)
	Close() error
}

// Blank returns an all-black frame of the given size; the session starts
// with it before the first successful read.
func Blank(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Rect, image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)
	return img
}

// TestPattern is a synthetic source that renders a moving diagonal stripe
// pattern, for running without a camera.
type TestPattern struct {
	mu     sync.Mutex
	width  int
	height int
	frame  int
	closed bool
}

// NewTestPattern returns a pattern source of the given size.
func NewTestPattern(width, height int) *TestPattern {
	return &TestPattern{width: width, height: height}
}

func (p *TestPattern) Read() (*image.RGBA, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrNoFrame
	}
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	shift := p.frame * 4
	for y := 0; y < p.height; y++ {
		for x := 0; x < p.width; x++ {
			v := uint8(40 + ((x+y+shift)/32%2)*40)
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v + 20, A: 255})
		}
	}
	p.frame++
	return img, nil
}

func (p *TestPattern) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// Replay hands out a fixed sequence of frames and errors, one per Read,
// then reports ErrNoFrame. Nil frames in the sequence are returned as
// ErrNoFrame.
type Replay struct {
	mu     sync.Mutex
	frames []*image.RGBA
	errs   []error
	next   int
	closed bool
}

// NewReplay returns a source that yields frames in order.
func NewReplay(frames ...*image.RGBA) *Replay {
	return &Replay{frames: frames}
}

// FailAt makes the i-th Read return err instead of its frame.
func (r *Replay) FailAt(i int, err error) *Replay {
	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.errs) <= i {
		r.errs = append(r.errs, nil)
	}
	r.errs[i] = err
	return r
}

func (r *Replay) Read() (*image.RGBA, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.next
	r.next++
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	if i >= len(r.frames) || r.frames[i] == nil {
		return nil, ErrNoFrame
	}
	return r.frames[i], nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

// Closed reports whether Close has been called.
func (r *Replay) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
