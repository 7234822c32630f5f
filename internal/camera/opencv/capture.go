// Package opencv adapts gocv capture devices and HighGUI windows to the
// camera package interfaces. It needs OpenCV at build time.
package opencv

import (
	"fmt"
	"image"
	"image/draw"
	"os"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pressure.report/internal/camera"
)

// Capture reads frames from a camera device or video file and scales them
// to a fixed size.
type Capture struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	raw    gocv.Mat
	scaled gocv.Mat
	size   image.Point
	closed bool
}

// OpenCapture opens device, which is either a path to a video file or a
// numeric camera index. Frames are resized to width x height.
func OpenCapture(device string, width, height int) (*Capture, error) {
	var vc *gocv.VideoCapture
	var err error
	if _, statErr := os.Stat(device); statErr == nil {
		vc, err = gocv.VideoCaptureFile(device)
	} else {
		id, convErr := strconv.Atoi(device)
		if convErr != nil {
			return nil, fmt.Errorf("camera %q is neither a file nor a device index", device)
		}
		vc, err = gocv.VideoCaptureDevice(id)
	}
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %q: device not opened", device)
	}
	return &Capture{
		vc:     vc,
		raw:    gocv.NewMat(),
		scaled: gocv.NewMat(),
		size:   image.Pt(width, height),
	}, nil
}

// Read grabs the next frame. A failed grab reports camera.ErrNoFrame.
func (c *Capture) Read() (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, camera.ErrNoFrame
	}
	if ok := c.vc.Read(&c.raw); !ok || c.raw.Empty() {
		return nil, camera.ErrNoFrame
	}
	gocv.Resize(c.raw, &c.scaled, c.size, 0, 0, gocv.InterpolationLinear)

	img, err := c.scaled.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}
	rgba := image.NewRGBA(img.Bounds())
	draw.Draw(rgba, rgba.Rect, img, img.Bounds().Min, draw.Src)
	return rgba, nil
}

// Close releases the device and its buffers.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.raw.Close()
	c.scaled.Close()
	return c.vc.Close()
}

var _ camera.Source = (*Capture)(nil)
