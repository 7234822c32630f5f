package opencv

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pressure.report/internal/camera"
)

// Commander receives preview window key commands.
type Commander interface {
	ToggleMode()
	Stop()
}

// Preview shows composite frames in a HighGUI window. HighGUI must be driven
// from the main goroutine on most platforms.
type Preview struct {
	win *gocv.Window
}

// NewPreview opens a window with the given title.
func NewPreview(title string) *Preview {
	return &Preview{win: gocv.NewWindow(title)}
}

// Show draws frame and polls the keyboard for up to delay.
func (p *Preview) Show(frame *image.RGBA, delay time.Duration) (int, error) {
	mat, err := gocv.ImageToMatRGB(frame)
	if err != nil {
		return -1, fmt.Errorf("convert frame for preview: %w", err)
	}
	defer mat.Close()
	p.win.IMShow(mat)
	return p.win.WaitKey(int(delay / time.Millisecond)), nil
}

// Close destroys the window.
func (p *Preview) Close() error {
	return p.win.Close()
}

// RunPreview shows the latest frame from frames every interval and
// dispatches c / q / ESC to cmd until ctx is done.
func RunPreview(ctx context.Context, p *Preview, interval time.Duration, frames func() *image.RGBA, cmd Commander) {
	for ctx.Err() == nil {
		frame := frames()
		if frame == nil {
			time.Sleep(interval)
			continue
		}
		key, err := p.Show(frame, interval)
		if err != nil {
			log.Printf("preview: %v", err)
			continue
		}
		switch camera.KeyAction(key) {
		case camera.ActionToggleBackground:
			cmd.ToggleMode()
		case camera.ActionQuit:
			cmd.Stop()
			return
		}
	}
}
