// Package report writes a session summary to disk at shutdown: the last
// composite frame and gonum/plot charts of the history series and zones.
package report

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"path/filepath"

	"github.com/banshee-data/pressure.report/internal/fsutil"
	"github.com/banshee-data/pressure.report/internal/session"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// File names written by WriteSeriesPlots.
const (
	FrameFile   = "frame.png"
	VoltageFile = "voltage.png"
	StepsFile   = "steps.png"
	ZonesFile   = "zones.png"
)

var (
	voltageColour = color.RGBA{R: 220, G: 60, B: 40, A: 255}
	stepsColour   = color.RGBA{R: 40, G: 90, B: 200, A: 255}
	zoneColour    = color.RGBA{R: 20, G: 140, B: 60, A: 255}
)

// WriteSeriesPlots renders snap into dir and returns the paths written.
// Charts for empty series are skipped.
func WriteSeriesPlots(fsys fsutil.FileSystem, dir string, snap *session.Snapshot) ([]string, error) {
	if snap == nil {
		return nil, fmt.Errorf("no snapshot to report")
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}

	var written []string
	write := func(name string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, name)
		f, err := fsys.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if err := fn(f); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	if snap.Frame != nil {
		if err := write(FrameFile, func(w io.Writer) error { return png.Encode(w, snap.Frame) }); err != nil {
			return written, err
		}
	}

	charts := []struct {
		file   string
		title  string
		ylabel string
		values []float64
		colour color.Color
	}{
		{VoltageFile, "Voltage", "volts", snap.Voltages, voltageColour},
		{StepsFile, "Step count", "steps", snap.Steps, stepsColour},
	}
	for _, c := range charts {
		if len(c.values) == 0 {
			continue
		}
		p, err := seriesPlot(c.title, c.ylabel, c.values, c.colour)
		if err != nil {
			return written, err
		}
		if err := write(c.file, plotWriter(p, 8*vg.Inch, 4*vg.Inch)); err != nil {
			return written, err
		}
	}

	if len(snap.Zones) > 0 && snap.Frame != nil {
		p, err := zonesPlot(snap)
		if err != nil {
			return written, err
		}
		if err := write(ZonesFile, plotWriter(p, 6*vg.Inch, 4.5*vg.Inch)); err != nil {
			return written, err
		}
	}
	return written, nil
}

func plotWriter(p *plot.Plot, w, h vg.Length) func(io.Writer) error {
	return func(out io.Writer) error {
		wt, err := p.WriterTo(w, h, "png")
		if err != nil {
			return err
		}
		_, err = wt.WriteTo(out)
		return err
	}
}

func seriesPlot(title, ylabel string, values []float64, colour color.Color) (*plot.Plot, error) {
	pts := make(plotter.XYs, len(values))
	for i, v := range values {
		pts[i] = plotter.XY{X: float64(i - len(values) + 1), Y: v}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "tick (relative to last)"
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("%s line: %w", title, err)
	}
	line.Color = colour
	line.Width = vg.Points(1)
	p.Add(line)
	return p, nil
}

func zonesPlot(snap *session.Snapshot) (*plot.Plot, error) {
	w, h := snap.Frame.Rect.Dx(), snap.Frame.Rect.Dy()
	pts := make(plotter.XYs, len(snap.Zones))
	for i, z := range snap.Zones {
		pts[i] = plotter.XY{X: float64(z.X), Y: float64(h - z.Y)}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Activity zones at tick %d", snap.Tick)
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px, flipped)"
	p.X.Min, p.X.Max = 0, float64(w)
	p.Y.Min, p.Y.Max = 0, float64(h)

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("zones scatter: %w", err)
	}
	sc.GlyphStyle.Color = zoneColour
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(6)
	p.Add(sc)

	labels, err := plotter.NewLabels(plotter.XYLabels{
		XYs:    pts,
		Labels: zoneLabels(snap),
	})
	if err != nil {
		return nil, fmt.Errorf("zones labels: %w", err)
	}
	p.Add(labels)
	return p, nil
}

func zoneLabels(snap *session.Snapshot) []string {
	out := make([]string, len(snap.Zones))
	for i, z := range snap.Zones {
		out[i] = fmt.Sprintf("Z%d %.2f", z.Rank, z.PeakDensity)
	}
	return out
}
