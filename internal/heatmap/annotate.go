package heatmap

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	markerColour = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	labelShadow  = color.RGBA{A: 255}
)

// Annotate draws a cross and rank label at each zone centroid.
func Annotate(frame *image.RGBA, zones []Zone) {
	for _, z := range zones {
		drawCross(frame, z.X, z.Y, 6)

		label := fmt.Sprintf("Z%d", z.Rank)
		for _, o := range []image.Point{{1, 1}, {0, 0}} {
			col := labelShadow
			if o == (image.Point{}) {
				col = markerColour
			}
			d := &font.Drawer{
				Dst:  frame,
				Src:  image.NewUniform(col),
				Face: basicfont.Face7x13,
				Dot:  fixed.P(z.X+8+o.X, z.Y-8+o.Y),
			}
			d.DrawString(label)
		}
	}
}

func drawCross(frame *image.RGBA, cx, cy, size int) {
	for d := -size; d <= size; d++ {
		if p := image.Pt(cx+d, cy); p.In(frame.Rect) {
			frame.SetRGBA(p.X, p.Y, markerColour)
		}
		if p := image.Pt(cx, cy+d); p.In(frame.Rect) {
			frame.SetRGBA(p.X, p.Y, markerColour)
		}
	}
}
