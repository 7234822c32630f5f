package heatmap

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

const (
	// DefaultBackgroundWeight scales the background in the blend.
	DefaultBackgroundWeight = 0.7
	// DefaultLayerWeight scales the overlay in the blend.
	DefaultLayerWeight = 0.8
)

// DefaultFlatFill is the light green used when the camera background is off.
var DefaultFlatFill = color.RGBA{R: 144, G: 238, B: 144, A: 255}

// Compositor blends the density overlay onto a background.
type Compositor struct {
	BackgroundWeight float64
	LayerWeight      float64
	Fill             color.RGBA
}

// DefaultCompositor returns the stock blend weights and flat fill.
func DefaultCompositor() Compositor {
	return Compositor{
		BackgroundWeight: DefaultBackgroundWeight,
		LayerWeight:      DefaultLayerWeight,
		Fill:             DefaultFlatFill,
	}
}

// FlatBackground returns a frame of the given size filled with c.Fill.
func (c Compositor) FlatBackground(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Rect, image.NewUniform(c.Fill), image.Point{}, draw.Src)
	return img
}

// Composite blends layer over background channel by channel with the fixed
// weights and no bias. The weights sum past one on purpose so strongly
// active regions saturate; the blend is computed in floating point and only
// saturated when written to the output frame. Background pixels outside the
// layer's extent are ignored; missing background reads as black.
func (c Compositor) Composite(background image.Image, layer *image.RGBA) *image.RGBA {
	out := image.NewRGBA(layer.Rect)
	bg, fast := background.(*image.RGBA)

	for y := layer.Rect.Min.Y; y < layer.Rect.Max.Y; y++ {
		for x := layer.Rect.Min.X; x < layer.Rect.Max.X; x++ {
			var br, bgG, bb float64
			if background != nil && (image.Point{X: x, Y: y}).In(background.Bounds()) {
				if fast {
					p := bg.RGBAAt(x, y)
					br, bgG, bb = float64(p.R), float64(p.G), float64(p.B)
				} else {
					r, g, b, _ := background.At(x, y).RGBA()
					br, bgG, bb = float64(r>>8), float64(g>>8), float64(b>>8)
				}
			}
			l := layer.RGBAAt(x, y)
			out.SetRGBA(x, y, color.RGBA{
				R: saturate(c.BackgroundWeight*br + c.LayerWeight*float64(l.R)),
				G: saturate(c.BackgroundWeight*bgG + c.LayerWeight*float64(l.G)),
				B: saturate(c.BackgroundWeight*bb + c.LayerWeight*float64(l.B)),
				A: 255,
			})
		}
	}
	return out
}

// saturate rounds and clamps a blended channel into a byte.
func saturate(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
