package heatmap

import (
	"image"
	"math"

	"github.com/disintegration/gift"
	"gonum.org/v1/gonum/floats"
)

const (
	// DefaultStampRadius is the radius in pixels of the disk stamped per point.
	DefaultStampRadius = 30
	// DefaultBlurSigma is the Gaussian smoothing sigma in pixels.
	DefaultBlurSigma = 12.0
	// DefaultAlphaScale maps density onto overlay opacity.
	DefaultAlphaScale = 0.6
)

// DensityField is a row-major grid of smoothed activity density in [0, 1].
type DensityField struct {
	Width, Height int
	Values        []float64
}

// NewDensityField returns a zeroed field.
func NewDensityField(width, height int) *DensityField {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &DensityField{Width: width, Height: height, Values: make([]float64, width*height)}
}

// At returns the density at (x, y), or 0 outside the field.
func (f *DensityField) At(x, y int) float64 {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	return f.Values[y*f.Width+x]
}

// Max returns the largest value in the field (0 for an empty field).
func (f *DensityField) Max() float64 {
	if len(f.Values) == 0 {
		return 0
	}
	return floats.Max(f.Values)
}

// Mass returns the sum of all values.
func (f *DensityField) Mass() float64 {
	return floats.Sum(f.Values)
}

// RasterConfig tunes the Rasterizer.
type RasterConfig struct {
	StampRadius int
	BlurSigma   float64
	AlphaScale  float64
	Ramp        *Ramp
}

// DefaultRasterConfig returns the stock rasterizer settings with the jet ramp.
func DefaultRasterConfig() RasterConfig {
	return RasterConfig{
		StampRadius: DefaultStampRadius,
		BlurSigma:   DefaultBlurSigma,
		AlphaScale:  DefaultAlphaScale,
		Ramp:        JetRamp(),
	}
}

// Rasterizer builds the density field and its colourised overlay. It
// reuses its stamp and blur planes between builds and is not safe for
// concurrent use.
type Rasterizer struct {
	cfg  RasterConfig
	blur *gift.GIFT
	disk []image.Point
	// reach is how far past a stamp the blur can carry density.
	reach int

	stamp   *image.Gray
	blurBuf []uint8
}

// NewRasterizer prepares the blur filter and stamp offsets for cfg.
func NewRasterizer(cfg RasterConfig) *Rasterizer {
	if cfg.Ramp == nil {
		cfg.Ramp = JetRamp()
	}
	if cfg.StampRadius < 0 {
		cfg.StampRadius = 0
	}
	reach := 0
	if cfg.BlurSigma > 0 {
		// gift truncates its Gaussian kernel at ceil(3*sigma)
		reach = int(math.Ceil(3*cfg.BlurSigma)) + 1
	}
	return &Rasterizer{
		cfg:   cfg,
		blur:  gift.New(gift.GaussianBlur(float32(cfg.BlurSigma))),
		disk:  diskOffsets(cfg.StampRadius),
		reach: reach,
	}
}

// Build rasterises points onto a width x height grid. It returns the
// alpha-premultiplied overlay and the density field it was coloured from,
// so zone coordinates line up with what is drawn.
func (r *Rasterizer) Build(points []Point, width, height int) (*image.RGBA, *DensityField) {
	field := NewDensityField(width, height)
	layer := image.NewRGBA(image.Rect(0, 0, field.Width, field.Height))
	if len(points) == 0 || field.Width == 0 || field.Height == 0 {
		r.colourise(field, layer)
		return layer, field
	}

	frame := layer.Rect
	if r.stamp == nil || r.stamp.Rect != frame {
		r.stamp = image.NewGray(frame)
	} else {
		clear(r.stamp.Pix)
	}
	var stamped image.Rectangle
	rad := r.cfg.StampRadius
	for _, p := range points {
		extent := image.Rect(p.X-rad, p.Y-rad, p.X+rad+1, p.Y+rad+1).Intersect(frame)
		if extent.Empty() {
			continue
		}
		r.stampDisk(r.stamp, p.X, p.Y)
		stamped = stamped.Union(extent)
	}
	if stamped.Empty() {
		r.colourise(field, layer)
		return layer, field
	}

	// density is exactly zero beyond the blur's reach, so only that region
	// is blurred; gift clamps at the frame edge the same either way
	roi := stamped.Inset(-r.reach).Intersect(frame)
	src := r.stamp.SubImage(roi).(*image.Gray)
	blurred := r.blurPlane(r.blur.Bounds(roi))
	r.blur.Draw(blurred, src)

	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		row := blurred.Pix[(y-roi.Min.Y)*blurred.Stride:]
		vals := field.Values[y*field.Width:]
		for x := roi.Min.X; x < roi.Max.X; x++ {
			vals[x] = float64(row[x-roi.Min.X]) / 0xff
		}
	}

	r.colourise(field, layer)
	return layer, field
}

// blurPlane returns a Gray image over bounds backed by the reused buffer.
// Its contents are stale; gift overwrites every pixel.
func (r *Rasterizer) blurPlane(bounds image.Rectangle) *image.Gray {
	n := bounds.Dx() * bounds.Dy()
	if cap(r.blurBuf) < n {
		r.blurBuf = make([]uint8, n)
	}
	return &image.Gray{Pix: r.blurBuf[:n], Stride: bounds.Dx(), Rect: bounds}
}

// stampDisk sets every pixel within the stamp radius of (cx, cy) to full
// intensity. Overlapping disks combine by max, which for a binary stamp is a
// plain overwrite.
func (r *Rasterizer) stampDisk(img *image.Gray, cx, cy int) {
	b := img.Rect
	for _, d := range r.disk {
		x, y := cx+d.X, cy+d.Y
		if x < b.Min.X || y < b.Min.Y || x >= b.Max.X || y >= b.Max.Y {
			continue
		}
		img.Pix[img.PixOffset(x, y)] = 0xff
	}
}

// colourise writes the premultiplied overlay. Zero density leaves the
// pixel fully transparent, which the new layer already is.
func (r *Rasterizer) colourise(field *DensityField, layer *image.RGBA) {
	ramp := r.cfg.Ramp
	for y := 0; y < field.Height; y++ {
		for x := 0; x < field.Width; x++ {
			v := field.Values[y*field.Width+x]
			if v <= 0 {
				continue
			}
			c := ramp[densityByte(v)]
			alpha := clampUnit(v * r.cfg.AlphaScale)
			px := layer.Pix[layer.PixOffset(x, y):]
			px[0] = premultiply(c.R, alpha)
			px[1] = premultiply(c.G, alpha)
			px[2] = premultiply(c.B, alpha)
			px[3] = uint8(alpha * 255)
		}
	}
}

func diskOffsets(radius int) []image.Point {
	var pts []image.Point
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy <= r2 {
				pts = append(pts, image.Pt(dx, dy))
			}
		}
	}
	return pts
}

// densityByte maps [0, 1] onto a ramp index, truncating like an 8-bit cast.
func densityByte(v float64) uint8 {
	s := v * 255
	if s <= 0 {
		return 0
	}
	if s >= 255 {
		return 255
	}
	return uint8(s)
}

func premultiply(c uint8, alpha float64) uint8 {
	return uint8(float64(c) / 255 * alpha * 255)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
