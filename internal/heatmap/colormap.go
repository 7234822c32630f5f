package heatmap

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// Ramp is a 256-entry lookup table from a density byte to an overlay colour.
type Ramp [256]color.RGBA

// Ramp names accepted by RampByName.
const (
	RampJet           = "jet"
	RampSmoothBlueRed = "smooth-blue-red"
	RampBlackBody     = "black-body"
)

// JetRamp returns the classic blue-cyan-yellow-red ramp, low to high.
func JetRamp() *Ramp {
	var r Ramp
	for i := range r {
		v := float64(i) / 255
		r[i] = color.RGBA{
			R: unitByte(1.5 - math.Abs(4*v-3)),
			G: unitByte(1.5 - math.Abs(4*v-2)),
			B: unitByte(1.5 - math.Abs(4*v-1)),
			A: 255,
		}
	}
	return &r
}

// PaletteRamp samples a continuous colour map over [0, 1].
func PaletteRamp(cm palette.ColorMap) (*Ramp, error) {
	cm.SetMin(0)
	cm.SetMax(1)

	var r Ramp
	for i := range r {
		c, err := cm.At(float64(i) / 255)
		if err != nil {
			return nil, fmt.Errorf("sample colour map at %d: %w", i, err)
		}
		cr, cg, cb, _ := c.RGBA()
		r[i] = color.RGBA{R: uint8(cr >> 8), G: uint8(cg >> 8), B: uint8(cb >> 8), A: 255}
	}
	return &r, nil
}

// RampByName resolves a configured ramp name. An empty name is jet.
func RampByName(name string) (*Ramp, error) {
	switch name {
	case "", RampJet:
		return JetRamp(), nil
	case RampSmoothBlueRed:
		return PaletteRamp(moreland.SmoothBlueRed())
	case RampBlackBody:
		return PaletteRamp(moreland.ExtendedBlackBody())
	default:
		return nil, fmt.Errorf("unknown colour ramp %q", name)
	}
}

func unitByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(v * 255))
}
