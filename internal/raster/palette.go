package raster

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"math"
	"strings"
)

// PaletteSize is the number of entries in an expanded palette.
const PaletteSize = 256

// Palette is a 256-entry color lookup table built from ordered stops.
type Palette [PaletteSize]color.RGBA

// IronPalette is the black-purple-orange-white heat palette used for flux.
var IronPalette = MustParseHexPalette("00000A", "91009C", "E64616", "FEB400", "FFFFF6")

// NewPalette expands stops into a lookup table by piecewise-linear
// interpolation. Entry 0 is the first stop and entry 255 the last.
func NewPalette(stops ...color.RGBA) Palette {
	var p Palette
	n := len(stops)
	if n == 0 {
		return p
	}
	for i := range p {
		t := float64(i*(n-1)) / float64(PaletteSize-1)
		lo := int(math.Floor(t))
		hi := min(int(math.Ceil(t)), n-1)
		s := t - float64(lo)
		a, b := stops[lo], stops[hi]
		p[i] = color.RGBA{
			R: lerp(a.R, b.R, s),
			G: lerp(a.G, b.G, s),
			B: lerp(a.B, b.B, s),
			A: 0xff,
		}
	}
	return p
}

func lerp(a, b uint8, s float64) uint8 {
	return uint8(math.Round(float64(a) + (float64(b)-float64(a))*s))
}

// ParseHexPalette builds a palette from "RRGGBB" stops, with or without '#'.
func ParseHexPalette(stops ...string) (Palette, error) {
	if len(stops) == 0 {
		return Palette{}, fmt.Errorf("palette needs at least one stop")
	}
	colors := make([]color.RGBA, len(stops))
	for i, s := range stops {
		c, err := ParseHexColor(s)
		if err != nil {
			return Palette{}, err
		}
		colors[i] = c
	}
	return NewPalette(colors...), nil
}

// MustParseHexPalette is ParseHexPalette for package-level palettes.
func MustParseHexPalette(stops ...string) Palette {
	p, err := ParseHexPalette(stops...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseHexColor parses "RRGGBB" or "#RRGGBB" into an opaque color.
func ParseHexColor(s string) (color.RGBA, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(b) != 3 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	return color.RGBA{R: b[0], G: b[1], B: b[2], A: 0xff}, nil
}

// Index maps a normalized position to a table index, clamped to [0, 255].
func (p *Palette) Index(t float64) int {
	if math.IsNaN(t) {
		return 0
	}
	i := int(math.Round(t * (PaletteSize - 1)))
	return max(0, min(i, PaletteSize-1))
}

// At returns the color for a normalized position.
func (p *Palette) At(t float64) color.RGBA {
	return p[p.Index(t)]
}

// Normalize maps v linearly from [lo, hi] into [0, 1], clamping outside values.
func Normalize(v, lo, hi float64) float64 {
	y := (v - lo) / (hi - lo)
	if math.IsNaN(y) {
		return 0
	}
	return math.Min(math.Max(y, 0), 1)
}
