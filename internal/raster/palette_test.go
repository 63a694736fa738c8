package raster

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPalette_Endpoints(t *testing.T) {
	tests := []struct {
		name  string
		stops []string
	}{
		{"iron", []string{"00000A", "91009C", "E64616", "FEB400", "FFFFF6"}},
		{"two stop", []string{"E8EAF6", "1A237E"}},
		{"three stop", []string{"#FF0000", "#00FF00", "#0000FF"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseHexPalette(tt.stops...)
			require.NoError(t, err)

			first, err := ParseHexColor(tt.stops[0])
			require.NoError(t, err)
			last, err := ParseHexColor(tt.stops[len(tt.stops)-1])
			require.NoError(t, err)

			assert.Equal(t, first, p[0])
			assert.Equal(t, last, p[PaletteSize-1])
		})
	}
}

func TestNewPalette_MonotonicBetweenStops(t *testing.T) {
	p := NewPalette(color.RGBA{R: 0, G: 200, B: 10, A: 255}, color.RGBA{R: 255, G: 0, B: 10, A: 255})
	for i := 1; i < PaletteSize; i++ {
		assert.GreaterOrEqual(t, p[i].R, p[i-1].R, "red at %d", i)
		assert.LessOrEqual(t, p[i].G, p[i-1].G, "green at %d", i)
		assert.Equal(t, uint8(10), p[i].B)
		assert.Equal(t, uint8(255), p[i].A)
	}
}

func TestNewPalette_SingleStop(t *testing.T) {
	c := color.RGBA{R: 1, G: 2, B: 3, A: 255}
	p := NewPalette(c)
	assert.Equal(t, c, p[0])
	assert.Equal(t, c, p[128])
	assert.Equal(t, c, p[255])
}

func TestIronPalette(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0x00, G: 0x00, B: 0x0A, A: 0xff}, IronPalette[0])
	assert.Equal(t, color.RGBA{R: 0xFF, G: 0xFF, B: 0xF6, A: 0xff}, IronPalette[255])
}

func TestPalette_Index(t *testing.T) {
	p := IronPalette
	tests := []struct {
		name string
		t    float64
		want int
	}{
		{"zero", 0, 0},
		{"one", 1, 255},
		{"middle", 0.5, 128},
		{"below range", -3, 0},
		{"above range", 7, 255},
		{"NaN", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 255},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Index(tt.t))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0.0, Normalize(-10, 0, 1800))
	assert.Equal(t, 0.0, Normalize(0, 0, 1800))
	assert.Equal(t, 0.5, Normalize(900, 0, 1800))
	assert.Equal(t, 1.0, Normalize(1800, 0, 1800))
	assert.Equal(t, 1.0, Normalize(5000, 0, 1800))
	assert.Equal(t, 0.0, Normalize(5, 5, 5), "empty range")
}

func TestParseHexColor_Invalid(t *testing.T) {
	for _, s := range []string{"", "FFF", "GG0000", "#1234567"} {
		_, err := ParseHexColor(s)
		assert.Error(t, err, s)
	}
	_, err := ParseHexPalette()
	assert.Error(t, err)
}
