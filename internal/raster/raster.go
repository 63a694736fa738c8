// Package raster decodes solar-data GeoTIFFs into in-memory rasters and
// turns them into georeferenced overlay images.
//
// A [Raster] is immutable once built: resampling returns a new value and the
// rasterizer only reads. Bounds are always WGS-84 degrees unless the decoder
// reported a degraded reprojection.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/couchcryptid/solar-overlay/internal/domain"
)

// NoDataThreshold is the provider's "no data" sentinel: values at or below it
// are never real measurements.
const NoDataThreshold = -9998

var (
	// ErrUnsupported is returned for data GDAL cannot open as a GeoTIFF and for
	// rasters too large to decode.
	ErrUnsupported = errors.New("unsupported tiff")
	// ErrNotGeoreferenced is returned when a TIFF carries no geotransform.
	ErrNotGeoreferenced = errors.New("tiff is not georeferenced")
)

// Raster is a grid of one or more equal-length bands in row-major order.
type Raster struct {
	Width  int
	Height int
	Bands  [][]float64
	Bounds domain.Bounds
	// NoData is the GDAL_NODATA value, if the source declared one.
	NoData *float64
}

// New allocates a zeroed raster with n bands.
func New(width, height, n int, bounds domain.Bounds) *Raster {
	bands := make([][]float64, n)
	for i := range bands {
		bands[i] = make([]float64, width*height)
	}
	return &Raster{Width: width, Height: height, Bands: bands, Bounds: bounds}
}

// Validate checks the shape invariants: positive size, at least one band, and
// every band exactly Width*Height long.
func (r *Raster) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("raster size %dx%d must be positive", r.Width, r.Height)
	}
	if len(r.Bands) == 0 {
		return errors.New("raster has no bands")
	}
	for i, b := range r.Bands {
		if len(b) != r.Width*r.Height {
			return fmt.Errorf("band %d has %d values, want %d", i, len(b), r.Width*r.Height)
		}
	}
	return nil
}

// MaxDim returns the longer side in pixels.
func (r *Raster) MaxDim() int {
	return max(r.Width, r.Height)
}

// Valid reports whether v is a usable measurement in this raster.
func (r *Raster) Valid(v float64) bool {
	if r.NoData != nil && v == *r.NoData {
		return false
	}
	return IsValid(v)
}

// IsValid reports whether v is finite, non-negative, and above the provider's
// no-data threshold.
func IsValid(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v > NoDataThreshold
}
