package domain

import (
	"context"
	"errors"
)

// ErrBuildingNotFound is returned by a SolarProvider when no building lies
// near the queried point. Callers fall back to a fixed-radius region.
var ErrBuildingNotFound = errors.New("building not found")

// SolarProvider fetches building insights, data-layer URLs, and GeoTIFF bytes.
type SolarProvider interface {
	// BuildingInsights returns the building closest to the point, or
	// ErrBuildingNotFound.
	BuildingInsights(ctx context.Context, lat, lng float64) (*BuildingInsights, error)

	// DataLayers returns the raster URLs covering region.
	DataLayers(ctx context.Context, region Region) (*DataLayers, error)

	// GeoTIFF downloads the raster at a URL returned by DataLayers.
	GeoTIFF(ctx context.Context, rawURL string) ([]byte, error)
}
