package overlay

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/solar-overlay/internal/domain"
)

// DefaultRadiusMeters is the data-layer radius used when no building is found.
const DefaultRadiusMeters = 100

// ResolveRegion looks up the building at (lat, lng) and sizes the data-layer
// query to it. A not-found lookup, or insights without a center and bounding
// box, fall back to the input point with DefaultRadiusMeters. The insights are
// returned whenever the lookup succeeded, even if the region fell back. Other
// lookup failures are returned as errors.
func ResolveRegion(ctx context.Context, provider domain.SolarProvider, lat, lng float64) (domain.Region, *domain.BuildingInsights, error) {
	insights, err := provider.BuildingInsights(ctx, lat, lng)
	if errors.Is(err, domain.ErrBuildingNotFound) {
		return domain.FallbackRegion(lat, lng, DefaultRadiusMeters), nil, nil
	}
	if err != nil {
		return domain.Region{}, nil, fmt.Errorf("building insights: %w", err)
	}
	if region, ok := domain.RegionFromInsights(insights); ok {
		return region, insights, nil
	}
	return domain.FallbackRegion(lat, lng, DefaultRadiusMeters), insights, nil
}
