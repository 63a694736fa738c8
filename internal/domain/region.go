package domain

import "math"

// MinRegionRadiusMeters is the smallest radius a building-derived region may have.
const MinRegionRadiusMeters = 10

// RegionFromInsights derives a query region from a building lookup: the
// building center plus half the great-circle diagonal of its bounding box,
// never below MinRegionRadiusMeters. It reports false when the lookup has no
// center or no bounding box.
func RegionFromInsights(b *BuildingInsights) (Region, bool) {
	if b == nil || b.Center == nil || b.BoundingBox == nil {
		return Region{}, false
	}
	sw, ne := b.BoundingBox.SW, b.BoundingBox.NE
	diag := DistanceMeters(sw.Lat, sw.Lng, ne.Lat, ne.Lng)
	if math.IsNaN(diag) || math.IsInf(diag, 0) {
		return Region{}, false
	}
	radius := int(math.Ceil(diag / 2))
	if radius < MinRegionRadiusMeters {
		radius = MinRegionRadiusMeters
	}
	return Region{
		Center:       *b.Center,
		RadiusMeters: radius,
		Source:       RegionFromBuilding,
	}, true
}

// FallbackRegion is the region used when no building could be resolved.
func FallbackRegion(lat, lng float64, radiusMeters int) Region {
	return Region{
		Center:       LatLng{Lat: lat, Lng: lng},
		RadiusMeters: radiusMeters,
		Source:       RegionFallback,
	}
}
