// Package domain models the solar-data provider's building and raster data.
//
// # Data Source
//
// Building insights and data layers come from the Google Solar API
// (https://developers.google.com/maps/documentation/solar). A building lookup
// returns the closest building to a coordinate: its center, an axis-aligned
// bounding box, and a solar-potential payload with one record per physical
// panel. A data-layer lookup returns short-lived GeoTIFF URLs for a circular
// region: annual flux (kWh/kW/year), a roof mask, and monthly flux (12 bands).
//
// # Provider Conventions
//
// Field spellings vary between the provider and proxies in front of it:
//
//	center | centre
//	boundingBox | bounding_box, with ne | northEast | northeast and sw | southWest | southwest
//	latitude | lat, longitude | lng
//
// All of them are normalized at the adapter boundary into the types in this
// package; nothing downstream reads provider JSON.
//
// Panel records carry an orientation (LANDSCAPE or PORTRAIT), an index into
// the roof-segment list (which supplies the segment azimuth), and a yearly DC
// energy estimate. Panel configurations are listed in ascending panel count;
// the panels of configuration i are the leading panelsCount panels by
// descending yearly energy.
//
// # Region Sizing
//
// The data-layer query is scoped to one building: the building center and
// half the haversine diagonal of its bounding box, at least 10 m. When no
// building is found the caller falls back to the raw coordinates with a fixed
// radius. See [RegionFromInsights].
//
// # Outcomes
//
// Steps that can degrade without failing (bounding-box reprojection, monthly
// frames) report an [Outcome] instead of swallowing errors.
package domain
