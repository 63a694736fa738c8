package domain

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadiusMeters is the mean Earth radius used for region sizing.
const EarthRadiusMeters = 6_371_000

// DistanceMeters returns the haversine great-circle distance between two points.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// DestinationPoint offsets origin by distance meters along a compass bearing
// (degrees clockwise from north) on a sphere. It matches the map provider's
// spherical offset so panel polygons line up with its imagery.
func DestinationPoint(origin LatLng, distanceMeters, bearingDegrees float64) LatLng {
	p := geo.PointAtBearingAndDistance(origin.Point(), bearingDegrees, distanceMeters)
	return LatLng{Lat: p.Lat(), Lng: p.Lon()}
}

// Point converts to an orb point (lon, lat order).
func (p LatLng) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// UTMZone returns the UTM zone number (1..60) containing the longitude.
func UTMZone(lng float64) int {
	zone := int(math.Floor((lng+180)/6)) + 1
	if zone < 1 {
		return 1
	}
	if zone > 60 {
		return 60
	}
	return zone
}

// UTMEPSG returns the WGS-84 / UTM EPSG code for a point (326xx north, 327xx south).
func UTMEPSG(p LatLng) int {
	if p.Lat < 0 {
		return 32700 + UTMZone(p.Lng)
	}
	return 32600 + UTMZone(p.Lng)
}
