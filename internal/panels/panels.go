// Package panels lays out a building's solar panels as colored map polygons
// and tracks which of them a chosen system size shows.
package panels

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/raster"
)

// EnergyPalette runs from light (lowest yield) to dark blue (highest yield).
var EnergyPalette = raster.MustParseHexPalette("E8EAF6", "1A237E")

const (
	strokeColor = "#B0BEC5"
	fillOpacity = 0.9

	// Panel dimensions used when the provider omits them.
	defaultPanelMeters = 1.0
)

var (
	ErrNoPanels       = errors.New("building has no solar panels")
	ErrNoRoofSegments = errors.New("building has no roof segments")
)

// Polygon is one panel footprint on the map.
type Polygon struct {
	// Ring is closed: the last point repeats the first.
	Ring              []domain.LatLng
	Fill              color.RGBA
	YearlyEnergyDcKwh float64
	SegmentIndex      int
}

// Layout holds every panel polygon of a building, ordered by descending
// yearly energy, plus the candidate configurations that select a prefix of
// them. Polygons are built once; Select only moves the visible cursor.
// A Layout is not safe for concurrent Select calls.
type Layout struct {
	Polygons           []Polygon
	Configs            []domain.PanelConfig
	PanelCapacityWatts *float64

	visible int
}

// Build computes polygons and colors for every panel in potential.
func Build(potential *domain.SolarPotential) (*Layout, error) {
	if potential == nil || len(potential.Panels) == 0 {
		return nil, ErrNoPanels
	}
	if len(potential.RoofSegments) == 0 {
		return nil, ErrNoRoofSegments
	}

	panels := make([]domain.SolarPanel, len(potential.Panels))
	copy(panels, potential.Panels)
	sort.SliceStable(panels, func(i, j int) bool {
		return panels[i].YearlyEnergyDcKwh > panels[j].YearlyEnergyDcKwh
	})
	minE := panels[len(panels)-1].YearlyEnergyDcKwh
	maxE := panels[0].YearlyEnergyDcKwh

	halfW := orDefault(potential.PanelWidthMeters) / 2
	halfH := orDefault(potential.PanelHeightMeters) / 2

	l := &Layout{
		Polygons:           make([]Polygon, len(panels)),
		Configs:            potential.Configs,
		PanelCapacityWatts: potential.PanelCapacityWatts,
	}
	for i, p := range panels {
		azimuth := 0.0
		if p.SegmentIndex >= 0 && p.SegmentIndex < len(potential.RoofSegments) {
			azimuth = potential.RoofSegments[p.SegmentIndex].AzimuthDegrees
		}
		t := 0.0
		if maxE > minE {
			t = (p.YearlyEnergyDcKwh - minE) / (maxE - minE)
		}
		l.Polygons[i] = Polygon{
			Ring:              footprint(p.Center, halfW, halfH, orientationDegrees(p.Orientation)+azimuth),
			Fill:              EnergyPalette.At(t),
			YearlyEnergyDcKwh: p.YearlyEnergyDcKwh,
			SegmentIndex:      p.SegmentIndex,
		}
	}

	l.visible = len(l.Polygons)
	if len(l.Configs) > 0 {
		l.visible = l.countFor(l.Configs[0])
	}
	return l, nil
}

// footprint projects the panel corners (±halfW, ±halfH) rotated by rotation
// degrees around center.
func footprint(center domain.LatLng, halfW, halfH, rotation float64) []domain.LatLng {
	corners := [][2]float64{{halfW, halfH}, {halfW, -halfH}, {-halfW, -halfH}, {-halfW, halfH}, {halfW, halfH}}
	ring := make([]domain.LatLng, len(corners))
	for i, c := range corners {
		x, y := c[0], c[1]
		heading := math.Atan2(y, x)*180/math.Pi + rotation
		ring[i] = domain.DestinationPoint(center, math.Hypot(x, y), heading)
	}
	return ring
}

func orientationDegrees(o domain.Orientation) float64 {
	if o == domain.Portrait {
		return 90
	}
	return 0
}

func orDefault(meters float64) float64 {
	if meters <= 0 || math.IsNaN(meters) {
		return defaultPanelMeters
	}
	return meters
}

func (l *Layout) countFor(c domain.PanelConfig) int {
	return max(0, min(c.PanelsCount, len(l.Polygons)))
}

// Select makes configuration idx current. It returns the selection to report
// (nil when idx is out of range or the configuration has no yearly energy)
// and the number of visible polygons. An out-of-range idx leaves the visible
// count unchanged.
func (l *Layout) Select(idx int) (*domain.PanelSelection, int) {
	if idx < 0 || idx >= len(l.Configs) {
		return nil, l.visible
	}
	c := l.Configs[idx]
	l.visible = l.countFor(c)
	if c.YearlyEnergyDcKwh == nil {
		return nil, l.visible
	}
	return &domain.PanelSelection{
		PanelCount:         c.PanelsCount,
		YearlyKwh:          *c.YearlyEnergyDcKwh,
		PanelCapacityWatts: l.PanelCapacityWatts,
	}, l.visible
}

// Visible returns the polygons currently shown.
func (l *Layout) Visible() []Polygon {
	return l.Polygons[:l.visible]
}

// VisibleCount returns the number of polygons currently shown.
func (l *Layout) VisibleCount() int {
	return l.visible
}

// FeatureCollection renders every polygon as a GeoJSON feature. The leading
// visible features are marked visible.
func (l *Layout) FeatureCollection(visible int) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for i, p := range l.Polygons {
		ring := make(orb.Ring, len(p.Ring))
		for j, pt := range p.Ring {
			ring[j] = pt.Point()
		}
		f := geojson.NewFeature(orb.Polygon{ring})
		f.Properties["rank"] = i
		f.Properties["fill"] = hexColor(p.Fill)
		f.Properties["fill-opacity"] = fillOpacity
		f.Properties["stroke"] = strokeColor
		f.Properties["yearly_energy_dc_kwh"] = p.YearlyEnergyDcKwh
		f.Properties["segment_index"] = p.SegmentIndex
		f.Properties["visible"] = i < visible
		fc.Append(f)
	}
	return fc
}

func hexColor(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}
