package domain

import (
	"time"
)

// LatLng is a WGS-84 latitude/longitude pair in degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Bounds is a geographic extent in degrees.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
}

// Valid reports whether the extent is non-empty (south < north, west < east).
func (b Bounds) Valid() bool {
	return b.South < b.North && b.West < b.East
}

// Center returns the midpoint of the extent.
func (b Bounds) Center() LatLng {
	return LatLng{Lat: (b.South + b.North) / 2, Lng: (b.West + b.East) / 2}
}

// BoundingBox is the axis-aligned box around a building, as two corners.
type BoundingBox struct {
	SW LatLng `json:"sw"`
	NE LatLng `json:"ne"`
}

// BuildingInsights is the canonical form of a building-insights lookup.
// Every accepted wire spelling is normalized into this shape at the
// provider boundary; nothing downstream sees raw provider JSON.
type BuildingInsights struct {
	Name           string          `json:"name,omitempty"`
	Center         *LatLng         `json:"center,omitempty"`
	BoundingBox    *BoundingBox    `json:"bounding_box,omitempty"`
	ImageryQuality string          `json:"imagery_quality,omitempty"`
	SolarPotential *SolarPotential `json:"solar_potential,omitempty"`
}

// Orientation of a physical panel on its roof segment.
type Orientation string

const (
	Landscape Orientation = "LANDSCAPE"
	Portrait  Orientation = "PORTRAIT"
)

// SolarPanel is one physical panel placed by the provider.
type SolarPanel struct {
	Center            LatLng      `json:"center"`
	Orientation       Orientation `json:"orientation"`
	SegmentIndex      int         `json:"segment_index"`
	YearlyEnergyDcKwh float64     `json:"yearly_energy_dc_kwh"`
}

// RoofSegment carries the orientation of one roof plane.
type RoofSegment struct {
	AzimuthDegrees float64 `json:"azimuth_degrees"`
	PitchDegrees   float64 `json:"pitch_degrees"`
}

// PanelConfig is one candidate system sizing. YearlyEnergyDcKwh is nil when
// the provider omitted it.
type PanelConfig struct {
	PanelsCount       int      `json:"panels_count"`
	YearlyEnergyDcKwh *float64 `json:"yearly_energy_dc_kwh,omitempty"`
}

// SolarPotential is the per-building panel layout returned with building insights.
type SolarPotential struct {
	Panels             []SolarPanel  `json:"solar_panels"`
	RoofSegments       []RoofSegment `json:"roof_segment_stats"`
	Configs            []PanelConfig `json:"solar_panel_configs"`
	PanelWidthMeters   float64       `json:"panel_width_meters"`
	PanelHeightMeters  float64       `json:"panel_height_meters"`
	PanelCapacityWatts *float64      `json:"panel_capacity_watts,omitempty"`
}

// PanelSelection is emitted to report code when a configuration is chosen.
type PanelSelection struct {
	PanelCount         int      `json:"panel_count"`
	YearlyKwh          float64  `json:"yearly_kwh"`
	PanelCapacityWatts *float64 `json:"panel_capacity_watts"`
}

// DataLayers holds the raster URLs for one region. AnnualFluxURL is required
// by the overlay pipeline; the others are optional.
type DataLayers struct {
	AnnualFluxURL  string `json:"annual_flux_url"`
	MaskURL        string `json:"mask_url,omitempty"`
	MonthlyFluxURL string `json:"monthly_flux_url,omitempty"`
	ImageryQuality string `json:"imagery_quality,omitempty"`
}

// RegionSource records how a query region was derived.
type RegionSource string

const (
	RegionFromBuilding RegionSource = "building"
	RegionFallback     RegionSource = "fallback"
)

// Region scopes a data-layer query to one building.
type Region struct {
	Center       LatLng       `json:"center"`
	RadiusMeters int          `json:"radius_meters"`
	Source       RegionSource `json:"source"`
}

// OverlayRequest asks for the overlay of one selected address.
type OverlayRequest struct {
	ViewerID string  `json:"viewer_id"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

// OverlayEvent is the serialized overlay result published downstream.
type OverlayEvent struct {
	ViewerID       string          `json:"viewer_id"`
	SelectionID    string          `json:"selection_id"`
	ImagePNG       []byte          `json:"image_png"`
	Bounds         Bounds          `json:"bounds"`
	BuildingCenter *LatLng         `json:"building_center,omitempty"`
	Region         Region          `json:"region"`
	Projection     Outcome         `json:"projection"`
	Selection      *PanelSelection `json:"panel_selection,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// MonthlyFramesEvent carries the twelve monthly flux frames for a selection.
type MonthlyFramesEvent struct {
	ViewerID    string    `json:"viewer_id"`
	SelectionID string    `json:"selection_id"`
	Frames      [][]byte  `json:"frames_png"`
	Bounds      Bounds    `json:"bounds"`
	GeneratedAt time.Time `json:"generated_at"`
}
