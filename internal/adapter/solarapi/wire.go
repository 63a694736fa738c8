package solarapi

import "github.com/couchcryptid/solar-overlay/internal/domain"

// The Solar API answers in camelCase, but some proxies re-serialize in
// snake_case. Both spellings are accepted and folded into domain types here.

type wireLatLng struct {
	Latitude  *float64 `json:"latitude"`
	Lat       *float64 `json:"lat"`
	Longitude *float64 `json:"longitude"`
	Lng       *float64 `json:"lng"`
}

func (w *wireLatLng) toDomain() (domain.LatLng, bool) {
	if w == nil {
		return domain.LatLng{}, false
	}
	lat, latOK := first(w.Latitude, w.Lat)
	lng, lngOK := first(w.Longitude, w.Lng)
	if !latOK || !lngOK {
		return domain.LatLng{}, false
	}
	return domain.LatLng{Lat: lat, Lng: lng}, true
}

type wireBox struct {
	NE        *wireLatLng `json:"ne"`
	NorthEast *wireLatLng `json:"northEast"` // also matches "northeast"
	SW        *wireLatLng `json:"sw"`
	SouthWest *wireLatLng `json:"southWest"`
}

func (w *wireBox) toDomain() (*domain.BoundingBox, bool) {
	if w == nil {
		return nil, false
	}
	ne := w.NE
	if ne == nil {
		ne = w.NorthEast
	}
	sw := w.SW
	if sw == nil {
		sw = w.SouthWest
	}
	nePt, neOK := ne.toDomain()
	swPt, swOK := sw.toDomain()
	if !neOK || !swOK {
		return nil, false
	}
	return &domain.BoundingBox{SW: swPt, NE: nePt}, true
}

type wireInsights struct {
	Name                string         `json:"name"`
	Center              *wireLatLng    `json:"center"`
	Centre              *wireLatLng    `json:"centre"`
	BoundingBox         *wireBox       `json:"boundingBox"`
	BoundingBoxSnake    *wireBox       `json:"bounding_box"`
	ImageryQuality      string         `json:"imageryQuality"`
	ImageryQualitySnake string         `json:"imagery_quality"`
	SolarPotential      *wirePotential `json:"solarPotential"`
	SolarPotentialSnake *wirePotential `json:"solar_potential"`
}

func (w *wireInsights) toDomain() *domain.BuildingInsights {
	out := &domain.BuildingInsights{
		Name:           w.Name,
		ImageryQuality: orString(w.ImageryQuality, w.ImageryQualitySnake),
	}
	center := w.Center
	if center == nil {
		center = w.Centre
	}
	if c, ok := center.toDomain(); ok {
		out.Center = &c
	}
	box := w.BoundingBox
	if box == nil {
		box = w.BoundingBoxSnake
	}
	if b, ok := box.toDomain(); ok {
		out.BoundingBox = b
	}
	potential := w.SolarPotential
	if potential == nil {
		potential = w.SolarPotentialSnake
	}
	if potential != nil {
		out.SolarPotential = potential.toDomain()
	}
	return out
}

type wirePotential struct {
	SolarPanels             []wirePanel       `json:"solarPanels"`
	SolarPanelsSnake        []wirePanel       `json:"solar_panels"`
	RoofSegmentStats        []wireRoofSegment `json:"roofSegmentStats"`
	RoofSegmentStatsSnake   []wireRoofSegment `json:"roof_segment_stats"`
	SolarPanelConfigs       []wireConfig      `json:"solarPanelConfigs"`
	SolarPanelConfigsSnake  []wireConfig      `json:"solar_panel_configs"`
	PanelWidthMeters        *float64          `json:"panelWidthMeters"`
	PanelWidthMetersSnake   *float64          `json:"panel_width_meters"`
	PanelHeightMeters       *float64          `json:"panelHeightMeters"`
	PanelHeightMetersSnake  *float64          `json:"panel_height_meters"`
	PanelCapacityWatts      *float64          `json:"panelCapacityWatts"`
	PanelCapacityWattsSnake *float64          `json:"panel_capacity_watts"`
}

func (w *wirePotential) toDomain() *domain.SolarPotential {
	out := &domain.SolarPotential{}

	panels := w.SolarPanels
	if len(panels) == 0 {
		panels = w.SolarPanelsSnake
	}
	for _, p := range panels {
		if dp, ok := p.toDomain(); ok {
			out.Panels = append(out.Panels, dp)
		}
	}

	segments := w.RoofSegmentStats
	if len(segments) == 0 {
		segments = w.RoofSegmentStatsSnake
	}
	for _, s := range segments {
		az, _ := first(s.AzimuthDegrees, s.AzimuthDegreesSnake)
		pitch, _ := first(s.PitchDegrees, s.PitchDegreesSnake)
		out.RoofSegments = append(out.RoofSegments, domain.RoofSegment{AzimuthDegrees: az, PitchDegrees: pitch})
	}

	configs := w.SolarPanelConfigs
	if len(configs) == 0 {
		configs = w.SolarPanelConfigsSnake
	}
	for _, c := range configs {
		count, _ := firstInt(c.PanelsCount, c.PanelsCountSnake)
		cfg := domain.PanelConfig{PanelsCount: count}
		if e, ok := first(c.YearlyEnergyDcKwh, c.YearlyEnergyDcKwhSnake); ok {
			cfg.YearlyEnergyDcKwh = &e
		}
		out.Configs = append(out.Configs, cfg)
	}

	out.PanelWidthMeters, _ = first(w.PanelWidthMeters, w.PanelWidthMetersSnake)
	out.PanelHeightMeters, _ = first(w.PanelHeightMeters, w.PanelHeightMetersSnake)
	if c, ok := first(w.PanelCapacityWatts, w.PanelCapacityWattsSnake); ok {
		out.PanelCapacityWatts = &c
	}
	return out
}

type wirePanel struct {
	Center                 *wireLatLng `json:"center"`
	Orientation            string      `json:"orientation"`
	SegmentIndex           *int        `json:"segmentIndex"`
	SegmentIndexSnake      *int        `json:"segment_index"`
	YearlyEnergyDcKwh      *float64    `json:"yearlyEnergyDcKwh"`
	YearlyEnergyDcKwhSnake *float64    `json:"yearly_energy_dc_kwh"`
}

// toDomain drops panels without a usable center; they cannot be drawn.
func (w wirePanel) toDomain() (domain.SolarPanel, bool) {
	center, ok := w.Center.toDomain()
	if !ok {
		return domain.SolarPanel{}, false
	}
	seg, _ := firstInt(w.SegmentIndex, w.SegmentIndexSnake)
	energy, _ := first(w.YearlyEnergyDcKwh, w.YearlyEnergyDcKwhSnake)
	orientation := domain.Landscape
	if w.Orientation == string(domain.Portrait) {
		orientation = domain.Portrait
	}
	return domain.SolarPanel{
		Center:            center,
		Orientation:       orientation,
		SegmentIndex:      seg,
		YearlyEnergyDcKwh: energy,
	}, true
}

type wireRoofSegment struct {
	AzimuthDegrees      *float64 `json:"azimuthDegrees"`
	AzimuthDegreesSnake *float64 `json:"azimuth_degrees"`
	PitchDegrees        *float64 `json:"pitchDegrees"`
	PitchDegreesSnake   *float64 `json:"pitch_degrees"`
}

type wireConfig struct {
	PanelsCount            *int     `json:"panelsCount"`
	PanelsCountSnake       *int     `json:"panels_count"`
	YearlyEnergyDcKwh      *float64 `json:"yearlyEnergyDcKwh"`
	YearlyEnergyDcKwhSnake *float64 `json:"yearly_energy_dc_kwh"`
}

type wireDataLayers struct {
	AnnualFluxURL       string `json:"annualFluxUrl"`
	AnnualFluxURLSnake  string `json:"annual_flux_url"`
	MaskURL             string `json:"maskUrl"`
	MaskURLSnake        string `json:"mask_url"`
	MonthlyFluxURL      string `json:"monthlyFluxUrl"`
	MonthlyFluxURLSnake string `json:"monthly_flux_url"`
	ImageryQuality      string `json:"imageryQuality"`
	ImageryQualitySnake string `json:"imagery_quality"`
}

func (w *wireDataLayers) toDomain() *domain.DataLayers {
	return &domain.DataLayers{
		AnnualFluxURL:  orString(w.AnnualFluxURL, w.AnnualFluxURLSnake),
		MaskURL:        orString(w.MaskURL, w.MaskURLSnake),
		MonthlyFluxURL: orString(w.MonthlyFluxURL, w.MonthlyFluxURLSnake),
		ImageryQuality: orString(w.ImageryQuality, w.ImageryQualitySnake),
	}
}

// wireError covers both the Google error envelope and flat {"message": ...} bodies.
type wireError struct {
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func first(vs ...*float64) (float64, bool) {
	for _, v := range vs {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

func firstInt(vs ...*int) (int, bool) {
	for _, v := range vs {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

func orString(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
