package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/couchcryptid/solar-overlay/internal/adapter/solarapi"
	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/overlay"
	"github.com/couchcryptid/solar-overlay/internal/panels"
	"github.com/couchcryptid/solar-overlay/internal/raster"
)

// Forwarder relays a query to the Solar API with credentials injected.
type Forwarder interface {
	Forward(ctx context.Context, endpoint string, query url.Values) (*solarapi.Passthrough, error)
}

// OverlayLoader renders the overlay for a point.
type OverlayLoader interface {
	Load(ctx context.Context, req overlay.Request) (*overlay.Result, error)
}

// WithSolarProxy serves /api/solar/building-insights, /data-layers, and
// /geotiff, relaying to the Solar API so clients never hold the key.
func WithSolarProxy(f Forwarder) Option {
	return func(s *Server, mux *http.ServeMux) {
		mux.HandleFunc("GET /api/solar/building-insights", s.handleForwardJSON(f, solarapi.EndpointBuildingInsights))
		mux.HandleFunc("GET /api/solar/data-layers", s.handleForwardJSON(f, solarapi.EndpointDataLayers))
		mux.HandleFunc("GET /api/solar/geotiff", s.handleGeoTIFF(f))
	}
}

// WithOverlay serves /api/solar/overlay and /api/solar/panels.
func WithOverlay(loader OverlayLoader, provider domain.SolarProvider) Option {
	return func(s *Server, mux *http.ServeMux) {
		mux.HandleFunc("GET /api/solar/overlay", s.handleOverlay(loader))
		mux.HandleFunc("GET /api/solar/panels", s.handlePanels(provider))
	}
}

func (s *Server) handleForwardJSON(f Forwarder, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := f.Forward(r.Context(), endpoint, r.URL.Query())
		if err != nil {
			s.logger.Error("solar proxy failed", "endpoint", endpoint, "error", err)
			writeError(w, http.StatusBadGateway, "solar API unreachable")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(resp.Body)
	}
}

func (s *Server) handleGeoTIFF(f Forwarder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := r.URL.Query().Get("url")
		if target == "" {
			writeError(w, http.StatusBadRequest, "url is required")
			return
		}
		resp, err := f.Forward(r.Context(), solarapi.EndpointGeoTIFF, url.Values{"url": {target}})
		if errors.Is(err, solarapi.ErrForeignURL) {
			s.logger.Warn("geotiff proxy rejected url", "error", err)
			writeError(w, http.StatusBadRequest, "url must point at the Solar API")
			return
		}
		if err != nil {
			s.logger.Error("geotiff proxy failed", "error", err)
			writeError(w, http.StatusBadGateway, "GeoTIFF fetch failed")
			return
		}
		if resp.StatusCode != http.StatusOK {
			writeJSON(w, resp.StatusCode, map[string]string{"detail": "GeoTIFF fetch failed"})
			return
		}
		w.Header().Set("Content-Type", "image/tiff")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(resp.Body)
	}
}

type overlayResponse struct {
	Image          string         `json:"image"`
	Bounds         domain.Bounds  `json:"bounds"`
	BuildingCenter *domain.LatLng `json:"building_center"`
	Region         domain.Region  `json:"region"`
	Projection     domain.Outcome `json:"projection"`
	ProjectionErr  string         `json:"projection_error,omitempty"`
}

func (s *Server) handleOverlay(loader OverlayLoader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lat, lng, err := parseLatLng(r.URL.Query())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		res, err := loader.Load(r.Context(), overlay.Request{Lat: lat, Lng: lng})
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, overlay.ErrNoAnnualFlux) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}

		if r.URL.Query().Get("format") == "png" {
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("X-Overlay-Bounds", fmt.Sprintf("%g,%g,%g,%g",
				res.Bounds.South, res.Bounds.West, res.Bounds.North, res.Bounds.East))
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(res.PNG)
			return
		}

		body := overlayResponse{
			Image:          raster.DataURL(res.PNG),
			Bounds:         res.Bounds,
			BuildingCenter: res.BuildingCenter,
			Region:         res.Region,
			Projection:     res.Projection,
		}
		if res.ProjectionErr != nil {
			body.ProjectionErr = res.ProjectionErr.Error()
		}
		writeJSON(w, http.StatusOK, body)
	}
}

type panelsResponse struct {
	Panels             any                    `json:"panels"`
	Selection          *domain.PanelSelection `json:"selection"`
	VisibleCount       int                    `json:"visible_count"`
	Configs            []domain.PanelConfig   `json:"configs"`
	PanelCapacityWatts *float64               `json:"panel_capacity_watts"`
}

func (s *Server) handlePanels(provider domain.SolarProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		lat, lng, err := parseLatLng(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		idx := 0
		if v := q.Get("config"); v != "" {
			if idx, err = strconv.Atoi(v); err != nil {
				writeError(w, http.StatusBadRequest, "invalid config")
				return
			}
		}

		insights, err := provider.BuildingInsights(r.Context(), lat, lng)
		if errors.Is(err, domain.ErrBuildingNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			s.logger.Error("building insights failed", "lat", lat, "lng", lng, "error", err)
			writeError(w, http.StatusBadGateway, "building insights failed")
			return
		}

		layout, err := panels.Build(insights.SolarPotential)
		if errors.Is(err, panels.ErrNoPanels) || errors.Is(err, panels.ErrNoRoofSegments) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		sel, visible := layout.Select(idx)
		writeJSON(w, http.StatusOK, panelsResponse{
			Panels:             layout.FeatureCollection(visible),
			Selection:          sel,
			VisibleCount:       visible,
			Configs:            layout.Configs,
			PanelCapacityWatts: layout.PanelCapacityWatts,
		})
	}
}

func parseLatLng(q url.Values) (float64, float64, error) {
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, errors.New("invalid lat")
	}
	lng, err := strconv.ParseFloat(q.Get("lng"), 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, errors.New("invalid lng")
	}
	return lat, lng, nil
}
