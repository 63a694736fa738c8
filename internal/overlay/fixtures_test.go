package overlay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/observability"
	"github.com/couchcryptid/solar-overlay/internal/raster"
)

const (
	maskURL    = "https://solar.test/geoTiff:get?id=mask"
	fluxURL    = "https://solar.test/geoTiff:get?id=flux"
	monthlyURL = "https://solar.test/geoTiff:get?id=monthly"
)

var tileBounds = domain.Bounds{South: 37.0, West: -122.0, North: 37.0004, East: -121.9996}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func filled(w, h, bands int, v float64) *raster.Raster {
	r := raster.New(w, h, bands, tileBounds)
	for b := range r.Bands {
		for i := range r.Bands[b] {
			r.Bands[b][i] = v
		}
	}
	return r
}

func encodeTIFF(t *testing.T, r *raster.Raster, opts raster.EncodeOptions) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, raster.Encode(&buf, r, opts))
	return buf.Bytes()
}

// fakeProvider serves canned insights, data layers, and GeoTIFFs. Lookups for a
// latitude in hold, and fetches of a URL in tiffHold, block until the channel
// is closed, regardless of context cancellation.
type fakeProvider struct {
	mu sync.Mutex

	insights    *domain.BuildingInsights
	insightsErr error
	layers      *domain.DataLayers
	layersErr   error
	tiffs       map[string][]byte
	tiffErrs    map[string]error
	hold        map[float64]chan struct{}
	tiffHold    map[string]chan struct{}

	lookups   []float64
	regions   []domain.Region
	fetched   []string
	layersCtx context.Context
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	return &fakeProvider{
		insights: &domain.BuildingInsights{
			Center: &domain.LatLng{Lat: 37.0002, Lng: -121.9998},
			BoundingBox: &domain.BoundingBox{
				SW: domain.LatLng{Lat: 37.0001, Lng: -121.9999},
				NE: domain.LatLng{Lat: 37.0003, Lng: -121.9997},
			},
		},
		layers: &domain.DataLayers{AnnualFluxURL: fluxURL, MaskURL: maskURL, MonthlyFluxURL: monthlyURL},
		tiffs: map[string][]byte{
			maskURL:    encodeTIFF(t, filled(4, 4, 1, 1), raster.EncodeOptions{}),
			fluxURL:    encodeTIFF(t, filled(4, 4, 1, 900), raster.EncodeOptions{}),
			monthlyURL: encodeTIFF(t, filled(2, 2, 12, 100), raster.EncodeOptions{}),
		},
		tiffErrs: map[string]error{},
		hold:     map[float64]chan struct{}{},
		tiffHold: map[string]chan struct{}{},
	}
}

func (p *fakeProvider) BuildingInsights(ctx context.Context, lat, _ float64) (*domain.BuildingInsights, error) {
	p.mu.Lock()
	p.lookups = append(p.lookups, lat)
	hold := p.hold[lat]
	p.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if p.insightsErr != nil {
		return nil, p.insightsErr
	}
	return p.insights, nil
}

func (p *fakeProvider) DataLayers(ctx context.Context, region domain.Region) (*domain.DataLayers, error) {
	p.mu.Lock()
	p.regions = append(p.regions, region)
	p.layersCtx = ctx
	p.mu.Unlock()
	if p.layersErr != nil {
		return nil, p.layersErr
	}
	return p.layers, nil
}

func (p *fakeProvider) GeoTIFF(ctx context.Context, rawURL string) ([]byte, error) {
	p.mu.Lock()
	p.fetched = append(p.fetched, rawURL)
	err := p.tiffErrs[rawURL]
	data, ok := p.tiffs[rawURL]
	hold := p.tiffHold[rawURL]
	p.mu.Unlock()
	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("geotiff fetch failed: status 404")
	}
	return data, nil
}

func (p *fakeProvider) lookupCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lookups)
}

func (p *fakeProvider) fetchCount(rawURL string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, u := range p.fetched {
		if u == rawURL {
			n++
		}
	}
	return n
}

// runContext returns the context of the most recent data-layers call.
func (p *fakeProvider) runContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.layersCtx
}

func (p *fakeProvider) lastRegion() domain.Region {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.regions[len(p.regions)-1]
}

// stateRecorder collects transitions from any goroutine.
type stateRecorder struct {
	mu     sync.Mutex
	states map[string][]State
}

func newStateRecorder() *stateRecorder {
	return &stateRecorder{states: map[string][]State{}}
}

func (r *stateRecorder) observe(sel string, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[sel] = append(r.states[sel], s)
}

func (r *stateRecorder) get(sel string) []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states[sel]...)
}

func newTestLoader(p domain.SolarProvider, opts ...Option) (*Loader, *observability.Metrics) {
	m := observability.NewMetricsForTesting()
	return NewLoader(p, raster.NewProjections(), discardLogger(), m, opts...), m
}
