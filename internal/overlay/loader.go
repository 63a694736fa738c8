package overlay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/observability"
	"github.com/couchcryptid/solar-overlay/internal/raster"
)

// Normalization ranges, in kWh/kW, for the annual and monthly flux palettes.
const (
	AnnualFluxMax  = 1800
	MonthlyFluxMax = 200
)

// ErrNoAnnualFlux is returned when the data-layer lookup has no annual-flux URL.
var ErrNoAnnualFlux = errors.New("no annual flux for this location")

// Request asks for the overlay at one point.
type Request struct {
	Lat float64
	Lng float64
	// SelectionID tags the run. Sessions assign it; one-shot callers may leave it empty.
	SelectionID string
	// Monthly asks for the twelve monthly frames. It is implied by OnMonthly.
	Monthly bool
	// OnMonthly is called once from a background goroutine when the monthly
	// frames are ready. It is never called on failure.
	OnMonthly func(MonthlyReport)
}

func (r Request) wantsMonthly() bool {
	return r.Monthly || r.OnMonthly != nil
}

// Result is a rendered overlay.
type Result struct {
	SelectionID string
	Image       *image.NRGBA
	PNG         []byte
	// Bounds is the geographic extent of Image: the mask's when a mask was
	// returned, the flux raster's otherwise.
	Bounds         domain.Bounds
	BuildingCenter *domain.LatLng
	Insights       *domain.BuildingInsights
	Region         domain.Region
	// Projection is OutcomeDegraded when either raster kept its native box.
	Projection    domain.Outcome
	ProjectionErr error
	// Monthly receives exactly one report and is then closed. It is nil when
	// no monthly run was started.
	Monthly <-chan MonthlyReport
}

// Option configures a Loader.
type Option func(*Loader)

// WithStateObserver registers fn to see every state transition.
func WithStateObserver(fn StateObserver) Option {
	return func(l *Loader) { l.observer = fn }
}

// Loader runs overlay pipelines against a solar provider.
type Loader struct {
	provider    domain.SolarProvider
	projections *raster.Projections
	logger      *slog.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	observer    StateObserver
}

// NewLoader creates a Loader. projections may be shared across loaders.
func NewLoader(provider domain.SolarProvider, projections *raster.Projections, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Loader {
	l := &Loader{
		provider:    provider,
		projections: projections,
		logger:      logger,
		metrics:     metrics,
		tracer:      otel.Tracer(observability.TracerName),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load runs the pipeline for one point. Any failure before the image is
// rendered is returned; a missing building falls back to a default region and
// a failed reprojection degrades the bounds instead. The monthly frames, when
// requested, are produced under ctx after Load returns.
func (l *Loader) Load(ctx context.Context, req Request) (*Result, error) {
	ctx, span := l.tracer.Start(ctx, "overlay.load", trace.WithAttributes(
		attribute.String("selection.id", req.SelectionID),
		attribute.Float64("location.lat", req.Lat),
		attribute.Float64("location.lng", req.Lng),
	))
	defer span.End()

	res, err := l.load(ctx, req)
	if err != nil {
		l.transition(req.SelectionID, StateError)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		outcome := "error"
		if ctx.Err() != nil {
			outcome = "canceled"
		}
		l.metrics.OverlayLoads.WithLabelValues(outcome).Inc()
		l.logger.Warn("solar overlay unavailable",
			"selection_id", req.SelectionID,
			"lat", req.Lat,
			"lng", req.Lng,
			"error", err,
		)
		return nil, err
	}
	l.metrics.OverlayLoads.WithLabelValues("success").Inc()
	return res, nil
}

func (l *Loader) load(ctx context.Context, req Request) (*Result, error) {
	sel := req.SelectionID

	// Building lookup and projection warm-up.
	stageCtx, done := l.stage(ctx, sel, StateLookingUpBuilding)
	var (
		region   domain.Region
		insights *domain.BuildingInsights
	)
	g, gctx := errgroup.WithContext(stageCtx)
	g.Go(func() error {
		var err error
		region, insights, err = ResolveRegion(gctx, l.provider, req.Lat, req.Lng)
		return err
	})
	g.Go(func() error {
		l.warmProjection(gctx, req.Lat, req.Lng)
		return nil
	})
	err := g.Wait()
	done(err)
	if err != nil {
		return nil, err
	}
	l.metrics.RegionSource.WithLabelValues(string(region.Source)).Inc()
	l.logger.Debug("region resolved",
		"selection_id", sel,
		"source", region.Source,
		"radius_m", region.RadiusMeters,
	)

	// Data-layer URLs, then mask and flux bytes together.
	stageCtx, done = l.stage(ctx, sel, StateFetchingRasters)
	layers, maskBytes, fluxBytes, err := l.fetch(stageCtx, region)
	done(err)
	if err != nil {
		return nil, err
	}

	stageCtx, done = l.stage(ctx, sel, StateDecoding)
	mask, flux, err := l.decodePair(stageCtx, maskBytes, fluxBytes)
	done(err)
	if err != nil {
		return nil, err
	}

	_, done = l.stage(ctx, sel, StateRasterizing)
	res, err := l.render(mask, flux)
	done(err)
	if err != nil {
		return nil, err
	}
	res.SelectionID = sel
	res.Insights = insights
	res.Region = region
	if region.Source == domain.RegionFromBuilding {
		center := region.Center
		res.BuildingCenter = &center
	}
	l.transition(sel, StateReady)

	if layers.MonthlyFluxURL != "" && req.wantsMonthly() {
		var maskRaster *raster.Raster
		if mask != nil {
			maskRaster = mask.Raster
		}
		ch := make(chan MonthlyReport, 1)
		res.Monthly = ch
		l.transition(sel, StateMonthlyPending)
		go l.runMonthly(ctx, sel, layers.MonthlyFluxURL, maskRaster, res.Bounds, req.OnMonthly, ch)
	}
	return res, nil
}

func (l *Loader) warmProjection(ctx context.Context, lat, lng float64) {
	if l.projections == nil {
		return
	}
	epsg := domain.UTMEPSG(domain.LatLng{Lat: lat, Lng: lng})
	if err := l.projections.Warm(ctx, epsg); err != nil {
		l.logger.Warn("projection warm-up failed", "epsg", epsg, "error", err)
	}
}

func (l *Loader) fetch(ctx context.Context, region domain.Region) (*domain.DataLayers, []byte, []byte, error) {
	layers, err := l.provider.DataLayers(ctx, region)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("data layers: %w", err)
	}
	if layers.AnnualFluxURL == "" {
		return nil, nil, nil, ErrNoAnnualFlux
	}

	var maskBytes, fluxBytes []byte
	g, gctx := errgroup.WithContext(ctx)
	if layers.MaskURL != "" {
		g.Go(func() error {
			var err error
			if maskBytes, err = l.provider.GeoTIFF(gctx, layers.MaskURL); err != nil {
				return fmt.Errorf("fetch mask: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		if fluxBytes, err = l.provider.GeoTIFF(gctx, layers.AnnualFluxURL); err != nil {
			return fmt.Errorf("fetch annual flux: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return layers, maskBytes, fluxBytes, nil
}

// decodePair decodes the mask (when present) and the flux raster concurrently.
func (l *Loader) decodePair(ctx context.Context, maskBytes, fluxBytes []byte) (*raster.Decoded, *raster.Decoded, error) {
	var mask, flux *raster.Decoded
	g, gctx := errgroup.WithContext(ctx)
	if maskBytes != nil {
		g.Go(func() error {
			d, err := raster.Decode(gctx, maskBytes, l.projections)
			if err != nil {
				return fmt.Errorf("decode mask: %w", err)
			}
			mask = &d
			return nil
		})
	}
	g.Go(func() error {
		d, err := raster.Decode(gctx, fluxBytes, l.projections)
		if err != nil {
			return fmt.Errorf("decode annual flux: %w", err)
		}
		flux = &d
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return mask, flux, nil
}

func (l *Loader) render(mask, flux *raster.Decoded) (*Result, error) {
	var maskRaster *raster.Raster
	bounds := flux.Raster.Bounds
	outcome, projErr := flux.Projection, flux.ProjectionErr
	if mask != nil {
		maskRaster = mask.Raster
		bounds = mask.Raster.Bounds
		if mask.Projection == domain.OutcomeDegraded {
			outcome, projErr = mask.Projection, mask.ProjectionErr
		}
	}
	l.metrics.ProjectionOutcomes.WithLabelValues(string(outcome)).Inc()
	if outcome == domain.OutcomeDegraded {
		l.logger.Warn("raster bounds not reprojected, using native box",
			"crs_epsg", flux.CRS.EPSG,
			"error", projErr,
		)
	}

	fitMask, fitData := raster.FitPair(maskRaster, flux.Raster, raster.MaxOverlayPx)
	img, err := raster.Rasterize(fitData, fitMask, 0, &raster.IronPalette, 0, AnnualFluxMax)
	if err != nil {
		return nil, fmt.Errorf("rasterize annual flux: %w", err)
	}
	png, err := raster.EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &Result{
		Image:         img,
		PNG:           png,
		Bounds:        bounds,
		Projection:    outcome,
		ProjectionErr: projErr,
	}, nil
}

// stage records a transition and opens a span; the returned func closes it.
func (l *Loader) stage(ctx context.Context, sel string, s State) (context.Context, func(error)) {
	l.transition(sel, s)
	ctx, span := l.tracer.Start(ctx, "overlay."+string(s))
	start := time.Now()
	return ctx, func(err error) {
		l.metrics.StageDuration.WithLabelValues(string(s)).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}

func (l *Loader) transition(sel string, s State) {
	if l.observer != nil {
		l.observer(sel, s)
	}
}
