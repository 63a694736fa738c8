package overlay

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/raster"
)

// MonthsPerYear is the number of bands a monthly-flux raster must carry.
const MonthsPerYear = 12

// Frame is one month of the monthly flux animation.
type Frame struct {
	Month int // 1..12
	Image image.Image
	PNG   []byte
}

// MonthlyReport is the outcome of a background monthly run.
type MonthlyReport struct {
	SelectionID string
	Outcome     domain.Outcome
	Frames      []Frame
	Bounds      domain.Bounds
	Err         error
}

func (l *Loader) runMonthly(ctx context.Context, sel, url string, mask *raster.Raster, bounds domain.Bounds, onReady func(MonthlyReport), out chan<- MonthlyReport) {
	defer close(out)

	start := time.Now()
	frames, err := l.monthlyFrames(ctx, url, mask)
	l.metrics.StageDuration.WithLabelValues(string(StateMonthlyPending)).Observe(time.Since(start).Seconds())

	report := MonthlyReport{SelectionID: sel, Bounds: bounds}
	if err != nil {
		l.logger.Warn("monthly flux unavailable", "selection_id", sel, "error", err)
		l.metrics.MonthlyFrames.WithLabelValues("failed").Inc()
		l.transition(sel, StateMonthlyFailed)
		report.Outcome = domain.OutcomeFailed
		report.Err = err
		out <- report
		return
	}

	report.Outcome = domain.OutcomeSucceeded
	report.Frames = frames
	l.metrics.MonthlyFrames.WithLabelValues("ready").Inc()
	l.transition(sel, StateMonthlyReady)
	if onReady != nil {
		l.deliver(onReady, report)
	}
	out <- report
}

// deliver runs the caller's callback; a panic there is logged, not propagated.
func (l *Loader) deliver(onReady func(MonthlyReport), report MonthlyReport) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("monthly callback panicked", "selection_id", report.SelectionID, "panic", r)
		}
	}()
	onReady(report)
}

// monthlyFrames renders each month of the monthly flux raster under the
// full-resolution mask, resampled once to the monthly grid.
func (l *Loader) monthlyFrames(ctx context.Context, url string, mask *raster.Raster) (frames []Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monthly frames: %v", r)
		}
	}()

	data, err := l.provider.GeoTIFF(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch monthly flux: %w", err)
	}
	dec, err := raster.Decode(ctx, data, l.projections)
	if err != nil {
		return nil, fmt.Errorf("decode monthly flux: %w", err)
	}
	monthly := dec.Raster
	if len(monthly.Bands) < MonthsPerYear {
		return nil, fmt.Errorf("monthly flux has %d bands, want %d", len(monthly.Bands), MonthsPerYear)
	}

	var monthlyMask *raster.Raster
	if mask != nil {
		monthlyMask = raster.ResampleMask(mask, monthly.Width, monthly.Height)
	}

	frames = make([]Frame, 0, MonthsPerYear)
	for b := range MonthsPerYear {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := raster.Rasterize(monthly, monthlyMask, b, &raster.IronPalette, 0, MonthlyFluxMax)
		if err != nil {
			return nil, fmt.Errorf("rasterize month %d: %w", b+1, err)
		}
		scaled := raster.ScaleToFit(img, raster.MaxOverlayPx)
		png, err := raster.EncodePNG(scaled)
		if err != nil {
			return nil, fmt.Errorf("encode month %d: %w", b+1, err)
		}
		frames = append(frames, Frame{Month: b + 1, Image: scaled, PNG: png})
	}
	return frames, nil
}
