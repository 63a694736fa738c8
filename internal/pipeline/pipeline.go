package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/observability"
	"github.com/couchcryptid/solar-overlay/internal/overlay"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Reasons a request is committed without producing an overlay.
const (
	skipInvalid    = "invalid"
	skipSuperseded = "superseded"
	skipFailed     = "failed"
)

// BatchExtractor reads up to batchSize overlay requests from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Renderer renders the overlay for one parsed request.
type Renderer interface {
	Render(ctx context.Context, req domain.OverlayRequest) (domain.OverlayEvent, error)
}

// BatchLoader writes rendered overlays to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OverlayEvent) error
}

// Pipeline consumes overlay requests in batches. Within a batch only each
// viewer's newest request is rendered; the batch is committed once every
// rendered overlay has been written.
type Pipeline struct {
	extractor BatchExtractor
	renderer  Renderer
	loader    BatchLoader
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
	batchSize int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, r Renderer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor: e,
		renderer:  r,
		loader:    l,
		logger:    logger,
		metrics:   metrics,
		batchSize: batchSize,
	}
}

// CheckReadiness returns nil once the pipeline has written at least one overlay.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not rendered any overlays yet")
	}
	return nil
}

// Run consumes batches until the context is cancelled. Extract and load
// failures back off from 200ms up to 5s.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for ctx.Err() == nil {
		if !p.processBatch(ctx, &backoff) {
			break
		}
	}
	p.logger.Info("pipeline stopping", "reason", context.Cause(ctx))
	return nil
}

// processBatch runs one extract-render-load-commit cycle. It returns false
// when the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	start := time.Now()

	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}
	if len(batch) == 0 {
		return ctx.Err() == nil
	}

	p.metrics.MessagesConsumed.Add(float64(len(batch)))
	p.metrics.BatchSize.Observe(float64(len(batch)))
	*backoff = initialBackoff

	events := p.renderBatch(ctx, batch)
	// A shutdown mid-batch leaves it uncommitted so every request is redelivered.
	if ctx.Err() != nil {
		return false
	}

	if len(events) > 0 {
		if err := p.loader.LoadBatch(ctx, events); err != nil {
			p.logger.Error("load batch failed", "error", err, "overlays", len(events))
			return p.backoffOrStop(ctx, backoff)
		}
		p.metrics.MessagesProduced.Add(float64(len(events)))
		p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
		p.ready.Store(true)
	}

	p.commit(ctx, batch)
	return true
}

// renderBatch renders the newest request of each viewer in the batch. Older
// requests from the same viewer are superseded without rendering; requests
// that cannot be parsed or rendered are skipped.
func (p *Pipeline) renderBatch(ctx context.Context, batch []domain.RawEvent) []domain.OverlayEvent {
	reqs := make([]*domain.OverlayRequest, len(batch))
	newest := make(map[string]int, len(batch))
	for i, raw := range batch {
		req, err := domain.ParseOverlayRequest(raw)
		if err != nil {
			p.skip(raw, skipInvalid, err)
			continue
		}
		if prev, ok := newest[req.ViewerID]; ok {
			p.skip(batch[prev], skipSuperseded, nil)
			reqs[prev] = nil
		}
		reqs[i] = &req
		newest[req.ViewerID] = i
	}

	events := make([]domain.OverlayEvent, 0, len(newest))
	for i, req := range reqs {
		if req == nil {
			continue
		}
		event, err := p.renderer.Render(ctx, *req)
		switch {
		case err == nil:
			events = append(events, event)
		case errors.Is(err, overlay.ErrSuperseded):
			p.skip(batch[i], skipSuperseded, err)
		default:
			p.skip(batch[i], skipFailed, err)
		}
	}
	return events
}

func (p *Pipeline) skip(raw domain.RawEvent, reason string, err error) {
	p.metrics.RequestsSkipped.WithLabelValues(reason).Inc()
	attrs := []any{"reason", reason, "topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset}
	if reason == skipSuperseded {
		p.logger.Debug("overlay request superseded", attrs...)
		return
	}
	p.logger.Warn("overlay request skipped", append(attrs, "error", err)...)
}

// commit acknowledges every message in the batch in order.
func (p *Pipeline) commit(ctx context.Context, batch []domain.RawEvent) {
	for _, raw := range batch {
		if raw.Commit == nil {
			continue
		}
		if err := raw.Commit(ctx); err != nil {
			p.logger.Warn("commit offset failed", "error", err,
				"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
		}
	}
}

// backoffOrStop sleeps for the current backoff and doubles it. It returns
// false if the context ends first.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = min(*backoff*2, maxBackoff)
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
