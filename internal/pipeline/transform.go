package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/overlay"
	"github.com/couchcryptid/solar-overlay/internal/panels"
)

// MonthlyPublisher receives monthly frames once a selection's background run
// finishes.
type MonthlyPublisher interface {
	PublishMonthly(ctx context.Context, event domain.MonthlyFramesEvent) error
}

const (
	// DefaultMaxSessions bounds the per-viewer session table. The least
	// recently used session is closed on eviction.
	DefaultMaxSessions = 1024

	monthlyPublishTimeout = 30 * time.Second
)

// OverlayTransformer implements Renderer by running each request through
// the requesting viewer's overlay session. A newer request from the same
// viewer supersedes an older one still in flight.
type OverlayTransformer struct {
	loader   *overlay.Loader
	monthly  MonthlyPublisher
	sessions *lru.Cache[string, *overlay.Session]
	logger   *slog.Logger
}

// NewTransformer creates an OverlayTransformer. Pass a nil publisher to skip
// monthly frames.
func NewTransformer(loader *overlay.Loader, monthly MonthlyPublisher, maxSessions int, logger *slog.Logger) (*OverlayTransformer, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	sessions, err := lru.NewWithEvict(maxSessions, func(_ string, s *overlay.Session) {
		s.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	return &OverlayTransformer{
		loader:   loader,
		monthly:  monthly,
		sessions: sessions,
		logger:   logger,
	}, nil
}

// Render loads the overlay for req in the viewer's session. It returns
// overlay.ErrSuperseded when a newer request from the same viewer won.
func (t *OverlayTransformer) Render(ctx context.Context, req domain.OverlayRequest) (domain.OverlayEvent, error) {
	oreq := overlay.Request{Lat: req.Lat, Lng: req.Lng}
	if t.monthly != nil {
		publishCtx := context.WithoutCancel(ctx)
		oreq.OnMonthly = func(r overlay.MonthlyReport) {
			t.publishMonthly(publishCtx, req.ViewerID, r)
		}
	}

	res, err := t.session(req.ViewerID).Select(ctx, oreq)
	if err != nil {
		return domain.OverlayEvent{}, fmt.Errorf("overlay for viewer %s: %w", req.ViewerID, err)
	}

	return domain.OverlayEvent{
		ViewerID:       req.ViewerID,
		SelectionID:    res.SelectionID,
		ImagePNG:       res.PNG,
		Bounds:         res.Bounds,
		BuildingCenter: res.BuildingCenter,
		Region:         res.Region,
		Projection:     res.Projection,
		Selection:      t.defaultSelection(res.Insights),
		GeneratedAt:    domain.Now(),
	}, nil
}

// Close closes every open session.
func (t *OverlayTransformer) Close() {
	t.sessions.Purge()
}

func (t *OverlayTransformer) session(viewer string) *overlay.Session {
	if s, ok := t.sessions.Get(viewer); ok {
		return s
	}
	s := overlay.NewSession(t.loader)
	t.sessions.Add(viewer, s)
	return s
}

// defaultSelection reports the first panel configuration, if any.
func (t *OverlayTransformer) defaultSelection(insights *domain.BuildingInsights) *domain.PanelSelection {
	if insights == nil {
		return nil
	}
	layout, err := panels.Build(insights.SolarPotential)
	if err != nil {
		return nil
	}
	sel, _ := layout.Select(0)
	return sel
}

func (t *OverlayTransformer) publishMonthly(ctx context.Context, viewer string, r overlay.MonthlyReport) {
	if r.Outcome != domain.OutcomeSucceeded {
		return
	}
	frames := make([][]byte, len(r.Frames))
	for i, f := range r.Frames {
		frames[i] = f.PNG
	}
	ctx, cancel := context.WithTimeout(ctx, monthlyPublishTimeout)
	defer cancel()

	err := t.monthly.PublishMonthly(ctx, domain.MonthlyFramesEvent{
		ViewerID:    viewer,
		SelectionID: r.SelectionID,
		Frames:      frames,
		Bounds:      r.Bounds,
		GeneratedAt: domain.Now(),
	})
	if err != nil {
		t.logger.Error("publish monthly frames failed", "viewer_id", viewer, "selection_id", r.SelectionID, "error", err)
	}
}
