package overlay

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrSuperseded is returned for a run whose selection was replaced before it finished.
	ErrSuperseded = errors.New("selection superseded")
	// ErrSessionClosed is returned by Select after Close.
	ErrSessionClosed = errors.New("session closed")
)

// Session holds the current selection for one viewer. Each Select cancels the
// previous in-flight run; results and monthly callbacks belonging to a
// selection that is no longer current are discarded.
type Session struct {
	loader *Loader

	mu      sync.Mutex
	current string
	cancel  context.CancelFunc
	closed  bool
}

// NewSession creates a session backed by loader.
func NewSession(loader *Loader) *Session {
	return &Session{loader: loader}
}

// Select starts a run for req under a fresh selection ID and waits for it.
// It returns ErrSuperseded if another Select or Close happened meanwhile.
// The run's context is released before Select returns, unless monthly frames
// are still rendering: then it lives until the OnMonthly report, the next
// Select, or Close.
func (s *Session) Select(ctx context.Context, req Request) (*Result, error) {
	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return nil, ErrSessionClosed
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.current, s.cancel = id, cancel
	s.mu.Unlock()

	req.SelectionID = id
	if cb := req.OnMonthly; cb != nil {
		req.OnMonthly = func(r MonthlyReport) {
			if s.isCurrent(r.SelectionID) {
				cb(r)
			}
			cancel()
		}
	}

	res, err := s.loader.Load(runCtx, req)
	if !s.isCurrent(id) {
		s.loader.metrics.OverlayLoads.WithLabelValues("superseded").Inc()
		return nil, ErrSuperseded
	}
	if err != nil || res.Monthly == nil {
		cancel()
	}
	return res, err
}

// Current returns the active selection ID, or "" when none.
func (s *Session) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Close cancels any in-flight run and discards the current selection.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.current, s.cancel, s.closed = "", nil, true
}

func (s *Session) isCurrent(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == id
}
