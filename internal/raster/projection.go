package raster

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
	"golang.org/x/sync/singleflight"
)

// Well-known EPSG codes.
const (
	EPSGWGS84       = 4326
	EPSGWebMercator = 3857
)

var (
	// ErrUnknownCRS is returned when a projected raster declares no EPSG code.
	ErrUnknownCRS = errors.New("unknown coordinate reference system")
	// ErrUnsupportedCRS is returned for EPSG codes GDAL cannot build a
	// spatial reference or transform for.
	ErrUnsupportedCRS = errors.New("unsupported coordinate reference system")
	// ErrNotGeographic is returned when reprojected corners fall outside
	// longitude/latitude range.
	ErrNotGeographic = errors.New("reprojected bounds are not geographic")
)

// Transformer converts one point to longitude/latitude degrees.
type Transformer func(x, y float64) (lng, lat float64, err error)

// Projections is a process-wide registry of transforms to WGS-84. Each EPSG
// code is resolved at most once; concurrent first requests for the same code
// share one lookup.
type Projections struct {
	group singleflight.Group

	mu         sync.RWMutex
	transforms map[int]*wgs84Transform
}

// NewProjections creates an empty registry.
func NewProjections() *Projections {
	return &Projections{transforms: make(map[int]*wgs84Transform)}
}

// ToWGS84 returns a transform from epsg coordinates to longitude/latitude degrees.
func (p *Projections) ToWGS84(epsg int) (Transformer, error) {
	if t, ok := p.cached(epsg); ok {
		return t.apply, nil
	}
	v, err, _ := p.group.Do(strconv.Itoa(epsg), func() (any, error) {
		if t, ok := p.cached(epsg); ok {
			return t, nil
		}
		t, err := newTransform(epsg)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.transforms[epsg] = t
		p.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*wgs84Transform).apply, nil
}

// Warm prepares the transform for epsg ahead of the first decode that needs it.
func (p *Projections) Warm(ctx context.Context, epsg int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.ToWGS84(epsg)
	return err
}

// Len returns the number of transforms loaded so far.
func (p *Projections) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.transforms)
}

// Close releases the GDAL transforms. The registry is empty afterwards.
func (p *Projections) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for epsg, t := range p.transforms {
		t.close()
		delete(p.transforms, epsg)
	}
}

func (p *Projections) cached(epsg int) (*wgs84Transform, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.transforms[epsg]
	return t, ok
}

// wgs84Transform serializes access to an OGR transform, which is not safe
// for concurrent use.
type wgs84Transform struct {
	epsg int

	mu sync.Mutex
	t  *godal.Transform
}

func newTransform(epsg int) (*wgs84Transform, error) {
	if err := initGDAL(); err != nil {
		return nil, err
	}
	src, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return nil, fmt.Errorf("%w: EPSG:%d: %v", ErrUnsupportedCRS, epsg, err)
	}
	defer src.Close()

	dst, err := godal.NewSpatialRefFromEPSG(EPSGWGS84)
	if err != nil {
		return nil, fmt.Errorf("spatial reference EPSG:%d: %w", EPSGWGS84, err)
	}
	defer dst.Close()

	t, err := godal.NewTransform(src, dst)
	if err != nil {
		return nil, fmt.Errorf("%w: EPSG:%d to WGS84: %v", ErrUnsupportedCRS, epsg, err)
	}
	return &wgs84Transform{epsg: epsg, t: t}, nil
}

func (w *wgs84Transform) apply(x, y float64) (float64, float64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.t == nil {
		return 0, 0, fmt.Errorf("EPSG:%d transform closed", w.epsg)
	}
	xs, ys := []float64{x}, []float64{y}
	ok := []bool{false}
	if err := w.t.TransformEx(xs, ys, nil, ok); err != nil {
		return 0, 0, fmt.Errorf("EPSG:%d point (%g, %g): %w", w.epsg, x, y, err)
	}
	if !ok[0] {
		return 0, 0, fmt.Errorf("EPSG:%d point (%g, %g) could not be transformed", w.epsg, x, y)
	}
	return xs[0], ys[0], nil
}

func (w *wgs84Transform) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.t != nil {
		w.t.Close()
		w.t = nil
	}
}
