package raster

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjections_UTMToWGS84(t *testing.T) {
	p := NewProjections()
	defer p.Close()
	tr, err := p.ToWGS84(32610)
	require.NoError(t, err)

	lng, lat, err := tr(500000, 4140000)
	require.NoError(t, err)
	assert.InDelta(t, -123.0, lng, 1e-6)
	assert.Greater(t, lat, 37.3)
	assert.Less(t, lat, 37.5)
}

func TestProjections_SouthernUTM(t *testing.T) {
	p := NewProjections()
	defer p.Close()
	tr, err := p.ToWGS84(32756)
	require.NoError(t, err)

	lng, lat, err := tr(500000, 6250000)
	require.NoError(t, err)
	assert.InDelta(t, 153.0, lng, 1e-6)
	assert.Less(t, lat, -33.0)
}

func TestProjections_WebMercator(t *testing.T) {
	p := NewProjections()
	defer p.Close()
	tr, err := p.ToWGS84(EPSGWebMercator)
	require.NoError(t, err)

	lng, lat, err := tr(0, 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, lng, 1e-9)
	assert.InDelta(t, 0.0, lat, 1e-9)
}

func TestProjections_UnknownCode(t *testing.T) {
	p := NewProjections()
	defer p.Close()
	_, err := p.ToWGS84(999999)
	assert.ErrorIs(t, err, ErrUnsupportedCRS)
	assert.Zero(t, p.Len(), "failed lookups are not cached")
}

func TestProjections_LoadsOncePerCode(t *testing.T) {
	p := NewProjections()
	defer p.Close()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Warm(context.Background(), 32633))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, p.Len())

	_, err := p.ToWGS84(999999)
	assert.ErrorIs(t, err, ErrUnsupportedCRS)
	assert.Equal(t, 1, p.Len())
}

func TestProjections_ConcurrentTransforms(t *testing.T) {
	p := NewProjections()
	defer p.Close()
	tr, err := p.ToWGS84(32631)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lng, _, err := tr(500000, float64(i*1000))
			assert.NoError(t, err)
			assert.InDelta(t, 3.0, lng, 1e-6)
		}()
	}
	wg.Wait()
}

func TestProjections_Close(t *testing.T) {
	p := NewProjections()
	tr, err := p.ToWGS84(32631)
	require.NoError(t, err)
	p.Close()

	assert.Zero(t, p.Len())
	_, _, err = tr(500000, 0)
	assert.Error(t, err, "transforms handed out before Close stop working")

	_, err = p.ToWGS84(32631)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Len())
	p.Close()
}

func TestProjections_WarmCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewProjections().Warm(ctx, 32610), context.Canceled)
}
