package solarapi

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/observability"
)

// CachedProvider wraps a SolarProvider with in-memory LRU caches for building
// insights and GeoTIFF bytes. Data-layer responses are not cached because
// their URLs are short-lived.
type CachedProvider struct {
	inner    domain.SolarProvider
	insights *lru.Cache[string, *domain.BuildingInsights]
	tiffs    *lru.Cache[string, []byte]
	metrics  *observability.Metrics
}

// NewCachedProvider creates a cache decorator holding up to maxEntries items
// of each kind.
func NewCachedProvider(inner domain.SolarProvider, maxEntries int, metrics *observability.Metrics) (*CachedProvider, error) {
	insights, err := lru.New[string, *domain.BuildingInsights](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create insights cache: %w", err)
	}
	tiffs, err := lru.New[string, []byte](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("create geotiff cache: %w", err)
	}
	return &CachedProvider{inner: inner, insights: insights, tiffs: tiffs, metrics: metrics}, nil
}

func (c *CachedProvider) BuildingInsights(ctx context.Context, lat, lng float64) (*domain.BuildingInsights, error) {
	// Requests are sent at five decimals, so that is the cache granularity too.
	key := fmt.Sprintf("%.5f,%.5f", lat, lng)
	if v, ok := c.insights.Get(key); ok {
		c.lookup("insights", "hit")
		return v, nil
	}
	c.lookup("insights", "miss")
	v, err := c.inner.BuildingInsights(ctx, lat, lng)
	if err != nil {
		return nil, err
	}
	// Not-found is an error and never reaches here, so a retry can succeed later.
	c.insights.Add(key, v)
	return v, nil
}

func (c *CachedProvider) DataLayers(ctx context.Context, region domain.Region) (*domain.DataLayers, error) {
	return c.inner.DataLayers(ctx, region)
}

func (c *CachedProvider) GeoTIFF(ctx context.Context, rawURL string) ([]byte, error) {
	if v, ok := c.tiffs.Get(rawURL); ok {
		c.lookup("geotiff", "hit")
		return v, nil
	}
	c.lookup("geotiff", "miss")
	v, err := c.inner.GeoTIFF(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if len(v) > 0 {
		c.tiffs.Add(rawURL, v)
	}
	return v, nil
}

func (c *CachedProvider) lookup(kind, result string) {
	if c.metrics != nil {
		c.metrics.CacheLookups.WithLabelValues(kind, result).Inc()
	}
}
