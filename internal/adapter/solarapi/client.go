// Package solarapi talks to the Google Solar API, either directly with an API
// key or through an application backend that injects the key server-side.
package solarapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/solar-overlay/internal/domain"
	"github.com/couchcryptid/solar-overlay/internal/observability"
)

// Endpoint names, used for proxy routes and metric labels.
const (
	EndpointBuildingInsights = "building-insights"
	EndpointDataLayers       = "data-layers"
	EndpointGeoTIFF          = "geotiff"
)

const defaultBaseURL = "https://solar.googleapis.com/v1"

// ErrForeignURL is returned for GeoTIFF URLs that do not point at the
// provider. The API key is never attached to them.
var ErrForeignURL = errors.New("geotiff url is not a provider url")

// Options configures a Client. Either APIKey or ProxyURL must be set; when
// ProxyURL is set every call goes through its /api/solar/* routes.
type Options struct {
	APIKey          string
	BaseURL         string
	ProxyURL        string
	RequiredQuality string
	Timeout         time.Duration
	// RateLimit is the maximum requests per second. Zero disables limiting.
	RateLimit float64
}

// Client implements domain.SolarProvider over HTTP.
type Client struct {
	apiKey          string
	baseURL         string
	base            *url.URL
	proxyURL        string
	requiredQuality string
	httpClient      *http.Client
	limiter         *rate.Limiter
	tracer          trace.Tracer
	logger          *slog.Logger
	metrics         *observability.Metrics
}

// NewClient creates a Solar API client.
func NewClient(opts Options, logger *slog.Logger, metrics *observability.Metrics) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	quality := opts.RequiredQuality
	if quality == "" {
		quality = "BASE"
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), max(1, int(opts.RateLimit)))
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		base, _ = url.Parse(defaultBaseURL)
	}
	return &Client{
		apiKey:          opts.APIKey,
		baseURL:         baseURL,
		base:            base,
		proxyURL:        strings.TrimRight(opts.ProxyURL, "/"),
		requiredQuality: quality,
		httpClient:      &http.Client{Timeout: opts.Timeout},
		limiter:         limiter,
		tracer:          otel.Tracer(observability.TracerName),
		logger:          logger,
		metrics:         metrics,
	}
}

// BuildingInsights looks up the building closest to a point. A provider 404
// becomes domain.ErrBuildingNotFound.
func (c *Client) BuildingInsights(ctx context.Context, lat, lng float64) (*domain.BuildingInsights, error) {
	params := c.locationParams(lat, lng)
	body, err := c.getJSON(ctx, EndpointBuildingInsights, c.endpointURL(EndpointBuildingInsights, "buildingInsights:findClosest", params))
	if err != nil {
		return nil, err
	}
	var w wireInsights
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode building insights: %w", err)
	}
	return w.toDomain(), nil
}

// DataLayers fetches the raster URLs for a region.
func (c *Client) DataLayers(ctx context.Context, region domain.Region) (*domain.DataLayers, error) {
	params := c.locationParams(region.Center.Lat, region.Center.Lng)
	params.Set("radius_meters", strconv.Itoa(region.RadiusMeters))
	body, err := c.getJSON(ctx, EndpointDataLayers, c.endpointURL(EndpointDataLayers, "dataLayers:get", params))
	if err != nil {
		return nil, err
	}
	var w wireDataLayers
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode data layers: %w", err)
	}
	return w.toDomain(), nil
}

// GeoTIFF downloads raster bytes. In direct mode the API key is appended to
// the URL, which must point at the provider; in proxy mode the URL is passed
// through the backend.
func (c *Client) GeoTIFF(ctx context.Context, rawURL string) ([]byte, error) {
	var fetchURL string
	if c.proxyURL != "" {
		fetchURL = c.proxyURL + "/api/solar/geotiff?" + url.Values{"url": {rawURL}}.Encode()
	} else {
		if err := c.CheckGeoTIFFURL(rawURL); err != nil {
			return nil, err
		}
		fetchURL = WithKey(rawURL, c.apiKey)
	}

	resp, err := c.do(ctx, EndpointGeoTIFF, fetchURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.observe(EndpointGeoTIFF, "error")
		return nil, fmt.Errorf("geotiff fetch failed: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(EndpointGeoTIFF, "error")
		return nil, fmt.Errorf("read geotiff: %w", err)
	}
	c.observe(EndpointGeoTIFF, "success")
	return data, nil
}

// Passthrough is a raw upstream response relayed by the proxy routes.
type Passthrough struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Forward relays a query to the Solar API with the API key injected, returning
// the upstream status and body unchanged. It is used by the HTTP proxy routes
// and requires direct mode.
func (c *Client) Forward(ctx context.Context, endpoint string, query url.Values) (*Passthrough, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("forward %s: no API key configured", endpoint)
	}
	var target string
	switch endpoint {
	case EndpointBuildingInsights:
		target = c.baseURL + "/buildingInsights:findClosest"
	case EndpointDataLayers:
		target = c.baseURL + "/dataLayers:get"
	case EndpointGeoTIFF:
		raw := query.Get("url")
		if err := c.CheckGeoTIFFURL(raw); err != nil {
			return nil, err
		}
		target = WithKey(raw, c.apiKey)
	default:
		return nil, fmt.Errorf("forward: unknown endpoint %q", endpoint)
	}
	if endpoint != EndpointGeoTIFF {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		q.Set("key", c.apiKey)
		target += "?" + q.Encode()
	}

	resp, err := c.do(ctx, endpoint, target)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "error")
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	c.observe(endpoint, outcomeForStatus(resp.StatusCode))
	return &Passthrough{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// CheckGeoTIFFURL accepts https URLs on the Solar API host, or URLs on the
// configured base URL's scheme and host.
func (c *Client) CheckGeoTIFFURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || u.User != nil {
		return fmt.Errorf("%w: %q", ErrForeignURL, rawURL)
	}
	def, _ := url.Parse(defaultBaseURL)
	switch {
	case u.Scheme == "https" && strings.EqualFold(u.Host, def.Host):
		return nil
	case u.Scheme == c.base.Scheme && strings.EqualFold(u.Host, c.base.Host):
		return nil
	}
	return fmt.Errorf("%w: %s://%s", ErrForeignURL, u.Scheme, u.Host)
}

// WithKey appends the API key query parameter to a provider URL.
func WithKey(rawURL, key string) string {
	if strings.Contains(rawURL, "?") {
		return rawURL + "&key=" + url.QueryEscape(key)
	}
	return rawURL + "?key=" + url.QueryEscape(key)
}

func (c *Client) locationParams(lat, lng float64) url.Values {
	params := url.Values{
		"location.latitude":  {strconv.FormatFloat(lat, 'f', 5, 64)},
		"location.longitude": {strconv.FormatFloat(lng, 'f', 5, 64)},
		"required_quality":   {c.requiredQuality},
	}
	return params
}

func (c *Client) endpointURL(endpoint, method string, params url.Values) string {
	if c.proxyURL != "" {
		return c.proxyURL + "/api/solar/" + endpoint + "?" + params.Encode()
	}
	params.Set("key", c.apiKey)
	return c.baseURL + "/" + method + "?" + params.Encode()
}

func (c *Client) getJSON(ctx context.Context, endpoint, fullURL string) ([]byte, error) {
	resp, err := c.do(ctx, endpoint, fullURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(endpoint, "error")
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode == http.StatusOK {
		c.observe(endpoint, "success")
		return body, nil
	}

	var werr wireError
	_ = json.Unmarshal(body, &werr)
	if resp.StatusCode == http.StatusNotFound ||
		(werr.Error != nil && (werr.Error.Code == http.StatusNotFound || werr.Error.Status == "NOT_FOUND")) {
		c.observe(endpoint, "not_found")
		if endpoint == EndpointBuildingInsights {
			return nil, domain.ErrBuildingNotFound
		}
	} else {
		c.observe(endpoint, "error")
	}

	msg := werr.Message
	if werr.Error != nil && werr.Error.Message != "" {
		msg = werr.Error.Message
	}
	if msg == "" {
		msg = string(bytes.TrimSpace(body))
	}
	return nil, fmt.Errorf("solar API error: %s: status %d: %s", endpoint, resp.StatusCode, msg)
}

// do issues a rate-limited GET. The caller must close the response body.
func (c *Client) do(ctx context.Context, endpoint, fullURL string) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "solarapi."+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Bool("solar.proxy", c.proxyURL != "")),
	)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s rate limit: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.UpstreamDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		c.observe(endpoint, "error")
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("solar API request failed", "endpoint", endpoint, "error", err)
		return nil, fmt.Errorf("%s request: %w", endpoint, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return resp, nil
}

func (c *Client) observe(endpoint, outcome string) {
	c.metrics.UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
}

func outcomeForStatus(status int) string {
	switch {
	case status == http.StatusOK:
		return "success"
	case status == http.StatusNotFound:
		return "not_found"
	default:
		return "error"
	}
}
