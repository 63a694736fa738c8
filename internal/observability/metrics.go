package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "solar_overlay"

// Metrics holds the Prometheus counters, histograms, and gauges for the overlay service.
type Metrics struct {
	// Overlay pipeline metrics.
	OverlayLoads       *prometheus.CounterVec   // labels: outcome={success,error,superseded}
	StageDuration      *prometheus.HistogramVec // labels: stage
	RegionSource       *prometheus.CounterVec   // labels: source={building,fallback}
	ProjectionOutcomes *prometheus.CounterVec   // labels: outcome={succeeded,degraded}
	MonthlyFrames      *prometheus.CounterVec   // labels: outcome={ready,failed,skipped}

	// Solar API metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,not_found,error}
	UpstreamDuration *prometheus.HistogramVec // labels: endpoint
	CacheLookups     *prometheus.CounterVec   // labels: kind={insights,geotiff}, result={hit,miss}

	// Kafka pipeline metrics.
	MessagesConsumed        prometheus.Counter
	MessagesProduced        prometheus.Counter
	RequestsSkipped         *prometheus.CounterVec // labels: reason={invalid,superseded,failed}
	PipelineRunning         prometheus.Gauge
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid "already
// registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		OverlayLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overlay_loads_total",
			Help:      "Overlay loads by outcome.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each overlay pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		RegionSource: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "region_source_total",
			Help:      "Data-layer regions by how they were derived.",
		}, []string{"source"}),
		ProjectionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projection_outcomes_total",
			Help:      "Raster bounding-box reprojections by outcome.",
		}, []string{"outcome"}),
		MonthlyFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monthly_frames_total",
			Help:      "Background monthly-frame runs by outcome.",
		}, []string{"outcome"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Solar API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_duration_seconds",
			Help:      "Solar API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Solar API cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total overlay requests read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total overlay events written to the sink topics.",
		}),
		RequestsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_skipped_total",
			Help:      "Overlay requests committed without producing an overlay, by reason.",
		}, []string{"reason"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the Kafka pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of overlay requests per batch extracted from Kafka.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-transform-load cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OverlayLoads,
		m.StageDuration,
		m.RegionSource,
		m.ProjectionOutcomes,
		m.MonthlyFrames,
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.CacheLookups,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.RequestsSkipped,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
	}
}
