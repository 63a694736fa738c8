package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/solar-overlay/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/solar-overlay/internal/adapter/kafka"
	"github.com/couchcryptid/solar-overlay/internal/adapter/solarapi"
	"github.com/couchcryptid/solar-overlay/internal/config"
	"github.com/couchcryptid/solar-overlay/internal/observability"
	"github.com/couchcryptid/solar-overlay/internal/overlay"
	"github.com/couchcryptid/solar-overlay/internal/pipeline"
	"github.com/couchcryptid/solar-overlay/internal/raster"
)

// serving is the readiness check when no pipeline runs: the HTTP routes are
// usable as soon as the listener is up.
type serving struct{}

func (serving) CheckReadiness(context.Context) error { return nil }

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFrom(cfg), logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	client := solarapi.NewClient(solarapi.Options{
		APIKey:          cfg.SolarAPIKey,
		BaseURL:         cfg.SolarBaseURL,
		ProxyURL:        cfg.SolarProxyURL,
		RequiredQuality: cfg.SolarRequiredQuality,
		Timeout:         cfg.SolarTimeout,
		RateLimit:       cfg.SolarRateLimit,
	}, logger, metrics)
	provider, err := solarapi.NewCachedProvider(client, cfg.SolarCacheSize, metrics)
	if err != nil {
		logger.Error("failed to create provider cache", "error", err)
		os.Exit(1)
	}
	logger.Info("solar provider configured",
		"proxy_mode", cfg.ProxyMode(), "cache_size", cfg.SolarCacheSize, "rate_limit", cfg.SolarRateLimit)

	projections := raster.NewProjections()
	defer projections.Close()
	loader := overlay.NewLoader(provider, projections, logger, metrics,
		overlay.WithStateObserver(func(sel string, s overlay.State) {
			logger.Debug("overlay state", "selection_id", sel, "state", s)
		}))

	opts := []httpadapter.Option{httpadapter.WithOverlay(loader, provider)}
	// The proxy routes inject the key, so they only make sense when this
	// process holds one.
	if cfg.SolarAPIKey != "" {
		opts = append(opts, httpadapter.WithSolarProxy(client))
	}

	var (
		ready       httpadapter.ReadinessChecker = serving{}
		p           *pipeline.Pipeline
		reader      *kafkaadapter.Reader
		writer      *kafkaadapter.Writer
		transformer *pipeline.OverlayTransformer
	)
	if cfg.KafkaEnabled {
		reader = kafkaadapter.NewReader(cfg, logger)
		writer = kafkaadapter.NewWriter(cfg, logger)
		transformer, err = pipeline.NewTransformer(loader, writer, pipeline.DefaultMaxSessions, logger)
		if err != nil {
			logger.Error("failed to create transformer", "error", err)
			os.Exit(1)
		}
		p = pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)
		ready = p
		logger.Info("kafka pipeline enabled", "source_topic", cfg.KafkaSourceTopic, "sink_topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka pipeline disabled")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, logger, opts...)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start overlay pipeline.
	if p != nil {
		go func() {
			if err := p.Run(ctx); err != nil {
				logger.Error("pipeline error", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if transformer != nil {
		transformer.Close()
	}
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	logger.Info("shutdown complete")
}
