package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Solar API configuration. Either SolarAPIKey or SolarProxyURL must be set.
	SolarAPIKey          string
	SolarBaseURL         string
	SolarProxyURL        string
	SolarTimeout         time.Duration
	SolarRequiredQuality string
	SolarRateLimit       float64
	SolarCacheSize       int

	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaSourceTopic  string
	KafkaSinkTopic    string
	KafkaMonthlyTopic string
	KafkaGroupID      string

	BatchSize          int
	BatchFlushInterval time.Duration

	TracingEnabled     bool
	TracingExporter    string
	TracingEndpoint    string
	TracingSampleRatio float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parsePositiveDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	solarTimeout, err := parsePositiveDuration("SOLAR_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	flushInterval, err := parsePositiveDuration("BATCH_FLUSH_INTERVAL", "500ms")
	if err != nil {
		return nil, err
	}
	batchSize, err := parseBatchSize()
	if err != nil {
		return nil, err
	}
	rateLimit, err := parseRateLimit()
	if err != nil {
		return nil, err
	}
	sampleRatio, err := parseSampleRatio()
	if err != nil {
		return nil, err
	}

	apiKey := os.Getenv("SOLAR_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_MAPS_API_KEY")
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		SolarAPIKey:          apiKey,
		SolarBaseURL:         strings.TrimRight(envOrDefault("SOLAR_BASE_URL", "https://solar.googleapis.com/v1"), "/"),
		SolarProxyURL:        strings.TrimRight(os.Getenv("SOLAR_PROXY_URL"), "/"),
		SolarTimeout:         solarTimeout,
		SolarRequiredQuality: envOrDefault("SOLAR_REQUIRED_QUALITY", "BASE"),
		SolarRateLimit:       rateLimit,
		SolarCacheSize:       parseCacheSize(),

		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:  envOrDefault("KAFKA_SOURCE_TOPIC", "solar-overlay-requests"),
		KafkaSinkTopic:    envOrDefault("KAFKA_SINK_TOPIC", "solar-overlays"),
		KafkaMonthlyTopic: envOrDefault("KAFKA_MONTHLY_TOPIC", "solar-monthly-frames"),
		KafkaGroupID:      envOrDefault("KAFKA_GROUP_ID", "solar-overlay"),

		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		TracingEnabled:     os.Getenv("TRACING_ENABLED") == "true",
		TracingExporter:    envOrDefault("TRACING_EXPORTER", "stdout"),
		TracingEndpoint:    os.Getenv("TRACING_ENDPOINT"),
		TracingSampleRatio: sampleRatio,
	}

	if cfg.SolarAPIKey == "" && cfg.SolarProxyURL == "" {
		return nil, errors.New("SOLAR_API_KEY or SOLAR_PROXY_URL is required")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSourceTopic == "" {
			return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required")
		}
	}

	return cfg, nil
}

// ProxyMode reports whether Solar API calls go through the application backend.
func (c *Config) ProxyMode() bool {
	return c.SolarProxyURL != ""
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(s string) []string {
	var brokers []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBatchSize() (int, error) {
	n, err := strconv.Atoi(envOrDefault("BATCH_SIZE", "10"))
	if err != nil || n < 1 || n > 1000 {
		return 0, errors.New("invalid BATCH_SIZE")
	}
	return n, nil
}

func parseRateLimit() (float64, error) {
	r, err := strconv.ParseFloat(envOrDefault("SOLAR_RATE_LIMIT", "10"), 64)
	if err != nil || r <= 0 {
		return 0, errors.New("invalid SOLAR_RATE_LIMIT")
	}
	return r, nil
}

func parseSampleRatio() (float64, error) {
	r, err := strconv.ParseFloat(envOrDefault("TRACING_SAMPLE_RATIO", "1"), 64)
	if err != nil || r < 0 || r > 1 {
		return 0, errors.New("invalid TRACING_SAMPLE_RATIO")
	}
	return r, nil
}

func parseCacheSize() int {
	if s := os.Getenv("SOLAR_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 64
}
