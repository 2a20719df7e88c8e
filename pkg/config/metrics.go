package config

import (
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/content/cache"
	"github.com/marmos91/dittoweb/pkg/content/s3"
	"github.com/marmos91/dittoweb/pkg/metrics"
	promMetrics "github.com/marmos91/dittoweb/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// WebMetrics is the metrics collector for the web adapter (never nil, uses noop if disabled)
	WebMetrics metrics.WebMetrics

	// S3Metrics instruments the S3 content store (nil if disabled)
	S3Metrics s3.S3Metrics

	// CacheMetrics instruments the size cache (nil if disabled)
	CacheMetrics cache.CacheMetrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server
//   - Creates Prometheus-backed metrics instances for all components
//
// If metrics are disabled:
//   - Returns nil server
//   - Returns no-op metrics implementations (zero overhead)
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Server.Metrics.Enabled {
		return &MetricsResult{
			WebMetrics: metrics.NewNoopWebMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Server.Metrics.Port,
	})

	return &MetricsResult{
		Server:       server,
		WebMetrics:   promMetrics.NewWebMetrics(),
		S3Metrics:    promMetrics.NewS3Metrics(),
		CacheMetrics: promMetrics.NewCacheMetrics(),
	}
}

// RegisterHealthChecks reports every adapter implementing
// adapter.HealthReporter on the metrics server's /healthz and returns how
// many were registered. Nothing is registered when metrics are disabled.
func (r *MetricsResult) RegisterHealthChecks(adapters []adapter.Adapter) int {
	if r.Server == nil {
		return 0
	}

	n := 0
	for _, a := range adapters {
		if hr, ok := a.(adapter.HealthReporter); ok {
			r.Server.AddHealthCheck(a.Protocol(), hr.Health)
			n++
		}
	}
	return n
}
