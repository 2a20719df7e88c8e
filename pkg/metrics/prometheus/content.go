package prometheus

import (
	"errors"
	"time"

	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/marmos91/dittoweb/pkg/content/cache"
	"github.com/marmos91/dittoweb/pkg/content/s3"
	"github.com/marmos91/dittoweb/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeLatencyBuckets covers a local stat (well under a millisecond) up to
// a throttled S3 round trip.
var storeLatencyBuckets = []float64{0.0001, 0.001, 0.005, 0.02, 0.1, 0.5, 2}

// outcome labels a store error by what the client ends up seeing.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, content.ErrContentNotFound), errors.Is(err, content.ErrNotRegularFile):
		return "not_found"
	case errors.Is(err, content.ErrAccessDenied):
		return "denied"
	case errors.Is(err, content.ErrUnavailable):
		return "throttled"
	default:
		return "error"
	}
}

type s3Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	bytesServed prometheus.Counter
	bytesStored prometheus.Counter
}

// NewS3Metrics returns Prometheus-backed S3 store metrics, or nil when
// InitRegistry was not called so the store keeps its no-op.
func NewS3Metrics() s3.S3Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newS3Metrics(metrics.GetRegistry())
}

func newS3Metrics(reg prometheus.Registerer) *s3Metrics {
	f := promauto.With(reg)
	return &s3Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dittoweb_s3_requests_total",
			Help: "S3 API calls by operation and outcome (ok, not_found, denied, throttled, error)",
		}, []string{"operation", "outcome"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dittoweb_s3_request_duration_seconds",
			Help:    "Duration of S3 API calls in seconds",
			Buckets: storeLatencyBuckets,
		}, []string{"operation"}),
		bytesServed: f.NewCounter(prometheus.CounterOpts{
			Name: "dittoweb_s3_bytes_served_total",
			Help: "Object bytes streamed from S3 towards clients",
		}),
		bytesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "dittoweb_s3_bytes_stored_total",
			Help: "Object bytes uploaded to S3",
		}),
	}
}

func (m *s3Metrics) ObserveRequest(operation string, duration time.Duration, err error) {
	m.requests.WithLabelValues(operation, outcome(err)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *s3Metrics) RecordBytesServed(bytes int64) {
	m.bytesServed.Add(float64(bytes))
}

func (m *s3Metrics) RecordBytesStored(bytes int64) {
	m.bytesStored.Add(float64(bytes))
}

type cacheMetrics struct {
	lookups       *prometheus.CounterVec
	backend       prometheus.Histogram
	invalidations prometheus.Counter
}

// NewCacheMetrics returns Prometheus-backed stat cache metrics, or nil
// when InitRegistry was not called.
func NewCacheMetrics() cache.CacheMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newCacheMetrics(metrics.GetRegistry())
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	f := promauto.With(reg)
	return &cacheMetrics{
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dittoweb_stat_cache_lookups_total",
			Help: "Target size lookups made during admission, by result (hit or miss)",
		}, []string{"result"}),
		backend: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dittoweb_stat_cache_backend_lookup_seconds",
			Help:    "Duration of content store size lookups on a cache miss in seconds",
			Buckets: storeLatencyBuckets,
		}),
		invalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "dittoweb_stat_cache_invalidations_total",
			Help: "Cached sizes dropped after content was written or deleted",
		}),
	}
}

func (m *cacheMetrics) RecordHit() {
	m.lookups.WithLabelValues("hit").Inc()
}

func (m *cacheMetrics) RecordMiss() {
	m.lookups.WithLabelValues("miss").Inc()
}

func (m *cacheMetrics) ObserveBackendLookup(duration time.Duration) {
	m.backend.Observe(duration.Seconds())
}

func (m *cacheMetrics) RecordInvalidation() {
	m.invalidations.Inc()
}
