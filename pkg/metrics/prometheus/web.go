package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittoweb/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// webMetrics is the Prometheus implementation of metrics.WebMetrics.
type webMetrics struct {
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	activeConnections      prometheus.Gauge
	admitted               *prometheus.CounterVec
	rejected               *prometheus.CounterVec
	dropped                prometheus.Counter
	queueDepth             prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueWait              prometheus.Histogram
	busyWorkers            prometheus.Gauge
	serviceTime            prometheus.Histogram
	responses              *prometheus.CounterVec
	bytesSent              prometheus.Counter
}

// NewWebMetrics creates a new Prometheus-backed WebMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewWebMetrics() metrics.WebMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopWebMetrics()
	}

	reg := metrics.GetRegistry()

	return &webMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoweb_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoweb_connections_closed_total",
				Help: "Total number of connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoweb_connections_force_closed_total",
				Help: "Total number of connections force-closed during shutdown timeout",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoweb_active_connections",
				Help: "Current number of open connections (queued or being served)",
			},
		),
		admitted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoweb_requests_admitted_total",
				Help: "Total number of requests inserted into the queue by admission policy",
			},
			[]string{"policy"},
		),
		rejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoweb_requests_rejected_total",
				Help: "Total number of connections rejected before queueing",
			},
			[]string{"reason"},
		),
		dropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoweb_requests_dropped_total",
				Help: "Total number of requests dropped because the queue shut down",
			},
		),
		queueDepth: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoweb_queue_depth",
				Help: "Current number of requests waiting in the queue",
			},
		),
		queueCapacity: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoweb_queue_capacity",
				Help: "Configured queue capacity",
			},
		),
		queueWait: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittoweb_queue_wait_milliseconds",
				Help: "Time between accept and removal by a worker in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
		),
		busyWorkers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoweb_busy_workers",
				Help: "Current number of workers serving a request",
			},
		),
		serviceTime: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittoweb_service_duration_milliseconds",
				Help: "Time a worker spent serving one request in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
		),
		responses: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoweb_responses_total",
				Help: "Total number of responses by status code",
			},
			[]string{"status"},
		),
		bytesSent: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dittoweb_bytes_sent_total",
				Help: "Total response body bytes sent",
			},
		),
	}
}

func (m *webMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *webMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *webMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *webMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *webMetrics) RecordAdmitted(policy string) {
	m.admitted.WithLabelValues(policy).Inc()
}

func (m *webMetrics) RecordRejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *webMetrics) RecordDropped() {
	m.dropped.Inc()
}

func (m *webMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *webMetrics) SetQueueCapacity(capacity int) {
	m.queueCapacity.Set(float64(capacity))
}

func (m *webMetrics) ObserveQueueWait(duration time.Duration) {
	m.queueWait.Observe(duration.Seconds() * 1000) // Convert to milliseconds
}

func (m *webMetrics) SetBusyWorkers(count int32) {
	m.busyWorkers.Set(float64(count))
}

func (m *webMetrics) ObserveServiceTime(duration time.Duration) {
	m.serviceTime.Observe(duration.Seconds() * 1000)
}

func (m *webMetrics) RecordResponse(status int, bytes int64) {
	m.responses.WithLabelValues(strconv.Itoa(status)).Inc()
	if bytes > 0 {
		m.bytesSent.Add(float64(bytes))
	}
}
