package metrics

import (
	"time"
)

// WebMetrics provides observability for the web adapter.
//
// Implementations can collect metrics about admission, queueing, worker
// utilization and responses. This interface is optional - if not provided to
// the web adapter, a no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics := prometheus.NewWebMetrics()
//	adapter := web.New(config, metrics)
//
//	// Without metrics (no-op)
//	adapter := web.New(config, nil)
type WebMetrics interface {
	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed because the
	// shutdown timeout expired while a worker still held them.
	RecordConnectionForceClosed()

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordAdmitted counts a request inserted into the queue.
	//
	// Parameters:
	//   - policy: Admission policy name ("FIFO" or "SFF")
	RecordAdmitted(policy string)

	// RecordRejected counts a connection refused before queueing.
	//
	// Parameters:
	//   - reason: Short machine-readable cause (e.g. "peek_failed")
	RecordRejected(reason string)

	// RecordDropped counts a request discarded because the queue shut down
	// while the dispatcher was blocked inserting it.
	RecordDropped()

	// SetQueueDepth updates the number of requests waiting in the queue.
	SetQueueDepth(depth int)

	// SetQueueCapacity records the configured queue capacity.
	SetQueueCapacity(capacity int)

	// ObserveQueueWait records how long a request waited between accept and
	// the moment a worker removed it.
	ObserveQueueWait(duration time.Duration)

	// SetBusyWorkers updates the number of workers currently serving.
	SetBusyWorkers(count int32)

	// ObserveServiceTime records how long a worker spent on one request.
	ObserveServiceTime(duration time.Duration)

	// RecordResponse counts a response by status code and the body bytes sent.
	RecordResponse(status int, bytes int64)
}

// noopWebMetrics is a no-op implementation of WebMetrics with zero overhead.
type noopWebMetrics struct{}

// NewNoopWebMetrics returns a WebMetrics that discards everything.
func NewNoopWebMetrics() WebMetrics {
	return noopWebMetrics{}
}

func (noopWebMetrics) RecordConnectionAccepted()                 {}
func (noopWebMetrics) RecordConnectionClosed()                   {}
func (noopWebMetrics) RecordConnectionForceClosed()              {}
func (noopWebMetrics) SetActiveConnections(count int32)          {}
func (noopWebMetrics) RecordAdmitted(policy string)              {}
func (noopWebMetrics) RecordRejected(reason string)              {}
func (noopWebMetrics) RecordDropped()                            {}
func (noopWebMetrics) SetQueueDepth(depth int)                   {}
func (noopWebMetrics) SetQueueCapacity(capacity int)             {}
func (noopWebMetrics) ObserveQueueWait(duration time.Duration)   {}
func (noopWebMetrics) SetBusyWorkers(count int32)                {}
func (noopWebMetrics) ObserveServiceTime(duration time.Duration) {}
func (noopWebMetrics) RecordResponse(status int, bytes int64)    {}
