// Package cache implements a size cache in front of a content store.
//
// This file contains metrics-related types and implementations for observability
// of cache lookups.
package cache

import (
	"time"
)

// CacheMetrics provides observability for stat cache operations.
//
// Implementations can use this interface to collect metrics about cache hit
// rate and backend latency. This is optional - if not provided, metrics
// collection is skipped.
//
// Example implementations:
//   - Prometheus metrics
//   - In-memory counters for testing
type CacheMetrics interface {
	// RecordHit records a size lookup answered from the cache
	RecordHit()

	// RecordMiss records a size lookup that went to the backing store
	RecordMiss()

	// ObserveBackendLookup records the latency of a backing store lookup
	ObserveBackendLookup(duration time.Duration)

	// RecordInvalidation records an entry dropped because content changed
	RecordInvalidation()
}

// noopCacheMetrics is a default no-op metrics implementation
type noopCacheMetrics struct{}

func (noopCacheMetrics) RecordHit()                                  {}
func (noopCacheMetrics) RecordMiss()                                 {}
func (noopCacheMetrics) ObserveBackendLookup(duration time.Duration) {}
func (noopCacheMetrics) RecordInvalidation()                         {}
