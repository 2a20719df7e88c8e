package prometheus

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("content a: %w", content.ErrContentNotFound), "not_found"},
		{fmt.Errorf("content dir: %w", content.ErrNotRegularFile), "not_found"},
		{fmt.Errorf("content a: %w", content.ErrAccessDenied), "denied"},
		{fmt.Errorf("content a: %w: SlowDown", content.ErrUnavailable), "throttled"},
		{errors.New("connection reset"), "error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, outcome(tt.err), "err %v", tt.err)
	}
}

func TestS3Metrics(t *testing.T) {
	m := newS3Metrics(prometheus.NewRegistry())

	m.ObserveRequest("HeadObject", 3*time.Millisecond, nil)
	m.ObserveRequest("HeadObject", time.Millisecond, fmt.Errorf("x: %w", content.ErrContentNotFound))
	m.ObserveRequest("GetObject", 10*time.Millisecond, errors.New("boom"))
	m.RecordBytesServed(100)
	m.RecordBytesServed(20)
	m.RecordBytesStored(7)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("HeadObject", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("HeadObject", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GetObject", "error")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.bytesServed))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.bytesStored))
}

func TestCacheMetrics(t *testing.T) {
	m := newCacheMetrics(prometheus.NewRegistry())

	m.RecordMiss()
	m.RecordHit()
	m.RecordHit()
	m.RecordInvalidation()
	m.ObserveBackendLookup(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invalidations))
}
