package s3

import (
	"io"
	"time"
)

// S3Metrics instruments the S3 content store.
//
// Errors handed to ObserveRequest are already translated to the content
// errors where S3 reported a known condition, so an implementation can
// tell a missing object (a 404 for the client) from a failing bucket.
type S3Metrics interface {
	// ObserveRequest records one S3 API call and its translated error.
	ObserveRequest(operation string, duration time.Duration, err error)

	// RecordBytesServed records object bytes streamed towards a client.
	RecordBytesServed(bytes int64)

	// RecordBytesStored records object bytes uploaded by WriteContent.
	RecordBytesStored(bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveRequest(string, time.Duration, error) {}
func (noopMetrics) RecordBytesServed(int64)                     {}
func (noopMetrics) RecordBytesStored(int64)                     {}

// countedBody reports how much of an object was streamed when the worker
// closes it. A client that hangs up mid-response is counted for what it
// actually received.
type countedBody struct {
	io.ReadCloser
	metrics S3Metrics
	n       int64
	closed  bool
}

func (b *countedBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *countedBody) Close() error {
	err := b.ReadCloser.Close()
	if !b.closed {
		b.closed = true
		if b.n > 0 {
			b.metrics.RecordBytesServed(b.n)
		}
	}
	return err
}
