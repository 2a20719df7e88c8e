// Package adapter defines what server.Server needs from a listener that
// serves the document root.
package adapter

import (
	"context"

	"github.com/marmos91/dittoweb/pkg/content"
)

// Adapter is one listening endpoint backed by the shared content store.
//
// The server calls SetContentStore once, then Serve on its own goroutine.
// Stop may run concurrently with Serve, more than once.
type Adapter interface {
	// Serve accepts and answers connections until ctx is cancelled or a
	// fatal error occurs. On cancellation it stops accepting, lets admitted
	// requests finish within its shutdown timeout and returns nil. Any
	// return before cancellation is treated as fatal and stops the server.
	Serve(ctx context.Context) error

	// SetContentStore injects the document root before Serve.
	SetContentStore(store content.ContentStore)

	// Stop starts shutdown and waits for Serve to return or ctx to expire.
	// It is idempotent and returns ctx.Err() when ctx ends first.
	Stop(ctx context.Context) error

	// Protocol names the adapter in logs and health reports, e.g. "WEB".
	Protocol() string

	// Port is the bound port once Serve is listening, the configured port
	// before that.
	Port() int
}

// HealthReporter is implemented by adapters that can tell whether they are
// taking requests. The metrics server reports it on /healthz.
type HealthReporter interface {
	// Health returns a short occupancy summary, or an error when the
	// adapter is not serving or is draining for shutdown.
	Health() (string, error)
}
