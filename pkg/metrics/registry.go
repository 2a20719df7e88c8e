// Package metrics holds the Prometheus registry shared by the web adapter
// and the content stores, and the HTTP server it is scraped from.
//
// Collection is off until InitRegistry runs. Components take their metrics
// as interfaces and fall back to no-ops, so a server started without
// metrics pays nothing for them.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the shared registry on first use and returns it.
//
// Besides the server's own metrics it carries the Go runtime collector and
// the process collector. Every queued request holds an open socket, so
// dittoweb_process_open_fds follows queue depth plus busy workers.
func InitRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry == nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: "dittoweb"}),
		)
		registry = reg
	}
	return registry
}

// GetRegistry returns the shared registry, or nil before InitRegistry.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsEnabled reports whether InitRegistry has run.
func IsEnabled() bool {
	return GetRegistry() != nil
}
