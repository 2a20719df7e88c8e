package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/content"
)

// DefaultStopTimeout bounds the Stop() calls issued during shutdown.
const DefaultStopTimeout = 30 * time.Second

// ErrAlreadyServed is returned when Serve is called a second time.
var ErrAlreadyServed = errors.New("serve has already been called on this server instance")

// Server manages the lifecycle of protocol adapters that serve from a
// shared content store.
//
// Lifecycle:
//  1. Creation: New() with the content store
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation or an adapter failure stops all adapters
//
// Thread safety:
// Server is safe for concurrent use. Serve() should only be called once.
//
// Example usage:
//
//	srv := server.New(store, 30*time.Second)
//	if err := srv.AddAdapter(web.New(webConfig, webMetrics)); err != nil {
//	    log.Fatal(err)
//	}
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type Server struct {
	// content is the shared document root for all adapters
	content content.ContentStore

	// stopTimeout bounds the Stop() calls issued during shutdown
	stopTimeout time.Duration

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects the adapters slice
	mu sync.RWMutex

	// served is set by the first Serve() call
	served atomic.Bool
}

// New creates a server sharing store across its adapters. A zero
// stopTimeout uses DefaultStopTimeout.
//
// Panics if store is nil (indicates programmer error).
func New(store content.ContentStore, stopTimeout time.Duration) *Server {
	if store == nil {
		panic("content store cannot be nil")
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	return &Server{
		content:     store,
		stopTimeout: stopTimeout,
		adapters:    make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a protocol adapter and injects the shared content
// store into it.
//
// Each adapter must implement a different protocol and listen on a
// different port. Port 0 (ephemeral) never conflicts.
//
// Panics if a is nil or Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}
	if s.served.Load() {
		panic("cannot add adapter after Serve() has been called")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if port != 0 && existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter", port, existing.Protocol())
		}
	}

	a.SetContentStore(s.content)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)
	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// On either event every adapter receives Stop() in reverse registration
// order, and Serve waits for all adapter goroutines to return.
//
// Returns:
//   - ctx.Err() if shutdown was triggered by the context
//   - the first adapter error, wrapped with its protocol, otherwise
//   - ErrAlreadyServed on a second call
func (s *Server) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		return ErrAlreadyServed
	}

	s.mu.RLock()
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.RUnlock()

	if len(adapters) == 0 {
		return errors.New("no adapters registered; call AddAdapter() before Serve()")
	}

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// Buffered so failing adapters never block
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup
	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			err := a.Serve(ctx)
			switch {
			case err == nil:
				logger.Info("%s adapter stopped", protocol)
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
				logger.Debug("%s adapter stopped during shutdown: %v", protocol, err)
			default:
				logger.Error("%s adapter failed: %v", protocol, err)
				errChan <- adapterError{protocol: protocol, err: err}
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	s.stopAllAdapters(adapters)

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped")
	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters calls Stop() on every adapter in reverse registration
// order, all bounded by one stopTimeout context. Errors are logged and do
// not prevent the remaining adapters from being stopped.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), s.stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stopped", protocol)
		}
	}
}

// Adapters returns a snapshot of the registered adapters.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
