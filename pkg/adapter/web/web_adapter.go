package web

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
	webproto "github.com/marmos91/dittoweb/internal/protocol/web"
	"github.com/marmos91/dittoweb/internal/ratelimiter"
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/admission"
	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/marmos91/dittoweb/pkg/metrics"
	"github.com/marmos91/dittoweb/pkg/queue"
	"github.com/marmos91/dittoweb/pkg/transport"
	"github.com/marmos91/dittoweb/pkg/worker"
)

var (
	_ adapter.Adapter        = (*WebAdapter)(nil)
	_ adapter.HealthReporter = (*WebAdapter)(nil)
)

// WebAdapter implements the adapter.Adapter interface for the HTTP/1.0
// static file server.
//
// Architecture:
// A single dispatcher goroutine (the Serve loop) accepts connections, runs
// them through the admission policy and inserts them into a bounded queue.
// A fixed pool of workers removes requests from the queue and serves them
// with the static handler. When the queue is full the dispatcher blocks,
// so further clients wait in the kernel's listen backlog.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Queue shut down (blocked inserts fail, workers drain what is queued)
//  4. Wait for workers to finish (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown mechanism uses
// sync.Once so Stop() may be called any number of times.
type WebAdapter struct {
	// config holds the server configuration (port, pool, queue, timeouts)
	config WebConfig

	// schedule is the parsed admission schedule
	schedule admission.Schedule

	// mu guards listener, queue, pool and handler, which Serve assigns
	// while Stop may already be running
	mu sync.Mutex

	// listener accepts client connections
	// Closed during shutdown to stop accepting new connections
	listener *transport.Listener

	// boundPort is the port actually bound, published after startup
	boundPort atomic.Int32

	// store is the document root
	store content.ContentStore

	// metrics provides optional Prometheus metrics collection
	metrics metrics.WebMetrics

	// limiter throttles Accept; nil when AcceptRate is 0
	limiter *ratelimiter.RateLimiter

	// queue holds admitted requests until a worker takes them
	queue *queue.Queue

	// pool serves queued requests
	pool *worker.Pool

	// handler serves requests on the workers and answers rejected peeks
	handler *webproto.StaticHandler

	// activeConns tracks every connection from accept until it is closed
	activeConns sync.WaitGroup

	// connCount tracks the current number of open connections
	// Used for metrics and shutdown logging
	connCount atomic.Int32

	// activeConnections maps remote address to *transport.Conn for forced closure
	activeConnections sync.Map

	// admitting is the connection whose request line the dispatcher is
	// currently peeking, if any
	admitting atomic.Pointer[transport.Conn]

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown signals that graceful shutdown has been initiated
	shutdown chan struct{}

	// shutdownCtx is cancelled when shutdown starts. It bounds the accept
	// throttle and target measurement on the dispatcher.
	shutdownCtx    context.Context
	cancelDispatch context.CancelFunc

	// workCtx is passed to the handlers. It is cancelled only when the
	// shutdown timeout expires, so queued requests are still served
	// during the drain.
	workCtx    context.Context
	cancelWork context.CancelFunc

	// started is set by the first Serve call
	started atomic.Bool

	// served is closed when Serve returns; serveErr is its result and is
	// only read after served is closed
	served   chan struct{}
	serveErr error
}

// WebConfig holds configuration parameters for the web adapter.
//
// Default values (applied by New if zero):
//   - Workers: 1
//   - QueueSize: 1
//   - Schedule: FIFO
//   - Index: index.html
//   - PeekTimeout: 10s
//   - ReadTimeout: 30s
//   - WriteTimeout: 30s
//   - ShutdownTimeout: 30s
//   - MetricsLogInterval: 5m
type WebConfig struct {
	// Enabled controls whether the web adapter is active.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the TCP port to listen on. 0 binds an ephemeral port.
	Port int `mapstructure:"port" yaml:"port" validate:"min=0,max=65535"`

	// Workers is the number of goroutines serving requests.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"min=1"`

	// QueueSize is the number of admitted requests that may wait for a
	// worker. When full, the dispatcher stops accepting.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size" validate:"min=1"`

	// Schedule selects the admission policy: FIFO or SFF.
	Schedule string `mapstructure:"schedule" yaml:"schedule" validate:"required"`

	// Index is the document served for URIs ending in a slash.
	Index string `mapstructure:"index" yaml:"index"`

	// PeekTimeout bounds how long SFF admission waits for a request line.
	// A client that stays silent longer is answered with 400.
	PeekTimeout time.Duration `mapstructure:"peek_timeout" yaml:"peek_timeout" validate:"min=0"`

	// ReadTimeout bounds reading a request inside a worker.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is the maximum duration to wait for workers to drain
	// during graceful shutdown. Remaining connections are then closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// AcceptRate limits accepted connections per second. 0 disables it.
	AcceptRate uint `mapstructure:"accept_rate" yaml:"accept_rate"`

	// AcceptBurst is the throttle bucket size. 0 means AcceptRate.
	AcceptBurst uint `mapstructure:"accept_burst" yaml:"accept_burst"`

	// MetricsLogInterval is the interval at which server stats are logged.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" yaml:"metrics_log_interval" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *WebConfig) applyDefaults() {
	// Note: Enabled and Port defaults are handled in pkg/config/defaults.go
	// so that an explicit port 0 can request an ephemeral port.

	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.QueueSize == 0 {
		c.QueueSize = 1
	}
	if c.Schedule == "" {
		c.Schedule = string(admission.FIFO)
	}
	if c.Index == "" {
		c.Index = webproto.DefaultIndex
	}
	if c.PeekTimeout == 0 {
		c.PeekTimeout = admission.DefaultPeekTimeout
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MetricsLogInterval == 0 {
		c.MetricsLogInterval = 5 * time.Minute
	}
}

// validate checks the configuration and returns the parsed schedule.
func (c *WebConfig) validate() (admission.Schedule, error) {
	if c.Port < 0 || c.Port > 65535 {
		return "", fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Workers < 1 {
		return "", fmt.Errorf("invalid Workers %d: must be >= 1", c.Workers)
	}
	if c.QueueSize < 1 {
		return "", fmt.Errorf("invalid QueueSize %d: must be >= 1", c.QueueSize)
	}
	if c.PeekTimeout < 0 {
		return "", fmt.Errorf("invalid PeekTimeout %v: must be >= 0", c.PeekTimeout)
	}
	if c.ReadTimeout < 0 {
		return "", fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return "", fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return "", fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return admission.ParseSchedule(c.Schedule)
}

// New creates a new WebAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetContentStore() to
// inject the document root, then call Serve() to start accepting
// connections.
//
// Configuration:
//   - Zero values in config are replaced with sensible defaults
//   - Invalid configurations cause a panic (indicates programmer error)
//
// Parameters:
//   - config: Server configuration
//   - webMetrics: Optional metrics collector (nil for no metrics)
//
// Panics if config validation fails.
func New(config WebConfig, webMetrics metrics.WebMetrics) *WebAdapter {
	config.applyDefaults()

	schedule, err := config.validate()
	if err != nil {
		panic(fmt.Sprintf("invalid web config: %v", err))
	}

	limiter := ratelimiter.New(config.AcceptRate, config.AcceptBurst)
	if limiter.Enabled() {
		logger.Debug("Web accept throttle: %.0f conn/s (burst %d)", limiter.Limit(), limiter.Burst())
	}

	if webMetrics == nil {
		webMetrics = metrics.NewNoopWebMetrics()
	}

	shutdownCtx, cancelDispatch := context.WithCancel(context.Background())
	workCtx, cancelWork := context.WithCancel(context.Background())

	return &WebAdapter{
		config:         config,
		schedule:       schedule,
		metrics:        webMetrics,
		limiter:        limiter,
		shutdown:       make(chan struct{}),
		served:         make(chan struct{}),
		shutdownCtx:    shutdownCtx,
		cancelDispatch: cancelDispatch,
		workCtx:        workCtx,
		cancelWork:     cancelWork,
	}
}

// SetContentStore injects the shared document root.
//
// Thread safety:
// Called exactly once before Serve(), no synchronization needed.
func (s *WebAdapter) SetContentStore(store content.ContentStore) {
	s.store = store
	logger.Debug("Web content store configured")
}

// Serve binds the listener, starts the worker pool and runs the dispatch
// loop until the context is cancelled or Accept fails.
//
// Each iteration waits for the accept throttle (if enabled), accepts one
// connection, admits it with the configured policy and enqueues it. Enqueue
// blocks while the queue is full. An enqueue refused because the queue
// shut down drops the request and closes its connection.
//
// Returns:
//   - nil on graceful shutdown
//   - error if the listener cannot be bound, Accept fails while the
//     server is running, or shutdown exceeded ShutdownTimeout
//
// Thread safety:
// Serve() may only be called once per WebAdapter instance; later calls
// fail.
func (s *WebAdapter) Serve(ctx context.Context) (err error) {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("web adapter is already serving")
	}
	defer func() {
		s.serveErr = err
		close(s.served)
	}()

	if s.store == nil {
		return errors.New("web adapter has no content store")
	}

	q, err := queue.New(s.config.QueueSize)
	if err != nil {
		return fmt.Errorf("failed to create request queue: %w", err)
	}

	handler := webproto.NewStaticHandler(s.store, webproto.Config{
		Index:        s.config.Index,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}, s.metrics)

	policy, err := admission.New(s.schedule, handler, admission.Options{PeekTimeout: s.config.PeekTimeout})
	if err != nil {
		return fmt.Errorf("failed to create admission policy: %w", err)
	}

	pool, err := worker.New(q, handler, worker.Options{
		Workers: s.config.Workers,
		Metrics: s.metrics,
		OnDone:  s.requestDone,
	})
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	listener, err := transport.Listen(s.config.Port)
	if err != nil {
		return fmt.Errorf("failed to create web listener on port %d: %w", s.config.Port, err)
	}

	s.mu.Lock()
	s.queue = q
	s.pool = pool
	s.handler = handler
	s.listener = listener
	s.mu.Unlock()
	s.boundPort.Store(int32(listener.Port()))
	s.metrics.SetQueueCapacity(q.Cap())

	logger.Info("Web server listening on port %d", listener.Port())
	logger.Debug("Web config: schedule=%s workers=%d queue_size=%d peek_timeout=%v read_timeout=%v write_timeout=%v",
		policy.Name(), s.config.Workers, s.config.QueueSize, s.config.PeekTimeout,
		s.config.ReadTimeout, s.config.WriteTimeout)

	pool.Start(s.workCtx)

	// A shutdown initiated before the listener existed must still close it.
	select {
	case <-s.shutdown:
		s.closeListener(listener)
		q.Shutdown()
	default:
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Web shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(s.shutdownCtx)
	}

	for {
		if s.limiter.Enabled() {
			if d := s.limiter.Delay(); d > 0 {
				logger.Debug("Web accept throttled for %v", d)
			}
			if err := s.limiter.Wait(s.shutdownCtx); err != nil {
				return s.gracefulShutdown()
			}
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				// Expected error during shutdown (listener was closed)
				return s.gracefulShutdown()
			default:
				logger.Error("Web accept failed: %v", err)
				s.initiateShutdown()
				return errors.Join(fmt.Errorf("web accept failed: %w", err), s.gracefulShutdown())
			}
		}

		s.dispatch(policy, conn)
	}
}

// dispatch admits and enqueues one accepted connection.
func (s *WebAdapter) dispatch(policy admission.Policy, conn *transport.Conn) {
	addr := s.track(conn)

	s.admitting.Store(conn)
	req, err := policy.Admit(s.shutdownCtx, conn)
	s.admitting.Store(nil)
	if err != nil {
		logger.Debug("Web request from %s rejected: %v", addr, err)
		s.metrics.RecordRejected("peek_failed")
		s.reject(conn, err)
		s.release(addr, conn)
		return
	}

	if err := policy.Enqueue(s.queue, req); err != nil {
		if errors.Is(err, queue.ErrShutdown) {
			logger.Info("Web request %s from %s dropped: server shutting down", req.ID, addr)
		} else {
			logger.Warn("Web request %s from %s dropped: %v", req.ID, addr, err)
		}
		s.metrics.RecordDropped()
		s.release(addr, conn)
		return
	}

	s.metrics.RecordAdmitted(policy.Name())
	s.metrics.SetQueueDepth(s.queue.Len())
	logger.Debug("Web request %s from %s admitted (key=%d, queued=%d)", req.ID, addr, req.Key, s.queue.Len())
}

// reject answers a connection whose request line could not be peeked.
func (s *WebAdapter) reject(conn *transport.Conn, cause error) {
	// Only called from the dispatch loop, after Serve assigned s.handler.
	s.handler.Reject(s.shutdownCtx, conn, cause)
}

// track registers an accepted connection for shutdown accounting and
// returns its key.
func (s *WebAdapter) track(conn *transport.Conn) string {
	addr := conn.RemoteAddr().String()

	s.activeConns.Add(1)
	current := s.connCount.Add(1)
	s.activeConnections.Store(addr, conn)

	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	logger.Debug("Web connection accepted from %s (active: %d)", addr, current)
	return addr
}

// release closes a connection the dispatcher still owns and untracks it.
func (s *WebAdapter) release(addr string, conn *transport.Conn) {
	if err := conn.Close(); err != nil {
		logger.Debug("Error closing connection to %s: %v", addr, err)
	}
	s.untrack(addr)
}

// requestDone runs on a worker after it closed req's connection.
func (s *WebAdapter) requestDone(req *queue.Request) {
	s.untrack(req.Conn.RemoteAddr().String())
}

func (s *WebAdapter) untrack(addr string) {
	s.activeConnections.Delete(addr)
	current := s.connCount.Add(-1)
	s.activeConns.Done()

	s.metrics.RecordConnectionClosed()
	s.metrics.SetActiveConnections(current)

	logger.Debug("Web connection closed from %s (active: %d)", addr, current)
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Shutdown sequence:
//  1. Close shutdown channel (signals accept loop to stop)
//  2. Close listener (stops accepting new connections)
//  3. Cancel shutdownCtx (stops the accept throttle and target measurement)
//  4. Unblock a pending request line peek
//  5. Shut the queue down (blocked inserts fail, workers drain and exit)
//
// Thread safety:
// Safe to call multiple times and from multiple goroutines.
func (s *WebAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Web shutdown initiated")

		close(s.shutdown)
		s.cancelDispatch()

		s.mu.Lock()
		listener, q := s.listener, s.queue
		s.mu.Unlock()

		if listener != nil {
			s.closeListener(listener)
		}

		if conn := s.admitting.Load(); conn != nil {
			_ = conn.SetReadDeadline(time.Now())
		}

		if q != nil {
			q.Shutdown()
		}
	})
}

func (s *WebAdapter) closeListener(listener *transport.Listener) {
	if err := listener.Close(); err != nil {
		logger.Debug("Error closing web listener: %v", err)
	}
}

// gracefulShutdown waits for the workers to drain the queue or the
// shutdown timeout to expire. Only the Serve goroutine calls it: it is the
// one that adds to activeConns, so no Add can race the Wait below.
//
// Returns:
//   - nil if every queued request was served
//   - error if shutdown timeout exceeded (connections were force-closed)
//
func (s *WebAdapter) gracefulShutdown() error {
	s.mu.Lock()
	q, pool := s.queue, s.pool
	s.mu.Unlock()

	activeCount := s.connCount.Load()
	queued := 0
	if q != nil {
		queued = q.Len()
	}
	logger.Info("Web graceful shutdown: waiting for %d active connection(s), %d queued (timeout: %v)",
		activeCount, queued, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		if pool != nil {
			pool.Wait()
		}
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelWork()
		logger.Info("Web graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("Web shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.cancelWork()
		s.forceCloseConnections()

		return fmt.Errorf("web shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes every tracked connection. Workers blocked
// on them fail immediately, close them again and exit.
func (s *WebAdapter) forceCloseConnections() {
	logger.Info("Force-closing active web connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(*transport.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
			logger.Debug("Force-closed connection to %s", addr)
		}
		return true
	})

	if closedCount == 0 {
		logger.Debug("No connections to force-close")
	} else {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the web server and waits for Serve
// to finish draining, bounded by ctx.
//
// A nil ctx waits for Serve unconditionally and returns its result; Serve
// itself force-closes connections after ShutdownTimeout. If Serve was never
// called, Stop returns immediately and a later Serve exits at once.
//
// Thread safety:
// Safe to call concurrently from multiple goroutines.
func (s *WebAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.started.Load() {
		return nil
	}

	if ctx == nil {
		<-s.served
		return s.serveErr
	}

	activeCount := s.connCount.Load()
	logger.Info("Web graceful shutdown: waiting for %d active connection(s) (context timeout)", activeCount)

	select {
	case <-s.served:
		logger.Info("Web graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("Web shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// logMetrics periodically logs connection, queue and worker statistics.
func (s *WebAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Web metrics: active_connections=%d queued=%d/%d busy_workers=%d/%d served=%d",
				s.connCount.Load(), s.queue.Len(), s.queue.Cap(),
				s.pool.Busy(), s.pool.Size(), s.pool.Served())
		}
	}
}

// GetActiveConnections returns the number of connections accepted and not
// yet closed, queued ones included.
func (s *WebAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Health reports queue and worker occupancy while the adapter is serving.
// It fails before Serve has bound its listener and once shutdown started,
// when the queue no longer admits requests.
func (s *WebAdapter) Health() (string, error) {
	s.mu.Lock()
	q, pool := s.queue, s.pool
	s.mu.Unlock()

	if q == nil || pool == nil {
		return "", errors.New("not serving")
	}
	if q.IsShutdown() {
		return "", errors.New("queue shut down, draining")
	}
	return fmt.Sprintf("schedule=%s queued=%d/%d busy_workers=%d/%d active_connections=%d",
		s.schedule, q.Len(), q.Cap(), pool.Busy(), pool.Size(), s.connCount.Load()), nil
}

// Port returns the bound TCP port once Serve has started, or the configured
// port before that.
func (s *WebAdapter) Port() int {
	if p := s.boundPort.Load(); p != 0 {
		return int(p)
	}
	return s.config.Port
}

// Protocol returns "WEB" as the protocol identifier.
func (s *WebAdapter) Protocol() string {
	return "WEB"
}
