// Package worker runs the fixed pool of goroutines that serve queued
// requests.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/metrics"
	"github.com/marmos91/dittoweb/pkg/queue"
	"github.com/marmos91/dittoweb/pkg/transport"
)

// Handler serves one request on a connection. It must not close conn.
type Handler interface {
	Handle(ctx context.Context, conn *transport.Conn) error
	HandleWithFirstLine(ctx context.Context, conn *transport.Conn, line string) error
}

// Options configures a Pool.
type Options struct {
	// Workers is the number of goroutines. Must be at least 1.
	Workers int

	// Metrics is optional; nil disables collection.
	Metrics metrics.WebMetrics

	// OnDone, if set, runs after a request's connection is closed.
	OnDone func(req *queue.Request)
}

// Pool is a fixed set of workers consuming one queue.
//
// Each worker loops: remove a request, hand it to the Handler, close the
// connection. The connection is closed on every path, including a handler
// error or panic. A worker exits when Remove reports the queue is shut down
// and drained.
type Pool struct {
	queue   *queue.Queue
	handler Handler
	workers int
	metrics metrics.WebMetrics
	onDone  func(req *queue.Request)

	wg      sync.WaitGroup
	started atomic.Bool
	busy    atomic.Int32
	served  atomic.Uint64
}

// New creates a pool. Call Start to launch the workers.
func New(q *queue.Queue, handler Handler, opts Options) (*Pool, error) {
	if q == nil {
		return nil, errors.New("worker pool requires a queue")
	}
	if handler == nil {
		return nil, errors.New("worker pool requires a handler")
	}
	if opts.Workers < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", opts.Workers)
	}

	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoopWebMetrics()
	}

	return &Pool{
		queue:   q,
		handler: handler,
		workers: opts.Workers,
		metrics: m,
		onDone:  opts.OnDone,
	}, nil
}

// Start launches the workers. ctx is passed to every handler call; it is
// not what stops the workers, shutting the queue down is.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	for id := 1; id <= p.workers; id++ {
		p.wg.Add(1)
		go p.run(ctx, id)
	}
	logger.Debug("Started %d workers", p.workers)
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.workers
}

// Busy returns the number of workers currently serving a request.
func (p *Pool) Busy() int32 {
	return p.busy.Load()
}

// Served returns the number of requests completed so far.
func (p *Pool) Served() uint64 {
	return p.served.Load()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	handled := 0
	for {
		req, ok := p.queue.Remove()
		if !ok {
			logger.Debug("Worker %d exiting after %d requests", id, handled)
			return
		}

		p.metrics.SetQueueDepth(p.queue.Len())
		p.metrics.ObserveQueueWait(time.Since(req.AcceptedAt))

		p.serve(ctx, id, req)
		handled++
	}
}

// serve runs the handler for req and always closes its connection.
func (p *Pool) serve(ctx context.Context, id int, req *queue.Request) {
	p.metrics.SetBusyWorkers(p.busy.Add(1))
	start := time.Now()

	defer func() {
		// Panic recovery - prevents a single request from killing the worker
		if r := recover(); r != nil {
			logger.Error("Panic in worker %d serving request %s: %v", id, req.ID, r)
		}

		if err := req.Conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			logger.Debug("Request %s: close error: %v", req.ID, err)
		}

		p.metrics.ObserveServiceTime(time.Since(start))
		p.metrics.SetBusyWorkers(p.busy.Add(-1))
		p.served.Add(1)

		if p.onDone != nil {
			p.onDone(req)
		}
	}()

	var err error
	if req.Peeked {
		err = p.handler.HandleWithFirstLine(ctx, req.Conn, req.FirstLine)
	} else {
		err = p.handler.Handle(ctx, req.Conn)
	}

	if err != nil {
		clientAddr := req.Conn.RemoteAddr().String()
		var netErr net.Error
		switch {
		case errors.Is(err, io.EOF):
			logger.Debug("Request %s: connection from %s closed by client", req.ID, clientAddr)
		case errors.As(err, &netErr) && netErr.Timeout():
			logger.Debug("Request %s: connection from %s timed out: %v", req.ID, clientAddr, err)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			logger.Debug("Request %s: cancelled: %v", req.ID, err)
		default:
			logger.Debug("Request %s: error serving %s: %v", req.ID, clientAddr, err)
		}
		return
	}

	logger.Debug("Request %s served by worker %d in %v", req.ID, id, time.Since(start))
}
