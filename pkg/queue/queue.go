// Package queue implements the bounded request queue shared by the dispatch
// loop and the worker pool.
package queue

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/marmos91/dittoweb/pkg/transport"
)

// MaxKey is the ordering key of a request whose target could not be
// measured. Such requests sort after every measurable one.
const MaxKey uint64 = math.MaxUint64

var (
	// ErrShutdown is returned by inserts that observe shutdown. The request
	// was not queued and still belongs to the caller.
	ErrShutdown = errors.New("queue is shut down")

	// ErrInvalidCapacity is returned by New when capacity < 1.
	ErrInvalidCapacity = errors.New("queue capacity must be at least 1")
)

// Request is one accepted connection waiting for a worker.
type Request struct {
	// ID correlates log lines for this request.
	ID string

	// Conn is owned by exactly one of: dispatcher, queue, worker.
	Conn *transport.Conn

	// FirstLine holds the request line captured during admission.
	// Only meaningful when Peeked is true.
	FirstLine string
	Peeked    bool

	// Key orders requests under the ordered discipline (smaller first).
	Key uint64

	AcceptedAt time.Time
}

// Queue is a fixed-capacity ring buffer of requests.
//
// Two insertion disciplines share the same storage: InsertFIFO appends at
// the tail, InsertOrdered keeps the occupied region sorted by Key and is
// stable for equal keys. Ordered insertion shifts elements linearly, which
// is only acceptable because capacity is small and fixed at startup.
//
// All fields are guarded by mu. notFull and notEmpty are bound to mu.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	slots    []*Request
	head     int
	tail     int
	count    int
	shutdown bool
}

// New creates an empty queue holding at most capacity requests.
func New(capacity int) (*Queue, error) {
	if capacity < 1 {
		return nil, ErrInvalidCapacity
	}

	q := &Queue{
		slots: make([]*Request, capacity),
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// waitForSpace blocks while the queue is full. Returns false if shutdown
// was observed. Caller must hold mu.
func (q *Queue) waitForSpace() bool {
	for q.count == len(q.slots) && !q.shutdown {
		q.notFull.Wait()
	}
	return !q.shutdown
}

// InsertFIFO appends req at the tail, blocking while the queue is full.
func (q *Queue) InsertFIFO(req *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.waitForSpace() {
		return ErrShutdown
	}

	q.slots[q.tail] = req
	q.tail = (q.tail + 1) % len(q.slots)
	q.count++

	q.notEmpty.Signal()
	return nil
}

// InsertOrdered places req before the first queued request with a strictly
// greater key, blocking while the queue is full. Requests with equal keys
// keep their insertion order.
func (q *Queue) InsertOrdered(req *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.waitForSpace() {
		return ErrShutdown
	}

	size := len(q.slots)

	pos := q.tail
	for i := 0; i < q.count; i++ {
		idx := (q.head + i) % size
		if q.slots[idx].Key > req.Key {
			pos = idx
			break
		}
	}

	// Shift [pos, tail) one slot toward the tail.
	for cur := q.tail; cur != pos; {
		prev := (cur - 1 + size) % size
		q.slots[cur] = q.slots[prev]
		cur = prev
	}

	q.slots[pos] = req
	q.tail = (q.tail + 1) % size
	q.count++

	q.notEmpty.Signal()
	return nil
}

// Remove takes the request at the head, blocking while the queue is empty.
//
// After Shutdown, requests still queued are returned until the queue is
// drained; then Remove returns (nil, false) to every caller.
func (q *Queue) Remove() (*Request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.shutdown {
		q.notEmpty.Wait()
	}

	if q.count == 0 {
		return nil, false
	}

	req := q.slots[q.head]
	q.slots[q.head] = nil
	q.head = (q.head + 1) % len(q.slots)
	q.count--

	q.notFull.Signal()
	return req, true
}

// Shutdown wakes every blocked inserter and remover. Idempotent.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()

	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return len(q.slots)
}

// IsShutdown reports whether Shutdown has been called.
func (q *Queue) IsShutdown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shutdown
}
