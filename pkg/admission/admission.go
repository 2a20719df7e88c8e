// Package admission decides how an accepted connection enters the request
// queue.
//
// The policy is chosen once at startup:
//
//   - FIFO queues every connection as-is, in arrival order.
//   - SFF reads the request line first, measures the requested resource and
//     queues the connection ordered by that size, smallest first.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/internal/protocol/web"
	"github.com/marmos91/dittoweb/pkg/queue"
	"github.com/marmos91/dittoweb/pkg/transport"
)

// Schedule names an admission policy.
type Schedule string

const (
	// FIFO serves requests in strict arrival order.
	FIFO Schedule = "FIFO"

	// SFF serves the smallest requested file first among queued requests.
	SFF Schedule = "SFF"
)

// DefaultPeekTimeout bounds the request line read under SFF.
const DefaultPeekTimeout = 10 * time.Second

var (
	// ErrUnknownSchedule is returned by ParseSchedule for unsupported names.
	ErrUnknownSchedule = errors.New("unknown schedule")

	// ErrPeekFailed is returned by Admit when the request line could not be
	// read. The connection must be rejected and closed, not queued.
	ErrPeekFailed = errors.New("failed to read request line")
)

// ParseSchedule accepts the short and the descriptive policy names, in any
// case.
func ParseSchedule(s string) (Schedule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "strict-arrival-order":
		return FIFO, nil
	case "sff", "smallest-target-first":
		return SFF, nil
	default:
		return "", fmt.Errorf("%w: %q (expected FIFO or SFF)", ErrUnknownSchedule, s)
	}
}

// Resolver measures the resource named by a request target.
type Resolver interface {
	ResolveAndStat(ctx context.Context, target string) (uint64, error)
}

// Options tunes a policy.
type Options struct {
	// PeekTimeout bounds the SFF request line read. Zero uses
	// DefaultPeekTimeout; a negative value disables the deadline.
	PeekTimeout time.Duration
}

// Policy admits accepted connections into a queue.
type Policy interface {
	// Name returns the schedule this policy implements.
	Name() string

	// Admit wraps conn into a request, gathering whatever the policy needs
	// to order it. On error the caller still owns conn.
	Admit(ctx context.Context, conn *transport.Conn) (*queue.Request, error)

	// Enqueue inserts req with the policy's discipline. It blocks while the
	// queue is full and returns queue.ErrShutdown if the queue shut down.
	Enqueue(q *queue.Queue, req *queue.Request) error
}

// New builds the policy for schedule. resolver is required for SFF.
func New(schedule Schedule, resolver Resolver, opts Options) (Policy, error) {
	switch schedule {
	case FIFO:
		return fifoPolicy{}, nil
	case SFF:
		if resolver == nil {
			return nil, fmt.Errorf("%s admission requires a resolver", SFF)
		}
		timeout := opts.PeekTimeout
		if timeout == 0 {
			timeout = DefaultPeekTimeout
		}
		return &sffPolicy{resolver: resolver, peekTimeout: timeout}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSchedule, schedule)
	}
}

func newRequest(conn *transport.Conn) *queue.Request {
	return &queue.Request{
		ID:         uuid.NewString(),
		Conn:       conn,
		AcceptedAt: time.Now(),
	}
}

type fifoPolicy struct{}

func (fifoPolicy) Name() string {
	return string(FIFO)
}

func (fifoPolicy) Admit(ctx context.Context, conn *transport.Conn) (*queue.Request, error) {
	return newRequest(conn), nil
}

func (fifoPolicy) Enqueue(q *queue.Queue, req *queue.Request) error {
	return q.InsertFIFO(req)
}

type sffPolicy struct {
	resolver    Resolver
	peekTimeout time.Duration
}

func (p *sffPolicy) Name() string {
	return string(SFF)
}

// Admit reads the request line on the dispatcher goroutine. While it blocks
// no other connection is accepted.
func (p *sffPolicy) Admit(ctx context.Context, conn *transport.Conn) (*queue.Request, error) {
	if p.peekTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(p.peekTimeout)); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPeekFailed, err)
		}
	}

	// Shutdown expires the deadline of the connection being admitted. If it
	// ran before the line above, that expiry was overwritten; ctx is already
	// done in that case.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPeekFailed, err)
	}

	line, err := conn.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPeekFailed, err)
	}

	if p.peekTimeout > 0 {
		if err := conn.SetReadDeadline(time.Time{}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPeekFailed, err)
		}
	}

	req := newRequest(conn)
	req.FirstLine = line
	req.Peeked = true
	req.Key = p.measure(ctx, req.ID, line)
	return req, nil
}

// measure returns the target size, or queue.MaxKey when it cannot be
// determined. The worker reports the actual error to the client.
func (p *sffPolicy) measure(ctx context.Context, id, line string) uint64 {
	parsed, err := web.ParseRequestLine(line)
	if err != nil {
		logger.Debug("Request %s: unmeasurable request line %q", id, line)
		return queue.MaxKey
	}

	size, err := p.resolver.ResolveAndStat(ctx, parsed.URI)
	if err != nil {
		logger.Debug("Request %s: cannot measure %s: %v", id, parsed.URI, err)
		return queue.MaxKey
	}

	return size
}

func (p *sffPolicy) Enqueue(q *queue.Queue, req *queue.Request) error {
	return q.InsertOrdered(req)
}
