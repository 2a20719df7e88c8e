// Package web serves static content over HTTP/1.0.
//
// The handler reads one request per connection, answers it and returns.
// Closing the connection is the caller's job.
package web

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/marmos91/dittoweb/pkg/metrics"
	"github.com/marmos91/dittoweb/pkg/transport"
)

// DefaultServerName is sent in the Server header.
const DefaultServerName = "DittoWeb"

// maxHeaderLines bounds the header block of a single request.
const maxHeaderLines = 100

// Config configures a StaticHandler.
type Config struct {
	// ServerName is sent in the Server header and error pages.
	ServerName string

	// Index is the document served for URIs ending in a slash.
	Index string

	// ReadTimeout bounds reading the request. Zero disables it.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the response. Zero disables it.
	WriteTimeout time.Duration
}

// StaticHandler answers GET requests from a content store.
type StaticHandler struct {
	store   content.ContentStore
	config  Config
	metrics metrics.WebMetrics
}

// NewStaticHandler creates a handler serving from store.
// A nil m disables metrics.
func NewStaticHandler(store content.ContentStore, config Config, m metrics.WebMetrics) *StaticHandler {
	if config.ServerName == "" {
		config.ServerName = DefaultServerName
	}
	if config.Index == "" {
		config.Index = DefaultIndex
	}
	if m == nil {
		m = metrics.NewNoopWebMetrics()
	}

	return &StaticHandler{
		store:   store,
		config:  config,
		metrics: m,
	}
}

// Handle reads the request line from conn and serves the request.
func (h *StaticHandler) Handle(ctx context.Context, conn *transport.Conn) error {
	if err := h.setReadDeadline(conn); err != nil {
		return err
	}

	line, err := conn.ReadLine()
	if err != nil {
		if errors.Is(err, transport.ErrLineTooLong) {
			return h.sendError(conn, StatusBadRequest, "request line", "Request line too long")
		}
		return fmt.Errorf("read request line: %w", err)
	}

	return h.serve(ctx, conn, line)
}

// HandleWithFirstLine serves a request whose line was already consumed
// from conn. The line is not read again.
func (h *StaticHandler) HandleWithFirstLine(ctx context.Context, conn *transport.Conn, line string) error {
	if err := h.setReadDeadline(conn); err != nil {
		return err
	}

	return h.serve(ctx, conn, line)
}

// Reject answers a connection whose request line could not be read.
// cause is logged, never sent to the client.
func (h *StaticHandler) Reject(ctx context.Context, conn *transport.Conn, cause error) {
	if cause != nil {
		logger.Debug("Rejecting %s: %v", conn.RemoteAddr(), cause)
	}
	if err := h.sendError(conn, StatusBadRequest, "request line", "Could not read request"); err != nil {
		logger.Debug("Failed to send rejection to %s: %v", conn.RemoteAddr(), err)
	}
}

// ResolveAndStat returns the size of the resource target names.
//
// Dynamic targets fail with ErrDynamicContent; absent ones with
// content.ErrContentNotFound.
func (h *StaticHandler) ResolveAndStat(ctx context.Context, target string) (uint64, error) {
	t, err := ResolveURI(target, h.config.Index)
	if err != nil {
		return 0, err
	}
	if t.Dynamic {
		return 0, ErrDynamicContent
	}

	return h.store.GetContentSize(ctx, t.ID)
}

func (h *StaticHandler) serve(ctx context.Context, conn *transport.Conn, line string) error {
	clientAddr := conn.RemoteAddr().String()

	req, err := ParseRequestLine(line)
	if err != nil {
		logger.Debug("Bad request line from %s: %q", clientAddr, line)
		return h.sendError(conn, StatusBadRequest, line, "Could not parse request")
	}

	logger.Debug("%s %s %s from %s", req.Method, req.URI, req.Version, clientAddr)

	if err := h.discardHeaders(conn); err != nil {
		if errors.Is(err, transport.ErrLineTooLong) || errors.Is(err, errTooManyHeaders) {
			return h.sendError(conn, StatusBadRequest, req.URI, "Request headers too large")
		}
		return fmt.Errorf("read headers: %w", err)
	}

	if !strings.EqualFold(req.Method, "GET") {
		return h.sendError(conn, StatusNotImplemented, req.Method, "Server does not implement this method")
	}

	target, err := ResolveURI(req.URI, h.config.Index)
	if err != nil {
		return h.sendError(conn, StatusForbidden, req.URI, "Server could not read this file")
	}
	if target.Dynamic {
		return h.sendError(conn, StatusNotImplemented, req.URI, "Server does not run CGI programs")
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	// The length comes from the opened resource. A size cached at admission
	// may describe an older version of the file.
	body, size, err := h.store.ReadContent(ctx, target.ID)
	if err != nil {
		return h.sendStoreError(conn, req.URI, err)
	}
	defer body.Close()

	if err := h.setWriteDeadline(conn); err != nil {
		return err
	}

	w := bufio.NewWriter(conn)
	if err := writeHeader(w, h.config.ServerName, StatusOK, ContentType(string(target.ID)), size); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	n, err := io.Copy(w, body)
	if err == nil {
		err = w.Flush()
	}
	h.metrics.RecordResponse(StatusOK, n)
	if err != nil {
		return fmt.Errorf("send %s: %w", target.ID, err)
	}

	logger.Debug("Sent %s (%d bytes) to %s", target.ID, n, clientAddr)
	return nil
}

var errTooManyHeaders = errors.New("too many header lines")

// discardHeaders consumes header lines up to the blank line. A peer that
// closes right after the request line has sent no headers.
func (h *StaticHandler) discardHeaders(conn *transport.Conn) error {
	for i := 0; i < maxHeaderLines; i++ {
		line, err := conn.ReadLine()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			return nil
		}
	}
	return errTooManyHeaders
}

// statusFor maps a content store error onto a response status.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, content.ErrContentNotFound):
		return StatusNotFound, "Server could not find this file"
	case errors.Is(err, content.ErrNotRegularFile),
		errors.Is(err, content.ErrAccessDenied),
		errors.Is(err, content.ErrInvalidContentID):
		return StatusForbidden, "Server could not read this file"
	case errors.Is(err, content.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return StatusServiceUnavailable, "Server is temporarily unable to serve this file"
	default:
		return StatusInternalServerError, "Server failed to read this file"
	}
}

func (h *StaticHandler) sendStoreError(conn *transport.Conn, uri string, err error) error {
	code, msg := statusFor(err)
	if code == StatusInternalServerError {
		logger.Warn("Content store error for %s: %v", uri, err)
	}
	return h.sendError(conn, code, uri, msg)
}

func (h *StaticHandler) sendError(conn *transport.Conn, code int, cause, longMsg string) error {
	if err := h.setWriteDeadline(conn); err != nil {
		return err
	}

	n, err := writeError(conn, h.config.ServerName, code, cause, longMsg)
	h.metrics.RecordResponse(code, n)
	if err != nil {
		return fmt.Errorf("write %d response: %w", code, err)
	}
	return nil
}

func (h *StaticHandler) setReadDeadline(conn *transport.Conn) error {
	if h.config.ReadTimeout <= 0 {
		return nil
	}
	if err := conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		return fmt.Errorf("set read deadline: %w", err)
	}
	return nil
}

func (h *StaticHandler) setWriteDeadline(conn *transport.Conn) error {
	if h.config.WriteTimeout <= 0 {
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return nil
}
