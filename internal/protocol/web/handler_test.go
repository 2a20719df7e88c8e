package web

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittoweb/pkg/content"
	"github.com/marmos91/dittoweb/pkg/content/cache"
	"github.com/marmos91/dittoweb/pkg/content/fs"
	"github.com/marmos91/dittoweb/pkg/content/memory"
	"github.com/marmos91/dittoweb/pkg/metrics"
	"github.com/marmos91/dittoweb/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingMetrics captures response statuses.
type recordingMetrics struct {
	metrics.WebMetrics

	mu       sync.Mutex
	statuses []int
	bytes    int64
}

func (m *recordingMetrics) RecordResponse(status int, bytes int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
	m.bytes += bytes
}

func newTestHandler(t *testing.T, files map[string]string) (*StaticHandler, *recordingMetrics) {
	t.Helper()
	ctx := context.Background()

	store, err := memory.NewMemoryContentStore(ctx, 0)
	require.NoError(t, err)
	for name, data := range files {
		require.NoError(t, store.WriteContent(ctx, content.ContentID(name), []byte(data)))
	}

	m := &recordingMetrics{WebMetrics: metrics.NewNoopWebMetrics()}
	h := NewStaticHandler(store, Config{ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second}, m)
	return h, m
}

// exchange runs the handler against one end of a pipe, sends request from
// the other end and returns everything the handler wrote.
func exchange(t *testing.T, serve func(*transport.Conn) error, request string) (string, error) {
	t.Helper()

	server, client := net.Pipe()
	conn := transport.NewConn(server)

	done := make(chan error, 1)
	go func() {
		err := serve(conn)
		_ = conn.Close()
		done <- err
	}()

	go func() {
		if request != "" {
			_, _ = client.Write([]byte(request))
		}
	}()

	resp, err := io.ReadAll(client)
	require.NoError(t, err)
	_ = client.Close()

	select {
	case err := <-done:
		return string(resp), err
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return")
		return "", nil
	}
}

func TestHandle_ServesFile(t *testing.T) {
	h, m := newTestHandler(t, map[string]string{"hello.html": "<p>hi</p>"})

	resp, err := exchange(t, func(c *transport.Conn) error {
		return h.Handle(context.Background(), c)
	}, "GET /hello.html HTTP/1.0\r\nHost: x\r\nUser-Agent: test\r\n\r\n")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp, "HTTP/1.0 200 OK\r\n"), resp)
	assert.Contains(t, resp, "Server: DittoWeb\r\n")
	assert.Contains(t, resp, "Content-Length: 9\r\n")
	assert.Contains(t, resp, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\n<p>hi</p>"), resp)

	assert.Equal(t, []int{200}, m.statuses)
	assert.Equal(t, int64(9), m.bytes)
}

func TestHandle_IndexDocument(t *testing.T) {
	h, _ := newTestHandler(t, map[string]string{"index.html": "home", "docs/index.html": "docs"})

	resp, err := exchange(t, func(c *transport.Conn) error {
		return h.Handle(context.Background(), c)
	}, "GET / HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp, "home"), resp)

	resp, err = exchange(t, func(c *transport.Conn) error {
		return h.Handle(context.Background(), c)
	}, "GET /docs/?v=2 HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp, "docs"), resp)
}

func TestHandle_ErrorStatuses(t *testing.T) {
	h, _ := newTestHandler(t, map[string]string{"dir/file.txt": "x"})

	tests := []struct {
		name    string
		request string
		status  string
	}{
		{"Malformed", "GARBAGE\r\n\r\n", "400 Bad Request"},
		{"NotGET", "POST /dir/file.txt HTTP/1.0\r\n\r\n", "501 Not Implemented"},
		{"CGI", "GET /spin.cgi?1 HTTP/1.0\r\n\r\n", "501 Not Implemented"},
		{"Traversal", "GET /../secret HTTP/1.0\r\n\r\n", "403 Forbidden"},
		{"Missing", "GET /nope.html HTTP/1.0\r\n\r\n", "404 Not Found"},
		{"Directory", "GET /dir HTTP/1.0\r\n\r\n", "403 Forbidden"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := exchange(t, func(c *transport.Conn) error {
				return h.Handle(context.Background(), c)
			}, tt.request)
			require.NoError(t, err)

			assert.True(t, strings.HasPrefix(resp, "HTTP/1.0 "+tt.status+"\r\n"), resp)
			assert.Contains(t, resp, "Content-Type: text/html\r\n")
			assert.Contains(t, resp, "<!doctype html>")
		})
	}
}

func TestHandle_LowercaseGet(t *testing.T) {
	h, _ := newTestHandler(t, map[string]string{"a.txt": "abc"})

	resp, err := exchange(t, func(c *transport.Conn) error {
		return h.Handle(context.Background(), c)
	}, "get /a.txt HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.0 200 OK"), resp)
	assert.Contains(t, resp, "Content-Type: text/plain")
}

func TestHandle_ErrorPageEscapesCause(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp, err := exchange(t, func(c *transport.Conn) error {
		return h.Handle(context.Background(), c)
	}, "GET /<script>.html HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.NotContains(t, resp, "<script>")
	assert.Contains(t, resp, "&lt;script&gt;")
}

func TestHandle_ClientClosesWithoutRequest(t *testing.T) {
	h, m := newTestHandler(t, nil)

	server, client := net.Pipe()
	conn := transport.NewConn(server)
	require.NoError(t, client.Close())

	err := h.Handle(context.Background(), conn)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe), "got %v", err)
	assert.Empty(t, m.statuses)
}

func TestHandleWithFirstLine_DoesNotReread(t *testing.T) {
	h, _ := newTestHandler(t, map[string]string{"peeked.txt": "from peek"})

	// The request line is gone from the stream; only headers remain.
	resp, err := exchange(t, func(c *transport.Conn) error {
		return h.HandleWithFirstLine(context.Background(), c, "GET /peeked.txt HTTP/1.0")
	}, "Accept: */*\r\n\r\n")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(resp, "from peek"), resp)
}

func TestHandleWithFirstLine_MissingTarget(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp, err := exchange(t, func(c *transport.Conn) error {
		return h.HandleWithFirstLine(context.Background(), c, "GET /gone HTTP/1.0")
	}, "\r\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.0 404 Not Found"), resp)
}

func TestReject(t *testing.T) {
	h, m := newTestHandler(t, nil)

	cause := errors.New("read tcp 127.0.0.1:10000->10.1.2.3:51234: i/o timeout")
	resp, err := exchange(t, func(c *transport.Conn) error {
		h.Reject(context.Background(), c, cause)
		return nil
	}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.0 400 Bad Request"), resp)
	assert.Contains(t, resp, "Could not read request")
	assert.Contains(t, resp, "request line")
	assert.Equal(t, []int{400}, m.statuses)

	// Socket details stay in the log.
	assert.NotContains(t, resp, "i/o timeout")
	assert.NotContains(t, resp, "10.1.2.3")
	assert.NotContains(t, resp, "127.0.0.1")
}

func TestHandleWithFirstLine_LengthFollowsServedFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	backing, err := fs.NewFSContentStore(ctx, dir, false)
	require.NoError(t, err)
	store, err := cache.New(backing, cache.Config{InMemory: true, TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := NewStaticHandler(store, Config{ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second}, nil)

	// Admission measures the file and fills the cache.
	size, err := h.ResolveAndStat(ctx, "/a.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)

	// The file changes while the request waits in the queue.
	body := "hello, longer world"
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cached, err := store.GetContentSize(ctx, "a.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(5), cached, "cache should still hold the admission size")

	resp, err := exchange(t, func(c *transport.Conn) error {
		return h.HandleWithFirstLine(ctx, c, "GET /a.txt HTTP/1.0")
	}, "\r\n")
	require.NoError(t, err)

	head, got, ok := strings.Cut(resp, "\r\n\r\n")
	require.True(t, ok, resp)
	assert.Contains(t, head, "Content-Length: 19\r\n")
	assert.Equal(t, body, got)
}

func TestResolveAndStat(t *testing.T) {
	h, _ := newTestHandler(t, map[string]string{"big.bin": strings.Repeat("x", 500), "index.html": "i"})
	ctx := context.Background()

	size, err := h.ResolveAndStat(ctx, "/big.bin")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), size)

	size, err = h.ResolveAndStat(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), size)

	_, err = h.ResolveAndStat(ctx, "/missing")
	assert.ErrorIs(t, err, content.ErrContentNotFound)

	_, err = h.ResolveAndStat(ctx, "/run.cgi")
	assert.ErrorIs(t, err, ErrDynamicContent)

	_, err = h.ResolveAndStat(ctx, "/../x")
	assert.ErrorIs(t, err, content.ErrInvalidContentID)
}

func TestStatusFor(t *testing.T) {
	code, _ := statusFor(content.ErrUnavailable)
	assert.Equal(t, StatusServiceUnavailable, code)

	code, _ = statusFor(errors.New("boom"))
	assert.Equal(t, StatusInternalServerError, code)

	code, _ = statusFor(content.ErrAccessDenied)
	assert.Equal(t, StatusForbidden, code)
}
