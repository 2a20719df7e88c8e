// Package transport wraps TCP listeners and connections for the web adapter.
//
// A Conn keeps the buffered reader it was created with for its whole
// lifetime. Bytes buffered while reading the first request line during
// admission stay available to the request handler, so the line can be
// captured once and passed along instead of being re-read.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// MaxLineLength bounds a single protocol line, including the terminator.
const MaxLineLength = 8192

var (
	// ErrLineTooLong is returned by ReadLine when no terminator is found
	// within MaxLineLength bytes.
	ErrLineTooLong = errors.New("line exceeds maximum length")
)

// Listener accepts connections and wraps them in *Conn.
type Listener struct {
	ln   net.Listener
	port int
}

// Bind opens a TCP listener on addr (for example ":10000" or "127.0.0.1:0").
func Bind(addr string) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}

	port := 0
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	return &Listener{ln: ln, port: port}, nil
}

// Listen binds all interfaces on port. Port 0 lets the OS pick one.
func Listen(port int) (*Listener, error) {
	return Bind(fmt.Sprintf(":%d", port))
}

// Accept blocks until a connection arrives or the listener is closed.
func (l *Listener) Accept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return NewConn(c), nil
}

// Close stops the listener. Blocked Accept calls return an error.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Port returns the bound TCP port.
func (l *Listener) Port() int {
	return l.port
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Conn is an accepted connection with a retained read buffer.
//
// Reads through Conn (Read, ReadLine, Reader) all consume the same buffer.
// Close is idempotent and safe to call from several goroutines, which lets
// the adapter force-close a connection a worker is about to close too.
type Conn struct {
	net.Conn

	reader *bufio.Reader

	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps c.
func NewConn(c net.Conn) *Conn {
	return &Conn{
		Conn:   c,
		reader: bufio.NewReaderSize(c, MaxLineLength),
	}
}

// Read reads from the buffered reader, never from the raw connection.
func (c *Conn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}

// Reader exposes the retained buffered reader.
func (c *Conn) Reader() *bufio.Reader {
	return c.reader
}

// ReadLine reads one line and strips the trailing CRLF or LF.
//
// A final line without terminator is returned as-is when the peer closes
// the connection; an empty read at EOF returns io.EOF.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadSlice('\n')
	switch {
	case err == nil:
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, io.EOF) && len(line) > 0:
	default:
		return "", err
	}

	line = bytes.TrimRight(line, "\r\n")
	return string(line), nil
}

// Close closes the underlying connection once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.Conn.Close()
	})
	return c.closeErr
}
