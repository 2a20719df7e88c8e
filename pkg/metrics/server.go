package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dittoweb/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultPort is the metrics port used when ServerConfig.Port is zero.
const DefaultPort = 9090

// HealthFunc reports on one component. It returns a short status line, or
// an error when the component cannot take requests.
type HealthFunc func() (string, error)

type healthCheck struct {
	name  string
	check HealthFunc
}

// Server exposes /metrics for Prometheus and /healthz for orchestrators.
//
// /healthz answers 200 while every registered check passes and 503 as soon
// as one fails, so a load balancer stops routing to an instance whose web
// adapter is draining its queue.
type Server struct {
	addr    string
	handler http.Handler
	server  *http.Server

	mu     sync.Mutex
	checks []healthCheck
	port   int

	stopOnce sync.Once
}

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. 0 uses DefaultPort.
	Port int

	// Address to bind. Empty binds all interfaces.
	Address string
}

// NewServer creates a stopped metrics server. Call Start to serve.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}

	s := &Server{
		addr: net.JoinHostPort(config.Address, fmt.Sprint(config.Port)),
		port: config.Port,
	}

	mux := http.NewServeMux()
	if reg := GetRegistry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}
	mux.HandleFunc("/healthz", s.serveHealth)

	s.handler = mux
	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// AddHealthCheck registers a check reported on /healthz under name.
// Checks run in registration order on every request.
func (s *Server) AddHealthCheck(name string, check HealthFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, healthCheck{name: name, check: check})
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	checks := append([]healthCheck(nil), s.checks...)
	s.mu.Unlock()

	var b strings.Builder
	status := http.StatusOK
	for _, c := range checks {
		detail, err := c.check()
		if err != nil {
			status = http.StatusServiceUnavailable
			fmt.Fprintf(&b, "%s: unhealthy: %v\n", c.name, err)
			continue
		}
		fmt.Fprintf(&b, "%s: ok %s\n", c.name, detail)
	}
	if len(checks) == 0 {
		b.WriteString("ok\n")
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(b.String()))
}

// Start binds the listener and serves until ctx is cancelled, then shuts
// down with a five second grace period.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics server failed: %w", err)
	}

	s.mu.Lock()
	s.port = ln.Addr().(*net.TCPAddr).Port
	s.mu.Unlock()
	logger.Info("Metrics server listening on port %d", s.Port())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. Only the first call has an effect.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("metrics server shutdown error: %w", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return err
}

// Port returns the bound port once Start is listening, or the configured
// port before that.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Handler returns the mux serving /metrics and /healthz.
func (s *Server) Handler() http.Handler {
	return s.handler
}
