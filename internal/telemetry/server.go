// Package telemetry serves Prometheus metrics and a health check over HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/bulkship/pkg/log"
)

const (
	readHeaderTimeout = 5 * time.Second

	// DefaultShutdownTimeout bounds Shutdown when the caller has no deadline.
	DefaultShutdownTimeout = 5 * time.Second
)

// HealthFunc reports whether the process is healthy. A nil HealthFunc
// always reports healthy.
type HealthFunc func() error

// Server exposes /metrics and /healthz.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	health   HealthFunc
	logger   log.Logger

	httpServer *http.Server
	listener   net.Listener
}

// NewServer creates a server for addr. It does not listen until Start.
func NewServer(addr string, gatherer prometheus.Gatherer, health HealthFunc, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Server{
		addr:     addr,
		gatherer: gatherer,
		health:   health,
		logger:   logger,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.health != nil {
		if err := s.health(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintln(w, err.Error())
			return
		}
	}
	_, _ = w.Write([]byte("ok\n"))
}

// Start binds the address and serves in the background. Bind errors are
// returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("telemetry server failed", log.String("addr", s.Addr()), log.Err(err))
		}
	}()

	s.logger.Info("telemetry server listening", log.String("addr", s.Addr()))
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server gracefully. It is a no-op before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown telemetry server: %w", err)
	}
	return nil
}
