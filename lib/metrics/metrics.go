// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/splicebridge/lib/version"
)

// NewRegistry returns a registry carrying the Go runtime and process
// collectors plus a splice_build_info gauge.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "splice_build_info",
		Help:        "Build version of the running splice-bridge.",
		ConstLabels: prometheus.Labels{"version": version.Info()},
	})
	buildInfo.Set(1)
	registry.MustRegister(buildInfo)
	return registry
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address is the TCP listen address, e.g. ":9464". Required.
	Address string

	// Gatherer is exposed on /metrics. Required.
	Gatherer prometheus.Gatherer

	// ShutdownTimeout defaults to 5 seconds.
	ShutdownTimeout time.Duration

	// Logger is required.
	Logger *slog.Logger
}

// Server serves /metrics over HTTP.
type Server struct {
	address         string
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          *slog.Logger

	// ready is closed once the listener is bound; addr is valid after.
	ready chan struct{}
	addr  net.Addr
}

// NewServer validates config.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("metrics: Address is required")
	}
	if config.Gatherer == nil {
		return nil, fmt.Errorf("metrics: Gatherer is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("metrics: Logger is required")
	}
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(config.Logger.Handler(), slog.LevelError),
	}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "ok\n")
	})

	return &Server{
		address:         config.Address,
		handler:         mux,
		shutdownTimeout: timeout,
		logger:          config.Logger,
		ready:           make(chan struct{}),
	}, nil
}

// Ready is closed once the server is accepting connections.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address. Valid after Ready is closed.
func (s *Server) Addr() net.Addr { return s.addr }

// Serve listens and serves until ctx is cancelled, then waits up to
// the shutdown timeout for in-flight scrapes.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("metrics server listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown: %w", err)
	}
	s.logger.Info("metrics server stopped")
	return nil
}
