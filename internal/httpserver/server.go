// Package httpserver exposes provider status, manual reset, test messages
// and Prometheus metrics over HTTP.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/tphakala/xferwatch/internal/logging"
	"github.com/tphakala/xferwatch/internal/monitor"
	"github.com/tphakala/xferwatch/internal/notification"
	"github.com/tphakala/xferwatch/internal/observability"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "64K"
)

// TransferStatus is the part of the transfer monitor the server reports.
type TransferStatus interface {
	Status() monitor.Status
}

var _ TransferStatus = (*monitor.TransferMonitor)(nil)

// Server is the status HTTP server.
type Server struct {
	echo       *echo.Echo
	listen     string
	registry   *notification.Registry
	dispatcher *notification.Dispatcher
	metrics    *observability.Metrics
	transfer   TransferStatus
	log        *slog.Logger
	startTime  time.Time
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithMetrics serves the metrics registry on /metrics and records request
// metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTransfer serves the monitor status on /api/v1/transfer.
func WithTransfer(t TransferStatus) Option {
	return func(s *Server) { s.transfer = t }
}

// New creates a server for the providers held by reg. Messages posted to
// /api/v1/notify go through d.
func New(listen string, reg *notification.Registry, d *notification.Dispatcher, opts ...Option) *Server {
	s := &Server{
		listen:     listen,
		registry:   reg,
		dispatcher: d,
		log:        logging.ForService("httpserver"),
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = readTimeout
	s.echo.Server.WriteTimeout = writeTimeout
	s.echo.Server.IdleTimeout = idleTimeout

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	// Recovery middleware - should be first
	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.log))
	if s.metrics != nil {
		s.echo.Use(newMetricsMiddleware(s.metrics.HTTP))
	}
	s.echo.Use(echomw.BodyLimit(bodyLimit))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	api := s.echo.Group("/api/v1")
	api.GET("/providers", s.listProviders)
	api.GET("/providers/:id", s.getProvider)
	api.POST("/providers/:id/reset", s.resetProvider)
	api.POST("/notify", s.notify)
	api.GET("/transfer", s.transferStatus)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx ends and then shuts the server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.listen, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	s.log.Info("status server starting", "address", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start("")
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	s.log.Info("status server stopped")
	return nil
}
