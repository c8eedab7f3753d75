// Package trigger exposes the workflow registry over HTTP.
//
// POST /v1/workflows/{name} takes a HAL trigger body such as
//
//	{"_links": {"account": {"href": "https://api/account/v1/accounts/1"}}}
//
// and runs the named transition against the linked resource. The response
// carries the run ID and the final representation, or an error with the
// fault code that ended the run.
package trigger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/roach88/hyperdash/internal/faults"
	"github.com/roach88/hyperdash/internal/hal"
	"github.com/roach88/hyperdash/internal/metrics"
	"github.com/roach88/hyperdash/internal/workflow"
)

// maxBodyBytes bounds trigger bodies.
const maxBodyBytes = 1 << 20

// shutdownTimeout bounds graceful shutdown once the context ends.
const shutdownTimeout = 30 * time.Second

// Runner runs named workflows. *workflow.Registry implements it.
type Runner interface {
	Trigger(ctx context.Context, name string, body []byte) (workflow.Result, error)
	Names() []string
}

// RunResponse is the body of a successful trigger.
type RunResponse struct {
	RunID    string             `json:"run_id"`
	Resource hal.Representation `json:"resource"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

// Server is the trigger HTTP server.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	metrics *metrics.Collector
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves the collector's registry at /metrics.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates a server for runner.
func New(runner Runner, opts ...Option) *Server {
	s := &Server{runner: runner}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))

	e.GET("/healthz", s.health)
	e.GET("/v1/workflows", s.listWorkflows)
	e.POST("/v1/workflows/:name", s.runWorkflow)
	e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))

	s.echo = e
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run listens on addr and serves until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx ends, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      s.echo,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("trigger server starting", "address", ln.Addr().String())
		serverErrors <- server.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("trigger server shutdown error", "error", err)
			return server.Close()
		}
		slog.Info("trigger server stopped")
		return nil
	}
}

// health reports liveness.
// (GET /healthz)
func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// listWorkflows returns the registered workflow names.
// (GET /v1/workflows)
func (s *Server) listWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"workflows": s.runner.Names()})
}

// runWorkflow runs one transition from a trigger body.
// (POST /v1/workflows/:name)
func (s *Server) runWorkflow(c echo.Context) error {
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes))
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "read body: " + err.Error()})
	}

	res, err := s.runner.Trigger(c.Request().Context(), c.Param("name"), body)
	if err != nil {
		return c.JSON(statusFor(err), ErrorResponse{
			Error: err.Error(),
			Code:  string(faults.CodeOf(err)),
			RunID: res.RunID,
		})
	}
	return c.JSON(http.StatusOK, RunResponse{RunID: res.RunID, Resource: res.Resource})
}

// statusFor maps a run failure to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrUnknownWorkflow):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTrigger):
		return http.StatusBadRequest
	case faults.IsPrecondition(err), faults.IsPostcondition(err):
		return http.StatusConflict
	case faults.IsTransport(err):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
