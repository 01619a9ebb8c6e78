// Package http provides the HTTP API for loomd: goal submission, execution
// status, learning statistics, health, metrics, and the SSE event stream.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/loomlabs/loomd/internal/learning"
	"github.com/loomlabs/loomd/internal/logging"
	"github.com/loomlabs/loomd/internal/orchestrator"
)

// Server provides HTTP endpoints for loomd.
type Server struct {
	echo         *echo.Echo
	orchestrator *orchestrator.Orchestrator
	learner      *learning.Learner
	events       *EventStream
	logger       *zap.Logger
	config       *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server. events may be nil when the NATS mirror
// is disabled; the SSE endpoint then reports the capability unavailable.
func NewServer(orch *orchestrator.Orchestrator, learner *learning.Learner, events *EventStream, logger *zap.Logger, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8420}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestMetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			c.SetRequest(c.Request().WithContext(
				logging.WithRequestID(c.Request().Context(), requestID)))

			err := next(c)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", requestID),
			)
			return err
		}
	})

	s := &Server{
		echo:         e,
		orchestrator: orch,
		learner:      learner,
		events:       events,
		logger:       logger,
		config:       cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/goals", s.handleSubmitGoal)
	v1.GET("/status", s.handleSystemStatus)
	v1.GET("/status/:id", s.handleStatus)
	v1.GET("/stats", s.handleStats)
	v1.GET("/events", s.handleEvents)
}

// GoalRequest is the request body for POST /v1/goals.
type GoalRequest struct {
	Goal string `json:"goal"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleSubmitGoal runs the pipeline synchronously and returns the full
// execution result. An invalid draft is still a 200: the result carries the
// validation verdict.
func (s *Server) handleSubmitGoal(c echo.Context) error {
	var req GoalRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid goal request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.orchestrator.Execute(c.Request().Context(), req.Goal)
	if err != nil {
		if errors.Is(err, orchestrator.ErrEmptyGoal) {
			return echo.NewHTTPError(http.StatusBadRequest, "goal field is required")
		}
		s.logger.Error("pipeline execution error", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "pipeline execution failed")
	}
	return c.JSON(http.StatusOK, result)
}

// handleSystemStatus reports daemon readiness and the shared-memory summary.
func (s *Server) handleSystemStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.orchestrator.SystemStatus(c.Request().Context()))
}

func (s *Server) handleStatus(c echo.Context) error {
	result, err := s.orchestrator.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownExecution) {
			return echo.NewHTTPError(http.StatusNotFound, "unknown execution")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "status lookup failed")
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleStats(c echo.Context) error {
	if s.learner == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "learning is not enabled")
	}
	stats, err := s.learner.Stats(c.Request().Context())
	if err != nil {
		s.logger.Error("stats lookup failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "stats lookup failed")
	}
	return c.JSON(http.StatusOK, stats)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
