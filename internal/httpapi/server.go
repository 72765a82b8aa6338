// Package httpapi binds the memory façade to HTTP via echo. It trusts the
// gateway in front of it to authenticate callers and forward the verified
// identity in the X-Identity header; its own job is routing, shaping, and
// translating the error taxonomy into status codes.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/memoryd/internal/config"
	"github.com/fyrsmithlabs/memoryd/internal/logging"
	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

// IdentityHeader carries the upstream-verified caller identity. Requests
// without it are rejected; the service never derives identity from request
// bodies.
const IdentityHeader = "X-Identity"

// Server wraps echo with the memory routes.
type Server struct {
	echo   *echo.Echo
	svc    *memory.Service
	logger *logging.Logger
	cfg    config.ServerConfig
}

// NewServer builds the HTTP server around the façade.
func NewServer(svc *memory.Service, logger *logging.Logger, cfg config.ServerConfig) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("httpapi: memory service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("httpapi: logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := c.Request().Context()
			if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
				ctx = logging.WithRequestID(ctx, reqID)
			}
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			observeRequest(c.Request().Method, c.Path(), status, time.Since(start))
			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)))
			return err
		}
	})

	s := &Server{echo: e, svc: svc, logger: logger.Named("http"), cfg: cfg}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1/memory", s.requireIdentity)
	v1.POST("/index", s.handleIndex)
	v1.POST("/query", s.handleQuery)
	v1.POST("/summarize", s.handleSummarize)
	v1.POST("/entities", s.handleEntities)
	v1.DELETE("/chunks/:id", s.handleDelete)
}

// requireIdentity rejects requests without the gateway-set identity header.
func (s *Server) requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get(IdentityHeader) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing caller identity")
		}
		return next(c)
	}
}

func identity(c echo.Context) string {
	return c.Request().Header.Get(IdentityHeader)
}

// Echo exposes the underlying echo instance for tests and extra routes.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
