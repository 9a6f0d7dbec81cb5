// Package admin implements the out-of-band HTTP surface the framework
// exposes alongside its MCP transports: liveness/readiness health checks,
// Prometheus scraping, and version info. None of these routes speak
// JSON-RPC; they exist purely for operators and orchestrators (container
// health checks, scrape configs), generalized from the teacher's dual-port
// web/MCP split (internal/web/server.go's healthLive/healthReady/
// versionInfo/metrics routes) onto this framework's own dependencies
// (session manager, credential store, optional DB/cache) in place of the
// guardrail document/rule stores it originally checked.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/thearchitectit/mcp-runtime/internal/cache"
	"github.com/thearchitectit/mcp-runtime/internal/database"
	"github.com/thearchitectit/mcp-runtime/internal/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/session"
)

// Dependencies lists the optional components a readiness check inspects.
// A nil field is skipped rather than treated as a failure, since not every
// deployment wires a database or cache (e.g. the in-memory credential/
// session stores used in the development profile).
type Dependencies struct {
	DB       *database.DB
	Cache    *cache.Client
	Sessions *session.Manager

	HealthCheckTimeout time.Duration
}

// Server is the echo-backed admin HTTP surface.
type Server struct {
	echo    *echo.Echo
	srv     *http.Server
	deps    Dependencies
	version string
}

// NewServer builds the admin server. Call Start to bind and begin serving.
func NewServer(deps Dependencies, version string) *Server {
	if deps.HealthCheckTimeout == 0 {
		deps.HealthCheckTimeout = 3 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.CorrelationID())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.PanicRecovery())

	s := &Server{echo: e, deps: deps, version: version}

	e.GET("/health/live", s.healthLive)
	e.GET("/health/ready", s.healthReady)
	e.GET("/version", s.versionInfo)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Start binds addr and begins serving in the background.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{Addr: addr, Handler: s.echo}
	go func() {
		_ = s.srv.ListenAndServe()
	}()
	return nil
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

func (s *Server) versionInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version":   s.version,
		"service":   "mcp-runtime",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) healthLive(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// healthReady checks every wired dependency; any failure reports 503
// without naming which component failed, matching the teacher's policy of
// not leaking internal topology to an unauthenticated health probe.
func (s *Server) healthReady(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), s.deps.HealthCheckTimeout)
	defer cancel()

	if s.deps.DB != nil {
		if err := s.deps.DB.HealthCheck(ctx); err != nil {
			return s.notReady(c)
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.HealthCheck(ctx); err != nil {
			return s.notReady(c)
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) notReady(c echo.Context) error {
	return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
		"status":    "not ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
