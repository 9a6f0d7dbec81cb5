package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/metrics"
	"github.com/thearchitectit/mcp-runtime/internal/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
)

// mcpSessionHeader is the header every HTTP-family transport uses to
// carry a session ID (§4.8); it mirrors the identically-named unexported
// constant in internal/middleware, duplicated here since the two
// packages intentionally don't import each other's unexported names.
const mcpSessionHeader = "Mcp-Session-Id"

// HTTPConfig configures the plain HTTP transport (§4.8): one message per
// POST, no streaming.
type HTTPConfig struct {
	Addr            string
	Path            string
	MaxMessageSize  int64
	AllowedOrigins  []string
	RequireBearer   bool
	BearerToken     string
	ShutdownTimeout time.Duration
}

// HTTP implements the request/response (non-streaming) half of §4.8:
// POST /messages, body-size-limited, Origin-checked, returning the
// dispatcher's JSON-RPC response with HTTP 200 even for protocol-level
// errors (only transport-level problems like an oversized body or a
// rejected Origin get a non-200 status).
type HTTP struct {
	cfg    HTTPConfig
	engine *Engine
	srv    *http.Server
	echo   *echo.Echo
}

// NewHTTP builds an HTTP transport. Path defaults to "/messages" when
// empty.
func NewHTTP(engine *Engine, cfg HTTPConfig) *HTTP {
	if cfg.Path == "" {
		cfg.Path = "/messages"
	}
	return &HTTP{cfg: cfg, engine: engine}
}

func (h *HTTP) Start(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.RequestID())
	e.Use(middleware.CorrelationID())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.PanicRecovery())
	e.Use(echomw.BodyLimit(bodyLimitString(h.cfg.MaxMessageSize)))

	e.POST(h.cfg.Path, h.handleMessage)
	h.echo = e

	h.srv = &http.Server{Addr: h.cfg.Addr, Handler: e}
	go func() {
		if err := h.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http transport: serve failed", "error", err)
		}
	}()
	return nil
}

func (h *HTTP) handleMessage(c echo.Context) error {
	req := c.Request()

	if !middleware.OriginAllowed(req.Header.Get("Origin"), h.cfg.AllowedOrigins) {
		metrics.RecordRateLimitHit("origin", req.URL.Path)
		middleware.WriteForbiddenOrigin(c.Response())
		return nil
	}

	if h.cfg.RequireBearer {
		if authz := req.Header.Get("Authorization"); authz != "Bearer "+h.cfg.BearerToken || h.cfg.BearerToken == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "bearer token required")
		}
	}

	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read request body")
	}

	meta := middleware.RequestMeta{
		ClientIP:  c.RealIP(),
		Origin:    req.Header.Get("Origin"),
		UserAgent: req.UserAgent(),
		Headers:   req.Header,
	}

	result := h.engine.HandleMessage(req.Context(), raw, meta)
	if result.SessionID != "" {
		c.Response().Header().Set(mcpSessionHeader, result.SessionID)
	}
	if result.Body == nil {
		return c.NoContent(http.StatusAccepted)
	}
	return c.JSONBlob(http.StatusOK, result.Body)
}

func (h *HTTP) Stop(ctx context.Context) error {
	if h.srv == nil {
		return nil
	}
	return h.srv.Shutdown(ctx)
}

func (h *HTTP) HealthCheck(ctx context.Context) error {
	if h.srv == nil {
		return http.ErrServerClosed
	}
	return nil
}

func (h *HTTP) Broadcast(ctx context.Context, msg *protocol.Request) error {
	return ErrBroadcastUnsupported
}

// bodyLimitString renders a byte count as the string Echo's BodyLimit
// middleware expects ("10MB", etc). Echo parses plain byte counts too, so
// a numeric string with no unit is sufficient and avoids picking an
// arbitrary unit boundary.
func bodyLimitString(n int64) string {
	if n <= 0 {
		n = 10 << 20
	}
	return strconv.FormatInt(n, 10) + "B"
}
