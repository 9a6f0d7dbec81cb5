package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/thearchitectit/mcp-runtime/internal/metrics"
)

// PanicRecovery recovers from a panic escaping an Echo route handler,
// grounded verbatim on the teacher's panicRecoveryMiddleware
// (internal/web/server.go). This sits at the HTTP routing layer; the JSON-RPC
// dispatch path has its own recovery in Pipeline.Handle so a panicking
// Backend call never escapes as a raw HTTP 500 either.
func PanicRecovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					httpErr, ok := r.(error)
					if !ok {
						httpErr = echo.NewHTTPError(http.StatusInternalServerError, r)
					}

					metrics.RecordPanic(c.Path())

					slog.Error("panic recovered",
						"error", httpErr,
						"path", c.Path(),
						"method", c.Request().Method,
						"correlation_id", c.Get("correlation_id"),
						"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
						"stack", string(debug.Stack()),
					)

					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()
			return next(c)
		}
	}
}
