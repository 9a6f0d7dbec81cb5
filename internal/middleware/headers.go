package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SecurityHeaders sets the fixed security header set on every HTTP
// response, grounded verbatim on the teacher's securityHeadersMiddleware
// (internal/web/server.go) — unchanged since the header policy itself
// isn't protocol-specific.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			csp := "default-src 'self'; " +
				"script-src 'self'; " +
				"style-src 'self' 'unsafe-inline'; " +
				"img-src 'self' data:; " +
				"font-src 'self'; " +
				"connect-src 'self'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'; " +
				"form-action 'self'"

			h := c.Response().Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")

			return next(c)
		}
	}
}

// CorrelationID extracts or generates a correlation ID and propagates it
// both onto the response header and into the request context, generalized
// from the teacher's correlationIDMiddleware (internal/web/server.go).
func CorrelationID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()

			correlationID := req.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = res.Header().Get(echo.HeaderXRequestID)
			}
			res.Header().Set("X-Correlation-ID", correlationID)
			c.Set("correlation_id", correlationID)

			ctx := context.WithValue(req.Context(), correlationIDKey, correlationID)
			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}

type correlationIDContextKey string

const correlationIDKey correlationIDContextKey = "correlation_id"

// CorrelationIDFromContext retrieves the ID CorrelationID stamped onto
// ctx, falling back to "" when none is present (stdio requests, or a test
// context).
func CorrelationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}

// OriginAllowed reports whether origin is permitted under allowlist.
// An empty allowlist means no enforcement (allow everything); otherwise
// an empty origin is treated as disallowed when enforcement is on, since
// browser clients always send Origin (§4.8 GET /mcp Origin handling).
func OriginAllowed(origin string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	if origin == "" {
		return false
	}
	for _, allowed := range allowlist {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// WriteForbiddenOrigin writes the 403 + JSON-RPC InvalidRequest body the
// spec requires when Origin validation rejects a GET /mcp or GET /sse
// stream request (§4.8), without opening the stream.
func WriteForbiddenOrigin(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","error":{"code":-32600,"message":"Forbidden: Invalid Origin header"},"id":null}`))
}
