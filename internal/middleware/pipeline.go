// Package middleware implements the transport-agnostic request pipeline
// (§4.7): security validation, rate limiting, authentication, session
// binding, and monitoring, wrapped around the dispatcher's handler
// invocation. internal/middleware/logging.go carries the teacher's
// Echo-bound request logger, reused directly by the HTTP/SSE transports;
// this file is the part of the chain every transport (including stdio,
// which has no Echo context) drives identically.
package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/thearchitectit/mcp-runtime/internal/audit"
	"github.com/thearchitectit/mcp-runtime/internal/auth"
	"github.com/thearchitectit/mcp-runtime/internal/metrics"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
	"github.com/thearchitectit/mcp-runtime/internal/security"
	"github.com/thearchitectit/mcp-runtime/internal/session"
)

// RequestMeta carries the transport-level facts the pipeline needs that
// aren't part of the JSON-RPC envelope itself: who's calling and over
// which headers. Stdio populates only ClientIP ("stdio"); HTTP/SSE
// populate Headers from the real request.
type RequestMeta struct {
	ClientIP  string
	Origin    string
	UserAgent string
	Headers   http.Header
}

// HeaderOrEmpty is a nil-safe header lookup, since stdio's RequestMeta
// carries a nil Headers map.
func (m RequestMeta) HeaderOrEmpty(key string) string {
	if m.Headers == nil {
		return ""
	}
	return m.Headers.Get(key)
}

// Outcome is everything the transport needs out of a completed pipeline
// run beyond the JSON-RPC response itself: the session ID to stamp onto
// a response header when one was created during this call, and whether
// the call should count as an error for logging/metrics purposes.
type Outcome struct {
	Response     *protocol.Response
	SessionID    string
	NewSession   bool
	AuthContext  *auth.Context
	Duration     time.Duration
	IsError      bool
}

// Handler is the terminal step of the pipeline: the dispatcher's Dispatch
// method, or anything with the same shape (tests substitute a stub).
type Handler func(ctx context.Context, req *protocol.Request) *protocol.Response

// Config configures a Pipeline. Nil JWTManager/APIKeyValidator/Sessions
// disable that stage rather than erroring, so a stdio-only deployment
// with auth disabled can build a Pipeline with zero auth dependencies.
type Config struct {
	MaxMessageSize   int
	RateLimit        RateLimitConfig
	JWTManager       *auth.Manager
	APIKeyValidator  *auth.APIKeyValidator
	Sessions         *session.Manager
	SessionTTL       time.Duration
	SessionAutoCreate bool
	AnonymousMethods map[string]bool
	AuditLogger      *audit.Logger
}

// DefaultAnonymousMethods is the method set the spec names as bypassing
// auth (§4.7): `initialize` and `ping`.
func DefaultAnonymousMethods() map[string]bool {
	return map[string]bool{"initialize": true, "ping": true}
}

// Pipeline drives the ordered middleware chain around a Handler.
type Pipeline struct {
	cfg     Config
	limiter *rateLimiterSet
}

// New builds a Pipeline. Call Stop when done to release the rate
// limiter's idle-eviction goroutine.
func New(cfg Config) *Pipeline {
	if cfg.AnonymousMethods == nil {
		cfg.AnonymousMethods = DefaultAnonymousMethods()
	}
	p := &Pipeline{cfg: cfg}
	if cfg.RateLimit.Enabled {
		p.limiter = newRateLimiterSet(cfg.RateLimit)
	}
	return p
}

// Stop releases background resources (the rate limiter's eviction
// sweeper). Safe to call on a Pipeline with rate limiting disabled.
func (p *Pipeline) Stop() {
	if p.limiter != nil {
		p.limiter.stop()
	}
}

// Handle runs raw through the security validator, then req through rate
// limiting, auth, session binding, and monitoring around a call to next.
// Panics escaping next are recovered and turned into an InternalError
// response rather than killing the transport's accept loop — this is the
// "panic recovery at the transport boundary" step of §4.7, made reusable
// across all three transports rather than being Echo-only like the
// teacher's panicRecoveryMiddleware.
func (p *Pipeline) Handle(ctx context.Context, raw []byte, meta RequestMeta, req *protocol.Request, next Handler) (out Outcome) {
	start := time.Now()
	defer func() {
		out.Duration = time.Since(start)
		if r := recover(); r != nil {
			metrics.RecordPanic(req.Method)
			out.Response = protocol.NewErrorResponse(req.ID, protocol.NewError(
				protocol.CodeInternalError, "internal error", nil))
			out.IsError = true
			_ = debug.Stack()
		}
	}()

	if err := security.ValidateRequestSize(len(raw), p.cfg.MaxMessageSize); err != nil {
		out.Response = protocol.NewErrorResponse(req.ID, protocol.NewError(protocol.CodeInvalidRequest, err.Error(), nil))
		out.IsError = true
		return out
	}
	if security.ContainsControlChars(req.Method) {
		out.Response = protocol.NewErrorResponse(req.ID, protocol.NewError(
			protocol.CodeInvalidRequest, "method contains disallowed control characters", nil))
		out.IsError = true
		return out
	}

	if p.limiter != nil {
		key := meta.ClientIP
		if key == "" {
			key = "unknown"
		}
		if !p.limiter.allow(key) {
			metrics.RecordRateLimitHit("ip", req.Method)
			out.Response = protocol.NewErrorResponse(req.ID, protocol.NewError(
				protocol.CodeRateLimited, "rate limit exceeded", nil))
			out.IsError = true
			return out
		}
	}

	authCtx, authErr := p.authenticate(ctx, req, meta)
	if authErr != nil {
		out.Response = protocol.NewErrorResponse(req.ID, authErr)
		out.IsError = true
		return out
	}
	out.AuthContext = authCtx

	sess, newSession, sessErr := p.bindSession(ctx, meta, authCtx)
	if sessErr != nil {
		out.Response = protocol.NewErrorResponse(req.ID, sessErr)
		out.IsError = true
		return out
	}
	if sess != nil {
		out.SessionID = sess.ID
		out.NewSession = newSession
		if authCtx != nil {
			authCtx.SessionID = sess.ID
		}
	}

	callCtx := ctx
	if authCtx != nil {
		callCtx = withAuthContext(ctx, authCtx)
	}

	resp := next(callCtx, req)
	out.Response = resp
	out.IsError = resp != nil && resp.Error != nil
	return out
}

type contextKey string

const authContextKey contextKey = "mcp-auth-context"

func withAuthContext(ctx context.Context, authCtx *auth.Context) context.Context {
	return context.WithValue(ctx, authContextKey, authCtx)
}

// FromContext retrieves the auth.Context a pipeline run bound onto ctx,
// letting a Backend implementation enforce its own per-tool permission
// checks via Context.HasPermission.
func FromContext(ctx context.Context) (*auth.Context, bool) {
	v, ok := ctx.Value(authContextKey).(*auth.Context)
	return v, ok
}
