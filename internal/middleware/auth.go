package middleware

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/thearchitectit/mcp-runtime/internal/auth"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
	"github.com/thearchitectit/mcp-runtime/internal/session"
)

// mcpSessionHeader is the header both the HTTP and Streamable-HTTP+SSE
// transports read/write to carry a session ID (§4.8).
const mcpSessionHeader = "Mcp-Session-Id"

// authenticate runs the auth-extractor step (§4.7 step 3): JWT Bearer,
// then session-ID header, then API key from Authorization Bearer/Basic or
// X-API-Key. The first candidate that validates wins; a method on the
// anonymous list short-circuits to success with a nil Context.
func (p *Pipeline) authenticate(ctx context.Context, req *protocol.Request, meta RequestMeta) (*auth.Context, *protocol.Error) {
	if p.cfg.AnonymousMethods[req.Method] {
		return nil, nil
	}

	if p.cfg.JWTManager == nil && p.cfg.APIKeyValidator == nil && p.cfg.Sessions == nil {
		// No authenticator configured at all: the operator deliberately
		// built a Pipeline with every auth dependency nil (dev profile,
		// stdio-only deployments), so this stage is a no-op rather than
		// a universal Unauthorized.
		return nil, nil
	}

	bearer, basicUser, basicPass := parseAuthorization(meta.HeaderOrEmpty("Authorization"))

	if bearer != "" && p.cfg.JWTManager != nil {
		if claims, err := p.cfg.JWTManager.Validate(bearer); err == nil {
			authCtx := claims.ToAuthContext()
			authCtx.ClientIP = meta.ClientIP
			return authCtx, nil
		}
	}

	if sessionID := meta.HeaderOrEmpty(mcpSessionHeader); sessionID != "" && p.cfg.Sessions != nil {
		if sess, err := p.cfg.Sessions.Validate(ctx, sessionID, true); err == nil {
			return authContextFromSession(sess, meta.ClientIP), nil
		}
	}

	if p.cfg.APIKeyValidator != nil {
		for _, candidate := range []string{bearer, basicPass, meta.HeaderOrEmpty("X-API-Key")} {
			if candidate == "" {
				continue
			}
			if authCtx, err := p.cfg.APIKeyValidator.Validate(ctx, candidate, meta.ClientIP); err == nil {
				return authCtx, nil
			}
		}
		_ = basicUser // credential lookup is by secret value, not username
	}

	return nil, protocol.NewError(protocol.CodeUnauthorized, "authentication required", nil)
}

// parseAuthorization splits an Authorization header into a bearer token
// (possibly empty) and HTTP Basic username/password (possibly empty).
func parseAuthorization(header string) (bearer, basicUser, basicPass string) {
	if header == "" {
		return "", "", ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", "", ""
	}
	switch strings.ToLower(parts[0]) {
	case "bearer":
		return strings.TrimSpace(parts[1]), "", ""
	case "basic":
		decoded := decodeBasicAuth(parts[1])
		if decoded == "" {
			return "", "", ""
		}
		if u, pw, ok := strings.Cut(decoded, ":"); ok {
			return "", u, pw
		}
		return "", "", ""
	default:
		return "", "", ""
	}
}

// decodeBasicAuth base64-decodes an HTTP Basic credential, returning "" on
// any malformed input rather than erroring — the caller treats an empty
// result as "no Basic credential presented".
func decodeBasicAuth(encoded string) string {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	return string(decoded)
}

// authContextFromSession reconstructs an auth.Context from the map a
// session stores its originating credential's identity in (populated by
// bindSession when a session is auto-created from a successful API-key
// auth).
func authContextFromSession(sess *session.Session, clientIP string) *auth.Context {
	authCtx := &auth.Context{SessionID: sess.ID, ClientIP: clientIP}
	if sess.AuthContext == nil {
		return authCtx
	}
	if v, ok := sess.AuthContext["userID"].(string); ok {
		authCtx.UserID = v
	}
	if v, ok := sess.AuthContext["apiKeyID"].(string); ok {
		authCtx.APIKeyID = v
	}
	if v, ok := sess.AuthContext["roles"].([]string); ok {
		authCtx.Roles = v
	}
	if v, ok := sess.AuthContext["permissions"].([]string); ok {
		authCtx.Permissions = v
	}
	return authCtx
}
