package middleware

import (
	"context"
	"errors"

	"github.com/thearchitectit/mcp-runtime/internal/auth"
	"github.com/thearchitectit/mcp-runtime/internal/protocol"
	"github.com/thearchitectit/mcp-runtime/internal/session"
)

// bindSession implements the session-binder step (§4.7 step 4): if the
// request already carries a session header, bind (and extend) that
// session; else, when auto-create is enabled and auth succeeded via
// API-key, mint a new session carrying the credential's identity so a
// subsequent request bearing the returned session header authenticates
// without resending the API key.
func (p *Pipeline) bindSession(ctx context.Context, meta RequestMeta, authCtx *auth.Context) (*session.Session, bool, *protocol.Error) {
	if p.cfg.Sessions == nil {
		return nil, false, nil
	}

	if sessionID := meta.HeaderOrEmpty(mcpSessionHeader); sessionID != "" {
		sess, err := p.cfg.Sessions.Validate(ctx, sessionID, true)
		if err == nil {
			return sess, false, nil
		}
		if errors.Is(err, session.ErrExpired) {
			return nil, false, protocol.NewError(protocol.CodeSessionExpired, "session expired", nil)
		}
		return nil, false, protocol.NewError(protocol.CodeSessionNotFound, "session not found", nil)
	}

	if !p.cfg.SessionAutoCreate || authCtx == nil || authCtx.APIKeyID == "" {
		return nil, false, nil
	}

	sess, err := p.cfg.Sessions.Create(ctx, authCtx.UserID, p.cfg.SessionTTL, meta.ClientIP, meta.UserAgent)
	if err != nil {
		if errors.Is(err, session.ErrCapacityExceeded) {
			return nil, false, protocol.NewError(protocol.CodeCapacityExceeded, "session capacity exceeded", nil)
		}
		return nil, false, protocol.NewError(protocol.CodeInternalError, "internal error", nil)
	}
	authData := map[string]interface{}{
		"userID":      authCtx.UserID,
		"apiKeyID":    authCtx.APIKeyID,
		"roles":       authCtx.Roles,
		"permissions": authCtx.Permissions,
	}
	if err := p.cfg.Sessions.SetAuthContext(ctx, sess.ID, authData); err != nil {
		return nil, false, protocol.NewError(protocol.CodeInternalError, "internal error", nil)
	}
	sess.AuthContext = authData
	return sess, true, nil
}
