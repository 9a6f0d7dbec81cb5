package auth

import (
	"context"
	"errors"
	"time"

	"github.com/thearchitectit/mcp-runtime/internal/credential"
)

// APIKeyValidator authenticates a presented secret against a credential
// store. Generalized from the teacher's two-key (MCP/IDE) comparison in
// internal/web/middleware.go's APIKeyAuth into an arbitrary credential
// store lookup, while keeping the same constant-time-compare-on-hash
// shape (credential.Credential.Matches uses crypto/subtle underneath).
type APIKeyValidator struct {
	store credential.Store
}

// NewAPIKeyValidator wraps a credential store for API-key validation.
func NewAPIKeyValidator(store credential.Store) *APIKeyValidator {
	return &APIKeyValidator{store: store}
}

// Validate locates the credential matching secret, checks it is active
// and, when clientIP is non-empty, that it passes the credential's IP
// whitelist. It returns an auth.Context derived from the credential.
func (v *APIKeyValidator) Validate(ctx context.Context, secret string, clientIP string) (*Context, error) {
	if secret == "" {
		return nil, ErrMissing
	}

	cred, err := v.store.Lookup(ctx, secret)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrInvalid
		}
		return nil, err
	}

	if err := cred.Active(time.Now().UTC()); err != nil {
		switch {
		case errors.Is(err, credential.ErrRevoked):
			return nil, ErrInvalid
		case errors.Is(err, credential.ErrExpired):
			return nil, ErrExpired
		case errors.Is(err, credential.ErrDisabled):
			return nil, ErrDisabled
		default:
			return nil, ErrInvalid
		}
	}

	if clientIP != "" && !cred.AllowsIP(clientIP) {
		return nil, ErrIPNotAllowed
	}

	roles := []string{string(cred.Role)}
	return &Context{
		APIKeyID:    cred.ID,
		Roles:       roles,
		Permissions: PermissionsForRole(cred.Role, cred.Permissions),
		ClientIP:    clientIP,
	}, nil
}
