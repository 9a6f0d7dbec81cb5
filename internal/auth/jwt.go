package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Algorithm enumerates the signing algorithms the JWT manager accepts,
// mirroring original_source/mcp-auth/src/jwt.rs's JwtConfig algorithm
// choices.
type Algorithm string

const (
	AlgHS256 Algorithm = "HS256"
	AlgHS384 Algorithm = "HS384"
	AlgHS512 Algorithm = "HS512"
	AlgRS256 Algorithm = "RS256"
	AlgRS384 Algorithm = "RS384"
	AlgRS512 Algorithm = "RS512"
	AlgES256 Algorithm = "ES256"
	AlgES384 Algorithm = "ES384"
)

// TokenType distinguishes an access token from a refresh token from a
// one-off authorization token (§3 AccessToken).
type TokenType string

const (
	TokenTypeAccess        TokenType = "access"
	TokenTypeRefresh       TokenType = "refresh"
	TokenTypeAuthorization TokenType = "authorization"
)

// Claims is the JWT payload, matching jwt.rs's TokenClaims field-for-field
// (iss/sub/aud/exp/nbf/iat/jti come from jwt.RegisteredClaims).
type Claims struct {
	jwt.RegisteredClaims
	Roles     []string  `json:"roles,omitempty"`
	KeyID     string    `json:"key_id,omitempty"`
	ClientIP  string    `json:"client_ip,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Scope     []string  `json:"scope,omitempty"`
	TokenType TokenType `json:"token_type"`
}

// JWTConfig configures a Manager. Exactly one of Secret (HMAC) or
// PrivateKey/PublicKey (RSA/ECDSA) should be set, matching Algorithm.
type JWTConfig struct {
	Algorithm            Algorithm
	Secret               []byte
	PrivateKey           interface{} // *rsa.PrivateKey or *ecdsa.PrivateKey
	PublicKey            interface{} // *rsa.PublicKey or *ecdsa.PublicKey
	Issuer               string
	Audience             []string
	AccessTokenLifetime  time.Duration
	RefreshTokenLifetime time.Duration
	EnableBlacklist      bool
}

// DefaultJWTConfig mirrors JwtConfig::default() in jwt.rs: HS256, issuer
// "pulseengine-mcp-auth", audience ["mcp-server"], 1h access / 7d refresh,
// blacklist enabled. The insecure default secret must be overridden before
// production use (enforced by internal/config's profile validation).
func DefaultJWTConfig() JWTConfig {
	return JWTConfig{
		Algorithm:            AlgHS256,
		Secret:               []byte("development-only-insecure-secret-please-change"),
		Issuer:               "pulseengine-mcp-auth",
		Audience:             []string{"mcp-server"},
		AccessTokenLifetime:  time.Hour,
		RefreshTokenLifetime: 7 * 24 * time.Hour,
		EnableBlacklist:      true,
	}
}

// blacklistEntry tracks a revoked jti alongside the exp it would have
// carried, so CleanupBlacklist can evict only entries that have actually
// expired instead of clearing the whole blacklist — the known gap in
// jwt.rs's cleanup_blacklist (§4.5 "Improvement over the original").
type blacklistEntry struct {
	expiresAt time.Time
}

// Manager issues and validates JWTs per JWTConfig.
type Manager struct {
	cfg    JWTConfig
	method jwt.SigningMethod

	mu        sync.RWMutex
	blacklist map[string]blacklistEntry
}

// NewManager builds a Manager, selecting the concrete jwt.SigningMethod
// for cfg.Algorithm.
func NewManager(cfg JWTConfig) (*Manager, error) {
	method, err := signingMethodFor(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	return &Manager{cfg: cfg, method: method, blacklist: make(map[string]blacklistEntry)}, nil
}

func signingMethodFor(alg Algorithm) (jwt.SigningMethod, error) {
	switch alg {
	case AlgHS256:
		return jwt.SigningMethodHS256, nil
	case AlgHS384:
		return jwt.SigningMethodHS384, nil
	case AlgHS512:
		return jwt.SigningMethodHS512, nil
	case AlgRS256:
		return jwt.SigningMethodRS256, nil
	case AlgRS384:
		return jwt.SigningMethodRS384, nil
	case AlgRS512:
		return jwt.SigningMethodRS512, nil
	case AlgES256:
		return jwt.SigningMethodES256, nil
	case AlgES384:
		return jwt.SigningMethodES384, nil
	default:
		return nil, errors.New("auth: unknown jwt algorithm")
	}
}

func (m *Manager) signingKey() (interface{}, error) {
	switch m.method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(m.cfg.Secret) == 0 {
			return nil, errors.New("auth: hmac secret not configured")
		}
		return m.cfg.Secret, nil
	case *jwt.SigningMethodRSA:
		key, ok := m.cfg.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("auth: rsa private key not configured")
		}
		return key, nil
	case *jwt.SigningMethodECDSA:
		key, ok := m.cfg.PrivateKey.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("auth: ecdsa private key not configured")
		}
		return key, nil
	default:
		return nil, errors.New("auth: unsupported signing method")
	}
}

func (m *Manager) verifyKey() (interface{}, error) {
	switch m.method.(type) {
	case *jwt.SigningMethodHMAC:
		return m.cfg.Secret, nil
	case *jwt.SigningMethodRSA:
		if m.cfg.PublicKey != nil {
			return m.cfg.PublicKey, nil
		}
		key, ok := m.cfg.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("auth: rsa public key not configured")
		}
		return &key.PublicKey, nil
	case *jwt.SigningMethodECDSA:
		if m.cfg.PublicKey != nil {
			return m.cfg.PublicKey, nil
		}
		key, ok := m.cfg.PrivateKey.(*ecdsa.PrivateKey)
		if !ok {
			return nil, errors.New("auth: ecdsa public key not configured")
		}
		return &key.PublicKey, nil
	default:
		return nil, errors.New("auth: unsupported signing method")
	}
}

func (m *Manager) issue(claims Claims) (string, error) {
	key, err := m.signingKey()
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(m.method, claims)
	return token.SignedString(key)
}

// IssueAccess mints an access token. keyID, clientIP, and sessionID are
// optional (empty string omits the claim).
func (m *Manager) IssueAccess(subject string, roles []string, keyID, clientIP, sessionID string, scope []string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(m.cfg.Audience),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTokenLifetime)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Roles:     roles,
		KeyID:     keyID,
		ClientIP:  clientIP,
		SessionID: sessionID,
		Scope:     scope,
		TokenType: TokenTypeAccess,
	}
	return m.issue(claims)
}

// IssueRefresh mints a refresh token, carrying no roles and a fixed
// scope of ["refresh"] (§4.5).
func (m *Manager) IssueRefresh(subject, keyID, sessionID string) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(m.cfg.Audience),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.RefreshTokenLifetime)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		KeyID:     keyID,
		SessionID: sessionID,
		Scope:     []string{"refresh"},
		TokenType: TokenTypeRefresh,
	}
	return m.issue(claims)
}

// TokenPair is the result of IssuePair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int64
	Scope        []string
}

// IssuePair mints an access+refresh token pair for subject.
func (m *Manager) IssuePair(subject string, roles []string, keyID, clientIP, sessionID string, scope []string) (*TokenPair, error) {
	access, err := m.IssueAccess(subject, roles, keyID, clientIP, sessionID, scope)
	if err != nil {
		return nil, err
	}
	refresh, err := m.IssueRefresh(subject, keyID, sessionID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(m.cfg.AccessTokenLifetime.Seconds()),
		Scope:        scope,
	}, nil
}

// Validate parses and verifies tokenString, returning typed errors for
// each distinct failure mode the spec requires (§4.5).
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	key, err := m.verifyKey()
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, errors.New("auth: unexpected signing method")
		}
		return key, nil
	}, jwt.WithIssuer(m.cfg.Issuer))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrNotYetValid
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrAudienceMismatch
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		default:
			return nil, ErrMalformed
		}
	}
	if !token.Valid {
		return nil, ErrInvalid
	}

	if !audienceMatches(claims.Audience, m.cfg.Audience) {
		return nil, ErrAudienceMismatch
	}

	if m.cfg.EnableBlacklist && m.isBlacklisted(claims.ID) {
		return nil, ErrRevoked
	}

	return claims, nil
}

// ToAuthContext derives an auth.Context from validated claims, the only
// path by which a Context is built from a token (§3 AuthContext).
func (c *Claims) ToAuthContext() *Context {
	return &Context{
		UserID:      c.Subject,
		APIKeyID:    c.KeyID,
		Roles:       c.Roles,
		Permissions: permissionsForRoles(c.Roles),
		SessionID:   c.SessionID,
		ClientIP:    c.ClientIP,
	}
}

func permissionsForRoles(roles []string) []string {
	var perms []string
	for _, r := range roles {
		perms = append(perms, PermissionsForRole(roleFromString(r), nil)...)
	}
	return perms
}

// Refresh validates refreshToken (must be TokenTypeRefresh) and mints a
// fresh access token carrying newRoles/clientIP/scope.
func (m *Manager) Refresh(refreshToken string, newRoles []string, clientIP string, scope []string) (string, error) {
	claims, err := m.Validate(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenTypeRefresh {
		return "", ErrWrongTokenType
	}
	return m.IssueAccess(claims.Subject, newRoles, claims.KeyID, clientIP, claims.SessionID, scope)
}

// Revoke adds tokenString's jti to the blacklist. Returns
// ErrBlacklistDisabled if blacklisting is off.
func (m *Manager) Revoke(tokenString string) error {
	if !m.cfg.EnableBlacklist {
		return ErrBlacklistDisabled
	}
	claims, err := m.Validate(tokenString)
	if err != nil && !errors.Is(err, ErrRevoked) {
		return err
	}
	exp := time.Now().UTC().Add(m.cfg.RefreshTokenLifetime)
	if claims != nil && claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	jti := ""
	if claims != nil {
		jti = claims.ID
	}
	m.blacklist[jti] = blacklistEntry{expiresAt: exp}
	return nil
}

// audienceMatches reports whether got shares at least one entry with want.
// An empty want list is treated as "no audience restriction configured".
func audienceMatches(got jwt.ClaimStrings, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, g := range got {
			if g == w {
				return true
			}
		}
	}
	return false
}

func (m *Manager) isBlacklisted(jti string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blacklist[jti]
	return ok
}

// CleanupBlacklist evicts blacklist entries whose underlying token has
// already expired, rather than clearing the whole blacklist (the
// documented improvement over jwt.rs's cleanup_blacklist).
func (m *Manager) CleanupBlacklist() {
	now := time.Now().UTC()
	m.mu.Lock()
	defer m.mu.Unlock()
	for jti, entry := range m.blacklist {
		if now.After(entry.expiresAt) {
			delete(m.blacklist, jti)
		}
	}
}
