package config

import "time"

// RateLimitSettings mirrors the permissive/moderate/strict presets from the
// original security-profile middleware.
type RateLimitSettings struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

func rateLimitPermissive() RateLimitSettings {
	return RateLimitSettings{Enabled: false, MaxRequests: 10000, Window: time.Minute}
}

func rateLimitModerate() RateLimitSettings {
	return RateLimitSettings{Enabled: true, MaxRequests: 1000, Window: time.Minute}
}

func rateLimitStrict() RateLimitSettings {
	return RateLimitSettings{Enabled: true, MaxRequests: 100, Window: time.Minute}
}

// CORSSettings mirrors the permissive/localhost_only/strict presets.
type CORSSettings struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

func corsPermissive() CORSSettings {
	return CORSSettings{AllowedOrigins: []string{"*"}, AllowCredentials: false}
}

func corsLocalhostOnly() CORSSettings {
	return CORSSettings{
		AllowedOrigins: []string{"http://localhost:*", "https://localhost:*", "http://127.0.0.1:*"},
	}
}

func corsStrict() CORSSettings {
	return CORSSettings{AllowedOrigins: []string{}, AllowCredentials: false}
}

// SecuritySettings is the bundle of defaults a profile resolves to, mirroring
// the original SecuritySettings struct (require_authentication, require_https,
// enable_audit_logging, jwt_expiry_seconds, rate_limit, cors, auto_generate_keys,
// validate_token_audience).
type SecuritySettings struct {
	RequireAuthentication bool
	RequireHTTPS          bool
	EnableAuditLogging    bool
	JWTExpirySeconds      int
	RateLimit             RateLimitSettings
	CORS                  CORSSettings
	AutoGenerateKeys      bool
	ValidateTokenAudience bool
}

// SettingsForProfile resolves a SecurityProfile to its concrete defaults.
// Custom resolves to the same baseline as Development since every field is
// expected to be overridden explicitly by the operator.
func SettingsForProfile(p SecurityProfile) SecuritySettings {
	switch p {
	case ProfileDevelopment:
		return SecuritySettings{
			RequireAuthentication: false,
			RequireHTTPS:          false,
			EnableAuditLogging:    false,
			JWTExpirySeconds:      86400,
			RateLimit:             rateLimitPermissive(),
			CORS:                  corsPermissive(),
			AutoGenerateKeys:      true,
			ValidateTokenAudience: false,
		}
	case ProfileStaging:
		return SecuritySettings{
			RequireAuthentication: true,
			RequireHTTPS:          true,
			EnableAuditLogging:    true,
			JWTExpirySeconds:      3600,
			RateLimit:             rateLimitModerate(),
			CORS:                  corsLocalhostOnly(),
			AutoGenerateKeys:      false,
			ValidateTokenAudience: true,
		}
	case ProfileProduction:
		return SecuritySettings{
			RequireAuthentication: true,
			RequireHTTPS:          true,
			EnableAuditLogging:    true,
			JWTExpirySeconds:      900,
			RateLimit:             rateLimitStrict(),
			CORS:                  corsStrict(),
			AutoGenerateKeys:      false,
			ValidateTokenAudience: true,
		}
	default: // ProfileCustom
		return SecuritySettings{
			RequireAuthentication: true,
			RequireHTTPS:          true,
			EnableAuditLogging:    true,
			JWTExpirySeconds:      3600,
			RateLimit:             rateLimitModerate(),
			CORS:                  corsStrict(),
			AutoGenerateKeys:      false,
		}
	}
}

// Validate checks settings for internally inconsistent combinations, mirroring
// the original SecuritySettings::validate.
func (s SecuritySettings) Validate() error {
	if s.CORS.AllowCredentials && containsWildcard(s.CORS.AllowedOrigins) && s.RequireHTTPS {
		return errWildcardCredentials
	}
	if s.JWTExpirySeconds < 60 {
		return errJWTExpiryTooShort
	}
	return nil
}

var (
	errWildcardCredentials = profileError("cannot allow credentials with wildcard CORS origin under HTTPS")
	errJWTExpiryTooShort   = profileError("jwt expiry must be at least 60 seconds")
)

type profileError string

func (e profileError) Error() string { return string(e) }
