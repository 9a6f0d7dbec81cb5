package config

import (
	"fmt"
	"math/bits"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// SchemaVersion tracks the configuration schema version for migrations
const SchemaVersion = "1.0"

// SecurityProfile selects a bundle of security defaults.
type SecurityProfile string

const (
	ProfileDevelopment SecurityProfile = "development"
	ProfileStaging     SecurityProfile = "staging"
	ProfileProduction  SecurityProfile = "production"
	ProfileCustom      SecurityProfile = "custom"
)

// ParseSecurityProfile accepts the long form and the short aliases used in
// operator documentation ("dev", "stage", "prod").
func ParseSecurityProfile(s string) (SecurityProfile, error) {
	switch strings.ToLower(s) {
	case "development", "dev":
		return ProfileDevelopment, nil
	case "staging", "stage":
		return ProfileStaging, nil
	case "production", "prod":
		return ProfileProduction, nil
	case "custom":
		return ProfileCustom, nil
	default:
		return "", fmt.Errorf("unknown security profile %q", s)
	}
}

// Config holds all application configuration.
type Config struct {
	// Schema Version (for config migration tracking)
	SchemaVersion string `env:"CONFIG_SCHEMA_VERSION" envDefault:"1.0"`

	// Server Configuration
	ServerName     string        `env:"MCP_SERVER_NAME" envDefault:"mcp-runtime"`
	ServerVersion  string        `env:"MCP_SERVER_VERSION" envDefault:"0.1.0"`
	MCPPort        int           `env:"MCP_PORT" envDefault:"8080"`
	AdminPort      int           `env:"MCP_ADMIN_PORT" envDefault:"8081"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// Graceful Shutdown Configuration
	ShutdownTimeout time.Duration `env:"MCP_SHUTDOWN_TIMEOUT_SECS" envDefault:"30s"`

	// Transport selection
	EnableStdio    bool `env:"MCP_ENABLE_STDIO" envDefault:"false"`
	EnableHTTP     bool `env:"MCP_ENABLE_HTTP" envDefault:"true"`
	EnableSSE      bool `env:"MCP_ENABLE_SSE" envDefault:"true"`
	MaxMessageSize int64 `env:"MCP_MAX_MESSAGE_SIZE" envDefault:"10485760"`
	SSERetryMs     int   `env:"MCP_SSE_RETRY_MS" envDefault:"3000"`
	SSEResumable   bool  `env:"MCP_SSE_RESUMABLE" envDefault:"true"`

	// Security profile
	SecurityProfile        string   `env:"MCP_SECURITY_PROFILE" envDefault:"development"`
	RequireAuth            bool     `env:"MCP_REQUIRE_AUTH" envDefault:"false"`
	RequireHTTPS           bool     `env:"MCP_REQUIRE_HTTPS" envDefault:"false"`
	AutoGenerateKeys       bool     `env:"MCP_AUTO_GENERATE_KEYS" envDefault:"true"`
	ValidateTokenAudience  bool     `env:"MCP_VALIDATE_TOKEN_AUDIENCE" envDefault:"false"`
	EnforceOriginValidation bool    `env:"MCP_ENFORCE_ORIGIN_VALIDATION" envDefault:"false"`
	AllowedOrigins         []string `env:"MCP_ALLOWED_ORIGINS" envSeparator:","`

	// CORS Configuration
	CORSAllowedOrigins []string `env:"MCP_CORS_ORIGIN" envDefault:"*" envSeparator:","`
	CORSAllowedMethods []string `env:"CORS_ALLOWED_METHODS" envDefault:"GET,POST,PUT,DELETE,OPTIONS" envSeparator:","`
	CORSAllowedHeaders []string `env:"CORS_ALLOWED_HEADERS" envDefault:"Authorization,Content-Type,X-Request-ID,Mcp-Session-Id" envSeparator:","`
	CORSAllowCredentials bool   `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`
	CORSMaxAge         int      `env:"CORS_MAX_AGE" envDefault:"86400"`

	// Profiling Configuration
	PProfEnabled bool `env:"PPROF_ENABLED" envDefault:"false"`
	PProfPort    int  `env:"PPROF_PORT" envDefault:"6060"`

	// Health Check Configuration
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"3s"`

	// Database Configuration (credential / session SQL store)
	DBHost            string        `env:"MCP_DB_HOST" envDefault:"localhost"`
	DBPort            int           `env:"MCP_DB_PORT" envDefault:"5432"`
	DBName            string        `env:"MCP_DB_NAME" envDefault:"mcpruntime"`
	DBUser            string        `env:"MCP_DB_USER"`
	DBPassword        string        `env:"MCP_DB_PASSWORD"`
	DBSSLMode         string        `env:"MCP_DB_SSLMODE" envDefault:"require"`
	DBConnectTimeout  time.Duration `env:"MCP_DB_CONNECT_TIMEOUT" envDefault:"10s"`
	DBMaxOpenConns    int           `env:"MCP_DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"MCP_DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"MCP_DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"MCP_DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`

	// Redis Configuration (session / rate-limit store)
	RedisEnabled      bool          `env:"MCP_REDIS_ENABLED" envDefault:"false"`
	RedisHost         string        `env:"MCP_REDIS_HOST" envDefault:"localhost"`
	RedisPort         int           `env:"MCP_REDIS_PORT" envDefault:"6379"`
	RedisPassword     string        `env:"MCP_REDIS_PASSWORD"`
	RedisUseTLS       bool          `env:"MCP_REDIS_USE_TLS" envDefault:"false"`
	RedisDB           int           `env:"MCP_REDIS_DB" envDefault:"0"`
	RedisPoolSize     int           `env:"MCP_REDIS_POOL_SIZE" envDefault:"10"`
	RedisMinIdleConns int           `env:"MCP_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	RedisMaxRetries   int           `env:"MCP_REDIS_MAX_RETRIES" envDefault:"3"`
	RedisDialTimeout  time.Duration `env:"MCP_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	RedisReadTimeout  time.Duration `env:"MCP_REDIS_READ_TIMEOUT" envDefault:"3s"`

	// TLS Configuration
	TLSEnabled    bool   `env:"TLS_ENABLED" envDefault:"false"`
	TLSCertPath   string `env:"TLS_CERT_PATH"`
	TLSKeyPath    string `env:"TLS_KEY_PATH"`
	TLSCAPath     string `env:"TLS_CA_PATH"`
	TLSMinVersion string `env:"TLS_MIN_VERSION" envDefault:"1.3"`

	// API key Configuration
	APIKey string `env:"MCP_API_KEY"`

	// JWT Configuration
	JWTSecret         string        `env:"MCP_JWT_SECRET"`
	JWTIssuer         string        `env:"MCP_JWT_ISSUER" envDefault:"mcp-runtime"`
	JWTAudience       []string      `env:"MCP_JWT_AUDIENCE" envDefault:"mcp-runtime" envSeparator:","`
	JWTAlgorithm      string        `env:"MCP_JWT_ALGORITHM" envDefault:"HS256"`
	JWTExpiry         time.Duration `env:"MCP_JWT_EXPIRY" envDefault:"1h"`
	JWTRefreshExpiry  time.Duration `env:"MCP_JWT_REFRESH_EXPIRY" envDefault:"168h"` // 7 days
	JWTEnableBlacklist bool         `env:"MCP_JWT_ENABLE_BLACKLIST" envDefault:"true"`

	// Rate Limiting Configuration
	RateLimitEnabled     bool          `env:"MCP_RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitMaxRequests int           `env:"MCP_RATE_LIMIT_MAX_REQUESTS" envDefault:"1000"`
	RateLimitWindow      time.Duration `env:"MCP_RATE_LIMIT_WINDOW" envDefault:"1m"`
	RateLimitBurstFactor float64       `env:"RATE_LIMIT_BURST_FACTOR" envDefault:"1.5"`

	// Session Configuration
	SessionDefaultTTL   time.Duration `env:"MCP_SESSION_TTL" envDefault:"1h"`
	SessionExtendStep   time.Duration `env:"MCP_SESSION_EXTEND_STEP" envDefault:"1h"`
	SessionMaxActive    int           `env:"MCP_SESSION_MAX_ACTIVE" envDefault:"10000"`
	SessionSweepPeriod  time.Duration `env:"MCP_SESSION_SWEEP_PERIOD" envDefault:"5m"`

	// Feature Flags (hot-reloadable)
	EnableMetrics      bool `env:"ENABLE_METRICS" envDefault:"true"`
	EnableAuditLogging bool `env:"MCP_ENABLE_AUDIT_LOG" envDefault:"true"`
	EnableCache        bool `env:"ENABLE_CACHE" envDefault:"true"`

	// Audit Logging Configuration
	AuditBufferSize    int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`
	AuditFlushInterval time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"5s"`

	// Credential store configuration
	CredentialStoreKind string `env:"MCP_CREDENTIAL_STORE" envDefault:"memory"` // memory|file|postgres|sqlite
	CredentialFilePath  string `env:"MCP_CREDENTIAL_FILE_PATH" envDefault:"./data/credentials.jsonl"`

	// Circuit Breaker Configuration (wraps credential/session backend calls)
	CircuitBreakerEnabled          bool          `env:"MCP_CIRCUIT_BREAKER_ENABLED" envDefault:"true"`
	CircuitBreakerFailureThreshold int           `env:"MCP_CIRCUIT_BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	CircuitBreakerMaxRequests      int           `env:"MCP_CIRCUIT_BREAKER_MAX_REQUESTS" envDefault:"3"`
	CircuitBreakerInterval         time.Duration `env:"MCP_CIRCUIT_BREAKER_INTERVAL" envDefault:"10s"`
	CircuitBreakerTimeout          time.Duration `env:"MCP_CIRCUIT_BREAKER_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from environment variables, applies the security
// profile's defaults for any field the operator left at its zero value, then
// validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.ApplyProfileDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ApplyProfileDefaults fills in auth/https/rate-limit/cors/jwt defaults from
// the selected security profile, matching the original implementation's
// DevelopmentProfile / StagingProfile / ProductionProfile.
func (c *Config) ApplyProfileDefaults() error {
	profile, err := ParseSecurityProfile(c.SecurityProfile)
	if err != nil {
		return err
	}

	settings := SettingsForProfile(profile)

	c.RequireAuth = settings.RequireAuthentication
	c.RequireHTTPS = settings.RequireHTTPS
	c.EnableAuditLogging = c.EnableAuditLogging && settings.EnableAuditLogging
	c.AutoGenerateKeys = settings.AutoGenerateKeys
	c.ValidateTokenAudience = settings.ValidateTokenAudience

	// env.Parse already populated these from their envDefault tags even when
	// the operator set nothing, so a zero-value guard never fires (every
	// profile would otherwise run with the 1h/1000-req envDefault instead of
	// the profile's own value). Check the actual environment instead of the
	// parsed field to tell "operator set it" from "envDefault filled it".
	if _, set := os.LookupEnv("MCP_JWT_EXPIRY"); !set {
		c.JWTExpiry = time.Duration(settings.JWTExpirySeconds) * time.Second
	}
	c.RateLimitEnabled = settings.RateLimit.Enabled
	if _, set := os.LookupEnv("MCP_RATE_LIMIT_MAX_REQUESTS"); !set {
		c.RateLimitMaxRequests = settings.RateLimit.MaxRequests
	}
	if _, set := os.LookupEnv("MCP_RATE_LIMIT_WINDOW"); !set {
		c.RateLimitWindow = settings.RateLimit.Window
	}

	if len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*" && profile != ProfileDevelopment && profile != ProfileCustom {
		c.CORSAllowedOrigins = settings.CORS.AllowedOrigins
		c.CORSAllowCredentials = settings.CORS.AllowCredentials
	}

	return nil
}

// Validate performs comprehensive configuration validation.
func (c *Config) Validate() error {
	profile, err := ParseSecurityProfile(c.SecurityProfile)
	if err != nil {
		return err
	}

	if c.RequireAuth {
		if c.JWTSecret != "" && c.JWTSecret != "auto-generate" {
			if err := ValidateJWTSecret(c.JWTSecret); err != nil {
				return fmt.Errorf("MCP_JWT_SECRET validation failed: %w", err)
			}
		}
		if c.APIKey != "" && c.APIKey != "auto-generate" {
			if err := ValidateAPIKey(c.APIKey, "MCP_API_KEY"); err != nil {
				return err
			}
		}
	}

	if profile == ProfileProduction {
		missing := []string{}
		if c.APIKey == "" {
			missing = append(missing, "MCP_API_KEY")
		}
		if c.JWTSecret == "" {
			missing = append(missing, "MCP_JWT_SECRET")
		}
		if len(c.CORSAllowedOrigins) == 0 || (len(c.CORSAllowedOrigins) == 1 && c.CORSAllowedOrigins[0] == "*") {
			missing = append(missing, "MCP_CORS_ORIGIN")
		}
		if len(c.AllowedOrigins) == 0 {
			missing = append(missing, "MCP_ALLOWED_ORIGINS")
		}
		if len(missing) > 0 {
			return fmt.Errorf("production profile requires explicit values for: %s", strings.Join(missing, ", "))
		}
	}

	if c.RequireHTTPS && containsWildcard(c.CORSAllowedOrigins) && c.CORSAllowCredentials {
		return fmt.Errorf("cannot use wildcard CORS origin with credentials over HTTPS")
	}

	if err := ValidateTimeout("MCP_JWT_EXPIRY", c.JWTExpiry, 60*time.Second, 0); err != nil {
		return err
	}

	if err := ValidateTimeout("MCP_SHUTDOWN_TIMEOUT_SECS", c.ShutdownTimeout, 5*time.Second, 5*time.Minute); err != nil {
		return err
	}
	if err := ValidateTimeout("REQUEST_TIMEOUT", c.RequestTimeout, 1*time.Second, 5*time.Minute); err != nil {
		return err
	}
	if err := ValidateTimeout("MCP_DB_CONNECT_TIMEOUT", c.DBConnectTimeout, 1*time.Second, 2*time.Minute); err != nil {
		return err
	}

	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("MCP_DB_MAX_OPEN_CONNS must be at least 1, got %d", c.DBMaxOpenConns)
	}
	if c.DBMaxOpenConns > 1000 {
		return fmt.Errorf("MCP_DB_MAX_OPEN_CONNS must be at most 1000, got %d", c.DBMaxOpenConns)
	}
	if c.DBMaxIdleConns < 0 {
		return fmt.Errorf("MCP_DB_MAX_IDLE_CONNS must be non-negative, got %d", c.DBMaxIdleConns)
	}
	if c.DBMaxIdleConns > c.DBMaxOpenConns {
		return fmt.Errorf("MCP_DB_MAX_IDLE_CONNS (%d) cannot exceed MCP_DB_MAX_OPEN_CONNS (%d)",
			c.DBMaxIdleConns, c.DBMaxOpenConns)
	}

	if c.RedisPoolSize < 1 {
		return fmt.Errorf("MCP_REDIS_POOL_SIZE must be at least 1, got %d", c.RedisPoolSize)
	}
	if c.RedisPoolSize > 100 {
		return fmt.Errorf("MCP_REDIS_POOL_SIZE must be at most 100, got %d", c.RedisPoolSize)
	}
	if c.RedisMinIdleConns < 0 {
		return fmt.Errorf("MCP_REDIS_MIN_IDLE_CONNS must be non-negative, got %d", c.RedisMinIdleConns)
	}
	if c.RedisMinIdleConns > c.RedisPoolSize {
		return fmt.Errorf("MCP_REDIS_MIN_IDLE_CONNS (%d) cannot exceed MCP_REDIS_POOL_SIZE (%d)",
			c.RedisMinIdleConns, c.RedisPoolSize)
	}

	if c.RateLimitMaxRequests < 1 {
		return fmt.Errorf("MCP_RATE_LIMIT_MAX_REQUESTS must be at least 1, got %d", c.RateLimitMaxRequests)
	}
	if c.RateLimitBurstFactor < 1.0 || c.RateLimitBurstFactor > 5.0 {
		return fmt.Errorf("RATE_LIMIT_BURST_FACTOR must be between 1.0 and 5.0, got %.2f", c.RateLimitBurstFactor)
	}

	if c.TLSEnabled {
		if c.TLSCertPath == "" {
			return fmt.Errorf("TLS_CERT_PATH is required when TLS_ENABLED is true")
		}
		if c.TLSKeyPath == "" {
			return fmt.Errorf("TLS_KEY_PATH is required when TLS_ENABLED is true")
		}
		if c.TLSMinVersion != "1.2" && c.TLSMinVersion != "1.3" {
			return fmt.Errorf("TLS_MIN_VERSION must be 1.2 or 1.3, got %s", c.TLSMinVersion)
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error, got %s", c.LogLevel)
	}

	validSSLModes := map[string]bool{"disable": true, "require": true, "prefer": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[c.DBSSLMode] {
		return fmt.Errorf("MCP_DB_SSLMODE must be one of: disable, require, prefer, verify-ca, verify-full, got %s", c.DBSSLMode)
	}

	if c.AuditBufferSize < 100 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at least 100, got %d", c.AuditBufferSize)
	}
	if c.AuditBufferSize > 10000 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be at most 10000, got %d", c.AuditBufferSize)
	}

	if len(c.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("MCP_CORS_ORIGIN must not be empty")
	}

	if !c.EnableStdio && !c.EnableHTTP && !c.EnableSSE {
		return fmt.Errorf("at least one transport must be enabled")
	}

	return nil
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// ValidateJWTSecret ensures the JWT secret meets security requirements.
func ValidateJWTSecret(secret string) error {
	if len(secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes, got %d", len(secret))
	}

	var entropy float64
	for _, b := range []byte(secret) {
		entropy += float64(bits.OnesCount8(uint8(b)))
	}
	if entropy/float64(len(secret)) < 3.5 {
		return fmt.Errorf("JWT secret has insufficient entropy (should be random, not human-readable)")
	}

	return nil
}

// ValidateAPIKey validates an API key meets minimum security requirements.
func ValidateAPIKey(key, name string) error {
	if len(key) < 32 {
		return fmt.Errorf("%s must be at least 32 characters, got %d", name, len(key))
	}

	weakPatterns := []string{
		`^[a-zA-Z]+$`,
		`^[0-9]+$`,
		`^(password|secret|key)`,
	}

	for _, pattern := range weakPatterns {
		matched, err := regexp.MatchString(pattern, key)
		if err != nil {
			continue
		}
		if matched {
			return fmt.Errorf("%s appears to be weak (avoid only letters, only numbers, or common words)", name)
		}
	}

	var hasLower, hasUpper, hasDigit bool
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z':
			hasLower = true
		case c >= 'A' && c <= 'Z':
			hasUpper = true
		case c >= '0' && c <= '9':
			hasDigit = true
		}
	}

	if !hasLower || !hasUpper || !hasDigit {
		return fmt.Errorf("%s should contain a mix of uppercase, lowercase, and digits", name)
	}

	return nil
}

// ValidateTimeout validates a timeout is within acceptable bounds. A zero max
// disables the upper bound check.
func ValidateTimeout(name string, value, min, max time.Duration) error {
	if value < min {
		return fmt.Errorf("%s must be at least %v, got %v", name, min, value)
	}
	if max > 0 && value > max {
		return fmt.Errorf("%s must be at most %v, got %v", name, max, value)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
		int(c.DBConnectTimeout.Seconds()))
}

// RedisAddr returns the Redis connection address.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsHotReloadable returns true if the config key supports hot reloading.
func IsHotReloadable(key string) bool {
	for _, k := range HotReloadableFields() {
		if k == key {
			return true
		}
	}
	return false
}

// HotReloadableFields returns a list of all hot-reloadable configuration keys.
func HotReloadableFields() []string {
	return []string{
		"LOG_LEVEL",
		"MCP_RATE_LIMIT_MAX_REQUESTS",
		"MCP_RATE_LIMIT_WINDOW",
		"RATE_LIMIT_BURST_FACTOR",
		"ENABLE_METRICS",
		"MCP_ENABLE_AUDIT_LOG",
		"ENABLE_CACHE",
		"MCP_CORS_ORIGIN",
		"CORS_MAX_AGE",
	}
}

// Masked returns a copy of the config with sensitive values masked.
func (c *Config) Masked() *Config {
	masked := *c
	masked.DBPassword = "***"
	masked.RedisPassword = "***"
	masked.APIKey = "***"
	masked.JWTSecret = "***"
	return &masked
}
