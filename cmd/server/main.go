package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/thearchitectit/mcp-runtime/internal/admin"
	"github.com/thearchitectit/mcp-runtime/internal/audit"
	"github.com/thearchitectit/mcp-runtime/internal/auth"
	"github.com/thearchitectit/mcp-runtime/internal/backend"
	"github.com/thearchitectit/mcp-runtime/internal/cache"
	"github.com/thearchitectit/mcp-runtime/internal/circuitbreaker"
	"github.com/thearchitectit/mcp-runtime/internal/config"
	"github.com/thearchitectit/mcp-runtime/internal/credential"
	"github.com/thearchitectit/mcp-runtime/internal/database"
	"github.com/thearchitectit/mcp-runtime/internal/dispatcher"
	"github.com/thearchitectit/mcp-runtime/internal/middleware"
	"github.com/thearchitectit/mcp-runtime/internal/session"
	"github.com/thearchitectit/mcp-runtime/internal/transport"
)

// Version information - set by ldflags during build
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	var (
		showVersion   = flag.Bool("version", false, "Show version information")
		showHealth    = flag.Bool("health-check", false, "Run health check and exit")
		healthTimeout = flag.Duration("health-timeout", 5*time.Second, "Health check timeout")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("MCP Runtime Server\n")
		fmt.Printf("  Version:    %s\n", version)
		fmt.Printf("  Build Time: %s\n", buildTime)
		fmt.Printf("  Git Commit: %s\n", gitCommit)
		fmt.Printf("  Go Version: %s\n", runtime.Version())
		os.Exit(0)
	}

	if *showHealth {
		if err := runHealthCheck(*healthTimeout); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Health check passed")
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	setLogLevel(cfg.LogLevel)

	slog.Info("starting mcp-runtime server",
		"version", version,
		"build_time", buildTime,
		"git_commit", gitCommit,
		"config_schema", cfg.SchemaVersion,
		"profile", cfg.SecurityProfile,
	)

	if cfg.PProfEnabled {
		go startPProfServer(cfg.PProfPort)
	}

	auditLogger := audit.NewLogger(cfg.AuditBufferSize)
	breakers := circuitbreaker.NewManager(cfg)

	var db *database.DB
	if cfg.CredentialStoreKind == "postgres" || cfg.CredentialStoreKind == "sqlite" {
		db, err = database.New(cfg)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := credential.EnsureSchema(context.Background(), db); err != nil {
			slog.Error("failed to prepare credential schema", "error", err)
			os.Exit(1)
		}

		dbMetrics := database.NewMetricsCollector(db, 15*time.Second)
		dbMetrics.Start()
		defer dbMetrics.Stop()
	}

	var redisClient *cache.Client
	if cfg.RedisEnabled {
		redisClient, err = cache.New(cfg)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	credStore, err := buildCredentialStore(cfg, db, breakers)
	if err != nil {
		slog.Error("failed to build credential store", "error", err)
		os.Exit(1)
	}

	apiKey := seedBootstrapCredential(context.Background(), cfg, credStore, auditLogger)

	sessions := session.NewManager(session.Config{
		DefaultLifetime: cfg.SessionDefaultTTL,
		ExtendStep:      cfg.SessionExtendStep,
		MaxSessions:     cfg.SessionMaxActive,
		SweepInterval:   cfg.SessionSweepPeriod,
		SweepBatchSize:  1000,
	}, buildSessionStore(redisClient))
	sessions.Start()
	defer sessions.Stop()

	var apiKeyValidator *auth.APIKeyValidator
	var jwtManager *auth.Manager
	if cfg.RequireAuth || apiKey != "" {
		apiKeyValidator = auth.NewAPIKeyValidator(credStore)
		jwtManager, err = buildJWTManager(cfg)
		if err != nil {
			slog.Error("failed to build JWT manager", "error", err)
			os.Exit(1)
		}
	}

	demoBackend := backend.NewDemoBackend(cfg.ServerName, cfg.ServerVersion)
	if lifecycle, ok := interface{}(demoBackend).(backend.Lifecycle); ok {
		startupCtx, startupCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
		err := lifecycle.OnStartup(startupCtx)
		startupCancel()
		if err != nil {
			slog.Error("backend startup failed", "error", err)
			os.Exit(1)
		}
	}

	disp := dispatcher.New(demoBackend, dispatcher.Meta{
		ProtocolVersion: "2025-11-25",
		Instructions:    fmt.Sprintf("%s reference backend", cfg.ServerName),
		Capabilities:    dispatcher.DefaultCapabilities(),
	})

	pipeline := middleware.New(middleware.Config{
		MaxMessageSize: int(cfg.MaxMessageSize),
		RateLimit: middleware.RateLimitConfig{
			Enabled:     cfg.RateLimitEnabled,
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
			BurstFactor: cfg.RateLimitBurstFactor,
		},
		JWTManager:        jwtManager,
		APIKeyValidator:   apiKeyValidator,
		Sessions:          sessions,
		SessionTTL:        cfg.SessionDefaultTTL,
		SessionAutoCreate: cfg.RequireAuth,
		AuditLogger:       auditLogger,
	})
	defer pipeline.Stop()

	engine := transport.NewEngine(pipeline, disp)

	transports := buildTransports(cfg, engine, sessions)

	adminServer := admin.NewServer(admin.Dependencies{
		DB:                 db,
		Cache:              redisClient,
		Sessions:           sessions,
		HealthCheckTimeout: cfg.HealthCheckTimeout,
	}, version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	adminAddr := fmt.Sprintf("0.0.0.0:%d", cfg.AdminPort)
	slog.Info("starting admin server", "addr", adminAddr)
	if err := adminServer.Start(adminAddr); err != nil {
		slog.Error("admin server failed to start", "error", err)
		os.Exit(1)
	}

	for _, t := range transports {
		t := t
		go func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("transport goroutine panicked", "panic", r)
					cancel()
				}
			}()
			if err := t.Start(ctx); err != nil {
				slog.Error("transport failed to start", "error", err)
				cancel()
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		slog.Info("context cancelled")
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	slog.Info("initiating graceful shutdown", "timeout", shutdownTimeout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	for _, t := range transports {
		if err := t.Stop(shutdownCtx); err != nil {
			slog.Error("transport shutdown error", "error", err)
		}
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("admin server shutdown error", "error", err)
	}
	if lifecycle, ok := interface{}(demoBackend).(backend.Lifecycle); ok {
		if err := lifecycle.OnShutdown(shutdownCtx); err != nil {
			slog.Error("backend shutdown error", "error", err)
		}
	}

	slog.Info("server stopped gracefully")
}

// buildCredentialStore selects the credential.Store implementation named
// by MCP_CREDENTIAL_STORE (§6), wiring the SQL variant behind the shared
// circuit-breaker manager and the file variant at its configured path.
func buildCredentialStore(cfg *config.Config, db *database.DB, breakers *circuitbreaker.Manager) (credential.Store, error) {
	switch cfg.CredentialStoreKind {
	case "postgres", "sqlite":
		return credential.NewSQLStore(db, breakers), nil
	case "file":
		return credential.NewFileStore(cfg.CredentialFilePath)
	default:
		return credential.NewMemoryStore(), nil
	}
}

// buildSessionStore picks the Redis-backed store when Redis is configured,
// otherwise the in-memory store (single-instance deployments, and the
// development profile).
func buildSessionStore(redisClient *cache.Client) session.Store {
	if redisClient != nil {
		return session.NewRedisStore(redisClient)
	}
	return session.NewMemoryStore()
}

// buildJWTManager wires auth.Manager from the JWT-related config fields
// (§4.5, §6). A literal "auto-generate" or empty secret mints a random one
// for the lifetime of this process, matching the env-var contract's
// documented auto-generate behavior; anything else must already satisfy
// config.ValidateJWTSecret (enforced by Config.Validate before this runs).
func buildJWTManager(cfg *config.Config) (*auth.Manager, error) {
	secret := cfg.JWTSecret
	if secret == "" || secret == "auto-generate" {
		generated, err := randomSecret(48)
		if err != nil {
			return nil, fmt.Errorf("failed to auto-generate JWT secret: %w", err)
		}
		secret = generated
		slog.Warn("auto-generated JWT signing secret for this process; tokens will not validate across restarts")
	}

	return auth.NewManager(auth.JWTConfig{
		Algorithm:            auth.Algorithm(cfg.JWTAlgorithm),
		Secret:               []byte(secret),
		Issuer:               cfg.JWTIssuer,
		Audience:             cfg.JWTAudience,
		AccessTokenLifetime:  cfg.JWTExpiry,
		RefreshTokenLifetime: cfg.JWTRefreshExpiry,
		EnableBlacklist:      cfg.JWTEnableBlacklist,
	})
}

// seedBootstrapCredential mints a single admin credential when
// MCP_API_KEY is "auto-generate" (or the profile's AutoGenerateKeys is set
// and no key was supplied), logging the plaintext secret exactly once —
// it is never recoverable from the store afterward, matching §3's
// invariant that plaintext exists only transiently at issuance. An
// explicit, already-validated MCP_API_KEY is stored directly instead.
func seedBootstrapCredential(ctx context.Context, cfg *config.Config, store credential.Store, auditLogger *audit.Logger) string {
	secret := cfg.APIKey
	if secret == "auto-generate" || (secret == "" && cfg.AutoGenerateKeys) {
		generated, err := randomSecret(32)
		if err != nil {
			slog.Error("failed to auto-generate bootstrap API key", "error", err)
			return ""
		}
		secret = generated
		slog.Warn("auto-generated bootstrap API key; record it now, it will not be shown again", "api_key", secret)
	}
	if secret == "" {
		return ""
	}

	cred := &credential.Credential{
		Name:       "bootstrap-admin",
		SecretHash: credential.HashSecret(secret),
		Role:       credential.RoleAdmin,
		CreatedAt:  time.Now().UTC(),
	}
	id, err := store.Create(ctx, cred)
	if err != nil {
		slog.Error("failed to seed bootstrap credential", "error", err)
		return ""
	}
	auditLogger.LogCredentialChange(ctx, "system", id, "created")
	return secret
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// buildTransports wires the configured wire transports (§4.8). When the
// Streamable-HTTP+SSE transport is enabled it already serves POST /mcp and
// the legacy POST /messages path (internal/transport/sse.go), so the plain
// HTTP transport is only started when SSE is disabled, to avoid two
// listeners racing for the same port and path.
func buildTransports(cfg *config.Config, engine *transport.Engine, sessions *session.Manager) []transport.Transport {
	var transports []transport.Transport

	if cfg.EnableStdio {
		transports = append(transports, transport.NewStdio(engine, os.Stdin, os.Stdout))
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.MCPPort)
	switch {
	case cfg.EnableSSE:
		transports = append(transports, transport.NewSSE(engine, transport.SSEConfig{
			Addr:                    addr,
			MaxMessageSize:          cfg.MaxMessageSize,
			AllowedOrigins:          cfg.AllowedOrigins,
			EnforceOriginValidation: cfg.EnforceOriginValidation,
			Resumable:               cfg.SSEResumable,
			RetryMs:                 cfg.SSERetryMs,
			Sessions:                sessions,
			SessionTTL:              cfg.SessionDefaultTTL,
		}))
	case cfg.EnableHTTP:
		transports = append(transports, transport.NewHTTP(engine, transport.HTTPConfig{
			Addr:            addr,
			MaxMessageSize:  cfg.MaxMessageSize,
			AllowedOrigins:  cfg.AllowedOrigins,
			ShutdownTimeout: cfg.ShutdownTimeout,
		}))
	}

	return transports
}

// runHealthCheck performs a health check against the local admin server.
func runHealthCheck(timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}

	adminPort := os.Getenv("MCP_ADMIN_PORT")
	if adminPort == "" {
		adminPort = "8081"
	}

	resp, err := client.Get(fmt.Sprintf("http://localhost:%s/health/live", adminPort))
	if err != nil {
		return fmt.Errorf("liveness check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("liveness check returned status %d", resp.StatusCode)
	}
	return nil
}

// startPProfServer starts the pprof debugging server.
func startPProfServer(port int) {
	addr := fmt.Sprintf("localhost:%d", port)
	slog.Info("starting pprof server", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("pprof server error", "error", err)
	}
}

func setLogLevel(level string) {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel,
	}))
	slog.SetDefault(logger)
}
