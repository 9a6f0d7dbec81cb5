package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker"
	"github.com/thearchitectit/mcp-runtime/internal/config"
)

// Manager holds circuit breakers configured from application config
type Manager struct {
	DBBreaker    *gobreaker.CircuitBreaker
	RedisBreaker *gobreaker.CircuitBreaker
}

// DBBreaker and RedisBreaker are package-level defaults used by the
// free-function ExecuteDB/ExecuteRedis helpers in wrapper.go, for callers
// that don't carry a *Manager through to the call site. NewManager
// overwrites these with config-driven settings during startup.
var (
	DBBreaker    = defaultBreaker("database")
	RedisBreaker = defaultBreaker("redis")
)

func defaultBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

// NewManager creates circuit breakers with configuration values
func NewManager(cfg *config.Config) *Manager {
	if !cfg.CircuitBreakerEnabled {
		return &Manager{
			DBBreaker:    nil,
			RedisBreaker: nil,
		}
	}

	failureThreshold := uint32(cfg.CircuitBreakerFailureThreshold)

	return &Manager{
		DBBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "database",
			MaxRequests: uint32(cfg.CircuitBreakerMaxRequests),
			Interval:    cfg.CircuitBreakerInterval,
			Timeout:     cfg.CircuitBreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= failureThreshold && failureRatio >= 0.6
			},
		}),
		RedisBreaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "redis",
			MaxRequests: uint32(cfg.CircuitBreakerMaxRequests),
			Interval:    cfg.CircuitBreakerInterval,
			Timeout:     cfg.CircuitBreakerTimeout / 6, // Redis should be faster
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= failureThreshold && failureRatio >= 0.6
			},
		}),
	}
}

// State returns the current state of the circuit breaker
func State(breaker *gobreaker.CircuitBreaker) string {
	state := breaker.State()
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
