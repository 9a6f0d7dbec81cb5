package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the in-process token-bucket limiter (§4.7
// step 2). MaxRequests/Window define the refill rate; BurstFactor scales
// the bucket's burst size the same way the teacher's
// RATE_LIMIT_BURST_FACTOR setting does.
type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
	BurstFactor float64
}

// clientLimiter pairs a token bucket with the time it was last touched,
// so the eviction sweep can reclaim buckets for clients that have gone
// idle beyond 2x the window.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiterSet is a per-client-IP limiter pool with idle eviction, the
// in-process counterpart to internal/cache.DistributedRateLimiter's
// Redis-backed sliding window for multi-instance deployments.
type rateLimiterSet struct {
	cfg   RateLimitConfig
	mu    sync.Mutex
	byKey map[string]*clientLimiter

	stopCh chan struct{}
	doneCh chan struct{}
}

func newRateLimiterSet(cfg RateLimitConfig) *rateLimiterSet {
	s := &rateLimiterSet{
		cfg:    cfg,
		byKey:  make(map[string]*clientLimiter),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go s.evictLoop()
	return s
}

func (s *rateLimiterSet) allow(key string) bool {
	s.mu.Lock()
	cl, ok := s.byKey[key]
	if !ok {
		cl = &clientLimiter{limiter: s.newLimiter()}
		s.byKey[key] = cl
	}
	cl.lastSeen = time.Now()
	limiter := cl.limiter
	s.mu.Unlock()

	return limiter.Allow()
}

func (s *rateLimiterSet) newLimiter() *rate.Limiter {
	ratePerSec := float64(s.cfg.MaxRequests) / s.cfg.Window.Seconds()
	burst := s.cfg.MaxRequests
	if s.cfg.BurstFactor > 0 {
		burst = int(float64(s.cfg.MaxRequests) * s.cfg.BurstFactor)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

func (s *rateLimiterSet) evictLoop() {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.cfg.Window)
	defer ticker.Stop()
	idleAfter := 2 * s.cfg.Window

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-idleAfter)
			s.mu.Lock()
			for key, cl := range s.byKey {
				if cl.lastSeen.Before(cutoff) {
					delete(s.byKey, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *rateLimiterSet) stop() {
	close(s.stopCh)
	<-s.doneCh
}
