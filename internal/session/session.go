// Package session implements the MCP session manager: creation,
// validation/extension, explicit close, and a background expiry sweeper
// (§4.6).
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Typed session errors (§7).
var (
	ErrNotFound         = errors.New("session: not found")
	ErrExpired          = errors.New("session: expired")
	ErrCapacityExceeded = errors.New("session: capacity exceeded")
)

// Session models §3's Session entity. CreatedAt <= LastSeen <= ExpiresAt
// is maintained as an invariant by Store implementations.
type Session struct {
	ID          string
	UserID      string
	AuthContext map[string]interface{}
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastSeen    time.Time
	ClientIP    string
	UserAgent   string
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store is the pluggable persistence backing a Manager: an in-memory map
// (default) or a Redis-backed implementation for multi-instance
// deployments (internal/session/redis_store.go).
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	// ListExpired returns up to limit session IDs whose ExpiresAt is
	// before cutoff, used by the sweeper's collect phase.
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	// DeleteBatch removes multiple sessions in one call, used by the
	// sweeper's delete phase (teacher's collect-then-batch-delete
	// two-phase pattern).
	DeleteBatch(ctx context.Context, ids []string) error
}

// Config configures a Manager.
type Config struct {
	// DefaultLifetime is used when Create is called without an explicit
	// lifetime.
	DefaultLifetime time.Duration
	// ExtendStep is how far forward ExpiresAt is pushed on an
	// extend-on-access Validate call.
	ExtendStep time.Duration
	// MaxSessions caps the number of concurrently active sessions; 0
	// means unbounded.
	MaxSessions int
	// SweepInterval is how often the background sweeper runs.
	SweepInterval time.Duration
	// SweepBatchSize bounds how many sessions the sweeper deletes per
	// tick in one call, to keep each critical section short.
	SweepBatchSize int
}

// DefaultConfig mirrors the teacher's sessionCleanup defaults: a 5-minute
// sweep cadence and a 1-hour session lifetime.
func DefaultConfig() Config {
	return Config{
		DefaultLifetime: time.Hour,
		ExtendStep:      time.Hour,
		MaxSessions:     10000,
		SweepInterval:   5 * time.Minute,
		SweepBatchSize:  1000,
	}
}

// Manager owns session lifecycle on top of a pluggable Store.
type Manager struct {
	cfg   Config
	store Store

	stop chan struct{}
	done chan struct{}
}

// NewManager builds a Manager over store. Call Start to begin the
// background sweeper.
func NewManager(cfg Config, store Store) *Manager {
	return &Manager{cfg: cfg, store: store, stop: make(chan struct{}), done: make(chan struct{})}
}

// Create registers a new session with an optional explicit lifetime (zero
// uses cfg.DefaultLifetime). Returns ErrCapacityExceeded if MaxSessions
// would be exceeded.
func (m *Manager) Create(ctx context.Context, userID string, lifetime time.Duration, clientIP, userAgent string) (*Session, error) {
	if m.cfg.MaxSessions > 0 {
		n, err := m.store.Count(ctx)
		if err != nil {
			return nil, err
		}
		if n >= m.cfg.MaxSessions {
			return nil, ErrCapacityExceeded
		}
	}

	if lifetime <= 0 {
		lifetime = m.cfg.DefaultLifetime
	}
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(lifetime),
		ClientIP:  clientIP,
		UserAgent: userAgent,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// CreateWithID registers a session under an explicit, caller-supplied ID
// rather than minting a fresh UUID — used by the Streamable-HTTP
// transport's ensure_session behavior, which reuses a client-given session
// ID when the client presents one unknown to the server (§4.8).
func (m *Manager) CreateWithID(ctx context.Context, id, userID string, lifetime time.Duration) (*Session, error) {
	if lifetime <= 0 {
		lifetime = m.cfg.DefaultLifetime
	}
	now := time.Now().UTC()
	s := &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(lifetime),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate returns the session iff it exists and has not expired. When
// extendOnAccess is set, LastSeen is bumped to now and ExpiresAt is pushed
// forward by cfg.ExtendStep (never shortened).
func (m *Manager) Validate(ctx context.Context, id string, extendOnAccess bool) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	if s.expired(now) {
		return nil, ErrExpired
	}

	if extendOnAccess {
		s.LastSeen = now
		newExpiry := now.Add(m.cfg.ExtendStep)
		if newExpiry.After(s.ExpiresAt) {
			s.ExpiresAt = newExpiry
		}
		if err := m.store.Update(ctx, s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetAuthContext persists arbitrary auth-derived data onto a session,
// used by the middleware session binder to stamp the credential identity
// that justified auto-creating the session (§4.7 step 4), so a later
// request presenting only the session header can be authenticated from
// it alone.
func (m *Manager) SetAuthContext(ctx context.Context, id string, authContext map[string]interface{}) error {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	s.AuthContext = authContext
	return m.store.Update(ctx, s)
}

// Close destroys a session immediately.
func (m *Manager) Close(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Start launches the background sweeper goroutine.
func (m *Manager) Start() {
	go m.sweepLoop()
}

// Stop halts the sweeper and waits for it to exit.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

func (m *Manager) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep implements the teacher's collect-then-batch-delete two-phase
// pattern: gather expired IDs without an exclusive lock held across I/O,
// then remove them in bounded-size batches.
func (m *Manager) sweep() {
	ctx := context.Background()
	now := time.Now().UTC()
	for {
		ids, err := m.store.ListExpired(ctx, now, m.cfg.SweepBatchSize)
		if err != nil || len(ids) == 0 {
			return
		}
		if err := m.store.DeleteBatch(ctx, ids); err != nil {
			return
		}
		if len(ids) < m.cfg.SweepBatchSize {
			return
		}
	}
}
