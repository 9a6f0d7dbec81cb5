package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateAndValidate(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, NewMemoryStore())

	s, err := m.Create(context.Background(), "user-1", time.Minute, "1.2.3.4", "test-agent")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.CreatedAt.After(s.LastSeen) || s.LastSeen.After(s.ExpiresAt) {
		t.Errorf("invariant CreatedAt<=LastSeen<=ExpiresAt violated: %+v", s)
	}

	got, err := m.Validate(context.Background(), s.ID, false)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("ID = %q, want %q", got.ID, s.ID)
	}
}

func TestValidateExpired(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, NewMemoryStore())

	s, err := m.Create(context.Background(), "user-1", time.Millisecond, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	_, err = m.Validate(context.Background(), s.ID, false)
	if !errors.Is(err, ErrExpired) {
		t.Errorf("err = %v, want ErrExpired", err)
	}
}

func TestValidateNotFound(t *testing.T) {
	m := NewManager(DefaultConfig(), NewMemoryStore())
	_, err := m.Validate(context.Background(), "nonexistent", false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExtendOnAccessNeverShortens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExtendStep = time.Millisecond
	m := NewManager(cfg, NewMemoryStore())

	s, err := m.Create(context.Background(), "user-1", time.Hour, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	originalExpiry := s.ExpiresAt

	got, err := m.Validate(context.Background(), s.ID, true)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got.ExpiresAt.Before(originalExpiry) {
		t.Errorf("ExpiresAt moved backward: %v < %v", got.ExpiresAt, originalExpiry)
	}
}

func TestCapacityExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSessions = 1
	m := NewManager(cfg, NewMemoryStore())

	if _, err := m.Create(context.Background(), "user-1", time.Minute, "", ""); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	_, err := m.Create(context.Background(), "user-2", time.Minute, "", "")
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestClose(t *testing.T) {
	m := NewManager(DefaultConfig(), NewMemoryStore())
	s, err := m.Create(context.Background(), "user-1", time.Minute, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Close(context.Background(), s.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err = m.Validate(context.Background(), s.ID, false)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound after close", err)
	}
}

func TestSweeperRemovesExpiredSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 10 * time.Millisecond
	cfg.SweepBatchSize = 10
	store := NewMemoryStore()
	m := NewManager(cfg, store)

	s, err := m.Create(context.Background(), "user-1", time.Millisecond, "", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if _, err := store.Get(context.Background(), s.ID); errors.Is(err, ErrNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expired session was not swept in time")
}
