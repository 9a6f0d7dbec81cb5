package credential

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process credential store intended for development and
// testing. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Credential
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Credential)}
}

func (s *MemoryStore) Lookup(ctx context.Context, secret string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byID {
		if c.Matches(secret) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) Create(ctx context.Context, cred *Credential) (string, error) {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cred
	s.byID[cred.ID] = &cp
	return cred.ID, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.Revoked = true
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Credential, 0, len(s.byID))
	for _, c := range s.byID {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}
