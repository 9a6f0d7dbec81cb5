package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/thearchitectit/mcp-runtime/internal/cache"
)

// RedisStore persists sessions in Redis under cache.KeySession, for
// multi-instance deployments where an in-memory map can't be shared
// (§4.6). Grounded on internal/cache/redis.go's Client/key-naming
// conventions.
type RedisStore struct {
	client *goredis.Client
}

// NewRedisStore wraps an existing cache.Client's connection.
func NewRedisStore(c *cache.Client) *RedisStore {
	return &RedisStore{client: c.Raw()}
}

func sessionKey(id string) string {
	return fmt.Sprintf(cache.KeySession, id)
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	return r.save(ctx, s)
}

func (r *RedisStore) Update(ctx context.Context, s *Session) error {
	return r.save(ctx, s)
}

func (r *RedisStore) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(ctx, sessionKey(s.ID), data, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, fmt.Sprintf(cache.KeySession, "*"), 200).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

// ListExpired always returns empty: Redis's native per-key TTL (set in
// save, equal to the session's remaining lifetime) already evicts expired
// sessions as they pass their ExpiresAt, so there is nothing left for an
// explicit sweep to find.
func (r *RedisStore) ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return nil, nil
}

// DeleteBatch is implemented for interface completeness; ListExpired never
// returns IDs for this store so it is never actually called in practice.
func (r *RedisStore) DeleteBatch(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
	}
	return r.client.Del(ctx, keys...).Err()
}
