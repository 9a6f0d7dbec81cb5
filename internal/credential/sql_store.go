package credential

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/thearchitectit/mcp-runtime/internal/circuitbreaker"
	"github.com/thearchitectit/mcp-runtime/internal/database"
)

// joinList / splitList encode a string slice as a comma-joined column so the
// credential schema stays driver-agnostic (no dependency on a pgx/lib-pq
// specific array type) for the two list-valued fields that need persisting.
func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// SQLStore persists credentials in Postgres. Every call is routed through a
// circuit breaker so a struggling database degrades to fast failures instead
// of stalling every incoming MCP request.
type SQLStore struct {
	db      *database.DB
	breaker *gobreaker.CircuitBreaker
}

// NewSQLStore wraps a database handle with the shared credential-store
// circuit breaker from the breaker manager.
func NewSQLStore(db *database.DB, breakers *circuitbreaker.Manager) *SQLStore {
	return &SQLStore{db: db, breaker: breakers.DBBreaker}
}

func (s *SQLStore) execute(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
}

func (s *SQLStore) Lookup(ctx context.Context, secret string) (*Credential, error) {
	hash := HashSecret(secret)
	res, err := s.execute(ctx, func(ctx context.Context) (interface{}, error) {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, name, secret_hash, role, permissions, created_at, expires_at, revoked, disabled, ip_whitelist
			FROM credentials WHERE secret_hash = $1`, hash)
		return scanCredential(row)
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return res.(*Credential), nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Credential, error) {
	res, err := s.execute(ctx, func(ctx context.Context) (interface{}, error) {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, name, secret_hash, role, permissions, created_at, expires_at, revoked, disabled, ip_whitelist
			FROM credentials WHERE id = $1`, id)
		return scanCredential(row)
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return res.(*Credential), nil
}

func (s *SQLStore) Create(ctx context.Context, cred *Credential) (string, error) {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	_, err := s.execute(ctx, func(ctx context.Context) (interface{}, error) {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO credentials (id, name, secret_hash, role, permissions, created_at, expires_at, revoked, disabled, ip_whitelist)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			cred.ID, cred.Name, cred.SecretHash, cred.Role, joinList(cred.Permissions),
			cred.CreatedAt, cred.ExpiresAt, cred.Revoked, cred.Disabled, joinList(cred.IPWhitelist))
		return nil, err
	})
	if err != nil {
		return "", translateErr(err)
	}
	return cred.ID, nil
}

func (s *SQLStore) Revoke(ctx context.Context, id string) error {
	res, err := s.execute(ctx, func(ctx context.Context) (interface{}, error) {
		return s.db.ExecContext(ctx, `UPDATE credentials SET revoked = true WHERE id = $1`, id)
	})
	if err != nil {
		return translateErr(err)
	}
	rows, _ := res.(sql.Result).RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]*Credential, error) {
	res, err := s.execute(ctx, func(ctx context.Context) (interface{}, error) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, secret_hash, role, permissions, created_at, expires_at, revoked, disabled, ip_whitelist
			FROM credentials ORDER BY created_at DESC`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []*Credential
		for rows.Next() {
			c, err := scanCredentialRows(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, rows.Err()
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return res.([]*Credential), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanCredential(row scanner) (*Credential, error) {
	return scanCredentialRows(row)
}

func scanCredentialRows(row scanner) (*Credential, error) {
	var c Credential
	var permissions, ipWhitelist string
	if err := row.Scan(&c.ID, &c.Name, &c.SecretHash, &c.Role, &permissions,
		&c.CreatedAt, &c.ExpiresAt, &c.Revoked, &c.Disabled, &ipWhitelist); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c.Permissions = splitList(permissions)
	c.IPWhitelist = splitList(ipWhitelist)
	return &c, nil
}

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("credential store unavailable: %w", err)
	}
	return err
}
