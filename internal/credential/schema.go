package credential

import (
	"context"
	"database/sql"
)

// schemaSQL creates the credentials table used by SQLStore. Permissions and
// IPWhitelist are persisted as comma-joined text (see joinList/splitList)
// rather than a driver-specific array type, so the same statement works
// against both the pgx and sqlite backings.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS credentials (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	secret_hash  TEXT NOT NULL UNIQUE,
	role         TEXT NOT NULL,
	permissions  TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ,
	revoked      BOOLEAN NOT NULL DEFAULT FALSE,
	disabled     BOOLEAN NOT NULL DEFAULT FALSE,
	ip_whitelist TEXT NOT NULL DEFAULT ''
);
`

// sqlExecer is satisfied by *database.DB (which embeds *sql.DB).
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// EnsureSchema creates the credentials table if it does not already exist.
func EnsureSchema(ctx context.Context, db sqlExecer) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}
