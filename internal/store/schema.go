// File: internal/store/schema.go
package store

import (
	"context"
	"fmt"
)

// schemaDDL is idempotent; EnsureSchema can run on every startup.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS accounts (
	username     TEXT PRIMARY KEY,
	password     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'waiting',
	browser_open BOOLEAN NOT NULL DEFAULT FALSE,
	login_time   TIMESTAMPTZ,
	message      TEXT NOT NULL DEFAULT '',
	last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	id         UUID PRIMARY KEY,
	username   TEXT NOT NULL REFERENCES accounts (username),
	start_time TIMESTAMPTZ NOT NULL,
	end_time   TIMESTAMPTZ,
	duration   INTEGER NOT NULL DEFAULT 0,
	is_active  BOOLEAN NOT NULL DEFAULT TRUE,
	status     TEXT NOT NULL DEFAULT 'active'
);

CREATE INDEX IF NOT EXISTS idx_sessions_username_start ON sessions (username, start_time);

CREATE TABLE IF NOT EXISTS logs (
	id      BIGSERIAL PRIMARY KEY,
	username TEXT,
	ts      TIMESTAMPTZ NOT NULL DEFAULT now(),
	status  TEXT NOT NULL,
	reason  TEXT NOT NULL DEFAULT '',
	details JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_logs_ts ON logs (ts DESC);
`

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	p.log.Info("Database schema verified.")
	return nil
}
