package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE SCHEMA IF NOT EXISTS hunt;

CREATE TABLE IF NOT EXISTS hunt.events (
	id         text PRIMARY KEY,
	name       text NOT NULL,
	status     text NOT NULL,
	doc        jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS events_status_idx ON hunt.events (status);

CREATE TABLE IF NOT EXISTS hunt.teams (
	event_id   text NOT NULL REFERENCES hunt.events (id) ON DELETE CASCADE,
	team_id    text NOT NULL,
	doc        jsonb NOT NULL,
	version    bigint NOT NULL DEFAULT 0,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (event_id, team_id)
);

CREATE TABLE IF NOT EXISTS hunt.team_audit (
	id          bigserial PRIMARY KEY,
	event_id    text NOT NULL,
	team_id     text NOT NULL,
	version     bigint NOT NULL,
	pot         numeric NOT NULL,
	completions integer NOT NULL,
	doc         jsonb NOT NULL,
	created_at  timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS team_audit_team_idx ON hunt.team_audit (event_id, team_id, version);
`

// Migrate creates the hunt schema when it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
