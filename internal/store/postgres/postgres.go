// Package postgres implements the matchmaker stores on PostgreSQL through
// the pgx database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/lazypower/matchmaker/internal/store"
)

// Store is a PostgreSQL-backed store.Backend.
type Store struct {
	*sql.DB
	// Timeout bounds each store operation. Zero means store.DefaultTimeout.
	Timeout time.Duration
}

var _ store.Backend = (*Store)(nil)

// Open connects with the given DSN, verifies connectivity and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &Store{DB: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) op(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = store.DefaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func fromNullMillis(v *int64) *time.Time {
	if v == nil {
		return nil
	}
	t := fromMillis(*v)
	return &t
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		tenant_id       TEXT NOT NULL,
		user_id         TEXT NOT NULL,
		display_name    TEXT NOT NULL DEFAULT '',
		real_name       TEXT NOT NULL DEFAULT '',
		email           TEXT NOT NULL DEFAULT '',
		organization    TEXT NOT NULL DEFAULT '',
		role            TEXT NOT NULL DEFAULT '',
		opted_out       BOOLEAN NOT NULL DEFAULT FALSE,
		last_matched_at BIGINT,
		created_at      BIGINT NOT NULL,
		updated_at      BIGINT NOT NULL,
		PRIMARY KEY (tenant_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		tenant_id      TEXT NOT NULL,
		channel_id     TEXT NOT NULL,
		name           TEXT NOT NULL DEFAULT '',
		is_private     BOOLEAN NOT NULL DEFAULT FALSE,
		last_synced_at BIGINT,
		created_at     BIGINT NOT NULL,
		updated_at     BIGINT NOT NULL,
		PRIMARY KEY (tenant_id, channel_id)
	)`,
	`CREATE TABLE IF NOT EXISTS channel_members (
		tenant_id  TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		user_id    TEXT NOT NULL,
		joined_at  BIGINT NOT NULL,
		PRIMARY KEY (tenant_id, channel_id, user_id),
		FOREIGN KEY (tenant_id, channel_id) REFERENCES channels(tenant_id, channel_id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_members_user ON channel_members(tenant_id, user_id)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id               UUID PRIMARY KEY,
		tenant_id        TEXT NOT NULL,
		requester_id     TEXT NOT NULL,
		candidate_id     TEXT NOT NULL,
		channel_id       TEXT NOT NULL,
		status           TEXT NOT NULL DEFAULT 'suggested' CHECK (status IN ('suggested', 'accepted', 'rejected', 'expired')),
		interaction_type TEXT NOT NULL DEFAULT 'none' CHECK (interaction_type IN ('none', 'direct_message', 'calendar')),
		score            DOUBLE PRECISION NOT NULL CHECK (score >= 0),
		created_at       BIGINT NOT NULL,
		updated_at       BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_pairing ON matches(tenant_id, requester_id, candidate_id, channel_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_candidate ON matches(tenant_id, candidate_id)`,
}
