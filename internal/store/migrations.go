package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "profiles: per-tenant member attributes",
		SQL: `
CREATE TABLE profiles (
    tenant_id       TEXT NOT NULL,
    user_id         TEXT NOT NULL,
    display_name    TEXT NOT NULL DEFAULT '',
    real_name       TEXT NOT NULL DEFAULT '',
    email           TEXT NOT NULL DEFAULT '',
    organization    TEXT NOT NULL DEFAULT '',
    role            TEXT NOT NULL DEFAULT '',
    opted_out       INTEGER NOT NULL DEFAULT 0,
    last_matched_at INTEGER,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL,

    PRIMARY KEY (tenant_id, user_id)
);
`,
	},
	{
		Version:     2,
		Description: "channels: channel records and membership sets",
		SQL: `
CREATE TABLE channels (
    tenant_id      TEXT NOT NULL,
    channel_id     TEXT NOT NULL,
    name           TEXT NOT NULL DEFAULT '',
    is_private     INTEGER NOT NULL DEFAULT 0,
    last_synced_at INTEGER,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,

    PRIMARY KEY (tenant_id, channel_id)
);

CREATE TABLE channel_members (
    tenant_id  TEXT NOT NULL,
    channel_id TEXT NOT NULL,
    user_id    TEXT NOT NULL,
    joined_at  INTEGER NOT NULL,

    PRIMARY KEY (tenant_id, channel_id, user_id),
    FOREIGN KEY (tenant_id, channel_id) REFERENCES channels(tenant_id, channel_id) ON DELETE CASCADE
);

CREATE INDEX idx_members_user ON channel_members(tenant_id, user_id);
`,
	},
	{
		Version:     3,
		Description: "matches: directed pairing history",
		SQL: `
CREATE TABLE matches (
    id               TEXT PRIMARY KEY,
    tenant_id        TEXT NOT NULL,
    requester_id     TEXT NOT NULL,
    candidate_id     TEXT NOT NULL,
    channel_id       TEXT NOT NULL,
    status           TEXT NOT NULL DEFAULT 'suggested' CHECK (status IN ('suggested', 'accepted', 'rejected', 'expired')),
    interaction_type TEXT NOT NULL DEFAULT 'none' CHECK (interaction_type IN ('none', 'direct_message', 'calendar')),
    score            REAL NOT NULL CHECK (score >= 0),
    created_at       INTEGER NOT NULL,
    updated_at       INTEGER NOT NULL
);

CREATE UNIQUE INDEX idx_matches_pairing   ON matches(tenant_id, requester_id, candidate_id, channel_id);
CREATE INDEX        idx_matches_candidate ON matches(tenant_id, candidate_id);
CREATE INDEX        idx_matches_created   ON matches(created_at DESC);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
