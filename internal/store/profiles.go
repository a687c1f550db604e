package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const profileColumns = `tenant_id, user_id, display_name, real_name, email, organization, role,
	opted_out, last_matched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var optedOut int
	var lastMatched *int64
	var created, updated int64
	if err := row.Scan(&p.TenantID, &p.UserID, &p.DisplayName, &p.RealName, &p.Email,
		&p.Organization, &p.Role, &optedOut, &lastMatched, &created, &updated); err != nil {
		return nil, err
	}
	p.OptedOut = optedOut != 0
	p.LastMatchedAt = fromNullMillis(lastMatched)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// GetProfile returns a profile, or ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, tenantID, userID string) (*Profile, error) {
	ctx, cancel := db.op(ctx)
	defer cancel()

	row := db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles
		WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s/%s: %w", tenantID, userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", Classify(ctx, err, nil))
	}
	return p, nil
}

// UpsertProfile creates or refreshes a profile from profile sync.
// The opt-out flag and last-matched timestamp are preserved on update.
func (db *DB) UpsertProfile(ctx context.Context, p *Profile) error {
	if p.TenantID == "" || p.UserID == "" {
		return fmt.Errorf("upsert profile: tenant_id and user_id required")
	}
	ctx, cancel := db.op(ctx)
	defer cancel()

	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (tenant_id, user_id, display_name, real_name, email, organization, role,
			opted_out, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			display_name = excluded.display_name,
			real_name    = excluded.real_name,
			email        = excluded.email,
			organization = excluded.organization,
			role         = excluded.role,
			updated_at   = excluded.updated_at
	`, p.TenantID, p.UserID, p.DisplayName, p.RealName, p.Email, p.Organization, p.Role,
		boolInt(p.OptedOut), toMillis(now), toMillis(now))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", Classify(ctx, err, ErrPersistence))
	}
	return nil
}

// SetOptOut sets a member's opt-out flag, creating a bare profile if the
// member has not been synced yet.
func (db *DB) SetOptOut(ctx context.Context, tenantID, userID string, optedOut bool) error {
	ctx, cancel := db.op(ctx)
	defer cancel()

	now := toMillis(time.Now())
	_, err := db.ExecContext(ctx, `
		INSERT INTO profiles (tenant_id, user_id, opted_out, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			opted_out  = excluded.opted_out,
			updated_at = excluded.updated_at
	`, tenantID, userID, boolInt(optedOut), now, now)
	if err != nil {
		return fmt.Errorf("set opt-out: %w", Classify(ctx, err, ErrPersistence))
	}
	return nil
}
