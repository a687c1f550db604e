package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lazypower/matchmaker/internal/store"
)

const profileColumns = `tenant_id, user_id, display_name, real_name, email, organization, role,
	opted_out, last_matched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*store.Profile, error) {
	var p store.Profile
	var lastMatched *int64
	var created, updated int64
	if err := row.Scan(&p.TenantID, &p.UserID, &p.DisplayName, &p.RealName, &p.Email,
		&p.Organization, &p.Role, &p.OptedOut, &lastMatched, &created, &updated); err != nil {
		return nil, err
	}
	p.LastMatchedAt = fromNullMillis(lastMatched)
	p.CreatedAt = fromMillis(created)
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

func (s *Store) GetProfile(ctx context.Context, tenantID, userID string) (*store.Profile, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	row := s.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles
		WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s/%s: %w", tenantID, userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", store.Classify(ctx, err, nil))
	}
	return p, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *store.Profile) error {
	if p.TenantID == "" || p.UserID == "" {
		return fmt.Errorf("upsert profile: tenant_id and user_id required")
	}
	ctx, cancel := s.op(ctx)
	defer cancel()

	now := toMillis(time.Now())
	_, err := s.ExecContext(ctx, `
		INSERT INTO profiles (tenant_id, user_id, display_name, real_name, email, organization, role,
			opted_out, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			real_name    = EXCLUDED.real_name,
			email        = EXCLUDED.email,
			organization = EXCLUDED.organization,
			role         = EXCLUDED.role,
			updated_at   = EXCLUDED.updated_at
	`, p.TenantID, p.UserID, p.DisplayName, p.RealName, p.Email, p.Organization, p.Role, p.OptedOut, now)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return nil
}

func (s *Store) SetOptOut(ctx context.Context, tenantID, userID string, optedOut bool) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	now := toMillis(time.Now())
	_, err := s.ExecContext(ctx, `
		INSERT INTO profiles (tenant_id, user_id, opted_out, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (tenant_id, user_id) DO UPDATE SET
			opted_out  = EXCLUDED.opted_out,
			updated_at = EXCLUDED.updated_at
	`, tenantID, userID, optedOut, now)
	if err != nil {
		return fmt.Errorf("set opt-out: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return nil
}

func (s *Store) GetChannel(ctx context.Context, tenantID, channelID string) (*store.Channel, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var c store.Channel
	var lastSynced *int64
	var created, updated int64
	err := s.QueryRowContext(ctx, `
		SELECT c.tenant_id, c.channel_id, c.name, c.is_private, c.last_synced_at, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM channel_members m WHERE m.tenant_id = c.tenant_id AND m.channel_id = c.channel_id)
		FROM channels c WHERE c.tenant_id = $1 AND c.channel_id = $2
	`, tenantID, channelID).Scan(&c.TenantID, &c.ChannelID, &c.Name, &c.IsPrivate, &lastSynced,
		&created, &updated, &c.MemberCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %s/%s: %w", tenantID, channelID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", store.Classify(ctx, err, nil))
	}
	c.LastSyncedAt = fromNullMillis(lastSynced)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

func (s *Store) UpsertChannel(ctx context.Context, c *store.Channel) error {
	if c.TenantID == "" || c.ChannelID == "" {
		return fmt.Errorf("upsert channel: tenant_id and channel_id required")
	}
	ctx, cancel := s.op(ctx)
	defer cancel()

	now := toMillis(time.Now())
	_, err := s.ExecContext(ctx, `
		INSERT INTO channels (tenant_id, channel_id, name, is_private, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (tenant_id, channel_id) DO UPDATE SET
			name       = EXCLUDED.name,
			is_private = EXCLUDED.is_private,
			updated_at = EXCLUDED.updated_at
	`, c.TenantID, c.ChannelID, c.Name, c.IsPrivate, now)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return nil
}

func (s *Store) AddChannelMember(ctx context.Context, tenantID, channelID, userID string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	result, err := s.ExecContext(ctx, `
		INSERT INTO channel_members (tenant_id, channel_id, user_id, joined_at)
		SELECT tenant_id, channel_id, $1, $2 FROM channels WHERE tenant_id = $3 AND channel_id = $4
		ON CONFLICT (tenant_id, channel_id, user_id) DO NOTHING
	`, userID, toMillis(time.Now()), tenantID, channelID)
	if err != nil {
		return fmt.Errorf("add channel member: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := s.GetChannel(ctx, tenantID, channelID); err != nil {
			return fmt.Errorf("add channel member: %w", err)
		}
	}
	return nil
}

func (s *Store) RemoveChannelMember(ctx context.Context, tenantID, channelID, userID string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	_, err := s.ExecContext(ctx, `
		DELETE FROM channel_members WHERE tenant_id = $1 AND channel_id = $2 AND user_id = $3
	`, tenantID, channelID, userID)
	if err != nil {
		return fmt.Errorf("remove channel member: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return nil
}

func (s *Store) ReplaceChannelMembers(ctx context.Context, tenantID, channelID string, userIDs []string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace members: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	defer func() { _ = tx.Rollback() }()

	now := toMillis(time.Now())
	result, err := tx.ExecContext(ctx, `
		UPDATE channels SET last_synced_at = $1, updated_at = $1 WHERE tenant_id = $2 AND channel_id = $3
	`, now, tenantID, channelID)
	if err != nil {
		return fmt.Errorf("stamp channel sync: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("channel %s/%s: %w", tenantID, channelID, store.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM channel_members WHERE tenant_id = $1 AND channel_id = $2
	`, tenantID, channelID); err != nil {
		return fmt.Errorf("clear channel members: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channel_members (tenant_id, channel_id, user_id, joined_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (tenant_id, channel_id, user_id) DO NOTHING
		`, tenantID, channelID, userID, now); err != nil {
			return fmt.Errorf("insert channel member: %w", store.Classify(ctx, err, store.ErrPersistence))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace members: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return nil
}

func (s *Store) ChannelMembers(ctx context.Context, tenantID, channelID string) ([]store.Profile, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	rows, err := s.QueryContext(ctx, `
		SELECT p.tenant_id, p.user_id, p.display_name, p.real_name, p.email, p.organization, p.role,
			p.opted_out, p.last_matched_at, p.created_at, p.updated_at
		FROM channel_members m
		JOIN profiles p ON p.tenant_id = m.tenant_id AND p.user_id = m.user_id
		WHERE m.tenant_id = $1 AND m.channel_id = $2
		ORDER BY p.user_id
	`, tenantID, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel members: %w", store.Classify(ctx, err, nil))
	}
	defer func() { _ = rows.Close() }()

	var members []store.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", store.Classify(ctx, err, nil))
		}
		members = append(members, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channel members: %w", store.Classify(ctx, err, nil))
	}
	return members, nil
}
