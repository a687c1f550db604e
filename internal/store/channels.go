package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetChannel returns a channel with its current member count, or ErrNotFound.
func (db *DB) GetChannel(ctx context.Context, tenantID, channelID string) (*Channel, error) {
	ctx, cancel := db.op(ctx)
	defer cancel()

	var c Channel
	var isPrivate int
	var lastSynced *int64
	var created, updated int64
	err := db.QueryRowContext(ctx, `
		SELECT c.tenant_id, c.channel_id, c.name, c.is_private, c.last_synced_at, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM channel_members m WHERE m.tenant_id = c.tenant_id AND m.channel_id = c.channel_id)
		FROM channels c WHERE c.tenant_id = ? AND c.channel_id = ?
	`, tenantID, channelID).Scan(&c.TenantID, &c.ChannelID, &c.Name, &isPrivate, &lastSynced,
		&created, &updated, &c.MemberCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("channel %s/%s: %w", tenantID, channelID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", Classify(ctx, err, nil))
	}
	c.IsPrivate = isPrivate != 0
	c.LastSyncedAt = fromNullMillis(lastSynced)
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

// UpsertChannel creates or renames a channel.
func (db *DB) UpsertChannel(ctx context.Context, c *Channel) error {
	if c.TenantID == "" || c.ChannelID == "" {
		return fmt.Errorf("upsert channel: tenant_id and channel_id required")
	}
	ctx, cancel := db.op(ctx)
	defer cancel()

	now := toMillis(time.Now())
	_, err := db.ExecContext(ctx, `
		INSERT INTO channels (tenant_id, channel_id, name, is_private, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, channel_id) DO UPDATE SET
			name       = excluded.name,
			is_private = excluded.is_private,
			updated_at = excluded.updated_at
	`, c.TenantID, c.ChannelID, c.Name, boolInt(c.IsPrivate), now, now)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", Classify(ctx, err, ErrPersistence))
	}
	return nil
}

// AddChannelMember records that a user joined a channel. Adding an
// existing member is a no-op. The channel must exist.
func (db *DB) AddChannelMember(ctx context.Context, tenantID, channelID, userID string) error {
	ctx, cancel := db.op(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx, `
		INSERT INTO channel_members (tenant_id, channel_id, user_id, joined_at)
		SELECT tenant_id, channel_id, ?, ? FROM channels WHERE tenant_id = ? AND channel_id = ?
		ON CONFLICT (tenant_id, channel_id, user_id) DO NOTHING
	`, userID, toMillis(time.Now()), tenantID, channelID)
	if err != nil {
		return fmt.Errorf("add channel member: %w", Classify(ctx, err, ErrPersistence))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := db.GetChannel(ctx, tenantID, channelID); err != nil {
			return fmt.Errorf("add channel member: %w", err)
		}
	}
	return nil
}

// RemoveChannelMember records that a user left a channel.
func (db *DB) RemoveChannelMember(ctx context.Context, tenantID, channelID, userID string) error {
	ctx, cancel := db.op(ctx)
	defer cancel()

	_, err := db.ExecContext(ctx, `
		DELETE FROM channel_members WHERE tenant_id = ? AND channel_id = ? AND user_id = ?
	`, tenantID, channelID, userID)
	if err != nil {
		return fmt.Errorf("remove channel member: %w", Classify(ctx, err, ErrPersistence))
	}
	return nil
}

// ReplaceChannelMembers swaps the full membership set of a channel, as a
// full channel sync does, and stamps last_synced_at.
func (db *DB) ReplaceChannelMembers(ctx context.Context, tenantID, channelID string, userIDs []string) error {
	ctx, cancel := db.op(ctx)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace members: %w", Classify(ctx, err, ErrPersistence))
	}
	defer tx.Rollback()

	now := toMillis(time.Now())
	result, err := tx.ExecContext(ctx, `
		UPDATE channels SET last_synced_at = ?, updated_at = ? WHERE tenant_id = ? AND channel_id = ?
	`, now, now, tenantID, channelID)
	if err != nil {
		return fmt.Errorf("stamp channel sync: %w", Classify(ctx, err, ErrPersistence))
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("channel %s/%s: %w", tenantID, channelID, ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM channel_members WHERE tenant_id = ? AND channel_id = ?
	`, tenantID, channelID); err != nil {
		return fmt.Errorf("clear channel members: %w", Classify(ctx, err, ErrPersistence))
	}

	for _, userID := range userIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channel_members (tenant_id, channel_id, user_id, joined_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (tenant_id, channel_id, user_id) DO NOTHING
		`, tenantID, channelID, userID, now); err != nil {
			return fmt.Errorf("insert channel member: %w", Classify(ctx, err, ErrPersistence))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace members: %w", Classify(ctx, err, ErrPersistence))
	}
	return nil
}

// ChannelMembers returns the profiles of every synced member of a channel,
// opted-out members included. Members without a profile are omitted.
func (db *DB) ChannelMembers(ctx context.Context, tenantID, channelID string) ([]Profile, error) {
	ctx, cancel := db.op(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT p.tenant_id, p.user_id, p.display_name, p.real_name, p.email, p.organization, p.role,
			p.opted_out, p.last_matched_at, p.created_at, p.updated_at
		FROM channel_members m
		JOIN profiles p ON p.tenant_id = m.tenant_id AND p.user_id = m.user_id
		WHERE m.tenant_id = ? AND m.channel_id = ?
		ORDER BY p.user_id
	`, tenantID, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel members: %w", Classify(ctx, err, nil))
	}
	defer rows.Close()

	var members []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", Classify(ctx, err, nil))
		}
		members = append(members, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channel members: %w", Classify(ctx, err, nil))
	}
	return members, nil
}
