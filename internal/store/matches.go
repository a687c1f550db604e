package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const matchColumns = `id, tenant_id, requester_id, candidate_id, channel_id, status, interaction_type,
	score, created_at, updated_at`

func scanMatch(row rowScanner) (*Match, error) {
	var m Match
	var status, kind string
	var created, updated int64
	if err := row.Scan(&m.ID, &m.TenantID, &m.RequesterID, &m.CandidateID, &m.ChannelID,
		&status, &kind, &m.Score, &created, &updated); err != nil {
		return nil, err
	}
	m.Status = Status(status)
	m.InteractionType = InteractionType(kind)
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}

// PriorPartners returns everyone the user has been paired with in either
// direction, across every channel of the tenant.
func (db *DB) PriorPartners(ctx context.Context, tenantID, userID string) (map[string]bool, error) {
	ctx, cancel := db.op(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, `
		SELECT candidate_id FROM matches WHERE tenant_id = ? AND requester_id = ?
		UNION
		SELECT requester_id FROM matches WHERE tenant_id = ? AND candidate_id = ?
	`, tenantID, userID, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("prior partners: %w", Classify(ctx, err, nil))
	}
	defer rows.Close()

	partners := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan partner: %w", Classify(ctx, err, nil))
		}
		partners[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prior partners: %w", Classify(ctx, err, nil))
	}
	return partners, nil
}

// InsertMatch persists a new suggestion and stamps the requester's
// last_matched_at in the same transaction. The unique pairing index makes
// the check-and-insert atomic: a second insert for the same directed triple
// fails with ErrDuplicatePairing.
func (db *DB) InsertMatch(ctx context.Context, nm NewMatch) (*Match, error) {
	if err := nm.Validate(); err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	ctx, cancel := db.op(ctx)
	defer cancel()

	now := time.Now()
	m := &Match{
		ID:              uuid.NewString(),
		TenantID:        nm.TenantID,
		RequesterID:     nm.RequesterID,
		CandidateID:     nm.CandidateID,
		ChannelID:       nm.ChannelID,
		Status:          StatusSuggested,
		InteractionType: InteractionNone,
		Score:           nm.Score,
		CreatedAt:       fromMillis(toMillis(now)),
		UpdatedAt:       fromMillis(toMillis(now)),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert match: %w", Classify(ctx, err, ErrPersistence))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.TenantID, m.RequesterID, m.CandidateID, m.ChannelID,
		string(m.Status), string(m.InteractionType), m.Score, toMillis(now), toMillis(now)); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert match %s->%s in %s: %w",
				nm.RequesterID, nm.CandidateID, nm.ChannelID, ErrDuplicatePairing)
		}
		return nil, fmt.Errorf("insert match: %w", Classify(ctx, err, ErrPersistence))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profiles SET last_matched_at = ? WHERE tenant_id = ? AND user_id = ?
	`, toMillis(now), nm.TenantID, nm.RequesterID); err != nil {
		return nil, fmt.Errorf("stamp last matched: %w", Classify(ctx, err, ErrPersistence))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert match: %w", Classify(ctx, err, ErrPersistence))
	}
	return m, nil
}

// RecordInteraction marks a directed match accepted with the given
// interaction. Repeating the same interaction leaves the record untouched,
// updated_at included.
func (db *DB) RecordInteraction(ctx context.Context, tenantID, requesterID, candidateID, channelID string, kind InteractionType) (*Match, error) {
	ctx, cancel := db.op(ctx)
	defer cancel()

	row := db.QueryRowContext(ctx, `
		UPDATE matches SET
			updated_at       = CASE WHEN status = 'accepted' AND interaction_type = ? THEN updated_at ELSE ? END,
			status           = 'accepted',
			interaction_type = ?
		WHERE tenant_id = ? AND requester_id = ? AND candidate_id = ? AND channel_id = ?
		RETURNING `+matchColumns,
		string(kind), toMillis(time.Now()), string(kind), tenantID, requesterID, candidateID, channelID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s->%s in %s: %w", requesterID, candidateID, channelID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record interaction: %w", Classify(ctx, err, ErrPersistence))
	}
	return m, nil
}

// GetMatch returns the record for a directed triple, or ErrNotFound.
func (db *DB) GetMatch(ctx context.Context, tenantID, requesterID, candidateID, channelID string) (*Match, error) {
	ctx, cancel := db.op(ctx)
	defer cancel()

	row := db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE tenant_id = ? AND requester_id = ? AND candidate_id = ? AND channel_id = ?`,
		tenantID, requesterID, candidateID, channelID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s->%s in %s: %w", requesterID, candidateID, channelID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", Classify(ctx, err, nil))
	}
	return m, nil
}

// ListMatches returns the user's match records in either direction, newest first.
func (db *DB) ListMatches(ctx context.Context, tenantID, userID string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := db.op(ctx)
	defer cancel()

	rows, err := db.QueryContext(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE tenant_id = ? AND (requester_id = ? OR candidate_id = ?)
		ORDER BY created_at DESC, id
		LIMIT ?`, tenantID, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", Classify(ctx, err, nil))
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", Classify(ctx, err, nil))
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// ExpireSuggestions moves suggestions created before the cutoff to expired.
// Nothing calls this on a schedule; the cutoff is always caller-supplied.
func (db *DB) ExpireSuggestions(ctx context.Context, tenantID string, before time.Time) (int64, error) {
	ctx, cancel := db.op(ctx)
	defer cancel()

	result, err := db.ExecContext(ctx, `
		UPDATE matches SET status = 'expired', updated_at = ?
		WHERE tenant_id = ? AND status = 'suggested' AND created_at < ?
	`, toMillis(time.Now()), tenantID, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("expire suggestions: %w", Classify(ctx, err, ErrPersistence))
	}
	return result.RowsAffected()
}
