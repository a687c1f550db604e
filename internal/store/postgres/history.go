package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/matchmaker/internal/store"
)

const matchColumns = `id, tenant_id, requester_id, candidate_id, channel_id, status, interaction_type,
	score, created_at, updated_at`

func scanMatch(row rowScanner) (*store.Match, error) {
	var m store.Match
	var status, kind string
	var created, updated int64
	if err := row.Scan(&m.ID, &m.TenantID, &m.RequesterID, &m.CandidateID, &m.ChannelID,
		&status, &kind, &m.Score, &created, &updated); err != nil {
		return nil, err
	}
	m.Status = store.Status(status)
	m.InteractionType = store.InteractionType(kind)
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}

func (s *Store) PriorPartners(ctx context.Context, tenantID, userID string) (map[string]bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	rows, err := s.QueryContext(ctx, `
		SELECT candidate_id FROM matches WHERE tenant_id = $1 AND requester_id = $2
		UNION
		SELECT requester_id FROM matches WHERE tenant_id = $1 AND candidate_id = $2
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("prior partners: %w", store.Classify(ctx, err, nil))
	}
	defer func() { _ = rows.Close() }()

	partners := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan partner: %w", store.Classify(ctx, err, nil))
		}
		partners[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("prior partners: %w", store.Classify(ctx, err, nil))
	}
	return partners, nil
}

// InsertMatch relies on idx_matches_pairing: concurrent inserts for one
// directed triple serialize on the index and all but one fail with 23505.
func (s *Store) InsertMatch(ctx context.Context, nm store.NewMatch) (*store.Match, error) {
	if err := nm.Validate(); err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	ctx, cancel := s.op(ctx)
	defer cancel()

	now := toMillis(time.Now())
	m := &store.Match{
		ID:              uuid.NewString(),
		TenantID:        nm.TenantID,
		RequesterID:     nm.RequesterID,
		CandidateID:     nm.CandidateID,
		ChannelID:       nm.ChannelID,
		Status:          store.StatusSuggested,
		InteractionType: store.InteractionNone,
		Score:           nm.Score,
		CreatedAt:       fromMillis(now),
		UpdatedAt:       fromMillis(now),
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert match: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO matches (`+matchColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, m.ID, m.TenantID, m.RequesterID, m.CandidateID, m.ChannelID,
		string(m.Status), string(m.InteractionType), m.Score, now); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert match %s->%s in %s: %w",
				nm.RequesterID, nm.CandidateID, nm.ChannelID, store.ErrDuplicatePairing)
		}
		return nil, fmt.Errorf("insert match: %w", store.Classify(ctx, err, store.ErrPersistence))
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE profiles SET last_matched_at = $1 WHERE tenant_id = $2 AND user_id = $3
	`, now, nm.TenantID, nm.RequesterID); err != nil {
		return nil, fmt.Errorf("stamp last matched: %w", store.Classify(ctx, err, store.ErrPersistence))
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert match: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return m, nil
}

func (s *Store) RecordInteraction(ctx context.Context, tenantID, requesterID, candidateID, channelID string, kind store.InteractionType) (*store.Match, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	row := s.QueryRowContext(ctx, `
		UPDATE matches SET
			updated_at       = CASE WHEN status = 'accepted' AND interaction_type = $1 THEN updated_at ELSE $2 END,
			status           = 'accepted',
			interaction_type = $1
		WHERE tenant_id = $3 AND requester_id = $4 AND candidate_id = $5 AND channel_id = $6
		RETURNING `+matchColumns,
		string(kind), toMillis(time.Now()), tenantID, requesterID, candidateID, channelID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s->%s in %s: %w", requesterID, candidateID, channelID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("record interaction: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return m, nil
}

func (s *Store) GetMatch(ctx context.Context, tenantID, requesterID, candidateID, channelID string) (*store.Match, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	row := s.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE tenant_id = $1 AND requester_id = $2 AND candidate_id = $3 AND channel_id = $4`,
		tenantID, requesterID, candidateID, channelID)
	m, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("match %s->%s in %s: %w", requesterID, candidateID, channelID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get match: %w", store.Classify(ctx, err, nil))
	}
	return m, nil
}

func (s *Store) ListMatches(ctx context.Context, tenantID, userID string, limit int) ([]store.Match, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := s.op(ctx)
	defer cancel()

	rows, err := s.QueryContext(ctx, `SELECT `+matchColumns+` FROM matches
		WHERE tenant_id = $1 AND (requester_id = $2 OR candidate_id = $2)
		ORDER BY created_at DESC, id
		LIMIT $3`, tenantID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", store.Classify(ctx, err, nil))
	}
	defer func() { _ = rows.Close() }()

	var matches []store.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", store.Classify(ctx, err, nil))
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (s *Store) ExpireSuggestions(ctx context.Context, tenantID string, before time.Time) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	result, err := s.ExecContext(ctx, `
		UPDATE matches SET status = 'expired', updated_at = $1
		WHERE tenant_id = $2 AND status = 'suggested' AND created_at < $3
	`, toMillis(time.Now()), tenantID, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("expire suggestions: %w", store.Classify(ctx, err, store.ErrPersistence))
	}
	return result.RowsAffected()
}
