package store

import (
	"fmt"
	"time"
)

// Profile is a member's matching-relevant attributes within a tenant.
type Profile struct {
	TenantID      string     `json:"tenant_id"`
	UserID        string     `json:"user_id"`
	DisplayName   string     `json:"display_name,omitempty"`
	RealName      string     `json:"real_name,omitempty"`
	Email         string     `json:"email,omitempty"`
	Organization  string     `json:"organization,omitempty"`
	Role          string     `json:"role,omitempty"`
	OptedOut      bool       `json:"opted_out"`
	LastMatchedAt *time.Time `json:"last_matched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Channel is a named group of members within a tenant.
type Channel struct {
	TenantID     string     `json:"tenant_id"`
	ChannelID    string     `json:"channel_id"`
	Name         string     `json:"name,omitempty"`
	IsPrivate    bool       `json:"is_private"`
	MemberCount  int        `json:"member_count"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Status is the lifecycle state of a match record.
type Status string

const (
	StatusSuggested Status = "suggested"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// InteractionType records what the requester did with a suggestion.
type InteractionType string

const (
	InteractionNone          InteractionType = "none"
	InteractionDirectMessage InteractionType = "direct_message"
	InteractionCalendar      InteractionType = "calendar"
)

// ParseInteractionType validates a wire value.
func ParseInteractionType(s string) (InteractionType, error) {
	switch t := InteractionType(s); t {
	case InteractionNone, InteractionDirectMessage, InteractionCalendar:
		return t, nil
	}
	return "", fmt.Errorf("unknown interaction type %q", s)
}

// Match is one directed pairing: a candidate suggested to a requester in a channel.
type Match struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenant_id"`
	RequesterID     string          `json:"requester_id"`
	CandidateID     string          `json:"candidate_id"`
	ChannelID       string          `json:"channel_id"`
	Status          Status          `json:"status"`
	InteractionType InteractionType `json:"interaction_type"`
	Score           float64         `json:"score"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewMatch carries the fields required to insert a match record.
type NewMatch struct {
	TenantID    string
	RequesterID string
	CandidateID string
	ChannelID   string
	Score       float64
}

// Validate rejects records that must never be persisted.
func (m NewMatch) Validate() error {
	switch {
	case m.TenantID == "":
		return fmt.Errorf("tenant_id required")
	case m.RequesterID == "":
		return fmt.Errorf("requester_id required")
	case m.CandidateID == "":
		return fmt.Errorf("candidate_id required")
	case m.ChannelID == "":
		return fmt.Errorf("channel_id required")
	case m.RequesterID == m.CandidateID:
		return fmt.Errorf("requester and candidate must differ")
	case m.Score < 0:
		return fmt.Errorf("score must be >= 0, got %f", m.Score)
	}
	return nil
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
