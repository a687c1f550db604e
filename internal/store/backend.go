package store

import (
	"context"
	"time"
)

// Membership is the profile and channel-membership store. The matching
// engine only reads it; writes come from profile sync and opt-in/opt-out.
type Membership interface {
	GetProfile(ctx context.Context, tenantID, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, p *Profile) error
	SetOptOut(ctx context.Context, tenantID, userID string, optedOut bool) error

	GetChannel(ctx context.Context, tenantID, channelID string) (*Channel, error)
	UpsertChannel(ctx context.Context, c *Channel) error
	AddChannelMember(ctx context.Context, tenantID, channelID, userID string) error
	RemoveChannelMember(ctx context.Context, tenantID, channelID, userID string) error
	ReplaceChannelMembers(ctx context.Context, tenantID, channelID string, userIDs []string) error
	ChannelMembers(ctx context.Context, tenantID, channelID string) ([]Profile, error)
}

// History is the match history store. InsertMatch and RecordInteraction
// are its only mutations and each is atomic.
type History interface {
	PriorPartners(ctx context.Context, tenantID, userID string) (map[string]bool, error)
	InsertMatch(ctx context.Context, m NewMatch) (*Match, error)
	RecordInteraction(ctx context.Context, tenantID, requesterID, candidateID, channelID string, kind InteractionType) (*Match, error)

	GetMatch(ctx context.Context, tenantID, requesterID, candidateID, channelID string) (*Match, error)
	ListMatches(ctx context.Context, tenantID, userID string, limit int) ([]Match, error)
	ExpireSuggestions(ctx context.Context, tenantID string, before time.Time) (int64, error)
}

// Backend is a complete storage driver.
type Backend interface {
	Membership
	History
	PingContext(ctx context.Context) error
	Close() error
}

var _ Backend = (*DB)(nil)
