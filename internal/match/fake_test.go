package match

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lazypower/matchmaker/internal/store"
)

// fakeStore is an in-memory Members + History + Interactions double.
type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]store.Profile
	channels map[string][]string
	matches  map[[3]string]*store.Match

	// failInsert maps candidate ID to the error InsertMatch returns for it.
	failInsert   map[string]error
	partnersErr  error
	onMembers    func()
	inserts      int
	channelReads int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		profiles:   make(map[string]store.Profile),
		channels:   make(map[string][]string),
		matches:    make(map[[3]string]*store.Match),
		failInsert: make(map[string]error),
	}
}

func (f *fakeStore) addProfile(p store.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.TenantID = "T1"
	f.profiles[p.UserID] = p
}

func (f *fakeStore) addChannel(id string, members ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = members
}

func (f *fakeStore) GetProfile(ctx context.Context, tenantID, userID string) (*store.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", userID, store.ErrNotFound)
	}
	return &p, nil
}

func (f *fakeStore) GetChannel(ctx context.Context, tenantID, channelID string) (*store.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channelReads++
	members, ok := f.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s: %w", channelID, store.ErrNotFound)
	}
	return &store.Channel{TenantID: tenantID, ChannelID: channelID, MemberCount: len(members)}, nil
}

func (f *fakeStore) ChannelMembers(ctx context.Context, tenantID, channelID string) ([]store.Profile, error) {
	if f.onMembers != nil {
		f.onMembers()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Profile
	for _, id := range f.channels[channelID] {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) PriorPartners(ctx context.Context, tenantID, userID string) (map[string]bool, error) {
	if f.partnersErr != nil {
		return nil, f.partnersErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	partners := make(map[string]bool)
	for _, m := range f.matches {
		switch userID {
		case m.RequesterID:
			partners[m.CandidateID] = true
		case m.CandidateID:
			partners[m.RequesterID] = true
		}
	}
	return partners, nil
}

func (f *fakeStore) InsertMatch(ctx context.Context, nm store.NewMatch) (*store.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	if err := f.failInsert[nm.CandidateID]; err != nil {
		return nil, err
	}
	key := [3]string{nm.RequesterID, nm.CandidateID, nm.ChannelID}
	if _, ok := f.matches[key]; ok {
		return nil, fmt.Errorf("insert: %w", store.ErrDuplicatePairing)
	}
	now := time.Now()
	m := &store.Match{
		ID: fmt.Sprintf("m%d", len(f.matches)+1), TenantID: nm.TenantID,
		RequesterID: nm.RequesterID, CandidateID: nm.CandidateID, ChannelID: nm.ChannelID,
		Status: store.StatusSuggested, InteractionType: store.InteractionNone,
		Score: nm.Score, CreatedAt: now, UpdatedAt: now,
	}
	f.matches[key] = m
	return m, nil
}

func (f *fakeStore) RecordInteraction(ctx context.Context, tenantID, requesterID, candidateID, channelID string, kind store.InteractionType) (*store.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[[3]string{requesterID, candidateID, channelID}]
	if !ok {
		return nil, fmt.Errorf("match: %w", store.ErrNotFound)
	}
	m.Status = store.StatusAccepted
	m.InteractionType = kind
	out := *m
	return &out, nil
}

func (f *fakeStore) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts
}
