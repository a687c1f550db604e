// Package storetest is a compliance suite shared by every store driver.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/matchmaker/internal/store"
)

// Run exercises the Membership and History contracts against a driver.
// makeStore must return a migrated backend; the suite namespaces its data
// under a fresh tenant so drivers may share one database across runs.
func Run(t *testing.T, makeStore func(t *testing.T) store.Backend) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Backend, tenant string)
	}{
		{"ProfileNotFound", testProfileNotFound},
		{"UpsertProfile", testUpsertProfile},
		{"SetOptOutCreatesProfile", testSetOptOutCreatesProfile},
		{"ChannelMembership", testChannelMembership},
		{"ReplaceChannelMembers", testReplaceChannelMembers},
		{"InsertMatch", testInsertMatch},
		{"DuplicatePairing", testDuplicatePairing},
		{"ConcurrentInsert", testConcurrentInsert},
		{"PriorPartnersBothDirections", testPriorPartners},
		{"RecordInteraction", testRecordInteraction},
		{"RecordInteractionIdempotent", testRecordInteractionIdempotent},
		{"ListMatches", testListMatches},
		{"ExpireSuggestions", testExpireSuggestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := makeStore(t)
			tt.fn(t, s, "T-"+uuid.NewString())
		})
	}
}

func seedProfile(t *testing.T, s store.Backend, tenant, user, org, role string) {
	t.Helper()
	p := &store.Profile{TenantID: tenant, UserID: user, Organization: org, Role: role}
	if err := s.UpsertProfile(context.Background(), p); err != nil {
		t.Fatalf("UpsertProfile %s: %v", user, err)
	}
}

func seedChannel(t *testing.T, s store.Backend, tenant, channel string, members ...string) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertChannel(ctx, &store.Channel{TenantID: tenant, ChannelID: channel, Name: channel}); err != nil {
		t.Fatalf("UpsertChannel %s: %v", channel, err)
	}
	for _, m := range members {
		if err := s.AddChannelMember(ctx, tenant, channel, m); err != nil {
			t.Fatalf("AddChannelMember %s: %v", m, err)
		}
	}
}

func insert(t *testing.T, s store.Backend, tenant, requester, candidate, channel string, score float64) *store.Match {
	t.Helper()
	m, err := s.InsertMatch(context.Background(), store.NewMatch{
		TenantID: tenant, RequesterID: requester, CandidateID: candidate, ChannelID: channel, Score: score,
	})
	if err != nil {
		t.Fatalf("InsertMatch %s->%s: %v", requester, candidate, err)
	}
	return m
}

func testProfileNotFound(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	if _, err := s.GetProfile(ctx, tenant, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetProfile err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetChannel(ctx, tenant, "nowhere"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetChannel err = %v, want ErrNotFound", err)
	}
}

func testUpsertProfile(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	seedProfile(t, s, tenant, "U1", "Acme", "Software Engineer")

	if err := s.SetOptOut(ctx, tenant, "U1", true); err != nil {
		t.Fatalf("SetOptOut: %v", err)
	}
	// A later sync must not clear the opt-out.
	seedProfile(t, s, tenant, "U1", "Globex", "Staff Engineer")

	p, err := s.GetProfile(ctx, tenant, "U1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.Organization != "Globex" {
		t.Errorf("Organization = %q, want Globex", p.Organization)
	}
	if p.Role != "Staff Engineer" {
		t.Errorf("Role = %q, want Staff Engineer", p.Role)
	}
	if !p.OptedOut {
		t.Error("OptedOut = false after resync, want true")
	}
	if p.LastMatchedAt != nil {
		t.Errorf("LastMatchedAt = %v, want nil", p.LastMatchedAt)
	}
}

func testSetOptOutCreatesProfile(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	if err := s.SetOptOut(ctx, tenant, "U9", true); err != nil {
		t.Fatalf("SetOptOut: %v", err)
	}
	p, err := s.GetProfile(ctx, tenant, "U9")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if !p.OptedOut {
		t.Error("OptedOut = false, want true")
	}

	if err := s.SetOptOut(ctx, tenant, "U9", false); err != nil {
		t.Fatalf("SetOptOut(false): %v", err)
	}
	p, _ = s.GetProfile(ctx, tenant, "U9")
	if p.OptedOut {
		t.Error("OptedOut = true after opt-in, want false")
	}
}

func testChannelMembership(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	seedProfile(t, s, tenant, "U1", "Acme", "")
	seedProfile(t, s, tenant, "U2", "Globex", "")
	seedChannel(t, s, tenant, "C1", "U1", "U2", "U3")

	// Re-adding is a no-op.
	if err := s.AddChannelMember(ctx, tenant, "C1", "U1"); err != nil {
		t.Fatalf("AddChannelMember again: %v", err)
	}
	if err := s.AddChannelMember(ctx, tenant, "C404", "U1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("AddChannelMember to missing channel err = %v, want ErrNotFound", err)
	}

	c, err := s.GetChannel(ctx, tenant, "C1")
	if err != nil {
		t.Fatalf("GetChannel: %v", err)
	}
	if c.MemberCount != 3 {
		t.Errorf("MemberCount = %d, want 3", c.MemberCount)
	}

	// U3 has no synced profile and is left out.
	members, err := s.ChannelMembers(ctx, tenant, "C1")
	if err != nil {
		t.Fatalf("ChannelMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("got %d members, want 2", len(members))
	}
	if members[0].UserID != "U1" || members[1].UserID != "U2" {
		t.Errorf("members = %s,%s want U1,U2", members[0].UserID, members[1].UserID)
	}

	if err := s.RemoveChannelMember(ctx, tenant, "C1", "U2"); err != nil {
		t.Fatalf("RemoveChannelMember: %v", err)
	}
	members, _ = s.ChannelMembers(ctx, tenant, "C1")
	if len(members) != 1 {
		t.Errorf("got %d members after remove, want 1", len(members))
	}
}

func testReplaceChannelMembers(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	seedProfile(t, s, tenant, "U1", "", "")
	seedProfile(t, s, tenant, "U2", "", "")
	seedProfile(t, s, tenant, "U3", "", "")
	seedChannel(t, s, tenant, "C1", "U1", "U2")

	if err := s.ReplaceChannelMembers(ctx, tenant, "C1", []string{"U2", "U3", "U3"}); err != nil {
		t.Fatalf("ReplaceChannelMembers: %v", err)
	}
	members, err := s.ChannelMembers(ctx, tenant, "C1")
	if err != nil {
		t.Fatalf("ChannelMembers: %v", err)
	}
	if len(members) != 2 || members[0].UserID != "U2" || members[1].UserID != "U3" {
		t.Errorf("members = %+v, want U2,U3", members)
	}
	c, _ := s.GetChannel(ctx, tenant, "C1")
	if c.LastSyncedAt == nil {
		t.Error("LastSyncedAt should be set")
	}

	if err := s.ReplaceChannelMembers(ctx, tenant, "C404", nil); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ReplaceChannelMembers missing channel err = %v, want ErrNotFound", err)
	}
}

func testInsertMatch(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	seedProfile(t, s, tenant, "R", "Acme", "")

	m := insert(t, s, tenant, "R", "X", "C1", 142.5)
	if m.ID == "" {
		t.Error("ID should be set")
	}
	if m.Status != store.StatusSuggested {
		t.Errorf("Status = %q, want suggested", m.Status)
	}
	if m.InteractionType != store.InteractionNone {
		t.Errorf("InteractionType = %q, want none", m.InteractionType)
	}

	got, err := s.GetMatch(ctx, tenant, "R", "X", "C1")
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if got.Score != 142.5 {
		t.Errorf("Score = %v, want 142.5", got.Score)
	}
	if got.ID != m.ID {
		t.Errorf("ID = %q, want %q", got.ID, m.ID)
	}

	p, _ := s.GetProfile(ctx, tenant, "R")
	if p.LastMatchedAt == nil {
		t.Error("requester LastMatchedAt should be set")
	}

	if _, err := s.InsertMatch(ctx, store.NewMatch{
		TenantID: tenant, RequesterID: "R", CandidateID: "Y", ChannelID: "C1", Score: -1,
	}); err == nil {
		t.Error("expected error for negative score")
	}
	if _, err := s.GetMatch(ctx, tenant, "R", "Y", "C1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("rejected record was written: err = %v", err)
	}
}

func testDuplicatePairing(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	insert(t, s, tenant, "R", "X", "C1", 100)

	_, err := s.InsertMatch(ctx, store.NewMatch{
		TenantID: tenant, RequesterID: "R", CandidateID: "X", ChannelID: "C1", Score: 120,
	})
	if !errors.Is(err, store.ErrDuplicatePairing) {
		t.Fatalf("second insert err = %v, want ErrDuplicatePairing", err)
	}

	// Direction and channel are part of the key.
	insert(t, s, tenant, "X", "R", "C1", 100)
	insert(t, s, tenant, "R", "X", "C2", 100)

	got, _ := s.GetMatch(ctx, tenant, "R", "X", "C1")
	if got.Score != 100 {
		t.Errorf("Score = %v after rejected duplicate, want 100", got.Score)
	}
}

func testConcurrentInsert(t *testing.T, s store.Backend, tenant string) {
	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.InsertMatch(context.Background(), store.NewMatch{
				TenantID: tenant, RequesterID: "R", CandidateID: "X", ChannelID: "C1", Score: float64(100 + i),
			})
		}(i)
	}
	wg.Wait()

	ok, dup := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, store.ErrDuplicatePairing):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != attempts-1 {
		t.Errorf("ok=%d dup=%d, want ok=1 dup=%d", ok, dup, attempts-1)
	}

	matches, err := s.ListMatches(context.Background(), tenant, "R", 0)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("persisted %d records, want 1", len(matches))
	}
}

func testPriorPartners(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	insert(t, s, tenant, "R", "X", "C1", 100)
	insert(t, s, tenant, "Y", "R", "C2", 100)
	insert(t, s, tenant, "Y", "Z", "C1", 100)
	insert(t, s, "other-"+tenant, "R", "W", "C1", 100)

	partners, err := s.PriorPartners(ctx, tenant, "R")
	if err != nil {
		t.Fatalf("PriorPartners: %v", err)
	}
	if len(partners) != 2 || !partners["X"] || !partners["Y"] {
		t.Errorf("partners = %v, want X and Y", partners)
	}

	partners, _ = s.PriorPartners(ctx, tenant, "nobody")
	if len(partners) != 0 {
		t.Errorf("partners = %v, want empty", partners)
	}
}

func testRecordInteraction(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	if _, err := s.RecordInteraction(ctx, tenant, "R", "X", "C1", store.InteractionDirectMessage); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing record err = %v, want ErrNotFound", err)
	}

	insert(t, s, tenant, "R", "X", "C1", 100)
	m, err := s.RecordInteraction(ctx, tenant, "R", "X", "C1", store.InteractionDirectMessage)
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	if m.Status != store.StatusAccepted {
		t.Errorf("Status = %q, want accepted", m.Status)
	}
	if m.InteractionType != store.InteractionDirectMessage {
		t.Errorf("InteractionType = %q, want direct_message", m.InteractionType)
	}

	// The reverse direction is a different record.
	if _, err := s.RecordInteraction(ctx, tenant, "X", "R", "C1", store.InteractionCalendar); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("reverse direction err = %v, want ErrNotFound", err)
	}

	m, err = s.RecordInteraction(ctx, tenant, "R", "X", "C1", store.InteractionCalendar)
	if err != nil {
		t.Fatalf("RecordInteraction calendar: %v", err)
	}
	if m.InteractionType != store.InteractionCalendar || m.Status != store.StatusAccepted {
		t.Errorf("got %s/%s, want accepted/calendar", m.Status, m.InteractionType)
	}
}

func testRecordInteractionIdempotent(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	insert(t, s, tenant, "R", "X", "C1", 100)

	first, err := s.RecordInteraction(ctx, tenant, "R", "X", "C1", store.InteractionCalendar)
	if err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := s.RecordInteraction(ctx, tenant, "R", "X", "C1", store.InteractionCalendar)
	if err != nil {
		t.Fatalf("RecordInteraction again: %v", err)
	}
	if *first != *second {
		t.Errorf("state changed on repeat:\n first  %+v\n second %+v", *first, *second)
	}
}

func testListMatches(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	insert(t, s, tenant, "R", "X", "C1", 100)
	time.Sleep(2 * time.Millisecond)
	insert(t, s, tenant, "Y", "R", "C1", 100)
	time.Sleep(2 * time.Millisecond)
	insert(t, s, tenant, "Y", "Z", "C1", 100)

	matches, err := s.ListMatches(ctx, tenant, "R", 10)
	if err != nil {
		t.Fatalf("ListMatches: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].RequesterID != "Y" {
		t.Errorf("newest first: got requester %q, want Y", matches[0].RequesterID)
	}

	matches, _ = s.ListMatches(ctx, tenant, "R", 1)
	if len(matches) != 1 {
		t.Errorf("limit: got %d, want 1", len(matches))
	}
}

func testExpireSuggestions(t *testing.T, s store.Backend, tenant string) {
	ctx := context.Background()
	insert(t, s, tenant, "R", "X", "C1", 100)
	insert(t, s, tenant, "R", "Y", "C1", 100)
	if _, err := s.RecordInteraction(ctx, tenant, "R", "Y", "C1", store.InteractionDirectMessage); err != nil {
		t.Fatalf("RecordInteraction: %v", err)
	}

	n, err := s.ExpireSuggestions(ctx, tenant, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ExpireSuggestions: %v", err)
	}
	if n != 0 {
		t.Errorf("expired %d with old cutoff, want 0", n)
	}

	n, err = s.ExpireSuggestions(ctx, tenant, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("ExpireSuggestions: %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d, want 1", n)
	}
	x, _ := s.GetMatch(ctx, tenant, "R", "X", "C1")
	if x.Status != store.StatusExpired {
		t.Errorf("X status = %q, want expired", x.Status)
	}
	y, _ := s.GetMatch(ctx, tenant, "R", "Y", "C1")
	if y.Status != store.StatusAccepted {
		t.Errorf("Y status = %q, want accepted", y.Status)
	}
}
