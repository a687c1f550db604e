package match

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/matchmaker/internal/store"
)

func newTestEngine(f *fakeStore, jitter float64) *Engine {
	e := New(f, f, zerolog.Nop())
	e.Scorer = Scorer{MaxJitter: MaxJitter, Rand: FixedJitter(jitter)}
	return e
}

// seedScenario builds the requester R (Acme engineer), X (Acme sales manager)
// and Y (Globex engineer) in channel C1.
func seedScenario(f *fakeStore) {
	f.addProfile(store.Profile{UserID: "R", Organization: "Acme", Role: "Software Engineer"})
	f.addProfile(store.Profile{UserID: "X", Organization: "Acme", Role: "Sales Manager"})
	f.addProfile(store.Profile{UserID: "Y", Organization: "Globex", Role: "Senior Engineer"})
	f.addChannel("C1", "R", "X", "Y")
}

func candidateIDs(r *Result) []string {
	ids := make([]string, 0, len(r.Candidates))
	for _, c := range r.Candidates {
		ids = append(ids, c.Profile.UserID)
	}
	return ids
}

func TestFindMatchesCrossOrgRanksFirst(t *testing.T) {
	f := newFakeStore()
	seedScenario(f)
	e := newTestEngine(f, 0.5)

	res, err := e.FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	require.Equal(t, []string{"Y", "X"}, candidateIDs(res))
	assert.Empty(t, res.PartialFailures)
	assert.InDelta(t, BaseScore+CrossOrgBonus+0.5*RoleWeight+5, res.Candidates[0].Score, 1e-9)

	// Both suggestions were persisted with the returned scores.
	for _, c := range res.Candidates {
		m := f.matches[[3]string{"R", c.Profile.UserID, "C1"}]
		require.NotNil(t, m, "match for %s", c.Profile.UserID)
		assert.Equal(t, store.StatusSuggested, m.Status)
		assert.Equal(t, c.Score, m.Score)
	}
}

func TestFindMatchesCrossOrgWithRealJitter(t *testing.T) {
	const trials = 200
	wins := 0
	for i := 0; i < trials; i++ {
		f := newFakeStore()
		seedScenario(f)
		e := New(f, f, zerolog.Nop())

		res, err := e.FindMatches(context.Background(), "T1", "C1", "R")
		require.NoError(t, err)
		if len(res.Candidates) > 0 && res.Candidates[0].Profile.UserID == "Y" {
			wins++
		}
	}
	assert.GreaterOrEqual(t, wins, trials*95/100)
}

func TestFindMatchesTopThreeSorted(t *testing.T) {
	f := newFakeStore()
	f.addProfile(store.Profile{UserID: "R", Organization: "Acme", Role: "Engineer"})
	members := []string{"R"}
	orgs := []string{"Acme", "Globex", "Initech", "Acme", "Umbrella", "Acme"}
	for i, org := range orgs {
		id := fmt.Sprintf("U%d", i)
		f.addProfile(store.Profile{UserID: id, Organization: org, Role: "Engineer"})
		members = append(members, id)
	}
	f.addChannel("C1", members...)

	res, err := New(f, f, zerolog.Nop()).FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	require.Len(t, res.Candidates, DefaultLimit)
	assert.True(t, sort.SliceIsSorted(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].Score > res.Candidates[j].Score
	}))
	for _, c := range res.Candidates {
		assert.NotEqual(t, "R", c.Profile.UserID)
		assert.NotEqual(t, "Acme", c.Profile.Organization)
	}
	assert.Equal(t, DefaultLimit, f.insertCount())
}

func TestFindMatchesTieBreakByUserID(t *testing.T) {
	f := newFakeStore()
	f.addProfile(store.Profile{UserID: "R"})
	for _, id := range []string{"D", "B", "A", "C"} {
		f.addProfile(store.Profile{UserID: id})
	}
	f.addChannel("C1", "R", "D", "B", "A", "C")

	res, err := newTestEngine(f, 0).FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, candidateIDs(res))
}

func TestFindMatchesOptedOutRequester(t *testing.T) {
	f := newFakeStore()
	seedScenario(f)
	f.addProfile(store.Profile{UserID: "R", Organization: "Acme", OptedOut: true})

	res, err := newTestEngine(f, 0).FindMatches(context.Background(), "T1", "C1", "R")
	require.ErrorIs(t, err, store.ErrOptedOut)
	assert.Nil(t, res)
	assert.Zero(t, f.insertCount())
	assert.Zero(t, f.channelReads, "opted-out requester should not read the channel")
}

func TestFindMatchesSkipsOptedOutMembers(t *testing.T) {
	f := newFakeStore()
	seedScenario(f)
	f.addProfile(store.Profile{UserID: "Y", Organization: "Globex", OptedOut: true})

	res, err := newTestEngine(f, 0).FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, candidateIDs(res))
}

func TestFindMatchesEmptyChannel(t *testing.T) {
	f := newFakeStore()
	f.addProfile(store.Profile{UserID: "R"})
	f.addProfile(store.Profile{UserID: "Q", OptedOut: true})
	f.addChannel("C1", "R", "Q")

	res, err := newTestEngine(f, 0).FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.PartialFailures)
	assert.Zero(t, f.insertCount())
}

func TestFindMatchesNotFound(t *testing.T) {
	f := newFakeStore()
	seedScenario(f)
	e := newTestEngine(f, 0)

	_, err := e.FindMatches(context.Background(), "T1", "C1", "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.FindMatches(context.Background(), "T1", "missing", "R")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, f.insertCount())
}

func TestFindMatchesRepeatPenalized(t *testing.T) {
	f := newFakeStore()
	f.addProfile(store.Profile{UserID: "R", Organization: "Acme"})
	f.addProfile(store.Profile{UserID: "P", Organization: "Globex"})
	f.addProfile(store.Profile{UserID: "N", Organization: "Globex"})
	f.addChannel("C1", "R", "P", "N")
	// P was suggested to R in another channel; the penalty is tenant-wide.
	_, err := f.InsertMatch(context.Background(), store.NewMatch{
		TenantID: "T1", RequesterID: "R", CandidateID: "P", ChannelID: "C0", Score: 1,
	})
	require.NoError(t, err)

	res, err := newTestEngine(f, 0).FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	require.Equal(t, []string{"N", "P"}, candidateIDs(res))
	assert.False(t, res.Candidates[0].Repeat)
	assert.True(t, res.Candidates[1].Repeat)
	assert.InDelta(t, RepeatPenalty, res.Candidates[0].Score-res.Candidates[1].Score, 1e-9)
}

func TestFindMatchesDuplicateIsPartialFailure(t *testing.T) {
	f := newFakeStore()
	f.addProfile(store.Profile{UserID: "R", Organization: "Acme"})
	f.addProfile(store.Profile{UserID: "X", Organization: "Acme"})
	f.addChannel("C1", "R", "X")
	e := newTestEngine(f, 0)

	first, err := e.FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	require.Equal(t, []string{"X"}, candidateIDs(first))
	assert.Empty(t, first.PartialFailures)

	second, err := e.FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, candidateIDs(second))
	assert.True(t, second.Candidates[0].Repeat)
	require.Len(t, second.PartialFailures, 1)
	assert.Equal(t, []string{"X"}, second.FailedIDs())
	assert.ErrorIs(t, second.PartialFailures[0].Err, store.ErrDuplicatePairing)
	assert.Len(t, f.matches, 1)
}

func TestFindMatchesPersistenceFailureDoesNotBlockOthers(t *testing.T) {
	f := newFakeStore()
	seedScenario(f)
	f.addProfile(store.Profile{UserID: "Z", Organization: "Initech"})
	f.addChannel("C1", "R", "X", "Y", "Z")
	f.failInsert["Y"] = fmt.Errorf("disk full: %w", store.ErrPersistence)

	res, err := newTestEngine(f, 0).FindMatches(context.Background(), "T1", "C1", "R")
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 3)
	assert.Equal(t, []string{"Y"}, res.FailedIDs())
	assert.ErrorIs(t, res.PartialFailures[0].Err, store.ErrPersistence)

	assert.Nil(t, f.matches[[3]string{"R", "Y", "C1"}])
	assert.NotNil(t, f.matches[[3]string{"R", "X", "C1"}])
	assert.NotNil(t, f.matches[[3]string{"R", "Z", "C1"}])
}

func TestFindMatchesReadTimeoutAborts(t *testing.T) {
	f := newFakeStore()
	seedScenario(f)
	f.partnersErr = fmt.Errorf("prior partners: %w", store.ErrTimeout)

	res, err := newTestEngine(f, 0).FindMatches(context.Background(), "T1", "C1", "R")
	require.ErrorIs(t, err, store.ErrTimeout)
	assert.Nil(t, res)
	assert.Zero(t, f.insertCount())
}

func TestFindMatchesCancelledBeforeWrites(t *testing.T) {
	f := newFakeStore()
	seedScenario(f)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.onMembers = cancel

	res, err := newTestEngine(f, 0).FindMatches(ctx, "T1", "C1", "R")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
	assert.Zero(t, f.insertCount())
}

func TestFindMatchesAgainstSQLite(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	for _, p := range []*store.Profile{
		{TenantID: "T1", UserID: "R", Organization: "Acme", Role: "Software Engineer"},
		{TenantID: "T1", UserID: "X", Organization: "Acme", Role: "Sales Manager"},
		{TenantID: "T1", UserID: "Y", Organization: "Globex", Role: "Senior Engineer"},
	} {
		require.NoError(t, db.UpsertProfile(ctx, p))
	}
	require.NoError(t, db.UpsertChannel(ctx, &store.Channel{TenantID: "T1", ChannelID: "C1", Name: "general"}))
	require.NoError(t, db.ReplaceChannelMembers(ctx, "T1", "C1", []string{"R", "X", "Y"}))

	e := New(db, db, zerolog.Nop())
	e.Scorer = Scorer{MaxJitter: MaxJitter, Rand: FixedJitter(0.1)}

	res, err := e.FindMatches(ctx, "T1", "C1", "R")
	require.NoError(t, err)
	require.Equal(t, []string{"Y", "X"}, candidateIDs(res))
	assert.Empty(t, res.PartialFailures)

	history, err := db.ListMatches(ctx, "T1", "R", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, m := range history {
		assert.Equal(t, store.StatusSuggested, m.Status)
		assert.Equal(t, store.InteractionNone, m.InteractionType)
	}

	again, err := e.FindMatches(ctx, "T1", "C1", "R")
	require.NoError(t, err)
	assert.Len(t, again.Candidates, 2)
	assert.ElementsMatch(t, []string{"X", "Y"}, again.FailedIDs())
	for _, f := range again.PartialFailures {
		assert.ErrorIs(t, f.Err, store.ErrDuplicatePairing)
	}

	history, err = db.ListMatches(ctx, "T1", "R", 0)
	require.NoError(t, err)
	assert.Len(t, history, 2)

	r, err := db.GetProfile(ctx, "T1", "R")
	require.NoError(t, err)
	assert.NotNil(t, r.LastMatchedAt)
}
