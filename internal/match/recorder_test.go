package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/matchmaker/internal/store"
)

func TestRecordRejectsInvalidKind(t *testing.T) {
	f := newFakeStore()
	r := NewRecorder(f)

	for _, kind := range []store.InteractionType{store.InteractionNone, "carrier_pigeon", ""} {
		_, err := r.Record(context.Background(), "T1", "R", "X", "C1", kind)
		assert.ErrorIs(t, err, ErrInvalidInteraction, "kind %q", kind)
	}
}

func TestRecordNotFound(t *testing.T) {
	r := NewRecorder(newFakeStore())
	_, err := r.Record(context.Background(), "T1", "R", "X", "C1", store.InteractionDirectMessage)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRecordDelegates(t *testing.T) {
	f := newFakeStore()
	ctx := context.Background()
	_, err := f.InsertMatch(ctx, store.NewMatch{TenantID: "T1", RequesterID: "R", CandidateID: "X", ChannelID: "C1", Score: 120})
	require.NoError(t, err)

	m, err := NewRecorder(f).Record(ctx, "T1", "R", "X", "C1", store.InteractionCalendar)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAccepted, m.Status)
	assert.Equal(t, store.InteractionCalendar, m.InteractionType)
}

func TestRecordIdempotentAgainstSQLite(t *testing.T) {
	db, err := store.OpenMemory()
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	_, err = db.InsertMatch(ctx, store.NewMatch{TenantID: "T1", RequesterID: "R", CandidateID: "X", ChannelID: "C1", Score: 110})
	require.NoError(t, err)

	r := NewRecorder(db)
	first, err := r.Record(ctx, "T1", "R", "X", "C1", store.InteractionDirectMessage)
	require.NoError(t, err)
	assert.Equal(t, store.StatusAccepted, first.Status)
	assert.Equal(t, store.InteractionDirectMessage, first.InteractionType)

	time.Sleep(5 * time.Millisecond)
	second, err := r.Record(ctx, "T1", "R", "X", "C1", store.InteractionDirectMessage)
	require.NoError(t, err)
	assert.Equal(t, *first, *second)

	// The reverse direction was never suggested.
	_, err = r.Record(ctx, "T1", "X", "R", "C1", store.InteractionDirectMessage)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
