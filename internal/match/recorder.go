package match

import (
	"context"
	"errors"
	"fmt"

	"github.com/lazypower/matchmaker/internal/store"
)

// ErrInvalidInteraction rejects interactions that cannot accept a match.
var ErrInvalidInteraction = errors.New("invalid interaction type")

// Interactions is the history store operation the Recorder delegates to.
type Interactions interface {
	RecordInteraction(ctx context.Context, tenantID, requesterID, candidateID, channelID string, kind store.InteractionType) (*store.Match, error)
}

// Recorder marks a suggestion accepted when the requester acts on it.
type Recorder struct {
	History Interactions
}

// NewRecorder creates a Recorder.
func NewRecorder(history Interactions) *Recorder {
	return &Recorder{History: history}
}

// Record accepts the directed match with the given interaction kind.
// Repeating a call with the same kind is harmless.
func (r *Recorder) Record(ctx context.Context, tenantID, requesterID, candidateID, channelID string, kind store.InteractionType) (*store.Match, error) {
	switch kind {
	case store.InteractionDirectMessage, store.InteractionCalendar:
	default:
		return nil, fmt.Errorf("record interaction %q: %w", kind, ErrInvalidInteraction)
	}
	return r.History.RecordInteraction(ctx, tenantID, requesterID, candidateID, channelID, kind)
}
