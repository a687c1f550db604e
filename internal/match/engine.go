// Package match ranks channel members for introductions and records what
// requesters do with the suggestions.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/matchmaker/internal/store"
)

// DefaultLimit is the number of suggestions returned per request.
const DefaultLimit = 3

// Members is the read side of the membership store.
type Members interface {
	GetProfile(ctx context.Context, tenantID, userID string) (*store.Profile, error)
	GetChannel(ctx context.Context, tenantID, channelID string) (*store.Channel, error)
	ChannelMembers(ctx context.Context, tenantID, channelID string) ([]store.Profile, error)
}

// History is the part of the match history store the engine writes through.
type History interface {
	PriorPartners(ctx context.Context, tenantID, userID string) (map[string]bool, error)
	InsertMatch(ctx context.Context, m store.NewMatch) (*store.Match, error)
}

// Candidate is a scored channel member.
type Candidate struct {
	Profile store.Profile `json:"profile"`
	Score   float64       `json:"score"`
	Repeat  bool          `json:"repeat"`
}

// Failure is a selected candidate whose match record was not written.
type Failure struct {
	UserID string
	Err    error
}

// Result is the ranked selection for one request.
type Result struct {
	Candidates      []Candidate
	PartialFailures []Failure
}

// FailedIDs returns the user IDs in PartialFailures.
func (r *Result) FailedIDs() []string {
	ids := make([]string, 0, len(r.PartialFailures))
	for _, f := range r.PartialFailures {
		ids = append(ids, f.UserID)
	}
	return ids
}

// Engine selects matches. It holds no mutable state of its own; all
// persistence goes through History.
type Engine struct {
	Members Members
	History History
	Scorer  Scorer
	Limit   int
	Log     zerolog.Logger
}

// New creates an Engine with production jitter and DefaultLimit.
func New(members Members, history History, log zerolog.Logger) *Engine {
	return &Engine{
		Members: members,
		History: history,
		Scorer:  NewScorer(),
		Limit:   DefaultLimit,
		Log:     log,
	}
}

// FindMatches ranks the eligible members of a channel for the requester,
// keeps the best Limit and records each as a suggestion.
//
// Missing requester or channel, an opted-out requester and any read failure
// abort the call. Write failures for individual candidates do not: the
// ranked list is still returned and the failed IDs are listed in
// PartialFailures.
func (e *Engine) FindMatches(ctx context.Context, tenantID, channelID, requesterID string) (*Result, error) {
	requester, err := e.Members.GetProfile(ctx, tenantID, requesterID)
	if err != nil {
		return nil, fmt.Errorf("resolve requester: %w", err)
	}
	if requester.OptedOut {
		return nil, fmt.Errorf("requester %s: %w", requesterID, store.ErrOptedOut)
	}

	var (
		members  []store.Profile
		partners map[string]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := e.Members.GetChannel(gctx, tenantID, channelID); err != nil {
			return fmt.Errorf("resolve channel: %w", err)
		}
		var err error
		members, err = e.Members.ChannelMembers(gctx, tenantID, channelID)
		if err != nil {
			return fmt.Errorf("channel members: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		partners, err = e.History.PriorPartners(gctx, tenantID, requesterID)
		if err != nil {
			return fmt.Errorf("prior partners: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := e.rank(*requester, eligible(members, requesterID), partners)
	result := &Result{Candidates: ranked}
	if len(ranked) == 0 {
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find matches: %w", err)
	}
	result.PartialFailures = e.persist(ctx, tenantID, channelID, requesterID, ranked)
	return result, nil
}

func eligible(members []store.Profile, requesterID string) []store.Profile {
	var out []store.Profile
	for _, m := range members {
		if m.UserID == requesterID || m.OptedOut {
			continue
		}
		out = append(out, m)
	}
	return out
}

// rank scores every candidate, sorts by score descending and truncates.
// Equal scores fall back to user ID so a pinned jitter source gives a
// stable order.
func (e *Engine) rank(requester store.Profile, candidates []store.Profile, partners map[string]bool) []Candidate {
	scored := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		repeat := partners[c.UserID]
		scored = append(scored, Candidate{
			Profile: c,
			Score:   e.Scorer.Score(requester, c, repeat),
			Repeat:  repeat,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Profile.UserID < scored[j].Profile.UserID
	})

	limit := e.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
}

// persist writes one suggestion per candidate concurrently. The triples are
// disjoint, so the writes are independent.
func (e *Engine) persist(ctx context.Context, tenantID, channelID, requesterID string, ranked []Candidate) []Failure {
	errs := make([]error, len(ranked))
	var wg sync.WaitGroup
	for i, c := range ranked {
		wg.Add(1)
		go func(i int, c Candidate) {
			defer wg.Done()
			_, errs[i] = e.History.InsertMatch(ctx, store.NewMatch{
				TenantID:    tenantID,
				RequesterID: requesterID,
				CandidateID: c.Profile.UserID,
				ChannelID:   channelID,
				Score:       c.Score,
			})
		}(i, c)
	}
	wg.Wait()

	var failures []Failure
	for i, err := range errs {
		if err == nil {
			continue
		}
		candidateID := ranked[i].Profile.UserID
		ev := e.Log.Warn()
		if errors.Is(err, store.ErrDuplicatePairing) {
			ev = e.Log.Info()
		}
		ev.Err(err).
			Str("tenant", tenantID).
			Str("requester", requesterID).
			Str("candidate", candidateID).
			Str("channel", channelID).
			Msg("match record not written")
		failures = append(failures, Failure{UserID: candidateID, Err: err})
	}
	return failures
}
