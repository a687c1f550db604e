package match

import (
	"math/rand"
	"strings"

	"github.com/lazypower/matchmaker/internal/store"
)

// Scoring weights:
//   - every candidate starts at BaseScore
//   - a prior pairing in either direction costs RepeatPenalty (soft, not exclusion)
//   - differing non-empty organizations add CrossOrgBonus
//   - role similarity in [0,1] is scaled by RoleWeight
//   - a jitter draw in [0, MaxJitter) breaks ties between repeated requests
const (
	BaseScore     = 100.0
	RepeatPenalty = 50.0
	CrossOrgBonus = 30.0
	RoleWeight    = 20.0
	MaxJitter     = 10.0
)

// RoleKeywords is the vocabulary counted by RoleSimilarity. Matching is by
// substring on lower-cased titles.
var RoleKeywords = []string{
	"engineer", "developer", "manager", "director",
	"product", "design", "sales", "marketing",
	"operations", "hr", "finance", "legal", "support",
}

// Scorer computes candidate affinity. Rand supplies the jitter draw in
// [0,1); nil means math/rand/v2. Tests pin it for deterministic rankings.
type Scorer struct {
	MaxJitter float64
	Rand      func() float64
}

// NewScorer returns a Scorer with production jitter.
func NewScorer() Scorer {
	return Scorer{MaxJitter: MaxJitter, Rand: rand.Float64}
}

// FixedJitter returns a jitter source that always yields v.
func FixedJitter(v float64) func() float64 {
	return func() float64 { return v }
}

// Score is the full score for one candidate: BaseAffinity plus jitter.
func (s Scorer) Score(requester, candidate store.Profile, repeat bool) float64 {
	return BaseAffinity(requester, candidate, repeat) + s.jitter()
}

func (s Scorer) jitter() float64 {
	if s.MaxJitter <= 0 {
		return 0
	}
	draw := s.Rand
	if draw == nil {
		draw = rand.Float64
	}
	return draw() * s.MaxJitter
}

// BaseAffinity is the deterministic part of the score.
func BaseAffinity(requester, candidate store.Profile, repeat bool) float64 {
	score := BaseScore
	if repeat {
		score -= RepeatPenalty
	}

	reqOrg := strings.TrimSpace(requester.Organization)
	candOrg := strings.TrimSpace(candidate.Organization)
	if reqOrg != "" && candOrg != "" && reqOrg != candOrg {
		score += CrossOrgBonus
	}

	reqRole := strings.TrimSpace(requester.Role)
	candRole := strings.TrimSpace(candidate.Role)
	if reqRole != "" && candRole != "" {
		score += RoleSimilarity(reqRole, candRole) * RoleWeight
	}
	return score
}

// RoleSimilarity returns a value in [0,1]. Shared keywords count half a
// point each; with none shared it falls back to the fraction of positions
// holding the same character.
func RoleSimilarity(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	common := 0
	for _, kw := range RoleKeywords {
		if strings.Contains(a, kw) && strings.Contains(b, kw) {
			common++
		}
	}
	if common > 0 {
		return min(float64(common)/2.0, 1.0)
	}

	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 0
	}
	same := 0
	for i := 0; i < min(len(ra), len(rb)); i++ {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(longest)
}
