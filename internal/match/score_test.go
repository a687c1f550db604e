package match

import (
	"math"
	"testing"

	"github.com/lazypower/matchmaker/internal/store"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestRoleSimilarityKeywords(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"Software Engineer", "Senior Engineer", 0.5},
		{"Engineering Manager", "engineer / manager", 1.0},
		{"Product Design Director", "Director of Product Design", 1.0},
		{"SALES lead", "sales", 0.5},
	}
	for _, tt := range tests {
		if got := RoleSimilarity(tt.a, tt.b); !approx(got, tt.want) {
			t.Errorf("RoleSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRoleSimilarityPositionalFallback(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abd", 2.0 / 3.0},
		{"CEO", "ceo", 1.0},
		{"cto", "chief of staff", 1.0 / 14.0},
		{"", "", 0},
		{"", "cfo", 0},
		{"xyz", "abc", 0},
	}
	for _, tt := range tests {
		if got := RoleSimilarity(tt.a, tt.b); !approx(got, tt.want) {
			t.Errorf("RoleSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestRoleSimilarityBounds(t *testing.T) {
	roles := []string{"", "Engineer", "Sales Manager", "HR Director", "intern", "Chief Executive Officer"}
	for _, a := range roles {
		for _, b := range roles {
			got := RoleSimilarity(a, b)
			if got < 0 || got > 1 {
				t.Errorf("RoleSimilarity(%q, %q) = %v, out of [0,1]", a, b, got)
			}
		}
	}
}

func TestBaseAffinityCrossOrgBonus(t *testing.T) {
	req := store.Profile{UserID: "R", Organization: "Acme"}
	same := store.Profile{UserID: "A", Organization: "Acme"}
	other := store.Profile{UserID: "B", Organization: "Globex"}

	diff := BaseAffinity(req, other, false) - BaseAffinity(req, same, false)
	if !approx(diff, CrossOrgBonus) {
		t.Errorf("cross-org difference = %v, want %v", diff, CrossOrgBonus)
	}

	// Trimmed before comparison, case-sensitive after.
	padded := store.Profile{UserID: "C", Organization: "  Acme "}
	if got := BaseAffinity(req, padded, false); !approx(got, BaseScore) {
		t.Errorf("padded same org = %v, want %v", got, BaseScore)
	}
	lower := store.Profile{UserID: "D", Organization: "acme"}
	if got := BaseAffinity(req, lower, false); !approx(got, BaseScore+CrossOrgBonus) {
		t.Errorf("different case org = %v, want %v", got, BaseScore+CrossOrgBonus)
	}

	// Missing organization on either side earns nothing.
	blank := store.Profile{UserID: "E", Organization: "   "}
	if got := BaseAffinity(req, blank, false); !approx(got, BaseScore) {
		t.Errorf("blank org = %v, want %v", got, BaseScore)
	}
	if got := BaseAffinity(store.Profile{UserID: "R"}, other, false); !approx(got, BaseScore) {
		t.Errorf("requester without org = %v, want %v", got, BaseScore)
	}
}

func TestBaseAffinityRepeatPenalty(t *testing.T) {
	req := store.Profile{UserID: "R", Organization: "Acme", Role: "Engineer"}
	cand := store.Profile{UserID: "X", Organization: "Globex", Role: "Engineer"}

	diff := BaseAffinity(req, cand, false) - BaseAffinity(req, cand, true)
	if !approx(diff, RepeatPenalty) {
		t.Errorf("repeat penalty = %v, want %v", diff, RepeatPenalty)
	}
}

func TestBaseAffinityRoleTerm(t *testing.T) {
	req := store.Profile{UserID: "R", Role: "Software Engineer"}
	cand := store.Profile{UserID: "Y", Role: "Senior Engineer"}
	if got := BaseAffinity(req, cand, false); !approx(got, BaseScore+0.5*RoleWeight) {
		t.Errorf("BaseAffinity = %v, want %v", got, BaseScore+0.5*RoleWeight)
	}

	noRole := store.Profile{UserID: "Z"}
	if got := BaseAffinity(req, noRole, false); !approx(got, BaseScore) {
		t.Errorf("BaseAffinity without candidate role = %v, want %v", got, BaseScore)
	}
}

func TestScoreJitterBounds(t *testing.T) {
	s := NewScorer()
	req := store.Profile{UserID: "R", Organization: "Acme", Role: "Engineer"}
	cand := store.Profile{UserID: "X", Organization: "Globex", Role: "Sales"}
	base := BaseAffinity(req, cand, false)

	for i := 0; i < 1000; i++ {
		j := s.Score(req, cand, false) - base
		if j < 0 || j >= MaxJitter {
			t.Fatalf("jitter = %v, want [0, %v)", j, MaxJitter)
		}
	}
}

func TestScoreFixedJitter(t *testing.T) {
	s := Scorer{MaxJitter: MaxJitter, Rand: FixedJitter(0.5)}
	req := store.Profile{UserID: "R"}
	cand := store.Profile{UserID: "X"}
	if got := s.Score(req, cand, false); !approx(got, BaseScore+5) {
		t.Errorf("Score = %v, want %v", got, BaseScore+5)
	}

	noJitter := Scorer{}
	if got := noJitter.Score(req, cand, true); !approx(got, BaseScore-RepeatPenalty) {
		t.Errorf("Score without jitter = %v, want %v", got, BaseScore-RepeatPenalty)
	}
}
