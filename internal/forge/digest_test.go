package forge

import (
	"strings"
	"testing"
)

func TestBuildPhase1Digest_EmptyWhenNothingToSay(t *testing.T) {
	s := NewForgeState(LocaleEN)
	if got := BuildPhase1Digest(s); got != "" {
		t.Errorf("BuildPhase1Digest() on a fresh state = %q, want empty", got)
	}
}

func TestBuildPhase1Digest_IncludesRespondedAssumptionsAndReframings(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.Fundamentals = []string{"f1", "f2"}
	s.Reframings = []Reframing{
		{Text: "r1", ResonanceOptions: []string{"none", "weak", "strong"}, SelectedOption: 2},
		{Text: "r2", SelectedOption: 0},
	}
	s.Assumptions = []Assumption{
		{Text: "a1", Options: []string{"none", "agree"}, SelectedOption: 1},
		{Text: "a2", SelectedOption: 0},
	}

	got := BuildPhase1Digest(s)
	if !strings.Contains(got, "f1") || !strings.Contains(got, "f2") {
		t.Errorf("expected fundamentals in digest: %q", got)
	}
	if !strings.Contains(got, "r1") || strings.Contains(got, "r2") {
		t.Errorf("expected only the responded-to reframing, got %q", got)
	}
	if !strings.Contains(got, "a1") || strings.Contains(got, "a2") {
		t.Errorf("expected only the responded-to assumption, got %q", got)
	}
}

func TestBuildPhase2Digest_EmptyWhenNothingToSay(t *testing.T) {
	s := NewForgeState(LocaleEN)
	if got := BuildPhase2Digest(s); got != "" {
		t.Errorf("BuildPhase2Digest() on a fresh state = %q, want empty", got)
	}
}

func TestBuildPhase2Digest_IncludesSelectedReframingsAndResonantAnalogies(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.Reframings = []Reframing{{Text: "chosen reframing", Selected: true}}
	s.CrossDomainAnalogies = []CrossDomainAnalogy{
		{Domain: "biology", Description: "d1", ResonanceOptions: []string{"none", "yes"}, SelectedOption: 1},
	}
	s.Contradictions = []Contradiction{{PropertyA: "a", PropertyB: "b"}}
	s.MorphologicalBox = []MorphologicalParameter{{Name: "p1"}}

	got := BuildPhase2Digest(s)
	if !strings.Contains(got, "chosen reframing") {
		t.Errorf("expected selected reframing in digest: %q", got)
	}
	if !strings.Contains(got, "biology") {
		t.Errorf("expected analogy response in digest: %q", got)
	}
	if !strings.Contains(got, "p1") {
		t.Errorf("expected morphological parameter name in digest: %q", got)
	}
}

func TestBuildPhase3Digest_EmptyWithNoClaims(t *testing.T) {
	s := NewForgeState(LocaleEN)
	if got := BuildPhase3Digest(s); got != "" {
		t.Errorf("BuildPhase3Digest() with no claims = %q, want empty", got)
	}
}

func TestBuildPhase3Digest_OneLinePerClaim(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.CurrentRoundClaims = []Claim{
		{ClaimText: "claim one", Evidence: []Evidence{{Title: "e1"}}},
		{ClaimText: "claim two"},
	}
	got := BuildPhase3Digest(s)
	if !strings.Contains(got, "claim one") || !strings.Contains(got, "claim two") {
		t.Errorf("expected both claims represented: %q", got)
	}
}

func TestBuildPhase4Digest_ScoresAndGraphCounts(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.CurrentRoundClaims = []Claim{
		{ClaimText: "scored", Verdict: VerdictAccept, Scores: &ClaimScores{Novelty: 0.5, Groundedness: 0.6, Falsifiability: 0.7, Significance: 0.8}},
	}
	s.CurrentRound = 1
	s.KnowledgeGraphNodes = []GraphNode{{ID: "n1"}}

	got := BuildPhase4Digest(s)
	if !strings.Contains(got, "accept") {
		t.Errorf("expected verdict in digest: %q", got)
	}
	if !strings.Contains(got, "Graph so far") {
		t.Errorf("expected cumulative graph counts once a round has completed: %q", got)
	}
}

func TestBuildContinueDigest_IncludesRoundNodesAndGaps(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.CurrentRound = 0
	s.KnowledgeGraphNodes = []GraphNode{{ClaimText: "a validated claim", Status: ClaimValidated}}
	s.NegativeKnowledge = []NegativeKnowledge{{ClaimText: "rejected claim", RejectionReason: "not falsifiable"}}
	s.Gaps = []string{"gap one"}

	got := BuildContinueDigest(s)
	if !strings.Contains(got, "Round: 1") {
		t.Errorf("expected next round number, got %q", got)
	}
	if !strings.Contains(got, "a validated claim") {
		t.Errorf("expected recent graph node summary, got %q", got)
	}
	if !strings.Contains(got, "rejected claim") {
		t.Errorf("expected negative knowledge summary, got %q", got)
	}
	if !strings.Contains(got, "gap one") {
		t.Errorf("expected gaps summary, got %q", got)
	}
}

func TestBuildCrystallizeDigest_AlwaysEmitsRoundsSection(t *testing.T) {
	s := NewForgeState(LocaleEN)
	got := BuildCrystallizeDigest(s)
	if !strings.Contains(got, "[S10] Rounds: 1") {
		t.Errorf("expected the rounds section to always be present, got %q", got)
	}
}

func TestBuildCrystallizeDigest_IncludesPopulatedSections(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.Fundamentals = []string{"f1"}
	s.KnowledgeGraphNodes = []GraphNode{{ClaimText: "validated", Status: ClaimValidated, Confidence: "high"}}
	s.KnowledgeGraphEdges = []GraphEdge{{ID: "e1", Type: EdgeSupports}}
	s.NegativeKnowledge = []NegativeKnowledge{{ClaimText: "rejected", RejectionReason: "weak evidence"}}
	s.Gaps = []string{"open question"}

	got := BuildCrystallizeDigest(s)
	for _, want := range []string{"[S1-2]", "[S4-5]", "[S6]", "[S7]", "[S8-9]", "[S10]"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected section marker %q in digest, got %q", want, got)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate should leave short strings untouched, got %q", got)
	}
	if got := truncate("this is a long string", 4); got != "this..." {
		t.Errorf("truncate(\"this is a long string\", 4) = %q, want %q", got, "this...")
	}
}
