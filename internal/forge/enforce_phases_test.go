package forge

import "testing"

func decomposeReadyState() *ForgeState {
	s := NewForgeState(LocaleEN)
	s.Fundamentals = []string{"f1"}
	s.StateOfArtResearched = true
	s.Assumptions = []Assumption{{Text: "a1"}, {Text: "a2"}, {Text: "a3"}}
	s.Reframings = []Reframing{
		{Text: "r1", Selected: true},
		{Text: "r2"},
		{Text: "r3"},
	}
	return s
}

func TestCheckDecomposeComplete(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ForgeState)
		wantErr bool
	}{
		{"fully satisfied", func(s *ForgeState) {}, false},
		{"no fundamentals", func(s *ForgeState) { s.Fundamentals = nil }, true},
		{"state of art not researched", func(s *ForgeState) { s.StateOfArtResearched = false }, true},
		{"fewer than 3 assumptions", func(s *ForgeState) { s.Assumptions = s.Assumptions[:2] }, true},
		{"fewer than 3 reframings", func(s *ForgeState) { s.Reframings = s.Reframings[:2] }, true},
		{"no reframing selected", func(s *ForgeState) {
			for i := range s.Reframings {
				s.Reframings[i].Selected = false
			}
		}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := decomposeReadyState()
			tc.mutate(s)
			err := CheckDecomposeComplete(s)
			if (err != nil) != tc.wantErr {
				t.Errorf("CheckDecomposeComplete() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func exploreReadyState() *ForgeState {
	s := NewForgeState(LocaleEN)
	s.MorphologicalBox = []MorphologicalParameter{{Name: "p1", Values: []string{"a", "b", "c"}}}
	s.CrossDomainSearchCount = 2
	s.Contradictions = []Contradiction{{PropertyA: "a", PropertyB: "b"}}
	s.CrossDomainAnalogies = []CrossDomainAnalogy{{Domain: "biology", Resonated: true}}
	return s
}

func TestCheckExploreComplete(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ForgeState)
		wantErr bool
	}{
		{"fully satisfied", func(s *ForgeState) {}, false},
		{"no morphological box", func(s *ForgeState) { s.MorphologicalBox = nil }, true},
		{"fewer than 2 cross-domain searches", func(s *ForgeState) { s.CrossDomainSearchCount = 1 }, true},
		{"no contradictions", func(s *ForgeState) { s.Contradictions = nil }, true},
		{"no resonant analogy", func(s *ForgeState) { s.CrossDomainAnalogies[0].Resonated = false }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := exploreReadyState()
			tc.mutate(s)
			err := CheckExploreComplete(s)
			if (err != nil) != tc.wantErr {
				t.Errorf("CheckExploreComplete() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestCheckAllAntitheses(t *testing.T) {
	s := NewForgeState(LocaleEN)
	if err := CheckAllAntitheses(s); err == nil {
		t.Error("expected an error with an empty claim buffer")
	}
	s.CurrentRoundClaims = make([]Claim, 1)
	s.AntithesesSearched[0] = struct{}{}
	if err := CheckAllAntitheses(s); err != nil {
		t.Errorf("expected no error once every claim has an antithesis, got %v", err)
	}
}

func TestCheckCumulative(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.CurrentRound = 0
	if err := CheckCumulative(s); err != nil {
		t.Errorf("round 0 should never require a previous-claim reference, got %v", err)
	}
	s.CurrentRound = 1
	if err := CheckCumulative(s); err == nil {
		t.Error("round 1 without a reference should fail")
	}
	s.PreviousClaimsReferenced = true
	if err := CheckCumulative(s); err != nil {
		t.Errorf("round 1 with a reference should pass, got %v", err)
	}
}

func TestCheckNegativeConsulted(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.CurrentRound = 1
	if err := CheckNegativeConsulted(s); err == nil {
		t.Error("round 1 without consulting negative knowledge should fail")
	}
	s.NegativeKnowledgeConsulted = true
	if err := CheckNegativeConsulted(s); err != nil {
		t.Errorf("round 1 after consulting negative knowledge should pass, got %v", err)
	}
}

func TestCheckMaxRounds(t *testing.T) {
	s := NewForgeState(LocaleEN)
	if err := CheckMaxRounds(s); err != nil {
		t.Errorf("fresh state should not be at the round limit, got %v", err)
	}
	s.CurrentRound = MaxRounds - 1
	if err := CheckMaxRounds(s); err == nil {
		t.Error("expected an error once the round budget is exhausted")
	}
}

func TestCheckWebSearch(t *testing.T) {
	s := NewForgeState(LocaleEN)
	if err := CheckWebSearch(s, "state_of_art"); err == nil {
		t.Error("expected an error with no web search recorded this phase")
	}
	s.RecordWebSearch("q", "s")
	if err := CheckWebSearch(s, "state_of_art"); err != nil {
		t.Errorf("expected no error once a web search is recorded, got %v", err)
	}
	if err := CheckWebSearch(s, "not_a_real_context"); err == nil {
		t.Error("expected an error for an unrecognized context label")
	}
}

func TestValidatePhaseTransition(t *testing.T) {
	s := decomposeReadyState()
	if err := ValidatePhaseTransition(s, PhaseExplore); err != nil {
		t.Errorf("expected DECOMPOSE->EXPLORE to pass on a ready state, got %v", err)
	}

	fresh := NewForgeState(LocaleEN)
	if err := ValidatePhaseTransition(fresh, PhaseExplore); err == nil {
		t.Error("expected DECOMPOSE->EXPLORE to fail on a fresh state")
	}

	// Unrecognized/unguarded targets (BUILD, CRYSTALLIZE) are driven by
	// handler logic, not this dispatcher, so they always pass through.
	if err := ValidatePhaseTransition(fresh, PhaseBuild); err != nil {
		t.Errorf("BUILD transitions are not gated here, got %v", err)
	}
}

func TestValidatePhaseTransition_SynthesizeRoundOneGates(t *testing.T) {
	s := exploreReadyState()
	s.CurrentRound = 1
	// Missing cumulative reference and negative-knowledge consultation.
	if err := ValidatePhaseTransition(s, PhaseSynthesize); err == nil {
		t.Error("expected round-1 re-entry into SYNTHESIZE to require cumulative reference and negative knowledge consultation")
	}
	s.PreviousClaimsReferenced = true
	s.NegativeKnowledgeConsulted = true
	if err := ValidatePhaseTransition(s, PhaseSynthesize); err != nil {
		t.Errorf("expected round-1 re-entry to pass once both gates are satisfied, got %v", err)
	}
}
