package forge

import "testing"

func TestPhase_Valid(t *testing.T) {
	cases := []struct {
		name string
		p    Phase
		want bool
	}{
		{"decompose", PhaseDecompose, true},
		{"crystallize", PhaseCrystallize, true},
		{"unknown", Phase("does_not_exist"), false},
		{"empty", Phase(""), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.Valid(); got != tc.want {
				t.Errorf("Phase(%q).Valid() = %v, want %v", tc.p, got, tc.want)
			}
		})
	}
}

func TestLocale_Valid(t *testing.T) {
	cases := []struct {
		name string
		l    Locale
		want bool
	}{
		{"en", LocaleEN, true},
		{"pt-BR", LocalePTBR, true},
		{"unknown", Locale("xx"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.l.Valid(); got != tc.want {
				t.Errorf("Locale(%q).Valid() = %v, want %v", tc.l, got, tc.want)
			}
		})
	}
}

func TestLocale_LanguageName(t *testing.T) {
	cases := []struct {
		l    Locale
		want string
	}{
		{LocaleEN, "en"},
		{LocaleZH, "zh-CN"},
		{Locale("unmapped"), "en"},
	}
	for _, tc := range cases {
		if got := tc.l.LanguageName(); got != tc.want {
			t.Errorf("Locale(%q).LanguageName() = %q, want %q", tc.l, got, tc.want)
		}
	}
}

func TestStatusForPhase(t *testing.T) {
	cases := []struct {
		p    Phase
		want SessionStatus
	}{
		{PhaseDecompose, StatusDecomposing},
		{PhaseExplore, StatusExploring},
		{PhaseSynthesize, StatusSynthesizing},
		{PhaseValidate, StatusValidating},
		{PhaseBuild, StatusBuilding},
		{PhaseCrystallize, StatusCrystallized},
		{Phase("bogus"), StatusDecomposing},
	}
	for _, tc := range cases {
		if got := StatusForPhase(tc.p); got != tc.want {
			t.Errorf("StatusForPhase(%q) = %q, want %q", tc.p, got, tc.want)
		}
	}
}

func TestPhaseNumber(t *testing.T) {
	cases := []struct {
		p    Phase
		want int
	}{
		{PhaseDecompose, 1},
		{PhaseExplore, 2},
		{PhaseSynthesize, 3},
		{PhaseValidate, 4},
		{PhaseBuild, 5},
		{PhaseCrystallize, 6},
		{Phase("bogus"), 0},
	}
	for _, tc := range cases {
		if got := PhaseNumber(tc.p); got != tc.want {
			t.Errorf("PhaseNumber(%q) = %d, want %d", tc.p, got, tc.want)
		}
	}
}

func TestEdgeType_Valid(t *testing.T) {
	if !EdgeMergedFrom.Valid() {
		t.Error("EdgeMergedFrom should be valid")
	}
	if EdgeType("bogus").Valid() {
		t.Error("unknown edge type should not be valid")
	}
}

func TestVerdict_Valid(t *testing.T) {
	for _, v := range []Verdict{VerdictAccept, VerdictReject, VerdictQualify, VerdictMerge} {
		if !v.Valid() {
			t.Errorf("Verdict(%q) should be valid", v)
		}
	}
	if Verdict("bogus").Valid() {
		t.Error("unknown verdict should not be valid")
	}
}

func TestStatusForVerdict(t *testing.T) {
	cases := []struct {
		v    Verdict
		want ClaimStatus
	}{
		{VerdictAccept, ClaimValidated},
		{VerdictReject, ClaimRejected},
		{VerdictQualify, ClaimQualified},
		{VerdictMerge, ClaimSuperseded},
		{Verdict(""), ClaimProposed},
	}
	for _, tc := range cases {
		if got := StatusForVerdict(tc.v); got != tc.want {
			t.Errorf("StatusForVerdict(%q) = %q, want %q", tc.v, got, tc.want)
		}
	}
}

func TestResearchPurpose_Valid(t *testing.T) {
	if !PurposeStateOfArt.Valid() {
		t.Error("state_of_art should be a valid purpose")
	}
	if ResearchPurpose("bogus").Valid() {
		t.Error("unknown purpose should not be valid")
	}
}
