package forge

import "testing"

func TestCheckDocumentGate_GatedPhaseWithoutUpdate(t *testing.T) {
	for _, p := range []Phase{PhaseDecompose, PhaseExplore, PhaseSynthesize, PhaseValidate, PhaseBuild} {
		s := NewForgeState(LocaleEN)
		s.CurrentPhase = p
		if got := CheckDocumentGate(s); got == "" {
			t.Errorf("phase %q: expected a nudge when the working document was not updated this phase", p)
		}
	}
}

func TestCheckDocumentGate_GatedPhaseWithUpdate(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.CurrentPhase = PhaseSynthesize
	s.DocumentUpdatedThisPhase = true
	if got := CheckDocumentGate(s); got != "" {
		t.Errorf("expected no nudge once the document was updated this phase, got %q", got)
	}
}

func TestCheckDocumentGate_CrystallizeExempt(t *testing.T) {
	s := NewForgeState(LocaleEN)
	s.CurrentPhase = PhaseCrystallize
	if got := CheckDocumentGate(s); got != "" {
		t.Errorf("CRYSTALLIZE should be exempt from the working-document gate, got %q", got)
	}
}
