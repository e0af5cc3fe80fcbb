package forge

// gatedPhases is the set of phases in which the working-document gate
// applies. CRYSTALLIZE is exempt (DESIGN.md Open Question 3).
var gatedPhases = map[Phase]bool{
	PhaseDecompose:  true,
	PhaseExplore:    true,
	PhaseSynthesize: true,
	PhaseValidate:   true,
	PhaseBuild:      true,
}

// phaseSectionHint suggests which working-document section a phase is
// expected to update, used only to compose the runner's retry nudge text.
var phaseSectionHint = map[Phase]string{
	PhaseDecompose:  "problem_context",
	PhaseExplore:    "cross_domain_patterns",
	PhaseSynthesize: "core_insight",
	PhaseValidate:   "evidence_base",
	PhaseBuild:      "boundaries",
}

// CheckDocumentGate returns an empty string if the phase is ungated or the
// working document was already updated this phase, otherwise a retry
// nudge. This is NOT an enforcement error: spec.md §4.3 calls for the
// runner to nudge the model with a retry message rather than surface a
// hard failure, so the return type is a plain string rather than
// *ferrors.Error.
func CheckDocumentGate(s *ForgeState) string {
	if !gatedPhases[s.CurrentPhase] {
		return ""
	}
	if s.DocumentUpdatedThisPhase {
		return ""
	}
	hint := phaseSectionHint[s.CurrentPhase]
	return "Before ending this turn, call update_working_document to record this phase's findings" +
		" (suggested section: \"" + hint + "\")."
}
