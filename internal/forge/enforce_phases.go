package forge

import "github.com/knowledgeforge/forge/internal/forge/ferrors"

// CheckDecomposeComplete gates DECOMPOSE -> EXPLORE.
func CheckDecomposeComplete(s *ForgeState) *ferrors.Error {
	if len(s.Fundamentals) == 0 {
		return ferrors.New(ferrors.CodeDecomposeIncomplete, "fundamentals have not been decomposed")
	}
	if !s.StateOfArtResearched {
		return ferrors.New(ferrors.CodeDecomposeIncomplete, "state of the art has not been researched")
	}
	if len(s.Assumptions) < 3 {
		return ferrors.New(ferrors.CodeDecomposeIncomplete, "fewer than 3 assumptions have been extracted")
	}
	if len(s.Reframings) < 3 {
		return ferrors.New(ferrors.CodeDecomposeIncomplete, "fewer than 3 reframings have been proposed")
	}
	if len(s.SelectedReframings()) == 0 {
		return ferrors.New(ferrors.CodeDecomposeIncomplete, "no reframing has been selected by the user")
	}
	return nil
}

// CheckExploreComplete gates EXPLORE -> SYNTHESIZE.
func CheckExploreComplete(s *ForgeState) *ferrors.Error {
	if s.MorphologicalBox == nil {
		return ferrors.New(ferrors.CodeExploreIncomplete, "morphological box has not been built")
	}
	if s.CrossDomainSearchCount < 2 {
		return ferrors.New(ferrors.CodeExploreIncomplete, "fewer than 2 cross-domain searches have been performed")
	}
	if len(s.Contradictions) == 0 {
		return ferrors.New(ferrors.CodeExploreIncomplete, "no contradictions have been identified")
	}
	if len(s.ResonantAnalogies()) == 0 {
		return ferrors.New(ferrors.CodeExploreIncomplete, "no cross-domain analogy has resonated with the user")
	}
	return nil
}

// CheckAllAntitheses gates SYNTHESIZE -> VALIDATE.
func CheckAllAntitheses(s *ForgeState) *ferrors.Error {
	if len(s.CurrentRoundClaims) == 0 || !s.AllClaimsHaveAntithesis() {
		return ferrors.New(ferrors.CodeSynthesisIncomplete, "not every claim in this round has a recorded antithesis")
	}
	return nil
}

// CheckCumulative gates round >= 1 SYNTHESIZE entry: the model must have
// referenced previous-round claims before restating new ones.
func CheckCumulative(s *ForgeState) *ferrors.Error {
	if s.CurrentRound >= 1 && !s.PreviousClaimsReferenced {
		return ferrors.New(ferrors.CodeNotCumulative, "previous-round claims have not been referenced")
	}
	return nil
}

// CheckNegativeConsulted gates round >= 1 SYNTHESIZE entry: the model must
// have consulted the negative-knowledge log before proposing new claims.
func CheckNegativeConsulted(s *ForgeState) *ferrors.Error {
	if s.CurrentRound >= 1 && !s.NegativeKnowledgeConsulted {
		return ferrors.New(ferrors.CodeNegativeKnowledgeMissing, "negative knowledge has not been consulted this round")
	}
	return nil
}

// CheckMaxRounds rejects re-entering SYNTHESIZE once the round budget is
// exhausted.
func CheckMaxRounds(s *ForgeState) *ferrors.Error {
	if s.MaxRoundsReached() {
		return ferrors.New(ferrors.CodeMaxRoundsExceeded, "the session has reached its maximum number of rounds")
	}
	return nil
}

// researchContextCodes maps a research-first precondition's context label
// to the stable error code it produces when violated.
var researchContextCodes = map[string]string{
	"state_of_art": ferrors.CodeStateOfArtNotResearched,
	"cross_domain": ferrors.CodeCrossDomainNotSearched,
	"antithesis":   ferrors.CodeAntithesisNotSearched,
	"falsification": ferrors.CodeFalsificationNotSearched,
	"novelty":       ferrors.CodeNoveltyNotSearched,
}

// CheckWebSearch enforces the research-first precondition shared by
// map_state_of_art, search_cross_domain, find_antithesis,
// attempt_falsification, and check_novelty. context identifies which of
// those callers is asking, purely to pick the right error code.
func CheckWebSearch(s *ForgeState, context string) *ferrors.Error {
	code, ok := researchContextCodes[context]
	if !ok {
		return ferrors.New(ferrors.CodeInvalidContext, "unknown research-first context: "+context)
	}
	if !s.HasWebSearchThisPhase() {
		return ferrors.New(code, "no web search (direct or delegated) has been performed this phase")
	}
	return nil
}

// ValidatePhaseTransition is the composite dispatcher gating a requested
// phase transition. BUILD/CRYSTALLIZE transitions are driven entirely by
// handler logic (build_decision / resolve), so they are not gated here.
func ValidatePhaseTransition(s *ForgeState, target Phase) *ferrors.Error {
	switch target {
	case PhaseExplore:
		return CheckDecomposeComplete(s)
	case PhaseSynthesize:
		if err := CheckExploreComplete(s); err != nil {
			return err
		}
		if s.CurrentRound >= 1 {
			if err := CheckMaxRounds(s); err != nil {
				return err
			}
			if err := CheckCumulative(s); err != nil {
				return err
			}
			if err := CheckNegativeConsulted(s); err != nil {
				return err
			}
		}
		return nil
	case PhaseValidate:
		return CheckAllAntitheses(s)
	default:
		return nil
	}
}
