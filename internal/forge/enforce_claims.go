package forge

import "github.com/knowledgeforge/forge/internal/forge/ferrors"

// CheckClaimIndexValid bounds-checks claimIndex against the current round
// buffer.
func CheckClaimIndexValid(s *ForgeState, claimIndex int) *ferrors.Error {
	if claimIndex < 0 || claimIndex >= len(s.CurrentRoundClaims) {
		return ferrors.New(ferrors.CodeInvalidClaimIndex, "claim index is out of range for the current round buffer")
	}
	return nil
}

// CheckAntithesisExists requires an antithesis search to have been
// recorded for claimIndex before synthesis proceeds further.
func CheckAntithesisExists(s *ForgeState, claimIndex int) *ferrors.Error {
	if _, ok := s.AntithesesSearched[claimIndex]; !ok {
		return ferrors.New(ferrors.CodeAntithesisMissing, "no antithesis has been recorded for this claim")
	}
	return nil
}

// CheckClaimLimit rejects a new synthesis once the round's claim budget
// is exhausted.
func CheckClaimLimit(s *ForgeState) *ferrors.Error {
	if s.ClaimsInRound() >= MaxClaimsPerRound {
		return ferrors.New(ferrors.CodeClaimLimitExceeded, "the round's claim limit has been reached")
	}
	return nil
}

// CheckFalsification requires a falsification attempt to have been
// recorded for claimIndex.
func CheckFalsification(s *ForgeState, claimIndex int) *ferrors.Error {
	if _, ok := s.FalsificationAttempted[claimIndex]; !ok {
		return ferrors.New(ferrors.CodeFalsificationMissing, "no falsification attempt has been recorded for this claim")
	}
	return nil
}

// CheckNoveltyDone requires a novelty check to have been recorded for
// claimIndex.
func CheckNoveltyDone(s *ForgeState, claimIndex int) *ferrors.Error {
	if _, ok := s.NoveltyChecked[claimIndex]; !ok {
		return ferrors.New(ferrors.CodeNoveltyUnchecked, "no novelty check has been recorded for this claim")
	}
	return nil
}

// CheckEvidenceGrounding rejects a claim with no supporting evidence.
func CheckEvidenceGrounding(evidence []Evidence) *ferrors.Error {
	if len(evidence) == 0 {
		return ferrors.New(ferrors.CodeUngroundedClaim, "claim has no supporting evidence")
	}
	return nil
}

// ValidateSynthesisPrerequisites is the composite gate for
// create_synthesis: index validity, then claim-limit, then antithesis.
func ValidateSynthesisPrerequisites(s *ForgeState, claimIndex int) *ferrors.Error {
	if err := CheckClaimIndexValid(s, claimIndex); err != nil {
		return err
	}
	if err := CheckClaimLimit(s); err != nil {
		return err
	}
	return CheckAntithesisExists(s, claimIndex)
}

// ValidateScoringPrerequisites is the composite gate for score_claim:
// index validity, then falsification, then novelty.
func ValidateScoringPrerequisites(s *ForgeState, claimIndex int) *ferrors.Error {
	if err := CheckClaimIndexValid(s, claimIndex); err != nil {
		return err
	}
	if err := CheckFalsification(s, claimIndex); err != nil {
		return err
	}
	return CheckNoveltyDone(s, claimIndex)
}

// ValidateGraphAddition is the composite gate for add_to_knowledge_graph:
// index validity, then a verdict of accept or qualify (merge is handled
// by the caller as a distinct code path — see DESIGN.md Open Question 2).
func ValidateGraphAddition(s *ForgeState, claimIndex int, verdict Verdict) *ferrors.Error {
	if err := CheckClaimIndexValid(s, claimIndex); err != nil {
		return err
	}
	if verdict != VerdictAccept && verdict != VerdictQualify {
		return ferrors.New(ferrors.CodeInvalidVerdict, "claim does not have an accept or qualify verdict")
	}
	return nil
}
