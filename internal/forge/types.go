// Package forge implements the knowledge-creation pipeline: the ForgeState
// state machine, its enforcement predicates, context compaction, phase
// digests, and prompt assembly. The streaming agent loop lives in
// internal/forge/runner; tool schemas and handlers live in
// internal/forge/tools.
package forge

import "fmt"

// Phase is one of the six stages of the investigation pipeline. Phases
// advance strictly forward except for the SYNTHESIZE<->VALIDATE<->BUILD
// round loop.
type Phase string

const (
	PhaseDecompose   Phase = "decompose"
	PhaseExplore     Phase = "explore"
	PhaseSynthesize  Phase = "synthesize"
	PhaseValidate    Phase = "validate"
	PhaseBuild       Phase = "build"
	PhaseCrystallize Phase = "crystallize"
)

// Phases lists every Phase in pipeline order.
var Phases = []Phase{PhaseDecompose, PhaseExplore, PhaseSynthesize, PhaseValidate, PhaseBuild, PhaseCrystallize}

func (p Phase) Valid() bool {
	for _, v := range Phases {
		if v == p {
			return true
		}
	}
	return false
}

// Locale is one of the ten supported session locales.
type Locale string

const (
	LocaleEN   Locale = "en"
	LocalePTBR Locale = "pt-BR"
	LocaleES   Locale = "es"
	LocaleFR   Locale = "fr"
	LocaleDE   Locale = "de"
	LocaleZH   Locale = "zh"
	LocaleJA   Locale = "ja"
	LocaleKO   Locale = "ko"
	LocaleIT   Locale = "it"
	LocaleRU   Locale = "ru"
)

// Locales lists every supported Locale.
var Locales = []Locale{LocaleEN, LocalePTBR, LocaleES, LocaleFR, LocaleDE, LocaleZH, LocaleJA, LocaleKO, LocaleIT, LocaleRU}

func (l Locale) Valid() bool {
	for _, v := range Locales {
		if v == l {
			return true
		}
	}
	return false
}

// languageName maps a Locale to the ISO language code used by the
// translation boundary (internal/forge/translate). An unmapped locale
// degrades to English (a no-op translation), matching the distilled
// source's translator fallback behavior.
var languageName = map[Locale]string{
	LocaleEN:   "en",
	LocalePTBR: "pt",
	LocaleES:   "es",
	LocaleFR:   "fr",
	LocaleDE:   "de",
	LocaleZH:   "zh-CN",
	LocaleJA:   "ja",
	LocaleKO:   "ko",
	LocaleIT:   "it",
	LocaleRU:   "ru",
}

// LanguageName returns the ISO code a Translator should target for l.
func (l Locale) LanguageName() string {
	if lang, ok := languageName[l]; ok {
		return lang
	}
	return "en"
}

// SessionStatus mirrors the per-phase status string stored on Session.
type SessionStatus string

const (
	StatusDecomposing  SessionStatus = "decomposing"
	StatusExploring    SessionStatus = "exploring"
	StatusSynthesizing SessionStatus = "synthesizing"
	StatusValidating   SessionStatus = "validating"
	StatusBuilding     SessionStatus = "building"
	StatusCrystallized SessionStatus = "crystallized"
	StatusCancelled    SessionStatus = "cancelled"
)

// phaseStatus maps each Phase to the Session status string it implies.
var phaseStatus = map[Phase]SessionStatus{
	PhaseDecompose:   StatusDecomposing,
	PhaseExplore:     StatusExploring,
	PhaseSynthesize:  StatusSynthesizing,
	PhaseValidate:    StatusValidating,
	PhaseBuild:       StatusBuilding,
	PhaseCrystallize: StatusCrystallized,
}

// StatusForPhase returns the Session status implied by a phase.
func StatusForPhase(p Phase) SessionStatus {
	if s, ok := phaseStatus[p]; ok {
		return s
	}
	return StatusDecomposing
}

// PhaseNumber returns the 1-indexed numeric phase column value used by the
// durable Session row, distinct from the status string.
func PhaseNumber(p Phase) int {
	for i, v := range Phases {
		if v == p {
			return i + 1
		}
	}
	return 0
}

// EdgeType is the kind of relationship a ClaimEdge represents.
type EdgeType string

const (
	EdgeSupports    EdgeType = "supports"
	EdgeContradicts EdgeType = "contradicts"
	EdgeExtends     EdgeType = "extends"
	EdgeSupersedes  EdgeType = "supersedes"
	EdgeDependsOn   EdgeType = "depends_on"
	EdgeMergedFrom  EdgeType = "merged_from"
)

func (e EdgeType) Valid() bool {
	switch e {
	case EdgeSupports, EdgeContradicts, EdgeExtends, EdgeSupersedes, EdgeDependsOn, EdgeMergedFrom:
		return true
	}
	return false
}

// Verdict is the user's judgment on a proposed claim.
type Verdict string

const (
	VerdictAccept  Verdict = "accept"
	VerdictReject  Verdict = "reject"
	VerdictQualify Verdict = "qualify"
	VerdictMerge   Verdict = "merge"
)

func (v Verdict) Valid() bool {
	switch v {
	case VerdictAccept, VerdictReject, VerdictQualify, VerdictMerge:
		return true
	}
	return false
}

// ClaimStatus is the durable lifecycle state of a KnowledgeClaim row.
type ClaimStatus string

const (
	ClaimProposed        ClaimStatus = "proposed"
	ClaimValidated       ClaimStatus = "validated"
	ClaimQualified       ClaimStatus = "qualified"
	ClaimRejected        ClaimStatus = "rejected"
	ClaimSuperseded      ClaimStatus = "superseded"
	ClaimUserContributed ClaimStatus = "user_contributed"
)

// verdictStatus maps a user verdict to the resulting durable claim status.
var verdictStatus = map[Verdict]ClaimStatus{
	VerdictAccept:  ClaimValidated,
	VerdictReject:  ClaimRejected,
	VerdictQualify: ClaimQualified,
	VerdictMerge:   ClaimSuperseded,
}

// StatusForVerdict returns the ClaimStatus a verdict produces.
func StatusForVerdict(v Verdict) ClaimStatus {
	if s, ok := verdictStatus[v]; ok {
		return s
	}
	return ClaimProposed
}

// EvidenceType classifies an Evidence row relative to its claim.
type EvidenceType string

const (
	EvidenceSupporting   EvidenceType = "supporting"
	EvidenceContradicting EvidenceType = "contradicting"
	EvidenceContextual   EvidenceType = "contextual"
)

// ContributedBy distinguishes agent-produced from user-produced records.
type ContributedBy string

const (
	ContributedByAgent ContributedBy = "agent"
	ContributedByUser  ContributedBy = "user"
)

// ResearchPurpose is one of the six fixed purposes a delegated research
// call may serve.
type ResearchPurpose string

const (
	PurposeStateOfArt      ResearchPurpose = "state_of_art"
	PurposeEvidenceFor     ResearchPurpose = "evidence_for"
	PurposeEvidenceAgainst ResearchPurpose = "evidence_against"
	PurposeCrossDomain     ResearchPurpose = "cross_domain"
	PurposeNoveltyCheck    ResearchPurpose = "novelty_check"
	PurposeFalsification   ResearchPurpose = "falsification"
)

func (p ResearchPurpose) Valid() bool {
	switch p {
	case PurposeStateOfArt, PurposeEvidenceFor, PurposeEvidenceAgainst, PurposeCrossDomain, PurposeNoveltyCheck, PurposeFalsification:
		return true
	}
	return false
}

// MaxRounds is the maximum number of SYNTHESIZE->VALIDATE->BUILD cycles per
// session (rounds are 0-indexed, so round values run 0..MaxRounds-1).
const MaxRounds = 5

// MaxClaimsPerRound bounds the per-round claim buffer.
const MaxClaimsPerRound = 3

func init() {
	// Guard against accidental drift between the Phases/Locales slices and
	// their lookup maps, which would silently misroute a status or language.
	if len(phaseStatus) != len(Phases) {
		panic(fmt.Sprintf("forge: phaseStatus has %d entries, want %d", len(phaseStatus), len(Phases)))
	}
	if len(languageName) != len(Locales) {
		panic(fmt.Sprintf("forge: languageName has %d entries, want %d", len(languageName), len(Locales)))
	}
}
