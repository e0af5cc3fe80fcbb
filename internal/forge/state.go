package forge

import "sort"

// Assumption is one of the decomposition's surfaced hidden assumptions.
type Assumption struct {
	Text           string   `json:"text"`
	Source         string   `json:"source"`
	Options        []string `json:"options"`
	SelectedOption int      `json:"selected_option"`
}

// Reframing is an alternative framing of the problem surfaced in
// DECOMPOSE, with a graduated resonance response from the user.
type Reframing struct {
	Text              string   `json:"text"`
	Type              string   `json:"type"`
	Reasoning         string   `json:"reasoning"`
	ResonanceOptions  []string `json:"resonance_options"`
	SelectedOption    int      `json:"selected_option"`
	Selected          bool     `json:"selected"`
}

// MorphologicalParameter is one axis of the EXPLORE phase's morphological
// box, with at least three candidate values.
type MorphologicalParameter struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// CrossDomainAnalogy is a candidate analogy imported from another domain.
type CrossDomainAnalogy struct {
	Domain            string   `json:"domain"`
	TargetApplication string   `json:"target_application"`
	Description       string   `json:"description"`
	SemanticDistance   string   `json:"semantic_distance"`
	ResonanceOptions  []string `json:"resonance_options"`
	SelectedOption    int      `json:"selected_option"`
	Resonated         bool     `json:"resonated"`
}

// Contradiction is a tension surfaced between two properties during
// EXPLORE.
type Contradiction struct {
	PropertyA   string `json:"property_a"`
	PropertyB   string `json:"property_b"`
	Description string `json:"description"`
}

// AdjacentPossible is a capability-gap entry surfaced during EXPLORE.
type AdjacentPossible struct {
	CurrentCapability  string   `json:"current_capability"`
	AdjacentPossibility string  `json:"adjacent_possibility"`
	Prerequisites      []string `json:"prerequisites"`
}

// Evidence is a source backing a claim, thesis, or antithesis.
type Evidence struct {
	Title   string       `json:"title"`
	URL     string       `json:"url"`
	Summary string       `json:"summary"`
	Type    EvidenceType `json:"type"`
}

// ClaimScores holds the four 0..1 quality scores assigned in VALIDATE.
type ClaimScores struct {
	Novelty        float64 `json:"novelty"`
	Groundedness   float64 `json:"groundedness"`
	Falsifiability float64 `json:"falsifiability"`
	Significance   float64 `json:"significance"`
}

// Claim is one proposed knowledge claim in the current round's buffer.
// ClaimID is empty until create_synthesis assigns a durable id.
type Claim struct {
	ClaimID                string       `json:"claim_id"`
	ClaimText              string       `json:"claim_text"`
	ThesisText             string       `json:"thesis_text"`
	AntithesisText         string       `json:"antithesis_text"`
	FalsifiabilityCondition string      `json:"falsifiability_condition"`
	Confidence             string       `json:"confidence"`
	Evidence               []Evidence   `json:"evidence"`
	BuildsOnClaimID        string       `json:"builds_on_claim_id,omitempty"`
	ResonanceOptions       []string     `json:"resonance_options,omitempty"`
	SelectedOption         int          `json:"selected_option"`
	Verdict                Verdict      `json:"verdict,omitempty"`
	Qualification          string       `json:"qualification,omitempty"`
	RejectionReason        string       `json:"rejection_reason,omitempty"`
	MergeWithClaimID       string       `json:"merge_with_claim_id,omitempty"`
	Scores                 *ClaimScores `json:"scores,omitempty"`
	RoundCreated           int          `json:"round_created"`
}

// GraphNode is a cumulative, persisted entry in the knowledge graph.
type GraphNode struct {
	ID              string       `json:"id"`
	Status          ClaimStatus  `json:"status"`
	ClaimText       string       `json:"claim_text"`
	Confidence      string       `json:"confidence"`
	Scores          ClaimScores  `json:"scores"`
	Qualification   string       `json:"qualification,omitempty"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
	EvidenceCount   int          `json:"evidence_count"`
	RoundCreated    int          `json:"round_created"`
}

// GraphEdge connects two graph nodes (or a node and a durable claim id).
type GraphEdge struct {
	ID       string   `json:"id"`
	Source   string   `json:"source"`
	Target   string   `json:"target"`
	Type     EdgeType `json:"type"`
}

// NegativeKnowledge is a rejected claim kept as a lesson for future rounds.
type NegativeKnowledge struct {
	ClaimText       string `json:"claim_text"`
	RejectionReason string `json:"rejection_reason"`
	Round           int    `json:"round"`
}

// ResearchRecord is one append-only entry in the research archive.
type ResearchRecord struct {
	Query   string          `json:"query"`
	Purpose ResearchPurpose `json:"purpose"`
	Phase   Phase           `json:"phase"`
	Summary string          `json:"summary"`
	Sources []Evidence      `json:"sources"`
}

// ResearchDirective is a user-steering hint enqueued for the next research
// call.
type ResearchDirective struct {
	DirectiveType string `json:"directive_type"`
	Query         string `json:"query"`
	Domain        string `json:"domain,omitempty"`
}

// webSearchEntry is one line of the per-phase web-search log, reset on
// every phase transition.
type webSearchEntry struct {
	Query   string
	Summary string
}

// ForgeState is the per-session, in-memory, authoritative state machine
// driving one investigation. All mutation happens in the shell (tool
// handlers and the AgentRunner); enforcement predicates over it are pure.
type ForgeState struct {
	CurrentPhase Phase
	CurrentRound int

	Locale           Locale
	LocaleConfidence float64

	// Phase 1 — DECOMPOSE
	Fundamentals         []string
	StateOfArtResearched  bool
	Assumptions           []Assumption
	Reframings            []Reframing

	// Phase 2 — EXPLORE
	MorphologicalBox       []MorphologicalParameter
	CrossDomainAnalogies   []CrossDomainAnalogy
	CrossDomainSearchCount int
	Contradictions         []Contradiction
	AdjacentPossible       []AdjacentPossible

	// Phase 3/4 — SYNTHESIZE / VALIDATE
	CurrentRoundClaims   []Claim
	AntithesesSearched   map[int]struct{}
	FalsificationAttempted map[int]struct{}
	NoveltyChecked       map[int]struct{}

	// Phase 5 — BUILD (cumulative across rounds)
	KnowledgeGraphNodes       []GraphNode
	KnowledgeGraphEdges       []GraphEdge
	NegativeKnowledge         []NegativeKnowledge
	Gaps                      []string
	NegativeKnowledgeConsulted bool
	PreviousClaimsReferenced   bool

	// Phase 6 — CRYSTALLIZE
	KnowledgeDocumentMarkdown string

	// Working document
	WorkingDocument          map[string]string
	DocumentUpdatedThisPhase bool

	// Research
	ResearchArchive     []ResearchRecord
	ResearchTokensUsed  int
	ResearchDirectives  []ResearchDirective

	webSearchesThisPhase []webSearchEntry

	// Pause / resume
	AwaitingUserInput bool
	AwaitingInputType string

	// Deep dive (in-phase side mode, no phase transition)
	DeepDiveActive        bool
	DeepDiveTargetClaimID string

	// Transient — never persisted.
	Cancelled bool
}

// NewForgeState returns a fresh default state for locale l at DECOMPOSE,
// round 0.
func NewForgeState(l Locale) *ForgeState {
	return &ForgeState{
		CurrentPhase:           PhaseDecompose,
		CurrentRound:           0,
		Locale:                 l,
		LocaleConfidence:       1.0,
		AntithesesSearched:     map[int]struct{}{},
		FalsificationAttempted: map[int]struct{}{},
		NoveltyChecked:         map[int]struct{}{},
		WorkingDocument:        map[string]string{},
	}
}

// TransitionTo advances the phase, clearing the per-phase web-search log
// and the working-document-updated flag. It does not validate the
// transition; callers consult the enforcement predicates first.
func (s *ForgeState) TransitionTo(p Phase) {
	s.CurrentPhase = p
	s.webSearchesThisPhase = nil
	s.DocumentUpdatedThisPhase = false
}

// ResetForNewRound increments the round counter and clears everything
// scoped to a single round: the claim buffer, the three validation sets,
// the per-round cumulative gate flags, and the web-search log. The
// cumulative knowledge graph and negative knowledge survive.
func (s *ForgeState) ResetForNewRound() {
	s.CurrentRound++
	s.CurrentRoundClaims = nil
	s.AntithesesSearched = map[int]struct{}{}
	s.FalsificationAttempted = map[int]struct{}{}
	s.NoveltyChecked = map[int]struct{}{}
	s.NegativeKnowledgeConsulted = false
	s.PreviousClaimsReferenced = false
	s.webSearchesThisPhase = nil
}

// RecordWebSearch appends a search to the current phase's log.
func (s *ForgeState) RecordWebSearch(query, summary string) {
	s.webSearchesThisPhase = append(s.webSearchesThisPhase, webSearchEntry{Query: query, Summary: summary})
}

// AddResearchDirective enqueues a user-steering hint.
func (s *ForgeState) AddResearchDirective(directiveType, query, domain string) {
	s.ResearchDirectives = append(s.ResearchDirectives, ResearchDirective{
		DirectiveType: directiveType,
		Query:         query,
		Domain:        domain,
	})
}

// ConsumeResearchDirectives drains and returns the pending directive
// queue.
func (s *ForgeState) ConsumeResearchDirectives() []ResearchDirective {
	d := s.ResearchDirectives
	s.ResearchDirectives = nil
	return d
}

// ClaimsInRound is the number of claims proposed so far this round.
func (s *ForgeState) ClaimsInRound() int { return len(s.CurrentRoundClaims) }

// ClaimsRemaining is how many more claims may be proposed this round.
func (s *ForgeState) ClaimsRemaining() int {
	r := MaxClaimsPerRound - s.ClaimsInRound()
	if r < 0 {
		return 0
	}
	return r
}

// HasWebSearchThisPhase reports whether any web search (direct or
// delegated) has occurred since the last phase transition.
func (s *ForgeState) HasWebSearchThisPhase() bool {
	return len(s.webSearchesThisPhase) > 0
}

// ResonantAnalogies filters cross-domain analogies the user resonated
// with.
func (s *ForgeState) ResonantAnalogies() []CrossDomainAnalogy {
	var out []CrossDomainAnalogy
	for _, a := range s.CrossDomainAnalogies {
		if a.Resonated {
			out = append(out, a)
		}
	}
	return out
}

// SelectedReframings filters reframings the user selected.
func (s *ForgeState) SelectedReframings() []Reframing {
	var out []Reframing
	for _, r := range s.Reframings {
		if r.Selected {
			out = append(out, r)
		}
	}
	return out
}

// ReviewedAssumptions filters assumptions the user has responded to (a
// nonzero selected option).
func (s *ForgeState) ReviewedAssumptions() []Assumption {
	var out []Assumption
	for _, a := range s.Assumptions {
		if a.SelectedOption != 0 {
			out = append(out, a)
		}
	}
	return out
}

// AllClaimsHaveAntithesis reports whether every claim index in the current
// round buffer has a recorded antithesis search.
func (s *ForgeState) AllClaimsHaveAntithesis() bool {
	if len(s.CurrentRoundClaims) == 0 {
		return false
	}
	for i := range s.CurrentRoundClaims {
		if _, ok := s.AntithesesSearched[i]; !ok {
			return false
		}
	}
	return true
}

// AllClaimsFalsified reports whether every claim index has a recorded
// falsification attempt.
func (s *ForgeState) AllClaimsFalsified() bool {
	if len(s.CurrentRoundClaims) == 0 {
		return false
	}
	for i := range s.CurrentRoundClaims {
		if _, ok := s.FalsificationAttempted[i]; !ok {
			return false
		}
	}
	return true
}

// AllClaimsNoveltyChecked reports whether every claim index has a recorded
// novelty check.
func (s *ForgeState) AllClaimsNoveltyChecked() bool {
	if len(s.CurrentRoundClaims) == 0 {
		return false
	}
	for i := range s.CurrentRoundClaims {
		if _, ok := s.NoveltyChecked[i]; !ok {
			return false
		}
	}
	return true
}

// MaxRoundsReached reports whether the session has exhausted its round
// budget.
func (s *ForgeState) MaxRoundsReached() bool {
	return s.CurrentRound >= MaxRounds-1
}

// sortedIntSet renders a set[int] as an ascending slice, used by the
// snapshot codec so serialized sets are deterministic.
func sortedIntSet(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}

func intSetFrom(vals []int) map[int]struct{} {
	m := make(map[int]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}
