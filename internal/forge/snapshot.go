package forge

// Snapshot is the JSON-safe dictionary form of a ForgeState, stored on the
// Session row and round-tripped across process restarts. Decoding a
// snapshot missing a field yields that field's zero value, which is how
// old snapshots stay forward-compatible with new ForgeState fields:
// nothing here ever requires a key to be present.
type Snapshot struct {
	CurrentPhase string `json:"current_phase"`
	CurrentRound int    `json:"current_round"`

	Locale           string  `json:"locale"`
	LocaleConfidence float64 `json:"locale_confidence"`

	Fundamentals         []string     `json:"fundamentals"`
	StateOfArtResearched bool         `json:"state_of_art_researched"`
	Assumptions          []Assumption `json:"assumptions"`
	Reframings           []Reframing  `json:"reframings"`

	MorphologicalBox       []MorphologicalParameter `json:"morphological_box"`
	CrossDomainAnalogies   []CrossDomainAnalogy      `json:"cross_domain_analogies"`
	CrossDomainSearchCount int                       `json:"cross_domain_search_count"`
	Contradictions         []Contradiction           `json:"contradictions"`
	AdjacentPossible       []AdjacentPossible        `json:"adjacent_possible"`

	CurrentRoundClaims     []Claim `json:"current_round_claims"`
	AntithesesSearched     []int   `json:"antitheses_searched"`
	FalsificationAttempted []int   `json:"falsification_attempted"`
	NoveltyChecked         []int   `json:"novelty_checked"`

	KnowledgeGraphNodes        []GraphNode         `json:"knowledge_graph_nodes"`
	KnowledgeGraphEdges        []GraphEdge         `json:"knowledge_graph_edges"`
	NegativeKnowledge          []NegativeKnowledge `json:"negative_knowledge"`
	Gaps                       []string            `json:"gaps"`
	NegativeKnowledgeConsulted bool                `json:"negative_knowledge_consulted"`
	PreviousClaimsReferenced   bool                `json:"previous_claims_referenced"`

	KnowledgeDocumentMarkdown *string `json:"knowledge_document_markdown"`

	WorkingDocument          map[string]string `json:"working_document"`
	DocumentUpdatedThisPhase bool              `json:"document_updated_this_phase"`

	ResearchArchive    []ResearchRecord    `json:"research_archive"`
	ResearchTokensUsed int                 `json:"research_tokens_used"`
	ResearchDirectives []ResearchDirective `json:"research_directives"`

	AwaitingUserInput bool    `json:"awaiting_user_input"`
	AwaitingInputType *string `json:"awaiting_input_type"`

	DeepDiveActive        bool    `json:"deep_dive_active"`
	DeepDiveTargetClaimID *string `json:"deep_dive_target_claim_id"`

	// Cancelled is intentionally absent: it is transient and never
	// persisted (spec.md §4.2).
}

// ToSnapshot renders s as its JSON-safe dictionary form. Sets become
// sorted slices; Cancelled is dropped.
func (s *ForgeState) ToSnapshot() Snapshot {
	snap := Snapshot{
		CurrentPhase:               string(s.CurrentPhase),
		CurrentRound:               s.CurrentRound,
		Locale:                     string(s.Locale),
		LocaleConfidence:           s.LocaleConfidence,
		Fundamentals:               s.Fundamentals,
		StateOfArtResearched:       s.StateOfArtResearched,
		Assumptions:                s.Assumptions,
		Reframings:                 s.Reframings,
		MorphologicalBox:           s.MorphologicalBox,
		CrossDomainAnalogies:       s.CrossDomainAnalogies,
		CrossDomainSearchCount:     s.CrossDomainSearchCount,
		Contradictions:             s.Contradictions,
		AdjacentPossible:           s.AdjacentPossible,
		CurrentRoundClaims:         s.CurrentRoundClaims,
		AntithesesSearched:         sortedIntSet(s.AntithesesSearched),
		FalsificationAttempted:     sortedIntSet(s.FalsificationAttempted),
		NoveltyChecked:             sortedIntSet(s.NoveltyChecked),
		KnowledgeGraphNodes:        s.KnowledgeGraphNodes,
		KnowledgeGraphEdges:        s.KnowledgeGraphEdges,
		NegativeKnowledge:          s.NegativeKnowledge,
		Gaps:                       s.Gaps,
		NegativeKnowledgeConsulted: s.NegativeKnowledgeConsulted,
		PreviousClaimsReferenced:   s.PreviousClaimsReferenced,
		WorkingDocument:            s.WorkingDocument,
		DocumentUpdatedThisPhase:   s.DocumentUpdatedThisPhase,
		ResearchArchive:            s.ResearchArchive,
		ResearchTokensUsed:         s.ResearchTokensUsed,
		ResearchDirectives:         s.ResearchDirectives,
		AwaitingUserInput:          s.AwaitingUserInput,
		DeepDiveActive:             s.DeepDiveActive,
	}
	if s.KnowledgeDocumentMarkdown != "" {
		v := s.KnowledgeDocumentMarkdown
		snap.KnowledgeDocumentMarkdown = &v
	}
	if s.AwaitingInputType != "" {
		v := s.AwaitingInputType
		snap.AwaitingInputType = &v
	}
	if s.DeepDiveTargetClaimID != "" {
		v := s.DeepDiveTargetClaimID
		snap.DeepDiveTargetClaimID = &v
	}
	return snap
}

// FromSnapshot rebuilds a ForgeState from its dictionary form. The zero
// Snapshot produces a fresh default state (locale EN), matching
// `from_snapshot({})` returning a default state in the distilled source.
func FromSnapshot(snap Snapshot) *ForgeState {
	s := NewForgeState(LocaleEN)

	if snap.CurrentPhase != "" && Phase(snap.CurrentPhase).Valid() {
		s.CurrentPhase = Phase(snap.CurrentPhase)
	}
	s.CurrentRound = snap.CurrentRound

	if snap.Locale != "" && Locale(snap.Locale).Valid() {
		s.Locale = Locale(snap.Locale)
	}
	s.LocaleConfidence = snap.LocaleConfidence
	if s.LocaleConfidence == 0 {
		s.LocaleConfidence = 1.0
	}

	s.Fundamentals = snap.Fundamentals
	s.StateOfArtResearched = snap.StateOfArtResearched
	s.Assumptions = snap.Assumptions
	s.Reframings = snap.Reframings

	s.MorphologicalBox = snap.MorphologicalBox
	s.CrossDomainAnalogies = snap.CrossDomainAnalogies
	s.CrossDomainSearchCount = snap.CrossDomainSearchCount
	s.Contradictions = snap.Contradictions
	s.AdjacentPossible = snap.AdjacentPossible

	s.CurrentRoundClaims = snap.CurrentRoundClaims
	s.AntithesesSearched = intSetFrom(snap.AntithesesSearched)
	s.FalsificationAttempted = intSetFrom(snap.FalsificationAttempted)
	s.NoveltyChecked = intSetFrom(snap.NoveltyChecked)

	s.KnowledgeGraphNodes = snap.KnowledgeGraphNodes
	s.KnowledgeGraphEdges = snap.KnowledgeGraphEdges
	s.NegativeKnowledge = snap.NegativeKnowledge
	s.Gaps = snap.Gaps
	s.NegativeKnowledgeConsulted = snap.NegativeKnowledgeConsulted
	s.PreviousClaimsReferenced = snap.PreviousClaimsReferenced

	if snap.KnowledgeDocumentMarkdown != nil {
		s.KnowledgeDocumentMarkdown = *snap.KnowledgeDocumentMarkdown
	}

	if snap.WorkingDocument != nil {
		s.WorkingDocument = snap.WorkingDocument
	}
	s.DocumentUpdatedThisPhase = snap.DocumentUpdatedThisPhase

	s.ResearchArchive = snap.ResearchArchive
	s.ResearchTokensUsed = snap.ResearchTokensUsed
	s.ResearchDirectives = snap.ResearchDirectives

	s.AwaitingUserInput = snap.AwaitingUserInput
	if snap.AwaitingInputType != nil {
		s.AwaitingInputType = *snap.AwaitingInputType
	}

	s.DeepDiveActive = snap.DeepDiveActive
	if snap.DeepDiveTargetClaimID != nil {
		s.DeepDiveTargetClaimID = *snap.DeepDiveTargetClaimID
	}

	return s
}
