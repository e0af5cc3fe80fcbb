package tools

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/llm"
)

// Definition is the declarative {name, description, input_schema} shape a
// tool is registered with, per spec.md §4.7.
type Definition struct {
	Name        string
	Description string
	New         func() any // returns a fresh zero-value params struct, for schema reflection
}

var schemaReflector = &jsonschema.Reflector{
	FieldNameTag:               "json",
	ExpandedStruct:             true,
	DoNotReference:             true,
	AllowAdditionalProperties:  false,
}

var schemaCache sync.Map // map[string]any, keyed by Definition.Name

// reflectSchema builds a JSON-schema-shaped value for v's type, grounded on
// internal/config/schema.go's Reflector usage, caching by name since the
// reflected shape never changes across calls.
func reflectSchema(name string, v any) any {
	if cached, ok := schemaCache.Load(name); ok {
		return cached
	}
	raw, err := json.Marshal(schemaReflector.Reflect(v))
	if err != nil {
		panic("tools: schema reflection failed for " + name + ": " + err.Error())
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("tools: schema re-decode failed for " + name + ": " + err.Error())
	}
	schemaCache.Store(name, out)
	return out
}

// ToSchema converts a Definition to the llm package's wire-facing
// ToolSchema, reflecting its params struct into a JSON schema.
func (d Definition) ToSchema() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: reflectSchema(d.Name, d.New()),
	}
}

// --- per-tool params structs ---

type DecomposeToFundamentalsParams struct {
	Fundamentals []string `json:"fundamentals" jsonschema:"required,description=The extracted first-principles fundamentals of the problem."`
	Approach     string   `json:"approach" jsonschema:"description=A short note on the decomposition approach taken."`
}

type MapStateOfArtParams struct {
	Domain      string   `json:"domain" jsonschema:"required"`
	KeyFindings []string `json:"key_findings" jsonschema:"required"`
}

type ReframeProblemParams struct {
	Text             string   `json:"text" jsonschema:"required"`
	Type             string   `json:"type" jsonschema:"required"`
	Reasoning        string   `json:"reasoning" jsonschema:"required"`
	ResonancePrompt  string   `json:"resonance_prompt" jsonschema:"required"`
	ResonanceOptions []string `json:"resonance_options" jsonschema:"required,minItems=3,maxItems=4"`
}

type BuildMorphologicalBoxParams struct {
	Parameters []forge.MorphologicalParameter `json:"parameters" jsonschema:"required,minItems=3"`
}

type SearchCrossDomainParams struct {
	SourceDomain       string   `json:"source_domain" jsonschema:"required"`
	TargetApplication  string   `json:"target_application" jsonschema:"required"`
	AnalogyDescription string   `json:"analogy_description" jsonschema:"required"`
	SemanticDistance   string   `json:"semantic_distance" jsonschema:"required"`
	KeyFindings        []string `json:"key_findings"`
	ResonancePrompt    string   `json:"resonance_prompt" jsonschema:"required"`
	ResonanceOptions   []string `json:"resonance_options" jsonschema:"required"`
}

type IdentifyContradictionsParams struct {
	PropertyA   string `json:"property_a" jsonschema:"required"`
	PropertyB   string `json:"property_b" jsonschema:"required"`
	Description string `json:"description" jsonschema:"required"`
}

type StateThesisParams struct {
	ThesisText         string          `json:"thesis_text" jsonschema:"required"`
	Direction          string          `json:"direction" jsonschema:"required"`
	SupportingEvidence []forge.Evidence `json:"supporting_evidence" jsonschema:"required,minItems=1"`
}

type FindAntithesisParams struct {
	ClaimIndex            int             `json:"claim_index" jsonschema:"required"`
	AntithesisText        string          `json:"antithesis_text" jsonschema:"required"`
	ContradictingEvidence []forge.Evidence `json:"contradicting_evidence" jsonschema:"required,minItems=1"`
}

type CreateSynthesisParams struct {
	ClaimIndex              int             `json:"claim_index" jsonschema:"required"`
	ClaimText               string          `json:"claim_text" jsonschema:"required"`
	ThesisText              string          `json:"thesis_text" jsonschema:"required"`
	AntithesisText           string          `json:"antithesis_text" jsonschema:"required"`
	FalsifiabilityCondition string          `json:"falsifiability_condition" jsonschema:"required"`
	Confidence              string          `json:"confidence" jsonschema:"required"`
	Evidence                []forge.Evidence `json:"evidence" jsonschema:"required,minItems=1"`
	BuildsOnClaimID         string          `json:"builds_on_claim_id,omitempty"`
	ResonancePrompt         string          `json:"resonance_prompt" jsonschema:"required"`
	ResonanceOptions        []string        `json:"resonance_options" jsonschema:"required"`
}

type AttemptFalsificationParams struct {
	ClaimIndex int             `json:"claim_index" jsonschema:"required"`
	Approach   string          `json:"approach" jsonschema:"required"`
	Result     string          `json:"result" jsonschema:"required"`
	Falsified  bool            `json:"falsified"`
	Evidence   []forge.Evidence `json:"evidence"`
}

type CheckNoveltyParams struct {
	ClaimIndex        int    `json:"claim_index" jsonschema:"required"`
	ExistingKnowledge string `json:"existing_knowledge"`
	IsNovel           bool   `json:"is_novel"`
	NoveltyExplanation string `json:"novelty_explanation" jsonschema:"required"`
}

type ScoreClaimParams struct {
	ClaimIndex     int     `json:"claim_index" jsonschema:"required"`
	Novelty        float64 `json:"novelty" jsonschema:"required,minimum=0,maximum=1"`
	Groundedness   float64 `json:"groundedness" jsonschema:"required,minimum=0,maximum=1"`
	Falsifiability float64 `json:"falsifiability" jsonschema:"required,minimum=0,maximum=1"`
	Significance   float64 `json:"significance" jsonschema:"required,minimum=0,maximum=1"`
	Reasoning      string  `json:"reasoning" jsonschema:"required"`
}

type EdgeInput struct {
	Target string         `json:"target" jsonschema:"required"`
	Type   forge.EdgeType `json:"type" jsonschema:"required"`
}

type AddToKnowledgeGraphParams struct {
	ClaimIndex int         `json:"claim_index" jsonschema:"required"`
	Edges      []EdgeInput `json:"edges"`
}

type AnalyzeGapsParams struct {
	Gaps             []string `json:"gaps" jsonschema:"required"`
	ConvergenceLocks []string `json:"convergence_locks"`
}

type GetNegativeKnowledgeParams struct{}

type GenerateKnowledgeDocumentParams struct {
	ExecutiveSummary   string `json:"executive_summary" jsonschema:"required"`
	ProblemFraming     string `json:"problem_framing" jsonschema:"required"`
	Exploration        string `json:"exploration" jsonschema:"required"`
	ValidatedClaims    string `json:"validated_claims" jsonschema:"required"`
	GraphStructure     string `json:"graph_structure" jsonschema:"required"`
	NegativeKnowledge  string `json:"negative_knowledge" jsonschema:"required"`
	OpenGaps           string `json:"open_gaps" jsonschema:"required"`
	Methodology        string `json:"methodology" jsonschema:"required"`
	Limitations        string `json:"limitations" jsonschema:"required"`
	FutureDirections   string `json:"future_directions" jsonschema:"required"`
}

type ResearchParams struct {
	Query        string `json:"query" jsonschema:"required"`
	Purpose      string `json:"purpose" jsonschema:"required"`
	Instructions string `json:"instructions,omitempty"`
	MaxResults   int    `json:"max_results,omitempty" jsonschema:"maximum=10"`
}

type RecallPhaseContextParams struct {
	Phase    string `json:"phase" jsonschema:"required"`
	Artifact string `json:"artifact" jsonschema:"required"`
}

type SearchResearchArchiveParams struct {
	Keywords   []string `json:"keywords" jsonschema:"required"`
	Phase      string   `json:"phase,omitempty"`
	Purpose    string   `json:"purpose,omitempty"`
	MaxResults int      `json:"max_results,omitempty" jsonschema:"maximum=10"`
}

type UpdateWorkingDocumentParams struct {
	Section string `json:"section" jsonschema:"required"`
	Content string `json:"content" jsonschema:"required"`
}

type ReadWorkingDocumentParams struct {
	Section string `json:"section,omitempty"`
}

type SubmitUserInsightParams struct {
	InsightText     string   `json:"insight_text" jsonschema:"required"`
	EvidenceURLs    []string `json:"evidence_urls"`
	RelatesToClaimID string  `json:"relates_to_claim_id,omitempty"`
}

type GetSessionStatusParams struct{}

type AskUserParams struct {
	Prompt  string   `json:"prompt" jsonschema:"required"`
	Options []string `json:"options,omitempty"`
}

type PresentRoundParams struct {
	Summary string `json:"summary" jsonschema:"required"`
}

type GenerateFinalSpecParams struct{}

// --- declarative registration, grouped per spec.md §4.7 ---

func def(name, desc string, zero any) Definition {
	return Definition{Name: name, Description: desc, New: func() any { return zero }}
}

// PhaseTools returns the phase-specific tool definitions available in p,
// not including the cross-cutting group or the research tool.
func PhaseTools(p forge.Phase) []Definition {
	switch p {
	case forge.PhaseDecompose:
		return []Definition{
			def("decompose_to_fundamentals", "Record the first-principles fundamentals of the problem.", DecomposeToFundamentalsParams{}),
			def("map_state_of_art", "Record findings from researching the current state of the art.", MapStateOfArtParams{}),
			def("reframe_problem", "Propose an alternative framing of the problem for user review.", ReframeProblemParams{}),
		}
	case forge.PhaseExplore:
		return []Definition{
			def("build_morphological_box", "Record the morphological box of problem-space parameters.", BuildMorphologicalBoxParams{}),
			def("search_cross_domain", "Record a cross-domain analogy candidate for user review.", SearchCrossDomainParams{}),
			def("identify_contradictions", "Record a tension between two properties of the problem.", IdentifyContradictionsParams{}),
		}
	case forge.PhaseSynthesize:
		return []Definition{
			def("state_thesis", "State a thesis claim direction before searching its antithesis.", StateThesisParams{}),
			def("find_antithesis", "Record an antithesis search result for a claim.", FindAntithesisParams{}),
			def("create_synthesis", "Create a synthesis claim from a thesis/antithesis pair.", CreateSynthesisParams{}),
		}
	case forge.PhaseValidate:
		return []Definition{
			def("attempt_falsification", "Record a falsification attempt against a claim.", AttemptFalsificationParams{}),
			def("check_novelty", "Record a novelty check against a claim.", CheckNoveltyParams{}),
			def("score_claim", "Score a claim on the four validation axes.", ScoreClaimParams{}),
		}
	case forge.PhaseBuild:
		return []Definition{
			def("add_to_knowledge_graph", "Add a user-verdicted claim to the cumulative knowledge graph.", AddToKnowledgeGraphParams{}),
			def("analyze_gaps", "Record remaining investigation gaps and convergence locks.", AnalyzeGapsParams{}),
			def("get_negative_knowledge", "Retrieve rejected claims kept as lessons for future rounds.", GetNegativeKnowledgeParams{}),
		}
	case forge.PhaseCrystallize:
		return []Definition{
			def("generate_knowledge_document", "Generate the ten-section final knowledge document.", GenerateKnowledgeDocumentParams{}),
		}
	default:
		return nil
	}
}

// CrossCuttingTools returns the tool definitions available in every phase
// (spec.md §4.7).
func CrossCuttingTools() []Definition {
	return []Definition{
		def("get_session_status", "Report the session's current phase, round, and status.", GetSessionStatusParams{}),
		def("submit_user_insight", "Record a user-contributed claim directly into the knowledge graph.", SubmitUserInsightParams{}),
		def("recall_phase_context", "Read back a specific artifact recorded in a completed phase.", RecallPhaseContextParams{}),
		def("search_research_archive", "Search previously recorded research to avoid redundant queries.", SearchResearchArchiveParams{}),
		def("update_working_document", "Write the current phase's findings into the working document.", UpdateWorkingDocumentParams{}),
		def("read_working_document", "Read the working document's table of contents or a specific section.", ReadWorkingDocumentParams{}),
	}
}

// ResearchTool returns the single delegated-research tool definition,
// available in every phase except CRYSTALLIZE.
func ResearchTool() Definition {
	return def("research", "Delegate a web-search query to the research sub-agent.", ResearchParams{})
}

// PauseTools returns the tools that end the turn and return control to the
// user, available in every phase.
func PauseTools() []Definition {
	return []Definition{
		def("ask_user", "Pause and ask the user a direct question.", AskUserParams{}),
		def("present_round", "Pause and present this round's findings for review.", PresentRoundParams{}),
		def("generate_final_spec", "Pause after CRYSTALLIZE to hand off the final document.", GenerateFinalSpecParams{}),
	}
}

// SchemasFor composes the full tool list available to the model in phase
// p: phase-specific, cross-cutting, pause tools, and (outside CRYSTALLIZE)
// the research tool — converted to llm.ToolSchema for the request.
func SchemasFor(p forge.Phase) []llm.ToolSchema {
	var defs []Definition
	defs = append(defs, PhaseTools(p)...)
	defs = append(defs, CrossCuttingTools()...)
	defs = append(defs, PauseTools()...)
	if p != forge.PhaseCrystallize {
		defs = append(defs, ResearchTool())
	}
	out := make([]llm.ToolSchema, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ToSchema())
	}
	return out
}
