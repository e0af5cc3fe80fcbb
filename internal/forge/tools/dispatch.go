package tools

import (
	"context"
	"encoding/json"

	"github.com/knowledgeforge/forge/internal/forge/ferrors"
)

// Dispatcher is an explicit name→handler table, grounded on
// internal/agent/tool_registry.go's mutex-guarded map. Unlike that
// registry, this one is built once at startup from a fixed tool list
// rather than accepting dynamic registration, since spec.md §4.7 calls for
// the table itself to be the authoritative tool list.
type Dispatcher struct {
	handlers map[string]Handler
}

// NewDispatcher builds the full name→handler table for every tool spec.md
// §4.8 names, across every phase, the cross-cutting group, research, and
// the pause tools.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[string]Handler{
		"decompose_to_fundamentals": DecomposeToFundamentals,
		"map_state_of_art":          MapStateOfArt,
		"reframe_problem":           ReframeProblem,
		"build_morphological_box":   BuildMorphologicalBox,
		"search_cross_domain":       SearchCrossDomain,
		"identify_contradictions":   IdentifyContradictions,
		"state_thesis":              StateThesis,
		"find_antithesis":           FindAntithesis,
		"create_synthesis":          CreateSynthesis,
		"attempt_falsification":     AttemptFalsification,
		"check_novelty":             CheckNovelty,
		"score_claim":               ScoreClaim,
		"add_to_knowledge_graph":    AddToKnowledgeGraph,
		"analyze_gaps":              AnalyzeGaps,
		"get_negative_knowledge":    GetNegativeKnowledge,
		"generate_knowledge_document": GenerateKnowledgeDocument,
		"research":                  Research,
		"recall_phase_context":      RecallPhaseContext,
		"search_research_archive":   SearchResearchArchive,
		"update_working_document":   UpdateWorkingDocument,
		"read_working_document":     ReadWorkingDocument,
		"submit_user_insight":       SubmitUserInsight,
		"get_session_status":        GetSessionStatus,
		"ask_user":                  AskUser,
		"present_round":             PresentRound,
		"generate_final_spec":       GenerateFinalSpec,
	}}
}

// pauseTools is consulted by the runner to decide whether a successful
// call should end the turn rather than continue the loop.
var pauseTools = map[string]bool{
	"ask_user":            true,
	"present_round":       true,
	"generate_final_spec": true,
}

// IsPauseTool reports whether name is one of the tools that ends the turn
// and returns control to the user (spec.md §4.8).
func IsPauseTool(name string) bool { return pauseTools[name] }

// Dispatch looks up name and invokes its handler, returning UNKNOWN_TOOL
// rather than crashing on an unrecognized name (spec.md §4.7).
func (d *Dispatcher) Dispatch(ctx context.Context, hc *HandlerContext, name string, params json.RawMessage) (map[string]any, *ferrors.Error) {
	h, ok := d.handlers[name]
	if !ok {
		return nil, ferrors.New(ferrors.CodeUnknownTool, "no handler registered for tool: "+name)
	}
	if ferr := ValidateParams(name, params); ferr != nil {
		return nil, ferr
	}
	return h(ctx, hc, params)
}
