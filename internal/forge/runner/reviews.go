package runner

import (
	"encoding/json"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/translate"
)

// toMapSlice converts a slice of any JSON-tagged struct into
// []map[string]any via a marshal round trip, so the review payload has
// the same field names the translate package's field whitelist expects
// without hand-duplicating every struct's shape here.
func toMapSlice[T any](items []T) []map[string]any {
	if len(items) == 0 {
		return []map[string]any{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return []map[string]any{}
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return []map[string]any{}
	}
	return out
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// graphNodesReactFlow renders nodes in the node-link layout spec.md §6's
// GET .../graph endpoint and the review_build event share: each node
// carries its full field set under "data", plus a top-level "type" for a
// graph-rendering client to branch on without reaching into data.
func graphNodesReactFlow(nodes []forge.GraphNode) []map[string]any {
	out := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, map[string]any{
			"id":   n.ID,
			"type": string(n.Status),
			"data": toMap(n),
		})
	}
	return out
}

// buildReviewData assembles the review_* (or knowledge_document)
// payload for the phase whose pause tool just fired. ok is false for a
// phase with no review shape of its own (there is none beyond the six
// handled here).
func buildReviewData(phase forge.Phase, s *forge.ForgeState) (translate.EventType, map[string]any, bool) {
	switch phase {
	case forge.PhaseDecompose:
		return translate.EventReviewDecompose, map[string]any{
			"fundamentals": s.Fundamentals,
			"assumptions":  toMapSlice(s.Assumptions),
			"reframings":   toMapSlice(s.Reframings),
		}, true

	case forge.PhaseExplore:
		return translate.EventReviewExplore, map[string]any{
			"morphological_box": toMapSlice(s.MorphologicalBox),
			"analogies":         toMapSlice(s.CrossDomainAnalogies),
			"contradictions":    toMapSlice(s.Contradictions),
			"adjacent":          toMapSlice(s.AdjacentPossible),
		}, true

	case forge.PhaseSynthesize:
		return translate.EventReviewClaims, map[string]any{
			"claims": toMapSlice(s.CurrentRoundClaims),
		}, true

	case forge.PhaseValidate:
		return translate.EventReviewVerdicts, map[string]any{
			"claims": toMapSlice(s.CurrentRoundClaims),
		}, true

	case forge.PhaseBuild:
		return translate.EventReviewBuild, map[string]any{
			"graph": map[string]any{
				"nodes": graphNodesReactFlow(s.KnowledgeGraphNodes),
				"edges": toMapSlice(s.KnowledgeGraphEdges),
			},
			"gaps":               s.Gaps,
			"negative_knowledge": toMapSlice(s.NegativeKnowledge),
		}, true

	default:
		return "", nil, false
	}
}

// eventTypeFor maps a translate.EventType onto this package's own
// EventType so the translated data can still be wrapped in an Event.
var eventTypeFor = map[translate.EventType]EventType{
	translate.EventReviewDecompose: EventReviewDecompose,
	translate.EventReviewExplore:   EventReviewExplore,
	translate.EventReviewClaims:    EventReviewClaims,
	translate.EventReviewVerdicts:  EventReviewVerdicts,
	translate.EventReviewBuild:     EventReviewBuild,
}
