package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/ferrors"
)

// knownWorkingDocumentSections is the closed set update_working_document
// accepts, mirroring the per-phase hints enforce_document.go suggests.
var knownWorkingDocumentSections = map[string]bool{
	"problem_context":       true,
	"cross_domain_patterns": true,
	"core_insight":          true,
	"evidence_base":         true,
	"boundaries":            true,
}

func ok(payload map[string]any) map[string]any {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["status"] = "ok"
	return payload
}

// DecomposeToFundamentals overwrites the fundamentals list.
func DecomposeToFundamentals(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p DecomposeToFundamentalsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	hc.State.Fundamentals = p.Fundamentals
	return ok(map[string]any{"count": len(p.Fundamentals)}), nil
}

// MapStateOfArt requires a web search this phase, then marks the
// state-of-art-researched flag.
func MapStateOfArt(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p MapStateOfArtParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.CheckWebSearch(hc.State, "state_of_art"); err != nil {
		return nil, err
	}
	hc.State.StateOfArtResearched = true
	return ok(map[string]any{"domain": p.Domain, "finding_count": len(p.KeyFindings)}), nil
}

// ReframeProblem appends a candidate reframing and persists a durable
// projection.
func ReframeProblem(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p ReframeProblemParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.ResonanceOptions) < 3 || len(p.ResonanceOptions) > 4 {
		return nil, ferrors.New(ferrors.CodeToolValidationError, "reframe_problem requires 3 to 4 resonance_options")
	}
	r := forge.Reframing{Text: p.Text, Type: p.Type, Reasoning: p.Reasoning, ResonanceOptions: p.ResonanceOptions}
	hc.State.Reframings = append(hc.State.Reframings, r)
	if err := hc.Store.CreateReframing(ctx, hc.SessionID, r); err != nil {
		return nil, ferrors.Database("create_reframing", err)
	}
	return ok(map[string]any{"index": len(hc.State.Reframings) - 1}), nil
}

// BuildMorphologicalBox validates the minimum parameter/value counts
// before replacing the box.
func BuildMorphologicalBox(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p BuildMorphologicalBoxParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if len(p.Parameters) < 3 {
		return nil, ferrors.New(ferrors.CodeToolValidationError, "morphological box requires at least 3 parameters")
	}
	for _, param := range p.Parameters {
		if len(param.Values) < 3 {
			return nil, ferrors.New(ferrors.CodeToolValidationError, fmt.Sprintf("parameter %q requires at least 3 values", param.Name))
		}
	}
	hc.State.MorphologicalBox = p.Parameters
	return ok(map[string]any{"parameter_count": len(p.Parameters)}), nil
}

// SearchCrossDomain requires a web search this phase, appends the
// candidate analogy, and increments the search counter.
func SearchCrossDomain(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p SearchCrossDomainParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.CheckWebSearch(hc.State, "cross_domain"); err != nil {
		return nil, err
	}
	a := forge.CrossDomainAnalogy{
		Domain:            p.SourceDomain,
		TargetApplication: p.TargetApplication,
		Description:       p.AnalogyDescription,
		SemanticDistance:  p.SemanticDistance,
		ResonanceOptions:  p.ResonanceOptions,
	}
	hc.State.CrossDomainAnalogies = append(hc.State.CrossDomainAnalogies, a)
	hc.State.CrossDomainSearchCount++
	if err := hc.Store.CreateCrossDomainAnalogy(ctx, hc.SessionID, a); err != nil {
		return nil, ferrors.Database("create_cross_domain_analogy", err)
	}
	return ok(map[string]any{"index": len(hc.State.CrossDomainAnalogies) - 1, "search_count": hc.State.CrossDomainSearchCount}), nil
}

// IdentifyContradictions appends a surfaced tension.
func IdentifyContradictions(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p IdentifyContradictionsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	c := forge.Contradiction{PropertyA: p.PropertyA, PropertyB: p.PropertyB, Description: p.Description}
	hc.State.Contradictions = append(hc.State.Contradictions, c)
	if err := hc.Store.CreateContradiction(ctx, hc.SessionID, c); err != nil {
		return nil, ferrors.Database("create_contradiction", err)
	}
	return ok(map[string]any{"index": len(hc.State.Contradictions) - 1}), nil
}

// StateThesis appends a new claim buffer entry carrying only the thesis
// side; find_antithesis and create_synthesis fill in the rest.
func StateThesis(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p StateThesisParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.CheckClaimLimit(hc.State); err != nil {
		return nil, err
	}
	claim := forge.Claim{ThesisText: p.ThesisText, Evidence: p.SupportingEvidence, RoundCreated: hc.State.CurrentRound}
	hc.State.CurrentRoundClaims = append(hc.State.CurrentRoundClaims, claim)
	return ok(map[string]any{"claim_index": len(hc.State.CurrentRoundClaims) - 1, "direction": p.Direction}), nil
}

// FindAntithesis requires research this phase, then marks the claim's
// antithesis as searched.
func FindAntithesis(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p FindAntithesisParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.CheckClaimIndexValid(hc.State, p.ClaimIndex); err != nil {
		return nil, err
	}
	if err := forge.CheckWebSearch(hc.State, "antithesis"); err != nil {
		return nil, err
	}
	hc.State.CurrentRoundClaims[p.ClaimIndex].AntithesisText = p.AntithesisText
	hc.State.AntithesesSearched[p.ClaimIndex] = struct{}{}
	return ok(map[string]any{"claim_index": p.ClaimIndex}), nil
}

// CreateSynthesis enforces the claim-limit and antithesis-first gates (and
// the cumulative-reference gate from round 1 onward), then persists the
// claim and its evidence, assigning a durable claim_id.
func CreateSynthesis(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p CreateSynthesisParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.ValidateSynthesisPrerequisites(hc.State, p.ClaimIndex); err != nil {
		return nil, err
	}
	if err := forge.CheckEvidenceGrounding(p.Evidence); err != nil {
		return nil, err
	}
	if hc.State.CurrentRound >= 1 {
		if err := forge.CheckCumulative(hc.State); err != nil {
			return nil, err
		}
		hc.State.PreviousClaimsReferenced = p.BuildsOnClaimID != ""
	}

	claim := &hc.State.CurrentRoundClaims[p.ClaimIndex]
	claim.ClaimText = p.ClaimText
	claim.ThesisText = p.ThesisText
	claim.AntithesisText = p.AntithesisText
	claim.FalsifiabilityCondition = p.FalsifiabilityCondition
	claim.Confidence = p.Confidence
	claim.Evidence = p.Evidence
	claim.BuildsOnClaimID = p.BuildsOnClaimID
	claim.ResonanceOptions = p.ResonanceOptions

	claimID, err := hc.Store.CreateClaim(ctx, hc.SessionID, *claim)
	if err != nil {
		return nil, ferrors.Database("create_claim", err)
	}
	claim.ClaimID = claimID
	for _, ev := range p.Evidence {
		if werr := hc.Store.CreateEvidence(ctx, claimID, hc.SessionID, ev); werr != nil {
			return nil, ferrors.Database("create_evidence", werr)
		}
	}
	return ok(map[string]any{"claim_id": claimID, "claim_index": p.ClaimIndex}), nil
}

// AttemptFalsification requires research this phase, then records the
// attempt regardless of its outcome.
func AttemptFalsification(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p AttemptFalsificationParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.CheckClaimIndexValid(hc.State, p.ClaimIndex); err != nil {
		return nil, err
	}
	if err := forge.CheckWebSearch(hc.State, "falsification"); err != nil {
		return nil, err
	}
	hc.State.FalsificationAttempted[p.ClaimIndex] = struct{}{}
	return ok(map[string]any{"claim_index": p.ClaimIndex, "falsified": p.Falsified}), nil
}

// CheckNovelty requires research this phase, then records the check.
func CheckNovelty(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p CheckNoveltyParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.CheckClaimIndexValid(hc.State, p.ClaimIndex); err != nil {
		return nil, err
	}
	if err := forge.CheckWebSearch(hc.State, "novelty"); err != nil {
		return nil, err
	}
	hc.State.NoveltyChecked[p.ClaimIndex] = struct{}{}
	return ok(map[string]any{"claim_index": p.ClaimIndex, "is_novel": p.IsNovel}), nil
}

// ScoreClaim requires falsification and novelty to already be recorded,
// then writes scores to both the in-memory claim and the durable row.
func ScoreClaim(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p ScoreClaimParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.ValidateScoringPrerequisites(hc.State, p.ClaimIndex); err != nil {
		return nil, err
	}
	for _, v := range []float64{p.Novelty, p.Groundedness, p.Falsifiability, p.Significance} {
		if v < 0 || v > 1 {
			return nil, ferrors.New(ferrors.CodeToolValidationError, "all scores must be within [0, 1]")
		}
	}
	scores := forge.ClaimScores{Novelty: p.Novelty, Groundedness: p.Groundedness, Falsifiability: p.Falsifiability, Significance: p.Significance}
	claim := &hc.State.CurrentRoundClaims[p.ClaimIndex]
	claim.Scores = &scores
	if claim.ClaimID != "" {
		if err := hc.Store.UpdateClaimScores(ctx, claim.ClaimID, scores); err != nil {
			return nil, ferrors.Database("update_claim_scores", err)
		}
	}
	return ok(map[string]any{"claim_index": p.ClaimIndex}), nil
}

// AddToKnowledgeGraph requires the claim to already carry a user verdict
// of accept or qualify, then appends a node and its edges, persisting
// ClaimEdge rows only for endpoints that resolve to a real claim id.
func AddToKnowledgeGraph(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p AddToKnowledgeGraphParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if err := forge.CheckClaimIndexValid(hc.State, p.ClaimIndex); err != nil {
		return nil, err
	}
	claim := hc.State.CurrentRoundClaims[p.ClaimIndex]
	if err := forge.ValidateGraphAddition(hc.State, p.ClaimIndex, claim.Verdict); err != nil {
		return nil, err
	}

	node := forge.GraphNode{
		ID:            claim.ClaimID,
		Status:        forge.StatusForVerdict(claim.Verdict),
		ClaimText:     claim.ClaimText,
		Confidence:    claim.Confidence,
		EvidenceCount: len(claim.Evidence),
		RoundCreated:  claim.RoundCreated,
	}
	if claim.Scores != nil {
		node.Scores = *claim.Scores
	}
	node.Qualification = claim.Qualification
	hc.State.KnowledgeGraphNodes = append(hc.State.KnowledgeGraphNodes, node)

	edgeCount := 0
	for _, e := range p.Edges {
		exists, err := hc.Store.ClaimExists(ctx, e.Target)
		if err != nil {
			return nil, ferrors.Database("claim_exists", err)
		}
		if !exists {
			continue
		}
		edge := forge.GraphEdge{ID: fmt.Sprintf("%s->%s", claim.ClaimID, e.Target), Source: claim.ClaimID, Target: e.Target, Type: e.Type}
		hc.State.KnowledgeGraphEdges = append(hc.State.KnowledgeGraphEdges, edge)
		if werr := hc.Store.CreateEdge(ctx, hc.SessionID, edge); werr != nil {
			return nil, ferrors.Database("create_edge", werr)
		}
		edgeCount++
	}
	return ok(map[string]any{"node_id": node.ID, "edge_count": edgeCount}), nil
}

// AnalyzeGaps records the remaining investigation gaps and convergence
// locks (the latter surfaced only as a count; the full list belongs to the
// BUILD review payload, not to ForgeState).
func AnalyzeGaps(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p AnalyzeGapsParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	hc.State.Gaps = p.Gaps
	return ok(map[string]any{"gap_count": len(p.Gaps), "convergence_lock_count": len(p.ConvergenceLocks)}), nil
}

// GetNegativeKnowledge marks negative knowledge as consulted and returns
// the accumulated list.
func GetNegativeKnowledge(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	hc.State.NegativeKnowledgeConsulted = true
	return ok(map[string]any{"entries": hc.State.NegativeKnowledge}), nil
}

// GenerateKnowledgeDocument assembles the ten named sections into the
// final markdown and stores it. It does not change phase on its own; the
// phase transition to a terminal state is the runner/SessionService's
// responsibility once the user accepts the document.
func GenerateKnowledgeDocument(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p GenerateKnowledgeDocumentParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	var b strings.Builder
	sections := []struct{ title, body string }{
		{"Executive Summary", p.ExecutiveSummary},
		{"Problem Framing", p.ProblemFraming},
		{"Exploration", p.Exploration},
		{"Validated Claims", p.ValidatedClaims},
		{"Graph Structure", p.GraphStructure},
		{"Negative Knowledge", p.NegativeKnowledge},
		{"Open Gaps", p.OpenGaps},
		{"Methodology", p.Methodology},
		{"Limitations", p.Limitations},
		{"Future Directions", p.FutureDirections},
	}
	for _, s := range sections {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", s.title, s.body)
	}
	hc.State.KnowledgeDocumentMarkdown = b.String()
	return ok(map[string]any{"section_count": len(sections), "length": len(hc.State.KnowledgeDocumentMarkdown)}), nil
}

// Research delegates to the injected ResearchFunc, appends the result to
// the research archive, and marks the phase web-search flag so research-
// first predicates are satisfied by either direct or delegated research.
func Research(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p ResearchParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	purpose := forge.ResearchPurpose(p.Purpose)
	if !purpose.Valid() {
		return nil, ferrors.New(ferrors.CodeToolValidationError, "unknown research purpose: "+p.Purpose)
	}
	maxResults := p.MaxResults
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 10
	}
	result, rerr := hc.Research(ctx, p.Query, purpose, p.Instructions, maxResults)
	if rerr != nil {
		// The sub-agent contract never raises; a transport-level error here
		// still degrades to an empty, well-formed result rather than a
		// tool_error, since the model should be free to continue.
		result = ResearchResult{Empty: true}
	}
	hc.State.ResearchArchive = append(hc.State.ResearchArchive, forge.ResearchRecord{
		Query: p.Query, Purpose: purpose, Phase: hc.State.CurrentPhase, Summary: result.Summary, Sources: result.Sources,
	})
	hc.State.ResearchTokensUsed += result.HaikuTokens
	hc.State.RecordWebSearch(p.Query, result.Summary)
	return ok(map[string]any{
		"summary":      result.Summary,
		"sources":      result.Sources,
		"result_count": result.ResultCount,
		"empty":        result.Empty,
	}), nil
}

// phaseArtifacts lists the recall_phase_context artifact names a completed
// phase exposes.
var phaseArtifacts = map[forge.Phase][]string{
	forge.PhaseDecompose:  {"fundamentals", "assumptions", "reframings"},
	forge.PhaseExplore:    {"morphological_box", "cross_domain_analogies", "contradictions"},
	forge.PhaseSynthesize: {"current_round_claims"},
	forge.PhaseValidate:   {"current_round_claims"},
	forge.PhaseBuild:      {"knowledge_graph_nodes", "knowledge_graph_edges", "gaps", "negative_knowledge"},
}

// RecallPhaseContext reads back a named artifact from a previously
// completed phase. Read-only.
func RecallPhaseContext(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p RecallPhaseContextParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	phase := forge.Phase(p.Phase)
	if !phase.Valid() {
		return nil, ferrors.New(ferrors.CodeInvalidPhase, "unknown phase: "+p.Phase)
	}
	if forge.PhaseNumber(phase) >= forge.PhaseNumber(hc.State.CurrentPhase) {
		return nil, ferrors.New(ferrors.CodePhaseNotCompleted, "phase has not yet completed")
	}
	artifacts, ok := phaseArtifacts[phase]
	if !ok {
		return nil, ferrors.New(ferrors.CodeInvalidPhase, "phase has no recallable artifacts")
	}
	found := false
	for _, a := range artifacts {
		if a == p.Artifact {
			found = true
			break
		}
	}
	if !found {
		return nil, ferrors.New(ferrors.CodeArtifactNotFound, "no such artifact in phase "+p.Phase)
	}
	value := artifactValue(hc.State, p.Artifact)
	return map[string]any{"status": "ok", "phase": p.Phase, "artifact": p.Artifact, "value": value}, nil
}

func artifactValue(s *forge.ForgeState, artifact string) any {
	switch artifact {
	case "fundamentals":
		return s.Fundamentals
	case "assumptions":
		return s.Assumptions
	case "reframings":
		return s.Reframings
	case "morphological_box":
		return s.MorphologicalBox
	case "cross_domain_analogies":
		return s.CrossDomainAnalogies
	case "contradictions":
		return s.Contradictions
	case "current_round_claims":
		return s.CurrentRoundClaims
	case "knowledge_graph_nodes":
		return s.KnowledgeGraphNodes
	case "knowledge_graph_edges":
		return s.KnowledgeGraphEdges
	case "gaps":
		return s.Gaps
	case "negative_knowledge":
		return s.NegativeKnowledge
	default:
		return nil
	}
}

// SearchResearchArchive performs a case-insensitive substring-AND search
// over the research archive, newest first, reporting a conservative
// per-result token-cost estimate.
func SearchResearchArchive(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p SearchResearchArchiveParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	maxResults := p.MaxResults
	if maxResults <= 0 || maxResults > 10 {
		maxResults = 10
	}
	var matches []forge.ResearchRecord
	for i := len(hc.State.ResearchArchive) - 1; i >= 0; i-- {
		r := hc.State.ResearchArchive[i]
		if p.Phase != "" && string(r.Phase) != p.Phase {
			continue
		}
		if p.Purpose != "" && string(r.Purpose) != p.Purpose {
			continue
		}
		if !matchesAllKeywords(r, p.Keywords) {
			continue
		}
		matches = append(matches, r)
		if len(matches) >= maxResults {
			break
		}
	}
	return ok(map[string]any{
		"results":             matches,
		"result_count":        len(matches),
		"estimated_token_cost": len(matches) * 300,
	}), nil
}

func matchesAllKeywords(r forge.ResearchRecord, keywords []string) bool {
	haystack := strings.ToLower(r.Query + " " + r.Summary)
	for _, kw := range keywords {
		if !strings.Contains(haystack, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// UpdateWorkingDocument writes a section, rejecting unknown names.
func UpdateWorkingDocument(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p UpdateWorkingDocumentParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if !knownWorkingDocumentSections[p.Section] {
		return nil, ferrors.New(ferrors.CodeUnknownSection, "unknown working document section: "+p.Section)
	}
	hc.State.WorkingDocument[p.Section] = p.Content
	hc.State.DocumentUpdatedThisPhase = true
	return ok(map[string]any{"section": p.Section, "length": len(p.Content)}), nil
}

// ReadWorkingDocument returns a table of contents (section → word count)
// when no section is given, or a section's full content otherwise.
func ReadWorkingDocument(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p ReadWorkingDocumentParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	if p.Section == "" {
		toc := map[string]int{}
		for section, content := range hc.State.WorkingDocument {
			toc[section] = len(strings.Fields(content))
		}
		return ok(map[string]any{"table_of_contents": toc}), nil
	}
	content, found := hc.State.WorkingDocument[p.Section]
	if !found {
		return nil, ferrors.New(ferrors.CodeUnknownSection, "unknown working document section: "+p.Section)
	}
	return ok(map[string]any{"section": p.Section, "content": content}), nil
}

// SubmitUserInsight creates a durable user-contributed claim and a graph
// node directly, bypassing the thesis/antithesis/synthesis pipeline since
// the user, not the model, is the author.
func SubmitUserInsight(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p SubmitUserInsightParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	claimID, err := hc.Store.CreateUserInsight(ctx, hc.SessionID, p.InsightText, p.EvidenceURLs, p.RelatesToClaimID)
	if err != nil {
		return nil, ferrors.Database("create_user_insight", err)
	}
	node := forge.GraphNode{ID: claimID, Status: forge.ClaimValidated, ClaimText: p.InsightText, RoundCreated: hc.State.CurrentRound}
	hc.State.KnowledgeGraphNodes = append(hc.State.KnowledgeGraphNodes, node)
	if p.RelatesToClaimID != "" {
		edge := forge.GraphEdge{ID: fmt.Sprintf("%s->%s", claimID, p.RelatesToClaimID), Source: claimID, Target: p.RelatesToClaimID, Type: forge.EdgeExtends}
		hc.State.KnowledgeGraphEdges = append(hc.State.KnowledgeGraphEdges, edge)
		if werr := hc.Store.CreateEdge(ctx, hc.SessionID, edge); werr != nil {
			return nil, ferrors.Database("create_edge", werr)
		}
	}
	return ok(map[string]any{"claim_id": claimID}), nil
}

// GetSessionStatus reports the session's current position in the pipeline.
func GetSessionStatus(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	return ok(map[string]any{
		"phase":        hc.State.CurrentPhase,
		"round":        hc.State.CurrentRound,
		"claims_count": len(hc.State.CurrentRoundClaims),
		"graph_nodes":  len(hc.State.KnowledgeGraphNodes),
	}), nil
}

// --- pause tools ---

// AskUser pauses the turn with a direct question.
func AskUser(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p AskUserParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	hc.State.AwaitingUserInput = true
	hc.State.AwaitingInputType = "ask_user"
	return ok(map[string]any{"prompt": p.Prompt, "options": p.Options}), nil
}

// PresentRound pauses the turn to present the round's findings for review.
func PresentRound(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	var p PresentRoundParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, err
	}
	hc.State.AwaitingUserInput = true
	hc.State.AwaitingInputType = "present_round"
	return ok(map[string]any{"summary": p.Summary}), nil
}

// GenerateFinalSpec pauses after CRYSTALLIZE to hand off the final
// document for user acceptance.
func GenerateFinalSpec(ctx context.Context, hc *HandlerContext, raw json.RawMessage) (map[string]any, *ferrors.Error) {
	hc.State.AwaitingUserInput = true
	hc.State.AwaitingInputType = "generate_final_spec"
	return ok(map[string]any{"document_length": len(hc.State.KnowledgeDocumentMarkdown)}), nil
}

// sortedArtifactNames is used only by tests asserting phaseArtifacts'
// deterministic ordering.
func sortedArtifactNames(phase forge.Phase) []string {
	out := append([]string(nil), phaseArtifacts[phase]...)
	sort.Strings(out)
	return out
}
