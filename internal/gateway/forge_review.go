// Package gateway exposes the HTTP/SSE surface spec.md §6 defines, on top
// of the forge session.Service. forge_review.go converts the user-input
// tagged union the stream review gates expect into the plain text user
// turn the AgentRunner consumes — the union itself is a UI-facing
// convenience; the runner only ever sees a single user message per turn,
// same as the distilled source's review endpoints which re-enter the
// agent loop with a synthesized "user" content block summarizing the
// reviewer's choices.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/ferrors"
	"github.com/knowledgeforge/forge/internal/forge/tools"
)

// reviewInput is the tagged union spec.md §6 documents. Only Type plus the
// fields relevant to it are populated for any given request; the rest are
// left zero.
type reviewInput struct {
	Type string `json:"type"`

	// decompose_review
	AssumptionResponses []indexedResponse `json:"assumption_responses,omitempty"`
	ReframingResponses  []indexedResponse `json:"reframing_responses,omitempty"`
	SuggestedDomains    []string          `json:"suggested_domains,omitempty"`

	// explore_review
	AnalogyResponses    []indexedResponse `json:"analogy_responses,omitempty"`
	AddedContradictions []string          `json:"added_contradictions,omitempty"`

	// claims_review
	ClaimResponses []indexedResponse `json:"claim_responses,omitempty"`

	// verdicts
	Verdicts []verdictInput `json:"verdicts,omitempty"`

	// build_decision
	Decision           string   `json:"decision,omitempty"`
	SelectedGaps       []string `json:"selected_gaps,omitempty"`
	ContinueDirection  string   `json:"continue_direction,omitempty"`
	DeepDiveClaimID    string   `json:"deep_dive_claim_id,omitempty"`
	UserInsight        string   `json:"user_insight,omitempty"`
	UserEvidenceURLs   []string `json:"user_evidence_urls,omitempty"`
}

// indexedResponse is one reviewed entry in a decompose/explore/claims
// review: the index of the item it responds to, the selected option
// (an index into that item's options/resonance_options, 0 meaning none
// selected), and an optional free-text argument.
type indexedResponse struct {
	Index          int    `json:"index"`
	SelectedOption int    `json:"selected_option"`
	CustomArgument string `json:"custom_argument,omitempty"`
}

type verdictInput struct {
	ClaimIndex       int    `json:"claim_index"`
	Verdict          string `json:"verdict"`
	RejectionReason  string `json:"rejection_reason,omitempty"`
	Qualification    string `json:"qualification,omitempty"`
	MergeWithClaimID string `json:"merge_with_claim_id,omitempty"`
}

var validReviewTypes = map[string]bool{
	"decompose_review": true,
	"explore_review":   true,
	"claims_review":    true,
	"verdicts":         true,
	"build_decision":   true,
}

const maxCustomArgumentLen = 500

// parseReviewInput decodes and minimally validates body against the
// tagged union's shape, the defense-in-depth validation spec.md §7's
// Validation kind calls for ahead of any business-rule enforcement.
func parseReviewInput(body []byte) (*reviewInput, *ferrors.Error) {
	var in reviewInput
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, ferrors.Validation("INVALID_REQUEST_BODY", "request body is not valid JSON: "+err.Error())
	}
	if !validReviewTypes[in.Type] {
		return nil, ferrors.Validation("INVALID_REVIEW_TYPE", fmt.Sprintf("unknown user-input type %q", in.Type))
	}
	for _, r := range allIndexedResponses(&in) {
		if len(r.CustomArgument) > maxCustomArgumentLen {
			return nil, ferrors.Validation("CUSTOM_ARGUMENT_TOO_LONG", "custom_argument exceeds 500 characters")
		}
	}
	if in.Type == "verdicts" {
		for _, v := range in.Verdicts {
			switch v.Verdict {
			case "accept", "reject", "qualify", "merge":
			default:
				return nil, ferrors.Validation("INVALID_VERDICT", fmt.Sprintf("unknown verdict %q", v.Verdict))
			}
		}
	}
	if in.Type == "build_decision" {
		switch in.Decision {
		case "continue", "deep_dive", "resolve", "add_insight":
		default:
			return nil, ferrors.Validation("INVALID_BUILD_DECISION", fmt.Sprintf("unknown decision %q", in.Decision))
		}
	}
	return &in, nil
}

func allIndexedResponses(in *reviewInput) []indexedResponse {
	var out []indexedResponse
	out = append(out, in.AssumptionResponses...)
	out = append(out, in.ReframingResponses...)
	out = append(out, in.AnalogyResponses...)
	out = append(out, in.ClaimResponses...)
	return out
}

// toUserMessage renders in as the plain-text user turn the AgentRunner
// appends to message history, one line per decision so the model can
// read it the same way it reads any other user message.
func (in *reviewInput) toUserMessage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "User review input (%s):\n", in.Type)

	writeIndexed := func(label string, rs []indexedResponse) {
		for _, r := range rs {
			fmt.Fprintf(&b, "- %s[%d]: option %d", label, r.Index, r.SelectedOption)
			if r.CustomArgument != "" {
				fmt.Fprintf(&b, " (%s)", r.CustomArgument)
			}
			b.WriteString("\n")
		}
	}

	switch in.Type {
	case "decompose_review":
		writeIndexed("assumption", in.AssumptionResponses)
		writeIndexed("reframing", in.ReframingResponses)
		for _, d := range in.SuggestedDomains {
			fmt.Fprintf(&b, "- suggested_domain: %s\n", d)
		}
	case "explore_review":
		writeIndexed("analogy", in.AnalogyResponses)
		for _, d := range in.SuggestedDomains {
			fmt.Fprintf(&b, "- suggested_domain: %s\n", d)
		}
		for _, c := range in.AddedContradictions {
			fmt.Fprintf(&b, "- added_contradiction: %s\n", c)
		}
	case "claims_review":
		writeIndexed("claim", in.ClaimResponses)
	case "verdicts":
		for _, v := range in.Verdicts {
			fmt.Fprintf(&b, "- claim[%d]: verdict=%s", v.ClaimIndex, v.Verdict)
			if v.RejectionReason != "" {
				fmt.Fprintf(&b, " rejection_reason=%q", v.RejectionReason)
			}
			if v.Qualification != "" {
				fmt.Fprintf(&b, " qualification=%q", v.Qualification)
			}
			if v.MergeWithClaimID != "" {
				fmt.Fprintf(&b, " merge_with_claim_id=%s", v.MergeWithClaimID)
			}
			b.WriteString("\n")
		}
	case "build_decision":
		fmt.Fprintf(&b, "- decision: %s\n", in.Decision)
		for _, g := range in.SelectedGaps {
			fmt.Fprintf(&b, "- selected_gap: %s\n", g)
		}
		if in.ContinueDirection != "" {
			fmt.Fprintf(&b, "- continue_direction: %s\n", in.ContinueDirection)
		}
		if in.DeepDiveClaimID != "" {
			fmt.Fprintf(&b, "- deep_dive_claim_id: %s\n", in.DeepDiveClaimID)
		}
		if in.UserInsight != "" {
			fmt.Fprintf(&b, "- user_insight: %s\n", in.UserInsight)
		}
		for _, u := range in.UserEvidenceURLs {
			fmt.Fprintf(&b, "- user_evidence_url: %s\n", u)
		}
	}

	return b.String()
}

// applyReviewInput mutates sess/state according to in's review type,
// porting session_stream_helpers.py's apply_user_input/_apply_decompose/
// _apply_verdicts/_apply_build_decision: every gated phase transition the
// AgentRunner can never itself drive (DECOMPOSE->EXPLORE and onward) is
// instead decided here, from the reviewer's own choices, before the turn
// resumes. It reports whether the session's message history should be
// reset — true for every phase transition, false for the in-phase side
// modes (deep_dive, add_insight) that resume the existing conversation.
func applyReviewInput(ctx context.Context, in *reviewInput, sess *forge.Session, state *forge.ForgeState, st tools.Persister, logger *slog.Logger) bool {
	state.AwaitingUserInput = false
	state.AwaitingInputType = ""

	switch in.Type {
	case "decompose_review":
		applyDecomposeReview(in, state)
		state.TransitionTo(forge.PhaseExplore)
		return true

	case "explore_review":
		for _, r := range in.AnalogyResponses {
			if r.Index < 0 || r.Index >= len(state.CrossDomainAnalogies) {
				continue
			}
			if r.SelectedOption > 0 {
				a := &state.CrossDomainAnalogies[r.Index]
				a.Resonated = true
				a.SelectedOption = r.SelectedOption
			}
		}
		state.TransitionTo(forge.PhaseSynthesize)
		return true

	case "claims_review":
		for _, r := range in.ClaimResponses {
			if r.Index < 0 || r.Index >= len(state.CurrentRoundClaims) {
				continue
			}
			state.CurrentRoundClaims[r.Index].SelectedOption = r.SelectedOption
		}
		state.TransitionTo(forge.PhaseValidate)
		return true

	case "verdicts":
		applyVerdicts(ctx, in, sess.ID, state, st, logger)
		allRejected := len(in.Verdicts) > 0
		for _, v := range in.Verdicts {
			if v.Verdict != "reject" {
				allRejected = false
				break
			}
		}
		if allRejected && !state.MaxRoundsReached() {
			state.ResetForNewRound()
			state.TransitionTo(forge.PhaseSynthesize)
		} else {
			state.TransitionTo(forge.PhaseBuild)
		}
		return true

	case "build_decision":
		return applyBuildDecision(ctx, in, sess, state, st, logger)
	}

	return false
}

// applyDecomposeReview applies a decompose_review's reframing/assumption
// selections, grounded on _apply_decompose.
func applyDecomposeReview(in *reviewInput, state *forge.ForgeState) {
	for _, r := range in.ReframingResponses {
		if r.Index < 0 || r.Index >= len(state.Reframings) {
			continue
		}
		if r.SelectedOption > 0 {
			reframing := &state.Reframings[r.Index]
			reframing.Selected = true
			reframing.SelectedOption = r.SelectedOption
		}
	}
	for _, r := range in.AssumptionResponses {
		if r.Index < 0 || r.Index >= len(state.Assumptions) {
			continue
		}
		state.Assumptions[r.Index].SelectedOption = r.SelectedOption
	}
}

// applyVerdicts applies each reviewed verdict to its claim, recording
// rejections as negative knowledge and persisting the verdict through st,
// grounded on _apply_verdicts and update_claim_verdict. Persistence
// failures are logged, never raised — the reviewer's own flow takes
// priority over the durable mirror, matching update_claim_verdict's
// explicit "never crashes" invariant.
func applyVerdicts(ctx context.Context, in *reviewInput, sessionID string, state *forge.ForgeState, st tools.Persister, logger *slog.Logger) {
	for _, v := range in.Verdicts {
		if v.ClaimIndex < 0 || v.ClaimIndex >= len(state.CurrentRoundClaims) {
			continue
		}
		claim := &state.CurrentRoundClaims[v.ClaimIndex]
		verdict := forge.Verdict(v.Verdict)

		if verdict == forge.VerdictReject {
			state.NegativeKnowledge = append(state.NegativeKnowledge, forge.NegativeKnowledge{
				ClaimText:       claim.ClaimText,
				RejectionReason: v.RejectionReason,
				Round:           state.CurrentRound,
			})
		}

		claim.Verdict = verdict
		claim.Qualification = v.Qualification
		claim.RejectionReason = v.RejectionReason
		claim.MergeWithClaimID = v.MergeWithClaimID

		// merge does not go through add_to_knowledge_graph (see DESIGN.md
		// Open Question 2): the source claim is superseded directly and a
		// merged_from edge recorded from the surviving claim.
		if verdict == forge.VerdictMerge && claim.ClaimID != "" && v.MergeWithClaimID != "" {
			edge := forge.GraphEdge{
				ID:     fmt.Sprintf("%s->%s", v.MergeWithClaimID, claim.ClaimID),
				Source: v.MergeWithClaimID,
				Target: claim.ClaimID,
				Type:   forge.EdgeMergedFrom,
			}
			state.KnowledgeGraphEdges = append(state.KnowledgeGraphEdges, edge)
			if err := st.CreateEdge(ctx, sessionID, edge); err != nil {
				logger.Warn("failed to persist merge edge", "claim_id", claim.ClaimID, "error", err)
			}
		}

		if claim.ClaimID != "" {
			status := forge.StatusForVerdict(verdict)
			if err := st.UpdateClaimVerdict(ctx, claim.ClaimID, status, v.Qualification, v.RejectionReason); err != nil {
				logger.Warn("failed to persist claim verdict", "claim_id", claim.ClaimID, "error", err)
			}
		}
	}
}

// applyBuildDecision applies a build_decision, grounded on
// _apply_build_decision, returning whether the transition clears message
// history. add_insight has no analogue in the distilled source's
// apply_user_input — it is implemented here by delegating straight to the
// submit_user_insight tool handler, the same write path the model itself
// uses for a user-contributed claim.
func applyBuildDecision(ctx context.Context, in *reviewInput, sess *forge.Session, state *forge.ForgeState, st tools.Persister, logger *slog.Logger) bool {
	switch in.Decision {
	case "continue":
		state.ResetForNewRound()
		state.TransitionTo(forge.PhaseSynthesize)
		return true

	case "deep_dive":
		state.DeepDiveActive = true
		state.DeepDiveTargetClaimID = in.DeepDiveClaimID
		return false

	case "resolve":
		sess.Resolve(forge.StatusCrystallized, time.Now())
		state.TransitionTo(forge.PhaseCrystallize)
		return true

	case "add_insight":
		params, err := json.Marshal(tools.SubmitUserInsightParams{
			InsightText:  in.UserInsight,
			EvidenceURLs: in.UserEvidenceURLs,
		})
		if err != nil {
			logger.Warn("failed to marshal user insight params", "error", err)
			return false
		}
		hc := &tools.HandlerContext{SessionID: sess.ID, State: state, Store: st}
		if _, ferr := tools.SubmitUserInsight(ctx, hc, params); ferr != nil {
			logger.Warn("failed to submit user insight", "error", ferr)
		}
		return false
	}

	return false
}
