// Package tools implements the phase-scoped tool registry: declarative
// schemas (schemas.go), the handlers that mutate ForgeState and write
// durable projections (handlers.go), and the explicit name→handler
// dispatch table (dispatch.go). Every handler follows the impureim
// sandwich discipline spec.md §4.8 requires: pure precondition check,
// domain mutation, persistence side effect — never a commit, since the
// AgentRunner owns the transaction boundary.
package tools

import (
	"context"
	"encoding/json"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/ferrors"
)

// ResearchFunc delegates a query to the research sub-agent (internal/forge
// /research). It is injected rather than imported directly so the tools
// package, and its tests, never need a live LLM client.
type ResearchFunc func(ctx context.Context, query string, purpose forge.ResearchPurpose, instructions string, maxResults int) (ResearchResult, error)

// ResearchResult is the normalized shape ResearchFunc always returns,
// mirroring spec.md §4.9's {summary, sources[], result_count, empty,
// haiku_tokens}.
type ResearchResult struct {
	Summary      string          `json:"summary"`
	Sources      []forge.Evidence `json:"sources"`
	ResultCount  int             `json:"result_count"`
	Empty        bool            `json:"empty"`
	HaikuTokens  int             `json:"haiku_tokens"`
}

// Persister is the narrow durable-write boundary tool handlers depend on.
// A concrete internal/forge/store implementation backs it; handlers never
// call commit — the AgentRunner owns the transaction boundary (spec.md
// §4.8).
type Persister interface {
	CreateReframing(ctx context.Context, sessionID string, r forge.Reframing) error
	CreateCrossDomainAnalogy(ctx context.Context, sessionID string, a forge.CrossDomainAnalogy) error
	CreateContradiction(ctx context.Context, sessionID string, c forge.Contradiction) error
	CreateClaim(ctx context.Context, sessionID string, claim forge.Claim) (claimID string, err error)
	CreateEvidence(ctx context.Context, claimID, sessionID string, ev forge.Evidence) error
	UpdateClaimScores(ctx context.Context, claimID string, scores forge.ClaimScores) error
	UpdateClaimVerdict(ctx context.Context, claimID string, status forge.ClaimStatus, qualification, rejectionReason string) error
	CreateEdge(ctx context.Context, sessionID string, edge forge.GraphEdge) error
	ClaimExists(ctx context.Context, claimID string) (bool, error)
	CreateUserInsight(ctx context.Context, sessionID, insightText string, evidenceURLs []string, relatesTo string) (claimID string, err error)
}

// HandlerContext bundles everything a handler needs beyond its own typed
// input: the session id for durable writes, the mutable ForgeState, the
// Persister, and the injected research delegate.
type HandlerContext struct {
	SessionID string
	State     *forge.ForgeState
	Store     Persister
	Research  ResearchFunc
}

// Handler is the shape every tool implements: unmarshal+validate params,
// mutate state, persist, and return a result payload or a *ferrors.Error.
// Handlers never panic on a malformed-but-well-typed input; a truly
// malformed JSON payload surfaces as CodeToolValidationError.
type Handler func(ctx context.Context, hc *HandlerContext, params json.RawMessage) (map[string]any, *ferrors.Error)

// unmarshalParams decodes raw into dst, wrapping a decode failure as a
// tool-validation error rather than letting the caller see a raw JSON
// error.
func unmarshalParams(raw json.RawMessage, dst any) *ferrors.Error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return ferrors.New(ferrors.CodeToolValidationError, "malformed tool input: "+err.Error())
	}
	return nil
}
