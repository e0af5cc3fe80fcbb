// Package runner implements the AgentRunner (spec.md §4.10): the
// streaming tool-calling loop that drives one user turn of one session's
// ForgeState to completion, pause, or error, emitting an ordered sequence
// of events for the SSE endpoint to relay.
package runner

import (
	"encoding/json"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/ferrors"
)

// EventType discriminates an Event's shape, mirroring the SSE event
// `type` field verbatim.
type EventType string

const (
	EventAgentText         EventType = "agent_text"
	EventToolCall          EventType = "tool_call"
	EventToolResult        EventType = "tool_result"
	EventToolError         EventType = "tool_error"
	EventWebSearchDetail   EventType = "web_search_detail"
	EventContextUsage      EventType = "context_usage"
	EventReviewDecompose   EventType = "review_decompose"
	EventReviewExplore     EventType = "review_explore"
	EventReviewClaims      EventType = "review_claims"
	EventReviewVerdicts    EventType = "review_verdicts"
	EventReviewBuild       EventType = "review_build"
	EventKnowledgeDocument EventType = "knowledge_document"
	EventError             EventType = "error"
	EventDone              EventType = "done"
)

// Event is one unit the runner emits; the SSE endpoint marshals it
// directly as `{"type": ..., "data": ...}`.
type Event struct {
	Type EventType
	Data map[string]any
}

func textEvent(delta string) Event {
	return Event{Type: EventAgentText, Data: map[string]any{"text": delta}}
}

func toolCallEvent(name, queryPreview string) Event {
	data := map[string]any{"tool": name}
	if queryPreview != "" {
		data["query"] = queryPreview
	}
	return Event{Type: EventToolCall, Data: data}
}

func webSearchDetailEvent(query string) Event {
	return Event{Type: EventWebSearchDetail, Data: map[string]any{"query": query}}
}

func toolResultEvent(name string, result map[string]any) Event {
	return Event{Type: EventToolResult, Data: map[string]any{"tool": name, "result": result}}
}

func toolErrorEvent(name string, err *ferrors.Error) Event {
	return Event{Type: EventToolError, Data: map[string]any{"tool": name, "error": err.ToSSEEvent()}}
}

func contextUsageEvent(u forge.TokenUsage) Event {
	return Event{Type: EventContextUsage, Data: map[string]any{
		"input_tokens":          u.InputTokens,
		"output_tokens":         u.OutputTokens,
		"cache_creation_tokens": u.CacheCreation,
		"cache_read_tokens":     u.CacheRead,
	}}
}

func errorEvent(err *ferrors.Error) Event {
	return Event{Type: EventError, Data: map[string]any{"error": err.ToSSEEvent()}}
}

func knowledgeDocumentEvent(markdown string) Event {
	return Event{Type: EventKnowledgeDocument, Data: map[string]any{"markdown": markdown}}
}

func doneEvent(hasError, awaitingInput bool, awaitingInputType string) Event {
	data := map[string]any{"error": hasError, "awaiting_input": awaitingInput}
	if awaitingInputType != "" {
		data["awaiting_input_type"] = awaitingInputType
	}
	return Event{Type: EventDone, Data: data}
}

// languageRetryEvent marks a discarded response on the SSE stream so a
// client watching agent_text events can distinguish "the model paused to
// think" from "a response was thrown away for violating the locale",
// rather than the retry silently vanishing from the visible stream.
func languageRetryEvent() Event {
	return Event{Type: EventAgentText, Data: map[string]any{"text": "", "retry": "language"}}
}

// mustJSON marshals v, a value this package always builds internally
// (never user-supplied), into a string for a tool_result content block.
// A failure here is a programmer error, matching the panic discipline
// deepCopyMessages uses for the same class of "always JSON-safe" value.
func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic("runner: value is not JSON-safe: " + err.Error())
	}
	return string(raw)
}
