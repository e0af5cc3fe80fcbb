// Package llm provides the narrow LLM client boundary the AgentRunner and
// ResearchSubAgent depend on: a streaming request/response abstraction
// that exposes exactly the Anthropic-specific semantics spec.md needs
// (prompt-cache markers, server-side web search, pause_turn) without
// leaking the vendor SDK's full surface into the rest of the module.
package llm

import (
	"context"

	"github.com/knowledgeforge/forge/internal/forge"
)

// ToolSchema is the declarative {name, description, input_schema} shape a
// tool is advertised to the model with.
type ToolSchema struct {
	Name        string
	Description string
	InputSchema any // JSON-schema-shaped value, marshaled as-is
}

// WebSearchTool is the vendor's server-executed web search tool
// descriptor, distinct from ToolSchema because the model never receives
// an input_schema for it — the vendor defines its shape.
type WebSearchTool struct {
	MaxUses int
}

// Request is one call to StreamMessage.
type Request struct {
	Model    string
	System   string
	Messages []forge.Message
	Tools    []ToolSchema

	// WebSearch, when non-nil, makes the server-executed web_search tool
	// available alongside Tools (used by both the main model and the
	// research sub-agent).
	WebSearch *WebSearchTool

	MaxTokens int

	// Betas lists vendor beta feature flags to send with the request
	// (e.g. "web-search-2025-03-05" for the research sub-agent).
	Betas []string

	// CacheSystem, CacheTools, CacheLastUserMessage mark ephemeral
	// prompt-cache breakpoints per spec.md §4.10 step 2. A client that
	// does not support cache_control silently ignores these (spec.md
	// §9).
	CacheSystem          bool
	CacheTools           bool
	CacheLastUserMessage bool
}

// EventKind discriminates a StreamEvent.
type EventKind string

const (
	EventTextDelta        EventKind = "text_delta"
	EventToolUseStart     EventKind = "tool_use_start"
	EventServerToolStart  EventKind = "server_tool_start"
	EventThinkingDelta    EventKind = "thinking_delta"
	EventError            EventKind = "error"
)

// StreamEvent is one unit of a streaming response, enough for the runner
// to emit its own SSE events without waiting for the full message.
type StreamEvent struct {
	Kind EventKind

	TextDelta string

	ToolID   string
	ToolName string

	// Query previews the server-side web_search tool's input as it is
	// typed, so the runner can emit a tool_call event with a preview
	// before the search completes.
	Query string

	Err error
}

// Usage accounts the four token counters spec.md §3 tracks on Session.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheCreation    int
	CacheRead        int
}

// StopReason mirrors the vendor's stop_reason field; PauseTurn signals the
// model is mid a server-side tool (e.g. web_search) and the runner should
// simply continue the loop with the assistant message appended as-is.
type StopReason string

const (
	StopEndTurn    StopReason = "end_turn"
	StopToolUse    StopReason = "tool_use"
	StopPauseTurn  StopReason = "pause_turn"
	StopMaxTokens  StopReason = "max_tokens"
)

// Response is the fully materialized message once streaming completes.
type Response struct {
	Content    []forge.ContentBlock
	StopReason StopReason
	Usage      Usage
}

// Stream is the handle returned by StreamMessage: Events delivers
// incremental deltas; Final blocks until the stream completes and returns
// the fully assembled message (or the terminal error).
type Stream interface {
	Events() <-chan StreamEvent
	Final() (*Response, error)
}

// Client is the boundary AgentRunner and ResearchSubAgent depend on.
// Concrete implementations (anthropic.go, openai.go) adapt a vendor SDK to
// this shape.
type Client interface {
	StreamMessage(ctx context.Context, req Request) (Stream, error)
}

// ErrorCategory classifies an LLM-layer failure for the runner's error
// mapping (spec.md §4.10).
type ErrorCategory string

const (
	CategoryRateLimit      ErrorCategory = "rate_limit"
	CategoryConnectionError ErrorCategory = "connection_error"
	CategoryTimeout         ErrorCategory = "timeout"
	CategoryOverloaded      ErrorCategory = "overloaded"
	CategoryClientError     ErrorCategory = "client_error"
	CategoryUnknown         ErrorCategory = "unknown"
)

// Error wraps an LLM-layer failure with its category and an optional
// vendor-supplied retry-after hint.
type Error struct {
	Category     ErrorCategory
	Message      string
	RetryAfterMs *int
	cause        error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.cause }

// NewError constructs an *Error wrapping cause.
func NewError(category ErrorCategory, message string, retryAfterMs *int, cause error) *Error {
	return &Error{Category: category, Message: message, RetryAfterMs: retryAfterMs, cause: cause}
}
