// Package ferrors defines the typed error envelope shared by the
// enforcement predicates, tool handlers, and the HTTP/SSE surface. It
// mirrors the category/severity/envelope shape of the distilled error
// hierarchy this pipeline was modeled on, expressed as an idiomatic Go
// error type rather than an exception class hierarchy.
package ferrors

import (
	"fmt"
	"net/http"
)

// Severity classifies how alarming an error is, independent of its HTTP
// status.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Category groups errors by resolution stance (spec.md §7).
type Category string

const (
	CategoryValidation   Category = "validation"
	CategoryBusinessRule Category = "business_rule"
	CategoryNotFound     Category = "resource_not_found"
	CategoryDatabase     Category = "database"
	CategoryExternalAPI  Category = "external_api"
	CategoryInternal     Category = "internal"
	CategoryConflict     Category = "conflict"
	CategoryTimeout      Category = "timeout"
)

// Context carries the optional request-scoped fields attached to an error.
type Context struct {
	SessionID    string `json:"session_id,omitempty"`
	ToolName     string `json:"tool_name,omitempty"`
	Phase        string `json:"phase,omitempty"`
	RoundNumber  *int   `json:"round_number,omitempty"`
	RetryAfterMs *int   `json:"retry_after_ms,omitempty"`
}

// Error is the single error type returned by enforcement predicates, tool
// handlers, and the gateway layer. It implements the standard error
// interface and carries enough structure to render either a REST envelope
// or an SSE error event without re-deriving anything.
type Error struct {
	Code       string
	Message    string
	Category   Category
	Severity   Severity
	HTTPStatus int
	Ctx        Context
	Recoverable bool

	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

// WithContext returns a copy of e with ctx merged in.
func (e *Error) WithContext(ctx Context) *Error {
	cp := *e
	cp.Ctx = ctx
	return &cp
}

// Wrap returns a copy of e with an underlying cause attached, preserving
// errors.Is/errors.As traversal via Unwrap.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.wrapped = cause
	return &cp
}

func newErr(code, message string, category Category, severity Severity, status int, recoverable bool) *Error {
	return &Error{Code: code, Message: message, Category: category, Severity: severity, HTTPStatus: status, Recoverable: recoverable}
}

// New constructs a business-rule error with a stable code, the common case
// for enforcement predicate failures.
func New(code, message string) *Error {
	return newErr(code, message, CategoryBusinessRule, SeverityError, http.StatusBadRequest, true)
}

// Validation constructs a 400 validation error.
func Validation(code, message string) *Error {
	return newErr(code, message, CategoryValidation, SeverityError, http.StatusBadRequest, true)
}

// NotFound constructs a 404 resource-not-found error.
func NotFound(code, message string) *Error {
	return newErr(code, message, CategoryNotFound, SeverityError, http.StatusNotFound, false)
}

// Conflict constructs a 409 conflict error.
func Conflict(code, message string) *Error {
	return newErr(code, message, CategoryConflict, SeverityError, http.StatusConflict, false)
}

// Database constructs a 503 database error; severity critical, never
// leaks driver-specific detail in Message.
func Database(operation string, cause error) *Error {
	e := newErr("DATABASE_ERROR", "a database operation failed", CategoryDatabase, SeverityCritical, http.StatusServiceUnavailable, false)
	e.Ctx.ToolName = operation
	return e.Wrap(cause)
}

// ExternalAPI constructs a 503 external-API error (LLM vendor failures),
// with a retry-after hint when the vendor supplied one.
func ExternalAPI(apiErrorType string, retryAfterMs *int, cause error) *Error {
	e := newErr("ANTHROPIC_API_ERROR", "the LLM backend returned an error", CategoryExternalAPI, SeverityCritical, http.StatusServiceUnavailable, true)
	e.Ctx.ToolName = apiErrorType
	e.Ctx.RetryAfterMs = retryAfterMs
	return e.Wrap(cause)
}

// Internal constructs a 500 catch-all that never leaks its cause to
// clients; Message is always the fixed generic string.
func Internal(cause error) *Error {
	e := newErr("INTERNAL_ERROR", "an internal error occurred", CategoryInternal, SeverityCritical, http.StatusInternalServerError, false)
	return e.Wrap(cause)
}

// Stable enforcement error codes (spec.md §4.3).
const (
	CodeDecomposeIncomplete       = "DECOMPOSE_INCOMPLETE"
	CodeExploreIncomplete         = "EXPLORE_INCOMPLETE"
	CodeSynthesisIncomplete       = "SYNTHESIS_INCOMPLETE"
	CodeNotCumulative             = "NOT_CUMULATIVE"
	CodeNegativeKnowledgeMissing  = "NEGATIVE_KNOWLEDGE_MISSING"
	CodeMaxRoundsExceeded         = "MAX_ROUNDS_EXCEEDED"
	CodeStateOfArtNotResearched   = "STATE_OF_ART_NOT_RESEARCHED"
	CodeCrossDomainNotSearched    = "CROSS_DOMAIN_NOT_SEARCHED"
	CodeAntithesisNotSearched     = "ANTITHESIS_NOT_SEARCHED"
	CodeFalsificationNotSearched  = "FALSIFICATION_NOT_SEARCHED"
	CodeNoveltyNotSearched        = "NOVELTY_NOT_SEARCHED"
	CodeAntithesisMissing         = "ANTITHESIS_MISSING"
	CodeClaimLimitExceeded        = "CLAIM_LIMIT_EXCEEDED"
	CodeFalsificationMissing      = "FALSIFICATION_MISSING"
	CodeNoveltyUnchecked          = "NOVELTY_UNCHECKED"
	CodeUngroundedClaim           = "UNGROUNDED_CLAIM"
	CodeInvalidClaimIndex         = "INVALID_CLAIM_INDEX"
	CodeInvalidVerdict            = "INVALID_VERDICT"
	CodeInvalidPhase              = "INVALID_PHASE"
	CodeArtifactNotFound          = "ARTIFACT_NOT_FOUND"
	CodePhaseNotCompleted         = "PHASE_NOT_COMPLETED"
	CodeInvalidContext            = "INVALID_CONTEXT"
	CodeUnknownTool               = "UNKNOWN_TOOL"
	CodeToolExecutionError        = "TOOL_EXECUTION_ERROR"
	CodeToolValidationError       = "TOOL_VALIDATION_ERROR"
	CodeAgentLoopExceeded         = "AGENT_LOOP_EXCEEDED"
	CodeUnknownSection            = "UNKNOWN_SECTION"
)

// REST rendering types for the JSON envelope (spec.md §7).
type restBody struct {
	Error restDetail `json:"error"`
}

type restDetail struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Context  Context  `json:"context,omitempty"`
}

// ToResponse renders the REST error envelope.
func (e *Error) ToResponse() any {
	return restBody{Error: restDetail{
		Code:     e.Code,
		Message:  e.Message,
		Category: e.Category,
		Severity: e.Severity,
		Context:  e.Ctx,
	}}
}

// sseBody is the shape of an {type: "error", data: ...} SSE event.
type sseBody struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Severity    Severity `json:"severity"`
	Recoverable bool   `json:"recoverable"`
	ToolName    string `json:"tool_name,omitempty"`
}

// ToSSEEvent renders the compact error shape used inside a tool_error or
// error SSE event's data field.
func (e *Error) ToSSEEvent() any {
	return sseBody{
		Code:        e.Code,
		Message:     e.Message,
		Severity:    e.Severity,
		Recoverable: e.Recoverable,
		ToolName:    e.Ctx.ToolName,
	}
}

// ToolResult renders the {status: "error", error_code, message} shape a
// tool handler returns to the model as its tool_result payload.
func (e *Error) ToolResult() map[string]any {
	return map[string]any{
		"status":     "error",
		"error_code": e.Code,
		"message":    "ERROR: " + e.Message,
	}
}
