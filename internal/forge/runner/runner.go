package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/ferrors"
	"github.com/knowledgeforge/forge/internal/forge/llm"
	"github.com/knowledgeforge/forge/internal/forge/metrics"
	"github.com/knowledgeforge/forge/internal/forge/tools"
	"github.com/knowledgeforge/forge/internal/forge/translate"
	"github.com/knowledgeforge/forge/internal/observability"
)

// MaxIterations bounds one Run call's internal loop (spec.md §4.10).
const MaxIterations = 50

// traceLLMSpan starts a span for one LLM request, or returns the incoming
// context and a nil span when tracing is disabled.
func (r *Runner) traceLLMSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	if r.cfg.Tracer == nil {
		return ctx, nil
	}
	return r.cfg.Tracer.TraceLLMRequest(ctx, "anthropic", model)
}

// traceToolSpan starts a span for one tool dispatch, or returns the
// incoming context and a nil span when tracing is disabled.
func (r *Runner) traceToolSpan(ctx context.Context, toolName string) (context.Context, trace.Span) {
	if r.cfg.Tracer == nil {
		return ctx, nil
	}
	return r.cfg.Tracer.TraceToolExecution(ctx, toolName)
}

// endSpan records err on span (if any) and ends it. A nil span is a no-op,
// letting callers use this unconditionally regardless of whether tracing
// is enabled.
func endSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// MaxLanguageRetries bounds how many times a single turn may discard and
// retry the model's response for violating the locale's language rule.
const MaxLanguageRetries = 2

// DefaultModel is the primary model the runner talks to when Config.Model
// is empty.
const DefaultModel = "claude-sonnet-4-20250514"

// DefaultMaxTokens bounds a single primary-model response.
const DefaultMaxTokens = 8192

// Config bundles a Runner's fixed dependencies. One Config is shared
// across every Run call; nothing in it is mutated after New.
type Config struct {
	Client     llm.Client
	Dispatcher *tools.Dispatcher
	Store      tools.Persister
	Research   tools.ResearchFunc
	Translator *translate.Pass // nil disables the translation pass entirely

	// Metrics records Prometheus instrumentation for this Runner. Nil
	// disables instrumentation entirely; every Registry method is
	// nil-receiver-safe.
	Metrics *metrics.Registry

	// Tracer emits OpenTelemetry spans around each LLM request and tool
	// dispatch. Nil disables tracing entirely (unlike Metrics, a bare
	// *observability.Tracer is not safe to call on a nil receiver, so the
	// runner guards every use explicitly rather than relying on that).
	Tracer *observability.Tracer

	Model      string
	MaxTokens  int
	Compaction forge.CompactionConfig
}

func (c Config) sanitized() Config {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Compaction == (forge.CompactionConfig{}) {
		c.Compaction = forge.DefaultCompactionConfig()
	}
	return c
}

// Runner drives one user turn of one session's ForgeState through the
// streaming tool-calling loop described in spec.md §4.10. One Runner
// instance is constructed per user request; per spec.md §5 exactly one
// runner task is ever active for a given session, serialized upstream by
// the session's own lock — Runner itself holds no session-scoped state
// between Run calls and is safe to reuse sequentially.
type Runner struct {
	cfg Config
}

// New constructs a Runner over cfg, filling in defaults for zero fields.
func New(cfg Config) *Runner {
	return &Runner{cfg: cfg.sanitized()}
}

// Run drives one turn to completion, pause, or error and returns a
// channel of Events, closed when the turn ends. userMessage is appended
// to the session's history before the loop starts; pass "" when resuming
// a turn that already has its next user message queued (e.g. a
// user-input POST that only supplies tool results, not free text).
func (r *Runner) Run(ctx context.Context, sess *forge.Session, state *forge.ForgeState, userMessage string) <-chan Event {
	out := make(chan Event, 16)
	go r.run(ctx, sess, state, userMessage, out)
	return out
}

func cancelled(ctx context.Context, state *forge.ForgeState) bool {
	return ctx.Err() != nil || state.Cancelled
}

func (r *Runner) run(ctx context.Context, sess *forge.Session, state *forge.ForgeState, userMessage string, out chan<- Event) {
	defer close(out)
	turnStart := time.Now()

	if userMessage != "" {
		sess.MessageHistory = append(sess.MessageHistory, forge.Message{
			Role:    "user",
			Content: []forge.ContentBlock{{Type: forge.BlockText, Text: userMessage}},
		})
	}

	langRetries := 0

	for iteration := 0; iteration < MaxIterations; iteration++ {
		if cancelled(ctx, state) {
			r.emitCancelled(sess, state, out, turnStart)
			return
		}

		directiveHint := drainResearchDirectives(state)
		system := forge.AssemblePrompt(state.Locale, state.CurrentPhase)
		if directiveHint != "" {
			system += "\n\n" + directiveHint
		}

		req := llm.Request{
			Model:                r.cfg.Model,
			System:               system,
			Messages:             forge.OptimizeContext(sess.MessageHistory, r.cfg.Compaction),
			Tools:                tools.SchemasFor(state.CurrentPhase),
			MaxTokens:            r.cfg.MaxTokens,
			CacheSystem:          true,
			CacheTools:           true,
			CacheLastUserMessage: true,
		}

		r.cfg.Metrics.PhaseIterationStarted(string(state.CurrentPhase))
		llmCallStart := time.Now()
		llmCtx, llmSpan := r.traceLLMSpan(ctx, req.Model)
		stream, err := r.cfg.Client.StreamMessage(llmCtx, req)
		if err != nil {
			r.cfg.Metrics.RecordLLMRequest(req.Model, "error", time.Since(llmCallStart), 0, 0, 0, 0)
			r.cfg.Metrics.PhaseIterationFinished(string(state.CurrentPhase))
			endSpan(llmSpan, err)
			r.emitLLMError(sess, state, err, out, turnStart)
			return
		}

		firstTextChunk := true
		var textBuf strings.Builder
		streamErr := false
		for ev := range stream.Events() {
			if cancelled(ctx, state) {
				r.cfg.Metrics.PhaseIterationFinished(string(state.CurrentPhase))
				endSpan(llmSpan, nil)
				r.emitCancelled(sess, state, out, turnStart)
				return
			}
			switch ev.Kind {
			case llm.EventTextDelta:
				delta := ev.TextDelta
				if firstTextChunk {
					trimmed := strings.TrimLeft(delta, " \t\n\r")
					if trimmed != "" {
						firstTextChunk = false
					}
					delta = trimmed
				}
				if delta != "" {
					textBuf.WriteString(delta)
					out <- textEvent(delta)
				}
			case llm.EventToolUseStart:
				out <- toolCallEvent(ev.ToolName, "")
			case llm.EventServerToolStart:
				out <- toolCallEvent("web_search", ev.Query)
				out <- webSearchDetailEvent(ev.Query)
			case llm.EventError:
				r.cfg.Metrics.RecordLLMRequest(req.Model, "error", time.Since(llmCallStart), 0, 0, 0, 0)
				r.cfg.Metrics.PhaseIterationFinished(string(state.CurrentPhase))
				endSpan(llmSpan, ev.Err)
				r.emitLLMError(sess, state, ev.Err, out, turnStart)
				streamErr = true
			}
		}
		if streamErr {
			return
		}

		resp, err := stream.Final()
		if err != nil {
			r.cfg.Metrics.RecordLLMRequest(req.Model, "error", time.Since(llmCallStart), 0, 0, 0, 0)
			r.cfg.Metrics.PhaseIterationFinished(string(state.CurrentPhase))
			endSpan(llmSpan, err)
			r.emitLLMError(sess, state, err, out, turnStart)
			return
		}
		r.cfg.Metrics.RecordLLMRequest(req.Model, "success", time.Since(llmCallStart),
			resp.Usage.InputTokens, resp.Usage.OutputTokens, resp.Usage.CacheCreation, resp.Usage.CacheRead)
		r.cfg.Metrics.PhaseIterationFinished(string(state.CurrentPhase))
		endSpan(llmSpan, nil)

		sess.Usage.Add(forge.TokenUsage{
			InputTokens:   resp.Usage.InputTokens,
			OutputTokens:  resp.Usage.OutputTokens,
			CacheCreation: resp.Usage.CacheCreation,
			CacheRead:     resp.Usage.CacheRead,
		})
		out <- contextUsageEvent(sess.Usage)

		assistantMsg := forge.Message{Role: "assistant", Content: resp.Content}

		if resp.StopReason == llm.StopPauseTurn {
			sess.MessageHistory = append(sess.MessageHistory, assistantMsg)
			continue
		}

		toolUses := assistantMsg.ToolUseBlocks()

		if len(toolUses) == 0 {
			text := textBuf.String()
			if state.Locale != forge.LocaleEN && ViolatesLocale(text, state.Locale) && langRetries < MaxLanguageRetries {
				langRetries++
				out <- languageRetryEvent()
				sess.MessageHistory = append(sess.MessageHistory, forge.Message{
					Role:    "user",
					Content: []forge.ContentBlock{{Type: forge.BlockText, Text: languageRetryNudge(state.Locale)}},
				})
				continue
			}
			sess.MessageHistory = append(sess.MessageHistory, assistantMsg)
			r.finishTurn(sess, state, out, turnStart)
			return
		}

		sess.MessageHistory = append(sess.MessageHistory, assistantMsg)

		resultBlocks, pausedTool := r.dispatchAll(ctx, sess, state, toolUses, out)

		var nudge strings.Builder
		if state.Locale != forge.LocaleEN && ViolatesLocale(textBuf.String(), state.Locale) && langRetries < MaxLanguageRetries {
			langRetries++
			out <- languageRetryEvent()
			nudge.WriteString(languageRetryNudge(state.Locale))
		}
		if pausedTool == "" {
			if hint := forge.CheckDocumentGate(state); hint != "" {
				if nudge.Len() > 0 {
					nudge.WriteString(" ")
				}
				nudge.WriteString(hint)
			}
		}

		userContent := resultBlocks
		if nudge.Len() > 0 {
			userContent = append(userContent, forge.ContentBlock{Type: forge.BlockText, Text: nudge.String()})
		}
		sess.MessageHistory = append(sess.MessageHistory, forge.Message{Role: "user", Content: userContent})

		if pausedTool != "" {
			r.emitPause(sess, state, pausedTool, out, turnStart)
			return
		}
	}

	out <- errorEvent(ferrors.New(ferrors.CodeAgentLoopExceeded, "the agent loop exceeded its maximum iteration count"))
	sess.SyncFromState(state)
	r.cfg.Metrics.RecordTurn("loop_exceeded", time.Since(turnStart))
	out <- doneEvent(true, false, "")
}

// dispatchAll runs every tool_use block in order, accumulating the
// synthetic user message's tool_result blocks and emitting a
// tool_result/tool_error event for each. It returns the name of the pause
// tool that fired, if any — the last one wins, matching "stop after
// returning all results" in spec.md §4.10 step 5.
func (r *Runner) dispatchAll(ctx context.Context, sess *forge.Session, state *forge.ForgeState, toolUses []forge.ContentBlock, out chan<- Event) ([]forge.ContentBlock, string) {
	var blocks []forge.ContentBlock
	pausedTool := ""
	for _, tb := range toolUses {
		hc := &tools.HandlerContext{
			SessionID: sess.ID,
			State:     state,
			Store:     r.cfg.Store,
			Research:  r.cfg.Research,
		}
		callStart := time.Now()
		toolCtx, toolSpan := r.traceToolSpan(ctx, tb.Name)
		result, terr := r.cfg.Dispatcher.Dispatch(toolCtx, hc, tb.Name, tb.Input)
		if terr != nil {
			r.cfg.Metrics.RecordToolCall(tb.Name, "error", time.Since(callStart))
			endSpan(toolSpan, terr)
			out <- toolErrorEvent(tb.Name, terr)
			blocks = append(blocks, forge.ContentBlock{
				Type: forge.BlockToolResult, ToolUseID: tb.ID,
				Content: mustJSON(terr.ToolResult()), IsError: true,
			})
			continue
		}
		r.cfg.Metrics.RecordToolCall(tb.Name, "success", time.Since(callStart))
		endSpan(toolSpan, nil)
		out <- toolResultEvent(tb.Name, result)
		blocks = append(blocks, forge.ContentBlock{
			Type: forge.BlockToolResult, ToolUseID: tb.ID,
			Content: mustJSON(result),
		})
		if tools.IsPauseTool(tb.Name) {
			pausedTool = tb.Name
		}
	}
	return blocks, pausedTool
}

// drainResearchDirectives folds any research directives queued via
// spec.md §4.17's endpoint into a one-shot system-prompt hint, then
// clears the queue (SPEC_FULL.md §4.17: drained at the start of each loop
// iteration).
func drainResearchDirectives(state *forge.ForgeState) string {
	if len(state.ResearchDirectives) == 0 {
		return ""
	}
	var lines []string
	for _, d := range state.ResearchDirectives {
		line := fmt.Sprintf("- %s: %q", d.DirectiveType, d.Query)
		if d.Domain != "" {
			line += fmt.Sprintf(" (domain: %s)", d.Domain)
		}
		lines = append(lines, line)
	}
	state.ResearchDirectives = nil
	return "The user queued these research directives; bias your next research call accordingly:\n" + strings.Join(lines, "\n")
}

// finishTurn is reached when the model produced text only and called no
// tool: the turn is complete with no pause pending.
func (r *Runner) finishTurn(sess *forge.Session, state *forge.ForgeState, out chan<- Event, turnStart time.Time) {
	sess.SyncFromState(state)
	r.cfg.Metrics.RecordTurn("done", time.Since(turnStart))
	out <- doneEvent(false, false, "")
}

// emitPause handles a fired pause tool: CRYSTALLIZE's generate_final_spec
// emits the knowledge document; every other phase's pause tool emits its
// review_* payload, translated when the session locale requires it.
func (r *Runner) emitPause(sess *forge.Session, state *forge.ForgeState, pausedTool string, out chan<- Event, turnStart time.Time) {
	sess.SyncFromState(state)
	r.cfg.Metrics.RecordTurn("paused", time.Since(turnStart))

	if state.CurrentPhase == forge.PhaseCrystallize {
		markdown := state.KnowledgeDocumentMarkdown
		if r.cfg.Translator != nil {
			markdown = r.cfg.Translator.TranslateDocument(context.Background(), markdown, state.Locale)
		}
		out <- knowledgeDocumentEvent(markdown)
		out <- doneEvent(false, true, state.AwaitingInputType)
		return
	}

	etype, data, ok := buildReviewData(state.CurrentPhase, state)
	if ok {
		if r.cfg.Translator != nil {
			data = r.cfg.Translator.Apply(context.Background(), etype, data, state.Locale)
		}
		out <- Event{Type: eventTypeFor[etype], Data: data}
	}
	out <- doneEvent(false, true, state.AwaitingInputType)
}

// emitCancelled handles a cancellation checkpoint firing: best-effort
// snapshot, a fixed text event, and a clean done (spec.md §5: "idempotent").
func (r *Runner) emitCancelled(sess *forge.Session, state *forge.ForgeState, out chan<- Event, turnStart time.Time) {
	state.Cancelled = true
	sess.SyncFromState(state)
	sess.Status = forge.StatusCancelled
	t := time.Now()
	sess.ResolvedAt = &t
	r.cfg.Metrics.RecordTurn("cancelled", time.Since(turnStart))
	out <- textEvent("Session cancelled.")
	out <- doneEvent(false, false, "")
}

// emitLLMError maps a transport-layer failure to an error event and a
// terminal done{error=true}, leaving the session resumable (spec.md §7:
// "the session stays resumable").
func (r *Runner) emitLLMError(sess *forge.Session, state *forge.ForgeState, err error, out chan<- Event, turnStart time.Time) {
	var retryAfter *int
	category := llm.CategoryUnknown
	if lerr, ok := err.(*llm.Error); ok {
		category = lerr.Category
		retryAfter = lerr.RetryAfterMs
	}
	ferr := ferrors.ExternalAPI(string(category), retryAfter, err)
	r.cfg.Metrics.RecordLLMError(string(category))
	r.cfg.Metrics.RecordTurn("error", time.Since(turnStart))
	out <- errorEvent(ferr)
	sess.SyncFromState(state)
	out <- doneEvent(true, false, "")
}
