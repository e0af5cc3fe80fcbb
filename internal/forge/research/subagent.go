// Package research implements the delegated research sub-agent spec.md
// §4.9 describes: a cheaper model configured with a strict "search first"
// system prompt that runs its own short tool-calling loop against the
// vendor's server-executed web_search tool and normalizes whatever it
// produces into a compact {summary, sources, result_count} shape. It never
// returns an error to its caller — a failed or malformed call degrades to
// an empty result, so the primary pipeline never stalls on a research
// hiccup.
package research

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/llm"
	"github.com/knowledgeforge/forge/internal/forge/tools"
)

// DefaultModel is the cheaper model the sub-agent talks to by default;
// callers running their own cost/latency tradeoff can override it via
// Config.Model.
const DefaultModel = "claude-3-5-haiku-20241022"

// maxIterations bounds the sub-agent's own tool loop. A web_search call
// frequently yields stop_reason pause_turn mid-search (the server is still
// paging through results); this caps how many times the loop resumes
// before it gives up and parses whatever text exists.
const maxIterations = 3

// maxResultsCeiling mirrors the per-call cap spec.md §4.8 places on
// research(..., max_results<=10).
const maxResultsCeiling = 10

// Result is the normalized shape every call returns, success or failure.
type Result struct {
	Summary     string
	Sources     []forge.Evidence
	ResultCount int
	Empty       bool
	HaikuTokens int
}

func emptyResult() Result {
	return Result{Empty: true}
}

// Config wires a SubAgent to a concrete LLM client and model.
type Config struct {
	Client llm.Client
	Model  string
}

// SubAgent is the delegated researcher. One instance is shared across an
// entire AgentRunner's lifetime; Research is safe to call concurrently
// since it carries no mutable state of its own.
type SubAgent struct {
	client llm.Client
	model  string
}

// New constructs a SubAgent, defaulting to DefaultModel when cfg.Model is
// empty.
func New(cfg Config) *SubAgent {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &SubAgent{client: cfg.Client, model: model}
}

// purposeInstructions parameterizes the sub-agent's system prompt by the
// six fixed research purposes spec.md §4.9 names. Each line tells the
// cheaper model what kind of result the caller needs, on top of the
// shared search-first / no-fabrication rules.
var purposeInstructions = map[forge.ResearchPurpose]string{
	forge.PurposeStateOfArt:      "Find the current state of the art on this topic: established approaches, their known limits, and who is working on it.",
	forge.PurposeEvidenceFor:     "Find evidence that supports the given claim. Report only what the search results actually say.",
	forge.PurposeEvidenceAgainst: "Find evidence that contradicts or undermines the given claim. Do not soften a contradiction you find.",
	forge.PurposeCrossDomain:     "Find an analogous problem or mechanism in a different field or domain that maps onto this one.",
	forge.PurposeNoveltyCheck:    "Determine whether this idea has already been published, patented, or is common knowledge in the field.",
	forge.PurposeFalsification:   "Try to find a counterexample or documented failure case for this claim.",
}

const systemPrompt = "You are a research assistant delegated a single web search task. " +
	"Search first before answering; never answer from memory alone. " +
	"Report only facts present in your search results. Never invent a URL, title, or fact not found in a result. " +
	"When you are done searching, respond with nothing but a JSON object of the shape " +
	`{"summary": "...", "sources": [{"title": "...", "url": "...", "summary": "..."}]}` +
	". Do not wrap the JSON in prose."

// Research runs the sub-agent's own short tool loop and returns a
// normalized Result. It never returns an error; any failure — a client
// error, a malformed response, a context cancellation — degrades to an
// empty Result, per spec.md §4.9's "on any exception, returns an empty
// result; never raises."
func (a *SubAgent) Research(ctx context.Context, query string, purpose forge.ResearchPurpose, instructions string, maxResults int) Result {
	if maxResults <= 0 || maxResults > maxResultsCeiling {
		maxResults = maxResultsCeiling
	}

	userText := buildUserText(query, purpose, instructions)
	messages := []forge.Message{
		{Role: "user", Content: []forge.ContentBlock{{Type: forge.BlockText, Text: userText}}},
	}

	var final *llm.Response
	tokens := 0
	for i := 0; i < maxIterations; i++ {
		stream, err := a.client.StreamMessage(ctx, llm.Request{
			Model:     a.model,
			System:    systemPrompt,
			Messages:  messages,
			WebSearch: &llm.WebSearchTool{MaxUses: maxResults},
			MaxTokens: 2048,
		})
		if err != nil {
			return emptyResult()
		}
		// Drain the delta channel so pump goroutines in the llm client
		// never block on a full buffer while we wait on Final.
		go drain(stream)
		resp, err := stream.Final()
		if err != nil {
			return emptyResult()
		}
		tokens += resp.Usage.InputTokens + resp.Usage.OutputTokens
		final = resp

		if resp.StopReason != llm.StopPauseTurn {
			break
		}
		messages = append(messages, forge.Message{Role: "assistant", Content: resp.Content})
	}

	if final == nil {
		return emptyResult()
	}

	summary, sources := parseFinalText(final.Content)
	if summary == "" && len(sources) == 0 {
		return emptyResult()
	}
	return Result{
		Summary:     summary,
		Sources:     sources,
		ResultCount: len(sources),
		Empty:       false,
		HaikuTokens: tokens,
	}
}

// AsToolFunc adapts Research to the tools.ResearchFunc shape the tool
// dispatch's "research" handler calls through. The adapter never returns
// an error itself — SubAgent.Research already degrades to an empty
// Result on any failure — matching the "never raises" contract at the
// boundary the tool handler sees.
func (a *SubAgent) AsToolFunc() tools.ResearchFunc {
	return func(ctx context.Context, query string, purpose forge.ResearchPurpose, instructions string, maxResults int) (tools.ResearchResult, error) {
		r := a.Research(ctx, query, purpose, instructions, maxResults)
		return tools.ResearchResult{
			Summary:     r.Summary,
			Sources:     r.Sources,
			ResultCount: r.ResultCount,
			Empty:       r.Empty,
			HaikuTokens: r.HaikuTokens,
		}, nil
	}
}

func drain(s llm.Stream) {
	for range s.Events() {
	}
}

func buildUserText(query string, purpose forge.ResearchPurpose, instructions string) string {
	var b strings.Builder
	b.WriteString("Purpose: ")
	b.WriteString(purposeInstructions[purpose])
	b.WriteString("\n\nQuery: ")
	b.WriteString(query)
	if instructions != "" {
		b.WriteString("\n\nAdditional instructions: ")
		b.WriteString(instructions)
	}
	return b.String()
}

// jsonShape is the wire shape the sub-agent is instructed to emit.
type jsonShape struct {
	Summary string `json:"summary"`
	Sources []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Summary string `json:"summary"`
	} `json:"sources"`
}

var jsonBlockRE = regexp.MustCompile(`(?s)\{.*\}`)

// parseFinalText applies the three-level fallback spec.md §4.9 requires:
// direct JSON, a regex-extracted JSON object, or the raw text treated as a
// bare summary with no sources.
func parseFinalText(blocks []forge.ContentBlock) (string, []forge.Evidence) {
	text := textOf(blocks)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	if shape, ok := tryParseJSON(text); ok {
		return shape.Summary, toEvidence(shape.Sources)
	}

	if match := jsonBlockRE.FindString(text); match != "" {
		if shape, ok := tryParseJSON(match); ok {
			return shape.Summary, toEvidence(shape.Sources)
		}
	}

	return text, nil
}

func tryParseJSON(text string) (jsonShape, bool) {
	var shape jsonShape
	if err := json.Unmarshal([]byte(text), &shape); err != nil {
		return jsonShape{}, false
	}
	return shape, true
}

func toEvidence(sources []struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}) []forge.Evidence {
	if len(sources) == 0 {
		return nil
	}
	out := make([]forge.Evidence, 0, len(sources))
	for _, s := range sources {
		out = append(out, forge.Evidence{Title: s.Title, URL: s.URL, Summary: s.Summary, Type: forge.EvidenceContextual})
	}
	return out
}

func textOf(blocks []forge.ContentBlock) string {
	var b strings.Builder
	for _, blk := range blocks {
		if blk.Type == forge.BlockText {
			b.WriteString(blk.Text)
		}
	}
	return b.String()
}
