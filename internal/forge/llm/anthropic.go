// Package llm's anthropic.go adapts github.com/anthropics/anthropic-sdk-go to
// the Client interface in types.go, translating this module's forge.Message
// wire shape to and from the vendor SDK's param/union types and turning its
// streaming events into StreamEvent/Response.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/knowledgeforge/forge/internal/forge"
)

// AnthropicConfig configures an AnthropicClient.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string // optional override, used by tests against a local stub
}

// AnthropicClient implements Client over the real Anthropic API.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient constructs an AnthropicClient from cfg.
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}
}

// convertMessages maps forge.Message to the SDK's MessageParam union,
// marking the last user message's blocks as an ephemeral cache breakpoint
// when cacheLastUser is set (spec.md §4.10 step 2).
func convertMessages(msgs []forge.Message, cacheLastUser bool) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	lastUserIdx := -1
	for i, m := range msgs {
		if m.Role == "user" {
			lastUserIdx = i
		}
	}
	for i, m := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			cache := cacheLastUser && i == lastUserIdx
			block, err := convertBlock(b, cache)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}
		if m.Role == "assistant" {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out, nil
}

func convertBlock(b forge.ContentBlock, cache bool) (anthropic.ContentBlockParamUnion, error) {
	var block anthropic.ContentBlockParamUnion
	switch b.Type {
	case forge.BlockText:
		block = anthropic.NewTextBlock(b.Text)
		if cache && block.OfText != nil {
			block.OfText.CacheControl = ephemeralCacheParam()
		}
		return block, nil
	case forge.BlockToolUse:
		var input any
		if len(b.Input) > 0 {
			if err := json.Unmarshal(b.Input, &input); err != nil {
				return block, fmt.Errorf("llm: invalid tool_use input for %s: %w", b.Name, err)
			}
		}
		return anthropic.NewToolUseBlock(b.ID, input, b.Name), nil
	case forge.BlockToolResult:
		block = anthropic.NewToolResultBlock(b.ToolUseID, b.Content, b.IsError)
		if cache && block.OfToolResult != nil {
			block.OfToolResult.CacheControl = ephemeralCacheParam()
		}
		return block, nil
	case forge.BlockThinking:
		// Thinking blocks are assistant-authored and never replayed as
		// request input.
		return anthropic.NewTextBlock(b.Text), nil
	default:
		return block, fmt.Errorf("llm: unsupported block type %q for request conversion", b.Type)
	}
}

func ephemeralCacheParam() anthropic.CacheControlEphemeralParam {
	return anthropic.CacheControlEphemeralParam{Type: "ephemeral"}
}

func convertTools(tools []ToolSchema, cache bool) ([]anthropic.ToolUnionParam, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for i, t := range tools {
		raw, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("llm: invalid schema for tool %s: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("llm: schema shape for tool %s: %w", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("llm: missing tool definition for %s", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		if cache && i == len(tools)-1 {
			param.OfTool.CacheControl = ephemeralCacheParam()
		}
		out = append(out, param)
	}
	return out, nil
}

// anthropicStream adapts an ssestream-backed response into the Stream
// interface, translating SDK events into StreamEvent values as they arrive
// and assembling the final Response once the stream completes.
type anthropicStream struct {
	events chan StreamEvent
	done   chan struct{}
	resp   *Response
	err    error
}

func (s *anthropicStream) Events() <-chan StreamEvent { return s.events }

func (s *anthropicStream) Final() (*Response, error) {
	<-s.done
	return s.resp, s.err
}

// StreamMessage sends req to the Anthropic API and returns a Stream over the
// incremental response. When req.Betas is non-empty the request goes
// through the beta message surface (needed for the research sub-agent's
// web-search beta flag); otherwise it uses the stable Messages API.
func (c *AnthropicClient) StreamMessage(ctx context.Context, req Request) (Stream, error) {
	messages, err := convertMessages(req.Messages, req.CacheLastUserMessage)
	if err != nil {
		return nil, err
	}
	tools, err := convertTools(req.Tools, req.CacheTools)
	if err != nil {
		return nil, err
	}
	if req.WebSearch != nil {
		tools = append(tools, anthropic.ToolUnionParam{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{
				Name:    "web_search",
				MaxUses: anthropic.Int(int64(req.WebSearch.MaxUses)),
			},
		})
	}

	system := []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	if req.CacheSystem {
		system[len(system)-1].CacheControl = ephemeralCacheParam()
	}

	out := &anthropicStream{events: make(chan StreamEvent, 16), done: make(chan struct{})}

	if len(req.Betas) > 0 {
		betaMessages, betaTools, berr := convertBetaMessagesAndTools(messages, tools)
		if berr != nil {
			return nil, berr
		}
		betas := make([]anthropic.AnthropicBeta, 0, len(req.Betas))
		for _, b := range req.Betas {
			betas = append(betas, anthropic.AnthropicBeta(b))
		}
		betaParams := anthropic.BetaMessageNewParams{
			Model:     anthropic.Model(req.Model),
			MaxTokens: int64(req.MaxTokens),
			Messages:  betaMessages,
			Tools:     betaTools,
			System:    convertBetaSystem(system),
			Betas:     betas,
		}
		stream := c.client.Beta.Messages.NewStreaming(ctx, betaParams)
		go c.pumpBeta(ctx, stream, out)
		return out, nil
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  messages,
		Tools:     tools,
		System:    system,
	}
	stream := c.client.Messages.NewStreaming(ctx, params)
	go c.pump(ctx, stream, out)
	return out, nil
}

// accumulator holds the per-stream state pump/pumpBeta both build up while
// draining content_block_* / message_delta events, factored out so the two
// near-identical SDK event unions (plain and beta) share one assembly path.
type accumulator struct {
	blocks      []forge.ContentBlock
	usage       Usage
	stopReason  StopReason
	activeInput map[int64]string
	activeQuery map[int64]string
}

func newAccumulator() *accumulator {
	return &accumulator{stopReason: StopEndTurn, activeInput: map[int64]string{}, activeQuery: map[int64]string{}}
}

func appendText(blocks []forge.ContentBlock, idx int, delta string) {
	if idx < 0 || idx >= len(blocks) {
		return
	}
	blocks[idx].Text += delta
}

func mapStopReason(sr string) StopReason {
	switch sr {
	case "tool_use":
		return StopToolUse
	case "pause_turn":
		return StopPauseTurn
	case "max_tokens":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

// pump drains the plain (non-beta) event stream, grounded on
// internal/agent/providers/anthropic.go's processStream loop.
func (c *AnthropicClient) pump(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out *anthropicStream) {
	defer close(out.done)
	defer close(out.events)
	defer stream.Close()

	acc := newAccumulator()
	for stream.Next() {
		if ctx.Err() != nil {
			out.err = ctx.Err()
			return
		}
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			acc.usage.InputTokens += int(ms.Message.Usage.InputTokens)
			acc.usage.CacheCreation += int(ms.Message.Usage.CacheCreationInputTokens)
			acc.usage.CacheRead += int(ms.Message.Usage.CacheReadInputTokens)

		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			switch cb.Type {
			case "text":
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockText})
			case "thinking":
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockThinking})
			case "tool_use":
				tu := cb.AsToolUse()
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockToolUse, ID: tu.ID, Name: tu.Name})
				out.events <- StreamEvent{Kind: EventToolUseStart, ToolID: tu.ID, ToolName: tu.Name}
			case "server_tool_use":
				stu := cb.AsServerToolUse()
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockServerToolUse, ID: stu.ID, Name: stu.Name})
				out.events <- StreamEvent{Kind: EventServerToolStart, ToolID: stu.ID, ToolName: stu.Name}
			case "web_search_tool_result":
				wr := cb.AsWebSearchToolResult()
				acc.blocks = append(acc.blocks, forge.ContentBlock{
					Type:          forge.BlockWebSearchResult,
					ToolUseID:     wr.ToolUseID,
					SearchResults: convertWebSearchResults(wr),
				})
			default:
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockType(cb.Type)})
			}

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			idx := cbd.Index
			delta := cbd.Delta
			switch delta.Type {
			case "text_delta":
				appendText(acc.blocks, int(idx), delta.Text)
				out.events <- StreamEvent{Kind: EventTextDelta, TextDelta: delta.Text}
			case "thinking_delta":
				appendText(acc.blocks, int(idx), delta.Thinking)
				out.events <- StreamEvent{Kind: EventThinkingDelta, TextDelta: delta.Thinking}
			case "input_json_delta":
				acc.activeInput[idx] += delta.PartialJSON
				if int(idx) < len(acc.blocks) && acc.blocks[idx].Type == forge.BlockServerToolUse {
					acc.activeQuery[idx] += delta.PartialJSON
					out.events <- StreamEvent{Kind: EventServerToolStart, Query: acc.activeQuery[idx]}
				}
			}

		case "content_block_stop":
			idx := event.AsContentBlockStop().Index
			if raw, ok := acc.activeInput[idx]; ok && int(idx) < len(acc.blocks) {
				acc.blocks[idx].Input = json.RawMessage(raw)
				delete(acc.activeInput, idx)
			}

		case "message_delta":
			md := event.AsMessageDelta()
			acc.usage.OutputTokens += int(md.Usage.OutputTokens)
			if sr := string(md.Delta.StopReason); sr != "" {
				acc.stopReason = mapStopReason(sr)
			}
		}
	}

	if err := stream.Err(); err != nil {
		out.err = classifyError(err)
		out.events <- StreamEvent{Kind: EventError, Err: out.err}
		return
	}
	out.resp = &Response{Content: acc.blocks, StopReason: acc.stopReason, Usage: acc.usage}
}

// pumpBeta mirrors pump over the beta event union, used only when the
// research sub-agent requests the web-search beta flag.
func (c *AnthropicClient) pumpBeta(ctx context.Context, stream *ssestream.Stream[anthropic.BetaRawMessageStreamEventUnion], out *anthropicStream) {
	defer close(out.done)
	defer close(out.events)
	defer stream.Close()

	acc := newAccumulator()
	for stream.Next() {
		if ctx.Err() != nil {
			out.err = ctx.Err()
			return
		}
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			acc.usage.InputTokens += int(ms.Message.Usage.InputTokens)
			acc.usage.CacheCreation += int(ms.Message.Usage.CacheCreationInputTokens)
			acc.usage.CacheRead += int(ms.Message.Usage.CacheReadInputTokens)

		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			switch cb.Type {
			case "text":
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockText})
			case "thinking":
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockThinking})
			case "tool_use":
				tu := cb.AsToolUse()
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockToolUse, ID: tu.ID, Name: tu.Name})
				out.events <- StreamEvent{Kind: EventToolUseStart, ToolID: tu.ID, ToolName: tu.Name}
			case "server_tool_use":
				stu := cb.AsServerToolUse()
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockServerToolUse, ID: stu.ID, Name: stu.Name})
				out.events <- StreamEvent{Kind: EventServerToolStart, ToolID: stu.ID, ToolName: stu.Name}
			case "web_search_tool_result":
				wr := cb.AsWebSearchToolResult()
				acc.blocks = append(acc.blocks, forge.ContentBlock{
					Type:          forge.BlockWebSearchResult,
					ToolUseID:     wr.ToolUseID,
					SearchResults: convertBetaWebSearchResults(wr),
				})
			default:
				acc.blocks = append(acc.blocks, forge.ContentBlock{Type: forge.BlockType(cb.Type)})
			}

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			idx := cbd.Index
			delta := cbd.Delta
			switch delta.Type {
			case "text_delta":
				appendText(acc.blocks, int(idx), delta.Text)
				out.events <- StreamEvent{Kind: EventTextDelta, TextDelta: delta.Text}
			case "thinking_delta":
				appendText(acc.blocks, int(idx), delta.Thinking)
				out.events <- StreamEvent{Kind: EventThinkingDelta, TextDelta: delta.Thinking}
			case "input_json_delta":
				acc.activeInput[idx] += delta.PartialJSON
				if int(idx) < len(acc.blocks) && acc.blocks[idx].Type == forge.BlockServerToolUse {
					acc.activeQuery[idx] += delta.PartialJSON
					out.events <- StreamEvent{Kind: EventServerToolStart, Query: acc.activeQuery[idx]}
				}
			}

		case "content_block_stop":
			idx := event.AsContentBlockStop().Index
			if raw, ok := acc.activeInput[idx]; ok && int(idx) < len(acc.blocks) {
				acc.blocks[idx].Input = json.RawMessage(raw)
				delete(acc.activeInput, idx)
			}

		case "message_delta":
			md := event.AsMessageDelta()
			acc.usage.OutputTokens += int(md.Usage.OutputTokens)
			if sr := string(md.Delta.StopReason); sr != "" {
				acc.stopReason = mapStopReason(sr)
			}
		}
	}

	if err := stream.Err(); err != nil {
		out.err = classifyError(err)
		out.events <- StreamEvent{Kind: EventError, Err: out.err}
		return
	}
	out.resp = &Response{Content: acc.blocks, StopReason: acc.stopReason, Usage: acc.usage}
}

func convertWebSearchResults(wr anthropic.WebSearchToolResultBlock) []forge.WebSearchItem {
	items := wr.Content.AsResponseWebSearchToolResultBlockItem()
	out := make([]forge.WebSearchItem, 0, len(items))
	for _, r := range items {
		out = append(out, forge.WebSearchItem{URL: r.URL, Title: r.Title})
	}
	return out
}

func convertBetaWebSearchResults(wr anthropic.BetaWebSearchToolResultBlock) []forge.WebSearchItem {
	items := wr.Content.AsResponseWebSearchToolResultBlockItem()
	out := make([]forge.WebSearchItem, 0, len(items))
	for _, r := range items {
		out = append(out, forge.WebSearchItem{URL: r.URL, Title: r.Title})
	}
	return out
}

// classifyError maps a vendor SDK error into this package's Error, matching
// the error categories spec.md §4.10 uses for retry/backoff decisions.
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 429:
			return NewError(CategoryRateLimit, apiErr.Error(), nil, err)
		case 529:
			return NewError(CategoryOverloaded, apiErr.Error(), nil, err)
		case 408:
			return NewError(CategoryTimeout, apiErr.Error(), nil, err)
		default:
			if apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 {
				return NewError(CategoryClientError, apiErr.Error(), nil, err)
			}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CategoryTimeout, err.Error(), nil, err)
	}
	return NewError(CategoryConnectionError, err.Error(), nil, err)
}

// convertBetaMessagesAndTools re-shapes the already-built plain MessageParam
// / ToolUnionParam values into their beta counterparts via a JSON round
// trip. The plain and beta param types are structurally identical on the
// wire (the beta surface only adds feature-gated fields this module never
// sets), so this avoids hand-duplicating convertMessages/convertTools for
// the research sub-agent's beta-only call path.
func convertBetaMessagesAndTools(messages []anthropic.MessageParam, tools []anthropic.ToolUnionParam) ([]anthropic.BetaMessageParam, []anthropic.BetaToolUnionParam, error) {
	raw, err := json.Marshal(messages)
	if err != nil {
		return nil, nil, fmt.Errorf("llm: beta message conversion: %w", err)
	}
	var betaMessages []anthropic.BetaMessageParam
	if err := json.Unmarshal(raw, &betaMessages); err != nil {
		return nil, nil, fmt.Errorf("llm: beta message shape: %w", err)
	}
	rawTools, err := json.Marshal(tools)
	if err != nil {
		return nil, nil, fmt.Errorf("llm: beta tool conversion: %w", err)
	}
	var betaTools []anthropic.BetaToolUnionParam
	if err := json.Unmarshal(rawTools, &betaTools); err != nil {
		return nil, nil, fmt.Errorf("llm: beta tool shape: %w", err)
	}
	return betaMessages, betaTools, nil
}

func convertBetaSystem(system []anthropic.TextBlockParam) []anthropic.BetaTextBlockParam {
	out := make([]anthropic.BetaTextBlockParam, 0, len(system))
	for _, s := range system {
		b := anthropic.BetaTextBlockParam{Type: s.Type, Text: s.Text}
		if s.CacheControl.Type != "" {
			b.CacheControl = anthropic.BetaCacheControlEphemeralParam{Type: "ephemeral"}
		}
		out = append(out, b)
	}
	return out
}
