// Package llm's openai.go adapts github.com/sashabaranov/go-openai to the
// Client interface in types.go, the alternate provider SPEC_FULL.md's LLM
// client section calls for. It covers the same text/tool-call surface
// anthropic.go does; OpenAI's Chat Completions API has no equivalent of
// the Anthropic-specific server_tool_use/pause_turn/thinking semantics, so
// a request with req.WebSearch set is served with web search silently
// unavailable rather than failing — the model simply never sees that
// tool. ResearchSubAgent and AgentRunner both tolerate a client that never
// emits EventServerToolStart/StopPauseTurn.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/knowledgeforge/forge/internal/forge"
)

// OpenAIConfig configures an OpenAIClient.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional override, used by tests against a local stub
}

// OpenAIClient implements Client over the OpenAI Chat Completions API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient constructs an OpenAIClient from cfg.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(clientCfg)}
}

func convertMessagesOpenAI(msgs []forge.Message, system string) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		switch m.Role {
		case "assistant":
			msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.TextBlocks()}
			for _, b := range m.ToolUseBlocks() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   b.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.Name,
						Arguments: string(b.Input),
					},
				})
			}
			out = append(out, msg)
		case "user":
			// A synthetic user message carrying tool_result blocks becomes
			// one "tool" message per result, which must follow the
			// assistant message that requested them — OpenAI requires
			// ToolCallID to pair them up, same constraint
			// internal/agent/providers/openai.go's convertToOpenAIMessages
			// documents for its own tool-result handling.
			var toolResults []forge.ContentBlock
			var text string
			for _, b := range m.Content {
				if b.Type == forge.BlockToolResult {
					toolResults = append(toolResults, b)
				} else if b.Type == forge.BlockText {
					text += b.Text
				}
			}
			if len(toolResults) > 0 {
				for _, tr := range toolResults {
					out = append(out, openai.ChatCompletionMessage{
						Role:       openai.ChatMessageRoleTool,
						Content:    tr.Content,
						ToolCallID: tr.ToolUseID,
					})
				}
				if text != "" {
					out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
				}
				continue
			}
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
		}
	}
	return out
}

func convertToolsOpenAI(tools []ToolSchema) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

type openaiStream struct {
	events chan StreamEvent
	done   chan struct{}
	resp   *Response
	err    error
}

func (s *openaiStream) Events() <-chan StreamEvent { return s.events }

func (s *openaiStream) Final() (*Response, error) {
	<-s.done
	return s.resp, s.err
}

// StreamMessage sends req to the OpenAI API and returns a Stream over the
// incremental response.
func (c *OpenAIClient) StreamMessage(ctx context.Context, req Request) (Stream, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      convertMessagesOpenAI(req.Messages, req.System),
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertToolsOpenAI(req.Tools)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	out := &openaiStream{events: make(chan StreamEvent, 16), done: make(chan struct{})}
	go c.pump(ctx, stream, out)
	return out, nil
}

// toolCallBuilder accumulates one in-progress tool call across the
// index-keyed delta chunks OpenAI streams it in, the same accumulation
// internal/agent/providers/openai.go's processStream performs for
// *models.ToolCall.
type toolCallBuilder struct {
	id, name string
	args     string
	started  bool
}

func (c *OpenAIClient) pump(ctx context.Context, stream *openai.ChatCompletionStream, out *openaiStream) {
	defer close(out.done)
	defer close(out.events)
	defer stream.Close()

	var textBlock *forge.ContentBlock
	toolCalls := map[int]*toolCallBuilder{}
	var toolOrder []int
	stopReason := StopEndTurn
	usage := Usage{}

	for {
		if ctx.Err() != nil {
			out.err = NewError(CategoryTimeout, ctx.Err().Error(), nil, ctx.Err())
			return
		}
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			out.err = classifyOpenAIError(err)
			return
		}

		if resp.Usage != nil {
			usage = Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if textBlock == nil {
				textBlock = &forge.ContentBlock{Type: forge.BlockText}
			}
			textBlock.Text += delta.Content
			out.events <- StreamEvent{Kind: EventTextDelta, TextDelta: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			b, ok := toolCalls[idx]
			if !ok {
				b = &toolCallBuilder{}
				toolCalls[idx] = b
				toolOrder = append(toolOrder, idx)
			}
			if tc.ID != "" {
				b.id = tc.ID
			}
			if tc.Function.Name != "" {
				b.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				b.args += tc.Function.Arguments
			}
			if !b.started && b.id != "" && b.name != "" {
				b.started = true
				out.events <- StreamEvent{Kind: EventToolUseStart, ToolID: b.id, ToolName: b.name}
			}
		}

		if choice.FinishReason != "" {
			stopReason = mapOpenAIFinishReason(string(choice.FinishReason))
		}
	}

	var blocks []forge.ContentBlock
	if textBlock != nil && textBlock.Text != "" {
		blocks = append(blocks, *textBlock)
	}
	for _, idx := range toolOrder {
		b := toolCalls[idx]
		if b.id == "" || b.name == "" {
			continue
		}
		blocks = append(blocks, forge.ContentBlock{
			Type:  forge.BlockToolUse,
			ID:    b.id,
			Name:  b.name,
			Input: json.RawMessage(b.args),
		})
	}

	out.resp = &Response{Content: blocks, StopReason: stopReason, Usage: usage}
}

func mapOpenAIFinishReason(fr string) StopReason {
	switch fr {
	case "tool_calls":
		return StopToolUse
	case "length":
		return StopMaxTokens
	default:
		return StopEndTurn
	}
}

// classifyOpenAIError maps a go-openai error into this package's Error,
// mirroring classifyError's status-code switch in anthropic.go.
func classifyOpenAIError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 429:
			return NewError(CategoryRateLimit, apiErr.Error(), nil, err)
		case 408:
			return NewError(CategoryTimeout, apiErr.Error(), nil, err)
		default:
			if apiErr.HTTPStatusCode >= 500 {
				return NewError(CategoryOverloaded, apiErr.Error(), nil, err)
			}
			if apiErr.HTTPStatusCode >= 400 {
				return NewError(CategoryClientError, apiErr.Error(), nil, err)
			}
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewError(CategoryConnectionError, reqErr.Error(), nil, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CategoryTimeout, err.Error(), nil, err)
	}
	return NewError(CategoryConnectionError, err.Error(), nil, err)
}
