package forge

import "encoding/json"

// BlockType enumerates the content-block kinds the AgentRunner has to
// reason about. This is a deliberately narrower set than the full
// Anthropic content-block union: the runner only needs to inspect,
// compact, and cache these.
type BlockType string

const (
	BlockText             BlockType = "text"
	BlockToolUse          BlockType = "tool_use"
	BlockToolResult       BlockType = "tool_result"
	BlockServerToolUse    BlockType = "server_tool_use"
	BlockWebSearchResult  BlockType = "web_search_tool_result"
	BlockThinking         BlockType = "thinking"
)

// CacheControl marks a content block as an ephemeral prompt-cache
// breakpoint.
type CacheControl struct {
	Type string `json:"type"`
}

var ephemeralCache = &CacheControl{Type: "ephemeral"}

// WebSearchItem is one source returned inside a web_search_tool_result
// block.
type WebSearchItem struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ContentBlock is one block of a Message's content list. Fields are
// populated according to Type; this mirrors the Anthropic wire shape
// closely enough that the llm client package can marshal it directly,
// while giving the compaction/digest/runner code typed access instead of
// walking raw maps.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// text / thinking
	Text string `json:"text,omitempty"`

	// tool_use / server_tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// web_search_tool_result
	SearchResults []WebSearchItem `json:"search_results,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// Message is one turn of the conversation sent to, or received from, the
// LLM. Role is "user", "assistant", or "system" (system is carried
// separately on the request in the Anthropic wire format, but the type is
// shared so compaction/digest code doesn't need a second message shape).
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextBlocks returns the concatenated text of a message's text blocks.
func (m Message) TextBlocks() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolUseBlocks returns every tool_use block in the message.
func (m Message) ToolUseBlocks() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			out = append(out, b)
		}
	}
	return out
}

// HasToolUse reports whether the message contains at least one tool_use
// block.
func (m Message) HasToolUse() bool {
	for _, b := range m.Content {
		if b.Type == BlockToolUse {
			return true
		}
	}
	return false
}

// deepCopyMessages returns a structurally independent copy of msgs via a
// marshal/unmarshal round trip, matching the deep-copy discipline the
// compaction pipeline requires (spec.md §4.4: "operate on a deep copy; the
// input is never mutated").
func deepCopyMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		// Messages are always JSON-safe by construction; a failure here
		// indicates a programmer error, not a runtime condition to
		// recover from gracefully.
		panic("forge: messages are not JSON-safe: " + err.Error())
	}
	var out []Message
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("forge: corrupt message copy: " + err.Error())
	}
	return out
}
