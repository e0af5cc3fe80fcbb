package forge

import "fmt"

// CompactedMarker is inserted into the synthetic summary message the
// compact-middle stage produces, making the stage idempotent: running it
// twice on an already-compacted history is a no-op because the marker is
// detected and the stage skips straight through.
const CompactedMarker = "__COMPACTED__"

// CompactionConfig tunes the three ContextCompaction stages (spec.md
// §4.4). Zero values are replaced by DefaultCompactionConfig's defaults.
type CompactionConfig struct {
	// KeepToolResultMessages is how many of the most recent user messages
	// containing tool_result blocks are kept verbatim; older ones have
	// their result payload collapsed.
	KeepToolResultMessages int

	// MiddleCompactionThreshold is the message-count above which the
	// compact-middle stage activates.
	MiddleCompactionThreshold int

	// KeepRecentMessages is how many of the most recent messages survive
	// compact-middle verbatim.
	KeepRecentMessages int

	// KeepWebSearchMessages is how many of the most recent assistant
	// messages containing web-search result blocks are kept verbatim.
	KeepWebSearchMessages int
}

// DefaultCompactionConfig matches spec.md §4.4's stated defaults.
func DefaultCompactionConfig() CompactionConfig {
	return CompactionConfig{
		KeepToolResultMessages:    4,
		MiddleCompactionThreshold: 20,
		KeepRecentMessages:        8,
		KeepWebSearchMessages:     3,
	}
}

func sanitizeCompactionConfig(c CompactionConfig) CompactionConfig {
	d := DefaultCompactionConfig()
	if c.KeepToolResultMessages <= 0 {
		c.KeepToolResultMessages = d.KeepToolResultMessages
	}
	if c.MiddleCompactionThreshold <= 0 {
		c.MiddleCompactionThreshold = d.MiddleCompactionThreshold
	}
	if c.KeepRecentMessages <= 0 {
		c.KeepRecentMessages = d.KeepRecentMessages
	}
	if c.KeepWebSearchMessages <= 0 {
		c.KeepWebSearchMessages = d.KeepWebSearchMessages
	}
	return c
}

// OptimizeContext runs the three chained compaction transforms over msgs
// and returns a new, independent slice. msgs is never mutated.
func OptimizeContext(msgs []Message, cfg CompactionConfig) []Message {
	cfg = sanitizeCompactionConfig(cfg)
	out := deepCopyMessages(msgs)
	out = trimOldToolResults(out, cfg.KeepToolResultMessages)
	out = compactMiddle(out, cfg.MiddleCompactionThreshold, cfg.KeepRecentMessages)
	out = trimOldWebSearchResults(out, cfg.KeepWebSearchMessages)
	return out
}

// messageHasToolResult reports whether a message carries at least one
// tool_result block.
func messageHasToolResult(m Message) bool {
	for _, b := range m.Content {
		if b.Type == BlockToolResult {
			return true
		}
	}
	return false
}

// trimOldToolResults keeps the last `keep` tool-result-bearing messages
// verbatim; in older ones it collapses each tool_result's payload to a
// short marker while preserving tool_use_id (the LLM vendor requires that
// every tool_use block be answered by a tool_result with a matching id,
// so the pairing is never broken — only the payload shrinks).
func trimOldToolResults(msgs []Message, keep int) []Message {
	var idx []int
	for i, m := range msgs {
		if m.Role == "user" && messageHasToolResult(m) {
			idx = append(idx, i)
		}
	}
	if len(idx) <= keep {
		return msgs
	}
	cutoff := len(idx) - keep
	trimSet := make(map[int]bool, cutoff)
	for _, i := range idx[:cutoff] {
		trimSet[i] = true
	}
	for i := range msgs {
		if !trimSet[i] {
			continue
		}
		for j := range msgs[i].Content {
			b := &msgs[i].Content[j]
			if b.Type != BlockToolResult {
				continue
			}
			if b.IsError {
				b.Content = "[error:TRIMMED]"
			} else {
				b.Content = "[ok]"
			}
		}
	}
	return msgs
}

// compactMiddle drops everything except the first message and the last
// `keepRecent` messages once the history exceeds threshold, replacing the
// gap with an assistant/user summary pair carrying CompactedMarker. If the
// marker is already present immediately after the first message, the
// stage is a no-op (idempotence).
func compactMiddle(msgs []Message, threshold, keepRecent int) []Message {
	if len(msgs) <= threshold {
		return msgs
	}
	if len(msgs) >= 2 && messageIsCompactionMarker(msgs[1]) {
		return msgs
	}
	if len(msgs) == 0 {
		return msgs
	}
	first := msgs[0]
	tailStart := len(msgs) - keepRecent
	if tailStart < 1 {
		tailStart = 1
	}
	tail := msgs[tailStart:]
	dropped := tailStart - 1

	summary := fmt.Sprintf("%s %d earlier messages were summarized to keep the context window bounded.", CompactedMarker, dropped)
	summaryMsgs := []Message{
		{Role: "assistant", Content: []ContentBlock{{Type: BlockText, Text: summary}}},
		{Role: "user", Content: []ContentBlock{{Type: BlockText, Text: "Continue."}}},
	}

	out := make([]Message, 0, 1+len(summaryMsgs)+len(tail))
	out = append(out, first)
	out = append(out, summaryMsgs...)
	out = append(out, tail...)
	return out
}

func messageIsCompactionMarker(m Message) bool {
	if m.Role != "assistant" {
		return false
	}
	for _, b := range m.Content {
		if b.Type == BlockText && len(b.Text) >= len(CompactedMarker) && b.Text[:len(CompactedMarker)] == CompactedMarker {
			return true
		}
	}
	return false
}

// messageHasWebSearchResult reports whether a message carries at least
// one web_search_tool_result block.
func messageHasWebSearchResult(m Message) bool {
	for _, b := range m.Content {
		if b.Type == BlockWebSearchResult {
			return true
		}
	}
	return false
}

// trimOldWebSearchResults keeps the last `keep` web-search-result-bearing
// assistant messages verbatim; in older ones each result collapses to
// just {url, title}, which it already is at the ContentBlock level, so
// the transform clears anything beyond the item list.
func trimOldWebSearchResults(msgs []Message, keep int) []Message {
	var idx []int
	for i, m := range msgs {
		if messageHasWebSearchResult(m) {
			idx = append(idx, i)
		}
	}
	if len(idx) <= keep {
		return msgs
	}
	cutoff := len(idx) - keep
	trimSet := make(map[int]bool, cutoff)
	for _, i := range idx[:cutoff] {
		trimSet[i] = true
	}
	for i := range msgs {
		if !trimSet[i] {
			continue
		}
		for j := range msgs[i].Content {
			b := &msgs[i].Content[j]
			if b.Type != BlockWebSearchResult {
				continue
			}
			trimmed := make([]WebSearchItem, len(b.SearchResults))
			for k, item := range b.SearchResults {
				trimmed[k] = WebSearchItem{URL: item.URL, Title: item.Title}
			}
			b.SearchResults = trimmed
		}
	}
	return msgs
}
