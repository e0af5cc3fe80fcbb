// Package translate applies the locale translation pass to review events
// and the crystallized knowledge document. It translates only a per-event
// whitelist of free-text fields, leaving IDs, URLs, enums, booleans, and
// numbers untouched, and degrades to the original text on any failure.
package translate

import (
	"context"
	"sync"

	"github.com/knowledgeforge/forge/internal/forge"
)

// Translator is the narrow external boundary to a translation backend
// (spec.md §9: "Translator.translate(text, locale) -> string"). Concrete
// implementations live outside this package (e.g. an LLM-backed
// translator or an HTTP client for a vendor API); this package never
// imports one directly, so a failing translator degrades gracefully
// without this package's tests needing network access.
type Translator interface {
	Translate(ctx context.Context, text string, lang string) (string, error)
}

// Pass applies Translator t to review/document events, caching results by
// (text, lang) for the process lifetime.
type Pass struct {
	t     Translator
	cache sync.Map // map[cacheKey]string
}

type cacheKey struct {
	text string
	lang string
}

// New constructs a translation Pass over Translator t.
func New(t Translator) *Pass {
	return &Pass{t: t}
}

// translateText is the single point every field goes through: returns the
// input unchanged for blank input, for English, or for a locale with no
// known language mapping, consults the cache, and falls back to the
// original text on any translator error.
func (p *Pass) translateText(ctx context.Context, text string, locale forge.Locale) string {
	if text == "" || locale == forge.LocaleEN {
		return text
	}
	lang := locale.LanguageName()
	if lang == "en" {
		return text
	}
	key := cacheKey{text: text, lang: lang}
	if v, ok := p.cache.Load(key); ok {
		return v.(string)
	}
	out, err := p.t.Translate(ctx, text, lang)
	if err != nil || out == "" {
		return text
	}
	p.cache.Store(key, out)
	return out
}

// EventType identifies which review-event shape Apply is translating,
// matching the `type` field of the SSE event.
type EventType string

const (
	EventReviewDecompose  EventType = "review_decompose"
	EventReviewExplore    EventType = "review_explore"
	EventReviewClaims     EventType = "review_claims"
	EventReviewVerdicts   EventType = "review_verdicts"
	EventReviewBuild      EventType = "review_build"
	EventKnowledgeDocument EventType = "knowledge_document"
)

// Apply translates event's data in place according to its type's field
// whitelist. Events of any other type, or locale == EN, pass through
// unchanged (a shallow no-op, matching the distilled source's early
// return for English).
func (p *Pass) Apply(ctx context.Context, etype EventType, data map[string]any, locale forge.Locale) map[string]any {
	if locale == forge.LocaleEN {
		return data
	}
	switch etype {
	case EventReviewDecompose:
		return p.translateDecompose(ctx, data, locale)
	case EventReviewExplore:
		return p.translateExplore(ctx, data, locale)
	case EventReviewClaims, EventReviewVerdicts:
		return p.translateClaims(ctx, data, locale)
	case EventReviewBuild:
		return p.translateBuild(ctx, data, locale)
	default:
		return data
	}
}

// TranslateDocument translates the crystallized markdown document
// wholesale (the distilled source applies one naive whole-string
// translation to this event, with no per-field selectivity, since the
// document has no structured IDs to preserve).
func (p *Pass) TranslateDocument(ctx context.Context, markdown string, locale forge.Locale) string {
	return p.translateText(ctx, markdown, locale)
}

func asStringSlice(v any) ([]string, bool) {
	s, ok := v.([]string)
	return s, ok
}

func asMapSlice(v any) ([]map[string]any, bool) {
	s, ok := v.([]map[string]any)
	return s, ok
}

func (p *Pass) translateDecompose(ctx context.Context, data map[string]any, locale forge.Locale) map[string]any {
	if fundamentals, ok := asStringSlice(data["fundamentals"]); ok {
		out := make([]string, len(fundamentals))
		for i, f := range fundamentals {
			out[i] = p.translateText(ctx, f, locale)
		}
		data["fundamentals"] = out
	}
	if assumptions, ok := asMapSlice(data["assumptions"]); ok {
		for _, a := range assumptions {
			if v, ok := a["text"].(string); ok {
				a["text"] = p.translateText(ctx, v, locale)
			}
			if v, ok := a["source"].(string); ok {
				a["source"] = p.translateText(ctx, v, locale)
			}
		}
	}
	if reframings, ok := asMapSlice(data["reframings"]); ok {
		for _, r := range reframings {
			if v, ok := r["text"].(string); ok {
				r["text"] = p.translateText(ctx, v, locale)
			}
			if v, ok := r["reasoning"].(string); ok {
				r["reasoning"] = p.translateText(ctx, v, locale)
			}
		}
	}
	return data
}

func (p *Pass) translateExplore(ctx context.Context, data map[string]any, locale forge.Locale) map[string]any {
	if box, ok := asMapSlice(data["morphological_box"]); ok {
		for _, param := range box {
			if v, ok := param["name"].(string); ok {
				param["name"] = p.translateText(ctx, v, locale)
			}
			if values, ok := asStringSlice(param["values"]); ok {
				out := make([]string, len(values))
				for i, v := range values {
					out[i] = p.translateText(ctx, v, locale)
				}
				param["values"] = out
			}
		}
	}
	if analogies, ok := asMapSlice(data["analogies"]); ok {
		for _, a := range analogies {
			for _, field := range []string{"domain", "target_application", "description"} {
				if v, ok := a[field].(string); ok {
					a[field] = p.translateText(ctx, v, locale)
				}
			}
		}
	}
	if contradictions, ok := asMapSlice(data["contradictions"]); ok {
		for _, c := range contradictions {
			for _, field := range []string{"property_a", "property_b", "description"} {
				if v, ok := c[field].(string); ok {
					c[field] = p.translateText(ctx, v, locale)
				}
			}
		}
	}
	if adjacent, ok := asMapSlice(data["adjacent"]); ok {
		for _, a := range adjacent {
			for _, field := range []string{"current_capability", "adjacent_possibility"} {
				if v, ok := a[field].(string); ok {
					a[field] = p.translateText(ctx, v, locale)
				}
			}
			if prereqs, ok := asStringSlice(a["prerequisites"]); ok {
				out := make([]string, len(prereqs))
				for i, v := range prereqs {
					out[i] = p.translateText(ctx, v, locale)
				}
				a["prerequisites"] = out
			}
		}
	}
	return data
}

func (p *Pass) translateClaims(ctx context.Context, data map[string]any, locale forge.Locale) map[string]any {
	claims, ok := asMapSlice(data["claims"])
	if !ok {
		return data
	}
	for _, c := range claims {
		for _, field := range []string{"claim_text", "reasoning", "falsifiability_condition", "qualification"} {
			if v, ok := c[field].(string); ok {
				c[field] = p.translateText(ctx, v, locale)
			}
		}
		if evidence, ok := asMapSlice(c["evidence"]); ok {
			for _, e := range evidence {
				for _, field := range []string{"title", "summary"} {
					if v, ok := e[field].(string); ok {
						e[field] = p.translateText(ctx, v, locale)
					}
				}
			}
		}
	}
	return data
}

func (p *Pass) translateBuild(ctx context.Context, data map[string]any, locale forge.Locale) map[string]any {
	if graph, ok := data["graph"].(map[string]any); ok {
		if nodes, ok := asMapSlice(graph["nodes"]); ok {
			for _, n := range nodes {
				nodeData, ok := n["data"].(map[string]any)
				if !ok {
					continue
				}
				for _, field := range []string{"claim_text", "qualification"} {
					if v, ok := nodeData[field].(string); ok {
						nodeData[field] = p.translateText(ctx, v, locale)
					}
				}
			}
		}
		// Edges carry only IDs and an enum type — never translated.
	}
	if gaps, ok := asStringSlice(data["gaps"]); ok {
		out := make([]string, len(gaps))
		for i, g := range gaps {
			out[i] = p.translateText(ctx, g, locale)
		}
		data["gaps"] = out
	}
	if negatives, ok := asMapSlice(data["negative_knowledge"]); ok {
		for _, n := range negatives {
			for _, field := range []string{"claim_text", "rejection_reason"} {
				if v, ok := n[field].(string); ok {
					n[field] = p.translateText(ctx, v, locale)
				}
			}
		}
	}
	return data
}
