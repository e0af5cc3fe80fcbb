package index

import (
	"sync"

	"github.com/knowledgeforge/forge/internal/rag/parser/markdown"
	"github.com/knowledgeforge/forge/internal/rag/parser/text"
)

var registerParsersOnce sync.Once

func ensureDefaultParsers() {
	registerParsersOnce.Do(func() {
		markdown.Register()
		text.Register()
	})
}
