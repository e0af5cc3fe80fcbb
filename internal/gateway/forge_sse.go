package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/knowledgeforge/forge/internal/forge/runner"
)

// sseEvent is the wire shape of one SSE frame's data payload, `{type,
// data}` per spec.md §6.
type sseEvent struct {
	Type runner.EventType `json:"type"`
	Data map[string]any   `json:"data"`
}

// setSSEHeaders applies the anti-buffering headers spec.md §6 requires so
// proxies and the Go net/http client itself never coalesce frames.
func setSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Connection", "keep-alive")
}

// decorateKnowledgeDocument rewrites each passing EventKnowledgeDocument
// event to add an export_url field when one is already known for the
// session, without otherwise touching the channel. SPEC_FULL.md §4.16:
// the field is never populated eagerly — only once /export has actually
// been called for this session. ctx is the request context: once it's
// done, the forwarding goroutine drops the rest of events rather than
// blocking forever on an out send nobody is left to receive.
func decorateKnowledgeDocument(ctx context.Context, events <-chan runner.Event, lookup func() (string, bool)) <-chan runner.Event {
	out := make(chan runner.Event)
	go func() {
		defer close(out)
		for ev := range events {
			if ev.Type == runner.EventKnowledgeDocument {
				if url, ok := lookup(); ok {
					data := make(map[string]any, len(ev.Data)+1)
					for k, v := range ev.Data {
						data[k] = v
					}
					data["export_url"] = url
					ev.Data = data
				}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// writeSSE drains events onto w, flushing after every frame, until the
// channel closes or the request's context is done. It never returns an
// error: a write failure after headers are already sent cannot be
// reported to the client any other way, so it simply stops draining and
// lets the handler return.
func writeSSE(w http.ResponseWriter, r *http.Request, events <-chan runner.Event) {
	flusher, _ := w.(http.Flusher)
	ctx := r.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			frame, err := json.Marshal(sseEvent{Type: ev.Type, Data: ev.Data})
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if _, err := w.Write(frame); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-ctx.Done():
			return
		}
	}
}
