package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/llm"
	"github.com/knowledgeforge/forge/internal/forge/runner"
	"github.com/knowledgeforge/forge/internal/forge/session"
	"github.com/knowledgeforge/forge/internal/forge/store"
	"github.com/knowledgeforge/forge/internal/forge/tools"
)

type fakeStream struct{ resp *llm.Response }

func (f *fakeStream) Events() <-chan llm.StreamEvent {
	ch := make(chan llm.StreamEvent)
	close(ch)
	return ch
}
func (f *fakeStream) Final() (*llm.Response, error) { return f.resp, nil }

// endTurnClient always stops immediately with a plain text reply, mirroring
// session/service_test.go's fixture of the same name.
type endTurnClient struct{ calls int }

func (c *endTurnClient) StreamMessage(ctx context.Context, req llm.Request) (llm.Stream, error) {
	c.calls++
	return &fakeStream{resp: &llm.Response{
		StopReason: llm.StopEndTurn,
		Content:    []forge.ContentBlock{{Type: forge.BlockText, Text: "noted"}},
	}}, nil
}

func newTestForgeServer(t *testing.T) (*ForgeServer, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	r := runner.New(runner.Config{
		Client:     &endTurnClient{},
		Dispatcher: tools.NewDispatcher(),
		Store:      st,
		Research: func(ctx context.Context, query string, purpose forge.ResearchPurpose, instructions string, maxResults int) (tools.ResearchResult, error) {
			return tools.ResearchResult{Empty: true}, nil
		},
	})
	svc := session.New(st, r, session.Config{})
	return NewForgeServer(svc, st, ForgeServerConfig{}), st
}

func withPathValue(r *http.Request, key, value string) *http.Request {
	r.SetPathValue(key, value)
	return r
}

func TestHandleCreateSession_ValidatesProblemLength(t *testing.T) {
	s, _ := newTestForgeServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(`{"problem":"too short"}`))
	w := httptest.NewRecorder()
	s.handleCreateSession(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a too-short problem, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateGetListCancelDelete(t *testing.T) {
	s, _ := newTestForgeServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(
		`{"problem":"why do deploys fail disproportionately on Fridays across teams"}`))
	createW := httptest.NewRecorder()
	s.handleCreateSession(createW, createReq)
	if createW.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", createW.Code, createW.Body.String())
	}
	var created sessionResponse
	if err := json.Unmarshal(createW.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" || created.Status != forge.StatusDecomposing {
		t.Fatalf("unexpected create response: %+v", created)
	}

	getReq := withPathValue(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.ID, nil), "id", created.ID)
	getW := httptest.NewRecorder()
	s.handleGetSession(getW, getReq)
	if getW.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d: %s", getW.Code, getW.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	listW := httptest.NewRecorder()
	s.handleListSessions(listW, listReq)
	var listBody struct {
		Sessions []sessionResponse `json:"sessions"`
	}
	if err := json.Unmarshal(listW.Body.Bytes(), &listBody); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listBody.Sessions) != 1 {
		t.Fatalf("expected 1 listed session, got %d", len(listBody.Sessions))
	}

	cancelReq := withPathValue(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+created.ID+"/cancel", nil), "id", created.ID)
	cancelW := httptest.NewRecorder()
	s.handleCancelSession(cancelW, cancelReq)
	if cancelW.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d: %s", cancelW.Code, cancelW.Body.String())
	}

	cancelAgainReq := withPathValue(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+created.ID+"/cancel", nil), "id", created.ID)
	cancelAgainW := httptest.NewRecorder()
	s.handleCancelSession(cancelAgainW, cancelAgainReq)
	if cancelAgainW.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling an already-cancelled session, got %d", cancelAgainW.Code)
	}

	deleteReq := withPathValue(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+created.ID, nil), "id", created.ID)
	deleteW := httptest.NewRecorder()
	s.handleDeleteSession(deleteW, deleteReq)
	if deleteW.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on delete, got %d", deleteW.Code)
	}
}

func TestHandleGetSession_UnknownID(t *testing.T) {
	s, _ := newTestForgeServer(t)
	req := withPathValue(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	s.handleGetSession(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandleUserInput_RejectsUnknownReviewType(t *testing.T) {
	s, _ := newTestForgeServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(
		`{"problem":"why do deploys fail disproportionately on Fridays across teams"}`))
	createW := httptest.NewRecorder()
	s.handleCreateSession(createW, createReq)
	var created sessionResponse
	_ = json.Unmarshal(createW.Body.Bytes(), &created)

	req := withPathValue(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+created.ID+"/user-input",
		bytes.NewBufferString(`{"type":"not_a_real_type"}`)), "id", created.ID)
	w := httptest.NewRecorder()
	s.handleUserInput(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown review type, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleStream_EmitsDoneEvent(t *testing.T) {
	s, _ := newTestForgeServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(
		`{"problem":"why do deploys fail disproportionately on Fridays across teams"}`))
	createW := httptest.NewRecorder()
	s.handleCreateSession(createW, createReq)
	var created sessionResponse
	_ = json.Unmarshal(createW.Body.Bytes(), &created)

	req := withPathValue(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+created.ID+"/stream", nil), "id", created.ID)
	w := httptest.NewRecorder()
	s.handleStream(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected SSE content type, got %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"type":"done"`) {
		t.Errorf("expected a done event in the SSE body, got: %s", body)
	}
}

func TestDecorateKnowledgeDocument_AddsExportURLOnlyWhenKnown(t *testing.T) {
	in := make(chan runner.Event, 2)
	in <- runner.Event{Type: runner.EventAgentText, Data: map[string]any{"text": "hi"}}
	in <- runner.Event{Type: runner.EventKnowledgeDocument, Data: map[string]any{"markdown": "# doc"}}
	close(in)

	known := false
	out := decorateKnowledgeDocument(context.Background(), in, func() (string, bool) {
		if known {
			return "/api/v1/sessions/s1/export/e1", true
		}
		return "", false
	})

	first := <-out
	if _, ok := first.Data["export_url"]; ok {
		t.Fatalf("non-knowledge_document event should never carry export_url")
	}
	known = true
	second := <-out
	if url, _ := second.Data["export_url"].(string); url != "/api/v1/sessions/s1/export/e1" {
		t.Fatalf("expected export_url to be injected once known, got %v", second.Data["export_url"])
	}
}

func TestHandleExport_ConflictsBeforeDocumentReady(t *testing.T) {
	s, _ := newTestForgeServer(t)

	createReq := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", bytes.NewBufferString(
		`{"problem":"why do deploys fail disproportionately on Fridays across teams"}`))
	createW := httptest.NewRecorder()
	s.handleCreateSession(createW, createReq)
	var created sessionResponse
	_ = json.Unmarshal(createW.Body.Bytes(), &created)

	req := withPathValue(httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+created.ID+"/export", nil), "id", created.ID)
	w := httptest.NewRecorder()
	s.handleExport(w, req)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 before the document is ready, got %d: %s", w.Code, w.Body.String())
	}
}
