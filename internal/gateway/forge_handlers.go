package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/ferrors"
	"github.com/knowledgeforge/forge/internal/forge/session"
)

const (
	minProblemLen = 10
	maxProblemLen = 10_000
)

// forgeWriteJSON marshals v as the response body with status code.
func forgeWriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// forgeWriteError renders ferr as the REST envelope spec.md §7 describes.
func forgeWriteError(w http.ResponseWriter, ferr *ferrors.Error) {
	forgeWriteJSON(w, ferr.HTTPStatus, ferr.ToResponse())
}

func isValidLocale(l forge.Locale) bool {
	for _, candidate := range forge.Locales {
		if candidate == l {
			return true
		}
	}
	return false
}

// sessionResponse is the {id, problem, status} shape spec.md §6 names for
// session creation/lookup responses.
type sessionResponse struct {
	ID      string              `json:"id"`
	Problem string              `json:"problem"`
	Status  forge.SessionStatus `json:"status"`
	Locale  forge.Locale        `json:"locale"`
	Usage   forge.TokenUsage    `json:"usage"`
}

func toSessionResponse(sess *forge.Session) sessionResponse {
	return sessionResponse{
		ID:      sess.ID,
		Problem: sess.ProblemText,
		Status:  sess.Status,
		Locale:  sess.Locale,
		Usage:   sess.Usage,
	}
}

type createSessionRequest struct {
	Problem string       `json:"problem"`
	Locale  forge.Locale `json:"locale,omitempty"`
}

func (s *ForgeServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		forgeWriteError(w, ferrors.Validation("INVALID_REQUEST_BODY", "could not read request body"))
		return
	}
	var req createSessionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		forgeWriteError(w, ferrors.Validation("INVALID_REQUEST_BODY", "request body is not valid JSON"))
		return
	}
	problem := strings.TrimSpace(req.Problem)
	if len(problem) < minProblemLen || len(problem) > maxProblemLen {
		forgeWriteError(w, ferrors.Validation("INVALID_PROBLEM_LENGTH", "problem must be between 10 and 10000 characters after trimming"))
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = forge.LocaleEN
	}
	if !isValidLocale(locale) {
		forgeWriteError(w, ferrors.Validation("INVALID_LOCALE", "unknown locale"))
		return
	}

	sess, err := s.service.Create(r.Context(), problem, locale)
	if err != nil {
		forgeWriteError(w, ferrors.Internal(err))
		return
	}
	forgeWriteJSON(w, http.StatusCreated, toSessionResponse(sess))
}

func (s *ForgeServer) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := session.ListOptions{}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			forgeWriteError(w, ferrors.Validation("INVALID_LIMIT", "limit must be an integer"))
			return
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			forgeWriteError(w, ferrors.Validation("INVALID_OFFSET", "offset must be an integer"))
			return
		}
		opts.Offset = n
	}
	if v := q.Get("status"); v != "" {
		opts.Status = forge.SessionStatus(v)
	}

	sessions, err := s.service.List(r.Context(), opts)
	if err != nil {
		forgeWriteError(w, ferrors.Internal(err))
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, toSessionResponse(sess))
	}
	forgeWriteJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *ForgeServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, _, err := s.service.Get(r.Context(), id)
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	forgeWriteJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *ForgeServer) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, _, err := s.service.Get(r.Context(), id)
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	if sess.Status == forge.StatusCrystallized || sess.Status == forge.StatusCancelled {
		forgeWriteError(w, ferrors.Conflict("SESSION_NOT_ACTIVE", "session is not currently active"))
		return
	}
	if err := s.service.Cancel(r.Context(), id); err != nil {
		forgeWriteError(w, ferrors.Internal(err))
		return
	}
	forgeWriteJSON(w, http.StatusOK, map[string]any{"id": id, "status": "cancelled"})
}

func (s *ForgeServer) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.Delete(r.Context(), id); err != nil {
		forgeWriteError(w, ferrors.Internal(err))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *ForgeServer) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	events, err := s.service.Submit(r.Context(), id, "")
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	writeSSE(w, r, decorateKnowledgeDocument(r.Context(), events, func() (string, bool) { return s.exportURLFor(id) }))
}

func (s *ForgeServer) handleUserInput(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		forgeWriteError(w, ferrors.Validation("INVALID_REQUEST_BODY", "could not read request body"))
		return
	}
	in, ferr := parseReviewInput(body)
	if ferr != nil {
		forgeWriteError(w, ferr)
		return
	}

	sess, state, err := s.service.Get(r.Context(), id)
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	if applyReviewInput(r.Context(), in, sess, state, s.store, s.cfg.Logger) {
		sess.MessageHistory = nil
	}

	events, err := s.service.Submit(r.Context(), id, in.toUserMessage())
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	writeSSE(w, r, decorateKnowledgeDocument(r.Context(), events, func() (string, bool) { return s.exportURLFor(id) }))
}

// graphNode/graphLink render the node-link layout shape spec.md §6's
// /graph endpoint returns, node type being the claim's validated / qualified
// / proposed / rejected status.
type graphNode struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	ClaimText  string  `json:"claim_text"`
	Confidence string  `json:"confidence"`
	Novelty    float64 `json:"novelty"`
}

type graphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

func (s *ForgeServer) handleGraph(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	_, state, err := s.service.Get(r.Context(), id)
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	nodes := make([]graphNode, 0, len(state.KnowledgeGraphNodes))
	for _, n := range state.KnowledgeGraphNodes {
		nodes = append(nodes, graphNode{
			ID:         n.ID,
			Type:       string(n.Status),
			ClaimText:  n.ClaimText,
			Confidence: n.Confidence,
			Novelty:    n.Scores.Novelty,
		})
	}
	links := make([]graphLink, 0, len(state.KnowledgeGraphEdges))
	for _, e := range state.KnowledgeGraphEdges {
		links = append(links, graphLink{Source: e.Source, Target: e.Target, Type: string(e.Type)})
	}
	forgeWriteJSON(w, http.StatusOK, map[string]any{"nodes": nodes, "links": links})
}

type researchDirectiveRequest struct {
	DirectiveType string `json:"directive_type"`
	Query         string `json:"query"`
	Domain        string `json:"domain,omitempty"`
}

func (s *ForgeServer) handleResearchDirective(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		forgeWriteError(w, ferrors.Validation("INVALID_REQUEST_BODY", "could not read request body"))
		return
	}
	var req researchDirectiveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		forgeWriteError(w, ferrors.Validation("INVALID_REQUEST_BODY", "request body is not valid JSON"))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		forgeWriteError(w, ferrors.Validation("INVALID_RESEARCH_DIRECTIVE", "query is required"))
		return
	}

	_, state, err := s.service.Get(r.Context(), id)
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	// Best-effort append to the live in-memory state, the same
	// non-atomic signal Service.Cancel uses for its Cancelled flag: the
	// runner only reads ResearchDirectives at loop-iteration boundaries,
	// never mid-iteration, so a write racing a read here cannot corrupt
	// in-flight work, only land one iteration later than requested.
	state.ResearchDirectives = append(state.ResearchDirectives, forge.ResearchDirective{
		DirectiveType: req.DirectiveType,
		Query:         req.Query,
		Domain:        req.Domain,
	})
	forgeWriteJSON(w, http.StatusAccepted, map[string]any{"queued": true})
}

func (s *ForgeServer) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.store == nil {
		forgeWriteError(w, ferrors.Database("export", nil))
		return
	}
	_, state, err := s.service.Get(r.Context(), id)
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("SESSION_NOT_FOUND", "no session with that id"))
		return
	}
	if strings.TrimSpace(state.KnowledgeDocumentMarkdown) == "" {
		forgeWriteError(w, ferrors.Conflict("DOCUMENT_NOT_READY", "knowledge_document_markdown is not set yet"))
		return
	}
	exportID, err := s.store.CreateExport(r.Context(), id, state.KnowledgeDocumentMarkdown)
	if err != nil {
		forgeWriteError(w, ferrors.Database("create_export", err))
		return
	}
	downloadURL := "/api/v1/sessions/" + id + "/export/" + exportID
	s.rememberExportURL(id, downloadURL)
	forgeWriteJSON(w, http.StatusCreated, map[string]any{"download_url": downloadURL})
}

func (s *ForgeServer) handleDownloadExport(w http.ResponseWriter, r *http.Request) {
	exportID := r.PathValue("exportID")
	if s.store == nil {
		forgeWriteError(w, ferrors.Database("export", nil))
		return
	}
	markdown, err := s.store.GetExport(r.Context(), exportID)
	if err != nil {
		forgeWriteError(w, ferrors.NotFound("EXPORT_NOT_FOUND", "no export with that id"))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(markdown))
}
