package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/knowledgeforge/forge/internal/forge/session"
	"github.com/knowledgeforge/forge/internal/forge/store"
	"github.com/knowledgeforge/forge/internal/forge/tools"
)

// reviewStore is what the /user-input review path needs beyond export
// archival: the claim/edge/evidence Persister surface that verdict
// application and the add_insight build decision write through to.
type reviewStore interface {
	store.ExportStore
	tools.Persister
}

// ForgeServerConfig configures a ForgeServer, the same sanitize-on-construct
// idiom internal/tasks.SchedulerConfig and session.Config use.
type ForgeServerConfig struct {
	Host string
	Port int

	// CORSOrigins lists the allowed Origin values for the HTTP surface,
	// spec.md §6's "CORS origin list" environment setting.
	CORSOrigins []string

	Logger *slog.Logger
}

func (c ForgeServerConfig) sanitized() ForgeServerConfig {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "forge-gateway")
	}
	return c
}

// ForgeServer serves spec.md §6's HTTP/SSE surface over a session.Service.
// It is named distinctly from the channel gateway's own Server (server.go)
// since both currently live in this package; ForgeServer owns a separate
// http.Server and net.Listener and never touches the channel gateway's
// mux.
type ForgeServer struct {
	cfg     ForgeServerConfig
	service *session.Service
	store   reviewStore

	// exportURLs tracks the most recent export's download_url per
	// session, so a later knowledge_document SSE event can carry it.
	// SPEC_FULL.md §4.16: populated only after the first successful
	// export call, never eagerly.
	exportURLsMu sync.Mutex
	exportURLs   map[string]string

	httpServer *http.Server
	listener   net.Listener
}

// NewForgeServer constructs a ForgeServer. st may be nil, in which case
// the export endpoint reports 503 and review-input verdict/insight
// write-through is skipped.
func NewForgeServer(svc *session.Service, st reviewStore, cfg ForgeServerConfig) *ForgeServer {
	return &ForgeServer{cfg: cfg.sanitized(), service: svc, store: st, exportURLs: map[string]string{}}
}

func (s *ForgeServer) rememberExportURL(sessionID, url string) {
	s.exportURLsMu.Lock()
	defer s.exportURLsMu.Unlock()
	s.exportURLs[sessionID] = url
}

func (s *ForgeServer) exportURLFor(sessionID string) (string, bool) {
	s.exportURLsMu.Lock()
	defer s.exportURLsMu.Unlock()
	url, ok := s.exportURLs[sessionID]
	return url, ok
}

// Start builds the mux and begins serving in the background. It returns
// once the listener is bound, mirroring startHTTPServer's
// listen-then-goroutine-Serve sequencing in http_server.go.
func (s *ForgeServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/cancel", s.handleCancelSession)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/stream", s.handleStream)
	mux.HandleFunc("POST /api/v1/sessions/{id}/user-input", s.handleUserInput)
	mux.HandleFunc("GET /api/v1/sessions/{id}/graph", s.handleGraph)
	mux.HandleFunc("POST /api/v1/sessions/{id}/research-directive", s.handleResearchDirective)
	mux.HandleFunc("POST /api/v1/sessions/{id}/export", s.handleExport)
	mux.HandleFunc("GET /api/v1/sessions/{id}/export/{exportID}", s.handleDownloadExport)

	var handler http.Handler = mux
	handler = s.withCORS(handler)

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("forge gateway listen: %w", err)
	}
	s.httpServer = server
	s.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.cfg.Logger.Error("forge gateway server error", "error", err)
		}
	}()

	s.cfg.Logger.Info("forge gateway started", "addr", addr)
	return nil
}

// Stop gracefully shuts the server down.
func (s *ForgeServer) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.cfg.Logger.Warn("forge gateway shutdown error", "error", err)
	}
	s.httpServer = nil
	s.listener = nil
}

func (s *ForgeServer) withCORS(next http.Handler) http.Handler {
	allowed := map[string]bool{}
	for _, o := range s.cfg.CORSOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
