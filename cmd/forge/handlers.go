package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/knowledgeforge/forge/internal/config"
	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/llm"
	"github.com/knowledgeforge/forge/internal/forge/metrics"
	"github.com/knowledgeforge/forge/internal/forge/research"
	"github.com/knowledgeforge/forge/internal/forge/runner"
	"github.com/knowledgeforge/forge/internal/forge/session"
	"github.com/knowledgeforge/forge/internal/forge/store"
	"github.com/knowledgeforge/forge/internal/forge/tools"
	"github.com/knowledgeforge/forge/internal/gateway"
	"github.com/knowledgeforge/forge/internal/observability"
)

// services bundles everything wireServices constructs, so callers (serve,
// session create) can share the same construction path.
type services struct {
	cfg     *config.ForgeConfig
	store   forgeStore
	service *session.Service
	metrics *metrics.Registry // nil when observability.metrics_enabled is false

	tracer         *observability.Tracer
	tracerShutdown func(context.Context) error
}

// forgeStore is the narrow surface this package needs from whichever
// concrete store backs a run: session persistence, tool-handler writes,
// and export storage all on one connection.
type forgeStore interface {
	session.Store
	tools.Persister
	store.ExportStore
	Close() error
}

// hybridExportStore overrides a forgeStore's CreateExport/GetExport with
// an independent ExportStore (an S3 bucket) while everything else —
// session CRUD, tool-handler persistence, Close — still goes through the
// embedded database-backed forgeStore. Lets cfg.Export.Backend swap only
// the export path without a second store construction for session data.
type hybridExportStore struct {
	forgeStore
	exports store.ExportStore
}

func (h hybridExportStore) CreateExport(ctx context.Context, sessionID, markdown string) (string, error) {
	return h.exports.CreateExport(ctx, sessionID, markdown)
}

func (h hybridExportStore) GetExport(ctx context.Context, exportID string) (string, error) {
	return h.exports.GetExport(ctx, exportID)
}

func newLLMClient(cfg config.ForgeLLMConfig) llm.Client {
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIClient(llm.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	default:
		return llm.NewAnthropicClient(llm.AnthropicConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL})
	}
}

func wireServices(configPath string) (*services, error) {
	cfg, err := config.LoadForgeConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var st forgeStore
	switch cfg.Database.Driver {
	case "postgres":
		pst, err := store.NewPostgresStoreFromDSN(cfg.Database.URL, store.DefaultPostgresConfig())
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		st = pst
	default:
		sst, err := store.NewSQLiteStore(cfg.Database.URL)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		st = sst
	}

	if cfg.Export.Backend == "s3" {
		s3Store, err := store.NewS3ExportStore(context.Background(), &store.S3ExportStoreConfig{
			Bucket:          cfg.Export.Bucket,
			Region:          cfg.Export.Region,
			Endpoint:        cfg.Export.Endpoint,
			Prefix:          cfg.Export.Prefix,
			AccessKeyID:     cfg.Export.AccessKeyID,
			SecretAccessKey: cfg.Export.SecretAccessKey,
			UsePathStyle:    cfg.Export.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open s3 export store: %w", err)
		}
		st = hybridExportStore{forgeStore: st, exports: s3Store}
	}

	client := newLLMClient(cfg.LLM)

	// research.DefaultModel names an Anthropic model id; it's only a
	// sensible fallback when talking to the Anthropic client. An OpenAI
	// deployment without an explicit research model reuses the primary
	// model rather than send a Claude model id to the Chat Completions
	// API.
	researchModel := cfg.LLM.ResearchModel
	if researchModel == "" {
		if cfg.LLM.Provider == "openai" {
			researchModel = cfg.LLM.PrimaryModel
		} else {
			researchModel = research.DefaultModel
		}
	}
	subAgent := research.New(research.Config{Client: client, Model: researchModel})

	var reg *metrics.Registry
	if cfg.Observability.MetricsEnabled {
		reg = metrics.New()
	}

	var tracer *observability.Tracer
	var tracerShutdown func(context.Context) error
	if cfg.Observability.TracingEndpoint != "" {
		tracer, tracerShutdown = observability.NewTracer(observability.TraceConfig{
			ServiceName:    "forge",
			ServiceVersion: version,
			Endpoint:       cfg.Observability.TracingEndpoint,
			SamplingRate:   cfg.Observability.TracingSampleRate,
		})
	}

	r := runner.New(runner.Config{
		Client:     client,
		Dispatcher: tools.NewDispatcher(),
		Store:      st,
		Research:   subAgent.AsToolFunc(),
		Metrics:    reg,
		Tracer:     tracer,
		Model:      cfg.LLM.PrimaryModel,
		MaxTokens:  cfg.LLM.MaxTokens,
	})

	svc := session.New(st, r, session.Config{SnapshotInterval: cfg.Session.SnapshotInterval})

	return &services{
		cfg: cfg, store: st, service: svc, metrics: reg,
		tracer: tracer, tracerShutdown: tracerShutdown,
	}, nil
}

// startMetricsServer serves the Prometheus registry's /metrics endpoint on
// its own listener, separate from the REST/SSE gateway, mirroring
// http_server.go's mux.Handle("/metrics", promhttp.Handler()) but on a
// dedicated port since SPEC_FULL.md's observability surface is meant to
// stay reachable even if the main gateway's CORS/auth posture changes.
func startMetricsServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// runServe implements the serve command: wires every dependency, starts
// the session service's snapshot sweep and the HTTP/SSE gateway, and
// blocks until SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	slog.Info("starting forge gateway", "version", version, "commit", commit, "config", configPath, "debug", debug)

	svcs, err := wireServices(configPath)
	if err != nil {
		return err
	}
	defer svcs.store.Close()
	if svcs.tracerShutdown != nil {
		defer svcs.tracerShutdown(context.Background())
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := svcs.service.Start(ctx); err != nil {
		return fmt.Errorf("start session service: %w", err)
	}
	defer svcs.service.Stop()

	srv := gateway.NewForgeServer(svcs.service, svcs.store, gateway.ForgeServerConfig{
		Host:        svcs.cfg.Server.Host,
		Port:        svcs.cfg.Server.Port,
		CORSOrigins: svcs.cfg.Server.CORSOrigins,
	})
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	slog.Info("forge gateway started", "addr", fmt.Sprintf("%s:%d", svcs.cfg.Server.Host, svcs.cfg.Server.Port))

	var metricsSrv *http.Server
	if svcs.metrics != nil {
		metricsSrv = startMetricsServer(svcs.cfg.Observability.MetricsPort)
		slog.Info("metrics server started", "port", svcs.cfg.Observability.MetricsPort)
	}

	<-ctx.Done()
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	srv.Stop(shutdownCtx)
	if metricsSrv != nil {
		metricsSrv.Shutdown(shutdownCtx)
	}

	slog.Info("forge gateway stopped gracefully")
	return nil
}

// runSessionCreate creates a session and drains its first turn's events
// to stdout as newline-delimited JSON, a quick way to exercise the
// pipeline without standing up the HTTP surface.
func runSessionCreate(cmd *cobra.Command, configPath, problem, localeFlag string) error {
	svcs, err := wireServices(configPath)
	if err != nil {
		return err
	}
	defer svcs.store.Close()

	ctx := cmd.Context()
	if err := svcs.service.Start(ctx); err != nil {
		return fmt.Errorf("start session service: %w", err)
	}
	defer svcs.service.Stop()

	sess, err := svcs.service.Create(ctx, problem, forge.Locale(localeFlag))
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	events, err := svcs.service.Submit(ctx, sess.ID, "")
	if err != nil {
		return fmt.Errorf("submit first turn: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session: %s\n", sess.ID)
	enc := json.NewEncoder(out)
	for ev := range events {
		_ = enc.Encode(map[string]any{"type": ev.Type, "data": ev.Data})
	}
	return nil
}
