package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ForgeConfig is the configuration aggregate for the knowledge-forge
// server, analogous to Config but scoped to the sub-concerns
// SPEC_FULL.md names rather than the channel-bot surface the rest of
// this package configures.
type ForgeConfig struct {
	Server        ForgeServerConfigFile    `yaml:"server"`
	Database      ForgeDatabaseConfig      `yaml:"database"`
	LLM           ForgeLLMConfig           `yaml:"llm"`
	Session       ForgeSessionConfig       `yaml:"session"`
	Observability ForgeObservabilityConfig `yaml:"observability"`
	Export        ForgeExportConfig        `yaml:"export"`
}

// ForgeServerConfigFile configures the HTTP/SSE gateway's listen address
// and CORS policy.
type ForgeServerConfigFile struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	CORSOrigins    []string      `yaml:"cors_origins"`
	LogLevel       string        `yaml:"log_level"`
	LogFormat      string        `yaml:"log_format"` // "json" or "text"
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
}

type ForgeDatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"
	URL    string `yaml:"url"`
}

// ForgeLLMConfig names the primary model used by AgentRunner and the
// distinct, typically cheaper model used by the research sub-agent,
// per SPEC_FULL.md's two-model split.
type ForgeLLMConfig struct {
	Provider       string        `yaml:"provider"` // "anthropic" or "openai"
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	PrimaryModel   string        `yaml:"primary_model"`
	ResearchModel  string        `yaml:"research_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
}

type ForgeSessionConfig struct {
	MaxRounds        int           `yaml:"max_rounds"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// ForgeObservabilityConfig configures the prometheus registry's listen
// surface; the registry itself lives in internal/forge/metrics.
type ForgeObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`

	// TracingEndpoint is the OTLP gRPC collector address (e.g.
	// "localhost:4317"). Empty disables tracing; observability.NewTracer
	// itself already treats an empty endpoint as a no-op tracer, so this
	// is passed through unconditionally rather than gated separately.
	TracingEndpoint   string  `yaml:"tracing_endpoint"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate"`
}

// ForgeExportConfig selects where CRYSTALLIZE's knowledge document export
// is archived. Backend "database" (the default) stores the markdown
// alongside the session in whatever ForgeDatabaseConfig.Driver points at;
// "s3" archives it to an S3-compatible bucket instead, per SPEC_FULL.md
// §4.14's object-storage wiring.
type ForgeExportConfig struct {
	Backend         string `yaml:"backend"` // "database" or "s3"
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// LoadForgeConfig reads path (resolving $include directives and
// expanding environment variables the way loader.go's LoadRaw does),
// decodes it into a ForgeConfig, applies environment-variable
// overrides, defaults, and validation.
func LoadForgeConfig(path string) (*ForgeConfig, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}

	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}
	var cfg ForgeConfig
	decoder := yaml.NewDecoder(strings.NewReader(string(payload)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: expected single document")
	}

	applyForgeEnvOverrides(&cfg)
	applyForgeDefaults(&cfg)
	if err := validateForgeConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyForgeEnvOverrides(cfg *ForgeConfig) {
	if cfg == nil {
		return
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_HOST")); v != "" {
		cfg.Server.Host = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_PORT")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.Database.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_LLM_API_KEY")); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_PRIMARY_MODEL")); v != "" {
		cfg.LLM.PrimaryModel = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_RESEARCH_MODEL")); v != "" {
		cfg.LLM.ResearchModel = v
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_REQUEST_TIMEOUT")); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.LLM.RequestTimeout = parsed
		}
	}
	if v := strings.TrimSpace(os.Getenv("FORGE_SESSION_MAX_ROUNDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxRounds = parsed
		}
	}
}

func applyForgeDefaults(cfg *ForgeConfig) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = "json"
	}
	if cfg.Server.ReloadDebounce <= 0 {
		cfg.Server.ReloadDebounce = 250 * time.Millisecond
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 8192
	}
	if cfg.LLM.RequestTimeout <= 0 {
		cfg.LLM.RequestTimeout = 120 * time.Second
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 3
	}
	if cfg.Session.MaxRounds == 0 {
		cfg.Session.MaxRounds = 40
	}
	if cfg.Session.SnapshotInterval <= 0 {
		cfg.Session.SnapshotInterval = 30 * time.Second
	}
}

func validateForgeConfig(cfg *ForgeConfig) error {
	var issues []string
	if cfg.Database.URL == "" && cfg.Database.Driver == "postgres" {
		issues = append(issues, "database.url is required when database.driver is postgres")
	}
	if cfg.LLM.Provider != "anthropic" && cfg.LLM.Provider != "openai" {
		issues = append(issues, "llm.provider must be \"anthropic\" or \"openai\"")
	}
	if cfg.LLM.APIKey == "" {
		issues = append(issues, "llm.api_key is required (set directly or via FORGE_LLM_API_KEY)")
	}
	if cfg.LLM.PrimaryModel == "" {
		issues = append(issues, "llm.primary_model is required")
	}
	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

// ForgeConfigWatcher reloads a ForgeConfig from disk whenever path
// changes, debounced by Server.ReloadDebounce, mirroring
// internal/skills.Manager's fsnotify watch loop.
type ForgeConfigWatcher struct {
	path    string
	current *ForgeConfig
	mu      sync.RWMutex

	onReload func(*ForgeConfig)

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewForgeConfigWatcher loads path once and returns a watcher holding
// that config; call Start to begin watching for changes.
func NewForgeConfigWatcher(path string, onReload func(*ForgeConfig)) (*ForgeConfigWatcher, error) {
	cfg, err := LoadForgeConfig(path)
	if err != nil {
		return nil, err
	}
	return &ForgeConfigWatcher{path: path, current: cfg, onReload: onReload}, nil
}

// Current returns the most recently loaded config.
func (w *ForgeConfigWatcher) Current() *ForgeConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching w.path for writes, reloading and invoking
// onReload (if set) on each debounced change. A failed reload is
// logged by the caller via onReload's own error handling; the watcher
// keeps serving the last-known-good config.
func (w *ForgeConfigWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("forge config watcher: %w", err)
	}
	if err := watcher.Add(w.path); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("forge config watcher: %w", err)
	}
	w.watcher = watcher
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	debounce := w.Current().Server.ReloadDebounce

	w.wg.Add(1)
	go w.loop(watchCtx, debounce)
	return nil
}

// Close stops the watcher.
func (w *ForgeConfigWatcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *ForgeConfigWatcher) loop(ctx context.Context, debounce time.Duration) {
	defer w.wg.Done()
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	var timerMu sync.Mutex
	var timer *time.Timer
	reload := func() {
		cfg, err := LoadForgeConfig(w.path)
		if err != nil {
			if w.onReload != nil {
				w.onReload(nil)
			}
			return
		}
		w.mu.Lock()
		w.current = cfg
		w.mu.Unlock()
		if w.onReload != nil {
			w.onReload(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, reload)
			timerMu.Unlock()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
