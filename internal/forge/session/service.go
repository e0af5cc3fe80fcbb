package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/runner"
)

// Config configures a Service. Zero values are replaced by defaults in
// New, the same sanitize-on-construct idiom runner.Config and
// tasks.SchedulerConfig use.
type Config struct {
	// SnapshotInterval is how often every in-memory session is
	// persisted regardless of turn activity, so a crash between turns
	// loses at most one interval's worth of state. Defaults to 30s.
	SnapshotInterval time.Duration

	Logger *slog.Logger
}

func (c Config) sanitized() Config {
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default().With("component", "forge-session-service")
	}
	return c
}

// entry is the in-memory record for one live session: its Session
// envelope, its mutable ForgeState, and a lock serializing runner turns.
// Per spec.md §5, exactly one runner task may be active for a session at
// a time; entry.turnMu is that serialization point.
type entry struct {
	turnMu sync.Mutex

	sess  *forge.Session
	state *forge.ForgeState
}

// Service owns the session_id -> ForgeState map and wires each turn
// through the AgentRunner. It restores a session's in-memory state from
// the store on first access after a restart, and evicts it from memory
// immediately on delete while the durable cascade happens in the
// background, per spec.md §4.12.
type Service struct {
	store  Store
	runner *runner.Runner
	cfg    Config

	mu      sync.Mutex
	entries map[string]*entry

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Service. It does not start the background snapshot
// sweep; call Start for that.
func New(store Store, r *runner.Runner, cfg Config) *Service {
	return &Service{
		store:   store,
		runner:  r,
		cfg:     cfg.sanitized(),
		entries: map[string]*entry{},
	}
}

// Start begins the periodic snapshot sweep. It returns immediately; the
// sweep runs until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	c := cron.New(cron.WithParser(cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)))
	spec := fmt.Sprintf("@every %s", s.cfg.SnapshotInterval)
	if _, err := c.AddFunc(spec, func() { s.snapshotAll(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule snapshot sweep: %w", err)
	}
	s.cron = c
	c.Start()

	s.cfg.Logger.Info("session service started", "snapshot_interval", s.cfg.SnapshotInterval)
	return nil
}

// Stop halts the snapshot sweep and waits for in-flight background
// deletes to finish.
func (s *Service) Stop() {
	if s.cron != nil {
		stopCtx := s.cron.Stop()
		<-stopCtx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// snapshotAll persists every live session's current envelope, independent
// of turn activity.
func (s *Service) snapshotAll(ctx context.Context) {
	s.mu.Lock()
	live := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		live = append(live, e)
	}
	s.mu.Unlock()

	for _, e := range live {
		e.turnMu.Lock()
		e.sess.SyncFromState(e.state)
		err := s.store.UpdateSession(ctx, e.sess)
		id := e.sess.ID
		e.turnMu.Unlock()
		if err != nil {
			s.cfg.Logger.Error("snapshot sweep failed to persist session", "session_id", id, "error", err)
		}
	}
}

// Create starts a new investigation session at DECOMPOSE, round 0.
func (s *Service) Create(ctx context.Context, problemText string, locale forge.Locale) (*forge.Session, error) {
	sess := forge.NewSession(uuid.NewString(), problemText, locale)
	state := forge.NewForgeState(locale)
	sess.StateSnapshot = state.ToSnapshot()

	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	s.entries[sess.ID] = &entry{sess: sess, state: state}
	s.mu.Unlock()

	return sess, nil
}

// Get returns the session and its live ForgeState, restoring both from
// the store into the in-memory map on first access after a restart.
func (s *Service) Get(ctx context.Context, id string) (*forge.Session, *forge.ForgeState, error) {
	e, err := s.getOrRestore(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return e.sess, e.state, nil
}

func (s *Service) getOrRestore(ctx context.Context, id string) (*entry, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if ok {
		return e, nil
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	state := forge.FromSnapshot(sess.StateSnapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.entries[id]; ok {
		// Another goroutine restored it first while we were loading.
		return existing, nil
	}
	e = &entry{sess: sess, state: state}
	s.entries[id] = e
	return e, nil
}

// List delegates to the store; listing never restores sessions into
// memory, only Get/Submit do.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]*forge.Session, error) {
	return s.store.ListSessions(ctx, opts)
}

// Submit drives one AgentRunner turn for session id with userMessage and
// returns the runner's event stream. The session's per-entry lock is held
// for the turn's full duration, so a second Submit for the same session
// blocks until the first turn reaches a pause, completion, or error.
func (s *Service) Submit(ctx context.Context, id string, userMessage string) (<-chan runner.Event, error) {
	e, err := s.getOrRestore(ctx, id)
	if err != nil {
		return nil, err
	}

	e.turnMu.Lock()
	out := make(chan runner.Event, 16)
	go func() {
		defer e.turnMu.Unlock()
		defer close(out)

		events := s.runner.Run(ctx, e.sess, e.state, userMessage)
		for ev := range events {
			out <- ev
		}

		if err := s.store.UpdateSession(context.WithoutCancel(ctx), e.sess); err != nil {
			s.cfg.Logger.Error("failed to persist session after turn", "session_id", id, "error", err)
		}
	}()
	return out, nil
}

// Cancel marks the session's ForgeState cancelled. The runner only reads
// the flag at iteration and phase boundaries, so this is a best-effort
// signal rather than a synchronous stop, mirroring the distilled source's
// own plain-attribute cancellation (no lock there either).
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		sess, err := s.store.GetSession(ctx, id)
		if err != nil {
			return fmt.Errorf("cancel session %s: %w", id, err)
		}
		sess.Resolve(forge.StatusCancelled, time.Now())
		return s.store.UpdateSession(ctx, sess)
	}
	e.state.Cancelled = true
	return nil
}

// Delete evicts the session from memory and returns immediately; the
// durable cascade delete runs in the background so callers are not
// blocked on it, per spec.md §4.12.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		bg := context.Background()
		if err := s.store.DeleteSession(bg, id); err != nil {
			s.cfg.Logger.Error("background session delete failed", "session_id", id, "error", err)
		}
	}()
	return nil
}
