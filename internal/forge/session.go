package forge

import "time"

// TokenUsage accounts the four cumulative counters spec.md §3 tracks on
// Session: input, output, cache-creation, and cache-read tokens.
type TokenUsage struct {
	InputTokens   int `json:"input_tokens"`
	OutputTokens  int `json:"output_tokens"`
	CacheCreation int `json:"cache_creation_tokens"`
	CacheRead     int `json:"cache_read_tokens"`
}

// Add accumulates delta into u in place.
func (u *TokenUsage) Add(delta TokenUsage) {
	u.InputTokens += delta.InputTokens
	u.OutputTokens += delta.OutputTokens
	u.CacheCreation += delta.CacheCreation
	u.CacheRead += delta.CacheRead
}

// Session is the aggregate root spec.md §3 describes: the durable
// envelope around one investigation. It is created and destroyed by
// SessionService and mutated only by SessionService and the AgentRunner;
// tool handlers never see it directly, only the ForgeState it carries.
type Session struct {
	ID          string
	ProblemText string
	Status      SessionStatus
	Locale      Locale

	Usage TokenUsage

	// MessageHistory is the opaque list of messages sent to, and received
	// from, the LLM across the session's lifetime. The AgentRunner reads
	// and appends to this; nothing else interprets its contents.
	MessageHistory []Message

	// StateSnapshot is the last ForgeState snapshot committed atomically
	// with MessageHistory, per spec.md §4.10's pause/resume contract.
	StateSnapshot Snapshot

	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// NewSession constructs a fresh Session at DECOMPOSE, round 0, for the
// given problem text and locale.
func NewSession(id, problemText string, locale Locale) *Session {
	return &Session{
		ID:          id,
		ProblemText: problemText,
		Status:      StatusDecomposing,
		Locale:      locale,
		CreatedAt:   time.Now(),
	}
}

// Resolve marks the session resolved (crystallized or cancelled) at t.
func (sess *Session) Resolve(status SessionStatus, t time.Time) {
	sess.Status = status
	sess.ResolvedAt = &t
}

// SyncFromState mirrors the subset of ForgeState the Session's own fields
// duplicate (status, snapshot) after a turn completes.
func (sess *Session) SyncFromState(s *ForgeState) {
	sess.Status = StatusForPhase(s.CurrentPhase)
	sess.StateSnapshot = s.ToSnapshot()
}
