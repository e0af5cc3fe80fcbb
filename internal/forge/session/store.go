// Package session owns the lifecycle of investigation sessions: creation,
// listing, lookup, cancellation, and deletion, plus the process-wide
// session_id -> ForgeState map the AgentRunner needs to mutate in place
// across turns.
package session

import (
	"context"

	"github.com/knowledgeforge/forge/internal/forge"
)

// Store persists Session rows. Unlike tools.Persister (which owns the
// claim/edge/evidence graph), Store owns the session envelope itself:
// problem text, status, locale, token usage, message history, and the
// last committed ForgeState snapshot.
type Store interface {
	CreateSession(ctx context.Context, sess *forge.Session) error
	GetSession(ctx context.Context, id string) (*forge.Session, error)
	UpdateSession(ctx context.Context, sess *forge.Session) error
	ListSessions(ctx context.Context, opts ListOptions) ([]*forge.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// ListOptions filters and paginates ListSessions, mirroring
// sessions.ListOptions's Channel/Limit/Offset shape with Status in place
// of Channel since this package has no channel concept.
type ListOptions struct {
	Status forge.SessionStatus
	Limit  int
	Offset int
}
