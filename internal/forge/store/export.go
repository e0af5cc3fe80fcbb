package store

import "context"

// ExportStore persists the CRYSTALLIZE markdown document for a session
// once the user explicitly requests an export (SPEC_FULL.md §4.16).
// PostgresStore and SQLiteStore both implement it on the same connection
// as session.Store and tools.Persister.
type ExportStore interface {
	CreateExport(ctx context.Context, sessionID, markdown string) (string, error)
	GetExport(ctx context.Context, exportID string) (string, error)
}
