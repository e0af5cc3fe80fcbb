package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go driver, no cgo

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/session"
	"github.com/knowledgeforge/forge/internal/forge/tools"
)

// SQLiteStore implements tools.Persister and session.Store over SQLite,
// for local runs and tests, the same role internal/memory/backend/sqlitevec.Backend
// plays alongside its Postgres-backed sibling.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ session.Store   = (*SQLiteStore)(nil)
	_ tools.Persister = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (creating if absent) the database file at path —
// ":memory:" is valid for tests — and ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids
	// "database is locked" errors under concurrent access rather than
	// papering over them with a retry loop.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

const sqliteTimeLayout = time.RFC3339Nano

func (s *SQLiteStore) scanSessionRow(scan func(dest ...any) error) (*forge.Session, error) {
	var sess forge.Session
	var status, locale, createdAt string
	var history, snapshot string
	var resolvedAt sql.NullString

	err := scan(&sess.ID, &sess.ProblemText, &status, &locale,
		&sess.Usage.InputTokens, &sess.Usage.OutputTokens, &sess.Usage.CacheCreation, &sess.Usage.CacheRead,
		&history, &snapshot, &createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = forge.SessionStatus(status)
	sess.Locale = forge.Locale(locale)
	sess.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if resolvedAt.Valid && resolvedAt.String != "" {
		t, err := time.Parse(sqliteTimeLayout, resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse resolved_at: %w", err)
		}
		sess.ResolvedAt = &t
	}
	if err := unmarshalSessionBlobs(&sess, []byte(history), []byte(snapshot)); err != nil {
		return nil, err
	}
	return &sess, nil
}

// --- session.Store ---

func (s *SQLiteStore) CreateSession(ctx context.Context, sess *forge.Session) error {
	history, snapshot, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}
	var resolvedAt any
	if sess.ResolvedAt != nil {
		resolvedAt = sess.ResolvedAt.Format(sqliteTimeLayout)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forge_sessions
			(id, problem_text, status, locale, usage_input_tokens, usage_output_tokens,
			 usage_cache_creation, usage_cache_read, message_history, state_snapshot, created_at, resolved_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
	`, sess.ID, sess.ProblemText, string(sess.Status), string(sess.Locale),
		sess.Usage.InputTokens, sess.Usage.OutputTokens, sess.Usage.CacheCreation, sess.Usage.CacheRead,
		string(history), string(snapshot), sess.CreatedAt.Format(sqliteTimeLayout), resolvedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*forge.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, problem_text, status, locale, usage_input_tokens, usage_output_tokens,
		       usage_cache_creation, usage_cache_read, message_history, state_snapshot, created_at, resolved_at
		FROM forge_sessions WHERE id = ?
	`, id)
	sess, err := s.scanSessionRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, sess *forge.Session) error {
	history, snapshot, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}
	var resolvedAt any
	if sess.ResolvedAt != nil {
		resolvedAt = sess.ResolvedAt.Format(sqliteTimeLayout)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE forge_sessions
		SET status=?, locale=?, usage_input_tokens=?, usage_output_tokens=?,
		    usage_cache_creation=?, usage_cache_read=?, message_history=?, state_snapshot=?, resolved_at=?
		WHERE id=?
	`, string(sess.Status), string(sess.Locale), sess.Usage.InputTokens, sess.Usage.OutputTokens,
		sess.Usage.CacheCreation, sess.Usage.CacheRead, string(history), string(snapshot), resolvedAt, sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, opts session.ListOptions) ([]*forge.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, problem_text, status, locale, usage_input_tokens, usage_output_tokens,
		       usage_cache_creation, usage_cache_read, message_history, state_snapshot, created_at, resolved_at
		FROM forge_sessions
	`
	var args []any
	if opts.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*forge.Session
	for rows.Next() {
		sess, err := s.scanSessionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM forge_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// --- tools.Persister ---

func (s *SQLiteStore) CreateReframing(ctx context.Context, sessionID string, r forge.Reframing) error {
	opts, err := json.Marshal(r.ResonanceOptions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forge_reframings (id, session_id, text, type, reasoning, resonance_options, selected_option, selected)
		VALUES (?,?,?,?,?,?,?,?)
	`, uuid.NewString(), sessionID, r.Text, r.Type, r.Reasoning, string(opts), r.SelectedOption, r.Selected)
	return err
}

func (s *SQLiteStore) CreateCrossDomainAnalogy(ctx context.Context, sessionID string, a forge.CrossDomainAnalogy) error {
	opts, err := json.Marshal(a.ResonanceOptions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forge_cross_domain_analogies
			(id, session_id, domain, target_application, description, semantic_distance, resonance_options, selected_option, resonated)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, uuid.NewString(), sessionID, a.Domain, a.TargetApplication, a.Description, a.SemanticDistance,
		string(opts), a.SelectedOption, a.Resonated)
	return err
}

func (s *SQLiteStore) CreateContradiction(ctx context.Context, sessionID string, c forge.Contradiction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_contradictions (id, session_id, property_a, property_b, description)
		VALUES (?,?,?,?,?)
	`, uuid.NewString(), sessionID, c.PropertyA, c.PropertyB, c.Description)
	return err
}

func (s *SQLiteStore) CreateClaim(ctx context.Context, sessionID string, claim forge.Claim) (string, error) {
	id := claim.ClaimID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_claims
			(id, session_id, claim_text, thesis_text, antithesis_text, falsifiability_condition,
			 confidence, builds_on_claim_id, status)
		VALUES (?,?,?,?,?,?,?,?,?)
	`, id, sessionID, claim.ClaimText, claim.ThesisText, claim.AntithesisText,
		claim.FalsifiabilityCondition, claim.Confidence, claim.BuildsOnClaimID, "proposed")
	if err != nil {
		return "", err
	}
	for _, ev := range claim.Evidence {
		if err := s.CreateEvidence(ctx, id, sessionID, ev); err != nil {
			return id, err
		}
	}
	return id, nil
}

func (s *SQLiteStore) CreateEvidence(ctx context.Context, claimID, sessionID string, ev forge.Evidence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_evidence (id, claim_id, session_id, title, url, summary, type)
		VALUES (?,?,?,?,?,?,?)
	`, uuid.NewString(), claimID, sessionID, ev.Title, ev.URL, ev.Summary, string(ev.Type))
	return err
}

func (s *SQLiteStore) UpdateClaimScores(ctx context.Context, claimID string, scores forge.ClaimScores) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE forge_claims
		SET score_novelty=?, score_groundedness=?, score_falsifiability=?, score_significance=?
		WHERE id=?
	`, scores.Novelty, scores.Groundedness, scores.Falsifiability, scores.Significance, claimID)
	return err
}

func (s *SQLiteStore) UpdateClaimVerdict(ctx context.Context, claimID string, status forge.ClaimStatus, qualification, rejectionReason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE forge_claims SET status=?, qualification=?, rejection_reason=? WHERE id=?
	`, string(status), qualification, rejectionReason, claimID)
	return err
}

func (s *SQLiteStore) CreateEdge(ctx context.Context, sessionID string, edge forge.GraphEdge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_graph_edges (id, session_id, source, target, type)
		VALUES (?,?,?,?,?)
	`, edge.ID, sessionID, edge.Source, edge.Target, string(edge.Type))
	return err
}

func (s *SQLiteStore) ClaimExists(ctx context.Context, claimID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM forge_claims WHERE id = ?)`, claimID).Scan(&exists)
	return exists != 0, err
}

// CreateExport persists the CRYSTALLIZE markdown for sessionID and returns
// a new export id, per SPEC_FULL.md §4.16's export endpoint.
func (s *SQLiteStore) CreateExport(ctx context.Context, sessionID, markdown string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_exports (id, session_id, markdown) VALUES (?,?,?)
	`, id, sessionID, markdown)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	return id, nil
}

// GetExport returns the markdown stored under exportID.
func (s *SQLiteStore) GetExport(ctx context.Context, exportID string) (string, error) {
	var markdown string
	err := s.db.QueryRowContext(ctx, `SELECT markdown FROM forge_exports WHERE id = ?`, exportID).Scan(&markdown)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get export: %w", err)
	}
	return markdown, nil
}

func (s *SQLiteStore) CreateUserInsight(ctx context.Context, sessionID, insightText string, evidenceURLs []string, relatesTo string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_claims (id, session_id, claim_text, builds_on_claim_id, contributed_by, status)
		VALUES (?,?,?,?,'user','validated')
	`, id, sessionID, insightText, relatesTo)
	if err != nil {
		return "", err
	}
	for _, url := range evidenceURLs {
		if err := s.CreateEvidence(ctx, id, sessionID, forge.Evidence{URL: url, Type: forge.EvidenceContextual}); err != nil {
			return id, err
		}
	}
	return id, nil
}
