package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/knowledgeforge/forge/internal/forge"
	"github.com/knowledgeforge/forge/internal/forge/session"
	"github.com/knowledgeforge/forge/internal/forge/tools"
)

// PostgresConfig holds CockroachDB/Postgres connection settings, the same
// field set and defaults as internal/sessions.CockroachConfig.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig mirrors internal/sessions.DefaultCockroachConfig's
// values, since this is the same CockroachDB cluster in production.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            26257,
		User:            "root",
		Database:        "forge",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements both tools.Persister and session.Store over a
// CockroachDB/Postgres connection.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ session.Store   = (*PostgresStore)(nil)
	_ tools.Persister = (*PostgresStore)(nil)
)

// NewPostgresStore opens the connection, verifies it, and ensures the
// schema exists.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		int(cfg.ConnectTimeout.Seconds()),
	)
	return NewPostgresStoreFromDSN(dsn, cfg)
}

// NewPostgresStoreFromDSN opens a connection from a raw DSN/URL, for
// callers that already assemble one (e.g. from a single DATABASE_URL env
// var) rather than discrete fields.
func NewPostgresStoreFromDSN(dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if _, err := db.ExecContext(ctx, PostgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

// scanSessionRow reads one forge_sessions row via scan (either
// *sql.Row.Scan or *sql.Rows.Scan — both share this signature), decoding
// the JSONB history/snapshot columns in place.
func scanSessionRow(scan func(dest ...any) error) (*forge.Session, error) {
	var sess forge.Session
	var status, locale string
	var history, snapshot []byte
	var resolvedAt sql.NullTime

	err := scan(&sess.ID, &sess.ProblemText, &status, &locale,
		&sess.Usage.InputTokens, &sess.Usage.OutputTokens, &sess.Usage.CacheCreation, &sess.Usage.CacheRead,
		&history, &snapshot, &sess.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	sess.Status = forge.SessionStatus(status)
	sess.Locale = forge.Locale(locale)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		sess.ResolvedAt = &t
	}
	if err := unmarshalSessionBlobs(&sess, history, snapshot); err != nil {
		return nil, err
	}
	return &sess, nil
}

// --- session.Store ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *forge.Session) error {
	history, snapshot, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forge_sessions
			(id, problem_text, status, locale, usage_input_tokens, usage_output_tokens,
			 usage_cache_creation, usage_cache_read, message_history, state_snapshot, created_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, sess.ID, sess.ProblemText, string(sess.Status), string(sess.Locale),
		sess.Usage.InputTokens, sess.Usage.OutputTokens, sess.Usage.CacheCreation, sess.Usage.CacheRead,
		history, snapshot, sess.CreatedAt, sess.ResolvedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*forge.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, problem_text, status, locale, usage_input_tokens, usage_output_tokens,
		       usage_cache_creation, usage_cache_read, message_history, state_snapshot, created_at, resolved_at
		FROM forge_sessions WHERE id = $1
	`, id)
	sess, err := scanSessionRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, sess *forge.Session) error {
	history, snapshot, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE forge_sessions
		SET status=$1, locale=$2, usage_input_tokens=$3, usage_output_tokens=$4,
		    usage_cache_creation=$5, usage_cache_read=$6, message_history=$7, state_snapshot=$8, resolved_at=$9
		WHERE id=$10
	`, string(sess.Status), string(sess.Locale), sess.Usage.InputTokens, sess.Usage.OutputTokens,
		sess.Usage.CacheCreation, sess.Usage.CacheRead, history, snapshot, sess.ResolvedAt, sess.ID)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSessions(ctx context.Context, opts session.ListOptions) ([]*forge.Session, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, problem_text, status, locale, usage_input_tokens, usage_output_tokens,
		       usage_cache_creation, usage_cache_read, message_history, state_snapshot, created_at, resolved_at
		FROM forge_sessions
	`
	args := []any{}
	argN := 1
	if opts.Status != "" {
		query += fmt.Sprintf(" WHERE status = $%d", argN)
		args = append(args, string(opts.Status))
		argN++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*forge.Session
	for rows.Next() {
		sess, err := scanSessionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM forge_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// --- tools.Persister ---

func (s *PostgresStore) CreateReframing(ctx context.Context, sessionID string, r forge.Reframing) error {
	opts, err := json.Marshal(r.ResonanceOptions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forge_reframings (id, session_id, text, type, reasoning, resonance_options, selected_option, selected)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, uuid.NewString(), sessionID, r.Text, r.Type, r.Reasoning, opts, r.SelectedOption, r.Selected)
	return err
}

func (s *PostgresStore) CreateCrossDomainAnalogy(ctx context.Context, sessionID string, a forge.CrossDomainAnalogy) error {
	opts, err := json.Marshal(a.ResonanceOptions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forge_cross_domain_analogies
			(id, session_id, domain, target_application, description, semantic_distance, resonance_options, selected_option, resonated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, uuid.NewString(), sessionID, a.Domain, a.TargetApplication, a.Description, a.SemanticDistance,
		opts, a.SelectedOption, a.Resonated)
	return err
}

func (s *PostgresStore) CreateContradiction(ctx context.Context, sessionID string, c forge.Contradiction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_contradictions (id, session_id, property_a, property_b, description)
		VALUES ($1,$2,$3,$4,$5)
	`, uuid.NewString(), sessionID, c.PropertyA, c.PropertyB, c.Description)
	return err
}

func (s *PostgresStore) CreateClaim(ctx context.Context, sessionID string, claim forge.Claim) (string, error) {
	id := claim.ClaimID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_claims
			(id, session_id, claim_text, thesis_text, antithesis_text, falsifiability_condition,
			 confidence, builds_on_claim_id, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
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

func (s *PostgresStore) CreateEvidence(ctx context.Context, claimID, sessionID string, ev forge.Evidence) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_evidence (id, claim_id, session_id, title, url, summary, type)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, uuid.NewString(), claimID, sessionID, ev.Title, ev.URL, ev.Summary, string(ev.Type))
	return err
}

func (s *PostgresStore) UpdateClaimScores(ctx context.Context, claimID string, scores forge.ClaimScores) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE forge_claims
		SET score_novelty=$1, score_groundedness=$2, score_falsifiability=$3, score_significance=$4
		WHERE id=$5
	`, scores.Novelty, scores.Groundedness, scores.Falsifiability, scores.Significance, claimID)
	return err
}

func (s *PostgresStore) UpdateClaimVerdict(ctx context.Context, claimID string, status forge.ClaimStatus, qualification, rejectionReason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE forge_claims SET status=$1, qualification=$2, rejection_reason=$3 WHERE id=$4
	`, string(status), qualification, rejectionReason, claimID)
	return err
}

func (s *PostgresStore) CreateEdge(ctx context.Context, sessionID string, edge forge.GraphEdge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_graph_edges (id, session_id, source, target, type)
		VALUES ($1,$2,$3,$4,$5)
	`, edge.ID, sessionID, edge.Source, edge.Target, string(edge.Type))
	return err
}

func (s *PostgresStore) ClaimExists(ctx context.Context, claimID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM forge_claims WHERE id = $1)`, claimID).Scan(&exists)
	return exists, err
}

// CreateExport persists the CRYSTALLIZE markdown for sessionID and returns
// a new export id, per SPEC_FULL.md §4.16's export endpoint.
func (s *PostgresStore) CreateExport(ctx context.Context, sessionID, markdown string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_exports (id, session_id, markdown) VALUES ($1,$2,$3)
	`, id, sessionID, markdown)
	if err != nil {
		return "", fmt.Errorf("create export: %w", err)
	}
	return id, nil
}

// GetExport returns the markdown stored under exportID.
func (s *PostgresStore) GetExport(ctx context.Context, exportID string) (string, error) {
	var markdown string
	err := s.db.QueryRowContext(ctx, `SELECT markdown FROM forge_exports WHERE id = $1`, exportID).Scan(&markdown)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get export: %w", err)
	}
	return markdown, nil
}

func (s *PostgresStore) CreateUserInsight(ctx context.Context, sessionID, insightText string, evidenceURLs []string, relatesTo string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forge_claims (id, session_id, claim_text, builds_on_claim_id, contributed_by, status)
		VALUES ($1,$2,$3,$4,'user','validated')
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
