package store

// PostgresSchema creates every table a Persister/session.Store needs
// against CockroachDB/Postgres, mirroring the inline
// CREATE-TABLE-IF-NOT-EXISTS-on-construct convention
// internal/memory/backend/sqlitevec.Backend.init uses rather than the
// separate migration-file convention internal/sessions.cockroach.go uses
// for its own (unrelated) tables — this package has no accompanying
// migrations directory to hook into, so it follows the simpler sibling
// convention instead.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS forge_sessions (
	id                     TEXT PRIMARY KEY,
	problem_text           TEXT NOT NULL,
	status                 TEXT NOT NULL,
	locale                 TEXT NOT NULL,
	usage_input_tokens     BIGINT NOT NULL DEFAULT 0,
	usage_output_tokens    BIGINT NOT NULL DEFAULT 0,
	usage_cache_creation   BIGINT NOT NULL DEFAULT 0,
	usage_cache_read       BIGINT NOT NULL DEFAULT 0,
	message_history        JSONB NOT NULL DEFAULT '[]',
	state_snapshot         JSONB NOT NULL DEFAULT '{}',
	created_at             TIMESTAMPTZ NOT NULL,
	resolved_at            TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS forge_reframings (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	text              TEXT NOT NULL,
	type              TEXT NOT NULL,
	reasoning         TEXT NOT NULL,
	resonance_options JSONB NOT NULL DEFAULT '[]',
	selected_option   INT NOT NULL DEFAULT 0,
	selected          BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forge_cross_domain_analogies (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	domain              TEXT NOT NULL,
	target_application  TEXT NOT NULL,
	description         TEXT NOT NULL,
	semantic_distance   TEXT NOT NULL,
	resonance_options   JSONB NOT NULL DEFAULT '[]',
	selected_option     INT NOT NULL DEFAULT 0,
	resonated           BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forge_contradictions (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	property_a   TEXT NOT NULL,
	property_b   TEXT NOT NULL,
	description  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forge_claims (
	id                       TEXT PRIMARY KEY,
	session_id               TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	claim_text               TEXT NOT NULL,
	thesis_text              TEXT NOT NULL DEFAULT '',
	antithesis_text          TEXT NOT NULL DEFAULT '',
	falsifiability_condition TEXT NOT NULL DEFAULT '',
	confidence               TEXT NOT NULL DEFAULT '',
	builds_on_claim_id       TEXT NOT NULL DEFAULT '',
	contributed_by           TEXT NOT NULL DEFAULT 'agent',
	status                   TEXT NOT NULL DEFAULT 'proposed',
	qualification            TEXT NOT NULL DEFAULT '',
	rejection_reason         TEXT NOT NULL DEFAULT '',
	score_novelty            DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_groundedness       DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_falsifiability     DOUBLE PRECISION NOT NULL DEFAULT 0,
	score_significance       DOUBLE PRECISION NOT NULL DEFAULT 0,
	round_created            INT NOT NULL DEFAULT 0,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forge_evidence (
	id          TEXT PRIMARY KEY,
	claim_id    TEXT NOT NULL REFERENCES forge_claims(id) ON DELETE CASCADE,
	session_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	url         TEXT NOT NULL,
	summary     TEXT NOT NULL,
	type        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forge_graph_edges (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	type        TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS forge_exports (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	markdown    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// SQLiteSchema is the same table set in SQLite dialect: JSON columns
// become TEXT (SQLite has no native JSON type; modernc.org/sqlite stores
// and compares it as text), and timestamps become TEXT in RFC3339 form.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS forge_sessions (
	id                     TEXT PRIMARY KEY,
	problem_text           TEXT NOT NULL,
	status                 TEXT NOT NULL,
	locale                 TEXT NOT NULL,
	usage_input_tokens     INTEGER NOT NULL DEFAULT 0,
	usage_output_tokens    INTEGER NOT NULL DEFAULT 0,
	usage_cache_creation   INTEGER NOT NULL DEFAULT 0,
	usage_cache_read       INTEGER NOT NULL DEFAULT 0,
	message_history        TEXT NOT NULL DEFAULT '[]',
	state_snapshot         TEXT NOT NULL DEFAULT '{}',
	created_at             TEXT NOT NULL,
	resolved_at            TEXT
);

CREATE TABLE IF NOT EXISTS forge_reframings (
	id                TEXT PRIMARY KEY,
	session_id        TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	text              TEXT NOT NULL,
	type              TEXT NOT NULL,
	reasoning         TEXT NOT NULL,
	resonance_options TEXT NOT NULL DEFAULT '[]',
	selected_option   INTEGER NOT NULL DEFAULT 0,
	selected          INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS forge_cross_domain_analogies (
	id                  TEXT PRIMARY KEY,
	session_id          TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	domain              TEXT NOT NULL,
	target_application  TEXT NOT NULL,
	description         TEXT NOT NULL,
	semantic_distance   TEXT NOT NULL,
	resonance_options   TEXT NOT NULL DEFAULT '[]',
	selected_option     INTEGER NOT NULL DEFAULT 0,
	resonated           INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS forge_contradictions (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	property_a   TEXT NOT NULL,
	property_b   TEXT NOT NULL,
	description  TEXT NOT NULL,
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS forge_claims (
	id                       TEXT PRIMARY KEY,
	session_id               TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	claim_text               TEXT NOT NULL,
	thesis_text              TEXT NOT NULL DEFAULT '',
	antithesis_text          TEXT NOT NULL DEFAULT '',
	falsifiability_condition TEXT NOT NULL DEFAULT '',
	confidence               TEXT NOT NULL DEFAULT '',
	builds_on_claim_id       TEXT NOT NULL DEFAULT '',
	contributed_by           TEXT NOT NULL DEFAULT 'agent',
	status                   TEXT NOT NULL DEFAULT 'proposed',
	qualification            TEXT NOT NULL DEFAULT '',
	rejection_reason         TEXT NOT NULL DEFAULT '',
	score_novelty            REAL NOT NULL DEFAULT 0,
	score_groundedness       REAL NOT NULL DEFAULT 0,
	score_falsifiability     REAL NOT NULL DEFAULT 0,
	score_significance       REAL NOT NULL DEFAULT 0,
	round_created            INTEGER NOT NULL DEFAULT 0,
	created_at               TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS forge_evidence (
	id          TEXT PRIMARY KEY,
	claim_id    TEXT NOT NULL REFERENCES forge_claims(id) ON DELETE CASCADE,
	session_id  TEXT NOT NULL,
	title       TEXT NOT NULL,
	url         TEXT NOT NULL,
	summary     TEXT NOT NULL,
	type        TEXT NOT NULL,
	created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS forge_graph_edges (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	source      TEXT NOT NULL,
	target      TEXT NOT NULL,
	type        TEXT NOT NULL,
	created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS forge_exports (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES forge_sessions(id) ON DELETE CASCADE,
	markdown    TEXT NOT NULL,
	created_at  TEXT NOT NULL DEFAULT (datetime('now'))
);
`
