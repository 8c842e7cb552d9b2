// Schema creation and forward-compatible migration (spec §4.2): table
// names are resolved once, validated and cached; initialisation is
// idempotent and best-effort ALTERs add new columns across versions.
package persistence

import (
	"context"
	"fmt"

	"github.com/openmemory/core/internal/errs"
	"github.com/openmemory/core/internal/security"
)

const schemaVersion = 3

// TableNames resolves and validates every table name used by the core.
// Postgres names are schema-qualified and quoted; SQLite names are bare.
type TableNames struct {
	Memories      string
	Vectors       string
	Waypoints     string
	Facts         string
	Edges         string
	Users         string
	Locks         string
	SchemaVersion string

	dialect Dialect
	schema  string
	prefix  string
}

func NewTableNames(dialect Dialect, pgSchema, pgTablePrefix string) (*TableNames, error) {
	t := &TableNames{dialect: dialect, schema: pgSchema, prefix: pgTablePrefix}
	raw := map[string]*string{
		pgTablePrefix + "_memories":       &t.Memories,
		pgTablePrefix + "_vectors":        &t.Vectors,
		pgTablePrefix + "_waypoints":      &t.Waypoints,
		pgTablePrefix + "_temporal_facts": &t.Facts,
		pgTablePrefix + "_temporal_edges": &t.Edges,
		pgTablePrefix + "_users":          &t.Users,
		pgTablePrefix + "_locks":          &t.Locks,
		pgTablePrefix + "_schema_version": &t.SchemaVersion,
	}
	for bare, dst := range raw {
		if err := security.ValidateTableName(pgTablePrefix); err != nil {
			return nil, err
		}
		if dialect == DialectPostgres {
			if err := security.ValidateTableName(pgSchema); err != nil {
				return nil, err
			}
			*dst = fmt.Sprintf("%q.%q", pgSchema, bare)
		} else {
			*dst = bare
		}
	}
	return t, nil
}

// Init creates the schema idempotently and applies best-effort forward
// migrations (new columns added across versions without data loss).
func Init(ctx context.Context, db *DB, t *TableNames) error {
	stmts := createStatements(db.Dialect(), t)
	for _, s := range stmts {
		if _, err := db.RunAsync(ctx, s); err != nil {
			return errs.Storage("schema init failed", err)
		}
	}
	for _, alter := range bestEffortAlters(db.Dialect(), t) {
		// ALTER TABLE ADD COLUMN IF NOT EXISTS semantics differ across
		// dialects; failures here are expected (column exists) and ignored.
		_, _ = db.RunAsync(ctx, alter)
	}
	_, err := db.RunAsync(ctx, fmt.Sprintf(`INSERT INTO %s (version) VALUES (?)`, t.SchemaVersion), schemaVersion)
	return err
}

func createStatements(d Dialect, t *TableNames) []string {
	pk := "TEXT PRIMARY KEY"
	jsonType := "TEXT"
	if d == DialectPostgres {
		jsonType = "JSONB"
	}
	blobType := "BLOB"
	if d == DialectPostgres {
		blobType = "BYTEA"
	}
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			user_id TEXT,
			segment INTEGER NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			simhash TEXT NOT NULL,
			primary_sector TEXT NOT NULL,
			tags %s NOT NULL DEFAULT '[]',
			metadata %s NOT NULL DEFAULT '{}',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			last_seen_at BIGINT NOT NULL,
			salience DOUBLE PRECISION NOT NULL DEFAULT 0,
			decay_lambda DOUBLE PRECISION NOT NULL DEFAULT 0,
			version BIGINT NOT NULL DEFAULT 1,
			mean_dim INTEGER NOT NULL DEFAULT 0,
			mean_vec %s,
			feedback_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			generated_summary TEXT NOT NULL DEFAULT ''
		)`, t.Memories, pk, jsonType, jsonType, blobType),

		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user_simhash ON %s (user_id, simhash)`, safeIdx(t.Memories), t.Memories),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_user ON %s (user_id)`, safeIdx(t.Memories), t.Memories),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			memory_id TEXT NOT NULL,
			sector TEXT NOT NULL,
			user_id TEXT,
			dim INTEGER NOT NULL,
			vec %s NOT NULL,
			PRIMARY KEY (memory_id, sector)
		)`, t.Vectors, blobType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_sector_user ON %s (sector, user_id)`, safeIdx(t.Vectors), t.Vectors),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			src_id TEXT NOT NULL,
			dst_id TEXT NOT NULL,
			user_id TEXT,
			weight DOUBLE PRECISION NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (src_id, dst_id, user_id)
		)`, t.Waypoints),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_src ON %s (src_id)`, safeIdx(t.Waypoints), t.Waypoints),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_dst ON %s (dst_id)`, safeIdx(t.Waypoints), t.Waypoints),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			user_id TEXT,
			subject TEXT NOT NULL,
			predicate TEXT NOT NULL,
			object TEXT NOT NULL,
			valid_from BIGINT NOT NULL,
			valid_to BIGINT,
			confidence DOUBLE PRECISION NOT NULL,
			last_updated BIGINT NOT NULL,
			metadata %s NOT NULL DEFAULT '{}'
		)`, t.Facts, pk, jsonType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_spo ON %s (user_id, subject, predicate)`, safeIdx(t.Facts), t.Facts),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id %s,
			user_id TEXT,
			source_id TEXT NOT NULL,
			target_id TEXT NOT NULL,
			relation_type TEXT NOT NULL,
			valid_from BIGINT NOT NULL,
			valid_to BIGINT,
			weight DOUBLE PRECISION NOT NULL,
			last_updated BIGINT NOT NULL,
			metadata %s NOT NULL DEFAULT '{}'
		)`, t.Edges, pk, jsonType),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_str ON %s (user_id, source_id, target_id, relation_type)`, safeIdx(t.Edges), t.Edges),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			user_id TEXT PRIMARY KEY,
			summary TEXT NOT NULL DEFAULT '',
			reflection_count BIGINT NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`, t.Users),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			lock_key TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			expires_at BIGINT NOT NULL
		)`, t.Locks),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			version INTEGER NOT NULL,
			applied_at BIGINT
		)`, t.SchemaVersion),
	}
}

// bestEffortAlters adds forward-compatible columns introduced after the
// original schema (generatedSummary, coactivations, encryptionKeyVersion,
// vector.metadata, compressed_vec — spec §4.2, §9 Open Questions).
func bestEffortAlters(d Dialect, t *TableNames) []string {
	jsonType := "TEXT"
	if d == DialectPostgres {
		jsonType = "JSONB"
	}
	blobType := "BLOB"
	if d == DialectPostgres {
		blobType = "BYTEA"
	}
	alters := []string{
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN coactivations BIGINT NOT NULL DEFAULT 0`, t.Memories),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN encryption_key_version INTEGER NOT NULL DEFAULT 0`, t.Memories),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN compressed_vec %s`, t.Memories, blobType),
		fmt.Sprintf(`ALTER TABLE %s ADD COLUMN metadata %s NOT NULL DEFAULT '{}'`, t.Vectors, jsonType),
	}
	if d == DialectPostgres {
		// pgvector is used opportunistically (spec §6.4); both statements
		// are best-effort and silently ignored if the extension is absent
		// or the column already exists.
		alters = append(alters,
			`CREATE EXTENSION IF NOT EXISTS vector`,
			fmt.Sprintf(`ALTER TABLE %s ADD COLUMN vec_ann vector`, t.Vectors),
		)
	}
	return alters
}

func safeIdx(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}
