package record

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema is the SQL DDL for the record tables. Execute it via
// [PostgresSource.Migrate] or apply it manually during deployment.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS voice_types (
    position   BIGSERIAL,
    form_key   TEXT PRIMARY KEY,
    editor_id  TEXT NOT NULL
);
ALTER TABLE voice_types ADD COLUMN IF NOT EXISTS position BIGSERIAL;
CREATE INDEX IF NOT EXISTS idx_voice_types_editor_id ON voice_types(lower(editor_id));
CREATE UNIQUE INDEX IF NOT EXISTS idx_voice_types_form_key_lower ON voice_types(lower(form_key));

CREATE TABLE IF NOT EXISTS npcs (
    position   BIGSERIAL PRIMARY KEY,
    form_key   TEXT NOT NULL,
    editor_id  TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    voice_key  TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_npcs_form_key_lower ON npcs(lower(form_key));

CREATE TABLE IF NOT EXISTS voice_overrides (
    patch       TEXT NOT NULL,
    npc_key     TEXT NOT NULL,
    voice_key   TEXT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (patch, npc_key)
);
`

// DB is the database interface used by [PostgresSource]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresSource is a [Source] and [PatchWriter] backed by PostgreSQL.
// Form keys and editor IDs compare through lower().
type PostgresSource struct {
	db DB
}

var (
	_ Source      = (*PostgresSource)(nil)
	_ VoiceLister = (*PostgresSource)(nil)
	_ PatchWriter = (*PostgresSource)(nil)
	_ Importer    = (*PostgresSource)(nil)
	_ PatchReader = (*PostgresSource)(nil)
)

// NewPostgresSource creates a [PostgresSource] that uses the given connection
// or pool. The caller is responsible for calling [PostgresSource.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate executes the [PostgresSchema] DDL.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("record: postgres migrate: %w", err)
	}
	return nil
}

// LookupVoice implements [Source.LookupVoice]. When several voice types share
// the editor ID the first one imported wins.
func (s *PostgresSource) LookupVoice(ctx context.Context, editorID string) (VoiceType, error) {
	const query = `
		SELECT form_key, editor_id FROM voice_types
		WHERE lower(editor_id) = lower($1)
		ORDER BY position LIMIT 1`
	return scanPGVoice(s.db.QueryRow(ctx, query, editorID), editorID)
}

// VoiceByKey implements [Source.VoiceByKey].
func (s *PostgresSource) VoiceByKey(ctx context.Context, key FormKey) (VoiceType, error) {
	const query = `SELECT form_key, editor_id FROM voice_types WHERE lower(form_key) = lower($1)`
	return scanPGVoice(s.db.QueryRow(ctx, query, strings.TrimSpace(string(key))), string(key))
}

func scanPGVoice(row pgx.Row, what string) (VoiceType, error) {
	var key, editorID string
	if err := row.Scan(&key, &editorID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VoiceType{}, ErrNotFound
		}
		return VoiceType{}, fmt.Errorf("record: postgres voice %q: %w", what, err)
	}
	return VoiceType{Key: FormKey(key), EditorID: editorID}, nil
}

// EachNPC implements [Source.EachNPC]. Rows are buffered before fn is called
// because a single connection cannot serve nested queries while a result set
// is open.
func (s *PostgresSource) EachNPC(ctx context.Context, fn func(NPC) error) error {
	rows, err := s.db.Query(ctx, `SELECT form_key, editor_id, name, voice_key FROM npcs ORDER BY position`)
	if err != nil {
		return fmt.Errorf("record: postgres list npcs: %w", err)
	}
	var npcs []NPC
	for rows.Next() {
		var key, editorID, name, voice string
		if err := rows.Scan(&key, &editorID, &name, &voice); err != nil {
			rows.Close()
			return fmt.Errorf("record: postgres scan npc: %w", err)
		}
		npcs = append(npcs, NPC{Key: FormKey(key), EditorID: editorID, Name: name, Voice: FormKey(voice)})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("record: postgres list npcs: %w", err)
	}

	for _, n := range npcs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// ListVoices implements [VoiceLister.ListVoices].
func (s *PostgresSource) ListVoices(ctx context.Context) ([]VoiceType, error) {
	rows, err := s.db.Query(ctx, `SELECT form_key, editor_id FROM voice_types ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("record: postgres list voices: %w", err)
	}
	defer rows.Close()

	var out []VoiceType
	for rows.Next() {
		var key, editorID string
		if err := rows.Scan(&key, &editorID); err != nil {
			return nil, fmt.Errorf("record: postgres scan voice: %w", err)
		}
		out = append(out, VoiceType{Key: FormKey(key), EditorID: editorID})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record: postgres list voices: %w", err)
	}
	return out, nil
}

// Import implements [Importer.Import]. All records of d are inserted in one
// transaction.
func (s *PostgresSource) Import(ctx context.Context, d *Dump) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, v := range d.VoiceTypes {
			if _, err := tx.Exec(ctx,
				`INSERT INTO voice_types (form_key, editor_id) VALUES ($1, $2)`,
				string(v.Key), v.EditorID,
			); err != nil {
				if isDuplicateKeyError(err) {
					return fmt.Errorf("record: postgres import voice type %s: %w", v.Key, ErrDuplicateKey)
				}
				return fmt.Errorf("record: postgres import voice type %s: %w", v.Key, err)
			}
		}
		for _, n := range d.NPCs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO npcs (form_key, editor_id, name, voice_key) VALUES ($1, $2, $3, $4)`,
				string(n.Key), n.EditorID, n.Name, string(n.Voice),
			); err != nil {
				if isDuplicateKeyError(err) {
					return fmt.Errorf("record: postgres import npc %s: %w", n.Key, ErrDuplicateKey)
				}
				return fmt.Errorf("record: postgres import npc %s: %w", n.Key, err)
			}
		}
		return nil
	})
}

// WritePatch implements [PatchWriter.WritePatch]. Existing overrides of the
// same patch and NPC are replaced. The patch is written in one transaction.
func (s *PostgresSource) WritePatch(ctx context.Context, p *Patch) error {
	const query = `
		INSERT INTO voice_overrides (patch, npc_key, voice_key)
		VALUES ($1, $2, $3)
		ON CONFLICT (patch, npc_key) DO UPDATE SET
			voice_key = EXCLUDED.voice_key,
			updated_at = now()`
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, o := range p.Overrides() {
			if _, err := tx.Exec(ctx, query, p.Name(), string(o.Key), string(o.Voice)); err != nil {
				return fmt.Errorf("record: postgres write override %s: %w", o.Key, err)
			}
		}
		return nil
	})
}

// PatchVoices implements [PatchReader.PatchVoices].
func (s *PostgresSource) PatchVoices(ctx context.Context, patch string) (map[FormKey]FormKey, error) {
	rows, err := s.db.Query(ctx, `SELECT npc_key, voice_key FROM voice_overrides WHERE patch = $1`, patch)
	if err != nil {
		return nil, fmt.Errorf("record: postgres read patch %q: %w", patch, err)
	}
	defer rows.Close()

	out := make(map[FormKey]FormKey)
	for rows.Next() {
		var npc, voice string
		if err := rows.Scan(&npc, &voice); err != nil {
			return nil, fmt.Errorf("record: postgres scan override: %w", err)
		}
		out[FormKey(npc)] = FormKey(voice)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record: postgres read patch %q: %w", patch, err)
	}
	return out, nil
}

// isDuplicateKeyError checks whether a PostgreSQL error is a unique-violation
// (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
