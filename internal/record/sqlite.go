package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// SQLiteSchema is the DDL applied by [SQLiteSource.Migrate].
// NPC iteration order follows the position column, i.e. insertion order.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS voice_types (
    form_key   TEXT PRIMARY KEY COLLATE NOCASE,
    editor_id  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_voice_types_editor_id ON voice_types(editor_id COLLATE NOCASE);

CREATE TABLE IF NOT EXISTS npcs (
    position   INTEGER PRIMARY KEY AUTOINCREMENT,
    form_key   TEXT NOT NULL UNIQUE COLLATE NOCASE,
    editor_id  TEXT NOT NULL DEFAULT '',
    name       TEXT NOT NULL DEFAULT '',
    voice_key  TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS voice_overrides (
    patch      TEXT NOT NULL,
    npc_key    TEXT NOT NULL COLLATE NOCASE,
    voice_key  TEXT NOT NULL,
    PRIMARY KEY (patch, npc_key)
);
`

// SQLiteSource is a [Source] and [PatchWriter] backed by a SQLite database.
//
// Editor ID comparison uses SQLite's NOCASE collation, which folds ASCII
// letters only.
type SQLiteSource struct {
	db *sql.DB
}

var (
	_ Source      = (*SQLiteSource)(nil)
	_ VoiceLister = (*SQLiteSource)(nil)
	_ PatchWriter = (*SQLiteSource)(nil)
	_ Importer    = (*SQLiteSource)(nil)
	_ PatchReader = (*SQLiteSource)(nil)
)

// OpenSQLite opens the database at path and applies [SQLiteSchema].
func OpenSQLite(ctx context.Context, path string) (*SQLiteSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("record: sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("record: open sqlite %q: %w", path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("record: ping sqlite %q: %w", path, err)
	}
	s := &SQLiteSource{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate executes [SQLiteSchema].
func (s *SQLiteSource) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("record: sqlite migrate: %w", err)
	}
	return nil
}

// Close closes the database handle.
func (s *SQLiteSource) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Import inserts every record of d in a single transaction.
func (s *SQLiteSource) Import(ctx context.Context, d *Dump) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record: sqlite import: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, v := range d.VoiceTypes {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO voice_types (form_key, editor_id) VALUES (?, ?)`,
			string(v.Key), v.EditorID,
		); err != nil {
			if isSQLiteUniqueViolation(err) {
				err = ErrDuplicateKey
			}
			return fmt.Errorf("record: sqlite import voice type %s: %w", v.Key, err)
		}
	}
	for _, n := range d.NPCs {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO npcs (form_key, editor_id, name, voice_key) VALUES (?, ?, ?, ?)`,
			string(n.Key), n.EditorID, n.Name, string(n.Voice),
		); err != nil {
			if isSQLiteUniqueViolation(err) {
				err = ErrDuplicateKey
			}
			return fmt.Errorf("record: sqlite import npc %s: %w", n.Key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("record: sqlite import: commit: %w", err)
	}
	return nil
}

// LookupVoice implements [Source.LookupVoice].
func (s *SQLiteSource) LookupVoice(ctx context.Context, editorID string) (VoiceType, error) {
	const query = `
		SELECT form_key, editor_id FROM voice_types
		WHERE editor_id = ? COLLATE NOCASE
		ORDER BY rowid LIMIT 1`
	return s.scanVoice(s.db.QueryRowContext(ctx, query, editorID), editorID)
}

// VoiceByKey implements [Source.VoiceByKey].
func (s *SQLiteSource) VoiceByKey(ctx context.Context, key FormKey) (VoiceType, error) {
	const query = `SELECT form_key, editor_id FROM voice_types WHERE form_key = ?`
	return s.scanVoice(s.db.QueryRowContext(ctx, query, strings.TrimSpace(string(key))), string(key))
}

func (s *SQLiteSource) scanVoice(row *sql.Row, what string) (VoiceType, error) {
	var v VoiceType
	var key string
	if err := row.Scan(&key, &v.EditorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VoiceType{}, ErrNotFound
		}
		return VoiceType{}, fmt.Errorf("record: sqlite voice %q: %w", what, err)
	}
	v.Key = FormKey(key)
	return v, nil
}

// EachNPC implements [Source.EachNPC]. Rows are buffered before fn is called
// so that fn may issue its own queries.
func (s *SQLiteSource) EachNPC(ctx context.Context, fn func(NPC) error) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT form_key, editor_id, name, voice_key FROM npcs ORDER BY position`)
	if err != nil {
		return fmt.Errorf("record: sqlite list npcs: %w", err)
	}
	var npcs []NPC
	for rows.Next() {
		var n NPC
		var key, voice string
		if err := rows.Scan(&key, &n.EditorID, &n.Name, &voice); err != nil {
			rows.Close()
			return fmt.Errorf("record: sqlite scan npc: %w", err)
		}
		n.Key, n.Voice = FormKey(key), FormKey(voice)
		npcs = append(npcs, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("record: sqlite list npcs: %w", err)
	}
	rows.Close()

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
func (s *SQLiteSource) ListVoices(ctx context.Context) ([]VoiceType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT form_key, editor_id FROM voice_types ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("record: sqlite list voices: %w", err)
	}
	defer rows.Close()

	var out []VoiceType
	for rows.Next() {
		var v VoiceType
		var key string
		if err := rows.Scan(&key, &v.EditorID); err != nil {
			return nil, fmt.Errorf("record: sqlite scan voice: %w", err)
		}
		v.Key = FormKey(key)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("record: sqlite list voices: %w", err)
	}
	return out, nil
}

// WritePatch implements [PatchWriter.WritePatch]. Existing overrides of the
// same patch and NPC are replaced.
func (s *SQLiteSource) WritePatch(ctx context.Context, p *Patch) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record: sqlite write patch: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `
		INSERT INTO voice_overrides (patch, npc_key, voice_key) VALUES (?, ?, ?)
		ON CONFLICT (patch, npc_key) DO UPDATE SET voice_key = excluded.voice_key`
	for _, o := range p.Overrides() {
		if _, err = tx.ExecContext(ctx, query, p.Name(), string(o.Key), string(o.Voice)); err != nil {
			return fmt.Errorf("record: sqlite write override %s: %w", o.Key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("record: sqlite write patch: commit: %w", err)
	}
	return nil
}

// PatchVoices implements [PatchReader.PatchVoices].
func (s *SQLiteSource) PatchVoices(ctx context.Context, patch string) (map[FormKey]FormKey, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT npc_key, voice_key FROM voice_overrides WHERE patch = ?`, patch)
	if err != nil {
		return nil, fmt.Errorf("record: sqlite read patch %q: %w", patch, err)
	}
	defer rows.Close()

	out := make(map[FormKey]FormKey)
	for rows.Next() {
		var npc, voice string
		if err := rows.Scan(&npc, &voice); err != nil {
			return nil, fmt.Errorf("record: sqlite scan override: %w", err)
		}
		out[FormKey(npc)] = FormKey(voice)
	}
	return out, rows.Err()
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
