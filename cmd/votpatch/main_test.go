package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/votpatch/internal/config"
	"github.com/MrWong99/votpatch/internal/patcher"
	"github.com/MrWong99/votpatch/internal/record"
)

const testDump = `
plugin: Skyrim.esm
voice_types:
  - key: 0001F0F7:Skyrim.esm
    editor_id: MaleCommoner
  - key: 00000800:Vot.esp
    editor_id: VOT_MaleCommoner01
npcs:
  - key: 00013B97:Skyrim.esm
    editor_id: Belethor
    voice: 0001F0F7:Skyrim.esm
`

func TestLoadConfig_FallsBackToDefault(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), defaultConfigPath)
	cfg, err := loadConfig(missing, false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if len(cfg.Mappings) == 0 {
		t.Error("default config should carry the built-in mapping")
	}

	if _, err := loadConfig(missing, true); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("explicit missing config: got %v", err)
	}
}

func TestBuildConfig_StoreFromEnv(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "votpatch.yaml")
	body := `
store:
  backend: postgres
mappings:
  - source: MaleCommoner
    targets: [VOT_MaleCommoner01]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := buildConfig(path, true, nil, nil); err == nil || !strings.Contains(err.Error(), "store.dsn") {
		t.Fatalf("without env: expected store.dsn error, got %v", err)
	}

	cfg, err := buildConfig(path, true, map[string]string{
		"VOTPATCH_STORE_DSN": "postgres://localhost:5432/votpatch",
		"VOTPATCH_SEED":      "7",
	}, nil)
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if cfg.Store.DSN != "postgres://localhost:5432/votpatch" {
		t.Errorf("store.dsn = %q", cfg.Store.DSN)
	}
	if cfg.Patch.Seed == nil || *cfg.Patch.Seed != 7 {
		t.Errorf("patch.seed = %v, want 7", cfg.Patch.Seed)
	}
}

func TestBuildConfig_FlagsOverrideEnv(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "votpatch.yaml")
	body := `
store:
  backend: sqlite
mappings:
  - source: MaleCommoner
    targets: [VOT_MaleCommoner01]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	seed := uint64(42)
	cfg, err := buildConfig(path, true, map[string]string{
		"VOTPATCH_STORE_PATHS": "records.db",
		"VOTPATCH_SEED":        "7",
	}, func(cfg *config.Config) { cfg.Patch.Seed = &seed })
	if err != nil {
		t.Fatalf("buildConfig: %v", err)
	}
	if len(cfg.Store.Paths) != 1 || cfg.Store.Paths[0] != "records.db" {
		t.Errorf("store.paths = %v", cfg.Store.Paths)
	}
	if *cfg.Patch.Seed != 42 {
		t.Errorf("patch.seed = %d, want flag value 42", *cfg.Patch.Seed)
	}
}

func TestResolveSeed(t *testing.T) {
	t.Parallel()

	seed := uint64(99)
	if got := resolveSeed(&seed); got != 99 {
		t.Errorf("resolveSeed(99) = %d", got)
	}
}

func TestYAMLBackend_EndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dump := filepath.Join(dir, "skyrim.yaml")
	if err := os.WriteFile(dump, []byte(testDump), 0o600); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	out := filepath.Join(dir, "patch.yaml")

	reg := config.NewRegistry()
	registerBuiltinBackends(reg, config.PatchConfig{Output: out})

	ctx := context.Background()
	src, w, closer, err := reg.Create(ctx, config.StoreConfig{Backend: config.BackendYAML, Paths: []string{dump}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer closer.Close()

	cfg := config.Default()
	cfg.Suggest.Enabled = false
	patch := record.NewPatch("")
	res, err := patcher.Run(ctx, src,
		[]patcher.Mapping{{Source: "MaleCommoner", Targets: []string{"VOT_MaleCommoner01"}}},
		append(runOptions(cfg, newLogger(config.LogError), 1, patch), patcher.WithDrawer(alwaysOne{}))...,
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.Reassigned != 1 {
		t.Fatalf("reassigned = %d, want 1", res.Summary.Reassigned)
	}
	if err := writePatch(ctx, w, patch); err != nil {
		t.Fatalf("writePatch: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read patch: %v", err)
	}
	if !strings.Contains(string(data), "voice: 00000800:Vot.esp") {
		t.Errorf("patch file:\n%s", data)
	}
}

func TestSQLiteBackend_RequiresPath(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	registerBuiltinBackends(reg, config.PatchConfig{})
	if _, _, _, err := reg.Create(context.Background(), config.StoreConfig{Backend: config.BackendSQLite}); err == nil {
		t.Error("expected error without a database path")
	}
}

func TestWritePatch_NilWriter(t *testing.T) {
	t.Parallel()

	if err := writePatch(context.Background(), nil, record.NewPatch("")); err == nil {
		t.Error("expected error for a backend without a writer")
	}
}

func TestImportDumps_SQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dump := filepath.Join(dir, "skyrim.yaml")
	if err := os.WriteFile(dump, []byte(testDump), 0o600); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	vot := filepath.Join(dir, "vot.yaml")
	if err := os.WriteFile(vot, []byte("voice_types:\n  - key: 00000801:Vot.esp\n    editor_id: VOT_MaleCommoner02\n"), 0o600); err != nil {
		t.Fatalf("write dump: %v", err)
	}

	reg := config.NewRegistry()
	registerBuiltinBackends(reg, config.PatchConfig{})
	ctx := context.Background()
	src, w, closer, err := reg.Create(ctx, config.StoreConfig{
		Backend: config.BackendSQLite,
		Paths:   []string{filepath.Join(dir, "records.db")},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer closer.Close()

	voices, npcs, err := importDumps(ctx, src, []string{dump, vot})
	if err != nil {
		t.Fatalf("importDumps: %v", err)
	}
	if voices != 3 || npcs != 1 {
		t.Errorf("imported voices=%d npcs=%d, want 3/1", voices, npcs)
	}
	if _, _, err := importDumps(ctx, src, []string{dump}); !errors.Is(err, record.ErrDuplicateKey) {
		t.Errorf("second import: expected ErrDuplicateKey, got %v", err)
	}

	cfg := config.Default()
	cfg.Suggest.Enabled = false
	patch := record.NewPatch("Test.esp")
	res, err := patcher.Run(ctx, src, cfg.Mappings,
		append(runOptions(cfg, newLogger(config.LogError), 1, patch), patcher.WithDrawer(alwaysOne{}))...,
	)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Summary.Reassigned != 1 {
		t.Fatalf("reassigned = %d, want 1", res.Summary.Reassigned)
	}
	if err := writePatch(ctx, w, patch); err != nil {
		t.Fatalf("writePatch: %v", err)
	}
}

func TestImportDumps_YAMLBackendRejected(t *testing.T) {
	t.Parallel()

	dump := filepath.Join(t.TempDir(), "skyrim.yaml")
	if err := os.WriteFile(dump, []byte(testDump), 0o600); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	src, err := record.LoadDumpFiles(context.Background(), dump)
	if err != nil {
		t.Fatalf("LoadDumpFiles: %v", err)
	}
	if _, _, err := importDumps(context.Background(), src, []string{dump}); err == nil {
		t.Error("expected error importing into a read-only backend")
	}
}

// staleWriter accepts writes but reads back a different voice.
type staleWriter struct{}

func (staleWriter) WritePatch(context.Context, *record.Patch) error { return nil }

func (staleWriter) PatchVoices(context.Context, string) (map[record.FormKey]record.FormKey, error) {
	return map[record.FormKey]record.FormKey{"10:A.esm": "99:Old.esp"}, nil
}

func TestWritePatch_VerifiesReadBack(t *testing.T) {
	t.Parallel()

	p := record.NewPatch("Test.esp")
	p.SetVoice(record.NPC{Key: "10:A.esm"}, record.VoiceType{Key: "20:Vot.esp"})
	err := writePatch(context.Background(), staleWriter{}, p)
	if err == nil || !strings.Contains(err.Error(), "10:A.esm") {
		t.Errorf("expected verification error naming the NPC, got %v", err)
	}
}

type alwaysOne struct{}

func (alwaysOne) IntN(int) int { return 1 }
