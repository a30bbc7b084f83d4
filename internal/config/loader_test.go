package config_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/votpatch/internal/config"
)

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: verbose
store:
  paths: [a.yaml]
mappings:
  - source: A
    targets: [X]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_DuplicateSourceAfterFolding(t *testing.T) {
	t.Parallel()
	yaml := `
store:
  paths: [a.yaml]
mappings:
  - source: MaleCommoner
    targets: [X]
  - source: malecommoner
    targets: [Y]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for duplicate sources, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("error should mention duplicate, got: %v", err)
	}
}

func TestValidate_EmptyTargets(t *testing.T) {
	t.Parallel()
	yaml := `
store:
  paths: [a.yaml]
mappings:
  - source: A
    targets: []
  - source: B
    targets: ["  "]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for empty targets, got nil")
	}
	if !strings.Contains(err.Error(), "mappings[0].targets must not be empty") {
		t.Errorf("error should flag mappings[0], got: %v", err)
	}
	if !strings.Contains(err.Error(), "mappings[1].targets[0]") {
		t.Errorf("error should flag the blank target, got: %v", err)
	}
}

func TestValidate_DuplicateTargetIsOnlyAWarning(t *testing.T) {
	t.Parallel()
	yaml := `
store:
  paths: [a.yaml]
mappings:
  - source: A
    targets: [X, x]
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("duplicate targets should not fail validation: %v", err)
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		store   string
		wantErr string
	}{
		{name: "yaml needs paths", store: "backend: yaml", wantErr: "store.paths"},
		{name: "sqlite needs paths", store: "backend: sqlite", wantErr: "store.paths"},
		{name: "postgres needs dsn", store: "backend: postgres", wantErr: "store.dsn"},
		{name: "postgres with dsn", store: "backend: postgres\n  dsn: postgres://localhost/votpatch"},
		{name: "custom backend", store: "backend: custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			yaml := "store:\n  " + tt.store + "\nmappings:\n  - source: A\n    targets: [X]\n"
			_, err := config.LoadFromReader(strings.NewReader(yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ThresholdRange(t *testing.T) {
	t.Parallel()
	yaml := `
store:
  paths: [a.yaml]
suggest:
  threshold: 1.5
mappings:
  - source: A
    targets: [X]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil || !strings.Contains(err.Error(), "suggest.threshold") {
		t.Errorf("error = %v, want mention of suggest.threshold", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: loud
store:
  backend: postgres
mappings:
  - source: ""
    targets: [X]
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	for _, want := range []string{"log_level", "store.dsn", "mappings[0].source"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "votpatch.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Patch.Name != "MyVoices.esp" {
		t.Errorf("patch.name: got %q", cfg.Patch.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestLoadRaw_StoreFromEnv(t *testing.T) {
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

	if _, err := config.Load(path); err == nil || !strings.Contains(err.Error(), "store.dsn") {
		t.Fatalf("Load without env: expected store.dsn error, got %v", err)
	}

	cfg, err := config.LoadRaw(path)
	if err != nil {
		t.Fatalf("LoadRaw: %v", err)
	}
	err = config.ApplyEnvFrom(cfg, map[string]string{
		"VOTPATCH_STORE_DSN": "postgres://localhost:5432/votpatch",
	})
	if err != nil {
		t.Fatalf("ApplyEnvFrom: %v", err)
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate after env: %v", err)
	}
	if cfg.Store.DSN != "postgres://localhost:5432/votpatch" {
		t.Errorf("store.dsn = %q", cfg.Store.DSN)
	}
}

func TestDecode_DoesNotValidate(t *testing.T) {
	t.Parallel()

	cfg, err := config.Decode(strings.NewReader("store:\n  backend: sqlite\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Store.Backend != config.BackendSQLite || len(cfg.Mappings) != 0 {
		t.Errorf("Decode = %+v", cfg)
	}
	if _, err := config.Decode(strings.NewReader("bogus: 1\n")); err == nil {
		t.Error("Decode should reject unknown fields")
	}
}
