package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/votpatch/internal/record"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	cfg, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

// LoadRaw reads the YAML configuration file at path without applying defaults
// or validating. Callers that layer environment and flag overrides on top use
// it and run [ApplyDefaults] and [Validate] once everything is merged.
func LoadRaw(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg, err := Decode(r)
	if err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Decode decodes a YAML config from r. Unknown fields are rejected; nothing
// else is checked. An empty document yields a zero [Config].
func Decode(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = LogInfo
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = BackendYAML
	}
	if cfg.Patch.Name == "" {
		cfg.Patch.Name = record.DefaultPatchName
	}
	if cfg.Patch.Output == "" {
		cfg.Patch.Output = strings.TrimSuffix(cfg.Patch.Name, filepath.Ext(cfg.Patch.Name)) + ".yaml"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	switch cfg.Store.Backend {
	case BackendYAML, BackendSQLite:
		if len(cfg.Store.Paths) == 0 {
			errs = append(errs, fmt.Errorf("store.paths is required for backend %q", cfg.Store.Backend))
		}
	case BackendPostgres:
		if cfg.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for backend \"postgres\""))
		}
	case "":
	default:
		// Third-party backends may be registered; only warn.
		slog.Warn("unknown store backend, it must be registered before use", "backend", cfg.Store.Backend)
	}
	if cfg.Store.Backend == BackendSQLite && len(cfg.Store.Paths) > 1 {
		slog.Warn("sqlite backend uses only the first store path", "paths", cfg.Store.Paths)
	}

	if t := cfg.Suggest.Threshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("suggest.threshold %.2f is out of range [0, 1]", t))
	}

	if len(cfg.Mappings) == 0 {
		errs = append(errs, errors.New("mappings must declare at least one source voice"))
	}
	sourcesSeen := make(map[string]int, len(cfg.Mappings))
	for i, m := range cfg.Mappings {
		prefix := fmt.Sprintf("mappings[%d]", i)
		if strings.TrimSpace(m.Source) == "" {
			errs = append(errs, fmt.Errorf("%s.source is required", prefix))
		} else {
			key := record.Fold(m.Source)
			if prev, ok := sourcesSeen[key]; ok {
				errs = append(errs, fmt.Errorf("%s.source %q is a duplicate of mappings[%d]", prefix, m.Source, prev))
			}
			sourcesSeen[key] = i
		}
		if len(m.Targets) == 0 {
			errs = append(errs, fmt.Errorf("%s.targets must not be empty", prefix))
		}
		targetsSeen := make(map[string]struct{}, len(m.Targets))
		for j, target := range m.Targets {
			if strings.TrimSpace(target) == "" {
				errs = append(errs, fmt.Errorf("%s.targets[%d] must not be empty", prefix, j))
				continue
			}
			key := record.Fold(target)
			if _, dup := targetsSeen[key]; dup {
				slog.Warn("target listed twice in one mapping; it will be drawn twice as often",
					"source", m.Source,
					"target", target,
				)
			}
			targetsSeen[key] = struct{}{}
		}
	}

	return errors.Join(errs...)
}
