package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
)

// envOverrides lists the settings that may be overridden from the environment.
// Unset variables leave the file value untouched.
type envOverrides struct {
	LogLevel    string   `env:"VOTPATCH_LOG_LEVEL"`
	Backend     string   `env:"VOTPATCH_STORE_BACKEND"`
	Paths       []string `env:"VOTPATCH_STORE_PATHS" envSeparator:","`
	DSN         string   `env:"VOTPATCH_STORE_DSN"`
	Seed        string   `env:"VOTPATCH_SEED"`
	Output      string   `env:"VOTPATCH_OUTPUT"`
	MetricsFile string   `env:"VOTPATCH_METRICS_FILE"`
}

// ApplyEnv overrides fields of cfg from VOTPATCH_* environment variables.
func ApplyEnv(cfg *Config) error {
	return ApplyEnvFrom(cfg, Environ())
}

// ApplyEnvFrom is [ApplyEnv] with an explicit environment, for tests.
func ApplyEnvFrom(cfg *Config, environment map[string]string) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environment}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}

	if o.LogLevel != "" {
		cfg.LogLevel = LogLevel(strings.ToLower(o.LogLevel))
	}
	if o.Backend != "" {
		cfg.Store.Backend = Backend(o.Backend)
	}
	if len(o.Paths) > 0 {
		cfg.Store.Paths = o.Paths
	}
	if o.DSN != "" {
		cfg.Store.DSN = o.DSN
	}
	if o.Seed != "" {
		seed, err := strconv.ParseUint(o.Seed, 10, 64)
		if err != nil {
			return fmt.Errorf("config: VOTPATCH_SEED %q: %w", o.Seed, err)
		}
		cfg.Patch.Seed = &seed
	}
	if o.Output != "" {
		cfg.Patch.Output = o.Output
	}
	if o.MetricsFile != "" {
		cfg.Telemetry.MetricsFile = o.MetricsFile
	}
	return nil
}

// Environ returns the process environment as a map, the form accepted by
// [ApplyEnvFrom].
func Environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
