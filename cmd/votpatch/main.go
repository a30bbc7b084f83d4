// Command votpatch spreads NPCs that share a vanilla voice type across a set
// of replacement voice types and writes the reassignments as an override
// patch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/votpatch/internal/config"
	"github.com/MrWong99/votpatch/internal/observe"
	"github.com/MrWong99/votpatch/internal/patcher"
	"github.com/MrWong99/votpatch/internal/record"
	"github.com/MrWong99/votpatch/internal/report"
	"github.com/MrWong99/votpatch/internal/suggest"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK         = 0
	exitError      = 1
	exitNoMappings = 2
)

const defaultConfigPath = "votpatch.yaml"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath, "path to the YAML configuration file")
	seed := flag.Uint64("seed", 0, "random seed; overrides patch.seed and VOTPATCH_SEED")
	dryRun := flag.Bool("dry-run", false, "decide reassignments but do not write the patch")
	output := flag.String("output", "", "patch output file for the yaml backend")
	importMode := flag.Bool("import", false, "import the YAML record dumps given as arguments into the configured store and exit")
	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	// ── Configuration ─────────────────────────────────────────────────────────
	// File, then VOTPATCH_* environment, then flags; validated once merged.
	cfg, err := buildConfig(*configPath, set["config"], config.Environ(), func(cfg *config.Config) {
		if set["seed"] {
			cfg.Patch.Seed = seed
		}
		if set["dry-run"] {
			cfg.Patch.DryRun = *dryRun
		}
		if set["output"] {
			cfg.Patch.Output = *output
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "votpatch: %v\n", err)
		return exitError
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return exitError
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Record store ──────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinBackends(reg, cfg.Patch)

	src, writer, closer, err := reg.Create(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open record store", "backend", cfg.Store.Backend, "err", err)
		return exitError
	}
	defer func() {
		if err := closer.Close(); err != nil {
			slog.Warn("record store close error", "err", err)
		}
	}()

	// ── Import mode ───────────────────────────────────────────────────────────
	if *importMode {
		voices, npcs, err := importDumps(ctx, src, flag.Args())
		if err != nil {
			slog.Error("record import failed", "backend", cfg.Store.Backend, "err", err)
			return exitError
		}
		slog.Info("records imported",
			"backend", cfg.Store.Backend,
			"files", flag.NArg(),
			"voice_types", voices,
			"npcs", npcs,
		)
		return exitOK
	}

	runSeed := resolveSeed(cfg.Patch.Seed)
	slog.Info("votpatch starting",
		"version", version,
		"config", *configPath,
		"backend", cfg.Store.Backend,
		"patch", cfg.Patch.Name,
		"mappings", len(cfg.Mappings),
		"seed", runSeed,
		"dry_run", cfg.Patch.DryRun,
	)

	// ── Run ───────────────────────────────────────────────────────────────────
	patch := record.NewPatch(cfg.Patch.Name)
	res, err := patcher.Run(ctx, src, cfg.Mappings, runOptions(cfg, logger, runSeed, patch)...)
	if errors.Is(err, patcher.ErrNoMappings) {
		slog.Error("none of the configured target voices could be found; nothing to patch", "err", err)
		return exitNoMappings
	}
	if err != nil {
		slog.Error("patch run failed", "err", err)
		return exitError
	}

	if cfg.Patch.DryRun {
		slog.Info("dry run, patch not written", "overrides", patch.Len())
	} else if err := writePatch(ctx, writer, patch); err != nil {
		slog.Error("failed to write patch", "err", err)
		return exitError
	}

	if err := report.Write(os.Stdout, report.Header{
		Patch:  cfg.Patch.Name,
		Seed:   runSeed,
		DryRun: cfg.Patch.DryRun,
	}, res.Summary); err != nil {
		slog.Warn("failed to print summary", "err", err)
	}
	slog.Info("votpatch finished",
		"run_id", res.RunID,
		"summary", report.Line(res.Summary),
		"duration", res.Duration,
	)

	if path := cfg.Telemetry.MetricsFile; path != "" {
		if err := tel.WriteMetricsFile(path); err != nil {
			slog.Warn("failed to write metrics file", "err", err)
		}
	}
	return exitOK
}

// buildConfig layers the configuration sources in precedence order: the file
// at path, then environment, then the flags applied by flags. Defaults and
// validation run last so any layer can supply a required value.
func buildConfig(path string, explicit bool, environment map[string]string, flags func(*config.Config)) (*config.Config, error) {
	cfg, err := loadConfig(path, explicit)
	if err != nil {
		return nil, err
	}
	if err := config.ApplyEnvFrom(cfg, environment); err != nil {
		return nil, err
	}
	if flags != nil {
		flags(cfg)
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// loadConfig decodes the configuration file without validating it. When the
// default path is absent and -config was not given, it falls back to
// [config.Default] so the store can be supplied entirely from the environment.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.LoadRaw(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default(), nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", path)
	}
	return nil, err
}

// runOptions assembles the patcher options for one run.
func runOptions(cfg *config.Config, logger *slog.Logger, seed uint64, patch *record.Patch) []patcher.Option {
	opts := []patcher.Option{
		patcher.WithLogger(logger),
		patcher.WithMetrics(observe.DefaultMetrics()),
		patcher.WithDrawer(rand.New(rand.NewPCG(seed, seed))),
		patcher.WithPatch(patch),
	}
	if cfg.Suggest.Enabled {
		var mopts []suggest.Option
		if t := cfg.Suggest.Threshold; t > 0 {
			mopts = append(mopts, suggest.WithFuzzyThreshold(t))
		}
		opts = append(opts, patcher.WithSuggester(suggest.New(mopts...)))
	}
	return opts
}

// resolveSeed returns the configured seed or draws a fresh one.
func resolveSeed(configured *uint64) uint64 {
	if configured != nil {
		return *configured
	}
	return rand.Uint64()
}

// writePatch persists p through w. Writers that can read their patch back are
// checked for every override afterwards.
func writePatch(ctx context.Context, w record.PatchWriter, p *record.Patch) error {
	ctx, span := observe.StartSpan(ctx, "patcher.write",
		attribute.String("patch", p.Name()),
		attribute.Int("overrides", p.Len()),
	)
	defer span.End()

	if w == nil {
		return errors.New("store backend cannot persist patches")
	}
	if err := w.WritePatch(ctx, p); err != nil {
		span.RecordError(err)
		return err
	}
	verified := false
	if r, ok := w.(record.PatchReader); ok {
		if err := verifyPatch(ctx, r, p); err != nil {
			span.RecordError(err)
			return err
		}
		verified = true
	}
	observe.Logger(ctx, nil).Info("patch written", "patch", p.Name(), "overrides", p.Len(), "verified", verified)
	return nil
}

func verifyPatch(ctx context.Context, r record.PatchReader, p *record.Patch) error {
	stored, err := r.PatchVoices(ctx, p.Name())
	if err != nil {
		return fmt.Errorf("verify patch %q: %w", p.Name(), err)
	}
	for _, o := range p.Overrides() {
		if got, ok := stored[o.Key]; !ok || got != o.Voice {
			return fmt.Errorf("verify patch %q: override of %s stored as %q, want %q", p.Name(), o.Key, got, o.Voice)
		}
	}
	return nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
