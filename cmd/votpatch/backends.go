package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/votpatch/internal/config"
	"github.com/MrWong99/votpatch/internal/record"
)

// registerBuiltinBackends wires the store backends that ship with votpatch
// into reg. The yaml backend writes its patch to patchCfg.Output.
func registerBuiltinBackends(reg *config.Registry, patchCfg config.PatchConfig) {
	reg.RegisterBackend(config.BackendYAML, func(ctx context.Context, cfg config.StoreConfig) (record.Source, record.PatchWriter, io.Closer, error) {
		src, err := record.LoadDumpFiles(ctx, cfg.Paths...)
		if err != nil {
			return nil, nil, nil, err
		}
		voices, npcs := src.Len()
		slog.Info("record dumps loaded", "files", len(cfg.Paths), "voice_types", voices, "npcs", npcs)
		return src, &record.FileWriter{Path: patchCfg.Output}, nil, nil
	})

	reg.RegisterBackend(config.BackendSQLite, func(ctx context.Context, cfg config.StoreConfig) (record.Source, record.PatchWriter, io.Closer, error) {
		if len(cfg.Paths) == 0 {
			return nil, nil, nil, fmt.Errorf("sqlite backend needs a database path")
		}
		s, err := record.OpenSQLite(ctx, cfg.Paths[0])
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, s, nil
	})

	reg.RegisterBackend(config.BackendPostgres, func(ctx context.Context, cfg config.StoreConfig) (record.Source, record.PatchWriter, io.Closer, error) {
		pool, err := pgxpool.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		s := record.NewPostgresSource(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return s, s, closerFunc(pool.Close), nil
	})

	for _, name := range reg.Backends() {
		slog.Debug("registered store backend", "name", name)
	}
}

// closerFunc adapts a func() to [io.Closer].
type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
