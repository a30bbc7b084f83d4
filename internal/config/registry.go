package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/MrWong99/votpatch/internal/record"
)

// ErrBackendNotRegistered is returned by [Registry.Create] when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: store backend not registered")

// BackendFactory opens a record store. The returned closer releases whatever
// the backend holds open and must be called once the run is done; it may be a
// no-op.
type BackendFactory func(ctx context.Context, cfg StoreConfig) (record.Source, record.PatchWriter, io.Closer, error)

// Registry maps backend names to their factories. It is safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	backends map[Backend]BackendFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{backends: make(map[Backend]BackendFactory)}
}

// RegisterBackend registers a store factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterBackend(name Backend, factory BackendFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = factory
}

// Backends returns the registered backend names in sorted order.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]Backend, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Create opens the store using the factory registered under cfg.Backend.
// Returns [ErrBackendNotRegistered] if no factory has been registered for that
// name.
func (r *Registry) Create(ctx context.Context, cfg StoreConfig) (record.Source, record.PatchWriter, io.Closer, error) {
	r.mu.RLock()
	factory, ok := r.backends[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %q (registered: %v)", ErrBackendNotRegistered, cfg.Backend, r.Backends())
	}
	src, w, closer, err := factory(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("config: open %s store: %w", cfg.Backend, err)
	}
	if closer == nil {
		closer = nopCloser{}
	}
	return src, w, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
