package patcher

import (
	"log/slog"
	"math/rand/v2"

	"github.com/MrWong99/votpatch/internal/observe"
	"github.com/MrWong99/votpatch/internal/record"
)

// Suggester proposes known identifiers similar to one that did not resolve.
// *suggest.Matcher satisfies it.
type Suggester interface {
	IDs(id string, known []string) []string
}

// Option configures [Resolve] and [Run].
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *observe.Metrics
	matcher Suggester
	drawer  Drawer
	patch   *record.Patch
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	if o.drawer == nil {
		o.drawer = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if o.patch == nil {
		o.patch = record.NewPatch("")
	}
	return o
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metric instruments. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithSuggester enables "did you mean" hints for unresolved targets.
func WithSuggester(s Suggester) Option {
	return func(o *options) { o.matcher = s }
}

// WithDrawer sets the randomness source. Default: a randomly seeded PCG.
func WithDrawer(d Drawer) Option {
	return func(o *options) { o.drawer = d }
}

// WithPatch sets the override table that receives reassignments. Default: a
// new patch named [record.DefaultPatchName].
func WithPatch(p *record.Patch) Option {
	return func(o *options) { o.patch = p }
}
