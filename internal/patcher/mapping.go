package patcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/votpatch/internal/observe"
	"github.com/MrWong99/votpatch/internal/record"
)

// ErrNoMappings is returned when not a single mapping has a resolvable target.
// No record is scanned in that case.
var ErrNoMappings = errors.New("patcher: none of the specified target voices could be found")

// Mapping declares that NPCs voiced by Source should be spread across Targets.
// Identifiers are voice-type editor IDs and compare case-insensitively.
type Mapping struct {
	Source  string   `yaml:"source"`
	Targets []string `yaml:"targets"`
}

// Entry is one resolved mapping. Candidates is never empty and keeps the
// declared target order, minus targets that did not resolve.
type Entry struct {
	// Source is the source identifier as declared.
	Source string

	// Key is the folded form of Source.
	Key string

	// Candidates are the resolved target voice types.
	Candidates []record.VoiceType
}

// Table maps folded source identifiers to resolved entries. The zero value is
// an empty table.
type Table struct {
	entries map[string]*Entry
	order   []string
}

// NewTable returns a table holding the given entries. Entries without
// candidates or with a source key already present are skipped.
func NewTable(entries ...Entry) *Table {
	t := &Table{}
	for _, e := range entries {
		t.add(e)
	}
	return t
}

func (t *Table) add(e Entry) bool {
	if len(e.Candidates) == 0 {
		return false
	}
	if e.Key == "" {
		e.Key = record.Fold(e.Source)
	}
	if t.entries == nil {
		t.entries = make(map[string]*Entry)
	}
	if _, exists := t.entries[e.Key]; exists {
		return false
	}
	t.entries[e.Key] = &e
	t.order = append(t.order, e.Key)
	return true
}

// Lookup returns the entry whose source matches editorID case-insensitively.
func (t *Table) Lookup(editorID string) (*Entry, bool) {
	if t == nil || t.entries == nil || editorID == "" {
		return nil, false
	}
	e, ok := t.entries[record.Fold(editorID)]
	return e, ok
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// Entries returns the entries in declaration order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, *t.entries[k])
	}
	return out
}

// Resolve turns declared mappings into a [Table] by looking every target up in
// src.
//
// A target that does not resolve is logged and skipped; a mapping left without
// candidates is logged and dropped. If no mapping survives, Resolve returns
// [ErrNoMappings]. Lookup failures other than [record.ErrNotFound] abort
// resolution.
func Resolve(ctx context.Context, src record.Source, mappings []Mapping, opts ...Option) (*Table, error) {
	o := newOptions(opts)

	ctx, span := observe.StartSpan(ctx, "patcher.resolve", attribute.Int("mappings", len(mappings)))
	defer span.End()
	log := observe.Logger(ctx, o.logger)

	h := &hinter{src: src, matcher: o.matcher, log: log}
	table := &Table{}
	for _, m := range mappings {
		key := record.Fold(m.Source)
		if _, dup := table.Lookup(m.Source); dup {
			log.Warn("duplicate source voice, mapping skipped", "source", m.Source)
			continue
		}

		var candidates []record.VoiceType
		for _, target := range m.Targets {
			v, err := src.LookupVoice(ctx, target)
			switch {
			case err == nil:
				candidates = append(candidates, v)
				log.Info("found target voice", "source", m.Source, "target", v.EditorID, "key", v.Key)
			case errors.Is(err, record.ErrNotFound):
				o.metrics.RecordUnresolved(ctx, key)
				attrs := []any{"source", m.Source, "target", target}
				if hints := h.hints(ctx, target); len(hints) > 0 {
					attrs = append(attrs, "did_you_mean", strings.Join(hints, ", "))
				}
				log.Warn("could not find target voice type, it will be skipped", attrs...)
			default:
				span.RecordError(err)
				return nil, fmt.Errorf("patcher: resolve target %q of %q: %w", target, m.Source, err)
			}
		}

		if len(candidates) == 0 {
			o.metrics.MappingsDropped.Add(ctx, 1)
			log.Warn("no target voice of mapping could be found, mapping dropped",
				"source", m.Source, "declared", len(m.Targets))
			continue
		}
		table.add(Entry{Source: m.Source, Key: key, Candidates: candidates})
		log.Info("mapping ready",
			"source", m.Source,
			"candidates", len(candidates),
			"declared", len(m.Targets),
		)
	}

	if table.Len() == 0 {
		log.Error("none of the specified target voices could be found, patcher cannot continue")
		span.RecordError(ErrNoMappings)
		return nil, ErrNoMappings
	}
	return table, nil
}

// hinter lazily lists the voice types of a source for "did you mean" hints.
type hinter struct {
	src     record.Source
	matcher Suggester
	log     *slog.Logger
	known   []string
	loaded  bool
}

func (h *hinter) hints(ctx context.Context, id string) []string {
	if h.matcher == nil {
		return nil
	}
	if !h.loaded {
		h.loaded = true
		lister, ok := h.src.(record.VoiceLister)
		if !ok {
			return nil
		}
		voices, err := lister.ListVoices(ctx)
		if err != nil {
			h.log.Debug("listing voice types for suggestions failed", "err", err)
			return nil
		}
		h.known = make([]string, 0, len(voices))
		for _, v := range voices {
			h.known = append(h.known, v.EditorID)
		}
	}
	if len(h.known) == 0 {
		return nil
	}
	return h.matcher.IDs(id, h.known)
}
