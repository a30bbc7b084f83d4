// Package patcher implements the voice reassignment run: it resolves the
// configured source → target mappings against a [record.Source], walks every
// NPC, and for each NPC voiced by a configured source either keeps the voice
// or moves it to one uniformly chosen target, recording the change in a
// [record.Patch].
//
// A run is single-threaded. Its counters and random generator live in a
// per-run context, so independent runs never share state.
package patcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/votpatch/internal/observe"
	"github.com/MrWong99/votpatch/internal/record"
)

// Summary holds the counts of one run.
type Summary struct {
	// Scanned is the number of NPC records inspected.
	Scanned int

	// Voiceless counts NPCs without a voice reference.
	Voiceless int

	// Dangling counts NPCs whose voice reference did not resolve.
	Dangling int

	// Ineligible counts NPCs whose voice matches no configured source,
	// including voiceless and dangling ones.
	Ineligible int

	// Kept counts eligible NPCs that kept their voice.
	Kept int

	// Reassigned counts eligible NPCs that received a new voice.
	Reassigned int

	// Sources breaks Kept and Reassigned down per mapping, in declaration
	// order.
	Sources []SourceSummary
}

// Eligible returns Kept + Reassigned.
func (s Summary) Eligible() int {
	return s.Kept + s.Reassigned
}

// SourceSummary is the per-mapping part of a [Summary].
type SourceSummary struct {
	Source     string
	Candidates int
	Kept       int
	Reassigned int

	// Targets counts reassignments per target editor ID.
	Targets map[string]int
}

// Result is the outcome of a successful [Run].
type Result struct {
	Summary Summary

	// Table is the resolved mapping table the run used.
	Table *Table

	// Patch holds one override per reassigned NPC.
	Patch *record.Patch

	// Duration is the wall time of the run.
	Duration time.Duration

	// RunID is the trace ID of the run's span, empty when tracing is off.
	RunID string
}

// runState is the explicit per-run context threaded through the scan.
type runState struct {
	src     record.Source
	table   *Table
	drawer  Drawer
	patch   *record.Patch
	metrics *observe.Metrics
	log     *slog.Logger

	summary  Summary
	bySource map[string]int // entry key -> index into summary.Sources
}

// Run resolves mappings against src and applies the reassignment policy to
// every NPC in src.
//
// It returns [ErrNoMappings] without scanning when no mapping resolves, and a
// wrapped error when src fails. All other per-record conditions are absorbed
// and logged.
func Run(ctx context.Context, src record.Source, mappings []Mapping, opts ...Option) (*Result, error) {
	o := newOptions(opts)
	start := time.Now()

	ctx, span := observe.StartSpan(ctx, "patcher.run")
	defer span.End()

	table, err := Resolve(ctx, src, mappings, opts...)
	if err != nil {
		o.metrics.RecordRun(ctx, time.Since(start), status(err))
		return nil, err
	}

	st := &runState{
		src:      src,
		table:    table,
		drawer:   o.drawer,
		patch:    o.patch,
		metrics:  o.metrics,
		log:      observe.Logger(ctx, o.logger),
		bySource: make(map[string]int, table.Len()),
	}
	for i, e := range table.Entries() {
		st.bySource[e.Key] = i
		st.summary.Sources = append(st.summary.Sources, SourceSummary{
			Source:     e.Source,
			Candidates: len(e.Candidates),
			Targets:    make(map[string]int, len(e.Candidates)),
		})
	}

	scanCtx, scanSpan := observe.StartSpan(ctx, "patcher.scan", attribute.Int("mappings", table.Len()))
	err = src.EachNPC(scanCtx, func(n record.NPC) error {
		return st.visit(scanCtx, n)
	})
	scanSpan.SetAttributes(
		attribute.Int("scanned", st.summary.Scanned),
		attribute.Int("kept", st.summary.Kept),
		attribute.Int("reassigned", st.summary.Reassigned),
	)
	scanSpan.End()

	elapsed := time.Since(start)
	o.metrics.RecordRun(ctx, elapsed, status(err))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("patcher: scan npcs: %w", err)
	}

	runID := observe.RunID(ctx)
	st.log.Info("patch run finished",
		"run_id", runID,
		"scanned", st.summary.Scanned,
		"kept", st.summary.Kept,
		"reassigned", st.summary.Reassigned,
		"duration", elapsed,
	)
	return &Result{
		Summary:  st.summary,
		Table:    table,
		Patch:    st.patch,
		Duration: elapsed,
		RunID:    runID,
	}, nil
}

// visit moves one NPC through Unscanned → Ineligible | Kept | Reassigned.
func (st *runState) visit(ctx context.Context, n record.NPC) error {
	st.summary.Scanned++
	st.metrics.NPCsScanned.Add(ctx, 1)

	if n.Voice.IsNull() {
		st.summary.Voiceless++
		st.summary.Ineligible++
		return nil
	}
	current, err := st.src.VoiceByKey(ctx, n.Voice)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			st.summary.Dangling++
			st.summary.Ineligible++
			st.log.Debug("npc voice reference does not resolve", "npc", n.Label(), "voice", n.Voice)
			return nil
		}
		return fmt.Errorf("resolve voice of %s: %w", n.Label(), err)
	}

	dec, entry, ok := st.table.Decide(current.EditorID, st.drawer)
	if !ok {
		st.summary.Ineligible++
		return nil
	}
	src := &st.summary.Sources[st.bySource[entry.Key]]

	switch dec.Action {
	case Keep:
		st.summary.Kept++
		src.Kept++
		st.metrics.RecordKept(ctx, entry.Key)
		st.log.Info("keeping original voice", "npc", n.Label(), "voice", current.EditorID)
	case Reassign:
		st.patch.SetVoice(n, dec.Target)
		st.summary.Reassigned++
		src.Reassigned++
		src.Targets[dec.Target.EditorID]++
		st.metrics.RecordReassigned(ctx, entry.Key, dec.Target.EditorID)
		st.log.Info("patched npc voice",
			"npc", n.Label(),
			"from", current.EditorID,
			"to", dec.Target.EditorID,
		)
	}
	return nil
}

func status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoMappings):
		return "no_mappings"
	default:
		return "error"
	}
}
