// Package observe provides observability primitives for votpatch:
// OpenTelemetry metrics, tracing, and a trace-aware structured logger.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them into a Prometheus registry which [WriteMetricsFile] dumps in
// the text exposition format, so a batch run can feed the node_exporter
// textfile collector. Tests should use [NewMetrics] with their own
// [metric.MeterProvider].
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all votpatch metrics.
const meterName = "github.com/MrWong99/votpatch"

// Metrics holds all metric instruments for a patch run.
// All fields are safe for concurrent use.
type Metrics struct {
	// NPCsScanned counts every NPC record inspected.
	NPCsScanned metric.Int64Counter

	// NPCsKept counts eligible NPCs that kept their voice. Use with
	// attribute.String("source", ...).
	NPCsKept metric.Int64Counter

	// NPCsReassigned counts eligible NPCs that received a new voice. Use with
	// attribute.String("source", ...) and attribute.String("target", ...).
	NPCsReassigned metric.Int64Counter

	// TargetsUnresolved counts target identifiers that did not resolve. Use
	// with attribute.String("source", ...).
	TargetsUnresolved metric.Int64Counter

	// MappingsDropped counts mappings left without candidates.
	MappingsDropped metric.Int64Counter

	// RunDuration tracks the wall time of a full run.
	RunDuration metric.Float64Histogram
}

// runBuckets defines histogram bucket boundaries (in seconds) for run
// durations; large load orders take minutes.
var runBuckets = []float64{
	0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.NPCsScanned, err = m.Int64Counter("votpatch.npcs.scanned",
		metric.WithDescription("Total NPC records inspected."),
	); err != nil {
		return nil, err
	}
	if met.NPCsKept, err = m.Int64Counter("votpatch.npcs.kept",
		metric.WithDescription("Eligible NPCs that kept their voice, by source voice."),
	); err != nil {
		return nil, err
	}
	if met.NPCsReassigned, err = m.Int64Counter("votpatch.npcs.reassigned",
		metric.WithDescription("Eligible NPCs that were reassigned, by source and target voice."),
	); err != nil {
		return nil, err
	}
	if met.TargetsUnresolved, err = m.Int64Counter("votpatch.targets.unresolved",
		metric.WithDescription("Target voice identifiers that did not resolve, by source voice."),
	); err != nil {
		return nil, err
	}
	if met.MappingsDropped, err = m.Int64Counter("votpatch.mappings.dropped",
		metric.WithDescription("Mappings dropped because no target resolved."),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("votpatch.run.duration",
		metric.WithDescription("Wall time of a patch run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(runBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordKept records one eligible NPC that kept its voice.
func (m *Metrics) RecordKept(ctx context.Context, source string) {
	m.NPCsKept.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordReassigned records one eligible NPC moved from source to target.
func (m *Metrics) RecordReassigned(ctx context.Context, source, target string) {
	m.NPCsReassigned.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("target", target),
		),
	)
}

// RecordUnresolved records a target identifier of source that did not resolve.
func (m *Metrics) RecordUnresolved(ctx context.Context, source string) {
	m.TargetsUnresolved.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordRun records the duration of a finished run.
func (m *Metrics) RecordRun(ctx context.Context, d time.Duration, status string) {
	m.RunDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}
