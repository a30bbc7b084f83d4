package main

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/votpatch/internal/observe"
	"github.com/MrWong99/votpatch/internal/record"
)

// importDumps loads the YAML record dumps at paths and imports them into src
// as a single batch. Form keys repeated across files fail the whole import.
func importDumps(ctx context.Context, src record.Source, paths []string) (voices, npcs int, err error) {
	ctx, span := observe.StartSpan(ctx, "record.import", attribute.Int("files", len(paths)))
	defer span.End()

	imp, ok := src.(record.Importer)
	if !ok {
		return 0, 0, fmt.Errorf("store backend cannot import records; use sqlite or postgres")
	}
	dumps, err := record.LoadDumps(ctx, paths...)
	if err != nil {
		span.RecordError(err)
		return 0, 0, err
	}

	all := &record.Dump{}
	for _, d := range dumps {
		all.VoiceTypes = append(all.VoiceTypes, d.VoiceTypes...)
		all.NPCs = append(all.NPCs, d.NPCs...)
	}
	if err := imp.Import(ctx, all); err != nil {
		span.RecordError(err)
		return 0, 0, err
	}
	return len(all.VoiceTypes), len(all.NPCs), nil
}
