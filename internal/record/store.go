package record

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups when the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateKey is returned when a record with the same form key has already
// been added.
var ErrDuplicateKey = errors.New("record with that key already exists")

// Source is read-only access to the winning records of a load order.
//
// Implementations must not mutate records in response to patching; all writes
// go through a [Patch].
type Source interface {
	// LookupVoice resolves a voice type by editor ID (case-insensitive).
	// Returns [ErrNotFound] when no voice type carries that editor ID.
	LookupVoice(ctx context.Context, editorID string) (VoiceType, error)

	// VoiceByKey resolves a voice type by form key.
	// Returns [ErrNotFound] for dangling references.
	VoiceByKey(ctx context.Context, key FormKey) (VoiceType, error)

	// EachNPC calls fn for every NPC record in iteration order. Iteration
	// stops at the first error returned by fn, which is passed through.
	EachNPC(ctx context.Context, fn func(NPC) error) error
}

// VoiceLister is implemented by sources that can enumerate their voice types.
// It is optional; callers type-assert for it.
type VoiceLister interface {
	// ListVoices returns every voice type in the source.
	ListVoices(ctx context.Context) ([]VoiceType, error)
}

// PatchWriter persists the overrides collected in a [Patch].
type PatchWriter interface {
	// WritePatch stores every override in p. Writing an empty patch is not
	// an error.
	WritePatch(ctx context.Context, p *Patch) error
}

// Importer is implemented by stores that can be filled from a [Dump].
type Importer interface {
	// Import adds every record of d. A form key already present fails with
	// an error wrapping [ErrDuplicateKey] and nothing of d is kept.
	Import(ctx context.Context, d *Dump) error
}

// PatchReader is implemented by patch writers that can read a stored patch
// back.
type PatchReader interface {
	// PatchVoices returns the stored overrides of the named patch as NPC form
	// key to voice form key, keys as written.
	PatchVoices(ctx context.Context, patch string) (map[FormKey]FormKey, error)
}
