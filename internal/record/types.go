// Package record provides the load-order record store consumed by the voice
// patcher.
//
// A [Source] exposes read-only access to the winning voice-type and NPC
// records of a load order. Changes are never written back to a Source; they are
// collected in a [Patch], an override table keyed by NPC form key, and
// persisted by a [PatchWriter].
//
// Supported backends:
//   - YAML record dumps ([LoadDumpFile], [LoadDumpFiles]) into a [MemSource]
//   - SQLite databases ([OpenSQLite])
//   - PostgreSQL ([NewPostgresSource])
package record

import (
	"strings"

	"golang.org/x/text/cases"
)

// FormKey identifies a record within a load order. It has the form
// "<hex id>:<plugin file>", e.g. "0002F7C3:Skyrim.esm".
type FormKey string

// IsNull reports whether k references no record.
func (k FormKey) IsNull() bool {
	return strings.TrimSpace(string(k)) == ""
}

// Normalized returns the canonical comparison form of k.
func (k FormKey) Normalized() FormKey {
	return FormKey(Fold(strings.TrimSpace(string(k))))
}

// String implements [fmt.Stringer].
func (k FormKey) String() string {
	return string(k)
}

// VoiceType is a voice-type record.
type VoiceType struct {
	// Key is the record's form key.
	Key FormKey `yaml:"key" json:"key"`

	// EditorID is the human-readable identifier, e.g. "MaleCommoner".
	EditorID string `yaml:"editor_id" json:"editor_id"`
}

// NPC is a non-player character record as seen by the patcher.
type NPC struct {
	// Key is the record's form key.
	Key FormKey `yaml:"key" json:"key"`

	// EditorID is the NPC's editor identifier. May be empty.
	EditorID string `yaml:"editor_id,omitempty" json:"editor_id,omitempty"`

	// Name is the in-game display name. May be empty.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Voice references the NPC's voice-type record. Empty when the NPC has
	// no voice assigned.
	Voice FormKey `yaml:"voice,omitempty" json:"voice,omitempty"`
}

// Label returns a short description of n for log output.
func (n NPC) Label() string {
	if n.EditorID != "" {
		return n.EditorID + " [" + string(n.Key) + "]"
	}
	return "[" + string(n.Key) + "]"
}

// Fold returns the case-folded form of an identifier. Editor IDs and form
// keys compare case-insensitively, so every lookup index is keyed by Fold.
func Fold(s string) string {
	return cases.Fold().String(s)
}
