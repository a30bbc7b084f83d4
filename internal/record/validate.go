package record

import (
	"errors"
	"fmt"
)

// ValidateDump checks a [Dump] for structural problems.
//
// Rules:
//   - Every voice type and NPC must have a non-empty key.
//   - Every voice type must have an editor ID.
//   - Keys must be unique within their record type (case-insensitive).
//
// NPC voice references are not checked; dangling references are legal and
// simply never match.
func ValidateDump(d *Dump) error {
	var errs []error

	voiceKeys := make(map[FormKey]int, len(d.VoiceTypes))
	for i, v := range d.VoiceTypes {
		if v.Key.IsNull() {
			errs = append(errs, fmt.Errorf("voice_types[%d]: key must not be empty", i))
			continue
		}
		if v.EditorID == "" {
			errs = append(errs, fmt.Errorf("voice_types[%d]: editor_id must not be empty", i))
		}
		k := v.Key.Normalized()
		if prev, ok := voiceKeys[k]; ok {
			errs = append(errs, fmt.Errorf("voice_types[%d]: key %q is a duplicate of voice_types[%d]", i, v.Key, prev))
			continue
		}
		voiceKeys[k] = i
	}

	npcKeys := make(map[FormKey]int, len(d.NPCs))
	for i, n := range d.NPCs {
		if n.Key.IsNull() {
			errs = append(errs, fmt.Errorf("npcs[%d]: key must not be empty", i))
			continue
		}
		k := n.Key.Normalized()
		if prev, ok := npcKeys[k]; ok {
			errs = append(errs, fmt.Errorf("npcs[%d]: key %q is a duplicate of npcs[%d]", i, n.Key, prev))
			continue
		}
		npcKeys[k] = i
	}

	return errors.Join(errs...)
}
