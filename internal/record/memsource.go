package record

import (
	"context"
	"fmt"
	"sync"
)

// Compile-time assertions that MemSource satisfies Source and VoiceLister.
var (
	_ Source      = (*MemSource)(nil)
	_ VoiceLister = (*MemSource)(nil)
)

// MemSource is a thread-safe, in-memory implementation of [Source].
// NPCs are iterated in insertion order. The zero value is ready to use.
type MemSource struct {
	mu sync.RWMutex

	voices    map[FormKey]VoiceType // by normalized key
	byEditor  map[string]FormKey    // folded editor ID -> normalized key
	voiceKeys []FormKey             // insertion order

	npcs    map[FormKey]int // normalized key -> index into npcList
	npcList []NPC
}

// NewMemSource returns an initialised [MemSource].
func NewMemSource() *MemSource {
	s := &MemSource{}
	s.init()
	return s
}

func (s *MemSource) init() {
	if s.voices == nil {
		s.voices = make(map[FormKey]VoiceType)
		s.byEditor = make(map[string]FormKey)
		s.npcs = make(map[FormKey]int)
	}
}

// AddVoice adds a voice-type record. Returns [ErrDuplicateKey] if a voice type
// with the same form key exists. When two voice types share an editor ID the
// first one added wins lookups.
func (s *MemSource) AddVoice(v VoiceType) error {
	if v.Key.IsNull() {
		return fmt.Errorf("record: voice type %q has no key", v.EditorID)
	}
	key := v.Key.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if _, exists := s.voices[key]; exists {
		return fmt.Errorf("record: voice type %s: %w", v.Key, ErrDuplicateKey)
	}
	s.voices[key] = v
	s.voiceKeys = append(s.voiceKeys, key)
	if v.EditorID != "" {
		folded := Fold(v.EditorID)
		if _, taken := s.byEditor[folded]; !taken {
			s.byEditor[folded] = key
		}
	}
	return nil
}

// AddNPC adds an NPC record. Returns [ErrDuplicateKey] if an NPC with the same
// form key exists.
func (s *MemSource) AddNPC(n NPC) error {
	if n.Key.IsNull() {
		return fmt.Errorf("record: npc %q has no key", n.EditorID)
	}
	key := n.Key.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if _, exists := s.npcs[key]; exists {
		return fmt.Errorf("record: npc %s: %w", n.Key, ErrDuplicateKey)
	}
	s.npcs[key] = len(s.npcList)
	s.npcList = append(s.npcList, n)
	return nil
}

// BulkImport adds every voice type and NPC in d. The import is best-effort:
// records are added one at a time and the first error aborts it, returning the
// number of records added so far.
func (s *MemSource) BulkImport(d *Dump) (int, error) {
	count := 0
	for _, v := range d.VoiceTypes {
		if err := s.AddVoice(v); err != nil {
			return count, err
		}
		count++
	}
	for _, n := range d.NPCs {
		if err := s.AddNPC(n); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// LookupVoice implements [Source.LookupVoice].
func (s *MemSource) LookupVoice(ctx context.Context, editorID string) (VoiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.byEditor[Fold(editorID)]
	if !ok {
		return VoiceType{}, ErrNotFound
	}
	return s.voices[key], nil
}

// VoiceByKey implements [Source.VoiceByKey].
func (s *MemSource) VoiceByKey(ctx context.Context, key FormKey) (VoiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.voices[key.Normalized()]
	if !ok {
		return VoiceType{}, ErrNotFound
	}
	return v, nil
}

// EachNPC implements [Source.EachNPC]. It iterates over a snapshot, so fn may
// safely call back into the source.
func (s *MemSource) EachNPC(ctx context.Context, fn func(NPC) error) error {
	s.mu.RLock()
	snapshot := make([]NPC, len(s.npcList))
	copy(snapshot, s.npcList)
	s.mu.RUnlock()

	for _, n := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}

// ListVoices implements [VoiceLister.ListVoices].
func (s *MemSource) ListVoices(ctx context.Context) ([]VoiceType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]VoiceType, 0, len(s.voiceKeys))
	for _, k := range s.voiceKeys {
		out = append(out, s.voices[k])
	}
	return out, nil
}

// Len returns the number of voice types and NPCs held by the source.
func (s *MemSource) Len() (voices, npcs int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.voices), len(s.npcList)
}
