package record

import "sync"

// DefaultPatchName is the plugin file name used when none is configured.
const DefaultPatchName = "VOT_patcher.esp"

// Patch is an override table. Overrides are created lazily on first write and
// keyed by the normalized form key of the base record; the base record itself
// is never modified.
//
// All methods are safe for concurrent use.
type Patch struct {
	name string

	mu        sync.Mutex
	overrides map[FormKey]*NPC
	order     []FormKey
}

// NewPatch returns an empty [Patch] with the given plugin name. An empty name
// selects [DefaultPatchName].
func NewPatch(name string) *Patch {
	if name == "" {
		name = DefaultPatchName
	}
	return &Patch{
		name:      name,
		overrides: make(map[FormKey]*NPC),
	}
}

// Name returns the plugin name of the patch.
func (p *Patch) Name() string {
	return p.name
}

// Override returns the override for base, creating it as a copy of base if it
// does not exist yet. The returned pointer remains valid for the life of the
// patch; callers must not retain it across goroutines without their own
// synchronisation.
func (p *Patch) Override(base NPC) *NPC {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overrideLocked(base)
}

func (p *Patch) overrideLocked(base NPC) *NPC {
	key := base.Key.Normalized()
	if o, ok := p.overrides[key]; ok {
		return o
	}
	o := base
	p.overrides[key] = &o
	p.order = append(p.order, key)
	return &o
}

// SetVoice points the override of base at voice.
func (p *Patch) SetVoice(base NPC, voice VoiceType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrideLocked(base).Voice = voice.Key
}

// Lookup returns the override for key, if one exists.
func (p *Patch) Lookup(key FormKey) (NPC, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.overrides[key.Normalized()]
	if !ok {
		return NPC{}, false
	}
	return *o, true
}

// Overrides returns copies of all overrides in creation order.
func (p *Patch) Overrides() []NPC {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]NPC, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, *p.overrides[k])
	}
	return out
}

// Len returns the number of overrides.
func (p *Patch) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
