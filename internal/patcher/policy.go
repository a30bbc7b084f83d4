package patcher

import (
	"fmt"

	"github.com/MrWong99/votpatch/internal/record"
)

// Drawer is the source of uniform randomness used by [Decide].
// *rand.Rand from math/rand/v2 satisfies it.
type Drawer interface {
	// IntN returns a uniformly distributed integer in [0, n).
	IntN(n int) int
}

// Action is the outcome of a reassignment decision.
type Action int

const (
	// Keep leaves the record untouched.
	Keep Action = iota

	// Reassign points the record at Decision.Target.
	Reassign
)

// String implements [fmt.Stringer].
func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Reassign:
		return "reassign"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Decision is the verdict for one eligible record.
type Decision struct {
	Action Action

	// Target is the chosen voice when Action is Reassign.
	Target record.VoiceType

	// Draw is the raw value drawn from [0, len(candidates)].
	Draw int
}

// Decide draws once from [0, n] where n is len(candidates): 0 keeps the
// current voice, k selects candidates[k-1]. Every outcome is equally likely.
//
// Decide panics if candidates is empty or the drawer returns a value outside
// the requested range.
func Decide(candidates []record.VoiceType, d Drawer) Decision {
	n := len(candidates)
	if n == 0 {
		panic("patcher: Decide called without candidates")
	}
	draw := d.IntN(n + 1)
	if draw < 0 || draw > n {
		panic(fmt.Sprintf("patcher: drawer returned %d outside [0, %d]", draw, n))
	}
	if draw == 0 {
		return Decision{Action: Keep}
	}
	return Decision{Action: Reassign, Target: candidates[draw-1], Draw: draw}
}

// Decide looks the current voice identifier up in t and, if it matches a
// source, draws a decision from that entry's candidates. ok is false for
// ineligible records; the drawer is not consulted then.
func (t *Table) Decide(current string, d Drawer) (dec Decision, entry *Entry, ok bool) {
	entry, ok = t.Lookup(current)
	if !ok {
		return Decision{}, nil, false
	}
	return Decide(entry.Candidates, d), entry, true
}
