// Package clock implements the per-thread logical clocks used for
// happens-before reasoning (component B of the design, spec §4.B).
package clock

// VectorClock is a Lamport-style vector clock over stable thread uids.
// Components absent from the underlying map read as zero, so a clock
// can grow to accommodate new threads without being told its final
// size up front.
type VectorClock struct {
	clock map[uint32]uint32
}

// New creates an empty vector clock.
func New() *VectorClock {
	return &VectorClock{clock: make(map[uint32]uint32)}
}

// Get returns the component of the clock for thread uid t.
func (vc *VectorClock) Get(t uint32) uint32 {
	if vc == nil {
		return 0
	}
	return vc.clock[t]
}

// Set sets the component of the clock for thread uid t.
func (vc *VectorClock) Set(t uint32, v uint32) {
	if vc.clock == nil {
		vc.clock = make(map[uint32]uint32)
	}
	vc.clock[t] = v
}

// Increment bumps the component for thread uid t by one and returns
// the new value. Per invariant I4, a thread always increments its own
// component before a release (lock unlock, cond signal, barrier wait).
func (vc *VectorClock) Increment(t uint32) uint32 {
	if vc.clock == nil {
		vc.clock = make(map[uint32]uint32)
	}
	vc.clock[t]++
	return vc.clock[t]
}

// Join updates vc in place to the component-wise maximum of vc and
// other (the "last-writer-wins" merge of invariant I4).
func (vc *VectorClock) Join(other *VectorClock) {
	if other == nil {
		return
	}
	if vc.clock == nil {
		vc.clock = make(map[uint32]uint32)
	}
	for t, v := range other.clock {
		if v > vc.clock[t] {
			vc.clock[t] = v
		}
	}
}

// Copy returns an independent copy of vc.
func (vc *VectorClock) Copy() *VectorClock {
	if vc == nil {
		return New()
	}
	cp := make(map[uint32]uint32, len(vc.clock))
	for t, v := range vc.clock {
		cp[t] = v
	}
	return &VectorClock{clock: cp}
}

// threadSet returns the union of the thread uids with a non-default
// component in vc and other, used to bound the component-wise
// comparisons below.
func threadSet(vc, other *VectorClock) map[uint32]struct{} {
	s := make(map[uint32]struct{}, len(vc.clock)+len(other.clock))
	for t := range vc.clock {
		s[t] = struct{}{}
	}
	for t := range other.clock {
		s[t] = struct{}{}
	}
	return s
}

// HappensBefore reports whether vc happens-before other: every
// component of vc is <= the corresponding component of other, and at
// least one is strictly less.
func (vc *VectorClock) HappensBefore(other *VectorClock) bool {
	if vc == nil || other == nil {
		return false
	}
	strict := false
	for t := range threadSet(vc, other) {
		a, b := vc.Get(t), other.Get(t)
		if a > b {
			return false
		}
		if a < b {
			strict = true
		}
	}
	return strict
}

// HappensAfter reports whether other happens-before vc.
func (vc *VectorClock) HappensAfter(other *VectorClock) bool {
	return other.HappensBefore(vc)
}

// Equal reports whether vc and other have identical components.
func (vc *VectorClock) Equal(other *VectorClock) bool {
	if vc == nil || other == nil {
		return vc == other
	}
	for t := range threadSet(vc, other) {
		if vc.Get(t) != other.Get(t) {
			return false
		}
	}
	return true
}

// Concurrent reports whether neither vc happens-before other nor
// other happens-before vc.
func (vc *VectorClock) Concurrent(other *VectorClock) bool {
	return !vc.HappensBefore(other) && !other.HappensBefore(vc) && !vc.Equal(other)
}

// Relation enumerates the four possible outcomes of comparing two
// vector clocks, used by callers that want a single switch instead of
// three predicate calls.
type Relation int

const (
	RelBefore Relation = iota
	RelAfter
	RelEqual
	RelConcurrent
)

// Compare returns the Relation between vc and other.
func Compare(vc, other *VectorClock) Relation {
	switch {
	case vc.Equal(other):
		return RelEqual
	case vc.HappensBefore(other):
		return RelBefore
	case vc.HappensAfter(other):
		return RelAfter
	default:
		return RelConcurrent
	}
}
