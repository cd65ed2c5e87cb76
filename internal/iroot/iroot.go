// Package iroot defines the atomicity-violation idiom vocabulary
// shared by the observer and predictor (spec §3 "iRoot and
// iRootEvent", §4.D).
package iroot

import (
	"fmt"

	"github.com/irootlab/concur/internal/model"
)

// IdiomKind enumerates the five canonical interleaving idioms mined or
// predicted by the engine (spec §1, §3).
type IdiomKind int

const (
	Idiom1 IdiomKind = iota + 1
	Idiom2
	Idiom3
	Idiom4
	Idiom5
)

func (k IdiomKind) String() string {
	return fmt.Sprintf("Idiom-%d", int(k))
}

// Event is an alias of model.Event: (inst, event_type).
type Event = model.Event

// IRoot is a specific idiom instance over instruction-typed events:
// (idiom_kind, ordered_tuple_of_events). Equality and hashing are over
// the tuple.
type IRoot struct {
	Kind   IdiomKind
	Events []Event
}

// Key returns a comparable projection of the IRoot suitable for use as
// a map key in the deduplicating database.
func (r IRoot) Key() string {
	s := fmt.Sprintf("%d", r.Kind)
	for _, e := range r.Events {
		s += fmt.Sprintf("|%d:%d", e.Inst, e.Type)
	}
	return s
}

// New1 builds an Idiom-1 iRoot: a single cross-thread dependency
// (predecessor -> current).
func New1(pred, curr Event) IRoot {
	return IRoot{Kind: Idiom1, Events: []Event{pred, curr}}
}

// New2 builds an Idiom-2 iRoot: a local pair e0;e2 straddling a remote
// single event r.
func New2(e0, r, e2 Event) IRoot {
	return IRoot{Kind: Idiom2, Events: []Event{e0, r, e2}}
}

// New3 builds an Idiom-3 iRoot: a local pair straddling a remote pair
// on the same address.
func New3(e0, r1, r2, e3 Event) IRoot {
	return IRoot{Kind: Idiom3, Events: []Event{e0, r1, r2, e3}}
}

// New4 builds an Idiom-4 iRoot: a local pair straddling a remote pair
// on a different address.
func New4(e0, r1, r2, e3 Event) IRoot {
	return IRoot{Kind: Idiom4, Events: []Event{e0, r1, r2, e3}}
}

// New5 builds an Idiom-5 iRoot: two crossed pairs on different
// addresses, forming a potential deadlock/atomicity violation.
func New5(e0, r1, r2, e3 Event) IRoot {
	return IRoot{Kind: Idiom5, Events: []Event{e0, r1, r2, e3}}
}
