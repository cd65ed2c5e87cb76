package sched

import "github.com/irootlab/concur/internal/model"

// priorityPair is (t, u) meaning t will be chosen only when u is
// disabled (spec §4.E.4 "P").
type priorityPair struct {
	low  model.ThreadUID
	high model.ThreadUID
}

// FairControl implements the Musuvathi/Qadeer fair-scheduling
// algorithm: it tracks, per thread, the threads continuously enabled
// or disabled-by-it or scheduled since its last yield, and derives a
// priority relation that keeps any one thread from starving another
// forever.
type FairControl struct {
	enabled   map[model.ThreadUID]map[model.ThreadUID]bool // E[t]
	disabled  map[model.ThreadUID]map[model.ThreadUID]bool // D[t]
	scheduled map[model.ThreadUID]map[model.ThreadUID]bool // S[t]
	priority  map[priorityPair]bool                        // P
}

// NewFairControl returns an empty fair-control state.
func NewFairControl() *FairControl {
	return &FairControl{
		enabled:   make(map[model.ThreadUID]map[model.ThreadUID]bool),
		disabled:  make(map[model.ThreadUID]map[model.ThreadUID]bool),
		scheduled: make(map[model.ThreadUID]map[model.ThreadUID]bool),
		priority:  make(map[priorityPair]bool),
	}
}

func setOf(m map[model.ThreadUID]map[model.ThreadUID]bool, t model.ThreadUID) map[model.ThreadUID]bool {
	s, ok := m[t]
	if !ok {
		s = make(map[model.ThreadUID]bool)
		m[t] = s
	}
	return s
}

// Observe updates the fair-control state for a transition taken by
// thread t, given every known thread, the previously and currently
// enabled thread sets, and whether the taken action was a yield (spec
// §4.E.4 "Updates on every state transition").
func (fc *FairControl) Observe(t model.ThreadUID, allThreads []model.ThreadUID, prevEnabled, currEnabled map[model.ThreadUID]bool, isYield bool) {
	for pair := range fc.priority {
		if pair.low == t {
			delete(fc.priority, pair)
		}
	}

	for _, u := range allThreads {
		set := setOf(fc.enabled, u)
		for x := range set {
			if !currEnabled[x] {
				delete(set, x)
			}
		}
	}

	dSet := setOf(fc.disabled, t)
	for x := range prevEnabled {
		if !currEnabled[x] {
			dSet[x] = true
		}
	}

	for _, u := range allThreads {
		setOf(fc.scheduled, u)[t] = true
	}

	if isYield {
		eSet := setOf(fc.enabled, t)
		h := make(map[model.ThreadUID]bool)
		for x := range eSet {
			h[x] = true
		}
		for x := range dSet {
			h[x] = true
		}
		sSet := setOf(fc.scheduled, t)
		for x := range sSet {
			delete(h, x)
		}
		for x := range h {
			fc.priority[priorityPair{low: t, high: x}] = true
		}

		fc.enabled[t] = make(map[model.ThreadUID]bool)
		for x := range currEnabled {
			fc.enabled[t][x] = true
		}
		fc.disabled[t] = make(map[model.ThreadUID]bool)
		fc.scheduled[t] = make(map[model.ThreadUID]bool)
	}
}

// FairEnabled reports whether thd may be scheduled given the current
// enabled set: it must not be dominated by a pending priority pair
// whose "high" thread is currently enabled (spec §4.E.4).
func (fc *FairControl) FairEnabled(thd model.ThreadUID, currEnabled map[model.ThreadUID]bool) bool {
	for pair := range fc.priority {
		if pair.low == thd && currEnabled[pair.high] {
			return false
		}
	}
	return true
}
