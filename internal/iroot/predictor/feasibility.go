// Package predictor implements the feasible-reordering iRoot predictor
// (spec §4.D.2..4.D.5): it augments the observer's dependency rule
// with happens-before and lock-set reasoning so it can report
// atomicity violations that did not literally occur in the observed
// run but could occur in a feasible reordering.
package predictor

import "github.com/irootlab/concur/internal/lockset"

// Feasible implements spec §4.D.3's lock-set feasibility check.
//
// curr is the current thread's access, optionally preceded locally by
// currPrev (its most recent access on this meta); rmt is the remote
// candidate predecessor, optionally followed by rmtNext (the remote
// thread's next access on this meta). racyOnly additionally requires
// the pair to be a data race under Lamport's definition (disjoint lock
// sets).
func Feasible(curr, rmt *lockset.LockSet, currPrev, rmtNext *lockset.LockSet, racyOnly bool) bool {
	disjoint := curr.Disjoint(rmt)
	if racyOnly {
		return disjoint
	}
	if curr.Empty() || rmt.Empty() || disjoint {
		return true
	}

	shared := curr.Intersect(rmt)

	// With no adjacent access on either side to contradict it, nothing
	// stands in the way of the critical sections running in either
	// order, so the pair is feasible.
	if currPrev == nil && rmtNext == nil {
		return true
	}

	covering := lockset.New()
	if currPrev != nil {
		covering = covering.Union(currPrev)
	}
	if rmtNext != nil {
		covering = covering.Union(rmtNext)
	}

	for _, k := range shared {
		if !covering.Contains(k) {
			return false
		}
	}
	return true
}
