package predictor

import (
	"github.com/irootlab/concur/internal/clock"
	"github.com/irootlab/concur/internal/lockset"
	"github.com/irootlab/concur/internal/model"
)

// findPrecedent scans thread R's buckets newest-to-oldest (skipping
// buckets not happens-before acc's clock) looking for the most recent
// remote write/unlock, stopping at the first write it encounters
// (spec §4.D.2 "the immediately most-recent remote write/unlock
// before the first read/unlock boundary... walking stops at the first
// remote write").
func findPrecedent(buckets []*Bucket, accVC *clock.VectorClock) (model.Access, bool) {
	var fallback *model.Access
	for i := len(buckets) - 1; i >= 0; i-- {
		b := buckets[i]
		if !b.VC.HappensBefore(accVC) {
			continue
		}
		for j := len(b.Access) - 1; j >= 0; j-- {
			a := b.Access[j]
			if a.EventType == model.EventMemWrite || a.EventType == model.EventMutexUnlock {
				return a, true
			}
			if fallback == nil {
				fallback = &a
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return model.Access{}, false
}

// nextAccessAfter returns the first access of thread R recorded after
// pred in its own history, the "rmt_next" input to the feasibility
// check.
func nextAccessAfter(buckets []*Bucket, pred model.Access) (model.Access, bool) {
	passed := false
	for _, b := range buckets {
		for _, a := range b.Access {
			if passed {
				return a, true
			}
			if a.ThreadClock == pred.ThreadClock && a.Inst == pred.Inst {
				passed = true
			}
		}
	}
	return model.Access{}, false
}

type precedentCandidate struct {
	thread model.ThreadUID
	access model.Access
}

// PredictIdiom1 implements spec §4.D.2: for access acc against every
// remote thread's history in meta, it returns the Idiom-1 pairs the
// predictor judges feasible. currPrev is acc's thread's previous
// access on meta, if any.
func PredictIdiom1(meta *Meta, acc model.Access, currPrev *model.Access, racyOnly bool) []Pair {
	var out []Pair
	var candidates []precedentCandidate

	var currPrevLS *lockset.LockSet
	if currPrev != nil {
		currPrevLS = currPrev.LockSet
	}

	for _, r := range meta.History.Threads() {
		if r == acc.ThreadUID {
			continue
		}
		buckets := meta.History.Buckets(r)

		// Concurrent buckets: every feasible access emits Idiom-1
		// directly.
		for _, b := range buckets {
			rel := clock.Compare(b.VC, acc.VC)
			if rel != clock.RelConcurrent {
				continue
			}
			for _, ra := range b.Access {
				rmtNext, hasNext := nextAccessAfter(buckets, ra)
				var rmtNextLS *lockset.LockSet
				if hasNext {
					rmtNextLS = rmtNext.LockSet
				}
				if Feasible(acc.LockSet, ra.LockSet, currPrevLS, rmtNextLS, racyOnly) {
					out = append(out, Pair{Pred: ra, Curr: acc})
				}
			}
		}

		if cand, ok := findPrecedent(buckets, acc.VC); ok {
			rmtNext, hasNext := nextAccessAfter(buckets, cand)
			var rmtNextLS *lockset.LockSet
			if hasNext {
				rmtNextLS = rmtNext.LockSet
			}
			if Feasible(acc.LockSet, cand.LockSet, currPrevLS, rmtNextLS, racyOnly) {
				candidates = append(candidates, precedentCandidate{thread: r, access: cand})
			}
		}
	}

	// Keep a precedent candidate iff no other thread's precedent sits
	// strictly between it and acc's clock.
	for _, c := range candidates {
		blocked := false
		for _, other := range candidates {
			if other.thread == c.thread {
				continue
			}
			if other.access.VC.HappensAfter(c.access.VC) && other.access.VC.HappensBefore(acc.VC) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, Pair{Pred: c.access, Curr: acc})
		}
	}

	return out
}

// Pair is a predicted predecessor/current pair, the raw material for
// an Idiom-1 iRoot.
type Pair struct {
	Pred model.Access
	Curr model.Access
}
