package predictor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/irootlab/concur/internal/clock"
	"github.com/irootlab/concur/internal/lockset"
	"github.com/irootlab/concur/internal/model"
)

// Bucket groups every access that shared an identical vector-clock
// value, i.e. every access a thread made between two of its releases
// (spec §3 "access history... bucketed by vector-clock value").
type Bucket struct {
	VC     *clock.VectorClock
	Access []model.Access
}

// History is the per-remote-thread, vector-clock-bucketed access list
// backing one memory or mutex meta in the predictor (spec §3).
type History struct {
	byThread map[model.ThreadUID][]*Bucket

	sinceCompression map[model.ThreadUID]int
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{
		byThread:         make(map[model.ThreadUID][]*Bucket),
		sinceCompression: make(map[model.ThreadUID]int),
	}
}

// Add appends acc to thread's history, opening a new bucket whenever
// its vector clock differs from the thread's most recent bucket.
func (h *History) Add(acc model.Access) {
	buckets := h.byThread[acc.ThreadUID]
	if n := len(buckets); n > 0 && buckets[n-1].VC.Equal(acc.VC) {
		buckets[n-1].Access = append(buckets[n-1].Access, acc)
	} else {
		h.byThread[acc.ThreadUID] = append(buckets, &Bucket{VC: acc.VC.Copy(), Access: []model.Access{acc}})
	}

	h.sinceCompression[acc.ThreadUID]++
	if h.sinceCompression[acc.ThreadUID] > compressionTrigger {
		h.Compress(acc.ThreadUID)
	}
}

// Buckets returns thread's buckets, oldest first.
func (h *History) Buckets(thread model.ThreadUID) []*Bucket {
	return h.byThread[thread]
}

// Threads returns every remote thread with recorded history.
func (h *History) Threads() []model.ThreadUID {
	out := make([]model.ThreadUID, 0, len(h.byThread))
	for t := range h.byThread {
		out = append(out, t)
	}
	return out
}

// compressionTrigger is the per-thread-bucket access count above which
// a bucket is compressed (spec §4.D.4, "a small constant, e.g. 70").
const compressionTrigger = 70

// Compress keeps only the most recent access for each (type, inst,
// lockset) tuple in thread's most recent bucket, preserving temporal
// order via stable reverse-deduplicate-then-reverse (spec §4.D.4).
func (h *History) Compress(thread model.ThreadUID) {
	buckets := h.byThread[thread]
	if len(buckets) == 0 {
		return
	}
	last := buckets[len(buckets)-1]
	if len(last.Access) <= compressionTrigger {
		return
	}

	seen := make(map[compressKey]bool)
	reversed := make([]model.Access, 0, len(last.Access))
	for i := len(last.Access) - 1; i >= 0; i-- {
		a := last.Access[i]
		key := compressKey{a.EventType, a.Inst, lockSetSignature(a.LockSet)}
		if seen[key] {
			continue
		}
		seen[key] = true
		reversed = append(reversed, a)
	}
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	last.Access = reversed
	h.sinceCompression[thread] = 0
}

type compressKey struct {
	eventType model.EventType
	inst      model.InstID
	lockSig   string
}

func lockSetSignature(ls *lockset.LockSet) string {
	if ls == nil {
		return ""
	}
	keys := ls.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%x,", k)
	}
	return b.String()
}

// GC walks every thread's history from its oldest bucket forward,
// discarding the leading buckets that happen-before both every other
// thread's current vector clock and
// every other thread's most-recent-bucket vector clock (spec §4.D.4
// "GC").
func (h *History) GC(current map[model.ThreadUID]*clock.VectorClock) {
	for thread, buckets := range h.byThread {
		keepFrom := 0
		for i, b := range buckets {
			if h.happensBeforeAllOthers(thread, b.VC, current) {
				keepFrom = i + 1
				continue
			}
			break
		}
		if keepFrom > 0 {
			h.byThread[thread] = buckets[keepFrom:]
		}
	}
}

func (h *History) happensBeforeAllOthers(thread model.ThreadUID, vc *clock.VectorClock, current map[model.ThreadUID]*clock.VectorClock) bool {
	for other, cur := range current {
		if other == thread {
			continue
		}
		if !vc.HappensBefore(cur) {
			return false
		}
		if buckets := h.byThread[other]; len(buckets) > 0 {
			if !vc.HappensBefore(buckets[len(buckets)-1].VC) {
				return false
			}
		}
	}
	return true
}
