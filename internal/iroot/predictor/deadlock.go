package predictor

import (
	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/model"
)

// lockRecord is one mutex-lock acquisition kept in a thread's recent
// history for deadlock-pair extraction.
type lockRecord struct {
	addr uintptr
	acc  model.Access
}

// addrPair is an ordered pair of lock addresses: a thread locked outer,
// then, within the vulnerability window, locked inner.
type addrPair struct {
	outer, inner uintptr
}

// nestingPair is the first instance recorded of a given addrPair, kept
// to build the Idiom-5 iRoot once a mirrored pair is found on another
// thread.
type nestingPair struct {
	thread             model.ThreadUID
	outerAcc, innerAcc model.Access
}

// deadlockDetector implements the deadlock-prediction pass: it extracts
// per-thread mutex lock-order pairs (two distinct addresses locked
// within the vulnerability window) and cross-joins them against every
// other thread's pairs, emitting an Idiom-5 iRoot the first time a
// mirrored ordering turns up -- thread A locking X then Y while thread
// B locks Y then X, the classic two-lock deadlock shape.
type deadlockDetector struct {
	recent map[model.ThreadUID][]lockRecord
	window uint32

	pairs map[addrPair]nestingPair

	memo *iroot.Memo
}

func newDeadlockDetector(memo *iroot.Memo, window uint32) *deadlockDetector {
	return &deadlockDetector{
		recent: make(map[model.ThreadUID][]lockRecord),
		window: window,
		pairs:  make(map[addrPair]nestingPair),
		memo:   memo,
	}
}

// Lock records addr's acquisition by acc and cross-checks it against
// every distinct address the same thread locked within the
// vulnerability window, mirroring the local-pair eviction scheme used
// elsewhere in this package.
func (d *deadlockDetector) Lock(addr uintptr, acc model.Access) {
	records := d.recent[acc.ThreadUID]

	seen := make(map[uintptr]bool)
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if acc.ThreadClock > r.acc.ThreadClock && acc.ThreadClock-r.acc.ThreadClock > d.window {
			break
		}
		if r.addr == addr || seen[r.addr] {
			continue
		}
		seen[r.addr] = true
		d.cross(r.addr, addr, acc.ThreadUID, r.acc, acc)
	}

	records = append(records, lockRecord{addr: addr, acc: acc})
	cut := 0
	for cut < len(records) {
		r := records[cut]
		if acc.ThreadClock >= r.acc.ThreadClock && acc.ThreadClock-r.acc.ThreadClock <= d.window {
			break
		}
		cut++
	}
	d.recent[acc.ThreadUID] = records[cut:]
}

// cross records the (outer,inner) pair thread just formed and, if the
// mirrored (inner,outer) pair is already on file for a different
// thread, emits the Idiom-5 iRoot for the lock-order inversion.
func (d *deadlockDetector) cross(outer, inner uintptr, thread model.ThreadUID, outerAcc, innerAcc model.Access) {
	key := addrPair{outer, inner}
	if _, exists := d.pairs[key]; !exists {
		d.pairs[key] = nestingPair{thread: thread, outerAcc: outerAcc, innerAcc: innerAcc}
	}

	mirror, ok := d.pairs[addrPair{inner, outer}]
	if !ok || mirror.thread == thread {
		return
	}
	d.memo.Insert(
		iroot.New5(outerAcc.Event(), mirror.innerAcc.Event(), mirror.outerAcc.Event(), innerAcc.Event()),
		iroot.MemoEntry{Observed: false},
	)
}
