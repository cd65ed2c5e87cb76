// Package observer implements the post-mortem iRoot miner (spec
// §4.D.1): it detects Idiom-1..5 directly from the dependencies
// observed in a single run, using the last-writer/last-reader/
// last-unlocker rule.
package observer

import (
	"sync"

	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/model"
)

// Config controls which idioms the observer looks for and the size of
// its vulnerability window (spec §6 type1..type5, vw).
type Config struct {
	Type1, Type2, Type3, Type4, Type5 bool
	VulnerabilityWindow               uint32
}

// DefaultConfig enables every idiom with the spec's default window.
func DefaultConfig() Config {
	return Config{Type1: true, Type2: true, Type3: true, Type4: true, Type5: true, VulnerabilityWindow: 1000}
}

func (c Config) complexEnabled() bool {
	return c.Type2 || c.Type3 || c.Type4 || c.Type5
}

type readerEntry struct {
	valid  bool
	access model.Access
}

type memoryMeta struct {
	lastWriter *model.Access
	lastReaders map[model.ThreadUID]*readerEntry
}

func newMemoryMeta() *memoryMeta {
	return &memoryMeta{lastReaders: make(map[model.ThreadUID]*readerEntry)}
}

type mutexMeta struct {
	lastUnlocker *model.Access
}

// localEntry is one thread-local access kept for complex-idiom
// checking, along with the set of later (possibly remote) accesses
// that have recorded it as a predecessor.
type localEntry struct {
	addr        uintptr
	access      model.Access
	successors  []successorEvent
}

// successorEvent is a later access that recorded this entry as a
// predecessor, annotated with the remote predecessor it was paired
// against at append time (used by the Idiom-5 "crossed" check).
type successorEvent struct {
	access       model.Access
	pairedWith   model.Access
	hasPairedWith bool
}

// Observer mines iRoots from a single event stream.
type Observer struct {
	mu sync.Mutex

	cfg Config

	memMeta   map[uintptr]*memoryMeta
	mutexMeta map[uintptr]*mutexMeta

	// localInfo[thread] is ordered oldest-first; entryIndex allows O(1)
	// lookup by (thread, clock) so a remote predecessor's successor
	// list can be appended to in place.
	localInfo  map[model.ThreadUID][]*localEntry
	entryIndex map[localKey]*localEntry

	memo *iroot.Memo
}

type localKey struct {
	thread model.ThreadUID
	clock  uint32
}

// New returns an Observer that writes its findings into memo.
func New(cfg Config, memo *iroot.Memo) *Observer {
	return &Observer{
		cfg:        cfg,
		memMeta:    make(map[uintptr]*memoryMeta),
		mutexMeta:  make(map[uintptr]*mutexMeta),
		localInfo:  make(map[model.ThreadUID][]*localEntry),
		entryIndex: make(map[localKey]*localEntry),
		memo:       memo,
	}
}

// FreeAddress tears down the memory meta at addr (region freed or
// image unloaded, spec §3 Lifecycle).
func (o *Observer) FreeAddress(addr uintptr) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.memMeta, addr)
	delete(o.mutexMeta, addr)
}

// MemRead processes a read of addr by acc.
func (o *Observer) MemRead(addr uintptr, acc model.Access) {
	o.mu.Lock()
	defer o.mu.Unlock()

	meta := o.memMetaFor(addr)

	var preds []model.Access
	if own, ok := meta.lastReaders[acc.ThreadUID]; !ok || !own.valid {
		if meta.lastWriter != nil && meta.lastWriter.ThreadUID != acc.ThreadUID {
			preds = append(preds, *meta.lastWriter)
		}
	}

	o.emitAndTrack(addr, acc, preds)

	meta.lastReaders[acc.ThreadUID] = &readerEntry{valid: true, access: acc}
}

// MemWrite processes a write of addr by acc.
func (o *Observer) MemWrite(addr uintptr, acc model.Access) {
	o.mu.Lock()
	defer o.mu.Unlock()

	meta := o.memMetaFor(addr)

	var preds []model.Access
	for t, r := range meta.lastReaders {
		if r.valid && t != acc.ThreadUID {
			preds = append(preds, r.access)
		}
	}
	if len(preds) == 0 && meta.lastWriter != nil && meta.lastWriter.ThreadUID != acc.ThreadUID {
		preds = append(preds, *meta.lastWriter)
	}

	o.emitAndTrack(addr, acc, preds)

	meta.lastWriter = &acc
	// Invariant I5: a write erases the local-reader shadow for every
	// thread, including the writer's own prior reads.
	for _, r := range meta.lastReaders {
		r.valid = false
	}
}

// MutexLock processes a lock acquisition of addr by acc.
func (o *Observer) MutexLock(addr uintptr, acc model.Access) {
	o.mu.Lock()
	defer o.mu.Unlock()

	meta := o.mutexMetaFor(addr)
	var preds []model.Access
	if meta.lastUnlocker != nil && meta.lastUnlocker.ThreadUID != acc.ThreadUID {
		preds = append(preds, *meta.lastUnlocker)
	}
	o.emitAndTrack(addr, acc, preds)
}

// MutexUnlock processes a lock release of addr by acc. Unlocks never
// emit predecessors.
func (o *Observer) MutexUnlock(addr uintptr, acc model.Access) {
	o.mu.Lock()
	defer o.mu.Unlock()

	meta := o.mutexMetaFor(addr)
	meta.lastUnlocker = &acc
	o.trackLocal(addr, acc, nil)
}

func (o *Observer) memMetaFor(addr uintptr) *memoryMeta {
	m, ok := o.memMeta[addr]
	if !ok {
		m = newMemoryMeta()
		o.memMeta[addr] = m
	}
	return m
}

func (o *Observer) mutexMetaFor(addr uintptr) *mutexMeta {
	m, ok := o.mutexMeta[addr]
	if !ok {
		m = &mutexMeta{}
		o.mutexMeta[addr] = m
	}
	return m
}

// emitAndTrack emits Idiom-1 for every predecessor, then runs the
// complex-idiom local-info bookkeeping (step 3/4 of spec §4.D.1).
func (o *Observer) emitAndTrack(addr uintptr, acc model.Access, preds []model.Access) {
	if o.cfg.Type1 {
		for _, p := range preds {
			o.memo.Insert(iroot.New1(p.Event(), acc.Event()), iroot.MemoEntry{Observed: true})
		}
	}
	o.trackLocal(addr, acc, preds)
}

// trackLocal maintains the per-thread local-info map, runs
// ComplexIdiomCheck against every distinct address touched within the
// vulnerability window, appends acc to every predecessor's successor
// list, and evicts stale entries.
func (o *Observer) trackLocal(addr uintptr, acc model.Access, preds []model.Access) {
	if !o.cfg.complexEnabled() {
		return
	}

	thread := acc.ThreadUID
	entries := o.localInfo[thread]

	seenAddr := make(map[uintptr]bool)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if acc.ThreadClock > e.access.ThreadClock && acc.ThreadClock-e.access.ThreadClock > o.cfg.VulnerabilityWindow {
			break
		}
		if seenAddr[e.addr] {
			continue
		}
		seenAddr[e.addr] = true
		o.complexIdiomCheck(acc, preds, e, e.addr == addr)
	}

	// Append acc to every predecessor's recorded successor list so a
	// later current on that predecessor's thread can see it.
	for _, p := range preds {
		if pe, ok := o.entryIndex[localKey{p.ThreadUID, p.ThreadClock}]; ok {
			pe.successors = append(pe.successors, successorEvent{access: acc})
		}
	}
	// Record, on each freshly-appended successor, which remote
	// predecessor of *this* access it was paired with -- the evidence
	// Idiom-5 needs to confirm a crossed overlap.
	for i := range preds {
		if pe, ok := o.entryIndex[localKey{preds[i].ThreadUID, preds[i].ThreadClock}]; ok {
			n := len(pe.successors)
			if n > 0 {
				pe.successors[n-1].pairedWith = preds[i]
				pe.successors[n-1].hasPairedWith = true
			}
		}
	}

	newEntry := &localEntry{addr: addr, access: acc}
	entries = append(entries, newEntry)
	o.entryIndex[localKey{thread, acc.ThreadClock}] = newEntry

	// Evict entries whose clock-distance to acc exceeds the window.
	cut := 0
	for cut < len(entries) {
		e := entries[cut]
		if acc.ThreadClock >= e.access.ThreadClock && acc.ThreadClock-e.access.ThreadClock <= o.cfg.VulnerabilityWindow {
			break
		}
		delete(o.entryIndex, localKey{thread, e.access.ThreadClock})
		cut++
	}
	o.localInfo[thread] = entries[cut:]
}

// complexIdiomCheck implements spec §4.D.1 step 4: given the local
// pair (e0=entry.access, current=curr) and curr's remote predecessors,
// decide which of Idiom-2..5 (if any) the straddle forms.
func (o *Observer) complexIdiomCheck(curr model.Access, preds []model.Access, e0 *localEntry, sameAddr bool) {
	for _, pred := range preds {
		if pred.ThreadUID == curr.ThreadUID {
			continue // predecessors considered here are always remote
		}
		for _, s := range e0.successors {
			switch {
			case sameAddr && o.cfg.Type2 && sameEvent(s.access, pred):
				o.memo.Insert(iroot.New2(e0.access.Event(), s.access.Event(), curr.Event()), iroot.MemoEntry{Observed: true})

			case s.access.ThreadUID == pred.ThreadUID && s.access.ThreadClock < pred.ThreadClock:
				if sameAddr && o.cfg.Type3 {
					o.memo.Insert(iroot.New3(e0.access.Event(), s.access.Event(), pred.Event(), curr.Event()), iroot.MemoEntry{Observed: true})
				} else if !sameAddr && o.cfg.Type4 {
					o.memo.Insert(iroot.New4(e0.access.Event(), s.access.Event(), pred.Event(), curr.Event()), iroot.MemoEntry{Observed: true})
				}

			case !sameAddr && o.cfg.Type5 && s.access.ThreadUID == pred.ThreadUID && s.access.ThreadClock > pred.ThreadClock &&
				s.access.ThreadClock-pred.ThreadClock <= o.cfg.VulnerabilityWindow && s.hasPairedWith && sameEvent(s.pairedWith, pred):
				o.memo.Insert(iroot.New5(e0.access.Event(), s.access.Event(), pred.Event(), curr.Event()), iroot.MemoEntry{Observed: true})
				o.memo.Insert(iroot.New5(pred.Event(), curr.Event(), e0.access.Event(), s.access.Event()), iroot.MemoEntry{Observed: true})
			}
		}
	}
}

func sameEvent(a, b model.Access) bool {
	return a.ThreadUID == b.ThreadUID && a.ThreadClock == b.ThreadClock && a.Inst == b.Inst && a.EventType == b.EventType
}
