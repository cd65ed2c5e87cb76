package predictor

import (
	"sync"

	"github.com/irootlab/concur/internal/clock"
	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/model"
)

// Config controls which idioms the predictor looks for, its
// vulnerability window, and whether it restricts itself to
// Lamport-racy pairs (spec §6 racyOnly, type1..type5, vw).
type Config struct {
	Type1, Type2, Type3, Type4, Type5 bool
	VulnerabilityWindow               uint32
	RacyOnly                          bool

	// SyncOnly restricts the predictor to mutex lock/unlock accesses,
	// skipping every MemRead/MemWrite entirely (atomic instructions,
	// which arrive as MemWrite, are skipped too) -- a cheaper mode for
	// runs only interested in lock-order idioms.
	SyncOnly bool

	// PredictDeadlock enables the deadlock-prediction pass: it
	// cross-joins mutex-lock nesting pairs held across different
	// addresses in different threads, emitting an Idiom-5 iRoot for a
	// mirrored (lock-order-inversion) pair.
	PredictDeadlock bool
}

// DefaultConfig enables every idiom with the spec's default window.
func DefaultConfig() Config {
	return Config{Type1: true, Type2: true, Type3: true, Type4: true, Type5: true, VulnerabilityWindow: 1000}
}

func (c Config) complexEnabled() bool {
	return c.Type2 || c.Type3 || c.Type4 || c.Type5
}

type localEntry struct {
	addr       uintptr
	access     model.Access
	successors []successorEvent
}

type successorEvent struct {
	access        model.Access
	pairedWith    model.Access
	hasPairedWith bool
}

type localKey struct {
	thread model.ThreadUID
	clock  uint32
}

// Predictor implements the feasible-reordering iRoot predictor (spec
// §4.D.2..4.D.5): Idiom-1 is driven by PredictIdiom1's happens-before
// walk over each address's History; Idiom-2..5 reuse the observer's
// local-pair/straddle bookkeeping, fed from the feasible predecessors
// PredictIdiom1 reports rather than from the last-writer/last-reader
// rule alone.
type Predictor struct {
	mu sync.Mutex

	cfg Config

	memMeta   map[uintptr]*Meta
	mutexMeta map[uintptr]*Meta

	localInfo  map[model.ThreadUID][]*localEntry
	entryIndex map[localKey]*localEntry

	deadlock *deadlockDetector

	memo *iroot.Memo
}

// New returns a Predictor that writes its findings into memo.
func New(cfg Config, memo *iroot.Memo) *Predictor {
	p := &Predictor{
		cfg:        cfg,
		memMeta:    make(map[uintptr]*Meta),
		mutexMeta:  make(map[uintptr]*Meta),
		localInfo:  make(map[model.ThreadUID][]*localEntry),
		entryIndex: make(map[localKey]*localEntry),
		memo:       memo,
	}
	if cfg.PredictDeadlock {
		p.deadlock = newDeadlockDetector(memo, cfg.VulnerabilityWindow)
	}
	return p
}

// FreeAddress tears down the meta at addr (region freed or image
// unloaded, spec §3 Lifecycle).
func (p *Predictor) FreeAddress(addr uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.memMeta, addr)
	delete(p.mutexMeta, addr)
}

// GC runs history garbage collection on every meta, given each
// thread's current vector clock (spec §4.D.4 "GC").
func (p *Predictor) GC(current map[model.ThreadUID]*clock.VectorClock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.memMeta {
		m.History.GC(current)
	}
	for _, m := range p.mutexMeta {
		m.History.GC(current)
	}
}

func (p *Predictor) metaFor(table map[uintptr]*Meta, addr uintptr) *Meta {
	m, ok := table[addr]
	if !ok {
		m = NewMeta()
		table[addr] = m
	}
	return m
}

// MemRead processes a read of addr by acc, which must already carry
// its vector clock and lock set. A no-op when the predictor is
// restricted to synchronization accesses.
func (p *Predictor) MemRead(addr uintptr, acc model.Access) {
	if p.cfg.SyncOnly {
		return
	}
	p.access(p.memMeta, addr, acc)
}

// MemWrite processes a write of addr by acc.
func (p *Predictor) MemWrite(addr uintptr, acc model.Access) {
	if p.cfg.SyncOnly {
		return
	}
	p.access(p.memMeta, addr, acc)
}

// MutexLock processes a lock acquisition of addr by acc.
func (p *Predictor) MutexLock(addr uintptr, acc model.Access) {
	p.access(p.mutexMeta, addr, acc)
	if p.deadlock != nil {
		p.mu.Lock()
		p.deadlock.Lock(addr, acc)
		p.mu.Unlock()
	}
}

// MutexUnlock processes a lock release of addr by acc.
func (p *Predictor) MutexUnlock(addr uintptr, acc model.Access) {
	p.access(p.mutexMeta, addr, acc)
}

func (p *Predictor) access(table map[uintptr]*Meta, addr uintptr, acc model.Access) {
	p.mu.Lock()
	defer p.mu.Unlock()

	meta := p.metaFor(table, addr)

	var currPrev *model.Access
	if prev, ok := meta.PrevAccess(acc.ThreadUID); ok {
		currPrev = &prev
	}

	var preds []model.Access
	if p.cfg.Type1 || p.cfg.complexEnabled() {
		for _, pair := range PredictIdiom1(meta, acc, currPrev, p.cfg.RacyOnly) {
			preds = append(preds, pair.Pred)
			if p.cfg.Type1 {
				p.memo.Insert(iroot.New1(pair.Pred.Event(), acc.Event()), iroot.MemoEntry{Observed: false})
			}
		}
	}

	meta.Record(acc)

	p.trackLocal(addr, acc, preds)
}

// trackLocal mirrors the observer's local-pair bookkeeping (spec
// §4.D.1 step 3/4), operating on the predicted predecessors rather
// than the directly-observed ones.
func (p *Predictor) trackLocal(addr uintptr, acc model.Access, preds []model.Access) {
	if !p.cfg.complexEnabled() {
		return
	}

	thread := acc.ThreadUID
	entries := p.localInfo[thread]

	seenAddr := make(map[uintptr]bool)
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if acc.ThreadClock > e.access.ThreadClock && acc.ThreadClock-e.access.ThreadClock > p.cfg.VulnerabilityWindow {
			break
		}
		if seenAddr[e.addr] {
			continue
		}
		seenAddr[e.addr] = true
		p.complexIdiomCheck(acc, preds, e, e.addr == addr)
	}

	for _, pr := range preds {
		if pe, ok := p.entryIndex[localKey{pr.ThreadUID, pr.ThreadClock}]; ok {
			pe.successors = append(pe.successors, successorEvent{access: acc})
		}
	}
	for i := range preds {
		if pe, ok := p.entryIndex[localKey{preds[i].ThreadUID, preds[i].ThreadClock}]; ok {
			n := len(pe.successors)
			if n > 0 {
				pe.successors[n-1].pairedWith = preds[i]
				pe.successors[n-1].hasPairedWith = true
			}
		}
	}

	newEntry := &localEntry{addr: addr, access: acc}
	entries = append(entries, newEntry)
	p.entryIndex[localKey{thread, acc.ThreadClock}] = newEntry

	cut := 0
	for cut < len(entries) {
		e := entries[cut]
		if acc.ThreadClock >= e.access.ThreadClock && acc.ThreadClock-e.access.ThreadClock <= p.cfg.VulnerabilityWindow {
			break
		}
		delete(p.entryIndex, localKey{thread, e.access.ThreadClock})
		cut++
	}
	p.localInfo[thread] = entries[cut:]
}

func (p *Predictor) complexIdiomCheck(curr model.Access, preds []model.Access, e0 *localEntry, sameAddr bool) {
	for _, pred := range preds {
		if pred.ThreadUID == curr.ThreadUID {
			continue
		}
		for _, s := range e0.successors {
			switch {
			case sameAddr && p.cfg.Type2 && sameEvent(s.access, pred):
				p.memo.Insert(iroot.New2(e0.access.Event(), s.access.Event(), curr.Event()), iroot.MemoEntry{Observed: false})

			case s.access.ThreadUID == pred.ThreadUID && s.access.ThreadClock < pred.ThreadClock:
				if sameAddr && p.cfg.Type3 {
					p.memo.Insert(iroot.New3(e0.access.Event(), s.access.Event(), pred.Event(), curr.Event()), iroot.MemoEntry{Observed: false})
				} else if !sameAddr && p.cfg.Type4 {
					p.memo.Insert(iroot.New4(e0.access.Event(), s.access.Event(), pred.Event(), curr.Event()), iroot.MemoEntry{Observed: false})
				}

			case !sameAddr && p.cfg.Type5 && s.access.ThreadUID == pred.ThreadUID && s.access.ThreadClock > pred.ThreadClock &&
				s.access.ThreadClock-pred.ThreadClock <= p.cfg.VulnerabilityWindow && s.hasPairedWith && sameEvent(s.pairedWith, pred):
				p.memo.Insert(iroot.New5(e0.access.Event(), s.access.Event(), pred.Event(), curr.Event()), iroot.MemoEntry{Observed: false})
				p.memo.Insert(iroot.New5(pred.Event(), curr.Event(), e0.access.Event(), s.access.Event()), iroot.MemoEntry{Observed: false})
			}
		}
	}
}

func sameEvent(a, b model.Access) bool {
	return a.ThreadUID == b.ThreadUID && a.ThreadClock == b.ThreadClock && a.Inst == b.Inst && a.EventType == b.EventType
}
