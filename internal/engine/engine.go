// Package engine wires the ingest event stream into the analysis
// components: the access filter, shared-instruction detector,
// observer, and predictor, plus the model tables that give every
// thread/object/instruction its cross-run-stable identity (spec §5
// "Analysis path").
package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/irootlab/concur/internal/clock"
	"github.com/irootlab/concur/internal/filter"
	"github.com/irootlab/concur/internal/ingest"
	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/iroot/observer"
	"github.com/irootlab/concur/internal/iroot/predictor"
	"github.com/irootlab/concur/internal/lockset"
	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/sinst"
)

// Config selects which analysis components run over the event stream.
type Config struct {
	EnableObserver  bool
	EnablePredictor bool
	EnableSinst     bool

	Observer  observer.Config
	Predictor predictor.Config
}

// DefaultConfig enables every analysis component with their packages'
// own defaults.
func DefaultConfig() Config {
	return Config{
		EnableObserver:  true,
		EnablePredictor: true,
		EnableSinst:     true,
		Observer:        observer.DefaultConfig(),
		Predictor:       predictor.DefaultConfig(),
	}
}

// Engine implements ingest.Sink, translating the host's event stream
// into Observer/Predictor calls over cross-run-stable identities.
type Engine struct {
	mu sync.Mutex

	cfg Config

	Program *model.Program
	Filter  *filter.Filter
	Sinst   *sinst.Detector
	Memo    *iroot.Memo

	observer  *observer.Observer
	predictor *predictor.Predictor

	vc         map[model.ThreadUID]*clock.VectorClock
	locks      map[model.ThreadUID]*lockset.LockSet
	callstacks *model.CallStackInfo
	nextImg    model.ImageID
}

// New returns an Engine over a fresh Program and Memo, ready to drive
// from an ingest.Decoder via ingest.PumpContext.
func New(cfg Config, memo *iroot.Memo) *Engine {
	e := &Engine{
		cfg:     cfg,
		Program: model.NewProgram(),
		Filter:  filter.New(),
		Sinst:   sinst.New(),
		Memo:    memo,
		vc:         make(map[model.ThreadUID]*clock.VectorClock),
		locks:      make(map[model.ThreadUID]*lockset.LockSet),
		callstacks: model.NewCallStackInfo(),
		nextImg:    1,
	}
	if cfg.EnableObserver {
		e.observer = observer.New(cfg.Observer, memo)
	}
	if cfg.EnablePredictor {
		e.predictor = predictor.New(cfg.Predictor, memo)
	}
	return e
}

func (e *Engine) threadVC(t model.ThreadUID) *clock.VectorClock {
	v, ok := e.vc[t]
	if !ok {
		v = clock.New()
		e.vc[t] = v
	}
	return v
}

// CallStack returns thread's current runtime call stack, tracked from
// the BeforeCall/BeforeReturn events seen so far.
func (e *Engine) CallStack(t model.ThreadUID) *model.CallStack {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callstacks.Get(t)
}

// imageFor returns the loaded image whose code range contains addr.
func (e *Engine) imageFor(addr uintptr) (model.Image, bool) {
	for _, img := range e.Program.Images {
		if img.Contains(addr) {
			return img, true
		}
	}
	return model.Image{}, false
}

// staticObjectFor returns the (image, offset) of the static object
// mapping addr, for a data or bss address with no host-provided symbol
// name, per spec §3's static object identity of (image_id, offset).
func (e *Engine) staticObjectFor(addr uintptr) (model.ImageID, uintptr, bool) {
	for id, img := range e.Program.Images {
		if img.DataSize > 0 && addr >= img.DataLow && addr < img.DataLow+img.DataSize {
			return id, addr - img.DataLow, true
		}
		if img.BSSSize > 0 && addr >= img.BSSLow && addr < img.BSSLow+img.BSSSize {
			return id, addr - img.BSSLow, true
		}
	}
	return 0, 0, false
}

// commonLibraryPrefixes names the system libraries whose internals are
// never interesting to the analysis, mirroring the host's own
// SkipStackAccess-style filtering for thread-local noise.
var commonLibraryPrefixes = []string{
	"libc.so", "libc-", "libpthread", "libdl.so", "libdl-",
	"librt.so", "librt-", "ld-linux", "libstdc++", "libgcc_s",
	"libm.so", "libm-",
}

func isCommonLibraryPath(path string) bool {
	base := path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		base = path[i+1:]
	}
	for _, p := range commonLibraryPrefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}

func (e *Engine) threadLocks(t model.ThreadUID) *lockset.LockSet {
	ls, ok := e.locks[t]
	if !ok {
		ls = lockset.New()
		e.locks[t] = ls
	}
	return ls
}

// Handle implements ingest.Sink.
func (e *Engine) Handle(ev ingest.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch ev.Kind {
	case ingest.ImageLoad:
		id := e.nextImg
		e.nextImg++
		e.Program.Images[id] = model.NewImage(id, ev.Image, ev.Low, ev.High, ev.DataLow, ev.DataSize, ev.BSSLow, ev.BSSSize, isCommonLibraryPath(ev.Image))
		e.Filter.AddRegion(ev.Low, ev.High-ev.Low)
		if ev.DataSize > 0 {
			e.Filter.AddRegion(ev.DataLow, ev.DataSize)
		}
		if ev.BSSSize > 0 {
			e.Filter.AddRegion(ev.BSSLow, ev.BSSSize)
		}

	case ingest.ThreadStart:
		parent, _ := e.Program.Threads.Resolve(ev.ParentThreadID)
		e.Program.Threads.Start(parent, ev.ThreadID)

	case ingest.ThreadExit:
		uid, ok := e.Program.Threads.Resolve(ev.ThreadID)
		if ok {
			e.Program.Threads.Exit(uid, ev.ThreadClock)
		}

	case ingest.BeforeMemRead, ingest.BeforeMemWrite:
		return e.handleMemAccess(ev, ev.Kind == ingest.BeforeMemWrite)

	case ingest.BeforeMutexLock, ingest.AfterMutexLock:
		if ev.Kind == ingest.AfterMutexLock {
			return e.handleMutex(ev, true)
		}

	case ingest.BeforeMutexUnlock:
		return e.handleMutex(ev, false)

	case ingest.AfterPthreadJoin:
		return e.handleJoin(ev)

	case ingest.BeforeAtomicInst:
		return e.handleAtomic(ev, true)

	case ingest.AfterAtomicInst:
		return e.handleAtomic(ev, false)

	case ingest.BeforeCall:
		uid, ok := e.Program.Threads.Resolve(ev.ThreadID)
		if !ok {
			return fmt.Errorf("engine: call from unknown thread %d", ev.ThreadID)
		}
		if img, ok := e.imageFor(ev.Inst); ok && img.IsCommonLibrary() {
			// Calls into libc/the runtime are noise on an application
			// call stack; BeforeReturn already tolerates an unmatched
			// target, so skipping the push here is enough.
			return nil
		}
		instID := e.Program.Insts.Intern(0, ev.Inst, model.OpCall)
		e.callstacks.Get(uid).OnCall(instID, ev.Addr)

	case ingest.BeforeReturn:
		uid, ok := e.Program.Threads.Resolve(ev.ThreadID)
		if ok {
			e.callstacks.Get(uid).OnReturn(ev.Addr)
		}

	case ingest.BeforeFree:
		if _, ok := e.Filter.RemoveRegion(ev.Addr); ok {
			e.Program.Objects.Free(ev.Addr)
			if e.observer != nil {
				e.observer.FreeAddress(ev.Addr)
			}
			if e.predictor != nil {
				e.predictor.FreeAddress(ev.Addr)
			}
		}

	case ingest.AfterMalloc:
		uid, ok := e.Program.Threads.Resolve(ev.ThreadID)
		if !ok {
			return fmt.Errorf("engine: malloc from unknown thread %d", ev.ThreadID)
		}
		instID := e.Program.Insts.Intern(0, ev.Inst, model.OpCall)
		e.Program.Objects.Allocate(uid, instID, ev.ReturnValue, ev.Size)
		e.Filter.AddRegion(ev.ReturnValue, ev.Size)
	}

	return nil
}

func (e *Engine) handleMemAccess(ev ingest.Event, isWrite bool) error {
	if e.Filter.Filter(ev.Addr) {
		return nil
	}
	uid, ok := e.Program.Threads.Resolve(ev.ThreadID)
	if !ok {
		return fmt.Errorf("engine: memory access from unknown thread %d", ev.ThreadID)
	}

	cat := model.OpRead
	if isWrite {
		cat = model.OpWrite
	}
	instID := e.Program.Insts.Intern(0, ev.Inst, cat)

	if _, ok := e.Program.Objects.Resolve(ev.Addr); !ok {
		if imgID, offset, ok := e.staticObjectFor(ev.Addr); ok {
			e.Program.Objects.InternStatic(imgID, offset, ev.Addr, 0)
		}
	}

	shared := !e.cfg.EnableSinst || e.Sinst.Observe(ev.Addr, uint32(uid), uint64(instID), isWrite)

	et := model.EventMemRead
	if isWrite {
		et = model.EventMemWrite
	}
	acc := model.Access{ThreadUID: uid, ThreadClock: ev.ThreadClock, EventType: et, Inst: instID}

	if e.observer != nil {
		if isWrite {
			e.observer.MemWrite(ev.Addr, acc)
		} else {
			e.observer.MemRead(ev.Addr, acc)
		}
	}
	if e.predictor != nil && shared {
		acc.VC = e.threadVC(uid).Copy()
		acc.LockSet = e.threadLocks(uid).Copy()
		if isWrite {
			e.predictor.MemWrite(ev.Addr, acc)
		} else {
			e.predictor.MemRead(ev.Addr, acc)
		}
	}
	return nil
}

// handleJoin folds the joinee's final clock into the joiner's (spec
// §4.B invariant I4: a join is a release/acquire pair, same as a lock
// unlock/lock). AfterPthreadJoin carries the joinee's runtime id in
// Addr, matching the convention used to resolve join targets in the
// scheduler's scripted trace replay.
func (e *Engine) handleJoin(ev ingest.Event) error {
	joiner, ok := e.Program.Threads.Resolve(ev.ThreadID)
	if !ok {
		return fmt.Errorf("engine: join from unknown thread %d", ev.ThreadID)
	}
	joinee, ok := e.Program.Threads.Resolve(uint64(ev.Addr))
	if !ok {
		return nil
	}
	exitClock, exited := e.Program.Threads.Exited(joinee)
	if !exited {
		return nil
	}
	jv := e.threadVC(joinee).Copy()
	jv.Set(uint32(joinee), exitClock)
	e.threadVC(joiner).Join(jv)
	return nil
}

// handleAtomic treats an atomic read-modify-write instruction as a
// memory access bracketed by acquiring and releasing a pseudo-lock
// keyed on the bitwise complement of its address (spec §4.B). The
// pseudo-lock only refines the predictor's lock-set feasibility test
// (internal/iroot/predictor); the observer still mines the access as
// an ordinary candidate, since it never consults lock sets at all.
func (e *Engine) handleAtomic(ev ingest.Event, before bool) error {
	uid, ok := e.Program.Threads.Resolve(ev.ThreadID)
	if !ok {
		return fmt.Errorf("engine: atomic inst from unknown thread %d", ev.ThreadID)
	}
	key := lockset.AtomicKey(ev.Addr)
	vc := e.threadVC(uid)
	ls := e.threadLocks(uid)

	if before {
		vc.Increment(uint32(uid))
		ls.Add(key)
		return e.handleMemAccess(ev, true)
	}

	vc.Increment(uint32(uid))
	ls.Remove(key)
	return nil
}

func (e *Engine) handleMutex(ev ingest.Event, acquire bool) error {
	uid, ok := e.Program.Threads.Resolve(ev.ThreadID)
	if !ok {
		return fmt.Errorf("engine: mutex op from unknown thread %d", ev.ThreadID)
	}
	instID := e.Program.Insts.Intern(0, ev.Inst, model.OpAtomicRMW)

	et := model.EventMutexUnlock
	if acquire {
		et = model.EventMutexLock
	}

	vc := e.threadVC(uid)
	ls := e.threadLocks(uid)
	if acquire {
		vc.Increment(uint32(uid))
		ls.Add(ev.Addr)
	}

	acc := model.Access{ThreadUID: uid, ThreadClock: ev.ThreadClock, EventType: et, Inst: instID}

	if e.observer != nil {
		if acquire {
			e.observer.MutexLock(ev.Addr, acc)
		} else {
			e.observer.MutexUnlock(ev.Addr, acc)
		}
	}
	if e.predictor != nil {
		acc.VC = vc.Copy()
		acc.LockSet = ls.Copy()
		if acquire {
			e.predictor.MutexLock(ev.Addr, acc)
		} else {
			e.predictor.MutexUnlock(ev.Addr, acc)
		}
	}

	if !acquire {
		vc.Increment(uint32(uid))
		ls.Remove(ev.Addr)
	}
	return nil
}
