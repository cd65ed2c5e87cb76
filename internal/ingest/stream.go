// Package ingest defines the inbound event-stream boundary contract
// (spec §6 "Event stream"): a totally ordered per-thread sequence of
// calls from the host into the analysis components.
package ingest

import "context"

// Kind enumerates the event-stream call names of spec §6.
type Kind int

const (
	ProgramStart Kind = iota
	ProgramExit
	ImageLoad
	ImageUnload
	ThreadStart
	ThreadExit
	SyscallEntry
	SyscallExit
	SignalReceived
	BeforeMemRead
	AfterMemRead
	BeforeMemWrite
	AfterMemWrite
	BeforeAtomicInst
	AfterAtomicInst
	BeforeCall
	AfterCall
	BeforeReturn
	AfterReturn
	BeforePthreadCreate
	AfterPthreadCreate
	BeforePthreadJoin
	AfterPthreadJoin
	BeforeMutexTryLock
	AfterMutexTryLock
	BeforeMutexLock
	AfterMutexLock
	BeforeMutexUnlock
	AfterMutexUnlock
	BeforeCondSignal
	AfterCondSignal
	BeforeCondBroadcast
	AfterCondBroadcast
	BeforeCondWait
	AfterCondWait
	BeforeCondTimedwait
	AfterCondTimedwait
	BeforeBarrierInit
	AfterBarrierInit
	BeforeBarrierWait
	AfterBarrierWait
	BeforeMalloc
	AfterMalloc
	BeforeCalloc
	AfterCalloc
	BeforeRealloc
	AfterRealloc
	BeforeFree
	AfterFree
	BeforeValloc
	AfterValloc
)

// Event is one entry of the inbound stream. Every entry carries
// (thread_id, thread_clock); the remaining fields are populated
// according to Kind.
type Event struct {
	Kind        Kind
	ThreadID    uint64
	ThreadClock uint32

	Inst uintptr // instruction address, for mem/atomic/call events
	Addr uintptr // accessed or allocated address
	Size uintptr

	AtomicKind string // "DEC", "CMPXCHG", ... for before/after_atomic_inst

	Image    string
	Low      uintptr
	High     uintptr
	DataLow  uintptr
	DataSize uintptr
	BSSLow   uintptr
	BSSSize  uintptr

	ParentThreadID uint64 // thread_start's "parent"
	SyscallNum     int

	ReturnValue uintptr // after_* calls that report a return value, e.g. malloc's pointer
}

// Decoder produces a totally ordered sequence of Events from some
// underlying transport (a live instrumentation socket, or an offline
// trace file per the fileformat subpackage). Next signals the end of
// the stream with ok=false, err=nil.
type Decoder interface {
	Next() (ev Event, ok bool, err error)
	Close() error
}

// Sink is the boundary the decoder drives: each analysis component
// that wants the raw event stream implements it, typically by
// translating Events into calls on Observer/Predictor/SharedInstDetector/
// the scheduler's Reach.
type Sink interface {
	Handle(ev Event) error
}

// PumpContext drains dec into sink until the stream ends, an error
// occurs, or ctx is cancelled (e.g. by a memory guard), checking ctx
// between events so a long mining pass can be stopped early without
// waiting for the trace to exhaust.
func PumpContext(ctx context.Context, dec Decoder, sink Sink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ev, ok, err := dec.Next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if err := sink.Handle(ev); err != nil {
			return err
		}
	}
}
