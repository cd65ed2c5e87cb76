package model

// Operation enumerates the primitives the systematic scheduler models
// as Actions (spec §3 "Action", §4.E.6).
type Operation int

const (
	OpThreadStart Operation = iota
	OpThreadEnd
	OpThreadCreate
	OpThreadJoin
	OpMutexLock
	OpMutexUnlock
	OpMutexTryLock
	OpCondWait
	OpCondSignal
	OpCondBroadcast
	OpCondTimedwait
	OpBarrierInit
	OpBarrierWait
	OpMemRead
	OpMemWrite
	OpSleep
	OpUsleep
	OpSchedYield
)

// Action is a single observable operation by a thread on an object
// (or no object, for thread-lifecycle and yielding operations).
//
// TC is the per-thread ordinal of the action; OC is the per-object
// write-ordinal (read actions retain the object's current OC without
// incrementing it). Together with (Thread, Object, Op, Inst) these
// make the tuple unique and cross-run stable (invariant I6).
type Action struct {
	Thread   ThreadUID
	Object   ObjectUID
	HasObj   bool
	Op       Operation
	Inst     InstID
	TC       uint64
	OC       uint64
	Yield    bool
}

// Key returns the tuple spec §3 requires to be unique within an
// Execution.
func (a Action) Key() ActionKey {
	return ActionKey{Thread: a.Thread, Object: a.Object, HasObj: a.HasObj, Op: a.Op, Inst: a.Inst, TC: a.TC, OC: a.OC}
}

// ActionKey is the comparable projection of an Action used for
// equality, hashing and the action-sequence-equivalence check of POR
// (spec §4.E.5).
type ActionKey struct {
	Thread ThreadUID
	Object ObjectUID
	HasObj bool
	Op     Operation
	Inst   InstID
	TC     uint64
	OC     uint64
}

// Transparent reports whether the action carries no object, and is
// therefore ignored by action-sequence equivalence (spec §4.E.5).
func (a Action) Transparent() bool {
	return !a.HasObj
}
