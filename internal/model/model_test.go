package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadUIDsStableAcrossRuns(t *testing.T) {
	run := func() []ThreadUID {
		tt := NewThreadTable()
		main := MainThreadUID
		a := tt.Start(main, 100)
		b := tt.Start(main, 101)
		c := tt.Start(a, 102)
		return []ThreadUID{a, b, c}
	}

	r1 := run()
	r2 := run()
	assert.Equal(t, r1, r2, "identical event streams must yield identical uids (P1)")
}

func TestObjectUIDsStableAcrossRuns(t *testing.T) {
	run := func() ObjectUID {
		ot := NewObjectTable()
		ot.Allocate(1, 5, 0x1000, 16)
		return ot.Allocate(1, 5, 0x2000, 16)
	}
	assert.Equal(t, run(), run())
}

func TestInstInterningIsIdempotent(t *testing.T) {
	it := NewInstTable()
	id1 := it.Intern(1, 0x400, OpRead)
	id2 := it.Intern(1, 0x400, OpRead)
	assert.Equal(t, id1, id2)
}

func TestInstTableLoadPreservesPersistedIDsAndResumesInterning(t *testing.T) {
	it := NewInstTable()
	it.Load([]Inst{{ID: 7, Image: 1, Offset: 0x400, Category: OpRead}})

	got, ok := it.Lookup(7)
	assert.True(t, ok)
	assert.Equal(t, uintptr(0x400), got.Offset)

	// Interning the same (image, offset) again must still return 7,
	// and a brand new site must not collide with it.
	assert.Equal(t, InstID(7), it.Intern(1, 0x400, OpRead))
	assert.Greater(t, it.Intern(1, 0x800, OpWrite), InstID(7))
}

func TestThreadTableLoadPreservesUIDsForFutureChildCreation(t *testing.T) {
	tt := NewThreadTable()
	tt.Load([]Thread{
		{UID: MainThreadUID},
		{UID: 2, ParentUID: MainThreadUID, CreatorOrdinal: 0},
	})

	// A later run re-creating the same first child of main must reuse
	// uid 2, not reassign a fresh one.
	assert.Equal(t, ThreadUID(2), tt.Start(MainThreadUID, 200))
	assert.Equal(t, ThreadUID(3), tt.Start(MainThreadUID, 201))
}

func TestObjectTableLoadPreservesUIDsAndAllocationOrdinals(t *testing.T) {
	ot := NewObjectTable()
	ot.Load([]Object{
		{UID: 5, Kind: ObjectDynamic, CreatorThread: 1, CreatorInst: 9, CreatorOrdinal: 0},
	})

	// The next allocation at the same (thread, inst) site must continue
	// the ordinal sequence rather than restart it at 0.
	assert.Equal(t, ObjectUID(6), ot.Allocate(1, 9, 0x3000, 16))
}

func TestCallStackReturnMatchesDeepestFrame(t *testing.T) {
	cs := NewCallStack()
	cs.OnCall(1, 0xAAAA)
	cs.OnCall(2, 0xBBBB)
	cs.OnCall(3, 0xCCCC)

	cs.OnReturn(0xBBBB)
	assert.Equal(t, 1, cs.Depth())
}

func TestCallStackReturnIgnoresUnmatchedStub(t *testing.T) {
	cs := NewCallStack()
	cs.OnCall(1, 0xAAAA)
	cs.OnReturn(0xDEAD)
	assert.Equal(t, 1, cs.Depth(), "unmatched return address must be tolerated, not popped")
}

func TestSnapshotsEqual(t *testing.T) {
	a := map[ThreadUID]ActionInfo{1: {Thread: 1, Op: OpMutexLock}}
	b := map[ThreadUID]ActionInfo{1: {Thread: 1, Op: OpMutexLock}}
	assert.True(t, SnapshotsEqual(a, b))

	b[2] = ActionInfo{Thread: 2, Op: OpMutexUnlock}
	assert.False(t, SnapshotsEqual(a, b))
}
