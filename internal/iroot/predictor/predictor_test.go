package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irootlab/concur/internal/clock"
	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/lockset"
	"github.com/irootlab/concur/internal/model"
)

func vc(entries ...uint32) *clock.VectorClock {
	v := clock.New()
	for i, e := range entries {
		if e != 0 {
			v.Set(uint32(i+1), e)
		}
	}
	return v
}

func access(thread model.ThreadUID, inst model.InstID, et model.EventType, tc uint32, v *clock.VectorClock, ls *lockset.LockSet) model.Access {
	if ls == nil {
		ls = lockset.New()
	}
	return model.Access{ThreadUID: thread, Inst: inst, EventType: et, ThreadClock: tc, VC: v, LockSet: ls}
}

// TestPredictConcurrentAccessesFormIdiom1 mirrors spec.md scenario S1:
// two unsynchronized writes to the same address on concurrent vector
// clocks predict an Idiom-1 pair.
func TestPredictConcurrentAccessesFormIdiom1(t *testing.T) {
	memo := iroot.NewMemo()
	p := New(DefaultConfig(), memo)

	t1, t2 := model.ThreadUID(1), model.ThreadUID(2)

	a1 := access(t1, 10, model.EventMemWrite, 1, vc(1, 0), nil)
	p.MemWrite(0x1000, a1)

	a2 := access(t2, 20, model.EventMemWrite, 1, vc(0, 1), nil)
	p.MemWrite(0x1000, a2)

	assert.Equal(t, 1, memo.Len())
	root := memo.All()[0].Root
	assert.Equal(t, iroot.Idiom1, root.Kind)
}

// TestPredictDoesNotPairSameThread checks that a thread's own earlier
// access is never reported as a remote predecessor of its later one.
func TestPredictDoesNotPairSameThread(t *testing.T) {
	memo := iroot.NewMemo()
	p := New(DefaultConfig(), memo)

	t1 := model.ThreadUID(1)
	p.MemWrite(0x2000, access(t1, 10, model.EventMemWrite, 1, vc(1), nil))
	p.MemWrite(0x2000, access(t1, 11, model.EventMemWrite, 2, vc(2), nil))

	assert.Equal(t, 0, memo.Len())
}

// TestPredictLockProtectedAccessesStillFeasible matches spec.md
// scenario S2: two lock-protected accesses with no adjacent access on
// either side are feasible and get predicted despite sharing a lock.
func TestPredictLockProtectedAccessesStillFeasible(t *testing.T) {
	memo := iroot.NewMemo()
	p := New(DefaultConfig(), memo)

	t1, t2 := model.ThreadUID(1), model.ThreadUID(2)
	m := lockset.New()
	m.Add(0x9000)

	p.MutexLock(0x9000, access(t1, 1, model.EventMutexLock, 1, vc(1, 0), m))
	p.MemWrite(0x3000, access(t1, 2, model.EventMemWrite, 2, vc(2, 0), m))
	p.MutexUnlock(0x9000, access(t1, 3, model.EventMutexUnlock, 3, vc(3, 0), m))

	p.MutexLock(0x9000, access(t2, 1, model.EventMutexLock, 1, vc(0, 1), m))
	p.MemWrite(0x3000, access(t2, 2, model.EventMemWrite, 2, vc(0, 2), m))
	p.MutexUnlock(0x9000, access(t2, 3, model.EventMutexUnlock, 3, vc(0, 3), m))

	var idiom1 int
	for _, rec := range memo.All() {
		if rec.Root.Kind == iroot.Idiom1 {
			idiom1++
		}
	}
	assert.GreaterOrEqual(t, idiom1, 1)
}

func TestHistoryBucketsGroupByVectorClock(t *testing.T) {
	h := NewHistory()
	t1 := model.ThreadUID(1)
	h.Add(access(t1, 1, model.EventMemRead, 1, vc(1), nil))
	h.Add(access(t1, 2, model.EventMemRead, 2, vc(1), nil))
	h.Add(access(t1, 3, model.EventMemWrite, 3, vc(2), nil))

	buckets := h.Buckets(t1)
	assert.Len(t, buckets, 2)
	assert.Len(t, buckets[0].Access, 2)
	assert.Len(t, buckets[1].Access, 1)
}

func TestMetaRecordMarksSharedOnSecondThread(t *testing.T) {
	m := NewMeta()
	t1, t2 := model.ThreadUID(1), model.ThreadUID(2)
	m.Record(access(t1, 1, model.EventMemWrite, 1, vc(1), nil))
	assert.False(t, m.Shared)
	m.Record(access(t2, 1, model.EventMemWrite, 1, vc(0, 1), nil))
	assert.True(t, m.Shared)
}

// TestPredictorDetectsLockOrderInversion checks the deadlock-prediction
// pass: thread 1 locks X then Y, thread 2 locks Y then X within the
// vulnerability window, and the mirrored nesting must surface as an
// Idiom-5 iRoot.
func TestPredictorDetectsLockOrderInversion(t *testing.T) {
	memo := iroot.NewMemo()
	cfg := DefaultConfig()
	cfg.PredictDeadlock = true
	p := New(cfg, memo)

	t1, t2 := model.ThreadUID(1), model.ThreadUID(2)
	lockX, lockY := uintptr(0xA000), uintptr(0xB000)

	p.MutexLock(lockX, access(t1, 1, model.EventMutexLock, 1, vc(1), nil))
	p.MutexLock(lockY, access(t1, 2, model.EventMutexLock, 2, vc(2), nil))

	assert.Equal(t, 0, memo.Len(), "no deadlock until the mirrored pair shows up")

	p.MutexLock(lockY, access(t2, 1, model.EventMutexLock, 1, vc(0, 1), nil))
	p.MutexLock(lockX, access(t2, 2, model.EventMutexLock, 2, vc(0, 2), nil))

	assert.Greater(t, memo.Len(), 0)
	totals := memo.TotalsByIdiom()
	assert.Greater(t, totals[iroot.Idiom5], 0)
}

// TestPredictorDeadlockIgnoresSingleThreadReentrantNesting checks that
// one thread locking two distinct addresses, with no other thread ever
// forming the mirrored order, never emits anything.
func TestPredictorDeadlockIgnoresSingleThreadReentrantNesting(t *testing.T) {
	memo := iroot.NewMemo()
	cfg := DefaultConfig()
	cfg.PredictDeadlock = true
	p := New(cfg, memo)

	t1 := model.ThreadUID(1)
	lockX, lockY := uintptr(0xA000), uintptr(0xB000)

	p.MutexLock(lockX, access(t1, 1, model.EventMutexLock, 1, vc(1), nil))
	p.MutexLock(lockY, access(t1, 2, model.EventMutexLock, 2, vc(2), nil))
	p.MutexLock(lockX, access(t1, 3, model.EventMutexLock, 3, vc(3), nil))
	p.MutexLock(lockY, access(t1, 4, model.EventMutexLock, 4, vc(4), nil))

	assert.Equal(t, 0, memo.Len())
}
