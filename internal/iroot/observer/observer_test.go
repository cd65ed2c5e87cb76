package observer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/model"
)

const (
	threadA model.ThreadUID = 1
	threadB model.ThreadUID = 2
)

func access(thread model.ThreadUID, clk uint32, et model.EventType, inst model.InstID) model.Access {
	return model.Access{ThreadUID: thread, ThreadClock: clk, EventType: et, Inst: inst}
}

// TestScenarioS1 matches spec.md scenario S1: A writes x, B reads x;
// exactly one Idiom-1 iRoot is produced.
func TestScenarioS1(t *testing.T) {
	memo := iroot.NewMemo()
	obs := New(DefaultConfig(), memo)

	writeInst := model.InstID(10)
	readInst := model.InstID(20)
	addr := uintptr(0x1000)

	obs.MemWrite(addr, access(threadA, 1, model.EventMemWrite, writeInst))
	obs.MemRead(addr, access(threadB, 1, model.EventMemRead, readInst))

	totals := memo.TotalsByIdiom()
	assert.Equal(t, 1, totals[iroot.Idiom1])

	want := iroot.New1(
		iroot.Event{Inst: writeInst, Type: model.EventMemWrite},
		iroot.Event{Inst: readInst, Type: model.EventMemRead},
	)
	_, ok := memo.Get(want)
	assert.True(t, ok)
}

// TestScenarioS3 matches spec.md scenario S3: A writes twice, B reads
// in between; exactly one Idiom-2 iRoot (e0=write#1, r=read@B,
// e2=write#2) is produced.
func TestScenarioS3(t *testing.T) {
	memo := iroot.NewMemo()
	cfg := DefaultConfig()
	cfg.VulnerabilityWindow = 1000
	obs := New(cfg, memo)

	write1 := model.InstID(1)
	write2 := model.InstID(2)
	read := model.InstID(3)
	addr := uintptr(0x2000)

	obs.MemWrite(addr, access(threadA, 1, model.EventMemWrite, write1))
	obs.MemRead(addr, access(threadB, 1, model.EventMemRead, read))
	obs.MemWrite(addr, access(threadA, 2, model.EventMemWrite, write2))

	totals := memo.TotalsByIdiom()
	assert.Equal(t, 1, totals[iroot.Idiom2])

	want := iroot.New2(
		iroot.Event{Inst: write1, Type: model.EventMemWrite},
		iroot.Event{Inst: read, Type: model.EventMemRead},
		iroot.Event{Inst: write2, Type: model.EventMemWrite},
	)
	_, ok := memo.Get(want)
	assert.True(t, ok)
}

func TestLockUnlockProducesIdiom1(t *testing.T) {
	memo := iroot.NewMemo()
	obs := New(DefaultConfig(), memo)

	lockAddr := uintptr(0x3000)
	unlockInst := model.InstID(5)
	lockInst := model.InstID(6)

	obs.MutexLock(lockAddr, access(threadA, 1, model.EventMutexLock, lockInst))
	obs.MutexUnlock(lockAddr, access(threadA, 2, model.EventMutexUnlock, unlockInst))
	obs.MutexLock(lockAddr, access(threadB, 1, model.EventMutexLock, lockInst))

	totals := memo.TotalsByIdiom()
	assert.Equal(t, 1, totals[iroot.Idiom1])
}

func TestFreeAddressClearsMeta(t *testing.T) {
	memo := iroot.NewMemo()
	obs := New(DefaultConfig(), memo)
	addr := uintptr(0x4000)

	obs.MemWrite(addr, access(threadA, 1, model.EventMemWrite, 1))
	obs.FreeAddress(addr)
	obs.MemRead(addr, access(threadB, 1, model.EventMemRead, 2))

	// After teardown, the old writer is gone: no predecessor, no iRoot.
	totals := memo.TotalsByIdiom()
	assert.Equal(t, 0, totals[iroot.Idiom1])
}
