package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irootlab/concur/internal/ingest"
	"github.com/irootlab/concur/internal/ingest/fileformat"
	"github.com/irootlab/concur/internal/model"
)

func TestBuildScriptsGroupsActionsPerThread(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.bin")

	enc := fileformat.NewEncoder()
	enc.Append(ingest.Event{Kind: ingest.ThreadStart, ThreadID: 1, ParentThreadID: 0})
	enc.Append(ingest.Event{Kind: ingest.ThreadStart, ThreadID: 2, ParentThreadID: 1})
	enc.Append(ingest.Event{Kind: ingest.AfterMutexLock, ThreadID: 1, Inst: 0x10, Addr: 0x500})
	enc.Append(ingest.Event{Kind: ingest.BeforeMutexUnlock, ThreadID: 1, Inst: 0x14, Addr: 0x500})
	enc.Append(ingest.Event{Kind: ingest.AfterMutexLock, ThreadID: 2, Inst: 0x20, Addr: 0x500})
	enc.Append(ingest.Event{Kind: ingest.BeforeMutexUnlock, ThreadID: 2, Inst: 0x24, Addr: 0x500})
	assert.NoError(t, enc.Flush(path))

	scripts, _, err := buildScripts(path, nil)
	assert.NoError(t, err)
	assert.Len(t, scripts, 2)

	byThread := make(map[model.ThreadUID][]model.Action)
	for _, sc := range scripts {
		byThread[sc.thread] = sc.actions
	}
	for _, actions := range byThread {
		assert.Len(t, actions, 2)
		assert.Equal(t, model.OpMutexLock, actions[0].Op)
		assert.Equal(t, model.OpMutexUnlock, actions[1].Op)
		assert.True(t, actions[0].HasObj)
		assert.Equal(t, uint64(1), actions[0].TC)
		assert.Equal(t, uint64(2), actions[1].TC)
	}
}

// TestBuildScriptsRaceFilterDropsNonRacyMemoryAccesses checks that,
// given a racy set, a memory access on an instruction outside it is
// dropped from the script while a mutex op and a racy memory access
// both survive.
func TestBuildScriptsRaceFilterDropsNonRacyMemoryAccesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sched.bin")

	enc := fileformat.NewEncoder()
	enc.Append(ingest.Event{Kind: ingest.ThreadStart, ThreadID: 1, ParentThreadID: 0})
	enc.Append(ingest.Event{Kind: ingest.AfterMutexLock, ThreadID: 1, Inst: 0x10, Addr: 0x500})
	enc.Append(ingest.Event{Kind: ingest.BeforeMemWrite, ThreadID: 1, Inst: 0x20, Addr: 0x600})
	enc.Append(ingest.Event{Kind: ingest.BeforeMemWrite, ThreadID: 1, Inst: 0x30, Addr: 0x700})
	assert.NoError(t, enc.Flush(path))

	// buildScripts interns instructions into its own table in the order
	// it reads them off the trace; replicate that order here so the id
	// picked out below actually names the 0x30 write.
	insts := model.NewInstTable()
	insts.Intern(0, 0x10, model.OpCall)
	insts.Intern(0, 0x20, model.OpCall)
	racyInst := insts.Intern(0, 0x30, model.OpCall)
	racy := map[model.InstID]bool{racyInst: true}

	scripts, _, err := buildScripts(path, racy)
	assert.NoError(t, err)
	assert.Len(t, scripts, 1)

	actions := scripts[0].actions
	assert.Len(t, actions, 2)
	assert.Equal(t, model.OpMutexLock, actions[0].Op)
	assert.Equal(t, model.OpMemWrite, actions[1].Op)
}
