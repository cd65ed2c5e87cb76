package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/sched"
)

// TestPrimTableSerializesMutexContention drives two threads each
// through a lock/unlock pair on the same mutex and checks that the
// driver only ever proposes a lock action to the scheduler once the
// mutex is actually free, so the run finishes without either thread
// observing the other holding the lock at the same time.
func TestPrimTableSerializesMutexContention(t *testing.T) {
	stack := sched.NewStack()
	por := sched.NewPOR(func(string) (*model.Execution, bool) { return nil, false })
	s := sched.New(sched.DefaultConfig(), stack, por, "run-0")
	s.RegisterThread(1)
	s.RegisterThread(2)
	s.NewRun("run-0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	const mutex model.ObjectUID = 500
	prims := newPrimTable(nil)

	var held int32
	var sawOverlap bool
	var mu sync.Mutex
	trackingLock := func(thread model.ThreadUID) model.Action {
		return model.Action{Thread: thread, Op: model.OpMutexLock, HasObj: true, Object: mutex}
	}
	trackingUnlock := func(thread model.ThreadUID) model.Action {
		return model.Action{Thread: thread, Op: model.OpMutexUnlock, HasObj: true, Object: mutex}
	}

	run := func(thread model.ThreadUID) {
		prims.drive(s, thread, trackingLock(thread))
		mu.Lock()
		if held != 0 {
			sawOverlap = true
		}
		held = int32(thread)
		mu.Unlock()

		mu.Lock()
		held = 0
		mu.Unlock()
		prims.drive(s, thread, trackingUnlock(thread))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); run(1) }()
	go func() { defer wg.Done(); run(2) }()

	waitDone := make(chan struct{})
	go func() { wg.Wait(); close(waitDone) }()

	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for mutex-contention run to finish")
	}

	cancel()
	<-done

	assert.False(t, sawOverlap)
	assert.Len(t, s.Execution().Actions, 4)
}
