package main

import (
	"sync"

	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/sched"
)

// primTable holds the live mutex/cond/barrier/join state chess's
// per-thread driver goroutines consult between schedule points (spec
// §4.E.6). It is the glue between a thread's scripted next action and
// sched's scheduled-primitive semantics: a driver only calls
// Scheduler.Reach once its action is actually enabled, and applies the
// primitive's side effect (waking another thread, say) once the
// scheduler has committed the step.
type primTable struct {
	mu       sync.Mutex
	cond     *sync.Cond
	mutexes  map[model.ObjectUID]*sched.Mutex
	conds    map[model.ObjectUID]*sched.Cond
	barriers map[model.ObjectUID]*sched.Barrier
	joins    map[model.ObjectUID]*sched.JoinTarget
	ready    map[model.ObjectUID]map[model.ThreadUID]bool

	barrierCounts map[model.ObjectUID]int
}

func newPrimTable(barrierCounts map[model.ObjectUID]int) *primTable {
	p := &primTable{
		mutexes:       make(map[model.ObjectUID]*sched.Mutex),
		conds:         make(map[model.ObjectUID]*sched.Cond),
		barriers:      make(map[model.ObjectUID]*sched.Barrier),
		joins:         make(map[model.ObjectUID]*sched.JoinTarget),
		ready:         make(map[model.ObjectUID]map[model.ThreadUID]bool),
		barrierCounts: barrierCounts,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Callers must hold p.mu while using the lazily-created accessors below.

func (p *primTable) mutexFor(obj model.ObjectUID) *sched.Mutex {
	m, ok := p.mutexes[obj]
	if !ok {
		m = &sched.Mutex{}
		p.mutexes[obj] = m
	}
	return m
}

func (p *primTable) condFor(obj model.ObjectUID) *sched.Cond {
	c, ok := p.conds[obj]
	if !ok {
		c = sched.NewCond()
		p.conds[obj] = c
	}
	return c
}

func (p *primTable) barrierFor(obj model.ObjectUID) *sched.Barrier {
	b, ok := p.barriers[obj]
	if !ok {
		count := p.barrierCounts[obj]
		if count <= 0 {
			count = 1
		}
		b = sched.NewBarrier(count)
		p.barriers[obj] = b
	}
	return b
}

func (p *primTable) joinFor(obj model.ObjectUID) *sched.JoinTarget {
	j, ok := p.joins[obj]
	if !ok {
		j = &sched.JoinTarget{}
		p.joins[obj] = j
	}
	return j
}

// markReady flags every thread in woken as runnable on obj and wakes
// every driver goroutine blocked in waitUntilReady.
func (p *primTable) markReady(obj model.ObjectUID, woken []model.ThreadUID) {
	if len(woken) == 0 {
		return
	}
	p.mu.Lock()
	set, ok := p.ready[obj]
	if !ok {
		set = make(map[model.ThreadUID]bool)
		p.ready[obj] = set
	}
	for _, t := range woken {
		set[t] = true
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

// waitUntilReady blocks the calling driver goroutine until t has been
// marked ready on obj, consuming the flag.
func (p *primTable) waitUntilReady(obj model.ObjectUID, t model.ThreadUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for !p.ready[obj][t] {
		p.cond.Wait()
	}
	delete(p.ready[obj], t)
}

// drive steps t through a, blocking on the relevant primitive exactly
// where the corresponding pthread call would, and only proposing a to
// the scheduler once it is actually enabled.
func (p *primTable) drive(s *sched.Scheduler, t model.ThreadUID, a model.Action) {
	switch a.Op {
	case model.OpMutexLock:
		if a.HasObj {
			p.mu.Lock()
			ok := p.mutexFor(a.Object).Lock(t)
			p.mu.Unlock()
			if !ok {
				p.waitUntilReady(a.Object, t)
			}
		}
		s.Reach(t, a)

	case model.OpMutexTryLock:
		if a.HasObj {
			p.mu.Lock()
			p.mutexFor(a.Object).TryLock(t)
			p.mu.Unlock()
		}
		s.Reach(t, a)

	case model.OpMutexUnlock:
		s.Reach(t, a)
		if a.HasObj {
			p.mu.Lock()
			woken, ok := p.mutexFor(a.Object).Unlock(t)
			p.mu.Unlock()
			if ok {
				p.markReady(a.Object, []model.ThreadUID{woken})
			}
		}

	case model.OpCondWait, model.OpCondTimedwait:
		if a.HasObj {
			p.mu.Lock()
			p.condFor(a.Object).Wait(t, a.Op == model.OpCondTimedwait)
			p.mu.Unlock()
		}
		s.Reach(t, a)
		if a.HasObj {
			p.waitUntilReady(a.Object, t)
			p.mu.Lock()
			p.condFor(a.Object).Return(t)
			p.mu.Unlock()
		}

	case model.OpCondSignal:
		s.Reach(t, a)
		if a.HasObj {
			p.mu.Lock()
			woken, ok := p.condFor(a.Object).Signal()
			p.mu.Unlock()
			if ok {
				p.markReady(a.Object, []model.ThreadUID{woken})
			}
		}

	case model.OpCondBroadcast:
		s.Reach(t, a)
		if a.HasObj {
			p.mu.Lock()
			woken := p.condFor(a.Object).Broadcast()
			p.mu.Unlock()
			p.markReady(a.Object, woken)
		}

	case model.OpBarrierWait:
		s.Reach(t, a)
		if a.HasObj {
			p.mu.Lock()
			released := p.barrierFor(a.Object).Arrive(t)
			p.mu.Unlock()
			if released != nil {
				p.markReady(a.Object, released)
			} else {
				p.waitUntilReady(a.Object, t)
			}
		}

	case model.OpThreadJoin:
		if a.HasObj {
			p.mu.Lock()
			ok := p.joinFor(a.Object).Join(t)
			p.mu.Unlock()
			if !ok {
				p.waitUntilReady(a.Object, t)
			}
		}
		s.Reach(t, a)

	case model.OpThreadEnd:
		s.Reach(t, a)
		p.mu.Lock()
		joined := p.joinFor(model.ObjectUID(t)).Exit()
		p.mu.Unlock()
		p.markReady(model.ObjectUID(t), joined)

	default:
		s.Reach(t, a)
	}
}
