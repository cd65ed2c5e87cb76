package sched

import "github.com/irootlab/concur/internal/model"

// Mutex models spec §4.E.6's scheduled mutex: an owner field plus a
// wait queue. TryLock never blocks but disables contenders on success,
// to keep fairness parity with Lock.
type Mutex struct {
	owner   model.ThreadUID
	held    bool
	waiters []model.ThreadUID
}

// Lock attempts to acquire the mutex for t. ok is false if t must
// block (added to the wait queue).
func (m *Mutex) Lock(t model.ThreadUID) (ok bool) {
	if !m.held {
		m.held = true
		m.owner = t
		return true
	}
	m.waiters = append(m.waiters, t)
	return false
}

// TryLock attempts a non-blocking acquire; on success every other
// contender is considered disabled by this transition.
func (m *Mutex) TryLock(t model.ThreadUID) bool {
	if m.held {
		return false
	}
	m.held = true
	m.owner = t
	return true
}

// Unlock releases the mutex held by t, waking the next waiter if any.
// It reports the woken thread, if one exists.
func (m *Mutex) Unlock(t model.ThreadUID) (woken model.ThreadUID, ok bool) {
	m.held = false
	m.owner = 0
	if len(m.waiters) == 0 {
		return 0, false
	}
	woken = m.waiters[0]
	m.waiters = m.waiters[1:]
	m.held = true
	m.owner = woken
	return woken, true
}

// Enabled reports whether t can currently act on the mutex: always
// true for an unheld mutex, or for the thread already queued as next.
func (m *Mutex) Enabled(t model.ThreadUID) bool {
	return !m.held || m.owner == t
}

// CondWaiter is one waiter's record on a Cond (spec §4.E.6
// "Condition").
type CondWaiter struct {
	Thread    model.ThreadUID
	Timed     bool
	SignalIDs map[uint64]bool
}

// Cond models spec §4.E.6's condition variable: signal/broadcast
// wake-up accounting independent of the mutex re-acquire step, which
// the caller layers on top via Mutex.
type Cond struct {
	waiters      map[model.ThreadUID]*CondWaiter
	broadcasted  bool
	nextSignalID uint64
}

// NewCond returns an empty condition variable.
func NewCond() *Cond {
	return &Cond{waiters: make(map[model.ThreadUID]*CondWaiter)}
}

// Wait registers t as waiting, optionally with a timeout.
func (c *Cond) Wait(t model.ThreadUID, timed bool) {
	c.waiters[t] = &CondWaiter{Thread: t, Timed: timed, SignalIDs: make(map[uint64]bool)}
}

// Signal assigns a fresh signal id and enables one untimed waiter
// with an empty signal set, if any; which one is not defined.
func (c *Cond) Signal() (woken model.ThreadUID, ok bool) {
	id := c.nextSignalID
	c.nextSignalID++
	for t, w := range c.waiters {
		if !w.Timed && len(w.SignalIDs) == 0 {
			w.SignalIDs[id] = true
			return t, true
		}
	}
	return 0, false
}

// Broadcast marks the cond broadcasted and enables every untimed
// waiter whose signal set was empty, clearing every waiter's set.
func (c *Cond) Broadcast() []model.ThreadUID {
	c.broadcasted = true
	var woken []model.ThreadUID
	for t, w := range c.waiters {
		if !w.Timed && len(w.SignalIDs) == 0 {
			woken = append(woken, t)
		}
		w.SignalIDs = make(map[uint64]bool)
	}
	return woken
}

// Return completes t's wait: if the cond was not broadcasted, t
// chooses an arbitrary signal id from its set and removes that id
// from every other waiter's set (a signal wakes only one). A timed
// waiter whose set is still empty returns timedOut=true.
func (c *Cond) Return(t model.ThreadUID) (timedOut bool) {
	w, ok := c.waiters[t]
	if !ok {
		return false
	}
	defer delete(c.waiters, t)

	if w.Timed && len(w.SignalIDs) == 0 {
		return true
	}
	if c.broadcasted {
		return false
	}
	var chosen uint64
	for id := range w.SignalIDs {
		chosen = id
		break
	}
	for other, ow := range c.waiters {
		if other == t {
			continue
		}
		delete(ow.SignalIDs, chosen)
	}
	return false
}

// Barrier models spec §4.E.6's barrier: the count-th arrival releases
// every waiter.
type Barrier struct {
	count   int
	waiting []model.ThreadUID
}

// NewBarrier returns a barrier that releases on the count-th arrival.
func NewBarrier(count int) *Barrier {
	return &Barrier{count: count}
}

// Arrive records t's arrival, returning the released waiters (nil
// unless this arrival completes the barrier).
func (b *Barrier) Arrive(t model.ThreadUID) []model.ThreadUID {
	b.waiting = append(b.waiting, t)
	if len(b.waiting) < b.count {
		return nil
	}
	released := b.waiting
	b.waiting = nil
	return released
}

// JoinTarget models spec §4.E.6's join primitive: joiners block on the
// target thread's exit flag.
type JoinTarget struct {
	exited  bool
	joiners []model.ThreadUID
}

// Exit marks the target as exited, returning every blocked joiner to
// enable.
func (j *JoinTarget) Exit() []model.ThreadUID {
	j.exited = true
	out := j.joiners
	j.joiners = nil
	return out
}

// Join registers t as waiting for the target's exit; ok is false if t
// must block.
func (j *JoinTarget) Join(t model.ThreadUID) (ok bool) {
	if j.exited {
		return true
	}
	j.joiners = append(j.joiners, t)
	return false
}
