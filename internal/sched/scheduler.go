package sched

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/irootlab/concur/internal/model"
)

// ErrDivergence is returned by Run when its context is cancelled while
// the current run is diverged, i.e. a prefix-replay node's
// CheckDivergence failed and the persisted search tree no longer
// describes the program being driven (spec §4.E.2, §7.2).
var ErrDivergence = errors.New("sched: run diverged from persisted search stack")

// Config carries the scheduler flags of spec §6: `pb`, `pb_limit`,
// `fair`, `por`, `abort_diverge`.
type Config struct {
	PB           bool
	PBLimit      int
	Fair         bool
	POR          bool
	AbortDiverge bool
}

// DefaultConfig matches spec §4.E.3's default preemption bound.
func DefaultConfig() Config {
	return Config{PB: true, PBLimit: 2, Fair: true, POR: true}
}

// Scheduler is the single-threaded cooperative CHESS scheduler (spec
// §4.E.1). One goroutine (Run) owns the kernel lock and plays the
// role of the scheduler thread; application goroutines call Reach at
// every schedule point, the equivalent of a semaphore wait, modeled
// here as a blocking receive on a per-thread permission channel.
type Scheduler struct {
	mu sync.Mutex // the kernel lock

	cfg   Config
	stack *Stack
	fair  *FairControl
	por   *POR
	exec  *model.Execution

	permission map[model.ThreadUID]chan struct{}
	candidates map[model.ThreadUID]model.Action
	granted    map[model.ThreadUID]model.Action
	allThreads []model.ThreadUID

	nextState chan struct{} // size-1, the "next_state" semaphore

	prevThread      model.ThreadUID
	currPreemptions int
	stateIndex      int
	execID          string

	diverged bool
}

// New returns a Scheduler that will replay/extend stack, persisting
// POR pruning decisions through por.
func New(cfg Config, stack *Stack, por *POR, execID string) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		stack:      stack,
		fair:       NewFairControl(),
		por:        por,
		exec:       &model.Execution{ID: execID},
		permission: make(map[model.ThreadUID]chan struct{}),
		candidates: make(map[model.ThreadUID]model.Action),
		granted:    make(map[model.ThreadUID]model.Action),
		nextState:  make(chan struct{}, 1),
		execID:     execID,
	}
}

// NewRun resets the scheduler's per-run bookkeeping (preemption count,
// previous thread, execution log) while keeping the search stack, fair
// control, and POR table, so the same Scheduler can drive DFS run
// after DFS run.
func (s *Scheduler) NewRun(execID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execID = execID
	s.exec = &model.Execution{ID: execID}
	s.prevThread = 0
	s.currPreemptions = 0
	s.stateIndex = 0
	s.diverged = false
}

// RegisterThread announces a new monitored thread, giving it a
// permission channel to block on.
func (s *Scheduler) RegisterThread(t model.ThreadUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permission[t]; ok {
		return
	}
	s.permission[t] = make(chan struct{})
	s.allThreads = append(s.allThreads, t)
}

// Reach is called by an application goroutine at a schedule point: it
// registers candidate as that thread's proposed action, wakes the
// scheduler goroutine, and blocks until granted permission to proceed.
// The returned Action is the one the scheduler committed, which is the
// candidate this thread registered.
func (s *Scheduler) Reach(t model.ThreadUID, candidate model.Action) model.Action {
	s.mu.Lock()
	s.candidates[t] = candidate
	perm := s.permission[t]
	select {
	case s.nextState <- struct{}{}:
	default:
	}
	s.mu.Unlock()

	<-perm

	s.mu.Lock()
	delete(s.candidates, t)
	chosen, ok := s.granted[t]
	delete(s.granted, t)
	s.mu.Unlock()
	if !ok {
		// The kernel-lock protocol guarantees perm is only signalled
		// once Run has populated s.granted[t]; anything else is a
		// scheduler bug, not a recoverable condition.
		model.Fatal(fmt.Errorf("sched: thread %d granted permission with no committed action", t))
	}
	return chosen
}

// Run is the scheduler goroutine's main loop: it blocks on next_state,
// builds a State from the currently proposed candidates, and calls
// explore to pick the next action, until the DFS is exhausted or the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if s.Diverged() {
				return ErrDivergence
			}
			return ctx.Err()
		case <-s.nextState:
		}

		s.mu.Lock()
		if len(s.candidates) == 0 {
			s.mu.Unlock()
			continue
		}

		state := model.State{Enabled: make(map[model.ThreadUID]model.Action, len(s.candidates))}
		for t, a := range s.candidates {
			state.Enabled[t] = a
		}

		chosen, ok, diverged := s.explore(state)
		if !ok {
			s.mu.Unlock()
			s.stack.PopFinished()
			return nil
		}
		s.advance(state, chosen, diverged)

		s.granted[chosen.Thread] = chosen
		perm := s.permission[chosen.Thread]
		s.mu.Unlock()

		if diverged {
			s.MarkDiverged()
		}

		perm <- struct{}{}
	}
}

// advance records the chosen action into the execution and POR table
// and updates preemption/fair-control bookkeeping, callable both from
// Run's goroutine loop and directly from tests that drive explore
// without a live scheduler goroutine. Once a run has diverged, the
// persisted search tree no longer describes it, so POR/backtrack
// state is left untouched (spec S6 "search_info is unchanged").
func (s *Scheduler) advance(state model.State, chosen model.Action, diverged bool) {
	s.exec.Append(state, chosen)
	if s.cfg.POR && !diverged && !s.diverged {
		pcByThread := make(map[model.ThreadUID]model.InstID, len(state.Enabled))
		for t, a := range state.Enabled {
			pcByThread[t] = a.Inst
		}
		h := s.por.Advance(chosen, pcByThread)
		if s.por.Prune(h, s.currPreemptions, s.exec) {
			if frontier := s.stack.Frontier(); frontier != nil {
				for t := range frontier.BacktrackSet {
					frontier.DoneSet[t] = true
				}
			}
		}
		s.por.Record(h, s.currPreemptions, s.execID, s.stateIndex)
	}
	s.stateIndex++

	if s.prevThread != 0 && chosen.Thread != s.prevThread {
		s.currPreemptions++
	}
	prevEnabled := make(map[model.ThreadUID]bool, len(state.Enabled))
	for t := range state.Enabled {
		prevEnabled[t] = true
	}
	s.fair.Observe(chosen.Thread, s.allThreads, prevEnabled, s.enabledAfter(state, chosen), chosen.Yield)
	s.prevThread = chosen.Thread
}

// enabledAfter approximates the post-transition enabled set as every
// candidate except the one just taken; callers that model a primitive
// disabling further threads (e.g. a successful TryLock) should layer
// that onto the next round's candidates before calling Reach again.
func (s *Scheduler) enabledAfter(state model.State, taken model.Action) map[model.ThreadUID]bool {
	out := make(map[model.ThreadUID]bool, len(state.Enabled))
	for t := range state.Enabled {
		if t != taken.Thread {
			out[t] = true
		}
	}
	return out
}

// explore implements spec §4.E.2's frontier logic. s.stateIndex is the
// depth of the current schedule point: indices below stack.size()-1
// name a prefix node from a resumed search and must be *replayed*
// (step 1, checking CheckDivergence), the index at stack.size()-1 is
// the frontier carried over from an earlier, possibly-incomplete run,
// and the index at stack.size() is a brand new schedule point that
// extends the stack (step 3). Only the latter two populate the
// backtrack set and run PB/fair pruning; the first just replays the
// recorded choice. POR pruning happens afterwards, in advance.
//
// The three return values are (chosen action, ok, diverged). ok is
// false only once the frontier's backtrack set is exhausted. diverged
// is true exactly when a prefix node no longer matches the replayed
// state, per spec P7/S6.
func (s *Scheduler) explore(state model.State) (model.Action, bool, bool) {
	if s.diverged {
		return s.randomPick(state), true, false
	}

	idx := s.stateIndex
	if idx < len(s.stack.Nodes)-1 {
		node := s.stack.Nodes[idx]
		if !CheckDivergence(node, state.EnabledSnapshot()) {
			return s.randomPick(state), true, true
		}
		action, ok := state.Enabled[node.SelectedThread]
		if !ok {
			return s.randomPick(state), true, true
		}
		return action, true, false
	}

	var frontier *SearchNode
	if idx == len(s.stack.Nodes) {
		frontier = NewSearchNode()
		s.stack.Push(frontier)
	} else {
		frontier = s.stack.Nodes[idx]
	}
	frontier.Populate(state.Enabled)
	frontier.EnabledSnapshot = state.EnabledSnapshot()

	currEnabled := make(map[model.ThreadUID]bool, len(state.Enabled))
	for t := range state.Enabled {
		currEnabled[t] = true
	}

	for t := range frontier.BacktrackSet {
		if frontier.DoneSet[t] {
			continue
		}
		if s.cfg.PB && s.prevThread != 0 && t != s.prevThread && currEnabled[s.prevThread] &&
			s.currPreemptions+1 > s.cfg.PBLimit {
			frontier.DoneSet[t] = true
		}
	}
	if s.cfg.Fair {
		for t := range frontier.BacktrackSet {
			if frontier.DoneSet[t] {
				continue
			}
			if !s.fair.FairEnabled(t, currEnabled) {
				frontier.DoneSet[t] = true
			}
		}
	}

	remaining := frontier.Remaining()
	if len(remaining) == 0 {
		return model.Action{}, false, false
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i] < remaining[j] })

	chosen := remaining[0]
	for _, t := range remaining {
		if t == s.prevThread {
			chosen = t
			break
		}
	}

	frontier.SelectedThread = chosen
	frontier.DoneSet[chosen] = true

	return state.Enabled[chosen], true, false
}

// randomPick chooses uniformly among the currently enabled threads.
// It is the fallback a divergence run takes (spec §4.E.2, "the run
// degenerates to a divergence run that proceeds randomly"): the
// persisted tree no longer describes the program being driven, so the
// rest of this run ignores it rather than getting stuck trying to
// reconcile it.
func (s *Scheduler) randomPick(state model.State) model.Action {
	threads := make([]model.ThreadUID, 0, len(state.Enabled))
	for t := range state.Enabled {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i] < threads[j] })
	return state.Enabled[threads[rand.Intn(len(threads))]]
}

// Diverged reports whether the current run was abandoned as a
// divergence run (spec §4.E.2 "CheckDivergence").
func (s *Scheduler) Diverged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diverged
}

// MarkDiverged flags the run as diverged; per AbortDiverge it is the
// caller's responsibility to stop feeding Reach calls and not persist
// the resulting Execution.
func (s *Scheduler) MarkDiverged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diverged = true
}

// Execution returns the Action/State record built up so far, for
// persistence once the run completes.
func (s *Scheduler) Execution() *model.Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exec
}
