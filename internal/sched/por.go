package sched

import (
	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/statehash"
)

// VisitedState is one entry of the persisted POR table (spec §4.E.5,
// §6 "POR info").
type VisitedState struct {
	Hash        uint64
	Preemptions int
	ExecID      string
	StateIndex  int
}

// POR is the stateful partial-order-reduction pruning table: a
// persisted index of previously visited states (each a farm-hash
// digest over per-thread next-instruction and per-object lock depth,
// spec §4.E.5), able to prove a candidate redundant via preemption
// count and full action-sequence equivalence.
type POR struct {
	lockDepth map[model.ObjectUID]int
	byHash    map[uint64][]VisitedState

	// execByID supplies the prefix Execution for a persisted entry's
	// exec_id, loaded lazily by the caller (spec §4.E.5 "loaded lazily
	// from disk by exec_id").
	execByID func(execID string) (*model.Execution, bool)
}

// NewPOR returns an empty POR table. loader resolves an exec_id to its
// persisted Execution, used only when a hash collision needs the full
// action-sequence check.
func NewPOR(loader func(execID string) (*model.Execution, bool)) *POR {
	return &POR{byHash: make(map[uint64][]VisitedState), lockDepth: make(map[model.ObjectUID]int), execByID: loader}
}

// Load seeds the table from a previously persisted POR info file.
func (p *POR) Load(entries []VisitedState) {
	for _, e := range entries {
		p.byHash[e.Hash] = append(p.byHash[e.Hash], e)
	}
}

// Advance folds the state reached by taking next into the lock-depth
// component of the digest and returns statehash.Of over pcByThread
// (every enabled thread's next instruction) and the updated
// lock depths; callers pass it to Record once the action is actually
// taken.
func (p *POR) Advance(next model.Action, pcByThread map[model.ThreadUID]model.InstID) uint64 {
	if next.HasObj {
		switch next.Op {
		case model.OpMutexLock:
			p.lockDepth[next.Object]++
		case model.OpMutexUnlock:
			if p.lockDepth[next.Object] > 0 {
				p.lockDepth[next.Object]--
			}
		}
	}
	return uint64(statehash.Of(pcByThread, p.lockDepth))
}

// Record stores {hash, preemptions, exec_id, state_index} for the
// action just taken.
func (p *POR) Record(hash uint64, preemptions int, execID string, stateIndex int) {
	p.byHash[hash] = append(p.byHash[hash], VisitedState{Hash: hash, Preemptions: preemptions, ExecID: execID, StateIndex: stateIndex})
}

// All returns every visited-state entry recorded so far, for
// persistence (spec §6 "POR info").
func (p *POR) All() []VisitedState {
	out := make([]VisitedState, 0, len(p.byHash))
	for _, entries := range p.byHash {
		out = append(out, entries...)
	}
	return out
}

// Prune reports whether a candidate transition to hash with the given
// preemption count and prefix should be pruned: some persisted entry
// at the same hash has no more preemptions and an action-sequence-
// equivalent prefix.
func (p *POR) Prune(hash uint64, candidatePreemptions int, candidatePrefix *model.Execution) bool {
	for _, v := range p.byHash[hash] {
		if v.Preemptions > candidatePreemptions {
			continue
		}
		prior, ok := p.execByID(v.ExecID)
		if !ok || v.StateIndex >= len(prior.Actions) {
			continue
		}
		priorPrefix := &model.Execution{Actions: prior.Actions[:v.StateIndex+1]}
		if model.ActionSequenceEqual(priorPrefix, candidatePrefix) {
			return true
		}
	}
	return false
}
