// Package sched implements the CHESS-style systematic scheduler (spec
// §4.E): a deterministic, replay-capable DFS over thread interleavings
// with iterative preemption bounding, Musuvathi/Qadeer fair control,
// and stateful partial-order reduction.
package sched

import "github.com/irootlab/concur/internal/model"

// SearchNode is one frontier of the DFS search stack (spec §4.E.2).
type SearchNode struct {
	EnabledSnapshot map[model.ThreadUID]model.ActionInfo
	SelectedThread  model.ThreadUID
	BacktrackSet    map[model.ThreadUID]bool
	DoneSet         map[model.ThreadUID]bool
	populated       bool
}

// NewSearchNode returns an empty, not-yet-populated node.
func NewSearchNode() *SearchNode {
	return &SearchNode{
		BacktrackSet: make(map[model.ThreadUID]bool),
		DoneSet:      make(map[model.ThreadUID]bool),
	}
}

// Populate fills backtrack_set with every currently enabled thread,
// the first time this node is reached from a new frontier.
func (n *SearchNode) Populate(enabled map[model.ThreadUID]model.Action) {
	if n.populated {
		return
	}
	n.populated = true
	for t := range enabled {
		n.BacktrackSet[t] = true
	}
}

// Finished reports whether every backtracked thread has been marked
// done, i.e. this node has nothing left to explore (spec §4.E.2 step
// 4, "pop every trailing Finished() node").
func (n *SearchNode) Finished() bool {
	for t := range n.BacktrackSet {
		if !n.DoneSet[t] {
			return false
		}
	}
	return true
}

// Remaining returns the backtracked threads not yet marked done.
func (n *SearchNode) Remaining() []model.ThreadUID {
	out := make([]model.ThreadUID, 0, len(n.BacktrackSet))
	for t := range n.BacktrackSet {
		if !n.DoneSet[t] {
			out = append(out, t)
		}
	}
	return out
}

// Stack is the DFS search stack, persisted across runs.
type Stack struct {
	Nodes []*SearchNode
	Done  bool
}

// NewStack returns an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Frontier returns the last node on the stack, or nil if empty.
func (s *Stack) Frontier() *SearchNode {
	if len(s.Nodes) == 0 {
		return nil
	}
	return s.Nodes[len(s.Nodes)-1]
}

// Push extends the stack with a fresh node beyond the frontier.
func (s *Stack) Push(n *SearchNode) {
	s.Nodes = append(s.Nodes, n)
}

// PopFinished pops every trailing Finished() node after a run
// completes, marking the search Done once the stack empties.
func (s *Stack) PopFinished() {
	for len(s.Nodes) > 0 && s.Nodes[len(s.Nodes)-1].Finished() {
		s.Nodes = s.Nodes[:len(s.Nodes)-1]
	}
	if len(s.Nodes) == 0 {
		s.Done = true
	}
}

// CheckDivergence reports whether the replayed state's enabled
// snapshot matches the recorded one for node n (spec §4.E.2).
func CheckDivergence(n *SearchNode, current map[model.ThreadUID]model.ActionInfo) bool {
	return model.SnapshotsEqual(n.EnabledSnapshot, current)
}
