package model

// State is a schedule point snapshot: the set of actions each thread
// is currently enabled to take, plus the action actually chosen (spec
// §3 "State").
type State struct {
	Enabled map[ThreadUID]Action
	Taken   *Action
}

// ActionInfo is the lightweight, comparable projection of an Action
// used by CheckDivergence (spec §4.E.2) — it omits TC/OC so it can be
// matched against a replayed action before those counters have been
// recomputed for this run.
type ActionInfo struct {
	Thread ThreadUID
	Object ObjectUID
	HasObj bool
	Op     Operation
	Inst   InstID
}

// Info projects an Action down to its ActionInfo.
func (a Action) Info() ActionInfo {
	return ActionInfo{Thread: a.Thread, Object: a.Object, HasObj: a.HasObj, Op: a.Op, Inst: a.Inst}
}

// EnabledSnapshot captures the ActionInfo of every enabled thread in a
// State, for divergence detection (spec §4.E.2 "CheckDivergence").
func (s State) EnabledSnapshot() map[ThreadUID]ActionInfo {
	snap := make(map[ThreadUID]ActionInfo, len(s.Enabled))
	for t, a := range s.Enabled {
		snap[t] = a.Info()
	}
	return snap
}

// SnapshotsEqual reports whether two enabled-action snapshots match
// pointwise: same thread set, and for each thread the same
// (thread, object, op, inst).
func SnapshotsEqual(a, b map[ThreadUID]ActionInfo) bool {
	if len(a) != len(b) {
		return false
	}
	for t, ai := range a {
		bi, ok := b[t]
		if !ok || ai != bi {
			return false
		}
	}
	return true
}
