package model

// Execution is the ordered record of Actions and States taken during
// one run, the unit persisted to disk for prefix replay and POR
// action-sequence equivalence (spec §3 "Execution", §6).
type Execution struct {
	ID      string
	Actions []Action
	States  []State
}

// Append records taken as the action taken from state s.
func (e *Execution) Append(s State, taken Action) {
	s.Taken = &taken
	e.States = append(e.States, s)
	e.Actions = append(e.Actions, taken)
}

// NonTransparentKeys returns the ActionKeys of every non-transparent
// (object-bearing) action in program order, used for the
// action-sequence equivalence check of stateful POR (spec §4.E.5).
func (e *Execution) NonTransparentKeys() []ActionKey {
	out := make([]ActionKey, 0, len(e.Actions))
	for _, a := range e.Actions {
		if !a.Transparent() {
			out = append(out, a.Key())
		}
	}
	return out
}

// ActionSequenceEqual reports whether two executions' non-transparent
// action sequences match one-to-one, in order.
func ActionSequenceEqual(a, b *Execution) bool {
	ka, kb := a.NonTransparentKeys(), b.NonTransparentKeys()
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if ka[i] != kb[i] {
			return false
		}
	}
	return true
}
