package predictor

import "github.com/irootlab/concur/internal/model"

// Meta is the predictor's per-address (memory or mutex) metadata: a
// shared? flag, the most recent accessing thread, and the
// vector-clock-bucketed access history (spec §3 "Memory meta... for
// the predictor").
type Meta struct {
	Shared             bool
	LastAccessThread   model.ThreadUID
	LastAccessByThread map[model.ThreadUID]*model.Access

	History *History
}

// NewMeta returns an empty predictor meta.
func NewMeta() *Meta {
	return &Meta{
		LastAccessByThread: make(map[model.ThreadUID]*model.Access),
		History:            NewHistory(),
	}
}

// Record appends acc to the meta's history and updates the shared flag
// and last-access bookkeeping.
func (m *Meta) Record(acc model.Access) {
	if m.LastAccessThread != 0 && m.LastAccessThread != acc.ThreadUID {
		m.Shared = true
	}
	m.LastAccessThread = acc.ThreadUID
	prev := acc
	m.LastAccessByThread[acc.ThreadUID] = &prev
	m.History.Add(acc)
}

// PrevAccess returns thread's most recent recorded access on this
// meta, if any — the "curr_prev" input to the lock-set-feasibility
// check (spec §4.D.3).
func (m *Meta) PrevAccess(thread model.ThreadUID) (model.Access, bool) {
	a, ok := m.LastAccessByThread[thread]
	if !ok {
		return model.Access{}, false
	}
	return *a, true
}
