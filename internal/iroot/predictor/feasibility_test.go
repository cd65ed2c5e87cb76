package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irootlab/concur/internal/lockset"
)

// TestScenarioS2Feasible covers two lock-protected accesses to the
// same address, each holding the same mutex with no other access on
// that mutex in between: the pair is feasible.
func TestScenarioS2Feasible(t *testing.T) {
	m := uintptr(0x9000)

	curr := lockset.New()
	curr.Add(m)
	rmt := lockset.New()
	rmt.Add(m)

	assert.True(t, Feasible(curr, rmt, nil, nil, false))
}

func TestRacyOnlyRequiresDisjointLocks(t *testing.T) {
	m := uintptr(0x9000)
	curr := lockset.New()
	curr.Add(m)
	rmt := lockset.New()
	rmt.Add(m)

	assert.False(t, Feasible(curr, rmt, nil, nil, true))
}

func TestEmptyLockSetsAlwaysFeasible(t *testing.T) {
	assert.True(t, Feasible(lockset.New(), lockset.New(), nil, nil, false))
	assert.True(t, Feasible(lockset.New(), lockset.New(), nil, nil, true))
}

func TestConflictingLockExplainedByInterveningRelease(t *testing.T) {
	m := uintptr(0x9000)
	curr := lockset.New()
	curr.Add(m)
	rmt := lockset.New()
	rmt.Add(m)

	// currPrev (an earlier access by curr's thread on this meta) still
	// held m: the conflicting lock is explained by a release between
	// the two, so the pair remains feasible.
	currPrev := lockset.New()
	currPrev.Add(m)

	assert.True(t, Feasible(curr, rmt, currPrev, nil, false))
}

func TestConflictingLockNotExplainedIsInfeasible(t *testing.T) {
	m := uintptr(0x9000)
	other := uintptr(0x9100)

	curr := lockset.New()
	curr.Add(m)
	rmt := lockset.New()
	rmt.Add(m)

	currPrev := lockset.New()
	currPrev.Add(other)
	rmtNext := lockset.New()
	rmtNext.Add(other)

	assert.False(t, Feasible(curr, rmt, currPrev, rmtNext, false))
}
