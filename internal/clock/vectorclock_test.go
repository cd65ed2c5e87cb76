package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncrementAndGet(t *testing.T) {
	vc := New()
	assert.Equal(t, uint32(0), vc.Get(1))
	vc.Increment(1)
	vc.Increment(1)
	assert.Equal(t, uint32(2), vc.Get(1))
}

func TestHappensBefore(t *testing.T) {
	a := New()
	a.Set(1, 1)
	b := a.Copy()
	b.Set(2, 1)

	assert.True(t, a.HappensBefore(b))
	assert.False(t, a.HappensAfter(b))
	assert.False(t, a.Concurrent(b))
}

func TestConcurrent(t *testing.T) {
	a := New()
	a.Set(1, 2)
	b := New()
	b.Set(2, 2)

	assert.True(t, a.Concurrent(b))
}

// TestMonotonicity exercises property P4: successive increments by the
// same thread always happen-before one another.
func TestMonotonicity(t *testing.T) {
	vc := New()
	vc.Increment(1)
	a1 := vc.Copy()
	vc.Increment(1)
	a2 := vc.Copy()

	assert.True(t, a1.HappensBefore(a2))
}

func TestJoinIsComponentWiseMax(t *testing.T) {
	a := New()
	a.Set(1, 3)
	a.Set(2, 1)
	b := New()
	b.Set(1, 2)
	b.Set(2, 5)

	a.Join(b)
	assert.Equal(t, uint32(3), a.Get(1))
	assert.Equal(t, uint32(5), a.Get(2))
}

func TestCompare(t *testing.T) {
	a := New()
	a.Set(1, 1)
	b := a.Copy()

	assert.Equal(t, RelEqual, Compare(a, b))
	b.Increment(1)
	assert.Equal(t, RelBefore, Compare(a, b))
	assert.Equal(t, RelAfter, Compare(b, a))
}
