package lockset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddRemoveNesting(t *testing.T) {
	ls := New()
	ls.Add(0x10)
	ls.Add(0x10)
	assert.True(t, ls.Contains(0x10))
	ls.Remove(0x10)
	assert.True(t, ls.Contains(0x10), "still held after one of two releases")
	ls.Remove(0x10)
	assert.False(t, ls.Contains(0x10))
	assert.True(t, ls.Empty())
}

func TestDisjoint(t *testing.T) {
	a := New()
	a.Add(1)
	b := New()
	b.Add(2)
	assert.True(t, a.Disjoint(b))

	b.Add(1)
	assert.False(t, a.Disjoint(b))
}

func TestDisjointAll(t *testing.T) {
	a := New()
	a.Add(1)
	b := New()
	b.Add(2)
	c := New()
	c.Add(3)
	assert.True(t, a.DisjointAll(b, c))

	c.Add(1)
	assert.False(t, a.DisjointAll(b, c))
}

func TestMatch(t *testing.T) {
	a := New()
	a.Add(1)
	a.Add(2)
	b := New()
	b.Add(2)
	b.Add(1)
	assert.True(t, a.Match(b))

	b.Add(3)
	assert.False(t, a.Match(b))
}

func TestAtomicKeyNeverCollidesWithRealAddress(t *testing.T) {
	var addr uintptr = 0x1000
	assert.NotEqual(t, addr, AtomicKey(addr))
}
