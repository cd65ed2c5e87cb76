package iroot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertIsIdempotent(t *testing.T) {
	m1 := NewMemo()
	root := New1(Event{Inst: 1, Type: 1}, Event{Inst: 2, Type: 0})
	m1.Insert(root, MemoEntry{Observed: true})
	m1.Insert(root, MemoEntry{Observed: true})
	m1.Insert(root, MemoEntry{Observed: true})

	m2 := NewMemo()
	m2.Insert(root, MemoEntry{Observed: true})

	assert.Equal(t, m1.Len(), m2.Len())
	e1, _ := m1.Get(root)
	e2, _ := m2.Get(root)
	assert.Equal(t, e1, e2)
}

func TestMonotonicFlagOrIn(t *testing.T) {
	m := NewMemo()
	root := New1(Event{Inst: 1, Type: 1}, Event{Inst: 2, Type: 0})
	m.Insert(root, MemoEntry{Observed: true})
	m.Insert(root, MemoEntry{Predicted: true})

	e, ok := m.Get(root)
	assert.True(t, ok)
	assert.True(t, e.Observed)
	assert.True(t, e.Predicted)
}

func TestTotalsByIdiom(t *testing.T) {
	m := NewMemo()
	m.Insert(New1(Event{Inst: 1}, Event{Inst: 2}), MemoEntry{Observed: true})
	m.Insert(New1(Event{Inst: 3}, Event{Inst: 4}), MemoEntry{Observed: true})
	m.Insert(New2(Event{Inst: 1}, Event{Inst: 5}, Event{Inst: 1}), MemoEntry{Observed: true})

	totals := m.TotalsByIdiom()
	assert.Equal(t, 2, totals[Idiom1])
	assert.Equal(t, 1, totals[Idiom2])
}

func TestMergeFromDisk(t *testing.T) {
	loaded := NewMemo()
	root := New1(Event{Inst: 1}, Event{Inst: 2})
	loaded.Insert(root, MemoEntry{Observed: true})

	live := NewMemo()
	live.Insert(root, MemoEntry{Predicted: true})
	live.Merge(loaded)

	e, _ := live.Get(root)
	assert.True(t, e.Observed)
	assert.True(t, e.Predicted)
}
