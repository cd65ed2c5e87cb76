package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddAndFilter(t *testing.T) {
	f := New()
	f.AddRegion(100, 16)

	assert.False(t, f.Filter(100))
	assert.False(t, f.Filter(115))
	assert.True(t, f.Filter(116))
	assert.True(t, f.Filter(50))
}

func TestOverlappingAddIsIgnored(t *testing.T) {
	f := New()
	f.AddRegion(100, 16)
	f.AddRegion(104, 4)

	assert.False(t, f.Filter(104))
}

func TestRemoveRegion(t *testing.T) {
	f := New()
	f.AddRegion(100, 16)
	size, ok := f.RemoveRegion(100)
	assert.True(t, ok)
	assert.Equal(t, uintptr(16), size)
	assert.True(t, f.Filter(100))

	_, ok = f.RemoveRegion(100)
	assert.False(t, ok)
}

func TestMultipleRegions(t *testing.T) {
	f := New()
	f.AddRegion(0, 8)
	f.AddRegion(100, 8)
	f.AddRegion(50, 8)

	assert.False(t, f.Filter(4))
	assert.False(t, f.Filter(52))
	assert.False(t, f.Filter(104))
	assert.True(t, f.Filter(30))
	assert.True(t, f.Filter(200))
}
