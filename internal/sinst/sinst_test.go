package sinst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadLocalNeverShared(t *testing.T) {
	d := New()
	d.Observe(0x10, 1, 100, true)
	d.Observe(0x10, 1, 101, false)
	d.Observe(0x10, 1, 100, true)

	assert.False(t, d.IsShared(100))
	assert.False(t, d.IsShared(101))
}

func TestWriteThenRemoteReadIsShared(t *testing.T) {
	d := New()
	d.Observe(0x10, 1, 100, true)
	shared := d.Observe(0x10, 2, 101, false)

	assert.True(t, shared)
	assert.True(t, d.IsShared(100))
	assert.True(t, d.IsShared(101))
}

func TestRemoteWriteWithoutPriorWriteIsShared(t *testing.T) {
	d := New()
	d.Observe(0x10, 1, 100, false)
	shared := d.Observe(0x10, 2, 101, true)

	assert.True(t, shared)
}

func TestMultiReadThenLocalWriteIsShared(t *testing.T) {
	d := New()
	d.Observe(0x10, 1, 100, false)
	d.Observe(0x10, 2, 101, false)
	shared := d.Observe(0x10, 1, 102, true)

	assert.True(t, shared)
}

func TestMultiReadAloneStaysLocal(t *testing.T) {
	d := New()
	d.Observe(0x10, 1, 100, false)
	d.Observe(0x10, 2, 101, false)

	assert.False(t, d.IsShared(100))
	assert.False(t, d.IsShared(101))
}
