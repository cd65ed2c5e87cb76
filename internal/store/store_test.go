package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irootlab/concur/internal/iroot"
)

// TestMemoRoundTrip covers property P8 (persisted state round-trips):
// saving then loading a Memo reproduces the same records.
func TestMemoRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.bin")

	out := Memo{Records: []iroot.MemoRecord{
		{Root: iroot.New1(iroot.Event{Inst: 1}, iroot.Event{Inst: 2}), Entry: iroot.MemoEntry{Observed: true}},
	}}
	assert.NoError(t, Save(path, &out))

	var in Memo
	assert.True(t, Load(path, &in))
	assert.Equal(t, out.Records, in.Records)
}

func TestLoadMissingFileReturnsFalse(t *testing.T) {
	var in Memo
	assert.False(t, Load(filepath.Join(t.TempDir(), "missing.bin"), &in))
}

func TestLoadEmptyPathIsNoop(t *testing.T) {
	var in Memo
	assert.False(t, Load("", &in))
}
