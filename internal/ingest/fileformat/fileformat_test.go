package fileformat

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/irootlab/concur/internal/ingest"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.bin")

	enc := NewEncoder()
	enc.Append(ingest.Event{Kind: ingest.ProgramStart})
	enc.Append(ingest.Event{Kind: ingest.ThreadStart, ThreadID: 1})
	enc.Append(ingest.Event{Kind: ingest.BeforeMemWrite, ThreadID: 1, ThreadClock: 3, Addr: 0x1000})
	assert.NoError(t, enc.Flush(path))

	dec, err := Open(path)
	assert.NoError(t, err)
	defer dec.Close()

	var got []ingest.Event
	for {
		ev, ok, err := dec.Next()
		assert.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, ev)
	}
	assert.Len(t, got, 3)
	assert.Equal(t, ingest.BeforeMemWrite, got[2].Kind)
	assert.Equal(t, uintptr(0x1000), got[2].Addr)
}
