// Package fileformat implements an offline Decoder that reads a
// msgpack-encoded sequence of ingest.Events from disk — the reference
// trace format used by tests and by replaying a previously captured
// run without the live instrumentation host attached.
package fileformat

import (
	"io"
	"os"

	"github.com/shamaton/msgpack/v2"

	"github.com/irootlab/concur/internal/ingest"
)

// Decoder reads a trace file written by Encoder.
type Decoder struct {
	f      *os.File
	events []ingest.Event
	pos    int
}

// Open reads the whole trace file at path into memory and returns a
// Decoder over it. Trace files are expected to be modest in size
// relative to available memory; true high-volume traces are expected
// to stream from a live host instead.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	var events []ingest.Event
	if err := msgpack.UnmarshalRead(f, &events); err != nil {
		f.Close()
		return nil, err
	}
	return &Decoder{f: f, events: events}, nil
}

// Next returns the next event in file order.
func (d *Decoder) Next() (ingest.Event, bool, error) {
	if d.pos >= len(d.events) {
		return ingest.Event{}, false, nil
	}
	ev := d.events[d.pos]
	d.pos++
	return ev, true, nil
}

// Close releases the underlying file handle.
func (d *Decoder) Close() error {
	return d.f.Close()
}

// Encoder appends Events to a trace file, for tests and for offline
// tools that want to snapshot a live stream.
type Encoder struct {
	events []ingest.Event
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Append records ev for later Flush.
func (e *Encoder) Append(ev ingest.Event) {
	e.events = append(e.events, ev)
}

// Flush msgpack-encodes every appended event to path in one write.
func (e *Encoder) Flush(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return msgpack.MarshalWrite(f, e.events)
}

var _ io.Closer = (*Decoder)(nil)
