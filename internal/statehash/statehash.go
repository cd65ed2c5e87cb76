// Package statehash computes the farm-hash state digest used by
// stateful partial-order reduction to recognize when two different
// schedules have reached an equivalent program state (spec §4.E.5).
package statehash

import (
	"encoding/binary"
	"sort"

	farm "github.com/dgryski/go-farm"

	"github.com/irootlab/concur/internal/model"
)

// Digest is a 64-bit state fingerprint. Two States with the same
// Digest are treated as equivalent by the search's visited-state set;
// a collision silently merges two distinct states, which is why the
// search also keeps the full action-sequence check (model.
// ActionSequenceEqual) before trusting a Digest match.
type Digest uint64

// Of hashes the program-counter and lock-depth component of a state
// snapshot: for every thread, its next instruction; for every held
// lock, its current depth. Both are sorted by key first so the digest
// is independent of map iteration order.
func Of(pcByThread map[model.ThreadUID]model.InstID, lockDepth map[model.ObjectUID]int) Digest {
	buf := make([]byte, 0, 16*(len(pcByThread)+len(lockDepth))+8)

	threads := make([]model.ThreadUID, 0, len(pcByThread))
	for t := range pcByThread {
		threads = append(threads, t)
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i] < threads[j] })
	for _, t := range threads {
		buf = appendUint64(buf, uint64(t))
		buf = appendUint64(buf, uint64(pcByThread[t]))
	}

	objs := make([]model.ObjectUID, 0, len(lockDepth))
	for o := range lockDepth {
		objs = append(objs, o)
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i] < objs[j] })
	for _, o := range objs {
		buf = appendUint64(buf, uint64(o))
		buf = appendUint64(buf, uint64(lockDepth[o]))
	}

	return Digest(farm.Hash64(buf))
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}
