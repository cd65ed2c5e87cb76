// Package store persists the seven disk formats of spec §6, plus the
// race DB, using
// msgpack encoding: one file per logical database, loaded once at
// startup and saved once at exit (spec §5 "Shared-resource policy").
package store

import (
	"errors"
	"os"

	"github.com/shamaton/msgpack/v2"

	"github.com/irootlab/concur/internal/clog"
	"github.com/irootlab/concur/internal/iroot"
	"github.com/irootlab/concur/internal/model"
	"github.com/irootlab/concur/internal/sched"
)

// StaticInfo is the persisted image/instruction table (spec §6
// "Static info").
type StaticInfo struct {
	Images []model.Image
	Insts  []model.Inst
}

// IRootDB is the persisted iRoot catalog (spec §6 "iRoot DB").
type IRootDB struct {
	Roots          []iroot.IRoot
	LoadedFromFile bool
}

// Memo is the persisted memo entries (spec §6 "Memo").
type Memo struct {
	Records []iroot.MemoRecord
}

// Program is the persisted thread/object tables (spec §6 "Program").
type Program struct {
	Threads []model.Thread
	Objects []model.Object
}

// Search is the persisted DFS search stack (spec §6 "Search").
type Search struct {
	Done    bool
	NumRuns int
	Nodes   []sched.SearchNode
}

// Execution is the persisted per-run action/state log (spec §6
// "Execution").
type Execution = model.Execution

// PORInfo is the persisted partial-order-reduction visited-state table
// (spec §6 "POR info").
type PORInfo struct {
	NumExecs int
	Visited  []sched.VisitedState
}

// RaceDB is the persisted set of instructions a mining pass has seen
// take part in a Lamport-racy (Idiom-1) pair (spec §6 "race_in/out").
// A systematic run loaded against a RaceDB restricts which memory
// accesses become scheduler decision points to just this set, trading
// completeness for a DFS that does not branch on instructions no
// mining pass has ever flagged as contended.
type RaceDB struct {
	Insts []model.InstID
}

// Load reads and msgpack-decodes path into v. A missing or unparsable
// file is not fatal: per spec §7's persistence error taxonomy, the
// caller starts from a fresh empty value and Load reports ok=false.
func Load(path string, v any) (ok bool) {
	if path == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			clog.Error("store: open failed, starting from an empty database", err, map[string]any{"path": path})
		}
		return false
	}
	defer f.Close()

	if err := msgpack.UnmarshalRead(f, v); err != nil {
		clog.Error("store: decode failed, starting from an empty database", err, map[string]any{"path": path})
		return false
	}
	return true
}

// Save msgpack-encodes v to path. On failure it logs and returns the
// error; per spec §7 the caller should treat a save failure as
// reported-and-skipped, not fatal.
func Save(path string, v any) error {
	if path == "" {
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		clog.Error("store: create failed, save skipped", err, map[string]any{"path": path})
		return err
	}
	defer f.Close()

	if err := msgpack.MarshalWrite(f, v); err != nil {
		clog.Error("store: encode failed, save skipped", err, map[string]any{"path": path})
		return err
	}
	return nil
}
