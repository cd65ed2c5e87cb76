package model

import (
	"github.com/irootlab/concur/internal/clock"
	"github.com/irootlab/concur/internal/lockset"
)

// EventType enumerates the kinds of access an Access record can carry
// (spec §3 "Access record").
type EventType int

const (
	EventMemRead EventType = iota
	EventMemWrite
	EventMutexLock
	EventMutexUnlock
)

// Access is one observed operation on a monitored address.
type Access struct {
	ThreadUID   ThreadUID
	ThreadClock uint32
	EventType   EventType
	Inst        InstID

	// VC and LockSet are only populated by the predictor; the observer
	// only needs the fields above.
	VC      *clock.VectorClock
	LockSet *lockset.LockSet
}

// Event returns the (inst, event_type) pair this access would
// contribute to an iRoot, per spec §3 "iRootEvent".
func (a Access) Event() Event {
	return Event{Inst: a.Inst, Type: a.EventType}
}

// Event is (inst, event_type), the atomic unit an iRoot is built from.
type Event struct {
	Inst InstID
	Type EventType
}
