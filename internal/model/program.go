package model

// Program is the cross-run-stable model the scheduler builds up as it
// observes the event stream: tables from uid to Thread and from uid to
// Object. Construction is deterministic and depends only on the event
// stream (spec §3 "Program").
type Program struct {
	Threads *ThreadTable
	Objects *ObjectTable
	Insts   *InstTable
	Images  map[ImageID]Image
}

// NewProgram returns an empty Program model.
func NewProgram() *Program {
	return &Program{
		Threads: NewThreadTable(),
		Objects: NewObjectTable(),
		Insts:   NewInstTable(),
		Images:  make(map[ImageID]Image),
	}
}
