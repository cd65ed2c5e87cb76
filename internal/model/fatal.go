package model

import "github.com/irootlab/concur/internal/clog"

// Fatal reports an internal assertion failure: it logs err and
// panics. cmd/concur's main recovers such a panic into a clean non-zero
// exit only when it is raised on the main goroutine; a Fatal on any
// other goroutine (Scheduler.Reach runs on chess's driver goroutines)
// ends the process through Go's default panic handling.
func Fatal(err error) {
	clog.Error("internal assertion failed", err, nil)
	panic(err)
}
