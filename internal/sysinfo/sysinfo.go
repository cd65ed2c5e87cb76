// Package sysinfo applies the operating-system-level measures spec
// §4.E.1 calls advisory: pinning the scheduler thread to a single CPU
// and raising it to a real-time FIFO priority band, so the kernel does
// not reorder runnables and schedule points stay low-noise. The
// algorithm is correct without either; failures here are logged, not
// fatal.
package sysinfo

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/irootlab/concur/internal/clog"
)

// PinCPU locks the calling OS thread and restricts its affinity to
// cpu. Pass a negative cpu to skip pinning.
func PinCPU(cpu int) error {
	if cpu < 0 {
		return nil
	}
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("sysinfo: pin cpu %d: %w", cpu, err)
	}
	clog.Info("pinned scheduler thread", map[string]any{"cpu": cpu})
	return nil
}

// RaiseRealtimePriority switches the calling thread to SCHED_FIFO at
// the lowest real-time priority, enough to deprioritize the ordinary
// scheduler's reordering without starving the rest of the system.
func RaiseRealtimePriority() error {
	prio, err := unix.SchedGetPriorityMin(unix.SCHED_FIFO)
	if err != nil {
		return fmt.Errorf("sysinfo: sched_get_priority_min: %w", err)
	}
	param := unix.SchedParam{Priority: int32(prio)}
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, &param); err != nil {
		return fmt.Errorf("sysinfo: sched_setscheduler: %w", err)
	}
	clog.Info("raised scheduler thread to SCHED_FIFO", map[string]any{"priority": prio})
	return nil
}

// Apply runs both measures, logging and continuing past any failure
// since both are advisory only.
func Apply(cpu int, realtime bool) {
	if err := PinCPU(cpu); err != nil {
		clog.Error("cpu pin failed, continuing without it", err)
	}
	if realtime {
		if err := RaiseRealtimePriority(); err != nil {
			clog.Error("realtime priority failed, continuing without it", err)
		}
	}
}
