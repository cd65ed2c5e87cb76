package sysinfo

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/mem"

	"github.com/irootlab/concur/internal/clog"
)

// MemGuard cancels a long-running mining or search run when available
// RAM or swap headroom drops too low, the same guard rail spec §5's
// resource model assumes the process operates under.
type MemGuard struct {
	canceled atomic.Bool
	cancel   context.CancelFunc
}

// NewMemGuard returns a guard that calls cancel once a threshold trips.
func NewMemGuard(cancel context.CancelFunc) *MemGuard {
	return &MemGuard{cancel: cancel}
}

// Canceled reports whether the guard has already tripped.
func (g *MemGuard) Canceled() bool {
	return g.canceled.Load()
}

// Watch polls memory and swap usage every interval until ctx is done or
// a threshold trips. Run it in its own goroutine.
func (g *MemGuard) Watch(ctx context.Context, interval time.Duration) {
	v, err := mem.VirtualMemory()
	if err != nil {
		clog.Error("memguard: initial memory read failed, guard disabled", err)
		return
	}
	s, err := mem.SwapMemory()
	if err != nil {
		clog.Error("memguard: initial swap read failed, guard disabled", err)
		return
	}

	thresholdRAM := uint64(float64(v.Total) * 0.02)
	thresholdSwapGrowth := uint64(1000 * 1024 * 1024)
	startSwap := s.Used

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		v, err = mem.VirtualMemory()
		if err != nil {
			clog.Error("memguard: memory read failed", err)
			continue
		}
		s, err = mem.SwapMemory()
		if err != nil {
			clog.Error("memguard: swap read failed", err)
			continue
		}

		if v.Available < thresholdRAM {
			g.trip("available RAM below threshold", map[string]any{"available": v.Available, "threshold": thresholdRAM})
			return
		}
		if s.Used > startSwap+thresholdSwapGrowth {
			g.trip("swap usage grew past threshold", map[string]any{"used": s.Used, "start": startSwap})
			return
		}
	}
}

func (g *MemGuard) trip(msg string, fields map[string]any) {
	g.canceled.Store(true)
	clog.Important(msg, fields)
	g.cancel()
}
