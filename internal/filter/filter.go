// Package filter implements the access filter (component A): a coarse
// gate over which address regions the analyzer is allowed to inspect.
package filter

import "sort"

type region struct {
	start uintptr
	size  uintptr
}

// Filter holds the currently allocated/mapped regions, sorted by start
// address, and answers point queries against them. It is not
// authoritative about what memory is actually shared — it only gates
// out addresses that fall in no known region.
type Filter struct {
	regions []region
}

// New returns an empty filter.
func New() *Filter {
	return &Filter{}
}

// AddRegion registers [addr, addr+size) as inspectable. It fails
// silently if the new region overlaps an existing one.
func (f *Filter) AddRegion(addr, size uintptr) {
	idx := f.indexOfStart(addr)
	if idx < len(f.regions) && f.regions[idx].start == addr {
		return
	}
	if f.overlaps(addr, size) {
		return
	}
	r := region{start: addr, size: size}
	f.regions = append(f.regions, region{})
	copy(f.regions[idx+1:], f.regions[idx:])
	f.regions[idx] = r
}

// RemoveRegion removes the region whose start equals addr (the
// dynamic-allocator convention; callers managing static regions pass
// the region's recorded start) and returns its size so the caller can
// iterate its addresses for meta teardown. Returns 0, false if no such
// region exists.
func (f *Filter) RemoveRegion(addr uintptr) (uintptr, bool) {
	idx := f.indexOfStart(addr)
	if idx >= len(f.regions) || f.regions[idx].start != addr {
		return 0, false
	}
	size := f.regions[idx].size
	f.regions = append(f.regions[:idx], f.regions[idx+1:]...)
	return size, true
}

// Filter reports whether addr lies in no registered region, i.e.
// whether it must be skipped by the analysis.
func (f *Filter) Filter(addr uintptr) bool {
	idx := f.indexOfStart(addr)
	if idx < len(f.regions) && f.regions[idx].start == addr {
		return false
	}
	if idx == 0 {
		return true
	}
	r := f.regions[idx-1]
	return addr >= r.start+r.size
}

// indexOfStart returns the index of the first region with start >=
// addr (an upper-bound search over starts).
func (f *Filter) indexOfStart(addr uintptr) int {
	return sort.Search(len(f.regions), func(i int) bool {
		return f.regions[i].start >= addr
	})
}

func (f *Filter) overlaps(addr, size uintptr) bool {
	idx := f.indexOfStart(addr)
	if idx < len(f.regions) && f.regions[idx].start < addr+size {
		return true
	}
	if idx > 0 {
		prev := f.regions[idx-1]
		if prev.start+prev.size > addr {
			return true
		}
	}
	return false
}
