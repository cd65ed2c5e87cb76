// Package lockset implements the per-thread active-lock multisets used
// by the happens-before-plus-lockset reasoning of the iRoot predictor
// (spec §4.B, §4.D.3).
package lockset

// LockSet is a multiset of address keys. Nested acquisition of the
// same address increments its depth; release decrements it. A key
// leaves the set once its depth reaches zero (invariant I3).
type LockSet struct {
	depth map[uintptr]int
}

// New returns an empty lock set.
func New() *LockSet {
	return &LockSet{depth: make(map[uintptr]int)}
}

// AtomicKey derives the pseudo-lock key used to treat an atomic
// read-modify-write region as a single lock-protected unit: the
// bitwise complement of the address, so it never collides with a real
// lock address.
func AtomicKey(addr uintptr) uintptr {
	return ^addr
}

// Add acquires addr, incrementing its depth.
func (ls *LockSet) Add(addr uintptr) {
	if ls.depth == nil {
		ls.depth = make(map[uintptr]int)
	}
	ls.depth[addr]++
}

// Remove releases addr, decrementing its depth and dropping the key
// once it reaches zero.
func (ls *LockSet) Remove(addr uintptr) {
	if ls.depth == nil {
		return
	}
	if d, ok := ls.depth[addr]; ok {
		if d <= 1 {
			delete(ls.depth, addr)
		} else {
			ls.depth[addr] = d - 1
		}
	}
}

// Contains reports whether addr is currently held.
func (ls *LockSet) Contains(addr uintptr) bool {
	return ls.depth[addr] > 0
}

// Empty reports whether no locks are held.
func (ls *LockSet) Empty() bool {
	return len(ls.depth) == 0
}

// Keys returns the distinct addresses currently held.
func (ls *LockSet) Keys() []uintptr {
	keys := make([]uintptr, 0, len(ls.depth))
	for k := range ls.depth {
		keys = append(keys, k)
	}
	return keys
}

// Copy returns an independent copy of ls, snapshotting the currently
// held depths.
func (ls *LockSet) Copy() *LockSet {
	cp := New()
	for k, v := range ls.depth {
		cp.depth[k] = v
	}
	return cp
}

// Disjoint reports whether ls and other share no held address.
func (ls *LockSet) Disjoint(other *LockSet) bool {
	small, big := ls, other
	if len(big.depth) < len(small.depth) {
		small, big = big, small
	}
	for k := range small.depth {
		if big.Contains(k) {
			return false
		}
	}
	return true
}

// DisjointAll reports whether ls is pairwise disjoint from both other1
// and other2 — modelling "no lock in ls could also cover either of
// the two other accesses".
func (ls *LockSet) DisjointAll(other1, other2 *LockSet) bool {
	return ls.Disjoint(other1) && ls.Disjoint(other2)
}

// Intersect returns the addresses held by both ls and other.
func (ls *LockSet) Intersect(other *LockSet) []uintptr {
	small, big := ls, other
	if len(big.depth) < len(small.depth) {
		small, big = big, small
	}
	var out []uintptr
	for k := range small.depth {
		if big.Contains(k) {
			out = append(out, k)
		}
	}
	return out
}

// Union returns a new lock set holding every address held by ls or
// other (depth is the max of the two, since only membership matters
// to callers of Union).
func (ls *LockSet) Union(other *LockSet) *LockSet {
	cp := ls.Copy()
	for k, v := range other.depth {
		if v > cp.depth[k] {
			cp.depth[k] = v
		}
	}
	return cp
}

// IsSubsetOf reports whether every address held by ls is also held by
// other.
func (ls *LockSet) IsSubsetOf(other *LockSet) bool {
	for k := range ls.depth {
		if !other.Contains(k) {
			return false
		}
	}
	return true
}

// Match reports set equality between ls and other (ignoring depth).
func (ls *LockSet) Match(other *LockSet) bool {
	if len(ls.depth) != len(other.depth) {
		return false
	}
	return ls.IsSubsetOf(other)
}
