// freelist.go: ordered set of dead slots available for reuse
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"sync"

	"github.com/google/btree"
)

// freeDegree is the branching factor handed to btree.NewG. 32 is the
// degree google/btree itself uses in its own benchmarks and is a
// reasonable default for the small, in-memory sets this store builds.
const freeDegree = 32

// freeList is the set of dead slots, ordered by (size, offset) ascending
// so that allocate can scan the best-fit tail in O(log n + k).
//
// M_free guards every method; callers never need their own lock around
// freeList operations.
type freeList struct {
	mu   sync.Mutex
	tree *btree.BTreeG[*slot]
}

func lessBySizeThenOffset(a, b *slot) bool {
	if a.size != b.size {
		return a.size < b.size
	}
	return a.offset < b.offset
}

func newFreeList() *freeList {
	return &freeList{tree: btree.NewG(freeDegree, lessBySizeThenOffset)}
}

// insert adds s to the set. s must already be marked dead on disk
// (keyLen == 0) by the caller before it becomes visible here.
func (f *freeList) insert(s *slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree.ReplaceOrInsert(s)
}

// bestFit removes and returns the smallest slot whose size is >= need and
// whose readers count is zero, or nil if none qualifies. Locked slots are
// skipped but left in the set — they are unreachable for new readers (see
// allocator.go) and will drain in finite time.
func (f *freeList) bestFit(need uint32) *slot {
	f.mu.Lock()
	defer f.mu.Unlock()

	pivot := &slot{size: need, offset: 0}
	var found *slot
	f.tree.AscendGreaterOrEqual(pivot, func(item *slot) bool {
		if item.isLocked() {
			return true // keep scanning
		}
		found = item
		return false
	})
	if found != nil {
		f.tree.Delete(found)
	}
	return found
}

// remove deletes s from the set if present.
func (f *freeList) remove(s *slot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree.Delete(s)
}

// len returns the number of dead slots currently tracked.
func (f *freeList) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tree.Len()
}

// all returns every tracked slot, in (size, offset) order. Used by
// invariant checks and tests, never on a hot path.
func (f *freeList) all() []*slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*slot, 0, f.tree.Len())
	f.tree.Ascend(func(item *slot) bool {
		out = append(out, item)
		return true
	})
	return out
}

// clear empties the set. Callers must already hold M_index (Clear's lock
// order is Index then Free) and must have confirmed every tracked slot has
// readers == 0.
func (f *freeList) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tree = btree.NewG(freeDegree, lessBySizeThenOffset)
}
