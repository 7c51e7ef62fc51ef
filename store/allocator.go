// allocator.go: resolves "I need N bytes" into a slot
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

// allocator carves reusable regions out of the free list before falling
// back to extending the file at the append pointer.
type allocator struct {
	file *dataFile
	free *freeList
}

func newAllocator(file *dataFile, free *freeList) *allocator {
	return &allocator{file: file, free: free}
}

// allocate returns a slot with size >= need, either reused from the free
// list (best-fit, skipping locked dead slots) or freshly carved from the
// end of the file. The allocator never splits an over-sized free slot;
// any surplus stays inside the returned slot's header.
func (a *allocator) allocate(need uint32) *slot {
	if reused := a.free.bestFit(need); reused != nil {
		return reused
	}
	off := a.file.advance(need)
	return newSlot(off, need)
}

// free marks s dead on disk and returns it to the free list. It performs
// no locking of its own beyond the disk write and the free list's own
// monitor: the caller is responsible for having already removed s from
// the index before calling free.
func (a *allocator) free(s *slot) error {
	if err := a.file.markFreeAt(s.offset); err != nil {
		return err
	}
	s.keyLen = 0
	a.free.insert(s)
	return nil
}
