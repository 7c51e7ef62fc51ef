// index.go: in-memory key to slot map, access-ordered when bounded
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// KeyEquivalence supplies hashing and equality over opaque cache keys, so
// the index can be built without requiring keys to be Go-comparable.
type KeyEquivalence interface {
	Hash(key any) uint64
	Equal(a, b any) bool
}

// StringKeyEquivalence is the KeyEquivalence most callers need: plain
// string keys, hashed with FNV-1a.
type StringKeyEquivalence struct{}

func (StringKeyEquivalence) Hash(key any) uint64 {
	s, _ := key.(string)
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

func (StringKeyEquivalence) Equal(a, b any) bool {
	as, _ := a.(string)
	bs, _ := b.(string)
	return as == bs
}

// indexEntry pairs a key with its current slot. hash and id are its
// positions in the two lookup structures the index keeps in sync: chains
// (hash -> entries, for collision resolution) and, when bounded, lru (a
// synthetic per-entry id -> entry, for access-ordered eviction).
//
// id, not hash, is the LRU's key: two entries that collide on hash are two
// distinct LRU slots, so the bounded index's capacity bound is exact over
// entries, never over hash buckets.
type indexEntry struct {
	key  any
	hash uint64
	slot *slot
	id   uint64
}

func findEntry(chain []*indexEntry, key any, eq KeyEquivalence) int {
	for i, e := range chain {
		if eq.Equal(e.key, key) {
			return i
		}
	}
	return -1
}

// index is the in-memory key->slot map. When bounded, it maintains access
// order (on both store and successful load) so the oldest-accessed entry
// is the O(1) eviction victim. chains resolves hash collisions and is the
// map iterated by len/snapshot regardless of mode; lru, when bounded, only
// tracks capacity and recency over individual entries.
type index struct {
	mu      sync.Mutex
	keyEq   KeyEquivalence
	bounded bool
	maxSize int

	chains map[uint64][]*indexEntry
	lru    *simplelru.LRU[uint64, *indexEntry] // used when bounded, keyed by entry id
	nextID uint64

	suppressEvict  bool    // true while an explicit remove/purge drives lru.Remove/Purge
	pendingVictims []*slot // scratch, valid only inside a locked call
}

func newIndex(keyEq KeyEquivalence, maxEntries int) *index {
	ix := &index{keyEq: keyEq, chains: make(map[uint64][]*indexEntry)}
	if maxEntries > 0 {
		ix.bounded = true
		ix.maxSize = maxEntries
		l, err := simplelru.NewLRU[uint64, *indexEntry](maxEntries, ix.onEvict)
		if err != nil {
			// maxEntries > 0 was already validated by Config.Validate; this
			// cannot fail in practice, but simplelru requires a signature
			// that returns an error.
			panic(err)
		}
		ix.lru = l
	}
	return ix
}

// onEvict is simplelru's callback, fired both for a capacity eviction and
// for an explicit Remove/Purge of a single id. It only does work for the
// former: explicit removal already unlinks the entry from chains itself
// and hands the slot back to its own caller, so suppressEvict short-circuits
// here to avoid double-unlinking and double-freeing that same slot.
func (ix *index) onEvict(_ uint64, e *indexEntry) {
	if ix.suppressEvict {
		return
	}
	ix.unlinkChain(e)
	ix.pendingVictims = append(ix.pendingVictims, e.slot)
}

// unlinkChain removes e from its hash chain. Callers hold ix.mu.
func (ix *index) unlinkChain(e *indexEntry) {
	chain := ix.chains[e.hash]
	if i := findEntryByID(chain, e.id); i >= 0 {
		chain = append(chain[:i], chain[i+1:]...)
	}
	if len(chain) == 0 {
		delete(ix.chains, e.hash)
	} else {
		ix.chains[e.hash] = chain
	}
}

func findEntryByID(chain []*indexEntry, id uint64) int {
	for i, e := range chain {
		if e.id == id {
			return i
		}
	}
	return -1
}

// get looks up key. If found, its slot is locked (reader count
// incremented) and, when bounded, the entry is promoted to
// most-recently-used before the monitor is released — callers must
// eventually call slot.unlock().
func (ix *index) get(key any) *slot {
	hash := ix.keyEq.Hash(key)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	i := findEntry(ix.chains[hash], key, ix.keyEq)
	if i < 0 {
		return nil
	}
	e := ix.chains[hash][i]
	if ix.bounded {
		ix.lru.Get(e.id) // promotes the entry to MRU
	}
	e.slot.lock()
	return e.slot
}

// getForLoad looks up key and, in a single monitor acquisition, resolves
// its expiry: a live entry is promoted to MRU and returned with its slot
// locked; an expired entry is removed from the index right here (spec.md
// §4.2 step 1 requires index removal under the same monitor as the
// lookup) and returned unlocked with expired=true, for the caller to free.
func (ix *index) getForLoad(key any, nowMillis int64) (sl *slot, expired bool) {
	hash := ix.keyEq.Hash(key)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	chain := ix.chains[hash]
	i := findEntry(chain, key, ix.keyEq)
	if i < 0 {
		return nil, false
	}
	e := chain[i]
	if e.slot.isExpired(nowMillis) {
		ix.removeEntryLocked(e)
		return e.slot, true
	}
	if ix.bounded {
		ix.lru.Get(e.id)
	}
	e.slot.lock()
	return e.slot, false
}

// removeEntryLocked unlinks e from chains and, when bounded, from lru.
// Callers hold ix.mu.
func (ix *index) removeEntryLocked(e *indexEntry) {
	ix.unlinkChain(e)
	if ix.bounded {
		ix.suppressEvict = true
		ix.lru.Remove(e.id)
		ix.suppressEvict = false
	}
}

// removeLocked removes key without promoting, returning its slot if
// present. Used by remove, and so by Remove and Purge; load's expiry path
// goes through getForLoad and removeEntryLocked instead.
func (ix *index) removeLocked(key any) *slot {
	hash := ix.keyEq.Hash(key)
	chain := ix.chains[hash]
	i := findEntry(chain, key, ix.keyEq)
	if i < 0 {
		return nil
	}
	e := chain[i]
	ix.removeEntryLocked(e)
	return e.slot
}

// remove removes key, returning its prior slot (or nil).
func (ix *index) remove(key any) *slot {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(key)
}

// put installs slot s for key, returning the slot previously stored for
// key (if any, to be freed by the caller) and, in bounded mode, any
// further slots evicted by this insertion to make room (also to be freed).
func (ix *index) put(key any, s *slot) (prev *slot, evicted []*slot) {
	hash := ix.keyEq.Hash(key)
	ix.mu.Lock()
	defer ix.mu.Unlock()

	chain := ix.chains[hash]
	if i := findEntry(chain, key, ix.keyEq); i >= 0 {
		e := chain[i]
		prev = e.slot
		e.slot = s
		if ix.bounded {
			ix.lru.Get(e.id) // promotes; value is unchanged, slot already swapped above
		}
		return prev, nil
	}

	e := &indexEntry{key: key, hash: hash, slot: s}
	if ix.bounded {
		ix.nextID++
		e.id = ix.nextID
	}
	ix.chains[hash] = append(chain, e)

	if ix.bounded {
		ix.pendingVictims = nil
		ix.lru.Add(e.id, e)
		evicted = ix.pendingVictims
		ix.pendingVictims = nil
	}
	return prev, evicted
}

// containsKey reports whether key is present, without touching access
// order or I/O.
func (ix *index) containsKey(key any) bool {
	hash := ix.keyEq.Hash(key)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return findEntry(ix.chains[hash], key, ix.keyEq) >= 0
}

// snapshotKeys returns every key currently in the index.
func (ix *index) snapshotKeys() []any {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var keys []any
	for _, chain := range ix.chains {
		for _, e := range chain {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// snapshotEntries returns every (key, slot) pair currently in the index.
func (ix *index) snapshotEntries() []indexEntry {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	var out []indexEntry
	for _, chain := range ix.chains {
		for _, e := range chain {
			out = append(out, *e)
		}
	}
	return out
}

// len reports the number of live entries tracked by the index. Bounded or
// not, this counts individual entries, matching the cap enforced by put.
func (ix *index) len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	n := 0
	for _, chain := range ix.chains {
		n += len(chain)
	}
	return n
}

// clear empties the index. Callers must already have drained every slot's
// readers (Clear's responsibility before calling this).
func (ix *index) clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.bounded {
		ix.suppressEvict = true
		ix.lru.Purge()
		ix.suppressEvict = false
	}
	ix.chains = make(map[uint64][]*indexEntry)
}
