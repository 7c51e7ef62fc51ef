// store_test.go: scenario tests for the Store engine, covering the
// invariants and concrete scenarios described for this package.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// rawMarshaller encodes strings as their raw bytes, with no framing
// overhead, so tests can reason about exact on-disk sizes and offsets.
type rawMarshaller struct{}

func (rawMarshaller) ObjectToByteBuffer(v any) ([]byte, error) {
	s, _ := v.(string)
	return []byte(s), nil
}

func (rawMarshaller) ObjectFromByteBuffer(b []byte, off, length int) (any, error) {
	return string(b[off : off+length]), nil
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	cfg.Location = t.TempDir()
	cfg.CacheName = "test"
	s, err := New(cfg, rawMarshaller{}, StringKeyEquivalence{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestStore_StoreAndReloadAfterRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Location: dir, CacheName: "cache"}

	s, err := New(cfg, rawMarshaller{}, StringKeyEquivalence{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Store("a", "1", neverExpires); err != nil {
		t.Fatalf("Store(a) error = %v", err)
	}
	if err := s.Store("b", "2", neverExpires); err != nil {
		t.Fatalf("Store(b) error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	s2, err := New(cfg, rawMarshaller{}, StringKeyEquivalence{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s2.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s2.Stop()

	va, err := s2.Load("a")
	if err != nil || va != "1" {
		t.Fatalf("Load(a) = (%v, %v), want (1, nil)", va, err)
	}
	vb, err := s2.Load("b")
	if err != nil || vb != "2" {
		t.Fatalf("Load(b) = (%v, %v), want (2, nil)", vb, err)
	}
}

func TestStore_FreeListReuseBestFit(t *testing.T) {
	s := newTestStore(t, Config{})

	value := string(make([]byte, 80))
	if err := s.Store("a", value, neverExpires); err != nil {
		t.Fatalf("Store(a) error = %v", err)
	}

	aSlot := s.idx.get("a")
	aSlot.unlock()
	aOffset := aSlot.offset
	posAfterA := s.file.pos()

	if ok, err := s.Remove("a"); err != nil || !ok {
		t.Fatalf("Remove(a) = (%v, %v), want (true, nil)", ok, err)
	}

	if err := s.Store("b", value, neverExpires); err != nil {
		t.Fatalf("Store(b) error = %v", err)
	}

	bSlot := s.idx.get("b")
	bSlot.unlock()
	if bSlot.offset != aOffset {
		t.Fatalf("Store(b) offset = %d, want reused offset %d", bSlot.offset, aOffset)
	}
	if s.file.pos() != posAfterA {
		t.Fatalf("filePos = %d, want unchanged at %d (no append, slot was reused)", s.file.pos(), posAfterA)
	}
}

func TestStore_LRUEviction(t *testing.T) {
	s := newTestStore(t, Config{MaxEntries: 2})

	mustStore := func(k, v string) {
		t.Helper()
		if err := s.Store(k, v, neverExpires); err != nil {
			t.Fatalf("Store(%s) error = %v", k, err)
		}
	}
	mustStore("a", "1")
	mustStore("b", "2")

	if _, err := s.Load("a"); err != nil {
		t.Fatalf("Load(a) error = %v", err)
	}
	mustStore("c", "3")

	if s.ContainsKey("b") {
		t.Fatal("b should have been evicted as the LRU victim")
	}
	if !s.ContainsKey("a") || !s.ContainsKey("c") {
		t.Fatal("a and c should both still be present")
	}
	if s.free.len() != 1 {
		t.Fatalf("free list len = %d, want 1 (b's former slot)", s.free.len())
	}
}

func TestStore_ExpiryOnLoad(t *testing.T) {
	s := newTestStore(t, Config{})

	now := s.cfg.TimeProvider.Now()
	if err := s.Store("a", "1", now-1000); err != nil {
		t.Fatalf("Store(a) error = %v", err)
	}

	v, err := s.Load("a")
	if err != nil {
		t.Fatalf("Load(a) error = %v", err)
	}
	if v != nil {
		t.Fatalf("Load(a) = %v, want nil for an expired entry", v)
	}
	if s.ContainsKey("a") {
		t.Fatal("expired entry should have been removed from the index")
	}
	if s.free.len() != 1 {
		t.Fatalf("free list len = %d, want 1 (a's slot, freed on expiry)", s.free.len())
	}
}

func TestStore_ConcurrentReadDuringOverwrite(t *testing.T) {
	s := newTestStore(t, Config{})

	longValue := string(make([]byte, 256))
	if err := s.Store("k", "old", neverExpires); err != nil {
		t.Fatalf("Store(k, old) error = %v", err)
	}

	sl := s.idx.get("k") // locks the slot, as Load would
	oldBytes, err := s.file.readAt(sl.offset+headerSize+uint64(sl.keyLen), sl.dataLen)
	if err != nil {
		t.Fatalf("readAt() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Store("k", longValue, neverExpires); err != nil {
			t.Errorf("Store(k, new) error = %v", err)
		}
	}()

	// Give the writer a chance to race ahead of the reader's unlock.
	time.Sleep(20 * time.Millisecond)
	sl.unlock()
	wg.Wait()

	if string(oldBytes) != "old" {
		t.Fatalf("reader observed %q, want the old value %q (no torn read)", oldBytes, "old")
	}

	v, err := s.Load("k")
	if err != nil || v != longValue {
		t.Fatalf("Load(k) after overwrite = (%v, %v), want (%q, nil)", v, err, longValue)
	}

	if s.free.len() != 1 {
		t.Fatalf("free list len = %d, want 1 (the pre-overwrite slot, reusable once drained)", s.free.len())
	}
}

func TestStore_RebuildIndexTolerance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.dat")

	// Hand-craft: magic + one live record ("a" -> "1") + one freed record
	// (keyLen zeroed) to exercise rebuildIndex's EOF-tolerant walk.
	var buf []byte
	buf = append(buf, magic[:]...)

	liveOffset := uint64(len(buf))
	liveHdr := slotHeader{size: need(1, 1), keyLen: 1, dataLen: 1, expiryTime: neverExpires}
	buf = append(buf, encodeHeader(liveHdr)...)
	buf = append(buf, 'a', '1')

	freeOffset := uint64(len(buf))
	freeHdr := slotHeader{size: need(1, 1), keyLen: 0, dataLen: 1, expiryTime: neverExpires}
	buf = append(buf, encodeHeader(freeHdr)...)
	buf = append(buf, 'x', '2')

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	s, err := New(Config{Location: dir, CacheName: "cache"}, rawMarshaller{}, StringKeyEquivalence{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Start(nil); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop()

	if s.idx.len() != 1 {
		t.Fatalf("index len = %d, want 1", s.idx.len())
	}
	if s.free.len() != 1 {
		t.Fatalf("free list len = %d, want 1", s.free.len())
	}

	v, err := s.Load("a")
	if err != nil || v != "1" {
		t.Fatalf("Load(a) = (%v, %v), want (1, nil)", v, err)
	}

	entries := s.idx.snapshotEntries()
	if len(entries) != 1 || entries[0].slot.offset != liveOffset {
		t.Fatalf("live slot offset = %+v, want %d", entries, liveOffset)
	}
	freeSlots := s.free.all()
	if len(freeSlots) != 1 || freeSlots[0].offset != freeOffset {
		t.Fatalf("free slot offset = %+v, want %d", freeSlots, freeOffset)
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t, Config{})
	if err := s.Store("a", "1", neverExpires); err != nil {
		t.Fatalf("Store(a) error = %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if s.ContainsKey("a") {
		t.Fatal("index should be empty after Clear")
	}
	if s.free.len() != 0 {
		t.Fatal("free list should be empty after Clear")
	}
	if got := s.file.pos(); got != magicLen {
		t.Fatalf("filePos after Clear = %d, want %d", got, magicLen)
	}
}

func TestStore_Purge(t *testing.T) {
	s := newTestStore(t, Config{})
	now := s.cfg.TimeProvider.Now()
	if err := s.Store("live", "1", neverExpires); err != nil {
		t.Fatalf("Store(live) error = %v", err)
	}
	if err := s.Store("dead", "2", now-1); err != nil {
		t.Fatalf("Store(dead) error = %v", err)
	}

	if err := s.Purge(); err != nil {
		t.Fatalf("Purge() error = %v", err)
	}
	if !s.ContainsKey("live") {
		t.Fatal("live entry should survive Purge")
	}
	if s.ContainsKey("dead") {
		t.Fatal("expired entry should be removed by Purge")
	}
}

func TestStore_RemoveMissingKey(t *testing.T) {
	s := newTestStore(t, Config{})
	ok, err := s.Remove("missing")
	if err != nil || ok {
		t.Fatalf("Remove(missing) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestStore_LoadMiss(t *testing.T) {
	s := newTestStore(t, Config{})
	v, err := s.Load("missing")
	if err != nil || v != nil {
		t.Fatalf("Load(missing) = (%v, %v), want (nil, nil)", v, err)
	}
}

func TestStore_FromStreamToStream_Unsupported(t *testing.T) {
	s := newTestStore(t, Config{})
	if err := s.FromStream(nil); !IsUnsupported(err) {
		t.Fatalf("FromStream() error = %v, want Unsupported", err)
	}
	if err := s.ToStream(nil); !IsUnsupported(err) {
		t.Fatalf("ToStream() error = %v, want Unsupported", err)
	}
}

func TestStore_LoadAllAndLoadAllKeys(t *testing.T) {
	s := newTestStore(t, Config{})
	if err := s.Store("a", "1", neverExpires); err != nil {
		t.Fatalf("Store(a) error = %v", err)
	}
	if err := s.Store("b", "2", neverExpires); err != nil {
		t.Fatalf("Store(b) error = %v", err)
	}

	all, err := s.LoadAll()
	if err != nil || len(all) != 2 {
		t.Fatalf("LoadAll() = (%v, %v), want 2 entries", all, err)
	}

	keys, err := s.LoadAllKeys(map[any]struct{}{"a": {}})
	if err != nil {
		t.Fatalf("LoadAllKeys() error = %v", err)
	}
	if len(keys) != 1 || keys[0] != "b" {
		t.Fatalf("LoadAllKeys(exclude a) = %v, want [b]", keys)
	}
}

func TestStore_ScheduledPurge(t *testing.T) {
	s := newTestStore(t, Config{PurgeInterval: 15 * time.Millisecond, PurgeSynchronously: true})
	now := s.cfg.TimeProvider.Now()
	if err := s.Store("dead", "2", now-1); err != nil {
		t.Fatalf("Store(dead) error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for s.ContainsKey("dead") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.ContainsKey("dead") {
		t.Fatal("scheduled purge should have removed the expired entry")
	}
}
