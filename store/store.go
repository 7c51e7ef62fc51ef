// store.go: the Store engine, orchestrating index, free list, allocator
// and the data file into the public on-disk cache tier contract.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Store is a single-file, append-allocate persistent cache store. A Store
// must be created with New and opened with Start before any other method
// is called, and released with Stop when no longer needed.
type Store struct {
	cfg     Config
	marshal Marshaller
	keyEq   KeyEquivalence

	file  *dataFile
	idx   *index
	free  *freeList
	alloc *allocator

	purgeCancel context.CancelFunc
	purgeDone   chan struct{}
}

// New validates cfg and constructs a Store. The data file is not opened
// until Start is called.
func New(cfg Config, marshal Marshaller, keyEq KeyEquivalence) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if marshal == nil {
		marshal = NewGobMarshaller()
	}
	if keyEq == nil {
		keyEq = StringKeyEquivalence{}
	}
	return &Store{
		cfg:     cfg,
		marshal: marshal,
		keyEq:   keyEq,
	}, nil
}

// Start opens (creating if necessary) the data file. If the file already
// carries the magic header, the index and free list are rebuilt from it;
// otherwise the file is fresh, so it is initialized with a magic header
// first and then, if a legacy importer was supplied, drained into it via
// Store. (spec.md §4.2 describes running the legacy import before the
// magic check unconditionally; done literally, the fresh-file branch's
// Clear would immediately truncate away everything the import just wrote.
// Import is ordered after header initialization here instead, which is
// the only order in which a one-time legacy migration into a brand new
// file can actually survive — see DESIGN.md.) It also starts the
// scheduled purge sweep if Config.PurgeInterval > 0.
func (s *Store) Start(legacy LegacyImporter) error {
	path := dataFilePath(s.cfg.Location, s.cfg.CacheName)
	f, err := openDataFile(path)
	if err != nil {
		return err
	}
	s.file = f
	s.idx = newIndex(s.keyEq, s.cfg.MaxEntries)
	s.free = newFreeList()
	s.alloc = newAllocator(s.file, s.free)
	s.file.setPos(magicLen)

	tag, err := s.file.readMagic()
	if err != nil {
		_ = s.file.close()
		return err
	}
	if tag != nil && string(tag) == string(magic[:]) {
		if err := s.rebuildIndex(); err != nil {
			_ = s.file.close()
			return err
		}
	} else {
		if err := s.Clear(); err != nil {
			_ = s.file.close()
			return err
		}
		if legacy != nil {
			if err := s.importLegacy(legacy); err != nil {
				_ = s.file.close()
				return err
			}
		}
	}

	if s.cfg.PurgeInterval > 0 {
		s.startPurgeLoop()
	}
	return nil
}

func (s *Store) importLegacy(legacy LegacyImporter) error {
	err := legacy.Import(func(e LegacyEntry) error {
		return s.Store(e.Key, e.Value, e.ExpiryTime)
	})
	if err != nil {
		return NewErrStoreLegacyUpgrade(err)
	}
	return nil
}

// rebuildIndex walks the file from offset magicLen, reconstructing the
// index and free list. It tolerates the file ending mid-header (treated
// as EOF, not corruption) per spec.md §4.2.
func (s *Store) rebuildIndex() error {
	off := uint64(magicLen)
	for {
		hdr, ok, err := s.file.readHeaderAt(off)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if hdr.size < headerSize {
			// Invariant violation: treat as corruption boundary and stop
			// recovering; subsequent bytes are left unmapped and will be
			// overwritten by future allocate() appends (spec.md §7).
			break
		}

		sl := newSlot(off, hdr.size)
		sl.dataLen = hdr.dataLen
		sl.expiryTime = hdr.expiryTime

		if hdr.keyLen > 0 {
			sl.keyLen = hdr.keyLen
			keyBytes, err := s.file.readAt(off+headerSize, hdr.keyLen)
			if err != nil {
				return err
			}
			key, derr := s.marshal.ObjectFromByteBuffer(keyBytes, 0, len(keyBytes))
			if derr != nil {
				return NewErrStoreSerialization("rebuild key", derr)
			}
			s.idx.put(key, sl)
		} else {
			s.free.insert(sl)
		}

		off += uint64(hdr.size)
		s.file.setPos(off)
	}
	return nil
}

// Store serializes key and value, allocates a slot sized to fit them, and
// writes the full record in a single positional write, then installs the
// new slot in the index, freeing any slot it replaced or evicted.
func (s *Store) Store(key, value any, expiryTime int64) error {
	started := time.Now()
	keyBytes, err := s.marshal.ObjectToByteBuffer(key)
	if err != nil {
		return NewErrStoreSerialization("store key", err)
	}
	valueBytes, err := s.marshal.ObjectToByteBuffer(value)
	if err != nil {
		return NewErrStoreSerialization("store value", err)
	}

	n := need(len(keyBytes), len(valueBytes))
	sl := s.alloc.allocate(n)
	sl.keyLen = uint32(len(keyBytes))
	sl.dataLen = uint32(len(valueBytes))
	sl.expiryTime = expiryTime

	hdr := slotHeader{size: sl.size, keyLen: sl.keyLen, dataLen: sl.dataLen, expiryTime: sl.expiryTime}
	if err := s.file.writeRecordAt(sl.offset, hdr, keyBytes, valueBytes); err != nil {
		return err
	}

	prev, evicted := s.idx.put(key, sl)
	if prev != nil {
		if err := s.alloc.free(prev); err != nil {
			return err
		}
	}
	for _, victim := range evicted {
		s.cfg.MetricsCollector.RecordEviction()
		if err := s.alloc.free(victim); err != nil {
			return err
		}
	}

	s.cfg.MetricsCollector.RecordStore(time.Since(started))
	return nil
}

// Load returns the value stored for key, or (nil, nil) on a miss
// (including an expired entry, which is evicted as a side effect). The
// slot's reader count brackets only the disk read; deserialization
// happens after the slot is unlocked, per spec.md §4.2.
func (s *Store) Load(key any) (any, error) {
	started := time.Now()
	now := s.cfg.TimeProvider.Now()
	sl, expired := s.idx.getForLoad(key, now)
	if sl == nil {
		s.cfg.MetricsCollector.RecordLoad(time.Since(started), false)
		return nil, nil
	}
	if expired {
		if err := s.alloc.free(sl); err != nil {
			return nil, err
		}
		s.cfg.MetricsCollector.RecordLoad(time.Since(started), false)
		return nil, nil
	}

	valueBytes, err := s.file.readAt(sl.offset+headerSize+uint64(sl.keyLen), sl.dataLen)
	sl.unlock()
	if err != nil {
		return nil, err
	}

	value, err := s.marshal.ObjectFromByteBuffer(valueBytes, 0, len(valueBytes))
	if err != nil {
		return nil, NewErrStoreSerialization("load value", err)
	}
	s.cfg.MetricsCollector.RecordLoad(time.Since(started), true)
	return value, nil
}

// LoadAll returns every non-expired entry currently in the index.
func (s *Store) LoadAll() (map[any]any, error) {
	return s.loadKeys(s.idx.snapshotKeys())
}

// LoadN returns up to n entries from the index. Per spec.md §9's Open
// Questions, the original gives no ordering guarantee for this operation,
// so callers must treat the result as an unordered sample, not the n
// most/least recently used.
func (s *Store) LoadN(n int) (map[any]any, error) {
	keys := s.idx.snapshotKeys()
	if n >= 0 && n < len(keys) {
		keys = keys[:n]
	}
	return s.loadKeys(keys)
}

func (s *Store) loadKeys(keys []any) (map[any]any, error) {
	out := make(map[any]any, len(keys))
	for _, k := range keys {
		v, err := s.Load(k)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[k] = v
		}
	}
	return out, nil
}

// LoadAllKeys returns every key currently in the index, excluding any key
// present in exclude (which may be nil).
func (s *Store) LoadAllKeys(exclude map[any]struct{}) ([]any, error) {
	keys := s.idx.snapshotKeys()
	if len(exclude) == 0 {
		return keys, nil
	}
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		if _, excluded := exclude[k]; !excluded {
			out = append(out, k)
		}
	}
	return out, nil
}

// ContainsKey reports whether key is present in the index. No I/O.
func (s *Store) ContainsKey(key any) bool {
	return s.idx.containsKey(key)
}

// Remove removes key from the index and frees its slot, reporting
// whether a slot was removed.
func (s *Store) Remove(key any) (bool, error) {
	sl := s.idx.remove(key)
	if sl == nil {
		return false, nil
	}
	if err := s.alloc.free(sl); err != nil {
		return false, err
	}
	return true, nil
}

// Clear drains every in-flight reader, empties the index and free list,
// and truncates the data file back to just its magic header. The lock
// order Index -> Free is invariant; no other operation may nest them.
func (s *Store) Clear() error {
	ctx := context.Background()
	for _, e := range s.idx.snapshotEntries() {
		if err := e.slot.waitUnlocked(ctx); err != nil {
			return err
		}
	}
	for _, fe := range s.free.all() {
		if err := fe.waitUnlocked(ctx); err != nil {
			return err
		}
	}

	s.idx.clear()
	s.free.clear()

	return s.file.truncateAndRewriteMagic()
}

// Purge removes every expired entry from the index and frees its slot.
func (s *Store) Purge() error {
	now := s.cfg.TimeProvider.Now()
	removed := 0
	for _, e := range s.idx.snapshotEntries() {
		if e.slot.isExpired(now) {
			if victim := s.idx.remove(e.key); victim != nil {
				if err := s.alloc.free(victim); err != nil {
					return err
				}
				removed++
			}
		}
	}
	s.cfg.MetricsCollector.RecordPurge(removed)
	return nil
}

func (s *Store) startPurgeLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	s.purgeCancel = cancel
	s.purgeDone = make(chan struct{})
	go func() {
		defer close(s.purgeDone)
		ticker := time.NewTicker(s.cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.cfg.PurgeSynchronously {
					if err := s.Purge(); err != nil {
						s.cfg.Logger.Error("purge failed", "error", err)
					}
				} else {
					go func() {
						if err := s.Purge(); err != nil {
							s.cfg.Logger.Error("purge failed", "error", err)
						}
					}()
				}
			}
		}
	}()
}

// Stop closes the data file and stops the scheduled purge sweep, if any.
func (s *Store) Stop() error {
	if s.purgeCancel != nil {
		s.purgeCancel()
		<-s.purgeDone
		s.purgeCancel = nil
	}
	if s.file == nil {
		return nil
	}
	err := s.file.close()
	s.idx = nil
	s.free = nil
	s.file = nil
	return err
}

// FromStream is declared by the store contract but never implemented;
// streaming import is explicitly out of scope (spec.md §1).
func (s *Store) FromStream(_ io.Reader) error {
	return NewErrStoreUnsupported("FromStream")
}

// ToStream is declared by the store contract but never implemented;
// streaming export is explicitly out of scope (spec.md §1).
func (s *Store) ToStream(_ io.Writer) error {
	return NewErrStoreUnsupported("ToStream")
}

// String renders the store's data file path, useful in log lines.
func (s *Store) String() string {
	return fmt.Sprintf("store(%s)", dataFilePath(s.cfg.Location, s.cfg.CacheName))
}
