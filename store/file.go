// file.go: positional reads/writes on the single data file
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// magicLen is the width of the file's format tag.
const magicLen = 4

// magic is the 4-byte tag written at offset 0 of every data file this
// store creates or recognizes. The header fields are big-endian, matching
// the original implementation this format was ported from.
var magic = [magicLen]byte{'F', 'C', 'S', '1'}

// dataFile wraps the single OS file handle backing a Store. Positional
// I/O (ReadAt/WriteAt) makes concurrent access from multiple goroutines
// safe as long as callers do not write overlapping regions, which the
// Slot invariants guarantee.
type dataFile struct {
	f    *os.File
	path string

	mu      sync.Mutex // serializes filePos bookkeeping and truncation only
	filePos uint64
	locked  bool
}

// dataFilePath returns the on-disk path for a given cache location/name,
// defaulting the directory the way spec.md §6 describes for an empty
// location.
func dataFilePath(location, cacheName string) string {
	if location == "" {
		location = defaultStoreLocation
	}
	if cacheName == "" {
		cacheName = defaultCacheName
	}
	return filepath.Join(location, cacheName+".dat")
}

// openDataFile opens or creates the data file at path, creating parent
// directories as needed, and takes an advisory exclusive flock so a
// second process attaching to the same file is surfaced as an error
// instead of silently corrupting the first process's view (spec.md §1
// disclaims cross-process sharing as a non-goal; this turns the
// unsupported case into a clear failure rather than silent corruption).
func openDataFile(path string) (*dataFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, NewErrStoreDirectoryUncreatable(filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, NewErrStoreIO("open", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		return nil, NewErrStoreIO("flock", err)
	}

	fi, err := f.Stat()
	if err != nil {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
		return nil, NewErrStoreIO("stat", err)
	}

	return &dataFile{f: f, path: path, filePos: uint64(fi.Size()), locked: true}, nil
}

// size returns the current file length.
func (d *dataFile) size() (uint64, error) {
	fi, err := d.f.Stat()
	if err != nil {
		return 0, NewErrStoreIO("stat", err)
	}
	return uint64(fi.Size()), nil
}

// readMagic reads the first magicLen bytes. A short read (empty/new file)
// returns (nil, nil) so callers can distinguish "no magic yet" from I/O
// failure.
func (d *dataFile) readMagic() ([]byte, error) {
	buf := make([]byte, magicLen)
	n, err := d.f.ReadAt(buf, 0)
	if n == magicLen {
		return buf, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, NewErrStoreIO("read magic", err)
	}
	return nil, nil // short read at the start of a fresh file is expected, not an error
}

// writeMagic writes the magic tag at offset 0.
func (d *dataFile) writeMagic() error {
	if _, err := d.f.WriteAt(magic[:], 0); err != nil {
		return NewErrStoreIO("write magic", err)
	}
	return nil
}

// slotHeader is the decoded fixed-width prefix of an on-disk record.
type slotHeader struct {
	size       uint32
	keyLen     uint32
	dataLen    uint32
	expiryTime int64
}

func encodeHeader(h slotHeader) []byte {
	buf := make([]byte, headerSize)
	binary.BigEndian.PutUint32(buf[0:4], h.size)
	binary.BigEndian.PutUint32(buf[4:8], h.keyLen)
	binary.BigEndian.PutUint32(buf[8:12], h.dataLen)
	binary.BigEndian.PutUint64(buf[12:20], uint64(h.expiryTime))
	return buf
}

func decodeHeader(buf []byte) slotHeader {
	return slotHeader{
		size:       binary.BigEndian.Uint32(buf[0:4]),
		keyLen:     binary.BigEndian.Uint32(buf[4:8]),
		dataLen:    binary.BigEndian.Uint32(buf[8:12]),
		expiryTime: int64(binary.BigEndian.Uint64(buf[12:20])),
	}
}

// readHeaderAt reads and decodes the 20-byte header at off. ok is false on
// a short read (EOF mid-header), which rebuildIndex treats as end of scan
// rather than corruption.
func (d *dataFile) readHeaderAt(off uint64) (hdr slotHeader, ok bool, err error) {
	buf := make([]byte, headerSize)
	n, rerr := d.f.ReadAt(buf, int64(off))
	if n < headerSize {
		return slotHeader{}, false, nil
	}
	if rerr != nil {
		return slotHeader{}, false, NewErrStoreIO("read header", rerr)
	}
	return decodeHeader(buf), true, nil
}

// readAt reads exactly n bytes at off.
func (d *dataFile) readAt(off uint64, n uint32) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := d.f.ReadAt(buf, int64(off)); err != nil {
		return nil, NewErrStoreIO("read", err)
	}
	return buf, nil
}

// writeRecordAt writes the full record (header + key + value) at off in a
// single positional write, so the write is all-or-nothing from the point
// of view of any concurrent reader of a different, non-overlapping slot.
func (d *dataFile) writeRecordAt(off uint64, hdr slotHeader, key, value []byte) error {
	buf := make([]byte, headerSize+len(key)+len(value))
	copy(buf, encodeHeader(hdr))
	copy(buf[headerSize:], key)
	copy(buf[headerSize+len(key):], value)
	if _, err := d.f.WriteAt(buf, int64(off)); err != nil {
		return NewErrStoreIO("write record", err)
	}
	return nil
}

// markFreeAt overwrites only the 4-byte keyLen field at off+4 with zero,
// per spec.md §4.1: a slot is marked free on disk without disturbing the
// rest of its header, so rebuildIndex can still walk past it.
func (d *dataFile) markFreeAt(off uint64) error {
	var zero [4]byte
	if _, err := d.f.WriteAt(zero[:], int64(off+4)); err != nil {
		return NewErrStoreIO("mark free", err)
	}
	return nil
}

// advance reserves need bytes at the current append pointer and returns
// the offset they were reserved at.
func (d *dataFile) advance(need uint32) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	off := d.filePos
	d.filePos += uint64(need)
	return off
}

// pos returns the current append pointer.
func (d *dataFile) pos() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.filePos
}

// setPos overwrites the append pointer, used by rebuildIndex.
func (d *dataFile) setPos(p uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filePos = p
}

// truncateAndRewriteMagic truncates the file to zero length and rewrites
// the magic header, resetting the append pointer to magicLen.
func (d *dataFile) truncateAndRewriteMagic() error {
	if err := d.f.Truncate(0); err != nil {
		return NewErrStoreIO("truncate", err)
	}
	if err := d.writeMagic(); err != nil {
		return err
	}
	d.setPos(magicLen)
	return nil
}

// close releases the advisory lock and closes the underlying file handle.
func (d *dataFile) close() error {
	if d.locked {
		_ = unix.Flock(int(d.f.Fd()), unix.LOCK_UN)
		d.locked = false
	}
	if err := d.f.Close(); err != nil {
		return NewErrStoreIO("close", err)
	}
	return nil
}
