// legacy_bolt.go: a concrete LegacyImporter reading a bbolt bucket store
//
// One real "legacy bucket-based store" implementation of the
// LegacyImporter plug-in point, for callers migrating off a bbolt-backed
// cache (as used by the single-file embedded stores in this codebase's
// dependency pack) onto this file format.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltLegacyImporter reads every key/value pair out of a single bucket in
// a bbolt database file and yields it as a LegacyEntry with no expiry
// (legacy stores of this shape carried no per-entry TTL).
type BoltLegacyImporter struct {
	Path       string
	BucketName string
	Marshaller Marshaller
}

// Import opens the bbolt file read-only, walks BucketName, and yields one
// LegacyEntry per stored pair, decoding both key and value through
// Marshaller. The bbolt handle is closed before Import returns.
func (b BoltLegacyImporter) Import(yield func(LegacyEntry) error) error {
	db, err := bolt.Open(b.Path, 0o644, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		if isNoSuchFile(err) {
			return nil // nothing to import
		}
		return NewErrStoreLegacyUpgrade(err)
	}
	defer db.Close()

	err = db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(b.BucketName))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			key, derr := b.Marshaller.ObjectFromByteBuffer(k, 0, len(k))
			if derr != nil {
				return derr
			}
			value, derr := b.Marshaller.ObjectFromByteBuffer(v, 0, len(v))
			if derr != nil {
				return derr
			}
			return yield(LegacyEntry{Key: key, Value: value, ExpiryTime: neverExpires})
		})
	})
	if err != nil {
		return NewErrStoreLegacyUpgrade(err)
	}
	return nil
}

func isNoSuchFile(err error) bool {
	return os.IsNotExist(err)
}
