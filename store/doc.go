// Package store provides a single-file, append-allocate persistent cache
// store, usable as a disk tier behind any in-memory cache.
//
// Values are serialized cache entries kept on disk inside one data file;
// their keys and positions are kept in memory. The store rebuilds its
// in-memory index from the data file on Start, and is safe for concurrent
// readers and writers operating on distinct keys.
//
// # Overview
//
//   - Allocation: a free-list of reclaimed on-disk regions is consulted
//     before the file is extended, so repeated store/remove cycles reuse
//     space instead of growing the file unbounded.
//   - Eviction: when configured with MaxEntries, the store evicts the
//     least-recently-used key once the index would otherwise exceed the
//     bound.
//   - Concurrency: reads and writes to distinct keys proceed without
//     blocking each other; a per-slot reader count prevents a slot from
//     being physically reused while a read of its old contents is still
//     in flight.
//
// # Quick Start
//
//	s, err := store.New(store.Config{
//	    Location:  "/var/lib/myapp/cache",
//	    CacheName: "sessions",
//	    MaxEntries: 100_000,
//	}, store.NewGobMarshaller(), store.StringKeyEquivalence{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Stop()
//
//	if err := s.Start(nil); err != nil {
//	    log.Fatal(err)
//	}
//
//	_ = s.Store("user:123", sessionPayload, -1)
//	v, _ := s.Load("user:123")
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store
