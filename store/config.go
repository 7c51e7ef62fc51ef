// config.go: configuration for the on-disk store
//
// Mirrors the teacher's own Config shape: a plain struct, a Validate()
// that normalizes rather than errors, and a DefaultConfig(), built on
// this package's own Logger and TimeProvider capability interfaces
// (logger.go, below) so the store has no dependency on anything outside
// this module.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package store

import (
	"time"

	"github.com/agilira/go-timecache"
)

const (
	// defaultStoreLocation is used when Config.Location is empty.
	defaultStoreLocation = "./balios-store-data"

	// defaultCacheName is used when Config.CacheName is empty.
	defaultCacheName = "default"

	// DefaultPurgeInterval is a suggested value for Config.PurgeInterval.
	// Validate does not apply it: an unset (zero) PurgeInterval disables
	// scheduled purging.
	DefaultPurgeInterval = time.Minute
)

// Config holds configuration parameters for a Store.
type Config struct {
	// Location is the directory the data file lives in. Defaults to
	// defaultStoreLocation when empty.
	Location string

	// CacheName names the data file (<Location>/<CacheName>.dat).
	// Defaults to defaultCacheName when empty.
	CacheName string

	// MaxEntries activates bounded mode with LRU eviction when > 0.
	// <= 0 means unbounded.
	MaxEntries int

	// PurgeSynchronously, when true, runs each scheduled purge sweep on
	// the ticker goroutine itself; when false, each sweep is dispatched
	// without the scheduler waiting for it to finish. Only meaningful
	// when PurgeInterval > 0.
	PurgeSynchronously bool

	// PurgeInterval is how often Start's background sweep calls Purge.
	// 0 disables scheduled purging; callers may still call Purge directly.
	PurgeInterval time.Duration

	// Logger receives diagnostic messages. Defaults to NoOpLogger.
	Logger Logger

	// TimeProvider supplies the current time, in milliseconds since
	// epoch, for expiry checks. Defaults to a go-timecache backed
	// provider, matching the root package's cached-time idiom.
	TimeProvider TimeProvider

	// MetricsCollector receives operation timing/counters. Defaults to
	// NoOpStoreMetricsCollector.
	MetricsCollector StoreMetricsCollector
}

// Validate normalizes the configuration in place, applying defaults for
// anything unset or out of range. It never returns a non-nil error today;
// it returns error to match the teacher's own Config.Validate signature
// and leave room for stricter future validation.
func (c *Config) Validate() error {
	if c.Location == "" {
		c.Location = defaultStoreLocation
	}
	if c.CacheName == "" {
		c.CacheName = defaultCacheName
	}
	if c.MaxEntries < 0 {
		c.MaxEntries = 0
	}
	if c.PurgeInterval < 0 {
		c.PurgeInterval = 0
	}
	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}
	if c.TimeProvider == nil {
		c.TimeProvider = &storeTimeProvider{}
	}
	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpStoreMetricsCollector{}
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	c := Config{}
	_ = c.Validate()
	return c
}

// TimeProvider supplies the current time in milliseconds since epoch,
// matching the expiryTime unit used by the on-disk record format.
type TimeProvider interface {
	Now() int64
}

// storeTimeProvider is the default TimeProvider, backed by go-timecache
// (the same dependency the teacher's own cache uses for its default
// TimeProvider) rather than time.Now() on every expiry check.
type storeTimeProvider struct{}

func (storeTimeProvider) Now() int64 {
	return timecache.CachedTimeNano() / int64(time.Millisecond)
}
