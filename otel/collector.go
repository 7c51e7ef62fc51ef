// collector.go: OpenTelemetry-backed store.StoreMetricsCollector
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package otel

import (
	"context"
	"errors"
	"time"

	"github.com/agilira/balios-store/store"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsCollector implements store.StoreMetricsCollector using
// OpenTelemetry.
//
// Thread-safety: safe for concurrent use by multiple goroutines. The
// underlying OTEL instruments are thread-safe and lock-free.
type OTelMetricsCollector struct {
	storeLatency metric.Int64Histogram // store.Store() latency histogram
	loadLatency  metric.Int64Histogram // store.Load() latency histogram
	storeHits    metric.Int64Counter   // store.Load() hits
	storeMisses  metric.Int64Counter   // store.Load() misses
	evictions    metric.Int64Counter   // bounded-index LRU evictions
	purged       metric.Int64Counter   // entries removed by a purge sweep
}

// Options for configuring OTelMetricsCollector.
type Options struct {
	// MeterName is the name of the OpenTelemetry meter.
	// Default: "github.com/agilira/balios-store"
	MeterName string
}

// Option is a functional option for configuring OTelMetricsCollector.
type Option func(*Options)

// WithMeterName sets a custom meter name.
// This is useful for distinguishing metrics from multiple store instances
// or integrating with existing OTEL instrumentation.
func WithMeterName(name string) Option {
	return func(o *Options) {
		o.MeterName = name
	}
}

// NewOTelMetricsCollector creates a new OpenTelemetry metrics collector.
//
// Parameters:
//   - provider: OpenTelemetry MeterProvider. Must not be nil.
//   - opts: Optional configuration options (meter name, etc.)
//
// The collector creates an Int64Histogram for Store/Load latencies and
// Int64Counters for load hits/misses, evictions, and purge sweeps. All
// instruments are thread-safe and lock-free.
func NewOTelMetricsCollector(provider metric.MeterProvider, opts ...Option) (*OTelMetricsCollector, error) {
	if provider == nil {
		return nil, errors.New("meter provider cannot be nil")
	}

	options := Options{
		MeterName: "github.com/agilira/balios-store",
	}
	for _, opt := range opts {
		opt(&options)
	}

	meter := provider.Meter(options.MeterName)
	collector := &OTelMetricsCollector{}

	var err error
	collector.storeLatency, err = meter.Int64Histogram(
		"balios_store_store_latency_ns",
		metric.WithDescription("Latency of store.Store operations in nanoseconds"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, err
	}

	collector.loadLatency, err = meter.Int64Histogram(
		"balios_store_load_latency_ns",
		metric.WithDescription("Latency of store.Load operations in nanoseconds"),
		metric.WithUnit("ns"),
	)
	if err != nil {
		return nil, err
	}

	collector.storeHits, err = meter.Int64Counter(
		"balios_store_load_hits_total",
		metric.WithDescription("Total number of store.Load hits"),
	)
	if err != nil {
		return nil, err
	}

	collector.storeMisses, err = meter.Int64Counter(
		"balios_store_load_misses_total",
		metric.WithDescription("Total number of store.Load misses"),
	)
	if err != nil {
		return nil, err
	}

	collector.evictions, err = meter.Int64Counter(
		"balios_evictions_total",
		metric.WithDescription("Total number of bounded-index LRU evictions"),
	)
	if err != nil {
		return nil, err
	}

	collector.purged, err = meter.Int64Counter(
		"balios_store_purged_total",
		metric.WithDescription("Total number of entries removed by purge sweeps"),
	)
	if err != nil {
		return nil, err
	}

	return collector, nil
}

// RecordStore records a store.Store call.
//
// Thread-safety: safe for concurrent use.
func (c *OTelMetricsCollector) RecordStore(dur time.Duration) {
	c.storeLatency.Record(context.Background(), dur.Nanoseconds())
}

// RecordLoad records a store.Load call, hit reporting whether the key was
// found (and not expired).
//
// Thread-safety: safe for concurrent use.
func (c *OTelMetricsCollector) RecordLoad(dur time.Duration, hit bool) {
	ctx := context.Background()
	c.loadLatency.Record(ctx, dur.Nanoseconds())
	if hit {
		c.storeHits.Add(ctx, 1)
	} else {
		c.storeMisses.Add(ctx, 1)
	}
}

// RecordEviction records one slot evicted by the bounded index's LRU policy.
//
// Thread-safety: safe for concurrent use.
func (c *OTelMetricsCollector) RecordEviction() {
	c.evictions.Add(context.Background(), 1)
}

// RecordPurge records the outcome of one purge sweep over the disk tier.
//
// Thread-safety: safe for concurrent use.
func (c *OTelMetricsCollector) RecordPurge(removed int) {
	if removed <= 0 {
		return
	}
	c.purged.Add(context.Background(), int64(removed))
}

// Compile-time interface check.
var _ store.StoreMetricsCollector = (*OTelMetricsCollector)(nil)
