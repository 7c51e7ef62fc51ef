// Package otel provides OpenTelemetry integration for store metrics.
//
// # Overview
//
// This package implements store.StoreMetricsCollector using OpenTelemetry,
// enabling percentile-calculating histograms (p50, p95, p99, p99.9) and
// multi-backend export (Prometheus, Jaeger, DataDog, Grafana) for the
// on-disk store's Store/Load/Purge operations.
//
// The package is a separate module so applications that don't need metrics
// collection don't pay for the OTEL dependencies.
//
// # Quick Start
//
//	import (
//	    baliosotel "github.com/agilira/balios/otel"
//	    "github.com/agilira/balios-store/store"
//	    "go.opentelemetry.io/otel/exporters/prometheus"
//	    "go.opentelemetry.io/otel/sdk/metric"
//	)
//
//	exporter, err := prometheus.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	provider := metric.NewMeterProvider(metric.WithReader(exporter))
//	defer provider.Shutdown(context.Background())
//
//	collector, err := baliosotel.NewOTelMetricsCollector(provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, _ := store.New(store.Config{MetricsCollector: collector}, nil, nil)
//
// # Metrics Exposed
//
// Histograms (with automatic percentiles):
//   - balios_store_store_latency_ns: Store() operation latency in nanoseconds
//   - balios_store_load_latency_ns: Load() operation latency in nanoseconds
//
// Counters:
//   - balios_store_load_hits_total: Total number of Load hits
//   - balios_store_load_misses_total: Total number of Load misses
//   - balios_evictions_total: Total number of bounded-index LRU evictions
//   - balios_store_purged_total: Total number of entries removed by purge sweeps
//
// All metrics are thread-safe and use lock-free OTEL instruments.
//
// # Configuration
//
// Custom meter name (useful for multiple store instances):
//
//	collector, err := baliosotel.NewOTelMetricsCollector(
//	    provider,
//	    baliosotel.WithMeterName("myapp_session_store"),
//	)
package otel
