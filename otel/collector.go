// collector.go: OpenTelemetry implementation of the MetricsCollector interface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package otel

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/agilira/writebehind"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetricsCollector implements writebehind.MetricsCollector using OpenTelemetry.
//
// Thread-safety: Safe for concurrent use by multiple goroutines.
// The underlying OTEL instruments are thread-safe and lock-free.
type OTelMetricsCollector struct {
	getLatency   metric.Int64Histogram
	hits         metric.Int64Counter
	misses       metric.Int64Counter
	loadLatency  metric.Int64Histogram
	loads        metric.Int64Counter
	storeLatency metric.Int64Histogram
	storedItems  metric.Int64Counter
	erasedKeys   metric.Int64Counter
	storeErrors  metric.Int64Counter
	refreshes    metric.Int64Counter
	bundleSize   metric.Int64Histogram

	queueDepth int64 // last reported depth, read by the observable gauge

	loadFound  metric.MeasurementOption
	loadAbsent metric.MeasurementOption
	loadFailed metric.MeasurementOption
	opStore    metric.MeasurementOption
	opErase    metric.MeasurementOption
}

// Options for configuring OTelMetricsCollector.
type Options struct {
	// MeterName is the name of the OpenTelemetry meter.
	// Default: "github.com/agilira/writebehind"
	MeterName string
}

// Option is a functional option for configuring OTelMetricsCollector.
type Option func(*Options)

// WithMeterName sets a custom meter name.
// This is useful for distinguishing metrics from multiple tiers
// or integrating with existing OTEL instrumentation.
func WithMeterName(name string) Option {
	return func(o *Options) {
		o.MeterName = name
	}
}

// ErrNilMeterProvider is returned by NewOTelMetricsCollector for a nil provider.
var ErrNilMeterProvider = errors.New("meter provider cannot be nil")

// NewOTelMetricsCollector creates a new OpenTelemetry metrics collector.
//
// Instruments created:
//   - wb_get_latency_ns, wb_load_latency_ns, wb_store_latency_ns (histograms)
//   - wb_get_hits_total, wb_get_misses_total (counters)
//   - wb_loads_total with a result attribute: found, absent or failed
//   - wb_stored_entries_total, wb_erased_keys_total
//   - wb_store_errors_total with an operation attribute: store or erase
//   - wb_refreshes_total
//   - wb_bundle_size (histogram with an operation attribute)
//   - wb_queue_depth (observable gauge)
//
// Example:
//
//	exporter, _ := prometheus.New()
//	provider := metric.NewMeterProvider(metric.WithReader(exporter))
//	collector, err := NewOTelMetricsCollector(provider)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewOTelMetricsCollector(provider metric.MeterProvider, opts ...Option) (*OTelMetricsCollector, error) {
	if provider == nil {
		return nil, ErrNilMeterProvider
	}

	options := Options{
		MeterName: "github.com/agilira/writebehind",
	}
	for _, opt := range opts {
		opt(&options)
	}

	meter := provider.Meter(options.MeterName)
	c := &OTelMetricsCollector{
		loadFound:  metric.WithAttributeSet(attribute.NewSet(attribute.String("result", "found"))),
		loadAbsent: metric.WithAttributeSet(attribute.NewSet(attribute.String("result", "absent"))),
		loadFailed: metric.WithAttributeSet(attribute.NewSet(attribute.String("result", "failed"))),
		opStore:    metric.WithAttributeSet(attribute.NewSet(attribute.String("operation", writebehind.OpStore))),
		opErase:    metric.WithAttributeSet(attribute.NewSet(attribute.String("operation", writebehind.OpErase))),
	}

	var err error
	if c.getLatency, err = meter.Int64Histogram("wb_get_latency_ns",
		metric.WithDescription("Latency of tier Get operations in nanoseconds"),
		metric.WithUnit("ns")); err != nil {
		return nil, err
	}
	if c.hits, err = meter.Int64Counter("wb_get_hits_total",
		metric.WithDescription("Total number of Get calls served by the fast map")); err != nil {
		return nil, err
	}
	if c.misses, err = meter.Int64Counter("wb_get_misses_total",
		metric.WithDescription("Total number of Get calls that missed the fast map")); err != nil {
		return nil, err
	}
	if c.loadLatency, err = meter.Int64Histogram("wb_load_latency_ns",
		metric.WithDescription("Latency of backing store loads in nanoseconds"),
		metric.WithUnit("ns")); err != nil {
		return nil, err
	}
	if c.loads, err = meter.Int64Counter("wb_loads_total",
		metric.WithDescription("Total number of backing store loads by result")); err != nil {
		return nil, err
	}
	if c.storeLatency, err = meter.Int64Histogram("wb_store_latency_ns",
		metric.WithDescription("Latency of backing store writes in nanoseconds"),
		metric.WithUnit("ns")); err != nil {
		return nil, err
	}
	if c.storedItems, err = meter.Int64Counter("wb_stored_entries_total",
		metric.WithDescription("Total number of entries persisted to the backing store")); err != nil {
		return nil, err
	}
	if c.erasedKeys, err = meter.Int64Counter("wb_erased_keys_total",
		metric.WithDescription("Total number of keys erased from the backing store")); err != nil {
		return nil, err
	}
	if c.storeErrors, err = meter.Int64Counter("wb_store_errors_total",
		metric.WithDescription("Total number of failed backing store writes")); err != nil {
		return nil, err
	}
	if c.refreshes, err = meter.Int64Counter("wb_refreshes_total",
		metric.WithDescription("Total number of refresh-ahead reloads")); err != nil {
		return nil, err
	}
	if c.bundleSize, err = meter.Int64Histogram("wb_bundle_size",
		metric.WithDescription("Number of items per executed bundle")); err != nil {
		return nil, err
	}
	if _, err = meter.Int64ObservableGauge("wb_queue_depth",
		metric.WithDescription("Entries waiting in the write-behind queue"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(atomic.LoadInt64(&c.queueDepth))
			return nil
		})); err != nil {
		return nil, err
	}

	return c, nil
}

// RecordGet records a tier Get operation.
func (c *OTelMetricsCollector) RecordGet(latencyNs int64, hit bool) {
	ctx := context.Background()
	c.getLatency.Record(ctx, latencyNs)
	if hit {
		c.hits.Add(ctx, 1)
	} else {
		c.misses.Add(ctx, 1)
	}
}

// RecordLoad records a backing store load.
func (c *OTelMetricsCollector) RecordLoad(latencyNs int64, found bool, failed bool) {
	ctx := context.Background()
	c.loadLatency.Record(ctx, latencyNs)
	switch {
	case failed:
		c.loads.Add(ctx, 1, c.loadFailed)
	case found:
		c.loads.Add(ctx, 1, c.loadFound)
	default:
		c.loads.Add(ctx, 1, c.loadAbsent)
	}
}

// RecordStore records a store call persisting batch entries.
func (c *OTelMetricsCollector) RecordStore(batch int, latencyNs int64, failed bool) {
	ctx := context.Background()
	c.storeLatency.Record(ctx, latencyNs, c.opStore)
	if failed {
		c.storeErrors.Add(ctx, 1, c.opStore)
		return
	}
	c.storedItems.Add(ctx, int64(batch))
}

// RecordErase records an erase call removing batch keys.
func (c *OTelMetricsCollector) RecordErase(batch int, latencyNs int64, failed bool) {
	ctx := context.Background()
	c.storeLatency.Record(ctx, latencyNs, c.opErase)
	if failed {
		c.storeErrors.Add(ctx, 1, c.opErase)
		return
	}
	c.erasedKeys.Add(ctx, int64(batch))
}

// RecordRefresh records a refresh-ahead reload.
func (c *OTelMetricsCollector) RecordRefresh() {
	c.refreshes.Add(context.Background(), 1)
}

// RecordBundle records an executed bundle.
func (c *OTelMetricsCollector) RecordBundle(operation string, size int) {
	c.bundleSize.Record(context.Background(), int64(size),
		metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordQueueDepth records the write-behind queue depth. The value is
// exported on the next collection.
func (c *OTelMetricsCollector) RecordQueueDepth(depth int) {
	atomic.StoreInt64(&c.queueDepth, int64(depth))
}

var _ writebehind.MetricsCollector = (*OTelMetricsCollector)(nil)
