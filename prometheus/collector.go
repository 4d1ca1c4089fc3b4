// collector.go: Prometheus implementation of the MetricsCollector interface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

// Package prometheus exports write-behind tier metrics through
// github.com/prometheus/client_golang.
package prometheus

import (
	"time"

	"github.com/agilira/writebehind"
	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "writebehind"

// MetricsCollector implements writebehind.MetricsCollector with Prometheus
// collectors. All methods are nil-safe: calls on a nil *MetricsCollector
// are no-ops.
type MetricsCollector struct {
	getTotal      *prom.CounterVec
	getDuration   prom.Histogram
	loadTotal     *prom.CounterVec
	loadDuration  prom.Histogram
	storeEntries  *prom.CounterVec
	storeErrors   *prom.CounterVec
	storeDuration *prom.HistogramVec
	refreshTotal  prom.Counter
	bundleSize    *prom.HistogramVec
	queueDepth    prom.Gauge
}

// NewMetricsCollector creates and registers tier metrics with reg. If reg is
// nil, metrics are created but not registered.
//
// Collectors that are already registered (for example by a previous tier
// on the same registry) are reused.
func NewMetricsCollector(reg prom.Registerer) *MetricsCollector {
	m := &MetricsCollector{
		getTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "get_total",
			Help:      "Total number of tier Get calls by result",
		}, []string{"result"}),
		getDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "get_duration_seconds",
			Help:      "Latency of tier Get calls",
			Buckets:   prom.ExponentialBuckets(1e-7, 4, 12),
		}),
		loadTotal: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "store_loads_total",
			Help:      "Total number of backing store loads by result",
		}, []string{"result"}),
		loadDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "store_load_duration_seconds",
			Help:      "Latency of backing store loads",
			Buckets:   prom.DefBuckets,
		}),
		storeEntries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "store_entries_total",
			Help:      "Total number of entries written or erased in the backing store",
		}, []string{"operation"}),
		storeErrors: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total number of failed backing store writes",
		}, []string{"operation"}),
		storeDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "store_write_duration_seconds",
			Help:      "Latency of backing store writes",
			Buckets:   prom.DefBuckets,
		}, []string{"operation"}),
		refreshTotal: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Total number of refresh-ahead reloads",
		}),
		bundleSize: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "bundle_size",
			Help:      "Number of items per executed bundle",
			Buckets:   prom.ExponentialBuckets(1, 2, 11),
		}, []string{"operation"}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Entries waiting in the write-behind queue",
		}),
	}

	if reg != nil {
		m.getTotal = registerOrReuse(reg, m.getTotal).(*prom.CounterVec)
		m.getDuration = registerOrReuse(reg, m.getDuration).(prom.Histogram)
		m.loadTotal = registerOrReuse(reg, m.loadTotal).(*prom.CounterVec)
		m.loadDuration = registerOrReuse(reg, m.loadDuration).(prom.Histogram)
		m.storeEntries = registerOrReuse(reg, m.storeEntries).(*prom.CounterVec)
		m.storeErrors = registerOrReuse(reg, m.storeErrors).(*prom.CounterVec)
		m.storeDuration = registerOrReuse(reg, m.storeDuration).(*prom.HistogramVec)
		m.refreshTotal = registerOrReuse(reg, m.refreshTotal).(prom.Counter)
		m.bundleSize = registerOrReuse(reg, m.bundleSize).(*prom.HistogramVec)
		m.queueDepth = registerOrReuse(reg, m.queueDepth).(prom.Gauge)
	}

	return m
}

// registerOrReuse registers c with reg, returning the already registered
// collector on conflict. Panics on any other registration failure.
func registerOrReuse(reg prom.Registerer, c prom.Collector) prom.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prom.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func seconds(ns int64) float64 {
	return time.Duration(ns).Seconds()
}

// RecordGet records a tier Get.
func (m *MetricsCollector) RecordGet(latencyNs int64, hit bool) {
	if m == nil {
		return
	}
	m.getDuration.Observe(seconds(latencyNs))
	if hit {
		m.getTotal.WithLabelValues("hit").Inc()
	} else {
		m.getTotal.WithLabelValues("miss").Inc()
	}
}

// RecordLoad records a backing store load.
func (m *MetricsCollector) RecordLoad(latencyNs int64, found bool, failed bool) {
	if m == nil {
		return
	}
	m.loadDuration.Observe(seconds(latencyNs))
	switch {
	case failed:
		m.loadTotal.WithLabelValues("failed").Inc()
	case found:
		m.loadTotal.WithLabelValues("found").Inc()
	default:
		m.loadTotal.WithLabelValues("absent").Inc()
	}
}

func (m *MetricsCollector) recordWrite(op string, batch int, latencyNs int64, failed bool) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(op).Observe(seconds(latencyNs))
	if failed {
		m.storeErrors.WithLabelValues(op).Inc()
		return
	}
	m.storeEntries.WithLabelValues(op).Add(float64(batch))
}

// RecordStore records a store call persisting batch entries.
func (m *MetricsCollector) RecordStore(batch int, latencyNs int64, failed bool) {
	m.recordWrite(writebehind.OpStore, batch, latencyNs, failed)
}

// RecordErase records an erase call removing batch keys.
func (m *MetricsCollector) RecordErase(batch int, latencyNs int64, failed bool) {
	m.recordWrite(writebehind.OpErase, batch, latencyNs, failed)
}

// RecordRefresh records a refresh-ahead reload.
func (m *MetricsCollector) RecordRefresh() {
	if m == nil {
		return
	}
	m.refreshTotal.Inc()
}

// RecordBundle records an executed bundle.
func (m *MetricsCollector) RecordBundle(operation string, size int) {
	if m == nil {
		return
	}
	m.bundleSize.WithLabelValues(operation).Observe(float64(size))
}

// RecordQueueDepth sets the write-behind queue depth gauge.
func (m *MetricsCollector) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

var _ writebehind.MetricsCollector = (*MetricsCollector)(nil)
