// interfaces.go: public interfaces for the write-behind tier
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import "context"

// Entry is a fast map entry as seen by the tier.
// Timestamps are nanoseconds as returned by the configured TimeProvider.
type Entry[V any] struct {
	// Value is the cached value.
	Value V

	// LastUpdate is the time of the last Put for this key.
	LastUpdate int64

	// ExpireAt is the hard expiration time (0 = never expires).
	ExpireAt int64
}

// FastMap is the capacity-managed in-memory map in front of the store.
// All methods must be safe for concurrent use and atomic per key.
type FastMap[K comparable, V any] interface {
	// Get returns the live entry for key. Expired entries are reported as absent.
	Get(key K) (Entry[V], bool)

	// Put stores value under key and stamps LastUpdate.
	Put(key K, value V)

	// Remove deletes key and reports whether it was present.
	Remove(key K) bool

	// ContainsKey reports whether key has a live entry.
	ContainsKey(key K) bool

	// Len returns the number of entries.
	Len() int
}

// ConditionalPutter is an optional FastMap capability used by the load and
// refresh-ahead paths to avoid overwriting a value that changed while a
// store call was in flight.
type ConditionalPutter[K comparable, V any] interface {
	// PutIfAbsent stores value only if key has no live entry.
	// Returns true if the value was stored.
	PutIfAbsent(key K, value V) bool

	// PutIfUnchanged stores value only if the entry for key still carries
	// the given LastUpdate stamp. Returns true if the value was stored.
	PutIfUnchanged(key K, lastUpdate int64, value V) bool

	// RemoveIfUnchanged removes key only if its LastUpdate equals lastUpdate.
	RemoveIfUnchanged(key K, lastUpdate int64) bool
}

// Pair is a key/value pair handed to bulk store operations.
// Slices of Pair preserve enqueue order.
type Pair[K comparable, V any] struct {
	Key   K
	Value V
}

// CacheLoader is the read side of a backing store.
type CacheLoader[K comparable, V any] interface {
	// Load returns the stored value for key, or found=false if the store has none.
	Load(ctx context.Context, key K) (value V, found bool, err error)
}

// CacheStore is a read/write backing store with single-item operations.
type CacheStore[K comparable, V any] interface {
	CacheLoader[K, V]

	// Store persists value under key.
	Store(ctx context.Context, key K, value V) error

	// Erase removes key from the store. Erasing a missing key is not an error.
	Erase(ctx context.Context, key K) error
}

// BulkLoader is an optional capability of a CacheLoader.
// Keys absent from the returned map are treated as not found.
type BulkLoader[K comparable, V any] interface {
	LoadAll(ctx context.Context, keys []K) (map[K]V, error)
}

// BulkStorer is an optional capability of a CacheStore.
// Returning errors.ErrUnsupported permanently switches the tier to Store.
type BulkStorer[K comparable, V any] interface {
	StoreAll(ctx context.Context, entries []Pair[K, V]) error
}

// BulkEraser is an optional capability of a CacheStore.
// Returning errors.ErrUnsupported permanently switches the tier to Erase.
type BulkEraser[K comparable] interface {
	EraseAll(ctx context.Context, keys []K) error
}

// Logger defines a minimal logging interface with zero overhead.
// Implementations should use structured logging and be allocation-free.
type Logger interface {
	// Debug logs a debug message with optional key-value pairs.
	Debug(msg string, keyvals ...interface{})

	// Info logs an info message with optional key-value pairs.
	Info(msg string, keyvals ...interface{})

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, keyvals ...interface{})

	// Error logs an error message with optional key-value pairs.
	Error(msg string, keyvals ...interface{})
}

// NoOpLogger is a logger that does nothing. Used as default to avoid nil checks.
type NoOpLogger struct{}

// Debug does nothing (no-op implementation).
func (NoOpLogger) Debug(msg string, keyvals ...interface{}) {}

// Info does nothing (no-op implementation).
func (NoOpLogger) Info(msg string, keyvals ...interface{}) {}

// Warn does nothing (no-op implementation).
func (NoOpLogger) Warn(msg string, keyvals ...interface{}) {}

// Error does nothing (no-op implementation).
func (NoOpLogger) Error(msg string, keyvals ...interface{}) {}

// TimeProvider provides current time with caching for performance.
type TimeProvider interface {
	// Now returns the current time in nanoseconds since epoch.
	Now() int64
}

// MetricsCollector receives tier and bundler events.
// Implementations can send metrics to Prometheus, OpenTelemetry or other
// monitoring systems. All methods must be safe for concurrent use and cheap:
// several of them run on the caller's hot path.
type MetricsCollector interface {
	// RecordGet records a tier Get with its latency and hit/miss result.
	RecordGet(latencyNs int64, hit bool)

	// RecordLoad records a backing store load.
	RecordLoad(latencyNs int64, found bool, failed bool)

	// RecordStore records a store call persisting batch entries.
	RecordStore(batch int, latencyNs int64, failed bool)

	// RecordErase records an erase call removing batch keys.
	RecordErase(batch int, latencyNs int64, failed bool)

	// RecordRefresh records a scheduled refresh-ahead reload.
	RecordRefresh()

	// RecordBundle records an executed bundle of the given operation.
	RecordBundle(operation string, size int)

	// RecordQueueDepth records the write-behind queue depth after a change.
	RecordQueueDepth(depth int)
}

// NoOpMetricsCollector is a metrics collector that does nothing.
type NoOpMetricsCollector struct{}

// RecordGet does nothing.
func (NoOpMetricsCollector) RecordGet(latencyNs int64, hit bool) {}

// RecordLoad does nothing.
func (NoOpMetricsCollector) RecordLoad(latencyNs int64, found bool, failed bool) {}

// RecordStore does nothing.
func (NoOpMetricsCollector) RecordStore(batch int, latencyNs int64, failed bool) {}

// RecordErase does nothing.
func (NoOpMetricsCollector) RecordErase(batch int, latencyNs int64, failed bool) {}

// RecordRefresh does nothing.
func (NoOpMetricsCollector) RecordRefresh() {}

// RecordBundle does nothing.
func (NoOpMetricsCollector) RecordBundle(operation string, size int) {}

// RecordQueueDepth does nothing.
func (NoOpMetricsCollector) RecordQueueDepth(depth int) {}

// Tunable is implemented by components whose runtime parameters can be
// changed without reconstruction (see HotConfig).
type Tunable interface {
	ApplyTuning(t Tuning)
}
