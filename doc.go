// Package writebehind provides the runtime core of a write-behind caching tier.
//
// # Overview
//
// A Tier sits between a fast in-memory map and a slow persistent store.
// Reads are served from the map and fall back to the store. Writes land in
// the map first and are persisted either synchronously (write-through) or
// later in batches (write-behind). A Bundler coalesces concurrent
// single-item calls into bulk calls; the Tier uses it for store traffic and
// it can be used on its own in front of any remote cache client.
//
// # Quick Start
//
//	fast := writebehind.NewLocalMap[string, User](writebehind.LocalMapConfig{
//	    MaxSize: 10_000,
//	    TTL:     time.Hour,
//	})
//	tier, err := writebehind.New[string, User](writebehind.Config{
//	    WriteDelay:         5 * time.Second,
//	    WriteBatchFactor:   0.25,
//	    RefreshAheadFactor: 0.5,
//	}, fast, userStore)
//	if err != nil {
//	    return err
//	}
//	defer tier.Close()
//
//	_ = tier.Put(ctx, "user:1", user)
//	u, found, err := tier.Get(ctx, "user:1")
//
// # Backing Stores
//
// A store implements CacheLoader (read-only) or CacheStore (read/write).
// BulkLoader, BulkStorer and BulkEraser are optional capabilities detected
// at construction. A bulk method returning errors.ErrUnsupported switches
// the tier to the single-item method for good.
//
// The stores/badgerstore package provides a BadgerDB backed CacheStore.
//
// # Write Modes
//
// With WriteDelay zero every Put and Remove calls the store before
// returning. With RollbackOnFailure a failed call restores the previous map
// state and returns the error; without it the failure is logged.
//
// With WriteDelay > 0 mutations are queued and a background worker persists
// them once ripe. Rewrites of a queued key coalesce into a single store
// call carrying the last value, and a queued key keeps its original ripe
// time. WriteBatchFactor lets entries that are close to ripe ride along with
// a ripe batch. Failed batches are requeued (RollbackOnFailure) or handed to
// OnDeadLetter. MaxStoreTimeouts consecutive timeouts stop the worker and
// every later mutation fails with WB_DRAIN_STOPPED.
//
// Reads always see pending writes, even after the map evicted the entry.
//
// # Refresh-Ahead
//
// With RefreshAheadFactor f > 0 an entry older than f*TTL is returned as is
// and reloaded in the background. Concurrent readers trigger one reload. A
// reload never overwrites a newer write.
//
// # Miss Cache
//
// Keys the store reported absent are remembered in a bounded miss cache so
// repeated lookups do not reach the store. A write to the key clears the
// record.
//
// # Partitioning
//
// PartitionedTier spreads keys over N independent tiers, each with its own
// queue and drain worker, so one slow partition does not delay the others.
//
// # Hot Reload
//
// HotConfig watches a configuration file through argus and applies the
// tunable subset (refresh factor, batch factor, batch size, bundler sizing)
// to a running Tier or PartitionedTier.
//
// # Observability
//
// MetricsCollector receives tier events. The otel and prometheus
// subpackages provide collectors for OpenTelemetry and Prometheus.
// Logging goes through the Logger interface; SlogLogger adapts log/slog.
//
// # Errors
//
// Errors are go-errors values with stable codes (WB_*), a context map and a
// retryable flag. Use the Is* helpers, GetErrorCode and GetErrorContext to
// inspect them. Store failures keep their cause for errors.Is.
//
// # Examples
//
//   - examples/otel-prometheus/: write-behind tier over BadgerDB with OpenTelemetry metrics
//   - examples/errors/: error handling patterns
//
// # Packages
//
//   - github.com/agilira/writebehind: tier, bundler, local map
//   - github.com/agilira/writebehind/otel: OpenTelemetry collector
//   - github.com/agilira/writebehind/prometheus: Prometheus collector
//   - github.com/agilira/writebehind/stores/badgerstore: BadgerDB store
package writebehind
