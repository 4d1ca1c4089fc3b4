// config.go: configuration for the write-behind tier
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"time"

	"github.com/agilira/go-timecache"
)

// Bundled operation names accepted by BundlerConfig.Operation.
const (
	OpGet    = "get"
	OpPut    = "put"
	OpRemove = "remove"
	OpLoad   = "load"
	OpStore  = "store"
	OpErase  = "erase"
	OpAll    = "all"
)

// BundlerConfig configures one bundling point.
type BundlerConfig struct {
	// Operation is one of get, put, remove (cache-facing), load, store, erase
	// (store-facing) or all. "all" applies to every operation without an
	// explicit block.
	Operation string

	// PreferredSize is the number of items that closes a bundle early.
	// Default: DefaultBundlePreferredSize.
	PreferredSize int

	// ThreadThreshold is the number of concurrent callers at which the
	// bundler stops passing calls through. Default: DefaultBundleThreadThreshold.
	ThreadThreshold int

	// Delay is the collection window measured from the first item of a bundle.
	// Default: DefaultBundleDelay.
	Delay time.Duration

	// AutoAdjust lets the bundler tune PreferredSize from observed throughput.
	// A nil pointer means enabled.
	AutoAdjust *bool
}

func (b *BundlerConfig) autoAdjust() bool {
	return b.AutoAdjust == nil || *b.AutoAdjust
}

// Config holds configuration parameters for a Tier.
type Config struct {
	// WriteDelay is how long a mutation stays queued before it is ripe.
	// Zero selects write-through.
	WriteDelay time.Duration

	// WriteDelaySeconds is honoured when WriteDelay is zero.
	WriteDelaySeconds int

	// WriteBatchFactor in [0,1] moves the soft-ripe point WriteDelay*factor
	// ahead of the ripe point. Default: 0 (no soft-ripe batching).
	WriteBatchFactor float64

	// WriteMaxBatchSize bounds the entries handed to one store call.
	// Default: DefaultWriteMaxBatchSize.
	WriteMaxBatchSize int

	// WriteRequeueThreshold makes the queue log a warning every time its
	// depth crosses a multiple of the threshold. 0 disables the warning.
	// It never limits the queue.
	WriteRequeueThreshold int

	// WriteRequeueDelay postpones a requeued entry after a failed store.
	// Default: 0, the entry is retried on the next drain cycle.
	WriteRequeueDelay time.Duration

	// RefreshAheadFactor in [0,1]. 0 disables refresh-ahead.
	RefreshAheadFactor float64

	// RefreshWorkers is the size of the refresh-ahead executor.
	// Default: DefaultRefreshWorkers.
	RefreshWorkers int

	// RefreshTimeout bounds a single refresh-ahead reload.
	// Default: CacheStoreTimeout, or DefaultRefreshTimeout if that is zero.
	RefreshTimeout time.Duration

	// ReadOnly rejects Put and Remove.
	ReadOnly bool

	// RollbackOnFailure surfaces store failures: write-through callers get
	// the error (and the fast map is restored), write-behind entries stay
	// queued. When false failures are logged and the store goes stale.
	RollbackOnFailure bool

	// CacheStoreTimeout bounds each store call. 0 means no timeout.
	CacheStoreTimeout time.Duration

	// MaxStoreTimeouts is the number of consecutive timeouts that stops the
	// drain worker. Default: DefaultMaxStoreTimeouts.
	MaxStoreTimeouts int

	// MissCacheSize is the capacity of the miss cache.
	// Default: DefaultMissCacheSize.
	MissCacheSize int

	// MissCacheTTL expires miss records. 0 keeps them until evicted or invalidated.
	MissCacheTTL time.Duration

	// DisableMissCache turns the miss cache off.
	DisableMissCache bool

	// Bundlers configures optional bundling points.
	Bundlers []BundlerConfig

	// Logger is used for debugging and monitoring.
	// If nil, NoOpLogger is used.
	Logger Logger

	// TimeProvider provides current time for ripe and expiry calculations.
	// If nil, a go-timecache backed provider is used.
	TimeProvider TimeProvider

	// MetricsCollector receives tier events.
	// If nil, NoOpMetricsCollector is used.
	MetricsCollector MetricsCollector

	// OnDeadLetter receives write-behind entries dropped after a store
	// failure when RollbackOnFailure is false. Must be fast and non-blocking.
	OnDeadLetter func(key, value interface{}, tombstone bool, err error)

	// OnFatal is called once when the drain worker stops.
	OnFatal func(err error)
}

// Validate checks configuration parameters and applies defaults.
//
// Zero values are replaced by defaults; out-of-range values return a
// WB_INVALID_CONFIG error. New calls it, so callers rarely need to.
//
// Default values applied:
//   - WriteDelay: WriteDelaySeconds seconds if zero
//   - WriteMaxBatchSize: DefaultWriteMaxBatchSize if 0
//   - MaxStoreTimeouts: DefaultMaxStoreTimeouts if 0
//   - RefreshWorkers: DefaultRefreshWorkers if 0
//   - RefreshTimeout: CacheStoreTimeout or DefaultRefreshTimeout if 0
//   - MissCacheSize: DefaultMissCacheSize if 0
//   - bundler PreferredSize, ThreadThreshold, Delay: package defaults if 0
//   - Logger, TimeProvider, MetricsCollector: no-op / timecache if nil
func (c *Config) Validate() error {
	if c.WriteDelay < 0 {
		return NewErrInvalidConfig("WriteDelay", c.WriteDelay, ">= 0")
	}
	if c.WriteDelaySeconds < 0 {
		return NewErrInvalidConfig("WriteDelaySeconds", c.WriteDelaySeconds, ">= 0")
	}
	if c.WriteDelay == 0 && c.WriteDelaySeconds > 0 {
		c.WriteDelay = time.Duration(c.WriteDelaySeconds) * time.Second
	}

	if c.WriteBatchFactor < 0 || c.WriteBatchFactor > 1 {
		return NewErrInvalidConfig("WriteBatchFactor", c.WriteBatchFactor, "0.0-1.0")
	}
	if c.RefreshAheadFactor < 0 || c.RefreshAheadFactor > 1 {
		return NewErrInvalidConfig("RefreshAheadFactor", c.RefreshAheadFactor, "0.0-1.0")
	}

	switch {
	case c.WriteMaxBatchSize < 0:
		return NewErrInvalidConfig("WriteMaxBatchSize", c.WriteMaxBatchSize, "> 0")
	case c.WriteMaxBatchSize == 0:
		c.WriteMaxBatchSize = DefaultWriteMaxBatchSize
	}

	if c.WriteRequeueThreshold < 0 {
		return NewErrInvalidConfig("WriteRequeueThreshold", c.WriteRequeueThreshold, ">= 0")
	}
	if c.WriteRequeueDelay < 0 {
		return NewErrInvalidConfig("WriteRequeueDelay", c.WriteRequeueDelay, ">= 0")
	}
	if c.CacheStoreTimeout < 0 {
		return NewErrInvalidConfig("CacheStoreTimeout", c.CacheStoreTimeout, ">= 0")
	}

	switch {
	case c.MaxStoreTimeouts < 0:
		return NewErrInvalidConfig("MaxStoreTimeouts", c.MaxStoreTimeouts, "> 0")
	case c.MaxStoreTimeouts == 0:
		c.MaxStoreTimeouts = DefaultMaxStoreTimeouts
	}

	switch {
	case c.RefreshWorkers < 0:
		return NewErrInvalidConfig("RefreshWorkers", c.RefreshWorkers, "> 0")
	case c.RefreshWorkers == 0:
		c.RefreshWorkers = DefaultRefreshWorkers
	}

	switch {
	case c.RefreshTimeout < 0:
		return NewErrInvalidConfig("RefreshTimeout", c.RefreshTimeout, ">= 0")
	case c.RefreshTimeout == 0 && c.CacheStoreTimeout > 0:
		c.RefreshTimeout = c.CacheStoreTimeout
	case c.RefreshTimeout == 0:
		c.RefreshTimeout = DefaultRefreshTimeout
	}

	switch {
	case c.MissCacheSize < 0:
		return NewErrInvalidConfig("MissCacheSize", c.MissCacheSize, "> 0")
	case c.MissCacheSize == 0:
		c.MissCacheSize = DefaultMissCacheSize
	}
	if c.MissCacheTTL < 0 {
		return NewErrInvalidConfig("MissCacheTTL", c.MissCacheTTL, ">= 0")
	}

	for i := range c.Bundlers {
		if err := c.Bundlers[i].validate(); err != nil {
			return err
		}
	}

	if c.Logger == nil {
		c.Logger = NoOpLogger{}
	}

	if c.TimeProvider == nil {
		c.TimeProvider = &systemTimeProvider{}
	}

	if c.MetricsCollector == nil {
		c.MetricsCollector = NoOpMetricsCollector{}
	}

	return nil
}

func (b *BundlerConfig) validate() error {
	switch b.Operation {
	case OpGet, OpPut, OpRemove, OpLoad, OpStore, OpErase, OpAll:
	default:
		return NewErrInvalidConfig("Bundlers.Operation", b.Operation, "get|put|remove|load|store|erase|all")
	}

	switch {
	case b.PreferredSize < 0:
		return NewErrInvalidConfig("Bundlers.PreferredSize", b.PreferredSize, "> 0")
	case b.PreferredSize == 0:
		b.PreferredSize = DefaultBundlePreferredSize
	}

	switch {
	case b.ThreadThreshold < 0:
		return NewErrInvalidConfig("Bundlers.ThreadThreshold", b.ThreadThreshold, "> 0")
	case b.ThreadThreshold == 0:
		b.ThreadThreshold = DefaultBundleThreadThreshold
	}

	switch {
	case b.Delay < 0:
		return NewErrInvalidConfig("Bundlers.Delay", b.Delay, "> 0")
	case b.Delay == 0:
		b.Delay = DefaultBundleDelay
	}
	return nil
}

// bundlerFor resolves the bundling block for op. An explicit block wins over "all".
func (c *Config) bundlerFor(op string) (BundlerConfig, bool) {
	var all *BundlerConfig
	for i := range c.Bundlers {
		switch c.Bundlers[i].Operation {
		case op:
			return c.Bundlers[i], true
		case OpAll:
			all = &c.Bundlers[i]
		}
	}
	if all == nil {
		return BundlerConfig{}, false
	}
	b := *all
	b.Operation = op
	return b, true
}

// writeBehind reports whether mutations are queued rather than written through.
func (c *Config) writeBehind() bool {
	return c.WriteDelay > 0
}

// DefaultConfig returns a write-through configuration with defaults applied.
func DefaultConfig() Config {
	return Config{
		WriteMaxBatchSize: DefaultWriteMaxBatchSize,
		MaxStoreTimeouts:  DefaultMaxStoreTimeouts,
		RefreshWorkers:    DefaultRefreshWorkers,
		RefreshTimeout:    DefaultRefreshTimeout,
		MissCacheSize:     DefaultMissCacheSize,
		Logger:            NoOpLogger{},
		TimeProvider:      &systemTimeProvider{},
		MetricsCollector:  NoOpMetricsCollector{},
	}
}

// Tuning carries the parameters that can change on a running tier.
// Nil fields are left untouched.
type Tuning struct {
	RefreshAheadFactor    *float64
	WriteBatchFactor      *float64
	WriteMaxBatchSize     *int
	WriteRequeueThreshold *int

	// BundlePreferredSize, BundleDelay and BundleAutoAdjust apply to every
	// bundler of the tier.
	BundlePreferredSize *int
	BundleDelay         *time.Duration
	BundleAutoAdjust    *bool
}

// systemTimeProvider is the default time provider using go-timecache.
type systemTimeProvider struct{}

func (t *systemTimeProvider) Now() int64 {
	return timecache.CachedTimeNano()
}
