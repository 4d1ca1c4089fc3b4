// hot-reload.go: dynamic tuning with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// HotConfig watches a configuration file with Argus and applies the runtime
// parameters it finds to a Tunable (a Tier or a PartitionedTier).
type HotConfig struct {
	target  Tunable
	watcher *argus.Watcher
	logger  Logger
	mu      sync.RWMutex
	config  Config

	// OnReload is called after configuration is successfully reloaded.
	// This callback is optional and must be fast and non-blocking.
	OnReload func(oldConfig, newConfig Config)
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch.
	// Supports JSON, YAML, TOML, HCL, INI, Properties formats.
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after configuration is successfully reloaded.
	OnReload func(oldConfig, newConfig Config)

	// Logger for hot reload operations.
	// If nil, NoOpLogger is used.
	Logger Logger
}

// NewHotConfig creates a hot-reloadable configuration for target.
// It starts watching the configuration file immediately.
//
// Example configuration file (YAML):
//
//	writebehind:
//	  refresh_ahead_factor: 0.5
//	  write_batch_factor: 0.25
//	  write_max_batch_size: 256
//	  write_requeue_threshold: 10000
//	  bundle_preferred_size: 64
//	  bundle_delay: "2ms"
//	  bundle_auto_adjust: true
//
// Applied live:
//   - refresh_ahead_factor (float 0.0-1.0)
//   - write_batch_factor (float 0.0-1.0)
//   - write_max_batch_size (int > 0)
//   - write_requeue_threshold (int >= 0)
//   - bundle_preferred_size (int > 1), bundle_delay (duration),
//     bundle_auto_adjust (bool), applied to every bundler
//
// Reported in the parsed Config but not applied, since they require the
// tier to be rebuilt: write_delay, cache_store_timeout, read_only,
// rollback_on_failure.
func NewHotConfig(target Tunable, opts HotConfigOptions) (*HotConfig, error) {
	if target == nil {
		return nil, NewErrInvalidConfig("target", nil, "non-nil Tunable")
	}
	if opts.ConfigPath == "" {
		return nil, NewErrInvalidConfig("ConfigPath", opts.ConfigPath, "non-empty path")
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 1 * time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}

	hc := &HotConfig{
		target:   target,
		logger:   opts.Logger,
		OnReload: opts.OnReload,
		config:   DefaultConfig(),
	}

	argusConfig := argus.Config{
		PollInterval: opts.PollInterval,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argusConfig)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", opts.ConfigPath, err)
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// GetConfig returns the last parsed configuration (thread-safe).
func (hc *HotConfig) GetConfig() Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.config
}

// handleConfigChange is called by Argus when configuration changes.
func (hc *HotConfig) handleConfigChange(configData map[string]interface{}) {
	newConfig, tuning := hc.parseConfig(configData)

	hc.mu.Lock()
	oldConfig := hc.config
	hc.config = newConfig
	hc.mu.Unlock()

	hc.applyChanges(oldConfig, newConfig, tuning)

	if hc.OnReload != nil {
		hc.OnReload(oldConfig, newConfig)
	}
}

// parseIntInRange extracts an integer within [min, max].
// Supports both int and float64 types (YAML/JSON may vary).
func parseIntInRange(value interface{}, min, max int) (int, bool) {
	switch v := value.(type) {
	case int:
		if v >= min && v <= max {
			return v, true
		}
	case float64:
		if v >= float64(min) && v <= float64(max) && v == math.Trunc(v) {
			return int(v), true
		}
	}
	return 0, false
}

// parseFloatInRange extracts a float64 within [min, max].
func parseFloatInRange(value interface{}, min, max float64) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	default:
		return 0, false
	}
	if f < min || f > max {
		return 0, false
	}
	return f, true
}

// parseDuration extracts a time.Duration from a string value.
func parseDuration(value interface{}) (time.Duration, bool) {
	if str, ok := value.(string); ok {
		if d, err := time.ParseDuration(str); err == nil && d >= 0 {
			return d, true
		}
	}
	return 0, false
}

func parseBool(value interface{}) (bool, bool) {
	b, ok := value.(bool)
	return b, ok
}

// parseConfig extracts the writebehind section from Argus config data. The
// returned Tuning holds only the valid runtime keys present in the file.
func (hc *HotConfig) parseConfig(data map[string]interface{}) (Config, Tuning) {
	config := DefaultConfig()
	var tuning Tuning

	section, ok := data["writebehind"].(map[string]interface{})
	if !ok {
		_, hasDelay := data["write_delay"]
		_, hasRefresh := data["refresh_ahead_factor"]
		if !hasDelay && !hasRefresh {
			return config, tuning
		}
		section = data
	}

	if d, ok := parseDuration(section["write_delay"]); ok {
		config.WriteDelay = d
	}
	if d, ok := parseDuration(section["cache_store_timeout"]); ok {
		config.CacheStoreTimeout = d
	}
	if b, ok := parseBool(section["read_only"]); ok {
		config.ReadOnly = b
	}
	if b, ok := parseBool(section["rollback_on_failure"]); ok {
		config.RollbackOnFailure = b
	}

	if f, ok := parseFloatInRange(section["refresh_ahead_factor"], 0, 1); ok {
		config.RefreshAheadFactor = f
		tuning.RefreshAheadFactor = &f
	}
	if f, ok := parseFloatInRange(section["write_batch_factor"], 0, 1); ok {
		config.WriteBatchFactor = f
		tuning.WriteBatchFactor = &f
	}
	if n, ok := parseIntInRange(section["write_max_batch_size"], 1, math.MaxInt32); ok {
		config.WriteMaxBatchSize = n
		tuning.WriteMaxBatchSize = &n
	}
	if n, ok := parseIntInRange(section["write_requeue_threshold"], 0, math.MaxInt32); ok {
		config.WriteRequeueThreshold = n
		tuning.WriteRequeueThreshold = &n
	}

	var bundle BundlerConfig
	if n, ok := parseIntInRange(section["bundle_preferred_size"], 2, math.MaxInt32); ok {
		bundle.PreferredSize = n
		tuning.BundlePreferredSize = &n
	}
	if d, ok := parseDuration(section["bundle_delay"]); ok && d > 0 {
		bundle.Delay = d
		tuning.BundleDelay = &d
	}
	if b, ok := parseBool(section["bundle_auto_adjust"]); ok {
		bundle.AutoAdjust = &b
		tuning.BundleAutoAdjust = &b
	}
	if tuning.BundlePreferredSize != nil || tuning.BundleDelay != nil || tuning.BundleAutoAdjust != nil {
		bundle.Operation = OpAll
		config.Bundlers = []BundlerConfig{bundle}
	}

	return config, tuning
}

// applyChanges pushes the runtime parameters to the target and reports
// structural changes that need a rebuild.
func (hc *HotConfig) applyChanges(old, new Config, tuning Tuning) {
	hc.target.ApplyTuning(tuning)

	if old.WriteDelay != new.WriteDelay ||
		old.CacheStoreTimeout != new.CacheStoreTimeout ||
		old.ReadOnly != new.ReadOnly ||
		old.RollbackOnFailure != new.RollbackOnFailure {
		hc.logger.Info("structural settings changed, rebuild the tier to apply them",
			"write_delay", new.WriteDelay,
			"cache_store_timeout", new.CacheStoreTimeout,
			"read_only", new.ReadOnly,
			"rollback_on_failure", new.RollbackOnFailure)
	}
}
