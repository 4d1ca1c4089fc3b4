// config_test.go: tests for configuration validation and defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"testing"
	"time"
)

func TestConfig_ValidateDefaults(t *testing.T) {
	cfg := Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.WriteMaxBatchSize != DefaultWriteMaxBatchSize {
		t.Errorf("WriteMaxBatchSize = %d, want %d", cfg.WriteMaxBatchSize, DefaultWriteMaxBatchSize)
	}
	if cfg.MaxStoreTimeouts != DefaultMaxStoreTimeouts {
		t.Errorf("MaxStoreTimeouts = %d, want %d", cfg.MaxStoreTimeouts, DefaultMaxStoreTimeouts)
	}
	if cfg.RefreshWorkers != DefaultRefreshWorkers {
		t.Errorf("RefreshWorkers = %d, want %d", cfg.RefreshWorkers, DefaultRefreshWorkers)
	}
	if cfg.RefreshTimeout != DefaultRefreshTimeout {
		t.Errorf("RefreshTimeout = %v, want %v", cfg.RefreshTimeout, DefaultRefreshTimeout)
	}
	if cfg.MissCacheSize != DefaultMissCacheSize {
		t.Errorf("MissCacheSize = %d, want %d", cfg.MissCacheSize, DefaultMissCacheSize)
	}
	if cfg.Logger == nil || cfg.TimeProvider == nil || cfg.MetricsCollector == nil {
		t.Error("Validate should fill Logger, TimeProvider and MetricsCollector")
	}
	if cfg.writeBehind() {
		t.Error("zero WriteDelay should select write-through")
	}
}

func TestConfig_WriteDelaySeconds(t *testing.T) {
	cfg := Config{WriteDelaySeconds: 3}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.WriteDelay != 3*time.Second {
		t.Errorf("WriteDelay = %v, want 3s", cfg.WriteDelay)
	}

	// An explicit WriteDelay wins.
	cfg = Config{WriteDelay: time.Second, WriteDelaySeconds: 9}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.WriteDelay != time.Second {
		t.Errorf("WriteDelay = %v, want 1s", cfg.WriteDelay)
	}
}

func TestConfig_RefreshTimeoutFollowsStoreTimeout(t *testing.T) {
	cfg := Config{CacheStoreTimeout: 200 * time.Millisecond}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cfg.RefreshTimeout != 200*time.Millisecond {
		t.Errorf("RefreshTimeout = %v, want 200ms", cfg.RefreshTimeout)
	}
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"negative delay", Config{WriteDelay: -1}, "WriteDelay"},
		{"negative delay seconds", Config{WriteDelaySeconds: -1}, "WriteDelaySeconds"},
		{"batch factor above 1", Config{WriteBatchFactor: 1.1}, "WriteBatchFactor"},
		{"refresh factor below 0", Config{RefreshAheadFactor: -0.1}, "RefreshAheadFactor"},
		{"negative batch size", Config{WriteMaxBatchSize: -5}, "WriteMaxBatchSize"},
		{"negative requeue threshold", Config{WriteRequeueThreshold: -1}, "WriteRequeueThreshold"},
		{"negative requeue delay", Config{WriteRequeueDelay: -time.Second}, "WriteRequeueDelay"},
		{"negative store timeout", Config{CacheStoreTimeout: -time.Second}, "CacheStoreTimeout"},
		{"negative max timeouts", Config{MaxStoreTimeouts: -1}, "MaxStoreTimeouts"},
		{"negative workers", Config{RefreshWorkers: -2}, "RefreshWorkers"},
		{"negative refresh timeout", Config{RefreshTimeout: -1}, "RefreshTimeout"},
		{"negative miss cache", Config{MissCacheSize: -1}, "MissCacheSize"},
		{"negative miss ttl", Config{MissCacheTTL: -1}, "MissCacheTTL"},
		{"unknown bundler op", Config{Bundlers: []BundlerConfig{{Operation: "scan"}}}, "Bundlers.Operation"},
		{"negative bundle size", Config{Bundlers: []BundlerConfig{{Operation: OpGet, PreferredSize: -1}}}, "Bundlers.PreferredSize"},
		{"negative bundle delay", Config{Bundlers: []BundlerConfig{{Operation: OpGet, Delay: -1}}}, "Bundlers.Delay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if !IsConfigError(err) {
				t.Fatalf("expected config error, got %v", err)
			}
			if got := GetErrorContext(err)["field"]; got != tt.field {
				t.Errorf("field = %v, want %s", got, tt.field)
			}
		})
	}
}

func TestConfig_BundlerDefaults(t *testing.T) {
	cfg := Config{Bundlers: []BundlerConfig{{Operation: OpLoad}}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	b := cfg.Bundlers[0]
	if b.PreferredSize != DefaultBundlePreferredSize || b.ThreadThreshold != DefaultBundleThreadThreshold || b.Delay != DefaultBundleDelay {
		t.Errorf("defaults not applied: %+v", b)
	}
	if !b.autoAdjust() {
		t.Error("auto-adjust should default to enabled")
	}

	off := false
	b.AutoAdjust = &off
	if b.autoAdjust() {
		t.Error("explicit AutoAdjust=false ignored")
	}
}

func TestConfig_BundlerFor(t *testing.T) {
	cfg := Config{Bundlers: []BundlerConfig{
		{Operation: OpAll, PreferredSize: 10},
		{Operation: OpStore, PreferredSize: 50},
	}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	tests := []struct {
		op   string
		size int
	}{
		{OpStore, 50},
		{OpLoad, 10},
		{OpErase, 10},
	}
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			b, ok := cfg.bundlerFor(tt.op)
			if !ok {
				t.Fatal("expected a bundler block")
			}
			if b.Operation != tt.op {
				t.Errorf("Operation = %q, want %q", b.Operation, tt.op)
			}
			if b.PreferredSize != tt.size {
				t.Errorf("PreferredSize = %d, want %d", b.PreferredSize, tt.size)
			}
		})
	}

	none := Config{}
	if _, ok := none.bundlerFor(OpLoad); ok {
		t.Error("no bundler expected without configuration")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig does not validate: %v", err)
	}
	if cfg.writeBehind() {
		t.Error("DefaultConfig should be write-through")
	}
}
