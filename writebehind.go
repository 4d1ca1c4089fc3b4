// writebehind.go: package constants and defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import "time"

const (
	// Version of the writebehind library
	Version = "v0.1.0-dev"

	// DefaultWriteMaxBatchSize is the default upper bound of entries per store call
	DefaultWriteMaxBatchSize = 128

	// DefaultMaxStoreTimeouts is the number of consecutive store timeouts
	// after which the drain worker gives up
	DefaultMaxStoreTimeouts = 3

	// DefaultRefreshWorkers is the default size of the refresh-ahead executor
	DefaultRefreshWorkers = 4

	// DefaultRefreshTimeout bounds a refresh-ahead reload when no store timeout is configured
	DefaultRefreshTimeout = 30 * time.Second

	// DefaultMissCacheSize is the default capacity of the miss cache
	DefaultMissCacheSize = 1024

	// DefaultBundlePreferredSize is the default bundle size target
	DefaultBundlePreferredSize = 100

	// DefaultBundleThreadThreshold is the default number of concurrent callers
	// that switches a bundler from bypass to collecting
	DefaultBundleThreadThreshold = 4

	// DefaultBundleDelay is the default collection window of a bundle
	DefaultBundleDelay = time.Millisecond

	// DefaultMaxSize is the default capacity of a LocalMap
	DefaultMaxSize = 10_000
)
