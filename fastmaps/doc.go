// Package fastmaps provides FastMap implementations backed by third-party
// in-memory caches, as alternatives to writebehind.LocalMap.
//
// Otter wraps github.com/maypok86/otter/v2 and implements
// writebehind.ConditionalPutter through Compute, so loads and refresh-ahead
// never overwrite a concurrent write. Ristretto wraps
// github.com/dgraph-io/ristretto/v2; its admission policy may drop a Put
// under pressure, which the tier tolerates since the queue or the store
// still holds the value.
//
// Both adapters keep the writebehind.Entry timestamps themselves and expire
// entries against the configured TimeProvider.
package fastmaps
