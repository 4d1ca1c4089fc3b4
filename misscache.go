// misscache.go: side cache of keys known to be absent from the store
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import "time"

// missCache remembers keys whose last load returned not-found.
// A nil *missCache is disabled and safe to use.
type missCache[K comparable] struct {
	m *LocalMap[K, struct{}]
}

func newMissCache[K comparable](size int, ttl time.Duration, tp TimeProvider) *missCache[K] {
	return &missCache[K]{m: NewLocalMap[K, struct{}](LocalMapConfig{
		MaxSize:      size,
		TTL:          ttl,
		Shards:       4,
		TimeProvider: tp,
	})}
}

func (c *missCache[K]) contains(key K) bool {
	if c == nil {
		return false
	}
	_, ok := c.m.Get(key)
	return ok
}

func (c *missCache[K]) add(key K) {
	if c == nil {
		return
	}
	c.m.Put(key, struct{}{})
}

func (c *missCache[K]) invalidate(key K) {
	if c == nil {
		return
	}
	c.m.Remove(key)
}

func (c *missCache[K]) len() int {
	if c == nil {
		return 0
	}
	return c.m.Len()
}
