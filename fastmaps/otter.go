// otter.go: FastMap backed by otter
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fastmaps

import (
	"time"

	"github.com/agilira/go-timecache"
	"github.com/maypok86/otter/v2"

	"github.com/agilira/writebehind"
)

// Config configures the adapters in this package.
type Config struct {
	// MaxSize is the maximum number of entries. Default: writebehind.DefaultMaxSize.
	MaxSize int

	// TTL is the hard expiration measured from the last Put. 0 never expires.
	TTL time.Duration

	// TimeProvider stamps entries. If nil, go-timecache is used.
	TimeProvider writebehind.TimeProvider
}

func (c *Config) validate() error {
	switch {
	case c.MaxSize < 0:
		return writebehind.NewErrInvalidConfig("MaxSize", c.MaxSize, "> 0")
	case c.MaxSize == 0:
		c.MaxSize = writebehind.DefaultMaxSize
	}
	if c.TTL < 0 {
		return writebehind.NewErrInvalidConfig("TTL", c.TTL, ">= 0")
	}
	if c.TimeProvider == nil {
		c.TimeProvider = cachedClock{}
	}
	return nil
}

type cachedClock struct{}

func (cachedClock) Now() int64 { return timecache.CachedTimeNano() }

// stamp builds the entry stored for a Put at now.
func stamp[V any](value V, now int64, ttl time.Duration) writebehind.Entry[V] {
	e := writebehind.Entry[V]{Value: value, LastUpdate: now}
	if ttl > 0 {
		e.ExpireAt = now + int64(ttl)
	}
	return e
}

func live[V any](e writebehind.Entry[V], now int64) bool {
	return e.ExpireAt == 0 || now < e.ExpireAt
}

// Otter is a FastMap and ConditionalPutter over an otter cache.
type Otter[K comparable, V any] struct {
	cache *otter.Cache[K, writebehind.Entry[V]]
	ttl   time.Duration
	clock writebehind.TimeProvider
}

// NewOtter creates an otter-backed FastMap.
func NewOtter[K comparable, V any](cfg Config) (*Otter[K, V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cache, err := otter.New(&otter.Options[K, writebehind.Entry[V]]{
		MaximumSize: cfg.MaxSize,
	})
	if err != nil {
		return nil, err
	}
	return &Otter[K, V]{cache: cache, ttl: cfg.TTL, clock: cfg.TimeProvider}, nil
}

func (m *Otter[K, V]) Get(key K) (writebehind.Entry[V], bool) {
	e, ok := m.cache.GetIfPresent(key)
	if !ok {
		return e, false
	}
	if !live(e, m.clock.Now()) {
		m.RemoveIfUnchanged(key, e.LastUpdate)
		return writebehind.Entry[V]{}, false
	}
	return e, true
}

func (m *Otter[K, V]) Put(key K, value V) {
	m.cache.Set(key, stamp(value, m.clock.Now(), m.ttl))
}

func (m *Otter[K, V]) Remove(key K) bool {
	e, ok := m.cache.Invalidate(key)
	return ok && live(e, m.clock.Now())
}

func (m *Otter[K, V]) ContainsKey(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns the estimated number of entries, expired ones included.
func (m *Otter[K, V]) Len() int {
	return m.cache.EstimatedSize()
}

func (m *Otter[K, V]) PutIfAbsent(key K, value V) bool {
	stored := false
	m.cache.Compute(key, func(old writebehind.Entry[V], found bool) (writebehind.Entry[V], otter.ComputeOp) {
		now := m.clock.Now()
		if found && live(old, now) {
			return old, otter.CancelOp
		}
		stored = true
		return stamp(value, now, m.ttl), otter.WriteOp
	})
	return stored
}

func (m *Otter[K, V]) PutIfUnchanged(key K, lastUpdate int64, value V) bool {
	stored := false
	m.cache.Compute(key, func(old writebehind.Entry[V], found bool) (writebehind.Entry[V], otter.ComputeOp) {
		if !found || old.LastUpdate != lastUpdate {
			return old, otter.CancelOp
		}
		stored = true
		return stamp(value, m.clock.Now(), m.ttl), otter.WriteOp
	})
	return stored
}

func (m *Otter[K, V]) RemoveIfUnchanged(key K, lastUpdate int64) bool {
	removed := false
	m.cache.Compute(key, func(old writebehind.Entry[V], found bool) (writebehind.Entry[V], otter.ComputeOp) {
		if !found || old.LastUpdate != lastUpdate {
			return old, otter.CancelOp
		}
		removed = true
		return old, otter.InvalidateOp
	})
	return removed
}

var (
	_ writebehind.FastMap[string, int]           = (*Otter[string, int])(nil)
	_ writebehind.ConditionalPutter[string, int] = (*Otter[string, int])(nil)
)
