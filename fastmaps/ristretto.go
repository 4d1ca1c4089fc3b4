// ristretto.go: FastMap backed by ristretto
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package fastmaps

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/agilira/writebehind"
)

// Ristretto is a string-keyed FastMap over a ristretto cache. Every entry
// costs 1, so MaxSize bounds the entry count.
type Ristretto[V any] struct {
	cache *ristretto.Cache[string, writebehind.Entry[V]]
	ttl   time.Duration
	clock writebehind.TimeProvider
}

// NewRistretto creates a ristretto-backed FastMap.
func NewRistretto[V any](cfg Config) (*Ristretto[V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, writebehind.Entry[V]]{
		NumCounters:        int64(cfg.MaxSize) * 10,
		MaxCost:            int64(cfg.MaxSize),
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Ristretto[V]{cache: cache, ttl: cfg.TTL, clock: cfg.TimeProvider}, nil
}

func (m *Ristretto[V]) Get(key string) (writebehind.Entry[V], bool) {
	e, ok := m.cache.Get(key)
	if !ok {
		return e, false
	}
	if !live(e, m.clock.Now()) {
		m.cache.Del(key)
		return writebehind.Entry[V]{}, false
	}
	return e, true
}

// Put stores value and waits for the write buffer, so a following Get
// observes it unless the admission policy rejected it.
func (m *Ristretto[V]) Put(key string, value V) {
	e := stamp(value, m.clock.Now(), m.ttl)
	if m.ttl > 0 {
		m.cache.SetWithTTL(key, e, 1, m.ttl)
	} else {
		m.cache.Set(key, e, 1)
	}
	m.cache.Wait()
}

func (m *Ristretto[V]) Remove(key string) bool {
	_, ok := m.Get(key)
	m.cache.Del(key)
	return ok
}

func (m *Ristretto[V]) ContainsKey(key string) bool {
	_, ok := m.Get(key)
	return ok
}

// Len returns an estimate derived from the cache metrics. Explicit removals
// are not subtracted.
func (m *Ristretto[V]) Len() int {
	mt := m.cache.Metrics
	if mt == nil {
		return 0
	}
	n := int64(mt.KeysAdded()) - int64(mt.KeysEvicted()) // #nosec G115 - counters stay far below MaxInt64
	if n < 0 {
		return 0
	}
	return int(n)
}

// Close releases the cache goroutines.
func (m *Ristretto[V]) Close() {
	m.cache.Close()
}

var _ writebehind.FastMap[string, int] = (*Ristretto[int])(nil)
