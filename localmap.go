// localmap.go: default capacity-bounded fast map
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"sync"
	"sync/atomic"
	"time"
)

// LocalMapConfig configures a LocalMap.
type LocalMapConfig struct {
	// MaxSize is the maximum number of entries the map can hold.
	// Must be > 0. Default: DefaultMaxSize.
	MaxSize int

	// TTL is the hard expiration of every entry, measured from its last Put.
	// If 0, entries never expire.
	TTL time.Duration

	// Shards is the number of lock stripes, rounded up to a power of 2.
	// Default: 16.
	Shards int

	// TimeProvider provides current time for TTL calculations.
	// If nil, a go-timecache backed provider is used.
	TimeProvider TimeProvider

	// OnEvict is called when an entry is evicted to make room.
	// This callback must be fast and non-blocking.
	OnEvict func(key, value interface{})

	// OnExpire is called when an expired entry is observed and dropped.
	// This callback must be fast and non-blocking.
	OnExpire func(key, value interface{})
}

// LocalMapStats provides statistics about a LocalMap.
type LocalMapStats struct {
	Hits      uint64
	Misses    uint64
	Sets      uint64
	Deletes   uint64
	Evictions uint64
	Size      int
	Capacity  int
}

// HitRatio returns the hit ratio as a percentage (0-100).
func (s LocalMapStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

type localEntry[V any] struct {
	value      V
	lastUpdate int64
	expireAt   int64
	hash       uint64
}

type localShard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]*localEntry[V]
}

// LocalMap is a sharded in-memory map with TTL expiration and
// frequency-aware sampled eviction. It implements FastMap and
// ConditionalPutter.
type LocalMap[K comparable, V any] struct {
	shards       []*localShard[K, V]
	shardMask    uint64
	maxSize      int64
	ttlNanos     int64
	timeProvider TimeProvider
	sketch       *frequencySketch
	onEvict      func(key, value interface{})
	onExpire     func(key, value interface{})

	size      int64
	hits      int64
	misses    int64
	sets      int64
	deletes   int64
	evictions int64
}

// NewLocalMap creates a LocalMap.
func NewLocalMap[K comparable, V any](cfg LocalMapConfig) *LocalMap[K, V] {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.TimeProvider == nil {
		cfg.TimeProvider = &systemTimeProvider{}
	}
	n := nextPowerOf2(cfg.Shards)

	m := &LocalMap[K, V]{
		shards:       make([]*localShard[K, V], n),
		shardMask:    uint64(n - 1), // #nosec G115 - n is a positive power of 2
		maxSize:      int64(cfg.MaxSize),
		ttlNanos:     int64(cfg.TTL),
		timeProvider: cfg.TimeProvider,
		sketch:       newFrequencySketch(cfg.MaxSize),
		onEvict:      cfg.OnEvict,
		onExpire:     cfg.OnExpire,
	}
	for i := range m.shards {
		m.shards[i] = &localShard[K, V]{items: make(map[K]*localEntry[V])}
	}
	return m
}

func (m *LocalMap[K, V]) shardFor(hash uint64) *localShard[K, V] {
	return m.shards[hash&m.shardMask]
}

func (m *LocalMap[K, V]) expired(e *localEntry[V], now int64) bool {
	return e.expireAt > 0 && now >= e.expireAt
}

// Get returns the live entry for key.
func (m *LocalMap[K, V]) Get(key K) (Entry[V], bool) {
	hash := keyHash(key)
	m.sketch.increment(hash)
	sh := m.shardFor(hash)

	sh.mu.RLock()
	e, ok := sh.items[key]
	var out Entry[V]
	if ok {
		out = Entry[V]{Value: e.value, LastUpdate: e.lastUpdate, ExpireAt: e.expireAt}
	}
	sh.mu.RUnlock()

	if !ok {
		atomic.AddInt64(&m.misses, 1)
		return Entry[V]{}, false
	}
	if out.ExpireAt > 0 && m.timeProvider.Now() >= out.ExpireAt {
		m.dropExpired(sh, key, e)
		atomic.AddInt64(&m.misses, 1)
		return Entry[V]{}, false
	}
	atomic.AddInt64(&m.hits, 1)
	return out, true
}

// dropExpired removes key only if it still maps to the observed entry.
func (m *LocalMap[K, V]) dropExpired(sh *localShard[K, V], key K, seen *localEntry[V]) {
	sh.mu.Lock()
	cur, ok := sh.items[key]
	if ok && cur == seen {
		delete(sh.items, key)
		atomic.AddInt64(&m.size, -1)
	}
	sh.mu.Unlock()
	if ok && cur == seen && m.onExpire != nil {
		m.onExpire(key, seen.value)
	}
}

// Put stores value under key. LastUpdate is strictly increasing per key so
// that it can serve as a version stamp.
func (m *LocalMap[K, V]) Put(key K, value V) {
	hash := keyHash(key)
	m.sketch.increment(hash)
	now := m.timeProvider.Now()
	sh := m.shardFor(hash)

	sh.mu.Lock()
	e, ok := sh.items[key]
	if ok {
		stamp := now
		if stamp <= e.lastUpdate {
			stamp = e.lastUpdate + 1
		}
		e.value = value
		e.lastUpdate = stamp
		e.expireAt = m.expireAt(stamp)
	} else {
		sh.items[key] = &localEntry[V]{value: value, lastUpdate: now, expireAt: m.expireAt(now), hash: hash}
	}
	sh.mu.Unlock()

	atomic.AddInt64(&m.sets, 1)
	if !ok && atomic.AddInt64(&m.size, 1) > m.maxSize {
		m.evictOne(hash, key)
	}
}

func (m *LocalMap[K, V]) expireAt(from int64) int64 {
	if m.ttlNanos <= 0 {
		return 0
	}
	return from + m.ttlNanos
}

// PutIfAbsent stores value only if key has no live entry.
func (m *LocalMap[K, V]) PutIfAbsent(key K, value V) bool {
	hash := keyHash(key)
	m.sketch.increment(hash)
	now := m.timeProvider.Now()
	sh := m.shardFor(hash)

	sh.mu.Lock()
	e, ok := sh.items[key]
	if ok && !m.expired(e, now) {
		sh.mu.Unlock()
		return false
	}
	if ok {
		stamp := now
		if stamp <= e.lastUpdate {
			stamp = e.lastUpdate + 1
		}
		e.value = value
		e.lastUpdate = stamp
		e.expireAt = m.expireAt(stamp)
	} else {
		sh.items[key] = &localEntry[V]{value: value, lastUpdate: now, expireAt: m.expireAt(now), hash: hash}
	}
	sh.mu.Unlock()

	atomic.AddInt64(&m.sets, 1)
	if !ok && atomic.AddInt64(&m.size, 1) > m.maxSize {
		m.evictOne(hash, key)
	}
	return true
}

// PutIfUnchanged stores value only if key still carries lastUpdate.
func (m *LocalMap[K, V]) PutIfUnchanged(key K, lastUpdate int64, value V) bool {
	hash := keyHash(key)
	sh := m.shardFor(hash)
	now := m.timeProvider.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.items[key]
	if !ok || e.lastUpdate != lastUpdate {
		return false
	}
	stamp := now
	if stamp <= e.lastUpdate {
		stamp = e.lastUpdate + 1
	}
	e.value = value
	e.lastUpdate = stamp
	e.expireAt = m.expireAt(stamp)
	atomic.AddInt64(&m.sets, 1)
	return true
}

// RemoveIfUnchanged removes key only if it still carries lastUpdate.
func (m *LocalMap[K, V]) RemoveIfUnchanged(key K, lastUpdate int64) bool {
	sh := m.shardFor(keyHash(key))

	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.items[key]
	if !ok || e.lastUpdate != lastUpdate {
		return false
	}
	delete(sh.items, key)
	atomic.AddInt64(&m.size, -1)
	atomic.AddInt64(&m.deletes, 1)
	return true
}

// Remove deletes key and reports whether it was present.
func (m *LocalMap[K, V]) Remove(key K) bool {
	sh := m.shardFor(keyHash(key))

	sh.mu.Lock()
	_, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	sh.mu.Unlock()

	if ok {
		atomic.AddInt64(&m.size, -1)
		atomic.AddInt64(&m.deletes, 1)
	}
	return ok
}

// ContainsKey reports whether key has a live entry.
func (m *LocalMap[K, V]) ContainsKey(key K) bool {
	sh := m.shardFor(keyHash(key))

	sh.mu.RLock()
	e, ok := sh.items[key]
	live := ok && !m.expired(e, m.timeProvider.Now())
	sh.mu.RUnlock()
	return live
}

// Len returns the current number of entries, expired ones included until observed.
func (m *LocalMap[K, V]) Len() int {
	return int(atomic.LoadInt64(&m.size))
}

// Capacity returns the maximum number of entries.
func (m *LocalMap[K, V]) Capacity() int {
	return int(m.maxSize)
}

// Clear removes all entries and resets statistics.
func (m *LocalMap[K, V]) Clear() {
	for _, sh := range m.shards {
		sh.mu.Lock()
		sh.items = make(map[K]*localEntry[V])
		sh.mu.Unlock()
	}
	atomic.StoreInt64(&m.size, 0)
	atomic.StoreInt64(&m.hits, 0)
	atomic.StoreInt64(&m.misses, 0)
	atomic.StoreInt64(&m.sets, 0)
	atomic.StoreInt64(&m.deletes, 0)
	atomic.StoreInt64(&m.evictions, 0)
	m.sketch.reset()
}

// Stats returns map statistics.
func (m *LocalMap[K, V]) Stats() LocalMapStats {
	return LocalMapStats{
		Hits:      uint64(atomic.LoadInt64(&m.hits)),      // #nosec G115 - counters are never negative
		Misses:    uint64(atomic.LoadInt64(&m.misses)),    // #nosec G115 - counters are never negative
		Sets:      uint64(atomic.LoadInt64(&m.sets)),      // #nosec G115 - counters are never negative
		Deletes:   uint64(atomic.LoadInt64(&m.deletes)),   // #nosec G115 - counters are never negative
		Evictions: uint64(atomic.LoadInt64(&m.evictions)), // #nosec G115 - counters are never negative
		Size:      m.Len(),
		Capacity:  int(m.maxSize),
	}
}

// evictOne samples a few entries, starting at the shard of the entry just
// inserted, and evicts the least frequent one. skip is never evicted.
// Expired entries are preferred victims.
func (m *LocalMap[K, V]) evictOne(fromHash uint64, skip K) {
	const sampleSize = 5

	now := m.timeProvider.Now()
	start := fromHash & m.shardMask
	for i := uint64(0); i <= m.shardMask; i++ {
		sh := m.shards[(start+i)&m.shardMask]

		sh.mu.Lock()
		var (
			victimKey K
			victim    *localEntry[V]
			minFreq   = ^uint64(0)
			sampled   int
		)
		for k, e := range sh.items {
			if k == skip {
				continue
			}
			if m.expired(e, now) {
				victimKey, victim = k, e
				break
			}
			if f := m.sketch.estimate(e.hash); f < minFreq {
				victimKey, victim, minFreq = k, e, f
			}
			if sampled++; sampled >= sampleSize {
				break
			}
		}
		if victim != nil {
			delete(sh.items, victimKey)
		}
		sh.mu.Unlock()

		if victim != nil {
			atomic.AddInt64(&m.size, -1)
			atomic.AddInt64(&m.evictions, 1)
			if m.onEvict != nil {
				m.onEvict(victimKey, victim.value)
			}
			return
		}
	}
}

// Compile-time interface checks
var (
	_ FastMap[string, int]           = (*LocalMap[string, int])(nil)
	_ ConditionalPutter[string, int] = (*LocalMap[string, int])(nil)
)
