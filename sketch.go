// sketch.go: lock-free frequency sketch used for LocalMap eviction
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"sync/atomic"
	"unsafe"
)

// sketchSeeds are multiplicative hash seeds, one per counter row.
var sketchSeeds = [4]uint64{
	0x9e3779b97f4a7c15,
	0xbf58476d1ce4e5b9,
	0x94d049bb133111eb,
	0xbf58476d1ce4e5b7,
}

// frequencySketch is a Count-Min Sketch with 4-bit saturating counters,
// sixteen counters packed per uint64. Counters are halved every
// resetThreshold increments so that old popularity fades.
type frequencySketch struct {
	table     []uint64
	tableMask uint64

	additions      int64
	resetThreshold int64
}

func newFrequencySketch(capacity int) *frequencySketch {
	size := nextPowerOf2(capacity / 4)
	if size < 64 {
		size = 64
	}
	return &frequencySketch{
		table:          make([]uint64, size),
		tableMask:      uint64(size - 1), // #nosec G115 - size is a positive power of 2
		resetThreshold: int64(capacity) * 10,
	}
}

// nextPowerOf2 returns the next power of 2 greater than or equal to n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// slot returns the table index and bit offset of row i for keyHash.
func (s *frequencySketch) slot(keyHash uint64, i int) (uint64, uint64) {
	idx := ((keyHash * sketchSeeds[i]) >> 32) & s.tableMask
	shift := ((keyHash >> (uint(i) * 4)) & 0xF) * 4
	return idx, shift
}

func (s *frequencySketch) increment(keyHash uint64) {
	if s.resetThreshold > 0 && atomic.AddInt64(&s.additions, 1)%s.resetThreshold == 0 {
		s.age()
	}
	for i := range sketchSeeds {
		idx, shift := s.slot(keyHash, i)
		for {
			old := atomic.LoadUint64(&s.table[idx])
			counter := (old >> shift) & 0xF
			if counter == 0xF {
				break
			}
			updated := old + (1 << shift)
			if atomic.CompareAndSwapUint64(&s.table[idx], old, updated) {
				break
			}
		}
	}
}

// estimate returns the minimum counter over all rows.
func (s *frequencySketch) estimate(keyHash uint64) uint64 {
	est := uint64(0xF)
	for i := range sketchSeeds {
		idx, shift := s.slot(keyHash, i)
		if c := (atomic.LoadUint64(&s.table[idx]) >> shift) & 0xF; c < est {
			est = c
		}
	}
	return est
}

// age halves every counter.
func (s *frequencySketch) age() {
	const keepLow3 = 0x7777777777777777
	for i := range s.table {
		for {
			old := atomic.LoadUint64(&s.table[i])
			if atomic.CompareAndSwapUint64(&s.table[i], old, (old>>1)&keepLow3) {
				break
			}
		}
	}
}

func (s *frequencySketch) reset() {
	for i := range s.table {
		atomic.StoreUint64(&s.table[i], 0)
	}
	atomic.StoreInt64(&s.additions, 0)
}

// stringHash computes a 64-bit FNV-1a hash of s without allocating.
func stringHash(s string) uint64 {
	const (
		fnv64Offset = 14695981039346656037
		fnv64Prime  = 1099511628211
	)

	hash := uint64(fnv64Offset)

	// #nosec G103 - read-only view of the string bytes
	data := unsafe.Slice(unsafe.StringData(s), len(s))

	for _, b := range data {
		hash ^= uint64(b)
		hash *= fnv64Prime
	}

	return hash
}
