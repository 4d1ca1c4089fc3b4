// partitioned.go: one write-behind tier per partition, routed by key
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// PartitionedConfig configures a PartitionedTier.
type PartitionedConfig[K comparable] struct {
	// Partitions is the number of independent tiers. Must be > 0.
	Partitions int

	// Tier is the configuration shared by every partition.
	Tier Config

	// Route maps a key to its owning partition. Results are reduced modulo
	// Partitions. If nil, the key hash is used.
	Route func(key K) int
}

// PartitionFactory builds the fast map and store of one partition.
type PartitionFactory[K comparable, V any] func(partition int) (FastMap[K, V], CacheLoader[K, V], error)

// PartitionedTier owns one Tier per partition, each with its own queue,
// drain worker and miss cache. Single-key operations go to the owning
// partition; bulk operations are split per partition and run concurrently.
type PartitionedTier[K comparable, V any] struct {
	parts []*Tier[K, V]
	route func(key K) int
}

// NewPartitioned creates cfg.Partitions tiers. Tiers already created are
// closed if a later partition fails to build.
func NewPartitioned[K comparable, V any](cfg PartitionedConfig[K], factory PartitionFactory[K, V]) (*PartitionedTier[K, V], error) {
	if cfg.Partitions <= 0 {
		return nil, NewErrInvalidConfig("Partitions", cfg.Partitions, "> 0")
	}
	if factory == nil {
		return nil, NewErrMissingStore()
	}

	p := &PartitionedTier[K, V]{
		parts: make([]*Tier[K, V], 0, cfg.Partitions),
		route: cfg.Route,
	}
	for i := 0; i < cfg.Partitions; i++ {
		fast, store, err := factory(i)
		if err == nil {
			var tier *Tier[K, V]
			tier, err = New[K, V](cfg.Tier, fast, store)
			if err == nil {
				p.parts = append(p.parts, tier)
				continue
			}
		}
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

// Partitions returns the number of partitions.
func (p *PartitionedTier[K, V]) Partitions() int {
	return len(p.parts)
}

// Partition returns the tier owning partition i.
func (p *PartitionedTier[K, V]) Partition(i int) *Tier[K, V] {
	return p.parts[i]
}

// PartitionFor returns the partition that owns key.
func (p *PartitionedTier[K, V]) PartitionFor(key K) int {
	n := len(p.parts)
	if p.route == nil {
		return int(keyHash(key) % uint64(n)) // #nosec G115 - n > 0
	}
	i := p.route(key) % n
	if i < 0 {
		i += n
	}
	return i
}

func (p *PartitionedTier[K, V]) owner(key K) *Tier[K, V] {
	return p.parts[p.PartitionFor(key)]
}

// Get reads key from its partition.
func (p *PartitionedTier[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	return p.owner(key).Get(ctx, key)
}

// Put writes key in its partition.
func (p *PartitionedTier[K, V]) Put(ctx context.Context, key K, value V) error {
	return p.owner(key).Put(ctx, key, value)
}

// Remove deletes key in its partition.
func (p *PartitionedTier[K, V]) Remove(ctx context.Context, key K) error {
	return p.owner(key).Remove(ctx, key)
}

// Evict persists any pending write for key and drops it from its partition.
func (p *PartitionedTier[K, V]) Evict(ctx context.Context, key K) error {
	return p.owner(key).Evict(ctx, key)
}

// splitKeys groups keys by owning partition, preserving order.
func (p *PartitionedTier[K, V]) splitKeys(keys []K) map[int][]K {
	out := make(map[int][]K)
	for _, k := range keys {
		i := p.PartitionFor(k)
		out[i] = append(out[i], k)
	}
	return out
}

// GetAll reads keys from their partitions concurrently.
func (p *PartitionedTier[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	var mu sync.Mutex
	result := make(map[K]V, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range p.splitKeys(keys) {
		tier := p.parts[i]
		g.Go(func() error {
			found, err := tier.GetAll(gctx, part)
			if err != nil {
				return err
			}
			mu.Lock()
			for k, v := range found {
				result[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// PutAll writes entries to their partitions concurrently. Entry order is
// preserved within a partition.
func (p *PartitionedTier[K, V]) PutAll(ctx context.Context, entries []Pair[K, V]) error {
	split := make(map[int][]Pair[K, V])
	for _, e := range entries {
		i := p.PartitionFor(e.Key)
		split[i] = append(split[i], e)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range split {
		tier := p.parts[i]
		g.Go(func() error { return tier.PutAll(gctx, part) })
	}
	return g.Wait()
}

// RemoveAll deletes keys in their partitions concurrently.
func (p *PartitionedTier[K, V]) RemoveAll(ctx context.Context, keys []K) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, part := range p.splitKeys(keys) {
		tier := p.parts[i]
		g.Go(func() error { return tier.RemoveAll(gctx, part) })
	}
	return g.Wait()
}

// Flush drains every partition's queue.
func (p *PartitionedTier[K, V]) Flush(ctx context.Context) error {
	var g errgroup.Group
	for _, tier := range p.parts {
		g.Go(func() error { return tier.Flush(ctx) })
	}
	return g.Wait()
}

// Close closes every partition and returns the first error.
func (p *PartitionedTier[K, V]) Close() error {
	var g errgroup.Group
	for _, tier := range p.parts {
		g.Go(tier.Close)
	}
	return g.Wait()
}

// QueueLen returns the number of queued writes across partitions.
func (p *PartitionedTier[K, V]) QueueLen() int {
	n := 0
	for _, tier := range p.parts {
		n += tier.QueueLen()
	}
	return n
}

// Stats returns the statistics of every partition, in partition order.
func (p *PartitionedTier[K, V]) Stats() []TierStats {
	out := make([]TierStats, len(p.parts))
	for i, tier := range p.parts {
		out[i] = tier.Stats()
	}
	return out
}

// ApplyTuning applies tn to every partition.
func (p *PartitionedTier[K, V]) ApplyTuning(tn Tuning) {
	for _, tier := range p.parts {
		tier.ApplyTuning(tn)
	}
}

var _ Tunable = (*PartitionedTier[string, int])(nil)
