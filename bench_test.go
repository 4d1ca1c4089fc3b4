// bench_test.go: benchmarks for the tier hot paths and the bundler
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func benchKeys(n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = "key-" + strconv.Itoa(i)
	}
	return keys
}

func BenchmarkTier_GetHit(b *testing.B) {
	store := newMockStore()
	fast := NewLocalMap[string, int](LocalMapConfig{MaxSize: 10_000})
	tier, err := New[string, int](Config{}, fast, store)
	if err != nil {
		b.Fatal(err)
	}
	defer tier.Close()

	ctx := context.Background()
	keys := benchKeys(1000)
	for i, k := range keys {
		_ = tier.Put(ctx, k, i)
	}

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _, _ = tier.Get(ctx, keys[i%len(keys)])
			i++
		}
	})
}

func BenchmarkTier_PutWriteBehind(b *testing.B) {
	store := newMockStore()
	fast := NewLocalMap[string, int](LocalMapConfig{MaxSize: 10_000})
	tier, err := New[string, int](Config{WriteDelay: 50 * time.Millisecond}, fast, store)
	if err != nil {
		b.Fatal(err)
	}
	defer tier.Close()

	ctx := context.Background()
	keys := benchKeys(1000)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = tier.Put(ctx, keys[i%len(keys)], i)
			i++
		}
	})
}

func BenchmarkBundler_Execute_Parallel(b *testing.B) {
	bundler, err := NewBundler[int, int](BundlerConfig{PreferredSize: 64, ThreadThreshold: 2},
		nil,
		func(_ context.Context, items []int) ([]int, error) {
			return items, nil
		})
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = bundler.Execute(ctx, i)
			i++
		}
	})
	if s := bundler.Stats(); s.Bundles > 0 {
		b.ReportMetric(float64(s.Items)/float64(s.Bundles), "items/bundle")
	}
}
