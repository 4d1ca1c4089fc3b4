// bench_test.go: LocalMap, otter and ristretto compared behind the FastMap interface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package fastmaps

import (
	"fmt"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/agilira/writebehind"
)

const (
	mediumCacheSize = 10_000
	mediumKeySpace  = 1_000
	largeKeySpace   = 10_000
)

// zipfGenerator generates keys following a Zipf distribution, where a few
// keys are much more popular than the rest.
type zipfGenerator struct {
	zipf *rand.Zipf
}

// newZipfGenerator requires s > 1 and v >= 1; smaller values are clamped.
func newZipfGenerator(s, v float64, imax uint64) *zipfGenerator {
	if imax < 1 {
		imax = 1
	}
	if s <= 1.0 {
		s = 1.01
	}
	if v < 1.0 {
		v = 1.0
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano())) // #nosec G404 - benchmark keys
	zipf := rand.NewZipf(r, s, v, imax)
	if zipf == nil {
		panic(fmt.Sprintf("failed to create Zipf generator: s=%f, v=%f, imax=%d", s, v, imax))
	}
	return &zipfGenerator{zipf: zipf}
}

func (z *zipfGenerator) next() string {
	return strconv.FormatUint(z.zipf.Uint64(), 10)
}

type candidate struct {
	name    string
	factory func(tb testing.TB, size int) writebehind.FastMap[string, int]
}

func candidates() []candidate {
	return []candidate{
		{"LocalMap", func(_ testing.TB, size int) writebehind.FastMap[string, int] {
			return writebehind.NewLocalMap[string, int](writebehind.LocalMapConfig{MaxSize: size})
		}},
		{"Otter", func(tb testing.TB, size int) writebehind.FastMap[string, int] {
			m, err := NewOtter[string, int](Config{MaxSize: size})
			if err != nil {
				tb.Fatal(err)
			}
			return m
		}},
		{"Ristretto", func(tb testing.TB, size int) writebehind.FastMap[string, int] {
			m, err := NewRistretto[int](Config{MaxSize: size})
			if err != nil {
				tb.Fatal(err)
			}
			tb.Cleanup(m.Close)
			return m
		}},
	}
}

func warmup(m writebehind.FastMap[string, int], keySpace int) {
	zipf := newZipfGenerator(1.0, 1.0, uint64(keySpace-1)) // #nosec G115
	for i := 0; i < keySpace/2; i++ {
		m.Put(zipf.next(), i)
	}
}

func BenchmarkFastMap_Get_Parallel(b *testing.B) {
	for _, c := range candidates() {
		b.Run(c.name, func(b *testing.B) {
			m := c.factory(b, mediumCacheSize)
			warmup(m, mediumKeySpace)

			b.ResetTimer()
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				zipf := newZipfGenerator(1.0, 1.0, mediumKeySpace-1)
				for pb.Next() {
					m.Get(zipf.next())
				}
			})
		})
	}
}

func BenchmarkFastMap_Mixed_Parallel(b *testing.B) {
	for _, c := range candidates() {
		b.Run(c.name, func(b *testing.B) {
			m := c.factory(b, mediumCacheSize)
			warmup(m, mediumKeySpace)

			b.ResetTimer()
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				zipf := newZipfGenerator(1.0, 1.0, mediumKeySpace-1)
				i := 0
				for pb.Next() {
					key := zipf.next()
					if i%10 == 0 {
						m.Put(key, i)
					} else {
						m.Get(key)
					}
					i++
				}
			})
		})
	}
}

// TestHitRatio logs the hit ratio of each FastMap under skewed workloads.
func TestHitRatio(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping hit ratio comparison in short mode")
	}

	workloads := []struct {
		name     string
		s        float64
		keySpace int
	}{
		{"Highly Skewed (s=1.5)", 1.5, largeKeySpace},
		{"Moderate (s=1.01)", 1.01, largeKeySpace},
	}

	const size = 1_000
	const requests = 50_000

	for _, wl := range workloads {
		t.Logf("=== Workload: %s ===", wl.name)
		for _, c := range candidates() {
			m := c.factory(t, size)
			zipf := newZipfGenerator(wl.s, 1.0, uint64(wl.keySpace-1)) // #nosec G115

			hits := 0
			for i := 0; i < requests; i++ {
				key := zipf.next()
				if _, ok := m.Get(key); ok {
					hits++
				} else {
					m.Put(key, i)
				}
			}
			if hits == 0 {
				t.Errorf("%s: no hits under a skewed workload", c.name)
			}
			t.Logf("  %s: %.2f%% (hits: %d/%d)", c.name, float64(hits)/requests*100, hits, requests)
		}
	}
}
