// store.go: backing store adapter with timeouts, bulk fallback and bundling
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	goerrors "errors"
	"sync/atomic"
	"time"
)

// loadResult carries one key's load outcome through a bundler.
type loadResult[V any] struct {
	value V
	found bool
}

// storeAdapter wraps the user's store. Every call is bounded by the
// configured timeout and protected against panics. Bulk capabilities are
// used when present and abandoned for good once they report
// errors.ErrUnsupported.
type storeAdapter[K comparable, V any] struct {
	loader CacheLoader[K, V]
	store  CacheStore[K, V] // nil for read-only tiers over a CacheLoader

	bulkLoad  BulkLoader[K, V]
	bulkStore BulkStorer[K, V]
	bulkErase BulkEraser[K]

	loadUnsupported  int32
	storeUnsupported int32
	eraseUnsupported int32

	timeout time.Duration
	metrics MetricsCollector
	logger  Logger

	loadB  *Bundler[K, loadResult[V]]
	storeB *Bundler[Pair[K, V], struct{}]
	eraseB *Bundler[K, struct{}]
}

func newStoreAdapter[K comparable, V any](cfg *Config, loader CacheLoader[K, V], logger Logger) *storeAdapter[K, V] {
	s := &storeAdapter[K, V]{
		loader:  loader,
		timeout: cfg.CacheStoreTimeout,
		metrics: cfg.MetricsCollector,
		logger:  logger,
	}
	s.store, _ = loader.(CacheStore[K, V])
	s.bulkLoad, _ = loader.(BulkLoader[K, V])
	s.bulkStore, _ = loader.(BulkStorer[K, V])
	s.bulkErase, _ = loader.(BulkEraser[K])

	if bc, ok := cfg.bundlerFor(OpLoad); ok {
		s.loadB = newBundler(bc, s.metrics,
			func(ctx context.Context, key K) (loadResult[V], error) {
				v, found, err := s.loadOne(ctx, key)
				return loadResult[V]{value: v, found: found}, err
			},
			func(ctx context.Context, keys []K) ([]loadResult[V], error) {
				m, err := s.loadAll(ctx, keys)
				if err != nil {
					return nil, err
				}
				out := make([]loadResult[V], len(keys))
				for i, k := range keys {
					out[i].value, out[i].found = m[k]
				}
				return out, nil
			})
	}
	if bc, ok := cfg.bundlerFor(OpStore); ok && s.store != nil {
		s.storeB = newBundler(bc, s.metrics,
			func(ctx context.Context, p Pair[K, V]) (struct{}, error) {
				return struct{}{}, s.storeOne(ctx, p.Key, p.Value)
			},
			func(ctx context.Context, entries []Pair[K, V]) ([]struct{}, error) {
				return make([]struct{}, len(entries)), s.storeAll(ctx, entries)
			})
	}
	if bc, ok := cfg.bundlerFor(OpErase); ok && s.store != nil {
		s.eraseB = newBundler(bc, s.metrics,
			func(ctx context.Context, key K) (struct{}, error) {
				return struct{}{}, s.eraseOne(ctx, key)
			},
			func(ctx context.Context, keys []K) ([]struct{}, error) {
				return make([]struct{}, len(keys)), s.eraseAll(ctx, keys)
			})
	}
	return s
}

// call runs fn under the store timeout with panic recovery. Failures are
// returned as WB_STORE_TIMEOUT, WB_PANIC_RECOVERED or WB_STORE_UNAVAILABLE.
func (s *storeAdapter[K, V]) call(ctx context.Context, op string, batch int, fn func(ctx context.Context) error) error {
	if s.timeout <= 0 {
		return s.classify(ctx, op, batch, protect(op, func() error { return fn(ctx) }))
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- protect(op, func() error { return fn(cctx) })
	}()

	select {
	case err := <-done:
		return s.classify(ctx, op, batch, err)
	case <-cctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewErrStoreTimeout(op, s.timeout)
	}
}

func (s *storeAdapter[K, V]) classify(ctx context.Context, op string, batch int, err error) error {
	switch {
	case err == nil:
		return nil
	case GetErrorCode(err) == ErrCodePanicRecovered:
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	case s.timeout > 0 && goerrors.Is(err, context.DeadlineExceeded):
		return NewErrStoreTimeout(op, s.timeout)
	default:
		return NewErrStoreUnavailable(op, batch, err)
	}
}

// protect turns a panic in fn into an error.
func protect(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewErrPanicRecovered(op, r)
		}
	}()
	return fn()
}

// load reads one key, through the load bundler when configured.
func (s *storeAdapter[K, V]) load(ctx context.Context, key K) (V, bool, error) {
	if s.loadB != nil {
		r, err := s.loadB.Execute(ctx, key)
		return r.value, r.found, err
	}
	return s.loadOne(ctx, key)
}

func (s *storeAdapter[K, V]) loadOne(ctx context.Context, key K) (V, bool, error) {
	var (
		value V
		found bool
	)
	start := time.Now()
	err := s.call(ctx, OpLoad, 1, func(ctx context.Context) error {
		var err error
		value, found, err = s.loader.Load(ctx, key)
		return err
	})
	if err != nil {
		// a timed-out call may still be writing value and found
		s.metrics.RecordLoad(time.Since(start).Nanoseconds(), false, true)
		var zero V
		return zero, false, err
	}
	s.metrics.RecordLoad(time.Since(start).Nanoseconds(), found, false)
	return value, found, nil
}

// loadAll reads keys in one call when the store supports it.
func (s *storeAdapter[K, V]) loadAll(ctx context.Context, keys []K) (map[K]V, error) {
	if s.bulkLoad != nil && atomic.LoadInt32(&s.loadUnsupported) == 0 {
		var result map[K]V
		start := time.Now()
		err := s.call(ctx, OpLoad, len(keys), func(ctx context.Context) error {
			var err error
			result, err = s.bulkLoad.LoadAll(ctx, keys)
			return err
		})
		if !s.unsupported(err, &s.loadUnsupported, OpLoad) {
			latency := time.Since(start).Nanoseconds()
			if err != nil {
				for range keys {
					s.metrics.RecordLoad(latency, false, true)
				}
				return nil, err
			}
			for _, k := range keys {
				_, found := result[k]
				s.metrics.RecordLoad(latency, found, false)
			}
			if result == nil {
				result = make(map[K]V)
			}
			return result, nil
		}
	}

	out := make(map[K]V, len(keys))
	for _, k := range keys {
		v, found, err := s.loadOne(ctx, k)
		if err != nil {
			return nil, err
		}
		if found {
			out[k] = v
		}
	}
	return out, nil
}

// unsupported reports whether err says a bulk method is not implemented,
// and if so disables that method permanently.
func (s *storeAdapter[K, V]) unsupported(err error, flag *int32, op string) bool {
	if err == nil || !goerrors.Is(err, goerrors.ErrUnsupported) {
		return false
	}
	if atomic.CompareAndSwapInt32(flag, 0, 1) {
		s.logger.Info("bulk operation unsupported by store, using single-item calls",
			"operation", op)
	}
	return true
}

// storeValue persists one value, through the store bundler when configured.
func (s *storeAdapter[K, V]) storeValue(ctx context.Context, key K, value V) error {
	if s.storeB != nil {
		_, err := s.storeB.Execute(ctx, Pair[K, V]{Key: key, Value: value})
		return err
	}
	return s.storeOne(ctx, key, value)
}

func (s *storeAdapter[K, V]) storeOne(ctx context.Context, key K, value V) error {
	start := time.Now()
	err := s.call(ctx, OpStore, 1, func(ctx context.Context) error {
		return s.store.Store(ctx, key, value)
	})
	s.metrics.RecordStore(1, time.Since(start).Nanoseconds(), err != nil)
	return err
}

// storeAll persists entries in order, in one call when the store supports it.
func (s *storeAdapter[K, V]) storeAll(ctx context.Context, entries []Pair[K, V]) error {
	if len(entries) == 0 {
		return nil
	}
	if s.bulkStore != nil && atomic.LoadInt32(&s.storeUnsupported) == 0 {
		start := time.Now()
		err := s.call(ctx, OpStore, len(entries), func(ctx context.Context) error {
			return s.bulkStore.StoreAll(ctx, entries)
		})
		if !s.unsupported(err, &s.storeUnsupported, OpStore) {
			s.metrics.RecordStore(len(entries), time.Since(start).Nanoseconds(), err != nil)
			return err
		}
	}
	for _, e := range entries {
		if err := s.storeOne(ctx, e.Key, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// eraseKey removes one key, through the erase bundler when configured.
func (s *storeAdapter[K, V]) eraseKey(ctx context.Context, key K) error {
	if s.eraseB != nil {
		_, err := s.eraseB.Execute(ctx, key)
		return err
	}
	return s.eraseOne(ctx, key)
}

func (s *storeAdapter[K, V]) eraseOne(ctx context.Context, key K) error {
	start := time.Now()
	err := s.call(ctx, OpErase, 1, func(ctx context.Context) error {
		return s.store.Erase(ctx, key)
	})
	s.metrics.RecordErase(1, time.Since(start).Nanoseconds(), err != nil)
	return err
}

// eraseAll removes keys, in one call when the store supports it.
func (s *storeAdapter[K, V]) eraseAll(ctx context.Context, keys []K) error {
	if len(keys) == 0 {
		return nil
	}
	if s.bulkErase != nil && atomic.LoadInt32(&s.eraseUnsupported) == 0 {
		start := time.Now()
		err := s.call(ctx, OpErase, len(keys), func(ctx context.Context) error {
			return s.bulkErase.EraseAll(ctx, keys)
		})
		if !s.unsupported(err, &s.eraseUnsupported, OpErase) {
			s.metrics.RecordErase(len(keys), time.Since(start).Nanoseconds(), err != nil)
			return err
		}
	}
	for _, k := range keys {
		if err := s.eraseOne(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// bundlers returns the configured store-facing bundlers.
func (s *storeAdapter[K, V]) bundlers() []bundlerControl {
	var out []bundlerControl
	if s.loadB != nil {
		out = append(out, s.loadB)
	}
	if s.storeB != nil {
		out = append(out, s.storeB)
	}
	if s.eraseB != nil {
		out = append(out, s.eraseB)
	}
	return out
}
