// helpers_test.go: shared test doubles
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// MockTimeProvider allows controlling time in tests
type MockTimeProvider struct {
	currentTime int64
}

func newMockTime() *MockTimeProvider {
	return &MockTimeProvider{currentTime: 1_000_000_000}
}

func (m *MockTimeProvider) Now() int64 {
	return atomic.LoadInt64(&m.currentTime)
}

func (m *MockTimeProvider) Advance(duration time.Duration) {
	atomic.AddInt64(&m.currentTime, int64(duration))
}

// storeCall records one call received by mockStore.
type storeCall struct {
	op      string
	entries []Pair[string, int]
	keys    []string
}

// mockStore is an in-memory CacheStore with bulk capabilities, failure
// injection and call recording.
type mockStore struct {
	mu    sync.Mutex
	data  map[string]int
	calls []storeCall

	loads    int64
	failNext int64 // number of upcoming store/erase calls that fail
	storeErr error
	loadErr  error
	block    chan struct{} // when non-nil, store/erase calls wait on it
	onStore  func(key string, value int)
}

var errStoreDown = errors.New("store down")

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]int)}
}

func (s *mockStore) failFor(n int) {
	atomic.StoreInt64(&s.failNext, int64(n))
}

func (s *mockStore) shouldFail() bool {
	for {
		n := atomic.LoadInt64(&s.failNext)
		if n <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&s.failNext, n, n-1) {
			return true
		}
	}
}

func (s *mockStore) wait(ctx context.Context) error {
	s.mu.Lock()
	block := s.block
	s.mu.Unlock()
	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *mockStore) Load(ctx context.Context, key string) (int, bool, error) {
	atomic.AddInt64(&s.loads, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return 0, false, s.loadErr
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mockStore) Store(ctx context.Context, key string, value int) error {
	return s.StoreAll(ctx, []Pair[string, int]{{Key: key, Value: value}})
}

func (s *mockStore) Erase(ctx context.Context, key string) error {
	return s.EraseAll(ctx, []string{key})
}

func (s *mockStore) StoreAll(ctx context.Context, entries []Pair[string, int]) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.shouldFail() {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.calls = append(s.calls, storeCall{op: OpStore, entries: append([]Pair[string, int](nil), entries...)})
	for _, e := range entries {
		s.data[e.Key] = e.Value
		if s.onStore != nil {
			s.onStore(e.Key, e.Value)
		}
	}
	return nil
}

func (s *mockStore) EraseAll(ctx context.Context, keys []string) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	if s.shouldFail() {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{op: OpErase, keys: append([]string(nil), keys...)})
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *mockStore) get(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *mockStore) set(key string, value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

func (s *mockStore) recorded() []storeCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeCall(nil), s.calls...)
}

// singleStore hides the bulk methods of mockStore.
type singleStore struct {
	inner *mockStore
}

func (s singleStore) Load(ctx context.Context, key string) (int, bool, error) {
	return s.inner.Load(ctx, key)
}

func (s singleStore) Store(ctx context.Context, key string, value int) error {
	return s.inner.Store(ctx, key, value)
}

func (s singleStore) Erase(ctx context.Context, key string) error {
	return s.inner.Erase(ctx, key)
}

// mockMetricsCollector is a test implementation that records calls
type mockMetricsCollector struct {
	mu sync.Mutex

	gets, hits   int
	loads        int
	storedItems  int
	storeCalls   int
	failedStores int
	erases       int
	refreshes    int
	bundles      map[string]int
	lastDepth    int
}

func (m *mockMetricsCollector) RecordGet(latencyNs int64, hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if hit {
		m.hits++
	}
}

func (m *mockMetricsCollector) RecordLoad(latencyNs int64, found bool, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
}

func (m *mockMetricsCollector) RecordStore(batch int, latencyNs int64, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storeCalls++
	if failed {
		m.failedStores++
		return
	}
	m.storedItems += batch
}

func (m *mockMetricsCollector) RecordErase(batch int, latencyNs int64, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.erases += batch
}

func (m *mockMetricsCollector) RecordRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
}

func (m *mockMetricsCollector) RecordBundle(operation string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bundles == nil {
		m.bundles = make(map[string]int)
	}
	m.bundles[operation]++
}

func (m *mockMetricsCollector) RecordQueueDepth(depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastDepth = depth
}

// recordingLogger keeps every message logged at Warn or Error.
type recordingLogger struct {
	mu       sync.Mutex
	warnings []string
	errors   []string
}

func (l *recordingLogger) Debug(msg string, keyvals ...interface{}) {}
func (l *recordingLogger) Info(msg string, keyvals ...interface{})  {}

func (l *recordingLogger) Warn(msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, msg)
}

func (l *recordingLogger) Error(msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) count() (warnings, errs int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warnings), len(l.errors)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
