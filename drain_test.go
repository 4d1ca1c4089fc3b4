// drain_test.go: unit tests for write-behind persistence
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDrain_CoalescesRewrites(t *testing.T) {
	store := newMockStore()
	tier, _, mockTime := newTestTier(t, Config{WriteDelay: time.Hour}, store)
	ctx := context.Background()

	tier.Put(ctx, "A", 1)
	tier.Put(ctx, "A", 2)

	mockTime.Advance(time.Hour)
	if err := tier.drainOnce(ctx, false); err != nil {
		t.Fatal(err)
	}

	calls := store.recorded()
	if len(calls) != 1 {
		t.Fatalf("store received %d calls, want 1", len(calls))
	}
	if e := calls[0].entries; len(e) != 1 || e[0].Key != "A" || e[0].Value != 2 {
		t.Errorf("store call = %+v, want [A=2]", e)
	}
}

func TestDrain_OnlyLastValueReachesStore(t *testing.T) {
	store := newMockStore()
	tier, _, mockTime := newTestTier(t, Config{WriteDelay: time.Hour}, store)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		tier.Put(ctx, "k"+strconv.Itoa(i%10), i)
	}
	mockTime.Advance(time.Hour)
	tier.drainOnce(ctx, false)

	seen := map[string]int{}
	for _, c := range store.recorded() {
		for _, e := range c.entries {
			seen[e.Key]++
			if want := 90 + int(e.Key[1]-'0'); e.Value != want {
				t.Errorf("%s stored as %d, want last value %d", e.Key, e.Value, want)
			}
		}
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("%s stored %d times", k, n)
		}
	}
	if len(seen) != 10 {
		t.Errorf("stored %d keys, want 10", len(seen))
	}
}

func TestDrain_MaxBatchSize(t *testing.T) {
	store := newMockStore()
	tier, _, mockTime := newTestTier(t, Config{WriteDelay: time.Hour, WriteMaxBatchSize: 2}, store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		tier.Put(ctx, "k"+strconv.Itoa(i), i)
	}
	mockTime.Advance(time.Hour)
	if err := tier.drainOnce(ctx, false); err != nil {
		t.Fatal(err)
	}

	calls := store.recorded()
	if len(calls) != 3 {
		t.Fatalf("store received %d calls, want 3", len(calls))
	}
	for i, want := range []int{2, 2, 1} {
		if got := len(calls[i].entries); got != want {
			t.Errorf("call %d stored %d entries, want %d", i, got, want)
		}
	}
}

func TestDrain_NothingBeforeRipe(t *testing.T) {
	store := newMockStore()
	tier, _, mockTime := newTestTier(t, Config{WriteDelay: time.Hour}, store)
	ctx := context.Background()

	tier.Put(ctx, "k", 1)
	mockTime.Advance(30 * time.Minute)
	tier.drainOnce(ctx, false)

	if len(store.recorded()) != 0 {
		t.Error("drained an entry that was not ripe")
	}
	if tier.QueueLen() != 1 {
		t.Errorf("QueueLen() = %d, want 1", tier.QueueLen())
	}
}

func TestDrain_OrderAcrossStoresAndErases(t *testing.T) {
	store := newMockStore()
	store.set("b", 9)
	tier, _, mockTime := newTestTier(t, Config{WriteDelay: time.Hour}, store)
	ctx := context.Background()

	tier.Put(ctx, "a", 1)
	tier.Remove(ctx, "b")
	tier.Put(ctx, "c", 3)

	mockTime.Advance(time.Hour)
	tier.drainOnce(ctx, false)

	calls := store.recorded()
	if len(calls) != 3 {
		t.Fatalf("store received %d calls, want 3", len(calls))
	}
	if calls[0].op != OpStore || calls[1].op != OpErase || calls[2].op != OpStore {
		t.Errorf("call order = %s %s %s", calls[0].op, calls[1].op, calls[2].op)
	}
	if _, ok := store.get("b"); ok {
		t.Error("b was not erased")
	}
}

func TestDrain_ReadYourWritesAfterEviction(t *testing.T) {
	store := newMockStore()
	store.set("k", 1)
	tier, fast, _ := newTestTier(t, Config{WriteDelay: time.Hour}, store)
	ctx := context.Background()

	tier.Put(ctx, "k", 2)
	fast.Remove("k")
	if v, found, _ := tier.Get(ctx, "k"); !found || v != 2 {
		t.Errorf("Get = %d, %v; want queued value 2", v, found)
	}

	tier.Remove(ctx, "k")
	if _, found, _ := tier.Get(ctx, "k"); found {
		t.Error("queued tombstone read as present")
	}
	if atomic.LoadInt64(&store.loads) != 0 {
		t.Errorf("store loaded %d times, want 0", store.loads)
	}
}

func TestDrain_RollbackRetriesUntilSuccess(t *testing.T) {
	store := newMockStore()
	tier, _, mockTime := newTestTier(t, Config{WriteDelay: time.Hour, RollbackOnFailure: true}, store)
	ctx := context.Background()

	tier.Put(ctx, "A", 1)
	mockTime.Advance(time.Hour)

	store.failFor(2)
	for i := 0; i < 2; i++ {
		err := tier.drainOnce(ctx, false)
		if !IsStoreUnavailable(err) {
			t.Fatalf("cycle %d: expected store failure, got %v", i, err)
		}
		if tier.QueueLen() != 1 {
			t.Fatalf("cycle %d: entry not requeued", i)
		}
	}

	if err := tier.drainOnce(ctx, false); err != nil {
		t.Fatalf("drain after recovery failed: %v", err)
	}
	if v, ok := store.get("A"); !ok || v != 1 {
		t.Errorf("store has %d, %v; want 1", v, ok)
	}
	if stats := tier.Stats(); stats.Requeued != 2 || stats.QueueDepth != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDrain_RequeueKeepsNewerWrite(t *testing.T) {
	store := newMockStore()
	store.block = make(chan struct{})
	tier, _, mockTime := newTestTier(t, Config{
		WriteDelay:        time.Hour,
		RollbackOnFailure: true,
		CacheStoreTimeout: 50 * time.Millisecond,
		MaxStoreTimeouts:  10,
	}, store)
	ctx := context.Background()

	tier.Put(ctx, "A", 1)
	mockTime.Advance(time.Hour)

	done := make(chan error, 1)
	go func() { done <- tier.drainOnce(ctx, false) }()

	// Rewrite A while A=1 is in flight.
	waitFor(time.Second, func() bool { return tier.QueueLen() == 0 })
	tier.Put(ctx, "A", 2)

	if err := <-done; !IsStoreTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if v, _, _ := tier.queue.get("A"); v != 2 {
		t.Errorf("queued A = %d, want the newer value 2", v)
	}

	store.mu.Lock()
	close(store.block)
	store.block = nil
	store.mu.Unlock()
	if err := tier.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := store.get("A"); v != 2 {
		t.Errorf("store has A=%d, want 2", v)
	}
}

func TestDrain_DeadLetterWithoutRollback(t *testing.T) {
	store := newMockStore()
	var mu sync.Mutex
	var letters []string
	// The fast map TTL is an hour, so the entry outlives the write delay.
	tier, fast, mockTime := newTestTier(t, Config{
		WriteDelay: time.Minute,
		OnDeadLetter: func(key, value interface{}, tombstone bool, err error) {
			mu.Lock()
			defer mu.Unlock()
			letters = append(letters, key.(string))
		},
	}, store)
	ctx := context.Background()

	tier.Put(ctx, "A", 1)
	mockTime.Advance(time.Minute)
	store.failFor(1)

	if err := tier.drainOnce(ctx, false); err != nil {
		t.Fatalf("drain returned %v, want nil without rollback", err)
	}
	if tier.QueueLen() != 0 {
		t.Error("failed entry still queued")
	}
	if len(letters) != 1 || letters[0] != "A" {
		t.Errorf("dead letters = %v, want [A]", letters)
	}
	if _, ok := store.get("A"); ok {
		t.Error("store unexpectedly has A")
	}
	if e, ok := fast.Get("A"); !ok || e.Value != 1 {
		t.Error("fast map lost the last known value")
	}
	if stats := tier.Stats(); stats.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", stats.Dropped)
	}
}

func TestDrain_DeadLetterDoesNotResendRestOfBatch(t *testing.T) {
	store := newMockStore()
	tier, _, _ := newTestTier(t, Config{WriteDelay: time.Hour}, store)
	ctx := context.Background()

	tier.Put(ctx, "A", 1)
	tier.Remove(ctx, "B")
	tier.Put(ctx, "C", 3)
	store.failFor(1)

	if err := tier.Flush(ctx); err != nil {
		t.Fatalf("Flush returned %v, want nil without rollback", err)
	}

	sent := make(map[string]int)
	for _, c := range store.recorded() {
		for _, k := range c.keys {
			sent[c.op+" "+k]++
		}
		for _, e := range c.entries {
			sent[c.op+" "+e.Key]++
		}
	}
	if sent[OpErase+" B"] != 1 || sent[OpStore+" C"] != 1 {
		t.Errorf("calls per key = %v, want one erase of B and one store of C", sent)
	}
	if sent[OpStore+" A"] != 0 {
		t.Errorf("dead-lettered A reached the store: %v", sent)
	}
	if tier.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d, want 0", tier.QueueLen())
	}

	stats := tier.Stats()
	if stats.Dropped != 1 || stats.Stores != 1 || stats.Erases != 1 || stats.Requeued != 0 {
		t.Errorf("stats = %+v, want 1 dropped, 1 store, 1 erase, 0 requeued", stats)
	}
}

func TestDrain_QueueIsUnbounded(t *testing.T) {
	store := newMockStore()
	store.storeErr = errStoreDown
	logger := &recordingLogger{}
	tier, _, mockTime := newTestTier(t, Config{
		WriteDelay:            time.Hour,
		RollbackOnFailure:     true,
		WriteRequeueThreshold: 1000,
		Logger:                logger,
	}, store)
	ctx := context.Background()

	for i := 0; i < 10_000; i++ {
		if err := tier.Put(ctx, "k"+strconv.Itoa(i), i); err != nil {
			t.Fatalf("Put %d failed: %v", i, err)
		}
	}
	mockTime.Advance(time.Hour)
	tier.drainOnce(ctx, false)

	if tier.QueueLen() != 10_000 {
		t.Errorf("QueueLen() = %d, want 10000", tier.QueueLen())
	}
	if warnings, _ := logger.count(); warnings == 0 {
		t.Error("expected a queue depth warning")
	}

	store.mu.Lock()
	store.storeErr = nil
	store.mu.Unlock()
	if err := tier.Flush(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestDrain_RepeatedTimeoutsStopWorker(t *testing.T) {
	store := newMockStore()
	store.block = make(chan struct{})
	defer close(store.block)

	var fatals int32
	tier, _, mockTime := newTestTier(t, Config{
		WriteDelay:        time.Hour,
		RollbackOnFailure: true,
		CacheStoreTimeout: 5 * time.Millisecond,
		MaxStoreTimeouts:  2,
		OnFatal: func(err error) {
			if IsDrainStopped(err) {
				atomic.AddInt32(&fatals, 1)
			}
		},
	}, store)
	ctx := context.Background()

	tier.Put(ctx, "A", 1)
	mockTime.Advance(time.Hour)

	if err := tier.drainOnce(ctx, false); !IsStoreTimeout(err) {
		t.Fatalf("first cycle: expected timeout, got %v", err)
	}
	if err := tier.drainOnce(ctx, false); !IsDrainStopped(err) {
		t.Fatalf("second cycle: expected drain stopped, got %v", err)
	}
	if err := tier.drainOnce(ctx, false); !IsDrainStopped(err) {
		t.Errorf("stopped drain ran again: %v", err)
	}

	if atomic.LoadInt32(&fatals) != 1 {
		t.Errorf("OnFatal called %d times, want 1", fatals)
	}
	if err := tier.Put(ctx, "B", 1); !IsDrainStopped(err) {
		t.Errorf("Put after fatal returned %v", err)
	}
	if !tier.Stats().DrainStopped {
		t.Error("Stats().DrainStopped = false")
	}
	if v, found, _ := tier.Get(ctx, "A"); !found || v != 1 {
		t.Error("queued value not readable after the drain stopped")
	}
	if code := GetErrorCode(tier.fatalError()); code != ErrCodeDrainStopped {
		t.Errorf("fatal code = %s", code)
	}
}

func TestDrain_Evict(t *testing.T) {
	store := newMockStore()
	tier, fast, _ := newTestTier(t, Config{WriteDelay: time.Hour}, store)
	ctx := context.Background()

	tier.Put(ctx, "k", 1)
	if err := tier.Evict(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if v, ok := store.get("k"); !ok || v != 1 {
		t.Error("Evict did not persist the pending write")
	}
	if fast.ContainsKey("k") || tier.QueueLen() != 0 {
		t.Error("Evict left state behind")
	}

	tier.Put(ctx, "k", 2)
	store.failFor(1)
	if err := tier.Evict(ctx, "k"); err == nil {
		t.Fatal("expected Evict to fail")
	}
	if !fast.ContainsKey("k") || tier.QueueLen() != 1 {
		t.Error("failed Evict must keep the entry cached and queued")
	}
}

func TestDrain_WorkerPersistsInBackground(t *testing.T) {
	store := newMockStore()
	fast := NewLocalMap[string, int](LocalMapConfig{MaxSize: 100})
	tier, err := New[string, int](Config{WriteDelay: 20 * time.Millisecond}, fast, store)
	if err != nil {
		t.Fatal(err)
	}
	defer tier.Close()

	tier.Put(context.Background(), "k", 1)
	if !waitFor(2*time.Second, func() bool { _, ok := store.get("k"); return ok }) {
		t.Fatal("drain worker never persisted the write")
	}
	if tier.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d after drain", tier.QueueLen())
	}
}
