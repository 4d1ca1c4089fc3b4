// tier.go: write-behind cache tier orchestration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// genStripes is the number of write generation counters and key write
// locks. A load only caches its result if no write touched the key's stripe
// while it ran.
const genStripes = 64

// TierStats provides statistics about a Tier.
type TierStats struct {
	ID string

	Hits      int64
	Misses    int64
	Loads     int64
	Stores    int64 // entries persisted
	Erases    int64 // tombstones persisted
	Requeued  int64
	Dropped   int64
	Refreshes int64

	QueueDepth    int
	MissCacheSize int
	DrainStopped  bool

	Bundlers []BundlerStats
}

// HitRatio returns the hit ratio as a percentage (0-100).
func (s TierStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Tier composes a fast map and a backing store. Reads are served from the
// fast map and fall back to the store; writes update the fast map first and
// reach the store synchronously (write-through, WriteDelay == 0) or through
// the write-behind queue. Writes to one key are applied in a single order
// to both; store implementations must not call back into the tier's write
// methods.
type Tier[K comparable, V any] struct {
	id     string
	cfg    Config
	fast   FastMap[K, V]
	cond   ConditionalPutter[K, V]
	store  *storeAdapter[K, V]
	misses *missCache[K]
	queue  *writeQueue[K, V]

	logger       Logger
	timeProvider TimeProvider
	metrics      MetricsCollector

	loads      singleflight.Group
	writeGens  [genStripes]uint64
	writeLocks [genStripes]sync.Mutex

	getB    *Bundler[K, loadResult[V]]
	putB    *Bundler[Pair[K, V], struct{}]
	removeB *Bundler[K, struct{}]

	refreshFactor uint64 // math.Float64bits
	refreshing    sync.Map
	refreshGroup  *errgroup.Group
	refreshCtx    context.Context
	refreshCancel context.CancelFunc

	drainMu     sync.Mutex
	timeouts    int
	fatal       atomic.Value // errorBox
	wake        chan struct{}
	stopCh      chan struct{}
	doneCh      chan struct{}
	failLimiter *rate.Limiter

	closeMu   sync.RWMutex // held shared by mutations, exclusively by Close
	closed    int32
	closeOnce sync.Once
	closeErr  error

	hits      int64
	missCount int64
	loadCount int64
	stored    int64
	erased    int64
	requeued  int64
	dropped   int64
	refreshes int64
}

// errorBox allows storing an error in atomic.Value.
type errorBox struct {
	err error
}

// New creates a Tier over fast and store.
//
// store must implement CacheStore unless cfg.ReadOnly is set. Optional
// BulkLoader, BulkStorer and BulkEraser capabilities are detected and used.
// If fast implements ConditionalPutter, loads and refresh-ahead never
// overwrite a value written concurrently.
//
// Configuration errors are returned here and never at call time.
func New[K comparable, V any](cfg Config, fast FastMap[K, V], store CacheLoader[K, V]) (*Tier[K, V], error) {
	if fast == nil {
		return nil, NewErrInvalidConfig("FastMap", nil, "non-nil FastMap")
	}
	if store == nil {
		return nil, NewErrMissingStore()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, ok := store.(CacheStore[K, V]); !ok && !cfg.ReadOnly {
		return nil, NewErrInvalidConfig("Store", fmt.Sprintf("%T", store), "CacheStore unless ReadOnly")
	}

	id := uuid.Must(uuid.NewV7()).String()
	logger := withKeyvals(cfg.Logger, "tier", id)

	t := &Tier[K, V]{
		id:           id,
		cfg:          cfg,
		fast:         fast,
		logger:       logger,
		timeProvider: cfg.TimeProvider,
		metrics:      cfg.MetricsCollector,
		failLimiter:  rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
	t.cond, _ = fast.(ConditionalPutter[K, V])
	t.store = newStoreAdapter(&t.cfg, store, logger)
	if !cfg.DisableMissCache {
		t.misses = newMissCache[K](cfg.MissCacheSize, cfg.MissCacheTTL, cfg.TimeProvider)
	}

	t.setRefreshFactor(cfg.RefreshAheadFactor)
	t.refreshCtx, t.refreshCancel = context.WithCancel(context.Background())
	t.refreshGroup = new(errgroup.Group)
	t.refreshGroup.SetLimit(cfg.RefreshWorkers)

	t.initBundlers()

	if cfg.writeBehind() {
		t.queue = newWriteQueue[K, V](&t.cfg, logger)
		t.wake = make(chan struct{}, 1)
		t.stopCh = make(chan struct{})
		t.doneCh = make(chan struct{})
		go t.drainLoop()
	}

	logger.Debug("tier created",
		"write_behind", cfg.writeBehind(),
		"write_delay", cfg.WriteDelay,
		"read_only", cfg.ReadOnly,
		"rollback_on_failure", cfg.RollbackOnFailure)
	return t, nil
}

// initBundlers wires the cache-facing bundlers to the bulk operations.
func (t *Tier[K, V]) initBundlers() {
	if bc, ok := t.cfg.bundlerFor(OpGet); ok {
		t.getB = newBundler(bc, t.metrics,
			func(ctx context.Context, key K) (loadResult[V], error) {
				v, found, err := t.get(ctx, key)
				return loadResult[V]{value: v, found: found}, err
			},
			func(ctx context.Context, keys []K) ([]loadResult[V], error) {
				m, err := t.GetAll(ctx, keys)
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
	if t.cfg.ReadOnly {
		return
	}
	if bc, ok := t.cfg.bundlerFor(OpPut); ok {
		t.putB = newBundler(bc, t.metrics,
			func(ctx context.Context, p Pair[K, V]) (struct{}, error) {
				return struct{}{}, t.put(ctx, p.Key, p.Value)
			},
			func(ctx context.Context, entries []Pair[K, V]) ([]struct{}, error) {
				return make([]struct{}, len(entries)), t.putAll(ctx, entries)
			})
	}
	if bc, ok := t.cfg.bundlerFor(OpRemove); ok {
		t.removeB = newBundler(bc, t.metrics,
			func(ctx context.Context, key K) (struct{}, error) {
				return struct{}{}, t.remove(ctx, key)
			},
			func(ctx context.Context, keys []K) ([]struct{}, error) {
				return make([]struct{}, len(keys)), t.removeAll(ctx, keys)
			})
	}
}

// ID returns the tier instance id used in log output.
func (t *Tier[K, V]) ID() string {
	return t.id
}

// Get returns the value for key, loading it from the store on a miss.
// A hit may schedule a refresh-ahead reload; Get never waits for it.
func (t *Tier[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	if t.getB != nil {
		r, err := t.getB.Execute(ctx, key)
		return r.value, r.found, err
	}
	return t.get(ctx, key)
}

func (t *Tier[K, V]) get(ctx context.Context, key K) (V, bool, error) {
	var zero V
	start := time.Now()

	if e, ok := t.fast.Get(key); ok {
		t.maybeRefresh(key, e)
		t.recordGet(start, true)
		return e.Value, true, nil
	}
	t.recordGet(start, false)

	if v, found, ok := t.pending(key); ok {
		return v, found, nil
	}
	if t.misses.contains(key) {
		return zero, false, nil
	}

	ch := t.loads.DoChan(keyToString(key), func() (interface{}, error) {
		return t.loadAndAdmit(context.WithoutCancel(ctx), key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		r := res.Val.(loadResult[V])
		return r.value, r.found, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (t *Tier[K, V]) recordGet(start time.Time, hit bool) {
	if hit {
		atomic.AddInt64(&t.hits, 1)
	} else {
		atomic.AddInt64(&t.missCount, 1)
	}
	t.metrics.RecordGet(time.Since(start).Nanoseconds(), hit)
}

// pending returns the value of a queued mutation for key. A queued
// tombstone reads as not found.
func (t *Tier[K, V]) pending(key K) (V, bool, bool) {
	var zero V
	if t.queue == nil {
		return zero, false, false
	}
	v, tombstone, ok := t.queue.get(key)
	if !ok {
		return zero, false, false
	}
	if tombstone {
		return zero, false, true
	}
	return v, true, true
}

func (t *Tier[K, V]) loadAndAdmit(ctx context.Context, key K) (loadResult[V], error) {
	gen := atomic.LoadUint64(t.genSlot(key))
	atomic.AddInt64(&t.loadCount, 1)

	v, found, err := t.store.load(ctx, key)
	if err != nil {
		return loadResult[V]{}, err
	}
	return t.admit(key, v, found, gen), nil
}

// admit caches a loaded result unless a write for the key raced with the
// load, and returns what the caller should observe.
func (t *Tier[K, V]) admit(key K, v V, found bool, gen uint64) loadResult[V] {
	if e, ok := t.fast.Get(key); ok {
		return loadResult[V]{value: e.Value, found: true}
	}
	if pv, pfound, ok := t.pending(key); ok {
		return loadResult[V]{value: pv, found: pfound}
	}
	if atomic.LoadUint64(t.genSlot(key)) != gen {
		return loadResult[V]{value: v, found: found}
	}
	if !found {
		t.misses.add(key)
		return loadResult[V]{}
	}
	if t.cond == nil {
		t.fast.Put(key, v)
	} else if !t.cond.PutIfAbsent(key, v) {
		if e, ok := t.fast.Get(key); ok {
			return loadResult[V]{value: e.Value, found: true}
		}
	}
	return loadResult[V]{value: v, found: true}
}

func (t *Tier[K, V]) genSlot(key K) *uint64 {
	return &t.writeGens[keyHash(key)%genStripes]
}

// lockKey serializes writers of key so that the fast map and the queue (or
// the store) see their updates in the same order.
func (t *Tier[K, V]) lockKey(key K) *sync.Mutex {
	mu := &t.writeLocks[keyHash(key)%genStripes]
	mu.Lock()
	return mu
}

// lockKeys locks the stripes of keys in ascending order and returns the
// matching unlock.
func (t *Tier[K, V]) lockKeys(keys []K) func() {
	stripes := make([]uint64, len(keys))
	for i, k := range keys {
		stripes[i] = keyHash(k) % genStripes
	}
	slices.Sort(stripes)
	stripes = slices.Compact(stripes)
	for _, s := range stripes {
		t.writeLocks[s].Lock()
	}
	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			t.writeLocks[stripes[i]].Unlock()
		}
	}
}

// GetAll returns the values found for keys. Keys missing from the fast map
// are loaded with a single bulk call when the store supports it.
func (t *Tier[K, V]) GetAll(ctx context.Context, keys []K) (map[K]V, error) {
	out := make(map[K]V, len(keys))
	var missing []K

	for _, k := range keys {
		start := time.Now()
		if e, ok := t.fast.Get(k); ok {
			t.maybeRefresh(k, e)
			t.recordGet(start, true)
			out[k] = e.Value
			continue
		}
		t.recordGet(start, false)
		if v, found, ok := t.pending(k); ok {
			if found {
				out[k] = v
			}
			continue
		}
		if t.misses.contains(k) {
			continue
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return out, nil
	}

	gens := make([]uint64, len(missing))
	for i, k := range missing {
		gens[i] = atomic.LoadUint64(t.genSlot(k))
	}
	atomic.AddInt64(&t.loadCount, int64(len(missing)))

	loaded, err := t.store.loadAll(ctx, missing)
	if err != nil {
		return out, err
	}
	for i, k := range missing {
		v, found := loaded[k]
		if r := t.admit(k, v, found, gens[i]); r.found {
			out[k] = r.value
		}
	}
	return out, nil
}

// beginWrite admits a mutation. Close waits for admitted mutations to
// return before its final flush; the returned func must be called once.
func (t *Tier[K, V]) beginWrite(op string) (func(), error) {
	t.closeMu.RLock()
	if err := t.checkWritable(op); err != nil {
		t.closeMu.RUnlock()
		return nil, err
	}
	return t.closeMu.RUnlock, nil
}

// checkWritable rejects mutations on read-only, closed or failed tiers.
func (t *Tier[K, V]) checkWritable(op string) error {
	if t.cfg.ReadOnly {
		return NewErrReadOnly(op)
	}
	if atomic.LoadInt32(&t.closed) == 1 {
		return NewErrClosed(op)
	}
	return t.fatalError()
}

func (t *Tier[K, V]) fatalError() error {
	if box, ok := t.fatal.Load().(errorBox); ok {
		return box.err
	}
	return nil
}

// Put stores value under key. The fast map is updated before Put returns.
// In write-through mode the store call completes before Put returns; its
// failure is returned only with RollbackOnFailure, which also restores the
// previous fast map state.
func (t *Tier[K, V]) Put(ctx context.Context, key K, value V) error {
	done, err := t.beginWrite("Put")
	if err != nil {
		return err
	}
	defer done()
	if t.putB != nil {
		_, err = t.putB.Execute(ctx, Pair[K, V]{Key: key, Value: value})
		return err
	}
	return t.put(ctx, key, value)
}

func (t *Tier[K, V]) put(ctx context.Context, key K, value V) error {
	defer t.lockKey(key).Unlock()
	atomic.AddUint64(t.genSlot(key), 1)

	if t.queue != nil {
		t.fast.Put(key, value)
		t.misses.invalidate(key)
		t.enqueue(key, value, false)
		return nil
	}

	u := t.capture(key)
	t.fast.Put(key, value)
	t.misses.invalidate(key)
	t.stampAfterPut(&u, key)

	if err := t.store.storeValue(ctx, key, value); err != nil {
		return t.writeThroughFailed("Put", []K{key}, []undo[V]{u}, err)
	}
	atomic.AddInt64(&t.stored, 1)
	return nil
}

// PutAll stores entries. In write-through mode they are persisted with one
// bulk call when the store supports it.
func (t *Tier[K, V]) PutAll(ctx context.Context, entries []Pair[K, V]) error {
	done, err := t.beginWrite("PutAll")
	if err != nil {
		return err
	}
	defer done()
	return t.putAll(ctx, entries)
}

func (t *Tier[K, V]) putAll(ctx context.Context, entries []Pair[K, V]) error {
	if t.queue != nil {
		for _, e := range entries {
			if err := t.put(ctx, e.Key, e.Value); err != nil {
				return err
			}
		}
		return nil
	}

	keys := make([]K, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	defer t.lockKeys(keys)()

	undos := make([]undo[V], len(entries))
	for i, e := range entries {
		atomic.AddUint64(t.genSlot(e.Key), 1)
		undos[i] = t.capture(e.Key)
		t.fast.Put(e.Key, e.Value)
		t.misses.invalidate(e.Key)
		t.stampAfterPut(&undos[i], e.Key)
	}

	if err := t.store.storeAll(ctx, entries); err != nil {
		return t.writeThroughFailed("PutAll", keys, undos, err)
	}
	atomic.AddInt64(&t.stored, int64(len(entries)))
	return nil
}

// Remove deletes key from the fast map and the store.
func (t *Tier[K, V]) Remove(ctx context.Context, key K) error {
	done, err := t.beginWrite("Remove")
	if err != nil {
		return err
	}
	defer done()
	if t.removeB != nil {
		_, err = t.removeB.Execute(ctx, key)
		return err
	}
	return t.remove(ctx, key)
}

func (t *Tier[K, V]) remove(ctx context.Context, key K) error {
	defer t.lockKey(key).Unlock()
	atomic.AddUint64(t.genSlot(key), 1)

	if t.queue != nil {
		var zero V
		t.fast.Remove(key)
		t.misses.invalidate(key)
		t.enqueue(key, zero, true)
		return nil
	}

	u := t.capture(key)
	u.active = u.had
	t.fast.Remove(key)
	t.misses.invalidate(key)

	if err := t.store.eraseKey(ctx, key); err != nil {
		return t.writeThroughFailed("Remove", []K{key}, []undo[V]{u}, err)
	}
	atomic.AddInt64(&t.erased, 1)
	return nil
}

// RemoveAll deletes keys from the fast map and the store.
func (t *Tier[K, V]) RemoveAll(ctx context.Context, keys []K) error {
	done, err := t.beginWrite("RemoveAll")
	if err != nil {
		return err
	}
	defer done()
	return t.removeAll(ctx, keys)
}

func (t *Tier[K, V]) removeAll(ctx context.Context, keys []K) error {
	if t.queue != nil {
		for _, k := range keys {
			if err := t.remove(ctx, k); err != nil {
				return err
			}
		}
		return nil
	}

	defer t.lockKeys(keys)()

	undos := make([]undo[V], len(keys))
	for i, k := range keys {
		atomic.AddUint64(t.genSlot(k), 1)
		undos[i] = t.capture(k)
		undos[i].active = undos[i].had
		t.fast.Remove(k)
		t.misses.invalidate(k)
	}

	if err := t.store.eraseAll(ctx, keys); err != nil {
		return t.writeThroughFailed("RemoveAll", keys, undos, err)
	}
	atomic.AddInt64(&t.erased, int64(len(keys)))
	return nil
}

func (t *Tier[K, V]) enqueue(key K, value V, tombstone bool) {
	depth, added := t.queue.enqueue(key, value, tombstone, t.timeProvider.Now())
	t.metrics.RecordQueueDepth(depth)
	if added && depth == 1 {
		t.signalDrain()
	}
}

// undo is the fast map state of one key before a write-through mutation.
type undo[V any] struct {
	active  bool
	had     bool
	prev    V
	stamped bool
	stamp   int64
}

func (t *Tier[K, V]) capture(key K) undo[V] {
	if !t.cfg.RollbackOnFailure {
		return undo[V]{}
	}
	e, ok := t.fast.Get(key)
	return undo[V]{active: true, had: ok, prev: e.Value}
}

// stampAfterPut records the LastUpdate written by our own Put so that a
// rollback only touches the entry if nobody rewrote it since.
func (t *Tier[K, V]) stampAfterPut(u *undo[V], key K) {
	if !u.active || t.cond == nil {
		return
	}
	if e, ok := t.fast.Get(key); ok {
		u.stamp, u.stamped = e.LastUpdate, true
	}
}

func (t *Tier[K, V]) rollback(key K, u undo[V]) {
	if !u.active {
		return
	}
	switch {
	case t.cond != nil && u.stamped && u.had:
		t.cond.PutIfUnchanged(key, u.stamp, u.prev)
	case t.cond != nil && u.stamped:
		t.cond.RemoveIfUnchanged(key, u.stamp)
	case t.cond != nil && u.had:
		t.cond.PutIfAbsent(key, u.prev)
	case u.had:
		t.fast.Put(key, u.prev)
	case t.cond == nil:
		t.fast.Remove(key)
	}
}

// writeThroughFailed applies the failure policy of a synchronous store call.
func (t *Tier[K, V]) writeThroughFailed(op string, keys []K, undos []undo[V], err error) error {
	if t.cfg.RollbackOnFailure {
		for i := len(keys) - 1; i >= 0; i-- {
			t.rollback(keys[i], undos[i])
		}
		return err
	}
	t.logger.Warn("write-through failed, store may be stale",
		"operation", op,
		"keys", len(keys),
		"error", err)
	return nil
}

// Evict drops key from the fast map after persisting its pending write, if
// any. If persisting fails the write stays queued and the entry stays cached.
func (t *Tier[K, V]) Evict(ctx context.Context, key K) error {
	if t.queue != nil {
		// An older write for key may be in flight in a drain batch.
		t.drainMu.Lock()
		defer t.drainMu.Unlock()
		if pw, ok := t.queue.cancel(key); ok {
			var err error
			if pw.tombstone {
				err = t.store.eraseKey(ctx, key)
			} else {
				err = t.store.storeValue(ctx, key, pw.value)
			}
			if err != nil {
				t.queue.requeue([]*pendingWrite[K, V]{pw}, 0, t.timeProvider.Now())
				return err
			}
			if pw.tombstone {
				atomic.AddInt64(&t.erased, 1)
			} else {
				atomic.AddInt64(&t.stored, 1)
			}
		}
	}
	t.fast.Remove(key)
	return nil
}

// Flush persists every queued write regardless of its ripe time.
func (t *Tier[K, V]) Flush(ctx context.Context) error {
	if t.queue == nil {
		return nil
	}
	return t.drainOnce(ctx, true)
}

// QueueLen returns the number of queued writes.
func (t *Tier[K, V]) QueueLen() int {
	if t.queue == nil {
		return 0
	}
	return t.queue.len()
}

// Close stops the drain worker, flushes the queue and waits for in-flight
// refresh-ahead reloads. Subsequent mutations fail with WB_CLOSED.
func (t *Tier[K, V]) Close() error {
	t.closeOnce.Do(func() {
		// Mutations admitted before closed is set reach the queue before
		// the final flush.
		t.closeMu.Lock()
		atomic.StoreInt32(&t.closed, 1)
		t.closeMu.Unlock()
		if t.queue != nil {
			close(t.stopCh)
			<-t.doneCh
			t.closeErr = t.drainOnce(context.Background(), true)
		}
		t.refreshCancel()
		_ = t.refreshGroup.Wait()
		t.logger.Debug("tier closed", "queued", t.QueueLen())
	})
	return t.closeErr
}

// Stats returns tier statistics.
func (t *Tier[K, V]) Stats() TierStats {
	stats := TierStats{
		ID:            t.id,
		Hits:          atomic.LoadInt64(&t.hits),
		Misses:        atomic.LoadInt64(&t.missCount),
		Loads:         atomic.LoadInt64(&t.loadCount),
		Stores:        atomic.LoadInt64(&t.stored),
		Erases:        atomic.LoadInt64(&t.erased),
		Requeued:      atomic.LoadInt64(&t.requeued),
		Dropped:       atomic.LoadInt64(&t.dropped),
		Refreshes:     atomic.LoadInt64(&t.refreshes),
		QueueDepth:    t.QueueLen(),
		MissCacheSize: t.misses.len(),
		DrainStopped:  t.fatalError() != nil,
	}
	for _, b := range t.bundlers() {
		stats.Bundlers = append(stats.Bundlers, b.Stats())
	}
	return stats
}

func (t *Tier[K, V]) bundlers() []bundlerControl {
	var out []bundlerControl
	if t.getB != nil {
		out = append(out, t.getB)
	}
	if t.putB != nil {
		out = append(out, t.putB)
	}
	if t.removeB != nil {
		out = append(out, t.removeB)
	}
	return append(out, t.store.bundlers()...)
}

// ApplyTuning changes runtime parameters. Out-of-range values are logged and
// ignored.
func (t *Tier[K, V]) ApplyTuning(tn Tuning) {
	if f := tn.RefreshAheadFactor; f != nil {
		if *f < 0 || *f > 1 {
			t.logger.Warn("ignoring refresh-ahead factor out of range", "value", *f)
		} else {
			t.setRefreshFactor(*f)
		}
	}

	if t.queue != nil {
		if f := tn.WriteBatchFactor; f != nil {
			if *f < 0 || *f > 1 {
				t.logger.Warn("ignoring write batch factor out of range", "value", *f)
			} else {
				t.queue.setBatchFactor(*f)
			}
		}
		if n := tn.WriteMaxBatchSize; n != nil {
			if *n <= 0 {
				t.logger.Warn("ignoring non-positive write max batch size", "value", *n)
			} else {
				t.queue.setMaxBatch(*n)
			}
		}
		if n := tn.WriteRequeueThreshold; n != nil && *n >= 0 {
			t.queue.setRequeueThreshold(*n)
		}
	}

	for _, b := range t.bundlers() {
		if n := tn.BundlePreferredSize; n != nil {
			b.SetPreferredSize(*n)
		}
		if d := tn.BundleDelay; d != nil {
			b.SetDelay(*d)
		}
		if on := tn.BundleAutoAdjust; on != nil {
			b.SetAutoAdjust(*on)
		}
	}
}

func (t *Tier[K, V]) setRefreshFactor(f float64) {
	atomic.StoreUint64(&t.refreshFactor, math.Float64bits(f))
}

func (t *Tier[K, V]) refreshAheadFactor() float64 {
	return math.Float64frombits(atomic.LoadUint64(&t.refreshFactor))
}

// Compile-time interface checks
var _ Tunable = (*Tier[string, int])(nil)
