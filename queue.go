// queue.go: ordered, per-key de-duplicating queue of pending writes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"container/heap"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pendingWrite is a mutation waiting to be persisted. Times are nanoseconds
// from the tier's TimeProvider.
type pendingWrite[K comparable, V any] struct {
	key        K
	value      V
	tombstone  bool
	insertedAt int64
	ripeAt     int64
	seq        uint64
	index      int
}

// pendingHeap maintains sorted order based on (ripeAt, seq).
type pendingHeap[K comparable, V any] []*pendingWrite[K, V]

func (h pendingHeap[K, V]) Len() int { return len(h) }

func (h pendingHeap[K, V]) Less(i, j int) bool {
	if h[i].ripeAt != h[j].ripeAt {
		return h[i].ripeAt < h[j].ripeAt
	}
	return h[i].seq < h[j].seq
}

func (h pendingHeap[K, V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *pendingHeap[K, V]) Push(itm interface{}) {
	pw := itm.(*pendingWrite[K, V])
	pw.index = len(*h)
	*h = append(*h, pw)
}

func (h *pendingHeap[K, V]) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	x.index = -1
	*h = old[:n-1]
	return x
}

// writeQueue holds at most one pending write per key. Entries taken by the
// drain worker stay visible through get until they are completed or
// requeued, so reads never fall back to a store that has not seen them yet.
type writeQueue[K comparable, V any] struct {
	mu       sync.Mutex
	heap     pendingHeap[K, V]
	byKey    map[K]*pendingWrite[K, V]
	inflight map[K]*pendingWrite[K, V]
	seq      uint64

	delay            int64
	batchFactor      float64
	maxBatch         int
	requeueThreshold int

	logger      Logger
	warnLimiter *rate.Limiter
}

func newWriteQueue[K comparable, V any](cfg *Config, logger Logger) *writeQueue[K, V] {
	return &writeQueue[K, V]{
		byKey:            make(map[K]*pendingWrite[K, V]),
		inflight:         make(map[K]*pendingWrite[K, V]),
		delay:            int64(cfg.WriteDelay),
		batchFactor:      cfg.WriteBatchFactor,
		maxBatch:         cfg.WriteMaxBatchSize,
		requeueThreshold: cfg.WriteRequeueThreshold,
		logger:           logger,
		warnLimiter:      rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

// enqueue records a mutation for key. A write for an already queued key
// replaces its value and keeps its ripe time. It returns the queue depth and
// whether a new entry was created.
func (q *writeQueue[K, V]) enqueue(key K, value V, tombstone bool, now int64) (int, bool) {
	q.mu.Lock()
	if pw, ok := q.byKey[key]; ok {
		pw.value, pw.tombstone = value, tombstone
		depth := len(q.heap)
		q.mu.Unlock()
		return depth, false
	}

	q.seq++
	pw := &pendingWrite[K, V]{
		key:        key,
		value:      value,
		tombstone:  tombstone,
		insertedAt: now,
		ripeAt:     now + q.delay,
		seq:        q.seq,
	}
	heap.Push(&q.heap, pw)
	q.byKey[key] = pw
	depth := len(q.heap)
	threshold := q.requeueThreshold
	q.mu.Unlock()

	if threshold > 0 && depth%threshold == 0 && q.warnLimiter.Allow() {
		q.logger.Warn("write-behind queue is growing",
			"depth", depth,
			"threshold", threshold)
	}
	return depth, true
}

// cancel removes the queued entry for key, if any.
func (q *writeQueue[K, V]) cancel(key K) (*pendingWrite[K, V], bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pw, ok := q.byKey[key]
	if !ok {
		return nil, false
	}
	heap.Remove(&q.heap, pw.index)
	delete(q.byKey, key)
	return pw, true
}

// get returns the newest pending mutation for key, queued or in flight.
func (q *writeQueue[K, V]) get(key K) (value V, tombstone bool, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pw, ok := q.byKey[key]
	if !ok {
		pw, ok = q.inflight[key]
	}
	if !ok {
		return value, false, false
	}
	return pw.value, pw.tombstone, true
}

// contains reports whether key has a pending mutation, queued or in flight.
func (q *writeQueue[K, V]) contains(key K) bool {
	_, _, ok := q.get(key)
	return ok
}

// softRipeAt returns the time from which pw may join a batch early.
func (q *writeQueue[K, V]) softRipeAt(pw *pendingWrite[K, V]) int64 {
	return pw.ripeAt - int64(float64(q.delay)*q.batchFactor)
}

// takeBatch removes and returns the next batch to persist. A batch is only
// formed when the oldest entry is ripe, unless flush is set; it is then
// topped up with ripe and soft-ripe entries up to the maximum batch size.
// Entries come out in ripe order, which is enqueue order.
func (q *writeQueue[K, V]) takeBatch(now int64, flush bool) []*pendingWrite[K, V] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 || (!flush && q.heap[0].ripeAt > now) {
		return nil
	}

	var batch []*pendingWrite[K, V]
	for len(q.heap) > 0 && len(batch) < q.maxBatch {
		top := q.heap[0]
		if !flush && top.ripeAt > now && q.softRipeAt(top) > now {
			break
		}
		heap.Pop(&q.heap)
		delete(q.byKey, top.key)
		q.inflight[top.key] = top
		batch = append(batch, top)
	}
	return batch
}

// complete forgets in-flight entries that were persisted or dropped.
func (q *writeQueue[K, V]) complete(entries []*pendingWrite[K, V]) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, pw := range entries {
		if q.inflight[pw.key] == pw {
			delete(q.inflight, pw.key)
		}
	}
}

// requeue puts failed entries back. An entry is skipped when a newer write
// for its key was queued meanwhile. With a positive delay the entry becomes
// ripe no earlier than now+delay. It returns the number of entries requeued.
func (q *writeQueue[K, V]) requeue(entries []*pendingWrite[K, V], delay time.Duration, now int64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, pw := range entries {
		if q.inflight[pw.key] == pw {
			delete(q.inflight, pw.key)
		}
		if _, newer := q.byKey[pw.key]; newer {
			continue
		}
		if delay > 0 && pw.ripeAt < now+int64(delay) {
			pw.ripeAt = now + int64(delay)
		}
		heap.Push(&q.heap, pw)
		q.byKey[pw.key] = pw
		n++
	}
	return n
}

// nextRipe returns the ripe time of the oldest entry.
func (q *writeQueue[K, V]) nextRipe() (int64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return 0, false
	}
	return q.heap[0].ripeAt, true
}

func (q *writeQueue[K, V]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

func (q *writeQueue[K, V]) setBatchFactor(f float64) {
	q.mu.Lock()
	q.batchFactor = f
	q.mu.Unlock()
}

func (q *writeQueue[K, V]) setMaxBatch(n int) {
	q.mu.Lock()
	q.maxBatch = n
	q.mu.Unlock()
}

func (q *writeQueue[K, V]) setRequeueThreshold(n int) {
	q.mu.Lock()
	q.requeueThreshold = n
	q.mu.Unlock()
}
