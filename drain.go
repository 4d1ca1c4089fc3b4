// drain.go: background persistence of the write-behind queue
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"sync/atomic"
	"time"
)

// minDrainWait bounds how often the drain worker wakes up.
const minDrainWait = time.Millisecond

func (t *Tier[K, V]) signalDrain() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// drainLoop is the single drain worker of a write-behind tier. It sleeps
// until the oldest queued write is ripe, drains, and exits on Close or when
// repeated store timeouts stop it.
func (t *Tier[K, V]) drainLoop() {
	defer close(t.doneCh)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	timer.Stop()

	var backoff time.Duration
	for {
		var timerC <-chan time.Time
		if ripe, ok := t.queue.nextRipe(); ok {
			wait := time.Duration(ripe - t.timeProvider.Now())
			if wait < backoff {
				wait = backoff
			}
			if wait < minDrainWait {
				wait = minDrainWait
			}
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-t.stopCh:
			return
		case <-t.wake:
			timer.Stop()
		case <-timerC:
			backoff = 0
			err := t.drainOnce(context.Background(), false)
			switch {
			case err == nil:
			case IsDrainStopped(err):
				return
			default:
				backoff = t.retryBackoff()
				if t.failLimiter.Allow() {
					t.logger.Warn("write-behind drain failed, entries requeued",
						"queued", t.queue.len(),
						"retry_in", backoff,
						"error", err)
				}
			}
		}
	}
}

// retryBackoff is the pause before retrying after a failed cycle.
func (t *Tier[K, V]) retryBackoff() time.Duration {
	if t.cfg.WriteRequeueDelay > 0 {
		return t.cfg.WriteRequeueDelay
	}
	return t.cfg.WriteDelay
}

// drainOnce persists batches until nothing is ripe, or everything when
// flush is set. It stops at the first failure that leaves entries queued.
func (t *Tier[K, V]) drainOnce(ctx context.Context, flush bool) error {
	t.drainMu.Lock()
	defer t.drainMu.Unlock()

	for {
		if err := t.fatalError(); err != nil {
			return err
		}
		batch := t.queue.takeBatch(t.timeProvider.Now(), flush)
		if len(batch) == 0 {
			return nil
		}
		if err := t.persistBatch(ctx, batch); err != nil {
			return err
		}
	}
}

// persistBatch writes batch as consecutive runs of stores and erases so
// that the store sees mutations in queue order.
func (t *Tier[K, V]) persistBatch(ctx context.Context, batch []*pendingWrite[K, V]) error {
	for start := 0; start < len(batch); {
		end := start + 1
		for end < len(batch) && batch[end].tombstone == batch[start].tombstone {
			end++
		}
		run := batch[start:end]

		err := t.persistRun(ctx, run)
		if err == nil {
			t.timeouts = 0
			t.queue.complete(run)
			t.metrics.RecordQueueDepth(t.queue.len())
			start = end
			continue
		}

		if IsStoreTimeout(err) {
			t.timeouts++
		} else {
			t.timeouts = 0
		}
		fatal := t.timeouts >= t.cfg.MaxStoreTimeouts

		switch {
		case t.cfg.RollbackOnFailure:
			t.requeue(batch[start:])
		case fatal:
			// The remaining runs stay queued for the stopped worker.
			t.deadLetter(run, err)
			t.requeue(batch[end:])
		default:
			t.deadLetter(run, err)
		}
		t.metrics.RecordQueueDepth(t.queue.len())

		if fatal {
			return t.stopDrain(err)
		}
		if t.cfg.RollbackOnFailure {
			return err
		}
		start = end
	}
	return nil
}

func (t *Tier[K, V]) persistRun(ctx context.Context, run []*pendingWrite[K, V]) error {
	if run[0].tombstone {
		keys := make([]K, len(run))
		for i, pw := range run {
			keys[i] = pw.key
		}
		if err := t.store.eraseAll(ctx, keys); err != nil {
			return err
		}
		atomic.AddInt64(&t.erased, int64(len(run)))
		return nil
	}

	entries := make([]Pair[K, V], len(run))
	for i, pw := range run {
		entries[i] = Pair[K, V]{Key: pw.key, Value: pw.value}
	}
	if err := t.store.storeAll(ctx, entries); err != nil {
		return err
	}
	atomic.AddInt64(&t.stored, int64(len(run)))
	return nil
}

func (t *Tier[K, V]) requeue(entries []*pendingWrite[K, V]) {
	if len(entries) == 0 {
		return
	}
	n := t.queue.requeue(entries, t.cfg.WriteRequeueDelay, t.timeProvider.Now())
	atomic.AddInt64(&t.requeued, int64(n))
}

// deadLetter drops entries that could not be persisted.
func (t *Tier[K, V]) deadLetter(run []*pendingWrite[K, V], err error) {
	t.queue.complete(run)
	atomic.AddInt64(&t.dropped, int64(len(run)))
	if t.failLimiter.Allow() {
		t.logger.Error("write-behind entries dropped, store is stale",
			"entries", len(run),
			"error", err)
	}
	if t.cfg.OnDeadLetter == nil {
		return
	}
	for _, pw := range run {
		t.cfg.OnDeadLetter(pw.key, pw.value, pw.tombstone, err)
	}
}

// stopDrain marks the drain worker as failed and raises the alarm once.
func (t *Tier[K, V]) stopDrain(cause error) error {
	fatal := NewErrDrainStopped(t.timeouts, cause)
	t.fatal.Store(errorBox{err: fatal})
	t.logger.Error("write-behind drain stopped",
		"consecutive_timeouts", t.timeouts,
		"queued", t.queue.len(),
		"error", cause)
	if t.cfg.OnFatal != nil {
		t.cfg.OnFatal(fatal)
	}
	return fatal
}
