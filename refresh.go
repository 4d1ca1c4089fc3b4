// refresh.go: refresh-ahead reloads of entries nearing expiration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"sync/atomic"
)

// softExpiration returns E - f*(E - lastUpdate), and false when
// refresh-ahead does not apply.
func softExpiration(lastUpdate, expireAt int64, f float64) (int64, bool) {
	if f <= 0 || expireAt == 0 {
		return 0, false
	}
	return expireAt - int64(f*float64(expireAt-lastUpdate)), true
}

// maybeRefresh schedules a background reload of key when the entry read is
// past its soft expiration but not yet expired. It never blocks: at most one
// reload per key is in flight, and a full executor skips the reload.
func (t *Tier[K, V]) maybeRefresh(key K, e Entry[V]) {
	soft, ok := softExpiration(e.LastUpdate, e.ExpireAt, t.refreshAheadFactor())
	if !ok || atomic.LoadInt32(&t.closed) == 1 {
		return
	}
	now := t.timeProvider.Now()
	if now < soft || now >= e.ExpireAt {
		return
	}

	if _, loaded := t.refreshing.LoadOrStore(key, struct{}{}); loaded {
		return
	}
	scheduled := t.refreshGroup.TryGo(func() error {
		defer t.refreshing.Delete(key)
		t.refresh(key, e.LastUpdate)
		return nil
	})
	if !scheduled {
		t.refreshing.Delete(key)
	}
}

// refresh reloads key and installs the result only if the entry still
// carries stamp and no write for the key is pending.
func (t *Tier[K, V]) refresh(key K, stamp int64) {
	atomic.AddInt64(&t.refreshes, 1)
	t.metrics.RecordRefresh()

	if t.queue != nil && t.queue.contains(key) {
		return
	}

	ctx, cancel := context.WithTimeout(t.refreshCtx, t.cfg.RefreshTimeout)
	defer cancel()

	v, found, err := t.store.load(ctx, key)
	if err != nil {
		t.logger.Debug("refresh-ahead reload failed", "error", err)
		return
	}
	if t.queue != nil && t.queue.contains(key) {
		return
	}

	if t.cond != nil {
		if found {
			t.cond.PutIfUnchanged(key, stamp, v)
		} else if t.cond.RemoveIfUnchanged(key, stamp) {
			t.misses.add(key)
		}
		return
	}

	cur, ok := t.fast.Get(key)
	if !ok || cur.LastUpdate != stamp {
		return
	}
	if found {
		t.fast.Put(key, v)
	} else {
		t.fast.Remove(key)
		t.misses.add(key)
	}
}
