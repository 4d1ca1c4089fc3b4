// bundler.go: coalescing of concurrent single-item calls into bulk calls
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package writebehind

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// adjustmentWarmup is the number of bundles executed before the first
	// size adjustment is attempted.
	adjustmentWarmup = 1000

	// adjustmentFrequency is the number of bundles between adjustments.
	adjustmentFrequency = 128
)

// BundlerStats is a snapshot of a Bundler's counters.
type BundlerStats struct {
	Operation string

	// Bundles is the number of bulk executions.
	Bundles int64

	// Items is the number of items executed in bundles.
	Items int64

	// Bypassed is the number of calls that took the single-item path,
	// including one-item bulk calls made when there is no single function.
	// Bypassed calls never count as bundles.
	Bypassed int64

	// Failed is the number of bundles whose bulk call returned an error.
	Failed int64

	// PreferredSize is the current size target.
	PreferredSize int

	// AverageBundleSize, AverageBurst and AverageThroughput cover the
	// last adjustment window.
	AverageBundleSize float64
	AverageBurst      time.Duration
	AverageThroughput float64 // items per second
}

// bundlerControl is the type-independent surface of a Bundler used for
// runtime tuning and stats.
type bundlerControl interface {
	SetPreferredSize(n int)
	SetDelay(d time.Duration)
	SetAutoAdjust(on bool)
	Stats() BundlerStats
}

// Bundler coalesces concurrent single-item calls into bulk calls.
//
// While fewer than ThreadThreshold callers are inside Execute, calls go
// straight to the single-item function. Above the threshold the first caller
// of a bundle becomes its leader: it waits until the bundle reaches the
// preferred size or the delay window elapses, runs the bulk function once and
// hands each waiter its own result. A bulk error is returned to every waiter.
type Bundler[T any, R any] struct {
	op      string
	single  func(ctx context.Context, item T) (R, error)
	bulk    func(ctx context.Context, items []T) ([]R, error)
	metrics MetricsCollector

	threshold  int32
	active     int32
	delayNanos int64
	autoAdjust int32

	mu        sync.Mutex
	current   *bundle[T, R]
	sizeCurr  float64
	sizePrev  float64
	adjusting int32

	bundles   int64
	items     int64
	bypassed  int64
	failed    int64
	burstNs   int64
	waitNs    int64
	window    bundlerWindow
	adjustRnd func(n int) int
}

// bundlerWindow holds the counters at the previous adjustment and the
// averages computed over the window since then.
type bundlerWindow struct {
	mu         sync.Mutex
	bundles    int64
	items      int64
	burstNs    int64
	waitNs     int64
	avgSize    float64
	avgBurstNs float64
	throughput float64
}

type bundle[T any, R any] struct {
	items   []T
	results []R
	err     error
	opened  time.Time
	closed  bool
	full    chan struct{}
	done    chan struct{}
}

// NewBundler creates a Bundler for cfg. single may be nil, in which case
// bypassed calls run bulk with one item; pass single to keep bulk off the
// bypass path entirely.
func NewBundler[T any, R any](
	cfg BundlerConfig,
	single func(ctx context.Context, item T) (R, error),
	bulk func(ctx context.Context, items []T) ([]R, error),
) (*Bundler[T, R], error) {
	if cfg.Operation == "" {
		cfg.Operation = OpAll
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if bulk == nil {
		return nil, NewErrInvalidConfig("bulk", nil, "non-nil function")
	}
	return newBundler(cfg, NoOpMetricsCollector{}, single, bulk), nil
}

// newBundler builds a Bundler from an already validated config.
func newBundler[T any, R any](
	cfg BundlerConfig,
	metrics MetricsCollector,
	single func(ctx context.Context, item T) (R, error),
	bulk func(ctx context.Context, items []T) ([]R, error),
) *Bundler[T, R] {
	b := &Bundler[T, R]{
		op:         cfg.Operation,
		single:     single,
		bulk:       bulk,
		metrics:    metrics,
		threshold:  int32(cfg.ThreadThreshold), // #nosec G115 - validated positive
		delayNanos: int64(cfg.Delay),
		sizeCurr:   float64(cfg.PreferredSize),
		adjustRnd:  rand.IntN,
	}
	if cfg.autoAdjust() {
		b.autoAdjust = 1
	}
	return b
}

// Execute runs item through the bundler and returns its individual result.
func (b *Bundler[T, R]) Execute(ctx context.Context, item T) (R, error) {
	n := atomic.AddInt32(&b.active, 1)
	defer atomic.AddInt32(&b.active, -1)

	if n < atomic.LoadInt32(&b.threshold) {
		atomic.AddInt64(&b.bypassed, 1)
		return b.executeSingle(ctx, item)
	}

	bd, idx, leader := b.join(item)
	if leader {
		b.lead(ctx, bd)
	}

	var zero R
	select {
	case <-bd.done:
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	if bd.err != nil {
		return zero, bd.err
	}
	return bd.results[idx], nil
}

func (b *Bundler[T, R]) executeSingle(ctx context.Context, item T) (R, error) {
	if b.single != nil {
		return b.single(ctx, item)
	}
	var zero R
	results, err := b.bulk(ctx, []T{item})
	if err != nil {
		return zero, err
	}
	if len(results) != 1 {
		return zero, NewErrBundleFailed(b.op, 1, len(results))
	}
	return results[0], nil
}

// join adds item to the open bundle, opening a new one if needed.
func (b *Bundler[T, R]) join(item T) (*bundle[T, R], int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	leader := false
	bd := b.current
	if bd == nil {
		bd = &bundle[T, R]{
			opened: time.Now(),
			full:   make(chan struct{}),
			done:   make(chan struct{}),
		}
		b.current = bd
		leader = true
	}
	idx := len(bd.items)
	bd.items = append(bd.items, item)

	if float64(len(bd.items)) >= b.sizeCurr {
		b.closeLocked(bd)
		close(bd.full)
	}
	return bd, idx, leader
}

func (b *Bundler[T, R]) closeLocked(bd *bundle[T, R]) {
	bd.closed = true
	if b.current == bd {
		b.current = nil
	}
}

// lead waits for the bundle to fill or the delay to pass, then executes it.
// The bulk call is detached from the leader's cancellation because it
// carries the followers' items too.
func (b *Bundler[T, R]) lead(ctx context.Context, bd *bundle[T, R]) {
	timer := time.NewTimer(time.Duration(atomic.LoadInt64(&b.delayNanos)))
	select {
	case <-bd.full:
	case <-timer.C:
	}
	timer.Stop()

	b.mu.Lock()
	if !bd.closed {
		b.closeLocked(bd)
	}
	b.mu.Unlock()

	start := time.Now()
	bd.results, bd.err = b.runBulk(context.WithoutCancel(ctx), bd.items)
	end := time.Now()
	close(bd.done)

	b.record(len(bd.items), end.Sub(start), end.Sub(bd.opened), bd.err != nil)
}

func (b *Bundler[T, R]) runBulk(ctx context.Context, items []T) (results []R, err error) {
	defer func() {
		if r := recover(); r != nil {
			results, err = nil, NewErrPanicRecovered(b.op, r)
		}
	}()
	results, err = b.bulk(ctx, items)
	if err == nil && len(results) != len(items) {
		return nil, NewErrBundleFailed(b.op, len(items), len(results))
	}
	return results, err
}

func (b *Bundler[T, R]) record(size int, burst, wait time.Duration, failed bool) {
	total := atomic.AddInt64(&b.bundles, 1)
	atomic.AddInt64(&b.items, int64(size))
	atomic.AddInt64(&b.burstNs, int64(burst))
	atomic.AddInt64(&b.waitNs, int64(wait))
	if failed {
		atomic.AddInt64(&b.failed, 1)
	}
	b.metrics.RecordBundle(b.op, size)

	if total > adjustmentWarmup && total%adjustmentFrequency == 0 {
		b.adjust()
	}
}

// updateWindow recomputes the window averages from the counters accumulated
// since the previous call.
func (b *Bundler[T, R]) updateWindow() {
	w := &b.window
	w.mu.Lock()
	defer w.mu.Unlock()

	bundles := atomic.LoadInt64(&b.bundles)
	items := atomic.LoadInt64(&b.items)
	burst := atomic.LoadInt64(&b.burstNs)
	wait := atomic.LoadInt64(&b.waitNs)

	dBundles, dItems := bundles-w.bundles, items-w.items
	dBurst, dWait := burst-w.burstNs, wait-w.waitNs
	if dBundles > 0 && dWait > 0 {
		w.avgSize = float64(dItems) / float64(dBundles)
		w.avgBurstNs = float64(dBurst) / float64(dBundles)
		w.throughput = float64(dItems) * float64(time.Second) / float64(dWait)
	}
	w.bundles, w.items, w.burstNs, w.waitNs = bundles, items, burst, wait
}

// adjust moves the preferred size in the direction that improved
// throughput during the last window.
func (b *Bundler[T, R]) adjust() {
	if !atomic.CompareAndSwapInt32(&b.adjusting, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&b.adjusting, 0)

	b.window.mu.Lock()
	thruPrev := b.window.throughput
	b.window.mu.Unlock()

	b.updateWindow()

	b.window.mu.Lock()
	thruCurr := b.window.throughput
	avgBurst := b.window.avgBurstNs
	b.window.mu.Unlock()

	if atomic.LoadInt32(&b.autoAdjust) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sizePrev, sizeCurr := b.sizePrev, b.sizeCurr
	var delta float64
	switch {
	case avgBurst >= float64(atomic.LoadInt64(&b.delayNanos)) && sizeCurr > 2:
		// Bulk calls take as long as the collection window: back off.
		delta = -math.Max(1, 0.1*sizeCurr)
	case sizePrev == 0:
		delta = math.Max(1, 0.1*sizeCurr)
	case math.Abs(thruCurr-thruPrev) <= math.Max(1, (thruCurr+thruPrev)/100):
		r := b.adjustRnd(100)
		if r < 10 || math.Abs(sizePrev-sizeCurr) < 0.001 {
			delta = math.Max(1, 0.05*sizeCurr)
			if r < 5 {
				delta = -delta
			}
		}
	case thruCurr > thruPrev:
		delta = sizeCurr - sizePrev
	default:
		delta = (sizePrev - sizeCurr) / 2
	}

	if next := sizeCurr + delta; delta != 0 && next > 1 {
		b.sizePrev, b.sizeCurr = sizeCurr, next
	}
}

// SetPreferredSize sets the bundle size target and restarts adjustment.
func (b *Bundler[T, R]) SetPreferredSize(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.sizeCurr, b.sizePrev = float64(n), 0
	b.mu.Unlock()
}

// SetDelay sets the collection window.
func (b *Bundler[T, R]) SetDelay(d time.Duration) {
	if d <= 0 {
		return
	}
	atomic.StoreInt64(&b.delayNanos, int64(d))
}

// SetAutoAdjust turns size adjustment on or off.
func (b *Bundler[T, R]) SetAutoAdjust(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&b.autoAdjust, v)
}

// PreferredSize returns the current bundle size target, rounded.
func (b *Bundler[T, R]) PreferredSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(math.Round(b.sizeCurr))
}

// Stats returns a snapshot of the bundler counters.
func (b *Bundler[T, R]) Stats() BundlerStats {
	b.window.mu.Lock()
	avgSize, avgBurst, thru := b.window.avgSize, b.window.avgBurstNs, b.window.throughput
	b.window.mu.Unlock()

	return BundlerStats{
		Operation:         b.op,
		Bundles:           atomic.LoadInt64(&b.bundles),
		Items:             atomic.LoadInt64(&b.items),
		Bypassed:          atomic.LoadInt64(&b.bypassed),
		Failed:            atomic.LoadInt64(&b.failed),
		PreferredSize:     b.PreferredSize(),
		AverageBundleSize: avgSize,
		AverageBurst:      time.Duration(avgBurst),
		AverageThroughput: thru,
	}
}
