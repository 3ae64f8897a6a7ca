// Package analytics accumulates per-cycle samples into hourly aggregates and
// serves the rolling window the regime classifier consumes. One Window exists
// per bot instance; the price stream and the cycle loop both feed it.
package analytics

import (
	"math"
	"sort"
	"sync"
	"time"

	"dex-dip-bot/internal/regime"
)

// bucket accumulates raw samples for one hour.
type bucket struct {
	hourStart   int64
	high        float64
	low         float64
	first       float64
	last        float64
	prices      int
	sumSqReturn float64
	prevPrice   float64

	slipSumBps float64
	slipCount  int

	cycles      int
	cycleDurSum time.Duration
	failures    int
	rejections  int
}

// Window is a rolling multi-hour analytics accumulator.
type Window struct {
	mu       sync.Mutex
	buckets  map[int64]*bucket
	maxHours int
}

// NewWindow creates a window retaining up to maxHours hourly buckets.
func NewWindow(maxHours int) *Window {
	if maxHours <= 0 {
		maxHours = 24
	}
	return &Window{
		buckets:  make(map[int64]*bucket),
		maxHours: maxHours,
	}
}

func (w *Window) bucketFor(ts time.Time) *bucket {
	hour := ts.Truncate(time.Hour).Unix()
	b, ok := w.buckets[hour]
	if !ok {
		b = &bucket{hourStart: hour, low: math.MaxFloat64}
		w.buckets[hour] = b
		w.evictLocked()
	}
	return b
}

func (w *Window) evictLocked() {
	for len(w.buckets) > w.maxHours {
		var oldest int64 = math.MaxInt64
		for h := range w.buckets {
			if h < oldest {
				oldest = h
			}
		}
		delete(w.buckets, oldest)
	}
}

// RecordPrice folds a price observation into the current hour.
func (w *Window) RecordPrice(price float64, ts time.Time) {
	if price <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.bucketFor(ts)
	if b.first == 0 {
		b.first = price
	}
	if price > b.high {
		b.high = price
	}
	if price < b.low {
		b.low = price
	}
	if b.prevPrice > 0 {
		r := (price - b.prevPrice) / b.prevPrice
		b.sumSqReturn += r * r
	}
	b.prevPrice = price
	b.last = price
	b.prices++
}

// RecordCycle records a completed trade cycle (a buy later closed by a sell).
func (w *Window) RecordCycle(duration time.Duration, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.bucketFor(ts)
	b.cycles++
	b.cycleDurSum += duration
}

// RecordSlippage records realized slippage of an executed trade.
func (w *Window) RecordSlippage(bps float64, ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b := w.bucketFor(ts)
	b.slipSumBps += bps
	b.slipCount++
}

// RecordFailure records an adapter-reported execution failure.
func (w *Window) RecordFailure(ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bucketFor(ts).failures++
}

// RecordRejection records a gating rejection.
func (w *Window) RecordRejection(ts time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bucketFor(ts).rejections++
}

// Snapshot returns the window as hourly aggregates, oldest first.
func (w *Window) Snapshot() []regime.HourlyStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]regime.HourlyStats, 0, len(w.buckets))
	for _, b := range w.buckets {
		stats := regime.HourlyStats{
			HourStart:       b.hourStart,
			CyclesCompleted: b.cycles,
			Failures:        b.failures,
			Rejections:      b.rejections,
			LastPrice:       b.last,
		}
		if b.prices > 0 && b.low < math.MaxFloat64 && b.first > 0 {
			stats.RangePct = (b.high - b.low) / b.first * 100
		}
		if b.prices > 1 {
			stats.VolatilityPct = math.Sqrt(b.sumSqReturn/float64(b.prices-1)) * 100
		}
		if b.slipCount > 0 {
			stats.AvgSlippageBps = b.slipSumBps / float64(b.slipCount)
		}
		if b.cycles > 0 {
			stats.AvgCycleDurationSec = b.cycleDurSum.Seconds() / float64(b.cycles)
		}
		out = append(out, stats)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].HourStart < out[j].HourStart })
	return out
}
