package analytics

import (
	"math"
	"testing"
	"time"
)

func TestWindowAggregatesByHour(t *testing.T) {
	w := NewWindow(24)
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	w.RecordPrice(100, base)
	w.RecordPrice(104, base.Add(10*time.Minute))
	w.RecordPrice(98, base.Add(20*time.Minute))
	w.RecordCycle(90*time.Second, base.Add(25*time.Minute))
	w.RecordCycle(30*time.Second, base.Add(40*time.Minute))
	w.RecordSlippage(12, base.Add(25*time.Minute))
	w.RecordFailure(base.Add(30 * time.Minute))
	w.RecordRejection(base.Add(35 * time.Minute))

	// Second hour.
	w.RecordPrice(99, base.Add(70*time.Minute))

	snap := w.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot hours = %d, want 2", len(snap))
	}

	h := snap[0]
	if math.Abs(h.RangePct-6.0) > 1e-9 { // (104-98)/100*100
		t.Errorf("RangePct = %v, want 6", h.RangePct)
	}
	if h.CyclesCompleted != 2 {
		t.Errorf("CyclesCompleted = %d, want 2", h.CyclesCompleted)
	}
	if math.Abs(h.AvgCycleDurationSec-60) > 1e-9 {
		t.Errorf("AvgCycleDurationSec = %v, want 60", h.AvgCycleDurationSec)
	}
	if h.AvgSlippageBps != 12 {
		t.Errorf("AvgSlippageBps = %v, want 12", h.AvgSlippageBps)
	}
	if h.Failures != 1 || h.Rejections != 1 {
		t.Errorf("failures/rejections = %d/%d, want 1/1", h.Failures, h.Rejections)
	}
	if h.LastPrice != 98 {
		t.Errorf("LastPrice = %v, want 98", h.LastPrice)
	}
	if h.VolatilityPct <= 0 {
		t.Errorf("VolatilityPct = %v, want > 0", h.VolatilityPct)
	}

	if snap[1].LastPrice != 99 {
		t.Errorf("second hour LastPrice = %v, want 99", snap[1].LastPrice)
	}
}

func TestWindowEvictsOldestHours(t *testing.T) {
	w := NewWindow(2)
	base := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		w.RecordPrice(100+float64(i), base.Add(time.Duration(i)*time.Hour))
	}

	snap := w.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot hours = %d, want 2", len(snap))
	}
	if snap[0].LastPrice != 103 || snap[1].LastPrice != 104 {
		t.Errorf("kept wrong hours: %+v", snap)
	}
}
