package database

import (
	"testing"
	"time"

	"dex-dip-bot/internal/analytics"
)

// Hour keys bound into hourly_stats queries must land on the same values the
// analytics window stamps into its snapshots, truncated unix seconds.
func TestHourStartKeyMatchesWindowBuckets(t *testing.T) {
	ts := time.Date(2025, 6, 12, 14, 30, 45, 0, time.UTC)
	want := time.Date(2025, 6, 12, 14, 0, 0, 0, time.UTC).Unix()

	if got := hourStartKey(ts); got != want {
		t.Errorf("hourStartKey = %d, want %d", got, want)
	}
	if got := hourStartKey(ts.Truncate(time.Hour)); got != want {
		t.Errorf("already-truncated key = %d, want %d", got, want)
	}

	w := analytics.NewWindow(1)
	w.RecordPrice(100, ts)
	snap := w.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}
	if snap[0].HourStart != hourStartKey(ts) {
		t.Errorf("window key %d != query key %d", snap[0].HourStart, hourStartKey(ts))
	}
}
