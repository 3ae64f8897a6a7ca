package numutil

import (
	"math"
	"testing"
)

func TestSafeDivZeroDenominator(t *testing.T) {
	if got := SafeDiv(10, 0); got != 0 {
		t.Errorf("SafeDiv(10, 0) = %v, want 0", got)
	}
}

func TestSafeDivOrFallback(t *testing.T) {
	if got := SafeDivOr(10, 0, -1); got != -1 {
		t.Errorf("SafeDivOr(10, 0, -1) = %v, want -1", got)
	}
	if got := SafeDivOr(math.NaN(), 2, -1); got != -1 {
		t.Errorf("SafeDivOr(NaN, 2, -1) = %v, want -1", got)
	}
	if got := SafeDivOr(10, 4, -1); got != 2.5 {
		t.Errorf("SafeDivOr(10, 4, -1) = %v, want 2.5", got)
	}
}

func TestPctChange(t *testing.T) {
	cases := []struct {
		from, to, want float64
	}{
		{100, 105, 5},
		{100, 97.99, -2.01},
		{0, 50, 0}, // guarded: no reference price
		{200, 100, -50},
	}

	for _, c := range cases {
		got := PctChange(c.from, c.to)
		if math.Abs(got-c.want) > 1e-9 {
			t.Errorf("PctChange(%v, %v) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(1.23456, 2); got != 1.23 {
		t.Errorf("RoundTo(1.23456, 2) = %v, want 1.23", got)
	}
	if got := RoundTo(math.Inf(1), 2); got != 0 {
		t.Errorf("RoundTo(+Inf, 2) = %v, want 0", got)
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Errorf("Clamp(5, 0, 3) = %v, want 3", got)
	}
	if got := Clamp(-1, 0, 3); got != 0 {
		t.Errorf("Clamp(-1, 0, 3) = %v, want 0", got)
	}
	if got := Clamp(2, 0, 3); got != 2 {
		t.Errorf("Clamp(2, 0, 3) = %v, want 2", got)
	}
}

func TestNonNeg(t *testing.T) {
	if got := NonNeg(-0.0000001); got != 0 {
		t.Errorf("NonNeg(-eps) = %v, want 0", got)
	}
	if got := NonNeg(math.NaN()); got != 0 {
		t.Errorf("NonNeg(NaN) = %v, want 0", got)
	}
	if got := NonNeg(1.5); got != 1.5 {
		t.Errorf("NonNeg(1.5) = %v, want 1.5", got)
	}
}
