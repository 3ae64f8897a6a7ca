package scaleout

import (
	"math"
	"testing"
	"time"

	"dex-dip-bot/internal/regime"
	"dex-dip-bot/internal/tier"
)

func TestDecideSellPathPrimaryExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDollarProfit = 1.0

	// 10 units bought at 100, selling at 110: plenty of profit both legs.
	d := DecideSellPath(cfg, 10, 100, 110, regime.RegimeUnknown, tier.TierMedium)
	if d.Action != ActionPrimaryExit {
		t.Fatalf("action = %s (%s), want PRIMARY_EXIT", d.Action, d.Reason)
	}
	if !d.ShouldStartExtension {
		t.Error("primary exit should start an extension")
	}
	if math.Abs(d.SellQty-7) > 1e-9 || math.Abs(d.RemainderQty-3) > 1e-9 {
		t.Errorf("split = %v/%v, want 7/3", d.SellQty, d.RemainderQty)
	}
}

// A primary-exit profit below the dollar minimum falls back to FULL_EXIT.
func TestDecideSellPathFallbackOnThinPrimary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDollarProfit = 5.0

	// 1 unit at basis 100, price 101: primary leg nets well under $5.
	d := DecideSellPath(cfg, 1, 100, 101, regime.RegimeUnknown, tier.TierSmall)
	if d.Action != ActionFullExit {
		t.Fatalf("action = %s, want FULL_EXIT", d.Action)
	}
	if d.ShouldStartExtension {
		t.Error("fallback must not start an extension")
	}
	if d.SellQty != 1 {
		t.Errorf("fallback sells %v, want full position", d.SellQty)
	}
}

func TestDecideSellPathFallbackOnThinSecondary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinDollarProfit = 2.0
	cfg.PrimaryExitPct = 95 // tiny remainder cannot project enough profit

	d := DecideSellPath(cfg, 1, 100, 110, regime.RegimeUnknown, tier.TierMedium)
	if d.Action != ActionFullExit {
		t.Fatalf("action = %s (%s), want FULL_EXIT", d.Action, d.Reason)
	}
}

func TestDecideSellPathChaosForcesFull(t *testing.T) {
	cfg := DefaultConfig()
	d := DecideSellPath(cfg, 10, 100, 120, regime.RegimeChaos, tier.TierMedium)
	if d.Action != ActionFullExit {
		t.Errorf("action = %s, want FULL_EXIT under chaos", d.Action)
	}
}

func TestDecideSellPathWhaleNeedsOptIn(t *testing.T) {
	cfg := DefaultConfig()

	d := DecideSellPath(cfg, 10, 100, 120, regime.RegimeUnknown, tier.TierWhale)
	if d.Action != ActionFullExit {
		t.Errorf("whale without opt-in: action = %s, want FULL_EXIT", d.Action)
	}

	cfg.WhaleOptIn = true
	d = DecideSellPath(cfg, 10, 100, 120, regime.RegimeUnknown, tier.TierWhale)
	if d.Action != ActionPrimaryExit {
		t.Errorf("whale with opt-in: action = %s, want PRIMARY_EXIT", d.Action)
	}
}

// An ACTIVE extension under CHAOS aborts with the full quantity regardless of
// price.
func TestChaosAbortsActiveExtension(t *testing.T) {
	cfg := DefaultConfig()
	data := StartExtension(cfg, 3, 100, 110, time.Now())

	for _, price := range []float64{50, 110, 500} {
		d := data
		next, dec := EvaluateExtension(cfg, d, price, regime.RegimeChaos)
		if dec.Action != ActionAbortScaleOut {
			t.Errorf("price %v: action = %s, want ABORT_SCALE_OUT", price, dec.Action)
		}
		if dec.SellQty != 3 {
			t.Errorf("price %v: abort qty = %v, want full 3", price, dec.SellQty)
		}
		if !dec.Forced {
			t.Error("abort must be forced past the no-loss rule")
		}
		if next.State != StateNone {
			t.Errorf("state after abort = %s, want NONE", next.State)
		}
	}
}

func TestExtensionTargetExit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecondaryTargetPct = 2.0
	data := StartExtension(cfg, 3, 100, 110, time.Now())

	// Below target: hold.
	data, dec := EvaluateExtension(cfg, data, 111, regime.RegimeUnknown)
	if dec.Action != ActionHoldExtension {
		t.Fatalf("below target: action = %s, want HOLD_EXTENSION", dec.Action)
	}

	// Target 112.2 reached: exit everything.
	data, dec = EvaluateExtension(cfg, data, 112.5, regime.RegimeUnknown)
	if dec.Action != ActionExtensionExit {
		t.Fatalf("at target: action = %s, want EXTENSION_EXIT", dec.Action)
	}
	if dec.SellQty != 3 {
		t.Errorf("exit qty = %v, want 3", dec.SellQty)
	}
	if data.State != StateNone {
		t.Errorf("state = %s, want NONE", data.State)
	}
}

func TestTrailingStopAfterMinimumGain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SecondaryTargetPct = 10 // keep the target out of the way
	cfg.MinExtensionGainPct = 0.5
	cfg.TrailingStopPct = 1.0
	cfg.PullbackProtectPct = 0 // isolate trailing behavior

	data := StartExtension(cfg, 2, 100, 110, time.Now())

	// Rally past the arming gain.
	data, dec := EvaluateExtension(cfg, data, 111, regime.RegimeUnknown)
	if dec.Action != ActionHoldExtension {
		t.Fatalf("rally: action = %s, want HOLD", dec.Action)
	}
	if data.State != StateTrailing {
		t.Fatalf("state = %s, want TRAILING after min gain", data.State)
	}

	// Pull back 1% off the 111 peak.
	data, dec = EvaluateExtension(cfg, data, 109.8, regime.RegimeUnknown)
	if dec.Action != ActionExtensionExit {
		t.Fatalf("pullback: action = %s (%s), want EXTENSION_EXIT", dec.Action, dec.Reason)
	}
	if dec.Forced {
		t.Error("trailing exit is not forced")
	}
}

func TestPullbackProtection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrailingEnabled = false
	cfg.PullbackProtectPct = 0.25
	cfg.PullbackMinProfitUSD = 1.0

	// Entry 110, basis 109.9: drifting back to entry with negligible profit.
	data := StartExtension(cfg, 2, 109.9, 110, time.Now())
	data, dec := EvaluateExtension(cfg, data, 110.1, regime.RegimeUnknown)
	if dec.Action != ActionExtensionExit {
		t.Fatalf("action = %s (%s), want EXTENSION_EXIT", dec.Action, dec.Reason)
	}
	if data.State != StateNone {
		t.Errorf("state = %s, want NONE", data.State)
	}
}

func TestMultiStepLadderSellsOneLevelPerCycle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MultiStepEnabled = true
	cfg.StepCount = 3
	cfg.StepRangePct = 3.0
	cfg.TrailingEnabled = false
	cfg.PullbackProtectPct = 0

	data := StartExtension(cfg, 9, 100, 100, time.Now())
	if len(data.Levels) != 3 {
		t.Fatalf("levels = %d, want 3", len(data.Levels))
	}
	// Levels at +1%, +2%, +3%.
	if math.Abs(data.Levels[0].TargetPrice-101) > 1e-9 || math.Abs(data.Levels[2].TargetPrice-103) > 1e-9 {
		t.Fatalf("level targets wrong: %+v", data.Levels)
	}

	// A jump straight past level 2 still only exits level 1 this cycle.
	data, dec := EvaluateExtension(cfg, data, 102.5, regime.RegimeUnknown)
	if dec.Action != ActionExtensionExit || math.Abs(dec.SellQty-3) > 1e-9 {
		t.Fatalf("first step: %+v", dec)
	}
	if data.StepsDone != 1 {
		t.Errorf("StepsDone = %d, want 1", data.StepsDone)
	}

	// Next cycle exits level 2.
	data, dec = EvaluateExtension(cfg, data, 102.5, regime.RegimeUnknown)
	if dec.Action != ActionExtensionExit || math.Abs(dec.SellQty-3) > 1e-9 {
		t.Fatalf("second step: %+v", dec)
	}

	// Level 3 not reached: hold.
	data, dec = EvaluateExtension(cfg, data, 102.5, regime.RegimeUnknown)
	if dec.Action != ActionHoldExtension {
		t.Fatalf("third step early: %+v", dec)
	}

	// Final level completes and clears the leg.
	data, dec = EvaluateExtension(cfg, data, 103.2, regime.RegimeUnknown)
	if dec.Action != ActionExtensionExit || math.Abs(dec.SellQty-3) > 1e-9 {
		t.Fatalf("final step: %+v", dec)
	}
	if data.State != StateNone || data.Qty != 0 {
		t.Errorf("ladder complete but state = %s qty = %v", data.State, data.Qty)
	}
}
