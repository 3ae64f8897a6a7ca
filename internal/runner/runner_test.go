package runner

import (
	"math"
	"testing"
	"time"
)

func activeRunner(cfg Config, qty, basis, entry float64) StateData {
	data, _ := MaybeCreate(cfg, qty, basis, entry, time.Now())
	return data
}

func TestMaybeCreateDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	data, dec := MaybeCreate(cfg, 5, 100, 110, time.Now())
	if dec.Action != ActionNone || data.State != StateNone {
		t.Errorf("disabled runner created anyway: %+v %+v", data, dec)
	}
}

func TestMaybeCreateTracksRemainder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	data, dec := MaybeCreate(cfg, 2, 100, 110, time.Now())
	if dec.Action != ActionCreateRunner {
		t.Fatalf("action = %s, want CREATE_RUNNER", dec.Action)
	}
	if data.State != StateActive || data.Qty != 2 || data.EntryPrice != 110 {
		t.Errorf("runner state wrong: %+v", data)
	}
}

// A runner exit that would realize a loss is blocked outright.
func TestRunnerLossBlock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Mode = ModeTrailing
	cfg.TrailingActivationPct = 0 // armed immediately
	cfg.TrailingStopPct = 0.5

	data := activeRunner(cfg, 1, 100, 100)

	// Peak forms above entry, then price collapses below cost basis.
	data, dec := EvaluateExit(cfg, data, 103, 1.0)
	if dec.Action != ActionHoldRunner {
		t.Fatalf("rally: %+v", dec)
	}

	data, dec = EvaluateExit(cfg, data, 99, 1.0)
	if dec.Action != ActionBlockedProfit {
		t.Fatalf("action = %s, want BLOCKED_PROFIT", dec.Action)
	}
	if dec.SellQty != 0 {
		t.Errorf("blocked exit sellQty = %v, want 0", dec.SellQty)
	}
	if data.State != StateActive || data.Qty != 1 {
		t.Errorf("blocked exit must not consume the runner: %+v", data)
	}
}

func TestRunnerCostBlock(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Mode = ModeLadder

	data := activeRunner(cfg, 10, 100, 100)

	// Ladder step 1 (+2%) reached, but the net edge is negative.
	_, dec := EvaluateExit(cfg, data, 103, -0.2)
	if dec.Action != ActionBlockedCost {
		t.Fatalf("action = %s, want BLOCKED_COST", dec.Action)
	}
}

// A runner under water reports the profit block even when no ladder step is
// pending yet.
func TestLossBlockPrecedesExitModes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Mode = ModeLadder

	data := activeRunner(cfg, 1, 100, 100)

	data, dec := EvaluateExit(cfg, data, 99, 1.0)
	if dec.Action != ActionBlockedProfit {
		t.Fatalf("action = %s, want BLOCKED_PROFIT", dec.Action)
	}
	if dec.SellQty != 0 {
		t.Errorf("sellQty = %v, want 0", dec.SellQty)
	}
	if data.State != StateActive || data.Qty != 1 || data.LadderIndex != 0 {
		t.Errorf("block must not advance the runner: %+v", data)
	}
}

func TestLadderExitsInOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Mode = ModeLadder

	data := activeRunner(cfg, 10, 100, 100)

	// Step 1: +2% target, sells 40% of the initial quantity.
	data, dec := EvaluateExit(cfg, data, 102.5, 0.5)
	if dec.Action != ActionSellRunner || math.Abs(dec.SellQty-4) > 1e-9 {
		t.Fatalf("step 1: %+v", dec)
	}

	// Below step 2 target: hold.
	data, dec = EvaluateExit(cfg, data, 103, 0.5)
	if dec.Action != ActionHoldRunner {
		t.Fatalf("step 2 early: %+v", dec)
	}

	// Step 2: +4%, sells 30%.
	data, dec = EvaluateExit(cfg, data, 104.2, 0.5)
	if dec.Action != ActionSellRunner || math.Abs(dec.SellQty-3) > 1e-9 {
		t.Fatalf("step 2: %+v", dec)
	}

	// Step 3: +8%, final rung closes the runner.
	data, dec = EvaluateExit(cfg, data, 108.5, 0.5)
	if dec.Action != ActionSellRunner || math.Abs(dec.SellQty-3) > 1e-9 {
		t.Fatalf("step 3: %+v", dec)
	}
	if data.State != StateNone {
		t.Errorf("runner should close after final rung: %+v", data)
	}
}

func TestTrailingExitSellsEverything(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Mode = ModeTrailing
	cfg.TrailingActivationPct = 2.0
	cfg.TrailingStopPct = 1.5

	data := activeRunner(cfg, 5, 100, 100)

	// Not armed below activation gain.
	data, dec := EvaluateExit(cfg, data, 101, 0.5)
	if dec.Action != ActionHoldRunner || data.Activated {
		t.Fatalf("premature arming: %+v %+v", data, dec)
	}

	// Arms at +2%, peaks at 105.
	data, dec = EvaluateExit(cfg, data, 105, 0.5)
	if !data.Activated {
		t.Fatal("trailing should be armed")
	}

	// 1.5% off the peak exits the full quantity.
	data, dec = EvaluateExit(cfg, data, 103.4, 0.5)
	if dec.Action != ActionSellRunner || math.Abs(dec.SellQty-5) > 1e-9 {
		t.Fatalf("trailing exit: %+v", dec)
	}
	if data.State != StateNone {
		t.Errorf("runner should close after trailing exit: %+v", data)
	}
}

func TestValidateLadder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	if err := cfg.Validate(); err != nil {
		t.Errorf("default ladder invalid: %v", err)
	}

	cfg.Ladder = []LadderStep{{TargetPct: 4, SellPct: 50}, {TargetPct: 2, SellPct: 50}}
	if err := cfg.Validate(); err == nil {
		t.Error("descending ladder should fail validation")
	}

	cfg.Ladder = []LadderStep{{TargetPct: 2, SellPct: 50}, {TargetPct: 4, SellPct: 30}}
	if err := cfg.Validate(); err == nil {
		t.Error("ladder not summing to 100 should fail validation")
	}
}
