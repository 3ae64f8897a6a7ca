package reserve

import (
	"math"
	"testing"

	"dex-dip-bot/internal/regime"
)

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.RescueEnabled = true
	cfg.ChaseEnabled = true
	return cfg
}

func TestSplitBuckets(t *testing.T) {
	cfg := enabledConfig()
	cfg.ResetReservePct = 30

	trading, st := Split(cfg, 1000)
	if trading != 700 {
		t.Errorf("trading bucket = %v, want 700", trading)
	}
	if st.InitialReserve != 300 || st.AvailableReserve != 300 {
		t.Errorf("reserve = %+v, want 300/300", st)
	}

	cfg.Enabled = false
	trading, st = Split(cfg, 1000)
	if trading != 1000 || st.InitialReserve != 0 {
		t.Errorf("disabled split = %v/%+v", trading, st)
	}
}

func TestRescueTriggerAndLimits(t *testing.T) {
	cfg := enabledConfig()
	cfg.RescueGate = GateNone
	cfg.RescueTriggerPct = 5
	cfg.RescueSizePct = 50
	cfg.MaxRescuesPerCycle = 2

	_, st := Split(cfg, 1000) // 300 reserve

	// 4% drop: no trigger.
	st, dec := EvaluateRescue(cfg, st, 96, 100, regime.RegimeUnknown, 0)
	if dec.Action != ActionNone {
		t.Fatalf("4%% drop should not trigger: %+v", dec)
	}

	// 6% drop: deploys half the reserve.
	st, dec = EvaluateRescue(cfg, st, 94, 100, regime.RegimeUnknown, 0)
	if dec.Action != ActionRescueBuy {
		t.Fatalf("6%% drop should trigger: %+v", dec)
	}
	if math.Abs(dec.QuoteAmount-150) > 1e-9 {
		t.Errorf("rescue amount = %v, want 150", dec.QuoteAmount)
	}
	if math.Abs(st.AvailableReserve-150) > 1e-9 {
		t.Errorf("remaining reserve = %v, want 150", st.AvailableReserve)
	}

	// Second rescue allowed, third blocked by the count limit.
	st, dec = EvaluateRescue(cfg, st, 90, 100, regime.RegimeUnknown, 0)
	if dec.Action != ActionRescueBuy {
		t.Fatalf("second rescue blocked: %+v", dec)
	}
	st, dec = EvaluateRescue(cfg, st, 85, 100, regime.RegimeUnknown, 0)
	if dec.Action != ActionNone {
		t.Fatalf("third rescue should hit the limit: %+v", dec)
	}
}

func TestRescueRegimeGate(t *testing.T) {
	cfg := enabledConfig()
	cfg.RescueGate = GateTrendOrChaos

	_, st := Split(cfg, 1000)

	if _, dec := EvaluateRescue(cfg, st, 90, 100, regime.RegimeChop, 0); dec.Action != ActionNone {
		t.Errorf("CHOP should be gated out: %+v", dec)
	}
	if _, dec := EvaluateRescue(cfg, st, 90, 100, regime.RegimeTrend, 0); dec.Action != ActionRescueBuy {
		t.Errorf("TREND should pass the gate: %+v", dec)
	}
	if _, dec := EvaluateRescue(cfg, st, 90, 100, regime.RegimeChaos, 0); dec.Action != ActionRescueBuy {
		t.Errorf("CHAOS should pass the gate: %+v", dec)
	}
}

func TestChaseOpensSeparatePosition(t *testing.T) {
	cfg := enabledConfig()
	cfg.ChaseGate = GateTrendUpOnly
	cfg.ChaseTriggerPct = 3
	cfg.ChaseSizePct = 50

	_, st := Split(cfg, 1000)

	// TREND but negative recent change: TREND_UP_ONLY blocks.
	st, dec := EvaluateChase(cfg, st, 104, 100, regime.RegimeTrend, -1)
	if dec.Action != ActionNone {
		t.Fatalf("downtrend chase should be gated: %+v", dec)
	}

	// TREND with positive recent change and a 4% rise above last sell.
	st, dec = EvaluateChase(cfg, st, 104, 100, regime.RegimeTrend, 2)
	if dec.Action != ActionChaseBuy {
		t.Fatalf("chase should trigger: %+v", dec)
	}
	if !st.ChaseActive || st.ChaseEntryPrice != 104 {
		t.Errorf("chase position not tracked: %+v", st)
	}
	if math.Abs(st.ChaseQty-150.0/104) > 1e-9 {
		t.Errorf("chase qty = %v, want %v", st.ChaseQty, 150.0/104)
	}

	// Only one chase position at a time.
	st, dec = EvaluateChase(cfg, st, 110, 100, regime.RegimeTrend, 2)
	if dec.Action != ActionNone {
		t.Errorf("second chase should be blocked while one is open: %+v", dec)
	}
}

func TestChaseExitAtOwnTarget(t *testing.T) {
	cfg := enabledConfig()
	cfg.ChaseGate = GateNone
	cfg.ChaseExitTargetPct = 2

	_, st := Split(cfg, 1000)
	st, _ = EvaluateChase(cfg, st, 104, 100, regime.RegimeTrend, 2)

	// Below the chase's own target (104 * 1.02 = 106.08).
	st, dec := EvaluateChaseExit(cfg, st, 105)
	if dec.Action != ActionNone {
		t.Fatalf("early chase exit: %+v", dec)
	}

	qty := st.ChaseQty
	st, dec = EvaluateChaseExit(cfg, st, 106.1)
	if dec.Action != ActionChaseSell {
		t.Fatalf("chase exit should fire: %+v", dec)
	}
	if math.Abs(dec.SellQty-qty) > 1e-12 {
		t.Errorf("chase exit qty = %v, want %v", dec.SellQty, qty)
	}
	if st.ChaseActive {
		t.Error("chase still active after exit")
	}
}

func TestResetCycleRestoresReserve(t *testing.T) {
	cfg := enabledConfig()
	cfg.RescueGate = GateNone

	_, st := Split(cfg, 1000)
	st, _ = EvaluateRescue(cfg, st, 90, 100, regime.RegimeUnknown, 0)
	if st.RescueBuys != 1 {
		t.Fatal("rescue did not deploy")
	}

	st = ResetCycle(st)
	if st.AvailableReserve != st.InitialReserve {
		t.Errorf("reserve not restored: %+v", st)
	}
	if st.RescueBuys != 0 || st.TotalDeployments != 0 || st.ChaseActive {
		t.Errorf("counters not cleared: %+v", st)
	}
}
