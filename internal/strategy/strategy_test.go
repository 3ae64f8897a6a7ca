package strategy

import (
	"strings"
	"testing"
	"time"

	"dex-dip-bot/internal/venue"
)

var testNow = time.Date(2025, 6, 12, 14, 30, 0, 0, time.UTC)

func testBalances() venue.Balances {
	return venue.Balances{Base: 10, Quote: 1000, NativeForGas: 1.0}
}

func freshState(now time.Time) State {
	return State{
		HourStart: now.Truncate(time.Hour),
		DayStart:  now.UTC().Truncate(24 * time.Hour),
	}
}

// A dip of exactly the configured percentage (after rounding to two decimals)
// holds; the buy fires only once the rounded dip strictly exceeds it.
func TestThresholdBuyScenario(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BuyDipPct = 2
	cfg.SellRisePct = 5

	st := freshState(testNow)
	st.LastSellPrice = 100

	cases := []struct {
		price float64
		want  Action
	}{
		{98.9, ActionHold},    // above the 98 threshold
		{98.0, ActionHold},    // exactly at the threshold
		{97.9999, ActionHold}, // 2.0001% rounds to 2.00
		{97.99, ActionBuy},    // 2.01%
	}
	for _, tc := range cases {
		_, dec := Evaluate(cfg, st, testBalances(), tc.price, nil, testNow)
		if dec.Action != tc.want {
			t.Errorf("price %v: action = %s, want %s (%s)", tc.price, dec.Action, tc.want, dec.Reason)
		}
	}

	_, dec := Evaluate(cfg, st, testBalances(), 97.99, nil, testNow)
	if !strings.Contains(dec.Reason, "2.01") {
		t.Errorf("buy reason should cite the 2.01%% drop: %q", dec.Reason)
	}
	if dec.QuoteAmount != cfg.FixedQuoteUSD {
		t.Errorf("buy amount = %v, want %v", dec.QuoteAmount, cfg.FixedQuoteUSD)
	}
}

func TestThresholdSellRise(t *testing.T) {
	cfg := DefaultConfig()
	st := freshState(testNow)
	st.LastBuyPrice = 100

	if _, dec := Evaluate(cfg, st, testBalances(), 105.0, nil, testNow); dec.Action != ActionHold {
		t.Errorf("rise of exactly 5%% should hold: %+v", dec)
	}
	_, dec := Evaluate(cfg, st, testBalances(), 105.01, nil, testNow)
	if dec.Action != ActionSell {
		t.Fatalf("rise of 5.01%% should sell: %+v", dec)
	}
	if dec.BaseQty <= 0 {
		t.Errorf("sell decision carries no quantity: %+v", dec)
	}
}

func TestBreakerOrder(t *testing.T) {
	cfg := DefaultConfig()
	st := freshState(testNow)
	st.ConsecutiveFailures = 3
	st.DailyRealizedPnl = -100 // daily limit also breached

	_, dec := Evaluate(cfg, st, testBalances(), 100, nil, testNow)
	if dec.Action != ActionPause || dec.Code != CodeMaxFailures {
		t.Errorf("failure breaker should win: %+v", dec)
	}

	st.ConsecutiveFailures = 0
	_, dec = Evaluate(cfg, st, testBalances(), 100, nil, testNow)
	if dec.Action != ActionPause || dec.Code != CodeDailyLoss {
		t.Errorf("daily loss breaker: %+v", dec)
	}

	st.DailyRealizedPnl = 0
	bal := testBalances()
	bal.NativeForGas = 0.001
	_, dec = Evaluate(cfg, st, bal, 100, nil, testNow)
	if dec.Action != ActionPause || dec.Code != CodeGasReserveLow {
		t.Errorf("gas breaker: %+v", dec)
	}
}

func TestDailyLossResetsOnRollover(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartingMode = StartWait

	st := freshState(testNow)
	st.DayStart = st.DayStart.AddDate(0, 0, -1)
	st.DailyRealizedPnl = -100

	st, dec := Evaluate(cfg, st, testBalances(), 100, nil, testNow)
	if dec.Action == ActionPause {
		t.Fatalf("yesterday's loss should not pause today: %+v", dec)
	}
	if st.DailyRealizedPnl != 0 {
		t.Errorf("daily pnl not reset: %v", st.DailyRealizedPnl)
	}
}

func TestCooldownHolds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CooldownSec = 60

	st := freshState(testNow)
	st.LastBuyPrice = 100
	st.LastTradeTime = testNow.Add(-30 * time.Second)

	if _, dec := Evaluate(cfg, st, testBalances(), 110, nil, testNow); dec.Action != ActionHold {
		t.Errorf("cooldown should hold a live sell signal: %+v", dec)
	}

	st.LastTradeTime = testNow.Add(-61 * time.Second)
	if _, dec := Evaluate(cfg, st, testBalances(), 110, nil, testNow); dec.Action != ActionSell {
		t.Errorf("expired cooldown should trade: %+v", dec)
	}
}

func TestHourlyCapResetsOnRollover(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTradesPerHour = 10

	st := freshState(testNow)
	st.LastBuyPrice = 100
	st.TradesThisHour = 10

	if _, dec := Evaluate(cfg, st, testBalances(), 110, nil, testNow); dec.Action != ActionHold {
		t.Errorf("hourly cap should hold: %+v", dec)
	}

	st.HourStart = testNow.Add(-2 * time.Hour)
	st2, dec := Evaluate(cfg, st, testBalances(), 110, nil, testNow)
	if dec.Action != ActionSell {
		t.Errorf("rolled-over hour should trade: %+v", dec)
	}
	if st2.TradesThisHour != 0 {
		t.Errorf("hourly counter not reset: %d", st2.TradesThisHour)
	}
}

func TestPriceImpactCapHolds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPriceImpactBps = 100

	st := freshState(testNow)
	st.LastSellPrice = 100

	impact := 150.0
	quote := &venue.Quote{Price: 97, PriceImpactBps: &impact}
	if _, dec := Evaluate(cfg, st, testBalances(), 97, quote, testNow); dec.Action != ActionHold {
		t.Errorf("impact above cap should hold: %+v", dec)
	}

	impact = 50
	if _, dec := Evaluate(cfg, st, testBalances(), 97, quote, testNow); dec.Action != ActionBuy {
		t.Errorf("impact under cap should trade: %+v", dec)
	}
}

func TestBootstrapModes(t *testing.T) {
	st := freshState(testNow)

	cfg := DefaultConfig()
	cfg.StartingMode = StartBuyFirst
	if _, dec := Evaluate(cfg, st, testBalances(), 100, nil, testNow); dec.Action != ActionBuy {
		t.Errorf("BUY_FIRST bootstrap: %+v", dec)
	}

	cfg.StartingMode = StartSellFirst
	if _, dec := Evaluate(cfg, st, testBalances(), 100, nil, testNow); dec.Action != ActionSell {
		t.Errorf("SELL_FIRST bootstrap with base held: %+v", dec)
	}

	bal := testBalances()
	bal.Base = 0
	if _, dec := Evaluate(cfg, st, bal, 100, nil, testNow); dec.Action != ActionHold {
		t.Errorf("SELL_FIRST bootstrap without base: %+v", dec)
	}

	cfg.StartingMode = StartWait
	if _, dec := Evaluate(cfg, st, testBalances(), 100, nil, testNow); dec.Action != ActionHold {
		t.Errorf("WAIT bootstrap: %+v", dec)
	}
}

func TestSizingClampsAndMinimums(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SizeMode = SizePctBalance
	cfg.BalancePct = 50
	cfg.QuoteReserveUSD = 600

	bal := testBalances() // 1000 quote
	if got := buySize(cfg, bal, 100); got != 200 {
		t.Errorf("pct buy size = %v, want 200 (50%% of 400 spendable)", got)
	}

	// Reserve eats the whole balance.
	cfg.QuoteReserveUSD = 995
	if got := buySize(cfg, bal, 100); got != 0 {
		t.Errorf("size below minimum notional should be 0, got %v", got)
	}

	cfg = DefaultConfig()
	cfg.SizeMode = SizeFixedBase
	cfg.FixedBaseQty = 0.05
	cfg.MinNotionalUSD = 1
	if got := sellSize(cfg, bal, 100); got != 0.05 {
		t.Errorf("fixed base sell = %v, want 0.05", got)
	}
	// 0.05 * 100 = 5 USD notional, below the 10 USD minimum.
	cfg.MinNotionalUSD = 10
	if got := sellSize(cfg, bal, 100); got != 0 {
		t.Errorf("sub-minimum sell should be 0, got %v", got)
	}
}

func TestRecordFillAndFailure(t *testing.T) {
	st := freshState(testNow)
	st.ConsecutiveFailures = 2

	st = RecordFill(st, venue.SideBuy, 99.5, 0, testNow)
	if st.LastBuyPrice != 99.5 || st.ConsecutiveFailures != 0 || st.TradesThisHour != 1 {
		t.Errorf("fill not recorded: %+v", st)
	}

	st = RecordFill(st, venue.SideSell, 104, 4.5, testNow)
	if st.LastSellPrice != 104 || st.DailyRealizedPnl != 4.5 {
		t.Errorf("sell fill not recorded: %+v", st)
	}

	st = RecordFailure(st)
	st = RecordFailure(st)
	if st.ConsecutiveFailures != 2 {
		t.Errorf("failures = %d, want 2", st.ConsecutiveFailures)
	}
}
