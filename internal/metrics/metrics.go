// Package metrics exposes Prometheus metrics for the bot fleet:
//   - dipbot_cycles_total{instance}             – completed cycle loops
//   - dipbot_trades_total{instance,side}        – filled trades
//   - dipbot_rejections_total{instance,code}    – gating rejections by reason code
//   - dipbot_breaker_trips_total{instance,code} – PAUSE-level breaker trips
//   - dipbot_realized_pnl_usd{instance}         – cumulative realized pnl (gauge)
//   - dipbot_unrealized_pnl_usd{instance}       – current unrealized pnl (gauge)
//   - dipbot_open_legs{instance,leg_type}       – open extension/runner/chase legs
//   - dipbot_wallet_committed_usd               – capital committed across all bots
//   - dipbot_regime{instance,regime}            – active regime indicator (0/1)
//
// Registered in init() and served at /metrics by the exposition server in
// main.go.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_cycles_total",
			Help: "Completed bot cycles",
		},
		[]string{"instance"},
	)

	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_trades_total",
			Help: "Filled trades by side",
		},
		[]string{"instance", "side"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_rejections_total",
			Help: "Gating rejections by reason code",
		},
		[]string{"instance", "code"},
	)

	breakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dipbot_breaker_trips_total",
			Help: "Circuit breaker trips by code",
		},
		[]string{"instance", "code"},
	)

	realizedPnl = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dipbot_realized_pnl_usd",
			Help: "Cumulative realized pnl in quote terms",
		},
		[]string{"instance"},
	)

	unrealizedPnl = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dipbot_unrealized_pnl_usd",
			Help: "Current unrealized pnl in quote terms",
		},
		[]string{"instance"},
	)

	openLegs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dipbot_open_legs",
			Help: "Open extension, runner and chase legs",
		},
		[]string{"instance", "leg_type"},
	)

	walletCommitted = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dipbot_wallet_committed_usd",
			Help: "Capital committed across all bots (allocated+pending+reserved)",
		},
	)

	// One labeled series per regime, flipped 0/1, so dashboards need no
	// value mapping.
	regimeIndicator = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dipbot_regime",
			Help: "Active regime indicator (one series per regime, 0 or 1)",
		},
		[]string{"instance", "regime"},
	)
)

func init() {
	prometheus.MustRegister(cyclesTotal, tradesTotal, rejectionsTotal, breakerTrips)
	prometheus.MustRegister(realizedPnl, unrealizedPnl, openLegs, walletCommitted)
	prometheus.MustRegister(regimeIndicator)
}

func IncCycle(instance string)             { cyclesTotal.WithLabelValues(instance).Inc() }
func IncTrade(instance, side string)       { tradesTotal.WithLabelValues(instance, side).Inc() }
func IncRejection(instance, code string)   { rejectionsTotal.WithLabelValues(instance, code).Inc() }
func IncBreakerTrip(instance, code string) { breakerTrips.WithLabelValues(instance, code).Inc() }

func SetRealizedPnl(instance string, v float64)   { realizedPnl.WithLabelValues(instance).Set(v) }
func SetUnrealizedPnl(instance string, v float64) { unrealizedPnl.WithLabelValues(instance).Set(v) }
func SetOpenLegs(instance, legType string, n int) {
	openLegs.WithLabelValues(instance, legType).Set(float64(n))
}
func SetWalletCommitted(v float64) { walletCommitted.Set(v) }

// SetRegime flips the regime indicator series so exactly one is 1.
func SetRegime(instance, active string) {
	for _, r := range []string{"CHOP", "TREND", "CHAOS", "UNKNOWN"} {
		v := 0.0
		if r == active {
			v = 1
		}
		regimeIndicator.WithLabelValues(instance, r).Set(v)
	}
}

// Serve starts the Prometheus exposition endpoint. It returns the server so
// the caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
