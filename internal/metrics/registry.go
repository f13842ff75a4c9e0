// Package metrics exposes the tournament runner's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every collector the runner records into. Constructed once
// per process; a nil Registry drops all observations so callers never need
// to gate on metrics being enabled.
type Registry struct {
	WindowsTotal      prometheus.Counter
	TradesTotal       *prometheus.CounterVec
	LiquidationsTotal *prometheus.CounterVec
	PolicyErrorsTotal *prometheus.CounterVec
	EditSessionsTotal *prometheus.CounterVec
	RoundDuration     prometheus.Histogram
	RoundCurrent      prometheus.Gauge
}

// NewRegistry builds and registers all collectors on the given registerer.
// A nil registerer falls back to the Prometheus default.
func NewRegistry(reg prometheus.Registerer) *Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Registry{
		WindowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solclash_windows_total",
			Help: "Total number of windows simulated",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solclash_trades_total",
			Help: "Total number of committed trades by agent",
		}, []string{"agent"}),
		LiquidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solclash_liquidations_total",
			Help: "Total number of forced liquidations by agent",
		}, []string{"agent"}),
		PolicyErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solclash_policy_errors_total",
			Help: "Total number of policy steps downgraded to HOLD by error code",
		}, []string{"code"}),
		EditSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solclash_edit_sessions_total",
			Help: "Total number of edit sessions by final status",
		}, []string{"status"}),
		RoundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "solclash_round_duration_seconds",
			Help:    "Wall-clock duration of one competition round",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}),
		RoundCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "solclash_round_current",
			Help: "Round number currently executing",
		}),
	}
	reg.MustRegister(
		r.WindowsTotal,
		r.TradesTotal,
		r.LiquidationsTotal,
		r.PolicyErrorsTotal,
		r.EditSessionsTotal,
		r.RoundDuration,
		r.RoundCurrent,
	)
	return r
}

// WindowDone counts one simulated window.
func (r *Registry) WindowDone() {
	if r == nil {
		return
	}
	r.WindowsTotal.Inc()
}

// RecordAgentWindow adds one agent's trade, liquidation, and policy-error
// counts for one window.
func (r *Registry) RecordAgentWindow(agentID string, trades, liquidations int, policyErrs map[int]int) {
	if r == nil {
		return
	}
	r.TradesTotal.WithLabelValues(agentID).Add(float64(trades))
	r.LiquidationsTotal.WithLabelValues(agentID).Add(float64(liquidations))
	for code, n := range policyErrs {
		r.PolicyErrorsTotal.WithLabelValues(strconv.Itoa(code)).Add(float64(n))
	}
}

// RecordEditSession counts one finished edit session by status.
func (r *Registry) RecordEditSession(status string) {
	if r == nil {
		return
	}
	r.EditSessionsTotal.WithLabelValues(status).Inc()
}

// RoundTimer tracks the wall time of one round.
type RoundTimer struct {
	reg   *Registry
	start time.Time
}

// StartRound marks a round as current and starts its duration timer.
func (r *Registry) StartRound(round int) *RoundTimer {
	if r == nil {
		return &RoundTimer{}
	}
	r.RoundCurrent.Set(float64(round))
	return &RoundTimer{reg: r, start: time.Now()}
}

// Stop observes the round duration.
func (t *RoundTimer) Stop() {
	if t.reg == nil {
		return
	}
	t.reg.RoundDuration.Observe(time.Since(t.start).Seconds())
}
