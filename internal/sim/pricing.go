// Package sim implements the deterministic multi-agent market simulator:
// uniform execution pricing with transient impact, fees, funding, margin
// rules, liquidation, and the per-bar two-phase engine that clears all
// agents against one shared tape.
package sim

import "math"

// PricingParams are the execution-price inputs of an arena, basis points as
// integers.
type PricingParams struct {
	SlippageBps   int64
	ImpactBps     int64
	ImpactCapBps  *int64
	LiquidityMult float64
	MinLiquidity  float64
}

// ExecPrice returns the single price all of a step's trades fill at, given
// the next bar's open, the step's net signed flow, and the bar's volume.
// Impact is transient: it prices this step only and never touches the tape.
func ExecPrice(open, netFlow, volume float64, p PricingParams) (exec, impactBps float64) {
	if netFlow == 0 {
		return open, 0
	}
	liq := math.Max(p.MinLiquidity, volume*p.LiquidityMult)
	var impact float64
	switch {
	case liq > 0:
		impact = float64(p.ImpactBps) * math.Abs(netFlow) / liq
		if p.ImpactCapBps != nil && impact > float64(*p.ImpactCapBps) {
			impact = float64(*p.ImpactCapBps)
		}
	case p.ImpactCapBps != nil:
		// zero liquidity cannot price flow; clamp to the cap
		impact = float64(*p.ImpactCapBps)
	}
	side := 1.0
	if netFlow < 0 {
		side = -1.0
	}
	exec = open * (1 + side*(float64(p.SlippageBps)+impact)/10_000)
	return exec, impact
}

// TakerFee is the fee charged on a fill.
func TakerFee(deltaQty, execPrice float64, feeBps int64) float64 {
	return math.Abs(deltaQty) * execPrice * float64(feeBps) / 10_000
}
