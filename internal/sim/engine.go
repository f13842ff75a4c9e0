package sim

import (
	"context"
	"errors"
	"math"

	"solclash/internal/fault"
	"solclash/internal/policy"
	"solclash/internal/tape"
)

// EngineConfig is the slice of the arena configuration the engine consumes.
type EngineConfig struct {
	Pricing              PricingParams
	TakerFeeBps          int64
	InitialMarginBps     int64
	MaintenanceMarginBps int64
	MaxLeverageBps       int64
	LiquidationFeeBps    int64
	FundingRateBps       int64
	LookbackLen          int
	InitialCash          float64
	Instrument           tape.Instrument
}

// Agent pairs an id with the policy evaluated for it.
type Agent struct {
	ID     string
	Policy policy.Policy
}

// WindowOutcome is one agent's result for one window.
type WindowOutcome struct {
	Metrics      WindowMetrics
	Policy       []PolicyRecord
	Trades       []TradeRecord
	Equity       []EquityRecord
	Liquidations []LiquidationRecord
	FinalAccount Account
}

// agentState is the engine-owned per-agent state for one window.
type agentState struct {
	agent     Agent
	acct      Account
	curve     []float64
	exposures []float64
	fees      float64
	liqs      int
	out       *WindowOutcome
}

// stepAction is one agent's decided action for the current bar, cleared in
// phase 2 of the same step.
type stepAction struct {
	delta     float64
	action    policy.Action
	qty       float64
	status    string
	errCode   int
	liquidate bool
}

// RunWindow replays one window for all agents and returns outcomes keyed by
// agent id. The bars slice is never mutated; identical inputs produce
// identical outcomes. Policy failures are absorbed as HOLD steps; only a
// broken harness channel or a cancelled context aborts the window.
func RunWindow(ctx context.Context, cfg EngineConfig, bars []tape.Bar, windowID string, agents []Agent) (map[string]*WindowOutcome, error) {
	states := make([]*agentState, len(agents))
	for i, ag := range agents {
		states[i] = &agentState{
			agent: ag,
			acct:  Account{Cash: cfg.InitialCash},
			out:   &WindowOutcome{},
		}
	}

	last := len(bars) - 1
	for t := 0; t <= last; t++ {
		bar := bars[t]
		actions := make([]stepAction, len(states))

		// Phase 1: every agent decides against the same closed bar. No
		// agent sees another's decision.
		for i, st := range states {
			st.acct = ApplyFunding(st.acct, bar.Close, cfg.FundingRateBps)

			act, err := decide(ctx, cfg, st, bars, windowID, t)
			if err != nil {
				return nil, err
			}

			eq := st.acct.Equity(bar.Close)
			st.curve = append(st.curve, eq)
			st.exposures = append(st.exposures, st.acct.Notional(bar.Close))
			st.out.Equity = append(st.out.Equity, EquityRecord{
				WindowID:  windowID,
				StepIndex: t,
				AgentID:   st.agent.ID,
				Equity:    eq,
				Cash:      st.acct.Cash,
				Position:  st.acct.Position,
				MarkPrice: bar.Close,
			})

			if NeedsLiquidation(st.acct, bar.Close, cfg.MaintenanceMarginBps) {
				act.delta = -st.acct.Position
				act.liquidate = true
			}
			actions[i] = act
		}

		// Phase 2: clear at the next bar's open. Skipped on the last bar.
		if t < last {
			var netFlow float64
			for _, act := range actions {
				netFlow += act.delta
			}
			next := bars[t+1]
			exec, impactBps := ExecPrice(next.Open, netFlow, next.Volume, cfg.Pricing)

			for i, st := range states {
				act := &actions[i]
				if act.delta == 0 {
					continue
				}
				if act.liquidate {
					acct, fill := LiquidateAtPrice(st.acct, exec, cfg.LiquidationFeeBps)
					st.acct = acct
					st.liqs++
					st.out.Liquidations = append(st.out.Liquidations, LiquidationRecord{
						WindowID:  windowID,
						StepIndex: t,
						AgentID:   st.agent.ID,
						Qty:       fill.Qty,
						ExecPrice: fill.Price,
						Fee:       fill.Fee,
					})
					continue
				}
				fee := TakerFee(act.delta, exec, cfg.TakerFeeBps)
				post, _ := ApplyTrade(st.acct, act.delta, exec, fee)
				if math.Abs(post.Position) > math.Abs(st.acct.Position) {
					if !InitialMarginOK(post, exec, cfg.InitialMarginBps) || !LeverageOK(post, exec, cfg.MaxLeverageBps) {
						act.delta = 0
						act.action = policy.Hold
						act.qty = 0
						act.status = StatusErr
						act.errCode = ErrCodeInvalidOrder
						continue
					}
				}
				st.acct = post
				st.fees += fee
				st.out.Trades = append(st.out.Trades, TradeRecord{
					WindowID:    windowID,
					StepIndex:   t,
					AgentID:     st.agent.ID,
					DeltaQty:    act.delta,
					ExecPrice:   exec,
					Fee:         fee,
					SlippageBps: float64(cfg.Pricing.SlippageBps),
					ImpactBps:   impactBps,
					NetQty:      netFlow,
				})
			}
		}

		// One policy record per agent per step, reflecting what actually
		// took effect.
		for i, st := range states {
			act := actions[i]
			rec := PolicyRecord{
				WindowID:  windowID,
				StepIndex: t,
				AgentID:   st.agent.ID,
				Action:    string(act.action),
				Qty:       act.qty,
				Status:    act.status,
				ErrCode:   act.errCode,
			}
			if act.liquidate {
				rec.Action = string(policy.Close)
				rec.Qty = math.Abs(act.delta)
			}
			st.out.Policy = append(st.out.Policy, rec)
		}
	}

	results := make(map[string]*WindowOutcome, len(states))
	for _, st := range states {
		st.out.Metrics = metricsFromCurve(windowID, st.curve, st.exposures, st.fees, st.liqs)
		st.out.FinalAccount = st.acct
		results[st.agent.ID] = st.out
	}
	return results, nil
}

// decide runs phase 1 for one agent: evaluate the policy on the lookback
// slice and normalize the output. Policy errors downgrade to HOLD.
func decide(ctx context.Context, cfg EngineConfig, st *agentState, bars []tape.Bar, windowID string, t int) (stepAction, error) {
	lo := t - cfg.LookbackLen + 1
	if lo < 0 {
		lo = 0
	}
	// copy-on-read: policies never see the shared tape slice
	look := append([]tape.Bar(nil), bars[lo:t+1]...)

	in := &policy.EvalInput{
		Version:   1,
		WindowID:  windowID,
		StepIndex: t,
		Bars:      look,
		Account: policy.AccountView{
			Cash:     st.acct.Cash,
			Position: st.acct.Position,
			AvgEntry: st.acct.AvgEntry,
		},
		Instrument: cfg.Instrument,
		Margin: policy.MarginParams{
			InitialMarginBps:     cfg.InitialMarginBps,
			MaintenanceMarginBps: cfg.MaintenanceMarginBps,
			MaxLeverageBps:       cfg.MaxLeverageBps,
		},
	}

	out, err := st.agent.Policy.Evaluate(ctx, in)
	if err != nil {
		if fault.Is(err, fault.HarnessGone) || fault.Is(err, fault.HarnessProtocolViolation) {
			return stepAction{}, err
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return stepAction{}, err
		}
		return stepAction{action: policy.Hold, status: StatusErr, errCode: ErrCodePolicyException}, nil
	}

	if out == nil || out.Version != 1 {
		return stepAction{action: policy.Hold, status: StatusErr, errCode: ErrCodeInvalidOrder}, nil
	}
	if _, ok := policy.ParseAction(string(out.Action)); !ok {
		return stepAction{action: policy.Hold, status: StatusErr, errCode: ErrCodeInvalidOrder}, nil
	}
	qty := out.OrderQty
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty < 0 {
		return stepAction{action: policy.Hold, status: StatusErr, errCode: ErrCodeInvalidOrder}, nil
	}
	if (out.Action == policy.Buy || out.Action == policy.Sell) && qty == 0 {
		return stepAction{action: policy.Hold, status: StatusErr, errCode: ErrCodeInvalidOrder}, nil
	}

	act := stepAction{action: out.Action, qty: qty, status: StatusOK}
	switch out.Action {
	case policy.Buy:
		act.delta = qty
	case policy.Sell:
		act.delta = -qty
	case policy.Close:
		act.delta = -st.acct.Position
	}
	return act, nil
}
