// Package policy defines the evaluation contract between the simulation
// engine and a trading policy, plus the deterministic builtin baselines.
package policy

import (
	"context"

	"solclash/internal/tape"
)

// Action is a per-step order intent.
type Action string

const (
	Hold  Action = "HOLD"
	Buy   Action = "BUY"
	Sell  Action = "SELL"
	Close Action = "CLOSE"
)

// ParseAction maps a wire string onto a known action.
func ParseAction(s string) (Action, bool) {
	switch Action(s) {
	case Hold, Buy, Sell, Close:
		return Action(s), true
	}
	return "", false
}

// AccountView is the read-only account snapshot a policy sees each step.
type AccountView struct {
	Cash     float64 `json:"cash"`
	Position float64 `json:"position"`
	AvgEntry float64 `json:"avg_entry"`
}

// MarginParams carries the arena's margin rules into the evaluation input.
type MarginParams struct {
	InitialMarginBps     int64 `json:"initial_margin_bps"`
	MaintenanceMarginBps int64 `json:"maintenance_margin_bps"`
	MaxLeverageBps       int64 `json:"max_leverage_bps"`
}

// EvalInput is one step's evaluation request. Bars hold the lookback slice
// ending at the current step; the last bar is the bar being decided on.
type EvalInput struct {
	Version    int             `json:"version"`
	WindowID   string          `json:"window_id"`
	StepIndex  int             `json:"step_index"`
	Bars       []tape.Bar      `json:"bars"`
	Account    AccountView     `json:"account"`
	Instrument tape.Instrument `json:"instrument"`
	Margin     MarginParams    `json:"margin"`
}

// StepOutput is a policy's decision for one step.
type StepOutput struct {
	Version  int     `json:"version"`
	Action   Action  `json:"action"`
	OrderQty float64 `json:"order_qty"`
	ErrCode  int     `json:"err_code"`
}

// Policy evaluates one step. Implementations may block on external
// processes; the engine awaits each call.
type Policy interface {
	Evaluate(ctx context.Context, in *EvalInput) (*StepOutput, error)
}

// Func adapts a plain function to the Policy interface.
type Func func(ctx context.Context, in *EvalInput) (*StepOutput, error)

func (f Func) Evaluate(ctx context.Context, in *EvalInput) (*StepOutput, error) {
	return f(ctx, in)
}
