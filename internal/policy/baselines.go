package policy

import (
	"context"
	"sort"

	"solclash/internal/fault"
)

// Builtin baseline names.
const (
	BaselineFlat       = "FLAT"
	BaselineBuyAndHold = "BUY_AND_HOLD"
	BaselineMomentum   = "MOMENTUM"
)

var baselines = map[string]func() Policy{
	BaselineFlat:       func() Policy { return Func(flat) },
	BaselineBuyAndHold: func() Policy { return Func(buyAndHold) },
	BaselineMomentum:   func() Policy { return Func(momentum) },
}

// Baseline returns a fresh instance of a builtin policy by name.
func Baseline(name string) (Policy, error) {
	mk, ok := baselines[name]
	if !ok {
		return nil, fault.New(fault.ConfigInvalid, "unknown baseline %q", name)
	}
	return mk(), nil
}

// BaselineNames lists the builtin baselines in stable order.
func BaselineNames() []string {
	names := make([]string, 0, len(baselines))
	for name := range baselines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func hold() *StepOutput {
	return &StepOutput{Version: 1, Action: Hold}
}

func flat(_ context.Context, _ *EvalInput) (*StepOutput, error) {
	return hold(), nil
}

func buyAndHold(_ context.Context, in *EvalInput) (*StepOutput, error) {
	if in.StepIndex == 0 {
		return &StepOutput{Version: 1, Action: Buy, OrderQty: 1}, nil
	}
	return hold(), nil
}

// momentum follows the last close-to-close move in the lookback.
func momentum(_ context.Context, in *EvalInput) (*StepOutput, error) {
	n := len(in.Bars)
	if n < 2 {
		return hold(), nil
	}
	prev, last := in.Bars[n-2].Close, in.Bars[n-1].Close
	switch {
	case last > prev:
		return &StepOutput{Version: 1, Action: Buy, OrderQty: 1}, nil
	case last < prev:
		return &StepOutput{Version: 1, Action: Sell, OrderQty: 1}, nil
	default:
		return hold(), nil
	}
}
