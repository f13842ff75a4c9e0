// Package harness speaks to the long-lived native-policy runner over its
// stdio: one JSON object per line, requests correlated to responses by a
// monotonic request id. Prices and quantities cross the wire as fixed-point
// decimal strings so the runner's integer domain stays bit-exact.
package harness

import (
	"github.com/shopspring/decimal"

	"solclash/internal/policy"
	"solclash/internal/tape"
)

// Request and response kinds.
const (
	kindInit     = "init"
	kindEval     = "eval"
	kindShutdown = "shutdown"
	kindOK       = "ok"
	kindError    = "error"
	kindResult   = "result"
)

// Program names one loadable policy artifact for init.
type Program struct {
	ID     string `json:"id"`
	SOPath string `json:"so_path"`
}

type request struct {
	RequestID        uint64         `json:"request_id"`
	Kind             string         `json:"kind"`
	Programs         []Program      `json:"programs,omitempty"`
	ComputeUnitLimit *uint64        `json:"compute_unit_limit,omitempty"`
	AgentID          string         `json:"agent_id,omitempty"`
	Input            *wireEvalInput `json:"input,omitempty"`
}

type response struct {
	RequestID uint64          `json:"request_id"`
	Kind      string          `json:"kind"`
	Message   string          `json:"message,omitempty"`
	AgentID   string          `json:"agent_id,omitempty"`
	Status    string          `json:"status,omitempty"`
	Output    *wireStepOutput `json:"output,omitempty"`
}

type wireBar struct {
	Symbol    string `json:"symbol"`
	StartTSMS int64  `json:"bar_start_ts_ms"`
	EndTSMS   int64  `json:"bar_end_ts_ms"`
	Open      string `json:"open"`
	High      string `json:"high"`
	Low       string `json:"low"`
	Close     string `json:"close"`
	Volume    string `json:"volume"`
}

type wireAccount struct {
	Cash     string `json:"cash"`
	Position string `json:"position"`
	AvgEntry string `json:"avg_entry"`
}

type wireEvalInput struct {
	Version    int                 `json:"version"`
	WindowID   string              `json:"window_id"`
	StepIndex  int                 `json:"step_index"`
	Bars       []wireBar           `json:"bars"`
	Account    wireAccount         `json:"account"`
	Instrument tape.Instrument     `json:"instrument"`
	Margin     policy.MarginParams `json:"margin"`
}

type wireStepOutput struct {
	Version    int    `json:"version"`
	ActionType string `json:"action_type"`
	OrderQty   string `json:"order_qty"`
	ErrCode    int    `json:"err_code"`
}

// scaleToWire converts a float amount to an integer decimal string at the
// given fixed-point scale, truncating toward zero.
func scaleToWire(v float64, scale int) string {
	return decimal.NewFromFloat(v).Shift(int32(scale)).Truncate(0).String()
}

// scaleFromWire parses an integer decimal string back to a float at the
// given scale.
func scaleFromWire(s string, scale int) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Shift(int32(-scale)).Float64()
	return f, nil
}

// encodeEvalInput scales an engine evaluation input onto the wire using the
// instrument's price and volume scales.
func encodeEvalInput(in *policy.EvalInput) *wireEvalInput {
	ps, vs := in.Instrument.PriceScale, in.Instrument.VolumeScale
	bars := make([]wireBar, len(in.Bars))
	for i, b := range in.Bars {
		bars[i] = wireBar{
			Symbol:    b.Symbol,
			StartTSMS: b.StartTSMS,
			EndTSMS:   b.EndTSMS,
			Open:      scaleToWire(b.Open, ps),
			High:      scaleToWire(b.High, ps),
			Low:       scaleToWire(b.Low, ps),
			Close:     scaleToWire(b.Close, ps),
			Volume:    scaleToWire(b.Volume, vs),
		}
	}
	return &wireEvalInput{
		Version:   in.Version,
		WindowID:  in.WindowID,
		StepIndex: in.StepIndex,
		Bars:      bars,
		Account: wireAccount{
			Cash:     scaleToWire(in.Account.Cash, ps),
			Position: scaleToWire(in.Account.Position, vs),
			AvgEntry: scaleToWire(in.Account.AvgEntry, ps),
		},
		Instrument: in.Instrument,
		Margin:     in.Margin,
	}
}

// decodeStepOutput maps a wire result back into the engine's output type.
// The order quantity is descaled by the instrument's volume scale.
func decodeStepOutput(out *wireStepOutput, volumeScale int) (*policy.StepOutput, error) {
	qty := 0.0
	if out.OrderQty != "" {
		var err error
		qty, err = scaleFromWire(out.OrderQty, volumeScale)
		if err != nil {
			return nil, err
		}
	}
	return &policy.StepOutput{
		Version:  out.Version,
		Action:   policy.Action(out.ActionType),
		OrderQty: qty,
		ErrCode:  out.ErrCode,
	}, nil
}
