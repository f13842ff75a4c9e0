package sim

// WindowMetrics summarizes one agent's run over one window.
type WindowMetrics struct {
	WindowID     string  `json:"window_id"`
	PnL          float64 `json:"pnl"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	MeanExposure float64 `json:"mean_exposure"`
	TotalFees    float64 `json:"total_fees"`
	Liquidations int     `json:"liquidations"`
	EquityStart  float64 `json:"equity_start"`
	EquityEnd    float64 `json:"equity_end"`
	EquityPeak   float64 `json:"equity_peak"`
	EquityTrough float64 `json:"equity_trough"`
}

// metricsFromCurve folds the per-step equity and exposure series into window
// metrics. Drawdown is the largest drop from a running peak.
func metricsFromCurve(windowID string, curve, exposures []float64, fees float64, liquidations int) WindowMetrics {
	m := WindowMetrics{
		WindowID:     windowID,
		TotalFees:    fees,
		Liquidations: liquidations,
	}
	if len(curve) == 0 {
		return m
	}
	m.EquityStart = curve[0]
	m.EquityEnd = curve[len(curve)-1]
	m.EquityPeak = curve[0]
	m.EquityTrough = curve[0]
	runPeak := curve[0]
	for _, eq := range curve {
		if eq > runPeak {
			runPeak = eq
		}
		if dd := runPeak - eq; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
		if eq > m.EquityPeak {
			m.EquityPeak = eq
		}
		if eq < m.EquityTrough {
			m.EquityTrough = eq
		}
	}
	m.PnL = m.EquityEnd - m.EquityStart
	var sum float64
	for _, x := range exposures {
		sum += x
	}
	if len(exposures) > 0 {
		m.MeanExposure = sum / float64(len(exposures))
	}
	return m
}
