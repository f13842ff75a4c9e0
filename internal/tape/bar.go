// Package tape loads and validates the OHLCV bar sequences every round
// replays on. Bars are immutable once loaded; the simulator never writes
// back to a tape.
package tape

// Bar is one tape element. Timestamps are unix milliseconds.
type Bar struct {
	Symbol    string  `json:"symbol"`
	StartTSMS int64   `json:"bar_start_ts_ms"`
	EndTSMS   int64   `json:"bar_end_ts_ms"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Instrument describes the traded pair. Price and volume scales document the
// fixed-point representation used on the harness wire; the simulator itself
// stays in floating point.
type Instrument struct {
	Symbol      string `json:"symbol"`
	BaseAsset   string `json:"base_asset"`
	QuoteAsset  string `json:"quote_asset"`
	PriceScale  int    `json:"price_scale"`
	VolumeScale int    `json:"volume_scale"`
}

// Tape couples a bar sequence with its optional instrument header.
type Tape struct {
	Instrument *Instrument `json:"instrument,omitempty"`
	Bars       []Bar       `json:"bars"`
}
