package tape

import (
	"hash/fnv"
	"math"
	"math/rand"
)

// GenParams drive the seeded synthetic generator. Zero values fall back to
// the defaults below.
type GenParams struct {
	Symbol     string  `json:"symbol"`
	Bars       int     `json:"bars"`
	IntervalMS int64   `json:"interval_ms"`
	StartTSMS  int64   `json:"start_ts_ms"`
	StartPrice float64 `json:"start_price"`
	DriftBps   float64 `json:"drift_bps"`
	VolBps     float64 `json:"vol_bps"`
	BaseVolume float64 `json:"base_volume"`
}

const (
	defaultGenBars     = 256
	defaultGenInterval = 60_000
	defaultGenPrice    = 100.0
	defaultGenVolBps   = 50.0
	defaultGenVolume   = 1_000.0
	defaultGenSymbol   = "SYN-PERP"
)

// SeedFrom folds a seed string into a deterministic 63-bit value.
func SeedFrom(seed string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	return int64(h.Sum64() & math.MaxInt64)
}

// Generate produces a contiguous random-walk tape. The same seed and params
// always yield the same bars.
func Generate(seed string, p GenParams) []Bar {
	if p.Bars <= 0 {
		p.Bars = defaultGenBars
	}
	if p.IntervalMS <= 0 {
		p.IntervalMS = defaultGenInterval
	}
	if p.StartPrice <= 0 {
		p.StartPrice = defaultGenPrice
	}
	if p.VolBps <= 0 {
		p.VolBps = defaultGenVolBps
	}
	if p.BaseVolume <= 0 {
		p.BaseVolume = defaultGenVolume
	}
	if p.Symbol == "" {
		p.Symbol = defaultGenSymbol
	}

	rng := rand.New(rand.NewSource(SeedFrom(seed)))
	bars := make([]Bar, 0, p.Bars)
	prev := p.StartPrice
	for i := 0; i < p.Bars; i++ {
		ret := (p.DriftBps + p.VolBps*rng.NormFloat64()) / 10_000
		if ret < -0.9 {
			ret = -0.9
		}
		open := prev
		close := prev * (1 + ret)
		wick := math.Abs(rng.NormFloat64()) * p.VolBps / 20_000
		high := math.Max(open, close) * (1 + wick)
		low := math.Min(open, close) * (1 - wick)
		start := p.StartTSMS + int64(i)*p.IntervalMS
		bars = append(bars, Bar{
			Symbol:    p.Symbol,
			StartTSMS: start,
			EndTSMS:   start + p.IntervalMS,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    p.BaseVolume * (0.5 + rng.Float64()),
		})
		prev = close
	}
	return bars
}
