// Package arena holds the immutable rule set of a round: market parameters,
// margin rules, window selection, scoring, and the tape source.
package arena

import (
	"encoding/json"
	"os"

	"solclash/internal/fault"
	"solclash/internal/policy"
	"solclash/internal/sim"
	"solclash/internal/tape"
	"solclash/internal/window"
)

// ScoringWeights linearly combine a round's aggregates into a score.
type ScoringWeights struct {
	PnL      float64 `json:"pnl"`
	Drawdown float64 `json:"drawdown"`
	Exposure float64 `json:"exposure"`
}

// Score applies the weights to a round's per-agent aggregates.
func (w ScoringWeights) Score(pnlTotal, drawdownMax, exposureAvg float64) float64 {
	return w.PnL*pnlTotal + w.Drawdown*drawdownMax + w.Exposure*exposureAvg
}

// Tape source types.
const (
	TapeHistorical = "historical"
	TapeSynthetic  = "synthetic"
)

// TapeSource tells the runner where a round's bars come from.
type TapeSource struct {
	Type               string         `json:"type"`
	DatasetID          string         `json:"dataset_id,omitempty"`
	Path               string         `json:"path,omitempty"`
	BarIntervalSeconds int64          `json:"bar_interval_seconds,omitempty"`
	GeneratorID        string         `json:"generator_id,omitempty"`
	Seed               string         `json:"seed,omitempty"`
	Params             tape.GenParams `json:"params,omitempty"`
}

// Config is one arena configuration file. All basis-point fields are
// integers; see the engine for how they are applied.
type Config struct {
	ArenaID              string                `json:"arena_id"`
	BarIntervalSeconds   int64                 `json:"bar_interval_seconds"`
	WindowDurationBars   int                   `json:"window_duration_bars"`
	MaxWindowOverlapPct  float64               `json:"max_window_overlap_pct"`
	WindowsPerRound      int                   `json:"windows_per_round"`
	WindowSampling       window.SamplingConfig `json:"window_sampling"`
	LookbackLen          int                   `json:"lookback_len"`
	SlippageBps          int64                 `json:"slippage_bps"`
	ImpactCoeffBps       int64                 `json:"impact_coeff_bps"`
	ImpactCapBps         *int64                `json:"impact_cap_bps,omitempty"`
	LiquidityMult        float64               `json:"liquidity_mult"`
	MinLiquidity         float64               `json:"min_liquidity"`
	TakerFeeBps          int64                 `json:"taker_fee_bps"`
	InitialMarginBps     int64                 `json:"initial_margin_bps"`
	MaintenanceMarginBps int64                 `json:"maintenance_margin_bps"`
	MaxLeverageBps       int64                 `json:"max_leverage_bps"`
	LiquidationFeeBps    int64                 `json:"liquidation_fee_bps"`
	FundingRateBps       int64                 `json:"funding_rate_bps"`
	InitialBalances      map[string]float64    `json:"initial_balances"`
	ScoringWeights       *ScoringWeights       `json:"scoring_weights,omitempty"`
	ScoringWeightsRef    string                `json:"scoring_weights_ref,omitempty"`
	Baselines            []string              `json:"baselines,omitempty"`
	Instrument           tape.Instrument       `json:"instrument"`
	TapeSource           *TapeSource           `json:"tape_source,omitempty"`
}

// Load reads and validates an arena configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "read arena config %s", path)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fault.Wrap(fault.ConfigInvalid, err, "parse arena config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the cross-field invariants of an arena configuration.
func (c *Config) Validate() error {
	switch {
	case c.ArenaID == "":
		return fault.New(fault.ConfigInvalid, "arena_id is required")
	case c.BarIntervalSeconds <= 0:
		return fault.New(fault.ConfigInvalid, "bar_interval_seconds must be positive")
	case c.WindowDurationBars <= 0:
		return fault.New(fault.ConfigInvalid, "window_duration_bars must be positive")
	case c.WindowsPerRound <= 0:
		return fault.New(fault.ConfigInvalid, "windows_per_round must be positive")
	case c.MaxWindowOverlapPct < 0 || c.MaxWindowOverlapPct > 100:
		return fault.New(fault.ConfigInvalid, "max_window_overlap_pct must be within [0, 100]")
	case c.LookbackLen < 1:
		return fault.New(fault.ConfigInvalid, "lookback_len must be at least 1")
	case c.LookbackLen >= c.WindowDurationBars:
		return fault.New(fault.ConfigInvalid, "lookback_len %d must be below window_duration_bars %d", c.LookbackLen, c.WindowDurationBars)
	case c.MaintenanceMarginBps > c.InitialMarginBps:
		return fault.New(fault.ConfigInvalid, "maintenance_margin_bps %d exceeds initial_margin_bps %d", c.MaintenanceMarginBps, c.InitialMarginBps)
	case c.MaxLeverageBps < 10000:
		return fault.New(fault.ConfigInvalid, "max_leverage_bps must be at least 10000")
	case c.SlippageBps < 0 || c.ImpactCoeffBps < 0 || c.TakerFeeBps < 0 || c.LiquidationFeeBps < 0:
		return fault.New(fault.ConfigInvalid, "fee and slippage basis points must be non-negative")
	case c.LiquidityMult < 0 || c.MinLiquidity < 0:
		return fault.New(fault.ConfigInvalid, "liquidity parameters must be non-negative")
	case c.Instrument.QuoteAsset == "":
		return fault.New(fault.ConfigInvalid, "instrument.quote_asset is required")
	}
	if c.ImpactCapBps != nil && *c.ImpactCapBps < 0 {
		return fault.New(fault.ConfigInvalid, "impact_cap_bps must be non-negative")
	}
	if _, ok := c.InitialBalances[c.Instrument.QuoteAsset]; !ok {
		return fault.New(fault.ConfigInvalid, "initial_balances is missing the quote asset %q", c.Instrument.QuoteAsset)
	}

	switch c.WindowSampling.Mode {
	case window.ModeSequential:
	case window.ModeStratified:
		if c.WindowSampling.StressCount < 0 {
			return fault.New(fault.ConfigInvalid, "window_sampling.stress_count must be non-negative")
		}
		if c.WindowSampling.VolBuckets < 1 || c.WindowSampling.TrendBuckets < 1 || c.WindowSampling.VolumeBuckets < 1 {
			return fault.New(fault.ConfigInvalid, "window_sampling bucket counts must be at least 1")
		}
	default:
		return fault.New(fault.ConfigInvalid, "window_sampling.mode %q is not sequential or stratified", c.WindowSampling.Mode)
	}

	for _, name := range c.Baselines {
		if _, err := policy.Baseline(name); err != nil {
			return err
		}
	}

	if c.TapeSource != nil {
		switch c.TapeSource.Type {
		case TapeHistorical:
			if c.TapeSource.DatasetID == "" && c.TapeSource.Path == "" {
				return fault.New(fault.ConfigInvalid, "historical tape_source needs dataset_id or path")
			}
		case TapeSynthetic:
			if c.TapeSource.Seed == "" {
				return fault.New(fault.ConfigInvalid, "synthetic tape_source needs a seed")
			}
		default:
			return fault.New(fault.ConfigInvalid, "tape_source.type %q is not historical or synthetic", c.TapeSource.Type)
		}
	}

	if c.ScoringWeights == nil && c.ScoringWeightsRef == "" {
		return fault.New(fault.ConfigInvalid, "scoring_weights or scoring_weights_ref is required")
	}
	return nil
}

// Engine maps the arena parameters onto the simulator's configuration.
func (c *Config) Engine() sim.EngineConfig {
	return sim.EngineConfig{
		Pricing: sim.PricingParams{
			SlippageBps:   c.SlippageBps,
			ImpactBps:     c.ImpactCoeffBps,
			ImpactCapBps:  c.ImpactCapBps,
			LiquidityMult: c.LiquidityMult,
			MinLiquidity:  c.MinLiquidity,
		},
		TakerFeeBps:          c.TakerFeeBps,
		InitialMarginBps:     c.InitialMarginBps,
		MaintenanceMarginBps: c.MaintenanceMarginBps,
		MaxLeverageBps:       c.MaxLeverageBps,
		LiquidationFeeBps:    c.LiquidationFeeBps,
		FundingRateBps:       c.FundingRateBps,
		LookbackLen:          c.LookbackLen,
		InitialCash:          c.InitialBalances[c.Instrument.QuoteAsset],
		Instrument:           c.Instrument,
	}
}

// SamplingSeed is the sampler seed, falling back to the arena id.
func (c *Config) SamplingSeed() string {
	if c.WindowSampling.Seed != "" {
		return c.WindowSampling.Seed
	}
	return c.ArenaID
}

// IntervalMS is the bar interval in milliseconds.
func (c *Config) IntervalMS() int64 { return c.BarIntervalSeconds * 1000 }
