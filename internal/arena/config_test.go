package arena

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solclash/internal/fault"
	"solclash/internal/tape"
	"solclash/internal/window"
)

func validConfig() *Config {
	return &Config{
		ArenaID:             "T1",
		BarIntervalSeconds:  60,
		WindowDurationBars:  64,
		MaxWindowOverlapPct: 25,
		WindowsPerRound:     4,
		WindowSampling: window.SamplingConfig{
			Mode:          window.ModeStratified,
			StressCount:   1,
			VolBuckets:    3,
			TrendBuckets:  3,
			VolumeBuckets: 2,
		},
		LookbackLen:          16,
		SlippageBps:          2,
		ImpactCoeffBps:       100,
		LiquidityMult:        1,
		MinLiquidity:         10,
		TakerFeeBps:          5,
		InitialMarginBps:     1000,
		MaintenanceMarginBps: 500,
		MaxLeverageBps:       50000,
		LiquidationFeeBps:    50,
		FundingRateBps:       1,
		InitialBalances:      map[string]float64{"USDC": 10000},
		ScoringWeights:       &ScoringWeights{PnL: 1, Drawdown: -0.5, Exposure: -0.01},
		Baselines:            []string{"FLAT", "BUY_AND_HOLD"},
		Instrument: tape.Instrument{
			Symbol: "SOL-PERP", BaseAsset: "SOL", QuoteAsset: "USDC",
			PriceScale: 6, VolumeScale: 9,
		},
	}
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing arena id", func(c *Config) { c.ArenaID = "" }},
		{"zero interval", func(c *Config) { c.BarIntervalSeconds = 0 }},
		{"zero duration", func(c *Config) { c.WindowDurationBars = 0 }},
		{"zero windows per round", func(c *Config) { c.WindowsPerRound = 0 }},
		{"overlap above 100", func(c *Config) { c.MaxWindowOverlapPct = 101 }},
		{"zero lookback", func(c *Config) { c.LookbackLen = 0 }},
		{"lookback not below duration", func(c *Config) { c.LookbackLen = c.WindowDurationBars }},
		{"maintenance above initial", func(c *Config) { c.MaintenanceMarginBps = c.InitialMarginBps + 1 }},
		{"leverage below 1x", func(c *Config) { c.MaxLeverageBps = 9999 }},
		{"negative fee", func(c *Config) { c.TakerFeeBps = -1 }},
		{"negative impact cap", func(c *Config) { v := int64(-1); c.ImpactCapBps = &v }},
		{"quote asset missing from balances", func(c *Config) { c.InitialBalances = map[string]float64{"SOL": 5} }},
		{"unknown sampling mode", func(c *Config) { c.WindowSampling.Mode = "random" }},
		{"zero buckets", func(c *Config) { c.WindowSampling.VolBuckets = 0 }},
		{"unknown baseline", func(c *Config) { c.Baselines = []string{"ORACLE"} }},
		{"no scoring weights", func(c *Config) { c.ScoringWeights = nil; c.ScoringWeightsRef = "" }},
		{"bad tape source type", func(c *Config) { c.TapeSource = &TapeSource{Type: "stream"} }},
		{"historical source without location", func(c *Config) { c.TapeSource = &TapeSource{Type: TapeHistorical} }},
		{"synthetic source without seed", func(c *Config) { c.TapeSource = &TapeSource{Type: TapeSynthetic} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, fault.ConfigInvalid, fault.KindOf(err))
		})
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"arena_id": "T1",
		"bar_interval_seconds": 60,
		"window_duration_bars": 32,
		"max_window_overlap_pct": 0,
		"windows_per_round": 2,
		"window_sampling": {"mode": "sequential"},
		"lookback_len": 8,
		"slippage_bps": 0,
		"impact_coeff_bps": 0,
		"liquidity_mult": 1,
		"min_liquidity": 1,
		"taker_fee_bps": 0,
		"initial_margin_bps": 1000,
		"maintenance_margin_bps": 500,
		"max_leverage_bps": 100000,
		"liquidation_fee_bps": 0,
		"funding_rate_bps": 0,
		"initial_balances": {"USDC": 10000},
		"scoring_weights": {"pnl": 1, "drawdown": -1, "exposure": 0},
		"instrument": {"symbol": "SOL-PERP", "base_asset": "SOL", "quote_asset": "USDC", "price_scale": 6, "volume_scale": 9}
	}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "T1", cfg.ArenaID)
	assert.Equal(t, int64(60000), cfg.IntervalMS())
	assert.Equal(t, "T1", cfg.SamplingSeed())

	eng := cfg.Engine()
	assert.Equal(t, 10000.0, eng.InitialCash)
	assert.Equal(t, int64(500), eng.MaintenanceMarginBps)
	assert.Equal(t, "SOL-PERP", eng.Instrument.Symbol)
}

func TestLoadRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "arena-config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"arena_id": `), 0o644))
	_, err := Load(path)
	require.Error(t, err)
	assert.Equal(t, fault.ConfigInvalid, fault.KindOf(err))

	_, err = Load(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	assert.Equal(t, fault.ConfigInvalid, fault.KindOf(err))
}

func TestSamplingSeedPrefersExplicit(t *testing.T) {
	cfg := validConfig()
	cfg.WindowSampling.Seed = "fixed"
	assert.Equal(t, "fixed", cfg.SamplingSeed())
}

func TestScoreLinearCombination(t *testing.T) {
	w := ScoringWeights{PnL: 1, Drawdown: -0.5, Exposure: -0.01}
	assert.InDelta(t, 100-25-1, w.Score(100, 50, 100), 1e-12)
}
