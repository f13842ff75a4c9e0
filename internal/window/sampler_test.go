package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solclash/internal/tape"
)

// patternedBars lays out one disjoint window per swing entry: closes
// alternate 100-s, 100+s so volatility and trend both grow with s.
func patternedBars(t *testing.T, swings, volumes []float64, duration int) []tape.Bar {
	t.Helper()
	require.Equal(t, len(swings), len(volumes))
	bars := make([]tape.Bar, 0, len(swings)*duration)
	for k, s := range swings {
		for i := 0; i < duration; i++ {
			close := 100 - s
			if i%2 == 1 {
				close = 100 + s
			}
			idx := int64(k*duration + i)
			bars = append(bars, tape.Bar{
				StartTSMS: idx * 60000,
				EndTSMS:   (idx + 1) * 60000,
				Open:      close,
				High:      close + s + 1,
				Low:       close - s - 1,
				Close:     close,
				Volume:    volumes[k],
			})
		}
	}
	return bars
}

func stratifiedFixture(t *testing.T) ([]Def, []tape.Bar) {
	t.Helper()
	swings := []float64{0, 1, 5, 10, 2, 0.5}
	volumes := []float64{100, 200, 500, 600, 300, 400}
	bars := patternedBars(t, swings, volumes, 10)
	defs := Enumerate(len(bars), 10, 0)
	require.Len(t, defs, 6)
	return defs, bars
}

func ids(defs []Def) []string {
	out := make([]string, len(defs))
	for i, d := range defs {
		out[i] = d.ID
	}
	return out
}

func TestSampleEmptyTarget(t *testing.T) {
	defs, bars := stratifiedFixture(t)
	assert.Nil(t, Sample(defs, bars, SamplingConfig{Mode: ModeSequential}, 0))
	assert.Nil(t, Sample(defs, bars, SamplingConfig{Mode: ModeStratified}, -1))
}

func TestSampleAllWhenTargetCoversCandidates(t *testing.T) {
	defs, bars := stratifiedFixture(t)
	got := Sample(defs, bars, SamplingConfig{Mode: ModeStratified, Seed: "x"}, 6)
	assert.Equal(t, ids(defs), ids(got))
	got = Sample(defs, bars, SamplingConfig{Mode: ModeStratified, Seed: "x"}, 10)
	assert.Equal(t, ids(defs), ids(got))
}

func TestSampleSequential(t *testing.T) {
	defs, bars := stratifiedFixture(t)
	got := Sample(defs, bars, SamplingConfig{Mode: ModeSequential}, 3)
	assert.Equal(t, []string{"w0", "w1", "w2"}, ids(got))
}

func TestSampleStratifiedStressFirst(t *testing.T) {
	defs, bars := stratifiedFixture(t)
	cfg := SamplingConfig{
		Mode:          ModeStratified,
		StressCount:   2,
		VolBuckets:    2,
		TrendBuckets:  2,
		VolumeBuckets: 2,
		Seed:          "arena-1",
	}
	got := Sample(defs, bars, cfg, 4)
	require.Len(t, got, 4)

	// the two highest-volatility windows lead the selection
	assert.Equal(t, "w3", got[0].ID)
	assert.Equal(t, "w2", got[1].ID)

	seen := map[string]bool{}
	for _, d := range got {
		assert.False(t, seen[d.ID], "duplicate window %s", d.ID)
		seen[d.ID] = true
	}

	// w0 and w1 share a composite bucket; one round-robin pass cannot
	// take both
	assert.False(t, seen["w0"] && seen["w1"])
}

func TestSampleStratifiedDeterministic(t *testing.T) {
	defs, bars := stratifiedFixture(t)
	cfg := SamplingConfig{
		Mode:          ModeStratified,
		StressCount:   1,
		VolBuckets:    3,
		TrendBuckets:  2,
		VolumeBuckets: 2,
		Seed:          "seed-7",
	}
	first := Sample(defs, bars, cfg, 5)
	second := Sample(defs, bars, cfg, 5)
	assert.Equal(t, ids(first), ids(second))
}

func TestSampleStressCountClampedToTarget(t *testing.T) {
	defs, bars := stratifiedFixture(t)
	cfg := SamplingConfig{
		Mode:          ModeStratified,
		StressCount:   10,
		VolBuckets:    2,
		TrendBuckets:  2,
		VolumeBuckets: 2,
		Seed:          "s",
	}
	got := Sample(defs, bars, cfg, 3)
	require.Len(t, got, 3)
	// all three are stress picks, highest volatility first
	assert.Equal(t, []string{"w3", "w2", "w4"}, ids(got))
}
