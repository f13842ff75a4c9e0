package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solclash/internal/tape"
)

func TestEnumerateNoOverlap(t *testing.T) {
	defs := Enumerate(100, 20, 0)
	require.Len(t, defs, 5)
	assert.Equal(t, Def{ID: "w0", Start: 0, End: 20}, defs[0])
	assert.Equal(t, Def{ID: "w4", Start: 80, End: 100}, defs[4])
}

func TestEnumerateWithOverlap(t *testing.T) {
	defs := Enumerate(100, 20, 50)
	require.Len(t, defs, 9)
	assert.Equal(t, 10, defs[1].Start)
	assert.Equal(t, 30, defs[1].End)
	assert.Equal(t, "w8", defs[8].ID)
}

func TestEnumerateStepFloorsToOne(t *testing.T) {
	defs := Enumerate(5, 3, 100)
	require.Len(t, defs, 3)
	assert.Equal(t, 1, defs[1].Start)
}

func TestEnumerateTooFewBars(t *testing.T) {
	assert.Nil(t, Enumerate(5, 10, 0))
	assert.Nil(t, Enumerate(10, 0, 0))
}

func TestContains(t *testing.T) {
	d := Def{ID: "w1", Start: 10, End: 20}
	assert.True(t, d.Contains(10))
	assert.True(t, d.Contains(19))
	assert.False(t, d.Contains(20))
	assert.False(t, d.Contains(9))
}

func TestFirstError(t *testing.T) {
	errs := map[int]tape.ValidationError{
		15: {Index: 15, Field: "open", Msg: "price must be positive, got 0"},
		3:  {Index: 3, Field: "volume", Msg: "volume must be non-negative, got -1"},
	}
	d := Def{Start: 10, End: 20}
	e, ok := FirstError(d, errs)
	require.True(t, ok)
	assert.Equal(t, 15, e.Index)

	_, ok = FirstError(Def{Start: 20, End: 30}, errs)
	assert.False(t, ok)
}

func TestComputeStats(t *testing.T) {
	bars := []tape.Bar{
		{Close: 100, Volume: 10},
		{Close: 110, Volume: 20},
		{Close: 99, Volume: 30},
	}
	s := ComputeStats(bars)
	assert.InDelta(t, (99.0-100.0)/100.0, s.Trend, 1e-12)
	assert.InDelta(t, 20.0, s.MeanVolume, 1e-12)
	// returns are +0.1 and -0.1, population stdev 0.1
	assert.InDelta(t, 0.1, s.Volatility, 1e-12)
}

func TestComputeStatsDegenerate(t *testing.T) {
	assert.Zero(t, ComputeStats(nil))
	s := ComputeStats([]tape.Bar{{Close: 50, Volume: 5}})
	assert.Zero(t, s.Volatility)
	assert.Zero(t, s.Trend)
	assert.Equal(t, 5.0, s.MeanVolume)
}
