package tape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	p := GenParams{Bars: 64, StartPrice: 150, VolBps: 80, DriftBps: 2}
	a := Generate("seed-a", p)
	b := Generate("seed-a", p)
	require.Equal(t, a, b)

	c := Generate("seed-b", p)
	assert.NotEqual(t, a, c)
}

func TestGeneratePassesValidation(t *testing.T) {
	bars := Generate("tourney-1", GenParams{Bars: 200, IntervalMS: 60000})
	require.Len(t, bars, 200)
	assert.Empty(t, Validate(bars, 60000))
}

func TestGenerateDefaults(t *testing.T) {
	bars := Generate("x", GenParams{})
	require.Len(t, bars, defaultGenBars)
	assert.Equal(t, defaultGenSymbol, bars[0].Symbol)
	assert.Equal(t, defaultGenPrice, bars[0].Open)
	assert.Equal(t, int64(defaultGenInterval), bars[1].StartTSMS)
}

func TestGenerateChainsOpens(t *testing.T) {
	bars := Generate("chain", GenParams{Bars: 10})
	for i := 1; i < len(bars); i++ {
		assert.Equal(t, bars[i-1].Close, bars[i].Open, "bar %d", i)
	}
}
