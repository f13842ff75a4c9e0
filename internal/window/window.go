// Package window enumerates the replay windows of a tape and selects each
// round's subset, deterministically.
package window

import (
	"fmt"
	"math"

	"solclash/internal/tape"
)

// Def is a half-open bar-index range [Start, End), tagged with its stable
// enumeration id.
type Def struct {
	ID    string `json:"id"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Contains reports whether a bar index falls inside the window.
func (d Def) Contains(i int) bool { return i >= d.Start && i < d.End }

// Enumerate emits every window of the given duration that fits on the tape,
// advancing by duration reduced by the allowed overlap. Ids are "w<k>" in
// emission order.
func Enumerate(totalBars, durationBars int, overlapPct float64) []Def {
	if durationBars <= 0 || totalBars < durationBars {
		return nil
	}
	step := int(float64(durationBars) * (1 - overlapPct/100))
	if step < 1 {
		step = 1
	}
	var defs []Def
	for k := 0; ; k++ {
		start := k * step
		end := start + durationBars
		if end > totalBars {
			break
		}
		defs = append(defs, Def{ID: fmt.Sprintf("w%d", k), Start: start, End: end})
	}
	return defs
}

// FirstError returns the first validation error inside the window, if any.
func FirstError(d Def, errsByIndex map[int]tape.ValidationError) (tape.ValidationError, bool) {
	for i := d.Start; i < d.End; i++ {
		if e, ok := errsByIndex[i]; ok {
			return e, true
		}
	}
	return tape.ValidationError{}, false
}

// Stats are the per-window features the stratified sampler buckets on.
type Stats struct {
	Volatility float64 `json:"volatility"`
	Trend      float64 `json:"trend"`
	MeanVolume float64 `json:"mean_volume"`
}

// ComputeStats derives volatility (stdev of simple close returns), trend
// (relative close change over the window), and mean volume.
func ComputeStats(bars []tape.Bar) Stats {
	var s Stats
	if len(bars) == 0 {
		return s
	}
	first, last := bars[0].Close, bars[len(bars)-1].Close
	if first != 0 {
		s.Trend = (last - first) / first
	}
	var volSum float64
	for _, b := range bars {
		volSum += b.Volume
	}
	s.MeanVolume = volSum / float64(len(bars))

	if len(bars) < 2 {
		return s
	}
	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, bars[i].Close/prev-1)
	}
	if len(returns) == 0 {
		return s
	}
	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	s.Volatility = math.Sqrt(variance / float64(len(returns)))
	return s
}
