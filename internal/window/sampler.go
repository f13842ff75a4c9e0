package window

import (
	"fmt"
	"hash/fnv"
	"sort"

	"solclash/internal/tape"
)

// Sampling modes.
const (
	ModeSequential = "sequential"
	ModeStratified = "stratified"
)

// SamplingConfig selects how a round's windows are drawn from the
// candidates. Seed defaults to the arena id at round time.
type SamplingConfig struct {
	Mode          string `json:"mode"`
	StressCount   int    `json:"stress_count"`
	VolBuckets    int    `json:"vol_buckets"`
	TrendBuckets  int    `json:"trend_buckets"`
	VolumeBuckets int    `json:"volume_buckets"`
	Seed          string `json:"seed,omitempty"`
}

// hash32 is the sampler's deterministic tie-breaker.
func hash32(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// Sample picks target windows out of the candidates. Sequential mode takes
// the first target windows; stratified mode takes the highest-volatility
// stress windows first, then round-robins across hash-ordered bucket groups.
// Identical inputs always produce the identical selection.
func Sample(windows []Def, bars []tape.Bar, cfg SamplingConfig, target int) []Def {
	if target <= 0 {
		return nil
	}
	if len(windows) <= target {
		return append([]Def(nil), windows...)
	}
	if cfg.Mode != ModeStratified {
		return append([]Def(nil), windows[:target]...)
	}

	stats := make([]Stats, len(windows))
	hashes := make([]uint32, len(windows))
	for i, w := range windows {
		stats[i] = ComputeStats(bars[w.Start:w.End])
		hashes[i] = hash32(cfg.Seed + ":" + w.ID)
	}

	// stress: top volatility, hash tie-break
	order := indexRange(len(windows))
	sort.SliceStable(order, func(a, b int) bool {
		i, j := order[a], order[b]
		if stats[i].Volatility != stats[j].Volatility {
			return stats[i].Volatility > stats[j].Volatility
		}
		return hashes[i] < hashes[j]
	})
	stressN := cfg.StressCount
	if stressN > target {
		stressN = target
	}
	if stressN > len(windows) {
		stressN = len(windows)
	}
	if stressN < 0 {
		stressN = 0
	}
	selected := make([]Def, 0, target)
	inStress := make(map[int]bool, stressN)
	for _, i := range order[:stressN] {
		selected = append(selected, windows[i])
		inStress[i] = true
	}

	// composite bucket keys are ranked over all candidates
	volB := bucketize(len(windows), cfg.VolBuckets, func(i int) float64 { return stats[i].Volatility })
	trendB := bucketize(len(windows), cfg.TrendBuckets, func(i int) float64 { return stats[i].Trend })
	volumeB := bucketize(len(windows), cfg.VolumeBuckets, func(i int) float64 { return stats[i].MeanVolume })

	groups := make(map[string][]int)
	for i := range windows {
		if inStress[i] {
			continue
		}
		key := fmt.Sprintf("%d:%d:%d", volB[i], trendB[i], volumeB[i])
		groups[key] = append(groups[key], i)
	}
	keys := make([]string, 0, len(groups))
	for key, members := range groups {
		sort.SliceStable(members, func(a, b int) bool {
			if hashes[members[a]] != hashes[members[b]] {
				return hashes[members[a]] < hashes[members[b]]
			}
			return members[a] < members[b]
		})
		keys = append(keys, key)
	}
	sort.SliceStable(keys, func(a, b int) bool {
		ha, hb := hash32(cfg.Seed+":"+keys[a]), hash32(cfg.Seed+":"+keys[b])
		if ha != hb {
			return ha < hb
		}
		return keys[a] < keys[b]
	})

	for len(selected) < target {
		picked := false
		for _, key := range keys {
			if len(selected) == target {
				break
			}
			members := groups[key]
			if len(members) == 0 {
				continue
			}
			selected = append(selected, windows[members[0]])
			groups[key] = members[1:]
			picked = true
		}
		if !picked {
			break
		}
	}
	return selected
}

func indexRange(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// bucketize assigns each window a bucket on one axis by rank over all
// candidates: bucket = min(B-1, rank*B/n).
func bucketize(n, buckets int, axis func(int) float64) []int {
	if buckets < 1 {
		buckets = 1
	}
	order := indexRange(n)
	sort.SliceStable(order, func(a, b int) bool { return axis(order[a]) < axis(order[b]) })
	out := make([]int, n)
	for rank, i := range order {
		b := rank * buckets / n
		if b > buckets-1 {
			b = buckets - 1
		}
		out[i] = b
	}
	return out
}
