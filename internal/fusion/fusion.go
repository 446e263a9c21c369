// Package fusion converts raw detector scores into [0,1] ranks, fuses them
// with per-method weights, and thresholds the fused score at the
// contamination percentile.
package fusion

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/gridwatch/fused/internal/scorers"
)

// Result is the fused decision for one run.
type Result struct {
	Order            []scorers.Method
	Ranks            map[scorers.Method][]float64
	MethodThresholds map[scorers.Method]float64
	MethodFlags      map[scorers.Method][]int

	Fused     []float64
	Threshold float64
	Flags     []int
	DenseRank []int // 1 = most anomalous
}

// Rank01 maps raw scores to equally spaced ranks in [0,1], endpoints
// inclusive, ties broken by index order. 0 is least anomalous.
func Rank01(raw []float64) []float64 {
	n := len(raw)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return raw[order[a]] < raw[order[b]] })
	ranks := make([]float64, n)
	if n == 1 {
		ranks[order[0]] = 0
		return ranks
	}
	for pos, idx := range order {
		ranks[idx] = float64(pos) / float64(n-1)
	}
	return ranks
}

// PercentileThreshold returns the linearly interpolated p-th percentile
// (p in [0,100]) of v.
func PercentileThreshold(v []float64, p float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	return stat.Quantile(p/100, stat.LinInterp, s, nil)
}

// Fuse ranks every method's raw scores, averages them under the given
// weights (default 1.0 per method), and flags rows at or above the
// (100*(1-contamination))-th percentile of the fused score. Rows tied
// exactly at the threshold are all flagged, so the flagged count may exceed
// round(contamination*n) by the tie-group size; that behavior is part of the
// output contract.
func Fuse(scores scorers.ScoreSet, order []scorers.Method, weights map[string]float64, contamination float64) (*Result, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("no methods to fuse")
	}
	if contamination <= 0 || contamination >= 1 {
		return nil, fmt.Errorf("contamination must be in (0,1), got %g", contamination)
	}
	n := len(scores[order[0]])

	res := &Result{
		Order:            append([]scorers.Method(nil), order...),
		Ranks:            make(map[scorers.Method][]float64, len(order)),
		MethodThresholds: make(map[scorers.Method]float64, len(order)),
		MethodFlags:      make(map[scorers.Method][]int, len(order)),
		Fused:            make([]float64, n),
	}

	var totalWeight float64
	pct := 100 * (1 - contamination)
	for _, m := range order {
		raw := scores[m]
		if len(raw) != n {
			return nil, fmt.Errorf("method %s has %d scores, expected %d", m, len(raw), n)
		}
		w := 1.0
		if ov, ok := weights[string(m)]; ok {
			w = ov
		}
		r := Rank01(raw)
		res.Ranks[m] = r
		totalWeight += w
		for i := 0; i < n; i++ {
			res.Fused[i] += w * r[i]
		}

		thr := PercentileThreshold(raw, pct)
		res.MethodThresholds[m] = thr
		flags := make([]int, n)
		for i, v := range raw {
			if v >= thr {
				flags[i] = 1
			}
		}
		res.MethodFlags[m] = flags
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("fusion weights sum to %g", totalWeight)
	}
	for i := range res.Fused {
		res.Fused[i] /= totalWeight
	}

	res.Threshold = PercentileThreshold(res.Fused, pct)
	res.Flags = make([]int, n)
	for i, v := range res.Fused {
		if v >= res.Threshold {
			res.Flags[i] = 1
		}
	}
	res.DenseRank = denseRankDescending(res.Fused)
	return res, nil
}

// denseRankDescending assigns 1 to the most anomalous row; ties share the
// order of their indices.
func denseRankDescending(v []float64) []int {
	n := len(v)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return v[order[a]] > v[order[b]] })
	out := make([]int, n)
	for pos, idx := range order {
		out[idx] = pos + 1
	}
	return out
}

// FlaggedCount is a convenience for tests and reporting.
func FlaggedCount(flags []int) int {
	c := 0
	for _, f := range flags {
		c += f
	}
	return c
}

// ExpectedFlagged is the tie-free target count for a contamination level.
func ExpectedFlagged(n int, contamination float64) int {
	return int(math.Round(contamination * float64(n)))
}
