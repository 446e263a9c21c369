package scorers

import (
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// CopulaScore is the Gaussian-copula negative log-likelihood: each column is
// rank-transformed to (r+0.5)/n, Gaussianized through the inverse normal
// CDF, and scored under a joint Gaussian fit on the transformed columns.
// Distribution-free against per-column skew; higher means more anomalous.
func CopulaScore(z *mat.Dense) []float64 {
	n, d := z.Dims()
	g := mat.NewDense(n, d, nil)
	norm := distuv.UnitNormal

	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			col[i] = z.At(i, j)
		}
		r := argsortRanks(col)
		for i := 0; i < n; i++ {
			u := (float64(r[i]) + 0.5) / float64(n)
			if u < 1e-6 {
				u = 1e-6
			} else if u > 1-1e-6 {
				u = 1 - 1e-6
			}
			g.Set(i, j, norm.Quantile(u))
		}
	}

	mu := colMeans(g)
	cov := covariance(g, mu)
	inv := invert(cov)
	quad := mahalanobisSq(g, mu, inv)
	ld := logDet(cov)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		// additive constants dropped
		out[i] = 0.5 * (quad[i] + ld)
	}
	return out
}

// argsortRanks gives each value its position in the ascending sort, ties
// broken by original index order.
func argsortRanks(v []float64) []int {
	n := len(v)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return v[order[a]] < v[order[b]] })
	ranks := make([]int, n)
	for pos, idx := range order {
		ranks[idx] = pos
	}
	return ranks
}
