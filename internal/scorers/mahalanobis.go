package scorers

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	mcdStarts   = 5
	mcdCSteps   = 20
	mcdMinRatio = 2 // plain covariance when n < mcdMinRatio*(d+1)
)

// RobustMahalanobisScore returns squared Mahalanobis distances under a
// minimum-covariance-determinant location/scatter estimate, concentrated via
// C-steps from seeded random starts. When the sample is too small relative
// to the dimensionality, the plain mean/covariance is used instead.
func RobustMahalanobisScore(z *mat.Dense, seed uint64) []float64 {
	n, d := z.Dims()
	if n < mcdMinRatio*(d+1) {
		mu := colMeans(z)
		inv := invert(covariance(z, mu))
		return mahalanobisSq(z, mu, inv)
	}

	h := (n + d + 1) / 2
	rng := rand.New(rand.NewPCG(seed, seed^0xdeadbeefcafef00d))

	bestDet := math.Inf(1)
	var bestMu []float64
	var bestCov *mat.Dense

	for start := 0; start < mcdStarts; start++ {
		subset := rng.Perm(n)[:d+1]
		mu, cov := subsetMoments(z, subset)
		for step := 0; step < mcdCSteps; step++ {
			inv := invert(cov)
			d2 := mahalanobisSq(z, mu, inv)
			next := smallestK(d2, h)
			nmu, ncov := subsetMoments(z, next)
			if sameMoments(mu, nmu) {
				mu, cov = nmu, ncov
				break
			}
			mu, cov = nmu, ncov
		}
		det := logDet(cov)
		if det < bestDet {
			bestDet = det
			bestMu = mu
			bestCov = cov
		}
	}

	inv := invert(bestCov)
	return mahalanobisSq(z, bestMu, inv)
}

func subsetMoments(z *mat.Dense, rows []int) ([]float64, *mat.Dense) {
	_, d := z.Dims()
	sub := mat.NewDense(len(rows), d, nil)
	for i, r := range rows {
		for j := 0; j < d; j++ {
			sub.Set(i, j, z.At(r, j))
		}
	}
	mu := colMeans(sub)
	return mu, covariance(sub, mu)
}

func smallestK(v []float64, k int) []int {
	idx := make([]int, len(v))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return v[idx[a]] < v[idx[b]] })
	out := make([]int, k)
	copy(out, idx[:k])
	return out
}

func sameMoments(a, b []float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-12 {
			return false
		}
	}
	return true
}
