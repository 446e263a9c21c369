package scorers

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const covRidge = 1e-6

// colMeans returns the column means of a dense matrix.
func colMeans(x *mat.Dense) []float64 {
	n, d := x.Dims()
	mu := make([]float64, d)
	for j := 0; j < d; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += x.At(i, j)
		}
		mu[j] = s / float64(n)
	}
	return mu
}

// covariance computes the sample covariance around mu with a small ridge on
// the diagonal so the estimate is always invertible.
func covariance(x *mat.Dense, mu []float64) *mat.Dense {
	n, d := x.Dims()
	cov := mat.NewDense(d, d, nil)
	denom := float64(n - 1)
	if denom < 1 {
		denom = 1
	}
	for a := 0; a < d; a++ {
		for b := a; b < d; b++ {
			var s float64
			for i := 0; i < n; i++ {
				s += (x.At(i, a) - mu[a]) * (x.At(i, b) - mu[b])
			}
			v := s / denom
			cov.Set(a, b, v)
			cov.Set(b, a, v)
		}
	}
	for j := 0; j < d; j++ {
		cov.Set(j, j, cov.At(j, j)+covRidge)
	}
	return cov
}

// mahalanobisSq returns the squared Mahalanobis distance of every row of x
// from mu under the inverse covariance inv.
func mahalanobisSq(x *mat.Dense, mu []float64, inv *mat.Dense) []float64 {
	n, d := x.Dims()
	out := make([]float64, n)
	diff := make([]float64, d)
	tmp := make([]float64, d)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			diff[j] = x.At(i, j) - mu[j]
		}
		for a := 0; a < d; a++ {
			var s float64
			for b := 0; b < d; b++ {
				s += inv.At(a, b) * diff[b]
			}
			tmp[a] = s
		}
		var q float64
		for j := 0; j < d; j++ {
			q += diff[j] * tmp[j]
		}
		out[i] = q
	}
	return out
}

// invert returns the inverse of a ridge-stabilized covariance; on failure it
// falls back to a diagonal inverse so scoring degrades instead of aborting.
func invert(cov *mat.Dense) *mat.Dense {
	d, _ := cov.Dims()
	var inv mat.Dense
	if err := inv.Inverse(cov); err == nil {
		out := mat.NewDense(d, d, nil)
		out.Copy(&inv)
		return out
	}
	out := mat.NewDense(d, d, nil)
	for j := 0; j < d; j++ {
		v := cov.At(j, j)
		if v <= 0 || math.IsNaN(v) {
			v = covRidge
		}
		out.Set(j, j, 1/v)
	}
	return out
}

// logDet returns log|cov| guarded against non-positive determinants.
func logDet(cov *mat.Dense) float64 {
	ld, sign := mat.LogDet(cov)
	if sign <= 0 || math.IsInf(ld, 0) || math.IsNaN(ld) {
		return math.Log(1e-12)
	}
	return ld
}
