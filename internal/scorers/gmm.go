package scorers

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

const (
	gmmMaxIters = 100
	gmmTol      = 1e-6
)

// GMMScore fits a Gaussian mixture with k full-covariance components by EM
// and returns the negative per-point log-likelihood.
func GMMScore(z *mat.Dense, k int, seed uint64) []float64 {
	n, d := z.Dims()
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x5bf03635dcd1c9e7))

	// init: random distinct rows as means, shared covariance, uniform weights
	pick := rng.Perm(n)[:k]
	means := make([][]float64, k)
	for c, r := range pick {
		means[c] = make([]float64, d)
		for j := 0; j < d; j++ {
			means[c][j] = z.At(r, j)
		}
	}
	globalMu := colMeans(z)
	covs := make([]*mat.Dense, k)
	invs := make([]*mat.Dense, k)
	lds := make([]float64, k)
	for c := 0; c < k; c++ {
		covs[c] = covariance(z, globalMu)
	}
	weights := make([]float64, k)
	for c := range weights {
		weights[c] = 1 / float64(k)
	}

	resp := mat.NewDense(n, k, nil)
	logProb := make([]float64, n)
	prevLL := math.Inf(-1)

	for iter := 0; iter < gmmMaxIters; iter++ {
		for c := 0; c < k; c++ {
			invs[c] = invert(covs[c])
			lds[c] = logDet(covs[c])
		}

		// E-step
		ll := 0.0
		for i := 0; i < n; i++ {
			row := make([]float64, k)
			for c := 0; c < k; c++ {
				q := rowMahalanobisSq(z, i, means[c], invs[c])
				row[c] = math.Log(weights[c]) - 0.5*(q+lds[c]+float64(d)*math.Log(2*math.Pi))
			}
			lse := logSumExp(row)
			logProb[i] = lse
			ll += lse
			for c := 0; c < k; c++ {
				resp.Set(i, c, math.Exp(row[c]-lse))
			}
		}
		if math.Abs(ll-prevLL) < gmmTol*float64(n) {
			break
		}
		prevLL = ll

		// M-step
		for c := 0; c < k; c++ {
			var nc float64
			for i := 0; i < n; i++ {
				nc += resp.At(i, c)
			}
			if nc < 1e-10 {
				nc = 1e-10
			}
			weights[c] = nc / float64(n)
			for j := 0; j < d; j++ {
				var s float64
				for i := 0; i < n; i++ {
					s += resp.At(i, c) * z.At(i, j)
				}
				means[c][j] = s / nc
			}
			cov := mat.NewDense(d, d, nil)
			for a := 0; a < d; a++ {
				for b := a; b < d; b++ {
					var s float64
					for i := 0; i < n; i++ {
						s += resp.At(i, c) * (z.At(i, a) - means[c][a]) * (z.At(i, b) - means[c][b])
					}
					v := s / nc
					cov.Set(a, b, v)
					cov.Set(b, a, v)
				}
			}
			for j := 0; j < d; j++ {
				cov.Set(j, j, cov.At(j, j)+covRidge)
			}
			covs[c] = cov
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = -logProb[i]
	}
	return out
}

func rowMahalanobisSq(z *mat.Dense, row int, mu []float64, inv *mat.Dense) float64 {
	d := len(mu)
	diff := make([]float64, d)
	for j := 0; j < d; j++ {
		diff[j] = z.At(row, j) - mu[j]
	}
	var q float64
	for a := 0; a < d; a++ {
		var s float64
		for b := 0; b < d; b++ {
			s += inv.At(a, b) * diff[b]
		}
		q += diff[a] * s
	}
	return q
}

func logSumExp(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		if x > m {
			m = x
		}
	}
	if math.IsInf(m, -1) {
		return m
	}
	var s float64
	for _, x := range v {
		s += math.Exp(x - m)
	}
	return m + math.Log(s)
}
