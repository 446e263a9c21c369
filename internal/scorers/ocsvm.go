package scorers

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// OCSVMParams configures the one-class boundary scorer. The RBF kernel is
// approximated by random Fourier features so the linear nu-formulation can
// be solved with plain subgradient descent.
type OCSVMParams struct {
	Nu       float64
	Gamma    float64 // 0 means 1/d
	Features int     // random Fourier feature dimension
	Epochs   int
}

func DefaultOCSVMParams() OCSVMParams {
	return OCSVMParams{Nu: 0.1, Gamma: 0, Features: 128, Epochs: 40}
}

// OCSVMScore trains a one-class boundary in the random-feature space and
// returns rho - w.phi(x): the signed distance inside the boundary negated,
// so higher means more anomalous.
func OCSVMScore(z *mat.Dense, p OCSVMParams, seed uint64) []float64 {
	n, d := z.Dims()
	rng := rand.New(rand.NewPCG(seed, seed^0x7f4a7c159e3779b9))

	gamma := p.Gamma
	if gamma <= 0 {
		gamma = 1 / float64(d)
	}
	dim := p.Features

	// w ~ N(0, 2*gamma I), b ~ U(0, 2*pi); phi(x) = sqrt(2/D) cos(wx + b)
	sigma := math.Sqrt(2 * gamma)
	w := mat.NewDense(dim, d, nil)
	offset := make([]float64, dim)
	for f := 0; f < dim; f++ {
		for j := 0; j < d; j++ {
			w.Set(f, j, rng.NormFloat64()*sigma)
		}
		offset[f] = rng.Float64() * 2 * math.Pi
	}
	scale := math.Sqrt(2 / float64(dim))
	phi := mat.NewDense(n, dim, nil)
	for i := 0; i < n; i++ {
		for f := 0; f < dim; f++ {
			var s float64
			for j := 0; j < d; j++ {
				s += w.At(f, j) * z.At(i, j)
			}
			phi.Set(i, f, scale*math.Cos(s+offset[f]))
		}
	}

	// minimize 0.5|w|^2 - rho + 1/(nu n) sum max(0, rho - w.phi)
	weight := make([]float64, dim)
	rho := 0.0
	invNuN := 1 / (p.Nu * float64(n))
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	step := 0
	for epoch := 0; epoch < p.Epochs; epoch++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		for _, i := range order {
			step++
			lr := 1 / (1 + 0.01*float64(step))
			var dot float64
			for f := 0; f < dim; f++ {
				dot += weight[f] * phi.At(i, f)
			}
			if dot < rho {
				for f := 0; f < dim; f++ {
					weight[f] += lr * (invNuN*phi.At(i, f) - weight[f]/float64(n))
				}
				rho -= lr * (invNuN - 1/float64(n))
			} else {
				for f := 0; f < dim; f++ {
					weight[f] -= lr * weight[f] / float64(n)
				}
				rho += lr / float64(n)
			}
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var dot float64
		for f := 0; f < dim; f++ {
			dot += weight[f] * phi.At(i, f)
		}
		out[i] = rho - dot
	}
	return out
}
