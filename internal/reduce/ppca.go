package reduce

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PPCA is a probabilistic factor model with a fixed component count, fitted
// by the closed-form maximum-likelihood solution (Tipping & Bishop): the
// loading matrix is built from the leading eigenpairs of the sample
// covariance, and the residual eigenvalues give the isotropic noise.
type PPCA struct {
	Mean          []float64   `json:"mean"`
	Loadings      [][]float64 `json:"loadings"` // d x k
	NoiseVar      float64     `json:"noise_variance"`
	NumComponents int         `json:"n_components"`
}

// FitPPCA fits the factor model with k components.
func FitPPCA(x *mat.Dense, k int) (*PPCA, error) {
	n, d := x.Dims()
	if k < 1 || k >= d {
		return nil, fmt.Errorf("ppca components must be in [1, %d), got %d", d, k)
	}
	if n < 2 {
		return nil, fmt.Errorf("ppca needs at least 2 rows, got %d", n)
	}
	mean := make([]float64, d)
	for j := 0; j < d; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += x.At(i, j)
		}
		mean[j] = s / float64(n)
	}
	centered := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, x.At(i, j)-mean[j])
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(centered, mat.SVDThin); !ok {
		return nil, fmt.Errorf("ppca svd failed to converge")
	}
	sv := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	eig := make([]float64, len(sv))
	for i, s := range sv {
		eig[i] = s * s / float64(n-1)
	}

	// isotropic noise = mean of discarded eigenvalues
	noise := 0.0
	if len(eig) > k {
		for _, e := range eig[k:] {
			noise += e
		}
		noise /= float64(len(eig) - k)
	}

	loadings := make([][]float64, d)
	for j := 0; j < d; j++ {
		loadings[j] = make([]float64, k)
	}
	for c := 0; c < k; c++ {
		scale := eig[c] - noise
		if scale < 0 {
			scale = 0
		}
		scale = math.Sqrt(scale)
		for j := 0; j < d; j++ {
			loadings[j][c] = v.At(j, c) * scale
		}
	}

	return &PPCA{Mean: mean, Loadings: loadings, NoiseVar: noise, NumComponents: k}, nil
}

// Transform projects rows onto the k-dimensional posterior-mean latent space:
// z = (W'W + sigma^2 I)^{-1} W' (x - mu).
func (p *PPCA) Transform(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	if d != len(p.Mean) {
		return nil, fmt.Errorf("ppca fitted on %d columns, got %d", len(p.Mean), d)
	}
	k := p.NumComponents

	w := mat.NewDense(d, k, nil)
	for j := 0; j < d; j++ {
		for c := 0; c < k; c++ {
			w.Set(j, c, p.Loadings[j][c])
		}
	}
	var m mat.Dense
	m.Mul(w.T(), w)
	for c := 0; c < k; c++ {
		m.Set(c, c, m.At(c, c)+p.NoiseVar+1e-9)
	}
	var minv mat.Dense
	if err := minv.Inverse(&m); err != nil {
		return nil, fmt.Errorf("ppca posterior matrix not invertible: %w", err)
	}

	centered := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			centered.Set(i, j, x.At(i, j)-p.Mean[j])
		}
	}
	var proj mat.Dense
	proj.Mul(centered, w) // n x k
	var out mat.Dense
	out.Mul(&proj, minv.T())
	res := mat.NewDense(n, k, nil)
	res.Copy(&out)
	return res, nil
}

func (p *PPCA) OutputDim() int { return p.NumComponents }
