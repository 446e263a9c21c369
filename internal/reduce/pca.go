package reduce

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PCA is a variance-retaining linear projection. Components are stored
// row-major (k x d) so the artifact is JSON-serializable.
type PCA struct {
	Mean          []float64   `json:"mean"`
	Components    [][]float64 `json:"components"` // k x d, rows are principal axes
	ExplainedVar  []float64   `json:"explained_variance_ratio"`
	TargetVar     float64     `json:"target_variance"`
	NumComponents int         `json:"n_components"`
}

// FitPCA keeps the smallest number of leading components whose cumulative
// explained-variance ratio reaches targetVar.
func FitPCA(x *mat.Dense, targetVar float64) (*PCA, error) {
	n, d := x.Dims()
	if n < 2 {
		return nil, fmt.Errorf("pca needs at least 2 rows, got %d", n)
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
		return nil, fmt.Errorf("pca svd failed to converge")
	}
	sv := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	total := 0.0
	vars := make([]float64, len(sv))
	for i, s := range sv {
		vars[i] = s * s / float64(n-1)
		total += vars[i]
	}
	ratios := make([]float64, len(sv))
	k := len(sv)
	cum := 0.0
	for i := range vars {
		if total > 0 {
			ratios[i] = vars[i] / total
		}
		cum += ratios[i]
		if cum >= targetVar {
			k = i + 1
			break
		}
	}
	if k < 1 {
		k = 1
	}

	comps := make([][]float64, k)
	for c := 0; c < k; c++ {
		row := make([]float64, d)
		for j := 0; j < d; j++ {
			row[j] = v.At(j, c)
		}
		comps[c] = row
	}
	return &PCA{
		Mean:          mean,
		Components:    comps,
		ExplainedVar:  ratios[:k],
		TargetVar:     targetVar,
		NumComponents: k,
	}, nil
}

func (p *PCA) Transform(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	if d != len(p.Mean) {
		return nil, fmt.Errorf("pca fitted on %d columns, got %d", len(p.Mean), d)
	}
	out := mat.NewDense(n, p.NumComponents, nil)
	for i := 0; i < n; i++ {
		for c := 0; c < p.NumComponents; c++ {
			var s float64
			for j := 0; j < d; j++ {
				s += (x.At(i, j) - p.Mean[j]) * p.Components[c][j]
			}
			out.Set(i, c, s)
		}
	}
	return out, nil
}

func (p *PCA) OutputDim() int { return p.NumComponents }

// CumulativeExplained returns the total variance ratio retained.
func (p *PCA) CumulativeExplained() float64 {
	c := 0.0
	for _, r := range p.ExplainedVar {
		c += r
	}
	if math.IsNaN(c) {
		return 0
	}
	return c
}
