// Package reduce implements the latent reducer: a robust per-column scaler
// and an optional projection, either variance-retaining PCA or a
// probabilistic factor model. A fitted reducer is immutable for a trained
// model version.
package reduce

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// RobustScaler scales each column by (x - median) / IQR. Columns with zero
// IQR get unit scale. Fully JSON-serializable for the artifact bundle.
type RobustScaler struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

func (s *RobustScaler) Fit(x *mat.Dense) {
	n, d := x.Dims()
	s.Center = make([]float64, d)
	s.Scale = make([]float64, d)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			col[i] = x.At(i, j)
		}
		sort.Float64s(col)
		med := stat.Quantile(0.5, stat.LinInterp, col, nil)
		iqr := stat.Quantile(0.75, stat.LinInterp, col, nil) - stat.Quantile(0.25, stat.LinInterp, col, nil)
		if iqr == 0 || math.IsNaN(iqr) {
			iqr = 1
		}
		s.Center[j] = med
		s.Scale[j] = iqr
	}
}

func (s *RobustScaler) Transform(x *mat.Dense) (*mat.Dense, error) {
	n, d := x.Dims()
	if d != len(s.Center) {
		return nil, fmt.Errorf("robust scaler fitted on %d columns, got %d", len(s.Center), d)
	}
	out := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			out.Set(i, j, (x.At(i, j)-s.Center[j])/s.Scale[j])
		}
	}
	return out, nil
}

func (s *RobustScaler) FitTransform(x *mat.Dense) (*mat.Dense, error) {
	s.Fit(x)
	return s.Transform(x)
}
