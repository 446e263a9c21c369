package features

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/gridwatch/fused/internal/dataset"
)

// StandardScaler centers and scales columns to zero mean and unit variance.
// A fitted scaler is part of the frozen residual artifact, so it is fully
// JSON-serializable.
type StandardScaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

func (s *StandardScaler) Fit(x *mat.Dense) {
	n, d := x.Dims()
	s.Mean = make([]float64, d)
	s.Std = make([]float64, d)
	for j := 0; j < d; j++ {
		var sum float64
		for i := 0; i < n; i++ {
			sum += x.At(i, j)
		}
		mu := sum / float64(n)
		var ss float64
		for i := 0; i < n; i++ {
			dv := x.At(i, j) - mu
			ss += dv * dv
		}
		sd := math.Sqrt(ss / float64(n))
		if sd == 0 {
			sd = 1
		}
		s.Mean[j] = mu
		s.Std[j] = sd
	}
}

func (s *StandardScaler) Transform(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	out := mat.NewDense(n, d, nil)
	for j := 0; j < d; j++ {
		for i := 0; i < n; i++ {
			out.Set(i, j, (x.At(i, j)-s.Mean[j])/s.Std[j])
		}
	}
	return out
}

// ResidualModel is the frozen artifact of the robust consumption regression:
// the exact input columns, the standardizer fitted on them, and the linear
// coefficients. Inference must replay it verbatim.
type ResidualModel struct {
	XCols     []string        `json:"x_cols"`
	YCol      string          `json:"y_col"`
	Scaler    *StandardScaler `json:"scaler"`
	Coef      []float64       `json:"coef"`
	Intercept float64         `json:"intercept"`
}

const (
	huberDelta    = 1.345
	huberMaxIters = 50
	huberTol      = 1e-8
)

// FitResidualModel fits a Huber-loss linear regression of yCol on xCols with
// standardized inputs, via iteratively reweighted least squares.
func FitResidualModel(f *dataset.Frame, xCols []string, yCol string) (*ResidualModel, error) {
	x, err := f.Matrix(xCols)
	if err != nil {
		return nil, fmt.Errorf("residual design matrix: %w", err)
	}
	y, ok := f.Numeric(yCol)
	if !ok {
		return nil, fmt.Errorf("residual target %s is not numeric", yCol)
	}

	scaler := &StandardScaler{}
	scaler.Fit(x)
	xs := scaler.Transform(x)

	n, d := xs.Dims()
	// design with intercept column
	design := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < d; j++ {
			design.Set(i, j+1, xs.At(i, j))
		}
	}

	beta := solveWLS(design, y, nil)
	for iter := 0; iter < huberMaxIters; iter++ {
		resid := residuals(design, y, beta)
		scale := madScale(resid)
		if scale == 0 {
			break
		}
		w := make([]float64, n)
		for i, r := range resid {
			a := math.Abs(r) / scale
			if a <= huberDelta {
				w[i] = 1
			} else {
				w[i] = huberDelta / a
			}
		}
		next := solveWLS(design, y, w)
		var diff float64
		for j := range beta {
			diff += math.Abs(next[j] - beta[j])
		}
		beta = next
		if diff < huberTol {
			break
		}
	}

	return &ResidualModel{
		XCols:     append([]string(nil), xCols...),
		YCol:      yCol,
		Scaler:    scaler,
		Coef:      beta[1:],
		Intercept: beta[0],
	}, nil
}

// Predict applies the frozen standardizer and coefficients to the frame.
func (m *ResidualModel) Predict(f *dataset.Frame) ([]float64, error) {
	x, err := f.Matrix(m.XCols)
	if err != nil {
		return nil, fmt.Errorf("residual predict: %w", err)
	}
	xs := m.Scaler.Transform(x)
	n, d := xs.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := m.Intercept
		for j := 0; j < d; j++ {
			v += m.Coef[j] * xs.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}

// MissingColumns reports which of the artifact's expected inputs are absent
// from the frame.
func (m *ResidualModel) MissingColumns(f *dataset.Frame) []string {
	var missing []string
	for _, c := range append(append([]string(nil), m.XCols...), m.YCol) {
		if _, ok := f.Numeric(c); !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func solveWLS(design *mat.Dense, y, w []float64) []float64 {
	n, p := design.Dims()
	a := design
	b := mat.NewVecDense(n, append([]float64(nil), y...))
	if w != nil {
		a = mat.NewDense(n, p, nil)
		for i := 0; i < n; i++ {
			sw := math.Sqrt(w[i])
			b.SetVec(i, sw*y[i])
			for j := 0; j < p; j++ {
				a.Set(i, j, sw*design.At(i, j))
			}
		}
	}
	var sol mat.VecDense
	if err := sol.SolveVec(a, b); err != nil {
		// rank-deficient design; fall back to ridge-stabilized normal equations
		var ata mat.Dense
		ata.Mul(a.T(), a)
		for j := 0; j < p; j++ {
			ata.Set(j, j, ata.At(j, j)+1e-8)
		}
		var atb mat.VecDense
		atb.MulVec(a.T(), b)
		_ = sol.SolveVec(&ata, &atb)
	}
	out := make([]float64, p)
	for j := 0; j < p; j++ {
		out[j] = sol.AtVec(j)
	}
	return out
}

func residuals(design *mat.Dense, y, beta []float64) []float64 {
	n, p := design.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v := 0.0
		for j := 0; j < p; j++ {
			v += design.At(i, j) * beta[j]
		}
		out[i] = y[i] - v
	}
	return out
}

// madScale is the median absolute deviation scaled for consistency at the
// normal distribution.
func madScale(r []float64) float64 {
	med := median(r)
	abs := make([]float64, len(r))
	for i, v := range r {
		abs[i] = math.Abs(v - med)
	}
	return 1.4826 * median(abs)
}
