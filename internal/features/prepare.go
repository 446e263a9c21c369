// Package features implements the feature preparer: canonical column naming,
// a robust consumption residual, winsorization of heavy-tailed columns, and
// derived intensity ratios.
package features

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/gridwatch/fused/internal/dataset"
)

// Canonical column names consumed by the pipeline.
const (
	ColID         = "fid"
	ColArea       = "area_m2"
	ColApartments = "nb_appart"
	ColFloors     = "nb_floor"
	ColYearZ      = "year_norm_z"
	ColKWH        = "kwh_total"
	ColLat        = "lat"
	ColLong       = "long"

	ColResidual    = "kwh_residual"
	ColResidualAbs = "kwh_resid_abs"
	ColKWHPerM2    = "kwh_per_m2"
	ColKWHPerApt   = "kwh_per_apartment"
	ColKWHPerFloor = "kwh_per_floor"
	ColResidPerM2  = "resid_per_m2"
)

// RequiredColumns must be present (after canonicalization) for a run to start.
var RequiredColumns = []string{ColArea, ColApartments, ColFloors, ColYearZ, ColKWH}

// ResidualXCols are the structural covariates of the consumption regression.
var ResidualXCols = []string{ColArea, ColApartments, ColFloors, ColYearZ}

// winsorized columns and clip percentiles
var winsorCols = []string{ColArea, ColApartments, ColFloors, ColResidual}

const (
	winsorLow  = 0.01
	winsorHigh = 0.99
)

// ValidationError reports the exact set of missing required columns.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// ResidualOutcome tells whether a frozen residual artifact was applied as-is
// or the residual step had to be refit on the new batch.
type ResidualOutcome int

const (
	ResidualApplied ResidualOutcome = iota
	ResidualFellBackToRefit
)

func (o ResidualOutcome) String() string {
	if o == ResidualApplied {
		return "applied"
	}
	return "fell_back_to_refit"
}

// Prepared is the output of the feature preparer: the engineered frame plus
// the fitted residual artifact for frozen replay at inference time.
type Prepared struct {
	Frame    *dataset.Frame
	Residual *ResidualModel
	Outcome  ResidualOutcome
}

var canonicalNames = map[string]string{
	"FID":                                 ColID,
	"Area in m^2":                         ColArea,
	"Number of apartments":                ColApartments,
	"nb_apartments":                       ColApartments,
	"Number of floors":                    ColFloors,
	"Total Electricity Consumption (kwH)": ColKWH,
	"Total electricity consumption (kWh)": ColKWH,
	"kwh":                                 ColKWH,
	"Latitude":                            ColLat,
	"Longitude":                           ColLong,
	"Building's construction year":        "build_year",
}

// Canonicalize renames known column aliases in place and derives year_norm_z
// from a raw construction year when the z-scored column is absent.
func Canonicalize(f *dataset.Frame) {
	for from, to := range canonicalNames {
		if f.HasColumn(from) && !f.HasColumn(to) {
			f.Rename(from, to)
		}
	}
	if !f.HasColumn(ColYearZ) {
		if years, ok := f.Numeric("build_year"); ok {
			mu, sd := stat.MeanStdDev(years, nil)
			if sd == 0 || math.IsNaN(sd) {
				sd = 1
			}
			z := make([]float64, len(years))
			for i, y := range years {
				z[i] = (y - mu) / sd
			}
			_ = f.SetNumeric(ColYearZ, z)
		}
	}
}

// Validate checks the required columns and returns a *ValidationError naming
// every missing field. Fatal; never retried.
func Validate(f *dataset.Frame) error {
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := f.Numeric(c); !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Prepare runs the full feature step on a training batch: validation, robust
// residual fit, winsorization, and ratio derivation. The fitted residual
// artifact is returned so inference can replay the same frozen transform.
func Prepare(f *dataset.Frame) (*Prepared, error) {
	return prepare(f, nil)
}

// PrepareWithArtifact replays a frozen residual artifact on a new batch. When
// the artifact's expected input columns are absent, the residual step is
// refit on the batch as a last-resort compatibility fallback; the outcome is
// reported explicitly rather than swallowed.
func PrepareWithArtifact(f *dataset.Frame, art *ResidualModel) (*Prepared, error) {
	return prepare(f, art)
}

func prepare(f *dataset.Frame, art *ResidualModel) (*Prepared, error) {
	Canonicalize(f)
	if err := Validate(f); err != nil {
		return nil, err
	}

	outcome := ResidualApplied
	model := art
	if art != nil {
		if missing := art.MissingColumns(f); len(missing) > 0 {
			log.Warn().Strs("missing", missing).
				Msg("residual artifact inputs absent from batch; refitting residual step")
			model = nil
			outcome = ResidualFellBackToRefit
		}
	}
	if model == nil {
		var err error
		model, err = FitResidualModel(f, ResidualXCols, ColKWH)
		if err != nil {
			return nil, fmt.Errorf("fit residual model: %w", err)
		}
	}

	pred, err := model.Predict(f)
	if err != nil {
		return nil, fmt.Errorf("apply residual model: %w", err)
	}
	y, _ := f.Numeric(ColKWH)
	resid := make([]float64, f.NumRows())
	residAbs := make([]float64, f.NumRows())
	for i := range resid {
		resid[i] = y[i] - pred[i]
		residAbs[i] = math.Abs(resid[i])
	}
	_ = f.SetNumeric(ColResidual, resid)
	_ = f.SetNumeric(ColResidualAbs, residAbs)

	for _, c := range winsorCols {
		if v, ok := f.Numeric(c); ok {
			winsorize(v, winsorLow, winsorHigh)
		}
	}

	addRatio(f, ColKWHPerM2, ColKWH, ColArea)
	addRatio(f, ColKWHPerApt, ColKWH, ColApartments)
	addRatio(f, ColKWHPerFloor, ColKWH, ColFloors)
	addRatio(f, ColResidPerM2, ColResidual, ColArea)

	return &Prepared{Frame: f, Residual: model, Outcome: outcome}, nil
}

// winsorize clips values in place at the given percentiles.
func winsorize(v []float64, lo, hi float64) {
	qlo := quantile(v, lo)
	qhi := quantile(v, hi)
	for i, x := range v {
		if x < qlo {
			v[i] = qlo
		} else if x > qhi {
			v[i] = qhi
		}
	}
}

// addRatio derives num/den, substituting the column median wherever the
// denominator is zero or not finite. Ratios are never left NaN/Inf.
func addRatio(f *dataset.Frame, name, num, den string) {
	a, _ := f.Numeric(num)
	b, _ := f.Numeric(den)
	n := f.NumRows()
	out := make([]float64, n)
	var valid []float64
	for i := 0; i < n; i++ {
		if b[i] != 0 && !math.IsNaN(b[i]) && !math.IsNaN(a[i]) {
			out[i] = a[i] / b[i]
			valid = append(valid, out[i])
		} else {
			out[i] = math.NaN()
		}
	}
	med := 0.0
	if len(valid) > 0 {
		med = median(valid)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(out[i]) {
			out[i] = med
		}
	}
	_ = f.SetNumeric(name, out)
}

func quantile(v []float64, p float64) float64 {
	s := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			s = append(s, x)
		}
	}
	if len(s) == 0 {
		return math.NaN()
	}
	sort.Float64s(s)
	return stat.Quantile(p, stat.LinInterp, s, nil)
}

func median(v []float64) float64 {
	return quantile(v, 0.5)
}
