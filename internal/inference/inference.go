// Package inference scores a new batch with the frozen artifacts of a
// registered model version. Preprocessing replays the training fit exactly;
// only the two fit-free detectors are recomputed on the batch.
package inference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"

	"github.com/gridwatch/fused/internal/dataset"
	"github.com/gridwatch/fused/internal/features"
	"github.com/gridwatch/fused/internal/fusion"
	"github.com/gridwatch/fused/internal/registry"
	"github.com/gridwatch/fused/internal/scorers"
)

// Output column names of a scored batch.
const (
	ColMahScore    = "mah_score"
	ColCopulaScore = "copula_score"
	ColFusedScore  = "fused_score"
	ColRank        = "rank"
	ColIsAnomaly   = "is_anomaly"
)

// Options tunes batch scoring.
type Options struct {
	TopPercent float64 // fraction of rows flagged, top of the fused ranking
	Seed       uint64
}

func DefaultOptions() Options {
	return Options{TopPercent: 0.05, Seed: 42}
}

// Score replays the bundle's frozen preprocessing on raw, recomputes the
// robust Mahalanobis and Gaussian copula detectors on the resulting latent
// matrix, and fuses them 50/50 by rank. The returned frame is sorted most
// anomalous first. The input frame is not mutated.
func Score(raw *dataset.Frame, b *registry.Bundle, opts Options) (*dataset.Frame, error) {
	if b == nil || b.Card == nil {
		return nil, errors.New("nil model bundle")
	}
	if opts.TopPercent <= 0 || opts.TopPercent >= 1 {
		return nil, fmt.Errorf("top percent must be in (0,1), got %g", opts.TopPercent)
	}

	prep, err := features.PrepareWithArtifact(raw.Clone(), b.Residual)
	if err != nil {
		return nil, fmt.Errorf("prepare batch: %w", err)
	}
	if prep.Outcome == features.ResidualFellBackToRefit {
		log.Warn().Msgf("residual artifact of model v%d not applicable, refit on batch", b.Card.Version)
	}

	z, err := project(prep.Frame, b)
	if err != nil {
		return nil, err
	}

	scores := scorers.ScoreSet{
		scorers.MethodMahalanobis: scorers.RobustMahalanobisScore(z, opts.Seed),
		scorers.MethodCopula:      scorers.CopulaScore(z),
	}
	mahRank := fusion.Rank01(scores[scorers.MethodMahalanobis])
	copRank := fusion.Rank01(scores[scorers.MethodCopula])

	n := prep.Frame.NumRows()
	fused := make([]float64, n)
	for i := 0; i < n; i++ {
		fused[i] = 0.5*mahRank[i] + 0.5*copRank[i]
	}
	threshold := fusion.PercentileThreshold(fused, 100*(1-opts.TopPercent))
	flags := make([]float64, n)
	for i, v := range fused {
		if v >= threshold {
			flags[i] = 1
		}
	}

	out := prep.Frame
	_ = out.SetNumeric(ColMahScore, scores[scorers.MethodMahalanobis])
	_ = out.SetNumeric(ColCopulaScore, scores[scorers.MethodCopula])
	_ = out.SetNumeric(ColFusedScore, fused)
	_ = out.SetNumeric(ColIsAnomaly, flags)
	if err := out.SortDescendingBy(ColFusedScore); err != nil {
		return nil, err
	}
	rank := make([]float64, n)
	for i := range rank {
		rank[i] = float64(i + 1)
	}
	_ = out.SetNumeric(ColRank, rank)

	log.Info().Msgf("scored %d rows against model v%d, flagged %d", n, b.Card.Version, int(sum(flags)))
	return out, nil
}

// project applies the frozen scaler and reducer to the card's exact feature
// columns, in training order.
func project(f *dataset.Frame, b *registry.Bundle) (*mat.Dense, error) {
	var missing []string
	for _, c := range b.Card.FeatureColumns {
		if !f.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("batch lacks model feature columns: %s", strings.Join(missing, ", "))
	}

	x, err := f.Matrix(b.Card.FeatureColumns)
	if err != nil {
		return nil, err
	}
	z, err := b.Scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("apply frozen scaler: %w", err)
	}
	if b.Reducer != nil {
		z, err = b.Reducer.Transform(z)
		if err != nil {
			return nil, fmt.Errorf("apply frozen reducer: %w", err)
		}
	}
	return z, nil
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}
