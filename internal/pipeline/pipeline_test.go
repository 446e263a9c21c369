package pipeline

import (
	"context"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/fused/internal/dataset"
	"github.com/gridwatch/fused/internal/features"
	"github.com/gridwatch/fused/internal/inference"
	"github.com/gridwatch/fused/internal/registry"
)

func buildingFrame(t *testing.T, n int, seed uint64) *dataset.Frame {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	f := dataset.NewFrame(n)
	fid := make([]float64, n)
	area := make([]float64, n)
	appart := make([]float64, n)
	floors := make([]float64, n)
	yearZ := make([]float64, n)
	kwh := make([]float64, n)
	for i := 0; i < n; i++ {
		fid[i] = float64(i + 1)
		area[i] = 200 + 400*rng.Float64()
		appart[i] = float64(1 + rng.IntN(30))
		floors[i] = float64(1 + rng.IntN(10))
		yearZ[i] = rng.NormFloat64()
		kwh[i] = 50*area[i] + 300*appart[i] + 500*rng.NormFloat64()
	}
	// a handful of gross over-consumers
	for i := 0; i < 4; i++ {
		kwh[i] *= 4
	}
	require.NoError(t, f.SetNumeric(features.ColID, fid))
	require.NoError(t, f.SetNumeric(features.ColArea, area))
	require.NoError(t, f.SetNumeric(features.ColApartments, appart))
	require.NoError(t, f.SetNumeric(features.ColFloors, floors))
	require.NoError(t, f.SetNumeric(features.ColYearZ, yearZ))
	require.NoError(t, f.SetNumeric(features.ColKWH, kwh))
	return f
}

// fastConfig keeps the two iterative detectors out of the unit run.
func fastConfig() Config {
	return NewConfig(
		WithAutoencoder(false),
		WithOCSVM(false),
		WithAudit(2, 1, 1),
		WithContamination(0.1),
	)
}

func TestRunEndToEnd(t *testing.T) {
	frame := buildingFrame(t, 120, 17)

	var stages []Stage
	onStage := func(s Stage, _ float64) { stages = append(stages, s) }

	res, err := Run(context.Background(), frame, fastConfig(), onStage)
	require.NoError(t, err)

	assert.Equal(t, []Stage{
		StagePreparing, StageReducing, StageScoring,
		StageFusing, StageAuditing, StagePersisting,
	}, stages)

	assert.Equal(t, 120, res.Frame.NumRows())
	for _, m := range res.Meta.Methods {
		assert.True(t, res.Frame.HasColumn(m+"_score"), "missing %s_score", m)
		assert.True(t, res.Frame.HasColumn("is_anomaly_"+m))
	}
	assert.True(t, res.Frame.HasColumn(ColFusedRank))
	assert.True(t, res.Frame.HasColumn(ColIsAnomalyFused))

	// output is sorted most anomalous first
	fused, _ := res.Frame.Numeric(ColFusedRank)
	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1], fused[i])
	}

	assert.NotEmpty(t, res.FeatureColumns)
	assert.NotContains(t, res.FeatureColumns, features.ColID, "identifier must stay out of the latent space")
	require.NotNil(t, res.Report)
	assert.Contains(t, res.Evals, FusedEvalKey)
	require.NotNil(t, res.Scaler)
	require.NotNil(t, res.Residual)
}

func TestRunDeterministicPerSeed(t *testing.T) {
	cfg := fastConfig()

	r1, err := Run(context.Background(), buildingFrame(t, 100, 23), cfg, nil)
	require.NoError(t, err)
	r2, err := Run(context.Background(), buildingFrame(t, 100, 23), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, r1.Fusion.Fused, r2.Fusion.Fused, "same data and seed must reproduce the ranking")
	assert.Equal(t, r1.Fusion.Flags, r2.Fusion.Flags)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, buildingFrame(t, 60, 5), fastConfig(), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunRejectsIncompleteData(t *testing.T) {
	f := dataset.NewFrame(10)
	require.NoError(t, f.SetNumeric(features.ColArea, make([]float64, 10)))

	_, err := Run(context.Background(), f, fastConfig(), nil)
	var verr *features.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Missing)
}

func TestRunImputesMissingCells(t *testing.T) {
	frame := buildingFrame(t, 80, 13)
	extra := make([]float64, 80)
	for i := range extra {
		extra[i] = float64(i)
	}
	extra[7] = math.NaN()
	extra[41] = math.NaN()
	require.NoError(t, frame.SetNumeric("roof_area", extra))

	res, err := Run(context.Background(), frame, fastConfig(), nil)
	require.NoError(t, err, "gaps in a passthrough column must not abort the run")
	assert.Contains(t, res.FeatureColumns, "roof_area")

	v, ok := res.Frame.Numeric("roof_area")
	require.True(t, ok)
	for i, x := range v {
		assert.False(t, math.IsNaN(x), "cell %d still missing after imputation", i)
	}
}

func TestRunRejectsAllMissingColumn(t *testing.T) {
	frame := buildingFrame(t, 40, 19)
	empty := make([]float64, 40)
	for i := range empty {
		empty[i] = math.NaN()
	}
	require.NoError(t, frame.SetNumeric("ghost", empty))

	_, err := Run(context.Background(), frame, fastConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost", "the failing column must be named")
}

func TestWriteOutputs(t *testing.T) {
	res, err := Run(context.Background(), buildingFrame(t, 80, 31), fastConfig(), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	paths, err := res.WriteOutputs(dir, "anomaly_scores")
	require.NoError(t, err)

	for _, p := range []string{paths.ScoresCSV, paths.MetaJSON, paths.StabilityJSON} {
		_, err := os.Stat(filepath.Join(dir, p))
		assert.NoError(t, err, "expected %s to exist", p)
	}
}

func TestPersistAndScoreRoundTrip(t *testing.T) {
	cfg := fastConfig()
	res, err := Run(context.Background(), buildingFrame(t, 100, 41), cfg, nil)
	require.NoError(t, err)

	store := registry.NewStore(t.TempDir())
	card, err := PersistRun(store, res, cfg, "fast", "synthetic.csv")
	require.NoError(t, err)
	assert.Equal(t, 1, card.Version)
	assert.True(t, card.IsActive)
	assert.Equal(t, res.FeatureColumns, card.FeatureColumns)

	bundle, err := store.LoadActiveBundle()
	require.NoError(t, err)
	require.NotNil(t, bundle.Scaler)
	require.NotNil(t, bundle.Residual)

	batch := buildingFrame(t, 50, 77)
	scored, err := inference.Score(batch, bundle, inference.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 50, scored.NumRows())
	for _, c := range []string{
		inference.ColMahScore, inference.ColCopulaScore,
		inference.ColFusedScore, inference.ColRank, inference.ColIsAnomaly,
	} {
		assert.True(t, scored.HasColumn(c), "missing column %s", c)
	}

	ranks, _ := scored.Numeric(inference.ColRank)
	assert.Equal(t, 1.0, ranks[0], "first row carries rank 1 after sorting")
}
