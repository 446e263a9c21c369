package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/gridwatch/fused/internal/dataset"
	"github.com/gridwatch/fused/internal/evaluate"
	"github.com/gridwatch/fused/internal/features"
	"github.com/gridwatch/fused/internal/fusion"
	"github.com/gridwatch/fused/internal/reduce"
	"github.com/gridwatch/fused/internal/scorers"
	"github.com/gridwatch/fused/internal/stability"
	"github.com/gridwatch/fused/internal/utils/logger"
)

// Stage identifies a checkpoint of the run. Callers receive each stage once,
// in order, before the stage's work starts.
type Stage string

const (
	StagePreparing  Stage = "preparing_features"
	StageReducing   Stage = "reducing"
	StageScoring    Stage = "scoring"
	StageFusing     Stage = "fusing_evaluating"
	StageAuditing   Stage = "auditing"
	StagePersisting Stage = "persisting"
)

// StageFunc receives stage checkpoints with a coarse progress in [0,1].
type StageFunc func(stage Stage, progress float64)

// ColFusedRank and friends are the score columns appended to the output frame.
const (
	ColFusedRank      = "fused_rank"
	ColIsAnomalyFused = "is_anomaly_fused"
	FusedEvalKey      = "FUSED"
)

// RunResult is everything one training run produced. Persistence is the
// caller's concern; the result itself holds no file handles.
type RunResult struct {
	Frame  *dataset.Frame // engineered frame plus score columns, most anomalous first
	Fusion *fusion.Result
	Evals  map[string]evaluate.Metrics // per method id, plus FusedEvalKey
	Report *stability.Report
	Meta   Meta

	Scaler         *reduce.RobustScaler
	ReducerArt     *reduce.Artifact // nil when the run used no reducer
	Residual       *features.ResidualModel
	FeatureColumns []string
	Outcome        features.ResidualOutcome
	Duration       time.Duration
}

// Run executes one full training pass over raw. The input frame is not
// mutated; the stability audit refits on pristine copies of it. Cancellation
// is honored between stages, not inside them.
func Run(ctx context.Context, raw *dataset.Frame, cfg Config, onStage StageFunc) (*RunResult, error) {
	if onStage == nil {
		onStage = func(Stage, float64) {}
	}
	start := time.Now()
	logger.Sugar().Infow("starting training run",
		"contamination", cfg.Contamination,
		"seed", cfg.Seed,
		"use_pca", cfg.UsePCA,
		"use_fa", cfg.UseFA,
		"bootstrap_trials", cfg.AuditBootstrap,
	)

	onStage(StagePreparing, 0.05)
	prep, err := features.Prepare(raw.Clone())
	if err != nil {
		return nil, fmt.Errorf("prepare features: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	onStage(StageReducing, 0.15)
	featureCols := latentColumns(prep.Frame)
	z, scaler, reducerArt, err := fitLatent(prep.Frame, featureCols, cfg)
	if err != nil {
		return nil, err
	}
	rows, dims := z.Dims()
	log.Info().Msgf("latent space ready: %d rows, %d features -> %d dims", rows, len(featureCols), dims)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	onStage(StageScoring, 0.30)
	scores, methods, err := scorers.Compute(z, cfg.scorerConfig(cfg.Seed))
	if err != nil {
		return nil, fmt.Errorf("score ensemble: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	onStage(StageFusing, 0.55)
	fr, err := fusion.Fuse(scores, methods, cfg.FuseWeights, cfg.Contamination)
	if err != nil {
		return nil, fmt.Errorf("fuse scores: %w", err)
	}
	evals := make(map[string]evaluate.Metrics, len(methods)+1)
	for _, m := range methods {
		evals[string(m)] = evaluate.Partition(z, fr.MethodFlags[m])
	}
	evals[FusedEvalKey] = evaluate.Partition(z, fr.Flags)
	log.Info().Msgf("fused %d methods, flagged %d of %d rows", len(methods), fusion.FlaggedCount(fr.Flags), rows)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	onStage(StageAuditing, 0.70)
	auditCfg := stability.Config{
		BootstrapTrials: cfg.AuditBootstrap,
		SubsampleFrac:   cfg.AuditSubsample,
		SeedTrials:      cfg.AuditSeedTrials,
		NoiseSigma:      cfg.AuditNoiseSigma,
		NoiseTrials:     cfg.AuditNoiseTrials,
		Contamination:   cfg.Contamination,
		Seed:            cfg.Seed,
	}
	report, err := stability.Audit(auditCfg, refitFunc(raw, cfg), fr.Fused, fr.Flags)
	if err != nil {
		return nil, fmt.Errorf("stability audit: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	onStage(StagePersisting, 0.90)
	out := prep.Frame.Clone()
	attachScores(out, scores, methods, fr)
	if err := out.SortDescendingBy(ColFusedRank); err != nil {
		return nil, err
	}

	components := 0
	if reducerArt != nil {
		r, _ := reducerArt.Reducer()
		if r != nil {
			components = r.OutputDim()
		}
	}
	res := &RunResult{
		Frame:          out,
		Fusion:         fr,
		Evals:          evals,
		Report:         report,
		Scaler:         scaler,
		ReducerArt:     reducerArt,
		Residual:       prep.Residual,
		FeatureColumns: featureCols,
		Outcome:        prep.Outcome,
		Duration:       time.Since(start),
	}
	res.Meta = buildMeta(cfg, methods, fr, evals, featureCols, components)
	logger.Sugar().Infow("training run complete",
		"duration_sec", res.Duration.Seconds(),
		"methods", len(methods),
		"components", components,
	)
	return res, nil
}

// latentColumns selects the numeric feature columns in frame order,
// excluding the row identifier and raw coordinates.
func latentColumns(f *dataset.Frame) []string {
	exclude := map[string]bool{
		features.ColID:   true,
		features.ColLat:  true,
		features.ColLong: true,
	}
	return f.NumericColumns(exclude)
}

// fitLatent scales the selected columns robustly and optionally reduces them.
func fitLatent(f *dataset.Frame, cols []string, cfg Config) (*mat.Dense, *reduce.RobustScaler, *reduce.Artifact, error) {
	if err := imputeMissing(f, cols); err != nil {
		return nil, nil, nil, err
	}
	x, err := f.Matrix(cols)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("assemble feature matrix: %w", err)
	}
	scaler := &reduce.RobustScaler{}
	scaled, err := scaler.FitTransform(x)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("robust scaling: %w", err)
	}

	switch {
	case cfg.UsePCA:
		p, err := reduce.FitPCA(scaled, cfg.PCAVariance)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fit pca: %w", err)
		}
		z, err := p.Transform(scaled)
		if err != nil {
			return nil, nil, nil, err
		}
		return z, scaler, reduce.NewArtifact(p), nil
	case cfg.UseFA:
		p, err := reduce.FitPPCA(scaled, cfg.FAComponents)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fit factor model: %w", err)
		}
		z, err := p.Transform(scaled)
		if err != nil {
			return nil, nil, nil, err
		}
		return z, scaler, reduce.NewArtifact(p), nil
	default:
		return scaled, scaler, nil, nil
	}
}

// refitFunc closes over the pristine input so each audit trial repeats the
// whole feature-reduction-scoring-fusion pass independently.
func refitFunc(pristine *dataset.Frame, cfg Config) stability.RefitFunc {
	return func(seed uint64, rows []int, noiseSigma float64, noiseSeed uint64) (*stability.TrialResult, error) {
		var f *dataset.Frame
		if rows != nil {
			f = pristine.SelectRows(rows)
		} else {
			f = pristine.Clone()
		}
		prep, err := features.Prepare(f)
		if err != nil {
			return nil, err
		}
		cols := latentColumns(prep.Frame)
		z, _, _, err := fitLatent(prep.Frame, cols, cfg)
		if err != nil {
			return nil, err
		}
		if noiseSigma > 0 {
			perturb(z, noiseSigma, noiseSeed)
		}
		scores, methods, err := scorers.Compute(z, cfg.scorerConfig(seed))
		if err != nil {
			return nil, err
		}
		fr, err := fusion.Fuse(scores, methods, cfg.FuseWeights, cfg.Contamination)
		if err != nil {
			return nil, err
		}
		return &stability.TrialResult{
			Fused:   fr.Fused,
			Flags:   fr.Flags,
			Metrics: evaluate.Partition(z, fr.Flags),
		}, nil
	}
}

// imputeMissing replaces non-finite cells in the feature columns with the
// column median so passthrough columns with gaps cannot reach the reducer
// uncleaned. A column with no finite value at all is a data error.
func imputeMissing(f *dataset.Frame, cols []string) error {
	for _, c := range cols {
		v, ok := f.Numeric(c)
		if !ok {
			continue
		}
		finite := make([]float64, 0, len(v))
		for _, x := range v {
			if !math.IsNaN(x) && !math.IsInf(x, 0) {
				finite = append(finite, x)
			}
		}
		missing := len(v) - len(finite)
		if missing == 0 {
			continue
		}
		if len(finite) == 0 {
			return fmt.Errorf("feature column %s has no finite values", c)
		}
		sort.Float64s(finite)
		med := stat.Quantile(0.5, stat.LinInterp, finite, nil)
		for i, x := range v {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				v[i] = med
			}
		}
		log.Warn().Msgf("imputed %d missing cells in column %s with the median", missing, c)
	}
	return nil
}

func perturb(z *mat.Dense, sigma float64, seed uint64) {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	r, c := z.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			z.Set(i, j, z.At(i, j)+rng.NormFloat64()*sigma)
		}
	}
}

// attachScores appends the per-method and fused score columns to the frame.
func attachScores(f *dataset.Frame, scores scorers.ScoreSet, methods []scorers.Method, fr *fusion.Result) {
	for _, m := range methods {
		_ = f.SetNumeric(string(m)+"_score", scores[m])
		flags := fr.MethodFlags[m]
		col := make([]float64, len(flags))
		for i, v := range flags {
			col[i] = float64(v)
		}
		_ = f.SetNumeric("is_anomaly_"+string(m), col)
	}
	_ = f.SetNumeric(ColFusedRank, fr.Fused)
	fused := make([]float64, len(fr.Flags))
	for i, v := range fr.Flags {
		fused[i] = float64(v)
	}
	_ = f.SetNumeric(ColIsAnomalyFused, fused)
}
