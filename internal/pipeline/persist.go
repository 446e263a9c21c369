package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gridwatch/fused/internal/registry"
)

const scoresBaseName = "anomaly_scores"

// PersistRun writes the run outputs and frozen artifacts under a fresh
// model directory in the registry and registers the version. The new
// version becomes active.
func PersistRun(store *registry.Store, res *RunResult, cfg Config, mode, source string) (*registry.ModelCard, error) {
	now := time.Now().UTC()
	modelID := "model_" + now.Format("20060102T150405Z")
	modelDir := filepath.Join(store.Dir(), modelID)

	paths, err := res.WriteOutputs(modelDir, scoresBaseName)
	if err != nil {
		return nil, err
	}

	files := registry.Files{
		ScoresCSV:     filepath.Join(modelID, paths.ScoresCSV),
		MetaJSON:      filepath.Join(modelID, paths.MetaJSON),
		StabilityJSON: filepath.Join(modelID, paths.StabilityJSON),
		Scaler:        filepath.Join(modelID, "scaler.json.gz"),
		ResidualModel: filepath.Join(modelID, "residual_model.json.gz"),
	}
	if err := store.SaveArtifact(files.Scaler, res.Scaler); err != nil {
		return nil, err
	}
	if err := store.SaveArtifact(files.ResidualModel, res.Residual); err != nil {
		return nil, err
	}
	if res.ReducerArt != nil {
		files.Reducer = filepath.Join(modelID, "reducer.json.gz")
		if err := store.SaveArtifact(files.Reducer, res.ReducerArt); err != nil {
			return nil, err
		}
	}

	card := registry.ModelCard{
		ModelID:     modelID,
		TrainedAt:   now,
		Mode:        mode,
		DurationSec: res.Duration.Seconds(),
		Data: registry.DataSummary{
			NSamples:  res.Frame.NumRows(),
			NFeatures: len(res.FeatureColumns),
			Source:    source,
		},
		Metrics:   res.Evals[FusedEvalKey],
		Stability: registry.SummaryFromReport(res.Report),
		Hyperparams: registry.Hyperparams{
			Contamination: cfg.Contamination,
			UsePCA:        cfg.UsePCA,
			UseFA:         cfg.UseFA,
			Components:    res.Meta.Components,
			Weights:       cfg.FuseWeights,
		},
		CompositeScore: CompositeScore(res.Evals[FusedEvalKey], res.Report),
		FeatureColumns: res.FeatureColumns,
		Files:          files,
	}

	saved, err := store.SaveNewVersion(card)
	if err != nil {
		return nil, fmt.Errorf("register model version: %w", err)
	}
	log.Info().Msgf("model %s registered as v%d (composite=%.4f)", saved.ModelID, saved.Version, float64(saved.CompositeScore))
	return saved, nil
}
