// Package registry persists versioned model cards and their fitted
// artifacts. Exactly one version is active at a time; activation is a pure
// metadata flip over the append-only history, never a retrain.
package registry

import (
	"time"

	"github.com/gridwatch/fused/internal/evaluate"
	"github.com/gridwatch/fused/internal/stability"
)

// DataSummary describes the training batch a version was fitted on.
type DataSummary struct {
	NSamples  int    `json:"n_samples"`
	NFeatures int    `json:"n_features"`
	Source    string `json:"source"`
}

// StabilitySummary is the compact stability digest carried on the card.
type StabilitySummary struct {
	BootstrapSpearmanRho evaluate.NullFloat `json:"bootstrap_spearman_rho"`
	BootstrapJaccardAtK  evaluate.NullFloat `json:"bootstrap_jaccard_at_k"`
	BootstrapARI         evaluate.NullFloat `json:"bootstrap_ari"`
	SeedRho              evaluate.NullFloat `json:"seed_rho"`
	NoiseRho             evaluate.NullFloat `json:"noise_rho"`
}

// Hyperparams records the decision-relevant configuration of the run.
type Hyperparams struct {
	Contamination float64            `json:"contamination"`
	UsePCA        bool               `json:"use_pca"`
	UseFA         bool               `json:"use_fa"`
	Components    int                `json:"components"` // reducer output dim; 0 when no reducer
	Weights       map[string]float64 `json:"weights,omitempty"`
}

// Files holds registry-relative paths to the run outputs and frozen
// artifacts. Reducer is empty when the version was trained without one.
type Files struct {
	ScoresCSV     string `json:"scores_csv"`
	MetaJSON      string `json:"meta_json"`
	StabilityJSON string `json:"stability_json"`
	Scaler        string `json:"scaler"`
	Reducer       string `json:"reducer,omitempty"`
	ResidualModel string `json:"residual_model"`
}

// ModelCard is the immutable record of one training run.
type ModelCard struct {
	ModelID        string             `json:"model_id"`
	Version        int                `json:"version"`
	TrainedAt      time.Time          `json:"trained_at"`
	Mode           string             `json:"mode"`
	DurationSec    float64            `json:"duration_sec"`
	IsActive       bool               `json:"is_active"`
	ActivatedAt    time.Time          `json:"activated_at"`
	Data           DataSummary        `json:"data"`
	Metrics        evaluate.Metrics   `json:"metrics"`
	Stability      StabilitySummary   `json:"stability"`
	Hyperparams    Hyperparams        `json:"hyperparams"`
	CompositeScore evaluate.NullFloat `json:"composite_score"`
	FeatureColumns []string           `json:"feature_columns"`
	Files          Files              `json:"files"`
}

// SummaryFromReport extracts the card digest from a full stability report.
func SummaryFromReport(r *stability.Report) StabilitySummary {
	return StabilitySummary{
		BootstrapSpearmanRho: r.Bootstrap.SpearmanRhoMean,
		BootstrapJaccardAtK:  r.Bootstrap.JaccardAtKMean,
		BootstrapARI:         r.Bootstrap.ARIMean,
		SeedRho:              r.SeedSensitivity.SpearmanRhoMean,
		NoiseRho:             r.NoiseRobustness.SpearmanRhoMean,
	}
}
