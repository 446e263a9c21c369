package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"github.com/gridwatch/fused/internal/evaluate"
	"github.com/gridwatch/fused/internal/fusion"
	"github.com/gridwatch/fused/internal/scorers"
)

// Meta is the per-run sidecar written next to the ranked CSV. Consumers key
// on these field names, so they are part of the output contract.
type Meta struct {
	Contamination    float64                     `json:"contamination"`
	Methods          []string                    `json:"methods"`
	MethodThresholds map[string]float64          `json:"method_thresholds"`
	FusedThreshold   float64                     `json:"fused_threshold"`
	Evals            map[string]evaluate.Metrics `json:"evals"`
	FuseWeights      map[string]float64          `json:"fuse_weights,omitempty"`
	UsePCA           bool                        `json:"use_pca"`
	UseFA            bool                        `json:"use_fa"`
	Components       int                         `json:"components"`
	FeatureColumns   []string                    `json:"feature_columns"`
	Seed             uint64                      `json:"seed"`
}

func buildMeta(cfg Config, methods []scorers.Method, fr *fusion.Result, evals map[string]evaluate.Metrics, featureCols []string, components int) Meta {
	ids := make([]string, len(methods))
	thresholds := make(map[string]float64, len(methods))
	for i, m := range methods {
		ids[i] = string(m)
		thresholds[string(m)] = fr.MethodThresholds[m]
	}
	return Meta{
		Contamination:    cfg.Contamination,
		Methods:          ids,
		MethodThresholds: thresholds,
		FusedThreshold:   fr.Threshold,
		Evals:            evals,
		FuseWeights:      cfg.FuseWeights,
		UsePCA:           cfg.UsePCA,
		UseFA:            cfg.UseFA,
		Components:       components,
		FeatureColumns:   featureCols,
		Seed:             cfg.Seed,
	}
}

// OutputPaths names the three files one run writes under a directory.
type OutputPaths struct {
	ScoresCSV     string
	MetaJSON      string
	StabilityJSON string
}

// Outputs returns the file names for a run base name, e.g. "anomaly_scores".
func Outputs(base string) OutputPaths {
	return OutputPaths{
		ScoresCSV:     base + ".csv",
		MetaJSON:      base + "_meta.json",
		StabilityJSON: base + "_stability.json",
	}
}

// WriteOutputs persists the ranked CSV, the meta sidecar, and the stability
// report under dir, creating it if needed.
func (r *RunResult) WriteOutputs(dir, base string) (OutputPaths, error) {
	paths := Outputs(base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return paths, fmt.Errorf("create output dir: %w", err)
	}
	if err := r.Frame.WriteCSV(filepath.Join(dir, paths.ScoresCSV)); err != nil {
		return paths, fmt.Errorf("write scores csv: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, paths.MetaJSON), r.Meta); err != nil {
		return paths, err
	}
	if err := writeJSON(filepath.Join(dir, paths.StabilityJSON), r.Report); err != nil {
		return paths, err
	}
	return paths, nil
}

func writeJSON(path string, v any) error {
	buf, err := sonic.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}
