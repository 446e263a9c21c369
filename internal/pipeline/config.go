// Package pipeline orchestrates one full training run: feature preparation,
// latent reduction, scoring, rank fusion, partition evaluation, stability
// audit, and output generation. The run is synchronous and CPU-bound; the
// caller decides how to dispatch it.
package pipeline

import (
	"github.com/gridwatch/fused/internal/scorers"
)

// Config holds every knob of a training run.
type Config struct {
	Contamination float64
	Seed          uint64

	UsePCA       bool
	PCAVariance  float64
	UseFA        bool
	FAComponents int

	IFEstimators      int
	IFMaxFeatures     float64
	UseLOF            bool
	LOFNeighbors      int
	UseCopula         bool
	UseGMM            bool
	GMMComponents     int
	UseOCSVM          bool
	UseDensity        bool
	DensityMinCluster int
	UseAutoencoder    bool
	AEEpochs          int
	AEBatch           int

	FuseWeights map[string]float64

	AuditBootstrap   int
	AuditSubsample   float64
	AuditSeedTrials  int
	AuditNoiseSigma  float64
	AuditNoiseTrials int

	Capabilities scorers.Capabilities
}

// Option mutates the run configuration.
type Option func(*Config)

func WithContamination(c float64) Option { return func(cfg *Config) { cfg.Contamination = c } }
func WithSeed(s uint64) Option           { return func(cfg *Config) { cfg.Seed = s } }
func WithPCA(enabled bool) Option        { return func(cfg *Config) { cfg.UsePCA = enabled } }
func WithPCAVariance(v float64) Option   { return func(cfg *Config) { cfg.PCAVariance = v } }
func WithFactorModel(k int) Option {
	return func(cfg *Config) {
		cfg.UsePCA = false
		cfg.UseFA = true
		cfg.FAComponents = k
	}
}
func WithLOF(enabled bool) Option         { return func(cfg *Config) { cfg.UseLOF = enabled } }
func WithCopula(enabled bool) Option      { return func(cfg *Config) { cfg.UseCopula = enabled } }
func WithGMM(enabled bool) Option         { return func(cfg *Config) { cfg.UseGMM = enabled } }
func WithOCSVM(enabled bool) Option       { return func(cfg *Config) { cfg.UseOCSVM = enabled } }
func WithDensity(enabled bool) Option     { return func(cfg *Config) { cfg.UseDensity = enabled } }
func WithAutoencoder(enabled bool) Option { return func(cfg *Config) { cfg.UseAutoencoder = enabled } }
func WithFuseWeights(w map[string]float64) Option {
	return func(cfg *Config) { cfg.FuseWeights = w }
}
func WithAudit(bootstrap, seedTrials, noiseTrials int) Option {
	return func(cfg *Config) {
		cfg.AuditBootstrap = bootstrap
		cfg.AuditSeedTrials = seedTrials
		cfg.AuditNoiseTrials = noiseTrials
	}
}

// DefaultConfig mirrors the production training defaults.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.05,
		Seed:          42,

		UsePCA:       true,
		PCAVariance:  0.95,
		UseFA:        false,
		FAComponents: 5,

		IFEstimators:      100,
		IFMaxFeatures:     0.8,
		UseLOF:            true,
		LOFNeighbors:      30,
		UseCopula:         true,
		UseGMM:            false,
		GMMComponents:     2,
		UseOCSVM:          true,
		UseDensity:        false,
		DensityMinCluster: 20,
		UseAutoencoder:    true,
		AEEpochs:          60,
		AEBatch:           64,

		AuditBootstrap:   12,
		AuditSubsample:   0.8,
		AuditSeedTrials:  3,
		AuditNoiseSigma:  0.01,
		AuditNoiseTrials: 3,

		Capabilities: scorers.DetectCapabilities(),
	}
}

// NewConfig builds a config from defaults plus options.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c Config) scorerConfig(seed uint64) scorers.Config {
	sc := scorers.DefaultConfig(seed)
	sc.IsoForest.Trees = c.IFEstimators
	sc.IsoForest.MaxFeatures = c.IFMaxFeatures
	sc.LOF.Enabled = c.UseLOF
	sc.LOF.Neighbors = c.LOFNeighbors
	sc.Copula.Enabled = c.UseCopula
	sc.GMM.Enabled = c.UseGMM
	sc.GMM.Components = c.GMMComponents
	sc.OCSVM.Enabled = c.UseOCSVM
	sc.Density.Enabled = c.UseDensity
	sc.Density.MinClusterSize = c.DensityMinCluster
	sc.Autoencoder.Enabled = c.UseAutoencoder
	sc.Autoencoder.Params.Epochs = c.AEEpochs
	sc.Autoencoder.Params.BatchSize = c.AEBatch
	sc.Capabilities = c.Capabilities
	return sc
}
