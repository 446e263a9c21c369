package stability

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridwatch/fused/internal/evaluate"
)

func TestSpearman(t *testing.T) {
	t.Run("monotone agreement", func(t *testing.T) {
		assert.InDelta(t, 1.0, Spearman([]float64{1, 2, 3, 4}, []float64{10, 20, 30, 40}), 1e-12)
	})
	t.Run("reversed", func(t *testing.T) {
		assert.InDelta(t, -1.0, Spearman([]float64{1, 2, 3, 4}, []float64{4, 3, 2, 1}), 1e-12)
	})
	t.Run("ties averaged", func(t *testing.T) {
		rho := Spearman([]float64{1, 1, 2}, []float64{1, 1, 2})
		assert.InDelta(t, 1.0, rho, 1e-12)
	})
}

func TestJaccardAtK(t *testing.T) {
	a := []float64{9, 8, 1, 2, 3}
	b := []float64{8, 9, 1, 2, 3}
	assert.Equal(t, 1.0, JaccardAtK(a, b, 2), "same top-2 set in different order")

	c := []float64{1, 2, 9, 8, 3}
	assert.Equal(t, 0.0, JaccardAtK(a, c, 2), "disjoint top-2 sets")
}

func TestAdjustedRandIndex(t *testing.T) {
	assert.InDelta(t, 1.0, AdjustedRandIndex([]int{0, 0, 1, 1}, []int{0, 0, 1, 1}), 1e-12)
	assert.InDelta(t, 1.0, AdjustedRandIndex([]int{0, 0, 1, 1}, []int{1, 1, 0, 0}), 1e-12,
		"label swap is the same partition")
}

func TestAuditZeroTrials(t *testing.T) {
	cfg := Config{Contamination: 0.05, Seed: 1}
	refit := func(uint64, []int, float64, uint64) (*TrialResult, error) {
		t.Fatal("refit must not be called with zero trials")
		return nil, nil
	}
	rep, err := Audit(cfg, refit, []float64{0.1, 0.2, 0.3}, []int{0, 0, 1})
	require.NoError(t, err, "zero trials is a configuration, not an error")
	assert.True(t, math.IsNaN(float64(rep.Bootstrap.SpearmanRhoMean)))
	assert.True(t, math.IsNaN(float64(rep.SeedSensitivity.SpearmanRhoMean)))
	assert.Equal(t, 0, rep.Bootstrap.Trials)
}

func TestAuditPerfectlyStableRefit(t *testing.T) {
	n := 100
	fused := make([]float64, n)
	flags := make([]int, n)
	for i := range fused {
		fused[i] = float64(i) / float64(n)
		if i >= 95 {
			flags[i] = 1
		}
	}

	// a refit that reproduces the original decision exactly
	refit := func(_ uint64, rows []int, _ float64, _ uint64) (*TrialResult, error) {
		if rows == nil {
			return &TrialResult{Fused: fused, Flags: flags, Metrics: evaluate.Metrics{}}, nil
		}
		f := make([]float64, len(rows))
		fl := make([]int, len(rows))
		for i, r := range rows {
			f[i] = fused[r]
			fl[i] = flags[r]
		}
		return &TrialResult{Fused: f, Flags: fl, Metrics: evaluate.Metrics{}}, nil
	}

	cfg := DefaultConfig(0.05, 42)
	rep, err := Audit(cfg, refit, fused, flags)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, float64(rep.Bootstrap.SpearmanRhoMean), 1e-9)
	assert.InDelta(t, 1.0, float64(rep.Bootstrap.JaccardAtKMean), 1e-9)
	assert.InDelta(t, 1.0, float64(rep.Bootstrap.ARIMean), 1e-9)
	assert.InDelta(t, 0.0, float64(rep.Bootstrap.SpearmanRhoStd), 1e-9)
	assert.InDelta(t, 1.0, float64(rep.SeedSensitivity.SpearmanRhoMean), 1e-9)
	assert.InDelta(t, 1.0, float64(rep.NoiseRobustness.SpearmanRhoMean), 1e-9)
	assert.Equal(t, cfg.BootstrapTrials, rep.Bootstrap.Trials)
}

func TestAuditNoiseTrialsHoldScorerSeedFixed(t *testing.T) {
	n := 50
	fused := make([]float64, n)
	flags := make([]int, n)
	for i := range fused {
		fused[i] = float64(i)
	}
	flags[n-1] = 1

	type call struct {
		seed      uint64
		sigma     float64
		noiseSeed uint64
	}
	var mu sync.Mutex
	var noiseCalls []call

	refit := func(seed uint64, rows []int, sigma float64, noiseSeed uint64) (*TrialResult, error) {
		if sigma > 0 {
			mu.Lock()
			noiseCalls = append(noiseCalls, call{seed: seed, sigma: sigma, noiseSeed: noiseSeed})
			mu.Unlock()
		}
		f := fused
		fl := flags
		if rows != nil {
			f = make([]float64, len(rows))
			fl = make([]int, len(rows))
			for i, r := range rows {
				f[i] = fused[r]
				fl[i] = flags[r]
			}
		}
		return &TrialResult{Fused: f, Flags: fl, Metrics: evaluate.Metrics{}}, nil
	}

	cfg := DefaultConfig(0.05, 42)
	cfg.BootstrapTrials = 0
	cfg.SeedTrials = 0
	cfg.NoiseTrials = 4
	_, err := Audit(cfg, refit, fused, flags)
	require.NoError(t, err)
	require.Len(t, noiseCalls, cfg.NoiseTrials)

	noiseSeeds := make(map[uint64]bool)
	for _, c := range noiseCalls {
		assert.Equal(t, cfg.Seed, c.seed, "noise trials must reuse the original scorer seed")
		assert.Equal(t, cfg.NoiseSigma, c.sigma)
		noiseSeeds[c.noiseSeed] = true
	}
	assert.Len(t, noiseSeeds, cfg.NoiseTrials, "each noise trial draws from its own noise seed")
}
