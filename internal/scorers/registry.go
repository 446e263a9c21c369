package scorers

import (
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Config enables and parameterizes the detectors for one run. The isolation
// and robust-Mahalanobis scorers are mandatory; everything else is optional
// and degrades gracefully.
type Config struct {
	Seed uint64

	IsoForest IsoForestParams
	LOF       struct {
		Enabled   bool
		Neighbors int
	}
	Copula struct{ Enabled bool }
	GMM    struct {
		Enabled    bool
		Components int
	}
	OCSVM struct {
		Enabled bool
		Params  OCSVMParams
	}
	Density struct {
		Enabled        bool
		MinClusterSize int
	}
	Autoencoder struct {
		Enabled bool
		Params  AutoencoderParams
	}

	Capabilities Capabilities
}

func DefaultConfig(seed uint64) Config {
	cfg := Config{Seed: seed, IsoForest: DefaultIsoForestParams(), Capabilities: DetectCapabilities()}
	cfg.LOF.Enabled = true
	cfg.LOF.Neighbors = 30
	cfg.Copula.Enabled = true
	cfg.GMM.Components = 2
	cfg.OCSVM.Enabled = true
	cfg.OCSVM.Params = DefaultOCSVMParams()
	cfg.Density.MinClusterSize = 20
	cfg.Autoencoder.Enabled = true
	cfg.Autoencoder.Params = DefaultAutoencoderParams()
	return cfg
}

// Compute runs every enabled detector over the latent matrix and returns the
// score set plus the methods that actually contributed, in closed-set order.
// A missing optional capability shrinks the ensemble but never fails the run.
func Compute(z *mat.Dense, cfg Config) (ScoreSet, []Method, error) {
	n, d := z.Dims()
	if n == 0 || d == 0 {
		return nil, nil, fmt.Errorf("latent matrix is empty")
	}

	scores := make(ScoreSet)
	var enabled []Method

	for _, m := range AllMethods {
		switch m {
		case MethodIsoForest:
			scores[m] = IsoForestScore(z, cfg.IsoForest, cfg.Seed)
		case MethodLOF:
			if !cfg.LOF.Enabled {
				continue
			}
			scores[m] = LOFScore(z, cfg.LOF.Neighbors)
		case MethodMahalanobis:
			scores[m] = RobustMahalanobisScore(z, cfg.Seed)
		case MethodCopula:
			if !cfg.Copula.Enabled {
				continue
			}
			scores[m] = CopulaScore(z)
		case MethodGMM:
			if !cfg.GMM.Enabled {
				continue
			}
			scores[m] = GMMScore(z, cfg.GMM.Components, cfg.Seed)
		case MethodOCSVM:
			if !cfg.OCSVM.Enabled {
				continue
			}
			scores[m] = OCSVMScore(z, cfg.OCSVM.Params, cfg.Seed)
		case MethodDensity:
			if !cfg.Density.Enabled {
				continue
			}
			if !cfg.Capabilities.DensityClustering {
				log.Warn().Str("method", string(m)).Msg("density clustering support unavailable; skipping method")
				continue
			}
			scores[m] = DensityOutlierScore(z, cfg.Density.MinClusterSize)
		case MethodAutoencoder:
			if !cfg.Autoencoder.Enabled {
				continue
			}
			scores[m] = AutoencoderScore(z, cfg.Autoencoder.Params, cfg.Seed)
		}
		if s, ok := scores[m]; ok {
			if err := checkFinite(m, s); err != nil {
				return nil, nil, err
			}
			enabled = append(enabled, m)
			log.Debug().Str("method", string(m)).Int("rows", n).Msg("scored")
		}
	}
	return scores, enabled, nil
}

func checkFinite(m Method, s []float64) error {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("method %s produced non-finite score at row %d", m, i)
		}
	}
	return nil
}
