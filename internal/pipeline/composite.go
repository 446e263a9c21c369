package pipeline

import (
	"math"

	"github.com/gridwatch/fused/internal/evaluate"
	"github.com/gridwatch/fused/internal/stability"
)

// Composite tuning score weights. Separation quality dominates, stability
// rewards stack on top, and metric spread across bootstrap trials is
// penalized. DBI improves downward, so it enters through 1/(1+dbi).
const (
	wSilhouette = 0.50
	wDunn       = 0.40
	wDBI        = 0.10
	wBootRho    = 0.20
	wJaccard    = 0.15
	wSeedRho    = 0.10
	wNoiseRho   = 0.10

	pSilhouetteStd = 0.10
	pDunnStd       = 0.10
	pDBIStd        = 0.05
)

// CompositeScore collapses partition quality and stability into one ranking
// number for comparing model versions. Non-finite components contribute
// nothing rather than poisoning the total.
func CompositeScore(m evaluate.Metrics, rep *stability.Report) evaluate.NullFloat {
	var score float64
	add := func(w, v float64) {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			score += w * v
		}
	}

	add(wSilhouette, float64(m.Silhouette))
	add(wDunn, float64(m.Dunn))
	if dbi := float64(m.DBI); !math.IsNaN(dbi) && !math.IsInf(dbi, 0) {
		score += wDBI / (1 + dbi)
	}

	if rep != nil {
		add(wBootRho, float64(rep.Bootstrap.SpearmanRhoMean))
		add(wJaccard, float64(rep.Bootstrap.JaccardAtKMean))
		add(wSeedRho, float64(rep.SeedSensitivity.SpearmanRhoMean))
		add(wNoiseRho, float64(rep.NoiseRobustness.SpearmanRhoMean))

		add(-pSilhouetteStd, float64(rep.Bootstrap.SilhouetteStd))
		add(-pDunnStd, float64(rep.Bootstrap.DunnStd))
		add(-pDBIStd, float64(rep.Bootstrap.DBIStd))
	}
	return evaluate.NullFloat(score)
}
