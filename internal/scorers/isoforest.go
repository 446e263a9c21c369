package scorers

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// IsoForestParams configures the tree-ensemble isolation scorer.
type IsoForestParams struct {
	Trees       int
	MaxFeatures float64 // fraction of columns sampled per tree
	SampleSize  int     // subsample per tree; capped at n
}

func DefaultIsoForestParams() IsoForestParams {
	return IsoForestParams{Trees: 100, MaxFeatures: 0.8, SampleSize: 256}
}

type isoNode struct {
	feature     int
	split       float64
	left, right *isoNode
	size        int
}

// IsoForestScore computes the standard isolation score 2^{-E[h]/c(psi)} from
// an ensemble of random partitioning trees. Higher means more anomalous.
func IsoForestScore(z *mat.Dense, p IsoForestParams, seed uint64) []float64 {
	n, d := z.Dims()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	psi := p.SampleSize
	if psi > n {
		psi = n
	}
	if psi < 2 {
		psi = n
	}
	maxDepth := int(math.Ceil(math.Log2(float64(psi))))
	nFeat := int(math.Round(p.MaxFeatures * float64(d)))
	if nFeat < 1 {
		nFeat = 1
	}
	if nFeat > d {
		nFeat = d
	}

	pathSum := make([]float64, n)
	for t := 0; t < p.Trees; t++ {
		sample := rng.Perm(n)[:psi]
		feats := rng.Perm(d)[:nFeat]
		root := buildIsoTree(z, sample, feats, 0, maxDepth, rng)
		for i := 0; i < n; i++ {
			pathSum[i] += isoPathLength(z, i, root, 0)
		}
	}

	cPsi := avgPathLength(psi)
	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		mean := pathSum[i] / float64(p.Trees)
		scores[i] = math.Pow(2, -mean/cPsi)
	}
	return scores
}

func buildIsoTree(z *mat.Dense, rows, feats []int, depth, maxDepth int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(rows) <= 1 {
		return &isoNode{feature: -1, size: len(rows)}
	}
	// pick a feature with spread; give up after a few attempts
	var feat int
	var lo, hi float64
	found := false
	for attempt := 0; attempt < len(feats); attempt++ {
		feat = feats[rng.IntN(len(feats))]
		lo, hi = math.Inf(1), math.Inf(-1)
		for _, r := range rows {
			v := z.At(r, feat)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			found = true
			break
		}
	}
	if !found {
		return &isoNode{feature: -1, size: len(rows)}
	}
	split := lo + rng.Float64()*(hi-lo)
	var left, right []int
	for _, r := range rows {
		if z.At(r, feat) < split {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}
	if len(left) == 0 || len(right) == 0 {
		return &isoNode{feature: -1, size: len(rows)}
	}
	return &isoNode{
		feature: feat,
		split:   split,
		left:    buildIsoTree(z, left, feats, depth+1, maxDepth, rng),
		right:   buildIsoTree(z, right, feats, depth+1, maxDepth, rng),
	}
}

func isoPathLength(z *mat.Dense, row int, node *isoNode, depth float64) float64 {
	if node.feature < 0 {
		return depth + avgPathLength(node.size)
	}
	if z.At(row, node.feature) < node.split {
		return isoPathLength(z, row, node.left, depth+1)
	}
	return isoPathLength(z, row, node.right, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search among n points.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649015329
	return 2*h - 2*float64(n-1)/float64(n)
}
