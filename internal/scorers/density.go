package scorers

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// DensityOutlierScore is the density-based cluster-outlier score: points are
// grouped by linking mutual-reachability distances under an adaptive cutoff,
// and each point is scored by how much its core distance exceeds the densest
// core in its own group (GLOSH-style). Unclustered points score 1.
func DensityOutlierScore(z *mat.Dense, minClusterSize int) []float64 {
	n, _ := z.Dims()
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	k := minClusterSize
	if k >= n {
		k = n - 1
	}
	if k < 1 {
		return make([]float64, n)
	}

	dist := pairwiseDistances(z)

	core := make([]float64, n)
	buf := make([]float64, n-1)
	for i := 0; i < n; i++ {
		b := buf[:0]
		for j := 0; j < n; j++ {
			if j != i {
				b = append(b, dist[i][j])
			}
		}
		sort.Float64s(b)
		core[i] = b[k-1]
	}

	// cutoff at the 90th percentile of core distances keeps dense regions
	// connected while isolating sparse points
	sortedCore := append([]float64(nil), core...)
	sort.Float64s(sortedCore)
	cutoff := sortedCore[int(0.9*float64(n-1))]

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			mr := dist[i][j]
			if core[i] > mr {
				mr = core[i]
			}
			if core[j] > mr {
				mr = core[j]
			}
			if mr <= cutoff {
				union(i, j)
			}
		}
	}

	sizes := make(map[int]int)
	minCore := make(map[int]float64)
	for i := 0; i < n; i++ {
		r := find(i)
		sizes[r]++
		if v, ok := minCore[r]; !ok || core[i] < v {
			minCore[r] = core[i]
		}
	}

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		r := find(i)
		if sizes[r] < minClusterSize {
			out[i] = 1
			continue
		}
		if core[i] <= 0 {
			out[i] = 0
			continue
		}
		s := 1 - minCore[r]/core[i]
		if s < 0 || math.IsNaN(s) {
			s = 0
		}
		out[i] = s
	}
	return out
}
