package scorers

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// LOFScore computes the local outlier factor with k neighbors: the ratio of
// each point's neighbors' local reachability density to its own. Values near
// 1 are inliers; larger is more anomalous, so no sign flip is needed.
func LOFScore(z *mat.Dense, k int) []float64 {
	n, _ := z.Dims()
	if k >= n {
		k = n - 1
	}
	if k < 1 {
		k = 1
	}

	dist := pairwiseDistances(z)

	// neighbor lists sorted by distance, excluding self
	neighbors := make([][]int, n)
	kdist := make([]float64, n)
	for i := 0; i < n; i++ {
		idx := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				idx = append(idx, j)
			}
		}
		sort.Slice(idx, func(a, b int) bool { return dist[i][idx[a]] < dist[i][idx[b]] })
		neighbors[i] = idx[:k]
		kdist[i] = dist[i][idx[k-1]]
	}

	// the epsilon keeps densities finite when k+1 or more rows coincide,
	// which winsorized data produces routinely
	lrd := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, j := range neighbors[i] {
			reach := dist[i][j]
			if kdist[j] > reach {
				reach = kdist[j]
			}
			sum += reach
		}
		lrd[i] = float64(k) / (sum + 1e-10)
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		var sum float64
		for _, j := range neighbors[i] {
			sum += lrd[j] / lrd[i]
		}
		scores[i] = sum / float64(k)
	}
	return scores
}

func pairwiseDistances(z *mat.Dense) [][]float64 {
	n, d := z.Dims()
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var s float64
			for c := 0; c < d; c++ {
				dv := z.At(i, c) - z.At(j, c)
				s += dv * dv
			}
			v := math.Sqrt(s)
			dist[i][j] = v
			dist[j][i] = v
		}
	}
	return dist
}
