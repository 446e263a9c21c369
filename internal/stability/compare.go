package stability

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Spearman is the rank correlation of two score vectors, with average ranks
// for ties. NaN when either vector has no variance or lengths differ.
func Spearman(a, b []float64) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return math.NaN()
	}
	ra := averageRanks(a)
	rb := averageRanks(b)
	return stat.Correlation(ra, rb, nil)
}

func averageRanks(v []float64) []float64 {
	n := len(v)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(x, y int) bool { return v[order[x]] < v[order[y]] })
	ranks := make([]float64, n)
	i := 0
	for i < n {
		j := i
		for j+1 < n && v[order[j+1]] == v[order[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[order[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// JaccardAtK is the overlap fraction between the two top-k index sets.
func JaccardAtK(a, b []float64, k int) float64 {
	if len(a) != len(b) || k < 1 || k > len(a) {
		return math.NaN()
	}
	ta := topK(a, k)
	tb := topK(b, k)
	inter := 0
	for idx := range ta {
		if tb[idx] {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	if union == 0 {
		return math.NaN()
	}
	return float64(inter) / float64(union)
}

func topK(v []float64, k int) map[int]bool {
	order := make([]int, len(v))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return v[order[a]] > v[order[b]] })
	out := make(map[int]bool, k)
	for _, idx := range order[:k] {
		out[idx] = true
	}
	return out
}

// AdjustedRandIndex is the chance-corrected agreement between two binary
// labelings. 1 means identical partitions, 0 means chance-level agreement.
func AdjustedRandIndex(a, b []int) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return math.NaN()
	}
	n := len(a)
	// 2x2 contingency table
	var t [2][2]float64
	for i := 0; i < n; i++ {
		t[a[i]&1][b[i]&1]++
	}
	comb2 := func(x float64) float64 { return x * (x - 1) / 2 }

	var sumIJ, sumA, sumB float64
	for i := 0; i < 2; i++ {
		var rowSum, colSum float64
		for j := 0; j < 2; j++ {
			sumIJ += comb2(t[i][j])
			rowSum += t[i][j]
			colSum += t[j][i]
		}
		sumA += comb2(rowSum)
		sumB += comb2(colSum)
	}
	total := comb2(float64(n))
	expected := sumA * sumB / total
	maxIdx := (sumA + sumB) / 2
	if maxIdx == expected {
		return math.NaN()
	}
	return (sumIJ - expected) / (maxIdx - expected)
}
