// Package evaluate computes unsupervised partition-quality metrics for the
// binary normal/anomaly partitions induced by thresholding. Metrics are NaN
// (serialized as null) whenever the partition has fewer than two groups with
// at least two members each; a degenerate partition never aborts a run.
package evaluate

import (
	"math"

	"github.com/bytedance/sonic"
	"gonum.org/v1/gonum/mat"
)

// NullFloat marshals NaN as JSON null, matching the sidecar contract.
type NullFloat float64

func (f NullFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return sonic.Marshal(v)
}

func (f *NullFloat) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = NullFloat(math.NaN())
		return nil
	}
	var v float64
	if err := sonic.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = NullFloat(v)
	return nil
}

// Metrics are the three partition-quality scalars.
type Metrics struct {
	Silhouette NullFloat `json:"silhouette"`
	Dunn       NullFloat `json:"dunn"`
	DBI        NullFloat `json:"dbi"`
}

func nanMetrics() Metrics {
	nan := NullFloat(math.NaN())
	return Metrics{Silhouette: nan, Dunn: nan, DBI: nan}
}

// Partition evaluates the binary partition of x given 0/1 labels.
func Partition(x *mat.Dense, labels []int) Metrics {
	var g0, g1 []int
	for i, l := range labels {
		if l == 0 {
			g0 = append(g0, i)
		} else {
			g1 = append(g1, i)
		}
	}
	if len(g0) < 2 || len(g1) < 2 {
		return nanMetrics()
	}

	dist := denseDistances(x)
	return Metrics{
		Silhouette: NullFloat(silhouette(dist, g0, g1)),
		Dunn:       NullFloat(dunn(dist, g0, g1)),
		DBI:        NullFloat(daviesBouldin(x, g0, g1)),
	}
}

func denseDistances(x *mat.Dense) [][]float64 {
	n, d := x.Dims()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var s float64
			for c := 0; c < d; c++ {
				dv := x.At(i, c) - x.At(j, c)
				s += dv * dv
			}
			v := math.Sqrt(s)
			out[i][j] = v
			out[j][i] = v
		}
	}
	return out
}

// silhouette is the mean over points of (b - a) / max(a, b), where a is the
// mean distance to the point's own group and b to the other group.
func silhouette(dist [][]float64, g0, g1 []int) float64 {
	groups := [][]int{g0, g1}
	var total float64
	var count int
	for gi, g := range groups {
		other := groups[1-gi]
		for _, i := range g {
			var a float64
			for _, j := range g {
				if j != i {
					a += dist[i][j]
				}
			}
			a /= float64(len(g) - 1)
			var b float64
			for _, j := range other {
				b += dist[i][j]
			}
			b /= float64(len(other))
			m := a
			if b > m {
				m = b
			}
			if m > 0 {
				total += (b - a) / m
				count++
			}
		}
	}
	if count == 0 {
		return math.NaN()
	}
	return total / float64(count)
}

// dunn is min inter-group distance over max intra-group distance; NaN when
// the max intra distance is zero.
func dunn(dist [][]float64, g0, g1 []int) float64 {
	maxIntra := 0.0
	for _, g := range [][]int{g0, g1} {
		for a := 0; a < len(g); a++ {
			for b := a + 1; b < len(g); b++ {
				if v := dist[g[a]][g[b]]; v > maxIntra {
					maxIntra = v
				}
			}
		}
	}
	minInter := math.Inf(1)
	for _, i := range g0 {
		for _, j := range g1 {
			if v := dist[i][j]; v < minInter {
				minInter = v
			}
		}
	}
	if maxIntra == 0 || math.IsInf(minInter, 1) {
		return math.NaN()
	}
	return minInter / maxIntra
}

// daviesBouldin for two groups reduces to (s0 + s1) / centroidDistance.
func daviesBouldin(x *mat.Dense, g0, g1 []int) float64 {
	_, d := x.Dims()
	centroid := func(g []int) []float64 {
		c := make([]float64, d)
		for _, i := range g {
			for j := 0; j < d; j++ {
				c[j] += x.At(i, j)
			}
		}
		for j := 0; j < d; j++ {
			c[j] /= float64(len(g))
		}
		return c
	}
	spread := func(g []int, c []float64) float64 {
		var s float64
		for _, i := range g {
			var q float64
			for j := 0; j < d; j++ {
				dv := x.At(i, j) - c[j]
				q += dv * dv
			}
			s += math.Sqrt(q)
		}
		return s / float64(len(g))
	}
	c0 := centroid(g0)
	c1 := centroid(g1)
	var cd float64
	for j := 0; j < d; j++ {
		dv := c0[j] - c1[j]
		cd += dv * dv
	}
	cd = math.Sqrt(cd)
	if cd == 0 {
		return math.NaN()
	}
	return (spread(g0, c0) + spread(g1, c1)) / cd
}
