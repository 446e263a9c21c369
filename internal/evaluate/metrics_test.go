package evaluate

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func twoBlobs(n int, sep float64, seed uint64) (*mat.Dense, []int) {
	rng := rand.New(rand.NewPCG(seed, seed^3))
	x := mat.NewDense(2*n, 2, nil)
	labels := make([]int, 2*n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, rng.NormFloat64())
		x.Set(i, 1, rng.NormFloat64())
		x.Set(n+i, 0, sep+rng.NormFloat64())
		x.Set(n+i, 1, sep+rng.NormFloat64())
		labels[n+i] = 1
	}
	return x, labels
}

func TestPartitionSeparatedClusters(t *testing.T) {
	x, labels := twoBlobs(50, 12, 1)
	m := Partition(x, labels)

	assert.Greater(t, float64(m.Silhouette), 0.5, "well separated blobs")
	assert.Greater(t, float64(m.Dunn), 0.0)
	assert.Greater(t, float64(m.DBI), 0.0)
	assert.Less(t, float64(m.DBI), 1.0, "tight clusters have a low Davies-Bouldin index")
}

func TestPartitionDegenerateGroups(t *testing.T) {
	x, _ := twoBlobs(10, 5, 2)

	t.Run("all one label", func(t *testing.T) {
		m := Partition(x, make([]int, 20))
		assert.True(t, math.IsNaN(float64(m.Silhouette)))
		assert.True(t, math.IsNaN(float64(m.Dunn)))
		assert.True(t, math.IsNaN(float64(m.DBI)))
	})

	t.Run("singleton group", func(t *testing.T) {
		labels := make([]int, 20)
		labels[0] = 1
		m := Partition(x, labels)
		assert.True(t, math.IsNaN(float64(m.Silhouette)))
	})
}

func TestNullFloatJSON(t *testing.T) {
	m := Metrics{Silhouette: NullFloat(math.NaN()), Dunn: 0.5, DBI: 1.25}
	buf, err := sonic.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"silhouette":null,"dunn":0.5,"dbi":1.25}`, string(buf))

	var back Metrics
	require.NoError(t, sonic.Unmarshal(buf, &back))
	assert.True(t, math.IsNaN(float64(back.Silhouette)))
	assert.Equal(t, NullFloat(0.5), back.Dunn)
}
