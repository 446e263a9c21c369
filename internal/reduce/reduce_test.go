package reduce

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randomMatrix(n, d int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, seed^1))
	x := mat.NewDense(n, d, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			// correlated columns so PCA has structure to find
			base := rng.NormFloat64()
			x.Set(i, j, base*float64(j+1)+0.1*rng.NormFloat64())
		}
	}
	return x
}

func TestRobustScalerCentersMedian(t *testing.T) {
	x := mat.NewDense(5, 1, []float64{1, 2, 3, 4, 100})
	s := &RobustScaler{}
	z, err := s.FitTransform(x)
	require.NoError(t, err)

	assert.Equal(t, 3.0, s.Center[0], "center should be the median, immune to the outlier")
	assert.Equal(t, 0.0, z.At(2, 0))
}

func TestRobustScalerZeroIQR(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{7, 7, 7, 7})
	s := &RobustScaler{}
	z, err := s.FitTransform(x)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.False(t, math.IsNaN(z.At(i, 0)), "constant column must not divide by zero")
	}
}

func TestPCAKeepsTargetVariance(t *testing.T) {
	x := randomMatrix(300, 6, 21)
	p, err := FitPCA(x, 0.95)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, p.CumulativeExplained(), 0.95)
	assert.LessOrEqual(t, p.NumComponents, 6)

	z, err := p.Transform(x)
	require.NoError(t, err)
	n, k := z.Dims()
	assert.Equal(t, 300, n)
	assert.Equal(t, p.NumComponents, k)
}

func TestPCADeterministic(t *testing.T) {
	x := randomMatrix(100, 4, 5)
	p1, err := FitPCA(x, 0.95)
	require.NoError(t, err)
	p2, err := FitPCA(x, 0.95)
	require.NoError(t, err)

	z1, _ := p1.Transform(x)
	z2, _ := p2.Transform(x)
	assert.True(t, mat.EqualApprox(z1, z2, 1e-12))
}

func TestPPCATransformShape(t *testing.T) {
	x := randomMatrix(200, 8, 9)
	p, err := FitPPCA(x, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, p.OutputDim())
	assert.Greater(t, p.NoiseVar, 0.0)

	z, err := p.Transform(x)
	require.NoError(t, err)
	n, k := z.Dims()
	assert.Equal(t, 200, n)
	assert.Equal(t, 3, k)
}

func TestArtifactRoundTrip(t *testing.T) {
	x := randomMatrix(150, 5, 13)
	p, err := FitPCA(x, 0.9)
	require.NoError(t, err)

	art := NewArtifact(p)
	r, err := art.Reducer()
	require.NoError(t, err)
	assert.Equal(t, KindPCA, r.Kind())

	z1, _ := p.Transform(x)
	z2, err := r.Transform(x)
	require.NoError(t, err)
	assert.True(t, mat.EqualApprox(z1, z2, 1e-12))
}
