package scorers

import (
	"math"
	"math/rand/v2"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// AutoencoderParams configures the reconstruction-error scorer: a compressive
// d -> hidden -> bottleneck -> hidden -> d network trained to reproduce its
// own input, with early stopping on its own training loss (no labels).
type AutoencoderParams struct {
	Hidden     int
	Bottleneck int
	Epochs     int
	BatchSize  int
	LearnRate  float64
	Momentum   float64
	Patience   int
}

func DefaultAutoencoderParams() AutoencoderParams {
	return AutoencoderParams{
		Hidden:     16,
		Bottleneck: 4,
		Epochs:     60,
		BatchSize:  64,
		LearnRate:  0.01,
		Momentum:   0.9,
		Patience:   5,
	}
}

type aeLayer struct {
	w     *mat.Dense // out x in
	b     []float64
	vw    *mat.Dense
	vb    []float64
	tanh  bool
	in    []float64 // last input (batch row reused)
	preAc []float64
}

func newAELayer(in, out int, tanh bool, rng *rand.Rand) *aeLayer {
	w := mat.NewDense(out, in, nil)
	limit := math.Sqrt(6 / float64(in+out))
	for i := 0; i < out; i++ {
		for j := 0; j < in; j++ {
			w.Set(i, j, (rng.Float64()*2-1)*limit)
		}
	}
	return &aeLayer{
		w: w, b: make([]float64, out),
		vw: mat.NewDense(out, in, nil), vb: make([]float64, out),
		tanh:  tanh,
		preAc: make([]float64, out),
	}
}

func (l *aeLayer) forward(x []float64) []float64 {
	out, in := l.w.Dims()
	l.in = x
	y := make([]float64, out)
	for i := 0; i < out; i++ {
		s := l.b[i]
		for j := 0; j < in; j++ {
			s += l.w.At(i, j) * x[j]
		}
		l.preAc[i] = s
		if l.tanh {
			y[i] = math.Tanh(s)
		} else {
			y[i] = s
		}
	}
	return y
}

// backward consumes dL/dy and returns dL/dx, accumulating momentum updates.
func (l *aeLayer) backward(grad []float64, lr, momentum float64) []float64 {
	out, in := l.w.Dims()
	dx := make([]float64, in)
	for i := 0; i < out; i++ {
		g := grad[i]
		if l.tanh {
			t := math.Tanh(l.preAc[i])
			g *= 1 - t*t
		}
		for j := 0; j < in; j++ {
			dx[j] += l.w.At(i, j) * g
			v := momentum*l.vw.At(i, j) - lr*g*l.in[j]
			l.vw.Set(i, j, v)
			l.w.Set(i, j, l.w.At(i, j)+v)
		}
		vb := momentum*l.vb[i] - lr*g
		l.vb[i] = vb
		l.b[i] += vb
	}
	return dx
}

// AutoencoderScore trains the network on z and returns the per-row mean
// squared reconstruction error.
func AutoencoderScore(z *mat.Dense, p AutoencoderParams, seed uint64) []float64 {
	n, d := z.Dims()
	rng := rand.New(rand.NewPCG(seed, seed^0xc2b2ae3d27d4eb4f))

	hidden := p.Hidden
	if hidden > d*4 {
		hidden = d * 4
	}
	if hidden < 2 {
		hidden = 2
	}
	bottleneck := p.Bottleneck
	if bottleneck >= d {
		bottleneck = d - 1
	}
	if bottleneck < 1 {
		bottleneck = 1
	}

	layers := []*aeLayer{
		newAELayer(d, hidden, true, rng),
		newAELayer(hidden, bottleneck, true, rng),
		newAELayer(bottleneck, hidden, true, rng),
		newAELayer(hidden, d, false, rng),
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	row := make([]float64, d)

	bestLoss := math.Inf(1)
	badEpochs := 0
	for epoch := 0; epoch < p.Epochs; epoch++ {
		rng.Shuffle(n, func(a, b int) { order[a], order[b] = order[b], order[a] })
		var epochLoss float64
		for _, i := range order {
			for j := 0; j < d; j++ {
				row[j] = z.At(i, j)
			}
			out := row
			for _, l := range layers {
				out = l.forward(out)
			}
			grad := make([]float64, d)
			var loss float64
			for j := 0; j < d; j++ {
				diff := out[j] - row[j]
				grad[j] = 2 * diff / float64(d)
				loss += diff * diff
			}
			epochLoss += loss / float64(d)
			for li := len(layers) - 1; li >= 0; li-- {
				grad = layers[li].backward(grad, p.LearnRate, p.Momentum)
			}
		}
		epochLoss /= float64(n)
		if epochLoss < bestLoss-1e-6 {
			bestLoss = epochLoss
			badEpochs = 0
		} else {
			badEpochs++
			if badEpochs >= p.Patience {
				log.Debug().Int("epoch", epoch).Float64("loss", epochLoss).
					Msg("autoencoder early stop on training loss plateau")
				break
			}
		}
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < d; j++ {
			row[j] = z.At(i, j)
		}
		out := row
		for _, l := range layers {
			out = l.forward(out)
		}
		var mse float64
		for j := 0; j < d; j++ {
			diff := out[j] - row[j]
			mse += diff * diff
		}
		scores[i] = mse / float64(d)
	}
	return scores
}
