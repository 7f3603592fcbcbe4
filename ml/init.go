package ml

import (
	"math"
	"math/rand/v2"
	"time"
)

// Initializer fills a freshly allocated parameter matrix.
type Initializer func(m *Matrix)

// NewRand returns a PCG-backed source. Every layer and data stream owns one.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func timeSeededRand() *rand.Rand {
	return NewRand(uint64(time.Now().UnixNano()))
}

// Uniform samples from [-limit, limit].
func Uniform(rng *rand.Rand, limit float64) Initializer {
	return func(m *Matrix) {
		for i := range m.data {
			m.data[i] = (rng.Float64()*2 - 1) * limit
		}
	}
}

// Xavier samples uniformly with limit = sqrt(6 / (fan_in + fan_out)).
func Xavier(rng *rand.Rand) Initializer {
	return func(m *Matrix) {
		limit := math.Sqrt(6.0 / float64(m.rows+m.cols))
		Uniform(rng, limit)(m)
	}
}

// He samples from a normal distribution scaled by sqrt(2 / fan_in).
func He(rng *rand.Rand) Initializer {
	return func(m *Matrix) {
		scale := math.Sqrt(2.0 / float64(m.rows))
		for i := range m.data {
			m.data[i] = rng.NormFloat64() * scale
		}
	}
}

func Zeros(m *Matrix) { m.Reset() }
