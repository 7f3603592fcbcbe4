package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
)

const (
	// Sampling types
	SamplingGreedy      = "greedy"
	SamplingMultinomial = "multinomial"
	SamplingTopK        = "topk"
)

const (
	// ModeAlwaysSample uses the configured SamplingType for every token.
	ModeAlwaysSample DecodingMode = "always_sample"
	// ModeSampleFirstThenGreedy samples the first token, then decodes greedily.
	ModeSampleFirstThenGreedy DecodingMode = "sample_first_then_greedy"
	// ModeIntervalSampling samples every Interval tokens, otherwise greedy.
	ModeIntervalSampling DecodingMode = "interval_sampling"
)

// DecodingMode defines how frequently the configured SamplingType is used.
type DecodingMode string

// DecodingConfig holds the parameters for the inference decoding strategy.
type DecodingConfig struct {
	SamplingType string  // greedy, multinomial or topk (used for non-greedy steps)
	Temperature  float64 // T > 0; 0 means 1.
	TopK         int

	Mode     DecodingMode
	Interval int // Used only if Mode is ModeIntervalSampling
}

// Sampler picks token ids from probability rows according to a DecodingConfig.
type Sampler struct {
	cfg  DecodingConfig
	rng  *rand.Rand
	step int
	buf  []float64
}

func NewSampler(cfg DecodingConfig, rng *rand.Rand) (*Sampler, error) {
	switch cfg.SamplingType {
	case SamplingGreedy, SamplingMultinomial, SamplingTopK:
	default:
		return nil, fmt.Errorf("ml: unknown sampling type %q", cfg.SamplingType)
	}
	switch cfg.Mode {
	case "", ModeAlwaysSample, ModeSampleFirstThenGreedy:
	case ModeIntervalSampling:
		if cfg.Interval <= 0 {
			return nil, fmt.Errorf("ml: interval sampling needs a positive interval, got %d", cfg.Interval)
		}
	default:
		return nil, fmt.Errorf("ml: unknown decoding mode %q", cfg.Mode)
	}
	if cfg.Temperature < 0 {
		return nil, fmt.Errorf("ml: negative temperature %v", cfg.Temperature)
	}
	if rng == nil {
		rng = timeSeededRand()
	}
	return &Sampler{cfg: cfg, rng: rng}, nil
}

// Reset restarts the decoding schedule for a new sequence.
func (s *Sampler) Reset() { s.step = 0 }

// Next returns the id chosen from probs.
func (s *Sampler) Next(probs []float64) int {
	sample := true
	switch s.cfg.Mode {
	case ModeSampleFirstThenGreedy:
		sample = s.step == 0
	case ModeIntervalSampling:
		sample = s.step%s.cfg.Interval == 0
	}
	s.step++
	if !sample || s.cfg.SamplingType == SamplingGreedy {
		return GreedySample(probs)
	}
	p := s.temper(probs)
	if s.cfg.SamplingType == SamplingTopK {
		return TopKSample(s.rng, p, s.cfg.TopK)
	}
	return MultinomialSample(s.rng, p)
}

// temper rescales probs to p^(1/T), renormalized.
func (s *Sampler) temper(probs []float64) []float64 {
	T := s.cfg.Temperature
	if T == 0 || T == 1 {
		return probs
	}
	s.buf = append(s.buf[:0], probs...)
	for i, p := range s.buf {
		s.buf[i] = math.Pow(p, 1/T)
	}
	if sum := floats.Sum(s.buf); sum > 0 {
		floats.Scale(1/sum, s.buf)
	}
	return s.buf
}

// MultinomialSample draws an index with chance proportional to its probability.
func MultinomialSample(rng *rand.Rand, probs []float64) int {
	r := rng.Float64()
	cumulativeProb := 0.0
	for i, p := range probs {
		cumulativeProb += p
		if r < cumulativeProb {
			return i
		}
	}
	// Fallback in case of floating point inaccuracies, return the last index.
	return len(probs) - 1
}

// GreedySample finds the index of the maximum probability.
func GreedySample(probs []float64) int {
	return floats.MaxIdx(probs)
}

// TopKSample renormalizes the K largest probabilities and samples among them.
func TopKSample(rng *rand.Rand, probs []float64, K int) int {
	if K <= 0 || K >= len(probs) {
		return MultinomialSample(rng, probs)
	}
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })
	idx = idx[:K]

	top := make([]float64, K)
	for i, j := range idx {
		top[i] = probs[j]
	}
	sum := floats.Sum(top)
	if sum == 0 {
		return MultinomialSample(rng, probs)
	}
	floats.Scale(1/sum, top)
	return idx[MultinomialSample(rng, top)]
}
