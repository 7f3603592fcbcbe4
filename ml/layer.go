package ml

import (
	"fmt"
	"math/rand/v2"
)

const (
	Train Mode = iota
	Test
)

// DefaultInitScale bounds the uniform initialization of weight matrices.
const DefaultInitScale = 0.01

// -------- TYPE DEFINITIONS -------- //
type Mode int
type LayerOption func(*LayerConfig)

// Layer is a unit of computation that reads its Ins, writes its Outs and
// pushes gradient back from Outs into Ins and Params.
//
// Forward and Backward operate on whole sequences. ForwardStep and
// BackwardStep operate on a single time step and are only supported by
// layers that can be driven by Timewise; the rest panic.
type Layer interface {
	Forward()
	Backward()
	ForwardStep(t int)
	BackwardStep(t int)
	// Init allocates parameters from the connected input shapes. It is
	// idempotent and called by Forward when needed.
	Init()
	SetMode(m Mode)
	Loss() float64
	Error() float64
	// Params is ordered; persistence depends on the order.
	Params() []*Param
	Ins() []*Input
	Outs() []*Node
}

// LayerConfig holds the blueprint for a leaf layer.
type LayerConfig struct {
	Nonlin   Nonlin
	Reverse  bool
	Rand     *rand.Rand
	DropRate float64
}

// base supplies the defaults shared by leaf layers.
type base struct {
	mode Mode
}

func (b *base) SetMode(m Mode)   { b.mode = m }
func (b *base) Loss() float64    { return 0 }
func (b *base) Error() float64   { return 0 }
func (b *base) Init()            {}
func (b *base) Params() []*Param { return nil }

func (b *base) ForwardStep(t int) {
	panic(fmt.Sprintf("ml: layer does not support per-step forward (t=%d)", t))
}

func (b *base) BackwardStep(t int) {
	panic(fmt.Sprintf("ml: layer does not support per-step backward (t=%d)", t))
}

// ------- LAYER CONFIG HELPERS ------- //
func Activation(activation string) LayerOption {
	return func(lc *LayerConfig) {
		f, exists := activationMap[activation]
		if !exists {
			panic("ml: unknown activation: " + activation)
		}
		lc.Nonlin = f
	}
}

func WithNonlin(f Nonlin) LayerOption {
	return func(lc *LayerConfig) { lc.Nonlin = f }
}

// Reverse makes a recurrent layer walk time from the last step to the first.
func Reverse() LayerOption {
	return func(lc *LayerConfig) { lc.Reverse = true }
}

// WithRand sets the source used for weight initialization and masks.
func WithRand(rng *rand.Rand) LayerOption {
	return func(lc *LayerConfig) { lc.Rand = rng }
}

func DropRate(p float64) LayerOption {
	return func(lc *LayerConfig) { lc.DropRate = p }
}

func newLayerConfig(def Nonlin, opts []LayerOption) LayerConfig {
	cfg := LayerConfig{Nonlin: def}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Rand == nil {
		cfg.Rand = timeSeededRand()
	}
	return cfg
}

// weight returns a parameter initialized uniformly in ±DefaultInitScale.
func (cfg LayerConfig) weight() *Param {
	p := NewParam()
	p.Initializer = Uniform(cfg.Rand, DefaultInitScale)
	return p
}

func (cfg LayerConfig) bias() *Param {
	p := NewParam()
	p.Initializer = Zeros
	return p
}

// direction returns the first step, the step past the last, and the increment.
func direction(T int, reverse bool) (begin, end, incr int) {
	if reverse {
		return T - 1, -1, -1
	}
	return 0, T, 1
}

// mustConnect panics unless every input is connected.
func mustConnect(name string, ins ...*Input) {
	for i, x := range ins {
		if !x.Connected() {
			panic(fmt.Sprintf("ml: %s input %d is not connected", name, i))
		}
	}
}

// ------ UTILITY FUNCTIONS ------

// Update applies each parameter's optimizer when its learning rate is
// positive, then zeroes every gradient.
func Update(l Layer) {
	for _, p := range l.Params() {
		p.Step()
	}
}

func ResetGrad(l Layer) {
	for _, p := range l.Params() {
		p.ResetGrad()
	}
}

// Regularize adds the L2 penalty gradient of every parameter of l.
func Regularize(l Layer) { regularize(l.Params()...) }

func regularize(params ...*Param) {
	for _, p := range params {
		p.Regularize()
	}
}

func CountParams(l Layer) int {
	n := 0
	for _, p := range l.Params() {
		n += p.w.rows * p.w.cols
	}
	return n
}

// DanglingIns returns the inputs of l that are still unconnected.
func DanglingIns(l Layer) []*Input {
	var v []*Input
	for _, x := range l.Ins() {
		if !x.Connected() {
			v = append(v, x)
		}
	}
	return v
}

func SetLearningRate(l Layer, lr float64) {
	for _, p := range l.Params() {
		p.Opt.SetLearningRate(lr)
	}
}

func SetLambda(l Layer, lambda float64) {
	for _, p := range l.Params() {
		p.Lambda = lambda
	}
}

// SetOptimizer replaces every parameter's optimizer with a fresh one of type t.
// The learning rate of the replaced optimizer is kept.
func SetOptimizer(l Layer, t OptimizerType) error {
	if _, err := NewOptimizer(t); err != nil {
		return err
	}
	SetOptimizerFunc(l, func() Optimizer {
		opt, _ := NewOptimizer(t)
		return opt
	})
	return nil
}

func SetOptimizerFunc(l Layer, newOpt func() Optimizer) {
	for _, p := range l.Params() {
		opt := newOpt()
		if p.Opt != nil {
			opt.SetLearningRate(p.Opt.LearningRate())
		}
		if !p.w.Empty() {
			opt.Init(p.w.rows, p.w.cols)
		}
		p.Opt = opt
	}
}

// SetInitializer affects parameters that have not been allocated yet.
func SetInitializer(l Layer, init Initializer) {
	for _, p := range l.Params() {
		p.Initializer = init
	}
}
