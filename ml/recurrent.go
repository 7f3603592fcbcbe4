package ml

// RecurrentLayer is a plain RNN: h(t) = f(x(t)·W + b + h(t-1)·V).
// With Reverse the recurrence runs from the last step to the first.
type RecurrentLayer struct {
	base
	X Input
	H *Node
	W *Param
	V *Param
	B *Param

	dim     int
	f       Nonlin
	reverse bool
}

// Recurrent defines a plain recurrent layer with dim hidden units and a tanh
// activation by default.
func Recurrent(dim int, opts ...LayerOption) *RecurrentLayer {
	cfg := newLayerConfig(Tanh, opts)
	return &RecurrentLayer{
		H:       NewNode(0, 0),
		W:       cfg.weight(),
		V:       cfg.weight(),
		B:       cfg.bias(),
		dim:     dim,
		f:       cfg.Nonlin,
		reverse: cfg.Reverse,
	}
}

func (l *RecurrentLayer) Init() {
	mustConnect("recurrent", &l.X)
	l.W.Allocate(l.X.Value().cols, l.dim)
	l.V.Allocate(l.dim, l.dim)
	l.B.Allocate(1, l.dim)
}

func (l *RecurrentLayer) Forward() {
	l.Init()
	x, h := l.X.Value(), l.H
	h.CloneInfo(l.X.Node())
	h.Init(x.rows, l.dim)
	h.ResetGrad()

	MatMul(x, l.W.w, h.w)
	h.w.AddVector(l.B.w)

	begin, end, incr := direction(h.Len(), l.reverse)
	for t := begin; t != end; t += incr {
		ht := h.At(t)
		if t != begin {
			AddDot(ht, h.At(t-incr), l.V.w)
		}
		l.f.Forward(ht, ht)
	}
}

func (l *RecurrentLayer) Backward() {
	h := l.H
	begin, end, incr := direction(h.Len(), l.reverse)
	for t := end - incr; t != begin-incr; t -= incr {
		dt := h.D(t)
		l.f.Backward(dt, dt, h.At(t))
		if t != begin {
			AddDotTA(l.V.grad, h.At(t-incr), dt)
			AddDotTB(h.D(t-incr), dt, l.V.w)
		}
	}
	if l.X.HasGrad() {
		AddDotTB(l.X.Grad(), h.grad, l.W.w)
	}
	AddDotTA(l.W.grad, l.X.Value(), h.grad)
	l.B.grad.AddRowSums(h.grad)
	regularize(l.W, l.V, l.B)
}

func (l *RecurrentLayer) Params() []*Param { return []*Param{l.W, l.V, l.B} }
func (l *RecurrentLayer) Ins() []*Input    { return []*Input{&l.X} }
func (l *RecurrentLayer) Outs() []*Node    { return []*Node{l.H} }
