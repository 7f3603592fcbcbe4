package ml

// DenseLayer is a fully connected layer h = f(x·W + b).
type DenseLayer struct {
	base
	X Input
	H *Node
	W *Param
	B *Param

	dim int
	f   Nonlin
}

// Dense defines a fully connected layer with dim outputs. The activation
// defaults to tanh.
func Dense(dim int, opts ...LayerOption) *DenseLayer {
	cfg := newLayerConfig(Tanh, opts)
	return &DenseLayer{
		H:   NewNode(0, 0),
		W:   cfg.weight(),
		B:   cfg.bias(),
		dim: dim,
		f:   cfg.Nonlin,
	}
}

func (l *DenseLayer) Init() {
	mustConnect("dense", &l.X)
	l.W.Allocate(l.X.Value().cols, l.dim)
	l.B.Allocate(1, l.dim)
}

func (l *DenseLayer) Forward() {
	l.Init()
	x := l.X.Value()
	l.H.Init(x.rows, l.dim)
	l.H.ResetGrad()
	l.H.CloneInfo(l.X.Node())

	MatMul(x, l.W.w, l.H.w)
	l.H.w.AddVector(l.B.w)
	l.f.Forward(l.H.w, l.H.w)
}

func (l *DenseLayer) Backward() {
	h := l.H
	l.f.Backward(h.grad, h.grad, h.w)
	if l.X.HasGrad() {
		AddDotTB(l.X.Grad(), h.grad, l.W.w)
	}
	AddDotTA(l.W.grad, l.X.Value(), h.grad)
	l.B.grad.AddRowSums(h.grad)
	regularize(l.W, l.B)
}

func (l *DenseLayer) ForwardStep(t int) {
	l.Init()
	if t == 0 {
		l.H.Init(l.X.Value().rows, l.dim)
		l.H.ResetGrad()
		l.H.CloneInfo(l.X.Node())
	}
	ht := l.H.At(t)
	MatMul(l.X.At(t), l.W.w, ht)
	ht.AddVector(l.B.w)
	l.f.Forward(ht, ht)
}

func (l *DenseLayer) BackwardStep(t int) {
	ht, dt := l.H.At(t), l.H.D(t)
	l.f.Backward(dt, dt, ht)
	if l.X.HasGrad() {
		AddDotTB(l.X.D(t), dt, l.W.w)
	}
	AddDotTA(l.W.grad, l.X.At(t), dt)
	l.B.grad.AddRowSums(dt)
	if t == 0 {
		regularize(l.W, l.B)
	}
}

func (l *DenseLayer) Params() []*Param { return []*Param{l.W, l.B} }
func (l *DenseLayer) Ins() []*Input    { return []*Input{&l.X} }
func (l *DenseLayer) Outs() []*Node    { return []*Node{l.H} }
