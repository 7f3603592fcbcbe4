package ml

// LSTMLayer is a long short-term memory layer with peephole connections from
// the previous cell state into the input, forget and output gates:
//
//	i = σ(x·Wix + h'·Wih + c'·Wic + bi)
//	f = σ(x·Wfx + h'·Wfh + c'·Wfc + bf)
//	g = tanh(x·Wcx + h'·Wch + bc)
//	c = i*g + (1-f)*c'
//	o = σ(x·Wox + h'·Woh + c'·Woc + bo)
//	h = o * tanh(c)
//
// where h' and c' are the previous step's hidden and cell state, absent at
// the first step. Note the cell keeps (1-f) of its previous value.
type LSTMLayer struct {
	base
	X Input
	H *Node

	// intermediates, each (T*batch x dim)
	i, f, g, c, o, hc *Node

	Wix, Wfx, Wcx, Wox *Param
	Wih, Wfh, Wch, Woh *Param
	Wic, Wfc, Woc      *Param
	Bi, Bf, Bc, Bo     *Param

	dim     int
	gate    Nonlin
	squash  Nonlin
	reverse bool
}

func LSTM(dim int, opts ...LayerOption) *LSTMLayer {
	cfg := newLayerConfig(Tanh, opts)
	l := &LSTMLayer{
		H:       NewNode(0, 0),
		i:       NewNode(0, 0),
		f:       NewNode(0, 0),
		g:       NewNode(0, 0),
		c:       NewNode(0, 0),
		o:       NewNode(0, 0),
		hc:      NewNode(0, 0),
		dim:     dim,
		gate:    Sigmoid,
		squash:  cfg.Nonlin,
		reverse: cfg.Reverse,
	}
	for _, w := range []**Param{&l.Wix, &l.Wfx, &l.Wcx, &l.Wox, &l.Wih, &l.Wfh, &l.Wch, &l.Woh, &l.Wic, &l.Wfc, &l.Woc} {
		*w = cfg.weight()
	}
	for _, b := range []**Param{&l.Bi, &l.Bf, &l.Bc, &l.Bo} {
		*b = cfg.bias()
	}
	return l
}

func (l *LSTMLayer) Init() {
	mustConnect("lstm", &l.X)
	xdim := l.X.Value().cols
	for _, w := range []*Param{l.Wix, l.Wfx, l.Wcx, l.Wox} {
		w.Allocate(xdim, l.dim)
	}
	for _, w := range []*Param{l.Wih, l.Wfh, l.Wch, l.Woh, l.Wic, l.Wfc, l.Woc} {
		w.Allocate(l.dim, l.dim)
	}
	for _, b := range []*Param{l.Bi, l.Bf, l.Bc, l.Bo} {
		b.Allocate(1, l.dim)
	}
}

func (l *LSTMLayer) nodes() []*Node {
	return []*Node{l.i, l.f, l.g, l.c, l.o, l.hc, l.H}
}

func (l *LSTMLayer) setup() {
	rows := l.X.Value().rows
	for _, n := range l.nodes() {
		n.Init(rows, l.dim)
		n.CloneInfo(l.X.Node())
		n.ResetGrad()
	}
}

func (l *LSTMLayer) Forward() {
	l.Init()
	l.setup()
	x := l.X.Value()
	l.affine(x, l.i.w, l.Wix, l.Bi)
	l.affine(x, l.f.w, l.Wfx, l.Bf)
	l.affine(x, l.g.w, l.Wcx, l.Bc)
	l.affine(x, l.o.w, l.Wox, l.Bo)

	begin, end, incr := direction(l.H.Len(), l.reverse)
	for t := begin; t != end; t += incr {
		l.recur(t, begin, incr)
	}
}

func (l *LSTMLayer) Backward() {
	begin, end, incr := direction(l.H.Len(), l.reverse)
	for t := end - incr; t != begin-incr; t -= incr {
		l.backRecur(t, begin, incr)
	}
	l.backAffine(l.X.Value(), l.X.Grad(), l.i.grad, l.f.grad, l.g.grad, l.o.grad)
	regularize(l.Params()...)
}

// ForwardStep computes step t. Steps must arrive in increasing order starting
// at 0, so a reversed LSTM can only be run whole-sequence.
func (l *LSTMLayer) ForwardStep(t int) {
	l.mustForwardDir()
	l.Init()
	if t == 0 {
		l.setup()
	}
	x := l.X.At(t)
	l.affine(x, l.i.At(t), l.Wix, l.Bi)
	l.affine(x, l.f.At(t), l.Wfx, l.Bf)
	l.affine(x, l.g.At(t), l.Wcx, l.Bc)
	l.affine(x, l.o.At(t), l.Wox, l.Bo)
	l.recur(t, 0, 1)
}

func (l *LSTMLayer) BackwardStep(t int) {
	l.mustForwardDir()
	l.backRecur(t, 0, 1)
	var dx *Matrix
	if l.X.HasGrad() {
		dx = l.X.D(t)
	}
	l.backAffine(l.X.At(t), dx, l.i.D(t), l.f.D(t), l.g.D(t), l.o.D(t))
	if t == 0 {
		regularize(l.Params()...)
	}
}

func (l *LSTMLayer) mustForwardDir() {
	if l.reverse {
		panic("ml: reversed lstm does not support per-step driving")
	}
}

func (l *LSTMLayer) affine(x, dst *Matrix, w, b *Param) {
	MatMul(x, w.w, dst)
	dst.AddVector(b.w)
}

// recur applies the recurrent and elementwise part of step t.
func (l *LSTMLayer) recur(t, begin, incr int) {
	it, ft, gt, ct := l.i.At(t), l.f.At(t), l.g.At(t), l.c.At(t)
	ot, hct, ht := l.o.At(t), l.hc.At(t), l.H.At(t)
	first := t == begin
	var hp, cp *Matrix
	if !first {
		hp, cp = l.H.At(t-incr), l.c.At(t-incr)
		AddDot(it, hp, l.Wih.w)
		AddDot(it, cp, l.Wic.w)
		AddDot(ft, hp, l.Wfh.w)
		AddDot(ft, cp, l.Wfc.w)
	}
	l.gate.Forward(it, it)
	l.gate.Forward(ft, ft)
	if !first {
		AddDot(gt, hp, l.Wch.w)
	}
	l.squash.Forward(gt, gt)

	for k := range ct.data {
		ct.data[k] = it.data[k] * gt.data[k]
	}
	if !first {
		for k := range ct.data {
			ct.data[k] += (1 - ft.data[k]) * cp.data[k]
		}
		AddDot(ot, hp, l.Woh.w)
		AddDot(ot, cp, l.Woc.w)
	}
	l.gate.Forward(ot, ot)

	l.squash.Forward(hct, ct)
	for k := range ht.data {
		ht.data[k] = ot.data[k] * hct.data[k]
	}
}

// backRecur backpropagates the elementwise and recurrent part of step t,
// leaving pre-activation gate gradients in i, f, g and o.
func (l *LSTMLayer) backRecur(t, begin, incr int) {
	it, ft, gt, ot, hct := l.i.At(t), l.f.At(t), l.g.At(t), l.o.At(t), l.hc.At(t)
	di, df, dg, dc := l.i.D(t), l.f.D(t), l.g.D(t), l.c.D(t)
	do, dhc, dh := l.o.D(t), l.hc.D(t), l.H.D(t)
	first := t == begin

	for k, g := range dh.data {
		dhc.data[k] += g * ot.data[k]
		do.data[k] += g * hct.data[k]
	}
	l.squash.BackwardAdd(dc, dhc, hct)

	l.gate.Backward(do, do, ot)
	var hp, cp, dhp, dcp *Matrix
	if !first {
		hp, cp = l.H.At(t-incr), l.c.At(t-incr)
		dhp, dcp = l.H.D(t-incr), l.c.D(t-incr)
		AddDotTB(dhp, do, l.Woh.w)
		AddDotTA(l.Woh.grad, hp, do)
		AddDotTB(dcp, do, l.Woc.w)
		AddDotTA(l.Woc.grad, cp, do)

		for k, g := range dc.data {
			df.data[k] -= g * cp.data[k]
			dcp.data[k] += g * (1 - ft.data[k])
		}
	}
	for k, g := range dc.data {
		di.data[k] += g * gt.data[k]
		dg.data[k] += g * it.data[k]
	}

	l.squash.Backward(dg, dg, gt)
	if !first {
		AddDotTB(dhp, dg, l.Wch.w)
		AddDotTA(l.Wch.grad, hp, dg)
	}

	l.gate.Backward(df, df, ft)
	l.gate.Backward(di, di, it)
	if !first {
		AddDotTB(dcp, df, l.Wfc.w)
		AddDotTA(l.Wfc.grad, cp, df)
		AddDotTB(dhp, df, l.Wfh.w)
		AddDotTA(l.Wfh.grad, hp, df)
		AddDotTB(dcp, di, l.Wic.w)
		AddDotTA(l.Wic.grad, cp, di)
		AddDotTB(dhp, di, l.Wih.w)
		AddDotTA(l.Wih.grad, hp, di)
	}
}

// backAffine accumulates input weight, bias and input gradients. dx may be
// nil when the input is a truncation boundary.
func (l *LSTMLayer) backAffine(x, dx, di, df, dg, do *Matrix) {
	AddDotTA(l.Wix.grad, x, di)
	AddDotTA(l.Wfx.grad, x, df)
	AddDotTA(l.Wcx.grad, x, dg)
	AddDotTA(l.Wox.grad, x, do)
	l.Bi.grad.AddRowSums(di)
	l.Bf.grad.AddRowSums(df)
	l.Bc.grad.AddRowSums(dg)
	l.Bo.grad.AddRowSums(do)
	if dx != nil {
		AddDotTB(dx, di, l.Wix.w)
		AddDotTB(dx, df, l.Wfx.w)
		AddDotTB(dx, dg, l.Wcx.w)
		AddDotTB(dx, do, l.Wox.w)
	}
}

func (l *LSTMLayer) Params() []*Param {
	return []*Param{
		l.Wix, l.Wfx, l.Wcx, l.Wox,
		l.Wih, l.Wfh, l.Wch, l.Woh,
		l.Wic, l.Wfc, l.Woc,
		l.Bi, l.Bf, l.Bc, l.Bo,
	}
}

func (l *LSTMLayer) Ins() []*Input { return []*Input{&l.X} }
func (l *LSTMLayer) Outs() []*Node { return []*Node{l.H} }
