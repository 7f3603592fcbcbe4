package ml

import "fmt"

// RecursiveLayer propagates hidden states bottom-up over the DAG attached to
// its input node. Each DAG node is one time step of the input. Node n gets
//
//	h(n) = f(x(n)·W + b + Σ h(child)·V[label])
//
// where V holds one weight matrix per edge label, shared by every edge with
// that label.
type RecursiveLayer struct {
	base
	X Input
	H *Node
	V []*Param
	W *Param
	B *Param

	dim int
	f   Nonlin
}

// Recursive defines a recursive layer with dim hidden units and n edge labels.
func Recursive(dim, n int, opts ...LayerOption) *RecursiveLayer {
	cfg := newLayerConfig(Tanh, opts)
	l := &RecursiveLayer{
		H:   NewNode(0, 0),
		V:   make([]*Param, n),
		W:   cfg.weight(),
		B:   cfg.bias(),
		dim: dim,
		f:   cfg.Nonlin,
	}
	for i := range l.V {
		l.V[i] = cfg.weight()
	}
	return l
}

func (l *RecursiveLayer) Init() {
	mustConnect("recursive", &l.X)
	l.W.Allocate(l.X.Value().cols, l.dim)
	for _, v := range l.V {
		v.Allocate(l.dim, l.dim)
	}
	l.B.Allocate(1, l.dim)
}

func (l *RecursiveLayer) Forward() {
	l.Init()
	x, h := l.X.Value(), l.H
	h.CloneInfo(l.X.Node())
	h.Init(x.rows, l.dim)
	h.ResetGrad()
	dag := l.checkDAG()

	MatMul(x, l.W.w, h.w)
	h.w.AddVector(l.B.w)
	for n := dag.Len() - 1; n >= 0; n-- {
		hn := h.At(n)
		for _, e := range dag.Children(n) {
			AddDot(hn, h.At(e.Child), l.V[e.Label].w)
		}
		l.f.Forward(hn, hn)
	}
}

func (l *RecursiveLayer) Backward() {
	h := l.H
	dag := h.DAG
	for n := 0; n < dag.Len(); n++ {
		dn := h.D(n)
		l.f.Backward(dn, dn, h.At(n))
		for _, e := range dag.Children(n) {
			v := l.V[e.Label]
			AddDotTA(v.grad, h.At(e.Child), dn)
			AddDotTB(h.D(e.Child), dn, v.w)
		}
	}
	if l.X.HasGrad() {
		AddDotTB(l.X.Grad(), h.grad, l.W.w)
	}
	AddDotTA(l.W.grad, l.X.Value(), h.grad)
	l.B.grad.AddRowSums(h.grad)
	regularize(l.Params()...)
}

// checkDAG panics unless the input carries a DAG that is topologically
// ordered, has one node per time step and only uses known edge labels.
func (l *RecursiveLayer) checkDAG() *DAG {
	dag := l.H.DAG
	if dag == nil {
		panic("ml: recursive layer input has no DAG")
	}
	if T := l.H.Len(); dag.Len() != T {
		panic(fmt.Sprintf("ml: DAG of %d nodes for %d time steps", dag.Len(), T))
	}
	if err := dag.Validate(); err != nil {
		panic(err.Error())
	}
	for n := 0; n < dag.Len(); n++ {
		for _, e := range dag.Children(n) {
			if e.Label >= len(l.V) {
				panic(fmt.Sprintf("ml: edge label %d with %d label weights", e.Label, len(l.V)))
			}
		}
	}
	return dag
}

func (l *RecursiveLayer) Params() []*Param {
	return append(append([]*Param{}, l.V...), l.W, l.B)
}

func (l *RecursiveLayer) Ins() []*Input { return []*Input{&l.X} }
func (l *RecursiveLayer) Outs() []*Node { return []*Node{l.H} }
