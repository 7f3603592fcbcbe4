package ml

import "fmt"

// CastLayer broadcasts one input to several outputs. Each output aliases the
// input's storage, so gradient written into any output lands in the input.
type CastLayer struct {
	base
	X Input
	H []*Node
}

func Cast(n int) *CastLayer {
	l := &CastLayer{H: make([]*Node, n)}
	for i := range l.H {
		l.H[i] = NewNode(0, 0)
	}
	return l
}

func (l *CastLayer) Forward() {
	mustConnect("cast", &l.X)
	for _, h := range l.H {
		*h = *l.X.Node()
	}
}

func (l *CastLayer) Backward() {}

func (l *CastLayer) ForwardStep(t int) {
	if t == 0 {
		l.Forward()
	}
}

func (l *CastLayer) BackwardStep(t int) {}

func (l *CastLayer) Ins() []*Input { return []*Input{&l.X} }
func (l *CastLayer) Outs() []*Node { return l.H }

// CatLayer concatenates two inputs column-wise.
type CatLayer struct {
	base
	X1, X2 Input
	H      *Node
}

func Cat() *CatLayer {
	return &CatLayer{H: NewNode(0, 0)}
}

func (l *CatLayer) Forward() {
	l.setup()
	catInto(l.H.w, l.X1.Value(), l.X2.Value())
}

func (l *CatLayer) Backward() {
	if l.X1.HasGrad() {
		splitAdd(l.X1.Grad(), l.H.grad, 0)
	}
	if l.X2.HasGrad() {
		splitAdd(l.X2.Grad(), l.H.grad, l.X1.Value().cols)
	}
}

func (l *CatLayer) ForwardStep(t int) {
	if t == 0 {
		l.setup()
	}
	catInto(l.H.At(t), l.X1.At(t), l.X2.At(t))
}

func (l *CatLayer) BackwardStep(t int) {
	if l.X1.HasGrad() {
		splitAdd(l.X1.D(t), l.H.D(t), 0)
	}
	if l.X2.HasGrad() {
		splitAdd(l.X2.D(t), l.H.D(t), l.X1.Value().cols)
	}
}

func (l *CatLayer) setup() {
	mustConnect("cat", &l.X1, &l.X2)
	a, b := l.X1.Value(), l.X2.Value()
	if a.rows != b.rows {
		panic(fmt.Sprintf("ml: cat of %d rows and %d rows", a.rows, b.rows))
	}
	l.H.Init(a.rows, a.cols+b.cols)
	l.H.ResetGrad()
	l.H.CloneInfo(l.X1.Node())
}

func (l *CatLayer) Ins() []*Input { return []*Input{&l.X1, &l.X2} }
func (l *CatLayer) Outs() []*Node { return []*Node{l.H} }

// catInto writes a into the leading columns of dst and b into the rest.
func catInto(dst, a, b *Matrix) {
	if !a.Empty() {
		dst.ColView(0, a.cols).Copy(a.Dense())
	}
	if !b.Empty() {
		dst.ColView(a.cols, a.cols+b.cols).Copy(b.Dense())
	}
}

// splitAdd accumulates columns [start, start+cols(dst)) of src into dst.
func splitAdd(dst, src *Matrix, start int) {
	if dst.Empty() {
		return
	}
	d := dst.Dense()
	d.Add(d, src.ColView(start, start+dst.cols))
}

// TailLayer outputs the last time step of its input.
type TailLayer struct {
	base
	X Input
	H *Node
}

func Tail() *TailLayer { return &TailLayer{H: NewNode(0, 0)} }

func (l *TailLayer) Forward() {
	mustConnect("tail", &l.X)
	l.H.CloneInfo(l.X.Node())
	_, T := l.X.steps()
	l.H.Init(l.H.BatchSize, l.X.Value().cols)
	l.H.ResetGrad()
	l.H.w.CopyFrom(l.X.Node().At(T - 1))
}

func (l *TailLayer) Backward() {
	if l.X.HasGrad() {
		_, T := l.X.steps()
		l.X.Node().D(T - 1).Add(l.H.grad)
	}
}

func (l *TailLayer) Ins() []*Input { return []*Input{&l.X} }
func (l *TailLayer) Outs() []*Node { return []*Node{l.H} }

// TailCastLayer copies the last time step of its input to every time step.
type TailCastLayer struct {
	base
	X Input
	H *Node
}

func TailCast() *TailCastLayer { return &TailCastLayer{H: NewNode(0, 0)} }

func (l *TailCastLayer) Forward() {
	mustConnect("tailcast", &l.X)
	l.H.CloneInfo(l.X.Node())
	x := l.X.Value()
	l.H.Init(x.rows, x.cols)
	l.H.ResetGrad()
	_, T := l.X.steps()
	last := l.X.Node().At(T - 1)
	for t := 0; t < T; t++ {
		l.H.At(t).CopyFrom(last)
	}
}

func (l *TailCastLayer) Backward() {
	if !l.X.HasGrad() {
		return
	}
	_, T := l.X.steps()
	d := l.X.Node().D(T - 1)
	for t := 0; t < T; t++ {
		d.Add(l.H.D(t))
	}
}

func (l *TailCastLayer) Ins() []*Input { return []*Input{&l.X} }
func (l *TailCastLayer) Outs() []*Node { return []*Node{l.H} }
