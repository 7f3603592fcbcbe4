package ml

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SquaredErrorLayer compares a prediction X with a target Y.
// Loss is 0.5·Σ(x-y)² and Error is Σ(x-y)².
type SquaredErrorLayer struct {
	base
	X, Y Input
}

func SquaredError() *SquaredErrorLayer { return &SquaredErrorLayer{} }

func (l *SquaredErrorLayer) Forward()          { mustConnect("squared error", &l.X, &l.Y) }
func (l *SquaredErrorLayer) ForwardStep(t int) { l.Forward() }

func (l *SquaredErrorLayer) Backward() {
	if l.X.HasGrad() {
		l.X.Grad().Add(l.X.Value())
		l.X.Grad().Subtract(l.Y.Value())
	}
}

func (l *SquaredErrorLayer) BackwardStep(t int) {
	if l.X.HasGrad() {
		l.X.D(t).Add(l.X.At(t))
		l.X.D(t).Subtract(l.Y.At(t))
	}
}

func (l *SquaredErrorLayer) Loss() float64 {
	x, y := l.X.Value(), l.Y.Value()
	x.mustMatch(y)
	d := floats.Distance(x.data, y.data, 2)
	return 0.5 * d * d
}

func (l *SquaredErrorLayer) Error() float64 { return 2 * l.Loss() }

func (l *SquaredErrorLayer) Ins() []*Input { return []*Input{&l.X, &l.Y} }
func (l *SquaredErrorLayer) Outs() []*Node { return nil }

// SoftmaxCrossEntropyLayer applies a row softmax to X and scores it against
// integer class labels Y (one per row). A label outside [0, classes) marks a
// padded row, which contributes no loss, error or gradient.
type SoftmaxCrossEntropyLayer struct {
	base
	X, Y Input
	H    *Node // class probabilities
	C    *Node // predicted class per row
}

func SoftmaxCrossEntropy() *SoftmaxCrossEntropyLayer {
	return &SoftmaxCrossEntropyLayer{H: NewNode(0, 0), C: NewNode(0, 0)}
}

func (l *SoftmaxCrossEntropyLayer) setup() {
	mustConnect("softmax cross entropy", &l.X)
	x := l.X.Value()
	l.H.Init(x.rows, x.cols)
	l.H.CloneInfo(l.X.Node())
	l.C.Init(x.rows, 1)
	l.C.CloneInfo(l.X.Node())
}

func (l *SoftmaxCrossEntropyLayer) Forward() {
	l.setup()
	SoftmaxRow(l.H.w, l.X.Value())
	classify(l.C.w, l.H.w)
}

func (l *SoftmaxCrossEntropyLayer) ForwardStep(t int) {
	if t == 0 {
		l.setup()
	}
	SoftmaxRow(l.H.At(t), l.X.At(t))
	classify(l.C.At(t), l.H.At(t))
}

func (l *SoftmaxCrossEntropyLayer) Backward() {
	mustConnect("softmax cross entropy", &l.Y)
	if l.X.HasGrad() {
		addXentGrad(l.X.Grad(), l.H.w, l.Y.Value().data)
	}
}

func (l *SoftmaxCrossEntropyLayer) BackwardStep(t int) {
	mustConnect("softmax cross entropy", &l.Y)
	if l.X.HasGrad() {
		addXentGrad(l.X.D(t), l.H.At(t), l.Y.At(t).data)
	}
}

func (l *SoftmaxCrossEntropyLayer) Loss() float64 {
	return xentLoss(l.H.w, l.Y.Value().data)
}

func (l *SoftmaxCrossEntropyLayer) Error() float64 {
	return misclassified(l.C.w.data, l.Y.Value().data, l.H.w.cols)
}

func (l *SoftmaxCrossEntropyLayer) Ins() []*Input { return []*Input{&l.X, &l.Y} }
func (l *SoftmaxCrossEntropyLayer) Outs() []*Node { return nil }

// FactoredSoftmaxCrossEntropyLayer is a class-factored softmax. Label y is
// split into y1 = y / dim2 scored against X1 and y2 = y % dim2 scored
// against X2, where dim2 is the width of X2.
type FactoredSoftmaxCrossEntropyLayer struct {
	base
	X1, X2, Y Input
	H1, H2    *Node
	C         *Node

	y1, y2 []float64
}

func FactoredSoftmaxCrossEntropy() *FactoredSoftmaxCrossEntropyLayer {
	return &FactoredSoftmaxCrossEntropyLayer{H1: NewNode(0, 0), H2: NewNode(0, 0), C: NewNode(0, 0)}
}

func (l *FactoredSoftmaxCrossEntropyLayer) setup() {
	mustConnect("factored softmax cross entropy", &l.X1, &l.X2)
	x1, x2 := l.X1.Value(), l.X2.Value()
	l.H1.Init(x1.rows, x1.cols)
	l.H2.Init(x2.rows, x2.cols)
	l.C.Init(x1.rows, 1)
	l.H1.CloneInfo(l.X1.Node())
	l.H2.CloneInfo(l.X2.Node())
	l.C.CloneInfo(l.X1.Node())
}

func (l *FactoredSoftmaxCrossEntropyLayer) Forward() {
	l.setup()
	SoftmaxRow(l.H1.w, l.X1.Value())
	SoftmaxRow(l.H2.w, l.X2.Value())
	l.classify(l.C.w, l.H1.w, l.H2.w)
}

func (l *FactoredSoftmaxCrossEntropyLayer) ForwardStep(t int) {
	if t == 0 {
		l.setup()
	}
	SoftmaxRow(l.H1.At(t), l.X1.At(t))
	SoftmaxRow(l.H2.At(t), l.X2.At(t))
	l.classify(l.C.At(t), l.H1.At(t), l.H2.At(t))
}

func (l *FactoredSoftmaxCrossEntropyLayer) classify(c, h1, h2 *Matrix) {
	dim2 := h2.cols
	for r := 0; r < c.rows; r++ {
		a := floats.MaxIdx(h1.data[r*h1.cols : (r+1)*h1.cols])
		b := floats.MaxIdx(h2.data[r*h2.cols : (r+1)*h2.cols])
		c.data[r] = float64(a*dim2 + b)
	}
}

// split factors labels into the two class indices. Padded labels stay out
// of range in both halves.
func (l *FactoredSoftmaxCrossEntropyLayer) split(y []float64) ([]float64, []float64) {
	dim1, dim2 := l.X1.Value().cols, l.X2.Value().cols
	l.y1 = append(l.y1[:0], y...)
	l.y2 = append(l.y2[:0], y...)
	for i, v := range y {
		id := int(v)
		if id < 0 || id >= dim1*dim2 {
			l.y1[i], l.y2[i] = -1, -1
			continue
		}
		l.y1[i] = float64(id / dim2)
		l.y2[i] = float64(id % dim2)
	}
	return l.y1, l.y2
}

func (l *FactoredSoftmaxCrossEntropyLayer) Backward() {
	mustConnect("factored softmax cross entropy", &l.Y)
	y1, y2 := l.split(l.Y.Value().data)
	if l.X1.HasGrad() {
		addXentGrad(l.X1.Grad(), l.H1.w, y1)
	}
	if l.X2.HasGrad() {
		addXentGrad(l.X2.Grad(), l.H2.w, y2)
	}
}

func (l *FactoredSoftmaxCrossEntropyLayer) BackwardStep(t int) {
	mustConnect("factored softmax cross entropy", &l.Y)
	y1, y2 := l.split(l.Y.At(t).data)
	if l.X1.HasGrad() {
		addXentGrad(l.X1.D(t), l.H1.At(t), y1)
	}
	if l.X2.HasGrad() {
		addXentGrad(l.X2.D(t), l.H2.At(t), y2)
	}
}

func (l *FactoredSoftmaxCrossEntropyLayer) Loss() float64 {
	y1, y2 := l.split(l.Y.Value().data)
	return xentLoss(l.H1.w, y1) + xentLoss(l.H2.w, y2)
}

func (l *FactoredSoftmaxCrossEntropyLayer) Error() float64 {
	return misclassified(l.C.w.data, l.Y.Value().data, l.H1.w.cols*l.H2.w.cols)
}

func (l *FactoredSoftmaxCrossEntropyLayer) Ins() []*Input {
	return []*Input{&l.X1, &l.X2, &l.Y}
}
func (l *FactoredSoftmaxCrossEntropyLayer) Outs() []*Node { return nil }

// ------ UTILITY FUNCTIONS ------

func classify(c, h *Matrix) {
	for r := 0; r < h.rows; r++ {
		c.data[r] = float64(floats.MaxIdx(h.data[r*h.cols : (r+1)*h.cols]))
	}
}

func validLabel(v float64, classes int) (int, bool) {
	id := int(v)
	return id, v >= 0 && id < classes
}

// addXentGrad accumulates dx += h - onehot(y), skipping padded rows.
func addXentGrad(dx, h *Matrix, y []float64) {
	for r, v := range y {
		id, ok := validLabel(v, h.cols)
		if !ok {
			continue
		}
		row := dx.data[r*dx.cols : (r+1)*dx.cols]
		floats.Add(row, h.data[r*h.cols:(r+1)*h.cols])
		row[id] -= 1
	}
}

func xentLoss(h *Matrix, y []float64) float64 {
	loss := 0.0
	for r, v := range y {
		if id, ok := validLabel(v, h.cols); ok {
			loss -= math.Log(h.data[r*h.cols+id])
		}
	}
	return loss
}

func misclassified(pred, y []float64, classes int) float64 {
	n := 0.0
	for r, v := range y {
		if _, ok := validLabel(v, classes); ok && pred[r] != v {
			n++
		}
	}
	return n
}
