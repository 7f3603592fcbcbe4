package ml

import (
	"fmt"
	"math/rand/v2"
)

// DropoutLayer zeroes each input element with probability p in Train mode
// and scales the survivors by 1/(1-p). In Test mode it copies its input.
type DropoutLayer struct {
	base
	X    Input
	H    *Node
	mask *Matrix

	p   float64
	rng *rand.Rand
}

func Dropout(p float64, opts ...LayerOption) *DropoutLayer {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("ml: dropout rate %v outside [0, 1)", p))
	}
	cfg := newLayerConfig(Identity, append([]LayerOption{DropRate(p)}, opts...))
	return &DropoutLayer{
		H:    NewNode(0, 0),
		mask: NewMatrix(0, 0),
		p:    cfg.DropRate,
		rng:  cfg.Rand,
	}
}

func (l *DropoutLayer) setup() {
	mustConnect("dropout", &l.X)
	x := l.X.Value()
	l.H.Init(x.rows, x.cols)
	l.mask.Resize(x.rows, x.cols)
	l.H.ResetGrad()
	l.H.CloneInfo(l.X.Node())
}

func (l *DropoutLayer) Forward() {
	l.setup()
	l.apply(l.H.w, l.mask, l.X.Value())
}

func (l *DropoutLayer) Backward() {
	l.mustTrain()
	if l.X.HasGrad() {
		l.backprop(l.X.Grad(), l.H.grad, l.mask)
	}
}

func (l *DropoutLayer) ForwardStep(t int) {
	if t == 0 {
		l.setup()
	}
	l.apply(l.H.At(t), l.maskAt(t), l.X.At(t))
}

func (l *DropoutLayer) BackwardStep(t int) {
	l.mustTrain()
	if l.X.HasGrad() {
		l.backprop(l.X.D(t), l.H.D(t), l.maskAt(t))
	}
}

func (l *DropoutLayer) maskAt(t int) *Matrix {
	bs := l.H.BatchSize
	return l.mask.RowView(t*bs, bs)
}

func (l *DropoutLayer) apply(h, mask, x *Matrix) {
	if l.mode != Train {
		h.CopyFrom(x)
		return
	}
	scale := 1 / (1 - l.p)
	for i, v := range x.data {
		if l.rng.Float64() >= l.p {
			mask.data[i] = 1
			h.data[i] = v * scale
		} else {
			mask.data[i] = 0
			h.data[i] = 0
		}
	}
}

func (l *DropoutLayer) backprop(dx, dh, mask *Matrix) {
	scale := 1 / (1 - l.p)
	for i, g := range dh.data {
		dx.data[i] += g * mask.data[i] * scale
	}
}

func (l *DropoutLayer) mustTrain() {
	if l.mode != Train {
		panic("ml: dropout backward outside Train mode")
	}
}

func (l *DropoutLayer) Ins() []*Input { return []*Input{&l.X} }
func (l *DropoutLayer) Outs() []*Node { return []*Node{l.H} }
