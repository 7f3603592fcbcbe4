package ml

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestAdamZeroGradient(t *testing.T) {
	opt := NewAdam()
	opt.Init(2, 2)
	w := NewMatrixFromSlice(2, 2, []float64{1, -2, 3, 0.5})
	want := append([]float64(nil), w.Data()...)
	for i := 0; i < 3; i++ {
		opt.Update(w, NewMatrix(2, 2))
	}
	if !floats.EqualApprox(w.Data(), want, 1e-12) {
		t.Errorf("Adam with zero gradient moved weights: %v", w.Data())
	}
}

func TestAdamFirstStep(t *testing.T) {
	opt := NewAdam()
	opt.SetLearningRate(0.1)
	opt.Init(1, 1)
	w := NewMatrixFromSlice(1, 1, []float64{1})
	opt.Update(w, NewMatrixFromSlice(1, 1, []float64{2}))
	// m = 0.2, v = 0.004, alpha = 0.1*sqrt(0.001)/0.1
	m, v := 0.2, 0.004
	alpha := 0.1 * math.Sqrt(1-0.999) / (1 - 0.9)
	want := 1 - alpha*m/(math.Sqrt(v)+1e-8)
	if !scalar.EqualWithinAbs(w.At(0, 0), want, 1e-12) {
		t.Errorf("w = %v, want %v", w.At(0, 0), want)
	}
}

func TestOptimizerRules(t *testing.T) {
	tests := []struct {
		name string
		opt  Optimizer
		g    []float64
		want float64
	}{
		{"sgd", NewSGD(), []float64{2}, 1 - 0.1*2},
		{"momentum", NewMomentum(), []float64{2}, 1 - 0.1*2},
		{"adagrad", NewAdagrad(), []float64{2}, 1 - 0.1*2/math.Sqrt(4+1e-6)},
		{"rmsprop", NewRMSProp(), []float64{2}, 1 - 0.1*2/math.Sqrt(0.1*4+1e-6)},
		{"clipped", NewSGD(), []float64{50}, 1 - 0.1*5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opt.SetLearningRate(0.1)
			tt.opt.Init(1, 1)
			w := NewMatrixFromSlice(1, 1, []float64{1})
			g := NewMatrixFromSlice(1, 1, tt.g)
			tt.opt.Update(w, g)
			if !scalar.EqualWithinAbs(w.At(0, 0), tt.want, 1e-12) {
				t.Errorf("w = %v, want %v", w.At(0, 0), tt.want)
			}
			if math.Abs(g.At(0, 0)) > gradClip {
				t.Errorf("gradient not clipped in place: %v", g.At(0, 0))
			}
		})
	}
}

func TestMomentumAccumulates(t *testing.T) {
	opt := NewMomentum()
	opt.SetLearningRate(1)
	opt.Init(1, 1)
	w := NewMatrixFromSlice(1, 1, []float64{0})
	opt.Update(w, NewMatrixFromSlice(1, 1, []float64{1}))
	opt.Update(w, NewMatrixFromSlice(1, 1, []float64{1}))
	// v1 = 1, v2 = 0.9 + 1
	if !scalar.EqualWithinAbs(w.At(0, 0), -2.9, 1e-12) {
		t.Errorf("w = %v, want -2.9", w.At(0, 0))
	}
}

func TestNewOptimizer(t *testing.T) {
	for _, typ := range []OptimizerType{OptSGD, OptMomentum, OptAdagrad, OptRMSProp, OptAdam, ""} {
		opt, err := NewOptimizer(typ)
		if err != nil {
			t.Fatalf("NewOptimizer(%q): %v", typ, err)
		}
		if opt.LearningRate() != DefaultLearningRate {
			t.Errorf("%q learning rate = %v", typ, opt.LearningRate())
		}
	}
	if _, err := NewOptimizer("lbfgs"); err == nil {
		t.Error("unknown optimizer accepted")
	}
}

func TestUpdateZeroesGradients(t *testing.T) {
	x := seqNode(2, 1, 3)
	l := Dense(4, WithRand(NewRand(1)))
	l.X.Connect(x)
	l.Forward()
	l.H.grad.Fill(1)
	l.Backward()
	before := append([]float64(nil), l.W.w.data...)

	Update(l)
	for i, p := range l.Params() {
		if p.grad.SquaredSum() != 0 {
			t.Errorf("param %d gradient not zeroed after Update", i)
		}
	}
	if floats.Equal(before, l.W.w.data) {
		t.Errorf("Update did not change weights")
	}

	SetLearningRate(l, 0)
	l.Forward()
	l.H.grad.Fill(1)
	l.Backward()
	frozen := append([]float64(nil), l.W.w.data...)
	Update(l)
	if !floats.Equal(frozen, l.W.w.data) {
		t.Errorf("zero learning rate still updated weights")
	}
	if l.W.grad.SquaredSum() != 0 {
		t.Errorf("frozen param gradient not zeroed")
	}
}

func TestSetOptimizerKeepsLearningRate(t *testing.T) {
	l := Dense(2)
	l.X.Connect(seqNode(1, 1, 2))
	l.Init()
	SetLearningRate(l, 0.05)
	if err := SetOptimizer(l, OptAdam); err != nil {
		t.Fatal(err)
	}
	for _, p := range l.Params() {
		adam, ok := p.Opt.(*Adam)
		if !ok {
			t.Fatalf("optimizer is %T", p.Opt)
		}
		if adam.LearningRate() != 0.05 || adam.m.Rows() != p.w.Rows() {
			t.Errorf("replaced optimizer lr=%v history rows=%d", adam.LearningRate(), adam.m.Rows())
		}
	}
	if err := SetOptimizer(l, "nope"); err == nil {
		t.Error("unknown optimizer accepted")
	}
}

func TestRegularizeOnlyPositiveLambda(t *testing.T) {
	p := NewParam()
	p.Initializer = func(m *Matrix) { m.Fill(2) }
	p.Allocate(1, 2)

	for _, lambda := range []float64{0, -0.5} {
		p.Lambda = lambda
		p.Regularize()
		if p.grad.SquaredSum() != 0 {
			t.Errorf("lambda %v added gradient %v", lambda, p.grad.Data())
		}
	}

	p.Lambda = 0.5
	p.Regularize()
	if want := []float64{1, 1}; !floats.Equal(p.grad.Data(), want) {
		t.Errorf("gradient = %v, want %v", p.grad.Data(), want)
	}
}
