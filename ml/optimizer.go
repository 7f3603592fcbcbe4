package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	OptSGD      OptimizerType = "sgd"
	OptMomentum OptimizerType = "momentum"
	OptAdagrad  OptimizerType = "adagrad"
	OptRMSProp  OptimizerType = "rmsprop"
	OptAdam     OptimizerType = "adam"
)

const (
	DefaultLearningRate = 1e-3
	gradClip            = 5.0
)

type OptimizerType string

// Optimizer updates a single parameter matrix in place from its gradient.
// Every update first clips the gradient elementwise to [-5, 5], modifying
// the gradient.
type Optimizer interface {
	// Init allocates history buffers of the given shape, zero-filled.
	Init(rows, cols int)
	Update(w, g *Matrix)
	// History returns the state buffers in the order they are persisted.
	History() []*Matrix
	LearningRate() float64
	SetLearningRate(lr float64)
}

// NewOptimizer returns an optimizer of the given type with its default settings.
func NewOptimizer(t OptimizerType) (Optimizer, error) {
	switch t {
	case OptSGD:
		return NewSGD(), nil
	case OptMomentum:
		return NewMomentum(), nil
	case OptAdagrad:
		return NewAdagrad(), nil
	case OptRMSProp, "":
		return NewRMSProp(), nil
	case OptAdam:
		return NewAdam(), nil
	default:
		return nil, fmt.Errorf("ml: unknown optimizer %q", t)
	}
}

type lrHolder struct{ lr float64 }

func (h *lrHolder) LearningRate() float64      { return h.lr }
func (h *lrHolder) SetLearningRate(lr float64) { h.lr = lr }

// ------ SGD ------ //
type SGD struct{ lrHolder }

func NewSGD() *SGD { return &SGD{lrHolder{DefaultLearningRate}} }

func (o *SGD) Init(rows, cols int) {}
func (o *SGD) History() []*Matrix  { return nil }
func (o *SGD) Update(w, g *Matrix) {
	w.mustMatch(g)
	g.Clip(gradClip)
	floats.AddScaled(w.data, -o.lr, g.data)
}

// ------ MOMENTUM ------ //
// Momentum keeps a decaying sum of gradients: v = rho*v + lr*g; w -= v.
type Momentum struct {
	lrHolder
	Rho float64
	v   *Matrix
}

func NewMomentum() *Momentum {
	return &Momentum{lrHolder: lrHolder{DefaultLearningRate}, Rho: 0.9, v: NewMatrix(0, 0)}
}

func (o *Momentum) Init(rows, cols int) { o.v.Resize(rows, cols) }
func (o *Momentum) History() []*Matrix  { return []*Matrix{o.v} }

func (o *Momentum) Update(w, g *Matrix) {
	w.mustMatch(g)
	o.v.mustMatch(g)
	g.Clip(gradClip)
	v := o.v.data
	for i, gi := range g.data {
		v[i] = o.Rho*v[i] + o.lr*gi
		w.data[i] -= v[i]
	}
}

// ------ ADAGRAD ------ //
type Adagrad struct {
	lrHolder
	Eps float64
	h   *Matrix
}

func NewAdagrad() *Adagrad {
	return &Adagrad{lrHolder: lrHolder{DefaultLearningRate}, Eps: 1e-6, h: NewMatrix(0, 0)}
}

func (o *Adagrad) Init(rows, cols int) { o.h.Resize(rows, cols) }
func (o *Adagrad) History() []*Matrix  { return []*Matrix{o.h} }

func (o *Adagrad) Update(w, g *Matrix) {
	w.mustMatch(g)
	o.h.mustMatch(g)
	g.Clip(gradClip)
	h := o.h.data
	for i, gi := range g.data {
		h[i] += gi * gi
		w.data[i] -= o.lr * gi / math.Sqrt(h[i]+o.Eps)
	}
}

// ------ RMSPROP ------ //
type RMSProp struct {
	lrHolder
	Rho float64
	Eps float64
	h   *Matrix
}

func NewRMSProp() *RMSProp {
	return &RMSProp{lrHolder: lrHolder{DefaultLearningRate}, Rho: 0.9, Eps: 1e-6, h: NewMatrix(0, 0)}
}

func (o *RMSProp) Init(rows, cols int) { o.h.Resize(rows, cols) }
func (o *RMSProp) History() []*Matrix  { return []*Matrix{o.h} }

func (o *RMSProp) Update(w, g *Matrix) {
	w.mustMatch(g)
	o.h.mustMatch(g)
	g.Clip(gradClip)
	h := o.h.data
	for i, gi := range g.data {
		h[i] = o.Rho*h[i] + (1-o.Rho)*gi*gi
		w.data[i] -= o.lr * gi / math.Sqrt(h[i]+o.Eps)
	}
}

// ------ ADAM ------ //
// Adam uses the bias-corrected step size lr*sqrt(1-beta2^t)/(1-beta1^t).
type Adam struct {
	lrHolder
	Beta1, Beta2 float64
	Eps          float64

	beta1t, beta2t float64 // running powers of the betas
	m, v           *Matrix
}

func NewAdam() *Adam {
	return &Adam{
		lrHolder: lrHolder{DefaultLearningRate},
		Beta1:    0.9,
		Beta2:    0.999,
		Eps:      1e-8,
		beta1t:   1,
		beta2t:   1,
		m:        NewMatrix(0, 0),
		v:        NewMatrix(0, 0),
	}
}

func (o *Adam) Init(rows, cols int) {
	o.m.Resize(rows, cols)
	o.v.Resize(rows, cols)
	o.beta1t, o.beta2t = 1, 1
}

func (o *Adam) History() []*Matrix { return []*Matrix{o.m, o.v} }

func (o *Adam) Update(w, g *Matrix) {
	w.mustMatch(g)
	o.m.mustMatch(g)
	g.Clip(gradClip)

	o.beta1t *= o.Beta1
	o.beta2t *= o.Beta2
	alpha := o.lr * math.Sqrt(1-o.beta2t) / (1 - o.beta1t)

	m, v := o.m.data, o.v.data
	for i, gi := range g.data {
		m[i] = o.Beta1*m[i] + (1-o.Beta1)*gi
		v[i] = o.Beta2*v[i] + (1-o.Beta2)*gi*gi
		w.data[i] -= alpha * m[i] / (math.Sqrt(v[i]) + o.Eps)
	}
}
