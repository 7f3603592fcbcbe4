package ml

import (
	"math"
)

// Nonlin is an elementwise nonlinearity. Backward and BackwardAdd receive the
// upstream gradient d and the forward output y (not the pre-activation).
type Nonlin struct {
	Name        string
	Forward     func(dst, x *Matrix)
	Backward    func(dst, d, y *Matrix) // dst = f'(y) * d
	BackwardAdd func(dst, d, y *Matrix) // dst += f'(y) * d
}

var (
	Tanh     = Nonlin{"tanh", tanhF, zipFunc(tanhGrad, false), zipFunc(tanhGrad, true)}
	Sigmoid  = Nonlin{"sigmoid", sigmoidF, zipFunc(sigmoidGrad, false), zipFunc(sigmoidGrad, true)}
	Relu     = Nonlin{"relu", reluF, zipFunc(reluGrad, false), zipFunc(reluGrad, true)}
	Identity = Nonlin{"linear", identityF, zipFunc(identityGrad, false), zipFunc(identityGrad, true)}
)

var activationMap = map[string]Nonlin{
	"linear":  Identity,
	"tanh":    Tanh,
	"sigmoid": Sigmoid,
	"relu":    Relu,
}

// LookupNonlin returns the nonlinearity registered under name.
func LookupNonlin(name string) (Nonlin, bool) {
	f, ok := activationMap[name]
	return f, ok
}

func tanhF(dst, x *Matrix) {
	dst.mustMatch(x)
	for i, v := range x.data {
		dst.data[i] = math.Tanh(v)
	}
}

func sigmoidF(dst, x *Matrix) {
	dst.mustMatch(x)
	for i, v := range x.data {
		dst.data[i] = 1.0 / (1.0 + math.Exp(-v))
	}
}

func reluF(dst, x *Matrix) {
	dst.mustMatch(x)
	for i, v := range x.data {
		if v > 0 {
			dst.data[i] = v
		} else {
			dst.data[i] = 0
		}
	}
}

func identityF(dst, x *Matrix) {
	dst.CopyFrom(x)
}

func tanhGrad(y float64) float64    { return 1 - y*y }
func sigmoidGrad(y float64) float64 { return (1 - y) * y }
func identityGrad(float64) float64  { return 1 }

func reluGrad(y float64) float64 {
	if y > 0 {
		return 1
	}
	return 0
}

// zipFunc builds a backward pass from the derivative expressed in terms of the output.
func zipFunc(grad func(y float64) float64, accumulate bool) func(dst, d, y *Matrix) {
	return func(dst, d, y *Matrix) {
		dst.mustMatch(d)
		dst.mustMatch(y)
		if accumulate {
			for i, v := range y.data {
				dst.data[i] += grad(v) * d.data[i]
			}
			return
		}
		for i, v := range y.data {
			dst.data[i] = grad(v) * d.data[i]
		}
	}
}
