package ml

import (
	"testing"
)

// --- Global Variables to prevent compiler optimizations ---
var resultMat *Matrix
var resultLoss float64

func randomMatrix(rows, cols int, seed uint64) *Matrix {
	m := NewMatrix(rows, cols)
	Uniform(NewRand(seed), 1)(m)
	return m
}

// naiveMatMul is the triple loop Gemm is measured against.
func naiveMatMul(a, b, out *Matrix) {
	for i := 0; i < a.rows; i++ {
		for j := 0; j < b.cols; j++ {
			sum := 0.0
			for k := 0; k < a.cols; k++ {
				sum += a.data[i*a.cols+k] * b.data[k*b.cols+j]
			}
			out.data[i*out.cols+j] = sum
		}
	}
}

func TestMatMulAgainstNaive(t *testing.T) {
	a, b := randomMatrix(7, 5, 1), randomMatrix(5, 3, 2)
	want, got := NewMatrix(7, 3), NewMatrix(7, 3)
	naiveMatMul(a, b, want)
	MatMul(a, b, got)
	for i := range want.data {
		if d := want.data[i] - got.data[i]; d > 1e-12 || d < -1e-12 {
			t.Fatalf("element %d: got %v, want %v", i, got.data[i], want.data[i])
		}
	}
}

// --- 1. Benchmarks: Matrix Multiplication ---

func benchmarkMatMul(b *testing.B, size int, method string) {
	m1 := randomMatrix(size, size, 1)
	m2 := randomMatrix(size, size, 2)
	out := NewMatrix(size, size)

	b.ResetTimer()

	if method == "Native" {
		for n := 0; n < b.N; n++ {
			naiveMatMul(m1, m2, out)
		}
	} else {
		for n := 0; n < b.N; n++ {
			MatMul(m1, m2, out)
		}
	}
	resultMat = out
}

func BenchmarkMatMul_Native_64(b *testing.B)  { benchmarkMatMul(b, 64, "Native") }
func BenchmarkMatMul_Gonum_64(b *testing.B)   { benchmarkMatMul(b, 64, "Gonum") }
func BenchmarkMatMul_Native_256(b *testing.B) { benchmarkMatMul(b, 256, "Native") }
func BenchmarkMatMul_Gonum_256(b *testing.B)  { benchmarkMatMul(b, 256, "Gonum") }
func BenchmarkMatMul_Native_512(b *testing.B) { benchmarkMatMul(b, 512, "Native") }
func BenchmarkMatMul_Gonum_512(b *testing.B)  { benchmarkMatMul(b, 512, "Gonum") }

// --- 2. Benchmarks: Activation Function Overhead ---

func benchmarkNonlin(b *testing.B, f Nonlin) {
	// 1 Million elements
	m := randomMatrix(1000, 1000, 3)
	out := NewMatrix(1000, 1000)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		f.Forward(out, m)
	}
	resultMat = out
}

func BenchmarkNonlin_Tanh(b *testing.B)    { benchmarkNonlin(b, Tanh) }
func BenchmarkNonlin_Sigmoid(b *testing.B) { benchmarkNonlin(b, Sigmoid) }
func BenchmarkNonlin_Relu(b *testing.B)    { benchmarkNonlin(b, Relu) }

// --- 3. Benchmarks: LSTM over a sequence ---

// setupLSTM builds an lstm of width 128 over a sequence of length 20.
func setupLSTM(batchSize int) (*LSTMLayer, *SquaredErrorLayer) {
	x := NewNodeFromMatrix(randomMatrix(20*batchSize, 64, 4), batchSize)
	y := NewNodeFromMatrix(randomMatrix(20*batchSize, 128, 5), batchSize)
	l := LSTM(128, WithRand(NewRand(6)))
	l.X.Connect(x)
	loss := SquaredError()
	loss.X.Connect(l.H)
	loss.Y.Connect(y)
	return l, loss
}

func benchmarkLSTMForward(b *testing.B, batchSize int) {
	l, loss := setupLSTM(batchSize)
	l.Forward()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		l.Forward()
		loss.Forward()
	}
	resultLoss = loss.Loss()
}

func BenchmarkLSTMForward_Batch_1(b *testing.B)  { benchmarkLSTMForward(b, 1) }
func BenchmarkLSTMForward_Batch_16(b *testing.B) { benchmarkLSTMForward(b, 16) }
func BenchmarkLSTMForward_Batch_64(b *testing.B) { benchmarkLSTMForward(b, 64) }

func benchmarkLSTMBackprop(b *testing.B, batchSize int) {
	l, loss := setupLSTM(batchSize)
	l.Forward()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		l.Forward()
		loss.Forward()
		loss.Backward()
		l.Backward()
		ResetGrad(l)
	}
	resultLoss = loss.Loss()
}

func BenchmarkLSTMBackprop_Batch_16(b *testing.B) { benchmarkLSTMBackprop(b, 16) }
func BenchmarkLSTMBackprop_Batch_64(b *testing.B) { benchmarkLSTMBackprop(b, 64) }

// --- 4. Benchmarks: Optimizer Update (Isolated) ---

func benchmarkOptimizerUpdate(b *testing.B, optType OptimizerType) {
	opt, err := NewOptimizer(optType)
	if err != nil {
		b.Fatal(err)
	}
	w := randomMatrix(512, 512, 7)
	g := randomMatrix(512, 512, 8)
	opt.Init(512, 512)
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		opt.Update(w, g)
	}
	resultMat = w
}

func BenchmarkOpt_Micro_SGD(b *testing.B)      { benchmarkOptimizerUpdate(b, OptSGD) }
func BenchmarkOpt_Micro_Momentum(b *testing.B) { benchmarkOptimizerUpdate(b, OptMomentum) }
func BenchmarkOpt_Micro_RMSProp(b *testing.B)  { benchmarkOptimizerUpdate(b, OptRMSProp) }
func BenchmarkOpt_Micro_Adam(b *testing.B)     { benchmarkOptimizerUpdate(b, OptAdam) }

// --- 5. Benchmarks: Full Training Step (Forward + Backward + Update) ---

func benchmarkTrainStep(b *testing.B, batchSize int, optType OptimizerType) {
	l, loss := setupLSTM(batchSize)
	model := Stack(l, loss)
	model.Init()
	if err := SetOptimizer(model, optType); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		model.Forward()
		model.Backward()
		Update(model)
	}
	resultLoss = model.Loss()
}

func BenchmarkTrainStep_SGD_16(b *testing.B)     { benchmarkTrainStep(b, 16, OptSGD) }
func BenchmarkTrainStep_RMSProp_16(b *testing.B) { benchmarkTrainStep(b, 16, OptRMSProp) }
func BenchmarkTrainStep_Adam_16(b *testing.B)    { benchmarkTrainStep(b, 16, OptAdam) }
