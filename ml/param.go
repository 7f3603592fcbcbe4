package ml

// Param is a trainable Node together with the optimizer state that updates it.
type Param struct {
	Node
	Opt         Optimizer
	Lambda      float64 // L2 regularization coefficient
	Initializer Initializer
}

func NewParam() *Param {
	return &Param{
		Node: Node{w: NewMatrix(0, 0), BatchSize: 1},
		Opt:  NewRMSProp(),
	}
}

// Allocate shapes the parameter to rows x cols and draws fresh values from the
// initializer. It is a no-op when the shape is already rows x cols, so a model
// restored from disk keeps its weights. The return value reports whether new
// storage was initialized.
func (p *Param) Allocate(rows, cols int) bool {
	if p.w.rows == rows && p.w.cols == cols && !p.w.Empty() {
		return false
	}
	p.w.Resize(rows, cols)
	if p.Initializer != nil {
		p.Initializer(p.w)
	}
	p.ResetGrad()
	p.Opt.Init(rows, cols)
	return true
}

// Regularize adds the L2 gradient Lambda * w when Lambda is positive.
func (p *Param) Regularize() {
	if p.Lambda <= 0 || p.grad == nil {
		return
	}
	p.grad.AddScaled(p.Lambda, p.w)
}

// Step applies the optimizer to the accumulated gradient and zeroes it.
// Parameters with a non-positive learning rate are frozen.
func (p *Param) Step() {
	if p.grad == nil {
		return
	}
	if p.Opt.LearningRate() > 0 {
		p.Opt.Update(p.w, p.grad)
	}
	p.grad.Reset()
}
