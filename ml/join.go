package ml

// join runs two independent layers side by side.
type join struct {
	left, right Layer
}

// Join composes left and right in parallel without wiring them. Params, Ins
// and Outs are the concatenations left then right.
func Join(left, right Layer) Layer {
	return &join{left: left, right: right}
}

// Parallel joins layers left to right.
func Parallel(layers ...Layer) Layer {
	if len(layers) == 0 {
		panic("ml: Parallel of no layers")
	}
	l := layers[0]
	for _, next := range layers[1:] {
		l = Join(l, next)
	}
	return l
}

func (j *join) Forward() {
	j.left.Forward()
	j.right.Forward()
}

func (j *join) Backward() {
	j.right.Backward()
	j.left.Backward()
}

func (j *join) ForwardStep(t int) {
	j.left.ForwardStep(t)
	j.right.ForwardStep(t)
}

func (j *join) BackwardStep(t int) {
	j.right.BackwardStep(t)
	j.left.BackwardStep(t)
}

func (j *join) Init() {
	j.left.Init()
	j.right.Init()
}

func (j *join) SetMode(m Mode) {
	j.left.SetMode(m)
	j.right.SetMode(m)
}

func (j *join) Loss() float64  { return j.left.Loss() + j.right.Loss() }
func (j *join) Error() float64 { return j.left.Error() + j.right.Error() }

func (j *join) Params() []*Param {
	return append(append([]*Param{}, j.left.Params()...), j.right.Params()...)
}

func (j *join) Ins() []*Input {
	return append(append([]*Input{}, j.left.Ins()...), j.right.Ins()...)
}

func (j *join) Outs() []*Node {
	return append(append([]*Node{}, j.left.Outs()...), j.right.Outs()...)
}
