package ml

// timewise drives a step-capable layer across the whole sequence.
type timewise struct {
	l Layer
}

// Timewise turns a layer that implements ForwardStep/BackwardStep into a
// whole-sequence layer. The number of steps is taken from the first input.
func Timewise(l Layer) Layer {
	return &timewise{l: l}
}

func (tw *timewise) steps() int {
	ins := tw.l.Ins()
	if len(ins) == 0 {
		panic("ml: timewise layer has no inputs")
	}
	_, T := ins[0].steps()
	return T
}

func (tw *timewise) Forward() {
	T := tw.steps()
	for t := 0; t < T; t++ {
		tw.l.ForwardStep(t)
	}
}

func (tw *timewise) Backward() {
	T := tw.steps()
	for t := T - 1; t >= 0; t-- {
		tw.l.BackwardStep(t)
	}
}

func (tw *timewise) ForwardStep(t int) {
	panic("ml: timewise layer cannot itself be driven per step")
}

func (tw *timewise) BackwardStep(t int) {
	panic("ml: timewise layer cannot itself be driven per step")
}

func (tw *timewise) Init()            { tw.l.Init() }
func (tw *timewise) SetMode(m Mode)   { tw.l.SetMode(m) }
func (tw *timewise) Loss() float64    { return tw.l.Loss() }
func (tw *timewise) Error() float64   { return tw.l.Error() }
func (tw *timewise) Params() []*Param { return tw.l.Params() }
func (tw *timewise) Ins() []*Input    { return tw.l.Ins() }
func (tw *timewise) Outs() []*Node    { return tw.l.Outs() }
