package ml

// stack runs bottom and then top. Outputs of bottom feed inputs of top.
type stack struct {
	bottom, top Layer
}

// Stack composes bottom and top sequentially. The unconnected inputs of top
// are wired to the outputs of bottom in order until either runs out; inputs
// of top that are already connected are left alone.
func Stack(bottom, top Layer) Layer {
	outs := bottom.Outs()
	j := 0
	for _, x := range top.Ins() {
		if j >= len(outs) {
			break
		}
		if x.Connected() {
			continue
		}
		x.Connect(outs[j])
		j++
	}
	return &stack{bottom: bottom, top: top}
}

// Chain stacks layers left to right.
func Chain(layers ...Layer) Layer {
	if len(layers) == 0 {
		panic("ml: Chain of no layers")
	}
	l := layers[0]
	for _, next := range layers[1:] {
		l = Stack(l, next)
	}
	return l
}

func (s *stack) Forward() {
	s.bottom.Forward()
	s.top.Forward()
}

func (s *stack) Backward() {
	s.top.Backward()
	s.bottom.Backward()
}

func (s *stack) ForwardStep(t int) {
	s.bottom.ForwardStep(t)
	s.top.ForwardStep(t)
}

func (s *stack) BackwardStep(t int) {
	s.top.BackwardStep(t)
	s.bottom.BackwardStep(t)
}

func (s *stack) Init() {
	s.bottom.Init()
	s.top.Init()
}

func (s *stack) SetMode(m Mode) {
	s.bottom.SetMode(m)
	s.top.SetMode(m)
}

func (s *stack) Loss() float64  { return s.bottom.Loss() + s.top.Loss() }
func (s *stack) Error() float64 { return s.bottom.Error() + s.top.Error() }

func (s *stack) Params() []*Param {
	return append(append([]*Param{}, s.bottom.Params()...), s.top.Params()...)
}

// Ins exposes the inputs of bottom, then those of top not fed by bottom.
func (s *stack) Ins() []*Input {
	produced := nodeSet(s.bottom.Outs())
	ins := append([]*Input{}, s.bottom.Ins()...)
	for _, x := range s.top.Ins() {
		if x.Connected() && produced[x.Node()] {
			continue
		}
		ins = append(ins, x)
	}
	return ins
}

// Outs exposes the outputs of top, then those of bottom that top does not consume.
func (s *stack) Outs() []*Node {
	consumed := make(map[*Node]bool)
	for _, x := range s.top.Ins() {
		if x.Connected() {
			consumed[x.Node()] = true
		}
	}
	outs := append([]*Node{}, s.top.Outs()...)
	for _, n := range s.bottom.Outs() {
		if !consumed[n] {
			outs = append(outs, n)
		}
	}
	return outs
}

func nodeSet(nodes []*Node) map[*Node]bool {
	set := make(map[*Node]bool, len(nodes))
	for _, n := range nodes {
		set[n] = true
	}
	return set
}
