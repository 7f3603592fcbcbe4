package ml

// EmbeddingLayer maps integer ids to rows of a (vocab x dim) table. The input
// holds one id per row.
type EmbeddingLayer struct {
	base
	X Input
	H *Node
	W *Param

	dim, vocab int
}

// Embedding Layer Constructor
func Embedding(dim, vocab int, opts ...LayerOption) *EmbeddingLayer {
	cfg := newLayerConfig(Identity, opts)
	return &EmbeddingLayer{
		H:     NewNode(0, 0),
		W:     cfg.weight(),
		dim:   dim,
		vocab: vocab,
	}
}

func (l *EmbeddingLayer) Init() {
	l.W.Allocate(l.vocab, l.dim)
}

func (l *EmbeddingLayer) Forward() {
	l.Init()
	mustConnect("embedding", &l.X)
	x := l.X.Value()
	l.H.Init(x.rows, l.dim)
	l.H.ResetGrad()
	l.H.CloneInfo(l.X.Node())
	l.H.w.Take(l.W.w, x.data)
}

// Backward only accumulates table gradient when the table is trainable. The
// L2 penalty applies to entries that received gradient.
func (l *EmbeddingLayer) Backward() {
	if l.W.Opt.LearningRate() > 0 {
		l.W.grad.AddTake(l.H.grad, l.X.Value().data)
	}
	l.regularizeUsed()
}

func (l *EmbeddingLayer) ForwardStep(t int) {
	l.Init()
	mustConnect("embedding", &l.X)
	if t == 0 {
		l.H.Init(l.X.Value().rows, l.dim)
		l.H.ResetGrad()
		l.H.CloneInfo(l.X.Node())
	}
	l.H.At(t).Take(l.W.w, l.X.At(t).data)
}

func (l *EmbeddingLayer) BackwardStep(t int) {
	if l.W.Opt.LearningRate() > 0 {
		l.W.grad.AddTake(l.H.D(t), l.X.At(t).data)
	}
	if t == 0 {
		l.regularizeUsed()
	}
}

func (l *EmbeddingLayer) regularizeUsed() {
	if l.W.Lambda <= 0 {
		return
	}
	g, w := l.W.grad.data, l.W.w.data
	for i := range g {
		if g[i] != 0 {
			g[i] += l.W.Lambda * w[i]
		}
	}
}

func (l *EmbeddingLayer) Params() []*Param { return []*Param{l.W} }
func (l *EmbeddingLayer) Ins() []*Input    { return []*Input{&l.X} }
func (l *EmbeddingLayer) Outs() []*Node    { return []*Node{l.H} }
