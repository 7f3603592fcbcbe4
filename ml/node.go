package ml

import "fmt"

// Node holds a value matrix and an optional gradient of the same shape.
// A Node without a gradient is a truncation boundary: nothing is ever
// propagated into it.
//
// Rows are grouped into time steps of BatchSize rows each, so a Node with
// T*BatchSize rows stores a sequence of length T.
type Node struct {
	w    *Matrix
	grad *Matrix

	BatchSize int
	DAG       *DAG // structure info for recursive layers

	out *Node // zero padding handed out past the end of the sequence
}

func NewNode(rows, cols int) *Node {
	return &Node{w: NewMatrix(rows, cols), BatchSize: 1}
}

// NewNodeFromMatrix wraps m without copying.
func NewNodeFromMatrix(m *Matrix, batchSize int) *Node {
	n := &Node{w: m, BatchSize: batchSize}
	n.Len()
	return n
}

func (n *Node) Value() *Matrix { return n.w }
func (n *Node) Grad() *Matrix  { return n.grad }
func (n *Node) HasGrad() bool  { return n.grad != nil }

// Len is the number of time steps stored.
func (n *Node) Len() int {
	if n.BatchSize <= 0 {
		panic(fmt.Sprintf("ml: invalid batch size %d", n.BatchSize))
	}
	if n.w.rows%n.BatchSize != 0 {
		panic(fmt.Sprintf("ml: %d rows is not a multiple of batch size %d", n.w.rows, n.BatchSize))
	}
	return n.w.rows / n.BatchSize
}

// At returns the value rows of time step t. Outside [0, Len()) it returns
// the zero-valued overflow block of shape (BatchSize, cols).
func (n *Node) At(t int) *Matrix {
	if t < 0 || t >= n.Len() {
		return n.overflow().w
	}
	return n.w.RowView(t*n.BatchSize, n.BatchSize)
}

// D returns the gradient rows of time step t, with the same overflow rule as At.
func (n *Node) D(t int) *Matrix {
	if t < 0 || t >= n.Len() {
		return n.overflow().grad
	}
	return n.grad.RowView(t*n.BatchSize, n.BatchSize)
}

func (n *Node) overflow() *Node {
	cols := n.w.cols
	if n.out == nil || n.out.w.rows != n.BatchSize || n.out.w.cols != cols {
		n.out = NewNode(n.BatchSize, cols)
		n.out.BatchSize = n.BatchSize
		n.out.ResetGrad()
	}
	return n.out
}

// Init shapes the value (and gradient, if present) to rows x cols, zero-filled.
func (n *Node) Init(rows, cols int) {
	if n.w == nil {
		n.w = NewMatrix(rows, cols)
		return
	}
	if n.w.rows == rows && n.w.cols == cols {
		n.w.Reset()
		return
	}
	n.w.Resize(rows, cols)
	if n.grad != nil {
		n.grad.Resize(rows, cols)
	}
}

// ResetGrad allocates a zero gradient matching the value shape, or zeroes the
// existing one. The overflow block is reset as well.
func (n *Node) ResetGrad() {
	if n.grad == nil {
		n.grad = NewMatrix(n.w.rows, n.w.cols)
	} else if n.grad.rows != n.w.rows || n.grad.cols != n.w.cols {
		n.grad.Resize(n.w.rows, n.w.cols)
	} else {
		n.grad.Reset()
	}
	if n.out != nil {
		n.out.ResetGrad()
	}
}

// Truncate drops the gradient so that backpropagation stops at n.
func (n *Node) Truncate() { n.grad = nil }

// CloneInfo copies batch and structure metadata from other.
func (n *Node) CloneInfo(other *Node) {
	n.BatchSize = other.BatchSize
	n.DAG = other.DAG
}

// Input is a non-owning connection to a Node, optionally delayed by a number
// of time steps.
type Input struct {
	in    *Node
	Delay int
}

func (x *Input) Connect(n *Node) { x.ConnectDelayed(n, 0) }

func (x *Input) ConnectDelayed(n *Node, delay int) {
	x.in = n
	x.Delay = delay
}

func (x *Input) Connected() bool { return x.in != nil }

func (x *Input) Node() *Node {
	if x.in == nil {
		panic("ml: input is not connected")
	}
	return x.in
}

func (x *Input) Value() *Matrix   { return x.Node().w }
func (x *Input) Grad() *Matrix    { return x.Node().grad }
func (x *Input) At(t int) *Matrix { return x.Node().At(t - x.Delay) }
func (x *Input) D(t int) *Matrix  { return x.Node().D(t - x.Delay) }

// HasGrad reports whether gradient should be written into the connected node.
func (x *Input) HasGrad() bool { return x.Node().grad != nil }

// steps returns the batch size and number of time steps of the connected node.
func (x *Input) steps() (bs, T int) {
	n := x.Node()
	return n.BatchSize, n.Len()
}
