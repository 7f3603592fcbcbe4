package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Matrix represents a dense row-major matrix with a flat data slice for performance.
// Row views share the backing slice, so a view of rows [i, i+n) is zero-copy.
type Matrix struct {
	rows, cols int
	data       []float64
	dense      *mat.Dense // built lazily, nil for zero-sized matrices
}

// -------- CONSTRUCTORS ------- //
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{
		rows: rows,
		cols: cols,
		data: make([]float64, rows*cols),
	}
}

func NewMatrixFromSlice(rows, cols int, data []float64) *Matrix {
	if len(data) != rows*cols {
		panic("ml: slice length mismatch")
	}
	return &Matrix{rows: rows, cols: cols, data: data}
}

// ------- ACCESSORS ------ //
func (m *Matrix) Rows() int           { return m.rows }
func (m *Matrix) Cols() int           { return m.cols }
func (m *Matrix) Dims() (int, int)    { return m.rows, m.cols }
func (m *Matrix) Data() []float64     { return m.data }
func (m *Matrix) Empty() bool         { return m.rows == 0 || m.cols == 0 }
func (m *Matrix) At(i, j int) float64 { return m.data[i*m.cols+j] }
func (m *Matrix) Set(i, j int, v float64) {
	m.data[i*m.cols+j] = v
}

// Dense returns the gonum view of m. It shares m's storage.
func (m *Matrix) Dense() *mat.Dense {
	if m.dense == nil && !m.Empty() {
		m.dense = mat.NewDense(m.rows, m.cols, m.data)
	}
	return m.dense
}

func (m *Matrix) String() string {
	if m.Empty() {
		return fmt.Sprintf("[%dx%d]", m.rows, m.cols)
	}
	return fmt.Sprintf("%v", mat.Formatted(m.Dense()))
}

// Resize reshapes m to rows x cols and zero-fills it. Existing capacity is reused.
func (m *Matrix) Resize(rows, cols int) {
	n := rows * cols
	if cap(m.data) >= n {
		m.data = m.data[:n]
		m.Reset()
	} else {
		m.data = make([]float64, n)
	}
	m.rows, m.cols = rows, cols
	m.dense = nil
}

// RowView returns rows [start, start+n) without copying.
func (m *Matrix) RowView(start, n int) *Matrix {
	if start < 0 || n < 0 || start+n > m.rows {
		panic(fmt.Sprintf("ml: row view [%d, %d) out of range for %d rows", start, start+n, m.rows))
	}
	return &Matrix{
		rows: n,
		cols: m.cols,
		data: m.data[start*m.cols : (start+n)*m.cols],
	}
}

// ColView returns a gonum view of columns [start, end).
func (m *Matrix) ColView(start, end int) *mat.Dense {
	return m.Dense().Slice(0, m.rows, start, end).(*mat.Dense)
}

// ------- MATRIX METHODS ------ //
func (m *Matrix) Reset() {
	for i := range m.data {
		m.data[i] = 0.0
	}
}

func (m *Matrix) Fill(v float64) {
	for i := range m.data {
		m.data[i] = v
	}
}

func (m *Matrix) CopyFrom(b *Matrix) {
	m.mustMatch(b)
	copy(m.data, b.data)
}

func (m *Matrix) Add(b *Matrix) {
	m.mustMatch(b)
	floats.Add(m.data, b.data)
}

func (m *Matrix) Subtract(b *Matrix) {
	m.mustMatch(b)
	floats.Sub(m.data, b.data)
}

func (m *Matrix) AddScaled(alpha float64, b *Matrix) {
	m.mustMatch(b)
	floats.AddScaled(m.data, alpha, b.data)
}

func (m *Matrix) Scale(c float64) {
	floats.Scale(c, m.data)
}

// AddVector adds the 1 x cols row v to every row of m.
func (m *Matrix) AddVector(v *Matrix) {
	if v.rows*v.cols != m.cols {
		panic(fmt.Sprintf("ml: bias of size %d does not match %d columns", v.rows*v.cols, m.cols))
	}
	for i := 0; i < m.rows; i++ {
		floats.Add(m.data[i*m.cols:(i+1)*m.cols], v.data)
	}
}

// AddRowSums adds the column-wise sum over all rows of src into the 1 x cols row m.
func (m *Matrix) AddRowSums(src *Matrix) {
	if m.rows*m.cols != src.cols {
		panic(fmt.Sprintf("ml: row sum of %d columns into size %d", src.cols, m.rows*m.cols))
	}
	for i := 0; i < src.rows; i++ {
		floats.Add(m.data, src.data[i*src.cols:(i+1)*src.cols])
	}
}

func (m *Matrix) ApplyFunc(fn func(float64) float64) {
	for i := range m.data {
		m.data[i] = fn(m.data[i])
	}
}

// Clip limits every element to [-limit, limit].
func (m *Matrix) Clip(limit float64) {
	for i, v := range m.data {
		if v > limit {
			m.data[i] = limit
		} else if v < -limit {
			m.data[i] = -limit
		}
	}
}

// SquaredSum returns the sum of squared elements.
func (m *Matrix) SquaredSum() float64 {
	return floats.Dot(m.data, m.data)
}

// Take copies row idx[r] of table into row r of m.
func (m *Matrix) Take(table *Matrix, idx []float64) {
	if len(idx) != m.rows || table.cols != m.cols {
		panic(fmt.Sprintf("ml: take of %d ids into [%d, %d] from [%d, %d]", len(idx), m.rows, m.cols, table.rows, table.cols))
	}
	for r, v := range idx {
		id := int(v)
		if id < 0 || id >= table.rows {
			panic(fmt.Sprintf("ml: id %d out of bounds (rows: %d)", id, table.rows))
		}
		copy(m.data[r*m.cols:(r+1)*m.cols], table.data[id*table.cols:(id+1)*table.cols])
	}
}

// AddTake scatter-adds row r of src into row idx[r] of m. It is the gradient of Take.
func (m *Matrix) AddTake(src *Matrix, idx []float64) {
	for r, v := range idx {
		id := int(v)
		if id < 0 || id >= m.rows {
			continue
		}
		floats.Add(m.data[id*m.cols:(id+1)*m.cols], src.data[r*src.cols:(r+1)*src.cols])
	}
}

func (m *Matrix) mustMatch(b *Matrix) {
	if m.rows != b.rows || m.cols != b.cols {
		panic(fmt.Sprintf("ml: shape mismatch [%d, %d] vs [%d, %d]", m.rows, m.cols, b.rows, b.cols))
	}
}

func (m *Matrix) general() blas64.General {
	return blas64.General{Rows: m.rows, Cols: m.cols, Stride: m.cols, Data: m.data}
}

// ------ UTILITY FUNCTIONS ------

// Gemm computes c = alpha * op(a) * op(b) + beta * c without allocating.
// c must not share memory with a or b.
func Gemm(tA, tB blas.Transpose, alpha float64, a, b *Matrix, beta float64, c *Matrix) {
	ar, ac := a.rows, a.cols
	if tA == blas.Trans {
		ar, ac = ac, ar
	}
	br, bc := b.rows, b.cols
	if tB == blas.Trans {
		br, bc = bc, br
	}
	if ac != br || c.rows != ar || c.cols != bc {
		panic(fmt.Sprintf("ml: shape mismatch in Gemm [%d, %d] x [%d, %d] -> [%d, %d]", ar, ac, br, bc, c.rows, c.cols))
	}
	if c.Empty() {
		return
	}
	if ac == 0 {
		if beta == 0 {
			c.Reset()
		} else if beta != 1 {
			c.Scale(beta)
		}
		return
	}
	blas64.Gemm(tA, tB, alpha, a.general(), b.general(), beta, c.general())
}

// MatMul sets out = a * b.
func MatMul(a, b, out *Matrix) { Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 0, out) }

// AddDot accumulates c += a * b.
func AddDot(c, a, b *Matrix) { Gemm(blas.NoTrans, blas.NoTrans, 1, a, b, 1, c) }

// AddDotTA accumulates c += aᵀ * b.
func AddDotTA(c, a, b *Matrix) { Gemm(blas.Trans, blas.NoTrans, 1, a, b, 1, c) }

// AddDotTB accumulates c += a * bᵀ.
func AddDotTB(c, a, b *Matrix) { Gemm(blas.NoTrans, blas.Trans, 1, a, b, 1, c) }

// SoftmaxRow applies softmax to each row of src, writing into dst.
func SoftmaxRow(dst, src *Matrix) {
	dst.mustMatch(src)
	for i := 0; i < src.rows; i++ {
		in := src.data[i*src.cols : (i+1)*src.cols]
		out := dst.data[i*dst.cols : (i+1)*dst.cols]
		maxVal := floats.Max(in)
		sum := 0.0
		for j, v := range in {
			out[j] = math.Exp(v - maxVal)
			sum += out[j]
		}
		floats.Scale(1/sum, out)
	}
}
