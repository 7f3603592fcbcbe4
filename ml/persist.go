package ml

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// SaveParams writes every parameter of l in Params order. Each parameter is
// a "rows cols" line followed by its values one row per line, then each of
// its optimizer history buffers in the same row layout.
func SaveParams(w io.Writer, l Layer) error {
	bw := bufio.NewWriter(w)
	for _, p := range l.Params() {
		fmt.Fprintf(bw, "%d %d\n", p.w.rows, p.w.cols)
		writeMatrix(bw, p.w)
		for _, h := range p.Opt.History() {
			writeMatrix(bw, h)
		}
	}
	return bw.Flush()
}

// LoadParams reads parameters written by SaveParams into l. Parameters that
// are not allocated yet take the stored shape; allocated ones must match it,
// so run one Forward first to check a file against the model. A file holding
// more parameters than l is rejected.
func LoadParams(r io.Reader, l Layer) error {
	br := bufio.NewReader(r)
	for i, p := range l.Params() {
		var rows, cols int
		if _, err := fmt.Fscan(br, &rows, &cols); err != nil {
			return fmt.Errorf("param %d: reading shape: %w", i, err)
		}
		if rows < 0 || cols < 0 {
			return fmt.Errorf("param %d: invalid shape %dx%d", i, rows, cols)
		}
		if !p.w.Empty() && (p.w.rows != rows || p.w.cols != cols) {
			return fmt.Errorf("param %d: stored shape %dx%d does not match %dx%d", i, rows, cols, p.w.rows, p.w.cols)
		}
		if p.w.rows != rows || p.w.cols != cols {
			p.w.Resize(rows, cols)
			p.ResetGrad()
			p.Opt.Init(rows, cols)
		}
		if err := readMatrix(br, p.w); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
		for j, h := range p.Opt.History() {
			if h.rows != rows || h.cols != cols {
				h.Resize(rows, cols)
			}
			if err := readMatrix(br, h); err != nil {
				return fmt.Errorf("param %d history %d: %w", i, j, err)
			}
		}
	}
	var extra string
	if _, err := fmt.Fscan(br, &extra); !errors.Is(err, io.EOF) {
		return fmt.Errorf("data left after %d params", len(l.Params()))
	}
	return nil
}

func SaveParamsFile(path string, l Layer) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save params: %w", err)
	}
	if err := SaveParams(f, l); err != nil {
		f.Close()
		return fmt.Errorf("save params to %s: %w", path, err)
	}
	return f.Close()
}

func LoadParamsFile(path string, l Layer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("load params: %w", err)
	}
	defer f.Close()
	if err := LoadParams(f, l); err != nil {
		return fmt.Errorf("load params from %s: %w", path, err)
	}
	return nil
}

func writeMatrix(w *bufio.Writer, m *Matrix) {
	buf := make([]byte, 0, 32)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				w.WriteByte(' ')
			}
			buf = strconv.AppendFloat(buf[:0], m.data[i*m.cols+j], 'g', -1, 64)
			w.Write(buf)
		}
		w.WriteByte('\n')
	}
}

func readMatrix(r io.Reader, m *Matrix) error {
	for i := range m.data {
		if _, err := fmt.Fscan(r, &m.data[i]); err != nil {
			return fmt.Errorf("value %d of %dx%d: %w", i, m.rows, m.cols, err)
		}
	}
	return nil
}
