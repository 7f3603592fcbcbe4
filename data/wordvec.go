package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/b0tShaman/seqnet/ml"
)

// LoadWordVectors fills the rows of the embedding table w for every vocabulary
// word found in r. Each line is a word followed by w.Cols() values separated
// by spaces. Words outside the vocabulary are skipped, and rows of words
// missing from r keep their current values. An optional "count dim" header
// line, as written by word2vec, is skipped. It returns the number of rows
// filled.
func LoadWordVectors(r io.Reader, v *Vocab, w *ml.Matrix) (int, error) {
	if w.Rows() != v.Size() {
		return 0, fmt.Errorf("word vectors: table has %d rows for %d words", w.Rows(), v.Size())
	}
	dim := w.Cols()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	filled := 0
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || line == 1 && isHeader(fields) {
			continue
		}
		if len(fields)-1 != dim {
			return filled, fmt.Errorf("word vectors: line %d has %d values, want %d", line, len(fields)-1, dim)
		}
		id, ok := v.WordToID[fields[0]]
		if !ok {
			continue
		}
		for j, f := range fields[1:] {
			x, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return filled, fmt.Errorf("word vectors: line %d: %w", line, err)
			}
			w.Set(id, j, x)
		}
		filled++
	}
	if err := sc.Err(); err != nil {
		return filled, fmt.Errorf("word vectors: %w", err)
	}
	return filled, nil
}

// LoadWordVectorsFile is LoadWordVectors on the file at path.
func LoadWordVectorsFile(path string, v *Vocab, w *ml.Matrix) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("word vectors: %w", err)
	}
	defer f.Close()
	n, err := LoadWordVectors(f, v, w)
	if err != nil {
		return n, fmt.Errorf("%s: %w", path, err)
	}
	return n, nil
}

func isHeader(fields []string) bool {
	if len(fields) != 2 {
		return false
	}
	_, err1 := strconv.Atoi(fields[0])
	_, err2 := strconv.Atoi(fields[1])
	return err1 == nil && err2 == nil
}
