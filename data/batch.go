package data

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/b0tShaman/seqnet/ml"
)

// BatchConfig controls how variable-length sequences are packed together.
type BatchConfig struct {
	BatchSize int
	Pad       float64 // value of padded input rows
	LabelPad  float64 // value of padded label rows; use a negative class to skip them in the loss
	FromRight bool    // align sequences at step 0 and pad the end instead of the start
}

// ToNodes splits the rows of m into nodes of batchSize rows. The last node
// holds the remainder. Each node is a single time step.
func ToNodes(m *ml.Matrix, batchSize int) []*ml.Node {
	if batchSize <= 0 {
		panic(fmt.Sprintf("data: invalid batch size %d", batchSize))
	}
	rows, cols := m.Dims()
	var out []*ml.Node
	for start := 0; start < rows; start += batchSize {
		bs := min(batchSize, rows-start)
		buf := append([]float64(nil), m.Data()[start*cols:(start+bs)*cols]...)
		out = append(out, ml.NewNodeFromMatrix(ml.NewMatrixFromSlice(bs, cols, buf), bs))
	}
	return out
}

// SequenceNode stores ids as a sequence of len(ids) steps of one row each.
func SequenceNode(ids []int) *ml.Node {
	m := ml.NewMatrix(len(ids), 1)
	for i, id := range ids {
		m.Set(i, 0, float64(id))
	}
	return ml.NewNodeFromMatrix(m, 1)
}

// NextTokenPairs turns every sentence of at least two tokens into an input
// sequence and the same sequence shifted left by one as its labels.
func NextTokenPairs(v *Vocab, sentences [][]string) (xs, ys []*ml.Node) {
	for _, s := range sentences {
		if len(s) < 2 {
			continue
		}
		ids := v.Encode(s)
		xs = append(xs, SequenceNode(ids[:len(ids)-1]))
		ys = append(ys, SequenceNode(ids[1:]))
	}
	return xs, ys
}

// BatchSequences packs sequences of batch size 1 into time-major batches.
// Sequences are sorted longest first so each batch pads to the length of its
// first member. Row t*bs + j of a batch holds step t of member j.
func BatchSequences(xs []*ml.Node, cfg BatchConfig) []*ml.Node {
	var out []*ml.Node
	for _, group := range groupByLength(xs, cfg.BatchSize) {
		seqs := pick(xs, group)
		out = append(out, pack(seqs, seqs[0].Len(), cfg.Pad, cfg.FromRight))
	}
	return out
}

// BatchSingleLabel batches sequences together with one label row each, for
// sequence classification.
func BatchSingleLabel(xs, labels []*ml.Node, cfg BatchConfig) (xb, lb []*ml.Node) {
	mustPair(xs, labels)
	for _, group := range groupByLength(xs, cfg.BatchSize) {
		seqs := pick(xs, group)
		xb = append(xb, pack(seqs, seqs[0].Len(), cfg.Pad, cfg.FromRight))
		lb = append(lb, pack(pick(labels, group), 1, cfg.LabelPad, true))
	}
	return xb, lb
}

// BatchLabelSequence batches sequences with a label sequence of the same
// length each. Label rows are padded with LabelPad where inputs are padded.
func BatchLabelSequence(xs, labels []*ml.Node, cfg BatchConfig) (xb, lb []*ml.Node) {
	mustPair(xs, labels)
	for i := range xs {
		if xs[i].Len() != labels[i].Len() {
			panic(fmt.Sprintf("data: sequence %d has %d steps and %d labels", i, xs[i].Len(), labels[i].Len()))
		}
	}
	for _, group := range groupByLength(xs, cfg.BatchSize) {
		seqs := pick(xs, group)
		T := seqs[0].Len()
		xb = append(xb, pack(seqs, T, cfg.Pad, cfg.FromRight))
		lb = append(lb, pack(pick(labels, group), T, cfg.LabelPad, cfg.FromRight))
	}
	return xb, lb
}

// PairedShuffle applies the same random permutation to every dataset and
// returns it: perm[i] is the original position of the element now at i.
func PairedShuffle(rng *rand.Rand, sets ...[]*ml.Node) []int {
	if len(sets) == 0 {
		return nil
	}
	n := len(sets[0])
	for i, s := range sets {
		if len(s) != n {
			panic(fmt.Sprintf("data: dataset %d has %d elements, dataset 0 has %d", i, len(s), n))
		}
	}
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng.Shuffle(n, func(i, j int) {
		for _, s := range sets {
			s[i], s[j] = s[j], s[i]
		}
		perm[i], perm[j] = perm[j], perm[i]
	})
	return perm
}

// ------ UTILITY FUNCTIONS ------

func mustPair(xs, labels []*ml.Node) {
	if len(xs) != len(labels) {
		panic(fmt.Sprintf("data: %d sequences and %d labels", len(xs), len(labels)))
	}
}

// groupByLength returns index groups of at most batchSize, longest sequences first.
func groupByLength(xs []*ml.Node, batchSize int) [][]int {
	if batchSize <= 0 {
		panic(fmt.Sprintf("data: invalid batch size %d", batchSize))
	}
	index := make([]int, len(xs))
	for i := range index {
		index[i] = i
	}
	slices.SortStableFunc(index, func(a, b int) int { return xs[b].Len() - xs[a].Len() })

	var groups [][]int
	for start := 0; start < len(index); start += batchSize {
		groups = append(groups, index[start:min(start+batchSize, len(index))])
	}
	return groups
}

func pick(xs []*ml.Node, idx []int) []*ml.Node {
	out := make([]*ml.Node, len(idx))
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

// pack interleaves seqs into a node of T steps and len(seqs) rows per step.
// Shorter sequences are aligned to the end unless fromRight is set.
func pack(seqs []*ml.Node, T int, pad float64, fromRight bool) *ml.Node {
	bs := len(seqs)
	cols := seqs[0].Value().Cols()
	m := ml.NewMatrix(bs*T, cols)
	out := m.Data()
	for j, s := range seqs {
		if s.BatchSize != 1 {
			panic(fmt.Sprintf("data: can only batch sequences of batch size 1, got %d", s.BatchSize))
		}
		if c := s.Value().Cols(); c != cols {
			panic(fmt.Sprintf("data: sequence of width %d in a batch of width %d", c, cols))
		}
		src := s.Value().Data()
		Tj := s.Len()
		offset := 0
		if !fromRight {
			offset = T - Tj
		}
		for t := 0; t < T; t++ {
			row := out[(bs*t+j)*cols : (bs*t+j+1)*cols]
			if k := t - offset; k >= 0 && k < Tj {
				copy(row, src[k*cols:(k+1)*cols])
			} else {
				for c := range row {
					row[c] = pad
				}
			}
		}
	}
	return ml.NewNodeFromMatrix(m, bs)
}
