package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// DataStream is a source layer over parallel datasets, for example inputs
// and labels. Each Forward exposes the next instance of every dataset on the
// corresponding output. In Train mode the order is reshuffled at the start of
// every pass.
type DataStream struct {
	base
	X    []*Node
	Data [][]*Node

	// MaxLen skips instances whose first component is longer, for
	// curriculum learning.
	MaxLen int

	count int
	perm  []int
	rng   *rand.Rand
}

// NewDataStream creates a stream with n outputs.
func NewDataStream(n int, opts ...LayerOption) *DataStream {
	cfg := newLayerConfig(Identity, opts)
	s := &DataStream{X: make([]*Node, n), MaxLen: math.MaxInt, rng: cfg.Rand}
	for i := range s.X {
		s.X[i] = NewNode(0, 0)
	}
	return s
}

// SetData replaces the datasets. The permutation is rebuilt on next Forward.
func (s *DataStream) SetData(data ...[]*Node) {
	if len(data) != len(s.X) {
		panic(fmt.Sprintf("ml: %d datasets for a stream of %d outputs", len(data), len(s.X)))
	}
	s.Data = data
	s.perm = s.perm[:0]
}

// SetMaxLen changes the length filter and rebuilds the permutation.
func (s *DataStream) SetMaxLen(n int) {
	s.MaxLen = n
	s.perm = s.perm[:0]
}

func (s *DataStream) Init() {
	if len(s.Data) == 0 || len(s.Data[0]) == 0 {
		panic("ml: data stream has no data")
	}
	for i := 1; i < len(s.Data); i++ {
		if len(s.Data[i]) != len(s.Data[0]) {
			panic(fmt.Sprintf("ml: dataset %d has %d instances, dataset 0 has %d", i, len(s.Data[i]), len(s.Data[0])))
		}
	}
	s.perm = s.perm[:0]
	for j, n := range s.Data[0] {
		if n.Len() <= s.MaxLen {
			s.perm = append(s.perm, j)
		}
	}
	if len(s.perm) == 0 {
		panic(fmt.Sprintf("ml: no instance within max length %d", s.MaxLen))
	}
	s.count = 0
}

// Len is the number of instances in one pass.
func (s *DataStream) Len() int {
	if len(s.perm) == 0 {
		s.Init()
	}
	return len(s.perm)
}

func (s *DataStream) Forward() {
	if len(s.perm) == 0 {
		s.Init()
	}
	if s.count == 0 && s.mode == Train {
		s.rng.Shuffle(len(s.perm), func(i, j int) {
			s.perm[i], s.perm[j] = s.perm[j], s.perm[i]
		})
	}
	j := s.perm[s.count]
	for i, x := range s.X {
		*x = *s.Data[i][j]
	}
	s.count++
	if s.count == len(s.perm) {
		s.count = 0
	}
}

func (s *DataStream) Backward() {}

func (s *DataStream) Ins() []*Input { return nil }
func (s *DataStream) Outs() []*Node { return s.X }
