package data

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/b0tShaman/seqnet/ml"
)

func TestCleanAndTokenize(t *testing.T) {
	got := Tokenize(CleanText("Don't PANIC!  It's <unk> 42 times, ok?"))
	want := []string{"dont", "panic", "!", "its", "<unk>", "42", "times", ",", "ok", "?"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokens = %q, want %q", got, want)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences([]string{"a", "b", ".", "c", "!", "d"})
	want := [][]string{{"a", "b", "."}, {"c", "!"}, {"d"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sentences = %q, want %q", got, want)
	}
	if s := JoinTokens([]string{"hi", ",", "there", "."}); s != "hi, there." {
		t.Errorf("JoinTokens = %q", s)
	}
}

func TestVocab(t *testing.T) {
	words := []string{"the", "cat", "the", "dog", "the", "cat"}
	v := BuildVocab(words, 2)
	if v.Size() != 4 {
		t.Fatalf("Size() = %d, want 4 (pad, unk, the, cat)", v.Size())
	}
	ids := v.Encode([]string{"the", "dog", "cat"})
	if want := []int{2, UnkID, 3}; !reflect.DeepEqual(ids, want) {
		t.Errorf("Encode = %v, want %v", ids, want)
	}
	if got := v.Decode([]int{3, PadID, 99}); !reflect.DeepEqual(got, []string{"cat", PAD, UNK}) {
		t.Errorf("Decode = %q", got)
	}
	var buf bytes.Buffer
	if err := v.WriteMapping(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "cat - 3\n") {
		t.Errorf("mapping missing entry:\n%s", buf.String())
	}
}

func TestLoadCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.txt")
	if err := os.WriteFile(path, []byte("A cat sat. A cat ran!"), 0644); err != nil {
		t.Fatal(err)
	}
	v, sentences, err := LoadCorpus(path, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sentences) != 2 || v.ID("cat") == UnkID {
		t.Errorf("got %d sentences, cat id %d", len(sentences), v.ID("cat"))
	}
	if _, _, err := LoadCorpus(filepath.Join(t.TempDir(), "none"), 1); err == nil {
		t.Error("missing corpus accepted")
	}
}

func TestNextTokenPairs(t *testing.T) {
	v := BuildVocab([]string{"a", "b", "c"}, 1)
	xs, ys := NextTokenPairs(v, [][]string{{"a", "b", "c"}, {"a"}})
	if len(xs) != 1 {
		t.Fatalf("%d pairs, want 1 (single-token sentence dropped)", len(xs))
	}
	if !floats.Equal(xs[0].Value().Data(), []float64{2, 3}) || !floats.Equal(ys[0].Value().Data(), []float64{3, 4}) {
		t.Errorf("pair = %v -> %v", xs[0].Value().Data(), ys[0].Value().Data())
	}
	if xs[0].Len() != 2 {
		t.Errorf("input length %d, want 2", xs[0].Len())
	}
}

func TestToNodes(t *testing.T) {
	m := ml.NewMatrixFromSlice(5, 2, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	nodes := ToNodes(m, 2)
	if len(nodes) != 3 {
		t.Fatalf("%d nodes, want 3", len(nodes))
	}
	last := nodes[2]
	if last.BatchSize != 1 || !floats.Equal(last.Value().Data(), []float64{8, 9}) {
		t.Errorf("last node bs=%d data=%v", last.BatchSize, last.Value().Data())
	}
	if nodes[1].Len() != 1 || nodes[1].BatchSize != 2 {
		t.Errorf("middle node holds %d steps of %d rows", nodes[1].Len(), nodes[1].BatchSize)
	}
}

func TestBatchLabelSequencePadding(t *testing.T) {
	xs := []*ml.Node{SequenceNode([]int{1, 2}), SequenceNode([]int{3, 4, 5})}
	ys := []*ml.Node{SequenceNode([]int{6, 7}), SequenceNode([]int{8, 9, 10})}

	xb, lb := BatchLabelSequence(xs, ys, BatchConfig{BatchSize: 2, Pad: 0, LabelPad: -1})
	if len(xb) != 1 || xb[0].BatchSize != 2 || xb[0].Len() != 3 {
		t.Fatalf("unexpected batch layout")
	}
	// longest first, short sequence aligned to the end
	if want := []float64{3, 0, 4, 1, 5, 2}; !floats.Equal(xb[0].Value().Data(), want) {
		t.Errorf("left padded inputs = %v, want %v", xb[0].Value().Data(), want)
	}
	if want := []float64{8, -1, 9, 6, 10, 7}; !floats.Equal(lb[0].Value().Data(), want) {
		t.Errorf("left padded labels = %v, want %v", lb[0].Value().Data(), want)
	}

	xb, _ = BatchLabelSequence(xs, ys, BatchConfig{BatchSize: 2, Pad: -5, FromRight: true})
	if want := []float64{3, 1, 4, 2, 5, -5}; !floats.Equal(xb[0].Value().Data(), want) {
		t.Errorf("right padded inputs = %v, want %v", xb[0].Value().Data(), want)
	}
}

func TestBatchSingleLabel(t *testing.T) {
	xs := []*ml.Node{SequenceNode([]int{1}), SequenceNode([]int{2, 3}), SequenceNode([]int{4, 5, 6})}
	ls := []*ml.Node{SequenceNode([]int{0}), SequenceNode([]int{1}), SequenceNode([]int{2})}
	xb, lb := BatchSingleLabel(xs, ls, BatchConfig{BatchSize: 2})
	if len(xb) != 2 {
		t.Fatalf("%d batches, want 2", len(xb))
	}
	if want := []float64{2, 1}; !floats.Equal(lb[0].Value().Data(), want) {
		t.Errorf("first batch labels = %v, want %v", lb[0].Value().Data(), want)
	}
	if xb[1].BatchSize != 1 || xb[1].Len() != 1 || lb[1].Value().At(0, 0) != 0 {
		t.Errorf("remainder batch malformed")
	}
	if got := BatchSequences(xs, BatchConfig{BatchSize: 3}); len(got) != 1 || got[0].Len() != 3 {
		t.Errorf("unlabelled batching malformed")
	}
}

func TestPairedShuffle(t *testing.T) {
	a := make([]*ml.Node, 10)
	b := make([]*ml.Node, 10)
	for i := range a {
		a[i] = SequenceNode([]int{i})
		b[i] = SequenceNode([]int{100 + i})
	}
	perm := PairedShuffle(ml.NewRand(1), a, b)
	if slices.IsSorted(perm) {
		t.Errorf("permutation %v left the order unchanged", perm)
	}
	for i := range a {
		x := int(a[i].Value().At(0, 0))
		y := int(b[i].Value().At(0, 0))
		if y != x+100 || x != perm[i] {
			t.Fatalf("position %d holds %d/%d, perm says %d", i, x, y, perm[i])
		}
	}
}

func TestImageSequence(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if y >= 4 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	f.Close()

	n, err := ImageSequence(path, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if n.Len() != 4 || n.Value().Cols() != 4 {
		t.Fatalf("sequence %d steps of width %d, want 4x4", n.Len(), n.Value().Cols())
	}
	if top, bottom := n.Value().At(0, 0), n.Value().At(3, 3); top > 0.1 || bottom < 0.9 {
		t.Errorf("top %v bottom %v, want dark over light", top, bottom)
	}
	if _, err := ImageSequence(filepath.Join(t.TempDir(), "none.png"), 4, 4); err == nil {
		t.Error("missing image accepted")
	}
}

func TestLoadWordVectors(t *testing.T) {
	v := BuildVocab([]string{"cat", "dog"}, 1)
	w := ml.NewMatrix(v.Size(), 2)
	w.Fill(9)

	in := "3 2\ncat 0.5 -1\nbird 7 7\n\ndog 2 3e-1\n"
	n, err := LoadWordVectors(strings.NewReader(in), v, w)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("filled %d rows, want 2", n)
	}
	want := []float64{9, 9, 9, 9, 0.5, -1, 2, 0.3}
	if !floats.Equal(w.Data(), want) {
		t.Errorf("table = %v, want %v", w.Data(), want)
	}

	if _, err := LoadWordVectors(strings.NewReader("cat 1 2 3\n"), v, w); err == nil {
		t.Error("vectors of the wrong dimension accepted")
	}
	if _, err := LoadWordVectors(strings.NewReader("cat 1 x\n"), v, w); err == nil {
		t.Error("malformed value accepted")
	}
	if _, err := LoadWordVectors(strings.NewReader(""), v, ml.NewMatrix(3, 2)); err == nil {
		t.Error("table of the wrong size accepted")
	}
	if _, err := LoadWordVectorsFile(filepath.Join(t.TempDir(), "none"), v, w); err == nil {
		t.Error("missing file accepted")
	}
}
