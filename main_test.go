package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/b0tShaman/seqnet/data"
	. "github.com/b0tShaman/seqnet/ml"
)

// --- Global Variables to prevent compiler optimizations ---
var resultLoss float64

const corpus = "the cat sat on the mat. the dog sat on the log. the cat ran to the dog."

func tinyDataset(batchSize int) (*data.Vocab, [][]*Node) {
	words := data.Tokenize(data.CleanText(corpus))
	vocab := data.BuildVocab(words, 1)
	xs, ys := data.NextTokenPairs(vocab, data.SplitSentences(words))
	xb, lb := data.BatchLabelSequence(xs, ys, data.BatchConfig{
		BatchSize: batchSize,
		Pad:       data.PadID,
		LabelPad:  -1,
		FromRight: true,
	})
	return vocab, [][]*Node{xb, lb}
}

func TestLanguageModelTrainsAndGenerates(t *testing.T) {
	vocab, dataset := tinyDataset(2)
	lm := newLanguageModel(vocab.Size(), 16, NewRand(1))
	log := logrus.New()
	log.SetOutput(io.Discard)
	trainer := NewTrainer(lm.stream, lm.model, log)

	before := trainer.MeanError(dataset, 0)
	if _, err := trainer.Train(dataset, TrainingConfig{
		Epochs:       150,
		LearningRate: 0.02,
		Optimizer:    OptAdam,
	}); err != nil {
		t.Fatal(err)
	}
	after := trainer.MeanError(dataset, 0)
	if after >= before {
		t.Errorf("error did not drop: before %v after %v", before, after)
	}

	sampler, err := NewSampler(DecodingConfig{SamplingType: SamplingGreedy}, NewRand(2))
	if err != nil {
		t.Fatal(err)
	}
	words := lm.generate(vocab, []string{"the", "cat"}, 12, sampler)
	if len(words) < 3 || len(words) > 12 {
		t.Fatalf("generated %d tokens: %q", len(words), words)
	}
	if words[0] != "the" || words[1] != "cat" {
		t.Errorf("prompt not kept: %q", words)
	}
	for i, w := range words[:len(words)-1] {
		if data.EndTokens[w] {
			t.Errorf("generation continued past end token at %d: %q", i, words)
		}
	}
}

func TestLoadRejectsModelOfAnotherVocabulary(t *testing.T) {
	vocab, dataset := tinyDataset(2)
	path := filepath.Join(t.TempDir(), "model.txt")

	saved := newLanguageModel(vocab.Size(), 8, NewRand(1))
	saved.prepare(dataset)
	if err := SaveParamsFile(path, saved.model); err != nil {
		t.Fatal(err)
	}

	same := newLanguageModel(vocab.Size(), 8, NewRand(2))
	same.prepare(dataset)
	if err := LoadParamsFile(path, same.model); err != nil {
		t.Fatalf("model of the same shape rejected: %v", err)
	}
	if !floats.Equal(same.embed.W.Value().Data(), saved.embed.W.Value().Data()) {
		t.Error("embedding table not restored")
	}

	for _, lm := range []*languageModel{
		newLanguageModel(vocab.Size()+2, 8, NewRand(3)),
		newLanguageModel(vocab.Size(), 6, NewRand(3)),
	} {
		lm.prepare(dataset)
		if err := LoadParamsFile(path, lm.model); err == nil {
			t.Errorf("model saved for %d words of width 8 loaded into %d words of width %d",
				vocab.Size(), lm.embed.W.Value().Rows(), lm.embed.W.Value().Cols())
		}
	}
}

// --- Benchmarks: one training step of the language model ---

func benchmarkLanguageModelStep(b *testing.B, batchSize int) {
	vocab, dataset := tinyDataset(batchSize)
	lm := newLanguageModel(vocab.Size(), 64, NewRand(1))
	lm.stream.SetData(dataset...)
	lm.model.Forward()

	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		lm.model.Forward()
		lm.model.Backward()
		Update(lm.model)
	}
	resultLoss = lm.model.Loss()
}

func BenchmarkLanguageModelStep_Batch_1(b *testing.B) { benchmarkLanguageModelStep(b, 1) }
func BenchmarkLanguageModelStep_Batch_3(b *testing.B) { benchmarkLanguageModelStep(b, 3) }
