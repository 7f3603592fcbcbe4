package main

import (
	"errors"
	"flag"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/b0tShaman/seqnet/data"
	. "github.com/b0tShaman/seqnet/ml"
)

var (
	textFile  = flag.String("text", "assets/input.txt", "training corpus")
	modelFile = flag.String("model", "assets/model.txt", "parameter file, loaded if present and saved after training")
	epochs    = flag.Int("epochs", 20, "training passes over the corpus")
	dim       = flag.Int("dim", 64, "embedding and hidden width")
	seed      = flag.Uint64("seed", 1, "seed for initialization, shuffling and sampling")
	prompt    = flag.String("prompt", "the", "text to continue after training")
	genLen    = flag.Int("gen", 40, "maximum number of generated tokens")
	wvFile    = flag.String("wv", "", "pretrained word vectors (\"word v1 ... vdim\" per line) for the embedding table")
	verbose   = flag.Bool("v", false, "debug logging")
)

// languageModel predicts the next token: embedding -> lstm -> dropout -> dense -> softmax.
type languageModel struct {
	stream *DataStream
	embed  *EmbeddingLayer
	lstm   *LSTMLayer
	drop   *DropoutLayer
	out    *DenseLayer
	loss   *SoftmaxCrossEntropyLayer

	model Layer // fed by stream, used for training
}

func newLanguageModel(vocab, dim int, rng *rand.Rand) *languageModel {
	m := &languageModel{
		stream: NewDataStream(2, WithRand(rng)),
		embed:  Embedding(dim, vocab, WithRand(rng)),
		lstm:   LSTM(dim, WithRand(rng)),
		drop:   Dropout(0.2, WithRand(rng)),
		out:    Dense(vocab, Activation("linear"), WithRand(rng)),
		loss:   SoftmaxCrossEntropy(),
	}
	m.model = Chain(m.stream, m.embed, m.lstm, m.drop, m.out, m.loss)
	return m
}

// prepare feeds one instance of dataset through the model so every
// parameter takes its final shape. Loading after prepare rejects parameter
// files saved for another vocabulary or width.
func (m *languageModel) prepare(dataset [][]*Node) {
	m.stream.SetData(dataset...)
	m.model.SetMode(Test)
	m.model.Forward()
}

// generate continues the prompt one token at a time until an end token or
// maxLen tokens in total.
func (m *languageModel) generate(v *data.Vocab, prompt []string, maxLen int, sampler *Sampler) []string {
	if len(prompt) == 0 {
		prompt = []string{data.UNK}
	}
	ids := make([]int, max(maxLen, len(prompt)+1))
	copy(ids, v.Encode(prompt))
	in := data.SequenceNode(ids)

	prev := m.embed.X
	defer func() { m.embed.X = prev }()
	m.embed.X.Connect(in)
	infer := Chain(m.embed, m.lstm, m.drop, m.out, m.loss)
	infer.SetMode(Test)
	sampler.Reset()

	n := len(prompt)
	for t := 0; t < len(ids)-1; t++ {
		infer.ForwardStep(t)
		if t+1 < n {
			continue
		}
		next := sampler.Next(m.loss.H.At(t).Data())
		in.Value().Set(t+1, 0, float64(next))
		n++
		if data.EndTokens[v.Word(next)] {
			break
		}
	}

	out := make([]int, n)
	for i := range out {
		out[i] = int(in.Value().At(i, 0))
	}
	return v.Decode(out)
}

// -------- MAIN -------- //
func main() {
	flag.Parse()
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	// 1. Load Data
	log.WithField("file", *textFile).Info("Loading dataset...")
	vocab, sentences, err := data.LoadCorpus(*textFile, 1)
	if err != nil {
		log.WithError(err).Fatal("cannot load corpus")
	}
	xs, ys := data.NextTokenPairs(vocab, sentences)
	if len(xs) == 0 {
		log.Fatal("corpus has no sentence of two or more tokens")
	}
	xb, lb := data.BatchLabelSequence(xs, ys, data.BatchConfig{
		BatchSize: 16,
		Pad:       data.PadID,
		LabelPad:  -1,
		FromRight: true,
	})
	log.WithFields(logrus.Fields{
		"vocab":     vocab.Size(),
		"sentences": len(xs),
		"batches":   len(xb),
	}).Info("Dataset ready")

	mapping := strings.TrimSuffix(*modelFile, filepath.Ext(*modelFile)) + ".vocab.txt"
	if err := os.MkdirAll(filepath.Dir(mapping), 0755); err != nil {
		log.WithError(err).Fatal("cannot create model directory")
	}
	f, err := os.Create(mapping)
	if err != nil {
		log.WithError(err).Fatal("cannot create vocabulary mapping")
	}
	if err := vocab.WriteMapping(f); err != nil {
		log.WithError(err).Fatal("cannot write vocabulary mapping")
	}
	f.Close()

	// 2. Initialize Network
	dataset := [][]*Node{xb, lb}
	rng := NewRand(*seed)
	lm := newLanguageModel(vocab.Size(), *dim, rng)
	lm.prepare(dataset)
	if err := SetOptimizer(lm.model, OptAdam); err != nil {
		log.WithError(err).Fatal("cannot set optimizer")
	}

	// Auto-Load weights if they exist; optimizer state is restored with them
	if _, err := os.Stat(*modelFile); err == nil {
		log.Info("Found existing model. Loading weights...")
		if err := LoadParamsFile(*modelFile, lm.model); err != nil {
			log.WithError(err).Fatal("model does not fit this corpus and width; remove it or pass another -model")
		}
	} else if *wvFile != "" {
		n, err := data.LoadWordVectorsFile(*wvFile, vocab, lm.embed.W.Value())
		if err != nil {
			log.WithError(err).Fatal("cannot load word vectors")
		}
		log.WithFields(logrus.Fields{"file": *wvFile, "words": n}).Info("Loaded word vectors")
	}

	// 3. Configure & Train
	trainer := NewTrainer(lm.stream, lm.model, log)
	config := TrainingConfig{
		Epochs:       *epochs,
		LearningRate: 0.005,
		ModelPath:    *modelFile,
		VerboseEvery: 1,
	}
	if _, err := trainer.Train(dataset, config); errors.Is(err, ErrInterrupted) {
		log.WithField("model", *modelFile).Warn("Training interrupted, model saved")
		return
	} else if err != nil {
		log.WithError(err).Fatal("training failed")
	}
	log.WithFields(logrus.Fields{
		"params": CountParams(lm.model),
		"error":  trainer.MeanError(dataset, 0),
	}).Info("Evaluated")

	// 4. Inference
	sampler, err := NewSampler(DecodingConfig{
		SamplingType: SamplingTopK,
		TopK:         5,
		Temperature:  0.8,
		Mode:         ModeSampleFirstThenGreedy,
	}, rng)
	if err != nil {
		log.WithError(err).Fatal("bad decoding config")
	}
	words := lm.generate(vocab, data.Tokenize(data.CleanText(*prompt)), *genLen, sampler)
	log.Info("Generated: " + data.JoinTokens(words))
}
