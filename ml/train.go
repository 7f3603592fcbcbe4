package ml

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInterrupted is returned by Train when Stop ended training early.
var ErrInterrupted = errors.New("ml: training interrupted")

type TrainingConfig struct {
	Epochs       int
	MaxLen       int // skip longer instances; 0 means no limit
	NumIter      int // stop a pass after this many instances; 0 means a full pass
	LearningRate float64
	Lambda       float64 // L2 penalty applied to every parameter
	ModelPath    string  // parameters are saved here after training and on interrupt
	VerboseEvery int     // How often to log progress (in epochs)

	// Optimizer Selection
	Optimizer OptimizerType
}

func ValidateConfig(cfg TrainingConfig) error {
	if cfg.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", cfg.Epochs)
	}
	if cfg.MaxLen < 0 || cfg.NumIter < 0 {
		return fmt.Errorf("max length and iteration count must not be negative")
	}
	if cfg.LearningRate < 0 || cfg.Lambda < 0 {
		return fmt.Errorf("learning rate and lambda must not be negative")
	}
	if cfg.VerboseEvery < 0 {
		return fmt.Errorf("verbose interval must not be negative, got %d", cfg.VerboseEvery)
	}
	if _, err := NewOptimizer(cfg.Optimizer); err != nil {
		return err
	}
	return nil
}

// Trainer drives a network fed by a DataStream. Model is the stream stacked
// with the network, so one Forward consumes one instance.
type Trainer struct {
	Stream *DataStream
	Model  Layer
	Log    *logrus.Logger

	stop atomic.Bool
}

func NewTrainer(ds *DataStream, model Layer, log *logrus.Logger) *Trainer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trainer{Stream: ds, Model: model, Log: log}
}

// Stop asks a running or upcoming Run to return after the instance it is on.
// It is safe to call from any goroutine.
func (tr *Trainer) Stop() { tr.stop.Store(true) }

// Run makes epochs passes over dataset and returns the summed error divided
// by the number of label rows seen. With train set, every instance is
// followed by a backward pass and a parameter update.
func (tr *Trainer) Run(dataset [][]*Node, mode Mode, train bool, epochs, maxLen, numIter int) float64 {
	tr.Model.SetMode(mode)
	if maxLen <= 0 {
		maxLen = math.MaxInt
	}
	tr.Stream.MaxLen = maxLen
	tr.Stream.SetData(dataset...)
	if numIter >= tr.Stream.Len() {
		numIter = 0
	}

	label := tr.Stream.X[0]
	if len(tr.Stream.X) > 1 {
		label = tr.Stream.X[1]
	}

	var err float64
	var total int
	for e := 0; e < epochs && !tr.stop.Load(); e++ {
		for {
			tr.Model.Forward()
			err += tr.Model.Error()
			total += label.Value().Rows()
			if train {
				tr.Model.Backward()
				Update(tr.Model)
			}
			if tr.Stream.count == numIter || tr.stop.Load() {
				break
			}
		}
	}
	if total == 0 {
		return 0
	}
	return err / float64(total)
}

// Train configures the optimizers from cfg and trains for cfg.Epochs passes,
// logging the mean training error. Parameters are saved to cfg.ModelPath
// when training ends, including when Stop or an interrupt ends it early, in
// which case the error is ErrInterrupted.
func (tr *Trainer) Train(dataset [][]*Node, cfg TrainingConfig) (float64, error) {
	if err := ValidateConfig(cfg); err != nil {
		return 0, err
	}
	tr.Log.WithFields(logrus.Fields{
		"epochs":    cfg.Epochs,
		"optimizer": cfg.Optimizer,
		"lr":        cfg.LearningRate,
		"lambda":    cfg.Lambda,
		"maxLen":    cfg.MaxLen,
	}).Debug("training config")

	if cfg.Optimizer != "" {
		if err := SetOptimizer(tr.Model, cfg.Optimizer); err != nil {
			return 0, err
		}
	}
	if cfg.LearningRate > 0 {
		SetLearningRate(tr.Model, cfg.LearningRate)
	}
	SetLambda(tr.Model, cfg.Lambda)

	defer tr.stop.Store(false)
	defer tr.StopOnInterrupt()()
	every := cfg.VerboseEvery
	if every == 0 {
		every = 1
	}

	start := time.Now()
	tr.Log.Info("Starting Training...")
	var meanErr float64
	for epoch := 1; epoch <= cfg.Epochs && !tr.stop.Load(); epoch++ {
		meanErr = tr.Run(dataset, Train, true, 1, cfg.MaxLen, cfg.NumIter)
		if epoch%every == 0 || epoch == 1 {
			tr.Log.WithFields(logrus.Fields{
				"epoch": epoch,
				"error": fmt.Sprintf("%.4f", meanErr),
				"time":  time.Since(start).Round(time.Millisecond),
			}).Info("epoch done")
		}
	}

	interrupted := tr.stop.Load()
	if interrupted {
		tr.Log.Warn("Interrupted! Saving model...")
	}
	if cfg.ModelPath != "" {
		if err := SaveParamsFile(cfg.ModelPath, tr.Model); err != nil {
			return meanErr, err
		}
	}
	if interrupted {
		return meanErr, ErrInterrupted
	}
	tr.Log.WithField("time", time.Since(start)).Info("Training Complete")
	return meanErr, nil
}

// MeanError evaluates the model on dataset in Test mode without training.
func (tr *Trainer) MeanError(dataset [][]*Node, maxLen int) float64 {
	return tr.Run(dataset, Test, false, 1, maxLen, 0)
}

// StopOnInterrupt calls Stop when SIGINT or SIGTERM arrives, so training
// ends between two updates and the parameters are saved by Train. The
// returned function stops listening.
func (tr *Trainer) StopOnInterrupt() func() {
	sigChan := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			tr.Stop()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
