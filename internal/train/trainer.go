package train

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/optim"
	"github.com/petal-ml/petal/internal/vision/dataloader"
)

// Config controls a training run.
type Config struct {
	Epochs         int
	CheckpointPath string
	// ClassToIdx is the training-time label mapping persisted into each
	// checkpoint.
	ClassToIdx map[string]int
	// Hidden and Dropout describe the classifier head and are stamped
	// into each checkpoint so restore needs no out-of-band flags.
	Hidden  int
	Dropout float64
	// LogEvery logs batch-level progress every N batches; 0 disables.
	LogEvery int
}

// EpochStats summarizes one pass over a loader.
type EpochStats struct {
	Loss     float64 // mean loss, sample-weighted
	Accuracy float64 // mean top-1 accuracy percentage
}

// Trainer runs the fine-tuning loop: frozen backbone, trainable head,
// one checkpoint written per epoch.
type Trainer struct {
	cfg   Config
	log   *logrus.Entry
	runID string

	lossMeter Meter
	accMeter  Meter
}

// NewTrainer creates a trainer. Each trainer gets a fresh run ID that
// is stamped into every checkpoint it writes.
func NewTrainer(cfg Config) *Trainer {
	runID := uuid.NewString()
	return &Trainer{
		cfg:   cfg,
		runID: runID,
		log:   logrus.WithField("run_id", runID),
	}
}

// RunID returns the identifier stamped into this trainer's checkpoints.
func (t *Trainer) RunID() string {
	return t.runID
}

// TrainEpoch runs one training pass: forward, loss, backward through
// the head, optimizer step over the trainable parameters.
func (t *Trainer) TrainEpoch(ctx context.Context, model *nn.Classifier, loader *dataloader.Loader, optimizer optim.Optimizer) (EpochStats, error) {
	model.Train()
	t.lossMeter.Reset()
	t.accMeter.Reset()

	batchIdx := 0
	for batch := range loader.Batches(ctx) {
		batchSize := float64(len(batch.Labels))

		logProbs := model.Forward(batch.Images)
		loss := nn.NLLLoss(logProbs, batch.Labels)
		acc := TopKAccuracy(logProbs, batch.Labels, 1)[0]

		optimizer.ZeroGrad()
		model.Backward(nn.NLLBackward(logProbs, batch.Labels))
		optimizer.Step()

		t.lossMeter.Update(float64(loss), batchSize)
		t.accMeter.Update(acc, batchSize)

		batchIdx++
		if t.cfg.LogEvery > 0 && batchIdx%t.cfg.LogEvery == 0 {
			t.log.WithFields(logrus.Fields{
				"batch":    batchIdx,
				"loss":     t.lossMeter.Avg,
				"accuracy": t.accMeter.Avg,
			}).Info("training")
		}
	}
	if err := loader.Err(); err != nil {
		return EpochStats{}, fmt.Errorf("train pass: %w", err)
	}

	return EpochStats{Loss: t.lossMeter.Avg, Accuracy: t.accMeter.Avg}, nil
}

// Validate runs one evaluation pass with dropout off and no weight
// updates.
func (t *Trainer) Validate(ctx context.Context, model *nn.Classifier, loader *dataloader.Loader) (EpochStats, error) {
	model.Eval()
	t.lossMeter.Reset()
	t.accMeter.Reset()

	for batch := range loader.Batches(ctx) {
		batchSize := float64(len(batch.Labels))

		logProbs := model.Forward(batch.Images)
		t.lossMeter.Update(float64(nn.NLLLoss(logProbs, batch.Labels)), batchSize)
		t.accMeter.Update(TopKAccuracy(logProbs, batch.Labels, 1)[0], batchSize)
	}
	if err := loader.Err(); err != nil {
		return EpochStats{}, fmt.Errorf("validation pass: %w", err)
	}

	return EpochStats{Loss: t.lossMeter.Avg, Accuracy: t.accMeter.Avg}, nil
}

// Fit runs the full loop: train and validate each epoch, track the
// best validation accuracy, and overwrite the checkpoint in place
// after every epoch.
func (t *Trainer) Fit(ctx context.Context, model *nn.Classifier, trainLoader, validLoader *dataloader.Loader, optimizer optim.Optimizer) (float64, error) {
	best := 0.0

	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		start := time.Now()

		trainStats, err := t.TrainEpoch(ctx, model, trainLoader, optimizer)
		if err != nil {
			return best, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		validStats, err := t.Validate(ctx, model, validLoader)
		if err != nil {
			return best, fmt.Errorf("epoch %d: %w", epoch, err)
		}

		if validStats.Accuracy > best {
			best = validStats.Accuracy
		}

		t.log.WithFields(logrus.Fields{
			"epoch":      epoch,
			"train_loss": trainStats.Loss,
			"train_acc":  trainStats.Accuracy,
			"valid_loss": validStats.Loss,
			"valid_acc":  validStats.Accuracy,
			"best_acc":   best,
			"elapsed":    time.Since(start).Round(time.Second),
		}).Info("epoch complete")

		// A canceled context closes the batch channels early, leaving
		// truncated-pass stats; never overwrite the checkpoint with
		// them.
		if err := ctx.Err(); err != nil {
			return best, err
		}

		if t.cfg.CheckpointPath != "" {
			checkpoint := &nn.Checkpoint{
				Model:        model,
				Optimizer:    optimizer,
				Epoch:        epoch,
				BestAccuracy: best,
				ClassToIdx:   t.cfg.ClassToIdx,
				HiddenSize:   t.cfg.Hidden,
				Dropout:      t.cfg.Dropout,
				RunID:        t.runID,
			}
			if err := checkpoint.Save(t.cfg.CheckpointPath); err != nil {
				return best, fmt.Errorf("epoch %d: %w", epoch, err)
			}
			t.log.WithField("path", t.cfg.CheckpointPath).Info("checkpoint saved")
		}
	}

	return best, nil
}
