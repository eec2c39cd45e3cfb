// Package optim implements the optimizers used to train the classifier
// head: SGD with momentum and Adam.
//
// Optimizers update only parameters flagged trainable; the frozen
// backbone's parameters are skipped even when passed in.
package optim

import (
	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies one update from the gradients accumulated on the
	// parameters. Parameters with no gradient or with the trainable
	// flag cleared are skipped.
	Step()

	// ZeroGrad clears all parameter gradients. Call before each
	// backward pass to prevent accumulation across batches.
	ZeroGrad()

	// GetLR returns the current learning rate.
	GetLR() float32

	// Name returns the optimizer type name persisted in checkpoints.
	Name() string

	// StateDict returns the optimizer state (momentum buffers, Adam
	// moments) for checkpointing.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores optimizer state from a checkpoint.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// updatable reports whether a parameter should receive an update this
// step.
func updatable(p *nn.Parameter) bool {
	return p.Trainable() && p.Grad() != nil
}
