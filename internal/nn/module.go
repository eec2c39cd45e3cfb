// Package nn implements the neural network modules used by Petal.
//
// The building blocks follow the usual layer vocabulary (Linear, ReLU,
// Dropout, Conv2D, BatchNorm2D, Sequential) with explicit error-free
// Forward passes and per-layer Backward passes. Only the classifier
// head is ever differentiated: the pretrained backbone is frozen at
// construction and runs forward-only, so gradient flow is a short,
// explicit chain rather than a recorded tape.
package nn

import "github.com/petal-ml/petal/internal/tensor"

// Module is the base interface for all network components.
type Module interface {
	// Forward computes the module output for the given input.
	// Shape misuse is a programmer error and panics.
	Forward(input *tensor.RawTensor) *tensor.RawTensor

	// Parameters returns all parameters of this module, trainable or
	// frozen. Modules without parameters return an empty slice.
	Parameters() []*Parameter
}

// Backprop is implemented by modules that support a backward pass.
//
// Backward consumes the gradient of the loss with respect to the
// module output and returns the gradient with respect to the module
// input, accumulating parameter gradients along the way. It must be
// called after Forward on the same input: layers cache activations
// between the two calls, which is safe under the single-threaded,
// batch-sequential execution model of this repository.
type Backprop interface {
	Backward(grad *tensor.RawTensor) *tensor.RawTensor
}

// StateModule is implemented by modules with persistent state.
type StateModule interface {
	// StateDict returns a map of state names to raw tensors. This
	// includes non-trainable buffers such as batch-norm running stats.
	StateDict() map[string]*tensor.RawTensor

	// LoadStateDict restores state from a state dictionary. Shape or
	// dtype mismatches are returned as errors.
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
}

// TrainEval is implemented by modules whose behavior differs between
// training and evaluation (Dropout). SetTraining toggles the mode;
// containers propagate it to their children.
type TrainEval interface {
	SetTraining(training bool)
}
