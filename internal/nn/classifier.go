package nn

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/petal-ml/petal/internal/tensor"
)

// Classifier wraps a pretrained convolutional backbone and replaces its
// original output layer with a freshly initialized feed-forward head:
//
//	Flatten -> Linear -> ReLU -> Dropout -> Linear -> LogSoftmax
//
// The backbone is frozen at construction; only the head receives
// gradients and optimizer updates, which is the whole point of
// fine-tuning on a small dataset.
type Classifier struct {
	backbone *Sequential
	head     *Sequential

	numFeatures int
	numClasses  int
}

// ClassifierConfig describes the trainable head.
type ClassifierConfig struct {
	NumFeatures int     // flattened backbone output size
	Hidden      int     // hidden layer width
	NumClasses  int     // output classes
	Dropout     float64 // drop probability between the hidden layers
	Device      tensor.Device
}

// NewClassifier builds a classifier from a backbone and a head config.
// All backbone parameters are frozen immediately.
func NewClassifier(backbone *Sequential, cfg ClassifierConfig, rng *rand.Rand) *Classifier {
	for _, p := range backbone.Parameters() {
		p.Freeze()
	}

	head := NewSequential(
		NewFlatten(),
		NewLinear(cfg.NumFeatures, cfg.Hidden, cfg.Device, rng),
		NewReLU(),
		NewDropout(cfg.Dropout, rng),
		NewLinear(cfg.Hidden, cfg.NumClasses, cfg.Device, rng),
		NewLogSoftmax(),
	)

	return &Classifier{
		backbone:    backbone,
		head:        head,
		numFeatures: cfg.NumFeatures,
		numClasses:  cfg.NumClasses,
	}
}

// Forward runs the frozen backbone then the head, returning
// log-probabilities of shape [batch, numClasses].
func (c *Classifier) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return c.head.Forward(c.backbone.Forward(input))
}

// Backward propagates the loss gradient through the head only. The
// gradient at the head input is discarded: nothing upstream trains.
func (c *Classifier) Backward(grad *tensor.RawTensor) {
	c.head.Backward(grad)
}

// Parameters returns backbone and head parameters. Backbone entries
// report Trainable() == false.
func (c *Classifier) Parameters() []*Parameter {
	return append(c.backbone.Parameters(), c.head.Parameters()...)
}

// TrainableParameters returns the head parameters the optimizer updates.
func (c *Classifier) TrainableParameters() []*Parameter {
	var params []*Parameter
	for _, p := range c.Parameters() {
		if p.Trainable() {
			params = append(params, p)
		}
	}
	return params
}

// NumClasses returns the size of the output layer.
func (c *Classifier) NumClasses() int {
	return c.numClasses
}

// Train puts the model in training mode (dropout active).
func (c *Classifier) Train() {
	c.head.SetTraining(true)
	c.backbone.SetTraining(true)
}

// Eval puts the model in evaluation mode (dropout off, running
// statistics in batch norm).
func (c *Classifier) Eval() {
	c.head.SetTraining(false)
	c.backbone.SetTraining(false)
}

// StateDict returns the full model state with "backbone." and "head."
// key prefixes.
func (c *Classifier) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for name, raw := range c.backbone.StateDict() {
		stateDict["backbone."+name] = raw
	}
	for name, raw := range c.head.StateDict() {
		stateDict["head."+name] = raw
	}
	return stateDict
}

// LoadStateDict restores the full model state.
func (c *Classifier) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	backboneState := make(map[string]*tensor.RawTensor)
	headState := make(map[string]*tensor.RawTensor)

	for key, raw := range stateDict {
		switch {
		case strings.HasPrefix(key, "backbone."):
			backboneState[strings.TrimPrefix(key, "backbone.")] = raw
		case strings.HasPrefix(key, "head."):
			headState[strings.TrimPrefix(key, "head.")] = raw
		default:
			return fmt.Errorf("unexpected state key %q", key)
		}
	}

	if err := c.backbone.LoadStateDict(backboneState); err != nil {
		return fmt.Errorf("load backbone: %w", err)
	}
	if err := c.head.LoadStateDict(headState); err != nil {
		return fmt.Errorf("load head: %w", err)
	}
	return nil
}

// LoadBackboneStateDict restores pretrained backbone weights from a
// state dictionary keyed without the "backbone." prefix, as produced by
// the safetensors loader.
func (c *Classifier) LoadBackboneStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := c.backbone.LoadStateDict(stateDict); err != nil {
		return fmt.Errorf("load pretrained backbone: %w", err)
	}
	return nil
}
