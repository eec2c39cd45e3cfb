package nn

import (
	"fmt"
	"math/rand"

	"github.com/petal-ml/petal/internal/tensor"
)

// Conv2D is a 2D convolution layer over [batch, inC, h, w] inputs.
//
// Forward-only: convolutions appear exclusively in the frozen backbone,
// whose parameters never receive gradients.
type Conv2D struct {
	inChannels  int
	outChannels int
	kernelSize  int
	stride      int
	padding     int
	weight      *Parameter // [outC, inC, k, k]
	bias        *Parameter // [outC]
}

// NewConv2D creates a Conv2D layer with Xavier-initialized weights.
func NewConv2D(inChannels, outChannels, kernelSize, stride, padding int, device tensor.Device, rng *rand.Rand) *Conv2D {
	fanIn := inChannels * kernelSize * kernelSize
	fanOut := outChannels * kernelSize * kernelSize

	weight := Xavier(fanIn, fanOut,
		tensor.Shape{outChannels, inChannels, kernelSize, kernelSize}, device, rng)
	bias := tensor.Zeros(tensor.Shape{outChannels}, device)

	return &Conv2D{
		inChannels:  inChannels,
		outChannels: outChannels,
		kernelSize:  kernelSize,
		stride:      stride,
		padding:     padding,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
	}
}

// Forward computes the convolution for input [batch, inC, h, w].
func (c *Conv2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != c.inChannels {
		panic(fmt.Sprintf("Conv2D.Forward: want [batch, %d, h, w], got %v", c.inChannels, shape))
	}
	return tensor.Conv2D(input, c.weight.Tensor(), c.bias.Tensor(), c.stride, c.padding)
}

// Parameters returns [weight, bias].
func (c *Conv2D) Parameters() []*Parameter {
	return []*Parameter{c.weight, c.bias}
}

// OutChannels returns the number of output channels.
func (c *Conv2D) OutChannels() int {
	return c.outChannels
}

// StateDict returns the weight and bias tensors.
func (c *Conv2D) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": c.weight.Tensor(),
		"bias":   c.bias.Tensor(),
	}
}

// LoadStateDict restores weight and bias values, validating shapes.
func (c *Conv2D) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams(stateDict, map[string]*Parameter{
		"weight": c.weight,
		"bias":   c.bias,
	})
}
