package nn

import (
	"fmt"
	"math/rand"

	"github.com/petal-ml/petal/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// Weight has shape [outFeatures, inFeatures], bias [outFeatures].
// Weights use Xavier initialization, biases start at zero.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter

	// input from the last Forward call, kept for Backward.
	input *tensor.RawTensor
}

// NewLinear creates a Linear layer with Xavier-initialized weights.
func NewLinear(inFeatures, outFeatures int, device tensor.Device, rng *rand.Rand) *Linear {
	weight := Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, device, rng)
	bias := tensor.Zeros(tensor.Shape{outFeatures}, device)

	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      NewParameter("weight", weight),
		bias:        NewParameter("bias", bias),
	}
}

// Forward computes y = x @ W.T + b for input [batch, inFeatures].
func (l *Linear) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 2 || shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: want [batch, %d], got %v", l.inFeatures, shape))
	}

	l.input = input

	output := tensor.MatMul(input, tensor.Transpose2D(l.weight.Tensor()))
	tensor.AddRow(output, l.bias.Tensor())
	return output
}

// Backward accumulates weight and bias gradients and returns the
// gradient with respect to the layer input.
//
//	dX = dY @ W
//	dW = dY.T @ X
//	db = column sums of dY
func (l *Linear) Backward(grad *tensor.RawTensor) *tensor.RawTensor {
	if l.input == nil {
		panic("Linear.Backward: called before Forward")
	}

	gradW := tensor.MatMul(tensor.Transpose2D(grad), l.input)
	l.weight.AccumGrad(gradW)

	gs := grad.Shape()
	gradB := tensor.Zeros(tensor.Shape{l.outFeatures}, grad.Device())
	gd, bd := grad.AsFloat32(), gradB.AsFloat32()
	for i := 0; i < gs[0]; i++ {
		row := gd[i*l.outFeatures : (i+1)*l.outFeatures]
		for j := range row {
			bd[j] += row[j]
		}
	}
	l.bias.AccumGrad(gradB)

	return tensor.MatMul(grad, l.weight.Tensor())
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}

// StateDict returns the weight and bias tensors.
func (l *Linear) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight": l.weight.Tensor(),
		"bias":   l.bias.Tensor(),
	}
}

// LoadStateDict restores weight and bias values, validating shapes.
func (l *Linear) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	return loadParams(stateDict, map[string]*Parameter{
		"weight": l.weight,
		"bias":   l.bias,
	})
}

// loadParams copies state-dict entries into parameters with shape and
// dtype validation. Shared by every layer's LoadStateDict.
func loadParams(stateDict map[string]*tensor.RawTensor, params map[string]*Parameter) error {
	for name, param := range params {
		raw, ok := stateDict[name]
		if !ok {
			return fmt.Errorf("missing %q in state dict", name)
		}
		if !raw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("%s shape mismatch: expected %v, got %v",
				name, param.Tensor().Shape(), raw.Shape())
		}
		if raw.DType() != param.Tensor().DType() {
			return fmt.Errorf("%s dtype mismatch: expected %s, got %s",
				name, param.Tensor().DType(), raw.DType())
		}
		if err := param.Tensor().CopyFrom(raw); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
	}
	return nil
}
