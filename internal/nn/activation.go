package nn

import "github.com/petal-ml/petal/internal/tensor"

// ReLU applies the element-wise rectifier f(x) = max(0, x).
type ReLU struct {
	// input from the last Forward call, kept for Backward.
	input *tensor.RawTensor
}

// NewReLU creates a ReLU activation module.
func NewReLU() *ReLU {
	return &ReLU{}
}

// Forward applies max(0, x) element-wise.
func (r *ReLU) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	r.input = input

	output := tensor.Zeros(input.Shape(), input.Device())
	in, out := input.AsFloat32(), output.AsFloat32()
	for i, v := range in {
		if v > 0 {
			out[i] = v
		}
	}
	return output
}

// Backward passes gradients through where the input was positive.
func (r *ReLU) Backward(grad *tensor.RawTensor) *tensor.RawTensor {
	if r.input == nil {
		panic("ReLU.Backward: called before Forward")
	}

	output := tensor.Zeros(grad.Shape(), grad.Device())
	in, gd, out := r.input.AsFloat32(), grad.AsFloat32(), output.AsFloat32()
	for i := range gd {
		if in[i] > 0 {
			out[i] = gd[i]
		}
	}
	return output
}

// Parameters returns an empty slice; ReLU has no parameters.
func (r *ReLU) Parameters() []*Parameter {
	return nil
}
