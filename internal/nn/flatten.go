package nn

import "github.com/petal-ml/petal/internal/tensor"

// Flatten collapses all dimensions after the batch dimension, turning
// [batch, c, h, w] feature maps into [batch, c*h*w] rows for the head.
type Flatten struct {
	inputShape tensor.Shape
}

// NewFlatten creates a Flatten module.
func NewFlatten() *Flatten {
	return &Flatten{}
}

// Forward reshapes input to [batch, rest]. The buffer is shared.
func (f *Flatten) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	f.inputShape = shape.Clone()

	out, err := input.Reshape(tensor.Shape{shape[0], shape.NumElements() / shape[0]})
	if err != nil {
		panic(err)
	}
	return out
}

// Backward restores the gradient to the pre-flatten shape.
func (f *Flatten) Backward(grad *tensor.RawTensor) *tensor.RawTensor {
	out, err := grad.Reshape(f.inputShape)
	if err != nil {
		panic(err)
	}
	return out
}

// Parameters returns an empty slice; Flatten has no parameters.
func (f *Flatten) Parameters() []*Parameter {
	return nil
}
