package nn

import "github.com/petal-ml/petal/internal/tensor"

// MaxPool2D applies square max pooling over [batch, c, h, w] inputs.
// Forward-only, like Conv2D: pooling appears only in the frozen backbone.
type MaxPool2D struct {
	kernelSize int
	stride     int
}

// NewMaxPool2D creates a MaxPool2D module.
func NewMaxPool2D(kernelSize, stride int) *MaxPool2D {
	return &MaxPool2D{kernelSize: kernelSize, stride: stride}
}

// Forward applies max pooling.
func (m *MaxPool2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	return tensor.MaxPool2D(input, m.kernelSize, m.stride)
}

// Parameters returns an empty slice; pooling has no parameters.
func (m *MaxPool2D) Parameters() []*Parameter {
	return nil
}
