package nn

import (
	"fmt"
	"math/rand"

	"github.com/petal-ml/petal/internal/tensor"
)

// Dropout randomly zeroes elements with probability p during training,
// scaling survivors by 1/(1-p) (inverted dropout), so evaluation is a
// plain identity with no rescaling.
type Dropout struct {
	p        float32
	training bool
	rng      *rand.Rand

	// mask from the last training-mode Forward, kept for Backward.
	mask []float32
}

// NewDropout creates a Dropout module with drop probability p in [0, 1).
func NewDropout(p float64, rng *rand.Rand) *Dropout {
	if p < 0 || p >= 1 {
		panic(fmt.Sprintf("Dropout: p must be in [0, 1), got %v", p))
	}
	return &Dropout{
		p:        float32(p),
		training: true,
		rng:      rng,
	}
}

// SetTraining toggles between training (dropping) and evaluation
// (identity) behavior.
func (d *Dropout) SetTraining(training bool) {
	d.training = training
}

// Forward applies dropout in training mode, identity in eval mode.
func (d *Dropout) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	if !d.training || d.p == 0 {
		d.mask = nil
		return input
	}

	keep := 1 - d.p
	scale := 1 / keep

	in := input.AsFloat32()
	d.mask = make([]float32, len(in))

	output := tensor.Zeros(input.Shape(), input.Device())
	out := output.AsFloat32()
	for i := range in {
		if d.rng.Float32() < keep {
			d.mask[i] = scale
			out[i] = in[i] * scale
		}
	}
	return output
}

// Backward applies the same mask to the incoming gradient.
func (d *Dropout) Backward(grad *tensor.RawTensor) *tensor.RawTensor {
	if d.mask == nil {
		return grad
	}

	output := tensor.Zeros(grad.Shape(), grad.Device())
	gd, out := grad.AsFloat32(), output.AsFloat32()
	for i := range gd {
		out[i] = gd[i] * d.mask[i]
	}
	return output
}

// Parameters returns an empty slice; Dropout has no parameters.
func (d *Dropout) Parameters() []*Parameter {
	return nil
}
