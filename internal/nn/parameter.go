package nn

import "github.com/petal-ml/petal/internal/tensor"

// Parameter is a tensor with gradient bookkeeping.
//
// Parameters are created trainable. Freezing clears the flag, which
// makes optimizers skip the parameter and keeps its values fixed for
// the rest of the run; the backbone is frozen this way while the new
// classification head stays trainable.
type Parameter struct {
	name      string
	tensor    *tensor.RawTensor
	grad      *tensor.RawTensor
	trainable bool
}

// NewParameter creates a trainable parameter wrapping t.
func NewParameter(name string, t *tensor.RawTensor) *Parameter {
	return &Parameter{
		name:      name,
		tensor:    t,
		trainable: true,
	}
}

// Name returns the parameter name (e.g. "weight", "bias").
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.RawTensor {
	return p.tensor
}

// Grad returns the accumulated gradient, or nil before the first
// backward pass since the last ZeroGrad.
func (p *Parameter) Grad() *tensor.RawTensor {
	return p.grad
}

// AccumGrad adds g to the accumulated gradient, allocating it on first use.
func (p *Parameter) AccumGrad(g *tensor.RawTensor) {
	if p.grad == nil {
		p.grad = g.Clone()
		return
	}
	gd := p.grad.AsFloat32()
	add := g.AsFloat32()
	for i := range gd {
		gd[i] += add[i]
	}
}

// ZeroGrad clears the accumulated gradient. Call before each training
// iteration to avoid mixing gradients across batches.
func (p *Parameter) ZeroGrad() {
	p.grad = nil
}

// Trainable reports whether the parameter receives optimizer updates.
func (p *Parameter) Trainable() bool {
	return p.trainable
}

// Freeze marks the parameter as non-trainable.
func (p *Parameter) Freeze() {
	p.trainable = false
}
