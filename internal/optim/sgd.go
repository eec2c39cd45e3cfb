package optim

import (
	"fmt"

	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Without momentum: param -= lr * grad.
// With momentum: velocity = momentum*velocity + grad; param -= lr * velocity.
type SGD struct {
	params     []*nn.Parameter
	lr         float32
	momentum   float32
	velocities map[*nn.Parameter]*tensor.RawTensor
}

// SGDConfig holds SGD hyperparameters.
type SGDConfig struct {
	LR       float32 // learning rate (default 0.01)
	Momentum float32 // momentum factor in [0, 1)
}

// NewSGD creates an SGD optimizer over the given parameters.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*nn.Parameter]*tensor.RawTensor),
	}
}

// Step applies one SGD update to every trainable parameter with a
// gradient.
func (s *SGD) Step() {
	for _, param := range s.params {
		if !updatable(param) {
			continue
		}

		data := param.Tensor().AsFloat32()
		grad := param.Grad().AsFloat32()

		if s.momentum == 0 {
			for i := range data {
				data[i] -= s.lr * grad[i]
			}
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			velocity = tensor.Zeros(param.Tensor().Shape(), param.Tensor().Device())
			s.velocities[param] = velocity
		}
		vd := velocity.AsFloat32()
		for i := range data {
			vd[i] = s.momentum*vd[i] + grad[i]
			data[i] -= s.lr * vd[i]
		}
	}
}

// ZeroGrad clears gradients on all parameters.
func (s *SGD) ZeroGrad() {
	for _, param := range s.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (s *SGD) GetLR() float32 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float32) {
	s.lr = lr
}

// Name returns "SGD".
func (s *SGD) Name() string {
	return "SGD"
}

// StateDict exports the velocity buffers, keyed "velocity.{i}" by
// parameter position. Empty without momentum.
func (s *SGD) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	if s.momentum == 0 {
		return stateDict
	}
	for i, param := range s.params {
		if velocity, ok := s.velocities[param]; ok {
			stateDict[fmt.Sprintf("velocity.%d", i)] = velocity
		}
	}
	return stateDict
}

// LoadStateDict restores velocity buffers. Buffers absent from the
// state dict are initialized lazily on the next Step.
func (s *SGD) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if s.momentum == 0 {
		return nil
	}

	s.velocities = make(map[*nn.Parameter]*tensor.RawTensor)
	for i, param := range s.params {
		raw, ok := stateDict[fmt.Sprintf("velocity.%d", i)]
		if !ok {
			continue
		}
		if !raw.Shape().Equal(param.Tensor().Shape()) {
			return fmt.Errorf("velocity shape mismatch for parameter %d: expected %v, got %v",
				i, param.Tensor().Shape(), raw.Shape())
		}
		s.velocities[param] = raw.Clone()
	}
	return nil
}
