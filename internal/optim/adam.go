package optim

import (
	"fmt"
	"math"

	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/tensor"
)

// Adam implements the Adam optimizer (Kingma & Ba, 2014).
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * grad
//	v_t = beta2 * v_{t-1} + (1-beta2) * grad²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param -= lr * m_hat / (sqrt(v_hat) + eps)
type Adam struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int // timestep for bias correction
	m      map[*nn.Parameter]*tensor.RawTensor
	v      map[*nn.Parameter]*tensor.RawTensor
}

// AdamConfig holds Adam hyperparameters.
type AdamConfig struct {
	LR    float32    // learning rate (default 0.001)
	Betas [2]float32 // moment decay rates (default 0.9, 0.999)
	Eps   float32    // numerical stability term (default 1e-8)
}

// NewAdam creates an Adam optimizer with defaults for unset fields.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*nn.Parameter]*tensor.RawTensor),
		v:      make(map[*nn.Parameter]*tensor.RawTensor),
	}
}

// Step applies one Adam update to every trainable parameter with a
// gradient.
func (a *Adam) Step() {
	a.t++

	bc1 := 1 - float32(math.Pow(float64(a.beta1), float64(a.t)))
	bc2 := 1 - float32(math.Pow(float64(a.beta2), float64(a.t)))

	for _, param := range a.params {
		if !updatable(param) {
			continue
		}

		m, ok := a.m[param]
		if !ok {
			m = tensor.Zeros(param.Tensor().Shape(), param.Tensor().Device())
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = tensor.Zeros(param.Tensor().Shape(), param.Tensor().Device())
			a.v[param] = v
		}

		data := param.Tensor().AsFloat32()
		grad := param.Grad().AsFloat32()
		md, vd := m.AsFloat32(), v.AsFloat32()

		for i := range data {
			g := grad[i]
			md[i] = a.beta1*md[i] + (1-a.beta1)*g
			vd[i] = a.beta2*vd[i] + (1-a.beta2)*g*g

			mHat := md[i] / bc1
			vHat := vd[i] / bc2
			data[i] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients on all parameters.
func (a *Adam) ZeroGrad() {
	for _, param := range a.params {
		param.ZeroGrad()
	}
}

// GetLR returns the current learning rate.
func (a *Adam) GetLR() float32 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float32) {
	a.lr = lr
}

// Name returns "Adam".
func (a *Adam) Name() string {
	return "Adam"
}

// StateDict exports the moment buffers ("m.{i}", "v.{i}") and the
// timestep ("step") so a resumed run continues bias correction where it
// left off.
func (a *Adam) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)

	step, err := tensor.NewRaw(tensor.Shape{1}, tensor.Int64, tensor.CPU)
	if err != nil {
		panic(err)
	}
	step.AsInt64()[0] = int64(a.t)
	stateDict["step"] = step

	for i, param := range a.params {
		if m, ok := a.m[param]; ok {
			stateDict[fmt.Sprintf("m.%d", i)] = m
		}
		if v, ok := a.v[param]; ok {
			stateDict[fmt.Sprintf("v.%d", i)] = v
		}
	}
	return stateDict
}

// LoadStateDict restores moment buffers and the timestep.
func (a *Adam) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if step, ok := stateDict["step"]; ok {
		a.t = int(step.AsInt64()[0])
	}

	a.m = make(map[*nn.Parameter]*tensor.RawTensor)
	a.v = make(map[*nn.Parameter]*tensor.RawTensor)

	for i, param := range a.params {
		for prefix, dst := range map[string]map[*nn.Parameter]*tensor.RawTensor{"m": a.m, "v": a.v} {
			raw, ok := stateDict[fmt.Sprintf("%s.%d", prefix, i)]
			if !ok {
				continue
			}
			if !raw.Shape().Equal(param.Tensor().Shape()) {
				return fmt.Errorf("%s moment shape mismatch for parameter %d: expected %v, got %v",
					prefix, i, param.Tensor().Shape(), raw.Shape())
			}
			dst[param] = raw.Clone()
		}
	}
	return nil
}
