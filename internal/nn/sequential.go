package nn

import (
	"fmt"
	"strings"

	"github.com/petal-ml/petal/internal/tensor"
)

// Sequential chains modules so each module's output feeds the next.
type Sequential struct {
	modules []Module
}

// NewSequential creates a Sequential container over the given modules.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward applies all modules in order.
func (s *Sequential) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	output := input
	for _, module := range s.modules {
		output = module.Forward(output)
	}
	return output
}

// Backward runs the chain in reverse. Every module in the container
// must implement Backprop; containers holding forward-only modules
// (the frozen backbone) must not be differentiated.
func (s *Sequential) Backward(grad *tensor.RawTensor) *tensor.RawTensor {
	for i := len(s.modules) - 1; i >= 0; i-- {
		bp, ok := s.modules[i].(Backprop)
		if !ok {
			panic(fmt.Sprintf("Sequential.Backward: module %d (%T) does not support backward", i, s.modules[i]))
		}
		grad = bp.Backward(grad)
	}
	return grad
}

// Parameters returns the parameters of all modules, in order.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// SetTraining propagates the training mode to all mode-aware modules.
func (s *Sequential) SetTraining(training bool) {
	for _, module := range s.modules {
		if te, ok := module.(TrainEval); ok {
			te.SetTraining(training)
		}
	}
}

// Add appends a module to the chain.
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the chain.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// StateDict returns all module state, keyed by module index prefix
// ("0.weight", "3.running_mean", ...).
func (s *Sequential) StateDict() map[string]*tensor.RawTensor {
	stateDict := make(map[string]*tensor.RawTensor)
	for i, module := range s.modules {
		sm, ok := module.(StateModule)
		if !ok {
			continue
		}
		for name, raw := range sm.StateDict() {
			stateDict[fmt.Sprintf("%d.%s", i, name)] = raw
		}
	}
	return stateDict
}

// LoadStateDict restores module state from index-prefixed keys.
func (s *Sequential) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	for i, module := range s.modules {
		sm, ok := module.(StateModule)
		if !ok {
			continue
		}

		prefix := fmt.Sprintf("%d.", i)
		moduleState := make(map[string]*tensor.RawTensor)
		for key, raw := range stateDict {
			if strings.HasPrefix(key, prefix) {
				moduleState[strings.TrimPrefix(key, prefix)] = raw
			}
		}

		if err := sm.LoadStateDict(moduleState); err != nil {
			return fmt.Errorf("load module %d: %w", i, err)
		}
	}
	return nil
}
