package nn

import (
	"fmt"
	"math"

	"github.com/petal-ml/petal/internal/tensor"
)

// BatchNorm2D normalizes [batch, c, h, w] inputs per channel using
// stored running statistics:
//
//	y = (x - runningMean) / sqrt(runningVar + eps) * gamma + beta
//
// The layer always normalizes with the running statistics it was loaded
// with. It lives only inside the frozen backbone, where the pretrained
// statistics are exactly what inference behavior calls for, so there is
// no batch-statistics training path.
type BatchNorm2D struct {
	numFeatures int
	eps         float32
	weight      *Parameter // gamma, [c]
	bias        *Parameter // beta, [c]
	runningMean *tensor.RawTensor
	runningVar  *tensor.RawTensor
}

// NewBatchNorm2D creates a BatchNorm2D with identity statistics
// (mean 0, variance 1, gamma 1, beta 0).
func NewBatchNorm2D(numFeatures int, device tensor.Device) *BatchNorm2D {
	gamma := tensor.Full(tensor.Shape{numFeatures}, 1, device)
	beta := tensor.Zeros(tensor.Shape{numFeatures}, device)

	return &BatchNorm2D{
		numFeatures: numFeatures,
		eps:         1e-5,
		weight:      NewParameter("weight", gamma),
		bias:        NewParameter("bias", beta),
		runningMean: tensor.Zeros(tensor.Shape{numFeatures}, device),
		runningVar:  tensor.Full(tensor.Shape{numFeatures}, 1, device),
	}
}

// Forward normalizes each channel with the running statistics.
func (bn *BatchNorm2D) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 4 || shape[1] != bn.numFeatures {
		panic(fmt.Sprintf("BatchNorm2D.Forward: want [batch, %d, h, w], got %v", bn.numFeatures, shape))
	}

	batch, c, h, w := shape[0], shape[1], shape[2], shape[3]
	plane := h * w

	output := tensor.Zeros(shape, input.Device())
	in, out := input.AsFloat32(), output.AsFloat32()
	mean, variance := bn.runningMean.AsFloat32(), bn.runningVar.AsFloat32()
	gamma, beta := bn.weight.Tensor().AsFloat32(), bn.bias.Tensor().AsFloat32()

	for ch := 0; ch < c; ch++ {
		scale := gamma[ch] / float32(math.Sqrt(float64(variance[ch]+bn.eps)))
		shift := beta[ch] - mean[ch]*scale
		for b := 0; b < batch; b++ {
			off := (b*c + ch) * plane
			for i := 0; i < plane; i++ {
				out[off+i] = in[off+i]*scale + shift
			}
		}
	}
	return output
}

// Parameters returns [gamma, beta].
func (bn *BatchNorm2D) Parameters() []*Parameter {
	return []*Parameter{bn.weight, bn.bias}
}

// StateDict returns gamma, beta and the running statistics buffers.
func (bn *BatchNorm2D) StateDict() map[string]*tensor.RawTensor {
	return map[string]*tensor.RawTensor{
		"weight":       bn.weight.Tensor(),
		"bias":         bn.bias.Tensor(),
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	}
}

// LoadStateDict restores gamma, beta and the running statistics.
func (bn *BatchNorm2D) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	if err := loadParams(stateDict, map[string]*Parameter{
		"weight": bn.weight,
		"bias":   bn.bias,
	}); err != nil {
		return err
	}

	for name, dst := range map[string]*tensor.RawTensor{
		"running_mean": bn.runningMean,
		"running_var":  bn.runningVar,
	} {
		raw, ok := stateDict[name]
		if !ok {
			return fmt.Errorf("missing %q in state dict", name)
		}
		if !raw.Shape().Equal(dst.Shape()) {
			return fmt.Errorf("%s shape mismatch: expected %v, got %v", name, dst.Shape(), raw.Shape())
		}
		if err := dst.CopyFrom(raw); err != nil {
			return fmt.Errorf("copy %s: %w", name, err)
		}
	}
	return nil
}
