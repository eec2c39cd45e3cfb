package nn

import (
	"fmt"
	"math"

	"github.com/petal-ml/petal/internal/tensor"
)

// LogSoftmax computes row-wise log(softmax(x)) for [batch, classes]
// inputs. The classifier head ends with this module, so the model
// output is log-probabilities and pairs with NLLLoss.
type LogSoftmax struct {
	// output of the last Forward call, kept for Backward.
	output *tensor.RawTensor
}

// NewLogSoftmax creates a LogSoftmax module.
func NewLogSoftmax() *LogSoftmax {
	return &LogSoftmax{}
}

// Forward computes log-softmax per row using the log-sum-exp trick.
func (s *LogSoftmax) Forward(input *tensor.RawTensor) *tensor.RawTensor {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("LogSoftmax.Forward: want 2D [batch, classes], got %v", shape))
	}

	batch, classes := shape[0], shape[1]
	output := tensor.Zeros(shape, input.Device())
	in, out := input.AsFloat32(), output.AsFloat32()

	for b := 0; b < batch; b++ {
		row := in[b*classes : (b+1)*classes]
		copy(out[b*classes:(b+1)*classes], logSoftmax(row))
	}

	s.output = output
	return output
}

// Backward computes dx = dy - softmax(x) * rowsum(dy).
func (s *LogSoftmax) Backward(grad *tensor.RawTensor) *tensor.RawTensor {
	if s.output == nil {
		panic("LogSoftmax.Backward: called before Forward")
	}

	shape := grad.Shape()
	batch, classes := shape[0], shape[1]

	output := tensor.Zeros(shape, grad.Device())
	gd, od, logp := grad.AsFloat32(), output.AsFloat32(), s.output.AsFloat32()

	for b := 0; b < batch; b++ {
		gRow := gd[b*classes : (b+1)*classes]
		sum := float32(0)
		for _, g := range gRow {
			sum += g
		}
		for j := 0; j < classes; j++ {
			p := float32(math.Exp(float64(logp[b*classes+j])))
			od[b*classes+j] = gRow[j] - p*sum
		}
	}
	return output
}

// Parameters returns an empty slice; LogSoftmax has no parameters.
func (s *LogSoftmax) Parameters() []*Parameter {
	return nil
}

// logSoftmax computes log(softmax(z)) in a numerically stable way:
// z[i] - (max(z) + log(sum exp(z - max(z)))).
func logSoftmax(z []float32) []float32 {
	result := make([]float32, len(z))

	maxZ := z[0]
	for _, v := range z[1:] {
		if v > maxZ {
			maxZ = v
		}
	}

	sumExp := float64(0)
	for _, v := range z {
		sumExp += math.Exp(float64(v - maxZ))
	}
	logSumExp := maxZ + float32(math.Log(sumExp))

	for i, v := range z {
		result[i] = v - logSumExp
	}
	return result
}

// Softmax computes softmax(z) = exp(logSoftmax(z)), avoiding overflow
// for large scores. Used by prediction to calibrate selected scores.
func Softmax(z []float32) []float32 {
	logProbs := logSoftmax(z)
	result := make([]float32, len(logProbs))
	for i, lp := range logProbs {
		result[i] = float32(math.Exp(float64(lp)))
	}
	return result
}
