package nn

import (
	"fmt"

	"github.com/petal-ml/petal/internal/tensor"
)

// NLLLoss computes the mean negative log-likelihood over a batch of
// log-probabilities, as produced by LogSoftmax.
//
//	loss = -mean(logProbs[b][targets[b]])
//
// Together with LogSoftmax.Backward this yields the familiar
// softmax-minus-one-hot gradient at the last Linear layer.
func NLLLoss(logProbs *tensor.RawTensor, targets []int) float32 {
	shape := logProbs.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("NLLLoss: want 2D [batch, classes], got %v", shape))
	}

	batch, classes := shape[0], shape[1]
	if len(targets) != batch {
		panic(fmt.Sprintf("NLLLoss: %d targets for batch of %d", len(targets), batch))
	}

	data := logProbs.AsFloat32()
	total := float32(0)
	for b, target := range targets {
		if target < 0 || target >= classes {
			panic(fmt.Sprintf("NLLLoss: target %d out of range [0, %d)", target, classes))
		}
		total += -data[b*classes+target]
	}
	return total / float32(batch)
}

// NLLBackward returns the gradient of NLLLoss with respect to the
// log-probabilities: -one_hot(target)/batch.
func NLLBackward(logProbs *tensor.RawTensor, targets []int) *tensor.RawTensor {
	shape := logProbs.Shape()
	batch, classes := shape[0], shape[1]

	grad := tensor.Zeros(shape, logProbs.Device())
	gd := grad.AsFloat32()
	inv := 1 / float32(batch)
	for b, target := range targets {
		gd[b*classes+target] = -inv
	}
	return grad
}
