package nn

import (
	"math"
	"math/rand"

	"github.com/petal-ml/petal/internal/tensor"
)

// Xavier creates a tensor initialized with Xavier/Glorot uniform values
// in [-limit, limit] where limit = sqrt(6 / (fanIn + fanOut)).
func Xavier(fanIn, fanOut int, shape tensor.Shape, device tensor.Device, rng *rand.Rand) *tensor.RawTensor {
	limit := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))

	t := tensor.Zeros(shape, device)
	data := t.AsFloat32()
	for i := range data {
		data[i] = (rng.Float32()*2 - 1) * limit
	}
	return t
}
