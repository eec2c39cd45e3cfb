package nn

import (
	"math/rand"

	"github.com/petal-ml/petal/internal/tensor"
)

// BackboneConfig describes the convolutional feature extractor.
type BackboneConfig struct {
	InChannels int   // image channels, normally 3
	Channels   []int // output channels per conv block
	InputSize  int   // square input edge in pixels
	Device     tensor.Device
}

// DefaultBackboneConfig returns the PetalNet configuration used for
// 224x224 RGB inputs: four conv blocks, each halving the spatial size.
func DefaultBackboneConfig() BackboneConfig {
	return BackboneConfig{
		InChannels: 3,
		Channels:   []int{16, 32, 64, 128},
		InputSize:  224,
		Device:     tensor.CPU,
	}
}

// FeatureDim returns the flattened feature count the backbone produces.
// Each block halves the spatial resolution with a stride-2 pool.
func (cfg BackboneConfig) FeatureDim() int {
	size := cfg.InputSize
	for range cfg.Channels {
		size /= 2
	}
	last := cfg.Channels[len(cfg.Channels)-1]
	return last * size * size
}

// NewBackbone builds the PetalNet feature extractor: per block a 3x3
// same-padding convolution, batch norm, ReLU and a 2x2 max pool.
//
// The returned chain is not frozen; the classifier freezes it after the
// pretrained weights are loaded.
func NewBackbone(cfg BackboneConfig, rng *rand.Rand) *Sequential {
	backbone := NewSequential()

	in := cfg.InChannels
	for _, out := range cfg.Channels {
		backbone.Add(NewConv2D(in, out, 3, 1, 1, cfg.Device, rng))
		backbone.Add(NewBatchNorm2D(out, cfg.Device))
		backbone.Add(NewReLU())
		backbone.Add(NewMaxPool2D(2, 2))
		in = out
	}
	return backbone
}
