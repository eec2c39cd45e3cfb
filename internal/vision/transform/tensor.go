package transform

import (
	"image"

	"github.com/petal-ml/petal/internal/tensor"
)

// ImageNet channel statistics. Pretrained backbones were trained
// against inputs normalized with these, so every pipeline in this
// project uses them.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ToTensor converts an image to a [3, H, W] float32 tensor with values
// scaled from 0..255 to [0, 1]. Alpha is discarded.
func ToTensor(img image.Image) *tensor.RawTensor {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	t := tensor.Zeros(tensor.Shape{3, h, w}, tensor.CPU)
	data := t.AsFloat32()
	plane := h * w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 16-bit channels; scale to [0, 1].
			i := y*w + x
			data[i] = float32(r) / 65535
			data[plane+i] = float32(g) / 65535
			data[2*plane+i] = float32(b) / 65535
		}
	}
	return t
}

// Normalize subtracts mean and divides by std per channel, in place.
// The tensor must be [3, H, W].
func Normalize(t *tensor.RawTensor, mean, std [3]float32) {
	shape := t.Shape()
	plane := shape[1] * shape[2]
	data := t.AsFloat32()

	for c := 0; c < 3; c++ {
		for i := c * plane; i < (c+1)*plane; i++ {
			data[i] = (data[i] - mean[c]) / std[c]
		}
	}
}
