// Package predict runs single-image inference: preprocessing, forward
// pass and top-K class selection.
package predict

import (
	"image"

	"github.com/petal-ml/petal/internal/tensor"
	"github.com/petal-ml/petal/internal/vision/transform"
)

// resizeMargin is added to the crop size when resizing, so the center
// crop discards a border instead of the image edge itself.
const resizeMargin = 32

// ProcessImage preprocesses one image for inference: resize so the
// shortest side is size+32 with aspect ratio preserved, center-crop to
// size x size, scale to [0, 1] and normalize with the ImageNet channel
// statistics. Returns a [3, size, size] tensor.
func ProcessImage(img image.Image, size int) *tensor.RawTensor {
	prep := transform.Compose{
		transform.Resize{Size: size + resizeMargin},
		transform.CenterCrop{Size: size},
	}

	t := transform.ToTensor(prep.Apply(img))
	transform.Normalize(t, transform.ImageNetMean, transform.ImageNetStd)
	return t
}
