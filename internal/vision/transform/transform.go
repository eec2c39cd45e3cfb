// Package transform provides image preprocessing and augmentation for
// training and inference pipelines.
package transform

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

// Transform is a single image-to-image preprocessing step.
type Transform interface {
	Apply(img image.Image) image.Image
}

// Compose chains transforms left to right.
type Compose []Transform

// Apply runs each transform in order.
func (c Compose) Apply(img image.Image) image.Image {
	for _, t := range c {
		img = t.Apply(img)
	}
	return img
}

// Resize scales the image so its shortest side equals Size, preserving
// aspect ratio.
type Resize struct {
	Size int
}

// Apply resizes with Lanczos3 resampling.
func (t Resize) Apply(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < h {
		return resize.Resize(uint(t.Size), 0, img, resize.Lanczos3)
	}
	return resize.Resize(0, uint(t.Size), img, resize.Lanczos3)
}

// CenterCrop extracts a Size x Size region from the image center. The
// crop origin uses integer division, so odd margins bias one pixel
// toward the top-left.
type CenterCrop struct {
	Size int
}

// Apply crops the center region.
func (t CenterCrop) Apply(img image.Image) image.Image {
	bounds := img.Bounds()
	x0 := bounds.Min.X + (bounds.Dx()-t.Size)/2
	y0 := bounds.Min.Y + (bounds.Dy()-t.Size)/2
	return imaging.Crop(img, image.Rect(x0, y0, x0+t.Size, y0+t.Size))
}

// RandomHorizontalFlip mirrors the image left-right with probability P.
type RandomHorizontalFlip struct {
	P   float64
	Rng *rand.Rand
}

// Apply flips or returns the image unchanged.
func (t RandomHorizontalFlip) Apply(img image.Image) image.Image {
	if t.Rng.Float64() < t.P {
		return imaging.FlipH(img)
	}
	return img
}

// RandomRotation rotates the image by a uniform angle in
// [-MaxDegrees, MaxDegrees], filling revealed corners with black.
type RandomRotation struct {
	MaxDegrees float64
	Rng        *rand.Rand
}

// Apply rotates by a random angle.
func (t RandomRotation) Apply(img image.Image) image.Image {
	angle := (t.Rng.Float64()*2 - 1) * t.MaxDegrees
	return imaging.Rotate(img, angle, color.Black)
}

// RandomResizedCrop crops a random region covering ScaleMin..ScaleMax
// of the image area with a jittered aspect ratio, then resizes it to
// Size x Size. The usual training-split augmentation.
type RandomResizedCrop struct {
	Size     int
	ScaleMin float64 // fraction of source area, e.g. 0.6
	ScaleMax float64 // fraction of source area, e.g. 1.0
	Rng      *rand.Rand
}

// Apply picks a random crop and resizes it.
func (t RandomResizedCrop) Apply(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	area := float64(w * h)

	for attempt := 0; attempt < 10; attempt++ {
		scale := t.ScaleMin + t.Rng.Float64()*(t.ScaleMax-t.ScaleMin)
		ratio := math.Exp(t.Rng.Float64()*(math.Log(4.0/3.0)-math.Log(3.0/4.0)) + math.Log(3.0/4.0))

		cropW := int(math.Round(math.Sqrt(area * scale * ratio)))
		cropH := int(math.Round(math.Sqrt(area * scale / ratio)))
		if cropW > w || cropH > h || cropW < 1 || cropH < 1 {
			continue
		}

		x0 := bounds.Min.X + t.Rng.Intn(w-cropW+1)
		y0 := bounds.Min.Y + t.Rng.Intn(h-cropH+1)
		crop := imaging.Crop(img, image.Rect(x0, y0, x0+cropW, y0+cropH))
		return resize.Resize(uint(t.Size), uint(t.Size), crop, resize.Lanczos3)
	}

	// Fallback: center crop of the shortest side.
	side := w
	if h < w {
		side = h
	}
	crop := CenterCrop{Size: side}.Apply(img)
	return resize.Resize(uint(t.Size), uint(t.Size), crop, resize.Lanczos3)
}
