package transform

import (
	"image"
	"image/color"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-ml/petal/internal/tensor"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestResizeShortestSide(t *testing.T) {
	// Landscape: height is the shortest side.
	out := Resize{Size: 256}.Apply(solidImage(800, 600, color.White))
	assert.Equal(t, 256, out.Bounds().Dy())
	// Aspect ratio preserved: 800/600 vs new width/256.
	ratio := float64(out.Bounds().Dx()) / 256
	assert.InDelta(t, 800.0/600.0, ratio, 0.01)

	// Portrait: width is the shortest side.
	out = Resize{Size: 256}.Apply(solidImage(600, 800, color.White))
	assert.Equal(t, 256, out.Bounds().Dx())
}

func TestCenterCropSizeAndTruncation(t *testing.T) {
	// Mark the expected crop origin of a 5x5 crop from 8x8: offset
	// (8-5)/2 = 1, so source pixel (1,1) becomes output (0,0).
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	out := CenterCrop{Size: 5}.Apply(img)
	require.Equal(t, 5, out.Bounds().Dx())
	require.Equal(t, 5, out.Bounds().Dy())

	r, _, _, _ := out.At(out.Bounds().Min.X, out.Bounds().Min.Y).RGBA()
	assert.NotZero(t, r)
}

func TestRandomHorizontalFlip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	flipped := RandomHorizontalFlip{P: 1, Rng: rand.New(rand.NewSource(1))}.Apply(img)
	r, _, _, _ := flipped.At(1, 0).RGBA()
	assert.NotZero(t, r, "left pixel should move right on flip")

	same := RandomHorizontalFlip{P: 0, Rng: rand.New(rand.NewSource(1))}.Apply(img)
	assert.Equal(t, img.Bounds(), same.Bounds())
	r, _, _, _ = same.At(0, 0).RGBA()
	assert.NotZero(t, r)
}

func TestRandomResizedCropOutputSize(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	crop := RandomResizedCrop{Size: 224, ScaleMin: 0.6, ScaleMax: 1.0, Rng: rng}

	for i := 0; i < 5; i++ {
		out := crop.Apply(solidImage(500, 300, color.White))
		assert.Equal(t, 224, out.Bounds().Dx())
		assert.Equal(t, 224, out.Bounds().Dy())
	}
}

func TestRandomRotationOutputCoversInput(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	out := RandomRotation{MaxDegrees: 30, Rng: rng}.Apply(solidImage(50, 50, color.White))
	assert.GreaterOrEqual(t, out.Bounds().Dx(), 50)
	assert.GreaterOrEqual(t, out.Bounds().Dy(), 50)
}

func TestNewRandConcurrentUse(t *testing.T) {
	rng := NewRand(1)
	flip := RandomHorizontalFlip{P: 0.5, Rng: rng}
	img := solidImage(4, 4, color.White)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				flip.Apply(img)
			}
		}()
	}
	wg.Wait()
}

func TestNewRandDeterministicWhenSequential(t *testing.T) {
	a, b := NewRand(7), NewRand(7)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestToTensorCHWAndRange(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	img.Set(1, 1, color.RGBA{R: 0, G: 0, B: 255, A: 255})

	out := ToTensor(img)
	require.True(t, out.Shape().Equal(tensor.Shape{3, 2, 2}))

	data := out.AsFloat32()
	// Red channel, pixel (0,0).
	assert.InDelta(t, 1.0, data[0], 1e-3)
	// Blue channel (plane offset 8), pixel (1,1) = index 3.
	assert.InDelta(t, 1.0, data[8+3], 1e-3)
	// Green channel stays zero everywhere.
	for i := 4; i < 8; i++ {
		assert.InDelta(t, 0.0, data[i], 1e-3)
	}
}

func TestNormalizeImageNetStats(t *testing.T) {
	in := tensor.Full(tensor.Shape{3, 1, 1}, 0.5, tensor.CPU)
	Normalize(in, ImageNetMean, ImageNetStd)

	data := in.AsFloat32()
	for c := 0; c < 3; c++ {
		want := (0.5 - ImageNetMean[c]) / ImageNetStd[c]
		if math.Abs(float64(data[c]-want)) > 1e-6 {
			t.Errorf("channel %d: got %f, want %f", c, data[c], want)
		}
	}
}
