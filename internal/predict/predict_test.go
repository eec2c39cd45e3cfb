package predict

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/tensor"
	"github.com/petal-ml/petal/internal/vision/dataset"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestProcessImageOutputShape(t *testing.T) {
	out := ProcessImage(solid(500, 300, color.White), 224)
	require.True(t, out.Shape().Equal(tensor.Shape{3, 224, 224}))
}

func TestProcessImagePreservesAspectBeforeCrop(t *testing.T) {
	// 2:1 landscape resized so the short side is 256: the resize step
	// alone would produce 512x256, and the crop keeps the center 224.
	// Values from the edges must not appear: paint the left and right
	// borders red and the center white, and assert the crop is white.
	img := image.NewRGBA(image.Rect(0, 0, 1000, 500))
	for y := 0; y < 500; y++ {
		for x := 0; x < 1000; x++ {
			if x < 200 || x >= 800 {
				img.Set(x, y, color.RGBA{R: 255, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}

	out := ProcessImage(img, 224)
	data := out.AsFloat32()
	plane := 224 * 224

	// Green channel of a white pixel normalizes to (1-0.456)/0.224.
	want := (1 - 0.456) / 0.224
	mid := plane + (112*224 + 112)
	assert.InDelta(t, want, float64(data[mid]), 0.05)
}

func TestProcessImageNormalization(t *testing.T) {
	out := ProcessImage(solid(300, 300, color.Black), 224)
	data := out.AsFloat32()
	plane := 224 * 224

	// Black pixels: (0 - mean) / std per channel.
	means := [3]float64{0.485, 0.456, 0.406}
	stds := [3]float64{0.229, 0.224, 0.225}
	for c := 0; c < 3; c++ {
		got := float64(data[c*plane+plane/2])
		want := -means[c] / stds[c]
		if math.Abs(got-want) > 0.05 {
			t.Errorf("channel %d: got %f, want %f", c, got, want)
		}
	}
}

func newTestModel(numClasses int) *nn.Classifier {
	rng := rand.New(rand.NewSource(1))
	cfg := nn.BackboneConfig{
		InChannels: 3,
		Channels:   []int{2},
		InputSize:  InputSize,
		Device:     tensor.CPU,
	}
	return nn.NewClassifier(nn.NewBackbone(cfg, rng), nn.ClassifierConfig{
		NumFeatures: cfg.FeatureDim(),
		Hidden:      4,
		NumClasses:  numClasses,
		Dropout:     0,
		Device:      tensor.CPU,
	}, rng)
}

func TestPredictTopK(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flower.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, solid(320, 240, color.RGBA{R: 200, G: 80, B: 120, A: 255})))
	require.NoError(t, file.Close())

	classToIdx := map[string]int{"1": 0, "10": 1, "21": 2, "74": 3, "9": 4}
	names := dataset.CategoryNames{"74": "rose", "1": "pink primrose"}

	model := newTestModel(len(classToIdx))
	result, err := Predict(path, model, classToIdx, names, 3)
	require.NoError(t, err)

	require.Len(t, result.Probs, 3)
	require.Len(t, result.Labels, 3)
	require.Len(t, result.Names, 3)

	// Relative probabilities over the selected set sum to 1.
	var sum float32
	for i, p := range result.Probs {
		sum += p
		if i > 0 {
			assert.LessOrEqual(t, p, result.Probs[i-1], "probs are descending")
		}
	}
	assert.InDelta(t, 1.0, float64(sum), 1e-5)

	// Labels come from the mapping, names fall back to the label.
	for i, label := range result.Labels {
		assert.Equal(t, classToIdx[label], result.Indices[i])
		if label != "74" && label != "1" {
			assert.Equal(t, label, result.Names[i])
		}
	}

	require.True(t, result.Input.Shape().Equal(tensor.Shape{3, InputSize, InputSize}))
}

func TestPredictMissingFile(t *testing.T) {
	model := newTestModel(2)
	_, err := Predict(filepath.Join(t.TempDir(), "nope.jpg"), model, map[string]int{"1": 0, "2": 1}, nil, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, err.Error(), "not found")
}

func TestPredictUndecodableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.jpg")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	model := newTestModel(2)
	_, err := Predict(path, model, map[string]int{"1": 0, "2": 1}, nil, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image")
}

func TestPredictKClampedToClassCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flower.png")
	file, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(file, solid(256, 256, color.White)))
	require.NoError(t, file.Close())

	model := newTestModel(3)
	result, err := Predict(path, model, map[string]int{"1": 0, "2": 1, "3": 2}, nil, 10)
	require.NoError(t, err)
	assert.Len(t, result.Probs, 3)
}
