package predict

import (
	"fmt"
	"image"
	"os"
	"sort"

	_ "image/jpeg"
	_ "image/png"

	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/tensor"
	"github.com/petal-ml/petal/internal/vision/dataset"
)

// InputSize is the square model input edge in pixels.
const InputSize = 224

// Result holds the top-K prediction for one image. Probs are softmax
// values over the K selected scores only, so they sum to 1 across the
// returned set and read as relative confidence among the top K, not
// absolute probability over all classes.
type Result struct {
	Probs   []float32 // descending
	Indices []int     // model output indices
	Labels  []string  // class labels from the checkpoint mapping
	Names   []string  // display names, label fallback
	Input   *tensor.RawTensor
}

// Predict classifies the image at path and returns its top-K classes.
// The classToIdx mapping must be the one stored in the checkpoint the
// model was restored from.
func Predict(path string, model *nn.Classifier, classToIdx map[string]int, names dataset.CategoryNames, k int) (*Result, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("image file not found: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", path, err)
	}

	input := ProcessImage(img, InputSize)

	batched, err := input.Reshape(tensor.Shape{1, 3, InputSize, InputSize})
	if err != nil {
		return nil, fmt.Errorf("batch input: %w", err)
	}

	model.Eval()
	scores := model.Forward(batched).AsFloat32()

	if k > len(scores) {
		k = len(scores)
	}
	top := topIndices(scores, k)

	idxToClass := make(map[int]string, len(classToIdx))
	for class, idx := range classToIdx {
		idxToClass[idx] = class
	}

	result := &Result{
		Probs:   nn.Softmax(selectScores(scores, top)),
		Indices: top,
		Labels:  make([]string, k),
		Names:   make([]string, k),
		Input:   input,
	}
	for i, idx := range top {
		label, ok := idxToClass[idx]
		if !ok {
			return nil, fmt.Errorf("model output index %d has no class label", idx)
		}
		result.Labels[i] = label
		result.Names[i] = names.Name(label)
	}
	return result, nil
}

// topIndices returns the indices of the k highest scores, highest
// first; ties rank by lower index.
func topIndices(scores []float32, k int) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if scores[order[a]] != scores[order[b]] {
			return scores[order[a]] > scores[order[b]]
		}
		return order[a] < order[b]
	})
	return order[:k]
}

func selectScores(scores []float32, indices []int) []float32 {
	out := make([]float32, len(indices))
	for i, idx := range indices {
		out[i] = scores[idx]
	}
	return out
}
