package train

import (
	"sort"

	"github.com/petal-ml/petal/internal/tensor"
)

// TopKAccuracy returns, for each requested K, the percentage of rows in
// scores [batch, classes] whose target label ranks among the K highest
// scores. Ties rank by score first, then by lower class index, so the
// result is deterministic.
//
// The result is non-decreasing in K: a label inside the top 1 is
// inside the top 5.
func TopKAccuracy(scores *tensor.RawTensor, targets []int, ks ...int) []float64 {
	shape := scores.Shape()
	batch, classes := shape[0], shape[1]
	data := scores.AsFloat32()

	maxK := 0
	for _, k := range ks {
		if k > maxK {
			maxK = k
		}
	}
	if maxK > classes {
		maxK = classes
	}

	// For each row, the rank of the target label among sorted scores.
	ranks := make([]int, batch)
	order := make([]int, classes)
	for row := 0; row < batch; row++ {
		rowScores := data[row*classes : (row+1)*classes]
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			if rowScores[order[a]] != rowScores[order[b]] {
				return rowScores[order[a]] > rowScores[order[b]]
			}
			return order[a] < order[b]
		})

		ranks[row] = classes
		for rank, class := range order[:maxK] {
			if class == targets[row] {
				ranks[row] = rank
				break
			}
		}
	}

	results := make([]float64, len(ks))
	for i, k := range ks {
		correct := 0
		for _, rank := range ranks {
			if rank < k {
				correct++
			}
		}
		results[i] = 100 * float64(correct) / float64(batch)
	}
	return results
}
