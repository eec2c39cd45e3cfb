// Package serialization implements the .petal binary container used for
// checkpoints: a magic header, a JSON tensor index, 64-byte aligned
// tensor data, and a trailing SHA-256 checksum over the whole payload.
package serialization

import (
	"time"

	"github.com/petal-ml/petal/internal/tensor"
)

// Format constants.
const (
	MagicBytes      = "PETL"
	FormatVersion   = 1
	HeaderAlignment = 64 // tensor data starts on a 64-byte boundary
	ChecksumSize    = 32 // SHA-256
)

// Flags for the .petal format.
const (
	FlagHasOptimizer uint32 = 1 << 0 // optimizer state included
	FlagHasMetadata  uint32 = 1 << 1 // custom metadata included
)

// Header is the JSON header of a .petal file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	PetalVersion   string            `json:"petal_version"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// CheckpointMeta carries the training state persisted alongside the
// tensors: the epoch counter, the best validation accuracy seen so far,
// and the class-to-index mapping produced by the training-time directory
// scan. Inference must use this exact mapping or predicted indices
// silently map to wrong labels.
type CheckpointMeta struct {
	IsCheckpoint    bool               `json:"is_checkpoint"`
	Epoch           int                `json:"epoch"`
	BestAccuracy    float64            `json:"best_accuracy"`
	NumClasses      int                `json:"num_classes"`
	ClassToIdx      map[string]int     `json:"class_to_idx"`
	HiddenSize      int                `json:"hidden_size,omitempty"`
	DropoutRate     float64            `json:"dropout_rate,omitempty"`
	OptimizerType   string             `json:"optimizer_type"`
	OptimizerConfig map[string]float64 `json:"optimizer_config,omitempty"`
	RunID           string             `json:"run_id,omitempty"`
}

// TensorMeta describes one tensor inside the file.
type TensorMeta struct {
	Name   string `json:"name"`
	DType  string `json:"dtype"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"` // bytes from the start of the data section
	Size   int64  `json:"size"`   // bytes
}

// dtypeToString converts tensor.DataType to its serialized name.
func dtypeToString(dt tensor.DataType) string {
	return dt.String()
}

// stringToDtype converts a serialized name back to tensor.DataType.
func stringToDtype(s string) (tensor.DataType, bool) {
	switch s {
	case "float32":
		return tensor.Float32, true
	case "int32":
		return tensor.Int32, true
	case "int64":
		return tensor.Int64, true
	case "uint8":
		return tensor.Uint8, true
	default:
		return 0, false
	}
}
