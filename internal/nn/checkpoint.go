package nn

import (
	"fmt"
	"strings"
	"time"

	"github.com/petal-ml/petal/internal/serialization"
	"github.com/petal-ml/petal/internal/tensor"
)

// OptimizerState is the slice of the optimizer surface checkpoints
// need. Declared here rather than importing optim to avoid a cycle;
// optimizers from the optim package satisfy it.
type OptimizerState interface {
	StateDict() map[string]*tensor.RawTensor
	LoadStateDict(stateDict map[string]*tensor.RawTensor) error
	GetLR() float32
	Name() string
}

// Checkpoint is a complete training snapshot: model weights, optimizer
// state, the epoch counter, the best validation accuracy so far, and
// the class-to-index mapping from the training-time directory scan.
//
// The mapping travels inside the checkpoint because inference must
// invert exactly the mapping training produced; a different scan order
// would silently relabel every prediction.
type Checkpoint struct {
	Model        StateModule
	Optimizer    OptimizerState
	Epoch        int
	BestAccuracy float64
	ClassToIdx   map[string]int
	// HiddenSize and Dropout describe the head architecture, so a
	// restore can rebuild the model shell from the file alone.
	HiddenSize int
	Dropout    float64
	RunID      string
	CreatedAt  time.Time
}

const optimizerPrefix = "optimizer."

// Save writes the checkpoint to path, overwriting any existing file
// wholesale. Optimizer state is stored alongside model state under an
// "optimizer." key prefix.
func (c *Checkpoint) Save(path string) error {
	combined := make(map[string]*tensor.RawTensor)
	for name, raw := range c.Model.StateDict() {
		combined[name] = raw
	}
	for name, raw := range c.Optimizer.StateDict() {
		combined[optimizerPrefix+name] = raw
	}

	header := serialization.Header{
		CreatedAt: time.Now().UTC(),
		CheckpointMeta: &serialization.CheckpointMeta{
			IsCheckpoint:    true,
			Epoch:           c.Epoch,
			BestAccuracy:    c.BestAccuracy,
			NumClasses:      len(c.ClassToIdx),
			ClassToIdx:      c.ClassToIdx,
			HiddenSize:      c.HiddenSize,
			DropoutRate:     c.Dropout,
			OptimizerType:   c.Optimizer.Name(),
			OptimizerConfig: map[string]float64{"lr": float64(c.Optimizer.GetLR())},
			RunID:           c.RunID,
		},
	}

	if err := serialization.NewWriter(path).WriteStateDict(combined, header); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// PeekCheckpoint reads only the checkpoint metadata, without loading
// tensors. Callers use it to size the model before LoadCheckpoint.
func PeekCheckpoint(path string) (*serialization.CheckpointMeta, error) {
	reader, err := serialization.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}

	meta := reader.Header().CheckpointMeta
	if meta == nil || !meta.IsCheckpoint {
		return nil, fmt.Errorf("%s is not a checkpoint file", path)
	}
	return meta, nil
}

// LoadCheckpoint restores a checkpoint from path into a pre-constructed
// model and optimizer of the same architecture. A mismatched shape
// surfaces as an error from the model's LoadStateDict; there is no
// schema migration.
func LoadCheckpoint(path string, device tensor.Device, model StateModule, optimizer OptimizerState) (*Checkpoint, error) {
	reader, err := serialization.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}

	header := reader.Header()
	if header.CheckpointMeta == nil || !header.CheckpointMeta.IsCheckpoint {
		return nil, fmt.Errorf("%s is not a checkpoint file", path)
	}

	stateDict, err := reader.ReadStateDict(device)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	modelState := make(map[string]*tensor.RawTensor)
	optimizerState := make(map[string]*tensor.RawTensor)
	for name, raw := range stateDict {
		if strings.HasPrefix(name, optimizerPrefix) {
			optimizerState[strings.TrimPrefix(name, optimizerPrefix)] = raw
		} else {
			modelState[name] = raw
		}
	}

	if err := model.LoadStateDict(modelState); err != nil {
		return nil, fmt.Errorf("load model state: %w", err)
	}
	if err := optimizer.LoadStateDict(optimizerState); err != nil {
		return nil, fmt.Errorf("load optimizer state: %w", err)
	}

	meta := header.CheckpointMeta
	if meta.NumClasses != len(meta.ClassToIdx) {
		return nil, fmt.Errorf("checkpoint class count %d does not match mapping size %d",
			meta.NumClasses, len(meta.ClassToIdx))
	}

	return &Checkpoint{
		Model:        model,
		Optimizer:    optimizer,
		Epoch:        meta.Epoch,
		BestAccuracy: meta.BestAccuracy,
		ClassToIdx:   meta.ClassToIdx,
		HiddenSize:   meta.HiddenSize,
		Dropout:      meta.DropoutRate,
		RunID:        meta.RunID,
		CreatedAt:    header.CreatedAt,
	}, nil
}
