package nn_test

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-ml/petal/internal/nn"
	"github.com/petal-ml/petal/internal/optim"
	"github.com/petal-ml/petal/internal/serialization"
	"github.com/petal-ml/petal/internal/tensor"
)

// smallBackboneConfig keeps test tensors tiny: one conv block on 8x8
// inputs, so the flattened feature dim is 4*4*4 = 64.
func smallBackboneConfig() nn.BackboneConfig {
	return nn.BackboneConfig{
		InChannels: 3,
		Channels:   []int{4},
		InputSize:  8,
		Device:     tensor.CPU,
	}
}

func newSmallClassifier(seed int64) *nn.Classifier {
	rng := rand.New(rand.NewSource(seed))
	cfg := smallBackboneConfig()
	backbone := nn.NewBackbone(cfg, rng)
	return nn.NewClassifier(backbone, nn.ClassifierConfig{
		NumFeatures: cfg.FeatureDim(),
		Hidden:      16,
		NumClasses:  5,
		Dropout:     0.2,
		Device:      tensor.CPU,
	}, rng)
}

func TestClassifierBackboneIsFrozen(t *testing.T) {
	model := newSmallClassifier(1)

	frozen, trainable := 0, 0
	for _, p := range model.Parameters() {
		if p.Trainable() {
			trainable++
		} else {
			frozen++
		}
	}
	assert.Greater(t, frozen, 0, "backbone parameters should be frozen")
	// Two linear layers in the head: weight+bias each.
	assert.Equal(t, 4, trainable)
	assert.Len(t, model.TrainableParameters(), 4)
}

func TestClassifierForwardShape(t *testing.T) {
	model := newSmallClassifier(1)
	model.Eval()

	input := tensor.Zeros(tensor.Shape{2, 3, 8, 8}, tensor.CPU)
	out := model.Forward(input)
	require.True(t, out.Shape().Equal(tensor.Shape{2, 5}))
}

func TestClassifierTrainingStepChangesOnlyHead(t *testing.T) {
	model := newSmallClassifier(7)
	model.Train()

	backboneBefore := make(map[string][]float32)
	for name, raw := range model.StateDict() {
		if len(name) > 9 && name[:9] == "backbone." {
			backboneBefore[name] = append([]float32(nil), raw.AsFloat32()...)
		}
	}

	sgd := optim.NewSGD(model.TrainableParameters(), optim.SGDConfig{LR: 0.1})

	input := tensor.Rand(tensor.Shape{2, 3, 8, 8}, tensor.CPU, rand.New(rand.NewSource(2)))
	targets := []int{1, 3}

	logProbs := model.Forward(input)
	lossBefore := nn.NLLLoss(logProbs, targets)

	sgd.ZeroGrad()
	model.Backward(nn.NLLBackward(logProbs, targets))
	sgd.Step()

	for name, before := range backboneBefore {
		after := model.StateDict()[name].AsFloat32()
		for i := range before {
			require.Equal(t, before[i], after[i], "frozen tensor %s moved at %d", name, i)
		}
	}

	// A few more steps on the same batch should reduce the loss.
	for i := 0; i < 20; i++ {
		logProbs = model.Forward(input)
		sgd.ZeroGrad()
		model.Backward(nn.NLLBackward(logProbs, targets))
		sgd.Step()
	}
	lossAfter := nn.NLLLoss(model.Forward(input), targets)
	assert.Less(t, lossAfter, lossBefore)
}

func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.petal")

	model := newSmallClassifier(11)
	sgd := optim.NewSGD(model.TrainableParameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})

	// One training step so the optimizer has velocity state worth saving.
	model.Train()
	input := tensor.Rand(tensor.Shape{2, 3, 8, 8}, tensor.CPU, rand.New(rand.NewSource(5)))
	logProbs := model.Forward(input)
	sgd.ZeroGrad()
	model.Backward(nn.NLLBackward(logProbs, []int{0, 4}))
	sgd.Step()

	classToIdx := map[string]int{"1": 0, "10": 1, "21": 2, "74": 3, "9": 4}
	checkpoint := &nn.Checkpoint{
		Model:        model,
		Optimizer:    sgd,
		Epoch:        3,
		BestAccuracy: 0.8125,
		ClassToIdx:   classToIdx,
		HiddenSize:   16,
		Dropout:      0.2,
		RunID:        "test-run",
	}
	require.NoError(t, checkpoint.Save(path))

	restored := newSmallClassifier(99)
	restoredSGD := optim.NewSGD(restored.TrainableParameters(), optim.SGDConfig{LR: 0.01, Momentum: 0.9})
	loaded, err := nn.LoadCheckpoint(path, tensor.CPU, restored, restoredSGD)
	require.NoError(t, err)

	assert.Equal(t, 3, loaded.Epoch)
	assert.Equal(t, 0.8125, loaded.BestAccuracy)
	assert.Equal(t, classToIdx, loaded.ClassToIdx)
	assert.Equal(t, 16, loaded.HiddenSize)
	assert.Equal(t, 0.2, loaded.Dropout)
	assert.Equal(t, "test-run", loaded.RunID)

	// The metadata alone must be enough to rebuild model and
	// optimizer: head architecture and the training hyperparameters.
	meta, err := nn.PeekCheckpoint(path)
	require.NoError(t, err)
	assert.Equal(t, 16, meta.HiddenSize)
	assert.Equal(t, 0.2, meta.DropoutRate)
	assert.Equal(t, 5, meta.NumClasses)
	assert.Equal(t, "SGD", meta.OptimizerType)
	assert.InDelta(t, 0.01, meta.OptimizerConfig["lr"], 1e-9)

	// Same weights: identical eval-mode outputs.
	model.Eval()
	restored.Eval()
	probe := tensor.Rand(tensor.Shape{1, 3, 8, 8}, tensor.CPU, rand.New(rand.NewSource(8)))
	assert.Equal(t, model.Forward(probe).AsFloat32(), restored.Forward(probe).AsFloat32())
}

func TestLoadCheckpointRejectsPlainWeightFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.petal")

	model := newSmallClassifier(1)
	sgd := optim.NewSGD(model.TrainableParameters(), optim.SGDConfig{LR: 0.01})

	// Write the model state without checkpoint metadata.
	err := serialization.NewWriter(path).WriteStateDict(model.StateDict(), serialization.Header{})
	require.NoError(t, err)

	_, err = nn.LoadCheckpoint(path, tensor.CPU, model, sgd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a checkpoint")
}
