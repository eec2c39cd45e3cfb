package serialization_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-ml/petal/internal/serialization"
	"github.com/petal-ml/petal/internal/tensor"
)

func sampleStateDict(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()

	weight, err := tensor.FromFloat32([]float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, tensor.CPU)
	require.NoError(t, err)
	bias, err := tensor.FromFloat32([]float32{0.5, -0.5}, tensor.Shape{2}, tensor.CPU)
	require.NoError(t, err)

	return map[string]*tensor.RawTensor{
		"head.1.weight": weight,
		"head.1.bias":   bias,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.petal")
	stateDict := sampleStateDict(t)

	header := serialization.Header{
		Metadata: map[string]string{"arch": "petalnet"},
		CheckpointMeta: &serialization.CheckpointMeta{
			IsCheckpoint: true,
			Epoch:        3,
			BestAccuracy: 0.875,
			NumClasses:   2,
			ClassToIdx:   map[string]int{"1": 0, "74": 1},
		},
	}

	require.NoError(t, serialization.NewWriter(path).WriteStateDict(stateDict, header))

	reader, err := serialization.NewReader(path)
	require.NoError(t, err)

	got, err := reader.ReadStateDict(tensor.CPU)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for name, want := range stateDict {
		raw, ok := got[name]
		require.True(t, ok, "missing tensor %s", name)
		assert.True(t, raw.Shape().Equal(want.Shape()))
		assert.Equal(t, want.AsFloat32(), raw.AsFloat32())
	}

	meta := reader.Header().CheckpointMeta
	require.NotNil(t, meta)
	assert.Equal(t, 3, meta.Epoch)
	assert.Equal(t, 0.875, meta.BestAccuracy)
	assert.Equal(t, map[string]int{"1": 0, "74": 1}, meta.ClassToIdx)
}

func TestOverwriteIsWholesale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.petal")
	stateDict := sampleStateDict(t)

	require.NoError(t, serialization.NewWriter(path).WriteStateDict(stateDict, serialization.Header{}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	// A second save replaces the file rather than appending to it.
	smaller := map[string]*tensor.RawTensor{"only": stateDict["head.1.bias"]}
	require.NoError(t, serialization.NewWriter(path).WriteStateDict(smaller, serialization.Header{}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Less(t, len(second), len(first))

	reader, err := serialization.NewReader(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, reader.TensorNames())
}

func TestCorruptionDetected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.petal")
	require.NoError(t, serialization.NewWriter(path).WriteStateDict(sampleStateDict(t), serialization.Header{}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0xFF
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = serialization.NewReader(path)
	assert.ErrorContains(t, err, "checksum mismatch")
}

func TestRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-checkpoint")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	_, err := serialization.NewReader(path)
	assert.Error(t, err)
}

func TestLoadTensorMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.petal")
	require.NoError(t, serialization.NewWriter(path).WriteStateDict(sampleStateDict(t), serialization.Header{}))

	reader, err := serialization.NewReader(path)
	require.NoError(t, err)

	_, err = reader.LoadTensor("does.not.exist", tensor.CPU)
	assert.ErrorContains(t, err, "not found")
}
