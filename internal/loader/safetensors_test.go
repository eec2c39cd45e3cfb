package loader_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petal-ml/petal/internal/loader"
	"github.com/petal-ml/petal/internal/tensor"
)

// writeSafeTensors builds a minimal SafeTensors file by hand.
func writeSafeTensors(t *testing.T, path string, tensors map[string][]float32, shapes map[string][]int) {
	t.Helper()

	header := make(map[string]any)
	var data bytes.Buffer
	offset := int64(0)

	for name, values := range tensors {
		size := int64(len(values) * 4)
		header[name] = map[string]any{
			"dtype":        "F32",
			"shape":        shapes[name],
			"data_offsets": []int64{offset, offset + size},
		}
		for _, v := range values {
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
			data.Write(b[:])
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)

	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(headerJSON))))
	file.Write(headerJSON)
	file.Write(data.Bytes())

	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o644))
}

func TestSafeTensorsReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backbone.safetensors")
	writeSafeTensors(t, path,
		map[string][]float32{
			"0.weight": {1, 2, 3, 4},
			"0.bias":   {0.5},
		},
		map[string][]int{
			"0.weight": {1, 1, 2, 2},
			"0.bias":   {1},
		},
	)

	reader, err := loader.NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, []string{"0.bias", "0.weight"}, reader.TensorNames())

	weight, err := reader.LoadTensor("0.weight", tensor.CPU)
	require.NoError(t, err)
	assert.True(t, weight.Shape().Equal(tensor.Shape{1, 1, 2, 2}))
	assert.Equal(t, []float32{1, 2, 3, 4}, weight.AsFloat32())

	stateDict, err := reader.LoadStateDict(tensor.CPU)
	require.NoError(t, err)
	assert.Len(t, stateDict, 2)
	assert.Equal(t, []float32{0.5}, stateDict["0.bias"].AsFloat32())
}

func TestSafeTensorsReaderMissingTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backbone.safetensors")
	writeSafeTensors(t, path,
		map[string][]float32{"0.bias": {0.5}},
		map[string][]int{"0.bias": {1}},
	)

	reader, err := loader.NewSafeTensorsReader(path)
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.LoadTensor("nope", tensor.CPU)
	assert.ErrorContains(t, err, "not found")
}

func TestSafeTensorsReaderGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644))

	_, err := loader.NewSafeTensorsReader(path)
	assert.Error(t, err)
}
