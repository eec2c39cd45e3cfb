package tensor

import "math/rand"

// Zeros creates a float32 tensor filled with zeros.
func Zeros(shape Shape, device Device) *RawTensor {
	t, err := NewRaw(shape, Float32, device)
	if err != nil {
		panic(err)
	}
	return t
}

// Full creates a float32 tensor filled with value.
func Full(shape Shape, value float32, device Device) *RawTensor {
	t := Zeros(shape, device)
	data := t.AsFloat32()
	for i := range data {
		data[i] = value
	}
	return t
}

// FromFloat32 creates a tensor from an existing slice. The data is copied.
func FromFloat32(data []float32, shape Shape, device Device) (*RawTensor, error) {
	t, err := NewRaw(shape, Float32, device)
	if err != nil {
		return nil, err
	}
	if len(data) != t.NumElements() {
		t = nil
		return nil, errElementCount(len(data), shape)
	}
	copy(t.AsFloat32(), data)
	return t, nil
}

// Randn creates a float32 tensor with standard normal values.
//
// An explicit *rand.Rand keeps initialization reproducible under a fixed
// seed (used by tests and by Xavier init in the nn package).
func Randn(shape Shape, device Device, rng *rand.Rand) *RawTensor {
	t := Zeros(shape, device)
	data := t.AsFloat32()
	for i := range data {
		data[i] = float32(rng.NormFloat64())
	}
	return t
}

// Rand creates a float32 tensor with uniform values in [0, 1).
func Rand(shape Shape, device Device, rng *rand.Rand) *RawTensor {
	t := Zeros(shape, device)
	data := t.AsFloat32()
	for i := range data {
		data[i] = rng.Float32()
	}
	return t
}
