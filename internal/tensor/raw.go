// Package tensor implements the dense tensor type used throughout Petal.
//
// RawTensor is a contiguous row-major buffer with runtime shape and type
// information. All numeric work in this repository (the frozen backbone
// forward pass, the classifier head, preprocessing) runs on a single
// compute device chosen once per run, so there is one set of CPU kernels
// and no backend indirection.
package tensor

import (
	"fmt"
	"unsafe"
)

// Device identifies the compute device tensors live on.
//
// The device is chosen once at startup and threaded through explicitly;
// there is no process-global device state.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// RawTensor is a dense, contiguous tensor.
type RawTensor struct {
	data   []byte
	shape  Shape
	stride []int
	dtype  DataType
	device Device
}

// NewRaw allocates a zero-filled tensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:   make([]byte, shape.NumElements()*dtype.Size()),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
	}, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's row-major memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's element type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the buffer size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte buffer. Direct access; use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 reinterprets the buffer as []float32. Panics on dtype mismatch.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor: AsFloat32 on %s tensor", r.dtype))
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 reinterprets the buffer as []int32. Panics on dtype mismatch.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor: AsInt32 on %s tensor", r.dtype))
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt64 reinterprets the buffer as []int64. Panics on dtype mismatch.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor: AsInt64 on %s tensor", r.dtype))
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsUint8 reinterprets the buffer as []uint8. Panics on dtype mismatch.
func (r *RawTensor) AsUint8() []uint8 {
	if r.dtype != Uint8 {
		panic(fmt.Sprintf("tensor: AsUint8 on %s tensor", r.dtype))
	}
	return r.data
}

// Clone returns a deep copy of the tensor.
func (r *RawTensor) Clone() *RawTensor {
	c := &RawTensor{
		data:   make([]byte, len(r.data)),
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
	}
	copy(c.data, r.data)
	return c
}

// Reshape returns a view-like copy of the tensor header with a new shape.
// The element count must match; the buffer is shared.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("reshape %v to %v changes element count", r.shape, shape)
	}
	return &RawTensor{
		data:   r.data,
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  r.dtype,
		device: r.device,
	}, nil
}

// CopyFrom copies element data from src. Shapes and dtypes must match.
func (r *RawTensor) CopyFrom(src *RawTensor) error {
	if !r.shape.Equal(src.shape) {
		return fmt.Errorf("shape mismatch: %v vs %v", r.shape, src.shape)
	}
	if r.dtype != src.dtype {
		return fmt.Errorf("dtype mismatch: %s vs %s", r.dtype, src.dtype)
	}
	copy(r.data, src.data)
	return nil
}

// String returns a short description of the tensor.
func (r *RawTensor) String() string {
	return fmt.Sprintf("RawTensor(shape=%v, dtype=%s, device=%s)", r.shape, r.dtype, r.device)
}
