package tensor

import "fmt"

// Shape represents tensor dimensions in row-major order.
type Shape []int

// NumElements returns the total number of elements for this shape.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that all dimensions are positive.
func (s Shape) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("shape must have at least one dimension")
	}
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("dimension %d must be positive, got %d", i, dim)
		}
	}
	return nil
}

// Equal reports whether two shapes have identical dimensions.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the shape.
func (s Shape) Clone() Shape {
	c := make(Shape, len(s))
	copy(c, s)
	return c
}

// ComputeStrides returns row-major memory strides for this shape.
//
// For shape [2, 3, 4] the strides are [12, 4, 1]: advancing one step
// along the first dimension skips 12 elements.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	stride := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= s[i]
	}
	return strides
}

// String returns a human-readable shape representation like [2 3 4].
func (s Shape) String() string {
	return fmt.Sprintf("%v", []int(s))
}
