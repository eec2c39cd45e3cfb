package tensor

// DataType is the runtime element type of a tensor.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Int32
	Int64
	Uint8
)

// Size returns the element size in bytes.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Int64:
		return 8
	case Uint8:
		return 1
	default:
		return 0
	}
}

// String returns the canonical lowercase type name.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}
