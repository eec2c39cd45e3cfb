package serialization

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"github.com/petal-ml/petal/internal/tensor"
)

// Reader reads .petal files. The file is read and checksum-validated up
// front; tensors are materialized on demand.
type Reader struct {
	header   Header
	data     []byte // tensor data section
	tensorIx map[string]*TensorMeta
}

// NewReader opens and validates a .petal file.
func NewReader(path string) (*Reader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fixed := len(MagicBytes) + 4 + 4 + 8
	if len(raw) < fixed+ChecksumSize {
		return nil, fmt.Errorf("file too small to be a .petal file")
	}

	payload := raw[:len(raw)-ChecksumSize]
	var stored [ChecksumSize]byte
	copy(stored[:], raw[len(raw)-ChecksumSize:])
	if err := ValidateChecksum(ComputeChecksum(payload), stored); err != nil {
		return nil, err
	}

	if string(raw[:4]) != MagicBytes {
		return nil, fmt.Errorf("bad magic bytes: not a .petal file")
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	headerSize := binary.LittleEndian.Uint64(raw[12:20])
	if uint64(len(payload)) < uint64(fixed)+headerSize {
		return nil, fmt.Errorf("truncated header")
	}

	r := &Reader{tensorIx: make(map[string]*TensorMeta)}
	if err := json.Unmarshal(raw[fixed:uint64(fixed)+headerSize], &r.header); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}

	dataStart := (fixed + int(headerSize) + HeaderAlignment - 1) / HeaderAlignment * HeaderAlignment
	if dataStart > len(payload) {
		return nil, fmt.Errorf("truncated data section")
	}
	r.data = payload[dataStart:]

	for i := range r.header.Tensors {
		meta := &r.header.Tensors[i]
		if meta.Offset < 0 || meta.Offset+meta.Size > int64(len(r.data)) {
			return nil, fmt.Errorf("tensor %q extends past data section", meta.Name)
		}
		r.tensorIx[meta.Name] = meta
	}
	return r, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	return r.header
}

// TensorNames returns the names of all tensors in the file.
func (r *Reader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		names = append(names, meta.Name)
	}
	return names
}

// LoadTensor materializes one tensor by name.
func (r *Reader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	meta, ok := r.tensorIx[name]
	if !ok {
		return nil, fmt.Errorf("tensor %q not found", name)
	}

	dtype, ok := stringToDtype(meta.DType)
	if !ok {
		return nil, fmt.Errorf("tensor %q has unknown dtype %q", name, meta.DType)
	}

	raw, err := tensor.NewRaw(tensor.Shape(meta.Shape), dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}
	if int64(raw.ByteSize()) != meta.Size {
		return nil, fmt.Errorf("tensor %q: size %d does not match shape %v", name, meta.Size, meta.Shape)
	}
	copy(raw.Data(), r.data[meta.Offset:meta.Offset+meta.Size])
	return raw, nil
}

// ReadStateDict materializes every tensor in the file.
func (r *Reader) ReadStateDict(device tensor.Device) (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for _, meta := range r.header.Tensors {
		raw, err := r.LoadTensor(meta.Name, device)
		if err != nil {
			return nil, err
		}
		stateDict[meta.Name] = raw
	}
	return stateDict, nil
}
