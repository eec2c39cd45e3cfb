// Package loader reads pretrained backbone weights from SafeTensors
// files, the interchange format the pretrained PetalNet weights are
// published in.
//
// SafeTensors layout:
//
//	[8 bytes: header_size (uint64 LE)]
//	[header_size bytes: JSON header]
//	[tensor data: raw bytes]
package loader

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/petal-ml/petal/internal/tensor"
)

// SafeTensorsDType represents the SafeTensors data types Petal accepts.
type SafeTensorsDType string

// Supported SafeTensors dtypes.
const (
	SafeTensorsF32 SafeTensorsDType = "F32"
	SafeTensorsI32 SafeTensorsDType = "I32"
	SafeTensorsI64 SafeTensorsDType = "I64"
	SafeTensorsU8  SafeTensorsDType = "U8"
)

// SafeTensorInfo describes one tensor in the file.
type SafeTensorInfo struct {
	DType       SafeTensorsDType `json:"dtype"`
	Shape       []int            `json:"shape"`
	DataOffsets [2]int64         `json:"data_offsets"` // [start, end]
}

// safeTensorsHeader is the JSON header: tensor entries plus an optional
// "__metadata__" object.
type safeTensorsHeader struct {
	Metadata map[string]string
	Tensors  map[string]SafeTensorInfo
}

func (h *safeTensorsHeader) UnmarshalJSON(data []byte) error {
	var rawMap map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawMap); err != nil {
		return err
	}

	h.Tensors = make(map[string]SafeTensorInfo)
	for key, value := range rawMap {
		if key == "__metadata__" {
			if err := json.Unmarshal(value, &h.Metadata); err != nil {
				return fmt.Errorf("unmarshal metadata: %w", err)
			}
			continue
		}
		var info SafeTensorInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return fmt.Errorf("unmarshal tensor %s: %w", key, err)
		}
		h.Tensors[key] = info
	}
	return nil
}

// SafeTensorsReader reads SafeTensors files.
type SafeTensorsReader struct {
	file       *os.File
	header     safeTensorsHeader
	dataOffset int64
}

// NewSafeTensorsReader opens a SafeTensors file and parses its header.
func NewSafeTensorsReader(path string) (*SafeTensorsReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var headerSize uint64
	if err := binary.Read(file, binary.LittleEndian, &headerSize); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("read header size: %w", err)
	}
	if headerSize > 100*1024*1024 {
		_ = file.Close()
		return nil, fmt.Errorf("invalid header size %d", headerSize)
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}

	var header safeTensorsHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("parse header: %w", err)
	}

	return &SafeTensorsReader{
		file:       file,
		header:     header,
		dataOffset: int64(8 + headerSize),
	}, nil
}

// Close closes the underlying file.
func (r *SafeTensorsReader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Metadata returns the optional "__metadata__" entries.
func (r *SafeTensorsReader) Metadata() map[string]string {
	return r.header.Metadata
}

// TensorNames returns the sorted names of all tensors in the file.
func (r *SafeTensorsReader) TensorNames() []string {
	names := make([]string, 0, len(r.header.Tensors))
	for name := range r.header.Tensors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTensor materializes one tensor by name.
func (r *SafeTensorsReader) LoadTensor(name string, device tensor.Device) (*tensor.RawTensor, error) {
	info, ok := r.header.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %q not found", name)
	}

	dtype, err := dtypeFor(info.DType)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	raw, err := tensor.NewRaw(tensor.Shape(info.Shape), dtype, device)
	if err != nil {
		return nil, fmt.Errorf("tensor %q: %w", name, err)
	}

	size := info.DataOffsets[1] - info.DataOffsets[0]
	if int64(raw.ByteSize()) != size {
		return nil, fmt.Errorf("tensor %q: %d bytes does not match shape %v", name, size, info.Shape)
	}

	if _, err := r.file.ReadAt(raw.Data(), r.dataOffset+info.DataOffsets[0]); err != nil {
		return nil, fmt.Errorf("tensor %q: read data: %w", name, err)
	}
	return raw, nil
}

// LoadStateDict materializes every tensor in the file, keyed by name.
// This is how pretrained backbone weights reach the classifier.
func (r *SafeTensorsReader) LoadStateDict(device tensor.Device) (map[string]*tensor.RawTensor, error) {
	stateDict := make(map[string]*tensor.RawTensor, len(r.header.Tensors))
	for name := range r.header.Tensors {
		raw, err := r.LoadTensor(name, device)
		if err != nil {
			return nil, err
		}
		stateDict[name] = raw
	}
	return stateDict, nil
}

func dtypeFor(st SafeTensorsDType) (tensor.DataType, error) {
	switch st {
	case SafeTensorsF32:
		return tensor.Float32, nil
	case SafeTensorsI32:
		return tensor.Int32, nil
	case SafeTensorsI64:
		return tensor.Int64, nil
	case SafeTensorsU8:
		return tensor.Uint8, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", st)
	}
}
