package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/petal-ml/petal/internal/tensor"
)

const petalVersion = "0.3.0"

// Writer writes state dictionaries in .petal format.
type Writer struct {
	path string
}

// NewWriter creates a writer targeting path. The file is created (and
// any existing file overwritten wholesale) when WriteStateDict runs.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// WriteStateDict writes a state dictionary with the given header.
// Tensors are laid out in sorted name order so identical state always
// produces an identical file.
func (w *Writer) WriteStateDict(stateDict map[string]*tensor.RawTensor, header Header) error {
	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		names = append(names, name)
	}
	sort.Strings(names)

	header.FormatVersion = FormatVersion
	header.PetalVersion = petalVersion
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}

	var offset int64
	header.Tensors = make([]TensorMeta, 0, len(names))
	for _, name := range names {
		raw := stateDict[name]
		size := int64(raw.ByteSize())
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  dtypeToString(raw.DType()),
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   size,
		})
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}

	var flags uint32
	if len(header.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if header.CheckpointMeta != nil && header.CheckpointMeta.IsCheckpoint {
		flags |= FlagHasOptimizer
	}

	var buf bytes.Buffer
	buf.WriteString(MagicBytes)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(FormatVersion)); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, flags); err != nil {
		return fmt.Errorf("write flags: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("write header size: %w", err)
	}
	buf.Write(headerJSON)

	// Pad so tensor data starts on a 64-byte boundary.
	if pad := (HeaderAlignment - buf.Len()%HeaderAlignment) % HeaderAlignment; pad > 0 {
		buf.Write(make([]byte, pad))
	}

	for _, name := range names {
		buf.Write(stateDict[name].Data())
	}

	checksum := ComputeChecksum(buf.Bytes())
	buf.Write(checksum[:])

	if err := os.WriteFile(w.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", w.path, err)
	}
	return nil
}
