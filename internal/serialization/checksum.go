package serialization

import (
	"crypto/sha256"
	"fmt"
)

// ComputeChecksum returns the SHA-256 digest of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares a computed digest against the stored one.
func ValidateChecksum(computed, stored [32]byte) error {
	if computed != stored {
		return fmt.Errorf("checksum mismatch: file is corrupted or truncated")
	}
	return nil
}
