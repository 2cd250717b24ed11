// Package types defines the core primitive value types of the chain.
package types

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HashSize is the length of a digest in bytes.
const HashSize = 32

// Hash is a 32-byte digest, totally ordered as a big-endian unsigned
// integer. Proof-of-work validity and default-value comparisons
// (genesis parent, zero merkle root) both rely on that ordering.
type Hash [HashSize]byte

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Cmp compares two hashes as big-endian unsigned integers, returning
// -1, 0, or 1.
func (h Hash) Cmp(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// LessOrEqual reports whether h, read as a big-endian integer, is at
// most other — the proof-of-work acceptance test.
func (h Hash) LessOrEqual(other Hash) bool {
	return h.Cmp(other) <= 0
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalJSON encodes the hash as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into a hash.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(decoded) != HashSize {
		return fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(decoded))
	}
	copy(h[:], decoded)
	return nil
}

// HexToHash converts a hex string to a Hash.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}
