// Package block defines the block type, its header, and Merkle root
// computation over its transaction content.
package block

import (
	"encoding/binary"

	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Header is the authenticated block metadata. A block's identity — its
// hash — is SHA-256 of the header alone; the transaction content is
// authenticated through MerkleRoot.
type Header struct {
	Parent     types.Hash `json:"parent"`
	Nonce      uint32     `json:"nonce"`
	Difficulty types.Hash `json:"difficulty"`
	Timestamp  uint64     `json:"timestamp"` // milliseconds since epoch
	MerkleRoot types.Hash `json:"merkle_root"`
}

// SigningBytes returns the canonical bytes hashed to produce the block
// hash. Format: parent(32) | nonce(4) | difficulty(32) | timestamp(8) |
// merkle_root(32), all integers little-endian. Changing field order or
// width breaks consensus across nodes.
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, types.HashSize*3+12)
	buf = append(buf, h.Parent[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	buf = append(buf, h.Difficulty[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = append(buf, h.MerkleRoot[:]...)
	return buf
}

// Hash computes the block's identity hash.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}
