// Package tx defines the transaction types and their canonical
// serialization, signing, and validation.
package tx

import (
	"encoding/binary"

	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Transaction is the unsigned transfer: sender pays value to receiver at
// the given account nonce.
type Transaction struct {
	Sender   types.Address `json:"sender"`
	Nonce    uint64        `json:"nonce"`
	Receiver types.Address `json:"receiver"`
	Value    uint64        `json:"value"`
}

// SigningBytes returns the canonical, deterministic byte representation
// used both for hashing and for the Ed25519 signature.
// Format: sender(20) | nonce(8) | receiver(20) | value(8), all integers
// little-endian.
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, types.AddressSize*2+16)
	buf = append(buf, t.Sender[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, t.Nonce)
	buf = append(buf, t.Receiver[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, t.Value)
	return buf
}

// Hash returns SHA-256 of the raw transaction's signing bytes.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}
