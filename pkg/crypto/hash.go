// Package crypto provides the cryptographic primitives consumed by the
// chain core as opaque operations: hashing, Ed25519 signing/verification,
// and Merkle tree construction.
package crypto

import (
	"crypto/sha256"

	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Hash computes the SHA-256 digest of data. This is the canonical hash
// used for block hashing, the Merkle tree, and transaction hashing —
// consensus depends on every node using exactly this function.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleHash computes SHA-256(SHA-256(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// HashConcat hashes the concatenation of two digests. Used when building
// Merkle tree internal nodes and proof verification.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [2 * types.HashSize]byte
	copy(buf[:types.HashSize], a[:])
	copy(buf[types.HashSize:], b[:])
	return Hash(buf[:])
}

// AddressFromPubKey derives an account address from an Ed25519 public key:
// the first 20 bytes of SHA-256(pubkey). This is available for callers
// that want to bind a sender address to its signing key, but the chain
// core does not itself enforce the binding — see the transaction
// validation notes in pkg/tx.
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
