package tx

import (
	"encoding/binary"

	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// SignedTransaction pairs a raw Transaction with the Ed25519 signature
// over it and the public key that produced the signature.
//
// public_key is NOT checked against raw.Sender anywhere in this package —
// that binding is enforceable (hash the key, compare to Sender) but is
// deliberately left unenforced here, matching the behavior this core is
// modeled on. Any signed transaction with a valid signature is accepted
// as long as the sender account can afford it, regardless of whose key
// signed it. See internal/ledger for where that decision is applied.
type SignedTransaction struct {
	Raw       Transaction `json:"raw"`
	Signature []byte      `json:"signature"`
	PublicKey []byte      `json:"public_key"`
}

// SigningBytes returns the canonical bytes of the full signed record,
// used for SignedTransaction.Hash (distinct from Raw.SigningBytes, the
// bytes the signature covers).
func (s *SignedTransaction) SigningBytes() []byte {
	raw := s.Raw.SigningBytes()
	buf := make([]byte, 0, len(raw)+8+len(s.Signature)+len(s.PublicKey))
	buf = append(buf, raw...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.Signature)))
	buf = append(buf, s.Signature...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.PublicKey)))
	buf = append(buf, s.PublicKey...)
	return buf
}

// Hash returns SHA-256 of the full signed record.
func (s *SignedTransaction) Hash() types.Hash {
	return crypto.Hash(s.SigningBytes())
}

// VerifySignature checks that Signature is a valid Ed25519 signature over
// Raw's serialized bytes under PublicKey.
func (s *SignedTransaction) VerifySignature() bool {
	return crypto.VerifySignature(s.Raw.SigningBytes(), s.Signature, s.PublicKey)
}

// Sign builds a SignedTransaction by signing raw's serialized bytes with
// key.
func Sign(raw Transaction, key crypto.Signer) *SignedTransaction {
	return &SignedTransaction{
		Raw:       raw,
		Signature: key.Sign(raw.SigningBytes()),
		PublicKey: key.PublicKey(),
	}
}
