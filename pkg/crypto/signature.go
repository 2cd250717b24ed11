package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// Signer signs messages with a private key.
type Signer interface {
	// Sign produces an Ed25519 signature over msg.
	Sign(msg []byte) []byte
	// PublicKey returns the raw 32-byte Ed25519 public key.
	PublicKey() []byte
}

// Verifier verifies Ed25519 signatures.
type Verifier interface {
	Verify(msg, signature, publicKey []byte) bool
}

// PrivateKey wraps an Ed25519 private key.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// GenerateKey creates a new random Ed25519 private key.
func GenerateKey() (*PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: priv}, nil
}

// PrivateKeyFromSeed builds a private key from a 32-byte seed. Used by
// the transaction generator's HD-derived cohort keys.
func PrivateKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// Sign produces an Ed25519 signature over msg.
func (pk *PrivateKey) Sign(msg []byte) []byte {
	return ed25519.Sign(pk.key, msg)
}

// PublicKey returns the raw 32-byte Ed25519 public key.
func (pk *PrivateKey) PublicKey() []byte {
	pub := pk.key.Public().(ed25519.PublicKey)
	return []byte(pub)
}

// Seed returns the 32-byte seed the key was derived from.
func (pk *PrivateKey) Seed() []byte {
	return pk.key.Seed()
}

// VerifySignature checks an Ed25519 signature against msg and a raw
// 32-byte public key. Returns false (never panics) on any malformed
// input — a bad key or signature is just a failed verification, not an
// error condition.
func VerifySignature(msg, signature, publicKey []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(publicKey), msg, signature)
}

// Ed25519Verifier implements Verifier.
type Ed25519Verifier struct{}

func (Ed25519Verifier) Verify(msg, signature, publicKey []byte) bool {
	return VerifySignature(msg, signature, publicKey)
}
