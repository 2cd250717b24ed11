package crypto

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	pub := key.PublicKey()
	if len(pub) != ed25519.PublicKeySize {
		t.Errorf("PublicKey() length = %d, want %d", len(pub), ed25519.PublicKeySize)
	}

	seed := key.Seed()
	if len(seed) != ed25519.SeedSize {
		t.Errorf("Seed() length = %d, want %d", len(seed), ed25519.SeedSize)
	}
}

func TestGenerateKey_Unique(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	k2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	if bytes.Equal(k1.Seed(), k2.Seed()) {
		t.Error("two generated keys should not be identical")
	}
}

func TestPrivateKeyFromSeed(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	restored, err := PrivateKeyFromSeed(original.Seed())
	if err != nil {
		t.Fatalf("PrivateKeyFromSeed() error: %v", err)
	}

	if !bytes.Equal(original.PublicKey(), restored.PublicKey()) {
		t.Error("restored key should have same public key")
	}
}

func TestPrivateKeyFromSeed_InvalidLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", make([]byte, 16)},
		{"too long", make([]byte, 64)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PrivateKeyFromSeed(tt.data)
			if err == nil {
				t.Error("expected error for invalid seed length")
			}
		})
	}
}

func TestSign_Verify(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("test message"))
	sig := key.Sign(hash[:])

	if len(sig) != ed25519.SignatureSize {
		t.Errorf("signature length = %d, want %d", len(sig), ed25519.SignatureSize)
	}

	if !VerifySignature(hash[:], sig, key.PublicKey()) {
		t.Error("signature should verify against the correct key and hash")
	}
}

func TestSign_Deterministic(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("deterministic test"))
	sig1 := key.Sign(hash[:])
	sig2 := key.Sign(hash[:])

	if !bytes.Equal(sig1, sig2) {
		t.Error("Ed25519 signatures should be deterministic (same key + same message = same sig)")
	}
}

func TestVerify_WrongHash(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("message"))
	sig := key.Sign(hash[:])

	wrongHash := Hash([]byte("different message"))
	if VerifySignature(wrongHash[:], sig, key.PublicKey()) {
		t.Error("signature should not verify with wrong hash")
	}
}

func TestVerify_WrongKey(t *testing.T) {
	key1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("message"))
	sig := key1.Sign(hash[:])

	if VerifySignature(hash[:], sig, key2.PublicKey()) {
		t.Error("signature should not verify with wrong public key")
	}
}

func TestVerify_CorruptedSignature(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("message"))
	sig := key.Sign(hash[:])

	corrupted := make([]byte, len(sig))
	copy(corrupted, sig)
	corrupted[0] ^= 0x01

	if VerifySignature(hash[:], corrupted, key.PublicKey()) {
		t.Error("corrupted signature should not verify")
	}
}

func TestVerify_InvalidInputs(t *testing.T) {
	tests := []struct {
		name      string
		hash      []byte
		signature []byte
		publicKey []byte
	}{
		{"nil hash", nil, make([]byte, ed25519.SignatureSize), make([]byte, ed25519.PublicKeySize)},
		{"empty signature", make([]byte, 32), nil, make([]byte, ed25519.PublicKeySize)},
		{"empty public key", make([]byte, 32), make([]byte, ed25519.SignatureSize), nil},
		{"short signature", make([]byte, 32), make([]byte, 10), make([]byte, ed25519.PublicKeySize)},
		{"garbage public key", make([]byte, 32), make([]byte, ed25519.SignatureSize), []byte("bad")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Should not panic, just return false.
			if VerifySignature(tt.hash, tt.signature, tt.publicKey) {
				t.Error("should return false for invalid inputs")
			}
		})
	}
}

func TestPrivateKey_SignVerify_Roundtrip(t *testing.T) {
	original, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	pubKey := original.PublicKey()
	seed := original.Seed()

	restored, err := PrivateKeyFromSeed(seed)
	if err != nil {
		t.Fatalf("PrivateKeyFromSeed() error: %v", err)
	}

	hash := Hash([]byte("roundtrip test"))
	sig := restored.Sign(hash[:])

	if !VerifySignature(hash[:], sig, pubKey) {
		t.Error("roundtrip: signature from restored key should verify with original pubkey")
	}
}

func TestEd25519Verifier_Interface(t *testing.T) {
	var v Verifier = Ed25519Verifier{}

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}

	hash := Hash([]byte("interface test"))
	sig := key.Sign(hash[:])

	if !v.Verify(hash[:], sig, key.PublicKey()) {
		t.Error("Ed25519Verifier should verify valid signature")
	}
}

func TestPrivateKey_SignerInterface(t *testing.T) {
	var s Signer
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	s = key

	hash := Hash([]byte("signer interface test"))
	sig := s.Sign(hash[:])

	if !VerifySignature(hash[:], sig, s.PublicKey()) {
		t.Error("Signer interface: signature should verify")
	}
}
