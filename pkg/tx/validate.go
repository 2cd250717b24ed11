package tx

import "errors"

// Structural validation errors — checked before any state lookup.
var (
	ErrMissingPublicKey = errors.New("signed transaction missing public key")
	ErrMissingSignature = errors.New("signed transaction missing signature")
	ErrBadSignature     = errors.New("signature does not verify")
)

// ValidateStructure checks the shape of a signed transaction without
// consulting any account state: both the signature and public key are
// present, and the signature verifies under the given public key.
func (s *SignedTransaction) ValidateStructure() error {
	if len(s.PublicKey) == 0 {
		return ErrMissingPublicKey
	}
	if len(s.Signature) == 0 {
		return ErrMissingSignature
	}
	if !s.VerifySignature() {
		return ErrBadSignature
	}
	return nil
}
