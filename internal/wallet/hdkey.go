package wallet

import (
	"fmt"

	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44-style derivation path constants, repurposed here as a generic
// deterministic key-derivation hierarchy rather than a literal BIP-44
// wallet: the transaction generator's cohort addresses come from
// m/44'/CoinType'/account'/change/index the same way a BIP-44 wallet
// would derive receiving addresses, but the resulting 32 bytes feed
// Ed25519 rather than secp256k1 (see Signer below), so this is BIP-32's
// derivation tree borrowed for determinism, not a SLIP-0010 Ed25519
// hierarchy.
const (
	// PurposeBIP44 is the BIP-44 purpose field (hardened).
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinTypeNodecore is this chain's placeholder coin type (hardened).
	CoinTypeNodecore = bip32.FirstHardenedChild + 8888

	// ChangeExternal is for receiving addresses.
	ChangeExternal = 0

	// ChangeInternal is for change addresses.
	ChangeInternal = 1
)

// HDKey is a hierarchical deterministic key (BIP-32 derivation tree).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives a child key at the given index. For hardened
// derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveAddress derives the key at m/44'/8888'/account'/change/index.
func (k *HDKey) DeriveAddress(account, change, index uint32) (*HDKey, error) {
	return k.DerivePath(
		PurposeBIP44,
		CoinTypeNodecore,
		bip32.FirstHardenedChild+account,
		change,
		index,
	)
}

// ed25519SeedBytes returns the raw 32-byte key material at this node,
// stripping BIP-32's leading 0x00 marker byte on private keys.
func (k *HDKey) ed25519SeedBytes() []byte {
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// Signer builds an Ed25519 signing key from this node's derived bytes,
// treating them as an Ed25519 seed. This is the transaction generator's
// source of per-cohort-address keys.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	if !k.key.IsPrivate {
		return nil, fmt.Errorf("cannot create a signer from a public-only key")
	}
	return crypto.PrivateKeyFromSeed(k.ed25519SeedBytes())
}

// Address derives this core's account address from the Ed25519 public
// key that Signer would produce: the first 20 bytes of SHA-256(pubkey).
func (k *HDKey) Address() (types.Address, error) {
	signer, err := k.Signer()
	if err != nil {
		return types.Address{}, err
	}
	return crypto.AddressFromPubKey(signer.PublicKey()), nil
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}
