package txgen

import (
	"fmt"

	"github.com/klingnet-labs/nodecore/internal/log"
	"github.com/klingnet-labs/nodecore/internal/wallet"
)

// LoadOrCreateSeed opens name in the keystore rooted at dir and returns
// its decrypted seed, creating a fresh mnemonic-derived wallet under
// that name if none exists yet. A load failure against an existing
// wallet (wrong passphrase, corrupt file) is returned as-is rather than
// silently replaced: Create refuses to overwrite an existing wallet
// file, so a genuine passphrase mismatch surfaces as an error here
// instead of quietly minting a new seed.
func LoadOrCreateSeed(dir, name, passphrase string) ([]byte, error) {
	ks, err := wallet.NewKeystore(dir)
	if err != nil {
		return nil, fmt.Errorf("open keystore: %w", err)
	}

	seed, err := ks.Load(name, []byte(passphrase))
	if err == nil {
		return seed, nil
	}

	mnemonic, genErr := wallet.GenerateMnemonic()
	if genErr != nil {
		return nil, fmt.Errorf("load wallet %q: %w; generating new one also failed: %v", name, err, genErr)
	}
	seed, seedErr := wallet.SeedFromMnemonic(mnemonic, "")
	if seedErr != nil {
		return nil, fmt.Errorf("derive seed from new mnemonic: %w", seedErr)
	}

	if createErr := ks.Create(name, seed, []byte(passphrase), wallet.DefaultParams()); createErr != nil {
		return nil, fmt.Errorf("load wallet %q: %w", name, err)
	}

	log.TxGen.Info().Str("wallet", name).Msg("created new transaction generator wallet")
	return seed, nil
}
