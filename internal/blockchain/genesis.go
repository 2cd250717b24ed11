package blockchain

import (
	"github.com/klingnet-labs/nodecore/internal/ledger"
	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// GenesisDifficulty is the chain's constant proof-of-work target: the
// single set bit at position 248 leaves the top byte at 0x01 and every
// other byte zero, accepting roughly one in 2^8 candidate hashes.
var GenesisDifficulty = types.Hash{0x01}

// GenesisAccountBalance is the starting balance minted to each of the
// five fixed genesis accounts.
const GenesisAccountBalance = 10_000

// GenesisAccountCount is the number of fixed accounts the genesis state
// allocates, addressed types.FillAddress(1) .. types.FillAddress(5).
const GenesisAccountCount = 5

// Genesis constructs the zero block: zero parent, zero nonce, zero
// timestamp, zero Merkle root (an empty transaction list), and the
// chain's constant difficulty.
func Genesis() *block.Block {
	header := &block.Header{
		Parent:     types.Hash{},
		Nonce:      0,
		Difficulty: GenesisDifficulty,
		Timestamp:  0,
		MerkleRoot: types.Hash{},
	}
	return block.NewBlock(header, nil)
}

// GenesisState builds the initial account ledger: five fixed addresses,
// each funded with GenesisAccountBalance and a zero nonce.
func GenesisState() ledger.State {
	state := make(ledger.State, GenesisAccountCount)
	for i := byte(1); i <= GenesisAccountCount; i++ {
		state[types.FillAddress(i)] = ledger.Account{Nonce: 0, Balance: GenesisAccountBalance}
	}
	return state
}

// NewWithGenesis builds a Blockchain seeded with the standard genesis
// block and its account allocation.
func NewWithGenesis() *Blockchain {
	return New(Genesis(), GenesisDifficulty, GenesisState())
}
