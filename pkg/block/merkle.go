package block

import (
	"github.com/klingnet-labs/nodecore/pkg/crypto"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// ComputeMerkleRoot builds a Merkle tree over the signed transactions'
// hashes, in block order, and returns its root. An empty list returns the
// zero hash — used by the all-zero genesis header.
func ComputeMerkleRoot(txs []*tx.SignedTransaction) types.Hash {
	if len(txs) == 0 {
		return types.Hash{}
	}
	leaves := make([]types.Hash, len(txs))
	for i, t := range txs {
		leaves[i] = t.Hash()
	}
	tree, err := crypto.NewTree(leaves)
	if err != nil {
		// len(txs) > 0 guarantees NewTree cannot fail.
		panic(err)
	}
	return tree.Root()
}

// MerkleProof returns the inclusion proof for the transaction at index i
// within txs, or false if txs is empty.
func MerkleProof(txs []*tx.SignedTransaction, i int) (proof []types.Hash, ok bool) {
	if len(txs) == 0 {
		return nil, false
	}
	leaves := make([]types.Hash, len(txs))
	for idx, t := range txs {
		leaves[idx] = t.Hash()
	}
	tree, err := crypto.NewTree(leaves)
	if err != nil {
		return nil, false
	}
	p, err := tree.Proof(i)
	if err != nil {
		return nil, false
	}
	return p, true
}

// VerifyMerkleProof checks that leafHash at index i, together with
// proof, hashes up to root under a tree of leafCount leaves.
func VerifyMerkleProof(root, leafHash types.Hash, proof []types.Hash, i, leafCount int) bool {
	return crypto.VerifyProof(root, leafHash, proof, i, leafCount)
}
