package block

import (
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Content is the block body authenticated by the header's Merkle root.
type Content struct {
	Transactions []*tx.SignedTransaction `json:"transactions"`
}

// Block is a header plus its authenticated content.
type Block struct {
	Header  *Header `json:"header"`
	Content Content `json:"content"`
}

// NewBlock creates a block with the merkle root already set on header.
func NewBlock(header *Header, txs []*tx.SignedTransaction) *Block {
	return &Block{Header: header, Content: Content{Transactions: txs}}
}

// Hash returns the block's identity hash (header hash only).
func (b *Block) Hash() types.Hash {
	return b.Header.Hash()
}
