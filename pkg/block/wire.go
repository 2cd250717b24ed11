package block

import (
	"encoding/binary"
	"fmt"

	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// headerSize is the fixed wire length of a Header: parent(32) | nonce(4)
// | difficulty(32) | timestamp(8) | merkle_root(32) — identical to
// SigningBytes since every header field is consensus-relevant.
const headerSize = types.HashSize*3 + 4 + 8

// Marshal encodes the header for the wire protocol.
func (h *Header) Marshal() []byte {
	return h.SigningBytes()
}

// UnmarshalHeader decodes a Header from the front of b.
func UnmarshalHeader(b []byte) (*Header, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("header: buffer too short")
	}
	h := &Header{}
	off := 0
	copy(h.Parent[:], b[off:off+types.HashSize])
	off += types.HashSize
	h.Nonce = binary.LittleEndian.Uint32(b[off:])
	off += 4
	copy(h.Difficulty[:], b[off:off+types.HashSize])
	off += types.HashSize
	h.Timestamp = binary.LittleEndian.Uint64(b[off:])
	off += 8
	copy(h.MerkleRoot[:], b[off:off+types.HashSize])
	return h, nil
}

// Marshal encodes the full block — header followed by a length-prefixed
// transaction list — for the wire protocol.
func (b *Block) Marshal() []byte {
	buf := make([]byte, 0, headerSize+4)
	buf = append(buf, b.Header.Marshal()...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Content.Transactions)))
	for _, signed := range b.Content.Transactions {
		buf = append(buf, signed.Marshal()...)
	}
	return buf
}

// UnmarshalBlock decodes a Block from the front of raw and returns the
// number of bytes consumed.
func UnmarshalBlock(raw []byte) (*Block, int, error) {
	header, err := UnmarshalHeader(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("block: %w", err)
	}
	off := headerSize
	if len(raw) < off+4 {
		return nil, 0, fmt.Errorf("block: buffer too short for tx count")
	}
	count := binary.LittleEndian.Uint32(raw[off:])
	off += 4

	txs := make([]*tx.SignedTransaction, 0, count)
	for i := uint32(0); i < count; i++ {
		signed, n, err := tx.UnmarshalSignedTransaction(raw[off:])
		if err != nil {
			return nil, 0, fmt.Errorf("block: transaction %d: %w", i, err)
		}
		txs = append(txs, signed)
		off += n
	}

	return NewBlock(header, txs), off, nil
}
