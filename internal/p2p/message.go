// Package p2p implements the gossip/sync worker and its wire protocol,
// independent of any concrete transport. internal/transport supplies a
// libp2p-backed Server/Peer pair; tests and other transports can supply
// their own.
package p2p

import (
	"encoding/binary"
	"fmt"

	"github.com/klingnet-labs/nodecore/pkg/block"
	"github.com/klingnet-labs/nodecore/pkg/tx"
	"github.com/klingnet-labs/nodecore/pkg/types"
)

// Tag identifies a message's payload shape on the wire.
type Tag byte

const (
	TagPing Tag = iota + 1
	TagPong
	TagNewBlockHashes
	TagGetBlocks
	TagBlocks
	TagNewTransactionHashes
	TagGetTransactions
	TagTransactions
)

// Message is the tagged union gossiped between peers. Only the field(s)
// matching Tag are populated.
type Message struct {
	Tag          Tag
	Text         string // Ping, Pong
	Hashes       []types.Hash
	Blocks       []*block.Block
	Transactions []*tx.SignedTransaction
}

// Ping builds a Ping message.
func Ping(text string) Message { return Message{Tag: TagPing, Text: text} }

// Pong builds a Pong message.
func Pong(text string) Message { return Message{Tag: TagPong, Text: text} }

// NewBlockHashes builds a NewBlockHashes announcement.
func NewBlockHashes(hashes []types.Hash) Message {
	return Message{Tag: TagNewBlockHashes, Hashes: hashes}
}

// GetBlocks builds a GetBlocks request.
func GetBlocks(hashes []types.Hash) Message {
	return Message{Tag: TagGetBlocks, Hashes: hashes}
}

// Blocks builds a Blocks response.
func Blocks(blocks []*block.Block) Message {
	return Message{Tag: TagBlocks, Blocks: blocks}
}

// NewTransactionHashes builds a NewTransactionHashes announcement.
func NewTransactionHashes(hashes []types.Hash) Message {
	return Message{Tag: TagNewTransactionHashes, Hashes: hashes}
}

// GetTransactions builds a GetTransactions request.
func GetTransactions(hashes []types.Hash) Message {
	return Message{Tag: TagGetTransactions, Hashes: hashes}
}

// Transactions builds a Transactions response.
func Transactions(txs []*tx.SignedTransaction) Message {
	return Message{Tag: TagTransactions, Transactions: txs}
}

// Marshal encodes m as a length-prefixed frame: a 4-byte little-endian
// total length followed by the tag byte and its payload. Changing this
// format breaks wire compatibility between nodes, though — unlike block
// and transaction hashing — it carries no consensus meaning.
func (m Message) Marshal() []byte {
	var body []byte
	body = append(body, byte(m.Tag))

	switch m.Tag {
	case TagPing, TagPong:
		body = appendString(body, m.Text)
	case TagNewBlockHashes, TagGetBlocks, TagNewTransactionHashes, TagGetTransactions:
		body = appendHashes(body, m.Hashes)
	case TagBlocks:
		body = binary.LittleEndian.AppendUint32(body, uint32(len(m.Blocks)))
		for _, b := range m.Blocks {
			body = append(body, b.Marshal()...)
		}
	case TagTransactions:
		body = binary.LittleEndian.AppendUint32(body, uint32(len(m.Transactions)))
		for _, t := range m.Transactions {
			body = append(body, t.Marshal()...)
		}
	}

	framed := make([]byte, 0, len(body)+4)
	framed = binary.LittleEndian.AppendUint32(framed, uint32(len(body)))
	framed = append(framed, body...)
	return framed
}

// Unmarshal decodes a single framed message from the front of b and
// returns it along with the number of bytes consumed.
func Unmarshal(b []byte) (Message, int, error) {
	if len(b) < 4 {
		return Message{}, 0, fmt.Errorf("p2p: frame too short for length prefix")
	}
	length := binary.LittleEndian.Uint32(b)
	if uint32(len(b)-4) < length {
		return Message{}, 0, fmt.Errorf("p2p: frame declared %d bytes, only %d remain", length, len(b)-4)
	}
	body := b[4 : 4+int(length)]
	consumed := 4 + int(length)

	if len(body) < 1 {
		return Message{}, 0, fmt.Errorf("p2p: empty message body")
	}
	tag := Tag(body[0])
	rest := body[1:]

	var m Message
	m.Tag = tag
	var err error

	switch tag {
	case TagPing, TagPong:
		m.Text, _, err = readString(rest)
	case TagNewBlockHashes, TagGetBlocks, TagNewTransactionHashes, TagGetTransactions:
		m.Hashes, err = readHashes(rest)
	case TagBlocks:
		m.Blocks, err = readBlocks(rest)
	case TagTransactions:
		m.Transactions, err = readTransactions(rest)
	default:
		err = fmt.Errorf("p2p: unknown message tag %d", tag)
	}
	if err != nil {
		return Message{}, 0, err
	}
	return m, consumed, nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(b []byte) (string, int, error) {
	if len(b) < 4 {
		return "", 0, fmt.Errorf("p2p: string length prefix truncated")
	}
	length := binary.LittleEndian.Uint32(b)
	if uint32(len(b)-4) < length {
		return "", 0, fmt.Errorf("p2p: string body truncated")
	}
	return string(b[4 : 4+length]), 4 + int(length), nil
}

func appendHashes(buf []byte, hashes []types.Hash) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(hashes)))
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

func readHashes(b []byte) ([]types.Hash, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("p2p: hash list length prefix truncated")
	}
	count := binary.LittleEndian.Uint32(b)
	off := 4
	hashes := make([]types.Hash, 0, count)
	for i := uint32(0); i < count; i++ {
		if len(b)-off < types.HashSize {
			return nil, fmt.Errorf("p2p: hash list truncated")
		}
		var h types.Hash
		copy(h[:], b[off:off+types.HashSize])
		hashes = append(hashes, h)
		off += types.HashSize
	}
	return hashes, nil
}

func readBlocks(b []byte) ([]*block.Block, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("p2p: block list length prefix truncated")
	}
	count := binary.LittleEndian.Uint32(b)
	off := 4
	blocks := make([]*block.Block, 0, count)
	for i := uint32(0); i < count; i++ {
		blk, n, err := block.UnmarshalBlock(b[off:])
		if err != nil {
			return nil, fmt.Errorf("p2p: block %d: %w", i, err)
		}
		blocks = append(blocks, blk)
		off += n
	}
	return blocks, nil
}

func readTransactions(b []byte) ([]*tx.SignedTransaction, error) {
	if len(b) < 4 {
		return nil, fmt.Errorf("p2p: transaction list length prefix truncated")
	}
	count := binary.LittleEndian.Uint32(b)
	off := 4
	txs := make([]*tx.SignedTransaction, 0, count)
	for i := uint32(0); i < count; i++ {
		signed, n, err := tx.UnmarshalSignedTransaction(b[off:])
		if err != nil {
			return nil, fmt.Errorf("p2p: transaction %d: %w", i, err)
		}
		txs = append(txs, signed)
		off += n
	}
	return txs, nil
}
