package tx

import (
	"encoding/binary"
	"fmt"

	"github.com/klingnet-labs/nodecore/pkg/types"
)

// rawSize is the fixed encoded length of a Transaction's signing bytes.
const rawSize = types.AddressSize*2 + 16

// Marshal encodes the signed transaction for the wire protocol. The
// layout is identical to SigningBytes — raw fields, then length-prefixed
// signature, then length-prefixed public key — since the signed record
// is exactly what a peer needs to both verify and store it.
func (s *SignedTransaction) Marshal() []byte {
	return s.SigningBytes()
}

// UnmarshalSignedTransaction decodes a SignedTransaction from the front
// of b and returns it along with the number of bytes consumed.
func UnmarshalSignedTransaction(b []byte) (*SignedTransaction, int, error) {
	if len(b) < rawSize+8 {
		return nil, 0, fmt.Errorf("signed transaction: buffer too short")
	}
	off := 0

	var raw Transaction
	copy(raw.Sender[:], b[off:off+types.AddressSize])
	off += types.AddressSize
	raw.Nonce = binary.LittleEndian.Uint64(b[off:])
	off += 8
	copy(raw.Receiver[:], b[off:off+types.AddressSize])
	off += types.AddressSize
	raw.Value = binary.LittleEndian.Uint64(b[off:])
	off += 8

	sigLen, n, err := readLenPrefixed(b, off)
	if err != nil {
		return nil, 0, err
	}
	sig := append([]byte(nil), sigLen...)
	off = n

	pkLen, n, err := readLenPrefixed(b, off)
	if err != nil {
		return nil, 0, err
	}
	pk := append([]byte(nil), pkLen...)
	off = n

	return &SignedTransaction{Raw: raw, Signature: sig, PublicKey: pk}, off, nil
}

// readLenPrefixed reads a uint32 length prefix followed by that many
// bytes, starting at off. It returns the slice and the offset just past
// it.
func readLenPrefixed(b []byte, off int) ([]byte, int, error) {
	if len(b) < off+4 {
		return nil, 0, fmt.Errorf("length prefix: buffer too short")
	}
	length := binary.LittleEndian.Uint32(b[off:])
	off += 4
	if uint32(len(b)-off) < length {
		return nil, 0, fmt.Errorf("length prefix: declared %d bytes, only %d remain", length, len(b)-off)
	}
	return b[off : off+int(length)], off + int(length), nil
}
