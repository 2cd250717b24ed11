package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// AddressSize is the length of an account address in bytes.
const AddressSize = 20

// Address identifies an account.
type Address [AddressSize]byte

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the hex-encoded address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a hex string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := HexToAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// HexToAddress converts a 40-character hex string to an Address.
func HexToAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address hex: %w", err)
	}
	if len(b) != AddressSize {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressSize, len(b))
	}
	var a Address
	copy(a[:], b)
	return a, nil
}

// FillAddress returns the address with every byte set to b — used to
// build the five fixed genesis accounts ([1;20] .. [5;20]).
func FillAddress(b byte) Address {
	var a Address
	for i := range a {
		a[i] = b
	}
	return a
}
