// derive_key.go prints the public key and address for a hex-encoded
// 32-byte Ed25519 seed file.
// Usage: go run scripts/derive_key.go <seedfile>
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/klingnet-labs/nodecore/pkg/crypto"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_key <seedfile>")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	seedHex := strings.TrimSpace(string(data))
	seedBytes, err := hex.DecodeString(seedHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	key, err := crypto.PrivateKeyFromSeed(seedBytes)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	pub := key.PublicKey()
	addr := crypto.AddressFromPubKey(pub)
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(pub))
	fmt.Printf("address=%s\n", addr.String())
}
