// peer_id.go prints the key type and peer ID stored in an identity key file.
// Usage: go run scripts/peer_id.go <keyfile>
package main

import (
	"fmt"
	"os"

	"github.com/Klingon-tech/peerprobe/config"
	"github.com/Klingon-tech/peerprobe/internal/identity"
	"github.com/libp2p/go-libp2p/core/peer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: peer_id <keyfile>")
		os.Exit(1)
	}
	var pass []byte
	if v := os.Getenv(config.PassphraseEnv); v != "" {
		pass = []byte(v)
	}
	priv, err := identity.Load(os.Args[1], pass)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("type=%s\n", identity.KeyType(priv))
	fmt.Printf("peer_id=%s\n", id)
}
