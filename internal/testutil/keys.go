package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// Keypair is a secret/public key pair in hex.
type Keypair struct {
	Secret string
	Public string
}

var (
	keyMu    sync.Mutex
	keyCache = map[string]Keypair{}
)

// Key derives a stable keypair from a human alias ("alice", "bob").
// The same alias always yields the same keys, so scenario golden files stay
// byte-identical across runs.
func Key(alias string) Keypair {
	keyMu.Lock()
	defer keyMu.Unlock()

	if kp, ok := keyCache[alias]; ok {
		return kp
	}

	sum := sha256.Sum256([]byte("bakery/test-key/" + alias))
	sk := hex.EncodeToString(sum[:])
	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		panic(fmt.Sprintf("testutil: derive key for %q: %v", alias, err))
	}

	kp := Keypair{Secret: sk, Public: pk}
	keyCache[alias] = kp
	return kp
}

// PubKey is shorthand for Key(alias).Public.
func PubKey(alias string) string {
	return Key(alias).Public
}
