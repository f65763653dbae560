// Package identity provides Ed25519 credential handles for authenticating
// against the ledger service, including local developer identities and
// best-effort deterministic restoration from a stored principal.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"token-ledger-client/internal/principal"
)

// Identity is a credential handle bound to one principal.
type Identity struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates a fresh identity from random entropy.
func Generate() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return &Identity{priv: priv, pub: pub}, nil
}

// FromSeed derives an identity deterministically from a 32-byte seed.
func FromSeed(seed []byte) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Identity{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Restore attempts to rebuild the identity whose principal text is stored.
// The seed is derived from the decoded principal bytes, which cannot in
// general invert the key derivation, so the derived principal usually
// differs from the stored one. The returned matched flag reports whether
// they agree; callers must not treat a mismatch as an exact restore.
func Restore(storedPrincipal string) (*Identity, bool, error) {
	var seed [ed25519.SeedSize]byte
	if raw, err := base58.Decode(storedPrincipal); err == nil && len(raw) >= ed25519.SeedSize {
		copy(seed[:], raw[:ed25519.SeedSize])
	} else {
		seed = sha256.Sum256([]byte(storedPrincipal))
	}

	id, err := FromSeed(seed[:])
	if err != nil {
		return nil, false, err
	}

	matched := id.Principal().Text() == storedPrincipal
	return id, matched, nil
}

// Principal returns the principal derived from the identity's public key.
func (id *Identity) Principal() principal.Principal {
	p, err := principal.FromPublicKey(id.pub)
	if err != nil {
		// Unreachable: the public key is always 32 bytes.
		panic(err)
	}
	return p
}

// Sign signs a message with the identity's private key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.priv, message)
}

// PublicKey returns the identity's public key.
func (id *Identity) PublicKey() ed25519.PublicKey {
	return id.pub
}
