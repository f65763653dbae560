// Package principal encodes and validates the opaque actor identifiers
// used by the ledger service. A principal is the base58 text form of a
// 32-byte Ed25519 public key.
package principal

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrInvalid is returned when a string does not parse into a principal.
var ErrInvalid = errors.New("invalid principal")

// Principal is a parsed, validated actor identifier.
type Principal struct {
	key [ed25519.PublicKeySize]byte
}

// FromPublicKey derives the principal for an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (Principal, error) {
	if len(pub) != ed25519.PublicKeySize {
		return Principal{}, fmt.Errorf("%w: public key is %d bytes, want %d", ErrInvalid, len(pub), ed25519.PublicKeySize)
	}
	var p Principal
	copy(p.key[:], pub)
	return p, nil
}

// Parse decodes and validates a principal text. The decoded bytes must be
// exactly 32 bytes and a valid point on the ed25519 curve.
func Parse(text string) (Principal, error) {
	if text == "" {
		return Principal{}, fmt.Errorf("%w: empty", ErrInvalid)
	}

	raw, err := base58.Decode(text)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return Principal{}, fmt.Errorf("%w: decoded to %d bytes, want %d", ErrInvalid, len(raw), ed25519.PublicKeySize)
	}
	if !isOnCurve(raw) {
		return Principal{}, fmt.Errorf("%w: not a valid curve point", ErrInvalid)
	}

	var p Principal
	copy(p.key[:], raw)
	return p, nil
}

// Text returns the canonical base58 form.
func (p Principal) Text() string {
	return base58.Encode(p.key[:])
}

// Equal reports whether two principals identify the same actor.
func (p Principal) Equal(other Principal) bool {
	return p.key == other.key
}

// IsZero reports whether the principal is the zero value.
func (p Principal) IsZero() bool {
	return p.key == [ed25519.PublicKeySize]byte{}
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
