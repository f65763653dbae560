// Package session owns the authenticated identity for the process lifetime:
// login, cold-start restoration, periodic verification and logout.
package session

import (
	"context"
	"fmt"

	"token-ledger-client/internal/identity"
)

// Login modes.
type Mode string

const (
	// ModeInteractive delegates to the external identity provider.
	ModeInteractive Mode = "interactive"
	// ModeDeveloper synthesizes a local credential from random entropy.
	ModeDeveloper Mode = "developer"
)

// Persisted state keys.
const (
	keyAuthenticated = "session:authenticated"
	keyPrincipal     = "session:principal"
)

// AuthError reports a login, restore or verification failure.
type AuthError struct {
	Stage string // "login", "restore", "verify"
	Err   error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Stage, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Provider is the external identity provider collaborator. Out of scope
// here; the interactive login flow delegates to it.
type Provider interface {
	// Login runs the interactive authentication flow.
	Login(ctx context.Context) (*identity.Identity, error)

	// IsAuthenticated reports whether the provider still considers the
	// session valid.
	IsAuthenticated(ctx context.Context) (bool, error)

	// Logout revokes the provider session.
	Logout(ctx context.Context) error
}

// State is a read-only snapshot of the session.
type State struct {
	Principal     string `json:"principal"`
	Authenticated bool   `json:"authenticated"`
	// ExactRestore is false when the session was rebuilt from a stored
	// principal with a credential whose derived principal did not match.
	ExactRestore bool `json:"exactRestore"`
}
