package identity

import (
	"bytes"
	"crypto/ed25519"
	"testing"
)

func TestGenerateDistinctPrincipals(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if a.Principal().Equal(b.Principal()) {
		t.Error("Two generated identities share a principal")
	}
}

func TestFromSeedDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, ed25519.SeedSize)

	a, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed failed: %v", err)
	}
	b, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed failed: %v", err)
	}
	if !a.Principal().Equal(b.Principal()) {
		t.Error("Same seed produced different principals")
	}
}

func TestFromSeedRejectsWrongSize(t *testing.T) {
	if _, err := FromSeed(make([]byte, 16)); err == nil {
		t.Error("Expected error for 16-byte seed")
	}
}

func TestRestoreFromStoredPrincipalIsDeterministic(t *testing.T) {
	orig, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	stored := orig.Principal().Text()

	first, _, err := Restore(stored)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	second, _, err := Restore(stored)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !first.Principal().Equal(second.Principal()) {
		t.Error("Restore is not deterministic for the same stored principal")
	}
}

func TestRestoreReportsExactMatch(t *testing.T) {
	// An identity whose principal decodes to its own seed restores exactly.
	seed := bytes.Repeat([]byte{3}, ed25519.SeedSize)
	id, err := FromSeed(seed)
	if err != nil {
		t.Fatalf("FromSeed failed: %v", err)
	}

	restored, matched, err := Restore(id.Principal().Text())
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if matched {
		// Public key rarely equals seed; verify the claim when it happens.
		if !restored.Principal().Equal(id.Principal()) {
			t.Error("matched=true but principals differ")
		}
	} else if restored.Principal().Equal(id.Principal()) {
		t.Error("matched=false but principals agree")
	}
}

func TestRestoreFromNonBase58Input(t *testing.T) {
	id, matched, err := Restore("not-a-valid-principal-0OIl")
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if matched {
		t.Error("Fallback-derived identity cannot match the stored text")
	}
	if id == nil {
		t.Fatal("Restore returned nil identity")
	}
}

func TestSignVerifies(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	msg := []byte(`{"method":"transfer"}`)
	sig := id.Sign(msg)
	if !ed25519.Verify(id.PublicKey(), msg, sig) {
		t.Error("Signature does not verify against the identity's public key")
	}
}
