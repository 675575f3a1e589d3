package cardsecret_test

import (
	"errors"
	"testing"

	"github.com/tapfinity/tapfinity-api/internal/pkg/cardsecret"
)

func TestHasherRequiresSalt(t *testing.T) {
	_, err := cardsecret.NewHasher("")
	if !errors.Is(err, cardsecret.ErrSaltNotConfigured) {
		t.Fatalf("expected ErrSaltNotConfigured, got %v", err)
	}
}

func TestHashDeterministic(t *testing.T) {
	h, err := cardsecret.NewHasher("pepper")
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}

	a := h.Hash("card-secret-1")
	b := h.Hash("card-secret-1")
	if a != b {
		t.Fatalf("same secret hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
}

func TestHashDependsOnSalt(t *testing.T) {
	h1, _ := cardsecret.NewHasher("salt-a")
	h2, _ := cardsecret.NewHasher("salt-b")

	if h1.Hash("secret") == h2.Hash("secret") {
		t.Fatal("different salts must produce different hashes")
	}
	if h1.Hash("secret") == h1.Hash("other") {
		t.Fatal("different secrets must produce different hashes")
	}
}
